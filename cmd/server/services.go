package main

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"vortx/cmd/server/config"
	"vortx/internal/face"
	"vortx/internal/identity"
	"vortx/internal/media"
	"vortx/internal/observability"
	"vortx/internal/payment"
	"vortx/internal/reliability"
)

// buildProcessor returns nil when Mercado Pago is not configured, which
// disables checkout and the payment webhook.
func buildProcessor(s config.Services, metrics *observability.Metrics, logger *slog.Logger) (*payment.ReliableProcessor, error) {
	if s.MercadoPago == nil {
		logger.Warn("MERCADOPAGO_ACCESS_TOKEN not set, checkout and webhooks disabled")
		return nil, nil
	}
	cfg, err := reliability.LoadConfigFromEnv("MERCADOPAGO")
	if err != nil {
		return nil, err
	}
	client := payment.NewClient(payment.ClientConfig{
		AccessToken: s.MercadoPago.AccessToken,
		Sandbox:     s.MercadoPago.Sandbox,
		StoreURL:    s.StoreURL,
		BackendURL:  s.BackendURL,
		Logger:      logger,
	})
	guard := reliability.NewGuardFromConfig(cfg).OnWait(metrics.AddRateLimitWait)
	return payment.NewReliableProcessor(client, guard), nil
}

// buildVision returns nil when Azure Face is not configured.
func buildVision(s config.Services, metrics *observability.Metrics, logger *slog.Logger) (face.Vision, error) {
	if s.AzureFace == nil {
		logger.Warn("AZURE_FACE_ENDPOINT or AZURE_FACE_KEY not set, face routes disabled")
		return nil, nil
	}
	cfg, err := reliability.LoadConfigFromEnv("AZURE_FACE")
	if err != nil {
		return nil, err
	}
	client := face.NewAzureClient(face.AzureConfig{
		Endpoint: s.AzureFace.Endpoint,
		Key:      s.AzureFace.Key,
		Logger:   logger,
	})
	guard := reliability.NewGuardFromConfig(cfg).OnWait(metrics.AddRateLimitWait)
	return face.NewReliableVision(client, guard), nil
}

func buildVerifier(projectID string, logger *slog.Logger) identity.Verifier {
	if projectID == "" {
		logger.Warn("FIREBASE_PROJECT_ID not set, Firebase sign-in unavailable")
		return identity.UnavailableVerifier{}
	}
	v, err := identity.NewFirebaseVerifier(identity.FirebaseConfig{ProjectID: projectID, Logger: logger})
	if err != nil {
		logger.Error("firebase verifier", "error", err)
		return identity.UnavailableVerifier{}
	}
	return v
}

// buildFileStore prefers MinIO and falls back to the local static directory.
func buildFileStore(ctx context.Context, s config.Services, logger *slog.Logger) (media.FileStore, *media.LocalStore, error) {
	if s.MinIO != nil {
		store, err := media.NewS3Store(ctx, media.S3Config{
			Endpoint:  s.MinIO.Endpoint,
			AccessKey: s.MinIO.AccessKey,
			SecretKey: s.MinIO.SecretKey,
			Bucket:    s.MinIO.Bucket,
		})
		if err == nil {
			return store, nil, nil
		}
		logger.Error("minio file store, using local storage", "error", err)
	}
	local, err := media.NewLocalStore("static", strings.TrimRight(s.BackendURL, "/")+"/static")
	if err != nil {
		return nil, nil, err
	}
	return local, local, nil
}

// originMatcher accepts the configured storefront origins. "*" accepts any.
func originMatcher(origins []string) func(string) bool {
	if len(origins) == 0 {
		return nil
	}
	return func(origin string) bool {
		return slices.Contains(origins, "*") || slices.Contains(origins, origin)
	}
}
