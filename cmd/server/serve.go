package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	grpcpkg "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"vortx/cmd/server/config"
	"vortx/internal/checkout"
	"vortx/internal/customers"
	"vortx/internal/face"
	"vortx/internal/httpapi"
	"vortx/internal/identity"
	"vortx/internal/observability"
	"vortx/internal/orders"
	"vortx/internal/payment"
	"vortx/internal/realtime"
	"vortx/internal/wishlist"
	"vortx/internal/workflow"
)

const healthService = "vortx.Storefront"

func run(ctx context.Context, logger *slog.Logger) error {
	httpCfg, err := config.LoadHTTP()
	if err != nil {
		return err
	}
	authCfg, err := config.LoadAuth()
	if err != nil {
		return err
	}
	grpcCfg, err := config.LoadGRPC()
	if err != nil {
		return err
	}
	services := config.LoadServices()
	metrics := observability.NewMetrics()

	st, cleanupStores, err := buildStores(ctx, logger)
	if err != nil {
		return err
	}
	defer cleanupStores()

	handler, err := buildRouter(ctx, logger, metrics, st, services, httpCfg, authCfg)
	if err != nil {
		return err
	}
	httpSrv := &http.Server{
		Addr:              httpCfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lis, err := net.Listen("tcp", grpcCfg.Addr)
	if err != nil {
		return err
	}
	limiter := newIngressLimiter(grpcCfg.RateLimitInterval, grpcCfg.RateLimitBurst, metrics.AddRateLimitWait)
	grpcSrv := grpcpkg.NewServer(
		grpcpkg.UnaryInterceptor(rateLimitUnaryInterceptor(limiter, metrics, logger)),
		grpcpkg.StreamInterceptor(rateLimitStreamInterceptor(limiter, metrics, logger)),
	)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthServer)
	setServing(healthServer, healthpb.HealthCheckResponse_SERVING)
	if !config.IsProduction() {
		reflection.Register(grpcSrv)
		logger.Info("gRPC reflection enabled")
	}

	obsSrv, err := startObservabilityServer(metrics, logger)
	if err != nil {
		return err
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http server listening", "addr", httpCfg.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		logger.Info("grpc health server listening", "addr", grpcCfg.Addr)
		if err := grpcSrv.Serve(lis); err != nil {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	metrics.MarkShutdown(metrics.InFlight())
	setServing(healthServer, healthpb.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpCfg.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	grpcSrv.GracefulStop()
	if err := obsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("observability shutdown", "error", err)
	}
	logger.Info("server stopped")
	return runErr
}

func buildRouter(
	ctx context.Context,
	logger *slog.Logger,
	metrics *observability.Metrics,
	st stores,
	services config.Services,
	httpCfg config.HTTPConfig,
	authCfg config.AuthConfig,
) (*gin.Engine, error) {
	opts := []workflow.Option{
		workflow.WithLogger(logger),
		workflow.WithTracer(otel.Tracer("vortx")),
		workflow.WithObserver(metrics),
	}
	if st.Recorder != nil {
		opts = append(opts, workflow.WithRecorder(st.Recorder))
	}
	engine := workflow.NewEngine(opts...)

	hub := realtime.NewHub(logger, originMatcher(httpCfg.StoreCORS))
	go hub.Run(ctx)

	sessions, err := identity.NewSessions(authCfg.JWTSecret, authCfg.SessionTTL)
	if err != nil {
		return nil, err
	}
	verifier := buildVerifier(authCfg.FirebaseProjectID, logger)

	files, local, err := buildFileStore(ctx, services, logger)
	if err != nil {
		return nil, err
	}

	deps := httpapi.Deps{
		Logger:              logger,
		Metrics:             metrics,
		Engine:              engine,
		Payments:            st.Payments,
		Verifier:            verifier,
		Sessions:            sessions,
		FirebaseAuth:        customers.NewAuthWorkflow(customers.AuthDeps{Verifier: verifier, Store: st.Customers, Logger: logger}),
		Customers:           st.Customers,
		Wishlist:            wishlist.NewService(st.Wishlist, logger),
		Files:               files,
		Hub:                 hub,
		StoreCORS:           httpCfg.StoreCORS,
		WebhookRateInterval: httpCfg.WebhookRateInterval,
		WebhookRateBurst:    httpCfg.WebhookRateBurst,
	}
	if config.IsProduction() {
		deps.Mode = gin.ReleaseMode
	}
	if st.Recorder != nil && authCfg.AdminToken != "" {
		deps.Executions = st.Recorder
		deps.AdminToken = authCfg.AdminToken
	} else if st.Recorder != nil {
		logger.Warn("ADMIN_TOKEN not set, workflow execution lookup disabled")
	}

	vision, err := buildVision(services, metrics, logger)
	if err != nil {
		return nil, err
	}
	if vision != nil {
		deps.Vision = vision
		deps.FaceDetection = face.NewDetectionWorkflow(face.DetectionDeps{Vision: vision, Store: st.Faces, Logger: logger})
	}

	processor, err := buildProcessor(services, metrics, logger)
	if err != nil {
		return nil, err
	}
	if processor != nil {
		deps.Checkout = checkout.NewWorkflow(processor, st.Payments, logger)
		deps.Reconciler = payment.NewReconciler(processor.WebhookGetter(), logger)
		deps.Applier = orders.NewStatusApplier(st.Payments, st.Events, hub, logger)
	}

	router, err := httpapi.NewRouter(deps)
	if err != nil {
		return nil, err
	}
	if local != nil {
		router.Static("/static", local.Dir())
	}
	return router, nil
}

func setServing(h *health.Server, status healthpb.HealthCheckResponse_ServingStatus) {
	h.SetServingStatus("", status)
	h.SetServingStatus(healthService, status)
}

func startObservabilityServer(metrics *observability.Metrics, logger *slog.Logger) (*http.Server, error) {
	cfg, err := config.LoadObservability()
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler(metrics))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("observability server error", "error", err)
		}
	}()
	return srv, nil
}
