package config

import (
	"os"
	"strings"
)

// ProviderConfig describes one pluggable provider or module and whether the
// environment enables it.
type ProviderConfig struct {
	Key     string         `json:"key,omitempty" yaml:"key,omitempty"`
	Resolve string         `json:"resolve" yaml:"resolve"`
	ID      string         `json:"id,omitempty" yaml:"id,omitempty"`
	Enabled bool           `json:"enabled" yaml:"enabled"`
	Options map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
}

// MercadoPagoConfig configures the payment processor client.
type MercadoPagoConfig struct {
	AccessToken string
	Sandbox     bool
}

// AzureFaceConfig configures the face recognition client.
type AzureFaceConfig struct {
	Endpoint string
	Key      string
}

// MinIOConfig configures S3 compatible media storage.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
}

// Services holds the external collaborators enabled by the environment. A nil
// field means the service is not configured.
type Services struct {
	MercadoPago *MercadoPagoConfig
	AzureFace   *AzureFaceConfig
	MinIO       *MinIOConfig
	BackendURL  string
	StoreURL    string
}

// LoadServices reads external service settings from env.
func LoadServices() Services {
	s := Services{
		BackendURL: stringOr("BACKEND_URL", "http://localhost:9000"),
		StoreURL:   stringOr("STORE_URL", "http://localhost:8000"),
	}
	if token := env("MERCADOPAGO_ACCESS_TOKEN"); token != "" {
		s.MercadoPago = &MercadoPagoConfig{AccessToken: token, Sandbox: env("MERCADOPAGO_SANDBOX") == "true"}
	}
	if endpoint, key := env("AZURE_FACE_ENDPOINT"), env("AZURE_FACE_KEY"); endpoint != "" && key != "" {
		s.AzureFace = &AzureFaceConfig{Endpoint: endpoint, Key: key}
	}
	endpoint, access, secret := env("MINIO_ENDPOINT"), env("MINIO_ACCESS_KEY"), env("MINIO_SECRET_KEY")
	if endpoint != "" && access != "" && secret != "" {
		s.MinIO = &MinIOConfig{
			Endpoint:  endpoint,
			AccessKey: access,
			SecretKey: secret,
			Bucket:    stringOr("MINIO_BUCKET", "medusa-media"),
		}
	}
	return s
}

// AssembleProviders lists every provider and module with its enabled state.
func AssembleProviders() []ProviderConfig {
	var out []ProviderConfig
	out = append(out, fileStorageProvider())
	out = append(out, paymentProviders()...)
	out = append(out, notificationProviders()...)
	out = append(out, redisServices()...)
	out = append(out, customModules()...)
	out = append(out, searchPlugin())
	return out
}

// EnabledConfigs keeps only enabled providers.
func EnabledConfigs(configs []ProviderConfig) []ProviderConfig {
	var out []ProviderConfig
	for _, c := range configs {
		if c.Enabled {
			out = append(out, c)
		}
	}
	return out
}

func fileStorageProvider() ProviderConfig {
	s := LoadServices()
	if s.MinIO != nil {
		return ProviderConfig{
			Key:     "FILE",
			Resolve: "minio-file",
			ID:      "minio",
			Enabled: true,
			Options: map[string]any{
				"endPoint":  s.MinIO.Endpoint,
				"accessKey": s.MinIO.AccessKey,
				"secretKey": redact(s.MinIO.SecretKey),
				"bucket":    s.MinIO.Bucket,
			},
		}
	}
	return ProviderConfig{
		Key:     "FILE",
		Resolve: "file-local",
		ID:      "local",
		Enabled: true,
		Options: map[string]any{
			"upload_dir":  "static",
			"backend_url": s.BackendURL + "/static",
		},
	}
}

func paymentProviders() []ProviderConfig {
	apiKey, webhookSecret := env("STRIPE_API_KEY"), env("STRIPE_WEBHOOK_SECRET")
	token := env("MERCADOPAGO_ACCESS_TOKEN")
	return []ProviderConfig{
		{
			Key:     "PAYMENT",
			Resolve: "payment-stripe",
			ID:      "stripe",
			Enabled: apiKey != "" && webhookSecret != "",
			Options: map[string]any{"apiKey": redact(apiKey), "webhookSecret": redact(webhookSecret)},
		},
		{
			Key:     "PAYMENT",
			Resolve: "payment-mercadopago",
			ID:      "mercadopago",
			Enabled: token != "",
			Options: map[string]any{"accessToken": redact(token), "sandbox": env("MERCADOPAGO_SANDBOX") == "true"},
		},
	}
}

func notificationProviders() []ProviderConfig {
	sgKey, sgFrom := env("SENDGRID_API_KEY"), env("SENDGRID_FROM_EMAIL")
	rsKey, rsFrom := env("RESEND_API_KEY"), env("RESEND_FROM_EMAIL")
	return []ProviderConfig{
		{
			Key:     "NOTIFICATION",
			Resolve: "notification-sendgrid",
			ID:      "sendgrid",
			Enabled: sgKey != "" && sgFrom != "",
			Options: map[string]any{"channels": []string{"email"}, "api_key": redact(sgKey), "from": sgFrom},
		},
		{
			Key:     "NOTIFICATION",
			Resolve: "email-notifications",
			ID:      "resend",
			Enabled: rsKey != "" && rsFrom != "",
			Options: map[string]any{"channels": []string{"email"}, "api_key": redact(rsKey), "from": rsFrom},
		},
	}
}

func redisServices() []ProviderConfig {
	url := env("REDIS_URL")
	return []ProviderConfig{
		{Key: "EVENT_BUS", Resolve: "event-bus-redis", Enabled: url != "", Options: map[string]any{"redisUrl": redactURL(url)}},
		{Key: "WORKFLOW_ENGINE", Resolve: "workflow-engine-redis", Enabled: url != "", Options: map[string]any{"redisUrl": redactURL(url)}},
	}
}

func customModules() []ProviderConfig {
	s := LoadServices()
	face := ProviderConfig{Resolve: "modules/face", Enabled: s.AzureFace != nil}
	if s.AzureFace != nil {
		face.Options = map[string]any{"endpoint": s.AzureFace.Endpoint, "apiKey": redact(s.AzureFace.Key)}
	}
	project := env("FIREBASE_PROJECT_ID")
	mp := ProviderConfig{Resolve: "modules/mercadopago", Enabled: s.MercadoPago != nil}
	if s.MercadoPago != nil {
		mp.Options = map[string]any{"sandbox": s.MercadoPago.Sandbox}
	}
	return []ProviderConfig{
		face,
		{Resolve: "modules/firebase", Enabled: project != "", Options: map[string]any{"projectId": project}},
		mp,
		{Resolve: "modules/wishlist", Enabled: true},
	}
}

func searchPlugin() ProviderConfig {
	host, key := env("MEILISEARCH_HOST"), env("MEILISEARCH_ADMIN_KEY")
	return ProviderConfig{
		Resolve: "medusa-plugin-meilisearch",
		Enabled: host != "" && key != "",
		Options: map[string]any{"host": host, "index": "products"},
	}
}

func env(name string) string {
	return strings.TrimSpace(os.Getenv(name))
}

// redact hides secrets in provider dumps.
func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "****"
}

func redactURL(raw string) string {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return raw
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		return scheme + "://****@" + rest[at+1:]
	}
	return raw
}
