package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

var requiredVars = []string{"DATABASE_URL", "JWT_SECRET", "COOKIE_SECRET"}

// optionalGroups must be set completely or not at all.
var optionalGroups = []struct {
	name string
	vars []string
}{
	{"stripe", []string{"STRIPE_API_KEY", "STRIPE_WEBHOOK_SECRET"}},
	{"sendgrid", []string{"SENDGRID_API_KEY", "SENDGRID_FROM_EMAIL"}},
	{"resend", []string{"RESEND_API_KEY", "RESEND_FROM_EMAIL"}},
	{"minio", []string{"MINIO_ENDPOINT", "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY"}},
	{"meilisearch", []string{"MEILISEARCH_HOST", "MEILISEARCH_ADMIN_KEY"}},
	{"azure_face", []string{"AZURE_FACE_ENDPOINT", "AZURE_FACE_KEY"}},
	{"firebase", []string{"FIREBASE_PROJECT_ID", "FIREBASE_CLIENT_EMAIL", "FIREBASE_PRIVATE_KEY"}},
	{"mercadopago", []string{"MERCADOPAGO_ACCESS_TOKEN"}},
	{"google_auth", []string{"GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET"}},
}

const defaultSecret = "supersecret"

// EnvError is one failed environment check.
type EnvError struct {
	Variable string `json:"variable"`
	Reason   string `json:"reason"`
}

// Validation is the outcome of ValidateEnvironment.
type Validation struct {
	Errors   []EnvError `json:"errors"`
	Warnings []string   `json:"warnings"`
}

func (v Validation) Valid() bool { return len(v.Errors) == 0 }

// Err joins the validation errors, or returns nil when valid.
func (v Validation) Err() error {
	errs := make([]error, 0, len(v.Errors))
	for _, e := range v.Errors {
		errs = append(errs, fmt.Errorf("%s: %s", e.Variable, e.Reason))
	}
	return errors.Join(errs...)
}

// ValidateEnvironment checks required variables, partially configured
// optional groups, and default secrets in production.
func ValidateEnvironment() Validation {
	var v Validation
	for _, name := range requiredVars {
		if env(name) == "" {
			v.Errors = append(v.Errors, EnvError{Variable: name, Reason: "Required variable is missing"})
		}
	}

	for _, group := range optionalGroups {
		var present, missing []string
		for _, name := range group.vars {
			if env(name) != "" {
				present = append(present, name)
			} else {
				missing = append(missing, name)
			}
		}
		if len(present) > 0 && len(missing) > 0 {
			v.Warnings = append(v.Warnings, fmt.Sprintf(
				"Incomplete %s configuration. Present: [%s], Missing: [%s]",
				group.name, strings.Join(present, ", "), strings.Join(missing, ", "),
			))
		}
	}

	if IsProduction() && (env("JWT_SECRET") == defaultSecret || env("COOKIE_SECRET") == defaultSecret) {
		v.Errors = append(v.Errors, EnvError{
			Variable: "JWT_SECRET/COOKIE_SECRET",
			Reason:   "Production environment detected with default secrets. Change these immediately!",
		})
	}
	return v
}

// SkipValidation reports whether SKIP_ENV_VALIDATION=true.
func SkipValidation() bool {
	return env("SKIP_ENV_VALIDATION") == "true"
}

// LoadDotEnv loads .env.<APP_ENV> then .env from dir. Variables already set
// in the environment are never overridden, and missing files are ignored.
func LoadDotEnv(dir string) ([]string, error) {
	files := []string{".env"}
	if appEnv := env("APP_ENV"); appEnv != "" {
		files = []string{".env." + appEnv, ".env"}
	}
	var loaded []string
	for _, name := range files {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return loaded, fmt.Errorf("load %s: %w", path, err)
		}
		loaded = append(loaded, path)
	}
	return loaded, nil
}
