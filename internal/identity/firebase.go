// Package identity verifies storefront credentials: Firebase ID tokens issued
// to shoppers and the session tokens this service issues to customers.
package identity

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"vortx/internal/apperr"
)

const (
	defaultCertsURL  = "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"
	issuerPrefix     = "https://securetoken.google.com/"
	defaultCertsTTL  = time.Hour
	minRefetchPeriod = time.Minute
)

// ErrVerifierUnavailable is returned when Firebase is not configured.
var ErrVerifierUnavailable = fmt.Errorf("firebase verifier: %w", apperr.ErrUnavailable)

// Token is a verified Firebase ID token.
type Token struct {
	UID           string    `json:"uid"`
	Email         string    `json:"email,omitempty"`
	EmailVerified bool      `json:"email_verified"`
	Name          string    `json:"name,omitempty"`
	Picture       string    `json:"picture,omitempty"`
	IssuedAt      time.Time `json:"iat"`
	ExpiresAt     time.Time `json:"exp"`
}

// Verifier verifies Firebase ID tokens.
type Verifier interface {
	VerifyIDToken(ctx context.Context, raw string) (*Token, error)
}

type firebaseClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	Name          string `json:"name,omitempty"`
	Picture       string `json:"picture,omitempty"`
}

type FirebaseConfig struct {
	ProjectID  string
	CertsURL   string
	HTTPClient *http.Client
	Logger     *slog.Logger
	Now        func() time.Time
}

// FirebaseVerifier checks RS256 ID tokens against Google's published
// certificates, cached for as long as Google's Cache-Control allows.
type FirebaseVerifier struct {
	projectID string
	certsURL  string
	http      *http.Client
	logger    *slog.Logger
	now       func() time.Time

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	expiresAt time.Time
	fetchedAt time.Time
}

func NewFirebaseVerifier(cfg FirebaseConfig) (*FirebaseVerifier, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("firebase project id is required")
	}
	v := &FirebaseVerifier{
		projectID: cfg.ProjectID,
		certsURL:  cfg.CertsURL,
		http:      cfg.HTTPClient,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
	if v.certsURL == "" {
		v.certsURL = defaultCertsURL
	}
	if v.http == nil {
		v.http = &http.Client{Timeout: 5 * time.Second}
	}
	if v.logger == nil {
		v.logger = slog.Default()
	}
	if v.now == nil {
		v.now = time.Now
	}
	return v, nil
}

func (v *FirebaseVerifier) VerifyIDToken(ctx context.Context, raw string) (*Token, error) {
	if raw == "" {
		return nil, apperr.Auth("no token provided", nil)
	}

	claims := &firebaseClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(t *jwt.Token) (any, error) {
			kid, _ := t.Header["kid"].(string)
			if kid == "" {
				return nil, errors.New("missing kid in header")
			}
			return v.key(ctx, kid)
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.projectID),
		jwt.WithIssuer(issuerPrefix+v.projectID),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		v.logger.Debug("firebase token rejected", "error", err)
		return nil, apperr.Auth("invalid or expired token", err)
	}
	if claims.Subject == "" {
		return nil, apperr.Auth("invalid or expired token", errors.New("token subject is required"))
	}

	tok := &Token{
		UID:           claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
		Picture:       claims.Picture,
	}
	if claims.IssuedAt != nil {
		tok.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		tok.ExpiresAt = claims.ExpiresAt.Time
	}
	return tok, nil
}

// key returns the public key for kid, refreshing the certificate set when it
// has expired or when kid is unknown and the last fetch is not too recent.
func (v *FirebaseVerifier) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	now := v.now()

	v.mu.RLock()
	key, ok := v.keys[kid]
	fresh := now.Before(v.expiresAt)
	recent := now.Sub(v.fetchedAt) < minRefetchPeriod
	v.mu.RUnlock()

	if ok && fresh {
		return key, nil
	}
	if !fresh || !recent {
		if err := v.refresh(ctx); err != nil {
			return nil, err
		}
		v.mu.RLock()
		key, ok = v.keys[kid]
		v.mu.RUnlock()
	}
	if !ok {
		return nil, fmt.Errorf("key not found: %s", kid)
	}
	return key, nil
}

func (v *FirebaseVerifier) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.certsURL, nil)
	if err != nil {
		return err
	}
	resp, err := v.http.Do(req)
	if err != nil {
		return apperr.Service("firebase", "fetch certificates", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return apperr.Service("firebase", "fetch certificates", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var certs map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&certs); err != nil {
		return apperr.Service("firebase", "decode certificates", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(certs))
	for kid, pemCert := range certs {
		pub, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pemCert))
		if err != nil {
			v.logger.Warn("skipping unparsable firebase certificate", "kid", kid, "error", err)
			continue
		}
		keys[kid] = pub
	}

	now := v.now()
	v.mu.Lock()
	v.keys = keys
	v.fetchedAt = now
	v.expiresAt = now.Add(maxAge(resp.Header.Get("Cache-Control")))
	v.mu.Unlock()

	v.logger.Debug("firebase certificates refreshed", "keys", len(keys))
	return nil
}

func maxAge(cacheControl string) time.Duration {
	for _, directive := range strings.Split(cacheControl, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(directive), "=")
		if !ok || !strings.EqualFold(name, "max-age") {
			continue
		}
		if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultCertsTTL
}

// UnavailableVerifier stands in when Firebase credentials are not configured.
type UnavailableVerifier struct{}

func (UnavailableVerifier) VerifyIDToken(context.Context, string) (*Token, error) {
	return nil, ErrVerifierUnavailable
}

// BearerToken extracts the token of an "Authorization: Bearer <token>" header.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || scheme != "Bearer" {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
