package face

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"vortx/internal/apperr"
	"vortx/internal/reliability"
)

const (
	serviceName      = "azure-face"
	detectionModel   = "detection_03"
	recognitionModel = "recognition_04"
)

type AzureConfig struct {
	Endpoint   string
	Key        string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// AzureClient calls the Azure Face REST API.
type AzureClient struct {
	endpoint string
	key      string
	http     *http.Client
	logger   *slog.Logger
}

func NewAzureClient(cfg AzureConfig) *AzureClient {
	c := &AzureClient{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		key:      cfg.Key,
		http:     cfg.HTTPClient,
		logger:   cfg.Logger,
	}
	if c.http == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		c.http = &http.Client{Timeout: timeout}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// DetectFaces returns every face found in the image. An image without faces
// is an error.
func (c *AzureClient) DetectFaces(ctx context.Context, imageURL string) ([]Face, error) {
	q := url.Values{}
	q.Set("returnFaceId", "true")
	q.Set("detectionModel", detectionModel)
	q.Set("recognitionModel", recognitionModel)

	var faces []Face
	if err := c.post(ctx, "/face/v1.0/detect?"+q.Encode(), map[string]string{"url": imageURL}, &faces); err != nil {
		return nil, apperr.Service(serviceName, "detect", err)
	}
	if len(faces) == 0 {
		return nil, apperr.Service(serviceName, "detect", reliability.Permanent(ErrNoFaceDetected))
	}
	c.logger.Debug("faces detected", "count", len(faces))
	return faces, nil
}

func (c *AzureClient) VerifyFaces(ctx context.Context, faceID1, faceID2 string) (Verification, error) {
	var out Verification
	body := map[string]string{"faceId1": faceID1, "faceId2": faceID2}
	if err := c.post(ctx, "/face/v1.0/verify", body, &out); err != nil {
		return Verification{}, apperr.Service(serviceName, "verify", err)
	}
	return out, nil
}

type azureError struct {
	Status int
	Code   string `json:"code"`
	Msg    string `json:"message"`
}

func (e *azureError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("status %d", e.Status)
	}
	return fmt.Sprintf("status %d: %s: %s", e.Status, e.Code, e.Msg)
}

func (c *AzureClient) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return reliability.Permanent(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return reliability.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Ocp-Apim-Subscription-Key", c.key)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var envelope struct {
			Error azureError `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		_ = json.Unmarshal(raw, &envelope)
		aerr := envelope.Error
		aerr.Status = resp.StatusCode
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return &aerr
		}
		return reliability.Permanent(&aerr)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
