package face

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"vortx/internal/apperr"
	"vortx/internal/reliability"
)

func newAzure(t *testing.T, handler http.HandlerFunc) *AzureClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewAzureClient(AzureConfig{
		Endpoint: srv.URL + "/",
		Key:      "face-key",
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestAzureClient_DetectFaces(t *testing.T) {
	client := newAzure(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/face/v1.0/detect" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("detectionModel") != "detection_03" || q.Get("recognitionModel") != "recognition_04" || q.Get("returnFaceId") != "true" {
			t.Errorf("unexpected query %v", q)
		}
		if r.Header.Get("Ocp-Apim-Subscription-Key") != "face-key" {
			t.Errorf("missing subscription key")
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["url"] != "https://img/1.jpg" {
			t.Errorf("unexpected body %v", body)
		}
		_, _ = w.Write([]byte(`[{"faceId":"f-1","faceRectangle":{"top":1,"left":2,"width":3,"height":4}}]`))
	})

	faces, err := client.DetectFaces(context.Background(), "https://img/1.jpg")
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(faces) != 1 || faces[0].FaceID != "f-1" || faces[0].Rectangle.Height != 4 {
		t.Fatalf("unexpected faces %+v", faces)
	}
}

func TestAzureClient_NoFacesIsServiceError(t *testing.T) {
	client := newAzure(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	_, err := client.DetectFaces(context.Background(), "https://img/empty.jpg")
	var svcErr *apperr.ServiceError
	if !errors.As(err, &svcErr) || !errors.Is(err, ErrNoFaceDetected) {
		t.Fatalf("expected no-face service error, got %v", err)
	}
	if !reliability.IsPermanent(err) {
		t.Fatalf("no-face must not be retried")
	}
}

func TestAzureClient_ErrorEnvelope(t *testing.T) {
	client := newAzure(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"InvalidURL","message":"Invalid image URL."}}`))
	})

	_, err := client.VerifyFaces(context.Background(), "a", "b")
	if err == nil || !reliability.IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	var aerr *azureError
	if !errors.As(err, &aerr) || aerr.Code != "InvalidURL" || aerr.Status != http.StatusBadRequest {
		t.Fatalf("unexpected azure error %+v", aerr)
	}
}

type stubVision struct {
	mu       sync.Mutex
	faces    map[string][]Face
	errs     map[string]error
	verified [2]string
}

func (s *stubVision) DetectFaces(ctx context.Context, url string) ([]Face, error) {
	if err := s.errs[url]; err != nil {
		return nil, err
	}
	return s.faces[url], nil
}

func (s *stubVision) VerifyFaces(ctx context.Context, id1, id2 string) (Verification, error) {
	s.mu.Lock()
	s.verified = [2]string{id1, id2}
	s.mu.Unlock()
	return Verification{IsIdentical: id1 == id2, Confidence: 0.9}, nil
}

func TestVerifyImages_ComparesFirstFaces(t *testing.T) {
	vision := &stubVision{faces: map[string][]Face{
		"u1": {{FaceID: "a"}, {FaceID: "z"}},
		"u2": {{FaceID: "a"}},
	}}

	got, err := VerifyImages(context.Background(), vision, "u1", "u2")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !got.IsIdentical || vision.verified != [2]string{"a", "a"} {
		t.Fatalf("unexpected verification %+v with %v", got, vision.verified)
	}
}

func TestVerifyImages_PropagatesDetectError(t *testing.T) {
	want := apperr.Service("azure-face", "detect", ErrNoFaceDetected)
	vision := &stubVision{
		faces: map[string][]Face{"u1": {{FaceID: "a"}}},
		errs:  map[string]error{"u2": want},
	}

	if _, err := VerifyImages(context.Background(), vision, "u1", "u2"); !errors.Is(err, ErrNoFaceDetected) {
		t.Fatalf("expected no-face error, got %v", err)
	}
	if _, err := VerifyImages(context.Background(), vision, "", "u2"); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestVerifyImages_EmptyDetectionIsNoFace(t *testing.T) {
	vision := &stubVision{faces: map[string][]Face{
		"u1": {{FaceID: "a"}},
		"u2": {},
	}}

	_, err := VerifyImages(context.Background(), vision, "u1", "u2")
	var svcErr *apperr.ServiceError
	if !errors.As(err, &svcErr) || !errors.Is(err, ErrNoFaceDetected) {
		t.Fatalf("expected no-face service error, got %v", err)
	}
	if vision.verified != [2]string{} {
		t.Fatalf("verify must not run without two faces, got %v", vision.verified)
	}
}

type flakyVision struct {
	stubVision
	calls int
}

func (f *flakyVision) DetectFaces(ctx context.Context, url string) ([]Face, error) {
	f.calls++
	if f.calls == 1 {
		return nil, errors.New("503")
	}
	return []Face{{FaceID: "x"}}, nil
}

func TestReliableVision_RetriesDetect(t *testing.T) {
	base := &flakyVision{}
	guard := reliability.NewGuard(nil, nil, reliability.RetryPolicy{
		MaxAttempts: 2,
		Sleep:       func(context.Context, time.Duration) error { return nil },
	})
	faces, err := NewReliableVision(base, guard).DetectFaces(context.Background(), "u")
	if err != nil || len(faces) != 1 {
		t.Fatalf("unexpected result %v, %v", faces, err)
	}
	if base.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", base.calls)
	}
}
