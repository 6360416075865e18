package face

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"vortx/internal/workflow"
)

type failingStore struct {
	err     error
	deleted []string
}

func (s *failingStore) Save(ctx context.Context, rec FaceRecord) error { return s.err }

func (s *failingStore) Delete(ctx context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

type auditSpy struct {
	mu    sync.Mutex
	steps []string
}

func (a *auditSpy) Start(context.Context, workflow.ExecutionRecord) error { return nil }

func (a *auditSpy) AddStep(_ context.Context, _ string, step string, status workflow.StepStatus, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.steps = append(a.steps, step+":"+string(status))
	return nil
}

func (a *auditSpy) UpdateStatus(context.Context, string, workflow.Status, string) error { return nil }

func testEngine(rec workflow.Recorder) *workflow.Engine {
	return workflow.NewEngine(
		workflow.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		workflow.WithRecorder(rec),
	)
}

func TestDetectionWorkflow_SavesRecord(t *testing.T) {
	store := NewMemoryStore()
	vision := &stubVision{faces: map[string][]Face{"https://img/a.jpg": {{FaceID: "f1"}, {FaceID: "f2"}}}}
	fixed := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	wf := NewDetectionWorkflow(DetectionDeps{
		Vision: vision,
		Store:  store,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		NewID:  func() string { return "face_1" },
		Now:    func() time.Time { return fixed },
	})

	got, err := wf.Run(context.Background(), testEngine(nil), DetectionInput{ImageURL: "https://img/a.jpg", CustomerID: "cus_1"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got.Faces.Count != 2 || got.SavedData.ID != "face_1" || got.SavedData.FacesDetected != 2 || got.SavedData.CustomerID != "cus_1" {
		t.Fatalf("unexpected result %+v", got)
	}
	rec, ok := store.Get("face_1")
	if !ok || !rec.CreatedAt.Equal(fixed) || strings.Join(rec.FaceIDs, ",") != "f1,f2" {
		t.Fatalf("unexpected stored record %+v", rec)
	}
}

func TestDetectionWorkflow_SaveFailureRollsBackDetection(t *testing.T) {
	audit := &auditSpy{}
	store := &failingStore{err: errors.New("db down")}
	vision := &stubVision{faces: map[string][]Face{"https://img/a.jpg": {{FaceID: "f1"}, {FaceID: "f2"}}}}
	wf := NewDetectionWorkflow(DetectionDeps{Vision: vision, Store: store, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})

	_, err := wf.Run(context.Background(), testEngine(audit), DetectionInput{ImageURL: "https://img/a.jpg"})

	var werr *workflow.WorkflowError
	if !errors.As(err, &werr) {
		t.Fatalf("expected WorkflowError, got %v", err)
	}
	if werr.FailedStep != SaveFaceDataStepName || werr.Cause.Error() != "db down" {
		t.Fatalf("unexpected failure %+v", werr)
	}
	want := "detect-faces-step:started,detect-faces-step:succeeded,save-face-data-step:started,save-face-data-step:failed,detect-faces-step:compensated"
	if got := strings.Join(audit.steps, ","); got != want {
		t.Fatalf("unexpected audit trail\n got %s\nwant %s", got, want)
	}
	if len(store.deleted) != 0 {
		t.Fatalf("failed save must not be compensated, deleted %v", store.deleted)
	}
}

func TestDetectionWorkflow_NoFaceFailsFirstStep(t *testing.T) {
	audit := &auditSpy{}
	vision := &stubVision{errs: map[string]error{"u": ErrNoFaceDetected}}
	wf := NewDetectionWorkflow(DetectionDeps{Vision: vision, Store: NewMemoryStore()})

	_, err := wf.Run(context.Background(), testEngine(audit), DetectionInput{ImageURL: "u"})
	var werr *workflow.WorkflowError
	if !errors.As(err, &werr) || werr.FailedStep != DetectFacesStepName || !errors.Is(err, ErrNoFaceDetected) {
		t.Fatalf("unexpected error %v", err)
	}
	if got := strings.Join(audit.steps, ","); got != "detect-faces-step:started,detect-faces-step:failed" {
		t.Fatalf("unexpected audit trail %s", got)
	}
}
