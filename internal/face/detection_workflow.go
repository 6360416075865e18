package face

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"vortx/internal/apperr"
	"vortx/internal/workflow"
)

const (
	DetectionWorkflowName = "process-face-detection"
	DetectFacesStepName   = "detect-faces-step"
	SaveFaceDataStepName  = "save-face-data-step"
)

// FaceRecord is the persisted result of a detection.
type FaceRecord struct {
	ID            string    `json:"id"`
	CustomerID    string    `json:"customerId,omitempty"`
	FacesDetected int       `json:"facesDetected"`
	FaceIDs       []string  `json:"faceIds"`
	CreatedAt     time.Time `json:"timestamp"`
}

// Store persists detection records.
type Store interface {
	Save(ctx context.Context, rec FaceRecord) error
	Delete(ctx context.Context, id string) error
}

type DetectionInput struct {
	ImageURL   string `json:"imageUrl"`
	CustomerID string `json:"customerId,omitempty"`
}

type DetectedFaces struct {
	Faces []Face `json:"faces"`
	Count int    `json:"count"`
}

type DetectionResult struct {
	Faces     DetectedFaces `json:"faces"`
	SavedData FaceRecord    `json:"savedData"`
}

type detectCompensation struct {
	ImageURL string
}

type saveInput struct {
	Faces      []Face
	CustomerID string
}

type saveCompensation struct {
	ID string
}

// DetectionDeps are the collaborators of the detection workflow.
type DetectionDeps struct {
	Vision Vision
	Store  Store
	Logger *slog.Logger
	NewID  func() string
	Now    func() time.Time
}

// NewDetectionWorkflow defines process-face-detection: detect the faces in
// an image, then persist a record of the detection.
func NewDetectionWorkflow(deps DetectionDeps) *workflow.Workflow[DetectionInput, DetectionResult] {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	newID := deps.NewID
	if newID == nil {
		newID = func() string { return "face_" + uuid.NewString() }
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	detect := workflow.NewStep(DetectFacesStepName,
		func(ctx context.Context, in DetectionInput) (DetectedFaces, detectCompensation, error) {
			if strings.TrimSpace(in.ImageURL) == "" {
				return DetectedFaces{}, detectCompensation{}, apperr.Validation("imageUrl", "is required")
			}
			faces, err := deps.Vision.DetectFaces(ctx, in.ImageURL)
			if err != nil {
				return DetectedFaces{}, detectCompensation{}, err
			}
			return DetectedFaces{Faces: faces, Count: len(faces)}, detectCompensation{ImageURL: in.ImageURL}, nil
		},
		// Detection has no side effect to undo.
		func(ctx context.Context, c detectCompensation) error {
			logger.Info("rolling back face detection", "image_url", c.ImageURL)
			return nil
		},
	)

	save := workflow.NewStep(SaveFaceDataStepName,
		func(ctx context.Context, in saveInput) (FaceRecord, saveCompensation, error) {
			rec := FaceRecord{
				ID:            newID(),
				CustomerID:    in.CustomerID,
				FacesDetected: len(in.Faces),
				FaceIDs:       make([]string, 0, len(in.Faces)),
				CreatedAt:     now().UTC(),
			}
			for _, f := range in.Faces {
				rec.FaceIDs = append(rec.FaceIDs, f.FaceID)
			}
			if err := deps.Store.Save(ctx, rec); err != nil {
				return FaceRecord{}, saveCompensation{}, err
			}
			return rec, saveCompensation{ID: rec.ID}, nil
		},
		func(ctx context.Context, c saveCompensation) error {
			logger.Info("rolling back saved face data", "id", c.ID)
			return deps.Store.Delete(ctx, c.ID)
		},
	)

	return workflow.New(DetectionWorkflowName,
		func(x *workflow.Execution, in DetectionInput) (DetectionResult, error) {
			detected, err := workflow.Exec(x, detect, in)
			if err != nil {
				return DetectionResult{}, err
			}
			saved, err := workflow.Exec(x, save, saveInput{Faces: detected.Faces, CustomerID: in.CustomerID})
			if err != nil {
				return DetectionResult{}, err
			}
			return DetectionResult{Faces: detected, SavedData: saved}, nil
		},
		detect, save,
	)
}
