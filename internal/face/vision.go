package face

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"vortx/internal/apperr"
	"vortx/internal/reliability"
)

// ErrNoFaceDetected is returned when an image contains no detectable face.
var ErrNoFaceDetected = errors.New("no face detected")

type Rectangle struct {
	Top    int `json:"top"`
	Left   int `json:"left"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Face is one face found in an image. FaceID is a short-lived handle usable
// for verification.
type Face struct {
	FaceID    string    `json:"faceId"`
	Rectangle Rectangle `json:"faceRectangle"`
}

// Verification is the result of comparing two faces.
type Verification struct {
	IsIdentical bool    `json:"isIdentical"`
	Confidence  float64 `json:"confidence"`
}

// Vision detects and compares faces.
type Vision interface {
	DetectFaces(ctx context.Context, imageURL string) ([]Face, error)
	VerifyFaces(ctx context.Context, faceID1, faceID2 string) (Verification, error)
}

// VerifyImages detects a face in each image concurrently, then compares the
// first face of each.
func VerifyImages(ctx context.Context, vision Vision, imageURL1, imageURL2 string) (Verification, error) {
	if imageURL1 == "" || imageURL2 == "" {
		return Verification{}, apperr.Validation("imageUrl", "two image urls are required")
	}

	var ids [2]string
	g, gctx := errgroup.WithContext(ctx)
	for i, url := range []string{imageURL1, imageURL2} {
		i, url := i, url
		g.Go(func() error {
			faces, err := vision.DetectFaces(gctx, url)
			if err != nil {
				return err
			}
			if len(faces) == 0 {
				return apperr.Service(serviceName, "detect", ErrNoFaceDetected)
			}
			ids[i] = faces[0].FaceID
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Verification{}, err
	}
	return vision.VerifyFaces(ctx, ids[0], ids[1])
}

// ReliableVision decorates a Vision with a reliability guard. Both calls are
// reads and are retried.
type ReliableVision struct {
	base  Vision
	guard *reliability.Guard
}

func NewReliableVision(base Vision, guard *reliability.Guard) *ReliableVision {
	return &ReliableVision{base: base, guard: guard}
}

func (v *ReliableVision) DetectFaces(ctx context.Context, imageURL string) ([]Face, error) {
	var faces []Face
	err := v.guard.Do(ctx, func() error {
		var err error
		faces, err = v.base.DetectFaces(ctx, imageURL)
		return err
	})
	return faces, err
}

func (v *ReliableVision) VerifyFaces(ctx context.Context, faceID1, faceID2 string) (Verification, error) {
	var out Verification
	err := v.guard.Do(ctx, func() error {
		var err error
		out, err = v.base.VerifyFaces(ctx, faceID1, faceID2)
		return err
	})
	return out, err
}
