package facedb

import (
	"context"
	"database/sql"
	"strings"

	"vortx/internal/face"
)

// Store persists face detection records in Postgres.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// NewStoreWithSchema initializes the schema then returns the store.
func NewStoreWithSchema(ctx context.Context, db *sql.DB) (*Store, error) {
	store := NewStore(db)
	if err := store.InitSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// InitSchema creates the face_records table if it does not exist.
func (s *Store) InitSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS face_records (
			id TEXT PRIMARY KEY,
			customer_id TEXT,
			faces_detected INTEGER NOT NULL,
			face_ids TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)
	`)
	return err
}

func (s *Store) Save(ctx context.Context, rec face.FaceRecord) error {
	var customerID sql.NullString
	if rec.CustomerID != "" {
		customerID = sql.NullString{String: rec.CustomerID, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO face_records (id, customer_id, faces_detected, face_ids, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		rec.ID, customerID, rec.FacesDetected, strings.Join(rec.FaceIDs, ","), rec.CreatedAt,
	)
	return err
}

// Delete removes a record. Deleting a missing record is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM face_records WHERE id = $1`, id)
	return err
}
