package customersdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"vortx/internal/customers"
)

const uniqueViolation = "23505"

// Store persists customers in Postgres. Metadata is kept as JSONB.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// NewStoreWithSchema initializes the schema then returns the store.
func NewStoreWithSchema(ctx context.Context, db *sql.DB) (*Store, error) {
	store := NewStore(db)
	if err := store.InitSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// InitSchema creates the customers table if it does not exist.
func (s *Store) InitSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS customers (
			id TEXT PRIMARY KEY,
			email TEXT UNIQUE NOT NULL,
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)
	`)
	return err
}

const selectColumns = `SELECT id, email, first_name, last_name, phone, metadata, created_at, updated_at FROM customers`

func (s *Store) Get(ctx context.Context, id string) (customers.Customer, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, selectColumns+` WHERE id = $1`, id))
}

func (s *Store) FindByEmail(ctx context.Context, email string) (customers.Customer, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, selectColumns+` WHERE email = $1`, customers.NormalizeEmail(email)))
}

func (s *Store) Create(ctx context.Context, c customers.Customer) (customers.Customer, error) {
	c.Email = customers.NormalizeEmail(c.Email)
	meta, err := marshalMetadata(c.Metadata)
	if err != nil {
		return customers.Customer{}, err
	}
	now := s.now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO customers (id, email, first_name, last_name, phone, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.Email, c.FirstName, c.LastName, c.Phone, meta, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return customers.Customer{}, customers.ErrEmailTaken
		}
		return customers.Customer{}, err
	}
	return c, nil
}

func (s *Store) UpdateMetadata(ctx context.Context, id string, metadata map[string]any) (customers.Customer, error) {
	meta, err := marshalMetadata(metadata)
	if err != nil {
		return customers.Customer{}, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE customers
		SET metadata = $2, updated_at = $3
		WHERE id = $1`,
		id, meta, s.now().UTC(),
	)
	if err != nil {
		return customers.Customer{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return customers.Customer{}, err
	}
	if affected == 0 {
		return customers.Customer{}, customers.ErrNotFound
	}
	return s.Get(ctx, id)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, id)
	return err
}

func (s *Store) scanOne(row *sql.Row) (customers.Customer, error) {
	var c customers.Customer
	var meta []byte
	if err := row.Scan(&c.ID, &c.Email, &c.FirstName, &c.LastName, &c.Phone, &meta, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return customers.Customer{}, customers.ErrNotFound
		}
		return customers.Customer{}, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &c.Metadata); err != nil {
			return customers.Customer{}, err
		}
	}
	return c, nil
}

func marshalMetadata(metadata map[string]any) (string, error) {
	if metadata == nil {
		return "{}", nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
