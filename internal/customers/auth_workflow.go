package customers

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"

	"vortx/internal/apperr"
	"vortx/internal/identity"
	"vortx/internal/workflow"
)

const (
	AuthWorkflowName     = "firebase-auth"
	VerifyTokenStepName  = "verify-firebase-token"
	SyncCustomerStepName = "sync-customer"
)

var (
	// ErrAccountLinked means the customer email is linked to a different Firebase user.
	ErrAccountLinked    = errors.New("customer linked to another firebase user")
	ErrEmailNotVerified = errors.New("firebase email not verified")
)

type AuthInput struct {
	IDToken string `json:"idToken"`
}

type AuthResult struct {
	Customer     Customer        `json:"customer"`
	FirebaseUser *identity.Token `json:"firebaseUser"`
	Created      bool            `json:"-"`
}

type syncResult struct {
	Customer Customer
	Created  bool
}

// syncCompensation undoes sync-customer: a created customer is deleted, an
// updated one gets its previous metadata back.
type syncCompensation struct {
	CustomerID       string
	Created          bool
	PreviousMetadata map[string]any
	Updated          bool
}

type AuthDeps struct {
	Verifier identity.Verifier
	Store    Store
	Logger   *slog.Logger
	NewID    func() string
	Now      func() time.Time
}

// NewAuthWorkflow defines firebase-auth: verify a Firebase ID token, then find
// or create the matching customer.
func NewAuthWorkflow(deps AuthDeps) *workflow.Workflow[AuthInput, AuthResult] {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	newID := deps.NewID
	if newID == nil {
		newID = func() string { return "cus_" + strings.ReplaceAll(uuid.NewString(), "-", "") }
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	verify := workflow.NewStep(VerifyTokenStepName,
		func(ctx context.Context, in AuthInput) (*identity.Token, struct{}, error) {
			if strings.TrimSpace(in.IDToken) == "" {
				return nil, struct{}{}, apperr.Validation("idToken", "ID token is required")
			}
			tok, err := deps.Verifier.VerifyIDToken(ctx, in.IDToken)
			return tok, struct{}{}, err
		},
		nil,
	)

	syncCustomer := workflow.NewStep(SyncCustomerStepName,
		func(ctx context.Context, tok *identity.Token) (syncResult, syncCompensation, error) {
			if tok.Email == "" {
				return syncResult{}, syncCompensation{}, apperr.Validation("email", "email is required from Firebase token")
			}

			existing, err := deps.Store.FindByEmail(ctx, tok.Email)
			switch {
			case err == nil:
				switch uid := existing.FirebaseUID(); {
				case uid == tok.UID:
					return syncResult{Customer: existing}, syncCompensation{CustomerID: existing.ID}, nil
				case uid != "":
					logger.Warn("firebase user does not own customer email", "customer_id", existing.ID, "firebase_uid", tok.UID)
					return syncResult{}, syncCompensation{}, apperr.Auth("email belongs to another account", ErrAccountLinked)
				case !tok.EmailVerified:
					return syncResult{}, syncCompensation{}, apperr.Auth("email must be verified to link an existing customer", ErrEmailNotVerified)
				}
				metadata := maps.Clone(existing.Metadata)
				if metadata == nil {
					metadata = map[string]any{}
				}
				metadata["firebase_uid"] = tok.UID
				updated, err := deps.Store.UpdateMetadata(ctx, existing.ID, metadata)
				if err != nil {
					return syncResult{}, syncCompensation{}, err
				}
				logger.Info("linked firebase user to customer", "customer_id", existing.ID, "firebase_uid", tok.UID)
				return syncResult{Customer: updated}, syncCompensation{
					CustomerID:       existing.ID,
					Updated:          true,
					PreviousMetadata: existing.Metadata,
				}, nil

			case errors.Is(err, apperr.ErrNotFound):
				first, last := splitName(tok.Name, tok.Email)
				created, err := deps.Store.Create(ctx, Customer{
					ID:        newID(),
					Email:     tok.Email,
					FirstName: first,
					LastName:  last,
					Metadata: map[string]any{
						"firebase_uid":   tok.UID,
						"email_verified": tok.EmailVerified,
						"last_synced_at": now().UTC().Format(time.RFC3339),
					},
				})
				if err != nil {
					return syncResult{}, syncCompensation{}, err
				}
				logger.Info("created customer from firebase user", "customer_id", created.ID, "firebase_uid", tok.UID)
				return syncResult{Customer: created, Created: true}, syncCompensation{CustomerID: created.ID, Created: true}, nil

			default:
				return syncResult{}, syncCompensation{}, err
			}
		},
		func(ctx context.Context, c syncCompensation) error {
			switch {
			case c.Created:
				return deps.Store.Delete(ctx, c.CustomerID)
			case c.Updated:
				_, err := deps.Store.UpdateMetadata(ctx, c.CustomerID, c.PreviousMetadata)
				return err
			default:
				return nil
			}
		},
	)

	return workflow.New(AuthWorkflowName,
		func(x *workflow.Execution, in AuthInput) (AuthResult, error) {
			tok, err := workflow.Exec(x, verify, in)
			if err != nil {
				return AuthResult{}, err
			}
			synced, err := workflow.Exec(x, syncCustomer, tok)
			if err != nil {
				return AuthResult{}, err
			}
			return AuthResult{Customer: synced.Customer, FirebaseUser: tok, Created: synced.Created}, nil
		},
		verify, syncCustomer,
	)
}

// splitName derives first and last names from a display name, falling back
// to the email's local part.
func splitName(name, email string) (string, string) {
	if fields := strings.Fields(name); len(fields) > 0 {
		return fields[0], strings.Join(fields[1:], " ")
	}
	local, _, _ := strings.Cut(email, "@")
	return local, ""
}
