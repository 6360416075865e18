package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"vortx/internal/apperr"
	"vortx/internal/customers"
)

type idTokenRequest struct {
	IDToken string `json:"idToken"`
}

func (s *server) verifyIDToken(c *gin.Context) {
	var in idTokenRequest
	if err := s.schemas.decode(c.Request.Body, "id-token", &in); err != nil {
		writeError(c, s.Logger, err)
		return
	}
	user, err := s.Verifier.VerifyIDToken(c.Request.Context(), in.IDToken)
	if err != nil {
		writeError(c, s.Logger, err)
		return
	}
	s.Logger.Info("token verified", "uid", user.UID)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user": gin.H{
			"uid":           user.UID,
			"email":         user.Email,
			"emailVerified": user.EmailVerified,
			"name":          user.Name,
			"picture":       user.Picture,
		},
	})
}

func (s *server) protectedGet(c *gin.Context) {
	user := firebaseUser(c)
	c.JSON(http.StatusOK, gin.H{
		"message": "You are authenticated!",
		"user": gin.H{
			"uid":           user.UID,
			"email":         user.Email,
			"emailVerified": user.EmailVerified,
		},
	})
}

func (s *server) protectedPost(c *gin.Context) {
	user := firebaseUser(c)
	var data any
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		writeError(c, s.Logger, apperr.Validation("body", "unreadable request body"))
		return
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			writeError(c, s.Logger, apperr.Validation("body", "malformed JSON"))
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"message":     "Data processed successfully",
		"processedBy": user.UID,
		"data":        data,
	})
}

// syncFirebaseCustomer links the Firebase user to a store customer and
// returns a session token for the customer routes.
func (s *server) syncFirebaseCustomer(c *gin.Context) {
	var in customers.AuthInput
	if err := s.schemas.decode(c.Request.Body, "id-token", &in); err != nil {
		writeError(c, s.Logger, err)
		return
	}
	result, err := s.FirebaseAuth.Run(c.Request.Context(), s.Engine, in)
	if err != nil {
		writeError(c, s.Logger, err)
		return
	}
	token, err := s.Sessions.Issue(result.Customer.ID)
	if err != nil {
		writeError(c, s.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"customer": result.Customer,
		"created":  result.Created,
		"token":    token,
	})
}

func (s *server) currentCustomer(c *gin.Context) {
	customer, err := s.Customers.Get(c.Request.Context(), c.GetString(customerIDKey))
	if err != nil {
		writeError(c, s.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"customer": customer})
}
