package httpapi

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"vortx/internal/checkout"
	"vortx/internal/face"
	"vortx/internal/observability"
)

func (s *server) detectFaces(c *gin.Context) {
	var in face.DetectionInput
	if err := s.schemas.decode(c.Request.Body, "face-detect", &in); err != nil {
		writeError(c, s.Logger, err)
		return
	}
	result, err := s.FaceDetection.Run(c.Request.Context(), s.Engine, in)
	if err != nil {
		writeError(c, s.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": result})
}

type verifyRequest struct {
	ImageURL1 string `json:"imageUrl1"`
	ImageURL2 string `json:"imageUrl2"`
}

func (s *server) verifyFaces(c *gin.Context) {
	var in verifyRequest
	if err := s.schemas.decode(c.Request.Body, "face-verify", &in); err != nil {
		writeError(c, s.Logger, err)
		return
	}
	result, err := face.VerifyImages(c.Request.Context(), s.Vision, in.ImageURL1, in.ImageURL2)
	if err != nil {
		writeError(c, s.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *server) createCheckout(c *gin.Context) {
	var in checkout.Input
	if err := s.schemas.decode(c.Request.Body, "checkout", &in); err != nil {
		writeError(c, s.Logger, err)
		return
	}
	result, err := s.Checkout.Run(c.Request.Context(), s.Engine, in)
	if err != nil {
		writeError(c, s.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "preference": result.Preference})
}

// mercadoPagoWebhook acknowledges notifications it cannot act on with 200 so
// the processor stops redelivering, and answers 500 when the payment could
// not be fetched or stored so it retries.
func (s *server) mercadoPagoWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		s.Metrics.RecordWebhook(observability.WebhookFailed)
		writeProblem(c, Problem{Status: http.StatusBadRequest, Detail: "unreadable request body"})
		return
	}
	s.Logger.Info("mercadopago webhook received", "request_id", c.GetString(requestIDKey), "bytes", len(body))

	ctx := c.Request.Context()
	st, err := s.Reconciler.ReconcileWebhook(ctx, body, c.Request.URL.Query())
	if err != nil {
		s.webhookFailed(c, err)
		return
	}
	if st == nil || st.OrderID == "" {
		if st != nil {
			s.Logger.Warn("payment without order reference", "payment_id", st.PaymentID)
		}
		s.Metrics.RecordWebhook(observability.WebhookSkipped)
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	changed, err := s.Applier.Apply(ctx, *st)
	if err != nil {
		s.webhookFailed(c, err)
		return
	}
	if changed {
		s.Metrics.RecordWebhook(observability.WebhookApplied)
		s.Logger.Info("payment processed", "order_id", st.OrderID, "status", st.Status)
	} else {
		s.Metrics.RecordWebhook(observability.WebhookSkipped)
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (s *server) webhookFailed(c *gin.Context, err error) {
	s.Metrics.RecordWebhook(observability.WebhookFailed)
	s.Logger.Error("webhook processing failed", "request_id", c.GetString(requestIDKey), "error", err)
	writeProblem(c, Problem{Status: http.StatusInternalServerError, Detail: "Webhook processing failed"})
}

func webhookHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
