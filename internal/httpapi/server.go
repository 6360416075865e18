// Package httpapi exposes the storefront routes over gin.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"vortx/internal/checkout"
	"vortx/internal/customers"
	workflowdb "vortx/internal/db/workflow"
	"vortx/internal/face"
	"vortx/internal/identity"
	"vortx/internal/media"
	"vortx/internal/observability"
	"vortx/internal/orders"
	"vortx/internal/payment"
	"vortx/internal/realtime"
	"vortx/internal/wishlist"
	"vortx/internal/workflow"
)

// WebhookReconciler turns a raw processor notification into a payment status.
type WebhookReconciler interface {
	ReconcileWebhook(ctx context.Context, body []byte, query url.Values) (*payment.NormalizedPaymentStatus, error)
}

// PaymentApplier records a reconciled payment status.
type PaymentApplier interface {
	Apply(ctx context.Context, st payment.NormalizedPaymentStatus) (bool, error)
}

// ExecutionReader loads a recorded workflow execution.
type ExecutionReader interface {
	Get(ctx context.Context, id string) (workflowdb.Execution, error)
}

// Deps wires the router. Optional collaborators left nil disable their routes.
type Deps struct {
	Logger  *slog.Logger
	Metrics *observability.Metrics
	Engine  *workflow.Engine

	FaceDetection *workflow.Workflow[face.DetectionInput, face.DetectionResult]
	Vision        face.Vision

	Checkout *workflow.Workflow[checkout.Input, checkout.Result]
	Payments orders.PaymentStatusStore

	Reconciler WebhookReconciler
	Applier    PaymentApplier

	Verifier     identity.Verifier
	Sessions     *identity.Sessions
	FirebaseAuth *workflow.Workflow[customers.AuthInput, customers.AuthResult]
	Customers    customers.Store

	Wishlist *wishlist.Service
	Files    media.FileStore
	Hub      *realtime.Hub

	Executions ExecutionReader
	AdminToken string

	StoreCORS           []string
	WebhookRateInterval time.Duration
	WebhookRateBurst    int
	Mode                string
}

type server struct {
	Deps
	schemas schemas
}

// NewRouter builds the gin engine with every storefront route.
func NewRouter(deps Deps) (*gin.Engine, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Engine == nil {
		return nil, errors.New("httpapi: workflow engine is required")
	}
	compiled, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	s := &server{Deps: deps, schemas: compiled}

	if deps.Mode != "" {
		gin.SetMode(deps.Mode)
	}
	r := gin.New()
	// CORS runs globally so preflight requests for unregistered methods are answered.
	r.Use(gin.Recovery(), requestID(), accessLog(deps.Logger), trackRoute(deps.Metrics), cors("/store", deps.StoreCORS))

	store := r.Group("/store")
	s.faceRoutes(store)
	s.checkoutRoutes(store)
	s.webhookRoutes(store)
	s.authRoutes(store)
	s.wishlistRoutes(store)
	s.mediaRoutes(store)
	s.orderRoutes(store)

	if deps.Executions != nil && deps.AdminToken != "" {
		r.GET("/admin/workflows/:id", adminAuth(deps.AdminToken, deps.Logger), s.getExecution)
	}
	return r, nil
}

func (s *server) faceRoutes(g *gin.RouterGroup) {
	if s.FaceDetection != nil {
		g.POST("/face/detect", s.detectFaces)
	}
	if s.Vision != nil {
		g.POST("/face/verify", s.verifyFaces)
	}
}

func (s *server) checkoutRoutes(g *gin.RouterGroup) {
	if s.Checkout != nil {
		g.POST("/checkout/create", s.createCheckout)
	}
}

func (s *server) webhookRoutes(g *gin.RouterGroup) {
	if s.Reconciler == nil || s.Applier == nil {
		return
	}
	interval := s.WebhookRateInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	limit := newIPLimiter(interval, s.WebhookRateBurst).middleware(s.Logger)
	for _, path := range []string{"/webhooks/mercadopago", "/webhook/mercadopago"} {
		g.POST(path, limit, s.mercadoPagoWebhook)
		g.GET(path, webhookHealth)
	}
}

func (s *server) authRoutes(g *gin.RouterGroup) {
	if s.Verifier != nil {
		g.POST("/firebase-auth/verify", s.verifyIDToken)
		protected := firebaseAuth(s.Verifier, s.Logger)
		g.GET("/protected", protected, s.protectedGet)
		g.POST("/protected", protected, s.protectedPost)
	}
	if s.FirebaseAuth != nil && s.Sessions != nil {
		g.POST("/firebase-customer/sync", s.syncFirebaseCustomer)
	}
	if s.Sessions != nil && s.Customers != nil {
		g.GET("/costumer/me", sessionAuth(s.Sessions, s.Logger), s.currentCustomer)
	}
}

func (s *server) wishlistRoutes(g *gin.RouterGroup) {
	if s.Wishlist == nil || s.Sessions == nil {
		return
	}
	w := g.Group("/customers/me/wishlist", sessionAuth(s.Sessions, s.Logger))
	w.GET("", s.listWishlist)
	w.POST("", s.addWishlistItem)
	w.DELETE("", s.clearWishlist)
	w.DELETE("/:id", s.removeWishlistItem)
}

func (s *server) mediaRoutes(g *gin.RouterGroup) {
	if s.Files != nil && s.Sessions != nil {
		g.POST("/media", sessionAuth(s.Sessions, s.Logger), s.uploadMedia)
	}
}

func (s *server) orderRoutes(g *gin.RouterGroup) {
	if s.Payments != nil {
		g.GET("/orders/:id/payment", s.getOrderPayment)
	}
	if s.Hub != nil {
		g.GET("/orders/:id/events", s.orderEvents)
	}
}
