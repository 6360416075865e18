package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"vortx/internal/apperr"
	"vortx/internal/checkout"
	"vortx/internal/customers"
	workflowdb "vortx/internal/db/workflow"
	"vortx/internal/face"
	"vortx/internal/identity"
	"vortx/internal/media"
	"vortx/internal/observability"
	"vortx/internal/orders"
	"vortx/internal/payment"
	"vortx/internal/wishlist"
	"vortx/internal/workflow"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubVision struct {
	faces map[string][]face.Face
	errs  map[string]error
}

func (v *stubVision) DetectFaces(ctx context.Context, imageURL string) ([]face.Face, error) {
	if err := v.errs[imageURL]; err != nil {
		return nil, err
	}
	faces, ok := v.faces[imageURL]
	if !ok || len(faces) == 0 {
		return nil, face.ErrNoFaceDetected
	}
	return faces, nil
}

func (v *stubVision) VerifyFaces(ctx context.Context, faceID1, faceID2 string) (face.Verification, error) {
	return face.Verification{IsIdentical: faceID1 == faceID2, Confidence: 0.91}, nil
}

type stubProcessor struct {
	mu       sync.Mutex
	payments map[string]payment.Payment
	getErr   error
	gets     int
	expired  []string
}

func (p *stubProcessor) GetPayment(ctx context.Context, id string) (payment.Payment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gets++
	if p.getErr != nil {
		return payment.Payment{}, p.getErr
	}
	pay, ok := p.payments[id]
	if !ok {
		return payment.Payment{}, payment.ErrNotFound
	}
	return pay, nil
}

func (p *stubProcessor) CreatePreference(ctx context.Context, in payment.PreferenceInput) (payment.Preference, error) {
	return payment.Preference{ID: "pref-" + in.OrderID, InitPoint: "https://mp.test/init/" + in.OrderID}, nil
}

func (p *stubProcessor) ExpirePreference(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expired = append(p.expired, id)
	return nil
}

type stubVerifier struct {
	tokens map[string]*identity.Token
}

func (v stubVerifier) VerifyIDToken(ctx context.Context, raw string) (*identity.Token, error) {
	if tok, ok := v.tokens[raw]; ok {
		return tok, nil
	}
	return nil, apperr.Auth("invalid or expired token", errors.New("bad signature"))
}

type stubExecutions map[string]workflowdb.Execution

func (s stubExecutions) Get(ctx context.Context, id string) (workflowdb.Execution, error) {
	if exec, ok := s[id]; ok {
		return exec, nil
	}
	return workflowdb.Execution{}, workflowdb.ErrExecutionNotFound
}

type fixture struct {
	router    *gin.Engine
	processor *stubProcessor
	payments  *orders.MemoryStore
	customers *customers.MemoryStore
	sessions  *identity.Sessions
	metrics   *observability.Metrics
	mediaDir  string
}

func newFixture(t *testing.T, mutate ...func(*Deps)) *fixture {
	t.Helper()
	logger := quietLogger()
	metrics := observability.NewMetrics()
	engine := workflow.NewEngine(workflow.WithLogger(logger), workflow.WithObserver(metrics))

	processor := &stubProcessor{payments: map[string]payment.Payment{}}
	payments := orders.NewMemoryStore()
	customerStore := customers.NewMemoryStore()
	sessions, err := identity.NewSessions("test-secret", time.Hour)
	require.NoError(t, err)

	vision := &stubVision{faces: map[string][]face.Face{
		"https://img.test/a.jpg": {{FaceID: "face-a"}},
		"https://img.test/b.jpg": {{FaceID: "face-a"}},
	}, errs: map[string]error{
		"https://img.test/down.jpg": apperr.Service("azure-face", "detect", errors.New("InvalidRequest: subscription key 0f3a expired")),
	}}
	verifier := stubVerifier{tokens: map[string]*identity.Token{
		"good-token":  {UID: "fb-1", Email: "ana@example.com", EmailVerified: true, Name: "Ana Perez"},
		"other-token": {UID: "fb-2", Email: "ana@example.com", EmailVerified: true, Name: "Mallory"},
	}}

	mediaDir := t.TempDir()
	files, err := media.NewLocalStore(mediaDir, "http://localhost:9000/static")
	require.NoError(t, err)

	deps := Deps{
		Logger:        logger,
		Metrics:       metrics,
		Engine:        engine,
		FaceDetection: face.NewDetectionWorkflow(face.DetectionDeps{Vision: vision, Store: face.NewMemoryStore(), Logger: logger}),
		Vision:        vision,
		Checkout:      checkout.NewWorkflow(processor, payments, logger),
		Payments:      payments,
		Reconciler:    payment.NewReconciler(processor, logger),
		Applier:       orders.NewStatusApplier(payments, nil, nil, logger),
		Verifier:      verifier,
		Sessions:      sessions,
		FirebaseAuth:  customers.NewAuthWorkflow(customers.AuthDeps{Verifier: verifier, Store: customerStore, Logger: logger}),
		Customers:     customerStore,
		Wishlist:      wishlist.NewService(wishlist.NewMemoryStore(), logger),
		Files:         files,
		Executions: stubExecutions{"exec-1": {
			ID:       "exec-1",
			Workflow: checkout.WorkflowName,
			Status:   string(workflow.StatusCompleted),
		}},
		AdminToken:       "admin-secret",
		StoreCORS:        []string{"http://shop.test"},
		WebhookRateBurst: 100,
		Mode:             gin.TestMode,
	}
	for _, fn := range mutate {
		fn(&deps)
	}

	router, err := NewRouter(deps)
	require.NoError(t, err)
	return &fixture{
		router:    router,
		processor: processor,
		payments:  payments,
		customers: customerStore,
		sessions:  sessions,
		metrics:   metrics,
		mediaDir:  mediaDir,
	}
}

func (f *fixture) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestFaceDetect_RunsWorkflow(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/store/face/detect", `{"imageUrl":"https://img.test/a.jpg","customerId":"cus_1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	require.Equal(t, true, body["success"])
	data := body["data"].(map[string]any)
	require.EqualValues(t, 1, data["faces"].(map[string]any)["count"])
	saved := data["savedData"].(map[string]any)
	require.True(t, strings.HasPrefix(saved["id"].(string), "face_"))
	require.Equal(t, "cus_1", saved["customerId"])
}

func TestFaceDetect_RejectsInvalidBody(t *testing.T) {
	f := newFixture(t)

	for _, body := range []string{`{}`, `{"imageUrl":"not a url"}`, `not json`} {
		rec := f.do(t, http.MethodPost, "/store/face/detect", body)
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
		require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
		problem := decodeBody(t, rec)
		require.EqualValues(t, http.StatusBadRequest, problem["status"])
		require.Equal(t, "/store/face/detect", problem["instance"])
	}
}

func TestFaceDetect_WorkflowFailureNamesStep(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/store/face/detect", `{"imageUrl":"https://img.test/empty.jpg"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	problem := decodeBody(t, rec)
	require.Equal(t, face.DetectFacesStepName, problem["failed_step"])
	require.NotEmpty(t, problem["trace_id"])
}

func TestFaceDetect_UpstreamErrorTextIsNotExposed(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/store/face/detect", `{"imageUrl":"https://img.test/down.jpg"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	problem := decodeBody(t, rec)
	require.Equal(t, face.DetectFacesStepName, problem["failed_step"])
	require.NotContains(t, problem["detail"], "subscription key")
	require.NotContains(t, problem["detail"], "azure-face")
}

func TestFaceVerify(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/store/face/verify", `{"imageUrl1":"https://img.test/a.jpg","imageUrl2":"https://img.test/b.jpg"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	require.Equal(t, true, body["isIdentical"])
}

func TestCheckoutCreate_RecordsPendingPayment(t *testing.T) {
	f := newFixture(t)
	payload := `{"orderId":"order-1","items":[{"title":"Mat","quantity":2,"unit_price":10.5}],"customerEmail":"ana@example.com"}`

	rec := f.do(t, http.MethodPost, "/store/checkout/create", payload)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	require.Equal(t, "pref-order-1", body["preference"].(map[string]any)["id"])

	stored, err := f.payments.Get(context.Background(), "order-1")
	require.NoError(t, err)
	require.Equal(t, payment.StatusPending, stored.Status)
	require.InDelta(t, 21.0, stored.Amount, 0.001)

	// A second checkout for the same order conflicts and expires its preference.
	rec = f.do(t, http.MethodPost, "/store/checkout/create", payload)
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	require.Equal(t, checkout.RecordPendingPaymentStepName, decodeBody(t, rec)["failed_step"])
	require.Equal(t, []string{"pref-order-1"}, f.processor.expired)
}

func TestCheckoutCreate_ValidatesItems(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/store/checkout/create", `{"orderId":"order-1","items":[{"title":"Mat","quantity":0,"unit_price":10}]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, decodeBody(t, rec)["detail"], "/items/0/quantity")
}

func TestWebhook_AppliesOnceAndAcknowledgesDuplicates(t *testing.T) {
	f := newFixture(t)
	f.processor.payments["123"] = payment.Payment{ID: "123", Status: "approved", ExternalReference: "order-9", TransactionAmount: 42}

	for i := 0; i < 2; i++ {
		rec := f.do(t, http.MethodPost, "/store/webhooks/mercadopago", `{"type":"payment","data":{"id":"123"}}`)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, true, decodeBody(t, rec)["received"])
	}

	stored, err := f.payments.Get(context.Background(), "order-9")
	require.NoError(t, err)
	require.Equal(t, payment.StatusApproved, stored.Status)

	snap := f.metrics.Snapshot()
	require.EqualValues(t, 2, snap.Webhooks.Received)
	require.EqualValues(t, 1, snap.Webhooks.Applied)
	require.EqualValues(t, 1, snap.Webhooks.Skipped)
}

func TestWebhook_LegacyPathAndIPNQuery(t *testing.T) {
	f := newFixture(t)
	f.processor.payments["77"] = payment.Payment{ID: "77", Status: "rejected", ExternalReference: "order-3"}

	rec := f.do(t, http.MethodPost, "/store/webhook/mercadopago?topic=payment&id=77", "")
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err := f.payments.Get(context.Background(), "order-3")
	require.NoError(t, err)
	require.Equal(t, payment.StatusRejected, stored.Status)
}

func TestWebhook_SkipsWithoutFetching(t *testing.T) {
	f := newFixture(t)

	for _, body := range []string{`{"type":"merchant_order","data":{"id":"5"}}`, `{}`, `garbage`} {
		rec := f.do(t, http.MethodPost, "/store/webhooks/mercadopago", body)
		require.Equal(t, http.StatusOK, rec.Code, body)
	}
	require.Zero(t, f.processor.gets)
}

func TestWebhook_FetchFailureAsksForRetry(t *testing.T) {
	f := newFixture(t)
	f.processor.getErr = errors.New("connection reset")

	rec := f.do(t, http.MethodPost, "/store/webhooks/mercadopago", `{"type":"payment","data":{"id":"123"}}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.EqualValues(t, 1, f.metrics.Snapshot().Webhooks.Failed)
}

func TestWebhook_GetIsHealthCheck(t *testing.T) {
	f := newFixture(t)
	for _, path := range []string{"/store/webhooks/mercadopago", "/store/webhook/mercadopago"} {
		rec := f.do(t, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "ok", decodeBody(t, rec)["status"])
	}
}

func TestWebhook_RateLimitedPerIP(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.WebhookRateBurst = 1
		d.WebhookRateInterval = time.Hour
	})

	rec := f.do(t, http.MethodPost, "/store/webhooks/mercadopago", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodPost, "/store/webhooks/mercadopago", `{}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestFirebaseVerify(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/store/firebase-auth/verify", `{"idToken":"good-token"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	user := decodeBody(t, rec)["user"].(map[string]any)
	require.Equal(t, "fb-1", user["uid"])
	require.Equal(t, true, user["emailVerified"])

	rec = f.do(t, http.MethodPost, "/store/firebase-auth/verify", `{"idToken":"forged"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/store/firebase-auth/verify", `{"idToken":""}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFirebaseVerify_UnavailableVerifier(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.Verifier = identity.UnavailableVerifier{} })

	rec := f.do(t, http.MethodPost, "/store/firebase-auth/verify", `{"idToken":"good-token"}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestProtectedRoutes(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/store/protected", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/store/protected", "", "Authorization", "Bearer forged")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/store/protected", "", "Authorization", "Bearer good-token")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "fb-1", decodeBody(t, rec)["user"].(map[string]any)["uid"])

	rec = f.do(t, http.MethodPost, "/store/protected", `{"note":"hi"}`, "Authorization", "Bearer good-token")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "fb-1", body["processedBy"])
	require.Equal(t, "hi", body["data"].(map[string]any)["note"])
}

func TestFirebaseCustomerSync_IssuesSessionForMe(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/store/firebase-customer/sync", `{"idToken":"good-token"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	require.Equal(t, true, body["created"])
	token := body["token"].(string)
	customerID := body["customer"].(map[string]any)["id"].(string)

	rec = f.do(t, http.MethodGet, "/store/costumer/me", "", "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decodeBody(t, rec)["customer"].(map[string]any)
	require.Equal(t, customerID, me["id"])
	require.Equal(t, "ana@example.com", me["email"])

	// Syncing again finds the same customer.
	rec = f.do(t, http.MethodPost, "/store/firebase-customer/sync", `{"idToken":"good-token"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, false, decodeBody(t, rec)["created"])

	rec = f.do(t, http.MethodGet, "/store/costumer/me", "", "Authorization", "Bearer good-token")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestFirebaseCustomerSync_RejectsEmailOwnedByAnotherUser(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/store/firebase-customer/sync", `{"idToken":"good-token"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	customerID := decodeBody(t, rec)["customer"].(map[string]any)["id"].(string)

	rec = f.do(t, http.MethodPost, "/store/firebase-customer/sync", `{"idToken":"other-token"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	require.NotContains(t, body, "token")
	require.Equal(t, customers.SyncCustomerStepName, body["failed_step"])

	c, err := f.customers.Get(context.Background(), customerID)
	require.NoError(t, err)
	require.Equal(t, "fb-1", c.FirebaseUID())
}

func TestWishlistRoutes(t *testing.T) {
	f := newFixture(t)
	token, err := f.sessions.Issue("cus_1")
	require.NoError(t, err)
	auth := []string{"Authorization", "Bearer " + token}

	rec := f.do(t, http.MethodGet, "/store/customers/me/wishlist", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/store/customers/me/wishlist", `{"product_id":"prod_1"}`, auth...)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	itemID := decodeBody(t, rec)["item"].(map[string]any)["id"].(string)

	rec = f.do(t, http.MethodPost, "/store/customers/me/wishlist", `{"product_id":"prod_1"}`, auth...)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/store/customers/me/wishlist", `{}`, auth...)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/store/customers/me/wishlist", "", auth...)
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 1, decodeBody(t, rec)["count"])

	rec = f.do(t, http.MethodDelete, "/store/customers/me/wishlist/"+itemID, "", auth...)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodDelete, "/store/customers/me/wishlist/"+itemID, "", auth...)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodDelete, "/store/customers/me/wishlist", "", auth...)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Wishlist cleared", decodeBody(t, rec)["message"])
}

func TestMediaUpload(t *testing.T) {
	f := newFixture(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "photo one.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("png-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	token, err := f.sessions.Issue("cus_1")
	require.NoError(t, err)
	upload := func(auth string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/store/media", bytes.NewReader(buf.Bytes()))
		req.Header.Set("Content-Type", mw.FormDataContentType())
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		return rec
	}

	rec := upload("")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = upload("Bearer good-token")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = upload("Bearer " + token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	file := decodeBody(t, rec)["file"].(map[string]any)
	require.True(t, strings.HasPrefix(file["url"].(string), "http://localhost:9000/static/"))
	require.True(t, strings.HasSuffix(file["key"].(string), "photo-one.png"))
	require.EqualValues(t, 9, file["size"])

	rec = f.do(t, http.MethodPost, "/store/media", `{}`, "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORS(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodOptions, "/store/checkout/create", "", "Origin", "http://shop.test")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "http://shop.test", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = f.do(t, http.MethodOptions, "/store/checkout/create", "", "Origin", "http://evil.test")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	rec = f.do(t, http.MethodGet, "/admin/workflows/exec-1", "", "Origin", "http://shop.test")
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestOrderPaymentAndExecutionLookup(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/store/orders/missing/payment", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, f.payments.RecordPending(context.Background(), "order-5", "pref-5", 12))
	rec = f.do(t, http.MethodGet, "/store/orders/order-5/payment", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "pending", decodeBody(t, rec)["payment"].(map[string]any)["status"])

	admin := []string{"Authorization", "Bearer admin-secret"}
	rec = f.do(t, http.MethodGet, "/admin/workflows/exec-1", "", admin...)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, checkout.WorkflowName, decodeBody(t, rec)["execution"].(map[string]any)["workflow"])

	rec = f.do(t, http.MethodGet, "/admin/workflows/nope", "", admin...)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminRoutesRequireAdminToken(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/admin/workflows/exec-1", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/admin/workflows/exec-1", "", "Authorization", "Bearer admin-secreT")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := f.sessions.Issue("cus_1")
	require.NoError(t, err)
	rec = f.do(t, http.MethodGet, "/admin/workflows/exec-1", "", "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	f = newFixture(t, func(d *Deps) { d.AdminToken = "" })
	rec = f.do(t, http.MethodGet, "/admin/workflows/exec-1", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestIDAndRouteMetrics(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/store/webhooks/mercadopago", "", "X-Request-ID", "req-42")
	require.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))

	rec = f.do(t, http.MethodGet, "/store/webhooks/mercadopago", "")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	route := f.metrics.Snapshot().Routes["GET /store/webhooks/mercadopago"]
	require.EqualValues(t, 2, route.Count)
}

func TestNewRouter_RequiresEngine(t *testing.T) {
	_, err := NewRouter(Deps{Logger: quietLogger()})
	require.Error(t, err)
}
