package routes

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/amirhossein-jamali/escrow-engine/internal/domain/error"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/usecase/dashboard"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/usecase/escrow"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/usecase/transaction"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/usecase/webhook"
	"github.com/amirhossein-jamali/escrow-engine/internal/infrastructure/adapter/api/dto"
	"github.com/amirhossein-jamali/escrow-engine/internal/infrastructure/adapter/api/handler"
	"github.com/amirhossein-jamali/escrow-engine/internal/infrastructure/adapter/logger"
	"github.com/amirhossein-jamali/escrow-engine/internal/infrastructure/adapter/memory"
	"github.com/amirhossein-jamali/escrow-engine/internal/infrastructure/adapter/notifier"
	"github.com/amirhossein-jamali/escrow-engine/internal/infrastructure/adapter/payment"
	timeprovider "github.com/amirhossein-jamali/escrow-engine/internal/infrastructure/adapter/time"
)

const webhookSecret = "whsec_routes"

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.NewNoopLogger()
	tp := timeprovider.NewRealTimeProvider()
	uow := memory.NewUnitOfWork(memory.NewStore(), log)

	controller := escrow.NewController(uow, tp, log)
	txs := transaction.NewTransactionService(uow, controller, tp, log, transaction.Options{
		CancellationWindow: 48 * time.Hour,
		ConflictRetries:    1,
		DefaultCurrency:    "USD",
	})
	verifier := payment.NewHMACVerifier([]string{webhookSecret}, payment.DefaultTolerance, tp)
	reconciler := webhook.NewReconciler(uow, verifier, txs.Manager(), tp, log)
	dash := dashboard.NewService(uow, controller, log, 100)

	router := gin.New()
	SetupMiddlewares(router, log, tp, []string{"*"})
	SetupRoutes(router, Handlers{
		Transactions: handler.NewTransactionHandler(txs, log),
		Webhooks:     handler.NewWebhookHandler(reconciler, log),
		Dashboard:    handler.NewDashboardHandler(dash, log),
		Stream:       handler.NewStreamHandler(notifier.NewBroadcaster(log), 8, log),
		Health:       handler.NewHealthHandler(nil, "memory", tp),
	})
	return router
}

func do(t *testing.T, router *gin.Engine, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func sendWebhook(t *testing.T, router *gin.Engine, id, eventType, ref string) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":      id,
		"type":    eventType,
		"created": time.Now().Unix(),
		"data": map[string]any{
			"object": map[string]any{
				"id":             ref,
				"payment_status": "paid",
				"amount_total":   1100,
				"currency":       "usd",
			},
		},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments", bytes.NewReader(payload))
	req.Header.Set(handler.SignatureHeader, payment.Sign(webhookSecret, payload, time.Now()))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func createPrepaid(t *testing.T, router *gin.Engine, ref string) string {
	t.Helper()
	w := do(t, router, http.MethodPost, "/api/v1/transactions", "buyer-1", map[string]any{
		"items":              []map[string]any{{"name": "Camera lens", "quantity": 1, "unitPrice": 1100}},
		"amountTotal":        1100,
		"currency":           "USD",
		"paymentMethod":      "prepaid_online",
		"externalPaymentRef": ref,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[dto.CreateTransactionResponse](t, w)
	assert.Equal(t, "pending_payment", created.Status)
	return created.TransactionID
}

func TestPrepaidLifecycleOverHTTP(t *testing.T) {
	router := newRouter(t)
	id := createPrepaid(t, router, "cs_http_1")

	w := sendWebhook(t, router, "evt_1", webhook.TypeCheckoutCompleted, "cs_http_1")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	ack := decode[dto.WebhookAckResponse](t, w)
	assert.Equal(t, "processed", ack.Result)
	assert.Equal(t, "paid", ack.Status)

	w = do(t, router, http.MethodPost, "/api/v1/transactions/"+id+"/accept", "seller-1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, router, http.MethodPost, "/api/v1/transactions/"+id+"/ship", "seller-1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, router, http.MethodPost, "/api/v1/transactions/"+id+"/confirm-receipt", "buyer-1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decode[dto.TransitionResponse](t, w)
	assert.Equal(t, "completed", result.Transaction.Status)
	assert.Equal(t, []string{"received", "completed"}, result.Path)
	assert.False(t, result.Transaction.EscrowHeld)

	w = do(t, router, http.MethodGet, "/api/v1/users/seller-1/summary", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	summary := decode[dto.SummaryResponse](t, w)
	require.Len(t, summary.ByCurrency, 1)
	assert.Equal(t, "11.00", summary.ByCurrency[0].Released)
	assert.Equal(t, []dto.StatusCountResponse{
		{Status: "completed", Currency: "USD", Count: 1, Amount: "11.00"},
	}, summary.ByStatus)

	w = do(t, router, http.MethodGet, "/api/v1/transactions/"+id+"/events", "buyer-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	events := decode[map[string][]dto.EventResponse](t, w)["events"]
	require.Len(t, events, 5)
	assert.Equal(t, "Created", events[0].Event)
	assert.Equal(t, "BuyerConfirmedReceipt", events[4].Event)
}

func TestErrorMapping(t *testing.T) {
	router := newRouter(t)
	id := createPrepaid(t, router, "cs_http_2")

	tests := []struct {
		name   string
		method string
		path   string
		user   string
		body   any
		status int
		code   int
	}{
		{
			name:   "missing identity",
			method: http.MethodPost, path: "/api/v1/transactions/" + id + "/accept",
			status: http.StatusBadRequest, code: errs.CodeValidation,
		},
		{
			name:   "unknown transaction",
			method: http.MethodGet, path: "/api/v1/transactions/does-not-exist", user: "buyer-1",
			status: http.StatusNotFound, code: errs.CodeTransactionNotFound,
		},
		{
			name:   "receipt before shipment",
			method: http.MethodPost, path: "/api/v1/transactions/" + id + "/confirm-receipt", user: "buyer-1",
			status: http.StatusConflict, code: errs.CodeInvalidTransition,
		},
		{
			name:   "prepaid without payment reference",
			method: http.MethodPost, path: "/api/v1/transactions", user: "buyer-1",
			body: map[string]any{
				"items":         []map[string]any{{"name": "Tea", "quantity": 1, "unitPrice": 500}},
				"amountTotal":   500,
				"paymentMethod": "prepaid_online",
			},
			status: http.StatusBadRequest, code: errs.CodeValidation,
		},
		{
			name:   "cancel without role",
			method: http.MethodPost, path: "/api/v1/transactions/" + id + "/cancel", user: "buyer-1",
			body:   map[string]any{},
			status: http.StatusBadRequest, code: errs.CodeValidation,
		},
		{
			name:   "seller cannot ship unaccepted order",
			method: http.MethodPost, path: "/api/v1/transactions/" + id + "/ship", user: "seller-9",
			status: http.StatusConflict, code: errs.CodeInvalidTransition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, tt.method, tt.path, tt.user, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			resp := decode[dto.ErrorResponse](t, w)
			assert.Equal(t, tt.code, resp.Code)
			assert.NotEmpty(t, resp.RequestID)
		})
	}
}

func TestSecondSellerGetsConflict(t *testing.T) {
	router := newRouter(t)
	w := do(t, router, http.MethodPost, "/api/v1/transactions", "buyer-1", map[string]any{
		"items":         []map[string]any{{"name": "Sneakers", "quantity": 2, "unitPrice": 4000}},
		"amount":        "80.00",
		"paymentMethod": "cash_on_delivery",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decode[dto.CreateTransactionResponse](t, w).TransactionID

	w = do(t, router, http.MethodPost, "/api/v1/transactions/"+id+"/accept", "seller-a", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, http.MethodPost, "/api/v1/transactions/"+id+"/accept", "seller-b", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, errs.CodeAlreadyAccepted, decode[dto.ErrorResponse](t, w).Code)

	w = do(t, router, http.MethodGet, "/api/v1/transactions/"+id, "buyer-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	tx := decode[dto.TransactionResponse](t, w)
	assert.Equal(t, "seller-a", tx.SellerID)
	assert.Equal(t, int64(8000), tx.AmountTotal)
	assert.Equal(t, "USD", tx.Currency)
}

func TestBuyerCancelWithinWindowRefunds(t *testing.T) {
	router := newRouter(t)
	id := createPrepaid(t, router, "cs_http_3")
	require.Equal(t, http.StatusOK, sendWebhook(t, router, "evt_3", webhook.TypeCheckoutCompleted, "cs_http_3").Code)

	w := do(t, router, http.MethodPost, "/api/v1/transactions/"+id+"/cancel", "buyer-1", map[string]any{"actorRole": "buyer"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decode[dto.TransitionResponse](t, w)
	assert.Equal(t, "cancelled", result.Transaction.Status)
	assert.Equal(t, "full_refund", result.Transaction.RefundPath)
	assert.Equal(t, "buyer", result.Transaction.CancelledBy)
}

func TestWebhookSignatureAndPayloadFailures(t *testing.T) {
	router := newRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments", bytes.NewBufferString(`{"id":"evt"}`))
	req.Header.Set(handler.SignatureHeader, "t=1,v1=deadbeef")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, errs.CodeSignatureInvalid, decode[dto.ErrorResponse](t, w).Code)

	payload := []byte(`{"not":"an event"}`)
	req = httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments", bytes.NewReader(payload))
	req.Header.Set(handler.SignatureHeader, payment.Sign(webhookSecret, payload, time.Now()))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errs.CodeMalformedPayload, decode[dto.ErrorResponse](t, w).Code)
}

func TestWebhookForUnknownSessionIsAcknowledged(t *testing.T) {
	router := newRouter(t)
	w := sendWebhook(t, router, "evt_9", webhook.TypeCheckoutCompleted, "cs_nobody")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "transaction_not_found", decode[dto.WebhookAckResponse](t, w).Result)
}

func TestHealthAndRequestID(t *testing.T) {
	router := newRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
	body := decode[map[string]any](t, w)
	assert.Equal(t, "ok", body["status"])
}

func TestDashboardRejectsUnknownRole(t *testing.T) {
	router := newRouter(t)
	w := do(t, router, http.MethodGet, "/api/v1/users/buyer-1/transactions?role=admin", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
