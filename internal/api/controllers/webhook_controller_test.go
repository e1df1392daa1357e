package controllers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"

	"coinscope/internal/infra"
	"coinscope/internal/models/db_models"
	"coinscope/internal/models/response_models"
	"coinscope/pkg/utils"
)

type stubGateway struct {
	sigErr error
}

func (s *stubGateway) CreateOrGetCustomer(ctx context.Context, user *db_models.User) (string, error) {
	return "cus_stub", nil
}

func (s *stubGateway) CreateSubscriptionCheckout(ctx context.Context, userID uuid.UUID, planID string) (*response_models.CheckoutSession, error) {
	return &response_models.CheckoutSession{URL: "https://checkout.example"}, nil
}

func (s *stubGateway) VerifyWebhookSignature(payload []byte, signatureHeader string) (stripe.Event, error) {
	var event stripe.Event
	if s.sigErr != nil {
		return event, s.sigErr
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return event, err
	}
	return event, nil
}

func (s *stubGateway) CancelSubscription(ctx context.Context, gatewaySubID string) error {
	return nil
}

type stubWebhooks struct {
	gatewayErr  error
	commerceErr error
	gateway     []stripe.Event
	commerce    []*infra.CommerceEvent
}

func (s *stubWebhooks) HandleGatewayEvent(ctx context.Context, event stripe.Event) error {
	s.gateway = append(s.gateway, event)
	return s.gatewayErr
}

func (s *stubWebhooks) HandleCommerceEvent(ctx context.Context, event *infra.CommerceEvent) error {
	s.commerce = append(s.commerce, event)
	return s.commerceErr
}

func postWebhook(router *gin.Engine, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func stripeRouter(gateway *stubGateway, webhooks *stubWebhooks) *gin.Engine {
	gin.SetMode(gin.TestMode)
	controller := NewWebhookController(gateway, infra.NewCommerceClient(infra.CommerceConfig{WebhookSecret: "whsec_test"}), webhooks)
	router := gin.New()
	router.POST("/webhooks/stripe", controller.HandleStripe)
	router.POST("/webhooks/commerce", controller.HandleCommerce)
	return router
}

func TestHandleStripe_InvalidSignatureRejected(t *testing.T) {
	webhooks := &stubWebhooks{}
	router := stripeRouter(&stubGateway{sigErr: utils.ErrInvalidSignature}, webhooks)

	rec := postWebhook(router, "/webhooks/stripe", `{"id":"evt_1"}`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, webhooks.gateway)
}

func TestHandleStripe_AcksVerifiedEvent(t *testing.T) {
	webhooks := &stubWebhooks{}
	router := stripeRouter(&stubGateway{}, webhooks)

	rec := postWebhook(router, "/webhooks/stripe", `{"id":"evt_2","type":"invoice.paid"}`, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":true}`, rec.Body.String())
	require.Len(t, webhooks.gateway, 1)
	assert.Equal(t, "evt_2", webhooks.gateway[0].ID)
}

// Processing failures are still acked: the gateway must not keep redelivering
// an event the handler cannot digest.
func TestHandleStripe_HandlerErrorStillAcked(t *testing.T) {
	webhooks := &stubWebhooks{gatewayErr: errors.New("reconcile failed")}
	router := stripeRouter(&stubGateway{}, webhooks)

	rec := postWebhook(router, "/webhooks/stripe", `{"id":"evt_3","type":"checkout.session.completed"}`, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":true}`, rec.Body.String())
}

func TestHandleCommerce_ValidSignatureDispatches(t *testing.T) {
	webhooks := &stubWebhooks{}
	router := stripeRouter(&stubGateway{}, webhooks)

	body := `{"event":{"id":"cm_1","type":"charge:confirmed","data":{"code":"CHARGE1"}}}`
	mac := hmac.New(sha256.New, []byte("whsec_test"))
	mac.Write([]byte(body))

	rec := postWebhook(router, "/webhooks/commerce", body, map[string]string{
		"X-CC-Webhook-Signature": hex.EncodeToString(mac.Sum(nil)),
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, webhooks.commerce, 1)
	assert.Equal(t, "charge:confirmed", webhooks.commerce[0].Type)
}

func TestHandleCommerce_BadSignatureRejected(t *testing.T) {
	webhooks := &stubWebhooks{}
	router := stripeRouter(&stubGateway{}, webhooks)

	rec := postWebhook(router, "/webhooks/commerce", `{"event":{"id":"cm_2"}}`, map[string]string{
		"X-CC-Webhook-Signature": "deadbeef",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, webhooks.commerce)
}
