package controllers

import (
	"io"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"coinscope/internal/infra"
	"coinscope/internal/services"
	"coinscope/pkg/logger"
)

type WebhookController struct {
	gateway  services.IGatewayService
	commerce *infra.CommerceClient
	webhooks services.IWebhookService
	log      *zap.Logger
}

func NewWebhookController(
	gateway services.IGatewayService,
	commerce *infra.CommerceClient,
	webhooks services.IWebhookService,
) *WebhookController {
	return &WebhookController{
		gateway:  gateway,
		commerce: commerce,
		webhooks: webhooks,
		log:      logger.Get(),
	}
}

// HandleStripe verifies the signature over the raw body and dispatches the
// event. Reconciliation failures are logged and captured but still acked
// with a 200: the gateway retries aggressively on anything else and a
// poison event must not wedge the retry queue.
func (w *WebhookController) HandleStripe(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	event, err := w.gateway.VerifyWebhookSignature(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		w.log.Warn("stripe webhook signature verification failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	if err := w.webhooks.HandleGatewayEvent(c.Request.Context(), event); err != nil {
		w.log.Error("stripe webhook processing failed",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
		sentry.CaptureException(err)
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (w *WebhookController) HandleCommerce(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	event, err := w.commerce.VerifyWebhookSignature(payload, c.GetHeader("X-CC-Webhook-Signature"))
	if err != nil {
		w.log.Warn("commerce webhook signature verification failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	if err := w.webhooks.HandleCommerceEvent(c.Request.Context(), event); err != nil {
		w.log.Error("commerce webhook processing failed",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type),
			zap.Error(err))
		sentry.CaptureException(err)
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
