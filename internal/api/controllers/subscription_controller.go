package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"coinscope/internal/models/request_models"
	"coinscope/internal/models/response_models"
	"coinscope/internal/services"
	"coinscope/pkg/utils"
)

type SubscriptionController struct {
	gateway    services.IGatewayService
	crypto     services.ICryptoService
	renewal    services.IRenewalService
	reconciler services.IReconcilerService
}

func NewSubscriptionController(
	gateway services.IGatewayService,
	crypto services.ICryptoService,
	renewal services.IRenewalService,
	reconciler services.IReconcilerService,
) *SubscriptionController {
	return &SubscriptionController{
		gateway:    gateway,
		crypto:     crypto,
		renewal:    renewal,
		reconciler: reconciler,
	}
}

func authedUserID(c *gin.Context) (uuid.UUID, bool) {
	raw := c.GetString("user_id")
	if raw == "" {
		utils.RespondError(c, http.StatusUnauthorized, "user_id is required")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		utils.RespondError(c, http.StatusUnauthorized, "invalid user id in token")
		return uuid.Nil, false
	}
	return id, true
}

// SubscribeStripe godoc
// @Summary Start a card subscription checkout
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Param request body request_models.StripeSubscribeRequest true "Plan selection"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /api/subscribe/stripe [post]
func (s *SubscriptionController) SubscribeStripe(c *gin.Context) {
	var request request_models.StripeSubscribeRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request payload")
		return
	}

	userID, ok := authedUserID(c)
	if !ok {
		return
	}

	session, err := s.gateway.CreateSubscriptionCheckout(c.Request.Context(), userID, request.PlanID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, gin.H{"url": session.URL}, "Checkout session created")
}

// WalletPayment godoc
// @Summary Quote a direct wallet payment
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Param request body request_models.WalletPaymentRequest true "Plan, network and months"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /api/subscribe/wallet-payment [post]
func (s *SubscriptionController) WalletPayment(c *gin.Context) {
	var request request_models.WalletPaymentRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request payload")
		return
	}

	userID, ok := authedUserID(c)
	if !ok {
		return
	}

	quote, err := s.crypto.QuoteWalletPayment(c.Request.Context(), userID, request.PlanID, request.Months, request.Network)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, quote, "Payment quote created")
}

// VerifyTransaction godoc
// @Summary Verify an on-chain payment and activate the subscription
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Param request body request_models.VerifyTransactionRequest true "Quote id and transaction hash"
// @Success 200 {object} response_models.VerificationResult
// @Router /api/verify-transaction [post]
func (s *SubscriptionController) VerifyTransaction(c *gin.Context) {
	var request request_models.VerifyTransactionRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, response_models.VerificationResult{
			Success: false, Error: "invalid_request",
		})
		return
	}

	_, err := s.crypto.VerifyWalletPayment(c.Request.Context(), request.PaymentID, request.TxHash)
	if err != nil {
		// Stable error codes so the client can render an actionable message.
		switch {
		case errors.Is(err, utils.ErrAlreadyProcessed):
			// Not an error from a money standpoint: the payment landed once.
			c.JSON(http.StatusOK, response_models.VerificationResult{
				Success: true, AlreadyProcessed: true,
			})
		case errors.Is(err, utils.ErrQuoteNotFound):
			c.JSON(http.StatusNotFound, response_models.VerificationResult{
				Success: false, Error: "quote_not_found",
			})
		case errors.Is(err, utils.ErrTransactionNotFound):
			c.JSON(http.StatusBadRequest, response_models.VerificationResult{
				Success: false, Error: "transaction_not_found",
			})
		case errors.Is(err, utils.ErrAmountMismatch):
			c.JSON(http.StatusBadRequest, response_models.VerificationResult{
				Success: false, Error: "amount_mismatch",
			})
		case errors.Is(err, utils.ErrWrongRecipient):
			c.JSON(http.StatusBadRequest, response_models.VerificationResult{
				Success: false, Error: "wrong_recipient",
			})
		case errors.Is(err, utils.ErrUpstreamUnavailable):
			c.JSON(http.StatusBadGateway, response_models.VerificationResult{
				Success: false, Error: "upstream_unavailable",
			})
		default:
			c.JSON(http.StatusInternalServerError, response_models.VerificationResult{
				Success: false, Error: "internal_error",
			})
		}
		return
	}

	c.JSON(http.StatusOK, response_models.VerificationResult{Success: true})
}

// GetSubscription godoc
// @Summary Current subscription status and entitlements
// @Tags Subscriptions
// @Produce json
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /api/subscription [get]
func (s *SubscriptionController) GetSubscription(c *gin.Context) {
	userID, ok := authedUserID(c)
	if !ok {
		return
	}

	status, err := s.renewal.GetStatus(c.Request.Context(), userID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, status, "Subscription status retrieved")
}

// RenewalInfo godoc
// @Summary Renewal options for the current plan
// @Tags Subscriptions
// @Produce json
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /api/subscribe/renewal-info [post]
func (s *SubscriptionController) RenewalInfo(c *gin.Context) {
	userID, ok := authedUserID(c)
	if !ok {
		return
	}

	info, err := s.renewal.GetRenewalInfo(c.Request.Context(), userID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, info, "Renewal info retrieved")
}

// Renew godoc
// @Summary Start a renewal payment
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Param request body request_models.RenewRequest true "Plan, months and optional network"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /api/subscribe/renew [post]
func (s *SubscriptionController) Renew(c *gin.Context) {
	var request request_models.RenewRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request payload")
		return
	}

	userID, ok := authedUserID(c)
	if !ok {
		return
	}

	start, err := s.renewal.Renew(c.Request.Context(), userID, request.PlanID, request.Months, request.Network)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, start, "Renewal started")
}

// Cancel godoc
// @Summary Cancel the active subscription
// @Tags Subscriptions
// @Produce json
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /api/subscription/cancel [post]
func (s *SubscriptionController) Cancel(c *gin.Context) {
	userID, ok := authedUserID(c)
	if !ok {
		return
	}

	if err := s.reconciler.CancelByUser(c.Request.Context(), userID); err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, nil, "Subscription cancelled")
}
