package handlers

import (
	stderrors "errors"
	"io"
	"net/http"

	"github.com/pratik-mahalle/bibleplan/internal/api/dto"
	"github.com/pratik-mahalle/bibleplan/internal/api/middleware"
	"github.com/pratik-mahalle/bibleplan/internal/domain/billing"
	"github.com/pratik-mahalle/bibleplan/internal/pkg/errors"
	"github.com/pratik-mahalle/bibleplan/internal/pkg/logger"
	"github.com/pratik-mahalle/bibleplan/internal/pkg/utils"
)

const maxWebhookBody = 1 << 20

// BillingHandler handles checkout and processor webhooks
type BillingHandler struct {
	service billing.Service
	logger  *logger.Logger
}

// NewBillingHandler creates a new billing handler
func NewBillingHandler(service billing.Service, log *logger.Logger) *BillingHandler {
	return &BillingHandler{service: service, logger: log}
}

// Checkout starts a subscription checkout for the caller
// @Summary Create checkout session
// @Description Create a hosted checkout page for the paid subscription
// @Tags Billing
// @Produce json
// @Success 200 {object} dto.CheckoutDTO "Checkout session"
// @Failure 401 {object} utils.ErrorResponse "Unauthorized"
// @Failure 502 {object} utils.ErrorResponse "Payment processor error"
// @Failure 503 {object} utils.ErrorResponse "Billing not configured"
// @Security BearerAuth
// @Router /billing/checkout [post]
func (h *BillingHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r)
	email, _ := middleware.GetUserEmail(r)

	session, err := h.service.CreateCheckout(r.Context(), billing.Customer{UserID: userID, Email: email})
	if err != nil {
		writeServiceError(w, err, "Failed to create checkout session")
		return
	}

	utils.WriteSuccess(w, http.StatusOK, dto.CheckoutDTO{SessionID: session.ID, URL: session.URL})
}

// Webhook receives payment processor events
// @Summary Payment webhook
// @Description Receive signed events from the payment processor
// @Tags Billing
// @Accept json
// @Produce json
// @Param Stripe-Signature header string true "Webhook signature"
// @Success 200 {object} dto.WebhookAckDTO "Event acknowledged"
// @Failure 400 {object} utils.ErrorResponse "Invalid signature or payload"
// @Failure 503 {object} utils.ErrorResponse "Entitlement store unavailable"
// @Router /billing/webhook [post]
func (h *BillingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			utils.WriteErrorMessage(w, http.StatusRequestEntityTooLarge, errors.ErrCodeBadRequest, "Request body too large")
			return
		}
		utils.WriteError(w, errors.BadRequest("Failed to read request body"))
		return
	}

	result, err := h.service.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		writeServiceError(w, err, "Failed to process webhook")
		return
	}

	middleware.AddLogField(w, "event_type", result.Type)
	utils.WriteSuccess(w, http.StatusOK, dto.WebhookAckDTO{Received: true, Handled: result.Handled, Type: result.Type})
}
