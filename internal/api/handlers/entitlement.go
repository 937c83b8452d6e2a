package handlers

import (
	"net/http"

	"github.com/pratik-mahalle/bibleplan/internal/api/dto"
	"github.com/pratik-mahalle/bibleplan/internal/api/middleware"
	"github.com/pratik-mahalle/bibleplan/internal/domain/entitlement"
	"github.com/pratik-mahalle/bibleplan/internal/pkg/errors"
	"github.com/pratik-mahalle/bibleplan/internal/pkg/logger"
	"github.com/pratik-mahalle/bibleplan/internal/pkg/utils"
	"github.com/pratik-mahalle/bibleplan/internal/pkg/validator"
)

type EntitlementHandler struct {
	service   entitlement.Service
	actions   []entitlement.ActionType
	logger    *logger.Logger
	validator *validator.Validator
}

func NewEntitlementHandler(service entitlement.Service, actions []entitlement.ActionType, log *logger.Logger, val *validator.Validator) *EntitlementHandler {
	return &EntitlementHandler{service: service, actions: actions, logger: log, validator: val}
}

// Get returns the caller's balance and tier
// @Summary Get entitlement
// @Description Get the caller's tier and remaining daily credits. Applies any pending daily reset or expiry.
// @Tags Entitlement
// @Produce json
// @Success 200 {object} dto.EntitlementDTO "Current entitlement"
// @Failure 401 {object} utils.ErrorResponse "Unauthorized"
// @Failure 503 {object} utils.ErrorResponse "Entitlement store unavailable"
// @Security BearerAuth
// @Router /entitlement [get]
func (h *EntitlementHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r)

	view, err := h.service.GetEntitlement(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err, "Failed to load entitlement")
		return
	}

	utils.WriteSuccess(w, http.StatusOK, dto.NewEntitlementDTO(view, h.actions))
}

// Consume spends one credit
// @Summary Consume a credit
// @Description Spend one daily credit for a premium action. Running out of credits is reported with ok=false, not an error status.
// @Tags Entitlement
// @Accept json
// @Produce json
// @Param request body dto.ConsumeRequest true "Action being unlocked"
// @Success 200 {object} dto.ConsumeDTO "Consume decision"
// @Failure 400 {object} utils.ErrorResponse "Unknown action type"
// @Failure 401 {object} utils.ErrorResponse "Unauthorized"
// @Failure 503 {object} utils.ErrorResponse "Entitlement store unavailable"
// @Security BearerAuth
// @Router /entitlement/consume [post]
func (h *EntitlementHandler) Consume(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r)

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	var req dto.ConsumeRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	result, err := h.service.Consume(r.Context(), userID, entitlement.ActionType(req.ActionType))
	if err != nil {
		writeServiceError(w, err, "Failed to consume credit")
		return
	}

	middleware.AddLogField(w, "action_type", req.ActionType)
	utils.WriteSuccess(w, http.StatusOK, dto.NewConsumeDTO(result))
}

// Redeem applies a promotional code
// @Summary Redeem a code
// @Description Upgrade the caller to the paid tier with a promotional code. Codes are case-insensitive.
// @Tags Entitlement
// @Accept json
// @Produce json
// @Param request body dto.RedeemRequest true "Promotional code"
// @Success 200 {object} dto.RedeemDTO "Code accepted"
// @Failure 400 {object} utils.ErrorResponse "Invalid code"
// @Failure 401 {object} utils.ErrorResponse "Unauthorized"
// @Failure 503 {object} utils.ErrorResponse "Entitlement store unavailable"
// @Security BearerAuth
// @Router /entitlement/redeem [post]
func (h *EntitlementHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r)

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	var req dto.RedeemRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	result, err := h.service.RedeemCode(r.Context(), userID, req.Code)
	if err != nil {
		writeServiceError(w, err, "Failed to redeem code")
		return
	}
	if !result.OK {
		utils.WriteError(w, errors.InvalidCode("Code is not valid"))
		return
	}

	utils.WriteSuccess(w, http.StatusOK, dto.RedeemDTO{
		OK:           true,
		Tier:         string(result.Tier),
		ProExpiresAt: result.ProExpiresAt,
	})
}

// Events lists the caller's consume history
// @Summary List credit events
// @Description Get a paginated history of the caller's consume decisions, newest first
// @Tags Entitlement
// @Produce json
// @Param page query int false "Page number (default: 1)"
// @Param page_size query int false "Page size (default: 20, max: 100)"
// @Success 200 {object} utils.PaginatedResponse{data=[]dto.CreditEventDTO} "Credit events"
// @Failure 401 {object} utils.ErrorResponse "Unauthorized"
// @Failure 503 {object} utils.ErrorResponse "Audit log unavailable"
// @Security BearerAuth
// @Router /entitlement/events [get]
func (h *EntitlementHandler) Events(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r)
	p := utils.ParsePaginationParams(r)

	events, total, err := h.service.ListEvents(r.Context(), userID, p.PageSize, p.Offset)
	if err != nil {
		writeServiceError(w, err, "Failed to list credit events")
		return
	}

	utils.WriteSuccess(w, http.StatusOK, utils.NewPaginatedResponse(dto.NewCreditEventDTOs(events), p.Page, p.PageSize, total))
}
