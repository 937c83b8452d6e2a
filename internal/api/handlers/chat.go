package handlers

import (
	"net/http"

	"github.com/pratik-mahalle/bibleplan/internal/api/dto"
	"github.com/pratik-mahalle/bibleplan/internal/api/middleware"
	"github.com/pratik-mahalle/bibleplan/internal/domain/chat"
	"github.com/pratik-mahalle/bibleplan/internal/pkg/logger"
	"github.com/pratik-mahalle/bibleplan/internal/pkg/utils"
	"github.com/pratik-mahalle/bibleplan/internal/pkg/validator"
)

type ChatHandler struct {
	service   chat.Service
	logger    *logger.Logger
	validator *validator.Validator
}

func NewChatHandler(service chat.Service, log *logger.Logger, val *validator.Validator) *ChatHandler {
	return &ChatHandler{service: service, logger: log, validator: val}
}

// Reply answers the latest user message
// @Summary Chat reply
// @Description Ask the study companion a question. Each reply spends one ai_chat_reply credit.
// @Tags Chat
// @Accept json
// @Produce json
// @Param request body dto.ChatRequest true "Conversation so far"
// @Success 200 {object} dto.ChatDTO "Assistant reply"
// @Failure 400 {object} utils.ErrorResponse "Invalid conversation"
// @Failure 401 {object} utils.ErrorResponse "Unauthorized"
// @Failure 402 {object} utils.ErrorResponse "No credits left today"
// @Failure 502 {object} utils.ErrorResponse "Language model error"
// @Failure 503 {object} utils.ErrorResponse "Chat unavailable"
// @Security BearerAuth
// @Router /chat [post]
func (h *ChatHandler) Reply(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r)

	r.Body = http.MaxBytesReader(w, r.Body, 4*maxJSONBody)
	var req dto.ChatRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	reply, err := h.service.Reply(r.Context(), userID, req.Messages)
	if err != nil {
		writeServiceError(w, err, "Failed to generate reply")
		return
	}

	utils.WriteSuccess(w, http.StatusOK, dto.ChatDTO{
		Message:               reply.Message,
		DailyCreditsRemaining: reply.CreditsRemaining,
		Unlimited:             reply.Unlimited,
	})
}
