package handler

import (
	"encoding/json"
	"net/http"

	"carpool/internal/chat/service"
	apperrors "carpool/pkg/errors"
	httputil "carpool/pkg/http"
	"carpool/pkg/logger"
	"carpool/pkg/middleware"

	"github.com/julienschmidt/httprouter"
)

type sendMessageRequest struct {
	RideID     string `json:"ride_id"`
	ReceiverID string `json:"receiver_id"`
	Body       string `json:"body"`
}

type ChatHandler struct {
	service service.ChatService
	log     *logger.Logger
}

func NewChatHandler(service service.ChatService, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		service: service,
		log:     log,
	}
}

func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, "Send", apperrors.Forbidden("Caller identity is required"))
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Send", apperrors.InvalidInput("Invalid request body"))
		return
	}

	message, err := h.service.Send(r.Context(), principal.UserID, req.RideID, req.ReceiverID, req.Body)
	if err != nil {
		h.writeError(w, "Send", err)
		return
	}

	if err := httputil.WriteCreated(w, message); err != nil {
		h.log.Error("failed to write created response", "handler", "Send", "error", err)
	}
}

func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, "History", apperrors.Forbidden("Caller identity is required"))
		return
	}

	messages, err := h.service.History(r.Context(), principal.UserID, ps.ByName("ride_id"), ps.ByName("user_id"))
	if err != nil {
		h.writeError(w, "History", err)
		return
	}

	if err := httputil.WriteSuccess(w, messages); err != nil {
		h.log.Error("failed to write success response", "handler", "History", "error", err)
	}
}

func (h *ChatHandler) Threads(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, "Threads", apperrors.Forbidden("Caller identity is required"))
		return
	}

	threads, err := h.service.Threads(r.Context(), principal.UserID)
	if err != nil {
		h.writeError(w, "Threads", err)
		return
	}

	if err := httputil.WriteSuccess(w, threads); err != nil {
		h.log.Error("failed to write success response", "handler", "Threads", "error", err)
	}
}

func (h *ChatHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "error", writeErr)
	}
}

func (h *ChatHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/chat/messages", h.Send)
	router.GET("/api/v1/chat/threads", h.Threads)
	router.GET("/api/v1/chat/rides/:ride_id/with/:user_id", h.History)
}
