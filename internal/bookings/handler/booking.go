package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"carpool/internal/bookings/service"
	apperrors "carpool/pkg/errors"
	httputil "carpool/pkg/http"
	"carpool/pkg/logger"
	"carpool/pkg/middleware"
	"carpool/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type createBookingRequest struct {
	RideID string `json:"ride_id"`
	Seats  int    `json:"seats"`
}

type BookingHandler struct {
	service service.BookingService
	log     *logger.Logger
}

func NewBookingHandler(service service.BookingService, log *logger.Logger) *BookingHandler {
	return &BookingHandler{
		service: service,
		log:     log,
	}
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, "Create", apperrors.Forbidden("Caller identity is required"))
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Create", apperrors.InvalidInput("Invalid request body"))
		return
	}

	booking, err := h.service.Create(r.Context(), principal.UserID, req.RideID, req.Seats)
	if err != nil {
		h.writeError(w, "Create", err)
		return
	}

	if err := httputil.WriteCreated(w, model.ProjectBooking(booking, model.ViewerPassenger)); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "error", err)
	}
}

func (h *BookingHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, "GetByID", apperrors.Forbidden("Caller identity is required"))
		return
	}

	booking, err := h.service.GetByID(r.Context(), principal.UserID, ps.ByName("id"))
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}

	role := model.ViewerPassenger
	if booking.DriverID == principal.UserID {
		role = model.ViewerOwner
	}

	if err := httputil.WriteSuccess(w, model.ProjectBooking(booking, role)); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "error", err)
	}
}

func (h *BookingHandler) ListMine(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, "ListMine", apperrors.Forbidden("Caller identity is required"))
		return
	}

	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "ListMine", err)
		return
	}

	bookings, total, err := h.service.ListByPassenger(r.Context(), principal.UserID, limit, offset)
	if err != nil {
		h.writeError(w, "ListMine", err)
		return
	}

	views := make([]map[string]any, 0, len(bookings))
	for _, b := range bookings {
		views = append(views, model.ProjectBooking(b, model.ViewerPassenger))
	}

	if err := httputil.WritePaginated(w, views, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "ListMine", "error", err)
	}
}

func (h *BookingHandler) Confirm(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.transition(w, r, ps, "Confirm", h.service.Confirm, model.BookingStatusConfirmed)
}

func (h *BookingHandler) Reject(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.transition(w, r, ps, "Reject", h.service.Reject, model.BookingStatusCancelled)
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.transition(w, r, ps, "Cancel", h.service.Cancel, model.BookingStatusCancelled)
}

func (h *BookingHandler) transition(
	w http.ResponseWriter,
	r *http.Request,
	ps httprouter.Params,
	name string,
	op func(ctx context.Context, callerID string, id string) error,
	resulting string,
) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, name, apperrors.Forbidden("Caller identity is required"))
		return
	}

	if err := op(r.Context(), principal.UserID, ps.ByName("id")); err != nil {
		h.writeError(w, name, err)
		return
	}

	if err := httputil.WriteSuccess(w, map[string]any{"status": resulting}); err != nil {
		h.log.Error("failed to write success response", "handler", name, "error", err)
	}
}

func (h *BookingHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "error", writeErr)
	}
}

func (h *BookingHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/bookings", h.Create)
	router.GET("/api/v1/bookings/mine", h.ListMine)
	router.GET("/api/v1/bookings/id/:id", h.GetByID)
	router.POST("/api/v1/bookings/id/:id/confirm", h.Confirm)
	router.POST("/api/v1/bookings/id/:id/reject", h.Reject)
	router.POST("/api/v1/bookings/id/:id/cancel", h.Cancel)
}
