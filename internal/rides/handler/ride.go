package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"carpool/internal/rides/repository"
	"carpool/internal/rides/service"
	apperrors "carpool/pkg/errors"
	httputil "carpool/pkg/http"
	"carpool/pkg/logger"
	"carpool/pkg/middleware"
	"carpool/pkg/model"
	"carpool/pkg/sanitizer"

	"github.com/julienschmidt/httprouter"
)

type RideHandler struct {
	service service.RideService
	log     *logger.Logger
}

func NewRideHandler(service service.RideService, log *logger.Logger) *RideHandler {
	return &RideHandler{
		service: service,
		log:     log,
	}
}

func (h *RideHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, "Create", apperrors.Forbidden("Caller identity is required"))
		return
	}

	var ride model.Ride
	if err := json.NewDecoder(r.Body).Decode(&ride); err != nil {
		h.writeError(w, "Create", apperrors.InvalidInput("Invalid request body"))
		return
	}

	if err := h.service.Create(r.Context(), principal.UserID, &ride); err != nil {
		h.writeError(w, "Create", err)
		return
	}

	if err := httputil.WriteCreated(w, model.ProjectRide(&ride, model.ViewerOwner)); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "error", err)
	}
}

func (h *RideHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	principal, _ := middleware.PrincipalFrom(r.Context())
	id := ps.ByName("id")

	ride, role, err := h.service.GetByID(r.Context(), principal.UserID, id)
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}

	if err := httputil.WriteSuccess(w, model.ProjectRide(ride, role)); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "error", err)
	}
}

func (h *RideHandler) Search(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	query := r.URL.Query()

	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "Search", err)
		return
	}

	filter := &repository.SearchFilter{
		FromCity: sanitizer.NormalizeCity(query.Get("from")),
		ToCity:   sanitizer.NormalizeCity(query.Get("to")),
		Statuses: []string{model.RideStatusActive},
	}

	if seatsStr := query.Get("min_seats"); seatsStr != "" {
		seats, err := strconv.Atoi(seatsStr)
		if err != nil || seats < 1 {
			h.writeError(w, "Search", apperrors.InvalidInput("invalid min_seats parameter: "+seatsStr))
			return
		}
		filter.MinSeats = seats
	}

	if dateStr := query.Get("date"); dateStr != "" {
		day, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			h.writeError(w, "Search", apperrors.InvalidInput("invalid date format, must be YYYY-MM-DD"))
			return
		}
		end := day.Add(24 * time.Hour)
		filter.DateFrom = &day
		filter.DateTo = &end
	}

	rides, total, err := h.service.Search(r.Context(), filter, limit, offset)
	if err != nil {
		h.writeError(w, "Search", err)
		return
	}

	views := make([]map[string]any, 0, len(rides))
	for _, ride := range rides {
		views = append(views, model.ProjectRide(ride, model.ViewerPublic))
	}

	if err := httputil.WritePaginated(w, views, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "Search", "error", err)
	}
}

func (h *RideHandler) ListMine(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
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

	rides, total, err := h.service.ListByDriver(r.Context(), principal.UserID, limit, offset)
	if err != nil {
		h.writeError(w, "ListMine", err)
		return
	}

	views := make([]map[string]any, 0, len(rides))
	for _, ride := range rides {
		views = append(views, model.ProjectRide(ride, model.ViewerOwner))
	}

	if err := httputil.WritePaginated(w, views, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "ListMine", "error", err)
	}
}

func (h *RideHandler) Update(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, "Update", apperrors.Forbidden("Caller identity is required"))
		return
	}
	id := ps.ByName("id")

	var updates model.RideUpdate
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		h.writeError(w, "Update", apperrors.InvalidInput("Invalid request body"))
		return
	}

	ride, err := h.service.Update(r.Context(), principal.UserID, id, &updates)
	if err != nil {
		h.writeError(w, "Update", err)
		return
	}

	if err := httputil.WriteSuccess(w, model.ProjectRide(ride, model.ViewerOwner)); err != nil {
		h.log.Error("failed to write success response", "handler", "Update", "error", err)
	}
}

func (h *RideHandler) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, "Cancel", apperrors.Forbidden("Caller identity is required"))
		return
	}

	cancelled, err := h.service.Cancel(r.Context(), principal.UserID, ps.ByName("id"))
	if err != nil {
		h.writeError(w, "Cancel", err)
		return
	}

	if err := httputil.WriteSuccess(w, map[string]any{
		"status":             model.RideStatusCancelled,
		"bookings_cancelled": cancelled,
	}); err != nil {
		h.log.Error("failed to write success response", "handler", "Cancel", "error", err)
	}
}

func (h *RideHandler) Start(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.transition(w, r, ps, "Start", h.service.Start, model.RideStatusOngoing)
}

func (h *RideHandler) Complete(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.transition(w, r, ps, "Complete", h.service.Complete, model.RideStatusCompleted)
}

func (h *RideHandler) Pause(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.transition(w, r, ps, "Pause", h.service.Pause, model.RideStatusPaused)
}

func (h *RideHandler) Resume(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.transition(w, r, ps, "Resume", h.service.Resume, model.RideStatusActive)
}

func (h *RideHandler) transition(
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

func (h *RideHandler) ListPassengers(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, "ListPassengers", apperrors.Forbidden("Caller identity is required"))
		return
	}

	bookings, err := h.service.ListPassengers(r.Context(), principal.UserID, ps.ByName("id"))
	if err != nil {
		h.writeError(w, "ListPassengers", err)
		return
	}

	views := make([]map[string]any, 0, len(bookings))
	for _, b := range bookings {
		views = append(views, model.ProjectBooking(b, model.ViewerOwner))
	}

	if err := httputil.WriteSuccess(w, views); err != nil {
		h.log.Error("failed to write success response", "handler", "ListPassengers", "error", err)
	}
}

func (h *RideHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "error", writeErr)
	}
}

func (h *RideHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/rides", h.Create)
	router.GET("/api/v1/rides/search", h.Search)
	router.GET("/api/v1/rides/mine", h.ListMine)
	router.GET("/api/v1/rides/id/:id", h.GetByID)
	router.PATCH("/api/v1/rides/id/:id", h.Update)
	router.POST("/api/v1/rides/id/:id/cancel", h.Cancel)
	router.POST("/api/v1/rides/id/:id/start", h.Start)
	router.POST("/api/v1/rides/id/:id/complete", h.Complete)
	router.POST("/api/v1/rides/id/:id/pause", h.Pause)
	router.POST("/api/v1/rides/id/:id/resume", h.Resume)
	router.GET("/api/v1/rides/id/:id/passengers", h.ListPassengers)
}
