package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/studio-box-office/internal/service"
	"github.com/iliyamo/studio-box-office/internal/session"
)

// ReservationHandler serves seat holds and the seat map. The caller is the
// session resolved by session.Middleware.
type ReservationHandler struct {
	svc *service.Service
	log *slog.Logger
}

func NewReservationHandler(svc *service.Service, log *slog.Logger) *ReservationHandler {
	return &ReservationHandler{svc: svc, log: log}
}

type createReservationRequest struct {
	ShowID  uint64   `json:"show_id" validate:"required,gt=0"`
	SeatIDs []uint64 `json:"seat_ids" validate:"required,min=1,max=20"`
	Email   string   `json:"email" validate:"required,email,max=254"`
	Phone   *string  `json:"phone" validate:"omitempty,max=32"`
}

// Create handles POST /v1/reservations.
func (h *ReservationHandler) Create(c echo.Context) error {
	var req createReservationRequest
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	res, err := h.svc.CreateReservation(c.Request().Context(), service.CreateReservationInput{
		ShowID:       req.ShowID,
		SeatIDs:      req.SeatIDs,
		ContactEmail: req.Email,
		ContactPhone: req.Phone,
		SessionID:    session.ID(c),
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, newReservationView(res))
}

// Get handles GET /v1/reservations/:token. A hold that timed out or was
// already used answers 410 Gone.
func (h *ReservationHandler) Get(c echo.Context) error {
	res, err := h.svc.GetReservation(c.Request().Context(), c.Param("token"), session.ID(c))
	switch {
	case errors.Is(err, service.ErrExpired):
		return c.JSON(http.StatusGone, echo.Map{"error": "reservation_expired", "message": "your hold has timed out; please select your seats again"})
	case errors.Is(err, service.ErrInvalidState):
		return c.JSON(http.StatusGone, echo.Map{"error": "reservation_inactive", "message": "this reservation was already completed or canceled"})
	case err != nil:
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, newReservationView(res))
}

// Cancel handles DELETE /v1/reservations/:token. Only the owning session
// may cancel; a second cancel answers canceled=false.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	ctx := c.Request().Context()
	token := c.Param("token")
	if _, err := h.svc.ValidateOwnership(ctx, token, session.ID(c)); err != nil {
		return writeError(c, h.log, err)
	}
	canceled, err := h.svc.CancelReservation(ctx, token)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"canceled": canceled})
}

// CancelForShow handles DELETE /v1/shows/:id/reservation: the session drops
// all of its holds on a show without needing the tokens.
func (h *ReservationHandler) CancelForShow(c echo.Context) error {
	showID, ok := parseID(c, "id")
	if !ok {
		return badID(c, "show")
	}
	n, err := h.svc.CancelSessionReservations(c.Request().Context(), session.ID(c), showID)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"canceled": n})
}

// SeatMap handles GET /v1/shows/:id/seats.
func (h *ReservationHandler) SeatMap(c echo.Context) error {
	showID, ok := parseID(c, "id")
	if !ok {
		return badID(c, "show")
	}
	show, seats, err := h.svc.SeatMap(c.Request().Context(), showID)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"show": echo.Map{
			"id":         show.ID,
			"title":      show.Title,
			"venue_name": show.VenueName,
			"starts_at":  show.StartsAt,
			"status":     show.Status,
		},
		"seats": seatViews(seats, true),
	})
}
