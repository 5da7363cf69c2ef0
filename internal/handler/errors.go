package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/studio-box-office/internal/service"
)

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

// errorTable maps service sentinels to responses, checked in order with
// errors.Is. A hold taken by someone else and a hold that timed out get
// different wording so the buyer knows whether to pick other seats or
// start over.
var errorTable = []errorMapping{
	{service.ErrSeatUnavailable, http.StatusConflict, "seat_unavailable", "one or more of those seats were just taken by someone else; please pick different seats"},
	{service.ErrExpired, http.StatusBadRequest, "reservation_expired", "your hold has timed out; please select your seats again"},
	{service.ErrNotFound, http.StatusNotFound, "not_found", "not found"},
	{service.ErrForbidden, http.StatusForbidden, "forbidden", "this reservation belongs to another session"},
	{service.ErrConflict, http.StatusConflict, "conflict", "the request conflicts with the current state"},
	{service.ErrInvalidState, http.StatusBadRequest, "invalid_state", "this reservation or order can no longer be used for that"},
	{service.ErrPaymentNotSucceeded, http.StatusBadRequest, "payment_not_succeeded", "the payment has not completed"},
	{service.ErrAmountMismatch, http.StatusBadRequest, "amount_mismatch", "the amount paid does not match the seat total"},
	{service.ErrUpstream, http.StatusBadGateway, "upstream_failure", "a provider did not respond as expected; please try again"},
	{service.ErrReservationCreateFailed, http.StatusInternalServerError, "reservation_create_failed", "the reservation could not be created"},
	{service.ErrOrderCreateFailed, http.StatusInternalServerError, "order_create_failed", "the order could not be created"},
	{service.ErrInternalInconsistency, http.StatusInternalServerError, "internal_inconsistency", "your payment was received but the order could not be completed; it will be refunded or fixed by the box office"},
}

// writeError renders err. Unknown errors become a 500 and are logged.
func writeError(c echo.Context, log *slog.Logger, err error) error {
	var ve *service.ValidationError
	if errors.As(err, &ve) {
		body := echo.Map{"error": "validation_failed", "field": ve.Field, "message": ve.Message}
		if len(ve.SeatIDs) > 0 {
			body["seat_ids"] = ve.SeatIDs
		}
		return c.JSON(http.StatusBadRequest, body)
	}
	for _, m := range errorTable {
		if !errors.Is(err, m.target) {
			continue
		}
		body := echo.Map{"error": m.code, "message": m.message}
		var su *service.SeatUnavailableError
		if errors.As(err, &su) {
			body["seat_ids"] = su.SeatIDs
		}
		if m.status >= http.StatusInternalServerError {
			log.Error("request failed", "method", c.Request().Method, "path", c.Path(), "error", err)
		}
		return c.JSON(m.status, body)
	}
	log.Error("unhandled error", "method", c.Request().Method, "path", c.Path(), "error", err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal_error", "message": "something went wrong"})
}
