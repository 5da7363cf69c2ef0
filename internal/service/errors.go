package service

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned by the reservation manager and the fulfillment
// engine. Handlers map them to HTTP status codes with errors.Is.
var (
	ErrValidation              = errors.New("validation failed")
	ErrNotFound                = errors.New("not found")
	ErrForbidden               = errors.New("forbidden")
	ErrSeatUnavailable         = errors.New("seat unavailable")
	ErrConflict                = errors.New("conflict")
	ErrExpired                 = errors.New("reservation expired")
	ErrInvalidState            = errors.New("invalid state")
	ErrPaymentNotSucceeded     = errors.New("payment not succeeded")
	ErrAmountMismatch          = errors.New("amount mismatch")
	ErrUpstream                = errors.New("upstream failure")
	ErrReservationCreateFailed = errors.New("reservation create failed")
	ErrOrderCreateFailed       = errors.New("order create failed")
	ErrInternalInconsistency   = errors.New("internal inconsistency")
)

// ValidationError describes a rejected input field. SeatIDs lists the
// offending seats when the field is seat_ids.
type ValidationError struct {
	Field   string
	Message string
	SeatIDs []uint64
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// SeatUnavailableError lists the seats a reservation could not take.
type SeatUnavailableError struct {
	SeatIDs []uint64
}

func (e *SeatUnavailableError) Error() string {
	ids := make([]string, len(e.SeatIDs))
	for i, id := range e.SeatIDs {
		ids[i] = fmt.Sprint(id)
	}
	return "seats unavailable: " + strings.Join(ids, ",")
}

func (e *SeatUnavailableError) Unwrap() error { return ErrSeatUnavailable }

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}
