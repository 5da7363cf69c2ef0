package model

import "time"

// Reservation is a short-lived hold on one or more show seats. It is owned
// by the session that created it and is addressed by an unguessable token.
// Reservations are deactivated, never deleted, once created successfully.
//
// Fields:
//  ID           – primary key identifier.
//  Token        – 64 hex chars (256 random bits), unique.
//  SessionID    – caller identity that owns the hold.
//  ShowID       – show being reserved.
//  ContactEmail – email given when holding.
//  ContactPhone – optional phone number.
//  ExpiresAt    – hold deadline; checked live on every read.
//  IsActive     – false once completed or canceled.
type Reservation struct {
	ID           uint64    // reservations.id
	Token        string    // reservations.token
	SessionID    string    // reservations.session_id
	ShowID       uint64    // reservations.show_id
	ContactEmail string    // reservations.contact_email
	ContactPhone *string   // reservations.contact_phone (nullable)
	ExpiresAt    time.Time // reservations.expires_at
	IsActive     bool      // reservations.is_active
	CreatedAt    time.Time // reservations.created_at
}

// Expired reports whether the hold has lapsed at now.
func (r Reservation) Expired(now time.Time) bool {
	return r.ExpiresAt.Before(now)
}

// ReservationSeat links a reservation to the show seats it holds together
// with the price quoted at hold time.
type ReservationSeat struct {
	ReservationID uint64 // reservation_seats.reservation_id
	ShowSeatID    uint64 // reservation_seats.show_seat_id
	PriceInCents  int64  // reservation_seats.price_in_cents
}
