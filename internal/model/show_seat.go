package model

import (
	"strconv"
	"time"
)

// Seat availability states for a show.
const (
	SeatAvailable = "available"
	SeatReserved  = "reserved"
	SeatSold      = "sold"
)

// ShowSeat is the per-show availability and price of one seat.
//
// Invariants kept by every writer:
//  reserved  => ReservedUntil and ReservedBy are set.
//  available => both are nil.
//  sold      => both are nil and a ticket references the row.
//
// Section, RowLabel and SeatNumber are joined from seats for display and are
// not columns of show_seats.
type ShowSeat struct {
	ID            uint64     // show_seats.id
	ShowID        uint64     // show_seats.show_id
	SeatID        uint64     // show_seats.seat_id
	Status        string     // show_seats.status
	PriceInCents  int64      // show_seats.price_in_cents
	ReservedUntil *time.Time // show_seats.reserved_until (nullable)
	ReservedBy    *uint64    // show_seats.reserved_by (nullable reservation id)

	Section    string // seats.section
	RowLabel   string // seats.row_label
	SeatNumber uint32 // seats.seat_number
}

// Claimable reports whether a new reservation may take the seat at now. A
// reserved seat whose hold has lapsed counts as free.
func (s ShowSeat) Claimable(now time.Time) bool {
	switch s.Status {
	case SeatAvailable:
		return true
	case SeatReserved:
		return s.ReservedUntil != nil && s.ReservedUntil.Before(now)
	}
	return false
}

// EffectiveStatus is the status a reader should report at now.
func (s ShowSeat) EffectiveStatus(now time.Time) string {
	if s.Status == SeatReserved && s.Claimable(now) {
		return SeatAvailable
	}
	return s.Status
}

// Label renders a human seat label such as "Orchestra C-12".
func (s ShowSeat) Label() string {
	if s.Section == "" {
		return s.RowLabel + "-" + strconv.FormatUint(uint64(s.SeatNumber), 10)
	}
	return s.Section + " " + s.RowLabel + "-" + strconv.FormatUint(uint64(s.SeatNumber), 10)
}
