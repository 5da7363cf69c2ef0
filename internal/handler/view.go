package handler

import (
	"time"

	"github.com/iliyamo/studio-box-office/internal/model"
	"github.com/iliyamo/studio-box-office/internal/service"
)

type seatView struct {
	ShowSeatID   uint64 `json:"show_seat_id"`
	SeatID       uint64 `json:"seat_id"`
	Section      string `json:"section"`
	Row          string `json:"row"`
	Number       uint32 `json:"number"`
	Status       string `json:"status,omitempty"`
	PriceInCents int64  `json:"price_in_cents"`
}

// seatViews renders seats; withStatus is set for the seat map, where the
// service has already folded lapsed holds into available.
func seatViews(seats []model.ShowSeat, withStatus bool) []seatView {
	out := make([]seatView, len(seats))
	for i, s := range seats {
		out[i] = seatView{
			ShowSeatID:   s.ID,
			SeatID:       s.SeatID,
			Section:      s.Section,
			Row:          s.RowLabel,
			Number:       s.SeatNumber,
			PriceInCents: s.PriceInCents,
		}
		if withStatus {
			out[i].Status = s.Status
		}
	}
	return out
}

type reservationView struct {
	Token              string     `json:"token"`
	ShowID             uint64     `json:"show_id"`
	ExpiresAt          time.Time  `json:"expires_at"`
	Seats              []seatView `json:"seats"`
	TotalAmountInCents int64      `json:"total_amount_in_cents"`
}

func newReservationView(r *service.Reservation) reservationView {
	return reservationView{
		Token:              r.Token,
		ShowID:             r.ShowID,
		ExpiresAt:          r.ExpiresAt,
		Seats:              seatViews(r.Seats, false),
		TotalAmountInCents: r.TotalAmountInCents,
	}
}

type ticketView struct {
	ID         uint64     `json:"id"`
	TicketCode string     `json:"ticket_code"`
	ShowSeatID uint64     `json:"show_seat_id"`
	IsValid    bool       `json:"is_valid"`
	PDFURL     *string    `json:"pdf_url,omitempty"`
	ScannedAt  *time.Time `json:"scanned_at,omitempty"`
	ScannedBy  *string    `json:"scanned_by,omitempty"`
}

func newTicketView(t model.Ticket) ticketView {
	return ticketView{
		ID:         t.ID,
		TicketCode: t.TicketCode,
		ShowSeatID: t.ShowSeatID,
		IsValid:    t.IsValid,
		PDFURL:     t.PDFURL,
		ScannedAt:  t.ScannedAt,
		ScannedBy:  t.ScannedBy,
	}
}

type orderView struct {
	ID                 uint64       `json:"id"`
	OrderNumber        string       `json:"order_number"`
	ShowID             uint64       `json:"show_id"`
	Status             string       `json:"status"`
	CustomerName       string       `json:"customer_name"`
	CustomerEmail      string       `json:"customer_email"`
	PaymentReference   string       `json:"payment_reference"`
	TotalAmountInCents int64        `json:"total_amount_in_cents"`
	RefundedInCents    int64        `json:"refunded_amount_in_cents"`
	CreatedAt          time.Time    `json:"created_at"`
	Tickets            []ticketView `json:"tickets"`
}

func newOrderView(od *service.OrderDetails) orderView {
	o := od.Order
	v := orderView{
		ID:                 o.ID,
		OrderNumber:        o.OrderNumber,
		ShowID:             o.ShowID,
		Status:             o.Status,
		CustomerName:       o.CustomerName,
		CustomerEmail:      o.CustomerEmail,
		PaymentReference:   o.PaymentReference,
		TotalAmountInCents: o.TotalAmountInCents,
		RefundedInCents:    od.RefundedInCents,
		CreatedAt:          o.CreatedAt,
		Tickets:            make([]ticketView, len(od.Tickets)),
	}
	for i, t := range od.Tickets {
		v.Tickets[i] = newTicketView(t)
	}
	return v
}
