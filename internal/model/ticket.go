package model

import "time"

// Ticket is the admission artifact for one sold show seat.
type Ticket struct {
	ID             uint64     // tickets.id
	OrderID        uint64     // tickets.order_id
	ShowSeatID     uint64     // tickets.show_seat_id (unique)
	TicketCode     string     // tickets.ticket_code (unique)
	IsValid        bool       // tickets.is_valid; false after a full refund
	PDFURL         *string    // tickets.pdf_url (nullable)
	PDFGeneratedAt *time.Time // tickets.pdf_generated_at (nullable)
	ScannedAt      *time.Time // tickets.scanned_at (nullable)
	ScannedBy      *string    // tickets.scanned_by (nullable)
	CreatedAt      time.Time  // tickets.created_at
}
