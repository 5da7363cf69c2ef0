package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/studio-box-office/internal/model"
)

// TicketRepo persists tickets. ticket_code is unique, and a generated
// column keeps show_seat_id unique among valid tickets, so a seat can hold
// one live ticket while a refunded one stays on record.
type TicketRepo struct {
	db *sql.DB
}

// NewTicketRepo returns a TicketRepo bound to db.
func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

const ticketColumns = `id, order_id, show_seat_id, ticket_code, is_valid, pdf_url, pdf_generated_at,
       scanned_at, scanned_by, created_at`

func scanTicket(row interface{ Scan(...any) error }) (*model.Ticket, error) {
	var (
		t         model.Ticket
		pdfURL    sql.NullString
		pdfAt     sql.NullTime
		scannedAt sql.NullTime
		scannedBy sql.NullString
	)
	if err := row.Scan(&t.ID, &t.OrderID, &t.ShowSeatID, &t.TicketCode, &t.IsValid,
		&pdfURL, &pdfAt, &scannedAt, &scannedBy, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.PDFURL = stringPtr(pdfURL)
	t.PDFGeneratedAt = timePtr(pdfAt)
	t.ScannedAt = timePtr(scannedAt)
	t.ScannedBy = stringPtr(scannedBy)
	return &t, nil
}

// CreateBulk inserts all tickets of an order in one statement so either
// every seat gets a ticket or none does. IDs are populated from the first
// generated id; InnoDB assigns consecutive ids within a multi-row insert.
func (r *TicketRepo) CreateBulk(ctx context.Context, tickets []model.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	query := `INSERT INTO tickets (order_id, show_seat_id, ticket_code, is_valid, created_at) VALUES `
	args := make([]interface{}, 0, len(tickets)*5)
	for i, t := range tickets {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, 1, ?)"
		args = append(args, t.OrderID, t.ShowSeatID, t.TicketCode, t.CreatedAt)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	first, err := res.LastInsertId()
	if err != nil {
		return err
	}
	for i := range tickets {
		tickets[i].ID = uint64(first) + uint64(i)
		tickets[i].IsValid = true
	}
	return nil
}

func (r *TicketRepo) queryTickets(ctx context.Context, q string, args ...any) ([]model.Ticket, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// ListByOrder returns the tickets of an order in seat order.
func (r *TicketRepo) ListByOrder(ctx context.Context, orderID uint64) ([]model.Ticket, error) {
	return r.queryTickets(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE order_id = ? ORDER BY show_seat_id`, orderID)
}

// GetByID returns the ticket or ErrNotFound.
func (r *TicketRepo) GetByID(ctx context.Context, id uint64) (*model.Ticket, error) {
	t, err := scanTicket(r.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

// GetByCode returns the ticket with code or ErrNotFound.
func (r *TicketRepo) GetByCode(ctx context.Context, code string) (*model.Ticket, error) {
	t, err := scanTicket(r.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE ticket_code = ?`, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

// SetPDF records where the rendered PDF lives and when it was rendered.
func (r *TicketRepo) SetPDF(ctx context.Context, id uint64, url string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE tickets SET pdf_url = ?, pdf_generated_at = ? WHERE id = ?`, url, at, id)
	return err
}

// InvalidateByOrder marks every ticket of an order invalid.
func (r *TicketRepo) InvalidateByOrder(ctx context.Context, orderID uint64) (int64, error) {
	return affected(r.db.ExecContext(ctx, `UPDATE tickets SET is_valid = 0 WHERE order_id = ? AND is_valid = 1`, orderID))
}

// MarkScanned records admission. It reports false when the ticket was
// already scanned or is no longer valid.
func (r *TicketRepo) MarkScanned(ctx context.Context, id uint64, by string, at time.Time) (bool, error) {
	n, err := affected(r.db.ExecContext(ctx,
		`UPDATE tickets SET scanned_at = ?, scanned_by = ? WHERE id = ? AND is_valid = 1 AND scanned_at IS NULL`,
		at, by, id))
	return n == 1, err
}
