package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/studio-box-office/internal/model"
)

// OrderRepo persists orders and their refunds.
type OrderRepo struct {
	db *sql.DB
}

// NewOrderRepo returns an OrderRepo bound to db.
func NewOrderRepo(db *sql.DB) *OrderRepo { return &OrderRepo{db: db} }

const orderColumns = `id, order_number, show_id, reservation_id, customer_name, customer_email,
       customer_phone, notes, payment_reference, status, total_amount_in_cents, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (*model.Order, error) {
	var (
		o     model.Order
		phone sql.NullString
		notes sql.NullString
	)
	if err := row.Scan(&o.ID, &o.OrderNumber, &o.ShowID, &o.ReservationID, &o.CustomerName,
		&o.CustomerEmail, &phone, &notes, &o.PaymentReference, &o.Status,
		&o.TotalAmountInCents, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.CustomerPhone = stringPtr(phone)
	o.Notes = stringPtr(notes)
	return &o, nil
}

// Create inserts the order and populates its ID. A second order for the
// same payment reference or order number yields ErrDuplicate.
func (r *OrderRepo) Create(ctx context.Context, o *model.Order) error {
	const q = `INSERT INTO orders
               (order_number, show_id, reservation_id, customer_name, customer_email, customer_phone,
                notes, payment_reference, status, total_amount_in_cents, created_at, updated_at)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, o.OrderNumber, o.ShowID, o.ReservationID, o.CustomerName,
		o.CustomerEmail, nullString(o.CustomerPhone), nullString(o.Notes), o.PaymentReference,
		o.Status, o.TotalAmountInCents, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	o.ID = uint64(id)
	return nil
}

// Delete removes an order. Compensation only; tickets are removed first.
func (r *OrderRepo) Delete(ctx context.Context, id uint64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM tickets WHERE order_id = ?`, id); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, id)
	return err
}

// GetByID returns the order or ErrNotFound.
func (r *OrderRepo) GetByID(ctx context.Context, id uint64) (*model.Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

// GetByNumber returns the order with the human order number or ErrNotFound.
func (r *OrderRepo) GetByNumber(ctx context.Context, number string) (*model.Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_number = ?`, number))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

// UpdateStatus moves an order from one status to another and reports
// whether the expected prior status held.
func (r *OrderRepo) UpdateStatus(ctx context.Context, id uint64, from, to string) (bool, error) {
	n, err := affected(r.db.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = UTC_TIMESTAMP() WHERE id = ? AND status = ?`,
		to, id, from))
	return n == 1, err
}

// CreateRefund records a provider refund.
func (r *OrderRepo) CreateRefund(ctx context.Context, rf *model.Refund) error {
	const q = `INSERT INTO refunds (order_id, provider_refund_id, amount_in_cents, reason, created_at)
               VALUES (?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, rf.OrderID, rf.ProviderRefundID, rf.AmountInCents, rf.Reason, rf.CreatedAt)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	rf.ID = uint64(id)
	return nil
}

// RefundedTotal sums all refunds recorded for an order.
func (r *OrderRepo) RefundedTotal(ctx context.Context, orderID uint64) (int64, error) {
	var total sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_in_cents), 0) FROM refunds WHERE order_id = ?`, orderID).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total.Int64, nil
}
