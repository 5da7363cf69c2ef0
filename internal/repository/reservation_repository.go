package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/studio-box-office/internal/model"
)

// ReservationRepo provides persistence for reservations and the
// reservation_seats link table. All timestamps are stored in UTC and every
// time comparison takes "now" from the caller rather than UTC_TIMESTAMP(),
// so the service clock stays authoritative.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

const reservationColumns = `id, token, session_id, show_id, contact_email, contact_phone,
       expires_at, is_active, created_at`

func scanReservation(row interface{ Scan(...any) error }) (*model.Reservation, error) {
	var (
		res   model.Reservation
		phone sql.NullString
	)
	if err := row.Scan(&res.ID, &res.Token, &res.SessionID, &res.ShowID, &res.ContactEmail,
		&phone, &res.ExpiresAt, &res.IsActive, &res.CreatedAt); err != nil {
		return nil, err
	}
	res.ContactPhone = stringPtr(phone)
	res.ExpiresAt = res.ExpiresAt.UTC()
	return &res, nil
}

// Create inserts an active reservation and populates its ID.
func (r *ReservationRepo) Create(ctx context.Context, res *model.Reservation) error {
	const q = `INSERT INTO reservations
               (token, session_id, show_id, contact_email, contact_phone, expires_at, is_active, created_at)
               VALUES (?, ?, ?, ?, ?, ?, 1, ?)`
	result, err := r.db.ExecContext(ctx, q, res.Token, res.SessionID, res.ShowID, res.ContactEmail,
		nullString(res.ContactPhone), res.ExpiresAt, res.CreatedAt)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	res.ID = uint64(id)
	res.IsActive = true
	return nil
}

// Delete removes a reservation and its seat links. Only used as the
// compensating step of a failed create.
func (r *ReservationRepo) Delete(ctx context.Context, id uint64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM reservation_seats WHERE reservation_id = ?`, id); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM reservations WHERE id = ?`, id)
	return err
}

// GetByToken returns the reservation for token or ErrNotFound.
func (r *ReservationRepo) GetByToken(ctx context.Context, token string) (*model.Reservation, error) {
	q := `SELECT ` + reservationColumns + ` FROM reservations WHERE token = ?`
	res, err := scanReservation(r.db.QueryRowContext(ctx, q, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return res, err
}

// AddSeats inserts the reservation_seats rows in a single statement.
func (r *ReservationRepo) AddSeats(ctx context.Context, seats []model.ReservationSeat) error {
	if len(seats) == 0 {
		return nil
	}
	query := `INSERT INTO reservation_seats (reservation_id, show_seat_id, price_in_cents) VALUES `
	args := make([]interface{}, 0, len(seats)*3)
	for i, s := range seats {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?)"
		args = append(args, s.ReservationID, s.ShowSeatID, s.PriceInCents)
	}
	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}

// DeleteSeats removes the seat links of a reservation.
func (r *ReservationRepo) DeleteSeats(ctx context.Context, reservationID uint64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM reservation_seats WHERE reservation_id = ?`, reservationID)
	return err
}

// SeatIDs returns the show_seat ids linked to a reservation.
func (r *ReservationRepo) SeatIDs(ctx context.Context, reservationID uint64) ([]uint64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT show_seat_id FROM reservation_seats WHERE reservation_id = ? ORDER BY show_seat_id`,
		reservationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Deactivate flips is_active 1 -> 0. It reports false when the reservation
// was already inactive, which makes cancellation idempotent.
func (r *ReservationRepo) Deactivate(ctx context.Context, id uint64) (bool, error) {
	n, err := affected(r.db.ExecContext(ctx,
		`UPDATE reservations SET is_active = 0 WHERE id = ? AND is_active = 1`, id))
	return n == 1, err
}

// Claim is the commit-time exclusivity check for order creation: it
// deactivates an active, unexpired reservation and reports whether this
// caller won. Two concurrent purchases of one reservation cannot both win.
func (r *ReservationRepo) Claim(ctx context.Context, id uint64, now time.Time) (bool, error) {
	n, err := affected(r.db.ExecContext(ctx,
		`UPDATE reservations SET is_active = 0 WHERE id = ? AND is_active = 1 AND expires_at > ?`,
		id, now))
	return n == 1, err
}

// Reactivate undoes a Claim when the order could not be written.
func (r *ReservationRepo) Reactivate(ctx context.Context, id uint64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE reservations SET is_active = 1 WHERE id = ? AND is_active = 0`, id)
	return err
}

// ListActiveForSession returns the session's live reservations on a show.
func (r *ReservationRepo) ListActiveForSession(ctx context.Context, sessionID string, showID uint64, now time.Time) ([]model.Reservation, error) {
	q := `SELECT ` + reservationColumns + `
          FROM reservations
          WHERE session_id = ? AND show_id = ? AND is_active = 1 AND expires_at > ?
          ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, sessionID, showID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}

// DeactivateExpired marks lapsed reservations inactive for the sweeper.
func (r *ReservationRepo) DeactivateExpired(ctx context.Context, now time.Time, limit int) (int64, error) {
	return affected(r.db.ExecContext(ctx,
		`UPDATE reservations SET is_active = 0 WHERE is_active = 1 AND expires_at < ? LIMIT ?`,
		now, limit))
}
