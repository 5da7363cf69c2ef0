package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/studio-box-office/internal/model"
)

// ShowSeatRepo encapsulates the seat inventory. All transitions are keyed
// on the expected prior state:
//
//	available|lapsed reserved -> reserved   Reserve
//	reserved -> available                   ReleaseReserved, ReleaseByReservation, ReleaseExpired
//	live reserved -> sold                   MarkSold
//	sold -> reserved                        RestoreHold
//	sold -> available                       ReleaseSold
type ShowSeatRepo struct {
	db *sql.DB
}

// NewShowSeatRepo constructs a ShowSeatRepo given a DB handle.
func NewShowSeatRepo(db *sql.DB) *ShowSeatRepo { return &ShowSeatRepo{db: db} }

const showSeatColumns = `ss.id, ss.show_id, ss.seat_id, ss.status, ss.price_in_cents,
       ss.reserved_until, ss.reserved_by, s.section, s.row_label, s.seat_number`

func scanShowSeats(rows *sql.Rows) ([]model.ShowSeat, error) {
	defer rows.Close()
	var out []model.ShowSeat
	for rows.Next() {
		var (
			ss    model.ShowSeat
			until sql.NullTime
			by    sql.NullInt64
		)
		if err := rows.Scan(&ss.ID, &ss.ShowID, &ss.SeatID, &ss.Status, &ss.PriceInCents,
			&until, &by, &ss.Section, &ss.RowLabel, &ss.SeatNumber); err != nil {
			return nil, err
		}
		ss.ReservedUntil = timePtr(until)
		ss.ReservedBy = uint64Ptr(by)
		out = append(out, ss)
	}
	return out, rows.Err()
}

// ListByShow returns every seat of a show ordered for display.
func (r *ShowSeatRepo) ListByShow(ctx context.Context, showID uint64) ([]model.ShowSeat, error) {
	q := `SELECT ` + showSeatColumns + `
          FROM show_seats ss JOIN seats s ON s.id = ss.seat_id
          WHERE ss.show_id = ?
          ORDER BY s.section, s.row_label, s.seat_number`
	rows, err := r.db.QueryContext(ctx, q, showID)
	if err != nil {
		return nil, err
	}
	return scanShowSeats(rows)
}

// GetByIDs loads the given show seats regardless of show. Callers compare
// ShowID themselves so foreign ids can be reported.
func (r *ShowSeatRepo) GetByIDs(ctx context.Context, ids []uint64) ([]model.ShowSeat, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q := `SELECT ` + showSeatColumns + `
          FROM show_seats ss JOIN seats s ON s.id = ss.seat_id
          WHERE ss.id IN (` + placeholders(len(ids)) + `)
          ORDER BY ss.id`
	rows, err := r.db.QueryContext(ctx, q, idArgs(ids)...)
	if err != nil {
		return nil, err
	}
	return scanShowSeats(rows)
}

// Reserve claims ids for reservationID in one statement. A seat qualifies
// when it is available or its hold lapsed before now. The affected-row
// count tells the caller how many seats it actually got.
func (r *ShowSeatRepo) Reserve(ctx context.Context, showID uint64, ids []uint64, reservationID uint64, until, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q := `UPDATE show_seats
          SET status = 'reserved', reserved_until = ?, reserved_by = ?
          WHERE show_id = ? AND id IN (` + placeholders(len(ids)) + `)
            AND (status = 'available' OR (status = 'reserved' AND reserved_until < ?))`
	args := append([]interface{}{until, reservationID, showID}, idArgs(ids)...)
	args = append(args, now)
	return affected(r.db.ExecContext(ctx, q, args...))
}

// ReleaseReserved returns ids to available, but only those still held by
// reservationID. A seat re-taken after expiry by someone else is untouched.
func (r *ShowSeatRepo) ReleaseReserved(ctx context.Context, ids []uint64, reservationID uint64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q := `UPDATE show_seats
          SET status = 'available', reserved_until = NULL, reserved_by = NULL
          WHERE id IN (` + placeholders(len(ids)) + `) AND status = 'reserved' AND reserved_by = ?`
	args := append(idArgs(ids), reservationID)
	return affected(r.db.ExecContext(ctx, q, args...))
}

// ReleaseByReservation releases every seat still held by reservationID.
// Used when a create attempt loses a race and must undo partial claims.
func (r *ShowSeatRepo) ReleaseByReservation(ctx context.Context, reservationID uint64) (int64, error) {
	const q = `UPDATE show_seats
               SET status = 'available', reserved_until = NULL, reserved_by = NULL
               WHERE status = 'reserved' AND reserved_by = ?`
	return affected(r.db.ExecContext(ctx, q, reservationID))
}

// MarkSold moves ids from reserved to sold while reservationID still
// holds every one of them and the hold has not lapsed at now. It is all or
// nothing: if any seat was lost to expiry the update is rolled back and 0
// is returned.
func (r *ShowSeatRepo) MarkSold(ctx context.Context, ids []uint64, reservationID uint64, now time.Time) (n int64, err error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil || n == 0 {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
		if err != nil {
			n = 0
		}
	}()
	q := `UPDATE show_seats
          SET status = 'sold', reserved_until = NULL, reserved_by = NULL
          WHERE id IN (` + placeholders(len(ids)) + `) AND status = 'reserved' AND reserved_by = ?
            AND reserved_until >= ?`
	args := append(idArgs(ids), reservationID, now)
	n, err = affected(tx.ExecContext(ctx, q, args...))
	if err != nil {
		return 0, err
	}
	if n != int64(len(ids)) {
		n = 0
	}
	return n, nil
}

// RestoreHold undoes MarkSold for an order that could not be written: ids
// go back to reserved for reservationID until the given time. Only call it
// for seats MarkSold just sold, before any ticket references them.
func (r *ShowSeatRepo) RestoreHold(ctx context.Context, ids []uint64, reservationID uint64, until time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q := `UPDATE show_seats
          SET status = 'reserved', reserved_until = ?, reserved_by = ?
          WHERE id IN (` + placeholders(len(ids)) + `) AND status = 'sold'`
	args := append([]interface{}{until, reservationID}, idArgs(ids)...)
	return affected(r.db.ExecContext(ctx, q, args...))
}

// ReleaseSold puts refunded seats back on sale.
func (r *ShowSeatRepo) ReleaseSold(ctx context.Context, ids []uint64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q := `UPDATE show_seats
          SET status = 'available', reserved_until = NULL, reserved_by = NULL
          WHERE id IN (` + placeholders(len(ids)) + `) AND status = 'sold'`
	return affected(r.db.ExecContext(ctx, q, idArgs(ids)...))
}

// ReleaseExpired is housekeeping for the sweeper: lapsed holds go back to
// available. Readers already treat them as available, so this only keeps
// the table honest.
func (r *ShowSeatRepo) ReleaseExpired(ctx context.Context, now time.Time, limit int) (int64, error) {
	const q = `UPDATE show_seats
               SET status = 'available', reserved_until = NULL, reserved_by = NULL
               WHERE status = 'reserved' AND reserved_until < ?
               LIMIT ?`
	return affected(r.db.ExecContext(ctx, q, now, limit))
}
