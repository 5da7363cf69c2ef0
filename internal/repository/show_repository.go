package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/studio-box-office/internal/model"
)

// ShowRepo reads scheduled shows. Shows are managed by the studio back
// office; this service only needs them for seat maps, emails and PDFs.
type ShowRepo struct {
	db *sql.DB
}

// NewShowRepo returns a ShowRepo bound to db.
func NewShowRepo(db *sql.DB) *ShowRepo { return &ShowRepo{db: db} }

// GetByID returns the show or ErrNotFound.
func (r *ShowRepo) GetByID(ctx context.Context, id uint64) (*model.Show, error) {
	const q = `SELECT id, venue_id, title, venue_name, starts_at, status, created_at
               FROM shows WHERE id = ?`
	var s model.Show
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&s.ID, &s.VenueID, &s.Title, &s.VenueName, &s.StartsAt, &s.Status, &s.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
