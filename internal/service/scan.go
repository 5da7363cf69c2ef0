package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/iliyamo/studio-box-office/internal/model"
	"github.com/iliyamo/studio-box-office/internal/repository"
	"github.com/iliyamo/studio-box-office/internal/ticketcode"
)

// ScanTicket admits the holder of code at the door.
func (s *Service) ScanTicket(ctx context.Context, code, scannedBy string) (*model.Ticket, error) {
	if !ticketcode.Valid(code) {
		return nil, invalid("ticket_code", "malformed ticket code")
	}
	t, err := s.tickets.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load ticket: %w", err)
	}
	if !t.IsValid {
		return nil, fmt.Errorf("%w: ticket is no longer valid", ErrConflict)
	}
	if t.ScannedAt != nil {
		return nil, fmt.Errorf("%w: ticket already scanned at %s", ErrConflict, t.ScannedAt.Format("15:04"))
	}
	now := s.clock.Now()
	ok, err := s.tickets.MarkScanned(ctx, t.ID, scannedBy, now)
	if err != nil {
		return nil, fmt.Errorf("mark scanned: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: ticket already scanned", ErrConflict)
	}
	t.ScannedAt = &now
	t.ScannedBy = &scannedBy
	return t, nil
}
