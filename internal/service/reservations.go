package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/studio-box-office/internal/model"
	"github.com/iliyamo/studio-box-office/internal/repository"
)

// CreateReservationInput is a request to hold seats for one show.
type CreateReservationInput struct {
	ShowID       uint64
	SeatIDs      []uint64
	ContactEmail string
	ContactPhone *string
	SessionID    string
}

// Reservation is a hold together with its seats and live total.
type Reservation struct {
	model.Reservation
	Seats              []model.ShowSeat
	TotalAmountInCents int64
}

// newReservationToken returns 256 random bits as 64 hex chars.
func newReservationToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// dedupeSeatIDs drops zeros and repeats while keeping request order.
func dedupeSeatIDs(ids []uint64) []uint64 {
	unique := make([]uint64, 0, len(ids))
	seen := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	return unique
}

func sumPrices(seats []model.ShowSeat) int64 {
	var total int64
	for _, s := range seats {
		total += s.PriceInCents
	}
	return total
}

// CreateReservation holds seats for a session. Exactly one of any number of
// concurrent callers asking for the same seat succeeds; the others get a
// *SeatUnavailableError.
func (s *Service) CreateReservation(ctx context.Context, in CreateReservationInput) (*Reservation, error) {
	seatIDs := dedupeSeatIDs(in.SeatIDs)
	if len(seatIDs) == 0 {
		return nil, invalid("seat_ids", "at least one seat is required")
	}
	in.ContactEmail = strings.TrimSpace(in.ContactEmail)
	if err := s.validate.Var(in.ContactEmail, "required,email"); err != nil {
		return nil, invalid("email", "a valid contact email is required")
	}
	if in.SessionID == "" {
		return nil, invalid("session", "missing session")
	}
	if _, err := s.shows.GetByID(ctx, in.ShowID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("show %d: %w", in.ShowID, ErrNotFound)
		}
		return nil, fmt.Errorf("load show: %w", err)
	}

	seats, err := s.seats.GetByIDs(ctx, seatIDs)
	if err != nil {
		return nil, fmt.Errorf("load seats: %w", err)
	}
	byID := make(map[uint64]model.ShowSeat, len(seats))
	for _, ss := range seats {
		if ss.ShowID == in.ShowID {
			byID[ss.ID] = ss
		}
	}
	var foreign []uint64
	for _, id := range seatIDs {
		if _, ok := byID[id]; !ok {
			foreign = append(foreign, id)
		}
	}
	if len(foreign) > 0 {
		return nil, &ValidationError{Field: "seat_ids", Message: "seats do not belong to this show", SeatIDs: foreign}
	}

	now := s.clock.Now()
	var taken []uint64
	for _, id := range seatIDs {
		if !byID[id].Claimable(now) {
			taken = append(taken, id)
		}
	}
	if len(taken) > 0 {
		return nil, &SeatUnavailableError{SeatIDs: taken}
	}

	token, err := newReservationToken()
	if err != nil {
		return nil, fmt.Errorf("%w: token: %v", ErrReservationCreateFailed, err)
	}
	res := &model.Reservation{
		Token:        token,
		SessionID:    in.SessionID,
		ShowID:       in.ShowID,
		ContactEmail: in.ContactEmail,
		ContactPhone: in.ContactPhone,
		ExpiresAt:    now.Add(s.holdTTL),
		CreatedAt:    now,
	}
	if err := s.reservations.Create(ctx, res); err != nil {
		return nil, fmt.Errorf("%w: insert: %v", ErrReservationCreateFailed, err)
	}

	links := make([]model.ReservationSeat, 0, len(seatIDs))
	ordered := make([]model.ShowSeat, 0, len(seatIDs))
	for _, id := range seatIDs {
		ss := byID[id]
		links = append(links, model.ReservationSeat{ReservationID: res.ID, ShowSeatID: id, PriceInCents: ss.PriceInCents})
		ordered = append(ordered, ss)
	}
	if err := s.reservations.AddSeats(ctx, links); err != nil {
		s.discardReservation(ctx, res.ID, false)
		return nil, fmt.Errorf("%w: link seats: %v", ErrReservationCreateFailed, err)
	}

	n, err := s.seats.Reserve(ctx, in.ShowID, seatIDs, res.ID, res.ExpiresAt, now)
	if err != nil {
		s.discardReservation(ctx, res.ID, true)
		return nil, fmt.Errorf("%w: reserve: %v", ErrReservationCreateFailed, err)
	}
	if n < int64(len(seatIDs)) {
		lost := s.seatsNotHeldBy(ctx, seatIDs, res.ID)
		s.discardReservation(ctx, res.ID, true)
		s.log.Info("reservation lost seat race", "show_id", in.ShowID, "requested", len(seatIDs), "claimed", n)
		return nil, &SeatUnavailableError{SeatIDs: lost}
	}

	s.log.Info("reservation created", "reservation_id", res.ID, "show_id", in.ShowID, "seats", len(seatIDs))
	return &Reservation{Reservation: *res, Seats: ordered, TotalAmountInCents: sumPrices(ordered)}, nil
}

// seatsNotHeldBy reports which of ids are not currently reserved by
// reservationID. Falls back to every id when the lookup fails.
func (s *Service) seatsNotHeldBy(ctx context.Context, ids []uint64, reservationID uint64) []uint64 {
	seats, err := s.seats.GetByIDs(ctx, ids)
	if err != nil {
		return ids
	}
	var lost []uint64
	for _, ss := range seats {
		if ss.ReservedBy == nil || *ss.ReservedBy != reservationID || ss.Status != model.SeatReserved {
			lost = append(lost, ss.ID)
		}
	}
	return lost
}

// discardReservation undoes a partially created reservation.
func (s *Service) discardReservation(ctx context.Context, reservationID uint64, releaseSeats bool) {
	if releaseSeats {
		if _, err := s.seats.ReleaseByReservation(ctx, reservationID); err != nil {
			s.log.Error("release seats of discarded reservation", "reservation_id", reservationID, "error", err)
		}
	}
	if err := s.reservations.Delete(ctx, reservationID); err != nil {
		s.log.Error("delete discarded reservation", "reservation_id", reservationID, "error", err)
	}
}

// CancelReservation releases a hold by token. It reports false, without an
// error, when the reservation was already inactive, so repeated calls are
// safe.
func (s *Service) CancelReservation(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, invalid("token", "missing reservation token")
	}
	res, err := s.reservations.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("load reservation: %w", err)
	}
	return s.cancel(ctx, res)
}

// cancel deactivates first and releases seats only when this call won the
// deactivation, so it cannot race a purchase that already claimed the hold.
func (s *Service) cancel(ctx context.Context, res *model.Reservation) (bool, error) {
	if !res.IsActive {
		return false, nil
	}
	won, err := s.reservations.Deactivate(ctx, res.ID)
	if err != nil {
		return false, fmt.Errorf("deactivate reservation: %w", err)
	}
	if !won {
		return false, nil
	}
	ids, err := s.reservations.SeatIDs(ctx, res.ID)
	if err != nil {
		return true, fmt.Errorf("load reservation seats: %w", err)
	}
	n, err := s.seats.ReleaseReserved(ctx, ids, res.ID)
	if err != nil {
		return true, fmt.Errorf("release seats: %w", err)
	}
	s.log.Info("reservation canceled", "reservation_id", res.ID, "released", n)
	return true, nil
}

// CancelSessionReservations cancels every live hold the session owns on a
// show and returns how many were canceled.
func (s *Service) CancelSessionReservations(ctx context.Context, sessionID string, showID uint64) (int, error) {
	list, err := s.reservations.ListActiveForSession(ctx, sessionID, showID, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("list session reservations: %w", err)
	}
	canceled := 0
	for i := range list {
		ok, err := s.cancel(ctx, &list[i])
		if err != nil {
			return canceled, err
		}
		if ok {
			canceled++
		}
	}
	return canceled, nil
}

// ValidateOwnership loads the reservation for token and checks that it
// belongs to sessionID.
func (s *Service) ValidateOwnership(ctx context.Context, token, sessionID string) (*model.Reservation, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	res, err := s.reservations.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load reservation: %w", err)
	}
	if res.SessionID != sessionID {
		return nil, ErrForbidden
	}
	return res, nil
}

// GetReservation returns the session's hold with live seat prices. Expired
// holds yield ErrExpired and completed or canceled ones ErrInvalidState.
func (s *Service) GetReservation(ctx context.Context, token, sessionID string) (*Reservation, error) {
	res, err := s.ValidateOwnership(ctx, token, sessionID)
	if err != nil {
		return nil, err
	}
	if res.Expired(s.clock.Now()) {
		return nil, ErrExpired
	}
	if !res.IsActive {
		return nil, ErrInvalidState
	}
	ids, err := s.reservations.SeatIDs(ctx, res.ID)
	if err != nil {
		return nil, fmt.Errorf("load reservation seats: %w", err)
	}
	seats, err := s.seats.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load seats: %w", err)
	}
	return &Reservation{Reservation: *res, Seats: seats, TotalAmountInCents: sumPrices(seats)}, nil
}

// SeatMap returns every seat of a show with the status a buyer should see.
// Lapsed holds are reported as available without waiting for the sweeper.
func (s *Service) SeatMap(ctx context.Context, showID uint64) (*model.Show, []model.ShowSeat, error) {
	show, err := s.shows.GetByID(ctx, showID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("load show: %w", err)
	}
	seats, err := s.seats.ListByShow(ctx, showID)
	if err != nil {
		return nil, nil, fmt.Errorf("load seats: %w", err)
	}
	now := s.clock.Now()
	for i := range seats {
		seats[i].Status = seats[i].EffectiveStatus(now)
		seats[i].ReservedUntil = nil
		seats[i].ReservedBy = nil
	}
	return show, seats, nil
}

// SweepResult counts what one sweep released.
type SweepResult struct {
	Seats        int64
	Reservations int64
}

// ReleaseExpiredHolds returns lapsed holds to available and deactivates
// lapsed reservations, at most limit of each. Correctness never depends on
// it; readers already treat lapsed holds as free.
func (s *Service) ReleaseExpiredHolds(ctx context.Context, limit int) (SweepResult, error) {
	if limit <= 0 {
		limit = 500
	}
	now := s.clock.Now()
	var out SweepResult
	n, err := s.seats.ReleaseExpired(ctx, now, limit)
	if err != nil {
		return out, fmt.Errorf("release expired seats: %w", err)
	}
	out.Seats = n
	n, err = s.reservations.DeactivateExpired(ctx, now, limit)
	if err != nil {
		return out, fmt.Errorf("deactivate expired reservations: %w", err)
	}
	out.Reservations = n
	return out, nil
}
