// Package servicetest provides an in-memory implementation of the service
// ports. Every conditional update runs under one mutex, which gives the
// same compare-and-swap semantics as the MySQL statements.
package servicetest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/studio-box-office/internal/model"
	"github.com/iliyamo/studio-box-office/internal/repository"
)

// Store holds every table. Use the accessor methods to obtain the port
// implementations.
type Store struct {
	mu sync.Mutex

	shows        map[uint64]model.Show
	seats        map[uint64]*model.ShowSeat
	reservations map[uint64]*model.Reservation
	links        map[uint64][]model.ReservationSeat
	orders       map[uint64]*model.Order
	refunds      []model.Refund
	tickets      map[uint64]*model.Ticket
	nextID       uint64

	// Failure injection for compensation paths.
	FailOrderCreate  error
	FailTicketCreate error
	FailRefundCreate error
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		shows:        make(map[uint64]model.Show),
		seats:        make(map[uint64]*model.ShowSeat),
		reservations: make(map[uint64]*model.Reservation),
		links:        make(map[uint64][]model.ReservationSeat),
		orders:       make(map[uint64]*model.Order),
		tickets:      make(map[uint64]*model.Ticket),
		nextID:       1000,
	}
}

func (s *Store) id() uint64 {
	s.nextID++
	return s.nextID
}

// AddShow registers a show with n available seats priced at priceCents and
// returns the show seat ids.
func (s *Store) AddShow(show model.Show, n int, priceCents int64) []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if show.ID == 0 {
		show.ID = s.id()
	}
	s.shows[show.ID] = show
	ids := make([]uint64, 0, n)
	for i := 0; i < n; i++ {
		id := s.id()
		s.seats[id] = &model.ShowSeat{
			ID:           id,
			ShowID:       show.ID,
			SeatID:       id,
			Status:       model.SeatAvailable,
			PriceInCents: priceCents,
			Section:      "Orchestra",
			RowLabel:     string(rune('A' + i/10)),
			SeatNumber:   uint32(i%10 + 1),
		}
		ids = append(ids, id)
	}
	return ids
}

// Seat returns a copy of a show seat.
func (s *Store) Seat(id uint64) model.ShowSeat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.seats[id]
}

// SetSeatPrice changes a seat price, as the back office might.
func (s *Store) SetSeatPrice(id uint64, cents int64) {
	s.mu.Lock()
	s.seats[id].PriceInCents = cents
	s.mu.Unlock()
}

// ReservationByToken returns a copy of the reservation for token.
func (s *Store) ReservationByToken(token string) (model.Reservation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reservations {
		if r.Token == token {
			return *r, true
		}
	}
	return model.Reservation{}, false
}

// ReservationCount returns the number of stored reservations.
func (s *Store) ReservationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reservations)
}

// OrderCount returns the number of stored orders.
func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

// TicketCount returns the number of stored tickets.
func (s *Store) TicketCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tickets)
}

func (s *Store) Seats() *Seats               { return &Seats{s} }
func (s *Store) Shows() *Shows               { return &Shows{s} }
func (s *Store) Reservations() *Reservations { return &Reservations{s} }
func (s *Store) Orders() *Orders             { return &Orders{s} }
func (s *Store) Tickets() *Tickets           { return &Tickets{s} }

// ---- shows ----

type Shows struct{ s *Store }

func (v *Shows) GetByID(_ context.Context, id uint64) (*model.Show, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	sh, ok := v.s.shows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &sh, nil
}

// ---- show seats ----

type Seats struct{ s *Store }

func (v *Seats) ListByShow(_ context.Context, showID uint64) ([]model.ShowSeat, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []model.ShowSeat
	for _, ss := range v.s.seats {
		if ss.ShowID == showID {
			out = append(out, *ss)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *Seats) GetByIDs(_ context.Context, ids []uint64) ([]model.ShowSeat, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []model.ShowSeat
	for _, id := range ids {
		if ss, ok := v.s.seats[id]; ok {
			out = append(out, *ss)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *Seats) Reserve(_ context.Context, showID uint64, ids []uint64, reservationID uint64, until, now time.Time) (int64, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var n int64
	for _, id := range ids {
		ss, ok := v.s.seats[id]
		if !ok || ss.ShowID != showID || !ss.Claimable(now) {
			continue
		}
		u, by := until, reservationID
		ss.Status, ss.ReservedUntil, ss.ReservedBy = model.SeatReserved, &u, &by
		n++
	}
	return n, nil
}

func release(ss *model.ShowSeat) {
	ss.Status, ss.ReservedUntil, ss.ReservedBy = model.SeatAvailable, nil, nil
}

func heldBy(ss *model.ShowSeat, reservationID uint64) bool {
	return ss.Status == model.SeatReserved && ss.ReservedBy != nil && *ss.ReservedBy == reservationID
}

func (v *Seats) ReleaseReserved(_ context.Context, ids []uint64, reservationID uint64) (int64, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var n int64
	for _, id := range ids {
		if ss, ok := v.s.seats[id]; ok && heldBy(ss, reservationID) {
			release(ss)
			n++
		}
	}
	return n, nil
}

func (v *Seats) ReleaseByReservation(_ context.Context, reservationID uint64) (int64, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var n int64
	for _, ss := range v.s.seats {
		if heldBy(ss, reservationID) {
			release(ss)
			n++
		}
	}
	return n, nil
}

func (v *Seats) MarkSold(_ context.Context, ids []uint64, reservationID uint64, now time.Time) (int64, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, id := range ids {
		ss, ok := v.s.seats[id]
		if !ok || !heldBy(ss, reservationID) || ss.ReservedUntil == nil || ss.ReservedUntil.Before(now) {
			return 0, nil
		}
	}
	for _, id := range ids {
		ss := v.s.seats[id]
		ss.Status, ss.ReservedUntil, ss.ReservedBy = model.SeatSold, nil, nil
	}
	return int64(len(ids)), nil
}

func (v *Seats) RestoreHold(_ context.Context, ids []uint64, reservationID uint64, until time.Time) (int64, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var n int64
	for _, id := range ids {
		if ss, ok := v.s.seats[id]; ok && ss.Status == model.SeatSold {
			u, by := until, reservationID
			ss.Status, ss.ReservedUntil, ss.ReservedBy = model.SeatReserved, &u, &by
			n++
		}
	}
	return n, nil
}

func (v *Seats) ReleaseSold(_ context.Context, ids []uint64) (int64, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var n int64
	for _, id := range ids {
		if ss, ok := v.s.seats[id]; ok && ss.Status == model.SeatSold {
			release(ss)
			n++
		}
	}
	return n, nil
}

func (v *Seats) ReleaseExpired(_ context.Context, now time.Time, limit int) (int64, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var n int64
	for _, ss := range v.s.seats {
		if int(n) >= limit {
			break
		}
		if ss.Status == model.SeatReserved && ss.ReservedUntil != nil && ss.ReservedUntil.Before(now) {
			release(ss)
			n++
		}
	}
	return n, nil
}

// ---- reservations ----

type Reservations struct{ s *Store }

func (v *Reservations) Create(_ context.Context, res *model.Reservation) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, r := range v.s.reservations {
		if r.Token == res.Token {
			return repository.ErrDuplicate
		}
	}
	res.ID = v.s.id()
	res.IsActive = true
	cp := *res
	v.s.reservations[res.ID] = &cp
	return nil
}

func (v *Reservations) Delete(_ context.Context, id uint64) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	delete(v.s.links, id)
	delete(v.s.reservations, id)
	return nil
}

func (v *Reservations) GetByToken(_ context.Context, token string) (*model.Reservation, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, r := range v.s.reservations {
		if r.Token == token {
			cp := *r
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (v *Reservations) AddSeats(_ context.Context, seats []model.ReservationSeat) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, rs := range seats {
		v.s.links[rs.ReservationID] = append(v.s.links[rs.ReservationID], rs)
	}
	return nil
}

func (v *Reservations) DeleteSeats(_ context.Context, reservationID uint64) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	delete(v.s.links, reservationID)
	return nil
}

func (v *Reservations) SeatIDs(_ context.Context, reservationID uint64) ([]uint64, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var ids []uint64
	for _, rs := range v.s.links[reservationID] {
		ids = append(ids, rs.ShowSeatID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (v *Reservations) Deactivate(_ context.Context, id uint64) (bool, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	r, ok := v.s.reservations[id]
	if !ok || !r.IsActive {
		return false, nil
	}
	r.IsActive = false
	return true, nil
}

func (v *Reservations) Claim(_ context.Context, id uint64, now time.Time) (bool, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	r, ok := v.s.reservations[id]
	if !ok || !r.IsActive || !r.ExpiresAt.After(now) {
		return false, nil
	}
	r.IsActive = false
	return true, nil
}

func (v *Reservations) Reactivate(_ context.Context, id uint64) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if r, ok := v.s.reservations[id]; ok {
		r.IsActive = true
	}
	return nil
}

func (v *Reservations) ListActiveForSession(_ context.Context, sessionID string, showID uint64, now time.Time) ([]model.Reservation, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []model.Reservation
	for _, r := range v.s.reservations {
		if r.SessionID == sessionID && r.ShowID == showID && r.IsActive && r.ExpiresAt.After(now) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *Reservations) DeactivateExpired(_ context.Context, now time.Time, limit int) (int64, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var n int64
	for _, r := range v.s.reservations {
		if int(n) >= limit {
			break
		}
		if r.IsActive && r.ExpiresAt.Before(now) {
			r.IsActive = false
			n++
		}
	}
	return n, nil
}

// ---- orders ----

type Orders struct{ s *Store }

func (v *Orders) Create(_ context.Context, o *model.Order) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if v.s.FailOrderCreate != nil {
		return v.s.FailOrderCreate
	}
	for _, existing := range v.s.orders {
		if existing.PaymentReference == o.PaymentReference || existing.OrderNumber == o.OrderNumber {
			return repository.ErrDuplicate
		}
	}
	o.ID = v.s.id()
	cp := *o
	v.s.orders[o.ID] = &cp
	return nil
}

func (v *Orders) Delete(_ context.Context, id uint64) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for tid, t := range v.s.tickets {
		if t.OrderID == id {
			delete(v.s.tickets, tid)
		}
	}
	delete(v.s.orders, id)
	return nil
}

func (v *Orders) GetByID(_ context.Context, id uint64) (*model.Order, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	o, ok := v.s.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (v *Orders) GetByNumber(_ context.Context, number string) (*model.Order, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, o := range v.s.orders {
		if o.OrderNumber == number {
			cp := *o
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (v *Orders) UpdateStatus(_ context.Context, id uint64, from, to string) (bool, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	o, ok := v.s.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	return true, nil
}

func (v *Orders) CreateRefund(_ context.Context, rf *model.Refund) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if v.s.FailRefundCreate != nil {
		return v.s.FailRefundCreate
	}
	rf.ID = v.s.id()
	v.s.refunds = append(v.s.refunds, *rf)
	return nil
}

func (v *Orders) RefundedTotal(_ context.Context, orderID uint64) (int64, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var total int64
	for _, rf := range v.s.refunds {
		if rf.OrderID == orderID {
			total += rf.AmountInCents
		}
	}
	return total, nil
}

// ---- tickets ----

type Tickets struct{ s *Store }

func (v *Tickets) CreateBulk(_ context.Context, tickets []model.Ticket) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if v.s.FailTicketCreate != nil {
		return v.s.FailTicketCreate
	}
	for _, t := range tickets {
		for _, existing := range v.s.tickets {
			if (existing.IsValid && existing.ShowSeatID == t.ShowSeatID) || existing.TicketCode == t.TicketCode {
				return repository.ErrDuplicate
			}
		}
	}
	for i := range tickets {
		tickets[i].ID = v.s.id()
		tickets[i].IsValid = true
		cp := tickets[i]
		v.s.tickets[cp.ID] = &cp
	}
	return nil
}

func (v *Tickets) ListByOrder(_ context.Context, orderID uint64) ([]model.Ticket, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []model.Ticket
	for _, t := range v.s.tickets {
		if t.OrderID == orderID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ShowSeatID < out[j].ShowSeatID })
	return out, nil
}

func (v *Tickets) GetByID(_ context.Context, id uint64) (*model.Ticket, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	t, ok := v.s.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (v *Tickets) GetByCode(_ context.Context, code string) (*model.Ticket, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, t := range v.s.tickets {
		if t.TicketCode == code {
			cp := *t
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (v *Tickets) SetPDF(_ context.Context, id uint64, url string, at time.Time) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	t, ok := v.s.tickets[id]
	if !ok {
		return repository.ErrNotFound
	}
	u, a := url, at
	t.PDFURL, t.PDFGeneratedAt = &u, &a
	return nil
}

func (v *Tickets) InvalidateByOrder(_ context.Context, orderID uint64) (int64, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var n int64
	for _, t := range v.s.tickets {
		if t.OrderID == orderID && t.IsValid {
			t.IsValid = false
			n++
		}
	}
	return n, nil
}

func (v *Tickets) MarkScanned(_ context.Context, id uint64, by string, at time.Time) (bool, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	t, ok := v.s.tickets[id]
	if !ok || !t.IsValid || t.ScannedAt != nil {
		return false, nil
	}
	b, a := by, at
	t.ScannedBy, t.ScannedAt = &b, &a
	return true, nil
}

// ErrInjected is a convenient failure for the Fail* hooks.
var ErrInjected = errors.New("injected failure")
