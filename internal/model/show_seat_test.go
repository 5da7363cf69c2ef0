package model

import (
	"testing"
	"time"
)

func TestShowSeatEffectiveStatus(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)
	rid := uint64(7)

	cases := []struct {
		name      string
		seat      ShowSeat
		claimable bool
		effective string
	}{
		{"available", ShowSeat{Status: SeatAvailable}, true, SeatAvailable},
		{"live hold", ShowSeat{Status: SeatReserved, ReservedUntil: &future, ReservedBy: &rid}, false, SeatReserved},
		{"lapsed hold", ShowSeat{Status: SeatReserved, ReservedUntil: &past, ReservedBy: &rid}, true, SeatAvailable},
		{"sold", ShowSeat{Status: SeatSold}, false, SeatSold},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.seat.Claimable(now); got != tc.claimable {
				t.Fatalf("Claimable = %v, want %v", got, tc.claimable)
			}
			if got := tc.seat.EffectiveStatus(now); got != tc.effective {
				t.Fatalf("EffectiveStatus = %q, want %q", got, tc.effective)
			}
		})
	}
}

func TestShowSeatLabel(t *testing.T) {
	s := ShowSeat{Section: "Orchestra", RowLabel: "C", SeatNumber: 12}
	if got := s.Label(); got != "Orchestra C-12" {
		t.Fatalf("Label = %q", got)
	}
	s.Section = ""
	if got := s.Label(); got != "C-12" {
		t.Fatalf("Label without section = %q", got)
	}
}
