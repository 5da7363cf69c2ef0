package service_test

import (
	"errors"
	"testing"

	"github.com/iliyamo/studio-box-office/internal/service"
)

func TestScanTicket(t *testing.T) {
	f := newFixture(t, 2, 1000)
	od := f.buy(t, sessionA, "pi_scan", f.seats...)
	code := od.Tickets[0].TicketCode

	tk, err := f.svc.ScanTicket(ctx, code, "door-1")
	if err != nil {
		t.Fatalf("ScanTicket: %v", err)
	}
	if tk.ScannedAt == nil || *tk.ScannedBy != "door-1" {
		t.Fatalf("scan metadata missing: %+v", tk)
	}
	if _, err := f.svc.ScanTicket(ctx, code, "door-2"); !errors.Is(err, service.ErrConflict) {
		t.Fatalf("second scan err = %v, want ErrConflict", err)
	}
	if _, err := f.svc.ScanTicket(ctx, "TKT-' OR 1=1", "door-1"); !errors.Is(err, service.ErrValidation) {
		t.Fatalf("malformed err = %v", err)
	}
	if _, err := f.svc.ScanTicket(ctx, "TKT-000000000000-0000000000000", "door-1"); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("unknown err = %v", err)
	}

	if _, err := f.svc.RefundOrder(ctx, od.Order.ID, od.Order.TotalAmountInCents, "refund"); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if _, err := f.svc.ScanTicket(ctx, od.Tickets[1].TicketCode, "door-1"); !errors.Is(err, service.ErrConflict) {
		t.Fatalf("refunded ticket err = %v, want ErrConflict", err)
	}
}
