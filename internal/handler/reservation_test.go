package handler_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/studio-box-office/internal/handler"
)

func TestReservationLifecycle(t *testing.T) {
	s := newServer(t)
	alice := s.client()

	res := alice.reserve(t, s.seats[0], s.seats[1])
	if res["total_amount_in_cents"].(float64) != 5000 {
		t.Fatalf("total = %v", res["total_amount_in_cents"])
	}
	if alice.cookie == nil {
		t.Fatalf("no session cookie issued")
	}
	token := res["token"].(string)
	path := "/v1/reservations/" + token

	expect(t, alice.do(t, http.MethodGet, path, nil), http.StatusOK)
	expect(t, s.client().do(t, http.MethodGet, path, nil), http.StatusForbidden)
	expect(t, s.client().do(t, http.MethodDelete, path, nil), http.StatusForbidden)

	body := expect(t, alice.do(t, http.MethodDelete, path, nil), http.StatusOK)
	if body["canceled"] != true {
		t.Fatalf("first cancel = %v", body)
	}
	body = expect(t, alice.do(t, http.MethodDelete, path, nil), http.StatusOK)
	if body["canceled"] != false {
		t.Fatalf("second cancel = %v", body)
	}
	body = expect(t, alice.do(t, http.MethodGet, path, nil), http.StatusGone)
	if body["error"] != "reservation_inactive" {
		t.Fatalf("error = %v", body["error"])
	}

	expect(t, alice.do(t, http.MethodGet, "/v1/reservations/"+fmt.Sprintf("%064d", 0), nil), http.StatusNotFound)
}

func TestReservationExpiryAnswersGone(t *testing.T) {
	s := newServer(t)
	alice := s.client()
	token := alice.reserve(t, s.seats[0])["token"].(string)

	s.clock.Advance(31 * time.Minute)
	body := expect(t, alice.do(t, http.MethodGet, "/v1/reservations/"+token, nil), http.StatusGone)
	if body["error"] != "reservation_expired" {
		t.Fatalf("error = %v", body["error"])
	}

	// The lapsed seat is free for someone else straight away.
	s.client().reserve(t, s.seats[0])
}

func TestReservationConflict(t *testing.T) {
	s := newServer(t)
	s.client().reserve(t, s.seats[0])

	body := expect(t, s.client().do(t, http.MethodPost, "/v1/reservations", map[string]any{
		"show_id":  1,
		"seat_ids": []uint64{s.seats[1], s.seats[0]},
		"email":    "other@example.com",
	}), http.StatusConflict)
	if body["error"] != "seat_unavailable" {
		t.Fatalf("error = %v", body["error"])
	}
	ids := body["seat_ids"].([]any)
	if len(ids) != 1 || uint64(ids[0].(float64)) != s.seats[0] {
		t.Fatalf("seat_ids = %v", ids)
	}
}

func TestReservationValidation(t *testing.T) {
	s := newServer(t)
	c := s.client()
	tests := []struct {
		name  string
		body  any
		field string
	}{
		{"bad email", map[string]any{"show_id": 1, "seat_ids": []uint64{s.seats[0]}, "email": "nope"}, "email"},
		{"no seats", map[string]any{"show_id": 1, "seat_ids": []uint64{}, "email": "a@b.co"}, "seat_ids"},
		{"no show", map[string]any{"seat_ids": []uint64{s.seats[0]}, "email": "a@b.co"}, "show_id"},
		{"foreign seat", map[string]any{"show_id": 1, "seat_ids": []uint64{999999}, "email": "a@b.co"}, "seat_ids"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := expect(t, c.do(t, http.MethodPost, "/v1/reservations", tt.body), http.StatusBadRequest)
			if body["field"] != tt.field {
				t.Fatalf("field = %v, want %s", body["field"], tt.field)
			}
		})
	}
	expect(t, c.do(t, http.MethodPost, "/v1/reservations", "not an object"), http.StatusBadRequest)
}

func TestCancelForShow(t *testing.T) {
	s := newServer(t)
	alice := s.client()
	alice.reserve(t, s.seats[0])
	alice.reserve(t, s.seats[1])
	s.client().reserve(t, s.seats[2])

	body := expect(t, alice.do(t, http.MethodDelete, "/v1/shows/1/reservation", nil), http.StatusOK)
	if body["canceled"].(float64) != 2 {
		t.Fatalf("canceled = %v", body["canceled"])
	}
	expect(t, alice.do(t, http.MethodDelete, "/v1/shows/abc/reservation", nil), http.StatusBadRequest)
}

func TestSeatMap(t *testing.T) {
	s := newServer(t)
	s.client().reserve(t, s.seats[0])

	body := expect(t, s.client().do(t, http.MethodGet, "/v1/shows/1/seats", nil), http.StatusOK)
	seats := body["seats"].([]any)
	if len(seats) != 4 {
		t.Fatalf("seats = %d", len(seats))
	}
	status := map[uint64]string{}
	for _, raw := range seats {
		m := raw.(map[string]any)
		status[uint64(m["show_seat_id"].(float64))] = m["status"].(string)
	}
	if status[s.seats[0]] != "reserved" || status[s.seats[1]] != "available" {
		t.Fatalf("status = %v", status)
	}

	s.clock.Advance(31 * time.Minute)
	body = expect(t, s.client().do(t, http.MethodGet, "/v1/shows/1/seats", nil), http.StatusOK)
	first := body["seats"].([]any)[0].(map[string]any)
	if first["status"] != "available" {
		t.Fatalf("lapsed hold shown as %v", first["status"])
	}

	expect(t, s.client().do(t, http.MethodGet, "/v1/shows/404/seats", nil), http.StatusNotFound)
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	expect(t, s.client().do(t, http.MethodGet, "/healthz", nil), http.StatusOK)
}

type downDB struct{}

func (downDB) PingContext(context.Context) error { return errors.New("connection refused") }

func TestHealthReportsDatabaseOutage(t *testing.T) {
	e := echo.New()
	e.GET("/healthz", handler.Health(downDB{}))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}
