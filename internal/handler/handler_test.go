package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/studio-box-office/internal/artifact"
	"github.com/iliyamo/studio-box-office/internal/clock"
	"github.com/iliyamo/studio-box-office/internal/handler"
	"github.com/iliyamo/studio-box-office/internal/mail"
	"github.com/iliyamo/studio-box-office/internal/model"
	"github.com/iliyamo/studio-box-office/internal/router"
	"github.com/iliyamo/studio-box-office/internal/service"
	"github.com/iliyamo/studio-box-office/internal/service/servicetest"
	"github.com/iliyamo/studio-box-office/internal/session"
)

const jwtSecret = "handler-test-secret"

type blobStore struct{ objects map[string][]byte }

func (b *blobStore) Upload(_ context.Context, bucket, path string, data []byte, _ string) (string, error) {
	b.objects[bucket+"/"+path] = data
	return "https://cdn.example.com/" + bucket + "/" + path, nil
}

func (b *blobStore) Download(_ context.Context, bucket, path string) ([]byte, error) {
	if d, ok := b.objects[bucket+"/"+path]; ok {
		return d, nil
	}
	return nil, errors.New("missing")
}

type nullMailer struct{ sent int }

func (m *nullMailer) Send(context.Context, mail.Message) mail.SendResult {
	m.sent++
	return mail.SendResult{Success: true, MessageID: "<id>"}
}

type server struct {
	e        *echo.Echo
	store    *servicetest.Store
	payments *servicetest.Payments
	clock    *clock.Fake
	mailer   *nullMailer
	seats    []uint64
}

func newServer(t *testing.T) *server {
	t.Helper()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := &server{
		store:    servicetest.NewStore(),
		payments: servicetest.NewPayments(),
		clock:    clock.NewFake(time.Date(2026, 5, 30, 17, 0, 0, 0, time.UTC)),
		mailer:   &nullMailer{},
	}
	s.seats = s.store.AddShow(model.Show{
		ID:        1,
		Title:     "Spring Recital",
		VenueName: "Main Stage",
		StartsAt:  time.Date(2026, 6, 6, 19, 0, 0, 0, time.UTC),
	}, 4, 2500)

	svc := service.New(s.store.Ports(), s.payments, service.WithClock(s.clock), service.WithLogger(quiet))
	pipe := artifact.New(artifact.Deps{
		Orders:  s.store.Orders(),
		Tickets: s.store.Tickets(),
		Shows:   s.store.Shows(),
		Seats:   s.store.Seats(),
		Storage: &blobStore{objects: map[string][]byte{}},
		Mailer:  s.mailer,
	}, artifact.Config{Bucket: "box-office", Branding: artifact.Branding{StudioName: "Studio"}},
		artifact.WithClock(s.clock), artifact.WithLogger(quiet))
	sessions, err := session.NewResolver("cookie-secret", false, s.clock)
	if err != nil {
		t.Fatal(err)
	}

	s.e = echo.New()
	s.e.Validator = handler.NewValidator()
	router.Register(s.e, router.Deps{
		Reservations: handler.NewReservationHandler(svc, quiet),
		Orders:       handler.NewOrderHandler(svc, quiet),
		Tickets:      handler.NewTicketHandler(pipe, svc, quiet),
		Sessions:     sessions,
		JWTSecret:    jwtSecret,
		Logger:       quiet,
	})
	return s
}

// client keeps the session cookie between calls like a browser would.
type client struct {
	s      *server
	cookie *http.Cookie
	bearer string
}

func (s *server) client() *client { return &client{s: s} }

func (s *server) staff(t *testing.T, role string) *client {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  float64(7),
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(jwtSecret))
	if err != nil {
		t.Fatal(err)
	}
	return &client{s: s, bearer: tok}
}

func (c *client) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	if c.bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+c.bearer)
	}
	rec := httptest.NewRecorder()
	c.s.e.ServeHTTP(rec, req)
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == session.CookieName {
			c.cookie = ck
		}
	}
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return m
}

func expect(t *testing.T, rec *httptest.ResponseRecorder, status int) map[string]any {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d; body %s", rec.Code, status, rec.Body.String())
	}
	if strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		return decode(t, rec)
	}
	return nil
}

func (c *client) reserve(t *testing.T, seats ...uint64) map[string]any {
	t.Helper()
	return expect(t, c.do(t, http.MethodPost, "/v1/reservations", map[string]any{
		"show_id":  1,
		"seat_ids": seats,
		"email":    "parent@example.com",
	}), http.StatusCreated)
}

func (c *client) buy(t *testing.T, ref string, seats ...uint64) map[string]any {
	t.Helper()
	res := c.reserve(t, seats...)
	c.s.payments.Succeed(ref, int64(res["total_amount_in_cents"].(float64)))
	return expect(t, c.do(t, http.MethodPost, "/v1/orders", map[string]any{
		"reservation_token": res["token"],
		"payment_intent_id": ref,
		"customer_name":     "Jordan Rivera",
		"email":             "jordan@example.com",
	}), http.StatusCreated)
}
