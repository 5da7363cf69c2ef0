package session

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/studio-box-office/internal/clock"
)

func newResolver(t *testing.T, clk clock.Clock) *Resolver {
	t.Helper()
	r, err := NewResolver("test-secret", true, clk)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	return r
}

func request(cookies ...*http.Cookie) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	return echo.New().NewContext(req, rec), rec
}

func issued(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == CookieName {
			return ck
		}
	}
	t.Fatalf("no %s cookie set", CookieName)
	return nil
}

func TestResolveMintsAndThenRecognisesCookie(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 5, 30, 17, 0, 0, 0, time.UTC))
	r := newResolver(t, clk)

	c, rec := request()
	first := r.Resolve(c)
	if !strings.HasPrefix(first, "anon:") || len(first) != len("anon:")+64 {
		t.Fatalf("first id = %q", first)
	}
	ck := issued(t, rec)
	if !ck.HttpOnly || !ck.Secure || ck.SameSite != http.SameSiteLaxMode || ck.Path != "/" {
		t.Fatalf("cookie attributes = %+v", ck)
	}

	c2, rec2 := request(ck)
	if got := r.Resolve(c2); got != first {
		t.Fatalf("second id = %q, want %q", got, first)
	}
	if len(rec2.Result().Cookies()) != 0 {
		t.Fatalf("valid cookie was replaced")
	}
}

func TestResolveRejectsExpiredAndForeignCookies(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 5, 30, 17, 0, 0, 0, time.UTC))
	r := newResolver(t, clk)
	c, rec := request()
	first := r.Resolve(c)
	ck := issued(t, rec)

	other, err := NewResolver("another-secret", true, clk)
	if err != nil {
		t.Fatal(err)
	}
	c2, _ := request(ck)
	if got := other.Resolve(c2); got == first {
		t.Fatalf("cookie signed with another key accepted")
	}

	clk.Advance(25 * time.Hour)
	c3, rec3 := request(ck)
	if got := r.Resolve(c3); got == first {
		t.Fatalf("expired cookie accepted")
	}
	issued(t, rec3)

	c4, _ := request(&http.Cookie{Name: CookieName, Value: "garbage"})
	if got := r.Resolve(c4); !strings.HasPrefix(got, "anon:") {
		t.Fatalf("garbage cookie id = %q", got)
	}
}

func TestResolvePrefersAuthenticatedUser(t *testing.T) {
	r := newResolver(t, nil)
	c, rec := request()
	c.Set(KeyUserID, "17")
	if got := r.Resolve(c); got != "user:17" {
		t.Fatalf("id = %q", got)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Fatalf("cookie minted for authenticated caller")
	}
}

func TestMiddlewareStoresSession(t *testing.T) {
	r := newResolver(t, nil)
	c, _ := request()
	var seen string
	h := r.Middleware()(func(c echo.Context) error {
		seen = ID(c)
		return nil
	})
	if err := h(c); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(seen, "anon:") {
		t.Fatalf("session = %q", seen)
	}
}

func TestNewResolverRequiresSecret(t *testing.T) {
	if _, err := NewResolver("", false, nil); err == nil {
		t.Fatalf("expected error")
	}
}
