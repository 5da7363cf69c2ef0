package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/studio-box-office/internal/config"
	"github.com/iliyamo/studio-box-office/internal/session"
)

const secret = "test-jwt-secret"

func sign(t *testing.T, claims jwt.MapClaims, key string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func run(mw echo.MiddlewareFunc, auth string) (*httptest.ResponseRecorder, echo.Context, bool) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if auth != "" {
		req.Header.Set(echo.HeaderAuthorization, auth)
	}
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	called := false
	_ = mw(func(c echo.Context) error {
		called = true
		return c.NoContent(http.StatusNoContent)
	})(c)
	return rec, c, called
}

func TestJWTAuth(t *testing.T) {
	valid := sign(t, jwt.MapClaims{"sub": float64(17), "role": "admin", "exp": time.Now().Add(time.Hour).Unix()}, secret)
	expired := sign(t, jwt.MapClaims{"sub": "17", "exp": time.Now().Add(-time.Hour).Unix()}, secret)
	foreign := sign(t, jwt.MapClaims{"sub": "17"}, "other")

	tests := []struct {
		name   string
		auth   string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong key", "Bearer " + foreign, http.StatusUnauthorized},
		{"valid", "Bearer " + valid, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, c, _ := run(JWTAuth(secret), tt.auth)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if tt.status == http.StatusNoContent {
				if UserID(c) != "17" || c.Get(session.KeyRole) != RoleAdmin {
					t.Fatalf("user = %q role = %v", UserID(c), c.Get(session.KeyRole))
				}
			}
		})
	}
}

func TestOptionalJWTPassesAnonymous(t *testing.T) {
	rec, c, called := run(OptionalJWT(secret), "")
	if !called || rec.Code != http.StatusNoContent || UserID(c) != "" {
		t.Fatalf("anonymous request: called=%v status=%d", called, rec.Code)
	}
	rec, _, called = run(OptionalJWT(secret), "Bearer nonsense")
	if called || rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: called=%v status=%d", called, rec.Code)
	}
}

func TestRequireRole(t *testing.T) {
	mw := RequireRole(RoleAdmin, RoleOwner)
	for role, want := range map[string]int{RoleAdmin: http.StatusNoContent, RoleStaff: http.StatusForbidden, "": http.StatusForbidden} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		c := echo.New().NewContext(req, rec)
		if role != "" {
			c.Set(session.KeyRole, role)
		}
		_ = mw(func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })(c)
		if rec.Code != want {
			t.Fatalf("role %q: status = %d, want %d", role, rec.Code, want)
		}
	}
}

func TestRateKeyStrategies(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/reservations", nil)
	req.Header.Set(echo.HeaderXRealIP, "203.0.113.9")
	c := echo.New().NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/reservations")
	c.Set(session.KeySessionID, "anon:abc")

	for strategy, want := range map[string]string{
		"ip":            "rl:ip:203.0.113.9",
		"session":       "rl:session:anon:abc",
		"session_route": "rl:session:anon:abc:route:POST /v1/reservations",
		"":              "rl:ip:203.0.113.9:session:anon:abc:route:POST /v1/reservations",
	} {
		if got := rateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: strategy}, c); got != want {
			t.Errorf("%q: key = %q, want %q", strategy, got, want)
		}
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"ok":true}`))
	if err != nil {
		t.Fatal(err)
	}
	status, got, body, ok := decodePayload(bs)
	if !ok || status != http.StatusOK || got.Get("Content-Type") != "application/json" || string(body) != `{"ok":true}` {
		t.Fatalf("decode = %d %v %q %v", status, got, body, ok)
	}
	if _, _, _, ok := decodePayload([]byte{0, 0}); ok {
		t.Fatalf("short payload decoded")
	}
}

func TestDisabledMiddlewaresPassThrough(t *testing.T) {
	for _, mw := range []echo.MiddlewareFunc{
		RateLimit(config.RateLimitConfig{Enabled: true}, nil, nil),
		ResponseCache(config.CacheConfig{Enabled: true}, nil),
	} {
		rec, _, called := run(mw, "")
		if !called || rec.Code != http.StatusNoContent {
			t.Fatalf("called=%v status=%d", called, rec.Code)
		}
	}
}
