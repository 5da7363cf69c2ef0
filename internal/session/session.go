// Package session gives every caller a stable identity: the account id for
// authenticated staff and customers, otherwise a random id carried in a
// signed cookie. Reservations are owned by this identity.
package session

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/hkdf"

	"github.com/iliyamo/studio-box-office/internal/clock"
)

// Context keys shared with the auth middleware.
const (
	KeyUserID    = "user_id"
	KeyRole      = "role"
	KeySessionID = "session_id"
)

const (
	CookieName = "box_office_session"
	cookieTTL  = 24 * time.Hour
	sidBytes   = 32
)

type cookieClaims struct {
	SID string `json:"sid"`
	jwt.RegisteredClaims
}

// Resolver reads and mints session cookies.
type Resolver struct {
	key    []byte
	secure bool
	clock  clock.Clock
}

// NewResolver derives the cookie signing key from secret. secure marks the
// cookie Secure, which production deployments behind TLS want.
func NewResolver(secret string, secure bool, clk clock.Clock) (*Resolver, error) {
	if secret == "" {
		return nil, fmt.Errorf("session: empty secret")
	}
	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte("box-office session cookie v1"))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("session: derive key: %w", err)
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Resolver{key: key, secure: secure, clock: clk}, nil
}

// Resolve returns "user:<id>" for an authenticated caller and
// "anon:<sid>" otherwise, minting a fresh cookie when the request carries
// no valid one. It never fails.
func (r *Resolver) Resolve(c echo.Context) string {
	if uid, ok := c.Get(KeyUserID).(string); ok && uid != "" {
		return "user:" + uid
	}
	if ck, err := c.Cookie(CookieName); err == nil {
		if sid, ok := r.verify(ck.Value); ok {
			return "anon:" + sid
		}
	}
	sid, token, err := r.mint()
	if err != nil {
		// Without randomness the caller gets a throwaway identity that
		// owns nothing on the next request.
		c.Logger().Errorf("session: mint cookie: %v", err)
		return "anon:unsigned-" + fmt.Sprint(r.clock.Now().UnixNano())
	}
	c.SetCookie(&http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  r.clock.Now().Add(cookieTTL),
		MaxAge:   int(cookieTTL / time.Second),
		HttpOnly: true,
		Secure:   r.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return "anon:" + sid
}

func (r *Resolver) keyFunc(*jwt.Token) (interface{}, error) { return r.key, nil }

func (r *Resolver) verify(raw string) (string, bool) {
	var cl cookieClaims
	tok, err := jwt.ParseWithClaims(raw, &cl, r.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(r.clock.Now),
	)
	if err != nil || !tok.Valid {
		return "", false
	}
	if b, err := hex.DecodeString(cl.SID); err != nil || len(b) != sidBytes {
		return "", false
	}
	return cl.SID, true
}

func (r *Resolver) mint() (sid, token string, err error) {
	buf := make([]byte, sidBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	sid = hex.EncodeToString(buf)
	now := r.clock.Now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, cookieClaims{
		SID: sid,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cookieTTL)),
		},
	})
	token, err = t.SignedString(r.key)
	if err != nil {
		return "", "", err
	}
	return sid, token, nil
}

// Middleware resolves the session once per request and stores it under
// KeySessionID.
func (r *Resolver) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(KeySessionID, r.Resolve(c))
			return next(c)
		}
	}
}

// ID returns the session stored by Middleware.
func ID(c echo.Context) string {
	s, _ := c.Get(KeySessionID).(string)
	return s
}
