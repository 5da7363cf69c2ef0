// Package middleware holds the echo middleware shared by the route groups:
// bearer authentication, role checks, rate limiting and response caching.
package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/studio-box-office/internal/session"
)

// JWTAuth requires a valid HS256 bearer token and stores its subject and
// role under session.KeyUserID and session.KeyRole. Tokens are issued by the
// studio's account service with the same secret.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return bearer(secret, true)
}

// OptionalJWT is JWTAuth for public routes: a request without an
// Authorization header passes through anonymously, but a malformed or
// expired token is still rejected.
func OptionalJWT(secret string) echo.MiddlewareFunc {
	return bearer(secret, false)
}

func bearer(secret string, required bool) echo.MiddlewareFunc {
	key := []byte(secret)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if auth == "" && !required {
				return next(c)
			}
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "message": "missing bearer token"})
			}
			claims := jwt.MapClaims{}
			tok, err := jwt.ParseWithClaims(strings.TrimPrefix(auth, "Bearer "), claims,
				func(*jwt.Token) (interface{}, error) { return key, nil },
				jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			)
			if err != nil || !tok.Valid {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "message": "invalid token"})
			}
			sub := subject(claims["sub"])
			if sub == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "message": "invalid claims"})
			}
			c.Set(session.KeyUserID, sub)
			if role, ok := claims["role"].(string); ok {
				c.Set(session.KeyRole, strings.ToUpper(role))
			}
			return next(c)
		}
	}
}

// subject normalises the sub claim. Numeric ids arrive as float64 after
// JSON decoding.
func subject(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		if s > 0 && s == float64(uint64(s)) {
			return strconv.FormatUint(uint64(s), 10)
		}
	case nil:
	default:
		return fmt.Sprint(s)
	}
	return ""
}

// UserID returns the authenticated subject, or "" for anonymous callers.
func UserID(c echo.Context) string {
	s, _ := c.Get(session.KeyUserID).(string)
	return s
}
