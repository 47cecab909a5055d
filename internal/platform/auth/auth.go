// Package auth guards the operator endpoints with HS256 bearer tokens. The
// public dashboard endpoints are deliberately unauthenticated; only /admin
// routes go through this middleware.
package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// SubjectKey is the echo context key holding the verified token subject.
const SubjectKey = "auth_subject"

// Claims are the token claims accepted on admin requests.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// AdminMiddleware verifies a Bearer token signed with secret and requires the
// "admin" role claim.
func AdminMiddleware(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}
			raw := strings.TrimPrefix(header, "Bearer ")

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			if claims.Role != "admin" {
				return echo.NewHTTPError(http.StatusForbidden, "admin role required")
			}

			c.Set(SubjectKey, claims.Subject)
			return next(c)
		}
	}
}

// DevSkipMiddleware passes every request through. Used when ENV=development
// so the admin endpoints stay reachable without minting tokens.
func DevSkipMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return next
	}
}

// IssueToken mints an admin token. Used by the CLI's token subcommand and by
// tests.
func IssueToken(secret []byte, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: "admin",
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
