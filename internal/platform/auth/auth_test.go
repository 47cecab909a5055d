package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSecret = []byte("test-secret")

func protectedServer(mw echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	g := e.Group("/admin", mw)
	g.POST("/scrape", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{"subject": c.Get(SubjectKey)})
	})
	return e
}

func adminRequest(e *echo.Echo, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/admin/scrape", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestAdminMiddleware_ValidToken(t *testing.T) {
	e := protectedServer(AdminMiddleware(testSecret))

	token, err := IssueToken(testSecret, "operator", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	rec := adminRequest(e, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAdminMiddleware_MissingToken(t *testing.T) {
	e := protectedServer(AdminMiddleware(testSecret))

	if rec := adminRequest(e, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("want 401 without a token, got %d", rec.Code)
	}
}

func TestAdminMiddleware_WrongSecret(t *testing.T) {
	e := protectedServer(AdminMiddleware(testSecret))

	token, err := IssueToken([]byte("other-secret"), "operator", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if rec := adminRequest(e, token); rec.Code != http.StatusUnauthorized {
		t.Fatalf("want 401 for a foreign signature, got %d", rec.Code)
	}
}

func TestAdminMiddleware_ExpiredToken(t *testing.T) {
	e := protectedServer(AdminMiddleware(testSecret))

	token, err := IssueToken(testSecret, "operator", -time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if rec := adminRequest(e, token); rec.Code != http.StatusUnauthorized {
		t.Fatalf("want 401 for an expired token, got %d", rec.Code)
	}
}

func TestAdminMiddleware_NonAdminRole(t *testing.T) {
	e := protectedServer(AdminMiddleware(testSecret))

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "viewer",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: "viewer",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if rec := adminRequest(e, token); rec.Code != http.StatusForbidden {
		t.Fatalf("want 403 for a non-admin role, got %d", rec.Code)
	}
}

func TestAdminMiddleware_RejectsNonHMACAlg(t *testing.T) {
	e := protectedServer(AdminMiddleware(testSecret))

	// alg=none style tokens must never verify.
	token := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Role: "admin"})
	raw, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if rec := adminRequest(e, raw); rec.Code != http.StatusUnauthorized {
		t.Fatalf("want 401 for alg=none, got %d", rec.Code)
	}
}

func TestAdminMiddleware_SetsSubject(t *testing.T) {
	e := protectedServer(AdminMiddleware(testSecret))

	token, err := IssueToken(testSecret, "alice", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	rec := adminRequest(e, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, "alice") {
		t.Errorf("handler should see the verified subject, got %s", body)
	}
}

func TestDevSkipMiddleware(t *testing.T) {
	e := protectedServer(DevSkipMiddleware())

	if rec := adminRequest(e, ""); rec.Code != http.StatusOK {
		t.Fatalf("dev skip should pass unauthenticated requests, got %d", rec.Code)
	}
}
