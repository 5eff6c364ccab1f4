package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"trackmyteam/internal/model"

	"github.com/gin-gonic/gin"
)

type mockParser struct {
	parseFn func(token string) (model.Identity, error)
}

func (m mockParser) Parse(token string) (model.Identity, error) {
	return m.parseFn(token)
}

type mockLimiter struct {
	allowFn func(ctx context.Context, key string) (bool, time.Duration, error)
}

func (m mockLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	return m.allowFn(ctx, key)
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	parser := mockParser{parseFn: func(token string) (model.Identity, error) {
		if token == "good" {
			return model.Identity{UserID: 3, Username: "carol", Role: model.RoleUser}, nil
		}
		return model.Identity{}, errors.New("bad token")
	}}

	r := gin.New()
	r.GET("/me", AuthMiddleware(parser), func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, id.Username)
	})

	cases := []struct {
		header string
		code   int
	}{
		{"", http.StatusUnauthorized},
		{"Basic abc", http.StatusUnauthorized},
		{"Bearer bad", http.StatusUnauthorized},
		{"Bearer good", http.StatusOK},
		{"bearer good", http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != tc.code {
			t.Fatalf("header %q: expected %d, got %d", tc.header, tc.code, w.Code)
		}
		if tc.code == http.StatusOK && w.Body.String() != "carol" {
			t.Fatalf("expected identity in context, got %q", w.Body.String())
		}
	}
}

func TestRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)

	run := func(role string) int {
		r := gin.New()
		r.GET("/admin", func(c *gin.Context) {
			SetIdentity(c, model.Identity{UserID: 1, Username: "u", Role: role})
			c.Next()
		}, RequireRole(model.RoleAdmin), func(c *gin.Context) {
			c.Status(http.StatusNoContent)
		})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin", nil))
		return w.Code
	}

	if code := run(model.RoleUser); code != http.StatusForbidden {
		t.Fatalf("expected 403 for USER, got %d", code)
	}
	if code := run(model.RoleAdmin); code != http.StatusNoContent {
		t.Fatalf("expected 204 for ADMIN, got %d", code)
	}
}

func TestLoginThrottle(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var gotKey string
	limiter := mockLimiter{allowFn: func(ctx context.Context, key string) (bool, time.Duration, error) {
		gotKey = key
		return false, 1500 * time.Millisecond, nil
	}}

	r := gin.New()
	r.POST("/login", LoginThrottle(limiter, nil), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = "192.0.2.10:5555"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") != "2" {
		t.Fatalf("expected Retry-After 2, got %q", w.Header().Get("Retry-After"))
	}
	if gotKey != "login:192.0.2.10" {
		t.Fatalf("unexpected limiter key %q", gotKey)
	}
}

func TestLoginThrottleFailsOpen(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := mockLimiter{allowFn: func(ctx context.Context, key string) (bool, time.Duration, error) {
		return false, 0, errors.New("redis down")
	}}

	r := gin.New()
	r.POST("/login", LoginThrottle(limiter, nil), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected pass-through on limiter error, got %d", w.Code)
	}
}

func TestRequestLoggerSetsRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger(nil))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected generated request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Header().Get("X-Request-ID") != "abc-123" {
		t.Fatalf("expected request id to be propagated")
	}
}
