// README: Tests for the Firebase auth middleware.
package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"colibri/internal/http/middleware"
	"colibri/internal/infra"
)

type stubVerifier struct {
	token *infra.FirebaseToken
	err   error
	seen  string
}

func (s *stubVerifier) VerifyIDToken(_ context.Context, raw string) (*infra.FirebaseToken, error) {
	s.seen = raw
	return s.token, s.err
}

func newTestRouter(verifier infra.TokenVerifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Auth(verifier))
	r.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"uid":    middleware.CallerUID(c),
			"email":  middleware.CallerEmail(c),
			"caller": middleware.Caller(c),
		})
	})
	return r
}

func TestAuth(t *testing.T) {
	driverToken := &infra.FirebaseToken{
		UID:    "driver123",
		Email:  "maria@example.com",
		Claims: map[string]interface{}{"role": "driver"},
	}
	tests := []struct {
		name     string
		verifier *stubVerifier
		path     string
		header   string
		want     int
		contains []string
	}{
		{name: "missing header", verifier: &stubVerifier{token: driverToken}, path: "/test", want: http.StatusUnauthorized},
		{name: "wrong scheme", verifier: &stubVerifier{token: driverToken}, path: "/test", header: "Token abc", want: http.StatusUnauthorized},
		{name: "wrong scheme ignores query token", verifier: &stubVerifier{token: driverToken}, path: "/test?token=abc", header: "Token abc", want: http.StatusUnauthorized},
		{name: "verifier error", verifier: &stubVerifier{err: errors.New("bad token")}, path: "/test", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "bearer token", verifier: &stubVerifier{token: driverToken}, path: "/test", header: "Bearer good", want: http.StatusOK,
			contains: []string{"driver123", `"caller":"maria@example.com"`}},
		{name: "query token for websocket handshakes", verifier: &stubVerifier{token: driverToken}, path: "/test?token=good", want: http.StatusOK,
			contains: []string{"driver123"}},
		{name: "account without email speaks as its uid", verifier: &stubVerifier{token: &infra.FirebaseToken{UID: "passenger456", Claims: map[string]interface{}{}}},
			path: "/test", header: "Bearer good", want: http.StatusOK, contains: []string{`"caller":"passenger456"`, `"email":""`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(tt.verifier)
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, w.Code)
			}
			for _, s := range tt.contains {
				if !strings.Contains(w.Body.String(), s) {
					t.Errorf("expected %q in body %s", s, w.Body.String())
				}
			}
			if tt.want == http.StatusOK && tt.verifier.seen != "good" {
				t.Errorf("verifier saw %q", tt.verifier.seen)
			}
		})
	}
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Recovery(slogDiscard()), middleware.Logging(slogDiscard()))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}
