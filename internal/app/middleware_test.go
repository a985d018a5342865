package app

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAdminAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	cases := []struct {
		name   string
		hash   string
		header string
		value  string
		status int
	}{
		{name: "disabled", hash: "", header: AdminTokenHeader, value: "secret", status: http.StatusForbidden},
		{name: "missing", hash: string(hash), status: http.StatusUnauthorized},
		{name: "wrong", hash: string(hash), header: AdminTokenHeader, value: "guess", status: http.StatusUnauthorized},
		{name: "header", hash: string(hash), header: AdminTokenHeader, value: "secret", status: http.StatusNoContent},
		{name: "bearer", hash: string(hash), header: "Authorization", value: "Bearer secret", status: http.StatusNoContent},
		{name: "basic", hash: string(hash), header: "Authorization", value: "Basic c2VjcmV0", status: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/step", nil)
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			rr := httptest.NewRecorder()
			AdminAuth(tc.hash, discardLogger())(ok).ServeHTTP(rr, req)
			require.Equal(t, tc.status, rr.Code)
		})
	}
}

func TestMiddlewareStackSetsSecureHeaders(t *testing.T) {
	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	stack := MiddlewareStack(MiddlewareConfig{Logger: discardLogger(), Config: &Config{AppEnv: "development"}})
	for i := len(stack) - 1; i >= 0; i-- {
		handler = stack[i](handler)
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
}
