package middleware_test

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/d9705996/commune/internal/api/middleware"
	"github.com/d9705996/commune/internal/auth"
	"github.com/stretchr/testify/assert"
)

const secret = "test-secret-at-least-32-bytes!!!"

func issueToken(t *testing.T, roles []string) string {
	t.Helper()
	tok, err := auth.IssueAccessToken("user-1", "u@example.com", roles, secret, 15*time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

func TestRequireAuth_MissingHeader(t *testing.T) {
	handler := middleware.RequireAuth(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAuth_ValidToken(t *testing.T) {
	handler := middleware.RequireAuth(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := middleware.ClaimsFromContext(r.Context())
		assert.NotNil(t, claims)
		assert.Equal(t, "user-1", claims.UserID)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+issueToken(t, []string{"User"}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireAuth_InvalidToken(t *testing.T) {
	handler := middleware.RequireAuth(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.Header.Set("Authorization", "Bearer this.is.garbage")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func deleteChain() http.Handler {
	return middleware.RequireAuth(secret)(
		middleware.RequirePermission(middleware.PermCommunityDelete)(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			}),
		),
	)
}

func TestRequirePermission_User_CannotDelete(t *testing.T) {
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/communities/c-1", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+issueToken(t, []string{"User"}))
	w := httptest.NewRecorder()
	deleteChain().ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequirePermission_Admin_Wildcard(t *testing.T) {
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/communities/c-1", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+issueToken(t, []string{"Admin"}))
	w := httptest.NewRecorder()
	deleteChain().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestHasPermission(t *testing.T) {
	assert.True(t, middleware.HasPermission([]string{"User"}, middleware.PermCommunityCreate))
	assert.False(t, middleware.HasPermission([]string{"User"}, middleware.PermCommunityDelete))
	assert.False(t, middleware.HasPermission(nil, middleware.PermCommunityRead))
	assert.False(t, middleware.HasPermission([]string{"Viewer"}, middleware.PermCommunityRead))
}

func TestRequestLog_RecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	h := middleware.RequestLog(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/brew", http.NoBody))
	assert.Contains(t, buf.String(), "status=418")
	assert.Contains(t, buf.String(), "path=/brew")
}
