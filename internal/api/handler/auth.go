// Package handler contains HTTP handlers grouped by resource.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/d9705996/commune/internal/api/jsonapi"
	"github.com/d9705996/commune/internal/auth"
	"github.com/d9705996/commune/internal/model"
	"gorm.io/gorm"
)

// AuthHandler serves login, token refresh and logout for community members.
// Deactivated accounts cannot obtain or renew tokens.
type AuthHandler struct {
	db        *gorm.DB
	refresh   *auth.RefreshStore
	passwords auth.BcryptVerifier
	jwtSecret string
	accessTTL time.Duration
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(db *gorm.DB, jwtSecret string, accessTTL, refreshTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		db:        db,
		refresh:   auth.NewRefreshStore(db, refreshTTL),
		jwtSecret: jwtSecret,
		accessTTL: accessTTL,
	}
}

// secretFields decodes the named string members of a JSON object into
// unexported fields, keeping secrets out of exported struct fields (gosec
// G117). Members not listed are ignored.
func secretFields(data []byte, dst map[string]*string) error {
	obj := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	for name, p := range dst {
		if v, ok := obj[name]; ok {
			if err := json.Unmarshal(v, p); err != nil {
				return err
			}
		}
	}
	return nil
}

type credentials struct {
	email, password string
}

func (c *credentials) UnmarshalJSON(data []byte) error {
	return secretFields(data, map[string]*string{"email": &c.email, "password": &c.password})
}

// tokenRequest is the body of both refresh and logout.
type tokenRequest struct {
	token string
}

func (r *tokenRequest) UnmarshalJSON(data []byte) error {
	return secretFields(data, map[string]*string{"refresh_token": &r.token})
}

type tokenPair struct {
	access, refresh string
}

func (t tokenPair) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{
		"access_token":  t.access,
		"refresh_token": t.refresh,
		"token_type":    "Bearer",
	})
}

// activeUser loads a user that has not been deactivated.
func (h *AuthHandler) activeUser(ctx context.Context, column, value string) (*model.User, error) {
	var u model.User
	err := h.db.WithContext(ctx).
		Where(column+" = ? AND deactivated_at IS NULL", value).
		First(&u).Error
	return &u, err
}

// renderTokens signs a fresh access token for u and returns it alongside
// refresh.
func (h *AuthHandler) renderTokens(w http.ResponseWriter, u *model.User, refresh string) {
	access, err := auth.IssueAccessToken(u.ID, u.Email, []string(u.Roles), h.jwtSecret, h.accessTTL)
	if err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError, "token_error", "Internal Server Error", "failed to issue access token")
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, jsonapi.ResourceObject{
		Type:       "auth_token",
		ID:         u.ID,
		Attributes: tokenPair{access: access, refresh: refresh},
	})
}

// Login handles POST /api/v1/auth/login. Unknown, deactivated and
// wrong-password accounts all get the same 401.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := jsonapi.Decode(r, &req); err != nil {
		jsonapi.RenderError(w, http.StatusBadRequest, "invalid_body", "Bad Request", err.Error())
		return
	}
	if req.email == "" || req.password == "" {
		jsonapi.RenderError(w, http.StatusUnprocessableEntity, "missing_field", "Unprocessable Entity", "email and password are required")
		return
	}

	ctx := r.Context()
	u, err := h.activeUser(ctx, "email", req.email)
	if err != nil || !h.passwords.VerifyPassword(req.password, u.PasswordHash) {
		jsonapi.RenderError(w, http.StatusUnauthorized, "invalid_credentials", "Unauthorized", "email or password is incorrect")
		return
	}

	refresh, err := h.refresh.Issue(ctx, u.ID)
	if err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError, "token_error", "Internal Server Error", "failed to issue refresh token")
		return
	}
	h.renderTokens(w, u, refresh)
}

// Refresh handles POST /api/v1/auth/refresh. The presented token is spent
// even when the account has since been deactivated.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := jsonapi.Decode(r, &req); err != nil || req.token == "" {
		jsonapi.RenderError(w, http.StatusBadRequest, "invalid_body", "Bad Request", "refresh_token is required")
		return
	}

	ctx := r.Context()
	next, userID, err := h.refresh.Rotate(ctx, req.token)
	if err != nil {
		jsonapi.RenderError(w, http.StatusUnauthorized, "invalid_token", "Unauthorized", "refresh token is invalid or expired")
		return
	}
	u, err := h.activeUser(ctx, "id", userID)
	if err != nil {
		_ = h.refresh.Revoke(ctx, next)
		jsonapi.RenderError(w, http.StatusUnauthorized, "account_inactive", "Unauthorized", "account is deactivated or no longer exists")
		return
	}
	h.renderTokens(w, u, next)
}

// Logout handles POST /api/v1/auth/logout. It answers 204 whether or not
// the token was known.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := jsonapi.Decode(r, &req); err != nil || req.token == "" {
		jsonapi.RenderError(w, http.StatusBadRequest, "invalid_body", "Bad Request", "refresh_token is required")
		return
	}
	_ = h.refresh.Revoke(r.Context(), req.token)
	w.WriteHeader(http.StatusNoContent)
}
