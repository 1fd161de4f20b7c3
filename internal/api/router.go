// Package api wires all API routes onto the provided ServeMux.
package api

import (
	"net/http"

	"github.com/d9705996/commune/internal/api/handler"
	"github.com/d9705996/commune/internal/api/middleware"
	"github.com/d9705996/commune/internal/health"
)

// RegisterRoutes registers all application routes on mux.
func RegisterRoutes(mux *http.ServeMux, h *health.Handler, auth *handler.AuthHandler, gov *handler.GovernanceHandler, jwtSecret string) {
	// Public health endpoints (no auth required)
	mux.HandleFunc("GET /api/v1/health", h.ServeHealth)
	mux.HandleFunc("GET /api/v1/ready", h.ServeReady)

	// Auth endpoints (no auth required)
	mux.HandleFunc("POST /api/v1/auth/login", auth.Login)
	mux.HandleFunc("POST /api/v1/auth/refresh", auth.Refresh)

	protected := middleware.RequireAuth(jwtSecret)
	mux.Handle("POST /api/v1/auth/logout", protected(http.HandlerFunc(auth.Logout)))

	with := func(perm string, fn http.HandlerFunc) http.Handler {
		return protected(middleware.RequirePermission(perm)(fn))
	}
	read := func(fn http.HandlerFunc) http.Handler { return with(middleware.PermCommunityRead, fn) }
	write := func(fn http.HandlerFunc) http.Handler { return with(middleware.PermCommunityWrite, fn) }

	// Communities
	mux.Handle("GET /api/v1/communities", read(gov.ListCommunities))
	mux.Handle("POST /api/v1/communities", with(middleware.PermCommunityCreate, gov.CreateCommunity))
	mux.Handle("GET /api/v1/communities/by-url/{url}", read(gov.GetCommunityByURL))
	mux.Handle("GET /api/v1/communities/{id}", read(gov.GetCommunity))
	mux.Handle("PATCH /api/v1/communities/{id}", write(gov.UpdateCommunity))
	mux.Handle("DELETE /api/v1/communities/{id}", with(middleware.PermCommunityDelete, gov.DeleteCommunity))
	mux.Handle("POST /api/v1/communities/{id}/deactivate", write(gov.DeactivateCommunity))
	mux.Handle("POST /api/v1/communities/{id}/reactivate", write(gov.ReactivateCommunity))
	mux.Handle("GET /api/v1/communities/{id}/audit", read(gov.AuditLog))

	// Membership
	mux.Handle("GET /api/v1/communities/{id}/members", read(gov.ListMembers))
	mux.Handle("POST /api/v1/communities/{id}/members", write(gov.Join))
	mux.Handle("DELETE /api/v1/communities/{id}/members/me", write(gov.Leave))
	mux.Handle("PATCH /api/v1/communities/{id}/members/{userID}", write(gov.UpdateMemberRole))
	mux.Handle("DELETE /api/v1/communities/{id}/members/{userID}", write(gov.RemoveMember))
	mux.Handle("GET /api/v1/communities/{id}/members/{userID}/restrictions", read(gov.ActiveRestrictions))

	// Moderation
	mux.Handle("GET /api/v1/communities/{id}/restrictions", read(gov.ListRestrictions))
	mux.Handle("POST /api/v1/communities/{id}/restrictions", write(gov.Restrict))
	mux.Handle("DELETE /api/v1/restrictions/{id}", write(gov.LiftRestriction))

	// Ownership transfer
	mux.Handle("GET /api/v1/communities/{id}/transfers", read(gov.ListTransfers))
	mux.Handle("POST /api/v1/communities/{id}/transfers", write(gov.InitiateTransfer))
	mux.Handle("GET /api/v1/transfers/{id}", read(gov.GetTransfer))
	mux.Handle("POST /api/v1/transfers/{id}/respond", write(gov.RespondTransfer))

	// Join requests
	mux.Handle("GET /api/v1/communities/{id}/join-requests", read(gov.ListJoinRequests))
	mux.Handle("POST /api/v1/communities/{id}/join-requests", write(gov.RequestToJoin))
	mux.Handle("POST /api/v1/join-requests/{id}/respond", write(gov.RespondJoinRequest))

	// Catch-all 404
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
}
