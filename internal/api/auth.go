// Package api implements the HTTP surface of the flight planner service.
package api

import (
	"net/http"
	"strings"

	"morapack/internal/auth"
)

const defaultTenant = "t_demo"

// getPrincipal extracts tenant and role.
// - If Authorization: Bearer is present, uses the configured verifier.
// - Else, in dev mode only, falls back to X-Tenant-Id and X-Role headers.
func (s *Server) getPrincipal(r *http.Request) (auth.Principal, bool) {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") && s.Auth != nil {
		tok := strings.TrimSpace(authz[len("Bearer "):])
		pr, err := s.Auth.Verify(tok)
		return pr, err == nil
	}
	if s.Auth != nil && s.Auth.Mode != "dev" {
		return auth.Principal{}, false
	}
	tenant := r.Header.Get("X-Tenant-Id")
	if tenant == "" {
		tenant = defaultTenant
	}
	role := strings.ToLower(r.Header.Get("X-Role"))
	if role == "" {
		role = auth.RoleAdmin
	}
	return auth.Principal{Tenant: tenant, Role: role}, true
}

// principal writes 401/403 and returns false when the caller may not proceed.
func (s *Server) principal(w http.ResponseWriter, r *http.Request, allow func(auth.Principal) bool) (auth.Principal, bool) {
	pr, ok := s.getPrincipal(r)
	if !ok {
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", "valid bearer token required", r.URL.Path)
		return pr, false
	}
	if allow != nil && !allow(pr) {
		writeProblem(w, http.StatusForbidden, "Forbidden", "role "+pr.Role+" not permitted", r.URL.Path)
		return pr, false
	}
	return pr, true
}

func anyRole(auth.Principal) bool    { return true }
func planners(p auth.Principal) bool { return p.CanPlan() }
func admins(p auth.Principal) bool   { return p.IsAdmin() }
