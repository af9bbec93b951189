// ABOUTME: JSON API surface: login, agent discovery, agent cards, admin actions
// ABOUTME: Issues the session cookie that the real-time endpoint authenticates with

package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"golang.org/x/crypto/bcrypt"

	"github.com/hearthside/agenthub/internal/auth"
	"github.com/hearthside/agenthub/internal/manifest"
	"github.com/hearthside/agenthub/internal/store"
)

// dummyHash keeps login timing constant when the username does not exist.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

func (g *Gateway) registerAPIRoutes() {
	g.mux.HandleFunc("POST /api/login", g.handleLogin)
	g.mux.HandleFunc("POST /api/logout", g.handleLogout)
	g.mux.HandleFunc("GET /api/agents", g.requireAuth(g.handleListAgents))
	g.mux.HandleFunc("GET /api/agents/{slug}/card", g.requireAuth(g.handleAgentCard))
	g.mux.HandleFunc("POST /api/admin/entitlements", g.requireAdmin(g.handleSetEntitlement))
	g.mux.HandleFunc("POST /api/admin/grants", g.requireAdmin(g.handleGrant))
	g.mux.HandleFunc("POST /api/admin/installs", g.requireAdmin(g.handleInstall))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// requireAuth verifies the session cookie and stores the claims on the
// request context.
func (g *Gateway) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, err := auth.FromRequest(r, g.verifier)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		ac := &auth.AuthContext{
			UserID: claims.UserID,
			OrgID:  claims.OrgID,
			Role:   claims.Role,
			Plan:   claims.Plan,
		}
		next(w, r.WithContext(auth.WithAuth(r.Context(), ac)))
	}
}

// requireAdmin allows platform admins anywhere and org admins within their
// own organization. Ordinary members get 403.
func (g *Gateway) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return g.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		ac := auth.FromContext(r.Context())
		if ac == nil || (!ac.IsPlatformAdmin() && !ac.IsOrgAdmin()) {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next(w, r)
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleLogin checks credentials and issues the signed session cookie.
// Invalid username and invalid password are indistinguishable in both
// response and timing.
func (g *Gateway) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password required")
		return
	}

	user, err := g.store.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Dummy comparison keeps timing constant so usernames
			// cannot be enumerated.
			_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(req.Password))
			writeError(w, http.StatusUnauthorized, "invalid username or password")
			return
		}
		g.logger.Error("user lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	plan, err := g.planForUser(r, user)
	if err != nil {
		g.logger.Error("org lookup failed", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	token, err := g.verifier.Generate(&auth.Claims{
		UserID: user.ID,
		OrgID:  user.OrgID,
		Role:   user.Role,
		Plan:   plan,
	}, g.config.Auth.SessionTTL)
	if err != nil {
		g.logger.Error("token generation failed", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	auth.SetSessionCookie(w, token, g.config.Auth.SessionTTL)
	g.logger.Info("user logged in", "user_id", user.ID, "role", user.Role)
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": user.ID,
		"role":    user.Role,
		"plan":    plan,
	})
}

// planForUser resolves the subscription tier baked into the session token.
// Platform-level users have no org; they get the top tier so discovery does
// not hide anything from them.
func (g *Gateway) planForUser(r *http.Request, user *store.User) (string, error) {
	if user.OrgID == nil {
		return manifest.PlanEnterprise, nil
	}
	org, err := g.store.GetOrganization(r.Context(), *user.OrgID)
	if err != nil {
		return "", err
	}
	return org.Plan, nil
}

func (g *Gateway) handleLogout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type agentSummary struct {
	Slug         string   `json:"slug"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Category     string   `json:"category"`
	Provider     string   `json:"provider"`
	Capabilities []string `json:"capabilities,omitempty"`
	Icon         string   `json:"icon,omitempty"`
	MinPlan      string   `json:"min_plan"`
	Version      string   `json:"version"`
	Tags         []string `json:"tags,omitempty"`
}

// handleListAgents returns the discovery list for the caller: published
// agents their plan reaches and the access lattice allows.
func (g *Gateway) handleListAgents(w http.ResponseWriter, r *http.Request) {
	ac := auth.FromContext(r.Context())

	records, err := g.evaluator.ListAvailable(r.Context(), ac.UserID, ac.OrgID, ac.Role, ac.Plan)
	if err != nil {
		g.logger.Error("discovery failed", "user_id", ac.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	agents := make([]agentSummary, 0, len(records))
	for _, rec := range records {
		agents = append(agents, agentSummary{
			Slug:         rec.Slug,
			Name:         rec.Name,
			Description:  rec.Description,
			Category:     rec.Category,
			Provider:     rec.Provider,
			Capabilities: rec.Capabilities,
			Icon:         rec.Icon,
			MinPlan:      rec.MinPlan,
			Version:      rec.Version,
			Tags:         rec.Tags,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": agents})
}

// handleAgentCard renders the agent's markdown description as an HTML card.
// Subject to the same access lattice as opening a session.
func (g *Gateway) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	ac := auth.FromContext(r.Context())
	slug := r.PathValue("slug")

	allowed, err := g.evaluator.CanAccess(r.Context(), ac.UserID, slug, ac.OrgID, ac.Role)
	if err != nil {
		g.logger.Error("access evaluation failed", "agent", slug, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !allowed {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}

	entry, ok := g.catalog.Get(slug)
	if !ok {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}

	var md strings.Builder
	fmt.Fprintf(&md, "# %s\n\n", entry.Descriptor.Name)
	fmt.Fprintf(&md, "%s\n\n", entry.Descriptor.Description)
	if len(entry.Descriptor.Capabilities) > 0 {
		md.WriteString("## Capabilities\n\n")
		for _, cap := range entry.Descriptor.Capabilities {
			fmt.Fprintf(&md, "- %s\n", cap)
		}
		md.WriteString("\n")
	}
	fmt.Fprintf(&md, "*Provided by %s · version %s*\n", entry.Descriptor.Provider, entry.Descriptor.Version)

	var html bytes.Buffer
	if err := goldmark.Convert([]byte(md.String()), &html); err != nil {
		g.logger.Error("card render failed", "agent", slug, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(html.Bytes())
}

type entitlementRequest struct {
	OrgID     string `json:"org_id"`
	AgentSlug string `json:"agent_slug"`
	Status    string `json:"status"` // "enabled" | "disabled"
}

// handleSetEntitlement enables or disables an agent for an organization.
// Org admins may only change their own organization.
func (g *Gateway) handleSetEntitlement(w http.ResponseWriter, r *http.Request) {
	ac := auth.FromContext(r.Context())

	var req entitlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OrgID == "" || req.AgentSlug == "" {
		writeError(w, http.StatusBadRequest, "org_id and agent_slug required")
		return
	}
	if req.Status != store.EntitlementEnabled && req.Status != store.EntitlementDisabled {
		writeError(w, http.StatusBadRequest, "status must be enabled or disabled")
		return
	}
	if !ac.IsPlatformAdmin() && (ac.OrgID == nil || *ac.OrgID != req.OrgID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	if _, err := g.store.GetAgent(r.Context(), req.AgentSlug); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "agent not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if err := g.store.SetEntitlement(r.Context(), req.OrgID, req.AgentSlug, req.Status, ac.UserID); err != nil {
		g.logger.Error("entitlement update failed", "org_id", req.OrgID, "agent", req.AgentSlug, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	g.logger.Info("entitlement updated",
		"org_id", req.OrgID,
		"agent", req.AgentSlug,
		"status", req.Status,
		"actor", ac.UserID,
	)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type grantRequest struct {
	Action    string `json:"action"` // "grant" | "revoke"
	UserID    string `json:"user_id"`
	AgentSlug string `json:"agent_slug"`
	OrgID     string `json:"org_id"`
	Level     string `json:"level"` // "use" | "manage", grant only
}

// handleGrant grants or revokes a user's access to an agent within an org.
func (g *Gateway) handleGrant(w http.ResponseWriter, r *http.Request) {
	ac := auth.FromContext(r.Context())

	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.AgentSlug == "" || req.OrgID == "" {
		writeError(w, http.StatusBadRequest, "user_id, agent_slug, and org_id required")
		return
	}
	if !ac.IsPlatformAdmin() && (ac.OrgID == nil || *ac.OrgID != req.OrgID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	switch req.Action {
	case "grant", "":
		level := req.Level
		if level == "" {
			level = store.GrantUse
		}
		if level != store.GrantUse && level != store.GrantManage {
			writeError(w, http.StatusBadRequest, "level must be use or manage")
			return
		}
		grant := &store.UserGrant{
			ID:        uuid.NewString(),
			UserID:    req.UserID,
			AgentSlug: req.AgentSlug,
			OrgID:     req.OrgID,
			Level:     level,
			GrantedBy: ac.UserID,
			GrantedAt: time.Now().UTC(),
		}
		if err := g.store.GrantAccess(r.Context(), grant); err != nil {
			g.logger.Error("grant failed", "user_id", req.UserID, "agent", req.AgentSlug, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		g.logger.Info("access granted",
			"user_id", req.UserID,
			"agent", req.AgentSlug,
			"org_id", req.OrgID,
			"level", level,
			"actor", ac.UserID,
		)

	case "revoke":
		if err := g.store.RevokeAccess(r.Context(), req.UserID, req.AgentSlug, req.OrgID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "no active grant")
				return
			}
			g.logger.Error("revoke failed", "user_id", req.UserID, "agent", req.AgentSlug, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		g.logger.Info("access revoked",
			"user_id", req.UserID,
			"agent", req.AgentSlug,
			"org_id", req.OrgID,
			"actor", ac.UserID,
		)

	default:
		writeError(w, http.StatusBadRequest, "action must be grant or revoke")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type installRequest struct {
	OrgID     string `json:"org_id"`
	AgentSlug string `json:"agent_slug"`
}

// handleInstall records an organization opting into an agent.
func (g *Gateway) handleInstall(w http.ResponseWriter, r *http.Request) {
	ac := auth.FromContext(r.Context())

	var req installRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OrgID == "" || req.AgentSlug == "" {
		writeError(w, http.StatusBadRequest, "org_id and agent_slug required")
		return
	}
	if !ac.IsPlatformAdmin() && (ac.OrgID == nil || *ac.OrgID != req.OrgID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	if _, err := g.store.GetAgent(r.Context(), req.AgentSlug); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "agent not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	install := &store.AgentInstall{
		ID:          uuid.NewString(),
		OrgID:       req.OrgID,
		AgentSlug:   req.AgentSlug,
		InstalledBy: ac.UserID,
		Active:      true,
		InstalledAt: time.Now().UTC(),
	}
	if err := g.store.RecordInstall(r.Context(), install); err != nil {
		g.logger.Error("install record failed", "org_id", req.OrgID, "agent", req.AgentSlug, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	g.logger.Info("agent installed", "org_id", req.OrgID, "agent", req.AgentSlug, "actor", ac.UserID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
