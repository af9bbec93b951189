// ABOUTME: Multi-layer authorization evaluator for agent access
// ABOUTME: Composes publication, platform-admin, entitlement, and per-user grant gates

package access

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hearthside/agenthub/internal/store"
)

// AgentReader is the slice of the store the evaluator needs for agent rows.
type AgentReader interface {
	GetAgent(ctx context.Context, slug string) (*store.AgentRecord, error)
	ListAgents(ctx context.Context) ([]*store.AgentRecord, error)
}

// EntitlementReader reads organization entitlements.
type EntitlementReader interface {
	GetEntitlement(ctx context.Context, orgID, agentSlug string) (*store.OrgEntitlement, error)
}

// GrantReader reads per-user grants.
type GrantReader interface {
	GetActiveGrant(ctx context.Context, userID, agentSlug, orgID string) (*store.UserGrant, error)
}

// Evaluator decides whether a user may access an agent. It composes four
// independent gates, short-circuiting on the first applicable one. Denials
// carry no detail about which gate failed.
type Evaluator struct {
	agents       AgentReader
	entitlements EntitlementReader
	grants       GrantReader
	logger       *slog.Logger
}

// NewEvaluator creates an Evaluator backed by the given store slices.
func NewEvaluator(agents AgentReader, entitlements EntitlementReader, grants GrantReader, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		agents:       agents,
		entitlements: entitlements,
		grants:       grants,
		logger:       logger.With("component", "access"),
	}
}

// CanAccess evaluates the access lattice for one (user, agent, org, role)
// combination. orgID is nil for platform-level callers operating outside any
// tenant. The result is a bare boolean: callers must not surface which gate
// denied.
//
// Gate order, cheapest and most decisive first:
//
//  1. Unpublished agent: deny unconditionally.
//  2. Platform admin outside any org: allow any published agent.
//  3. Org context: the org must hold an enabled entitlement, or deny.
//  4. Org admin role: allow (entitlement confirmed by gate 3).
//  5. Everyone else needs an active user grant.
func (e *Evaluator) CanAccess(ctx context.Context, userID, agentSlug string, orgID *string, role string) (bool, error) {
	agent, err := e.agents.GetAgent(ctx, agentSlug)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	// Gate 1: publication overrides everything.
	if !agent.Published {
		return false, nil
	}

	// Gate 2: platform admins outside any org context see every published agent.
	if orgID == nil {
		return role == store.RolePlatformAdmin, nil
	}

	// Gate 3: tenant policy gates all tenant users.
	ent, err := e.entitlements.GetEntitlement(ctx, *orgID, agentSlug)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if ent.Status != store.EntitlementEnabled {
		return false, nil
	}

	// Gate 4: org admins bypass per-user grants.
	if role == store.RoleOrgAdmin || role == store.RolePlatformAdmin {
		return true, nil
	}

	// Gate 5: ordinary members need an explicit active grant.
	_, err = e.grants.GetActiveGrant(ctx, userID, agentSlug, *orgID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListAvailable returns the agents offered to a caller for discovery:
// published agents whose minimum plan the caller's plan satisfies, narrowed
// to those CanAccess allows. The plan filter runs first so callers never see
// agents their subscription cannot reach.
func (e *Evaluator) ListAvailable(ctx context.Context, userID string, orgID *string, role, plan string) ([]*store.AgentRecord, error) {
	agents, err := e.agents.ListAgents(ctx)
	if err != nil {
		return nil, err
	}

	var available []*store.AgentRecord
	for _, agent := range agents {
		if !agent.Published {
			continue
		}
		if !MeetsPlan(plan, agent.MinPlan) {
			continue
		}
		ok, err := e.CanAccess(ctx, userID, agent.Slug, orgID, role)
		if err != nil {
			return nil, err
		}
		if ok {
			available = append(available, agent)
		}
	}

	e.logger.Debug("discovery list computed",
		"user_id", userID,
		"role", role,
		"plan", plan,
		"offered", len(available),
	)
	return available, nil
}
