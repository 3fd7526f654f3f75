package access

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/carmarket/server/internal/model"
	"github.com/casbin/casbin/v2"
	casbinmodel "github.com/casbin/casbin/v2/model"
)

//go:embed model.conf
var casbinModelContent string

var (
	// ErrNoPermission means the role holds neither an own nor an any grant for the request.
	ErrNoPermission = errors.New("no permission")
	// ErrNotOwner means only an own grant applies and the actor does not own the target.
	ErrNotOwner = errors.New("not owner")
)

// Ownership answers whether actorID owns the record targetID.
type Ownership interface {
	IsOwnedBy(ctx context.Context, targetID, actorID string) (bool, error)
}

// OwnershipFunc adapts a function to Ownership.
type OwnershipFunc func(ctx context.Context, targetID, actorID string) (bool, error)

func (f OwnershipFunc) IsOwnedBy(ctx context.Context, targetID, actorID string) (bool, error) {
	return f(ctx, targetID, actorID)
}

// Self owns identity-scoped resources: the user record, its codes and password.
var Self Ownership = OwnershipFunc(func(_ context.Context, targetID, actorID string) (bool, error) {
	return targetID != "" && targetID == actorID, nil
})

// Request is one access decision.
type Request struct {
	Role     model.Role
	Action   Action
	Resource Resource
	// Scope restricts evaluation to one scope. ScopeNone prefers any over own.
	Scope    Scope
	ActorID  string
	TargetID string
	Owner    Ownership
}

// Evaluator decides requests against an immutable grant table.
type Evaluator struct {
	enforcer *casbin.Enforcer
	grants   []Grant
}

// NewEvaluator builds the grant enforcer. Duplicate grants are collapsed.
func NewEvaluator(grants []Grant) (*Evaluator, error) {
	m, err := casbinmodel.NewModelFromString(casbinModelContent)
	if err != nil {
		return nil, fmt.Errorf("parse casbin model: %w", err)
	}
	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create casbin enforcer: %w", err)
	}

	seen := make(map[Grant]bool, len(grants))
	var rules [][]string
	var kept []Grant
	for _, g := range grants {
		if err := g.Validate(); err != nil {
			return nil, err
		}
		if seen[g] {
			continue
		}
		seen[g] = true
		kept = append(kept, g)
		rules = append(rules, []string{string(g.Role), string(g.Resource), string(g.Action), string(g.Scope)})
	}
	if len(rules) > 0 {
		if _, err := enforcer.AddPolicies(rules); err != nil {
			return nil, fmt.Errorf("load grants: %w", err)
		}
	}
	return &Evaluator{enforcer: enforcer, grants: kept}, nil
}

// Grants returns a copy of the loaded grant table.
func (e *Evaluator) Grants() []Grant {
	return append([]Grant(nil), e.grants...)
}

// Has reports whether role holds the grant (action, resource, scope).
func (e *Evaluator) Has(role model.Role, action Action, resource Resource, scope Scope) bool {
	ok, err := e.enforcer.Enforce(string(role), string(resource), string(action), string(scope))
	return err == nil && ok
}

// Evaluate returns the scope under which req is allowed, or ErrNoPermission / ErrNotOwner.
// The ownership predicate is the only I/O and runs only when an own grant decides the request.
func (e *Evaluator) Evaluate(ctx context.Context, req Request) (Scope, error) {
	hasAny := e.Has(req.Role, req.Action, req.Resource, ScopeAny)
	hasOwn := e.Has(req.Role, req.Action, req.Resource, ScopeOwn)

	if hasAny && req.Scope != ScopeOwn {
		return ScopeAny, nil
	}
	if !hasOwn || req.Scope == ScopeAny {
		return ScopeNone, ErrNoPermission
	}
	if req.Owner == nil {
		return ScopeNone, ErrNotOwner
	}
	owned, err := req.Owner.IsOwnedBy(ctx, req.TargetID, req.ActorID)
	if err != nil {
		return ScopeNone, fmt.Errorf("ownership check for %s: %w", req.Resource, err)
	}
	if !owned {
		return ScopeNone, ErrNotOwner
	}
	return ScopeOwn, nil
}
