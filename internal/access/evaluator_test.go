package access

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/carmarket/server/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingOwner struct {
	calls int
	owned bool
	err   error
}

func (o *countingOwner) IsOwnedBy(context.Context, string, string) (bool, error) {
	o.calls++
	return o.owned, o.err
}

func newDefault(t *testing.T) *Evaluator {
	t.Helper()
	e, err := NewEvaluator(DefaultGrants())
	require.NoError(t, err)
	return e
}

func TestEvaluate_AnyGrantSkipsOwnership(t *testing.T) {
	e := newDefault(t)
	owner := &countingOwner{owned: false}

	scope, err := e.Evaluate(context.Background(), Request{
		Role: model.RoleAdmin, Action: ActionUpdate, Resource: ResourceOrder,
		ActorID: "admin", TargetID: "order-x", Owner: owner,
	})
	require.NoError(t, err)
	assert.Equal(t, ScopeAny, scope)
	assert.Zero(t, owner.calls)
}

func TestEvaluate_OwnGrant(t *testing.T) {
	e, err := NewEvaluator([]Grant{own("clerk", ActionUpdate, ResourceOrder)})
	require.NoError(t, err)

	owner := &countingOwner{owned: true}
	scope, err := e.Evaluate(context.Background(), Request{
		Role: "clerk", Action: ActionUpdate, Resource: ResourceOrder, ActorID: "u1", TargetID: "o1", Owner: owner,
	})
	require.NoError(t, err)
	assert.Equal(t, ScopeOwn, scope)
	assert.Equal(t, 1, owner.calls)

	owner.owned = false
	_, err = e.Evaluate(context.Background(), Request{
		Role: "clerk", Action: ActionUpdate, Resource: ResourceOrder, ActorID: "u1", TargetID: "o2", Owner: owner,
	})
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestEvaluate_NoGrantNeverCallsPredicate(t *testing.T) {
	e := newDefault(t)
	owner := &countingOwner{owned: true}

	_, err := e.Evaluate(context.Background(), Request{
		Role: model.RoleUser, Action: ActionUpdate, Resource: ResourceOrder, ActorID: "u1", TargetID: "o1", Owner: owner,
	})
	assert.ErrorIs(t, err, ErrNoPermission)
	assert.Zero(t, owner.calls)
}

func TestEvaluate_UserReadsOrderOfAnotherUser(t *testing.T) {
	e := newDefault(t)
	orders := OwnershipFunc(func(_ context.Context, targetID, actorID string) (bool, error) {
		return targetID == "X" && actorID == "owner", nil
	})

	_, err := e.Evaluate(context.Background(), Request{
		Role: model.RoleUser, Action: ActionRead, Resource: ResourceOrder, ActorID: "someone-else", TargetID: "X", Owner: orders,
	})
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestEvaluate_ScopeHint(t *testing.T) {
	e := newDefault(t)
	owner := &countingOwner{owned: false}
	req := Request{Role: model.RoleAdmin, Action: ActionRead, Resource: ResourceUser, ActorID: "a", TargetID: "b", Owner: owner}

	req.Scope = ScopeOwn
	_, err := e.Evaluate(context.Background(), req)
	assert.ErrorIs(t, err, ErrNotOwner)
	assert.Equal(t, 1, owner.calls)

	req.Scope = ScopeAny
	scope, err := e.Evaluate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, ScopeAny, scope)

	req.Role = model.RoleUser
	_, err = e.Evaluate(context.Background(), req)
	assert.ErrorIs(t, err, ErrNoPermission)
}

func TestEvaluate_MissingPredicate(t *testing.T) {
	e := newDefault(t)
	_, err := e.Evaluate(context.Background(), Request{Role: model.RoleUser, Action: ActionRead, Resource: ResourceUser, ActorID: "a", TargetID: "a"})
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestEvaluate_PredicateError(t *testing.T) {
	e := newDefault(t)
	boom := errors.New("db down")
	_, err := e.Evaluate(context.Background(), Request{
		Role: model.RoleUser, Action: ActionRead, Resource: ResourceOrder, ActorID: "a", TargetID: "o", Owner: &countingOwner{err: boom},
	})
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNotOwner)
}

func TestEvaluate_UnknownRoleHasNoGrants(t *testing.T) {
	e := newDefault(t)
	_, err := e.Evaluate(context.Background(), Request{Role: "guest", Action: ActionRead, Resource: ResourceUser, Owner: Self})
	assert.ErrorIs(t, err, ErrNoPermission)
}

func TestEvaluate_Deterministic(t *testing.T) {
	e := newDefault(t)
	req := Request{Role: model.RoleUser, Action: ActionUpdate, Resource: ResourcePassword, ActorID: "u", TargetID: "u", Owner: Self}
	for i := 0; i < 5; i++ {
		scope, err := e.Evaluate(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, ScopeOwn, scope)
	}
}

func TestSelf(t *testing.T) {
	ok, err := Self.IsOwnedBy(context.Background(), "u1", "u1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = Self.IsOwnedBy(context.Background(), "u1", "u2")
	assert.False(t, ok)
	ok, _ = Self.IsOwnedBy(context.Background(), "", "")
	assert.False(t, ok)
}

func TestDefaultGrants(t *testing.T) {
	e := newDefault(t)

	assert.True(t, e.Has(model.RoleUser, ActionCreate, ResourceFavorites, ScopeOwn))
	assert.False(t, e.Has(model.RoleUser, ActionCreate, ResourceNotification, ScopeOwn))
	assert.True(t, e.Has(model.RoleAdmin, ActionCreate, ResourceNotification, ScopeAny))
	assert.False(t, e.Has(model.RoleAdmin, ActionDelete, ResourceUser, ScopeAny))

	for _, g := range e.Grants() {
		if g.Role == model.RoleUser {
			assert.True(t, e.Has(model.RoleAdmin, g.Action, g.Resource, g.Scope), "admin should inherit %s", g)
			assert.Equal(t, ScopeOwn, g.Scope)
		}
	}
}

func TestNewEvaluator_CollapsesDuplicates(t *testing.T) {
	g := own(model.RoleUser, ActionRead, ResourceUser)
	e, err := NewEvaluator([]Grant{g, g, anyOf(model.RoleAdmin, ActionRead, ResourceUser)})
	require.NoError(t, err)
	assert.Len(t, e.Grants(), 2)
	assert.True(t, e.Has(model.RoleAdmin, ActionRead, ResourceUser, ScopeAny))
}

func TestNewEvaluator_RejectsInvalidGrant(t *testing.T) {
	_, err := NewEvaluator([]Grant{{Role: model.RoleUser, Action: "fly", Resource: ResourceUser, Scope: ScopeOwn}})
	assert.Error(t, err)
}

func TestParseGrants(t *testing.T) {
	in := strings.Join([]string{
		"# role,action,resource,scope",
		"user, read, order, own",
		"admin,update,order,any",
	}, "\n")

	grants, err := ParseGrants(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []Grant{
		own(model.RoleUser, ActionRead, ResourceOrder),
		anyOf(model.RoleAdmin, ActionUpdate, ResourceOrder),
	}, grants)

	_, err = ParseGrants(strings.NewReader("user,read,order,mine\n"))
	assert.Error(t, err)
	_, err = ParseGrants(strings.NewReader("user,read,order\n"))
	assert.Error(t, err)
}

func TestLoadGrantsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grants.csv")
	require.NoError(t, os.WriteFile(path, []byte("user,read,user,own\n"), 0o600))

	grants, err := LoadGrantsFile(path)
	require.NoError(t, err)
	assert.Len(t, grants, 1)

	_, err = LoadGrantsFile(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}
