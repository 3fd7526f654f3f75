package access

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/carmarket/server/internal/model"
)

// Action is a verb in a grant.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Resource names a kind of record guarded by the evaluator.
type Resource string

const (
	ResourceUser                  Resource = "user"
	ResourceEmailVerificationCode Resource = "emailVerificationCode"
	ResourcePhoneVerificationCode Resource = "phoneVerificationCode"
	ResourcePassword              Resource = "password"
	ResourceNotification          Resource = "notification"
	ResourceFavorites             Resource = "favorites"
	ResourceOrder                 Resource = "order"
)

// Scope is either own (records the actor owns) or any (every record).
type Scope string

const (
	ScopeNone Scope = ""
	ScopeOwn  Scope = "own"
	ScopeAny  Scope = "any"
)

// Grant permits role to perform Action on Resource within Scope.
type Grant struct {
	Role     model.Role
	Action   Action
	Resource Resource
	Scope    Scope
}

func (g Grant) String() string {
	return fmt.Sprintf("%s:%s:%s:%s", g.Role, g.Action, g.Resource, g.Scope)
}

var actions = map[Action]bool{ActionCreate: true, ActionRead: true, ActionUpdate: true, ActionDelete: true}

var resources = map[Resource]bool{
	ResourceUser:                  true,
	ResourceEmailVerificationCode: true,
	ResourcePhoneVerificationCode: true,
	ResourcePassword:              true,
	ResourceNotification:          true,
	ResourceFavorites:             true,
	ResourceOrder:                 true,
}

// Validate rejects grants naming unknown actions, resources or scopes.
func (g Grant) Validate() error {
	if strings.TrimSpace(string(g.Role)) == "" {
		return errors.New("grant: empty role")
	}
	if !actions[g.Action] {
		return fmt.Errorf("grant %s: unknown action %q", g, g.Action)
	}
	if !resources[g.Resource] {
		return fmt.Errorf("grant %s: unknown resource %q", g, g.Resource)
	}
	if g.Scope != ScopeOwn && g.Scope != ScopeAny {
		return fmt.Errorf("grant %s: scope must be own or any", g)
	}
	return nil
}

func own(role model.Role, a Action, r Resource) Grant {
	return Grant{Role: role, Action: a, Resource: r, Scope: ScopeOwn}
}

func anyOf(role model.Role, a Action, r Resource) Grant {
	return Grant{Role: role, Action: a, Resource: r, Scope: ScopeAny}
}

func selfService(role model.Role) []Grant {
	return []Grant{
		own(role, ActionRead, ResourceUser),
		own(role, ActionUpdate, ResourceUser),
		own(role, ActionRead, ResourceEmailVerificationCode),
		own(role, ActionUpdate, ResourceEmailVerificationCode),
		own(role, ActionRead, ResourcePhoneVerificationCode),
		own(role, ActionUpdate, ResourcePhoneVerificationCode),
		own(role, ActionUpdate, ResourcePassword),
		own(role, ActionRead, ResourceNotification),
		own(role, ActionDelete, ResourceNotification),
		own(role, ActionCreate, ResourceFavorites),
		own(role, ActionRead, ResourceFavorites),
		own(role, ActionDelete, ResourceFavorites),
		own(role, ActionRead, ResourceOrder),
		own(role, ActionDelete, ResourceOrder),
	}
}

// DefaultGrants returns the built-in grant table.
func DefaultGrants() []Grant {
	grants := selfService(model.RoleUser)
	grants = append(grants, selfService(model.RoleAdmin)...)
	return append(grants,
		anyOf(model.RoleAdmin, ActionRead, ResourceUser),
		anyOf(model.RoleAdmin, ActionUpdate, ResourceUser),
		anyOf(model.RoleAdmin, ActionCreate, ResourceNotification),
		anyOf(model.RoleAdmin, ActionRead, ResourceOrder),
		anyOf(model.RoleAdmin, ActionUpdate, ResourceOrder),
		anyOf(model.RoleAdmin, ActionDelete, ResourceOrder),
	)
}

// ParseGrants reads CSV rows of role,action,resource,scope. Lines starting with # are skipped.
func ParseGrants(r io.Reader) ([]Grant, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = 4
	cr.TrimLeadingSpace = true

	var grants []Grant
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read grants: %w", err)
		}
		g := Grant{
			Role:     model.Role(strings.TrimSpace(rec[0])),
			Action:   Action(strings.TrimSpace(rec[1])),
			Resource: Resource(strings.TrimSpace(rec[2])),
			Scope:    Scope(strings.TrimSpace(rec[3])),
		}
		if err := g.Validate(); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, nil
}

// LoadGrantsFile reads a grant table from path.
func LoadGrantsFile(path string) ([]Grant, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open grants file: %w", err)
	}
	defer f.Close()
	return ParseGrants(f)
}
