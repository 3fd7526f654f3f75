package repo

import (
	"context"
	"sync"
	"time"

	"github.com/carmarket/server/internal/model"
	"github.com/google/uuid"
)

// MemoryUserRepo is an in-process UserRepo used in tests.
// It applies the same uniqueness and version rules as the Postgres store.
type MemoryUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]model.User
	now   func() time.Time
}

// NewMemoryUserRepo creates an empty in-memory user store.
func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{
		users: make(map[uuid.UUID]model.User),
		now:   time.Now,
	}
}

func (r *MemoryUserRepo) FindByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := u.Clone()
	return &out, nil
}

func (r *MemoryUserRepo) FindByIdentifier(_ context.Context, identifier string) (*model.User, error) {
	identifier = model.NormalizeIdentifier(identifier)
	if identifier == "" {
		return nil, ErrNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if (u.Email != nil && *u.Email == identifier) || (u.Phone != nil && u.Phone.Full == identifier) {
			out := u.Clone()
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryUserRepo) Create(_ context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[u.ID]; exists {
		return ErrDuplicate
	}
	if r.conflictsLocked(u) {
		return ErrDuplicate
	}

	now := r.now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	u.Version = 1
	r.users[u.ID] = u.Clone()
	return nil
}

func (r *MemoryUserRepo) Save(_ context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.users[u.ID]
	if !ok || stored.Version != u.Version {
		return ErrStale
	}
	if r.conflictsLocked(u) {
		return ErrDuplicate
	}

	u.Version++
	u.UpdatedAt = r.now().UTC()
	r.users[u.ID] = u.Clone()
	return nil
}

// conflictsLocked reports whether another record already holds u's email or phone.
func (r *MemoryUserRepo) conflictsLocked(u *model.User) bool {
	for id, other := range r.users {
		if id == u.ID {
			continue
		}
		if u.Email != nil && other.Email != nil && *u.Email == *other.Email {
			return true
		}
		if u.Phone != nil && other.Phone != nil && u.Phone.Full == other.Phone.Full {
			return true
		}
	}
	return false
}

// Len returns the number of stored users.
func (r *MemoryUserRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}
