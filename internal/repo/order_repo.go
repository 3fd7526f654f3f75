package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/carmarket/server/internal/model"
	"github.com/google/uuid"
)

// OrderRepo is the slice of order persistence the access layer needs:
// reads, removal, and the ownership predicate used for own-scoped grants.
type OrderRepo interface {
	Get(ctx context.Context, id uuid.UUID) (model.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.Order, error)
	Delete(ctx context.Context, id uuid.UUID) error
	IsOwnedBy(ctx context.Context, orderID, userID string) (bool, error)
}

type orderRepo struct {
	db *sql.DB
}

// NewOrderRepo creates a new OrderRepo instance
func NewOrderRepo(db *sql.DB) OrderRepo {
	return &orderRepo{db: db}
}

// Get retrieves an order by ID
func (r *orderRepo) Get(ctx context.Context, id uuid.UUID) (model.Order, error) {
	var o model.Order
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, car_id, purpose, status, created_at
		FROM orders
		WHERE id = $1
	`, id).Scan(&o.ID, &o.UserID, &o.CarID, &o.Purpose, &o.Status, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Order{}, ErrNotFound
		}
		return model.Order{}, fmt.Errorf("failed to query order: %w", err)
	}
	return o, nil
}

// ListByUser returns a page of the user's orders, newest first
func (r *orderRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, car_id, purpose, status, created_at
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var out []model.Order
	for rows.Next() {
		var o model.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.CarID, &o.Purpose, &o.Status, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate orders: %w", err)
	}
	return out, nil
}

// Delete removes an order; ErrNotFound when it does not exist
func (r *orderRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// IsOwnedBy reports whether orderID belongs to userID. Malformed IDs own nothing.
func (r *orderRepo) IsOwnedBy(ctx context.Context, orderID, userID string) (bool, error) {
	oid, err := uuid.Parse(orderID)
	if err != nil {
		return false, nil
	}
	uid, err := uuid.Parse(userID)
	if err != nil {
		return false, nil
	}

	var owned bool
	err = r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1 AND user_id = $2)
	`, oid, uid).Scan(&owned)
	if err != nil {
		return false, fmt.Errorf("failed to check order owner: %w", err)
	}
	return owned, nil
}

// MemoryOrderRepo is an in-process OrderRepo used in tests.
type MemoryOrderRepo struct {
	mu     sync.RWMutex
	orders map[uuid.UUID]model.Order
}

// NewMemoryOrderRepo creates an in-memory order store seeded with orders.
func NewMemoryOrderRepo(orders ...model.Order) *MemoryOrderRepo {
	r := &MemoryOrderRepo{orders: make(map[uuid.UUID]model.Order)}
	for _, o := range orders {
		r.orders[o.ID] = o
	}
	return r
}

// Put stores or replaces an order.
func (r *MemoryOrderRepo) Put(o model.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = o
}

func (r *MemoryOrderRepo) Get(_ context.Context, id uuid.UUID) (model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return model.Order{}, ErrNotFound
	}
	return o, nil
}

func (r *MemoryOrderRepo) ListByUser(_ context.Context, userID uuid.UUID, limit, offset int) ([]model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []model.Order
	for _, o := range r.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryOrderRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[id]; !ok {
		return ErrNotFound
	}
	delete(r.orders, id)
	return nil
}

func (r *MemoryOrderRepo) IsOwnedBy(_ context.Context, orderID, userID string) (bool, error) {
	oid, err := uuid.Parse(orderID)
	if err != nil {
		return false, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[oid]
	return ok && o.UserID.String() == userID, nil
}
