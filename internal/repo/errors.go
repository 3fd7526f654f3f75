package repo

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when no row matches the lookup.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique identifier (email, phone) is already taken.
	ErrDuplicate = errors.New("duplicate identifier")
	// ErrStale is returned when a save lost a concurrent update race on the record version.
	ErrStale = errors.New("stale record version")
)

const pqUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}
