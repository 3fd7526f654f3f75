package auth

import "errors"

// Domain error kinds. All are terminal: callers should not retry them.
// Match with errors.Is; the HTTP layer decides which ones to blur together.
var (
	ErrDuplicateIdentifier = errors.New("email or phone already in use")
	ErrNotFound            = errors.New("user not found")
	ErrBadCredentials      = errors.New("bad credentials")
	ErrNoActiveCode        = errors.New("no active code")
	ErrCodeExpired         = errors.New("code expired")
	ErrCodeInvalid         = errors.New("code invalid")
	ErrNoDestination       = errors.New("no destination for channel")
	ErrDelivery            = errors.New("code delivery failed")
)
