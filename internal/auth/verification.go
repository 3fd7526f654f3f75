package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/carmarket/server/internal/metrics"
	"github.com/carmarket/server/internal/model"
	"github.com/carmarket/server/internal/repo"
)

// VerificationEngine issues, validates and expires one-time codes stored on user records.
// Each purpose has a single slot per user, so issuing a code always replaces the previous one.
type VerificationEngine struct {
	users    repo.UserRepo
	sender   CodeSender
	policies map[model.Purpose]CodePolicy
	salt     string
	now      func() time.Time
	generate CodeGenerator
	log      *slog.Logger
	metrics  *metrics.Metrics
}

// EngineOption customizes a VerificationEngine.
type EngineOption func(*VerificationEngine)

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) EngineOption {
	return func(e *VerificationEngine) { e.now = now }
}

// WithGenerator overrides code generation.
func WithGenerator(g CodeGenerator) EngineOption {
	return func(e *VerificationEngine) { e.generate = g }
}

// WithPolicy overrides the policy for one purpose; zero fields keep the defaults.
func WithPolicy(p model.Purpose, pol CodePolicy) EngineOption {
	return func(e *VerificationEngine) { e.policies[p] = pol.withDefaults(e.policies[p]) }
}

// WithSender sets the delivery collaborator.
func WithSender(s CodeSender) EngineOption {
	return func(e *VerificationEngine) { e.sender = s }
}

// WithEngineLogger sets the engine logger.
func WithEngineLogger(l *slog.Logger) EngineOption {
	return func(e *VerificationEngine) { e.log = l }
}

// WithEngineMetrics sets the metrics sink.
func WithEngineMetrics(m *metrics.Metrics) EngineOption {
	return func(e *VerificationEngine) { e.metrics = m }
}

// NewVerificationEngine creates an engine storing codes through users.
// salt is mixed into code digests so stored digests cannot be brute-forced offline without it.
func NewVerificationEngine(users repo.UserRepo, salt string, opts ...EngineOption) *VerificationEngine {
	e := &VerificationEngine{
		users:    users,
		policies: DefaultCodePolicies(),
		salt:     salt,
		now:      time.Now,
		generate: GenerateCode,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the effective policy for a purpose.
func (e *VerificationEngine) Policy(p model.Purpose) CodePolicy {
	return e.policies[p]
}

// Issue generates a code for purpose p, replaces any previous code for p on u,
// persists u and returns the plaintext code for delivery.
func (e *VerificationEngine) Issue(ctx context.Context, u *model.User, p model.Purpose) (string, error) {
	next := u.Clone()
	code, err := e.prepare(&next, p)
	if err != nil {
		return "", err
	}
	if err := e.users.Save(ctx, &next); err != nil {
		return "", fmt.Errorf("save %s code: %w", p, err)
	}
	*u = next
	return code, nil
}

// Validate checks supplied against the active code for p. Expiry is checked before the value,
// so an expired code is reported as expired even when it matches. On success the code is
// consumed, the channel is marked verified for verification purposes, and u is persisted.
// A wrong value is counted on the code; after the policy's MaxAttempts misses the code is
// burned and later calls get ErrNoActiveCode.
func (e *VerificationEngine) Validate(ctx context.Context, u *model.User, p model.Purpose, supplied string) error {
	next := u.Clone()
	if err := e.consume(&next, p, supplied); err != nil {
		if errors.Is(err, ErrCodeInvalid) {
			return e.saveMiss(ctx, u, &next, p)
		}
		return err
	}
	if err := e.users.Save(ctx, &next); err != nil {
		return fmt.Errorf("save consumed %s code: %w", p, err)
	}
	*u = next
	return nil
}

// Resend issues a fresh code for p and delivers it to the purpose's channel.
// Password-reset codes go to the e-mail when present, otherwise the phone.
func (e *VerificationEngine) Resend(ctx context.Context, u *model.User, p model.Purpose) error {
	ch, ok := p.Channel()
	if !ok {
		channels := u.Channels()
		if len(channels) == 0 {
			return ErrNoDestination
		}
		ch = channels[0]
	}
	return e.Send(ctx, u, p, ch)
}

// Send issues a fresh code for p and delivers it over ch. A delivery failure is
// returned wrapped in ErrDelivery; the new code stays persisted either way.
func (e *VerificationEngine) Send(ctx context.Context, u *model.User, p model.Purpose, ch model.Channel) error {
	if _, ok := u.Destination(ch); !ok {
		return ErrNoDestination
	}
	code, err := e.Issue(ctx, u, p)
	if err != nil {
		return err
	}
	return e.deliver(ctx, u, ch, code)
}

// prepare stores a new code for p on u without persisting it.
func (e *VerificationEngine) prepare(u *model.User, p model.Purpose) (string, error) {
	pol, ok := e.policies[p]
	if !ok {
		return "", fmt.Errorf("unknown code purpose %q", p)
	}
	code, err := e.generate(pol)
	if err != nil {
		return "", err
	}
	now := e.now().UTC()
	u.SetCode(model.Code{
		Purpose:   p,
		Digest:    hashCodeHex(u.ID.String(), p, code, e.salt),
		IssuedAt:  now,
		ExpiresAt: now.Add(pol.TTL),
	})
	e.metrics.CodeIssued(string(p))
	return code, nil
}

// consume applies a validation to u in memory.
func (e *VerificationEngine) consume(u *model.User, p model.Purpose, supplied string) (err error) {
	defer func() { e.metrics.CodeValidated(string(p), validationResult(err)) }()

	c, ok := u.Code(p)
	if !ok || c.Consumed {
		return ErrNoActiveCode
	}
	if c.Expired(e.now()) {
		return ErrCodeExpired
	}
	if !digestsEqual(hashCodeHex(u.ID.String(), p, supplied, e.salt), c.Digest) {
		c.Attempts++
		if limit := e.policies[p].MaxAttempts; limit > 0 && c.Attempts >= limit {
			c.Consumed = true
		}
		u.SetCode(c)
		return ErrCodeInvalid
	}

	c.Consumed = true
	u.SetCode(c)
	if ch, ok := p.Channel(); ok {
		u.MarkVerified(ch)
	}
	return nil
}

// saveMiss persists the miss counted on next and reports ErrCodeInvalid.
func (e *VerificationEngine) saveMiss(ctx context.Context, u, next *model.User, p model.Purpose) error {
	if err := e.users.Save(ctx, next); err != nil {
		return fmt.Errorf("save %s attempt: %w", p, err)
	}
	*u = *next
	if c, _ := u.Code(p); c.Consumed {
		e.log.WarnContext(ctx, "code burned after too many attempts", "user_id", u.ID.String(), "purpose", string(p))
	}
	return ErrCodeInvalid
}

func (e *VerificationEngine) deliver(ctx context.Context, u *model.User, ch model.Channel, code string) error {
	if e.sender == nil {
		return nil
	}
	dest, _ := u.Destination(ch)
	if err := e.sender.Send(ctx, ch, dest, code); err != nil {
		e.log.WarnContext(ctx, "code delivery failed",
			"user_id", u.ID.String(), "channel", string(ch), "destination", MaskDestination(dest), "error", err)
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	return nil
}

func validationResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNoActiveCode):
		return "no_active_code"
	case errors.Is(err, ErrCodeExpired):
		return "expired"
	case errors.Is(err, ErrCodeInvalid):
		return "invalid"
	default:
		return "error"
	}
}
