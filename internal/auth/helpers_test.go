package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/carmarket/server/internal/model"
	"github.com/carmarket/server/internal/repo"
	"github.com/carmarket/server/internal/security/password"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fixedCodes returns the given codes in order, repeating the last one.
func fixedCodes(codes ...string) CodeGenerator {
	var mu sync.Mutex
	i := 0
	return func(CodePolicy) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		c := codes[i]
		if i < len(codes)-1 {
			i++
		}
		return c, nil
	}
}

type sentCode struct {
	Channel     model.Channel
	Destination string
	Code        string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentCode
	err  error
}

func (s *recordingSender) Send(_ context.Context, ch model.Channel, dest, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentCode{Channel: ch, Destination: dest, Code: code})
	return nil
}

func (s *recordingSender) Sent() []sentCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentCode(nil), s.sent...)
}

var errGatewayDown = errors.New("gateway down")

type fixture struct {
	clock  *fakeClock
	users  *repo.MemoryUserRepo
	sender *recordingSender
	engine *VerificationEngine
	svc    *Service
}

func newFixture(t *testing.T, codes ...string) *fixture {
	t.Helper()
	if len(codes) == 0 {
		codes = []string{"482913"}
	}
	f := &fixture{
		clock:  newFakeClock(),
		users:  repo.NewMemoryUserRepo(),
		sender: &recordingSender{},
	}
	f.engine = NewVerificationEngine(f.users, "test-salt",
		WithClock(f.clock.Now),
		WithGenerator(fixedCodes(codes...)),
		WithSender(f.sender),
	)
	f.svc = NewService(f.users, password.NewBcrypt(bcrypt.MinCost), f.engine, nil, nil)
	return f
}

// seedUser stores a user with both channels and the given password.
func (f *fixture) seedUser(t *testing.T, email, phone, rawPassword string) *model.User {
	t.Helper()
	digest, err := password.NewBcrypt(bcrypt.MinCost).Hash(rawPassword)
	require.NoError(t, err)

	u := &model.User{ID: uuid.New(), Role: model.RoleUser, PasswordDigest: digest}
	if email != "" {
		u.Email = &email
	}
	if phone != "" {
		p := model.NewPhone("+1", phone)
		u.Phone = &p
	}
	require.NoError(t, f.users.Create(context.Background(), u))
	return u
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) *model.User {
	t.Helper()
	u, err := f.users.FindByID(context.Background(), id)
	require.NoError(t, err)
	return u
}
