package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/carmarket/server/internal/metrics"
	"github.com/carmarket/server/internal/model"
	"github.com/carmarket/server/internal/repo"
	"github.com/carmarket/server/internal/security/password"
	"github.com/google/uuid"
)

// Service orchestrates credential operations: registration, login, password change and reset.
type Service struct {
	users   repo.UserRepo
	hasher  password.Hasher
	codes   *VerificationEngine
	now     func() time.Time
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewService creates a new credential service
func NewService(
	users repo.UserRepo,
	hasher password.Hasher,
	codes *VerificationEngine,
	log *slog.Logger,
	m *metrics.Metrics,
) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		users:   users,
		hasher:  hasher,
		codes:   codes,
		now:     codes.now,
		log:     log,
		metrics: m,
	}
}

// Codes exposes the verification engine used by the service.
func (s *Service) Codes() *VerificationEngine {
	return s.codes
}

// RegisterInput describes a registration request. At least one of Email or Phone must be set.
type RegisterInput struct {
	Name        string
	Email       string
	PhoneICC    string
	PhoneNSN    string
	Password    string
	DeviceToken string
}

// Register creates an unverified user, issues a verification code for every supplied
// channel and persists the record in one write. ErrDuplicateIdentifier is the only
// domain error; codes that fail to deliver are logged and can be resent.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	u := &model.User{
		ID:   uuid.New(),
		Name: strings.TrimSpace(in.Name),
		Role: model.RoleUser,
	}
	if email := model.NormalizeEmail(in.Email); email != "" {
		u.Email = &email
	}
	if model.CompactPhone(in.PhoneNSN) != "" {
		phone := model.NewPhone(in.PhoneICC, in.PhoneNSN)
		u.Phone = &phone
	}
	if u.Email == nil && u.Phone == nil {
		return nil, fmt.Errorf("register: email or phone is required")
	}
	if token := strings.TrimSpace(in.DeviceToken); token != "" {
		u.DeviceToken = &token
	}

	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u.PasswordDigest = digest

	pending := make(map[model.Channel]string)
	for _, ch := range u.Channels() {
		code, err := s.codes.prepare(u, model.VerifyPurpose(ch))
		if err != nil {
			return nil, err
		}
		pending[ch] = code
	}

	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrDuplicateIdentifier
		}
		return nil, err
	}

	for ch, code := range pending {
		if err := s.codes.deliver(ctx, u, ch, code); err != nil {
			s.log.WarnContext(ctx, "registration code not delivered", "user_id", u.ID.String(), "channel", string(ch), "error", err)
		}
	}
	return u, nil
}

// Login checks identifier and password. ErrNotFound and ErrBadCredentials stay distinct here;
// the HTTP boundary reports both the same way.
func (s *Service) Login(ctx context.Context, identifier, rawPassword, deviceToken string) (*model.User, error) {
	u, err := s.lookup(ctx, identifier)
	if err != nil {
		s.metrics.Login(loginResult(err))
		return nil, err
	}
	if err := s.checkPassword(u, rawPassword); err != nil {
		s.metrics.Login(loginResult(err))
		return nil, err
	}

	now := s.now().UTC()
	u.LastLoginAt = &now
	if token := strings.TrimSpace(deviceToken); token != "" {
		u.DeviceToken = &token
	}
	if err := s.users.Save(ctx, u); err != nil {
		return nil, fmt.Errorf("save login: %w", err)
	}
	s.metrics.Login("ok")
	return u, nil
}

// Touch refreshes LastLoginAt for an already authenticated user.
func (s *Service) Touch(ctx context.Context, u *model.User) error {
	now := s.now().UTC()
	u.LastLoginAt = &now
	return s.users.Save(ctx, u)
}

// ChangePassword replaces the digest after verifying the old password.
func (s *Service) ChangePassword(ctx context.Context, u *model.User, oldRaw, newRaw string) error {
	if err := s.checkPassword(u, oldRaw); err != nil {
		return err
	}
	digest, err := s.hasher.Hash(newRaw)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u.PasswordDigest = digest
	return s.users.Save(ctx, u)
}

// RequestPasswordReset sends a reset code over sendTo. Unknown identifiers and users
// without a destination on sendTo succeed silently so callers learn nothing about accounts.
func (s *Service) RequestPasswordReset(ctx context.Context, identifier string, sendTo model.Channel) error {
	u, err := s.lookup(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.log.InfoContext(ctx, "password reset requested for unknown identifier")
			return nil
		}
		return err
	}
	if err := s.codes.Send(ctx, u, model.PurposePasswordReset, sendTo); err != nil {
		if errors.Is(err, ErrNoDestination) {
			s.log.InfoContext(ctx, "password reset requested for missing channel", "user_id", u.ID.String(), "channel", string(sendTo))
			return nil
		}
		return err
	}
	return nil
}

// ResetPassword consumes a password-reset code and stores the new password in the same write.
func (s *Service) ResetPassword(ctx context.Context, identifier, code, newRaw string) (*model.User, error) {
	u, err := s.lookup(ctx, identifier)
	if err != nil {
		return nil, err
	}
	next := u.Clone()
	if err := s.codes.consume(&next, model.PurposePasswordReset, code); err != nil {
		if errors.Is(err, ErrCodeInvalid) {
			return nil, s.codes.saveMiss(ctx, u, &next, model.PurposePasswordReset)
		}
		return nil, err
	}
	digest, err := s.hasher.Hash(newRaw)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	next.PasswordDigest = digest
	if err := s.users.Save(ctx, &next); err != nil {
		return nil, fmt.Errorf("save password reset: %w", err)
	}
	*u = next
	return u, nil
}

// UpdateDeviceToken stores the notification target; last write wins.
func (s *Service) UpdateDeviceToken(ctx context.Context, u *model.User, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		u.DeviceToken = nil
	} else {
		u.DeviceToken = &token
	}
	return s.users.Save(ctx, u)
}

// UpdateProfile changes profile fields that carry no verification state.
func (s *Service) UpdateProfile(ctx context.Context, u *model.User, name string) error {
	u.Name = strings.TrimSpace(name)
	return s.users.Save(ctx, u)
}

// FindByIdentifier resolves a user by e-mail or phone.
func (s *Service) FindByIdentifier(ctx context.Context, identifier string) (*model.User, error) {
	return s.lookup(ctx, identifier)
}

// FindByID resolves a user by ID.
func (s *Service) FindByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

// AssignRole sets the role of the target user. Authorization happens before this call.
func (s *Service) AssignRole(ctx context.Context, targetID uuid.UUID, role model.Role) (*model.User, error) {
	u, err := s.FindByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	u.Role = role
	if err := s.users.Save(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// AdminVerify marks a channel verified without a code.
func (s *Service) AdminVerify(ctx context.Context, targetID uuid.UUID, ch model.Channel) (*model.User, error) {
	u, err := s.FindByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if _, ok := u.Destination(ch); !ok {
		return nil, ErrNoDestination
	}
	if u.Verified(ch) {
		return u, nil
	}
	u.MarkVerified(ch)
	if err := s.users.Save(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) lookup(ctx context.Context, identifier string) (*model.User, error) {
	u, err := s.users.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

func (s *Service) checkPassword(u *model.User, raw string) error {
	ok, err := s.hasher.Verify(raw, u.PasswordDigest)
	if err != nil {
		if errors.Is(err, password.ErrInvalidHash) {
			return ErrBadCredentials
		}
		return err
	}
	if !ok {
		return ErrBadCredentials
	}
	return nil
}

func loginResult(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrBadCredentials):
		return "bad_credentials"
	default:
		return "error"
	}
}
