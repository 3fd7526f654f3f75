package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/carmarket/server/internal/model"
	"github.com/google/uuid"
)

// UserRepo is the persistence boundary for identity records.
// Create and Save must enforce identifier uniqueness; Save is a compare-and-store on Version.
type UserRepo interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	FindByIdentifier(ctx context.Context, identifier string) (*model.User, error)
	Create(ctx context.Context, u *model.User) error
	Save(ctx context.Context, u *model.User) error
}

type userRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewUserRepo creates a new UserRepo instance
func NewUserRepo(db *sql.DB) UserRepo {
	return &userRepo{db: db, now: time.Now}
}

const userColumns = `id, name, email, phone_full, phone_icc, phone_nsn, password_digest, role,
	email_verified, phone_verified, codes, device_token, last_login_at, created_at, updated_at, version`

// FindByID retrieves a user by ID
func (r *userRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// FindByIdentifier retrieves a user by e-mail or full phone number
func (r *userRepo) FindByIdentifier(ctx context.Context, identifier string) (*model.User, error) {
	identifier = model.NormalizeIdentifier(identifier)
	if identifier == "" {
		return nil, ErrNotFound
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1 OR phone_full = $1 LIMIT 1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, identifier))
}

// Create inserts a new user. The caller assigns the ID.
func (r *userRepo) Create(ctx context.Context, u *model.User) error {
	codes, err := encodeCodes(u.Codes)
	if err != nil {
		return err
	}
	now := r.now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	u.Version = 1

	email, phoneFull, phoneICC, phoneNSN := identifierArgs(u)
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, phone_full, phone_icc, phone_nsn, password_digest, role,
			email_verified, phone_verified, codes, device_token, last_login_at, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, u.ID, u.Name, email, phoneFull, phoneICC, phoneNSN, u.PasswordDigest, string(u.Role),
		u.EmailVerified, u.PhoneVerified, string(codes), u.DeviceToken, u.LastLoginAt, u.CreatedAt, u.UpdatedAt, u.Version)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// Save writes every mutable field if the stored version still equals u.Version,
// then advances u.Version.
func (r *userRepo) Save(ctx context.Context, u *model.User) error {
	codes, err := encodeCodes(u.Codes)
	if err != nil {
		return err
	}
	updatedAt := r.now().UTC()

	email, phoneFull, phoneICC, phoneNSN := identifierArgs(u)
	result, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET name = $3, email = $4, phone_full = $5, phone_icc = $6, phone_nsn = $7,
			password_digest = $8, role = $9, email_verified = $10, phone_verified = $11,
			codes = $12, device_token = $13, last_login_at = $14, updated_at = $15,
			version = version + 1
		WHERE id = $1 AND version = $2
	`, u.ID, u.Version, u.Name, email, phoneFull, phoneICC, phoneNSN,
		u.PasswordDigest, string(u.Role), u.EmailVerified, u.PhoneVerified,
		string(codes), u.DeviceToken, u.LastLoginAt, updatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrStale
	}
	u.Version++
	u.UpdatedAt = updatedAt
	return nil
}

func (r *userRepo) scanOne(row *sql.Row) (*model.User, error) {
	var (
		u                  model.User
		email, phoneFull   sql.NullString
		phoneICC, phoneNSN sql.NullString
		role               string
		codes              []byte
		deviceToken        sql.NullString
		lastLoginAt        sql.NullTime
	)
	err := row.Scan(
		&u.ID,
		&u.Name,
		&email,
		&phoneFull,
		&phoneICC,
		&phoneNSN,
		&u.PasswordDigest,
		&role,
		&u.EmailVerified,
		&u.PhoneVerified,
		&codes,
		&deviceToken,
		&lastLoginAt,
		&u.CreatedAt,
		&u.UpdatedAt,
		&u.Version,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	u.Role = model.Role(role)
	if email.Valid {
		u.Email = &email.String
	}
	if phoneFull.Valid {
		u.Phone = &model.Phone{Full: phoneFull.String, ICC: phoneICC.String, NSN: phoneNSN.String}
	}
	if deviceToken.Valid {
		u.DeviceToken = &deviceToken.String
	}
	if lastLoginAt.Valid {
		t := lastLoginAt.Time
		u.LastLoginAt = &t
	}
	u.Codes, err = decodeCodes(codes)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func identifierArgs(u *model.User) (email, phoneFull, phoneICC, phoneNSN sql.NullString) {
	if u.Email != nil {
		email = sql.NullString{String: *u.Email, Valid: true}
	}
	if u.Phone != nil {
		phoneFull = sql.NullString{String: u.Phone.Full, Valid: true}
		phoneICC = sql.NullString{String: u.Phone.ICC, Valid: true}
		phoneNSN = sql.NullString{String: u.Phone.NSN, Valid: true}
	}
	return email, phoneFull, phoneICC, phoneNSN
}

// codes are stored as a JSONB object keyed by purpose
func encodeCodes(codes map[model.Purpose]model.Code) ([]byte, error) {
	if codes == nil {
		codes = map[model.Purpose]model.Code{}
	}
	b, err := json.Marshal(codes)
	if err != nil {
		return nil, fmt.Errorf("encode codes: %w", err)
	}
	return b, nil
}

func decodeCodes(b []byte) (map[model.Purpose]model.Code, error) {
	codes := map[model.Purpose]model.Code{}
	if len(b) == 0 {
		return codes, nil
	}
	if err := json.Unmarshal(b, &codes); err != nil {
		return nil, fmt.Errorf("decode codes: %w", err)
	}
	return codes, nil
}
