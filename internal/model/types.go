package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is the closed set of principal roles.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleUser, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Channel is a contact channel a code can be delivered to.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPhone Channel = "phone"
)

// ParseChannel validates caller-supplied channel names (e.g. sendTo).
func ParseChannel(s string) (Channel, error) {
	switch c := Channel(strings.ToLower(strings.TrimSpace(s))); c {
	case ChannelEmail, ChannelPhone:
		return c, nil
	default:
		return "", fmt.Errorf("unknown channel %q", s)
	}
}

// Purpose identifies which code slot on a user a code belongs to.
type Purpose string

const (
	PurposeEmailVerify   Purpose = "email-verify"
	PurposePhoneVerify   Purpose = "phone-verify"
	PurposePasswordReset Purpose = "password-reset"
)

// Purposes lists every known purpose.
var Purposes = []Purpose{PurposeEmailVerify, PurposePhoneVerify, PurposePasswordReset}

// VerifyPurpose returns the verification purpose for a channel.
func VerifyPurpose(ch Channel) Purpose {
	if ch == ChannelPhone {
		return PurposePhoneVerify
	}
	return PurposeEmailVerify
}

// Channel returns the channel a verification purpose verifies.
// ok is false for password-reset, which is scoped to the whole identity.
func (p Purpose) Channel() (Channel, bool) {
	switch p {
	case PurposeEmailVerify:
		return ChannelEmail, true
	case PurposePhoneVerify:
		return ChannelPhone, true
	default:
		return "", false
	}
}

// Code is a one-time code embedded in a User, one slot per purpose.
// Only the digest of the code value is kept.
type Code struct {
	Purpose   Purpose   `json:"purpose"`
	Digest    string    `json:"digest"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Consumed  bool      `json:"consumed"`

	// Attempts counts wrong values supplied for this code.
	Attempts int `json:"attempts,omitempty"`
}

// Expired reports whether now is past the code's expiry.
func (c Code) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Active reports whether the code can still be validated.
func (c Code) Active(now time.Time) bool {
	return !c.Consumed && !c.Expired(now)
}

// Phone is a phone number split into international calling code and national number.
type Phone struct {
	Full string `json:"full"`
	ICC  string `json:"icc"`
	NSN  string `json:"nsn"`
}

// NewPhone builds a Phone from its parts. Both parts are compacted the same way
// lookups are, so the stored Full matches NormalizeIdentifier of any spelling.
func NewPhone(icc, nsn string) Phone {
	icc = CompactPhone(icc)
	nsn = CompactPhone(nsn)
	if icc != "" && !strings.HasPrefix(icc, "+") {
		icc = "+" + icc
	}
	return Phone{Full: icc + nsn, ICC: icc, NSN: nsn}
}

var phoneSeparators = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "", "\t", "")

// CompactPhone drops the separators people type inside phone numbers.
func CompactPhone(s string) string {
	return phoneSeparators.Replace(strings.TrimSpace(s))
}

// User is the identity record of a registered principal.
type User struct {
	ID             uuid.UUID
	Name           string
	Email          *string
	Phone          *Phone
	PasswordDigest string
	Role           Role

	EmailVerified bool
	PhoneVerified bool
	Codes         map[Purpose]Code

	DeviceToken *string
	LastLoginAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Version is bumped by every successful save; stores compare on it.
	Version int
}

// SetCode stores c in its purpose slot, replacing any previous code for that purpose.
func (u *User) SetCode(c Code) {
	if u.Codes == nil {
		u.Codes = make(map[Purpose]Code)
	}
	u.Codes[c.Purpose] = c
}

// Code returns the code stored for purpose p.
func (u *User) Code(p Purpose) (Code, bool) {
	c, ok := u.Codes[p]
	return c, ok
}

// Verified reports the verification flag for a channel.
func (u *User) Verified(ch Channel) bool {
	switch ch {
	case ChannelEmail:
		return u.EmailVerified
	case ChannelPhone:
		return u.PhoneVerified
	default:
		return false
	}
}

// MarkVerified sets a channel's verified flag. Flags never revert.
func (u *User) MarkVerified(ch Channel) {
	switch ch {
	case ChannelEmail:
		u.EmailVerified = true
	case ChannelPhone:
		u.PhoneVerified = true
	}
}

// Destination returns where codes for ch are delivered.
func (u *User) Destination(ch Channel) (string, bool) {
	switch ch {
	case ChannelEmail:
		if u.Email != nil && *u.Email != "" {
			return *u.Email, true
		}
	case ChannelPhone:
		if u.Phone != nil && u.Phone.Full != "" {
			return u.Phone.Full, true
		}
	}
	return "", false
}

// Channels returns the channels this user has an identifier for.
func (u *User) Channels() []Channel {
	var out []Channel
	for _, ch := range []Channel{ChannelEmail, ChannelPhone} {
		if _, ok := u.Destination(ch); ok {
			out = append(out, ch)
		}
	}
	return out
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (u User) Clone() User {
	out := u
	if u.Email != nil {
		e := *u.Email
		out.Email = &e
	}
	if u.Phone != nil {
		p := *u.Phone
		out.Phone = &p
	}
	if u.DeviceToken != nil {
		d := *u.DeviceToken
		out.DeviceToken = &d
	}
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		out.LastLoginAt = &t
	}
	if u.Codes != nil {
		out.Codes = make(map[Purpose]Code, len(u.Codes))
		for k, v := range u.Codes {
			out.Codes[k] = v
		}
	}
	return out
}

// NormalizeEmail performs case-insensitive canonicalization.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeIdentifier canonicalizes an e-mail or phone identifier for lookup.
func NormalizeIdentifier(s string) string {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "@") {
		return NormalizeEmail(s)
	}
	return CompactPhone(s)
}

// Order is the minimal order view needed for ownership checks.
type Order struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	CarID     uuid.UUID
	Purpose   string
	Status    string
	CreatedAt time.Time
}
