package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/carmarket/server/internal/model"
)

const (
	defaultCodeLength  = 6
	defaultCodeCharset = "0123456789"
	verifyCodeTTL      = 10 * time.Minute
	resetCodeTTL       = 15 * time.Minute
	defaultMaxAttempts = 5
)

// CodePolicy configures code generation and lifetime for one purpose.
type CodePolicy struct {
	Length  int
	TTL     time.Duration
	Charset string

	// MaxAttempts is how many wrong values burn the code.
	MaxAttempts int
}

// DefaultCodePolicies returns the built-in policy per purpose.
func DefaultCodePolicies() map[model.Purpose]CodePolicy {
	return map[model.Purpose]CodePolicy{
		model.PurposeEmailVerify:   {Length: defaultCodeLength, TTL: verifyCodeTTL, Charset: defaultCodeCharset, MaxAttempts: defaultMaxAttempts},
		model.PurposePhoneVerify:   {Length: defaultCodeLength, TTL: verifyCodeTTL, Charset: defaultCodeCharset, MaxAttempts: defaultMaxAttempts},
		model.PurposePasswordReset: {Length: defaultCodeLength, TTL: resetCodeTTL, Charset: defaultCodeCharset, MaxAttempts: defaultMaxAttempts},
	}
}

// withDefaults fills zero fields from def.
func (p CodePolicy) withDefaults(def CodePolicy) CodePolicy {
	if p.Length <= 0 {
		p.Length = def.Length
	}
	if p.TTL <= 0 {
		p.TTL = def.TTL
	}
	if p.Charset == "" {
		p.Charset = def.Charset
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	return p
}

// CodeGenerator produces a code value for a policy.
type CodeGenerator func(p CodePolicy) (string, error)

// GenerateCode draws p.Length characters uniformly from p.Charset using crypto/rand.
func GenerateCode(p CodePolicy) (string, error) {
	charset := []rune(p.Charset)
	if len(charset) == 0 || p.Length <= 0 {
		return "", fmt.Errorf("invalid code policy: length=%d charset=%q", p.Length, p.Charset)
	}
	max := big.NewInt(int64(len(charset)))
	out := make([]rune, p.Length)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		out[i] = charset[n.Int64()]
	}
	return string(out), nil
}

// hashCodeHex returns SHA-256(user:purpose:code:salt) as hex for storage on the record.
func hashCodeHex(userID string, purpose model.Purpose, code, salt string) string {
	data := fmt.Sprintf("%s:%s:%s:%s", userID, purpose, code, salt)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

func digestsEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
