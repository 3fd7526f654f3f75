package password

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func fastArgon2id() Argon2id {
	return NewArgon2id(Argon2idParams{MemoryKiB: 8 * 1024, Iterations: 1, Parallelism: 1})
}

func TestBcrypt_HashAndVerify(t *testing.T) {
	h := NewBcrypt(bcrypt.MinCost)

	digest, err := h.Hash("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", digest)

	ok, err := h.Verify("correct horse", digest)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("wrong horse", digest)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBcrypt_EmptyAndMalformed(t *testing.T) {
	h := NewBcrypt(bcrypt.MinCost)

	_, err := h.Hash("")
	assert.ErrorIs(t, err, ErrEmptyPassword)

	_, err = h.Verify("x", "not-a-hash")
	assert.ErrorIs(t, err, ErrInvalidHash)
}

func TestArgon2id_HashAndVerify(t *testing.T) {
	h := fastArgon2id()

	digest, err := h.Hash("s3cret-pass")
	require.NoError(t, err)
	assert.Contains(t, digest, "$argon2id$v=19$")

	ok, err := h.Verify("s3cret-pass", digest)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("other", digest)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestArgon2id_RejectsMalformed(t *testing.T) {
	h := fastArgon2id()
	for _, digest := range []string{
		"",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHQ$aGFzaGhhc2hoYXNoaGFzaA",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHQ$aGFzaGhhc2hoYXNoaGFzaA",
		"$argon2id$v=19$m=0,t=1,p=1$c2FsdHNhbHQ$aGFzaGhhc2hoYXNoaGFzaA",
		"$argon2id$v=19$m=8192,t=1,p=1$!!$aGFzaGhhc2hoYXNoaGFzaA",
	} {
		_, err := h.Verify("x", digest)
		assert.ErrorIs(t, err, ErrInvalidHash, "digest %q", digest)
	}
}

func TestMulti_VerifiesEitherAlgorithm(t *testing.T) {
	b := NewBcrypt(bcrypt.MinCost)
	a := fastArgon2id()
	m := Multi{Primary: a, Fallbacks: []Hasher{b}}

	bDigest, err := b.Hash("pw-one")
	require.NoError(t, err)
	ok, err := m.Verify("pw-one", bDigest)
	require.NoError(t, err)
	assert.True(t, ok)

	aDigest, err := m.Hash("pw-two")
	require.NoError(t, err)
	ok, err = m.Verify("pw-two", aDigest)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = m.Verify("pw", "garbage")
	assert.ErrorIs(t, err, ErrInvalidHash)
}

func TestNew_UnknownAlgorithm(t *testing.T) {
	_, err := New(Config{Algorithm: "md5"})
	assert.Error(t, err)

	h, err := New(Config{BcryptCost: bcrypt.MinCost})
	require.NoError(t, err)
	digest, err := h.Hash("pw")
	require.NoError(t, err)
	assert.Contains(t, digest, "$2")
}
