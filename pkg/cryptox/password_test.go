package cryptox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// cheap keeps the suite fast; production uses DefaultParams.
var cheap = Params{Memory: 64, Iterations: 1, Parallelism: 1, KeyLength: 32, SaltLength: 16}

func TestHasherRoundTrip(t *testing.T) {
	t.Parallel()

	h := NewHasher("pepper").WithParams(cheap)

	tests := []struct {
		name     string
		password string
	}{
		{"simple", "password123"},
		{"symbols", "P@ssw0rd!#$%^&*()"},
		{"long", strings.Repeat("a", 100)},
		{"empty", ""},
		{"unicode", "пароль🔒密码"},
		{"whitespace", "   spaces   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			encoded, err := h.Hash(tt.password)
			require.NoError(t, err)
			require.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$m=64,t=1,p=1$"))
			require.Len(t, strings.Split(encoded, "$"), 6)

			require.NoError(t, h.Verify(tt.password, encoded))
			require.ErrorIs(t, h.Verify(tt.password+"x", encoded), ErrMismatch)
		})
	}
}

func TestHasherSaltsEveryHash(t *testing.T) {
	t.Parallel()

	h := NewHasher("").WithParams(cheap)
	a, err := h.Hash("same")
	require.NoError(t, err)
	b, err := h.Hash("same")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestHasherPepperMatters(t *testing.T) {
	t.Parallel()

	encoded, err := NewHasher("one").WithParams(cheap).Hash("secret")
	require.NoError(t, err)
	require.ErrorIs(t, NewHasher("two").WithParams(cheap).Verify("secret", encoded), ErrMismatch)
}

func TestHasherDefaultParams(t *testing.T) {
	t.Parallel()

	encoded, err := NewHasher("p").Hash("secret")
	require.NoError(t, err)
	require.Contains(t, encoded, "$m=19456,t=2,p=1$")
}

func TestVerifyInvalidHash(t *testing.T) {
	t.Parallel()

	h := NewHasher("").WithParams(cheap)
	for _, encoded := range []string{
		"",
		"plaintext",
		"$bcrypt$v=19$m=64,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=18$m=64,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$garbage$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=64,t=1,p=1$!!!$aGFzaA",
		"$argon2id$v=19$m=64,t=1,p=1$c2FsdA$",
	} {
		require.ErrorIs(t, h.Verify("x", encoded), ErrInvalidHash, encoded)
	}
}

func TestGeneratePassword(t *testing.T) {
	t.Parallel()

	p, err := GeneratePassword(16)
	require.NoError(t, err)
	require.Len(t, p, 16)
	require.Regexp(t, `^[a-zA-Z0-9]+$`, p)

	_, err = GeneratePassword(0)
	require.Error(t, err)
}
