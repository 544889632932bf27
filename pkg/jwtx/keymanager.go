package jwtx

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/aussiebroadwan/consoleauth/pkg/cryptox"
)

// KeyManager owns the signing keys of one process together with the
// matching KeySet and Verifier.
type KeyManager struct {
	Verifier Verifier
	KeySet   *KeySet

	signers []Signer
}

type KeyManagerOptions struct {
	// Issuer is required and enforced on verification.
	Issuer string

	// NumKeys is how many signing keys to generate. Defaults to 1, capped
	// at 10.
	NumKeys int

	Leeway time.Duration

	// Now overrides the verification clock.
	Now func() time.Time
}

// NewEphemeralKeyManager generates Ed25519 keys that live only in memory.
// Tokens signed before a restart no longer verify afterwards, which sends
// clients through the refresh path.
func NewEphemeralKeyManager(opts KeyManagerOptions) (*KeyManager, error) {
	if opts.Issuer == "" {
		return nil, fmt.Errorf("jwtx: Issuer is required")
	}
	n := min(max(opts.NumKeys, 1), 10)

	keyset := NewKeySet()
	signers := make([]Signer, 0, n)
	for i := range n {
		kid, err := cryptox.GenerateToken(16)
		if err != nil {
			return nil, fmt.Errorf("jwtx: key id: %w", err)
		}
		pemKey, err := cryptox.GenerateEd25519Key()
		if err != nil {
			return nil, err
		}
		s, err := NewSignerEdDSA("devauth-"+kid, pemKey)
		if err != nil {
			return nil, fmt.Errorf("jwtx: signer %d: %w", i+1, err)
		}
		if err := keyset.AddSigner(s); err != nil {
			return nil, fmt.Errorf("jwtx: add signer %d: %w", i+1, err)
		}
		signers = append(signers, s)
	}

	return &KeyManager{
		Verifier: NewVerifierEdDSA(keyset, VerifyOptions{Issuer: opts.Issuer, Leeway: opts.Leeway, Now: opts.Now}),
		KeySet:   keyset,
		signers:  signers,
	}, nil
}

// Signer returns one of the active signers at random.
func (km *KeyManager) Signer() Signer {
	if len(km.signers) == 1 {
		return km.signers[0]
	}
	return km.signers[rand.IntN(len(km.signers))]
}

// Sign signs claims with a random active key.
func (km *KeyManager) Sign(c Claims) (string, error) {
	return km.Signer().Sign(c)
}

// NumSigners returns the number of signing keys.
func (km *KeyManager) NumSigners() int {
	return len(km.signers)
}
