// Package pkce implements RFC 7636 (Proof Key for Code Exchange) primitives:
// code verifier generation and S256 challenge derivation.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// DefaultVerifierLength is the verifier length used by NewPair.
// RFC 7636 permits 43-128 characters.
const DefaultVerifierLength = 64

// Method is the only challenge method this package produces.
const Method = "S256"

// unreserved is the allowed verifier character set per RFC 7636:
// ALPHA / DIGIT / "-" / "." / "_" / "~".
const unreserved = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"

// Pair holds a generated verifier and its derived challenge.
type Pair struct {
	Verifier  string
	Challenge string
	Method    string
}

// GenerateVerifier produces a random code verifier of the given length drawn
// from the RFC 7636 unreserved character set. Randomness comes from
// crypto/rand; if the system CSPRNG is unavailable the error is returned
// rather than degrading to a weaker source.
func GenerateVerifier(length int) (string, error) {
	if length < 43 || length > 128 {
		return "", fmt.Errorf("pkce: verifier length %d outside RFC 7636 range [43,128]", length)
	}
	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("pkce: secure random source unavailable: %w", err)
	}
	out := make([]byte, length)
	for i, b := range raw {
		out[i] = unreserved[int(b)%len(unreserved)]
	}
	return string(out), nil
}

// DeriveChallenge returns the S256 code challenge for a verifier:
// base64url(SHA-256(verifier)) without padding.
func DeriveChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// NewPair generates a verifier of DefaultVerifierLength and derives its
// challenge.
func NewPair() (Pair, error) {
	verifier, err := GenerateVerifier(DefaultVerifierLength)
	if err != nil {
		return Pair{}, err
	}
	return Pair{
		Verifier:  verifier,
		Challenge: DeriveChallenge(verifier),
		Method:    Method,
	}, nil
}
