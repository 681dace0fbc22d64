// Package pkce generates Proof Key for Code Exchange material (RFC 7636)
// for public-client authorization flows.
package pkce

import (
	"crypto/rand"
	"encoding/base64"

	tokens "github.com/dcamposv/pulsehub/internal/security/token"
)

const (
	// VerifierLength is the length of the code verifier. The RFC minimum is
	// 43; Spotify accepts 43-128. 64 gives comfortable entropy.
	VerifierLength = 64

	// Method is the only challenge method we emit.
	Method = "S256"

	stateBytes = 32
)

// Challenge holds one verifier/challenge pair.
type Challenge struct {
	Verifier  string
	Challenge string
	Method    string
}

// New generates a verifier and its S256 challenge.
// Fails only if the entropy source does; callers treat that as fatal.
func New() (Challenge, error) {
	v, err := randomString(VerifierLength)
	if err != nil {
		return Challenge{}, err
	}
	return Challenge{
		Verifier:  v,
		Challenge: challengeOf(v),
		Method:    Method,
	}, nil
}

// NewState generates a CSRF state token, independent of any verifier.
func NewState() (string, error) {
	return tokens.GenerateOpaqueToken(stateBytes)
}

// Verify reports whether verifier matches challenge under method.
func Verify(verifier, challenge, method string) bool {
	if method != Method {
		return false
	}
	return challengeOf(verifier) == challenge
}

func challengeOf(verifier string) string {
	return tokens.SHA256Base64URL(verifier)
}

// randomString draws length chars from the base64url alphabet, a subset of
// the RFC 3986 unreserved set.
func randomString(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	enc := base64.RawURLEncoding.EncodeToString(b)
	return enc[:length], nil
}
