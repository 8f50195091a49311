// Package token mints the opaque capability tokens embedded in signing links.
// A token is the only credential a signer presents, so it must be unguessable.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// randomBytes is the entropy behind each token; the encoded form is 43
// URL-safe characters.
const randomBytes = 32

// New returns a fresh signing-link token.
func New() (string, error) {
	buf := make([]byte, randomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate signing token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}
