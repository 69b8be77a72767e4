// Package cryptox generates the random material vaultcore hands out:
// unguessable share-link tokens and per-user KDF salts. Payload bytes are
// opaque to the server, so nothing here encrypts or decrypts anything.
package cryptox

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const (
	// ShareTokenBytes is the entropy of a share-link token. The token is the
	// only credential a recipient holds, so it must stay unguessable.
	ShareTokenBytes = 32

	// KDFSaltBytes is the size of the salt issued to a user at registration
	// for client-side key derivation.
	KDFSaltBytes = 16
)

func randBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("rand read: %w", err)
	}
	return b, nil
}

// NewShareToken returns a URL-safe token with ShareTokenBytes of entropy.
// It is used verbatim as the external identifier of a share link.
func NewShareToken() (string, error) {
	b, err := randBytes(ShareTokenBytes)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// NewKDFSalt returns a fresh base64-encoded KDF salt.
func NewKDFSalt() (string, error) {
	b, err := randBytes(KDFSaltBytes)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
