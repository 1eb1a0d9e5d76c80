// Package crypto seals history files with NaCl secretbox.
//
// A 32-byte key is derived from the user's passphrase with HKDF-SHA256. Each
// sealed payload carries its own random nonce:
//
//	[ 24-byte nonce ][ ciphertext ]
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	KeySize   = 32
	nonceSize = 24
)

var hkdfInfo = []byte("clipwatch-history-v1")

// ErrDecrypt is returned by Open when the payload does not authenticate
// under the key.
var ErrDecrypt = errors.New("decryption failed (wrong passphrase?)")

// Key is a derived secretbox key.
type Key = [KeySize]byte

// DeriveKey derives the history key from passphrase. An empty passphrase
// yields nil: history is then stored unsealed.
func DeriveKey(passphrase string) (*Key, error) {
	if passphrase == "" {
		return nil, nil
	}
	h := hkdf.New(sha256.New, []byte(passphrase), nil, hkdfInfo)
	var key Key
	if _, err := io.ReadFull(h, key[:]); err != nil {
		return nil, fmt.Errorf("key derivation: %w", err)
	}
	return &key, nil
}

// Seal encrypts plaintext with key and returns nonce+ciphertext.
func Seal(plaintext []byte, key *Key) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("nonce generation: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, key), nil
}

// Open decrypts nonce+ciphertext produced by Seal.
func Open(sealed []byte, key *Key) ([]byte, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, fmt.Errorf("sealed payload too short (%d bytes)", len(sealed))
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, key)
	if !ok {
		return nil, ErrDecrypt
	}
	return plain, nil
}
