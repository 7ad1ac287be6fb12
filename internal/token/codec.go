package token

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	KeySize   = 32
	nonceSize = 24
)

var errSealed = errors.New("sealed token is corrupt")

// Codec derives the lookup digest of a token and seals it for storage.
// Plain tokens never reach the database.
type Codec struct {
	digestKey []byte
	sealKey   [KeySize]byte
}

func NewCodec(key []byte) (*Codec, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("token key must be %d bytes, got %d", KeySize, len(key))
	}
	c := &Codec{digestKey: append([]byte(nil), key...)}
	c.sealKey = blake2b.Sum256(append(append([]byte(nil), key...), "seal"...))
	return c, nil
}

// Digest returns the keyed BLAKE2b-256 digest used for lookups.
func (c *Codec) Digest(token string) []byte {
	h, err := blake2b.New256(c.digestKey)
	if err != nil {
		// Key length is checked in NewCodec.
		panic(err)
	}
	_, _ = h.Write([]byte(token))
	return h.Sum(nil)
}

// Seal encrypts a token as nonce followed by the secretbox ciphertext.
func (c *Codec) Seal(token string) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], []byte(token), &nonce, &c.sealKey), nil
}

func (c *Codec) Open(sealed []byte) (string, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return "", errSealed
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &c.sealKey)
	if !ok {
		return "", errSealed
	}
	return string(plain), nil
}
