// Package crypto derives stable pseudonyms for participant ids so logs never carry raw ids.
package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

// KeyLen is the pseudonym key size in bytes.
const KeyLen = 32

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// Pseudonym maps participant ids to short keyed BLAKE2b digests.
// The zero value is unusable; construct with NewPseudonym.
type Pseudonym struct {
	key []byte
}

// NewPseudonym returns a pseudonymizer keyed with key. An empty key draws a random one,
// so pseudonyms are stable only for the life of the process.
func NewPseudonym(key []byte) (*Pseudonym, error) {
	if len(key) == 0 {
		k, err := RandBytes(KeyLen)
		if err != nil {
			return nil, err
		}
		key = k
	}
	if len(key) > blake2b.Size {
		key = key[:blake2b.Size]
	}
	// validate once so Of never has to handle a key error
	if _, err := blake2b.New(8, key); err != nil {
		return nil, err
	}
	return &Pseudonym{key: key}, nil
}

// Of returns a 16-hex-char pseudonym for id.
func (p *Pseudonym) Of(id int64) string {
	h, _ := blake2b.New(8, p.key)
	h.Write([]byte(strconv.FormatInt(id, 10)))
	return hex.EncodeToString(h.Sum(nil))
}

// Field returns a zap field carrying the pseudonym of id.
func (p *Pseudonym) Field(name string, id int64) zap.Field {
	return zap.String(name, p.Of(id))
}
