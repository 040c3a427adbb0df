// Package keys provides the key material used to sign transactions and
// derive addresses.
//
// Two sources are available. The secure source draws from the operating
// system. The seeded source is deterministic: the seed is hashed with
// SHA-256 into a ChaCha20 key (zero nonce) and every keypair consumes the
// next 32 bytes of the keystream as its Ed25519 seed. The same seed always
// yields the same sequence of keypairs, which is what golden tests rely on.
package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/VincentBerthier/bifrost/foundation/ledger/types"
	"golang.org/x/crypto/chacha20"
)

// Keypair holds an Ed25519 key pair.
type Keypair struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// Address returns the ledger address owned by the keypair.
func (kp Keypair) Address() types.Address {
	return types.Address(kp.PublicKey)
}

// Source represents the behavior required to issue new keypairs.
type Source interface {
	GenerateKeypair() (Keypair, error)
}

// =============================================================================

// Seeded issues a reproducible sequence of keypairs.
type Seeded struct {
	mu     sync.Mutex
	cipher *chacha20.Cipher
}

// NewSeeded constructs a deterministic source for the specified seed.
func NewSeeded(seed uint64) *Seeded {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], seed)
	key := sha256.Sum256(b[:])

	var nonce [chacha20.NonceSize]byte
	cipher, err := chacha20.NewUnauthenticatedCipher(key[:], nonce[:])
	if err != nil {
		// Key and nonce sizes are fixed above.
		panic(err)
	}

	return &Seeded{cipher: cipher}
}

// GenerateKeypair implements the Source interface.
func (s *Seeded) GenerateKeypair() (Keypair, error) {
	var seed [ed25519.SeedSize]byte

	s.mu.Lock()
	s.cipher.XORKeyStream(seed[:], seed[:])
	s.mu.Unlock()

	return fromSeed(seed[:]), nil
}

// =============================================================================

// Secure issues keypairs from the operating system random source.
type Secure struct {
	rand io.Reader
}

// NewSecure constructs a source backed by crypto/rand.
func NewSecure() *Secure {
	return &Secure{rand: rand.Reader}
}

// GenerateKeypair implements the Source interface.
func (s *Secure) GenerateKeypair() (Keypair, error) {
	var seed [ed25519.SeedSize]byte
	if _, err := io.ReadFull(s.rand, seed[:]); err != nil {
		return Keypair{}, fmt.Errorf("reading random seed: %w", err)
	}

	return fromSeed(seed[:]), nil
}

// =============================================================================

func fromSeed(seed []byte) Keypair {
	privateKey := ed25519.NewKeyFromSeed(seed)

	return Keypair{
		PublicKey:  privateKey.Public().(ed25519.PublicKey),
		PrivateKey: privateKey,
	}
}
