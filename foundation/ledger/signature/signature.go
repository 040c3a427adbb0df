// Package signature provides helper functions for handling the ledger
// signature needs. Verification is strict: only canonical encodings of
// points and scalars are accepted and small-order components are rejected,
// so a signature that verifies here verifies everywhere.
package signature

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"
	"runtime"

	"filippo.io/edwards25519"
	"golang.org/x/sync/errgroup"
)

// Sizes of the key and signature material.
const (
	PublicKeySize  = ed25519.PublicKeySize
	PrivateKeySize = ed25519.PrivateKeySize
	SignatureSize  = ed25519.SignatureSize
)

// =============================================================================

// Sign uses the specified private key to sign the message.
func Sign(privateKey ed25519.PrivateKey, message []byte) ([]byte, error) {
	if len(privateKey) != PrivateKeySize {
		return nil, fmt.Errorf("invalid private key length %d", len(privateKey))
	}

	sig := ed25519.Sign(privateKey, message)

	// Check the signature against our own rules before handing it out.
	if !Verify(privateKey.Public().(ed25519.PublicKey), message, sig) {
		return nil, errors.New("invalid signature")
	}

	return sig, nil
}

// Verify reports whether sig is a valid signature of message by publicKey.
// Every check is evaluated before the decision is made so the amount of work
// does not depend on which check fails.
func Verify(publicKey, message, sig []byte) bool {
	if len(publicKey) != PublicKeySize || len(sig) != SignatureSize {
		return false
	}

	keyOK := isValidPoint(publicKey)
	rOK := isValidPoint(sig[:32])
	sOK := isCanonicalScalar(sig[32:])
	eqOK := ed25519.Verify(ed25519.PublicKey(publicKey), message, sig)

	return keyOK && rOK && sOK && eqOK
}

// =============================================================================

// Item is one entry of a batch verification.
type Item struct {
	PublicKey []byte
	Message   []byte
	Signature []byte
}

// VerifyBatch verifies the items concurrently. The decision for every item is
// the one Verify makes for it on its own.
func VerifyBatch(items []Item) []bool {
	results := make([]bool, len(items))

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, item := range items {
		g.Go(func() error {
			results[i] = Verify(item.PublicKey, item.Message, item.Signature)
			return nil
		})
	}
	g.Wait()

	return results
}

// =============================================================================

// isValidPoint checks the 32 bytes are the canonical encoding of a curve
// point that is not of small order.
func isValidPoint(b []byte) bool {
	p, err := new(edwards25519.Point).SetBytes(b)
	if err != nil {
		return false
	}

	// SetBytes accepts non-canonical encodings of valid points.
	canonical := bytes.Equal(p.Bytes(), b)

	// A small-order point, the identity included, is cleared by the cofactor.
	var q edwards25519.Point
	q.MultByCofactor(p)
	smallOrder := q.Equal(edwards25519.NewIdentityPoint()) == 1

	return canonical && !smallOrder
}

// isCanonicalScalar checks the 32 bytes encode a scalar below the group order.
func isCanonicalScalar(b []byte) bool {
	_, err := edwards25519.NewScalar().SetCanonicalBytes(b)
	return err == nil
}
