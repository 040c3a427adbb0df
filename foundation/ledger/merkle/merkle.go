// Package merkle provides the merkle tree used to address a ledger snapshot
// by the digest of its contents and to prove an account belongs to it.
//
// Leaf and interior hashes are domain separated (0x00 and 0x01 prefixes) and
// an odd node at the end of a level is promoted to the next level unchanged
// rather than paired with a copy of itself, so two different leaf sets can
// not produce the same root.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Prefixes used to separate leaf hashing from interior node hashing.
const (
	leafPrefix     = 0x00
	interiorPrefix = 0x01
)

// Order values returned with a proof.
const (
	ProofFirst  int64 = 0 // proof hash is the left operand
	ProofSecond int64 = 1 // proof hash is the right operand
)

// Hashable represents the behavior concrete data must exhibit to be used in
// the merkle tree.
type Hashable[T any] interface {
	Hash() ([]byte, error)
	Equals(other T) bool
}

// =============================================================================

// Tree represents a merkle tree that uses data of some type T that exhibits the
// behavior defined by the Hashable constraint.
type Tree[T Hashable[T]] struct {
	Leafs        []T
	MerkleRoot   []byte
	levels       [][][]byte
	hashStrategy func() hash.Hash
}

// WithHashStrategy is used to change the default hash strategy of using sha256
// when constructing a new tree.
func WithHashStrategy[T Hashable[T]](hashStrategy func() hash.Hash) func(t *Tree[T]) {
	return func(t *Tree[T]) {
		t.hashStrategy = hashStrategy
	}
}

// NewTree constructs a new merkle tree that uses data of some type T that
// exhibits the behavior defined by the Hashable interface. An empty set of
// values is allowed and produces the hash of no data as the root.
func NewTree[T Hashable[T]](values []T, options ...func(t *Tree[T])) (*Tree[T], error) {
	t := Tree[T]{
		hashStrategy: sha256.New,
	}

	for _, option := range options {
		option(&t)
	}

	if err := t.Generate(values); err != nil {
		return nil, err
	}

	return &t, nil
}

// Generate constructs the levels of the tree from the specified data. If the
// tree has been generated previously, the tree is re-generated from scratch.
func (t *Tree[T]) Generate(values []T) error {
	if len(values) == 0 {
		t.Leafs = nil
		t.levels = nil
		t.MerkleRoot = t.hashStrategy().Sum(nil)
		return nil
	}

	level := make([][]byte, len(values))
	for i, value := range values {
		h, err := value.Hash()
		if err != nil {
			return fmt.Errorf("hashing leaf %d: %w", i, err)
		}
		level[i] = t.sum(leafPrefix, h)
	}

	levels := [][][]byte{level}
	for len(level) > 1 {
		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			next = append(next, t.sum(interiorPrefix, level[i], level[i+1]))
		}
		levels = append(levels, next)
		level = next
	}

	t.Leafs = values
	t.levels = levels
	t.MerkleRoot = level[0]

	return nil
}

// Proof returns the set of hashes and the order of concatenating those
// hashes for proving the data is in the tree.
//
// Hash the data in question with the leaf prefix, then for every proof hash
// concatenate it first (order 0) or second (order 1) behind the interior
// prefix and hash again. The final hash must match the merkle root.
func (t *Tree[T]) Proof(data T) ([][]byte, []int64, error) {
	for i, value := range t.Leafs {
		if value.Equals(data) {
			return t.ProofAt(i)
		}
	}

	return nil, nil, errors.New("unable to find data in tree")
}

// ProofAt returns the proof for the leaf at the specified index.
func (t *Tree[T]) ProofAt(index int) ([][]byte, []int64, error) {
	if index < 0 || index >= len(t.Leafs) {
		return nil, nil, fmt.Errorf("leaf index %d out of range", index)
	}

	var proof [][]byte
	var order []int64

	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := index ^ 1
		switch {
		case sibling >= len(level):
			// Promoted node, nothing to combine at this level.
		case sibling < index:
			proof = append(proof, level[sibling])
			order = append(order, ProofFirst)
		default:
			proof = append(proof, level[sibling])
			order = append(order, ProofSecond)
		}
		index /= 2
	}

	return proof, order, nil
}

// Verify re-hashes every leaf and returns an error if the resulting root
// does not match the root of the tree.
func (t *Tree[T]) Verify() error {
	cpy := Tree[T]{hashStrategy: t.hashStrategy}
	if err := cpy.Generate(t.Leafs); err != nil {
		return err
	}

	if !bytes.Equal(t.MerkleRoot, cpy.MerkleRoot) {
		return errors.New("root hash invalid")
	}

	return nil
}

// Values returns the values stored in the tree.
func (t *Tree[T]) Values() []T {
	return t.Leafs
}

// RootHex converts the merkle root byte hash to a hex encoded string.
func (t *Tree[T]) RootHex() string {
	return hexutil.Encode(t.MerkleRoot)
}

// MarshalText implements the TextMarshaler interface and produces a panic
// if anyone tries to marshal the Merkle tree. Use the Values function to
// return a slice that can be marshaled.
func (t *Tree[T]) MarshalText() (text []byte, err error) {
	panic("do not marshal the merkle tree, use Values")
}

func (t *Tree[T]) sum(prefix byte, parts ...[]byte) []byte {
	return sum(t.hashStrategy, prefix, parts...)
}

// =============================================================================

// VerifyProof checks the value belongs to the tree with the specified root
// using sha256, the default hash strategy.
func VerifyProof[T Hashable[T]](root []byte, value T, proof [][]byte, order []int64) error {
	if len(proof) != len(order) {
		return errors.New("proof and order lengths differ")
	}

	h, err := value.Hash()
	if err != nil {
		return err
	}

	current := sum(sha256.New, leafPrefix, h)
	for i, p := range proof {
		switch order[i] {
		case ProofFirst:
			current = sum(sha256.New, interiorPrefix, p, current)
		case ProofSecond:
			current = sum(sha256.New, interiorPrefix, current, p)
		default:
			return fmt.Errorf("invalid proof order %d", order[i])
		}
	}

	if !bytes.Equal(current, root) {
		return errors.New("merkle root is not equivalent to the merkle root calculated on the critical path")
	}

	return nil
}

func sum(hashStrategy func() hash.Hash, prefix byte, parts ...[]byte) []byte {
	h := hashStrategy()
	h.Write([]byte{prefix})
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}
