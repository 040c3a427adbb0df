package merkle_test

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"testing"

	"github.com/VincentBerthier/bifrost/foundation/ledger/merkle"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// Data uses the sha256 hashing algorithm for the merkle tree.
type Data struct {
	x string
}

// Hash hashes the values using sha256.
func (d Data) Hash() ([]byte, error) {
	h := sha256.Sum256([]byte(d.x))
	return h[:], nil
}

// Equals tests for equality of two piece of data.
func (d Data) Equals(other Data) bool {
	return d.x == other.x
}

// =============================================================================

func Test_Root(t *testing.T) {
	leaf := func(s string) []byte {
		h := sha256.Sum256([]byte(s))
		return sum(0x00, h[:])
	}

	type table struct {
		name string
		data []Data
		root []byte
	}

	empty := sha256.Sum256(nil)

	tt := []table{
		{name: "empty", data: nil, root: empty[:]},
		{name: "one", data: []Data{{"a"}}, root: leaf("a")},
		{name: "two", data: []Data{{"a"}, {"b"}}, root: sum(0x01, leaf("a"), leaf("b"))},
		{name: "three", data: []Data{{"a"}, {"b"}, {"c"}}, root: sum(0x01, sum(0x01, leaf("a"), leaf("b")), leaf("c"))},
	}

	t.Log("Given the need to compute the root of a set of values.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen handling %s values.", testID, tst.name)
			{
				tree, err := merkle.NewTree(tst.data)
				if err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to build the tree: %v", failed, testID, err)
				}

				if !bytes.Equal(tree.MerkleRoot, tst.root) {
					t.Logf("got: %x", tree.MerkleRoot)
					t.Logf("exp: %x", tst.root)
					t.Fatalf("\t%s\tTest %d:\tShould get the expected root.", failed, testID)
				}
				t.Logf("\t%s\tTest %d:\tShould get the expected root.", success, testID)

				if err := tree.Verify(); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould verify the tree: %v", failed, testID, err)
				}
				t.Logf("\t%s\tTest %d:\tShould verify the tree.", success, testID)
			}
		}
	}
}

func Test_Proofs(t *testing.T) {
	t.Log("Given the need to prove every value belongs to the tree.")
	{
		for n := 1; n <= 17; n++ {
			testID := n
			t.Logf("\tTest %d:\tWhen the tree holds %d values.", testID, n)
			{
				data := make([]Data, n)
				for i := range data {
					data[i] = Data{x: fmt.Sprintf("value-%d", i)}
				}

				tree, err := merkle.NewTree(data)
				if err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to build the tree: %v", failed, testID, err)
				}

				for _, d := range data {
					proof, order, err := tree.Proof(d)
					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to get a proof for %s: %v", failed, testID, d.x, err)
					}

					if err := merkle.VerifyProof(tree.MerkleRoot, d, proof, order); err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould verify the proof for %s: %v", failed, testID, d.x, err)
					}

					if err := merkle.VerifyProof(tree.MerkleRoot, Data{x: d.x + "!"}, proof, order); err == nil {
						t.Fatalf("\t%s\tTest %d:\tShould reject a tampered value for %s.", failed, testID, d.x)
					}
				}
				t.Logf("\t%s\tTest %d:\tShould verify every proof and reject tampered values.", success, testID)

				if _, _, err := tree.Proof(Data{x: "missing"}); err == nil {
					t.Fatalf("\t%s\tTest %d:\tShould fail to prove a missing value.", failed, testID)
				}
				t.Logf("\t%s\tTest %d:\tShould fail to prove a missing value.", success, testID)
			}
		}
	}
}

func Test_OddLevels(t *testing.T) {
	t.Log("Given the need for distinct value sets to have distinct roots.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen the last value of an odd set is repeated.", testID)
		{
			odd, err := merkle.NewTree([]Data{{"a"}, {"b"}, {"c"}})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to build the tree: %v", failed, testID, err)
			}

			even, err := merkle.NewTree([]Data{{"a"}, {"b"}, {"c"}, {"c"}})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to build the tree: %v", failed, testID, err)
			}

			if bytes.Equal(odd.MerkleRoot, even.MerkleRoot) {
				t.Fatalf("\t%s\tTest %d:\tShould produce different roots.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould produce different roots.", success, testID)
		}
	}
}

// =============================================================================

func sum(prefix byte, parts ...[]byte) []byte {
	h := sha256.New()
	h.Write([]byte{prefix})
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}
