package signature_test

import (
	"crypto/ed25519"
	"math/big"
	"slices"
	"testing"

	"github.com/VincentBerthier/bifrost/foundation/ledger/signature"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// order is the order of the prime subgroup of edwards25519.
var order, _ = new(big.Int).SetString("7237005577332262213973186563042994240857116359379907606001950938285454250989", 10)

// =============================================================================

func Test_SignVerify(t *testing.T) {
	pub, priv := key(1)
	msg := []byte("transfer 10 prisms")

	t.Log("Given the need to sign and verify messages.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen signing with a valid key.", testID)
		{
			sig, err := signature.Sign(priv, msg)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to sign: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to sign.", success, testID)

			if !signature.Verify(pub, msg, sig) {
				t.Fatalf("\t%s\tTest %d:\tShould verify the signature.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould verify the signature.", success, testID)

			other, _ := key(2)
			if signature.Verify(other, msg, sig) {
				t.Fatalf("\t%s\tTest %d:\tShould reject another key.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould reject another key.", success, testID)

			if signature.Verify(pub, []byte("transfer 11 prisms"), sig) {
				t.Fatalf("\t%s\tTest %d:\tShould reject another message.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould reject another message.", success, testID)

			bad := slices.Clone(sig)
			bad[len(bad)-1] ^= 0x01
			if signature.Verify(pub, msg, bad) {
				t.Fatalf("\t%s\tTest %d:\tShould reject a corrupted last byte.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould reject a corrupted last byte.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the private key is truncated.", testID)
		{
			if _, err := signature.Sign(priv[:10], msg); err == nil {
				t.Fatalf("\t%s\tTest %d:\tShould refuse to sign.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould refuse to sign.", success, testID)
		}
	}
}

func Test_Malleability(t *testing.T) {
	pub, priv := key(3)
	msg := []byte("touch")
	sig := ed25519.Sign(priv, msg)

	t.Log("Given the need to reject non-canonical and small order components.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen the scalar is not reduced.", testID)
		{
			s := new(big.Int).SetBytes(reverse(sig[32:]))
			s.Add(s, order)

			bad := slices.Clone(sig)
			copy(bad[32:], reverse(leftPad(s.Bytes(), 32)))

			if signature.Verify(pub, msg, bad) {
				t.Fatalf("\t%s\tTest %d:\tShould reject S + L.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould reject S + L.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the public key is the identity point.", testID)
		{
			identity := make([]byte, 32)
			identity[0] = 0x01

			forged := make([]byte, 64)
			copy(forged, identity)

			if signature.Verify(identity, msg, forged) {
				t.Fatalf("\t%s\tTest %d:\tShould reject the identity key.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould reject the identity key.", success, testID)

			if signature.Verify(identity, msg, sig) {
				t.Fatalf("\t%s\tTest %d:\tShould reject the identity key with any signature.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould reject the identity key with any signature.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the R component is the identity point.", testID)
		{
			bad := slices.Clone(sig)
			clear(bad[:32])
			bad[0] = 0x01

			if signature.Verify(pub, msg, bad) {
				t.Fatalf("\t%s\tTest %d:\tShould reject a small order R.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould reject a small order R.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the lengths are wrong.", testID)
		{
			if signature.Verify(pub[:31], msg, sig) || signature.Verify(pub, msg, sig[:63]) {
				t.Fatalf("\t%s\tTest %d:\tShould reject short inputs.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould reject short inputs.", success, testID)
		}
	}
}

func Test_VerifyBatch(t *testing.T) {
	t.Log("Given the need to verify signatures in batches.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen the batch mixes valid and invalid signatures.", testID)
		{
			var items []signature.Item
			for i := range 32 {
				pub, priv := key(byte(i))
				msg := []byte{byte(i)}
				sig := ed25519.Sign(priv, msg)

				switch i % 4 {
				case 1:
					sig[63] ^= 0xff
				case 2:
					msg = []byte("other")
				case 3:
					pub, _ = key(byte(i + 1))
				}

				items = append(items, signature.Item{PublicKey: pub, Message: msg, Signature: sig})
			}

			got := signature.VerifyBatch(items)
			for i, item := range items {
				exp := signature.Verify(item.PublicKey, item.Message, item.Signature)
				if got[i] != exp {
					t.Fatalf("\t%s\tTest %d:\tShould decide item %d like Verify: got %t, exp %t", failed, testID, i, got[i], exp)
				}
				if got[i] != (i%4 == 0) {
					t.Fatalf("\t%s\tTest %d:\tShould accept only untouched items: item %d", failed, testID, i)
				}
			}
			t.Logf("\t%s\tTest %d:\tShould decide every item like Verify.", success, testID)
		}
	}
}

// =============================================================================

func key(b byte) (ed25519.PublicKey, ed25519.PrivateKey) {
	seed := make([]byte, ed25519.SeedSize)
	seed[0] = b
	seed[1] = 0x5a

	priv := ed25519.NewKeyFromSeed(seed)
	return priv.Public().(ed25519.PublicKey), priv
}

func reverse(b []byte) []byte {
	out := slices.Clone(b)
	slices.Reverse(out)
	return out
}

func leftPad(b []byte, n int) []byte {
	out := make([]byte, n)
	copy(out[n-len(b):], b)
	return out
}
