package types

import (
	"crypto/ed25519"
	"fmt"

	"github.com/VincentBerthier/bifrost/foundation/ledger/signature"
)

// MaxTargets is the largest number of target addresses a transaction can
// name.
const MaxTargets = 16

// Transaction is a request from the sender to mutate the ledger.
type Transaction struct {
	Sender      Address
	Targets     []Address
	Sequence    uint64 // Must equal the sender's sequence when executed.
	Instruction Instruction
	Signature   [signature.SignatureSize]byte
}

// NewTransaction constructs an unsigned transaction.
func NewTransaction(sender Address, sequence uint64, ins Instruction, targets ...Address) Transaction {
	return Transaction{
		Sender:      sender,
		Targets:     targets,
		Sequence:    sequence,
		Instruction: ins,
	}
}

// Sign uses the specified private key to sign the transaction. The key must
// belong to the sender.
func (tx Transaction) Sign(privateKey ed25519.PrivateKey) (Transaction, error) {
	if len(privateKey) != signature.PrivateKeySize {
		return Transaction{}, fmt.Errorf("invalid private key length %d", len(privateKey))
	}

	pk := privateKey.Public().(ed25519.PublicKey)
	if Address(pk) != tx.Sender {
		return Transaction{}, fmt.Errorf("private key does not belong to sender %s", tx.Sender)
	}

	msg, err := EncodeMessage(tx)
	if err != nil {
		return Transaction{}, err
	}

	sig, err := signature.Sign(privateKey, msg)
	if err != nil {
		return Transaction{}, err
	}
	copy(tx.Signature[:], sig)

	return tx, nil
}

// VerifySignature reports whether the signature was produced by the sender
// over the canonical encoding of the transaction.
func (tx Transaction) VerifySignature() bool {
	msg, err := EncodeMessage(tx)
	if err != nil {
		return false
	}

	return signature.Verify(tx.Sender[:], msg, tx.Signature[:])
}

// SignatureItem returns the transaction as an entry for batch verification.
func (tx Transaction) SignatureItem() (signature.Item, error) {
	msg, err := EncodeMessage(tx)
	if err != nil {
		return signature.Item{}, err
	}

	item := signature.Item{
		PublicKey: tx.Sender[:],
		Message:   msg,
		Signature: tx.Signature[:],
	}

	return item, nil
}

// Hash returns the digest of the full canonical encoding of the transaction,
// signature included.
func (tx Transaction) Hash() (Hash, error) {
	data, err := EncodeTransaction(tx)
	if err != nil {
		return Hash{}, err
	}
	return Sum(data), nil
}

// Addresses returns the sender followed by the targets.
func (tx Transaction) Addresses() []Address {
	addrs := make([]Address, 0, len(tx.Targets)+1)
	addrs = append(addrs, tx.Sender)
	return append(addrs, tx.Targets...)
}

// String implements the fmt.Stringer interface for logging.
func (tx Transaction) String() string {
	return fmt.Sprintf("%s:%d", tx.Sender, tx.Sequence)
}
