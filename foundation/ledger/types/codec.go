package types

import (
	"math"

	"github.com/VincentBerthier/bifrost/foundation/ledger/errs"
	"github.com/VincentBerthier/bifrost/foundation/ledger/signature"
	"github.com/ethereum/go-ethereum/rlp"
)

// FormatVersion is the tag leading every encoded record. A record carrying a
// different tag is rejected with errs.UnknownVersion.
const FormatVersion byte = 0x01

// The wire forms below are RLP lists. RLP only has one encoding per value
// (minimal integers, exact-length arrays, no trailing bytes) so an encoded
// record can be hashed and signed.

type messageRLP struct {
	Sender   Address
	Targets  []Address
	Sequence uint64
	Kind     uint8
	Body     []byte
}

type transactionRLP struct {
	Sender    Address
	Targets   []Address
	Sequence  uint64
	Kind      uint8
	Body      []byte
	Signature [signature.SignatureSize]byte
}

type accountRLP struct {
	Address  Address
	Sequence uint64
	Balance  uint64
	Data     []byte
	LastTx   Hash
}

type transferRLP struct {
	Amount uint64
}

type writeRLP struct {
	Data []byte
}

// =============================================================================

// EncodeMessage returns the canonical encoding of every transaction field
// that precedes the signature. This is what the sender signs.
func EncodeMessage(tx Transaction) ([]byte, error) {
	if err := validateTransaction(tx); err != nil {
		return nil, err
	}

	kind, body, err := encodeInstruction(tx.Instruction)
	if err != nil {
		return nil, err
	}

	msg := messageRLP{
		Sender:   tx.Sender,
		Targets:  tx.Targets,
		Sequence: tx.Sequence,
		Kind:     uint8(kind),
		Body:     body,
	}

	return encode(msg)
}

// EncodeTransaction returns the canonical encoding of the transaction.
func EncodeTransaction(tx Transaction) ([]byte, error) {
	if err := validateTransaction(tx); err != nil {
		return nil, err
	}

	kind, body, err := encodeInstruction(tx.Instruction)
	if err != nil {
		return nil, err
	}

	w := transactionRLP{
		Sender:    tx.Sender,
		Targets:   tx.Targets,
		Sequence:  tx.Sequence,
		Kind:      uint8(kind),
		Body:      body,
		Signature: tx.Signature,
	}

	return encode(w)
}

// DecodeTransaction converts the canonical encoding back into a transaction.
func DecodeTransaction(data []byte) (Transaction, error) {
	payload, err := unwrap(data)
	if err != nil {
		return Transaction{}, err
	}

	var w transactionRLP
	if err := rlp.DecodeBytes(payload, &w); err != nil {
		return Transaction{}, errs.Wrap(errs.MalformedRecord, err)
	}

	ins, err := decodeInstruction(Kind(w.Kind), w.Body)
	if err != nil {
		return Transaction{}, err
	}

	tx := Transaction{
		Sender:      w.Sender,
		Sequence:    w.Sequence,
		Instruction: ins,
		Signature:   w.Signature,
	}
	if len(w.Targets) > 0 {
		tx.Targets = w.Targets
	}

	if err := validateTransaction(tx); err != nil {
		return Transaction{}, err
	}

	return tx, nil
}

// EncodeAccount returns the canonical encoding of the account.
func EncodeAccount(a Account) ([]byte, error) {
	if err := validateAccount(a); err != nil {
		return nil, err
	}

	w := accountRLP{
		Address:  a.Address,
		Sequence: a.Sequence,
		Balance:  a.Balance,
		Data:     a.Data,
		LastTx:   a.LastTx,
	}

	return encode(w)
}

// DecodeAccount converts the canonical encoding back into an account.
func DecodeAccount(data []byte) (Account, error) {
	payload, err := unwrap(data)
	if err != nil {
		return Account{}, err
	}

	var w accountRLP
	if err := rlp.DecodeBytes(payload, &w); err != nil {
		return Account{}, errs.Wrap(errs.MalformedRecord, err)
	}

	a := Account{
		Address:  w.Address,
		Sequence: w.Sequence,
		Balance:  w.Balance,
		LastTx:   w.LastTx,
	}
	if len(w.Data) > 0 {
		a.Data = w.Data
	}

	if err := validateAccount(a); err != nil {
		return Account{}, err
	}

	return a, nil
}

// =============================================================================

// encode prefixes the RLP encoding of the value with the format version.
func encode(v any) ([]byte, error) {
	data, err := rlp.EncodeToBytes(v)
	if err != nil {
		return nil, errs.Wrap(errs.SchemaViolation, err)
	}

	out := make([]byte, 0, len(data)+1)
	out = append(out, FormatVersion)
	return append(out, data...), nil
}

// unwrap checks the format version and returns the RLP payload.
func unwrap(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errs.New(errs.MalformedRecord, "empty record")
	}

	if data[0] != FormatVersion {
		return nil, errs.New(errs.UnknownVersion, "format tag %#x", data[0])
	}

	return data[1:], nil
}

func encodeInstruction(ins Instruction) (Kind, []byte, error) {
	switch v := ins.(type) {
	case Transfer:
		body, err := rlp.EncodeToBytes(transferRLP{Amount: v.Amount})
		return KindTransfer, body, err

	case Write:
		body, err := rlp.EncodeToBytes(writeRLP{Data: v.Data})
		return KindWrite, body, err

	case Touch:
		return KindTouch, nil, nil
	}

	return 0, nil, errs.New(errs.SchemaViolation, "unsupported instruction %T", ins)
}

func decodeInstruction(kind Kind, body []byte) (Instruction, error) {
	switch kind {
	case KindTransfer:
		var w transferRLP
		if err := rlp.DecodeBytes(body, &w); err != nil {
			return nil, errs.Wrap(errs.MalformedRecord, err)
		}
		return Transfer{Amount: w.Amount}, nil

	case KindWrite:
		var w writeRLP
		if err := rlp.DecodeBytes(body, &w); err != nil {
			return nil, errs.Wrap(errs.MalformedRecord, err)
		}
		if len(w.Data) == 0 {
			return Write{}, nil
		}
		return Write{Data: w.Data}, nil

	case KindTouch:
		if len(body) != 0 {
			return nil, errs.New(errs.SchemaViolation, "touch carries a %d byte body", len(body))
		}
		return Touch{}, nil
	}

	return nil, errs.New(errs.SchemaViolation, "unknown instruction %s", kind)
}

// validateTransaction checks every field is inside its declared domain.
func validateTransaction(tx Transaction) error {
	if len(tx.Targets) > MaxTargets {
		return errs.New(errs.SchemaViolation, "too many targets, got %d, max %d", len(tx.Targets), MaxTargets)
	}

	seen := make(map[Address]struct{}, len(tx.Targets))
	for _, target := range tx.Targets {
		if target == tx.Sender {
			return errs.New(errs.SchemaViolation, "sender %s is also a target", target)
		}
		if _, exists := seen[target]; exists {
			return errs.New(errs.SchemaViolation, "duplicate target %s", target)
		}
		seen[target] = struct{}{}
	}

	switch ins := tx.Instruction.(type) {
	case Transfer:
		if ins.Amount == 0 {
			return errs.New(errs.SchemaViolation, "transfer of zero prisms")
		}
		if len(tx.Targets) == 0 {
			return errs.New(errs.SchemaViolation, "transfer without target")
		}
		if ins.Amount > math.MaxUint64/uint64(len(tx.Targets)) {
			return errs.New(errs.SchemaViolation, "transfer total overflows")
		}

	case Write:
		if len(tx.Targets) != 0 {
			return errs.New(errs.SchemaViolation, "write takes no target, got %d", len(tx.Targets))
		}
		if len(ins.Data) > MaxDataSize {
			return errs.New(errs.SchemaViolation, "data too large, got %d, max %d", len(ins.Data), MaxDataSize)
		}

	case Touch:

	default:
		return errs.New(errs.SchemaViolation, "unsupported instruction %T", tx.Instruction)
	}

	return nil
}

// validateAccount checks every field is inside its declared domain.
func validateAccount(a Account) error {
	if len(a.Data) > MaxDataSize {
		return errs.New(errs.SchemaViolation, "data too large, got %d, max %d", len(a.Data), MaxDataSize)
	}
	return nil
}
