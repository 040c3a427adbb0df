package types

import "bytes"

// MaxDataSize is the largest opaque state blob an account can hold.
const MaxDataSize = 4 << 10

// Account represents information stored in the ledger for an individual
// address.
type Account struct {
	Address  Address // Immutable once created.
	Sequence uint64  // Replay protection nonce, never decreases.
	Balance  uint64  // Native units (prisms) held by the account.
	Data     []byte  // Opaque state blob.
	LastTx   Hash    // Digest of the transaction that last modified the account.
}

// NewAccount constructs a new account value for use.
func NewAccount(address Address, balance uint64) Account {
	return Account{
		Address: address,
		Balance: balance,
	}
}

// Hash returns the digest of the canonical encoding of the account.
func (a Account) Hash() (Hash, error) {
	data, err := EncodeAccount(a)
	if err != nil {
		return Hash{}, err
	}
	return Sum(data), nil
}

// Equal reports whether both accounts hold the same values.
func (a Account) Equal(other Account) bool {
	return a.Address == other.Address &&
		a.Sequence == other.Sequence &&
		a.Balance == other.Balance &&
		a.LastTx == other.LastTx &&
		bytes.Equal(a.Data, other.Data)
}

// Clone returns a copy of the account that shares no memory with it.
func (a Account) Clone() Account {
	if a.Data != nil {
		a.Data = append([]byte(nil), a.Data...)
	}
	return a
}
