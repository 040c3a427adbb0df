package database

import (
	"errors"
	"fmt"

	"github.com/VincentBerthier/bifrost/foundation/ledger/errs"
	"github.com/VincentBerthier/bifrost/foundation/ledger/types"
)

// ErrNotEmpty is returned when seeding a store that already holds accounts.
var ErrNotEmpty = errors.New("store is not empty")

// Seed writes the initial accounts of a fresh store as its first commit.
// The accounts keep the sequence numbers they are given.
func (db *Database) Seed(accounts []types.Account) (types.Hash, error) {
	db.commitMu.Lock()
	defer db.commitMu.Unlock()

	if err := db.Halted(); err != nil {
		return types.Hash{}, err
	}

	db.mu.Lock()
	if len(db.index) != 0 || len(db.staged) != 0 {
		db.mu.Unlock()
		return types.Hash{}, ErrNotEmpty
	}

	var need uint64
	for _, account := range accounts {
		data, err := types.EncodeAccount(account)
		if err != nil {
			db.dropStaged()
			db.mu.Unlock()
			return types.Hash{}, fmt.Errorf("account %s: %w", account.Address, err)
		}

		if _, exists := db.staged[account.Address]; exists {
			db.dropStaged()
			db.mu.Unlock()
			return types.Hash{}, errs.New(errs.SchemaViolation, "account %s seeded twice", account.Address)
		}

		db.staged[account.Address] = staged{account: account.Clone(), record: data}
		need += recordSize(data)
	}

	if db.header.Tail+need > db.m.size() {
		db.dropStaged()
		db.mu.Unlock()
		return types.Hash{}, errs.New(errs.CapacityExceeded, "need %d bytes, %d free", need, db.m.size()-db.header.Tail)
	}
	db.stagedBytes = need
	db.mu.Unlock()

	if len(accounts) == 0 {
		return db.Snapshot(), nil
	}

	db.evHandler("database: seed: accounts[%d]", len(accounts))

	snapshot, err := db.commit()
	if err != nil {
		db.mu.Lock()
		db.halted = errs.Wrap(errs.StoreCorruption, fmt.Errorf("seed: %w", err))
		db.dropStaged()
		err = db.halted
		db.mu.Unlock()
		return types.Hash{}, err
	}

	return snapshot, nil
}
