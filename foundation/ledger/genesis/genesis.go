// Package genesis maintains access to the genesis file.
package genesis

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"slices"
	"time"

	"github.com/VincentBerthier/bifrost/foundation/ledger/types"
)

// Genesis represents the genesis file.
type Genesis struct {
	Date     time.Time         `json:"date"`
	Balances map[string]uint64 `json:"balances"` // Base58 address to prisms.
}

// =============================================================================

// Load opens and consumes the genesis file.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	err = json.Unmarshal(content, &genesis)
	if err != nil {
		return Genesis{}, err
	}

	if _, err := genesis.Accounts(); err != nil {
		return Genesis{}, fmt.Errorf("genesis %s: %w", path, err)
	}

	return genesis, nil
}

// Accounts returns the funded accounts sorted by address. The total supply
// must fit in a balance.
func (g Genesis) Accounts() ([]types.Account, error) {
	accounts := make([]types.Account, 0, len(g.Balances))

	var supply uint64
	for s, balance := range g.Balances {
		addr, err := types.ParseAddress(s)
		if err != nil {
			return nil, fmt.Errorf("balance %q: %w", s, err)
		}

		if supply > math.MaxUint64-balance {
			return nil, fmt.Errorf("total supply overflows at %s", s)
		}
		supply += balance

		accounts = append(accounts, types.NewAccount(addr, balance))
	}

	slices.SortFunc(accounts, func(a, b types.Account) int {
		return types.Compare(a.Address, b.Address)
	})

	return accounts, nil
}

// Supply returns the total number of prisms created by the genesis.
func (g Genesis) Supply() uint64 {
	var supply uint64
	for _, balance := range g.Balances {
		supply += balance
	}
	return supply
}
