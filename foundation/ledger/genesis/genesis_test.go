package genesis_test

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/VincentBerthier/bifrost/foundation/ledger/genesis"
	"github.com/VincentBerthier/bifrost/foundation/ledger/keys"
	"github.com/VincentBerthier/bifrost/foundation/ledger/types"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	src := keys.NewSeeded(9)
	a, err := src.GenerateKeypair()
	require.NoError(t, err)
	b, err := src.GenerateKeypair()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "genesis.json")
	content := `{"date":"2026-01-01T00:00:00Z","balances":{"` + a.Address().String() + `":300,"` + b.Address().String() + `":200}}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	gen, err := genesis.Load(path)
	require.NoError(t, err)
	require.Equal(t, uint64(500), gen.Supply())

	accounts, err := gen.Accounts()
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	require.Negative(t, types.Compare(accounts[0].Address, accounts[1].Address), "accounts are sorted by address")

	for _, acc := range accounts {
		require.Zero(t, acc.Sequence)
		require.Empty(t, acc.Data)
	}
}

func TestAccountsRejects(t *testing.T) {
	src := keys.NewSeeded(10)
	a, err := src.GenerateKeypair()
	require.NoError(t, err)
	b, err := src.GenerateKeypair()
	require.NoError(t, err)

	t.Run("bad address", func(t *testing.T) {
		gen := genesis.Genesis{Balances: map[string]uint64{"not-base58!": 1}}
		_, err := gen.Accounts()
		require.Error(t, err)
	})

	t.Run("supply overflow", func(t *testing.T) {
		gen := genesis.Genesis{Balances: map[string]uint64{
			a.Address().String(): math.MaxUint64,
			b.Address().String(): 1,
		}}
		_, err := gen.Accounts()
		require.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := genesis.Load(filepath.Join(t.TempDir(), "none.json"))
		require.Error(t, err)
	})
}
