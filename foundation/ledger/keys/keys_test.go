package keys_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/VincentBerthier/bifrost/foundation/ledger/keys"
	"github.com/VincentBerthier/bifrost/foundation/ledger/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeededDeterminism(t *testing.T) {
	a, b := keys.NewSeeded(42), keys.NewSeeded(42)

	seen := make(map[types.Address]bool)
	for range 10 {
		ka, err := a.GenerateKeypair()
		require.NoError(t, err)
		kb, err := b.GenerateKeypair()
		require.NoError(t, err)

		assert.Equal(t, ka, kb, "same seed must give the same sequence")
		assert.False(t, seen[ka.Address()], "keypairs in a sequence must differ")
		seen[ka.Address()] = true
	}

	other, err := keys.NewSeeded(43).GenerateKeypair()
	require.NoError(t, err)
	first, err := keys.NewSeeded(42).GenerateKeypair()
	require.NoError(t, err)
	assert.NotEqual(t, first.Address(), other.Address(), "different seeds must give different keys")
}

func TestSeededConcurrent(t *testing.T) {
	src := keys.NewSeeded(1)

	var (
		mu   sync.Mutex
		seen = make(map[types.Address]bool)
		wg   sync.WaitGroup
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 25 {
				kp, err := src.GenerateKeypair()
				if err != nil {
					t.Error(err)
					return
				}
				mu.Lock()
				seen[kp.Address()] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 200, "concurrent callers must never share a keypair")
}

func TestSecure(t *testing.T) {
	src := keys.NewSecure()

	a, err := src.GenerateKeypair()
	require.NoError(t, err)
	b, err := src.GenerateKeypair()
	require.NoError(t, err)

	assert.NotEqual(t, a.Address(), b.Address())
	assert.Equal(t, types.Address(a.PublicKey), a.Address())
}

func TestKeyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "accounts", "kennedy"+keys.Extension)

	kp, err := keys.NewSeeded(9).GenerateKeypair()
	require.NoError(t, err)
	require.NoError(t, keys.Save(path, kp))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	got, err := keys.Load(path)
	require.NoError(t, err)
	assert.Equal(t, kp, got)

	other, err := keys.NewSeeded(10).GenerateKeypair()
	require.NoError(t, err)

	mixed := filepath.Join(dir, "mixed"+keys.Extension)
	require.NoError(t, keys.Save(mixed, keys.Keypair{PublicKey: other.PublicKey, PrivateKey: kp.PrivateKey}))
	_, err = keys.Load(mixed)
	assert.Error(t, err, "public key must match the private key")

	_, err = keys.Load(filepath.Join(dir, "missing"+keys.Extension))
	assert.Error(t, err)
}
