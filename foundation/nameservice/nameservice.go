// Package nameservice reads a folder of key files and creates a name
// service lookup for the addresses they hold.
package nameservice

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/VincentBerthier/bifrost/foundation/ledger/keys"
	"github.com/VincentBerthier/bifrost/foundation/ledger/types"
)

// NameService maintains a map of addresses for name lookup.
type NameService struct {
	accounts map[types.Address]string
	names    map[string]types.Address
}

// New constructs a name service with the key files found under root. The
// name of an address is its key file name without the extension. A missing
// root yields an empty name service.
func New(root string) (*NameService, error) {
	ns := NameService{
		accounts: make(map[types.Address]string),
		names:    make(map[string]types.Address),
	}

	fn := func(fileName string, d fs.DirEntry, err error) error {
		if err != nil {
			if fileName == root && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipDir
			}
			return fmt.Errorf("walkdir failure: %w", err)
		}

		if d.IsDir() || filepath.Ext(fileName) != keys.Extension {
			return nil
		}

		kp, err := keys.Load(fileName)
		if err != nil {
			return err
		}

		name := strings.TrimSuffix(filepath.Base(fileName), keys.Extension)
		ns.accounts[kp.Address()] = name
		ns.names[name] = kp.Address()

		return nil
	}

	if err := filepath.WalkDir(root, fn); err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	return &ns, nil
}

// Lookup returns the name for the specified address, or its base58 form
// when the address is unknown.
func (ns *NameService) Lookup(address types.Address) string {
	name, exists := ns.accounts[address]
	if !exists {
		return address.String()
	}
	return name
}

// Resolve returns the address for a name. A string that is not a known name
// is parsed as a base58 address.
func (ns *NameService) Resolve(s string) (types.Address, error) {
	if addr, exists := ns.names[s]; exists {
		return addr, nil
	}
	return types.ParseAddress(s)
}

// Copy returns a copy of the map of names and addresses.
func (ns *NameService) Copy() map[types.Address]string {
	cpy := make(map[types.Address]string, len(ns.accounts))
	for address, name := range ns.accounts {
		cpy[address] = name
	}
	return cpy
}
