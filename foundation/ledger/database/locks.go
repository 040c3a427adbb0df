package database

import (
	"sync"

	"github.com/VincentBerthier/bifrost/foundation/ledger/types"
)

// lockTable hands out one mutex per address. Entries only live while some
// caller holds or waits for them.
type lockTable struct {
	mu    sync.Mutex
	locks map[types.Address]*addrLock
}

type addrLock struct {
	mu   sync.Mutex
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{
		locks: make(map[types.Address]*addrLock),
	}
}

// lock acquires the locks of every address in ascending address order, so
// two callers naming overlapping sets can not deadlock. The returned function
// releases them.
func (lt *lockTable) lock(addrs []types.Address) func() {
	sorted := append([]types.Address(nil), addrs...)
	types.SortAddresses(sorted)

	held := make([]*addrLock, len(sorted))

	lt.mu.Lock()
	for i, addr := range sorted {
		l, exists := lt.locks[addr]
		if !exists {
			l = &addrLock{}
			lt.locks[addr] = l
		}
		l.refs++
		held[i] = l
	}
	lt.mu.Unlock()

	for _, l := range held {
		l.mu.Lock()
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
		}

		lt.mu.Lock()
		for i, addr := range sorted {
			held[i].refs--
			if held[i].refs == 0 {
				delete(lt.locks, addr)
			}
		}
		lt.mu.Unlock()
	}
}
