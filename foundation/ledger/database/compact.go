package database

import (
	"encoding/binary"
	"fmt"
	"os"
)

// Compact reclaims the space held by superseded records. The live records
// are written to a fresh file next to the store which then atomically
// replaces it. The snapshot digest does not change.
func (db *Database) Compact() error {
	db.commitMu.Lock()
	defer db.commitMu.Unlock()

	if err := db.Halted(); err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if len(db.staged) > 0 {
		return ErrStaged
	}

	before := db.header.Tail
	tmp := db.path + ".compact"
	os.Remove(tmp)

	m, _, err := openMapping(tmp, int64(db.m.size()))
	if err != nil {
		return fmt.Errorf("creating compacted store: %w", err)
	}

	// Copy the live records in address order.
	addrs := db.sortedAddresses(nil)
	off := uint64(regionStart)
	for _, addr := range addrs {
		e := db.index[addr]
		binary.LittleEndian.PutUint32(m.data[off:], uint32(e.size))
		copy(m.data[off+lenPrefix:], db.m.data[e.offset+lenPrefix:e.offset+lenPrefix+e.size])
		off += lenPrefix + e.size
	}

	h := Header{
		Version:    FormatVersion,
		Generation: db.header.Generation + 1,
		Tail:       off,
		Count:      uint64(len(addrs)),
		Snapshot:   db.header.Snapshot,
	}
	h.encode(m.data[0:headerSize])

	if err := m.sync(); err != nil {
		m.close()
		os.Remove(tmp)
		return fmt.Errorf("syncing compacted store: %w", err)
	}

	if err := m.close(); err != nil {
		os.Remove(tmp)
		return err
	}

	// The rename is the commit point of the compaction.
	if err := os.Rename(tmp, db.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing store: %w", err)
	}

	old := db.m
	m, _, err = openMapping(db.path, 0)
	if err != nil {
		db.halted = fmt.Errorf("reopening compacted store: %w", err)
		return db.halted
	}
	db.m = m
	old.close()

	if err := db.load(); err != nil {
		db.halted = err
		return err
	}

	db.evHandler("database: compact: reclaimed[%d] bytes accounts[%d]", before-db.header.Tail, len(addrs))

	return nil
}

// Live returns the number of bytes taken by the committed records and the
// number of those bytes held by records that were superseded.
func (db *Database) Live() (used uint64, garbage uint64) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	used = db.header.Tail - regionStart
	var live uint64
	for _, e := range db.index {
		live += lenPrefix + e.size
	}

	return used, used - live
}
