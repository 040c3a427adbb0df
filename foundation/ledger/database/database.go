// Package database handles all the lower level support for maintaining the
// account ledger on disk.
//
// The accounts live in a single memory-mapped file. Mutations are staged in
// memory by Apply and only reach the file on Commit, which appends the new
// account records after the committed ones (records are never rewritten in
// place) and then swaps the header slot. A crash before the header swap
// leaves the previous header, and therefore the previous state, in charge.
package database

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/VincentBerthier/bifrost/foundation/ledger/errs"
	"github.com/VincentBerthier/bifrost/foundation/ledger/merkle"
	"github.com/VincentBerthier/bifrost/foundation/ledger/types"
	"github.com/VincentBerthier/bifrost/foundation/validate"
)

// DefaultCapacity is the size of a new store file when none is configured.
const DefaultCapacity = 64 << 20

// EventHandler defines a function that is called when events occur in the
// processing of the store.
type EventHandler func(v string, args ...any)

// Config represents the configuration required to open a store.
type Config struct {
	Path      string `validate:"required"`
	Capacity  int64  `validate:"omitempty,gte=4096"`
	EvHandler EventHandler
}

// Mutation describes an atomic change to the sender account and any other
// accounts it touches.
type Mutation struct {
	Expected uint64          // Sender sequence the mutation was built against.
	Require  bool            // The sender account must already exist.
	Touches  []types.Address // Other accounts read and written.
	LastTx   types.Hash      // Recorded as the last-modified digest of every account written.

	// Change receives copies of the sender and touched accounts in the order of
	// Touches. Accounts that do not exist yet are zero valued apart from their
	// address. Sequence numbers are owned by the store and changes to them are
	// ignored.
	Change func(sender *types.Account, others []*types.Account) error
}

// entry locates a committed account record in the mapped region.
type entry struct {
	offset uint64
	size   uint64
	hash   types.Hash
}

// staged is an applied but not yet committed account.
type staged struct {
	account types.Account
	record  []byte
}

// =============================================================================

// Database manages the accounts who have transacted on the ledger.
type Database struct {
	path      string
	evHandler EventHandler

	// commitMu is held shared by Apply and exclusively by Commit, Rollback
	// and Compact.
	commitMu sync.RWMutex

	// mu protects everything below.
	mu          sync.RWMutex
	m           *mapping
	header      Header
	slot        int
	index       map[types.Address]entry
	staged      map[types.Address]staged
	stagedBytes uint64
	halted      error

	locks *lockTable

	// crashBeforeSwap lets tests stop a commit after the records are written
	// but before the header is swapped.
	crashBeforeSwap func() error
}

// Open maps the store file, creating it when it does not exist, and replays
// the committed records. When the last commit does not verify but the one
// before it does, the store opens halted on that older snapshot: reads are
// served and writes fail with errs.StoreCorruption. A store with no
// verifiable commit is refused with errs.StoreCorruption.
func Open(cfg Config) (*Database, error) {
	if err := validate.Check(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	capacity := cfg.Capacity
	if capacity == 0 {
		capacity = DefaultCapacity
	}

	m, created, err := openMapping(cfg.Path, capacity)
	if err != nil {
		return nil, err
	}

	db := Database{
		path:      cfg.Path,
		evHandler: ev,
		m:         m,
		staged:    make(map[types.Address]staged),
		locks:     newLockTable(),
	}

	if created {
		ev("database: open: creating store: path[%s] capacity[%d]", cfg.Path, capacity)
		if err := db.initialize(); err != nil {
			m.close()
			return nil, err
		}
	}

	if err := db.load(); err != nil {
		m.close()
		return nil, err
	}

	if db.halted != nil {
		ev("database: open: ERROR: %s", db.halted)
	}
	ev("database: open: generation[%d] accounts[%d] snapshot[%s]", db.header.Generation, len(db.index), db.header.Snapshot)

	return &db, nil
}

// Close unmaps the store. Staged mutations that were not committed are lost.
func (db *Database) Close() error {
	db.commitMu.Lock()
	defer db.commitMu.Unlock()

	db.mu.Lock()
	defer db.mu.Unlock()

	if db.m == nil {
		return nil
	}

	err := db.m.close()
	db.m = nil
	db.halted = ErrClosed
	db.dropStaged()

	return err
}

// Header returns the header of the last commit.
func (db *Database) Header() Header {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.header
}

// Snapshot returns the root digest of the last commit.
func (db *Database) Snapshot() types.Hash {
	return db.Header().Snapshot
}

// Halted returns the error that stopped the store from accepting writes, if
// any.
func (db *Database) Halted() error {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.halted
}

// Get returns the latest applied version of the account, staged mutations
// included.
func (db *Database) Get(address types.Address) (types.Account, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if s, exists := db.staged[address]; exists {
		return s.account.Clone(), true
	}

	return db.committed(address)
}

// Committed returns the account as of the last commit.
func (db *Database) Committed(address types.Address) (types.Account, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.committed(address)
}

// Count returns the number of committed accounts.
func (db *Database) Count() int {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return len(db.index)
}

// Accounts returns a copy of every committed account sorted by address.
func (db *Database) Accounts() []types.Account {
	db.mu.RLock()
	defer db.mu.RUnlock()

	addrs := db.sortedAddresses(nil)
	accounts := make([]types.Account, 0, len(addrs))
	for _, addr := range addrs {
		if account, exists := db.committed(addr); exists {
			accounts = append(accounts, account)
		}
	}

	return accounts
}

// Apply performs the mutation against the sender account and the accounts
// it touches and stages the result. Calls naming different addresses run in
// parallel, calls sharing an address are serialized. It returns the new
// sequence number of the sender.
func (db *Database) Apply(sender types.Address, mut Mutation) (uint64, error) {
	db.commitMu.RLock()
	defer db.commitMu.RUnlock()

	if err := db.Halted(); err != nil {
		return 0, err
	}

	addrs := uniqueAddresses(sender, mut.Touches)
	unlock := db.locks.lock(addrs)
	defer unlock()

	// Capture the accounts from the store.
	from, exists := db.Get(sender)
	if !exists {
		if mut.Require {
			return 0, errs.New(errs.UnknownAccount, "account %s does not exist", sender)
		}
		from = types.NewAccount(sender, 0)
	}

	if from.Sequence != mut.Expected {
		return 0, errs.New(errs.SequenceMismatch, "account %s, current %d, provided %d", sender, from.Sequence, mut.Expected)
	}

	others := make([]*types.Account, len(mut.Touches))
	sequences := make([]uint64, len(mut.Touches))
	for i, addr := range mut.Touches {
		account, exists := db.Get(addr)
		if !exists {
			account = types.NewAccount(addr, 0)
		}
		others[i] = &account
		sequences[i] = account.Sequence
	}

	// Run the business logic against the copies.
	next := from.Clone()
	if mut.Change != nil {
		if err := mut.Change(&next, others); err != nil {
			return 0, err
		}
	}

	// The store owns identities and sequence numbers.
	next.Address = sender
	next.Sequence = from.Sequence + 1
	next.LastTx = mut.LastTx

	changed := []types.Account{next}
	written := map[types.Address]bool{sender: true}
	for i, addr := range mut.Touches {
		if written[addr] {
			continue
		}
		written[addr] = true

		o := *others[i]
		o.Address = addr
		o.Sequence = sequences[i]
		o.LastTx = mut.LastTx
		changed = append(changed, o)
	}

	records := make([]staged, len(changed))
	for i, account := range changed {
		data, err := types.EncodeAccount(account)
		if err != nil {
			return 0, err
		}
		records[i] = staged{account: account, record: data}
	}

	// Stage the changes if they fit in the region.
	db.mu.Lock()
	defer db.mu.Unlock()

	need := db.stagedBytes
	for _, rec := range records {
		if prev, exists := db.staged[rec.account.Address]; exists {
			need -= recordSize(prev.record)
		}
		need += recordSize(rec.record)
	}

	if db.header.Tail+need > db.m.size() {
		return 0, errs.New(errs.CapacityExceeded, "need %d bytes, %d free", need, db.m.size()-db.header.Tail)
	}

	for _, rec := range records {
		db.staged[rec.account.Address] = rec
	}
	db.stagedBytes = need

	return next.Sequence, nil
}

// Rollback drops every staged mutation.
func (db *Database) Rollback() {
	db.commitMu.Lock()
	defer db.commitMu.Unlock()

	db.mu.Lock()
	defer db.mu.Unlock()

	db.dropStaged()
}

// Commit makes every mutation applied since the last commit durable and
// returns the resulting snapshot digest. Commit is atomic: on failure the
// store keeps serving the previous snapshot and refuses further writes.
func (db *Database) Commit() (types.Hash, error) {
	db.commitMu.Lock()
	defer db.commitMu.Unlock()

	if err := db.Halted(); err != nil {
		return types.Hash{}, err
	}

	db.mu.RLock()
	pending := len(db.staged)
	db.mu.RUnlock()

	if pending == 0 {
		return db.Snapshot(), nil
	}

	snapshot, err := db.commit()
	if err != nil {
		db.mu.Lock()
		db.halted = errs.Wrap(errs.StoreCorruption, fmt.Errorf("commit: %w", err))
		db.dropStaged()
		err = db.halted
		db.mu.Unlock()

		db.evHandler("database: commit: ERROR: %s", err)
		return types.Hash{}, err
	}

	return snapshot, nil
}

// Proof returns the merkle inclusion proof of a committed account against
// the current snapshot.
func (db *Database) Proof(address types.Address) (Proof, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	account, exists := db.committed(address)
	if !exists {
		return Proof{}, errs.New(errs.UnknownAccount, "account %s does not exist", address)
	}

	addrs := db.sortedAddresses(nil)
	tree, err := merkle.NewTree(db.leaves(addrs, nil))
	if err != nil {
		return Proof{}, err
	}

	var index int
	for i, addr := range addrs {
		if addr == address {
			index = i
			break
		}
	}

	hashes, order, err := tree.ProofAt(index)
	if err != nil {
		return Proof{}, err
	}

	proof := Proof{
		Account:  account,
		Snapshot: db.header.Snapshot,
		Hashes:   hashes,
		Order:    order,
	}

	return proof, nil
}

// =============================================================================

// initialize writes the first header of a brand new store.
func (db *Database) initialize() error {
	h := Header{
		Version:    FormatVersion,
		Generation: 1,
		Tail:       regionStart,
		Snapshot:   emptyRoot(),
	}
	h.encode(db.m.data[0:headerSize])

	return db.m.sync()
}

// load replays the newest header slot whose records verify. When only an
// older slot verifies the store serves that snapshot and stays halted, since
// records are append-only and never overwrite what an older header covers.
func (db *Database) load() error {
	found, err := validHeaders(db.m.data)
	if err != nil {
		return err
	}

	var newest error
	for _, c := range found {
		err := db.replay(c.header, c.slot)
		if err == nil {
			if newest != nil {
				db.halted = errs.Wrap(errs.StoreCorruption, fmt.Errorf("generation %d does not verify, serving generation %d: %w", found[0].header.Generation, c.header.Generation, newest))
			}
			return nil
		}

		if newest == nil {
			newest = err
		}
	}

	return newest
}

// replay rebuilds the index from the records covered by the header and
// checks them against its snapshot digest.
func (db *Database) replay(h Header, slot int) error {
	if h.Tail < regionStart || h.Tail > db.m.size() {
		return errs.New(errs.StoreCorruption, "tail %d outside of region", h.Tail)
	}

	index := make(map[types.Address]entry)
	var count uint64
	for off := uint64(regionStart); off < h.Tail; count++ {
		if off+lenPrefix > h.Tail {
			return errs.New(errs.StoreCorruption, "truncated record at %d", off)
		}

		size := uint64(binary.LittleEndian.Uint32(db.m.data[off:]))
		if size == 0 || off+lenPrefix+size > h.Tail {
			return errs.New(errs.StoreCorruption, "bad record length %d at %d", size, off)
		}

		data := db.m.data[off+lenPrefix : off+lenPrefix+size]
		account, err := types.DecodeAccount(data)
		if err != nil {
			return errs.Wrap(errs.StoreCorruption, fmt.Errorf("record at %d: %w", off, err))
		}

		index[account.Address] = entry{offset: off, size: size, hash: types.Sum(data)}
		off += lenPrefix + size
	}

	if count != h.Count {
		return errs.New(errs.StoreCorruption, "header counts %d records, found %d", h.Count, count)
	}

	db.index = index
	db.header = h
	db.slot = slot

	root, err := db.root(nil)
	if err != nil {
		return err
	}

	if root != h.Snapshot {
		return errs.New(errs.StoreCorruption, "snapshot digest mismatch, header %s, computed %s", h.Snapshot, root)
	}

	return nil
}

// commit writes the staged records and swaps the header. The caller holds
// commitMu exclusively, so the staged set can not change underneath.
func (db *Database) commit() (types.Hash, error) {
	db.mu.RLock()
	h := db.header
	addrs := make([]types.Address, 0, len(db.staged))
	for addr := range db.staged {
		addrs = append(addrs, addr)
	}
	types.SortAddresses(addrs)

	// Append the records after the committed tail. Nothing reads this part
	// of the region until the header points past it.
	updates := make(map[types.Address]entry, len(addrs))
	off := h.Tail
	for _, addr := range addrs {
		rec := db.staged[addr].record
		binary.LittleEndian.PutUint32(db.m.data[off:], uint32(len(rec)))
		copy(db.m.data[off+lenPrefix:], rec)

		updates[addr] = entry{offset: off, size: uint64(len(rec)), hash: types.Sum(rec)}
		off += recordSize(rec)
	}
	db.mu.RUnlock()

	if err := db.m.sync(); err != nil {
		return types.Hash{}, fmt.Errorf("syncing records: %w", err)
	}

	db.mu.RLock()
	root, err := db.root(updates)
	db.mu.RUnlock()
	if err != nil {
		return types.Hash{}, err
	}

	if db.crashBeforeSwap != nil {
		if err := db.crashBeforeSwap(); err != nil {
			return types.Hash{}, err
		}
	}

	next := Header{
		Version:    FormatVersion,
		Generation: h.Generation + 1,
		Tail:       off,
		Count:      h.Count + uint64(len(addrs)),
		Snapshot:   root,
	}
	slot := 1 - db.slot
	next.encode(db.m.data[slot*headerSize : (slot+1)*headerSize])

	if err := db.m.sync(); err != nil {
		return types.Hash{}, fmt.Errorf("syncing header: %w", err)
	}

	db.mu.Lock()
	for addr, e := range updates {
		db.index[addr] = e
	}
	db.header = next
	db.slot = slot
	db.dropStaged()
	db.mu.Unlock()

	db.evHandler("database: commit: generation[%d] records[%d] snapshot[%s]", next.Generation, len(addrs), root)

	return root, nil
}

// committed reads the account record from the mapped region. The caller
// holds mu.
func (db *Database) committed(address types.Address) (types.Account, bool) {
	if db.m == nil {
		return types.Account{}, false
	}

	e, exists := db.index[address]
	if !exists {
		return types.Account{}, false
	}

	account, err := types.DecodeAccount(db.m.data[e.offset+lenPrefix : e.offset+lenPrefix+e.size])
	if err != nil {
		// The record decoded when the store was loaded or committed.
		return types.Account{}, false
	}

	return account, true
}

// root computes the snapshot digest of the committed accounts overlaid with
// the specified updates. The caller holds mu.
func (db *Database) root(updates map[types.Address]entry) (types.Hash, error) {
	addrs := db.sortedAddresses(updates)
	if len(addrs) == 0 {
		return emptyRoot(), nil
	}

	tree, err := merkle.NewTree(db.leaves(addrs, updates))
	if err != nil {
		return types.Hash{}, err
	}

	return types.Hash(tree.MerkleRoot), nil
}

// sortedAddresses returns the committed addresses plus the updated ones in
// ascending order. The caller holds mu.
func (db *Database) sortedAddresses(updates map[types.Address]entry) []types.Address {
	addrs := make([]types.Address, 0, len(db.index)+len(updates))
	for addr := range db.index {
		addrs = append(addrs, addr)
	}
	for addr := range updates {
		if _, exists := db.index[addr]; !exists {
			addrs = append(addrs, addr)
		}
	}
	types.SortAddresses(addrs)

	return addrs
}

// leaves returns the merkle leaves for the addresses. The caller holds mu.
func (db *Database) leaves(addrs []types.Address, updates map[types.Address]entry) []leaf {
	leaves := make([]leaf, len(addrs))
	for i, addr := range addrs {
		e, exists := updates[addr]
		if !exists {
			e = db.index[addr]
		}
		leaves[i] = leaf{address: addr, hash: e.hash}
	}
	return leaves
}

// dropStaged clears the staging area. The caller holds mu.
func (db *Database) dropStaged() {
	db.staged = make(map[types.Address]staged)
	db.stagedBytes = 0
}

// =============================================================================

// Proof is an account with the merkle proof that it belongs to a snapshot.
type Proof struct {
	Account  types.Account
	Snapshot types.Hash
	Hashes   [][]byte
	Order    []int64
}

// Verify checks the account belongs to the snapshot.
func (p Proof) Verify() error {
	data, err := types.EncodeAccount(p.Account)
	if err != nil {
		return err
	}

	l := leaf{address: p.Account.Address, hash: types.Sum(data)}
	return merkle.VerifyProof(p.Snapshot[:], l, p.Hashes, p.Order)
}

// leaf is the merkle tree value of an account: its address and the digest of
// its encoded record.
type leaf struct {
	address types.Address
	hash    types.Hash
}

// Hash implements the merkle Hashable interface.
func (l leaf) Hash() ([]byte, error) {
	return l.hash[:], nil
}

// Equals implements the merkle Hashable interface.
func (l leaf) Equals(other leaf) bool {
	return l.address == other.address && l.hash == other.hash
}

// emptyRoot is the snapshot digest of a store without accounts.
func emptyRoot() types.Hash {
	return types.Sum(nil)
}

// recordSize returns the space a record takes in the region.
func recordSize(record []byte) uint64 {
	return lenPrefix + uint64(len(record))
}

// uniqueAddresses returns the sender and the touched addresses without
// duplicates.
func uniqueAddresses(sender types.Address, touches []types.Address) []types.Address {
	addrs := []types.Address{sender}
	for _, addr := range touches {
		dup := false
		for _, a := range addrs {
			if a == addr {
				dup = true
				break
			}
		}
		if !dup {
			addrs = append(addrs, addr)
		}
	}
	return addrs
}

// Set of errors returned by the store outside of the rejection taxonomy.
var (
	ErrStaged = errors.New("uncommitted mutations are staged")
	ErrClosed = errors.New("store closed")
)
