// Package state is the core API for the ledger and wires the genesis, the
// account store and the transaction pipeline together.
package state

import (
	"context"
	"fmt"
	"time"

	"github.com/VincentBerthier/bifrost/foundation/ledger/database"
	"github.com/VincentBerthier/bifrost/foundation/ledger/errs"
	"github.com/VincentBerthier/bifrost/foundation/ledger/genesis"
	"github.com/VincentBerthier/bifrost/foundation/ledger/pipeline"
	"github.com/VincentBerthier/bifrost/foundation/ledger/types"
	"go.uber.org/multierr"
)

// EventHandler defines a function that is called when events
// occur in the processing of transactions.
type EventHandler func(v string, args ...any)

// Config represents the configuration required to start the engine.
type Config struct {
	DBPath       string
	Capacity     int64
	Genesis      genesis.Genesis
	Pipeline     pipeline.Config
	Inbox        string        // Directory polled for encoded transactions, empty disables it.
	PollInterval time.Duration // How often the inbox is read.
	EvHandler    EventHandler
}

// Engine manages the account store and the pipeline feeding it.
type Engine struct {
	evHandler EventHandler
	db        *database.Database
	pipeline  *pipeline.Pipeline
	worker    *worker
}

// New opens the store, seeds it from the genesis when it is fresh and starts
// the pipeline.
func New(cfg Config) (*Engine, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	db, err := database.Open(database.Config{
		Path:      cfg.DBPath,
		Capacity:  cfg.Capacity,
		EvHandler: database.EventHandler(ev),
	})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	// A halted store is served read-only and is never seeded.
	if err := db.Halted(); err != nil {
		ev("state: store halted, writes refused: %s", err)
	}

	if db.Halted() == nil && db.Header().Count == 0 && len(cfg.Genesis.Balances) > 0 {
		accounts, err := cfg.Genesis.Accounts()
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("genesis: %w", err), db.Close())
		}

		snapshot, err := db.Seed(accounts)
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("seeding store: %w", err), db.Close())
		}
		ev("state: genesis: accounts[%d] supply[%d] snapshot[%s]", len(accounts), cfg.Genesis.Supply(), snapshot)
	}

	pcfg := cfg.Pipeline
	pcfg.EvHandler = pipeline.EventHandler(ev)

	p, err := pipeline.New(db, pcfg)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("starting pipeline: %w", err), db.Close())
	}

	engine := Engine{
		evHandler: ev,
		db:        db,
		pipeline:  p,
	}

	if cfg.Inbox != "" {
		engine.worker = runWorker(&engine, cfg.Inbox, cfg.PollInterval)
	}

	return &engine, nil
}

// Shutdown stops the inbox worker, lets the pipeline finish every admitted
// transaction and closes the store.
func (e *Engine) Shutdown() error {
	e.evHandler("state: shutdown: started")
	defer e.evHandler("state: shutdown: completed")

	if e.worker != nil {
		e.worker.shutdown()
		e.worker = nil
	}

	e.pipeline.Shutdown()

	return e.db.Close()
}

// =============================================================================

// Submit runs one encoded transaction through the pipeline and returns its
// terminal outcome.
func (e *Engine) Submit(ctx context.Context, id string, raw []byte) pipeline.Result {
	r := e.pipeline.Submit(ctx, pipeline.Request{ID: id, Raw: raw})
	e.evHandler("state: outcome: %s", r)

	return r
}

// SubmitBatch runs the encoded transactions through the pipeline. Results
// are returned in request order.
func (e *Engine) SubmitBatch(ctx context.Context, reqs []pipeline.Request) []pipeline.Result {
	results := e.pipeline.SubmitBatch(ctx, reqs)
	for _, r := range results {
		e.evHandler("state: outcome: %s", r)
	}

	return results
}

// =============================================================================

// Snapshot returns the digest of the last committed state.
func (e *Engine) Snapshot() types.Hash {
	return e.db.Snapshot()
}

// Header returns the store header of the last commit.
func (e *Engine) Header() database.Header {
	return e.db.Header()
}

// Account returns the committed state of the account.
func (e *Engine) Account(address types.Address) (types.Account, error) {
	account, exists := e.db.Committed(address)
	if !exists {
		return types.Account{}, errs.New(errs.UnknownAccount, "account %s does not exist", address)
	}

	return account, nil
}

// Accounts returns every committed account sorted by address.
func (e *Engine) Accounts() []types.Account {
	return e.db.Accounts()
}

// Proof returns the inclusion proof of the account in the last snapshot.
func (e *Engine) Proof(address types.Address) (database.Proof, error) {
	return e.db.Proof(address)
}

// Halted returns the error that stopped the engine from accepting writes.
func (e *Engine) Halted() error {
	return e.db.Halted()
}
