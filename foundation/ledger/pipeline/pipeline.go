// Package pipeline implements the staged, concurrent transaction processor:
// decode, verify, execute and commit, connected by bounded queues.
//
// Transactions from the same sender reach the execute stage in the order
// they were admitted, and a transaction only starts executing once the
// previous one from the same sender is terminal. Transactions from different
// senders run concurrently and in no particular order. Every admitted request
// gets exactly one Result.
package pipeline

import (
	"context"
	"encoding/binary"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/VincentBerthier/bifrost/foundation/ledger/database"
	"github.com/VincentBerthier/bifrost/foundation/ledger/errs"
	"github.com/VincentBerthier/bifrost/foundation/ledger/types"
	"github.com/VincentBerthier/bifrost/foundation/validate"
	"github.com/elastic/go-freelru"
	"golang.org/x/sync/errgroup"
)

// EventHandler defines a function that is called when events occur in the
// processing of transactions.
type EventHandler func(v string, args ...any)

// Store represents the behavior required from the account store.
type Store interface {
	Apply(sender types.Address, mut database.Mutation) (uint64, error)
	Commit() (types.Hash, error)
}

// Config represents the tuning of the pipeline. Zero values take the
// defaults.
type Config struct {
	Workers          int           `validate:"gte=0"` // Decode and verify workers.
	Shards           int           `validate:"gte=0"` // Execute workers, a sender always maps to the same one.
	QueueDepth       int           `validate:"gte=0"` // Capacity of every queue between stages.
	VerifyBatch      int           `validate:"gte=0"` // Signatures a worker verifies together.
	AdmissionTimeout time.Duration `validate:"gte=0"` // Longest wait before execution, zero disables it.
	DedupCapacity    uint32        // Digests of committed transactions remembered.
	EvHandler        EventHandler
}

func (cfg Config) withDefaults() Config {
	if cfg.Workers == 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.Shards == 0 {
		cfg.Shards = 16
	}
	if cfg.QueueDepth == 0 {
		cfg.QueueDepth = 1024
	}
	if cfg.VerifyBatch == 0 {
		cfg.VerifyBatch = 64
	}
	if cfg.DedupCapacity == 0 {
		cfg.DedupCapacity = 1 << 16
	}
	return cfg
}

// =============================================================================

// Pipeline moves transactions from bytes to committed state.
type Pipeline struct {
	cfg   Config
	store Store
	ev    EventHandler
	seen  *freelru.ShardedLRU[types.Hash, struct{}]

	mu     sync.RWMutex
	closed bool
	shut   chan struct{}

	admit    chan *task
	work     chan *task
	verified chan *task
	shards   []chan *task

	// slots bounds the number of executed tasks waiting for a commit.
	slots chan struct{}
	kick  chan struct{}
	drain chan struct{}

	// gate is held shared while a task is applied and recorded as executed
	// and exclusively while the executed tasks are committed, so a commit
	// covers exactly the tasks it resolves.
	gate     sync.RWMutex
	execMu   sync.Mutex
	executed []*task

	g errgroup.Group
}

// New constructs a pipeline over the store and starts its stages.
func New(store Store, cfg Config) (*Pipeline, error) {
	cfg = cfg.withDefaults()
	if err := validate.Check(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	seen, err := freelru.NewSharded[types.Hash, struct{}](cfg.DedupCapacity, hashKey)
	if err != nil {
		return nil, fmt.Errorf("constructing dedup cache: %w", err)
	}

	p := Pipeline{
		cfg:      cfg,
		store:    store,
		ev:       ev,
		seen:     seen,
		shut:     make(chan struct{}),
		admit:    make(chan *task, cfg.QueueDepth),
		work:     make(chan *task, cfg.QueueDepth),
		verified: make(chan *task, cfg.QueueDepth),
		shards:   make([]chan *task, cfg.Shards),
		slots:    make(chan struct{}, cfg.QueueDepth),
		kick:     make(chan struct{}, 1),
		drain:    make(chan struct{}),
	}

	for i := range p.shards {
		p.shards[i] = make(chan *task, cfg.QueueDepth)
	}

	p.start()

	return &p, nil
}

// Submit hands an encoded transaction to the pipeline and waits for its
// terminal outcome. The context cancels the transaction as long as it has
// not been executed; past that point the transaction runs to completion.
func (p *Pipeline) Submit(ctx context.Context, req Request) Result {
	t := p.enqueue(ctx, req)
	<-t.done

	return t.result
}

// SubmitBatch admits the requests in slice order and waits for all their
// outcomes. Results are returned in the order of the requests.
func (p *Pipeline) SubmitBatch(ctx context.Context, reqs []Request) []Result {
	tasks := make([]*task, len(reqs))
	for i, req := range reqs {
		tasks[i] = p.enqueue(ctx, req)
	}

	results := make([]Result, len(tasks))
	for i, t := range tasks {
		<-t.done
		results[i] = t.result
	}

	return results
}

// Shutdown stops admitting requests, lets every admitted request reach its
// terminal state and stops the stages.
func (p *Pipeline) Shutdown() {
	p.ev("pipeline: shutdown: started")
	defer p.ev("pipeline: shutdown: completed")

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.shut)
	close(p.admit)
	p.mu.Unlock()

	p.g.Wait()
}

// =============================================================================

// enqueue admits the request. A request that can not be admitted is returned
// already rejected.
func (p *Pipeline) enqueue(ctx context.Context, req Request) *task {
	var deadline time.Time
	if p.cfg.AdmissionTimeout > 0 {
		deadline = time.Now().Add(p.cfg.AdmissionTimeout)
	}
	t := newTask(ctx, req, deadline)

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		t.reject(errs.New(errs.Shutdown, "pipeline is shut down"))
		return t
	}

	// Fast path when the queue has room.
	select {
	case p.admit <- t:
		return t
	default:
	}

	var timeout <-chan time.Time
	if !deadline.IsZero() {
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case p.admit <- t:
	case <-timeout:
		t.reject(errs.New(errs.Timeout, "admission queue full for %s", p.cfg.AdmissionTimeout))
	case <-ctx.Done():
		t.reject(errs.Wrap(errs.Cancelled, ctx.Err()))
	case <-p.shut:
		t.reject(errs.New(errs.Shutdown, "pipeline is shut down"))
	}

	return t
}

// shardOf maps a sender to its execute shard.
func (p *Pipeline) shardOf(sender types.Address) int {
	return int(binary.LittleEndian.Uint32(sender[:4]) % uint32(len(p.shards)))
}

// hashKey spreads transaction digests over the dedup cache.
func hashKey(h types.Hash) uint32 {
	return binary.LittleEndian.Uint32(h[:4])
}
