package state

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/VincentBerthier/bifrost/foundation/ledger/errs"
	"github.com/VincentBerthier/bifrost/foundation/ledger/pipeline"
)

// Extensions of the files exchanged through the inbox.
const (
	TxExtension      = ".tx"
	ResultExtension  = ".result"
	defaultPollEvery = time.Second
)

// maxInboxBatch is the largest number of inbox files submitted together.
const maxInboxBatch = 1024

// =============================================================================

// worker feeds the engine with the encoded transactions dropped into the
// inbox directory. Every file ending in .tx is submitted once; its outcome
// is written next to it as a .result file and the .tx file is removed.
type worker struct {
	engine    *Engine
	inbox     string
	wg        sync.WaitGroup
	ticker    *time.Ticker
	shut      chan struct{}
	cancel    context.CancelFunc
	evHandler EventHandler
}

// runWorker starts polling the inbox.
func runWorker(engine *Engine, inbox string, every time.Duration) *worker {
	if every <= 0 {
		every = defaultPollEvery
	}

	ctx, cancel := context.WithCancel(context.Background())

	w := worker{
		engine:    engine,
		inbox:     inbox,
		ticker:    time.NewTicker(every),
		shut:      make(chan struct{}),
		cancel:    cancel,
		evHandler: engine.evHandler,
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.inboxOperations(ctx)
	}()

	return &w
}

// shutdown terminates the goroutine performing work.
func (w *worker) shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	w.evHandler("worker: shutdown: stop ticker")
	w.ticker.Stop()

	w.evHandler("worker: shutdown: terminate goroutines")
	close(w.shut)
	w.cancel()
	w.wg.Wait()
}

// =============================================================================

// inboxOperations handles reading the inbox until shutdown.
func (w *worker) inboxOperations(ctx context.Context) {
	w.evHandler("worker: inboxOperations: G started")
	defer w.evHandler("worker: inboxOperations: G completed")

	for {
		select {
		case <-w.ticker.C:
			if !w.isShutdown() {
				w.runInbox(ctx)
			}
		case <-w.shut:
			w.evHandler("worker: inboxOperations: received shut signal")
			return
		}
	}
}

// runInbox submits the transactions currently waiting in the inbox.
func (w *worker) runInbox(ctx context.Context) {
	entries, err := os.ReadDir(w.inbox)
	if err != nil {
		w.evHandler("worker: runInbox: ERROR: %s", err)
		return
	}

	var reqs []pipeline.Request
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != TxExtension {
			continue
		}

		id := strings.TrimSuffix(entry.Name(), TxExtension)
		path := filepath.Join(w.inbox, entry.Name())

		// A published outcome means the transaction was processed and only
		// its removal failed. Submitting it again would replace the outcome.
		if _, err := os.Stat(filepath.Join(w.inbox, id+ResultExtension)); err == nil {
			w.evHandler("worker: runInbox: %s: already processed", id)
			if err := os.Remove(path); err != nil {
				w.evHandler("worker: runInbox: %s: ERROR: %s", entry.Name(), err)
			}
			continue
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			w.evHandler("worker: runInbox: %s: ERROR: %s", entry.Name(), err)
			continue
		}

		reqs = append(reqs, pipeline.Request{ID: id, Raw: raw})
		if len(reqs) == maxInboxBatch {
			break
		}
	}

	if len(reqs) == 0 {
		return
	}

	w.evHandler("worker: runInbox: submitting[%d]", len(reqs))

	for _, r := range w.engine.SubmitBatch(ctx, reqs) {

		// Transactions cut short by the shutdown stay in the inbox for the
		// next run.
		if r.Reason == errs.Cancelled || r.Reason == errs.Shutdown {
			continue
		}

		if err := w.writeOutcome(r); err != nil {
			w.evHandler("worker: runInbox: %s: ERROR: %s", r.ID, err)
		}
	}
}

// writeOutcome records the outcome of an inbox transaction and removes it
// from the inbox.
func (w *worker) writeOutcome(r pipeline.Result) error {
	data, err := json.MarshalIndent(NewOutcome(r), "", "  ")
	if err != nil {
		return err
	}

	// Readers must never see a partial outcome.
	path := filepath.Join(w.inbox, r.ID+ResultExtension)
	if err := os.WriteFile(path+".tmp", data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(path+".tmp", path); err != nil {
		return err
	}

	return os.Remove(filepath.Join(w.inbox, r.ID+TxExtension))
}

// isShutdown is used to test if a shutdown has been signaled.
func (w *worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}
