package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/VincentBerthier/bifrost/foundation/ledger/errs"
	"github.com/VincentBerthier/bifrost/foundation/ledger/types"
)

// State represents where a task is in its lifecycle.
type State uint8

// Set of task states. Committed and Rejected are terminal.
const (
	Received State = iota
	Decoded
	Verified
	Executed
	Committed
	Rejected
)

var stateNames = [...]string{
	Received:  "received",
	Decoded:   "decoded",
	Verified:  "verified",
	Executed:  "executed",
	Committed: "committed",
	Rejected:  "rejected",
}

// String implements the fmt.Stringer interface.
func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Request is an encoded transaction handed to the pipeline with the
// correlation id chosen by the caller.
type Request struct {
	ID  string
	Raw []byte
}

// Result is the terminal outcome of a request.
type Result struct {
	ID          string
	State       State       // Committed or Rejected.
	NewSequence uint64      // Sender sequence after the transaction, when committed.
	TxHash      types.Hash  // Digest of the transaction, when it could be decoded.
	Snapshot    types.Hash  // Root of the commit that made the transaction durable.
	Reason      errs.Reason // Why the transaction was rejected.
	Err         error       // Details of the rejection.
}

// Retryable reports whether resubmitting the same request may succeed.
func (r Result) Retryable() bool {
	return r.State == Rejected && r.Reason.Retryable()
}

// String implements the fmt.Stringer interface for logging.
func (r Result) String() string {
	if r.State == Committed {
		return fmt.Sprintf("%s: committed: seq[%d] snapshot[%s]", r.ID, r.NewSequence, r.Snapshot)
	}
	return fmt.Sprintf("%s: rejected: %v", r.ID, r.Err)
}

// =============================================================================

// task is a transaction travelling through the stages. It is owned by
// exactly one stage at a time until it reaches a terminal state.
type task struct {
	ctx      context.Context
	id       string
	raw      []byte
	deadline time.Time

	seq    uint64 // admission order
	tx     types.Transaction
	hash   types.Hash
	state  State
	newSeq uint64

	result Result
	done   chan struct{}
}

func newTask(ctx context.Context, req Request, deadline time.Time) *task {
	return &task{
		ctx:      ctx,
		id:       req.ID,
		raw:      req.Raw,
		deadline: deadline,
		state:    Received,
		done:     make(chan struct{}),
	}
}

// reject moves the task to the Rejected state and hands it back to the caller.
func (t *task) reject(err error) {
	t.state = Rejected
	t.result = Result{
		ID:     t.id,
		State:  Rejected,
		TxHash: t.hash,
		Reason: errs.ReasonOf(err),
		Err:    err,
	}
	close(t.done)
}

// commit moves the task to the Committed state and hands it back to the caller.
func (t *task) commit(snapshot types.Hash) {
	t.state = Committed
	t.result = Result{
		ID:          t.id,
		State:       Committed,
		NewSequence: t.newSeq,
		TxHash:      t.hash,
		Snapshot:    snapshot,
	}
	close(t.done)
}

// cancelled returns the reason the task must not proceed, if any.
func (t *task) cancelled(now time.Time) error {
	if err := t.ctx.Err(); err != nil {
		return errs.Wrap(errs.Cancelled, err)
	}

	if !t.deadline.IsZero() && now.After(t.deadline) {
		return errs.New(errs.Timeout, "waited in queue past %s", t.deadline.Format(time.RFC3339Nano))
	}

	return nil
}
