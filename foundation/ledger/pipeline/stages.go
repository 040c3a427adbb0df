package pipeline

import (
	"sync"
	"time"

	"github.com/VincentBerthier/bifrost/foundation/ledger/errs"
	"github.com/VincentBerthier/bifrost/foundation/ledger/signature"
	"github.com/VincentBerthier/bifrost/foundation/ledger/types"
)

// start launches every stage. Each stage closes its output when its input
// is closed and drained, so closing the admission queue winds the whole
// pipeline down.
func (p *Pipeline) start() {
	p.g.Go(p.stamp)

	var workers sync.WaitGroup
	for range p.cfg.Workers {
		workers.Add(1)
		p.g.Go(func() error {
			defer workers.Done()
			return p.verify()
		})
	}
	p.g.Go(func() error {
		workers.Wait()
		close(p.verified)
		return nil
	})

	p.g.Go(p.sequence)

	var shards sync.WaitGroup
	for i := range p.shards {
		shards.Add(1)
		p.g.Go(func() error {
			defer shards.Done()
			return p.execute(p.shards[i])
		})
	}
	p.g.Go(func() error {
		shards.Wait()
		close(p.drain)
		return nil
	})

	p.g.Go(p.commit)
}

// =============================================================================

// stamp records the admission order of every task.
func (p *Pipeline) stamp() error {
	defer close(p.work)

	var seq uint64
	for t := range p.admit {
		seq++
		t.seq = seq
		p.work <- t
	}

	return nil
}

// verify decodes tasks and checks their signatures in batches. Rejected
// tasks are still forwarded so the sequencer can account for their slot in
// the admission order.
func (p *Pipeline) verify() error {
	batch := make([]*task, 0, p.cfg.VerifyBatch)

	for t := range p.work {
		batch = append(batch[:0], t)

	drain:
		for len(batch) < p.cfg.VerifyBatch {
			select {
			case t, ok := <-p.work:
				if !ok {
					break drain
				}
				batch = append(batch, t)
			default:
				break drain
			}
		}

		p.verifyBatch(batch)

		for _, t := range batch {
			p.verified <- t
		}
	}

	return nil
}

func (p *Pipeline) verifyBatch(batch []*task) {
	items := make([]signature.Item, 0, len(batch))
	pending := make([]*task, 0, len(batch))

	for _, t := range batch {
		if err := t.cancelled(time.Now()); err != nil {
			t.reject(err)
			continue
		}

		tx, err := types.DecodeTransaction(t.raw)
		if err != nil {
			t.reject(err)
			continue
		}
		hash, err := tx.Hash()
		if err != nil {
			t.reject(errs.Wrap(errs.SchemaViolation, err))
			continue
		}
		t.tx = tx
		t.hash = hash
		t.state = Decoded

		if p.seen.Contains(t.hash) {
			t.reject(errs.New(errs.SequenceMismatch, "transaction %s already committed", t.hash))
			continue
		}

		item, err := tx.SignatureItem()
		if err != nil {
			t.reject(errs.Wrap(errs.SchemaViolation, err))
			continue
		}

		items = append(items, item)
		pending = append(pending, t)
	}

	for i, ok := range signature.VerifyBatch(items) {
		t := pending[i]
		if !ok {
			p.ev("pipeline: verify: %s: tx[%s]: invalid signature", t.id, t.tx)
			t.reject(errs.New(errs.InvalidSignature, "signature does not match sender %s", t.tx.Sender))
			continue
		}
		t.state = Verified
	}
}

// =============================================================================

// sequence restores the admission order lost across the verify workers and
// routes every verified task to the shard owning its sender.
func (p *Pipeline) sequence() error {
	defer func() {
		for _, ch := range p.shards {
			close(ch)
		}
	}()

	next := uint64(1)
	waiting := make(map[uint64]*task)

	for t := range p.verified {
		waiting[t.seq] = t

		for {
			t, exists := waiting[next]
			if !exists {
				break
			}
			delete(waiting, next)
			next++

			if t.state == Rejected {
				continue
			}
			p.shards[p.shardOf(t.tx.Sender)] <- t
		}
	}

	return nil
}

// =============================================================================

// execute applies the tasks routed to one shard. A task waits until the
// previous task from the same sender is terminal.
func (p *Pipeline) execute(in <-chan *task) error {
	last := make(map[types.Address]*task)

	for t := range in {
		if prev, exists := last[t.tx.Sender]; exists {
			<-prev.done
		}
		last[t.tx.Sender] = t

		if len(last) > 4*p.cfg.QueueDepth {
			prune(last)
		}

		if err := t.cancelled(time.Now()); err != nil {
			t.reject(err)
			continue
		}

		mut, err := mutation(t.tx, t.hash)
		if err != nil {
			t.reject(err)
			continue
		}

		// Reserve room among the tasks waiting for a commit.
		p.slots <- struct{}{}

		p.gate.RLock()
		newSeq, err := p.store.Apply(t.tx.Sender, mut)
		if err != nil {
			p.gate.RUnlock()
			<-p.slots
			p.ev("pipeline: execute: %s: tx[%s]: rejected: %s", t.id, t.tx, err)
			t.reject(err)
			continue
		}

		t.newSeq = newSeq
		t.state = Executed

		p.execMu.Lock()
		p.executed = append(p.executed, t)
		p.execMu.Unlock()
		p.gate.RUnlock()

		select {
		case p.kick <- struct{}{}:
		default:
		}
	}

	return nil
}

// prune forgets the senders whose last task is terminal.
func prune(last map[types.Address]*task) {
	for sender, t := range last {
		select {
		case <-t.done:
			delete(last, sender)
		default:
		}
	}
}

// =============================================================================

// commit makes executed tasks durable in groups. A commit covers every task
// executed since the previous one.
func (p *Pipeline) commit() error {
	for {
		select {
		case <-p.kick:
			p.commitBatch()

		case <-p.drain:
			p.commitBatch()
			return nil
		}
	}
}

func (p *Pipeline) commitBatch() {
	p.gate.Lock()

	p.execMu.Lock()
	batch := p.executed
	p.executed = nil
	p.execMu.Unlock()

	if len(batch) == 0 {
		p.gate.Unlock()
		return
	}

	snapshot, err := p.store.Commit()
	p.gate.Unlock()

	if err != nil {
		p.ev("pipeline: commit: ERROR: batch[%d]: %s", len(batch), err)
	} else {
		p.ev("pipeline: commit: batch[%d]: snapshot[%s]", len(batch), snapshot)
	}

	for _, t := range batch {
		if err != nil {
			t.reject(err)
		} else {
			p.seen.Add(t.hash, struct{}{})
			t.commit(snapshot)
		}
		<-p.slots
	}
}
