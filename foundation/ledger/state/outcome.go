package state

import (
	"github.com/VincentBerthier/bifrost/foundation/ledger/pipeline"
	"github.com/VincentBerthier/bifrost/foundation/ledger/types"
)

// Outcome is the JSON form of a pipeline result.
type Outcome struct {
	ID          string     `json:"id"`
	State       string     `json:"state"`
	NewSequence uint64     `json:"new_sequence,omitempty"`
	TxHash      types.Hash `json:"tx_hash"`
	Snapshot    types.Hash `json:"snapshot"`
	Reason      string     `json:"reason,omitempty"`
	Retryable   bool       `json:"retryable,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// NewOutcome converts the result for the outside world.
func NewOutcome(r pipeline.Result) Outcome {
	o := Outcome{
		ID:          r.ID,
		State:       r.State.String(),
		NewSequence: r.NewSequence,
		TxHash:      r.TxHash,
		Snapshot:    r.Snapshot,
	}

	if r.State == pipeline.Rejected {
		o.Reason = r.Reason.String()
		o.Retryable = r.Retryable()
		if r.Err != nil {
			o.Error = r.Err.Error()
		}
	}

	return o
}
