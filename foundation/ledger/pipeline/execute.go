package pipeline

import (
	"math"
	"math/bits"

	"github.com/VincentBerthier/bifrost/foundation/ledger/database"
	"github.com/VincentBerthier/bifrost/foundation/ledger/errs"
	"github.com/VincentBerthier/bifrost/foundation/ledger/types"
)

// mutation translates the instruction carried by the transaction into the
// change the store applies atomically.
func mutation(tx types.Transaction, hash types.Hash) (database.Mutation, error) {
	mut := database.Mutation{
		Expected: tx.Sequence,
		Touches:  tx.Targets,
		LastTx:   hash,
	}

	switch ins := tx.Instruction.(type) {
	case types.Transfer:
		debit, overflow := bits.Mul64(ins.Amount, uint64(len(tx.Targets)))
		if overflow != 0 {
			return database.Mutation{}, errs.New(errs.SchemaViolation, "transfer of %d to %d targets overflows", ins.Amount, len(tx.Targets))
		}

		mut.Require = true
		mut.Change = func(sender *types.Account, others []*types.Account) error {
			if sender.Balance < debit {
				return errs.New(errs.InsufficientFunds, "account %s, balance %d, needed %d", sender.Address, sender.Balance, debit)
			}
			for _, to := range others {
				if to.Balance > math.MaxUint64-ins.Amount {
					return errs.New(errs.SchemaViolation, "account %s balance overflows", to.Address)
				}
			}

			sender.Balance -= debit
			for _, to := range others {
				to.Balance += ins.Amount
			}
			return nil
		}

	case types.Write:
		data := append([]byte(nil), ins.Data...)
		mut.Change = func(sender *types.Account, _ []*types.Account) error {
			sender.Data = data
			return nil
		}

	case types.Touch:
		// Only the sequence moves and missing targets come into existence.

	default:
		return database.Mutation{}, errs.New(errs.SchemaViolation, "unknown instruction %T", tx.Instruction)
	}

	return mut, nil
}
