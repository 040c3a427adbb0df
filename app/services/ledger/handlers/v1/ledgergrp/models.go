package ledgergrp

import (
	"github.com/VincentBerthier/bifrost/foundation/ledger/database"
	"github.com/VincentBerthier/bifrost/foundation/ledger/types"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

type snapshot struct {
	Snapshot   types.Hash `json:"snapshot"`
	Generation uint64     `json:"generation"`
	Records    uint64     `json:"records"`
	Accounts   int        `json:"accounts"`
}

type account struct {
	Address  types.Address `json:"address"`
	Name     string        `json:"name"`
	Sequence uint64        `json:"sequence"`
	Balance  uint64        `json:"balance"`
	Data     hexutil.Bytes `json:"data,omitempty"`
	LastTx   types.Hash    `json:"last_tx"`
}

type proof struct {
	Account  account         `json:"account"`
	Snapshot types.Hash      `json:"snapshot"`
	Hashes   []hexutil.Bytes `json:"hashes"`
	Order    []int64         `json:"order"`
}

func toAccount(a types.Account, name string) account {
	return account{
		Address:  a.Address,
		Name:     name,
		Sequence: a.Sequence,
		Balance:  a.Balance,
		Data:     a.Data,
		LastTx:   a.LastTx,
	}
}

func toProof(p database.Proof, name string) proof {
	hashes := make([]hexutil.Bytes, len(p.Hashes))
	for i, h := range p.Hashes {
		hashes[i] = h
	}

	return proof{
		Account:  toAccount(p.Account, name),
		Snapshot: p.Snapshot,
		Hashes:   hashes,
		Order:    p.Order,
	}
}
