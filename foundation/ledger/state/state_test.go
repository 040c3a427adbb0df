package state_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/VincentBerthier/bifrost/foundation/ledger/errs"
	"github.com/VincentBerthier/bifrost/foundation/ledger/genesis"
	"github.com/VincentBerthier/bifrost/foundation/ledger/keys"
	"github.com/VincentBerthier/bifrost/foundation/ledger/pipeline"
	"github.com/VincentBerthier/bifrost/foundation/ledger/state"
	"github.com/VincentBerthier/bifrost/foundation/ledger/types"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// =============================================================================

func Test_Genesis(t *testing.T) {
	t.Log("Given the need to start a ledger from a genesis.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen opening a fresh store and then reopening it.", testID)
		{
			kps := keypairs(t, 3)
			gen := genesis.Genesis{
				Date: time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
				Balances: map[string]uint64{
					kps[0].Address().String(): 1000,
					kps[1].Address().String(): 500,
				},
			}

			path := filepath.Join(t.TempDir(), "accounts.db")
			cfg := state.Config{DBPath: path, Capacity: 1 << 20, Genesis: gen}

			engine, err := state.New(cfg)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to start the engine: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to start the engine.", success, testID)

			if n := len(engine.Accounts()); n != 2 {
				t.Fatalf("\t%s\tTest %d:\tShould hold the genesis accounts: got %d, exp 2", failed, testID, n)
			}
			t.Logf("\t%s\tTest %d:\tShould hold the genesis accounts.", success, testID)

			a, err := engine.Account(kps[0].Address())
			if err != nil || a.Balance != 1000 || a.Sequence != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould fund the genesis accounts: %+v %v", failed, testID, a, err)
			}
			t.Logf("\t%s\tTest %d:\tShould fund the genesis accounts.", success, testID)

			if _, err := engine.Account(kps[2].Address()); !errors.Is(err, errs.UnknownAccount) {
				t.Fatalf("\t%s\tTest %d:\tShould report an unknown account: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould report an unknown account.", success, testID)

			p, err := engine.Proof(kps[1].Address())
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to build a proof: %v", failed, testID, err)
			}
			if err := p.Verify(); err != nil || p.Snapshot != engine.Snapshot() {
				t.Fatalf("\t%s\tTest %d:\tShould prove the account against the snapshot: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould prove the account against the snapshot.", success, testID)

			hdr := engine.Header()
			if err := engine.Shutdown(); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to shut down: %v", failed, testID, err)
			}

			engine, err = state.New(cfg)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to restart the engine: %v", failed, testID, err)
			}
			defer engine.Shutdown()

			if engine.Header() != hdr {
				t.Fatalf("\t%s\tTest %d:\tShould not seed a store twice: got %+v, exp %+v", failed, testID, engine.Header(), hdr)
			}
			t.Logf("\t%s\tTest %d:\tShould not seed a store twice.", success, testID)
		}
	}
}

func Test_Submit(t *testing.T) {
	t.Log("Given the need to run transactions against the engine.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen transferring from a genesis account.", testID)
		{
			kps := keypairs(t, 2)
			engine := startEngine(t, state.Config{
				Genesis: genesis.Genesis{Balances: map[string]uint64{kps[0].Address().String(): 100}},
			})

			raw := encode(t, kps[0], 0, types.Transfer{Amount: 40}, kps[1].Address())
			r := engine.Submit(context.Background(), "t1", raw)
			if r.State != pipeline.Committed || r.Snapshot != engine.Snapshot() {
				t.Fatalf("\t%s\tTest %d:\tShould commit the transfer: %s", failed, testID, r)
			}
			t.Logf("\t%s\tTest %d:\tShould commit the transfer.", success, testID)

			from, _ := engine.Account(kps[0].Address())
			to, _ := engine.Account(kps[1].Address())
			if from.Balance != 60 || to.Balance != 40 || from.LastTx != r.TxHash || to.LastTx != r.TxHash {
				t.Fatalf("\t%s\tTest %d:\tShould move the funds: from %+v to %+v", failed, testID, from, to)
			}
			t.Logf("\t%s\tTest %d:\tShould move the funds.", success, testID)

			o := state.NewOutcome(engine.Submit(context.Background(), "t2", raw))
			if o.State != "rejected" || o.Reason != errs.SequenceMismatch.String() || o.Retryable {
				t.Fatalf("\t%s\tTest %d:\tShould describe the rejected replay: %+v", failed, testID, o)
			}
			t.Logf("\t%s\tTest %d:\tShould describe the rejected replay.", success, testID)
		}
	}
}

func Test_Inbox(t *testing.T) {
	t.Log("Given the need to feed the engine through an inbox directory.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen a transaction file is dropped in the inbox.", testID)
		{
			inbox := t.TempDir()
			engine := startEngine(t, state.Config{Inbox: inbox, PollInterval: 10 * time.Millisecond})

			kp := keypairs(t, 1)[0]
			raw := encode(t, kp, 0, types.Write{Data: []byte("inbox")})

			if err := os.WriteFile(filepath.Join(inbox, "w1"+state.TxExtension), raw, 0o644); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to write the transaction: %v", failed, testID, err)
			}
			if err := os.WriteFile(filepath.Join(inbox, "notes.txt"), []byte("ignored"), 0o644); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to write a foreign file: %v", failed, testID, err)
			}

			result := filepath.Join(inbox, "w1"+state.ResultExtension)
			var data []byte
			deadline := time.Now().Add(5 * time.Second)
			for time.Now().Before(deadline) {
				var err error
				if data, err = os.ReadFile(result); err == nil {
					break
				}
				time.Sleep(10 * time.Millisecond)
			}
			if data == nil {
				t.Fatalf("\t%s\tTest %d:\tShould write the outcome next to the transaction.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould write the outcome next to the transaction.", success, testID)

			var o state.Outcome
			if err := json.Unmarshal(data, &o); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould write a JSON outcome: %v", failed, testID, err)
			}
			if o.ID != "w1" || o.State != "committed" || o.NewSequence != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould report the commit: %+v", failed, testID, o)
			}
			t.Logf("\t%s\tTest %d:\tShould report the commit.", success, testID)

			if _, err := os.Stat(filepath.Join(inbox, "w1"+state.TxExtension)); !errors.Is(err, os.ErrNotExist) {
				t.Fatalf("\t%s\tTest %d:\tShould remove the processed transaction: %v", failed, testID, err)
			}
			if _, err := os.Stat(filepath.Join(inbox, "notes.txt")); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould leave foreign files alone: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould only consume transaction files.", success, testID)

			a, err := engine.Account(kp.Address())
			if err != nil || string(a.Data) != "inbox" {
				t.Fatalf("\t%s\tTest %d:\tShould store the written data: %+v %v", failed, testID, a, err)
			}
			t.Logf("\t%s\tTest %d:\tShould store the written data.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen a processed transaction is left next to its outcome.", testID)
		{
			inbox := t.TempDir()
			engine := startEngine(t, state.Config{Inbox: inbox, PollInterval: 10 * time.Millisecond})

			kp := keypairs(t, 1)[0]
			raw := encode(t, kp, 0, types.Touch{})

			r := engine.Submit(context.Background(), "w2", raw)
			if r.State != pipeline.Committed {
				t.Fatalf("\t%s\tTest %d:\tShould commit the transaction: %s", failed, testID, r)
			}
			published, err := json.MarshalIndent(state.NewOutcome(r), "", "  ")
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to encode the outcome: %v", failed, testID, err)
			}

			result := filepath.Join(inbox, "w2"+state.ResultExtension)
			if err := os.WriteFile(result, published, 0o644); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to write the outcome: %v", failed, testID, err)
			}
			tx := filepath.Join(inbox, "w2"+state.TxExtension)
			if err := os.WriteFile(tx, raw, 0o644); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to write the transaction: %v", failed, testID, err)
			}

			deadline := time.Now().Add(5 * time.Second)
			for time.Now().Before(deadline) {
				if _, err := os.Stat(tx); errors.Is(err, os.ErrNotExist) {
					break
				}
				time.Sleep(10 * time.Millisecond)
			}
			if _, err := os.Stat(tx); !errors.Is(err, os.ErrNotExist) {
				t.Fatalf("\t%s\tTest %d:\tShould remove the processed transaction: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould remove the processed transaction.", success, testID)

			data, err := os.ReadFile(result)
			if err != nil || string(data) != string(published) {
				t.Fatalf("\t%s\tTest %d:\tShould keep the published outcome: %s %v", failed, testID, data, err)
			}
			t.Logf("\t%s\tTest %d:\tShould keep the published outcome.", success, testID)

			if engine.Snapshot() != r.Snapshot {
				t.Fatalf("\t%s\tTest %d:\tShould not run the transaction again.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould not run the transaction again.", success, testID)
		}
	}
}

// =============================================================================

func startEngine(t *testing.T, cfg state.Config) *state.Engine {
	t.Helper()

	cfg.DBPath = filepath.Join(t.TempDir(), "accounts.db")
	cfg.Capacity = 1 << 20
	cfg.EvHandler = func(v string, args ...any) { t.Logf(v, args...) }

	engine, err := state.New(cfg)
	if err != nil {
		t.Fatalf("starting engine: %v", err)
	}
	t.Cleanup(func() { engine.Shutdown() })

	return engine
}

func keypairs(t *testing.T, n int) []keys.Keypair {
	t.Helper()

	src := keys.NewSeeded(3)
	kps := make([]keys.Keypair, n)
	for i := range kps {
		kp, err := src.GenerateKeypair()
		if err != nil {
			t.Fatalf("generating key: %v", err)
		}
		kps[i] = kp
	}

	return kps
}

func encode(t *testing.T, kp keys.Keypair, seq uint64, ins types.Instruction, targets ...types.Address) []byte {
	t.Helper()

	tx, err := types.NewTransaction(kp.Address(), seq, ins, targets...).Sign(kp.PrivateKey)
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	raw, err := types.EncodeTransaction(tx)
	if err != nil {
		t.Fatalf("encoding: %v", err)
	}

	return raw
}
