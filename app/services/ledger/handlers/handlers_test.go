package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/VincentBerthier/bifrost/app/services/ledger/handlers"
	"github.com/VincentBerthier/bifrost/business/web/errs"
	"github.com/VincentBerthier/bifrost/foundation/events"
	"github.com/VincentBerthier/bifrost/foundation/ledger/genesis"
	"github.com/VincentBerthier/bifrost/foundation/ledger/keys"
	"github.com/VincentBerthier/bifrost/foundation/ledger/state"
	"github.com/VincentBerthier/bifrost/foundation/nameservice"
	"go.uber.org/zap"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_StatusRoutes(t *testing.T) {
	t.Log("Given the need to read the ledger over HTTP.")
	{
		dir := t.TempDir()
		src := keys.NewSeeded(21)
		alice, _ := src.GenerateKeypair()
		stranger, _ := src.GenerateKeypair()

		if err := keys.Save(filepath.Join(dir, "keys", "alice"+keys.Extension), alice); err != nil {
			t.Fatalf("saving key: %v", err)
		}

		ns, err := nameservice.New(filepath.Join(dir, "keys"))
		if err != nil {
			t.Fatalf("building name service: %v", err)
		}

		engine, err := state.New(state.Config{
			DBPath:   filepath.Join(dir, "accounts.db"),
			Capacity: 1 << 20,
			Genesis:  genesis.Genesis{Balances: map[string]uint64{alice.Address().String(): 42}},
		})
		if err != nil {
			t.Fatalf("starting engine: %v", err)
		}
		defer engine.Shutdown()

		evts := events.New()
		defer evts.Shutdown()

		mux := handlers.StatusMux(handlers.MuxConfig{
			Shutdown: make(chan os.Signal, 1),
			Log:      zap.NewNop().Sugar(),
			Engine:   engine,
			NS:       ns,
			Evts:     evts,
		})

		testID := 0
		t.Logf("\tTest %d:\tWhen asking for an account by name.", testID)
		{
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/accounts/alice", nil))

			if w.Code != http.StatusOK {
				t.Fatalf("\t%s\tTest %d:\tShould receive a 200 status code: got %d", failed, testID, w.Code)
			}
			t.Logf("\t%s\tTest %d:\tShould receive a 200 status code.", success, testID)

			var got struct {
				Name    string `json:"name"`
				Balance uint64 `json:"balance"`
			}
			if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to decode the response: %v", failed, testID, err)
			}
			if got.Name != "alice" || got.Balance != 42 {
				t.Fatalf("\t%s\tTest %d:\tShould return the genesis account: %+v", failed, testID, got)
			}
			t.Logf("\t%s\tTest %d:\tShould return the genesis account.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen asking for an account that does not exist.", testID)
		{
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/accounts/"+stranger.Address().String()+"/proof", nil))

			if w.Code != http.StatusNotFound {
				t.Fatalf("\t%s\tTest %d:\tShould receive a 404 status code: got %d", failed, testID, w.Code)
			}
			t.Logf("\t%s\tTest %d:\tShould receive a 404 status code.", success, testID)

			var er errs.Response
			if err := json.NewDecoder(w.Body).Decode(&er); err != nil || er.Reason != "unknown account" {
				t.Fatalf("\t%s\tTest %d:\tShould name the reason: %+v %v", failed, testID, er, err)
			}
			t.Logf("\t%s\tTest %d:\tShould name the reason.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen asking for the snapshot.", testID)
		{
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/snapshot", nil))

			var got struct {
				Snapshot string `json:"snapshot"`
				Accounts int    `json:"accounts"`
			}
			if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to decode the response: %v", failed, testID, err)
			}
			if got.Snapshot != engine.Snapshot().Hex() || got.Accounts != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould return the current snapshot: %+v", failed, testID, got)
			}
			t.Logf("\t%s\tTest %d:\tShould return the current snapshot.", success, testID)

			if got := w.Header().Get("Access-Control-Allow-Methods"); got != "GET, OPTIONS" {
				t.Fatalf("\t%s\tTest %d:\tShould only allow reads across origins: got %q", failed, testID, got)
			}
			t.Logf("\t%s\tTest %d:\tShould only allow reads across origins.", success, testID)
		}
	}
}
