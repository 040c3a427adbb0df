// Package ledgergrp maintains the group of handlers for reading the ledger.
package ledgergrp

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/VincentBerthier/bifrost/business/web/errs"
	"github.com/VincentBerthier/bifrost/foundation/events"
	"github.com/VincentBerthier/bifrost/foundation/ledger/state"
	"github.com/VincentBerthier/bifrost/foundation/nameservice"
	"github.com/VincentBerthier/bifrost/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of ledger endpoints.
type Handlers struct {
	Log    *zap.SugaredLogger
	Engine *state.Engine
	NS     *nameservice.NameService
	WS     websocket.Upgrader
	Evts   *events.Events
}

// Snapshot returns the digest of the last committed state.
func (h Handlers) Snapshot(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	hdr := h.Engine.Header()

	resp := snapshot{
		Snapshot:   hdr.Snapshot,
		Generation: hdr.Generation,
		Records:    hdr.Count,
		Accounts:   len(h.Engine.Accounts()),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Accounts returns every committed account.
func (h Handlers) Accounts(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	accounts := h.Engine.Accounts()

	resp := make([]account, len(accounts))
	for i, a := range accounts {
		resp[i] = toAccount(a, h.NS.Lookup(a.Address))
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Account returns the committed state of one account. The address can be
// given in base58 or as a name known to the name service.
func (h Handlers) Account(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	addr, err := h.NS.Resolve(web.Param(r, "address"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	a, err := h.Engine.Account(addr)
	if err != nil {
		return errs.FromLedger(err)
	}

	return web.Respond(ctx, w, toAccount(a, h.NS.Lookup(addr)), http.StatusOK)
}

// Proof returns the inclusion proof of an account in the last snapshot.
func (h Handlers) Proof(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	addr, err := h.NS.Resolve(web.Param(r, "address"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	p, err := h.Engine.Proof(addr)
	if err != nil {
		return errs.FromLedger(err)
	}

	return web.Respond(ctx, w, toProof(p, h.NS.Lookup(addr)), http.StatusOK)
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer func() {
		if dropped, err := h.Evts.Release(v.TraceID); err == nil && dropped > 0 {
			h.Log.Infow("events", "traceid", v.TraceID, "dropped", dropped)
		}
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return fmt.Errorf("writing event: %w", err)
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}
