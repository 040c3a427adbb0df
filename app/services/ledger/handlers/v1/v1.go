// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"

	"github.com/VincentBerthier/bifrost/app/services/ledger/handlers/v1/ledgergrp"
	"github.com/VincentBerthier/bifrost/foundation/events"
	"github.com/VincentBerthier/bifrost/foundation/ledger/state"
	"github.com/VincentBerthier/bifrost/foundation/nameservice"
	"github.com/VincentBerthier/bifrost/foundation/web"
	"go.uber.org/zap"
)

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log    *zap.SugaredLogger
	Engine *state.Engine
	NS     *nameservice.NameService
	Evts   *events.Events
}

// Routes binds all the version 1 routes.
func Routes(app *web.App, cfg Config) {
	const version = "v1"

	lgh := ledgergrp.Handlers{
		Log:    cfg.Log,
		Engine: cfg.Engine,
		NS:     cfg.NS,
		Evts:   cfg.Evts,
	}

	app.Handle(http.MethodGet, version, "/events", lgh.Events)
	app.Handle(http.MethodGet, version, "/snapshot", lgh.Snapshot)
	app.Handle(http.MethodGet, version, "/accounts", lgh.Accounts)
	app.Handle(http.MethodGet, version, "/accounts/:address", lgh.Account)
	app.Handle(http.MethodGet, version, "/accounts/:address/proof", lgh.Proof)
}
