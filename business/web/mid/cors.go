package mid

import (
	"context"
	"net/http"

	"github.com/VincentBerthier/bifrost/foundation/web"
)

// Methods allowed across origins. The status surface only reads the ledger:
// transactions enter through the inbox directory and never over HTTP, so a
// browser only ever needs GET and the OPTIONS preflight.
const (
	corsMethods = "GET, OPTIONS"
	corsHeaders = "Origin, Accept, Accept-Encoding"
)

// Cors lets pages served from origin read the status surface.
func Cors(origin string) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", corsMethods)
			w.Header().Set("Access-Control-Allow-Headers", corsHeaders)

			return handler(ctx, w, r)
		}

		return h
	}

	return m
}
