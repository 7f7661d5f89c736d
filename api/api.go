// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package api assembles the node's http surface.
package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/sorchain/sorcha/api/node"
	"github.com/sorchain/sorcha/api/registers"
	"github.com/sorchain/sorcha/api/transactions"
	"github.com/sorchain/sorcha/metrics"
	"github.com/sorchain/sorcha/peerstore"
	"github.com/sorchain/sorcha/register"
	"github.com/sorchain/sorcha/subs"
	"github.com/sorchain/sorcha/validator"
)

// Options tunes the http surface.
type Options struct {
	NodeID         string
	AllowedOrigins string
	EnableMetrics  bool
}

// New returns the assembled api router.
func New(
	repo *register.Repository,
	pl *validator.Pipeline,
	store *peerstore.Store,
	subsMgr *subs.Manager,
	opts Options,
) http.Handler {
	router := mux.NewRouter()

	transactions.New(pl).Mount(router, "/transactions")
	registers.New(repo).Mount(router, "/registers")
	node.New(opts.NodeID, store, subsMgr).Mount(router, "/node")

	if opts.EnableMetrics {
		router.PathPrefix("/metrics").Handler(metrics.HTTPHandler())
	}

	origins := strings.Split(strings.TrimSpace(opts.AllowedOrigins), ",")
	for i, o := range origins {
		origins[i] = strings.ToLower(strings.TrimSpace(o))
	}

	return handlers.CompressHandler(
		handlers.CORS(
			handlers.AllowedOrigins(origins),
			handlers.AllowedHeaders([]string{"content-type"}),
		)(router))
}
