// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package transactions exposes the signed transaction submission endpoint.
// Every submission gets exactly one synchronous decision; internal failure
// detail never leaves the node, only codes from the closed validation set.
package transactions

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/sorchain/sorcha/api/restutil"
	"github.com/sorchain/sorcha/validator"
)

type Transactions struct {
	pl *validator.Pipeline
}

func New(pl *validator.Pipeline) *Transactions {
	return &Transactions{pl}
}

func (t *Transactions) handleSubmit(w http.ResponseWriter, req *http.Request) error {
	var submit *SubmitTx
	if err := restutil.ParseJSON(req.Body, &submit); err != nil {
		return restutil.BadRequest(err)
	}
	trx, err := submit.decode()
	if err != nil {
		if errors.Is(err, errHashMismatch) {
			return restutil.WriteJSONStatus(w, &Receipt{
				StageReached: string(validator.StagePayloadHash),
				Error:        &ErrorBody{Code: string(validator.CodeHash), Message: err.Error()},
			}, http.StatusBadRequest)
		}
		// malformed wire forms are structural rejections
		return restutil.WriteJSONStatus(w, &Receipt{
			StageReached: string(validator.StageStructural),
			Error:        &ErrorBody{Code: string(validator.CodeStruct), Message: err.Error()},
		}, http.StatusBadRequest)
	}

	receipt := t.pl.Submit(req.Context(), trx)
	return restutil.WriteJSONStatus(w, convertReceipt(receipt), statusOf(receipt))
}

func statusOf(r *validator.Receipt) int {
	if r.Accepted {
		return http.StatusOK
	}
	switch r.Err.Code {
	case validator.CodeBusy:
		return http.StatusTooManyRequests
	case validator.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

func (t *Transactions) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("").
		Methods(http.MethodPost).
		Name("transactions_submit").
		HandlerFunc(restutil.WrapHandlerFunc(t.handleSubmit))
}
