// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package registers exposes read access to register metadata.
package registers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/sorchain/sorcha/api/restutil"
	"github.com/sorchain/sorcha/register"
	"github.com/sorchain/sorcha/sorcha"
)

type Registers struct {
	repo *register.Repository
}

func New(repo *register.Repository) *Registers {
	return &Registers{repo}
}

// RegisterInfo is the wire form of register metadata plus chain height.
type RegisterInfo struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	TenantID       string  `json:"tenant_id"`
	Status         string  `json:"status"`
	IsPublic       bool    `json:"is_public"`
	CreatedAt      uint64  `json:"created_at"`
	Height         uint64  `json:"height"`
	LatestDocketID *string `json:"latest_docket_id,omitempty"`
}

func (r *Registers) convert(meta *register.Register) *RegisterInfo {
	info := &RegisterInfo{
		ID:        meta.ID.String(),
		Name:      meta.Name,
		TenantID:  meta.TenantID,
		Status:    meta.Status.String(),
		IsPublic:  meta.IsPublic,
		CreatedAt: meta.CreatedAt,
	}
	if height, err := r.repo.Height(meta.ID); err == nil {
		info.Height = height
	}
	if latest, err := r.repo.LatestDocket(meta.ID); err == nil {
		id := latest.ID().String()
		info.LatestDocketID = &id
	}
	return info
}

func (r *Registers) handleGetRegister(w http.ResponseWriter, req *http.Request) error {
	id, err := sorcha.ParseRegisterID(mux.Vars(req)["id"])
	if err != nil {
		return restutil.BadRequest(errors.Wrap(err, "id"))
	}
	meta, err := r.repo.Get(id)
	if err != nil {
		if r.repo.IsNotFound(err) {
			return restutil.NotFound(errors.New("register not found"))
		}
		return err
	}
	return restutil.WriteJSON(w, r.convert(meta))
}

func (r *Registers) handleListRegisters(w http.ResponseWriter, req *http.Request) error {
	all := r.repo.All()
	out := make([]*RegisterInfo, 0, len(all))
	for _, meta := range all {
		out = append(out, r.convert(meta))
	}
	return restutil.WriteJSON(w, out)
}

func (r *Registers) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("").
		Methods(http.MethodGet).
		Name("registers_list").
		HandlerFunc(restutil.WrapHandlerFunc(r.handleListRegisters))
	sub.Path("/{id}").
		Methods(http.MethodGet).
		Name("registers_get").
		HandlerFunc(restutil.WrapHandlerFunc(r.handleGetRegister))
}
