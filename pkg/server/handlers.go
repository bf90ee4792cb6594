// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gardener/aws-service-broker/pkg/broker"
	"github.com/gardener/aws-service-broker/pkg/broker/catalog"
)

// Handlers serves the service broker API.
type Handlers struct {
	broker  broker.Broker
	catalog *catalog.Catalog
}

// NewHandlers creates a new handler set for the given broker and catalog.
func NewHandlers(b broker.Broker, c *catalog.Catalog) *Handlers {
	return &Handlers{
		broker:  b,
		catalog: c,
	}
}

// empty is the body of successful responses without content.
var empty = struct{}{}

// decode decodes the request body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}

	return broker.Errorf(broker.ErrValidation, "Invalid request body: %s", err)
}

// Catalog handles GET /v2/catalog
func (h *Handlers) Catalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.catalog)
}

// Provision handles PUT /v2/service_instances/{instance_id}
func (h *Handlers) Provision(w http.ResponseWriter, r *http.Request) {
	var req broker.ProvisionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.InstanceID = chi.URLParam(r, "instance_id")

	resp, err := h.broker.Provision(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if resp == nil {
		resp = &broker.ProvisionResponse{}
	}

	writeJSON(w, r, http.StatusCreated, resp)
}

// Update handles PATCH /v2/service_instances/{instance_id}
func (h *Handlers) Update(w http.ResponseWriter, r *http.Request) {
	var req broker.UpdateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.InstanceID = chi.URLParam(r, "instance_id")

	resp, err := h.broker.Update(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if resp == nil {
		resp = &broker.UpdateResponse{}
	}

	writeJSON(w, r, http.StatusOK, resp)
}

// Deprovision handles DELETE /v2/service_instances/{instance_id}
func (h *Handlers) Deprovision(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := broker.DeprovisionRequest{
		InstanceID: chi.URLParam(r, "instance_id"),
		ServiceID:  query.Get("service_id"),
		PlanID:     query.Get("plan_id"),
	}

	if err := h.broker.Deprovision(r.Context(), req); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, empty)
}

// Bind handles PUT /v2/service_instances/{instance_id}/service_bindings/{binding_id}
func (h *Handlers) Bind(w http.ResponseWriter, r *http.Request) {
	var req broker.BindRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.InstanceID = chi.URLParam(r, "instance_id")
	req.BindingID = chi.URLParam(r, "binding_id")

	resp, err := h.broker.Bind(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if resp == nil {
		resp = &broker.BindResponse{}
	}
	if resp.Credentials == nil {
		resp.Credentials = broker.Credentials{}
	}

	writeJSON(w, r, http.StatusCreated, resp)
}

// Unbind handles DELETE /v2/service_instances/{instance_id}/service_bindings/{binding_id}
func (h *Handlers) Unbind(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := broker.UnbindRequest{
		InstanceID: chi.URLParam(r, "instance_id"),
		BindingID:  chi.URLParam(r, "binding_id"),
		ServiceID:  query.Get("service_id"),
		PlanID:     query.Get("plan_id"),
	}

	if err := h.broker.Unbind(r.Context(), req); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, empty)
}

// Mount registers the broker API routes on the given router.
func (h *Handlers) Mount(r chi.Router) {
	r.Get("/v2/catalog", h.Catalog)
	r.Put("/v2/service_instances/{instance_id}", h.Provision)
	r.Patch("/v2/service_instances/{instance_id}", h.Update)
	r.Delete("/v2/service_instances/{instance_id}", h.Deprovision)
	r.Put("/v2/service_instances/{instance_id}/service_bindings/{binding_id}", h.Bind)
	r.Delete("/v2/service_instances/{instance_id}/service_bindings/{binding_id}", h.Unbind)
}
