// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gardener/aws-service-broker/pkg/broker"
	slogutils "github.com/gardener/aws-service-broker/pkg/utils/slog"
)

// ErrorResponse is the body of failed requests.
type ErrorResponse struct {
	Message string `json:"message"`
}

// StatusCode returns the HTTP status code for the given broker error.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, broker.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, broker.ErrPrecondition):
		return http.StatusPreconditionFailed
	case errors.Is(err, broker.ErrGone):
		return http.StatusGone
	case errors.Is(err, broker.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes v as JSON body with the given status code.
func writeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slogutils.GetLogger(r.Context()).Error("failed to write response", "reason", err)
	}
}

// writeError writes the message of err with the status code mapped from it.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	writeJSON(w, r, StatusCode(err), ErrorResponse{Message: broker.Message(err)})
}
