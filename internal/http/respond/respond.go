// Package respond writes JSON bodies and maps ledger errors to HTTP statuses.
package respond

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/MrJamesThe3rd/invoicer/internal/invoice"
)

var errInternal = errors.New("internal error")

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func Error(w http.ResponseWriter, status int, kind string, err error) {
	JSON(w, status, errorResponse{Error: err.Error(), Kind: kind})
}

// Status maps an error kind onto an HTTP status.
func Status(kind string) int {
	switch kind {
	case "not_found", "customer_not_found", "product_not_found":
		return http.StatusNotFound
	case "invalid_state", "duplicate_number":
		return http.StatusConflict
	case "insufficient_stock", "credit_limit_exceeded", "customer_inactive", "payment_exceeds_balance":
		return http.StatusUnprocessableEntity
	case "validation_error":
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Fail writes err using the ledger error taxonomy. Internal errors are logged and
// reported without detail.
func Fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := invoice.Kind(err)
	status := Status(kind)

	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		Error(w, status, kind, errInternal)

		return
	}

	Error(w, status, kind, err)
}
