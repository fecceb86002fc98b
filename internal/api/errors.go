package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-motion/internal/correlation"
	"github.com/nerrad567/gray-logic-motion/internal/driver"
	"github.com/nerrad567/gray-logic-motion/internal/machine"
	"github.com/nerrad567/gray-logic-motion/internal/message"
	"github.com/nerrad567/gray-logic-motion/internal/netdata"
	"github.com/nerrad567/gray-logic-motion/internal/slave"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest = "bad_request"
	ErrCodeNotFound   = "not_found"
	ErrCodeConflict   = "conflict"
	ErrCodeForbidden  = "forbidden"
	ErrCodeInternal   = "internal_error"
	ErrCodeGateway    = "drive_unreachable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeMachineError maps a machine, slave or driver error to a response.
func writeMachineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, machine.ErrUnknownKey),
		errors.Is(err, netdata.ErrUnknownKey),
		errors.Is(err, slave.ErrNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, driver.ErrAccess):
		writeError(w, http.StatusForbidden, ErrCodeForbidden, err.Error())
	case errors.Is(err, machine.ErrInvalidMode),
		errors.Is(err, slave.ErrInvalidSlave),
		errors.Is(err, message.ErrInvalidAddress),
		errors.Is(err, driver.ErrUnknownType),
		errors.Is(err, driver.ErrSubkeyRequired),
		errors.Is(err, netdata.ErrInvalidValue):
		writeBadRequest(w, err.Error())
	case errors.Is(err, machine.ErrFatal), errors.Is(err, machine.ErrMachine):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, correlation.ErrCommunicationTimeout), errors.Is(err, driver.ErrDriver):
		writeError(w, http.StatusBadGateway, ErrCodeGateway, err.Error())
	default:
		writeInternalError(w, err.Error())
	}
}
