package api

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-motion/internal/machine"
	"github.com/nerrad567/gray-logic-motion/internal/netdata"
)

// KeyValue is the body of key reads and writes.
type KeyValue struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// ModeRequest changes the operating mode.
type ModeRequest struct {
	Mode   string `json:"mode"`
	Master string `json:"master,omitempty"`
}

func (s *Server) handleGetStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.machine.Status())
}

// keyParam returns the unescaped {key} path segment.
func keyParam(r *http.Request) (string, bool) {
	key, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil || key == "" {
		return "", false
	}
	return key, true
}

func (s *Server) handleGetKey(w http.ResponseWriter, r *http.Request) {
	key, ok := keyParam(r)
	if !ok {
		writeBadRequest(w, "invalid key")
		return
	}
	v, err := s.machine.Get(r.Context(), key)
	if err != nil {
		writeMachineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, KeyValue{Key: key, Value: v})
}

// handleSetKey writes a key. A JSON array value is passed as a list, which
// machine:operating_mode accepts as [mode, master].
func (s *Server) handleSetKey(w http.ResponseWriter, r *http.Request) {
	key, ok := keyParam(r)
	if !ok {
		writeBadRequest(w, "invalid key")
		return
	}
	var body KeyValue
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if body.Value == nil {
		writeBadRequest(w, "value is required")
		return
	}

	if err := s.machine.Set(r.Context(), key, body.Value); err != nil {
		writeMachineError(w, err)
		return
	}
	s.logger.Info("key set via API", "key", key, "value", body.Value)
	writeJSON(w, http.StatusOK, KeyValue{Key: key, Value: body.Value})
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req ModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	mode, err := machine.ParseOperatingMode(req.Mode)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if err := s.machine.SetOperatingMode(r.Context(), mode, req.Master); err != nil {
		writeMachineError(w, err)
		return
	}

	resp := ModeRequest{Mode: s.machine.Mode().String()}
	if master := s.machine.Master(); !master.IsZero() {
		resp.Master = master.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleResetFatal(w http.ResponseWriter, _ *http.Request) {
	s.machine.ResetFatal()
	s.logger.Warn("fault state reset via API")
	writeJSON(w, http.StatusOK, map[string]any{"fatal": s.machine.Status().Fatal})
}

// handleListAttributes lists the addressable keys of the local drive.
func (s *Server) handleListAttributes(w http.ResponseWriter, _ *http.Request) {
	attrs := s.machine.Driver().Attributes()
	if attrs == nil {
		attrs = []netdata.Attribute{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"attributes": attrs,
		"count":      len(attrs),
	})
}
