package api

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-motion/internal/slave"
)

// SlaveRequest registers a slave.
type SlaveRequest struct {
	Address     string            `json:"address"`
	Driver      string            `json:"driver,omitempty"`
	ControlMode string            `json:"control_mode,omitempty"`
	Config      map[string]string `json:"config,omitempty"`
}

// SlaveResponse describes a registered slave.
type SlaveResponse struct {
	ID           string            `json:"id"`
	Serialnumber string            `json:"serialnumber,omitempty"`
	Address      string            `json:"address"`
	Driver       string            `json:"driver"`
	ControlMode  string            `json:"control_mode"`
	Config       map[string]string `json:"config,omitempty"`
}

func toSlaveResponse(s slave.Slave) SlaveResponse {
	return SlaveResponse{
		ID:           s.ID(),
		Serialnumber: s.Serialnumber,
		Address:      s.Address.String(),
		Driver:       string(s.Driver),
		ControlMode:  s.ControlMode.String(),
		Config:       s.Config,
	}
}

func (s *Server) handleListSlaves(w http.ResponseWriter, _ *http.Request) {
	slaves := s.machine.Slaves()
	out := make([]SlaveResponse, 0, len(slaves))
	for _, sl := range slaves {
		out = append(out, toSlaveResponse(sl))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"slaves": out,
		"count":  len(out),
	})
}

func (s *Server) handleAddSlave(w http.ResponseWriter, r *http.Request) {
	var req SlaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Address == "" {
		writeBadRequest(w, "address is required")
		return
	}

	sl, err := slave.New(req.Address, req.Driver, req.ControlMode, req.Config)
	if err != nil {
		writeMachineError(w, err)
		return
	}
	added, err := s.machine.AddSlave(r.Context(), sl)
	if err != nil {
		writeMachineError(w, err)
		return
	}

	s.logger.Info("slave added via API", "slave", added.String())
	writeJSON(w, http.StatusCreated, toSlaveResponse(added))
}

func (s *Server) handleRemoveSlave(w http.ResponseWriter, r *http.Request) {
	id, err := url.PathUnescape(chi.URLParam(r, "id"))
	if err != nil || id == "" {
		writeBadRequest(w, "invalid slave id")
		return
	}
	if err := s.machine.RemoveSlave(r.Context(), id); err != nil {
		writeMachineError(w, err)
		return
	}
	s.logger.Info("slave removed via API", "slave", id)
	w.WriteHeader(http.StatusNoContent)
}
