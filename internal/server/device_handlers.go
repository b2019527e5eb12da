package server

import (
	"net/http"

	"rockboxd/pkg/errs"
)

func (s *Server) handleGetDevices(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, s.registry.All())
}

// handleGetCurrentDevice returns 404 when playback is on the local engine.
func (s *Server) handleGetCurrentDevice(w http.ResponseWriter, r *http.Request) {
	device, ok := s.registry.Current()
	if !ok {
		s.respondError(w, r, errs.New(errs.NotFound, "no device connected"))
		return
	}
	s.respondJSON(w, device)
}

func (s *Server) handleConnectDevice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.session.Connect(id); err != nil {
		s.respondError(w, r, err)
		return
	}
	device, err := s.registry.Find(id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, device)
}

func (s *Server) handleDisconnectDevice(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Disconnect(); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
