package server

import (
	"net/http"
	"time"

	"rockboxd/internal/events"
	"rockboxd/internal/settings"
	"rockboxd/pkg/errs"
)

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	us, err := s.settings.Load()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, us)
}

// handleSaveSettings applies a partial settings update. Only fields present
// in the body change.
func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var projection settings.NewGlobalSettings
	if err := decodeBody(r, &projection); err != nil {
		s.respondError(w, r, err)
		return
	}
	us, err := s.settings.Update(projection)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.bus.Changed(events.Options)
	s.respondJSON(w, us)
}

func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	status := map[string]interface{}{
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
		"target":         s.session.TargetKind(),
		"artists":        stats.Artists,
		"albums":         stats.Albums,
		"tracks":         stats.Tracks,
		"total_length":   stats.TotalLength,
		"devices":        s.registry.Size(),
	}
	if s.ingestor != nil {
		status["last_scan_count"] = s.ingestor.LastScanCount()
	}
	s.respondJSON(w, status)
}

// handleScan kicks off a library rescan in the background.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if s.ingestor == nil {
		s.respondError(w, r, errs.New(errs.Unavailable, "library scanning is disabled"))
		return
	}
	root := s.config.Library.Path
	go func() {
		if _, err := s.ingestor.Scan(root); err != nil {
			s.logger.WithError(err).Error("Library scan failed")
			return
		}
		if err := s.index.Rebuild(s.store); err != nil {
			s.logger.WithError(err).Error("Index rebuild after scan failed")
		}
	}()
	s.respondJSON(w, map[string]string{"status": "scanning"})
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, map[string]string{"status": "ok"})
}
