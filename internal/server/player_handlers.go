package server

import (
	"net/http"

	"rockboxd/pkg/errs"
	"rockboxd/pkg/models"
)

func (s *Server) handleGetPlayback(w http.ResponseWriter, r *http.Request) {
	status, err := s.session.Status()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, status)
}

func (s *Server) handleGetTracklist(w http.ResponseWriter, r *http.Request) {
	tracks, index, err := s.session.Tracklist()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, map[string]interface{}{
		"tracks": tracks,
		"index":  index,
	})
}

// control wraps the no-argument player commands.
func (s *Server) control(w http.ResponseWriter, r *http.Request, fn func() error) {
	if err := fn(); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	s.control(w, r, s.session.Play)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.control(w, r, s.session.Pause)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.control(w, r, s.session.Resume)
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	s.control(w, r, s.session.Next)
}

func (s *Server) handlePrevious(w http.ResponseWriter, r *http.Request) {
	s.control(w, r, s.session.Previous)
}

func (s *Server) handleClearTracklist(w http.ResponseWriter, r *http.Request) {
	s.control(w, r, s.session.ClearTracklist)
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeltaMs int64 `json:"delta"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.control(w, r, func() error { return s.session.Seek(req.DeltaMs) })
}

func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Volume int `json:"volume"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.control(w, r, func() error { return s.session.SetVolume(req.Volume) })
}

// handleLoadTracks replaces the active tracklist with the given track ids.
func (s *Server) handleLoadTracks(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TrackIDs []string `json:"tracks"`
		Start    int      `json:"start_index"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if len(req.TrackIDs) == 0 {
		s.respondError(w, r, errs.New(errs.InvalidArgument, "no tracks given"))
		return
	}
	tracks := make([]models.Track, 0, len(req.TrackIDs))
	for _, id := range req.TrackIDs {
		track, err := s.store.FindTrack(id)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		tracks = append(tracks, track)
	}
	s.control(w, r, func() error { return s.session.LoadTracks(tracks, req.Start) })
}

func (s *Server) handlePlayNext(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TrackID string `json:"track"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	track, err := s.store.FindTrack(req.TrackID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.control(w, r, func() error { return s.session.PlayNext(track) })
}

func (s *Server) handlePlayTrackAt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Position int `json:"position"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.control(w, r, func() error { return s.session.PlayTrackAt(req.Position) })
}

func (s *Server) handleRemoveTrackAt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Position int `json:"position"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.control(w, r, func() error { return s.session.RemoveTrackAt(req.Position) })
}
