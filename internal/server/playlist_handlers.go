package server

import (
	"net/http"
	"strconv"

	"rockboxd/internal/events"
	"rockboxd/pkg/errs"
)

func (s *Server) handleGetPlaylists(w http.ResponseWriter, r *http.Request) {
	var err error
	var playlists interface{}
	if folderID := r.URL.Query().Get("folder"); folderID != "" {
		playlists, err = s.store.PlaylistsByFolder(folderID)
	} else {
		playlists, err = s.store.AllPlaylists()
	}
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, playlists)
}

func (s *Server) handleCreatePlaylist(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string   `json:"name"`
		Description string   `json:"description"`
		FolderID    string   `json:"folder_id"`
		TrackIDs    []string `json:"tracks"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if req.Name == "" {
		s.respondError(w, r, errs.New(errs.InvalidArgument, "playlist name is required"))
		return
	}

	playlist, err := s.store.CreatePlaylist(req.Name, req.Description, req.FolderID, req.TrackIDs)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.bus.Changed(events.StoredPlaylist)
	s.respondCreated(w, playlist)
}

func (s *Server) handleGetPlaylist(w http.ResponseWriter, r *http.Request) {
	playlist, err := s.store.FindPlaylist(r.PathValue("id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, playlist)
}

func (s *Server) handleRenamePlaylist(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if req.Name == "" {
		s.respondError(w, r, errs.New(errs.InvalidArgument, "playlist name is required"))
		return
	}
	if err := s.store.RenamePlaylist(r.PathValue("id"), req.Name); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.bus.Changed(events.StoredPlaylist)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeletePlaylist(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeletePlaylist(r.PathValue("id")); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.bus.Changed(events.StoredPlaylist)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetPlaylistTracks(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.FindPlaylist(id); err != nil {
		s.respondError(w, r, err)
		return
	}
	tracks, err := s.store.PlaylistTracks(id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, tracks)
}

// handleInsertPlaylistTracks appends or inserts tracks. position -1 appends.
func (s *Server) handleInsertPlaylistTracks(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TrackIDs []string `json:"tracks"`
		Position *int     `json:"position"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if len(req.TrackIDs) == 0 {
		s.respondError(w, r, errs.New(errs.InvalidArgument, "no tracks given"))
		return
	}
	position := -1
	if req.Position != nil {
		position = *req.Position
	}
	if err := s.store.InsertPlaylistTracks(r.PathValue("id"), req.TrackIDs, position); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.bus.Changed(events.StoredPlaylist)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemovePlaylistTrack(w http.ResponseWriter, r *http.Request) {
	position, err := strconv.Atoi(r.PathValue("position"))
	if err != nil {
		s.respondError(w, r, errs.New(errs.InvalidArgument, "invalid position"))
		return
	}
	if err := s.store.RemovePlaylistTrackAt(r.PathValue("id"), position); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.bus.Changed(events.StoredPlaylist)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMovePlaylistTrack(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From int `json:"from"`
		To   int `json:"to"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.store.MovePlaylistTrack(r.PathValue("id"), req.From, req.To); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.bus.Changed(events.StoredPlaylist)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleShufflePlaylist(w http.ResponseWriter, r *http.Request) {
	if err := s.store.ShufflePlaylist(r.PathValue("id")); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.bus.Changed(events.StoredPlaylist)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearPlaylist(w http.ResponseWriter, r *http.Request) {
	if err := s.store.ClearPlaylist(r.PathValue("id")); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.bus.Changed(events.StoredPlaylist)
	w.WriteHeader(http.StatusNoContent)
}

// handleStartPlaylist loads the playlist into the active player and starts
// playback at the requested position (default 0).
func (s *Server) handleStartPlaylist(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Position int  `json:"position"`
		Shuffle  bool `json:"shuffle"`
	}
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			s.respondError(w, r, err)
			return
		}
	}

	id := r.PathValue("id")
	if req.Shuffle {
		if err := s.store.ShufflePlaylist(id); err != nil {
			s.respondError(w, r, err)
			return
		}
	}
	tracks, err := s.store.PlaylistTracks(id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if len(tracks) == 0 {
		s.respondError(w, r, errs.New(errs.InvalidArgument, "playlist is empty"))
		return
	}
	if req.Position < 0 || req.Position >= len(tracks) {
		s.respondError(w, r, errs.New(errs.InvalidArgument, "position %d out of range", req.Position))
		return
	}
	if err := s.session.LoadTracks(tracks, req.Position); err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.session.Play(); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleResumePlaylist loads the playlist without starting playback, keeping
// the engine's saved position.
func (s *Server) handleResumePlaylist(w http.ResponseWriter, r *http.Request) {
	tracks, err := s.store.PlaylistTracks(r.PathValue("id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if len(tracks) == 0 {
		s.respondError(w, r, errs.New(errs.InvalidArgument, "playlist is empty"))
		return
	}
	if err := s.session.LoadTracks(tracks, 0); err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.session.Resume(); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetFolders(w http.ResponseWriter, r *http.Request) {
	var err error
	var folders interface{}
	if parent := r.URL.Query().Get("parent"); parent != "" {
		folders, err = s.store.FoldersByParent(parent)
	} else {
		folders, err = s.store.AllFolders()
	}
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, folders)
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		ParentID string `json:"parent_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if req.Name == "" {
		s.respondError(w, r, errs.New(errs.InvalidArgument, "folder name is required"))
		return
	}
	folder, err := s.store.CreateFolder(req.Name, req.ParentID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondCreated(w, folder)
}

func (s *Server) handleGetFolder(w http.ResponseWriter, r *http.Request) {
	folder, err := s.store.FindFolder(r.PathValue("id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, folder)
}

func (s *Server) handleRenameFolder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if req.Name == "" {
		s.respondError(w, r, errs.New(errs.InvalidArgument, "folder name is required"))
		return
	}
	if err := s.store.RenameFolder(r.PathValue("id"), req.Name); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteFolder(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteFolder(r.PathValue("id")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
