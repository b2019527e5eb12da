// Package server exposes the HTTP/JSON control surface. Handlers are thin:
// they parse, call the library store / player session / browse cache, and
// serialize the result. Business rules live below this layer so the GraphQL
// resolvers can reuse them over loopback.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"rockboxd/internal/browse"
	"rockboxd/internal/config"
	"rockboxd/internal/devices"
	"rockboxd/internal/events"
	"rockboxd/internal/library"
	"rockboxd/internal/player"
	"rockboxd/internal/search"
	"rockboxd/internal/settings"
	"rockboxd/pkg/errs"
)

// Server is the HTTP/JSON surface.
type Server struct {
	config   *config.Config
	store    *library.Store
	ingestor *library.Ingestor
	index    *search.Index
	cache    *browse.Cache
	session  *player.Session
	registry *devices.Registry
	settings *settings.Store
	bus      *events.Bus
	logger   *logrus.Logger

	httpServer *http.Server
	startedAt  time.Time
}

// NewServer wires the surface. All collaborators are required except the
// ingestor, which may be nil when scanning is disabled.
func NewServer(cfg *config.Config, store *library.Store, ingestor *library.Ingestor,
	index *search.Index, cache *browse.Cache, session *player.Session,
	registry *devices.Registry, st *settings.Store, bus *events.Bus,
	logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	return &Server{
		config:    cfg,
		store:     store,
		ingestor:  ingestor,
		index:     index,
		cache:     cache,
		session:   session,
		registry:  registry,
		settings:  st,
		bus:       bus,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Handler builds the route table. Exposed for httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /", s.handleIndex)

	mux.HandleFunc("GET /api/artists", s.handleGetArtists)
	mux.HandleFunc("GET /api/artists/{id}", s.handleGetArtist)
	mux.HandleFunc("GET /api/artists/{id}/albums", s.handleGetArtistAlbums)
	mux.HandleFunc("GET /api/artists/{id}/tracks", s.handleGetArtistTracks)

	mux.HandleFunc("GET /api/albums", s.handleGetAlbums)
	mux.HandleFunc("GET /api/albums/{id}", s.handleGetAlbum)
	mux.HandleFunc("GET /api/albums/{id}/tracks", s.handleGetAlbumTracks)

	mux.HandleFunc("GET /api/tracks", s.handleGetTracks)
	mux.HandleFunc("GET /api/tracks/{id}", s.handleGetTrack)

	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("GET /api/browse", s.handleBrowse)

	mux.HandleFunc("GET /api/playlists", s.handleGetPlaylists)
	mux.HandleFunc("POST /api/playlists", s.handleCreatePlaylist)
	mux.HandleFunc("GET /api/playlists/{id}", s.handleGetPlaylist)
	mux.HandleFunc("PUT /api/playlists/{id}", s.handleRenamePlaylist)
	mux.HandleFunc("DELETE /api/playlists/{id}", s.handleDeletePlaylist)
	mux.HandleFunc("GET /api/playlists/{id}/tracks", s.handleGetPlaylistTracks)
	mux.HandleFunc("POST /api/playlists/{id}/tracks", s.handleInsertPlaylistTracks)
	mux.HandleFunc("DELETE /api/playlists/{id}/tracks/{position}", s.handleRemovePlaylistTrack)
	mux.HandleFunc("POST /api/playlists/{id}/move", s.handleMovePlaylistTrack)
	mux.HandleFunc("POST /api/playlists/{id}/shuffle", s.handleShufflePlaylist)
	mux.HandleFunc("POST /api/playlists/{id}/clear", s.handleClearPlaylist)
	mux.HandleFunc("POST /api/playlists/{id}/start", s.handleStartPlaylist)
	mux.HandleFunc("POST /api/playlists/{id}/resume", s.handleResumePlaylist)

	mux.HandleFunc("GET /api/folders", s.handleGetFolders)
	mux.HandleFunc("POST /api/folders", s.handleCreateFolder)
	mux.HandleFunc("GET /api/folders/{id}", s.handleGetFolder)
	mux.HandleFunc("PUT /api/folders/{id}", s.handleRenameFolder)
	mux.HandleFunc("DELETE /api/folders/{id}", s.handleDeleteFolder)

	mux.HandleFunc("GET /api/likes/tracks", s.handleGetLikedTracks)
	mux.HandleFunc("GET /api/likes/albums", s.handleGetLikedAlbums)
	mux.HandleFunc("PUT /api/likes/tracks/{id}", s.handleLikeTrack)
	mux.HandleFunc("DELETE /api/likes/tracks/{id}", s.handleUnlikeTrack)
	mux.HandleFunc("PUT /api/likes/albums/{id}", s.handleLikeAlbum)
	mux.HandleFunc("DELETE /api/likes/albums/{id}", s.handleUnlikeAlbum)

	mux.HandleFunc("GET /api/devices", s.handleGetDevices)
	mux.HandleFunc("GET /api/devices/current", s.handleGetCurrentDevice)
	mux.HandleFunc("POST /api/devices/{id}/connect", s.handleConnectDevice)
	mux.HandleFunc("POST /api/devices/disconnect", s.handleDisconnectDevice)

	mux.HandleFunc("GET /api/player", s.handleGetPlayback)
	mux.HandleFunc("GET /api/player/tracklist", s.handleGetTracklist)
	mux.HandleFunc("POST /api/player/play", s.handlePlay)
	mux.HandleFunc("POST /api/player/pause", s.handlePause)
	mux.HandleFunc("POST /api/player/resume", s.handleResume)
	mux.HandleFunc("POST /api/player/next", s.handleNext)
	mux.HandleFunc("POST /api/player/previous", s.handlePrevious)
	mux.HandleFunc("POST /api/player/seek", s.handleSeek)
	mux.HandleFunc("POST /api/player/volume", s.handleVolume)
	mux.HandleFunc("POST /api/player/load", s.handleLoadTracks)
	mux.HandleFunc("POST /api/player/play-next", s.handlePlayNext)
	mux.HandleFunc("POST /api/player/play-at", s.handlePlayTrackAt)
	mux.HandleFunc("POST /api/player/remove-at", s.handleRemoveTrackAt)
	mux.HandleFunc("POST /api/player/clear", s.handleClearTracklist)

	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("PUT /api/settings", s.handleSaveSettings)

	mux.HandleFunc("GET /api/system/status", s.handleSystemStatus)
	mux.HandleFunc("POST /api/system/scan", s.handleScan)
	mux.HandleFunc("GET /health", s.handleHealthCheck)

	var h http.Handler = mux
	h = s.authMiddleware(h)
	h = s.requestLoggingMiddleware(h)
	h = s.corsMiddleware(h)
	h = s.panicRecoveryMiddleware(h)
	return h
}

// Start blocks serving HTTP until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:        s.config.HTTPAddress(),
		Handler:     s.Handler(),
		ReadTimeout: time.Duration(s.config.Server.ReadTimeout) * time.Second,
	}
	s.logger.WithField("addr", s.httpServer.Addr).Info("HTTP surface listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// respondJSON writes v as a JSON body with status 200.
func (s *Server) respondJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Could not encode response")
	}
}

// respondCreated is respondJSON with a 201 for resource creation.
func (s *Server) respondCreated(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Could not encode response")
	}
}

// respondError maps the error taxonomy onto HTTP status codes.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := errs.HTTPStatus(err)
	entry := s.logger.WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"status": status,
	}).WithError(err)
	if status >= 500 {
		entry.Error("Request failed")
	} else {
		entry.Warn("Request rejected")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": err.Error(),
		"code":  status,
	})
}

// decodeBody parses a JSON request body into dst.
func decodeBody(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errs.Wrap(errs.InvalidArgument, err, "invalid request body")
	}
	return nil
}
