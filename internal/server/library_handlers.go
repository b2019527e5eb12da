package server

import (
	"net/http"

	"rockboxd/pkg/errs"
)

// handleIndex serves a short machine-readable description of the surface.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	s.respondJSON(w, map[string]interface{}{
		"name":    "rockboxd",
		"surface": "http",
		"routes": []string{
			"/api/artists", "/api/albums", "/api/tracks", "/api/search",
			"/api/browse", "/api/playlists", "/api/folders", "/api/likes",
			"/api/devices", "/api/player", "/api/settings", "/api/system/status",
		},
	})
}

func (s *Server) handleGetArtists(w http.ResponseWriter, r *http.Request) {
	artists, err := s.store.AllArtists()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, artists)
}

func (s *Server) handleGetArtist(w http.ResponseWriter, r *http.Request) {
	artist, err := s.store.FindArtist(r.PathValue("id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, artist)
}

func (s *Server) handleGetArtistAlbums(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.FindArtist(id); err != nil {
		s.respondError(w, r, err)
		return
	}
	albums, err := s.store.AlbumsByArtist(id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, albums)
}

func (s *Server) handleGetArtistTracks(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.FindArtist(id); err != nil {
		s.respondError(w, r, err)
		return
	}
	tracks, err := s.store.TracksByArtist(id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, tracks)
}

func (s *Server) handleGetAlbums(w http.ResponseWriter, r *http.Request) {
	albums, err := s.store.AllAlbums()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, albums)
}

func (s *Server) handleGetAlbum(w http.ResponseWriter, r *http.Request) {
	album, err := s.store.FindAlbum(r.PathValue("id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, album)
}

func (s *Server) handleGetAlbumTracks(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.FindAlbum(id); err != nil {
		s.respondError(w, r, err)
		return
	}
	tracks, err := s.store.TracksByAlbum(id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, tracks)
}

// handleGetTracks returns tracks, optionally filtered by a search term.
func (s *Server) handleGetTracks(w http.ResponseWriter, r *http.Request) {
	var err error
	var tracks interface{}
	if q := r.URL.Query().Get("search"); q != "" {
		tracks, err = s.store.SearchTracksLike(q)
	} else {
		tracks, err = s.store.AllTracks()
	}
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, tracks)
}

func (s *Server) handleGetTrack(w http.ResponseWriter, r *http.Request) {
	track, err := s.store.FindTrack(r.PathValue("id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, track)
}

// handleSearch queries every index kind and merges the hits.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("q")
	if term == "" {
		s.respondError(w, r, errs.New(errs.InvalidArgument, "missing query parameter q"))
		return
	}
	s.respondJSON(w, s.index.Search(term, s.store))
}

// handleBrowse lists a library directory through the browse cache.
func (s *Server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		path = s.config.Library.Path
	}
	entries, err := s.cache.Read(path)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, entries)
}

func (s *Server) handleGetLikedTracks(w http.ResponseWriter, r *http.Request) {
	tracks, err := s.store.FavouriteTracks()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, tracks)
}

func (s *Server) handleGetLikedAlbums(w http.ResponseWriter, r *http.Request) {
	albums, err := s.store.FavouriteAlbums()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, albums)
}

func (s *Server) handleLikeTrack(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	track, err := s.store.FindTrack(id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	fav, err := s.store.LikeTrack(id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.index.IndexLikedTrack(track); err != nil {
		s.logger.WithError(err).Warn("Could not index liked track")
	}
	s.respondJSON(w, fav)
}

func (s *Server) handleUnlikeTrack(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.UnlikeTrack(id); err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.index.DeleteLikedTrack(id); err != nil {
		s.logger.WithError(err).Warn("Could not drop liked track from index")
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLikeAlbum(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	album, err := s.store.FindAlbum(id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	fav, err := s.store.LikeAlbum(id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.index.IndexLikedAlbum(album); err != nil {
		s.logger.WithError(err).Warn("Could not index liked album")
	}
	s.respondJSON(w, fav)
}

func (s *Server) handleUnlikeAlbum(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.UnlikeAlbum(id); err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.index.DeleteLikedAlbum(id); err != nil {
		s.logger.WithError(err).Warn("Could not drop liked album from index")
	}
	w.WriteHeader(http.StatusNoContent)
}
