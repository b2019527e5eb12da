// Package rpcsrv exposes the binary RPC surface over net/rpc with gob
// encoding. One service per domain; semantics match the HTTP surface.
// net/rpc flattens errors to strings, so every error crosses the wire as
// "code: message" with code one of invalid_argument, not_found, internal.
package rpcsrv

import (
	"context"
	"fmt"
	"net"
	"net/rpc"
	"sync"

	"github.com/sirupsen/logrus"

	"rockboxd/internal/browse"
	"rockboxd/internal/config"
	"rockboxd/internal/devices"
	"rockboxd/internal/engine"
	"rockboxd/internal/library"
	"rockboxd/internal/player"
	"rockboxd/internal/search"
	"rockboxd/internal/settings"
	"rockboxd/pkg/errs"
	"rockboxd/pkg/models"
)

// wireError flattens an error into the "code: message" wire form.
func wireError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %s", errs.RPCCode(err), err.Error())
}

// Server owns the RPC listener and the registered services.
type Server struct {
	config   *config.Config
	logger   *logrus.Logger
	rpc      *rpc.Server
	listener net.Listener

	mu     sync.Mutex
	closed bool
	conns  map[net.Conn]struct{}
}

// NewServer registers the domain services.
func NewServer(cfg *config.Config, store *library.Store, ingestor *library.Ingestor,
	index *search.Index, cache *browse.Cache, session *player.Session,
	registry *devices.Registry, eng *engine.Facade, st *settings.Store,
	logger *logrus.Logger) (*Server, error) {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Server{
		config: cfg,
		logger: logger,
		rpc:    rpc.NewServer(),
		conns:  make(map[net.Conn]struct{}),
	}

	services := map[string]interface{}{
		"Library":  &LibraryService{store: store, index: index},
		"Playback": &PlaybackService{session: session},
		"Playlist": &PlaylistService{store: store},
		"Settings": &SettingsService{store: st},
		"System":   &SystemService{store: store, ingestor: ingestor, index: index, cfg: cfg, registry: registry},
		"Browse":   &BrowseService{cache: cache, cfg: cfg},
		"Sound":    &SoundService{eng: eng},
	}
	for name, svc := range services {
		if err := s.rpc.RegisterName(name, svc); err != nil {
			return nil, fmt.Errorf("failed to register rpc service %s: %w", name, err)
		}
	}
	return s, nil
}

// Start accepts connections until Shutdown closes the listener.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.RPCAddress())
	if err != nil {
		return fmt.Errorf("rpc listen failed: %w", err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.logger.WithField("addr", ln.Addr().String()).Info("RPC surface listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			return err
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		go func() {
			s.rpc.ServeConn(conn)
			s.mu.Lock()
			delete(s.conns, conn)
			s.mu.Unlock()
		}()
	}
}

// Addr returns the bound listen address, for tests that listen on port 0.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops accepting and closes live connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.listener != nil {
		s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	return nil
}

// LibraryService serves catalog reads.
type LibraryService struct {
	store *library.Store
	index *search.Index
}

type Empty struct{}

type IDRequest struct {
	ID string
}

func (l *LibraryService) GetArtists(_ Empty, reply *[]models.Artist) error {
	artists, err := l.store.AllArtists()
	if err != nil {
		return wireError(err)
	}
	*reply = artists
	return nil
}

func (l *LibraryService) GetArtist(req IDRequest, reply *models.Artist) error {
	artist, err := l.store.FindArtist(req.ID)
	if err != nil {
		return wireError(err)
	}
	*reply = artist
	return nil
}

func (l *LibraryService) GetAlbums(_ Empty, reply *[]models.Album) error {
	albums, err := l.store.AllAlbums()
	if err != nil {
		return wireError(err)
	}
	*reply = albums
	return nil
}

func (l *LibraryService) GetAlbum(req IDRequest, reply *models.Album) error {
	album, err := l.store.FindAlbum(req.ID)
	if err != nil {
		return wireError(err)
	}
	*reply = album
	return nil
}

func (l *LibraryService) GetAlbumTracks(req IDRequest, reply *[]models.Track) error {
	if _, err := l.store.FindAlbum(req.ID); err != nil {
		return wireError(err)
	}
	tracks, err := l.store.TracksByAlbum(req.ID)
	if err != nil {
		return wireError(err)
	}
	*reply = tracks
	return nil
}

func (l *LibraryService) GetTracks(_ Empty, reply *[]models.Track) error {
	tracks, err := l.store.AllTracks()
	if err != nil {
		return wireError(err)
	}
	*reply = tracks
	return nil
}

func (l *LibraryService) GetTrack(req IDRequest, reply *models.Track) error {
	track, err := l.store.FindTrack(req.ID)
	if err != nil {
		return wireError(err)
	}
	*reply = track
	return nil
}

type SearchRequest struct {
	Term string
}

func (l *LibraryService) Search(req SearchRequest, reply *models.SearchResults) error {
	if req.Term == "" {
		return wireError(errs.New(errs.InvalidArgument, "empty search term"))
	}
	*reply = l.index.Search(req.Term, l.store)
	return nil
}

func (l *LibraryService) LikeTrack(req IDRequest, reply *models.Favourite) error {
	track, err := l.store.FindTrack(req.ID)
	if err != nil {
		return wireError(err)
	}
	fav, err := l.store.LikeTrack(req.ID)
	if err != nil {
		return wireError(err)
	}
	_ = l.index.IndexLikedTrack(track)
	*reply = fav
	return nil
}

func (l *LibraryService) UnlikeTrack(req IDRequest, _ *Empty) error {
	if err := l.store.UnlikeTrack(req.ID); err != nil {
		return wireError(err)
	}
	_ = l.index.DeleteLikedTrack(req.ID)
	return nil
}

// PlaybackService serves transport control against the active target.
type PlaybackService struct {
	session *player.Session
}

func (p *PlaybackService) Play(_ Empty, _ *Empty) error {
	return wireError(p.session.Play())
}

func (p *PlaybackService) Pause(_ Empty, _ *Empty) error {
	return wireError(p.session.Pause())
}

func (p *PlaybackService) Resume(_ Empty, _ *Empty) error {
	return wireError(p.session.Resume())
}

func (p *PlaybackService) Next(_ Empty, _ *Empty) error {
	return wireError(p.session.Next())
}

func (p *PlaybackService) Previous(_ Empty, _ *Empty) error {
	return wireError(p.session.Previous())
}

type SeekRequest struct {
	DeltaMs int64
}

func (p *PlaybackService) Seek(req SeekRequest, _ *Empty) error {
	return wireError(p.session.Seek(req.DeltaMs))
}

type VolumeRequest struct {
	Volume int
}

func (p *PlaybackService) SetVolume(req VolumeRequest, _ *Empty) error {
	return wireError(p.session.SetVolume(req.Volume))
}

func (p *PlaybackService) GetCurrentPlayback(_ Empty, reply *models.PlaybackStatus) error {
	status, err := p.session.Status()
	if err != nil {
		return wireError(err)
	}
	*reply = status
	return nil
}

type TracklistReply struct {
	Tracks []models.Track
	Index  int
}

func (p *PlaybackService) GetCurrentTracklist(_ Empty, reply *TracklistReply) error {
	tracks, index, err := p.session.Tracklist()
	if err != nil {
		return wireError(err)
	}
	reply.Tracks = tracks
	reply.Index = index
	return nil
}

type PositionRequest struct {
	Position int
}

func (p *PlaybackService) PlayTrackAt(req PositionRequest, _ *Empty) error {
	return wireError(p.session.PlayTrackAt(req.Position))
}

func (p *PlaybackService) RemoveTrackAt(req PositionRequest, _ *Empty) error {
	return wireError(p.session.RemoveTrackAt(req.Position))
}

// PlaylistService serves stored playlist and folder management.
type PlaylistService struct {
	store *library.Store
}

type CreatePlaylistRequest struct {
	Name        string
	Description string
	FolderID    string
	TrackIDs    []string
}

func (p *PlaylistService) Create(req CreatePlaylistRequest, reply *models.Playlist) error {
	if req.Name == "" {
		return wireError(errs.New(errs.InvalidArgument, "playlist name is required"))
	}
	playlist, err := p.store.CreatePlaylist(req.Name, req.Description, req.FolderID, req.TrackIDs)
	if err != nil {
		return wireError(err)
	}
	*reply = playlist
	return nil
}

func (p *PlaylistService) List(_ Empty, reply *[]models.Playlist) error {
	playlists, err := p.store.AllPlaylists()
	if err != nil {
		return wireError(err)
	}
	*reply = playlists
	return nil
}

func (p *PlaylistService) Get(req IDRequest, reply *models.Playlist) error {
	playlist, err := p.store.FindPlaylist(req.ID)
	if err != nil {
		return wireError(err)
	}
	*reply = playlist
	return nil
}

func (p *PlaylistService) Tracks(req IDRequest, reply *[]models.Track) error {
	if _, err := p.store.FindPlaylist(req.ID); err != nil {
		return wireError(err)
	}
	tracks, err := p.store.PlaylistTracks(req.ID)
	if err != nil {
		return wireError(err)
	}
	*reply = tracks
	return nil
}

type InsertTracksRequest struct {
	PlaylistID string
	TrackIDs   []string
	Position   int
}

func (p *PlaylistService) InsertTracks(req InsertTracksRequest, _ *Empty) error {
	return wireError(p.store.InsertPlaylistTracks(req.PlaylistID, req.TrackIDs, req.Position))
}

type RemoveTrackRequest struct {
	PlaylistID string
	Position   int
}

func (p *PlaylistService) RemoveTrackAt(req RemoveTrackRequest, _ *Empty) error {
	return wireError(p.store.RemovePlaylistTrackAt(req.PlaylistID, req.Position))
}

func (p *PlaylistService) Shuffle(req IDRequest, _ *Empty) error {
	return wireError(p.store.ShufflePlaylist(req.ID))
}

type RenameRequest struct {
	ID   string
	Name string
}

func (p *PlaylistService) Rename(req RenameRequest, _ *Empty) error {
	if req.Name == "" {
		return wireError(errs.New(errs.InvalidArgument, "playlist name is required"))
	}
	return wireError(p.store.RenamePlaylist(req.ID, req.Name))
}

func (p *PlaylistService) Delete(req IDRequest, _ *Empty) error {
	return wireError(p.store.DeletePlaylist(req.ID))
}

type CreateFolderRequest struct {
	Name     string
	ParentID string
}

func (p *PlaylistService) CreateFolder(req CreateFolderRequest, reply *models.Folder) error {
	if req.Name == "" {
		return wireError(errs.New(errs.InvalidArgument, "folder name is required"))
	}
	folder, err := p.store.CreateFolder(req.Name, req.ParentID)
	if err != nil {
		return wireError(err)
	}
	*reply = folder
	return nil
}

func (p *PlaylistService) DeleteFolder(req IDRequest, _ *Empty) error {
	return wireError(p.store.DeleteFolder(req.ID))
}

// SettingsService serves the persisted user settings.
type SettingsService struct {
	store *settings.Store
}

func (s *SettingsService) Get(_ Empty, reply *settings.UserSettings) error {
	us, err := s.store.Load()
	if err != nil {
		return wireError(err)
	}
	*reply = us
	return nil
}

func (s *SettingsService) Save(req settings.NewGlobalSettings, reply *settings.UserSettings) error {
	us, err := s.store.Update(req)
	if err != nil {
		return wireError(err)
	}
	*reply = us
	return nil
}

// SystemService serves status and scan control.
type SystemService struct {
	store    *library.Store
	ingestor *library.Ingestor
	index    *search.Index
	cfg      *config.Config
	registry *devices.Registry
}

type SystemStatus struct {
	Artists     int
	Albums      int
	Tracks      int
	TotalLength int64
	Devices     int
}

func (s *SystemService) Status(_ Empty, reply *SystemStatus) error {
	stats, err := s.store.Stats()
	if err != nil {
		return wireError(err)
	}
	reply.Artists = stats.Artists
	reply.Albums = stats.Albums
	reply.Tracks = stats.Tracks
	reply.TotalLength = stats.TotalLength
	reply.Devices = s.registry.Size()
	return nil
}

func (s *SystemService) Scan(_ Empty, _ *Empty) error {
	if s.ingestor == nil {
		return wireError(errs.New(errs.Unavailable, "library scanning is disabled"))
	}
	go func() {
		if _, err := s.ingestor.Scan(s.cfg.Library.Path); err != nil {
			return
		}
		_ = s.index.Rebuild(s.store)
	}()
	return nil
}

func (s *SystemService) ListDevices(_ Empty, reply *[]models.Device) error {
	*reply = s.registry.All()
	return nil
}

// BrowseService serves filesystem tree listings.
type BrowseService struct {
	cache *browse.Cache
	cfg   *config.Config
}

type BrowseRequest struct {
	Path string
}

func (b *BrowseService) Tree(req BrowseRequest, reply *[]models.TreeEntry) error {
	path := req.Path
	if path == "" {
		path = b.cfg.Library.Path
	}
	entries, err := b.cache.Read(path)
	if err != nil {
		return wireError(err)
	}
	*reply = entries
	return nil
}

// SoundService serves DSP toggles and system sounds directly on the engine.
type SoundService struct {
	eng *engine.Facade
}

type ToggleRequest struct {
	Enabled bool
}

func (s *SoundService) SetEqEnabled(req ToggleRequest, _ *Empty) error {
	return wireError(s.eng.SetEqEnabled(req.Enabled))
}

func (s *SoundService) SetCrossfeed(req ToggleRequest, _ *Empty) error {
	return wireError(s.eng.SetCrossfeed(req.Enabled))
}

func (s *SoundService) SetTimestretch(req ToggleRequest, _ *Empty) error {
	return wireError(s.eng.SetTimestretch(req.Enabled))
}

func (s *SoundService) SetDither(req ToggleRequest, _ *Empty) error {
	return wireError(s.eng.SetDither(req.Enabled))
}

func (s *SoundService) Beep(_ Empty, _ *Empty) error {
	return wireError(s.eng.Beep())
}

type SystemSoundRequest struct {
	Name string
}

func (s *SoundService) PlaySystemSound(req SystemSoundRequest, _ *Empty) error {
	return wireError(s.eng.PlaySystemSound(req.Name))
}
