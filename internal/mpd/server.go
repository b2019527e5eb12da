// Package mpd implements the MPD protocol surface: a line-oriented TCP
// server compatible with standard MPD clients. The queue it exposes is the
// active player's tracklist; stored playlists come from the library store.
package mpd

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"rockboxd/internal/browse"
	"rockboxd/internal/config"
	"rockboxd/internal/devices"
	"rockboxd/internal/events"
	"rockboxd/internal/library"
	"rockboxd/internal/player"
	"rockboxd/internal/search"
	"rockboxd/internal/settings"
)

// ProtocolVersion is the MPD protocol version announced in the greeting.
const ProtocolVersion = "0.23.0"

// options holds the MPD playback flags that have no engine equivalent.
// They are tracked daemon-wide, like mpd does.
type options struct {
	mu      sync.Mutex
	consume bool
	single  bool
}

// Server accepts MPD protocol connections.
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

	opts options
	// version increments on every queue change, like mpd's playlist version.
	version atomic.Int64
	verSub  *events.Subscriber
	// onKill is invoked by the kill command to trigger orderly shutdown.
	onKill func()

	mu       sync.Mutex
	listener net.Listener
	conns    map[*conn]struct{}
	closed   bool
	updateID int
}

// NewServer wires the surface. onKill may be nil; kill then only closes the
// issuing connection.
func NewServer(cfg *config.Config, store *library.Store, ingestor *library.Ingestor,
	index *search.Index, cache *browse.Cache, session *player.Session,
	registry *devices.Registry, st *settings.Store, bus *events.Bus,
	onKill func(), logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	return &Server{
		config:   cfg,
		store:    store,
		ingestor: ingestor,
		index:    index,
		cache:    cache,
		session:  session,
		registry: registry,
		settings: st,
		bus:      bus,
		logger:   logger,
		onKill:   onKill,
		conns:    make(map[*conn]struct{}),
	}
}

// Start accepts connections until Shutdown closes the listener.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.MPDAddress())
	if err != nil {
		return fmt.Errorf("mpd listen failed: %w", err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.logger.WithField("addr", ln.Addr().String()).Info("MPD surface listening")

	s.verSub = s.bus.Subscribe(events.Playlist)
	go func() {
		for range s.verSub.C {
			s.version.Add(1)
		}
	}()

	for {
		nc, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			return err
		}
		c := newConn(s, nc)
		s.mu.Lock()
		s.conns[c] = struct{}{}
		s.mu.Unlock()
		go func() {
			c.serve()
			s.mu.Lock()
			delete(s.conns, c)
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
	if s.verSub != nil {
		s.verSub.Close()
	}
	for c := range s.conns {
		c.close()
	}
	return nil
}

// queueVersion reports the current playlist version counter.
func (s *Server) queueVersion() int64 { return s.version.Load() }

// nextUpdateID returns a monotonically increasing update job id.
func (s *Server) nextUpdateID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateID++
	return s.updateID
}
