package player

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"rockboxd/internal/cast"
	"rockboxd/internal/devices"
	"rockboxd/internal/events"
	"rockboxd/pkg/errs"
	"rockboxd/pkg/models"
)

// connectFn is swapped out by tests to avoid real network sessions.
type connectFn func(device models.Device, heartbeat time.Duration, logger *logrus.Logger) (*cast.Client, error)

// Session owns the active playback target and routes every frontend command
// through it. Target switches (Connect, Disconnect) are serialized; while one
// is in progress, mutating commands fail with an unavailable error instead of
// racing the handover. The engine keeps playing through a cast connect so
// local listening is not interrupted until the caller moves playback over.
type Session struct {
	engine    *EnginePlayer
	registry  *devices.Registry
	bus       *events.Bus
	logger    *logrus.Logger
	heartbeat time.Duration
	connect   connectFn

	switchMu sync.Mutex
	inFlux   atomic.Bool

	mu      sync.RWMutex
	current Player
}

// NewSession creates a session with the engine as the initial target.
func NewSession(eng *EnginePlayer, registry *devices.Registry, bus *events.Bus, heartbeat time.Duration, logger *logrus.Logger) *Session {
	if logger == nil {
		logger = logrus.New()
	}
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &Session{
		engine:    eng,
		registry:  registry,
		bus:       bus,
		logger:    logger,
		heartbeat: heartbeat,
		connect:   cast.Connect,
		current:   eng,
	}
}

// Active returns the current playback target.
func (s *Session) Active() Player {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// TargetKind reports which target is active ("engine" or "cast").
func (s *Session) TargetKind() string { return s.Active().Kind() }

// Connect switches the target to the named device. The previous cast
// session, if any, is torn down first.
func (s *Session) Connect(deviceID string) error {
	s.switchMu.Lock()
	defer s.switchMu.Unlock()
	s.inFlux.Store(true)
	defer s.inFlux.Store(false)

	device, err := s.registry.Find(deviceID)
	if err != nil {
		return err
	}

	s.dropCast()

	client, err := s.connect(device, s.heartbeat, s.logger)
	if err != nil {
		return err
	}
	if err := s.registry.SetConnected(deviceID, true); err != nil {
		client.Close()
		return err
	}
	if err := s.registry.SetCurrent(deviceID); err != nil {
		client.Close()
		return err
	}

	s.mu.Lock()
	s.current = NewCastPlayer(client)
	s.mu.Unlock()

	s.logger.WithField("device", device.Name).Info("Connected to cast device")
	s.bus.Changed(events.Output)
	s.bus.Publish(events.Device, device)
	return nil
}

// Disconnect tears down the cast session and restores the engine target.
// Disconnecting with no cast session is a no-op.
func (s *Session) Disconnect() error {
	s.switchMu.Lock()
	defer s.switchMu.Unlock()
	s.inFlux.Store(true)
	defer s.inFlux.Store(false)

	if !s.dropCast() {
		return nil
	}
	s.bus.Changed(events.Output)
	return nil
}

// dropCast closes any cast target and restores the engine. Reports whether
// a cast target was active. Caller holds switchMu.
func (s *Session) dropCast() bool {
	s.mu.Lock()
	cp, ok := s.current.(*CastPlayer)
	s.current = s.engine
	s.mu.Unlock()
	if !ok {
		return false
	}

	cp.Client().Close()
	if device, found := s.registry.Current(); found {
		if err := s.registry.SetConnected(device.ID, false); err != nil {
			s.logger.WithError(err).Warn("Could not mark device disconnected")
		}
	}
	if err := s.registry.SetCurrent(""); err != nil {
		s.logger.WithError(err).Warn("Could not clear current device")
	}
	return true
}

// guard rejects mutating commands while a target switch is in progress.
func (s *Session) guard() error {
	if s.inFlux.Load() {
		return errs.New(errs.Unavailable, "player target is changing")
	}
	return nil
}

func (s *Session) command(topic events.Topic, fn func(Player) error) error {
	if err := s.guard(); err != nil {
		return err
	}
	if err := fn(s.Active()); err != nil {
		return err
	}
	s.bus.Changed(topic)
	return nil
}

func (s *Session) Play() error   { return s.command(events.Player, Player.Play) }
func (s *Session) Stop() error   { return s.command(events.Player, Player.Stop) }
func (s *Session) Pause() error  { return s.command(events.Player, Player.Pause) }
func (s *Session) Resume() error { return s.command(events.Player, Player.Resume) }
func (s *Session) Next() error   { return s.command(events.Player, Player.Next) }
func (s *Session) Previous() error {
	return s.command(events.Player, Player.Previous)
}

func (s *Session) Seek(deltaMs int64) error {
	return s.command(events.Player, func(p Player) error { return p.Seek(deltaMs) })
}

func (s *Session) SetVolume(volume int) error {
	return s.command(events.Mixer, func(p Player) error { return p.SetVolume(volume) })
}

func (s *Session) LoadTracks(tracks []models.Track, startIndex int) error {
	return s.command(events.Playlist, func(p Player) error { return p.LoadTracks(tracks, startIndex) })
}

func (s *Session) Append(track models.Track) error {
	return s.command(events.Playlist, func(p Player) error { return p.Append(track) })
}

func (s *Session) PlayNext(track models.Track) error {
	return s.command(events.Playlist, func(p Player) error { return p.PlayNext(track) })
}

func (s *Session) PlayTrackAt(position int) error {
	return s.command(events.Player, func(p Player) error { return p.PlayTrackAt(position) })
}

func (s *Session) RemoveTrackAt(position int) error {
	return s.command(events.Playlist, func(p Player) error { return p.RemoveTrackAt(position) })
}

func (s *Session) ClearTracklist() error {
	return s.command(events.Playlist, Player.ClearTracklist)
}

func (s *Session) Status() (models.PlaybackStatus, error) {
	return s.Active().Status()
}

func (s *Session) Tracklist() ([]models.Track, int, error) {
	return s.Active().Tracklist()
}

func (s *Session) CurrentTrack() (*models.Track, error) {
	return s.Active().CurrentTrack()
}
