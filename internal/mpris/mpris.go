// Package mpris exports the player over D-Bus as org.mpris.MediaPlayer2 so
// desktop media controls (playerctl, GNOME shell) can drive it. The surface
// is optional: when no session bus is reachable the daemon keeps running
// without it.
package mpris

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
	"github.com/sirupsen/logrus"

	"rockboxd/internal/events"
	"rockboxd/internal/player"
	"rockboxd/pkg/models"
)

const (
	busName    = "org.mpris.MediaPlayer2.rockboxd"
	objectPath = dbus.ObjectPath("/org/mpris/MediaPlayer2")

	rootInterface   = "org.mpris.MediaPlayer2"
	playerInterface = "org.mpris.MediaPlayer2.Player"
)

type Server struct {
	session *player.Session
	bus     *events.Bus
	logger  *logrus.Logger

	mu    sync.Mutex
	conn  *dbus.Conn
	props *prop.Properties
	sub   *events.Subscriber
	done  chan struct{}
}

func New(session *player.Session, bus *events.Bus, logger *logrus.Logger) *Server {
	return &Server{session: session, bus: bus, logger: logger}
}

// Start claims the MPRIS bus name and exports the player object. A missing
// session bus is logged and ignored.
func (s *Server) Start() {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		s.logger.WithError(err).Warn("No D-Bus session bus, MPRIS disabled")
		return
	}

	reply, err := conn.RequestName(busName, dbus.NameFlagDoNotQueue)
	if err != nil || reply != dbus.RequestNameReplyPrimaryOwner {
		if err == nil {
			err = fmt.Errorf("bus name %s already taken", busName)
		}
		s.logger.WithError(err).Warn("Could not claim MPRIS name, MPRIS disabled")
		conn.Close()
		return
	}

	root := &rootObject{}
	playerObj := &playerObject{session: s.session, logger: s.logger}

	if err := conn.Export(root, objectPath, rootInterface); err != nil {
		s.logger.WithError(err).Warn("MPRIS root export failed, MPRIS disabled")
		conn.Close()
		return
	}
	if err := conn.Export(playerObj, objectPath, playerInterface); err != nil {
		s.logger.WithError(err).Warn("MPRIS player export failed, MPRIS disabled")
		conn.Close()
		return
	}

	props, err := prop.Export(conn, objectPath, s.propertySpec())
	if err != nil {
		s.logger.WithError(err).Warn("MPRIS property export failed, MPRIS disabled")
		conn.Close()
		return
	}

	node := &introspect.Node{
		Name: string(objectPath),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{Name: rootInterface, Methods: introspect.Methods(root)},
			{Name: playerInterface, Methods: introspect.Methods(playerObj)},
		},
	}
	if err := conn.Export(introspect.NewIntrospectable(node), objectPath,
		"org.freedesktop.DBus.Introspectable"); err != nil {
		s.logger.WithError(err).Debug("MPRIS introspection export failed")
	}

	s.mu.Lock()
	s.conn = conn
	s.props = props
	s.sub = s.bus.Subscribe(events.Player, events.Mixer, events.Playlist)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.watch()
	s.logger.WithField("name", busName).Info("MPRIS interface registered")
}

func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return
	}
	close(s.done)
	s.sub.Close()
	s.conn.Close()
	s.conn = nil
}

// watch mirrors bus changes into the exported D-Bus properties so clients
// receive PropertiesChanged signals.
func (s *Server) watch() {
	for {
		select {
		case <-s.done:
			return
		case _, ok := <-s.sub.C:
			if !ok {
				return
			}
			s.refresh()
		}
	}
}

func (s *Server) refresh() {
	status, err := s.session.Status()
	if err != nil {
		return
	}
	s.mu.Lock()
	props := s.props
	s.mu.Unlock()
	if props == nil {
		return
	}
	props.SetMust(playerInterface, "PlaybackStatus", mprisState(status.State))
	props.SetMust(playerInterface, "Volume", float64(status.Volume)/100)
	props.SetMust(playerInterface, "Metadata", metadataMap(status))
}

func mprisState(state models.PlaybackState) string {
	switch state {
	case models.StatePlaying:
		return "Playing"
	case models.StatePaused:
		return "Paused"
	default:
		return "Stopped"
	}
}

func metadataMap(status models.PlaybackStatus) map[string]dbus.Variant {
	meta := map[string]dbus.Variant{
		"mpris:trackid": dbus.MakeVariant(dbus.ObjectPath(
			fmt.Sprintf("/rockboxd/track/%d", status.Index))),
	}
	if status.Track == nil {
		return meta
	}
	t := status.Track
	meta["xesam:title"] = dbus.MakeVariant(t.Title)
	meta["xesam:album"] = dbus.MakeVariant(t.AlbumTitle)
	if t.ArtistName != "" {
		meta["xesam:artist"] = dbus.MakeVariant([]string{t.ArtistName})
	}
	if t.Genre != "" {
		meta["xesam:genre"] = dbus.MakeVariant([]string{t.Genre})
	}
	if t.TrackNumber > 0 {
		meta["xesam:trackNumber"] = dbus.MakeVariant(int32(t.TrackNumber))
	}
	if t.LengthMs > 0 {
		meta["mpris:length"] = dbus.MakeVariant(t.LengthMs * 1000)
	}
	meta["xesam:url"] = dbus.MakeVariant("file://" + t.Path)
	return meta
}

func (s *Server) propertySpec() map[string]map[string]*prop.Prop {
	readOnly := func(value interface{}) *prop.Prop {
		return &prop.Prop{Value: value, Writable: false, Emit: prop.EmitTrue}
	}
	return map[string]map[string]*prop.Prop{
		rootInterface: {
			"CanQuit":             readOnly(false),
			"CanRaise":            readOnly(false),
			"HasTrackList":        readOnly(false),
			"Identity":            readOnly("rockboxd"),
			"SupportedUriSchemes": readOnly([]string{"file"}),
			"SupportedMimeTypes": readOnly([]string{
				"audio/mpeg", "audio/flac", "audio/ogg", "audio/wav",
			}),
		},
		playerInterface: {
			"PlaybackStatus": readOnly("Stopped"),
			"Rate":           readOnly(1.0),
			"Metadata":       readOnly(map[string]dbus.Variant{}),
			"Volume":         readOnly(1.0),
			"Position":       readOnly(int64(0)),
			"MinimumRate":    readOnly(1.0),
			"MaximumRate":    readOnly(1.0),
			"CanGoNext":      readOnly(true),
			"CanGoPrevious":  readOnly(true),
			"CanPlay":        readOnly(true),
			"CanPause":       readOnly(true),
			"CanSeek":        readOnly(true),
			"CanControl":     readOnly(true),
		},
	}
}

// rootObject implements org.mpris.MediaPlayer2. Quit and Raise are declared
// unsupported through the properties, so both are no-ops.
type rootObject struct{}

func (o *rootObject) Raise() *dbus.Error { return nil }
func (o *rootObject) Quit() *dbus.Error  { return nil }

type playerObject struct {
	session *player.Session
	logger  *logrus.Logger
}

func (o *playerObject) call(name string, fn func() error) *dbus.Error {
	if err := fn(); err != nil {
		o.logger.WithError(err).WithField("method", name).Debug("MPRIS call failed")
		return dbus.MakeFailedError(err)
	}
	return nil
}

func (o *playerObject) Play() *dbus.Error {
	return o.call("Play", func() error {
		status, err := o.session.Status()
		if err != nil {
			return err
		}
		if status.State == models.StatePaused {
			return o.session.Resume()
		}
		return o.session.Play()
	})
}

func (o *playerObject) Pause() *dbus.Error {
	return o.call("Pause", o.session.Pause)
}

func (o *playerObject) PlayPause() *dbus.Error {
	return o.call("PlayPause", func() error {
		status, err := o.session.Status()
		if err != nil {
			return err
		}
		switch status.State {
		case models.StatePlaying:
			return o.session.Pause()
		case models.StatePaused:
			return o.session.Resume()
		default:
			return o.session.Play()
		}
	})
}

func (o *playerObject) Stop() *dbus.Error {
	return o.call("Stop", o.session.Stop)
}

func (o *playerObject) Next() *dbus.Error {
	return o.call("Next", o.session.Next)
}

func (o *playerObject) Previous() *dbus.Error {
	return o.call("Previous", o.session.Previous)
}

// Seek receives an offset in microseconds, as MPRIS defines it.
func (o *playerObject) Seek(offset int64) *dbus.Error {
	return o.call("Seek", func() error {
		return o.session.Seek(offset / 1000)
	})
}

func (o *playerObject) SetPosition(trackID dbus.ObjectPath, position int64) *dbus.Error {
	return o.call("SetPosition", func() error {
		status, err := o.session.Status()
		if err != nil {
			return err
		}
		target := position / 1000
		return o.session.Seek(target - status.ElapsedMs)
	})
}

func (o *playerObject) OpenUri(uri string) *dbus.Error {
	return dbus.MakeFailedError(fmt.Errorf("OpenUri is not supported"))
}
