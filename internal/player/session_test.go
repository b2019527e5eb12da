package player

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"rockboxd/internal/cast"
	"rockboxd/internal/devices"
	"rockboxd/internal/engine"
	"rockboxd/internal/events"
	"rockboxd/internal/settings"
	"rockboxd/pkg/errs"
	"rockboxd/pkg/models"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func track(path string) models.Track {
	return models.Track{ID: models.TrackID(path, ""), Path: path, Title: path, LengthMs: 180_000}
}

type fixture struct {
	session  *Session
	registry *devices.Registry
	bus      *events.Bus
	renderer *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	sim := engine.NewSimEngine(dir, settings.NewStore(dir), quietLogger())
	facade := engine.NewFacade(sim, quietLogger())

	bus := events.NewBus(16)
	registry := devices.NewRegistry(bus, quietLogger())

	renderer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(renderer.Close)
	registry.Insert(models.Device{ID: "d1", Name: "Renderer", BaseURL: renderer.URL, IsCastDevice: true})

	session := NewSession(NewEnginePlayer(facade, nil), registry, bus, time.Hour, quietLogger())
	return &fixture{session: session, registry: registry, bus: bus, renderer: renderer}
}

func TestEngineIsInitialTarget(t *testing.T) {
	f := newFixture(t)
	if kind := f.session.TargetKind(); kind != "engine" {
		t.Errorf("initial target = %q, want engine", kind)
	}
}

func TestCommandsPublishTopics(t *testing.T) {
	f := newFixture(t)
	sub := f.bus.Subscribe(events.Player, events.Mixer, events.Playlist)
	defer sub.Close()

	if err := f.session.LoadTracks([]models.Track{track("/m/a.mp3")}, 0); err != nil {
		t.Fatal(err)
	}
	if err := f.session.Play(); err != nil {
		t.Fatal(err)
	}
	if err := f.session.SetVolume(40); err != nil {
		t.Fatal(err)
	}

	want := []events.Topic{events.Playlist, events.Player, events.Mixer}
	for _, topic := range want {
		select {
		case ev := <-sub.C:
			if ev.Topic != topic {
				t.Errorf("event topic = %q, want %q", ev.Topic, topic)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing %q event", topic)
		}
	}
}

func TestFailedCommandPublishesNothing(t *testing.T) {
	f := newFixture(t)
	sub := f.bus.Subscribe(events.Player)
	defer sub.Close()

	// Play with nothing loaded fails; no event may leak out.
	if err := f.session.Play(); err == nil {
		t.Fatal("Play with empty tracklist should fail")
	}
	select {
	case ev := <-sub.C:
		t.Errorf("unexpected event %q after failed command", ev.Topic)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestConnectSwitchesTarget(t *testing.T) {
	f := newFixture(t)

	if err := f.session.Connect("d1"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if kind := f.session.TargetKind(); kind != "cast" {
		t.Errorf("target after connect = %q, want cast", kind)
	}
	cur, ok := f.registry.Current()
	if !ok || cur.ID != "d1" {
		t.Errorf("current device = %v %v", cur.ID, ok)
	}
	d, _ := f.registry.Find("d1")
	if !d.IsConnected {
		t.Error("device should be marked connected")
	}
}

func TestConnectUnknownDevice(t *testing.T) {
	f := newFixture(t)
	if err := f.session.Connect("ghost"); !errs.Is(err, errs.NotFound) {
		t.Errorf("Connect(ghost) = %v, want NotFound", err)
	}
	if kind := f.session.TargetKind(); kind != "engine" {
		t.Errorf("failed connect must leave the engine active, got %q", kind)
	}
}

func TestEngineKeepsPlayingThroughConnect(t *testing.T) {
	f := newFixture(t)
	if err := f.session.LoadTracks([]models.Track{track("/m/a.mp3")}, 0); err != nil {
		t.Fatal(err)
	}
	if err := f.session.Play(); err != nil {
		t.Fatal(err)
	}

	if err := f.session.Connect("d1"); err != nil {
		t.Fatal(err)
	}

	// The engine target still reports playing even though commands now route
	// to the cast device.
	status, err := f.session.engine.Status()
	if err != nil {
		t.Fatal(err)
	}
	if status.State != models.StatePlaying {
		t.Errorf("engine state after connect = %v, want playing", status.State)
	}
}

func TestDisconnectRestoresEngine(t *testing.T) {
	f := newFixture(t)
	if err := f.session.Connect("d1"); err != nil {
		t.Fatal(err)
	}
	if err := f.session.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if kind := f.session.TargetKind(); kind != "engine" {
		t.Errorf("target after disconnect = %q, want engine", kind)
	}
	if _, ok := f.registry.Current(); ok {
		t.Error("no device should be current after disconnect")
	}

	// Disconnecting again is a no-op.
	if err := f.session.Disconnect(); err != nil {
		t.Errorf("second Disconnect = %v, want nil", err)
	}
}

// TestConcurrentCastCommands hammers a connected cast target from several
// goroutines; the race detector verifies the tracklist and mirrored state
// bookkeeping stay serialized.
func TestConcurrentCastCommands(t *testing.T) {
	f := newFixture(t)
	if err := f.session.Connect("d1"); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				switch n % 4 {
				case 0:
					f.session.Append(track("/m/a.mp3"))
				case 1:
					f.session.SetVolume(30 + j)
				case 2:
					f.session.Status()
				case 3:
					f.session.ClearTracklist()
				}
			}
		}(i)
	}
	wg.Wait()

	// The target survives the stampede and still answers.
	if _, err := f.session.Status(); err != nil {
		t.Errorf("Status after concurrent commands = %v", err)
	}
}

func TestMutationsRejectedDuringSwitch(t *testing.T) {
	f := newFixture(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	f.session.connect = func(device models.Device, heartbeat time.Duration, logger *logrus.Logger) (*cast.Client, error) {
		close(entered)
		<-release
		return cast.Connect(device, heartbeat, logger)
	}

	done := make(chan error, 1)
	go func() { done <- f.session.Connect("d1") }()

	<-entered
	err := f.session.Play()
	if !errs.Is(err, errs.Unavailable) {
		t.Errorf("Play during switch = %v, want Unavailable", err)
	}
	close(release)

	if err := <-done; err != nil {
		t.Fatalf("Connect: %v", err)
	}
	// Once the switch lands, commands flow again (now to the cast target).
	if err := f.session.SetVolume(50); err != nil {
		t.Errorf("SetVolume after switch = %v", err)
	}
}
