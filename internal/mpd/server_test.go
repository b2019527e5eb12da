package mpd

import (
	"bufio"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gompd "github.com/fhs/gompd/v2/mpd"
	"github.com/sirupsen/logrus"

	"rockboxd/internal/browse"
	"rockboxd/internal/config"
	"rockboxd/internal/devices"
	"rockboxd/internal/engine"
	"rockboxd/internal/events"
	"rockboxd/internal/library"
	"rockboxd/internal/player"
	"rockboxd/internal/search"
	"rockboxd/internal/settings"
	"rockboxd/pkg/models"
)

type fixture struct {
	server   *Server
	addr     string
	store    *library.Store
	session  *player.Session
	settings *settings.Store
	bus      *events.Bus
	killed   chan struct{}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.MPDPort = 0
	cfg.Library.Path = dir

	store, err := library.Open(filepath.Join(dir, "library.db"), logger)
	if err != nil {
		t.Fatalf("library.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	index, err := search.Open(filepath.Join(dir, "index"), logger)
	if err != nil {
		t.Fatalf("search.Open: %v", err)
	}
	t.Cleanup(index.Close)

	st := settings.NewStore(dir)
	bus := events.NewBus(16)
	cache := browse.NewCache(nil, index, false, logger)
	registry := devices.NewRegistry(bus, logger)

	sim := engine.NewSimEngine(dir, st, logger)
	facade := engine.NewFacade(sim, logger)
	session := player.NewSession(player.NewEnginePlayer(facade, store), registry, bus, time.Hour, logger)

	killed := make(chan struct{}, 1)
	srv := NewServer(cfg, store, nil, index, cache, session, registry, st, bus,
		func() { killed <- struct{}{} }, logger)

	go srv.Start()
	t.Cleanup(func() { srv.Shutdown(nil) })

	deadline := time.Now().Add(2 * time.Second)
	for srv.Addr() == nil {
		if time.Now().After(deadline) {
			t.Fatal("mpd server never started listening")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return &fixture{
		server:   srv,
		addr:     srv.Addr().String(),
		store:    store,
		session:  session,
		settings: st,
		bus:      bus,
		killed:   killed,
	}
}

func (f *fixture) seedTrack(t *testing.T, title, rel string) models.Track {
	t.Helper()
	a, err := f.store.UpsertArtist("Kraftwerk")
	if err != nil {
		t.Fatal(err)
	}
	al, err := f.store.UpsertAlbum(models.Album{Title: "Computer World", ArtistName: "Kraftwerk", ArtistID: a.ID})
	if err != nil {
		t.Fatal(err)
	}
	track, err := f.store.UpsertTrack(models.Track{
		Path: filepath.Join(f.server.config.Library.Path, rel), Title: title,
		ArtistName: "Kraftwerk", AlbumTitle: "Computer World",
		ArtistID: a.ID, AlbumID: al.ID, LengthMs: 200_000,
	})
	if err != nil {
		t.Fatal(err)
	}
	return track
}

func dial(t *testing.T, f *fixture) *gompd.Client {
	t.Helper()
	client, err := gompd.Dial("tcp", f.addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestPingAndStatus(t *testing.T) {
	f := newFixture(t)
	client := dial(t, f)

	if err := client.Ping(); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status["state"] != "stop" {
		t.Errorf("state = %q, want stop", status["state"])
	}
	if status["playlistlength"] != "0" {
		t.Errorf("playlistlength = %q, want 0", status["playlistlength"])
	}
}

func TestSetVolume(t *testing.T) {
	f := newFixture(t)
	client := dial(t, f)

	if err := client.SetVolume(35); err != nil {
		t.Fatalf("SetVolume: %v", err)
	}
	status, err := client.Status()
	if err != nil {
		t.Fatal(err)
	}
	if status["volume"] != "35" {
		t.Errorf("volume = %q, want 35", status["volume"])
	}

	// Out of range volume is rejected with an ACK.
	if err := client.SetVolume(130); err == nil {
		t.Error("SetVolume(130) should fail")
	}
}

func TestAddAndPlay(t *testing.T) {
	f := newFixture(t)
	f.seedTrack(t, "Computer Love", "computer_love.mp3")
	client := dial(t, f)

	if err := client.Add("computer_love.mp3"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	songs, err := client.PlaylistInfo(-1, -1)
	if err != nil {
		t.Fatalf("PlaylistInfo: %v", err)
	}
	if len(songs) != 1 {
		t.Fatalf("queue length = %d, want 1", len(songs))
	}
	if songs[0]["Title"] != "Computer Love" {
		t.Errorf("title = %q", songs[0]["Title"])
	}
	if songs[0]["Artist"] != "Kraftwerk" {
		t.Errorf("artist = %q", songs[0]["Artist"])
	}

	if err := client.Play(0); err != nil {
		t.Fatalf("Play: %v", err)
	}
	status, err := client.Status()
	if err != nil {
		t.Fatal(err)
	}
	if status["state"] != "play" {
		t.Errorf("state = %q, want play", status["state"])
	}
	if status["song"] != "0" {
		t.Errorf("song = %q, want 0", status["song"])
	}

	song, err := client.CurrentSong()
	if err != nil {
		t.Fatal(err)
	}
	if song["Title"] != "Computer Love" {
		t.Errorf("current song = %v", song)
	}
}

func TestAddUnknownURI(t *testing.T) {
	f := newFixture(t)
	client := dial(t, f)

	err := client.Add("does_not_exist.mp3")
	if err == nil {
		t.Fatal("adding an unknown uri should fail")
	}
	if !strings.Contains(err.Error(), "no such song") {
		t.Errorf("error = %v", err)
	}
}

func TestQueueVersionBumpsOnChange(t *testing.T) {
	f := newFixture(t)
	f.seedTrack(t, "Numbers", "numbers.mp3")
	client := dial(t, f)

	before, err := client.Status()
	if err != nil {
		t.Fatal(err)
	}
	if err := client.Add("numbers.mp3"); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		after, err := client.Status()
		if err != nil {
			t.Fatal(err)
		}
		if after["playlist"] != before["playlist"] {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("playlist version never changed after add")
}

func TestPasswordProtection(t *testing.T) {
	f := newFixture(t)
	if err := f.settings.SetPassword("secret"); err != nil {
		t.Fatal(err)
	}

	client := dial(t, f)
	// Ping stays open without a password.
	if err := client.Ping(); err != nil {
		t.Errorf("Ping should not require auth: %v", err)
	}
	if _, err := client.Status(); err == nil {
		t.Error("Status without password should be rejected")
	}

	authed, err := gompd.DialAuthenticated("tcp", f.addr, "secret")
	if err != nil {
		t.Fatalf("DialAuthenticated: %v", err)
	}
	defer authed.Close()
	if _, err := authed.Status(); err != nil {
		t.Errorf("Status after password = %v", err)
	}

	if _, err := gompd.DialAuthenticated("tcp", f.addr, "wrong"); err == nil {
		t.Error("wrong password should be rejected")
	}
}

// rawConn drives the protocol directly, for idle tests gompd cannot express.
type rawConn struct {
	conn   net.Conn
	reader *bufio.Reader
}

func dialRaw(t *testing.T, f *fixture) *rawConn {
	t.Helper()
	conn, err := net.Dial("tcp", f.addr)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	rc := &rawConn{conn: conn, reader: bufio.NewReader(conn)}
	greeting := rc.readLine(t)
	if !strings.HasPrefix(greeting, "OK MPD") {
		t.Fatalf("greeting = %q", greeting)
	}
	return rc
}

func (rc *rawConn) send(t *testing.T, line string) {
	t.Helper()
	rc.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if _, err := rc.conn.Write([]byte(line + "\n")); err != nil {
		t.Fatal(err)
	}
}

func (rc *rawConn) readLine(t *testing.T) string {
	t.Helper()
	rc.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := rc.reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return strings.TrimRight(line, "\n")
}

func TestIdleWakesOnEvent(t *testing.T) {
	f := newFixture(t)
	rc := dialRaw(t, f)

	rc.send(t, "idle mixer")
	// Give the idle a moment to register before publishing.
	time.Sleep(50 * time.Millisecond)
	f.bus.Changed(events.Mixer)

	if line := rc.readLine(t); line != "changed: mixer" {
		t.Errorf("idle response = %q", line)
	}
	if line := rc.readLine(t); line != "OK" {
		t.Errorf("idle terminator = %q", line)
	}
}

func TestNoidleReturnsImmediately(t *testing.T) {
	f := newFixture(t)
	rc := dialRaw(t, f)

	// noidle outside an idle is a bare acknowledgement.
	rc.send(t, "noidle")
	if line := rc.readLine(t); line != "OK" {
		t.Errorf("noidle while not idling = %q", line)
	}

	rc.send(t, "idle")
	time.Sleep(50 * time.Millisecond)
	rc.send(t, "noidle")
	if line := rc.readLine(t); line != "OK" {
		t.Errorf("noidle response = %q", line)
	}

	// The connection is still usable.
	rc.send(t, "ping")
	if line := rc.readLine(t); line != "OK" {
		t.Errorf("ping after noidle = %q", line)
	}
}

func TestIdleFiltersSubsystems(t *testing.T) {
	f := newFixture(t)
	rc := dialRaw(t, f)

	rc.send(t, "idle player")
	time.Sleep(50 * time.Millisecond)
	// A mixer change must not wake an idle filtered to player.
	f.bus.Changed(events.Mixer)
	time.Sleep(50 * time.Millisecond)
	f.bus.Changed(events.Player)

	if line := rc.readLine(t); line != "changed: player" {
		t.Errorf("idle response = %q", line)
	}
	if line := rc.readLine(t); line != "OK" {
		t.Errorf("idle terminator = %q", line)
	}
}

func TestCommandListAtomicity(t *testing.T) {
	f := newFixture(t)
	f.seedTrack(t, "Pocket Calculator", "pocket.mp3")
	rc := dialRaw(t, f)

	rc.send(t, "command_list_ok_begin")
	rc.send(t, "add \"pocket.mp3\"")
	rc.send(t, "add \"missing.mp3\"")
	rc.send(t, "ping")
	rc.send(t, "command_list_end")

	if line := rc.readLine(t); line != "list_OK" {
		t.Fatalf("first response = %q, want list_OK", line)
	}
	ack := rc.readLine(t)
	if !strings.HasPrefix(ack, "ACK [50@1]") {
		t.Errorf("ack = %q, want ACK [50@1] ...", ack)
	}
	// The failing command aborts the rest of the list; the connection
	// accepts new commands afterwards.
	rc.send(t, "ping")
	if line := rc.readLine(t); line != "OK" {
		t.Errorf("ping after aborted list = %q", line)
	}
}

func TestUnknownCommand(t *testing.T) {
	f := newFixture(t)
	rc := dialRaw(t, f)

	rc.send(t, "frobnicate")
	line := rc.readLine(t)
	if !strings.HasPrefix(line, "ACK") {
		t.Errorf("unknown command response = %q", line)
	}
}

func TestKillTriggersShutdownHook(t *testing.T) {
	f := newFixture(t)
	rc := dialRaw(t, f)

	rc.send(t, "kill")
	select {
	case <-f.killed:
	case <-time.After(2 * time.Second):
		t.Error("kill never reached the shutdown hook")
	}
}
