package rpcsrv

import (
	"net/rpc"
	"path/filepath"
	"strings"
	"testing"
	"time"

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
	client  *rpc.Client
	store   *library.Store
	session *player.Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.RPCPort = 0
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

	srv, err := NewServer(cfg, store, nil, index, cache, session, registry, facade, st, logger)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	go srv.Start()
	t.Cleanup(func() { srv.Shutdown(nil) })

	deadline := time.Now().Add(2 * time.Second)
	for srv.Addr() == nil {
		if time.Now().After(deadline) {
			t.Fatal("rpc server never started listening")
		}
		time.Sleep(5 * time.Millisecond)
	}

	client, err := rpc.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("rpc.Dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	return &fixture{client: client, store: store, session: session}
}

func (f *fixture) seedTrack(t *testing.T, title string) models.Track {
	t.Helper()
	a, err := f.store.UpsertArtist("Boards of Canada")
	if err != nil {
		t.Fatal(err)
	}
	al, err := f.store.UpsertAlbum(models.Album{Title: "Geogaddi", ArtistName: a.Name, ArtistID: a.ID})
	if err != nil {
		t.Fatal(err)
	}
	track, err := f.store.UpsertTrack(models.Track{
		Path: "/music/" + title + ".mp3", Title: title,
		ArtistName: a.Name, AlbumTitle: al.Title,
		ArtistID: a.ID, AlbumID: al.ID, LengthMs: 240_000,
	})
	if err != nil {
		t.Fatal(err)
	}
	return track
}

func TestLibraryReads(t *testing.T) {
	f := newFixture(t)
	seeded := f.seedTrack(t, "Music Is Math")

	var artists []models.Artist
	if err := f.client.Call("Library.GetArtists", Empty{}, &artists); err != nil {
		t.Fatalf("GetArtists: %v", err)
	}
	if len(artists) != 1 || artists[0].Name != "Boards of Canada" {
		t.Errorf("artists = %v", artists)
	}

	var track models.Track
	if err := f.client.Call("Library.GetTrack", IDRequest{ID: seeded.ID}, &track); err != nil {
		t.Fatalf("GetTrack: %v", err)
	}
	if track.Title != "Music Is Math" {
		t.Errorf("title = %q", track.Title)
	}
}

func TestWireErrorCodes(t *testing.T) {
	f := newFixture(t)

	var artist models.Artist
	err := f.client.Call("Library.GetArtist", IDRequest{ID: "missing"}, &artist)
	if err == nil {
		t.Fatal("lookup of unknown artist should fail")
	}
	if !strings.HasPrefix(err.Error(), "not_found:") {
		t.Errorf("error = %q, want not_found prefix", err.Error())
	}

	var results models.SearchResults
	err = f.client.Call("Library.Search", SearchRequest{}, &results)
	if err == nil || !strings.HasPrefix(err.Error(), "invalid_argument:") {
		t.Errorf("empty search error = %v, want invalid_argument prefix", err)
	}
}

func TestPlaybackFlow(t *testing.T) {
	f := newFixture(t)
	track := f.seedTrack(t, "Roygbiv")
	if err := f.session.LoadTracks([]models.Track{track}, 0); err != nil {
		t.Fatal(err)
	}

	var none Empty
	if err := f.client.Call("Playback.Play", Empty{}, &none); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if err := f.client.Call("Playback.SetVolume", VolumeRequest{Volume: 42}, &none); err != nil {
		t.Fatalf("SetVolume: %v", err)
	}

	var status models.PlaybackStatus
	if err := f.client.Call("Playback.GetCurrentPlayback", Empty{}, &status); err != nil {
		t.Fatalf("GetCurrentPlayback: %v", err)
	}
	if status.State != models.StatePlaying {
		t.Errorf("state = %v, want playing", status.State)
	}
	if status.Volume != 42 {
		t.Errorf("volume = %d, want 42", status.Volume)
	}
	if status.Track == nil || status.Track.Title != "Roygbiv" {
		t.Errorf("track = %v", status.Track)
	}

	var tl TracklistReply
	if err := f.client.Call("Playback.GetCurrentTracklist", Empty{}, &tl); err != nil {
		t.Fatalf("GetCurrentTracklist: %v", err)
	}
	if len(tl.Tracks) != 1 || tl.Index != 0 {
		t.Errorf("tracklist = %d tracks, index %d", len(tl.Tracks), tl.Index)
	}
}

func TestPlaylistLifecycle(t *testing.T) {
	f := newFixture(t)
	track := f.seedTrack(t, "Dayvan Cowboy")

	var playlist models.Playlist
	err := f.client.Call("Playlist.Create", CreatePlaylistRequest{
		Name: "downtempo", TrackIDs: []string{track.ID},
	}, &playlist)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	var tracks []models.Track
	if err := f.client.Call("Playlist.Tracks", IDRequest{ID: playlist.ID}, &tracks); err != nil {
		t.Fatalf("Tracks: %v", err)
	}
	if len(tracks) != 1 || tracks[0].Title != "Dayvan Cowboy" {
		t.Errorf("tracks = %v", tracks)
	}

	var none Empty
	if err := f.client.Call("Playlist.Delete", IDRequest{ID: playlist.ID}, &none); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	var gone models.Playlist
	if err := f.client.Call("Playlist.Get", IDRequest{ID: playlist.ID}, &gone); err == nil {
		t.Error("deleted playlist should not resolve")
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	f := newFixture(t)

	var us settings.UserSettings
	if err := f.client.Call("Settings.Get", Empty{}, &us); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if us.Volume != 70 {
		t.Errorf("default volume = %d, want 70", us.Volume)
	}

	vol := 25
	var updated settings.UserSettings
	err := f.client.Call("Settings.Save", settings.NewGlobalSettings{Volume: &vol}, &updated)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if updated.Volume != 25 {
		t.Errorf("saved volume = %d, want 25", updated.Volume)
	}
}

func TestSystemStatusAndScan(t *testing.T) {
	f := newFixture(t)
	f.seedTrack(t, "Olson")

	var status SystemStatus
	if err := f.client.Call("System.Status", Empty{}, &status); err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Tracks != 1 || status.Artists != 1 || status.Albums != 1 {
		t.Errorf("status = %+v", status)
	}

	// Scanning is disabled when the server runs without an ingestor.
	var none Empty
	err := f.client.Call("System.Scan", Empty{}, &none)
	if err == nil || !strings.HasPrefix(err.Error(), "internal:") {
		t.Errorf("Scan error = %v, want internal prefix", err)
	}
}

func TestSoundToggles(t *testing.T) {
	f := newFixture(t)

	var none Empty
	if err := f.client.Call("Sound.SetCrossfeed", ToggleRequest{Enabled: true}, &none); err != nil {
		t.Fatalf("SetCrossfeed: %v", err)
	}
	if err := f.client.Call("Sound.Beep", Empty{}, &none); err != nil {
		t.Fatalf("Beep: %v", err)
	}
}
