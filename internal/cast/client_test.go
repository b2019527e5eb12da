package cast

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"rockboxd/pkg/errs"
	"rockboxd/pkg/models"
)

// fakeRenderer records every control request it receives.
type fakeRenderer struct {
	mu     sync.Mutex
	paths  []string
	bodies []map[string]interface{}
	fail   bool
}

func (f *fakeRenderer) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.fail {
			http.Error(w, "renderer exploded", http.StatusInternalServerError)
			return
		}
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		f.paths = append(f.paths, r.URL.Path)
		f.bodies = append(f.bodies, body)
		w.WriteHeader(http.StatusOK)
	})
}

func (f *fakeRenderer) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func testClient(t *testing.T) (*Client, *fakeRenderer) {
	t.Helper()
	renderer := &fakeRenderer{}
	srv := httptest.NewServer(renderer.handler())
	t.Cleanup(srv.Close)

	device := models.Device{ID: "d1", Name: "Test Renderer", BaseURL: srv.URL}
	client, err := Connect(device, time.Hour, quietLogger())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return client, renderer
}

func track(path string) models.Track {
	return models.Track{ID: models.TrackID(path, ""), Path: path, Title: path}
}

func TestConnectOpensSession(t *testing.T) {
	client, renderer := testClient(t)
	if client.SessionID == "" {
		t.Error("session id should be assigned")
	}
	got := renderer.received()
	if len(got) != 1 || got[0] != "/session" {
		t.Errorf("requests = %v, want [/session]", got)
	}
	if !client.Alive() {
		t.Error("fresh client should be alive")
	}
}

func TestConnectFailsWhenUnreachable(t *testing.T) {
	device := models.Device{ID: "d1", BaseURL: "http://127.0.0.1:1"}
	_, err := Connect(device, time.Hour, quietLogger())
	if !errs.Is(err, errs.Unavailable) {
		t.Errorf("Connect to dead device = %v, want Unavailable", err)
	}
}

func TestTracklistBookkeeping(t *testing.T) {
	client, _ := testClient(t)

	tracks := []models.Track{track("/m/a.mp3"), track("/m/b.mp3"), track("/m/c.mp3")}
	if err := client.LoadTracks(tracks, 1); err != nil {
		t.Fatal(err)
	}
	if cur := client.CurrentTrack(); cur == nil || cur.Path != "/m/b.mp3" {
		t.Errorf("current = %v", cur)
	}

	// PlayNext splices directly after the current position.
	if err := client.PlayNext(track("/m/d.mp3")); err != nil {
		t.Fatal(err)
	}
	list, pos := client.Tracklist()
	if list[2].Path != "/m/d.mp3" || pos != 1 {
		t.Errorf("after PlayNext: pos=%d list=%v", pos, paths(list))
	}

	// Removing before the current position shifts it down.
	if err := client.RemoveTrackAt(0); err != nil {
		t.Fatal(err)
	}
	_, pos = client.Tracklist()
	if pos != 0 {
		t.Errorf("position after remove = %d, want 0", pos)
	}

	if err := client.RemoveTrackAt(99); !errs.Is(err, errs.InvalidArgument) {
		t.Errorf("out of range remove = %v, want InvalidArgument", err)
	}
}

func TestAppend(t *testing.T) {
	client, renderer := testClient(t)

	if err := client.Append(track("/m/a.mp3")); err != nil {
		t.Fatal(err)
	}
	list, pos := client.Tracklist()
	if len(list) != 1 || pos != 0 {
		t.Errorf("after append to empty list: pos=%d len=%d", pos, len(list))
	}

	found := false
	for _, p := range renderer.received() {
		if p == "/enqueue" {
			found = true
		}
	}
	if !found {
		t.Errorf("renderer never saw /enqueue: %v", renderer.received())
	}
}

func TestFailedCommandLeavesStateUntouched(t *testing.T) {
	client, renderer := testClient(t)
	if err := client.LoadTracks([]models.Track{track("/m/a.mp3")}, 0); err != nil {
		t.Fatal(err)
	}

	renderer.mu.Lock()
	renderer.fail = true
	renderer.mu.Unlock()

	err := client.Append(track("/m/b.mp3"))
	if !errs.Is(err, errs.Unavailable) {
		t.Errorf("Append against failing device = %v, want Unavailable", err)
	}
	list, _ := client.Tracklist()
	if len(list) != 1 {
		t.Errorf("failed append mutated the tracklist: %v", paths(list))
	}
}

func TestCloseReleasesSession(t *testing.T) {
	client, renderer := testClient(t)
	client.Close()

	got := renderer.received()
	sawStop, sawClose := false, false
	for _, p := range got {
		if p == "/stop" {
			sawStop = true
		}
		if p == "/session/close" {
			sawClose = true
		}
	}
	if !sawStop || !sawClose {
		t.Errorf("close requests = %v", got)
	}

	// A second Close must not panic on the heartbeat channel.
	client.Close()
}

func paths(tracks []models.Track) []string {
	out := make([]string, len(tracks))
	for i, t := range tracks {
		out[i] = t.Path
	}
	return out
}
