package engine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"rockboxd/internal/settings"
	"rockboxd/pkg/errs"
	"rockboxd/pkg/models"
)

func testEngine(t *testing.T) *SimEngine {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	dir := t.TempDir()
	return NewSimEngine(dir, settings.NewStore(dir), logger)
}

func TestPlayRequiresTracks(t *testing.T) {
	e := testEngine(t)
	err := e.Play(0, 0)
	if !errs.Is(err, errs.InvalidArgument) {
		t.Errorf("Play with empty tracklist = %v, want InvalidArgument", err)
	}
}

func TestPlayPauseResume(t *testing.T) {
	e := testEngine(t)
	if err := e.LoadTracks([]string{"a.mp3", "b.mp3"}, 0); err != nil {
		t.Fatal(err)
	}
	if err := e.Play(0, 0); err != nil {
		t.Fatal(err)
	}
	if state, _ := e.Status(); state != models.StatePlaying {
		t.Errorf("state after Play = %v", state)
	}
	if err := e.Pause(); err != nil {
		t.Fatal(err)
	}
	if state, _ := e.Status(); state != models.StatePaused {
		t.Errorf("state after Pause = %v", state)
	}
	if err := e.Resume(); err != nil {
		t.Fatal(err)
	}
	if state, _ := e.Status(); state != models.StatePlaying {
		t.Errorf("state after Resume = %v", state)
	}
}

func TestNextStopsAtEnd(t *testing.T) {
	e := testEngine(t)
	e.LoadTracks([]string{"a.mp3", "b.mp3"}, 0)
	e.Play(0, 0)

	if err := e.Next(); err != nil {
		t.Fatal(err)
	}
	if _, idx, _ := e.Tracklist(); idx != 1 {
		t.Errorf("index after Next = %d, want 1", idx)
	}

	// Advancing past the last track stops playback.
	if err := e.Next(); err != nil {
		t.Fatal(err)
	}
	if state, _ := e.Status(); state != models.StateStopped {
		t.Errorf("state after Next past end = %v, want stopped", state)
	}
}

func TestPrevAtStartStaysPut(t *testing.T) {
	e := testEngine(t)
	e.LoadTracks([]string{"a.mp3", "b.mp3"}, 0)
	if err := e.Prev(); err != nil {
		t.Fatal(err)
	}
	if _, idx, _ := e.Tracklist(); idx != 0 {
		t.Errorf("index after Prev at start = %d, want 0", idx)
	}
}

func TestSeekClamps(t *testing.T) {
	e := testEngine(t)
	e.LoadTracks([]string{"a.mp3"}, 0)
	e.SetTrackLength("a.mp3", 10_000)
	e.Play(0, 0)
	e.Pause()

	if err := e.Seek(-5_000); err != nil {
		t.Fatal(err)
	}
	meta, _ := e.CurrentTrack()
	if meta.ElapsedMs != 0 {
		t.Errorf("elapsed after backward seek = %d, want clamp to 0", meta.ElapsedMs)
	}

	if err := e.Seek(60_000); err != nil {
		t.Fatal(err)
	}
	meta, _ = e.CurrentTrack()
	if meta.ElapsedMs != 10_000 {
		t.Errorf("elapsed after forward seek = %d, want clamp to track length", meta.ElapsedMs)
	}
}

func TestSeekWithoutTrack(t *testing.T) {
	e := testEngine(t)
	if err := e.Seek(1000); !errs.Is(err, errs.InvalidArgument) {
		t.Errorf("Seek with nothing loaded = %v, want InvalidArgument", err)
	}
}

func TestInsertTrack(t *testing.T) {
	e := testEngine(t)
	e.LoadTracks([]string{"a.mp3", "c.mp3"}, 1)

	if err := e.InsertTrack("b.mp3", 1); err != nil {
		t.Fatal(err)
	}
	tracks, idx, _ := e.Tracklist()
	if strings.Join(tracks, ",") != "a.mp3,b.mp3,c.mp3" {
		t.Errorf("tracks = %v", tracks)
	}
	// The current track shifted right.
	if idx != 2 {
		t.Errorf("index = %d, want 2", idx)
	}

	// Out of range positions append.
	if err := e.InsertTrack("d.mp3", 99); err != nil {
		t.Fatal(err)
	}
	tracks, _, _ = e.Tracklist()
	if tracks[len(tracks)-1] != "d.mp3" {
		t.Errorf("tracks after append = %v", tracks)
	}
}

func TestRemoveTrackAt(t *testing.T) {
	e := testEngine(t)
	e.LoadTracks([]string{"a.mp3", "b.mp3", "c.mp3"}, 1)

	if err := e.RemoveTrackAt(0); err != nil {
		t.Fatal(err)
	}
	tracks, idx, _ := e.Tracklist()
	if len(tracks) != 2 || idx != 0 {
		t.Errorf("after removing before current: tracks=%v index=%d", tracks, idx)
	}

	if err := e.RemoveTrackAt(5); !errs.Is(err, errs.InvalidArgument) {
		t.Errorf("RemoveTrackAt out of range = %v, want InvalidArgument", err)
	}

	e.RemoveTrackAt(1)
	e.RemoveTrackAt(0)
	if state, _ := e.Status(); state != models.StateStopped {
		t.Errorf("removing every track should stop playback, state = %v", state)
	}
}

func TestClearTracklist(t *testing.T) {
	e := testEngine(t)
	e.LoadTracks([]string{"a.mp3"}, 0)
	e.Play(0, 0)

	if err := e.ClearTracklist(); err != nil {
		t.Fatal(err)
	}
	tracks, idx, _ := e.Tracklist()
	if len(tracks) != 0 || idx != -1 {
		t.Errorf("after clear: tracks=%v index=%d", tracks, idx)
	}
	if state, _ := e.Status(); state != models.StateStopped {
		t.Errorf("state after clear = %v", state)
	}
}

func TestVolumeClamping(t *testing.T) {
	e := testEngine(t)
	e.SetVolume(150)
	if v, _ := e.Volume(); v != 100 {
		t.Errorf("volume = %d, want clamp to 100", v)
	}
	e.VolumeStep(-200)
	if v, _ := e.Volume(); v != 0 {
		t.Errorf("volume = %d, want clamp to 0", v)
	}
}

func TestResumeFileSurvivesRestart(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	dir := t.TempDir()
	store := settings.NewStore(dir)

	e := NewSimEngine(dir, store, logger)
	e.LoadTracks([]string{"a.mp3"}, 0)
	e.Play(4_000, 123)
	if err := e.Pause(); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(dir, ".resume.cfg")); err != nil {
		t.Fatalf("resume file missing: %v", err)
	}

	restarted := NewSimEngine(dir, store, logger)
	if pos, _ := restarted.FilePosition(); pos != 123 {
		t.Errorf("restored file position = %d, want 123", pos)
	}
	if state, _ := restarted.Status(); state != models.StateStopped {
		t.Errorf("restart should come up stopped, state = %v", state)
	}
}

func TestPlaylistJournalRotation(t *testing.T) {
	e := testEngine(t)
	e.LoadTracks([]string{"a.mp3"}, 0)
	e.LoadTracks([]string{"b.mp3"}, 0)

	journal, err := os.ReadFile(filepath.Join(e.dir, ".playlist_control"))
	if err != nil {
		t.Fatalf("journal missing: %v", err)
	}
	if !strings.Contains(string(journal), "A:0:b.mp3") {
		t.Errorf("journal = %q", journal)
	}
	old, err := os.ReadFile(filepath.Join(e.dir, ".playlist_control.old"))
	if err != nil {
		t.Fatalf("rotated journal missing: %v", err)
	}
	if !strings.Contains(string(old), "A:0:a.mp3") {
		t.Errorf("rotated journal = %q", old)
	}
}

func TestDSPSettingsPersist(t *testing.T) {
	e := testEngine(t)
	if err := e.SetCrossfeed(true); err != nil {
		t.Fatal(err)
	}
	us, err := e.GetSettings()
	if err != nil {
		t.Fatal(err)
	}
	if !us.CrossfeedEnabled {
		t.Error("crossfeed setting should persist through the store")
	}
}
