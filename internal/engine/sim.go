package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"rockboxd/internal/settings"
	"rockboxd/pkg/errs"
	"rockboxd/pkg/models"
)

// SimEngine is the in-process engine used when no native player is attached
// and by the test suite. It models a tracklist and an elapsed-time clock and
// persists resume state the same way the firmware does: settings through the
// settings store, playback position in .resume.cfg (written via
// .resume.cfg.new and renamed), and a playlist journal in .playlist_control
// rotated to .playlist_control.old.
//
// SimEngine is not safe for concurrent use on its own; the Facade provides
// the serialization.
type SimEngine struct {
	dir      string
	store    *settings.Store
	logger   *logrus.Logger
	state    models.PlaybackState
	tracks   []string
	index    int
	elapsed  int64 // ms, frozen while paused/stopped
	playedAt time.Time
	lengths  map[string]int64 // per-path length hints, ms
	filePos  int64
	volume   int
}

// NewSimEngine creates a simulated engine persisting state under dir.
func NewSimEngine(dir string, store *settings.Store, logger *logrus.Logger) *SimEngine {
	if logger == nil {
		logger = logrus.New()
	}
	e := &SimEngine{
		dir:     dir,
		store:   store,
		logger:  logger,
		state:   models.StateStopped,
		index:   -1,
		lengths: make(map[string]int64),
		volume:  70,
	}
	e.loadResume()
	return e
}

// SetTrackLength registers the decoded length of a path so seeks can be
// clamped. Unknown paths are treated as unbounded.
func (e *SimEngine) SetTrackLength(path string, ms int64) { e.lengths[path] = ms }

func (e *SimEngine) currentElapsed() int64 {
	if e.state != models.StatePlaying {
		return e.elapsed
	}
	el := e.elapsed + time.Since(e.playedAt).Milliseconds()
	if l := e.currentLength(); l > 0 && el > l {
		el = l
	}
	return el
}

func (e *SimEngine) currentLength() int64 {
	if e.index < 0 || e.index >= len(e.tracks) {
		return 0
	}
	return e.lengths[e.tracks[e.index]]
}

func (e *SimEngine) Play(elapsedMs, offsetBytes int64) error {
	if len(e.tracks) == 0 {
		return errs.New(errs.InvalidArgument, "no tracks loaded")
	}
	if e.index < 0 {
		e.index = 0
	}
	e.elapsed = elapsedMs
	e.filePos = offsetBytes
	e.state = models.StatePlaying
	e.playedAt = time.Now()
	return e.saveResume()
}

func (e *SimEngine) Pause() error {
	if e.state == models.StatePlaying {
		e.elapsed = e.currentElapsed()
	}
	e.state = models.StatePaused
	return e.saveResume()
}

func (e *SimEngine) Resume() error {
	if len(e.tracks) == 0 {
		// Resuming with nothing loaded restarts from the saved resume
		// state when there is one.
		return errs.New(errs.InvalidArgument, "no tracks loaded")
	}
	e.state = models.StatePlaying
	e.playedAt = time.Now()
	return nil
}

func (e *SimEngine) Next() error {
	if e.index+1 >= len(e.tracks) {
		e.state = models.StateStopped
		e.elapsed = 0
		return nil
	}
	e.index++
	e.elapsed = 0
	e.playedAt = time.Now()
	return e.saveResume()
}

func (e *SimEngine) Prev() error {
	if e.index > 0 {
		e.index--
	}
	e.elapsed = 0
	e.playedAt = time.Now()
	return e.saveResume()
}

// Seek adjusts the elapsed position by deltaMs, clamped to [0, track length].
func (e *SimEngine) Seek(deltaMs int64) error {
	if e.index < 0 {
		return errs.New(errs.InvalidArgument, "nothing playing")
	}
	pos := e.currentElapsed() + deltaMs
	if pos < 0 {
		pos = 0
	}
	if l := e.currentLength(); l > 0 && pos > l {
		pos = l
	}
	e.elapsed = pos
	e.playedAt = time.Now()
	return nil
}

func (e *SimEngine) HardStop() error {
	e.state = models.StateStopped
	e.elapsed = 0
	e.filePos = 0
	return e.saveResume()
}

func (e *SimEngine) FlushAndReload() error {
	// Drops decoded buffers; position is kept.
	e.filePos = 0
	return nil
}

func (e *SimEngine) Status() (models.PlaybackState, error) { return e.state, nil }

func (e *SimEngine) CurrentTrack() (*TrackMeta, error) {
	if e.index < 0 || e.index >= len(e.tracks) {
		return nil, nil
	}
	path := e.tracks[e.index]
	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return &TrackMeta{
		Path:      path,
		Title:     title,
		LengthMs:  e.lengths[path],
		ElapsedMs: e.currentElapsed(),
	}, nil
}

func (e *SimEngine) FilePosition() (int64, error) { return e.filePos, nil }

func (e *SimEngine) GetSettings() (settings.UserSettings, error) {
	return e.store.Load()
}

func (e *SimEngine) SaveSettings(us settings.UserSettings) error {
	return e.store.Save(us)
}

func (e *SimEngine) ApplyAudioSettings() error { return nil }

func (e *SimEngine) setDSP(mutate func(*settings.UserSettings)) error {
	us, err := e.store.Load()
	if err != nil {
		return err
	}
	mutate(&us)
	return e.store.Save(us)
}

func (e *SimEngine) SetEqEnabled(on bool) error {
	return e.setDSP(func(us *settings.UserSettings) { us.EqEnabled = on })
}

func (e *SimEngine) SetCrossfeed(on bool) error {
	return e.setDSP(func(us *settings.UserSettings) { us.CrossfeedEnabled = on })
}

func (e *SimEngine) SetTimestretch(on bool) error {
	return e.setDSP(func(us *settings.UserSettings) { us.Timestretch = on })
}

func (e *SimEngine) SetDither(on bool) error {
	return e.setDSP(func(us *settings.UserSettings) { us.DitheringEnabled = on })
}

// VolumeStep adjusts the volume, clamped to [0, 100]. Stepping past a bound
// is not an error.
func (e *SimEngine) VolumeStep(delta int) error {
	v := e.volume + delta
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	e.volume = v
	return nil
}

func (e *SimEngine) Volume() (int, error) { return e.volume, nil }

func (e *SimEngine) SetVolume(v int) error {
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	e.volume = v
	return nil
}

func (e *SimEngine) Beep() error { return nil }

func (e *SimEngine) PlaySystemSound(string) error { return nil }

func (e *SimEngine) LoadTracks(paths []string, startIndex int) error {
	e.tracks = append([]string(nil), paths...)
	if startIndex < 0 || startIndex >= len(e.tracks) {
		startIndex = 0
	}
	if len(e.tracks) == 0 {
		e.index = -1
		e.state = models.StateStopped
	} else {
		e.index = startIndex
	}
	e.elapsed = 0
	return e.journalPlaylist()
}

func (e *SimEngine) InsertTrack(path string, position int) error {
	if position < 0 || position > len(e.tracks) {
		position = len(e.tracks)
	}
	e.tracks = append(e.tracks[:position], append([]string{path}, e.tracks[position:]...)...)
	if position <= e.index {
		e.index++
	}
	return e.journalPlaylist()
}

func (e *SimEngine) PlayTrackAt(position int) error {
	if position < 0 || position >= len(e.tracks) {
		return errs.New(errs.InvalidArgument, "position %d out of range", position)
	}
	e.index = position
	e.elapsed = 0
	e.state = models.StatePlaying
	e.playedAt = time.Now()
	return e.saveResume()
}

func (e *SimEngine) RemoveTrackAt(position int) error {
	if position < 0 || position >= len(e.tracks) {
		return errs.New(errs.InvalidArgument, "position %d out of range", position)
	}
	e.tracks = append(e.tracks[:position], e.tracks[position+1:]...)
	switch {
	case len(e.tracks) == 0:
		e.index = -1
		e.state = models.StateStopped
		e.elapsed = 0
	case position < e.index:
		e.index--
	case position == e.index && e.index >= len(e.tracks):
		e.index = len(e.tracks) - 1
	}
	return e.journalPlaylist()
}

func (e *SimEngine) ClearTracklist() error {
	e.tracks = nil
	e.index = -1
	e.state = models.StateStopped
	e.elapsed = 0
	return e.journalPlaylist()
}

func (e *SimEngine) Tracklist() ([]string, int, error) {
	return append([]string(nil), e.tracks...), e.index, nil
}

// saveResume writes .resume.cfg via a temporary file and rename.
func (e *SimEngine) saveResume() error {
	if e.dir == "" {
		return nil
	}
	path := filepath.Join(e.dir, ".resume.cfg")
	tmp := path + ".new"
	track := ""
	if e.index >= 0 && e.index < len(e.tracks) {
		track = e.tracks[e.index]
	}
	body := fmt.Sprintf("track: %s\nindex: %d\nelapsed: %d\noffset: %d\n",
		track, e.index, e.currentElapsed(), e.filePos)
	if err := os.WriteFile(tmp, []byte(body), 0644); err != nil {
		return errs.Wrap(errs.Internal, err, "failed to write resume file")
	}
	if err := os.Rename(tmp, path); err != nil {
		return errs.Wrap(errs.Internal, err, "failed to replace resume file")
	}
	return nil
}

// loadResume restores the last saved position, if any. Only the elapsed
// position is restored; playback stays stopped until explicitly resumed.
func (e *SimEngine) loadResume() {
	if e.dir == "" {
		return
	}
	data, err := os.ReadFile(filepath.Join(e.dir, ".resume.cfg"))
	if err != nil {
		return
	}
	for _, line := range strings.Split(string(data), "\n") {
		key, value, found := strings.Cut(line, ": ")
		if !found {
			continue
		}
		switch key {
		case "elapsed":
			fmt.Sscanf(value, "%d", &e.elapsed)
		case "offset":
			fmt.Sscanf(value, "%d", &e.filePos)
		}
	}
}

// journalPlaylist rewrites .playlist_control, rotating the previous journal
// to .playlist_control.old.
func (e *SimEngine) journalPlaylist() error {
	if e.dir == "" {
		return nil
	}
	path := filepath.Join(e.dir, ".playlist_control")
	if _, err := os.Stat(path); err == nil {
		if err := os.Rename(path, path+".old"); err != nil {
			e.logger.WithError(err).Warn("Could not rotate playlist journal")
		}
	}
	var b strings.Builder
	for i, t := range e.tracks {
		fmt.Fprintf(&b, "A:%d:%s\n", i, t)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return errs.Wrap(errs.Internal, err, "failed to write playlist journal")
	}
	return nil
}
