package engine

import (
	"sync"

	"github.com/sirupsen/logrus"

	"rockboxd/internal/settings"
	"rockboxd/pkg/errs"
	"rockboxd/pkg/models"
)

// Facade guards the singleton engine with a process-wide mutex and retries
// transient failures before surfacing Unavailable. It never panics the
// coordinator: engine panics are converted to errors.
type Facade struct {
	mu     sync.Mutex
	eng    Engine
	logger *logrus.Logger
}

// NewFacade wraps the given engine.
func NewFacade(eng Engine, logger *logrus.Logger) *Facade {
	if logger == nil {
		logger = logrus.New()
	}
	return &Facade{eng: eng, logger: logger}
}

// call serializes access to the engine and applies the retry schedule.
func (f *Facade) call(op string, fn func() error) error {
	err := errs.Retry(func() (callErr error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		defer func() {
			if r := recover(); r != nil {
				f.logger.WithFields(logrus.Fields{"op": op, "panic": r}).Error("Engine call panicked")
				callErr = errs.New(errs.Internal, "engine panicked in %s", op)
			}
		}()
		return fn()
	})
	if err != nil {
		f.logger.WithError(err).WithField("op", op).Warn("Engine call failed")
	}
	return err
}

// snapshot serializes a read against the engine. Reads are not retried, but
// a panicking engine still surfaces as an error rather than unwinding the
// caller.
func (f *Facade) snapshot(op string, fn func() error) (err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			f.logger.WithFields(logrus.Fields{"op": op, "panic": r}).Error("Engine call panicked")
			err = errs.New(errs.Internal, "engine panicked in %s", op)
		}
	}()
	return fn()
}

func (f *Facade) Play(elapsedMs, offsetBytes int64) error {
	return f.call("play", func() error { return f.eng.Play(elapsedMs, offsetBytes) })
}

func (f *Facade) Pause() error  { return f.call("pause", f.eng.Pause) }
func (f *Facade) Resume() error { return f.call("resume", f.eng.Resume) }
func (f *Facade) Next() error   { return f.call("next", f.eng.Next) }
func (f *Facade) Prev() error   { return f.call("prev", f.eng.Prev) }

func (f *Facade) Seek(deltaMs int64) error {
	return f.call("seek", func() error { return f.eng.Seek(deltaMs) })
}

func (f *Facade) HardStop() error       { return f.call("hard_stop", f.eng.HardStop) }
func (f *Facade) FlushAndReload() error { return f.call("flush_and_reload", f.eng.FlushAndReload) }

// Status takes a snapshot under the mutex and releases immediately.
func (f *Facade) Status() (models.PlaybackState, error) {
	var state models.PlaybackState
	err := f.snapshot("status", func() (err error) {
		state, err = f.eng.Status()
		return err
	})
	return state, err
}

func (f *Facade) CurrentTrack() (*TrackMeta, error) {
	var meta *TrackMeta
	err := f.snapshot("current_track", func() (err error) {
		meta, err = f.eng.CurrentTrack()
		return err
	})
	return meta, err
}

func (f *Facade) FilePosition() (int64, error) {
	var pos int64
	err := f.snapshot("file_position", func() (err error) {
		pos, err = f.eng.FilePosition()
		return err
	})
	return pos, err
}

func (f *Facade) GetSettings() (settings.UserSettings, error) {
	var us settings.UserSettings
	err := f.snapshot("get_settings", func() (err error) {
		us, err = f.eng.GetSettings()
		return err
	})
	return us, err
}

func (f *Facade) SaveSettings(us settings.UserSettings) error {
	return f.call("save_settings", func() error { return f.eng.SaveSettings(us) })
}

func (f *Facade) ApplyAudioSettings() error {
	return f.call("apply_audio_settings", f.eng.ApplyAudioSettings)
}

func (f *Facade) SetEqEnabled(on bool) error {
	return f.call("set_eq", func() error { return f.eng.SetEqEnabled(on) })
}

func (f *Facade) SetCrossfeed(on bool) error {
	return f.call("set_crossfeed", func() error { return f.eng.SetCrossfeed(on) })
}

func (f *Facade) SetTimestretch(on bool) error {
	return f.call("set_timestretch", func() error { return f.eng.SetTimestretch(on) })
}

func (f *Facade) SetDither(on bool) error {
	return f.call("set_dither", func() error { return f.eng.SetDither(on) })
}

func (f *Facade) VolumeStep(delta int) error {
	return f.call("volume_step", func() error { return f.eng.VolumeStep(delta) })
}

func (f *Facade) Volume() (int, error) {
	var v int
	err := f.snapshot("volume", func() (err error) {
		v, err = f.eng.Volume()
		return err
	})
	return v, err
}

func (f *Facade) SetVolume(v int) error {
	return f.call("set_volume", func() error { return f.eng.SetVolume(v) })
}

func (f *Facade) Beep() error { return f.call("beep", f.eng.Beep) }

func (f *Facade) PlaySystemSound(name string) error {
	return f.call("system_sound", func() error { return f.eng.PlaySystemSound(name) })
}

func (f *Facade) LoadTracks(paths []string, startIndex int) error {
	return f.call("load_tracks", func() error { return f.eng.LoadTracks(paths, startIndex) })
}

func (f *Facade) InsertTrack(path string, position int) error {
	return f.call("insert_track", func() error { return f.eng.InsertTrack(path, position) })
}

func (f *Facade) PlayTrackAt(position int) error {
	return f.call("play_track_at", func() error { return f.eng.PlayTrackAt(position) })
}

func (f *Facade) RemoveTrackAt(position int) error {
	return f.call("remove_track_at", func() error { return f.eng.RemoveTrackAt(position) })
}

func (f *Facade) ClearTracklist() error {
	return f.call("clear_tracklist", f.eng.ClearTracklist)
}

func (f *Facade) Tracklist() ([]string, int, error) {
	var (
		paths []string
		index int
	)
	err := f.snapshot("tracklist", func() (err error) {
		paths, index, err = f.eng.Tracklist()
		return err
	})
	return paths, index, err
}
