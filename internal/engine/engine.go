// Package engine wraps the native audio player behind a typed capability
// set. The coordinator owns exactly one engine; all mutating calls are
// serialized by the Facade.
package engine

import (
	"rockboxd/internal/settings"
	"rockboxd/pkg/models"
)

// TrackMeta describes the track the engine is currently decoding.
type TrackMeta struct {
	Path        string `json:"path"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Album       string `json:"album"`
	LengthMs    int64  `json:"length"`
	ElapsedMs   int64  `json:"elapsed"`
	Bitrate     int    `json:"bitrate"`
	Frequency   int    `json:"frequency"`
	TrackNumber int    `json:"track_number"`
}

// Engine is the capability set exposed by the native player. Implementations
// must be safe to call from a single goroutine at a time; the Facade provides
// the serialization.
type Engine interface {
	Play(elapsedMs int64, offsetBytes int64) error
	Pause() error
	Resume() error
	Next() error
	Prev() error
	Seek(deltaMs int64) error
	HardStop() error
	FlushAndReload() error

	Status() (models.PlaybackState, error)
	CurrentTrack() (*TrackMeta, error)
	FilePosition() (int64, error)

	GetSettings() (settings.UserSettings, error)
	SaveSettings(settings.UserSettings) error
	ApplyAudioSettings() error

	SetEqEnabled(bool) error
	SetCrossfeed(bool) error
	SetTimestretch(bool) error
	SetDither(bool) error

	VolumeStep(delta int) error
	Volume() (int, error)
	SetVolume(int) error
	Beep() error
	PlaySystemSound(name string) error

	// Tracklist control used by the engine player target.
	LoadTracks(paths []string, startIndex int) error
	InsertTrack(path string, position int) error
	PlayTrackAt(position int) error
	RemoveTrackAt(position int) error
	ClearTracklist() error
	Tracklist() ([]string, int, error)
}
