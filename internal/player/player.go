// Package player routes playback control to the active target: either the
// local engine or a connected cast device. Frontends never talk to a target
// directly; they go through the Session.
package player

import "rockboxd/pkg/models"

// Player is the capability set every playback target implements.
type Player interface {
	Play() error
	Pause() error
	Resume() error
	Stop() error
	Next() error
	Previous() error
	Seek(deltaMs int64) error
	SetVolume(volume int) error

	LoadTracks(tracks []models.Track, startIndex int) error
	Append(track models.Track) error
	PlayNext(track models.Track) error
	PlayTrackAt(position int) error
	RemoveTrackAt(position int) error
	ClearTracklist() error

	Status() (models.PlaybackStatus, error)
	Tracklist() ([]models.Track, int, error)
	CurrentTrack() (*models.Track, error)

	Kind() string
}

// TrackResolver maps engine file paths back to library rows. Paths the
// library does not know are rendered with metadata from the path alone.
type TrackResolver interface {
	FindTrackByPath(path string) (models.Track, error)
}
