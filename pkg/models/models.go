package models

import (
	"crypto/md5"
	"fmt"
	"time"
)

// EntityID returns the stable content-derived identifier used for library
// entities. The same inputs always hash to the same id across runs.
func EntityID(parts ...string) string {
	h := md5.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{'|'})
		}
		h.Write([]byte(p))
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// ArtistID derives the id of an artist from its name.
func ArtistID(name string) string { return EntityID(name) }

// AlbumID derives the id of an album from its title and artist name.
func AlbumID(title, artistName string) string { return EntityID(title, artistName) }

// TrackID derives the id of a track from its path and content fingerprint.
func TrackID(path, md5sum string) string { return EntityID(path, md5sum) }

// Artist represents a music artist in the catalog.
type Artist struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Bio      string `json:"bio,omitempty"`
	ImageURI string `json:"image,omitempty"`
}

// Album represents an album in the catalog.
type Album struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	ArtistName string `json:"artist"`
	ArtistID   string `json:"artist_id"`
	Year       int    `json:"year"`
	YearString string `json:"year_string"`
	CoverURI   string `json:"album_art,omitempty"`
	MD5        string `json:"md5"`
}

// Track represents a music track in the catalog.
type Track struct {
	ID          string    `json:"id"`
	Path        string    `json:"path"`
	Title       string    `json:"title"`
	ArtistName  string    `json:"artist"`
	AlbumTitle  string    `json:"album"`
	AlbumArtist string    `json:"album_artist"`
	Bitrate     int       `json:"bitrate"`
	Composer    string    `json:"composer"`
	DiscNumber  int       `json:"disc_number"`
	Filesize    int64     `json:"filesize"`
	Frequency   int       `json:"frequency"`
	LengthMs    int64     `json:"length"`
	TrackNumber int       `json:"track_number,omitempty"`
	Year        int       `json:"year,omitempty"`
	Genre       string    `json:"genre,omitempty"`
	MD5         string    `json:"md5"`
	CoverURI    string    `json:"album_art,omitempty"`
	ArtistID    string    `json:"artist_id"`
	AlbumID     string    `json:"album_id"`
	GenreID     string    `json:"genre_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Genre represents a music genre.
type Genre struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ImageURI    string `json:"image,omitempty"`
}

// Folder is a node in the user-defined playlist folder tree. It is distinct
// from a filesystem directory.
type Folder struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ParentID  string    `json:"parent_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Playlist represents a user-created playlist.
type Playlist struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ImageURI    string    `json:"image,omitempty"`
	Description string    `json:"description,omitempty"`
	FolderID    string    `json:"folder_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Tracks      []Track   `json:"tracks,omitempty"`
}

// PlaylistTrack links a track into a playlist at a dense 0-based position.
type PlaylistTrack struct {
	ID         string `json:"id"`
	PlaylistID string `json:"playlist_id"`
	TrackID    string `json:"track_id"`
	Position   int    `json:"position"`
}

// Favourite marks either a track or an album (exactly one) as liked.
type Favourite struct {
	ID        string    `json:"id"`
	TrackID   string    `json:"track_id,omitempty"`
	AlbumID   string    `json:"album_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Device represents a playback device discovered on the network. The id is
// the mDNS service fullname.
type Device struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Host            string `json:"host"`
	IP              string `json:"ip"`
	Port            int    `json:"port"`
	Service         string `json:"service"`
	App             string `json:"app"`
	IsConnected     bool   `json:"is_connected"`
	IsCastDevice    bool   `json:"is_cast_device"`
	IsSourceDevice  bool   `json:"is_source_device"`
	IsCurrentDevice bool   `json:"is_current_device"`
	BaseURL         string `json:"base_url,omitempty"`
}

// TreeEntry attribute flags.
const AttrDirectory = 0x10

// TreeEntry is one row of a cached directory listing.
type TreeEntry struct {
	Name      string `json:"name"`       // absolute path
	TimeWrite int64  `json:"time_write"` // unix seconds
	Attr      int    `json:"attr"`
}

// IsDirectory reports whether the entry describes a directory.
func (e TreeEntry) IsDirectory() bool { return e.Attr&AttrDirectory != 0 }

// PlaybackState enumerates engine playback states.
type PlaybackState string

const (
	StatePlaying PlaybackState = "playing"
	StatePaused  PlaybackState = "paused"
	StateStopped PlaybackState = "stopped"
)

// PlaybackStatus is a snapshot of the current playback session.
type PlaybackStatus struct {
	State     PlaybackState `json:"state"`
	ElapsedMs int64         `json:"elapsed"`
	Track     *Track        `json:"track,omitempty"`
	Index     int           `json:"index"`
	Volume    int           `json:"volume"`
}

// SearchResults aggregates hits across all physical indexes.
type SearchResults struct {
	Artists     []Artist    `json:"artists"`
	Albums      []Album     `json:"albums"`
	Tracks      []Track     `json:"tracks"`
	Entries     []TreeEntry `json:"entries"`
	LikedTracks []Track     `json:"liked_tracks"`
	LikedAlbums []Album     `json:"liked_albums"`
}
