// Package settings persists user settings under $HOME/.config/rockbox.org.
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
	"golang.org/x/crypto/bcrypt"

	"rockboxd/pkg/errs"
)

// UserSettings mirrors the engine's persisted configuration.
type UserSettings struct {
	Volume           int    `toml:"volume" json:"volume"`
	Balance          int    `toml:"balance" json:"balance"`
	Bass             int    `toml:"bass" json:"bass"`
	Treble           int    `toml:"treble" json:"treble"`
	ChannelConfig    int    `toml:"channel_config" json:"channel_config"`
	StereoWidth      int    `toml:"stereo_width" json:"stereo_width"`
	EqEnabled        bool   `toml:"eq_enabled" json:"eq_enabled"`
	EqBandSettings   []int  `toml:"eq_band_settings" json:"eq_band_settings"`
	CrossfeedEnabled bool   `toml:"crossfeed" json:"crossfeed"`
	Timestretch      bool   `toml:"timestretch_enabled" json:"timestretch_enabled"`
	DitheringEnabled bool   `toml:"dithering_enabled" json:"dithering_enabled"`
	Crossfade        int    `toml:"crossfade" json:"crossfade"`
	ReplaygainType   int    `toml:"replaygain_type" json:"replaygain_type"`
	Repeat           int    `toml:"repeat_mode" json:"repeat_mode"`
	Shuffle          bool   `toml:"playlist_shuffle" json:"playlist_shuffle"`
	PartyMode        bool   `toml:"party_mode" json:"party_mode"`
	MusicDir         string `toml:"music_dir" json:"music_dir"`
}

// NewGlobalSettings is the mutable projection accepted by the settings
// surfaces. Fields outside this projection are preserved on save.
type NewGlobalSettings struct {
	Volume           *int  `json:"volume,omitempty"`
	Bass             *int  `json:"bass,omitempty"`
	Treble           *int  `json:"treble,omitempty"`
	EqEnabled        *bool `json:"eq_enabled,omitempty"`
	CrossfeedEnabled *bool `json:"crossfeed,omitempty"`
	Timestretch      *bool `json:"timestretch_enabled,omitempty"`
	DitheringEnabled *bool `json:"dithering_enabled,omitempty"`
	Crossfade        *int  `json:"crossfade,omitempty"`
	Repeat           *int  `json:"repeat_mode,omitempty"`
	Shuffle          *bool `json:"playlist_shuffle,omitempty"`
}

// Apply merges the projection into existing settings.
func (n NewGlobalSettings) Apply(s *UserSettings) {
	if n.Volume != nil {
		s.Volume = *n.Volume
	}
	if n.Bass != nil {
		s.Bass = *n.Bass
	}
	if n.Treble != nil {
		s.Treble = *n.Treble
	}
	if n.EqEnabled != nil {
		s.EqEnabled = *n.EqEnabled
	}
	if n.CrossfeedEnabled != nil {
		s.CrossfeedEnabled = *n.CrossfeedEnabled
	}
	if n.Timestretch != nil {
		s.Timestretch = *n.Timestretch
	}
	if n.DitheringEnabled != nil {
		s.DitheringEnabled = *n.DitheringEnabled
	}
	if n.Crossfade != nil {
		s.Crossfade = *n.Crossfade
	}
	if n.Repeat != nil {
		s.Repeat = *n.Repeat
	}
	if n.Shuffle != nil {
		s.Shuffle = *n.Shuffle
	}
}

// DefaultSettings returns the engine defaults.
func DefaultSettings() UserSettings {
	return UserSettings{
		Volume:         70,
		ChannelConfig:  0,
		StereoWidth:    100,
		EqBandSettings: make([]int, 10),
		ReplaygainType: 0,
	}
}

// Store reads and writes settings.toml and the auth token file. All writes
// go through an atomic rename so a crash never leaves a torn file.
type Store struct {
	mu  sync.Mutex
	dir string
}

// NewStore returns a store rooted at dir, normally ConfigDir().
func NewStore(dir string) *Store { return &Store{dir: dir} }

// ConfigDir returns $HOME/.config/rockbox.org.
func ConfigDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "rockbox.org")
}

func (s *Store) settingsPath() string { return filepath.Join(s.dir, "settings.toml") }
func (s *Store) tokenPath() string    { return filepath.Join(s.dir, "token") }

// Load reads settings.toml, returning defaults when the file is absent.
func (s *Store) Load() (UserSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	us := DefaultSettings()
	if _, err := os.Stat(s.settingsPath()); os.IsNotExist(err) {
		return us, nil
	}
	if _, err := toml.DecodeFile(s.settingsPath(), &us); err != nil {
		return us, errs.Wrap(errs.Internal, err, "failed to parse settings")
	}
	return us, nil
}

// Save writes settings.toml atomically.
func (s *Store) Save(us UserSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return errs.Wrap(errs.Internal, err, "failed to create settings directory")
	}

	tmp := s.settingsPath() + ".new"
	file, err := os.Create(tmp)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "failed to create settings file")
	}
	if err := toml.NewEncoder(file).Encode(us); err != nil {
		file.Close()
		os.Remove(tmp)
		return errs.Wrap(errs.Internal, err, "failed to encode settings")
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return errs.Wrap(errs.Internal, err, "failed to close settings file")
	}
	if err := os.Rename(tmp, s.settingsPath()); err != nil {
		return errs.Wrap(errs.Internal, err, "failed to replace settings file")
	}
	return nil
}

// Update applies a projection on top of the stored settings and saves the
// result, returning the merged settings.
func (s *Store) Update(n NewGlobalSettings) (UserSettings, error) {
	us, err := s.Load()
	if err != nil {
		return us, err
	}
	n.Apply(&us)
	if err := s.Save(us); err != nil {
		return us, err
	}
	return us, nil
}

// SetPassword stores a bcrypt hash of the given password in the token file.
func (s *Store) SetPassword(password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return errs.Wrap(errs.Internal, err, "failed to create settings directory")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "failed to hash password")
	}
	if err := os.WriteFile(s.tokenPath(), hash, 0600); err != nil {
		return errs.Wrap(errs.Internal, err, "failed to write token file")
	}
	return nil
}

// CheckPassword verifies a password against the stored token. With no token
// file present every password is accepted.
func (s *Store) CheckPassword(password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash, err := os.ReadFile(s.tokenPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errs.Wrap(errs.Internal, err, "failed to read token file")
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return errs.New(errs.PermissionDenied, "incorrect password")
	}
	return nil
}

// String implements fmt.Stringer for logging without dumping every field.
func (s *Store) String() string {
	return fmt.Sprintf("settings.Store(%s)", s.dir)
}
