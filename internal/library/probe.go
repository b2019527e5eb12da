package library

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dhowden/tag"
	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
	"github.com/sirupsen/logrus"
	"github.com/tcolgate/mp3"

	"rockboxd/pkg/models"
)

// AudioExtensions is the ingest allowlist. Browse filtering uses the same
// set.
var AudioExtensions = map[string]bool{
	".mp3": true, ".ogg": true, ".flac": true, ".m4a": true, ".aac": true,
	".mp4": true, ".wav": true, ".wv": true, ".mpc": true, ".aiff": true,
	".ac3": true, ".opus": true, ".spx": true, ".sid": true, ".ape": true,
	".wma": true,
}

// IsAudioFile checks if a path has a supported audio extension.
func IsAudioFile(path string) bool {
	return AudioExtensions[strings.ToLower(filepath.Ext(path))]
}

// Probe reads tags and stream properties from audio files.
type Probe struct {
	logger *logrus.Logger
}

// NewProbe creates a probe.
func NewProbe(logger *logrus.Logger) *Probe {
	if logger == nil {
		logger = logrus.New()
	}
	return &Probe{logger: logger}
}

// Read extracts a track from an audio file. Missing tags fall back to the
// filename; a file whose tags cannot be read at all still yields a track.
func (p *Probe) Read(path string) (models.Track, error) {
	file, err := os.Open(path)
	if err != nil {
		return models.Track{}, err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return models.Track{}, err
	}

	track := models.Track{
		Path:     path,
		Title:    strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Filesize: stat.Size(),
	}

	lengthMs, bitrate, frequency, err := p.streamInfo(path, stat.Size())
	if err != nil {
		p.logger.WithError(err).WithField("path", path).Debug("Could not probe stream info")
	}
	track.LengthMs = lengthMs
	track.Bitrate = bitrate
	track.Frequency = frequency

	meta, err := tag.ReadFrom(file)
	if err != nil {
		p.logger.WithError(err).WithField("path", path).Warn("Failed to read tags, using filename")
		track.ArtistName = "Unknown Artist"
		track.AlbumTitle = "Unknown Album"
	} else {
		if t := meta.Title(); t != "" {
			track.Title = t
		}
		track.ArtistName = meta.Artist()
		if track.ArtistName == "" {
			track.ArtistName = "Unknown Artist"
		}
		track.AlbumTitle = meta.Album()
		if track.AlbumTitle == "" {
			track.AlbumTitle = "Unknown Album"
		}
		track.AlbumArtist = meta.AlbumArtist()
		if track.AlbumArtist == "" {
			track.AlbumArtist = track.ArtistName
		}
		track.Composer = meta.Composer()
		track.Genre = meta.Genre()
		track.Year = meta.Year()
		track.TrackNumber, _ = meta.Track()
		track.DiscNumber, _ = meta.Disc()
	}

	// Content fingerprint over the canonical tag tuple. Stable across runs
	// and across renames of the same material.
	track.MD5 = models.EntityID(track.Title, track.ArtistName, track.AlbumTitle,
		strconv.FormatInt(track.LengthMs, 10), strconv.FormatInt(track.Filesize, 10))
	return track, nil
}

// streamInfo probes duration (ms), bitrate (kbps) and sample rate (Hz).
func (p *Probe) streamInfo(path string, size int64) (int64, int, int, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return p.mp3Info(path, size)
	case ".flac":
		return p.flacInfo(path, size)
	case ".wav":
		return p.wavInfo(path, size)
	default:
		// No container parser for the remaining formats; estimate the
		// duration from the file size assuming 192 kbps.
		return estimateFromSize(size, 192), 192, 44100, nil
	}
}

// mp3Info decodes frames for an exact duration; falls back to a bitrate
// estimate when not a single frame decodes.
func (p *Probe) mp3Info(path string, size int64) (int64, int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, 0, err
	}
	defer f.Close()

	dec := mp3.NewDecoder(f)
	var total time.Duration
	var bitrate, frequency, frames int
	var skipped int
	for {
		var fr mp3.Frame
		if err := dec.Decode(&fr, &skipped); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if frames == 0 {
				return estimateFromSize(size, 192), 192, 44100, nil
			}
			break // partial decode; use what we have
		}
		total += fr.Duration()
		if frames == 0 {
			header := fr.Header()
			bitrate = int(header.BitRate()) / 1000
			frequency = int(header.SampleRate())
		}
		frames++
	}
	return total.Milliseconds(), bitrate, frequency, nil
}

// flacInfo reads the STREAMINFO metadata block.
func (p *Probe) flacInfo(path string, size int64) (int64, int, int, error) {
	stream, err := flac.ParseFile(path)
	if err != nil {
		return 0, 0, 0, err
	}
	si := stream.Info
	if si.NSamples == 0 || si.SampleRate == 0 {
		return 0, 0, 0, fmt.Errorf("flac stream missing sample info")
	}
	secs := float64(si.NSamples) / float64(si.SampleRate)
	ms := int64(secs * 1000)
	bitrate := 0
	if ms > 0 {
		bitrate = int(size * 8 / ms) // bytes * 8 / ms == kbps
	}
	return ms, bitrate, int(si.SampleRate), nil
}

// wavInfo reads the RIFF header and approximates duration from the file
// size; a full sample count would require decoding every frame.
func (p *Probe) wavInfo(path string, size int64) (int64, int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return 0, 0, 0, fmt.Errorf("invalid wav file")
	}
	if dec.SampleRate == 0 || dec.BitDepth == 0 || dec.NumChans == 0 {
		return 0, 0, 0, fmt.Errorf("invalid wav header")
	}

	headerSize := int64(44)
	pcmBytes := size - headerSize
	if pcmBytes < 0 {
		pcmBytes = 0
	}
	bytesPerFrame := int64(dec.BitDepth/8) * int64(dec.NumChans)
	if bytesPerFrame <= 0 {
		return 0, 0, 0, fmt.Errorf("invalid sample frame size")
	}
	frames := pcmBytes / bytesPerFrame
	ms := frames * 1000 / int64(dec.SampleRate)
	bitrate := int(int64(dec.SampleRate) * bytesPerFrame * 8 / 1000)
	return ms, bitrate, int(dec.SampleRate), nil
}

// estimateFromSize is the last-resort duration estimate given a bitrate in
// kbps.
func estimateFromSize(size int64, kbps int) int64 {
	if kbps <= 0 {
		return 0
	}
	return size * 8 / int64(kbps)
}
