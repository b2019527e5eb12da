package library

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"rockboxd/internal/events"
	"rockboxd/pkg/models"
)

// Indexer receives every committed library write so the search index stays
// in step with the catalog. Implemented by the search package.
type Indexer interface {
	IndexArtist(models.Artist) error
	IndexAlbum(models.Album) error
	IndexTrack(models.Track) error
	DeleteTrack(id string) error
}

// Ingestor populates the catalog from filesystem scans. Failures on
// individual files are logged and skipped; a bad file never aborts a scan.
type Ingestor struct {
	store   *Store
	probe   *Probe
	index   Indexer
	bus     *events.Bus
	logger  *logrus.Logger
	scanned atomic.Int64

	scanMu sync.Mutex // one scan at a time
}

// NewIngestor wires the ingest pipeline. index and bus may be nil in tests.
func NewIngestor(store *Store, probe *Probe, index Indexer, bus *events.Bus, logger *logrus.Logger) *Ingestor {
	if logger == nil {
		logger = logrus.New()
	}
	return &Ingestor{store: store, probe: probe, index: index, bus: bus, logger: logger}
}

// Scan recursively enumerates audio files under root and ingests each one.
// Returns the number of files ingested.
func (ing *Ingestor) Scan(root string) (int64, error) {
	ing.scanMu.Lock()
	defer ing.scanMu.Unlock()

	ing.logger.WithField("root", root).Info("Scanning music library")

	var wg sync.WaitGroup
	var count int64
	jobs := make(chan string, 100)

	numWorkers := runtime.NumCPU()
	for i := 0; i < numWorkers; i++ {
		go func() {
			for path := range jobs {
				if _, err := ing.IngestFile(path); err != nil {
					ing.logger.WithError(err).WithField("path", path).Error("Skipping file")
				} else {
					atomic.AddInt64(&count, 1)
				}
				wg.Done()
			}
		}()
	}

	walkErr := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			// Unreadable subtree; keep scanning the rest.
			ing.logger.WithError(err).WithField("path", path).Warn("Cannot access path")
			return nil
		}
		if !info.IsDir() && IsAudioFile(path) {
			wg.Add(1)
			jobs <- path
		}
		return nil
	})

	close(jobs)
	wg.Wait()

	ing.scanned.Store(count)
	ing.logger.WithField("tracks", count).Info("Library scan complete")

	if ing.bus != nil {
		ing.bus.Changed(events.Database)
		ing.bus.Changed(events.Update)
	}
	return count, walkErr
}

// IngestFile reads one audio file and upserts it in dependency order:
// Genre -> Artist -> Album -> Track. Conflicts on unique keys return the
// existing ids, making ingest idempotent.
func (ing *Ingestor) IngestFile(path string) (models.Track, error) {
	track, err := ing.probe.Read(path)
	if err != nil {
		return models.Track{}, err
	}

	if track.Genre != "" {
		genre, err := ing.store.UpsertGenre(track.Genre)
		if err != nil {
			return models.Track{}, err
		}
		track.GenreID = genre.ID
	}

	artist, err := ing.store.UpsertArtist(track.ArtistName)
	if err != nil {
		return models.Track{}, err
	}
	track.ArtistID = artist.ID

	album, err := ing.store.UpsertAlbum(models.Album{
		Title:      track.AlbumTitle,
		ArtistName: track.AlbumArtist,
		ArtistID:   models.ArtistID(track.AlbumArtist),
		Year:       track.Year,
		YearString: yearString(track.Year),
	})
	if err != nil {
		return models.Track{}, err
	}
	// The album artist may differ from the track artist; make sure the row
	// it references exists.
	if album.ArtistID != artist.ID {
		if _, err := ing.store.UpsertArtist(track.AlbumArtist); err != nil {
			return models.Track{}, err
		}
	}
	track.AlbumID = album.ID

	stored, err := ing.store.UpsertTrack(track)
	if err != nil {
		return models.Track{}, err
	}

	if ing.index != nil {
		if err := ing.index.IndexArtist(artist); err != nil {
			ing.logger.WithError(err).Warn("Failed to index artist")
		}
		if err := ing.index.IndexAlbum(album); err != nil {
			ing.logger.WithError(err).Warn("Failed to index album")
		}
		if err := ing.index.IndexTrack(stored); err != nil {
			ing.logger.WithError(err).Warn("Failed to index track")
		}
	}
	return stored, nil
}

// RemoveFile deletes the track for a vanished file and cleans the index.
func (ing *Ingestor) RemoveFile(path string) error {
	track, err := ing.store.RemoveTrackByPath(path)
	if err != nil {
		return err
	}
	if ing.index != nil {
		if err := ing.index.DeleteTrack(track.ID); err != nil {
			ing.logger.WithError(err).Warn("Failed to remove track from index")
		}
	}
	if ing.bus != nil {
		ing.bus.Changed(events.Database)
	}
	return nil
}

// LastScanCount reports the number of files ingested by the previous scan.
func (ing *Ingestor) LastScanCount() int64 { return ing.scanned.Load() }

func yearString(year int) string {
	if year == 0 {
		return ""
	}
	return strconv.Itoa(year)
}
