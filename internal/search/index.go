// Package search maintains the full-text indexes that track the catalog and
// the browse cache. One physical bleve index exists per entity kind; queries
// fan out across them and merge into a composite result.
package search

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/sirupsen/logrus"

	"rockboxd/pkg/models"
)

// Kind names one physical index.
type Kind string

const (
	KindArtist     Kind = "artist"
	KindAlbum      Kind = "album"
	KindTrack      Kind = "track"
	KindFile       Kind = "file"
	KindLikedTrack Kind = "liked-track"
	KindLikedAlbum Kind = "liked-album"
)

var kinds = []Kind{KindArtist, KindAlbum, KindTrack, KindFile, KindLikedTrack, KindLikedAlbum}

// defaultFields lists the human-readable fields matched when no field is
// named in the query.
var defaultFields = map[Kind][]string{
	KindArtist:     {"name", "bio"},
	KindAlbum:      {"title", "artist"},
	KindTrack:      {"title", "artist", "album"},
	KindFile:       {"name"},
	KindLikedTrack: {"title", "artist", "album"},
	KindLikedAlbum: {"title", "artist"},
}

// Index is the set of per-kind bleve indexes. Safe for concurrent use.
type Index struct {
	mu      sync.RWMutex
	indexes map[Kind]bleve.Index
	logger  *logrus.Logger
}

// Open opens (or creates) the indexes under dir. An empty dir keeps
// everything in memory, which the tests rely on.
func Open(dir string, logger *logrus.Logger) (*Index, error) {
	if logger == nil {
		logger = logrus.New()
	}

	idx := &Index{indexes: make(map[Kind]bleve.Index), logger: logger}
	for _, kind := range kinds {
		mapping := bleve.NewIndexMapping()
		var (
			b   bleve.Index
			err error
		)
		if dir == "" {
			b, err = bleve.NewMemOnly(mapping)
		} else {
			path := filepath.Join(dir, string(kind))
			if _, statErr := os.Stat(path); statErr == nil {
				b, err = bleve.Open(path)
			} else {
				b, err = bleve.New(path, mapping)
			}
		}
		if err != nil {
			idx.Close()
			return nil, err
		}
		idx.indexes[kind] = b
	}
	return idx, nil
}

// Close closes every physical index.
func (i *Index) Close() {
	i.mu.Lock()
	defer i.mu.Unlock()
	for kind, b := range i.indexes {
		if err := b.Close(); err != nil {
			i.logger.WithError(err).WithField("kind", kind).Warn("Failed to close index")
		}
		delete(i.indexes, kind)
	}
}

func (i *Index) upsert(kind Kind, id string, doc map[string]interface{}) error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	b, ok := i.indexes[kind]
	if !ok {
		return nil
	}
	return b.Index(id, doc)
}

func (i *Index) delete(kind Kind, id string) error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	b, ok := i.indexes[kind]
	if !ok {
		return nil
	}
	// Deleting an absent doc is a no-op in bleve; tombstoned reads simply
	// return no hit.
	return b.Delete(id)
}

// IndexArtist indexes or re-indexes an artist.
func (i *Index) IndexArtist(a models.Artist) error {
	return i.upsert(KindArtist, a.ID, map[string]interface{}{
		"id":    a.ID,
		"name":  a.Name,
		"bio":   a.Bio,
		"image": a.ImageURI,
	})
}

// IndexAlbum indexes or re-indexes an album.
func (i *Index) IndexAlbum(a models.Album) error {
	return i.upsert(KindAlbum, a.ID, albumDoc(a))
}

// IndexTrack indexes or re-indexes a track.
func (i *Index) IndexTrack(t models.Track) error {
	return i.upsert(KindTrack, t.ID, trackDoc(t))
}

// IndexLikedTrack mirrors a favourite track into the liked index.
func (i *Index) IndexLikedTrack(t models.Track) error {
	return i.upsert(KindLikedTrack, t.ID, trackDoc(t))
}

// IndexLikedAlbum mirrors a favourite album into the liked index.
func (i *Index) IndexLikedAlbum(a models.Album) error {
	return i.upsert(KindLikedAlbum, a.ID, albumDoc(a))
}

// IndexEntries indexes a directory listing; called on browse-cache builds.
func (i *Index) IndexEntries(entries []models.TreeEntry) error {
	for _, e := range entries {
		doc := map[string]interface{}{
			"name":         e.Name,
			"time_write":   e.TimeWrite,
			"is_directory": e.IsDirectory(),
		}
		if err := i.upsert(KindFile, e.Name, doc); err != nil {
			return err
		}
	}
	return nil
}

// DeleteTrack tombstones a track (and its liked mirror).
func (i *Index) DeleteTrack(id string) error {
	if err := i.delete(KindTrack, id); err != nil {
		return err
	}
	return i.delete(KindLikedTrack, id)
}

// DeleteLikedTrack tombstones a liked-track mirror.
func (i *Index) DeleteLikedTrack(id string) error { return i.delete(KindLikedTrack, id) }

// DeleteLikedAlbum tombstones a liked-album mirror.
func (i *Index) DeleteLikedAlbum(id string) error { return i.delete(KindLikedAlbum, id) }

func albumDoc(a models.Album) map[string]interface{} {
	return map[string]interface{}{
		"id":        a.ID,
		"title":     a.Title,
		"artist":    a.ArtistName,
		"year":      a.Year,
		"album_art": a.CoverURI,
		"md5":       a.MD5,
		"artist_id": a.ArtistID,
	}
}

func trackDoc(t models.Track) map[string]interface{} {
	return map[string]interface{}{
		"id":           t.ID,
		"title":        t.Title,
		"artist":       t.ArtistName,
		"album":        t.AlbumTitle,
		"album_artist": t.AlbumArtist,
		"length":       t.LengthMs,
		"path":         t.Path,
		"album_art":    t.CoverURI,
		"md5":          t.MD5,
		"artist_id":    t.ArtistID,
		"album_id":     t.AlbumID,
	}
}

// queryFor builds a disjunction over the kind's default search fields.
func queryFor(kind Kind, term string) query.Query {
	fields := defaultFields[kind]
	qs := make([]query.Query, 0, len(fields))
	for _, f := range fields {
		mq := bleve.NewMatchQuery(term)
		mq.SetField(f)
		qs = append(qs, mq)
		// Prefix match keeps partially-typed queries useful. Prefix
		// terms bypass the analyzer, so lowercase to match it.
		pq := bleve.NewPrefixQuery(strings.ToLower(term))
		pq.SetField(f)
		qs = append(qs, pq)
	}
	return bleve.NewDisjunctionQuery(qs...)
}

// hits runs a query against one kind, returning doc ids in score order.
func (i *Index) hits(kind Kind, term string, limit int) []string {
	i.mu.RLock()
	b, ok := i.indexes[kind]
	i.mu.RUnlock()
	if !ok || term == "" {
		return nil
	}

	req := bleve.NewSearchRequest(queryFor(kind, term))
	req.Size = limit
	res, err := b.Search(req)
	if err != nil {
		i.logger.WithError(err).WithField("kind", kind).Warn("Search failed")
		return nil
	}
	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids
}

// Catalog resolves search hits back into full entities. The library store
// implements it.
type Catalog interface {
	FindArtist(id string) (models.Artist, error)
	FindAlbum(id string) (models.Album, error)
	FindTrack(id string) (models.Track, error)
}

// Search fans the term out across every index and merges the hits into a
// composite result. Hits whose entity has since been deleted are dropped.
func (i *Index) Search(term string, catalog Catalog) models.SearchResults {
	const limit = 50

	var (
		wg      sync.WaitGroup
		results models.SearchResults
		mu      sync.Mutex
	)

	collect := func(kind Kind, apply func(ids []string)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids := i.hits(kind, term, limit)
			mu.Lock()
			defer mu.Unlock()
			apply(ids)
		}()
	}

	collect(KindArtist, func(ids []string) {
		for _, id := range ids {
			if a, err := catalog.FindArtist(id); err == nil {
				results.Artists = append(results.Artists, a)
			}
		}
	})
	collect(KindAlbum, func(ids []string) {
		for _, id := range ids {
			if a, err := catalog.FindAlbum(id); err == nil {
				results.Albums = append(results.Albums, a)
			}
		}
	})
	collect(KindTrack, func(ids []string) {
		for _, id := range ids {
			if t, err := catalog.FindTrack(id); err == nil {
				results.Tracks = append(results.Tracks, t)
			}
		}
	})
	collect(KindFile, func(ids []string) {
		for _, id := range ids {
			info, err := os.Stat(id)
			if err != nil {
				continue // tombstoned path
			}
			attr := 0
			if info.IsDir() {
				attr = models.AttrDirectory
			}
			results.Entries = append(results.Entries, models.TreeEntry{
				Name:      id,
				TimeWrite: info.ModTime().Unix(),
				Attr:      attr,
			})
		}
	})
	collect(KindLikedTrack, func(ids []string) {
		for _, id := range ids {
			if t, err := catalog.FindTrack(id); err == nil {
				results.LikedTracks = append(results.LikedTracks, t)
			}
		}
	})
	collect(KindLikedAlbum, func(ids []string) {
		for _, id := range ids {
			if a, err := catalog.FindAlbum(id); err == nil {
				results.LikedAlbums = append(results.LikedAlbums, a)
			}
		}
	})

	wg.Wait()
	return results
}

// Rebuilder is the slice of the library store the rebuild needs.
type Rebuilder interface {
	Catalog
	AllArtists() ([]models.Artist, error)
	AllAlbums() ([]models.Album, error)
	AllTracks() ([]models.Track, error)
	FavouriteTracks() ([]models.Track, error)
	FavouriteAlbums() ([]models.Album, error)
}

// Rebuild drops index entries the catalog no longer knows and re-indexes
// everything it does. Out-of-band database edits can make the index drift;
// rescan calls this to converge. File entries track the browse cache rather
// than the catalog and are left alone.
func (i *Index) Rebuild(store Rebuilder) error {
	artists, err := store.AllArtists()
	if err != nil {
		return err
	}
	keep := make(map[string]bool, len(artists))
	for _, a := range artists {
		keep[a.ID] = true
		if err := i.IndexArtist(a); err != nil {
			return err
		}
	}
	if err := i.purge(KindArtist, keep); err != nil {
		return err
	}

	albums, err := store.AllAlbums()
	if err != nil {
		return err
	}
	keep = make(map[string]bool, len(albums))
	for _, a := range albums {
		keep[a.ID] = true
		if err := i.IndexAlbum(a); err != nil {
			return err
		}
	}
	if err := i.purge(KindAlbum, keep); err != nil {
		return err
	}

	tracks, err := store.AllTracks()
	if err != nil {
		return err
	}
	keep = make(map[string]bool, len(tracks))
	for _, t := range tracks {
		keep[t.ID] = true
		if err := i.IndexTrack(t); err != nil {
			return err
		}
	}
	if err := i.purge(KindTrack, keep); err != nil {
		return err
	}

	liked, err := store.FavouriteTracks()
	if err != nil {
		return err
	}
	keep = make(map[string]bool, len(liked))
	for _, t := range liked {
		keep[t.ID] = true
		if err := i.IndexLikedTrack(t); err != nil {
			return err
		}
	}
	if err := i.purge(KindLikedTrack, keep); err != nil {
		return err
	}

	likedAlbums, err := store.FavouriteAlbums()
	if err != nil {
		return err
	}
	keep = make(map[string]bool, len(likedAlbums))
	for _, a := range likedAlbums {
		keep[a.ID] = true
		if err := i.IndexLikedAlbum(a); err != nil {
			return err
		}
	}
	return i.purge(KindLikedAlbum, keep)
}

// purge deletes every document in kind whose id is not in keep.
func (i *Index) purge(kind Kind, keep map[string]bool) error {
	i.mu.RLock()
	b, ok := i.indexes[kind]
	i.mu.RUnlock()
	if !ok {
		return nil
	}

	count, err := b.DocCount()
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}
	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(count)
	res, err := b.Search(req)
	if err != nil {
		return err
	}
	for _, hit := range res.Hits {
		if keep[hit.ID] {
			continue
		}
		if err := i.delete(kind, hit.ID); err != nil {
			return err
		}
	}
	return nil
}
