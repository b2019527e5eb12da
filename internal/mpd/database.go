package mpd

import (
	"sort"
	"strconv"
	"strings"

	"rockboxd/pkg/errs"
	"rockboxd/pkg/models"
)

// tagValue extracts the value a find/search tag refers to.
func tagValue(t models.Track, tag string) (string, bool) {
	switch strings.ToLower(tag) {
	case "artist":
		return t.ArtistName, true
	case "albumartist":
		return t.AlbumArtist, true
	case "album":
		return t.AlbumTitle, true
	case "title":
		return t.Title, true
	case "genre":
		return t.Genre, true
	case "composer":
		return t.Composer, true
	case "date":
		return strconv.Itoa(t.Year), true
	case "track":
		return strconv.Itoa(t.TrackNumber), true
	case "file", "filename":
		return t.Path, true
	default:
		return "", false
	}
}

// tagLabel renders a tag name in the canonical response capitalization.
func tagLabel(tag string) string {
	switch strings.ToLower(tag) {
	case "albumartist":
		return "AlbumArtist"
	case "file", "filename":
		return "File"
	default:
		if tag == "" {
			return tag
		}
		lower := strings.ToLower(tag)
		return strings.ToUpper(lower[:1]) + lower[1:]
	}
}

// matchTracks filters the library by tag/value pairs. exact selects find
// semantics; otherwise case-insensitive substring match (search).
func (c *conn) matchTracks(args []string, exact bool) ([]models.Track, error) {
	if len(args) < 2 || len(args)%2 != 0 {
		return nil, errs.New(errs.InvalidArgument, "expected tag/value pairs")
	}
	tracks, err := c.srv.store.AllTracks()
	if err != nil {
		return nil, err
	}

	var out []models.Track
	for _, t := range tracks {
		matched := true
		for i := 0; i < len(args); i += 2 {
			tag, want := args[i], args[i+1]
			var got string
			if strings.EqualFold(tag, "any") {
				got = strings.Join([]string{t.Title, t.ArtistName, t.AlbumTitle, t.Genre, t.Path}, "\n")
			} else {
				var known bool
				got, known = tagValue(t, tag)
				if !known {
					return nil, errs.New(errs.InvalidArgument, "unknown tag %q", tag)
				}
			}
			if exact {
				if got != want {
					matched = false
				}
			} else if !strings.Contains(strings.ToLower(got), strings.ToLower(want)) {
				matched = false
			}
			if !matched {
				break
			}
		}
		if matched {
			out = append(out, t)
		}
	}
	return out, nil
}

func cmdFind(c *conn, args []string) error {
	tracks, err := c.matchTracks(args, true)
	if err != nil {
		return err
	}
	for _, t := range tracks {
		c.writeTrack(t, -1)
	}
	return nil
}

func cmdSearch(c *conn, args []string) error {
	tracks, err := c.matchTracks(args, false)
	if err != nil {
		return err
	}
	for _, t := range tracks {
		c.writeTrack(t, -1)
	}
	return nil
}

func cmdCount(c *conn, args []string) error {
	tracks, err := c.matchTracks(args, true)
	if err != nil {
		return err
	}
	var totalMs int64
	for _, t := range tracks {
		totalMs += t.LengthMs
	}
	c.printf("songs: %d", len(tracks))
	c.printf("playtime: %d", totalMs/1000)
	return nil
}

// cmdList prints the distinct values of one tag, optionally filtered.
func cmdList(c *conn, args []string) error {
	if len(args) == 0 {
		return errs.New(errs.InvalidArgument, "missing tag")
	}
	tag := args[0]
	var tracks []models.Track
	var err error
	if len(args) > 1 {
		tracks, err = c.matchTracks(args[1:], true)
	} else {
		tracks, err = c.srv.store.AllTracks()
	}
	if err != nil {
		return err
	}

	seen := make(map[string]bool)
	var values []string
	for _, t := range tracks {
		v, known := tagValue(t, tag)
		if !known {
			return errs.New(errs.InvalidArgument, "unknown tag %q", tag)
		}
		if v != "" && !seen[v] {
			seen[v] = true
			values = append(values, v)
		}
	}
	sort.Strings(values)
	label := tagLabel(tag)
	for _, v := range values {
		c.printf("%s: %s", label, v)
	}
	return nil
}

// browsePath maps an MPD URI (relative to the library root) to an absolute
// directory path.
func (c *conn) browsePath(args []string) string {
	root := c.srv.config.Library.Path
	if len(args) == 0 || args[0] == "" || args[0] == "/" {
		return root
	}
	uri := args[0]
	if strings.HasPrefix(uri, "/") {
		return uri
	}
	return root + "/" + uri
}

// relURI renders a path relative to the library root, the form clients
// address songs with.
func (c *conn) relURI(path string) string {
	root := strings.TrimSuffix(c.srv.config.Library.Path, "/")
	if strings.HasPrefix(path, root+"/") {
		return strings.TrimPrefix(path, root+"/")
	}
	return path
}

func cmdLsInfo(c *conn, args []string) error {
	entries, err := c.srv.cache.Read(c.browsePath(args))
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDirectory() {
			c.printf("directory: %s", c.relURI(e.Name))
			continue
		}
		if track, err := c.srv.store.FindTrackByPath(e.Name); err == nil {
			c.writeTrack(track, -1)
		} else {
			c.printf("file: %s", c.relURI(e.Name))
		}
	}
	return nil
}

// walkEntries recursively lists the tree via the browse cache.
func (c *conn) walkEntries(dir string, visit func(models.TreeEntry) error) error {
	entries, err := c.srv.cache.Read(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := visit(e); err != nil {
			return err
		}
		if e.IsDirectory() {
			if err := c.walkEntries(e.Name, visit); err != nil {
				return err
			}
		}
	}
	return nil
}

func cmdListAll(c *conn, args []string) error {
	return c.walkEntries(c.browsePath(args), func(e models.TreeEntry) error {
		if e.IsDirectory() {
			c.printf("directory: %s", c.relURI(e.Name))
		} else {
			c.printf("file: %s", c.relURI(e.Name))
		}
		return nil
	})
}

func cmdListAllInfo(c *conn, args []string) error {
	return c.walkEntries(c.browsePath(args), func(e models.TreeEntry) error {
		if e.IsDirectory() {
			c.printf("directory: %s", c.relURI(e.Name))
			return nil
		}
		if track, err := c.srv.store.FindTrackByPath(e.Name); err == nil {
			c.writeTrack(track, -1)
		} else {
			c.printf("file: %s", c.relURI(e.Name))
		}
		return nil
	})
}

// cmdUpdate triggers a background rescan and reports the job id.
func cmdUpdate(c *conn, _ []string) error {
	if c.srv.ingestor == nil {
		return errs.New(errs.Unavailable, "library scanning is disabled")
	}
	id := c.srv.nextUpdateID()
	root := c.srv.config.Library.Path
	go func() {
		if _, err := c.srv.ingestor.Scan(root); err != nil {
			c.srv.logger.WithError(err).Error("Library update failed")
		}
	}()
	c.printf("updating_db: %d", id)
	return nil
}

// cmdRescan is update plus a full index rebuild, which also drops entries
// for tracks the database no longer has.
func cmdRescan(c *conn, _ []string) error {
	if c.srv.ingestor == nil {
		return errs.New(errs.Unavailable, "library scanning is disabled")
	}
	id := c.srv.nextUpdateID()
	root := c.srv.config.Library.Path
	go func() {
		if _, err := c.srv.ingestor.Scan(root); err != nil {
			c.srv.logger.WithError(err).Error("Library rescan failed")
			return
		}
		if err := c.srv.index.Rebuild(c.srv.store); err != nil {
			c.srv.logger.WithError(err).Error("Index rebuild after rescan failed")
		}
	}()
	c.printf("updating_db: %d", id)
	return nil
}

func cmdStats(c *conn, _ []string) error {
	stats, err := c.srv.store.Stats()
	if err != nil {
		return err
	}
	c.printf("artists: %d", stats.Artists)
	c.printf("albums: %d", stats.Albums)
	c.printf("songs: %d", stats.Tracks)
	c.printf("db_playtime: %d", stats.TotalLength)
	return nil
}
