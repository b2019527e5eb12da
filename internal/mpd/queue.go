package mpd

import (
	"math/rand"
	"path/filepath"
	"strconv"
	"strings"

	"rockboxd/pkg/errs"
	"rockboxd/pkg/models"
)

// resolveURI maps an MPD URI (library-relative or absolute path) to a
// library track.
func (c *conn) resolveURI(uri string) (models.Track, error) {
	path := uri
	if !filepath.IsAbs(path) {
		path = filepath.Join(c.srv.config.Library.Path, uri)
	}
	track, err := c.srv.store.FindTrackByPath(path)
	if err != nil {
		return models.Track{}, errs.New(errs.NotFound, "no such song %q", uri)
	}
	return track, nil
}

func cmdPlaylistInfo(c *conn, args []string) error {
	tracks, _, err := c.srv.session.Tracklist()
	if err != nil {
		return err
	}
	if len(args) > 0 {
		// Single position or START:END range.
		start, end := 0, len(tracks)
		if strings.Contains(args[0], ":") {
			parts := strings.SplitN(args[0], ":", 2)
			if start, err = strconv.Atoi(parts[0]); err != nil {
				return errs.New(errs.InvalidArgument, "invalid range %q", args[0])
			}
			if end, err = strconv.Atoi(parts[1]); err != nil {
				return errs.New(errs.InvalidArgument, "invalid range %q", args[0])
			}
		} else {
			if start, err = strconv.Atoi(args[0]); err != nil {
				return errs.New(errs.InvalidArgument, "invalid position %q", args[0])
			}
			end = start + 1
		}
		if start < 0 || start >= len(tracks) || end > len(tracks) || start > end {
			return errs.New(errs.InvalidArgument, "bad song index")
		}
		tracks = tracks[start:end]
		for i, t := range tracks {
			c.writeTrack(t, start+i)
		}
		return nil
	}
	for i, t := range tracks {
		c.writeTrack(t, i)
	}
	return nil
}

func cmdPlaylistID(c *conn, args []string) error {
	if len(args) == 0 {
		return cmdPlaylistInfo(c, nil)
	}
	return cmdPlaylistInfo(c, args[:1])
}

// cmdPlChanges reports the whole queue; fine-grained version deltas are not
// tracked, and clients resynchronize from a full listing.
func cmdPlChanges(c *conn, args []string) error {
	if len(args) == 0 {
		return errs.New(errs.InvalidArgument, "missing version")
	}
	if _, err := strconv.Atoi(args[0]); err != nil {
		return errs.New(errs.InvalidArgument, "invalid version %q", args[0])
	}
	return cmdPlaylistInfo(c, nil)
}

func cmdAdd(c *conn, args []string) error {
	if len(args) == 0 {
		return errs.New(errs.InvalidArgument, "missing uri")
	}
	track, err := c.resolveURI(args[0])
	if err != nil {
		return err
	}
	return c.srv.session.Append(track)
}

func cmdAddID(c *conn, args []string) error {
	if len(args) == 0 {
		return errs.New(errs.InvalidArgument, "missing uri")
	}
	track, err := c.resolveURI(args[0])
	if err != nil {
		return err
	}
	if err := c.srv.session.Append(track); err != nil {
		return err
	}
	tracks, _, err := c.srv.session.Tracklist()
	if err != nil {
		return err
	}
	c.printf("Id: %d", len(tracks)-1)
	return nil
}

func cmdDelete(c *conn, args []string) error {
	pos, err := argInt(args, 0, "position")
	if err != nil {
		return err
	}
	return c.srv.session.RemoveTrackAt(pos)
}

// cmdMove reorders the queue by reloading the permuted tracklist.
func cmdMove(c *conn, args []string) error {
	from, err := argInt(args, 0, "from")
	if err != nil {
		return err
	}
	to, err := argInt(args, 1, "to")
	if err != nil {
		return err
	}
	tracks, index, err := c.srv.session.Tracklist()
	if err != nil {
		return err
	}
	if from < 0 || from >= len(tracks) || to < 0 || to >= len(tracks) {
		return errs.New(errs.InvalidArgument, "bad song index")
	}
	if from == to {
		return nil
	}
	moved := tracks[from]
	rest := append(append([]models.Track{}, tracks[:from]...), tracks[from+1:]...)
	result := append(append(append([]models.Track{}, rest[:to]...), moved), rest[to:]...)

	switch {
	case index == from:
		index = to
	case from < index && to >= index:
		index--
	case from > index && to <= index:
		index++
	}
	if index < 0 {
		index = 0
	}
	return c.srv.session.LoadTracks(result, index)
}

func cmdShuffle(c *conn, _ []string) error {
	tracks, index, err := c.srv.session.Tracklist()
	if err != nil {
		return err
	}
	if len(tracks) < 2 {
		return nil
	}
	var current *models.Track
	if index >= 0 && index < len(tracks) {
		t := tracks[index]
		current = &t
	}
	shuffled := append([]models.Track(nil), tracks...)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	start := 0
	if current != nil {
		for i, t := range shuffled {
			if t.ID == current.ID {
				start = i
				break
			}
		}
	}
	return c.srv.session.LoadTracks(shuffled, start)
}

func cmdClear(c *conn, _ []string) error {
	return c.srv.session.ClearTracklist()
}
