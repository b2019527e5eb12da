package mpd

import (
	"rockboxd/internal/events"
	"rockboxd/pkg/errs"
	"rockboxd/pkg/models"
)

func (c *conn) findPlaylistByName(name string) (models.Playlist, error) {
	if name == "" {
		return models.Playlist{}, errs.New(errs.InvalidArgument, "missing playlist name")
	}
	return c.srv.store.FindPlaylistByName(name)
}

// cmdLoad appends a stored playlist to the queue.
func cmdLoad(c *conn, args []string) error {
	if len(args) == 0 {
		return errs.New(errs.InvalidArgument, "missing playlist name")
	}
	playlist, err := c.findPlaylistByName(args[0])
	if err != nil {
		return err
	}
	tracks, err := c.srv.store.PlaylistTracks(playlist.ID)
	if err != nil {
		return err
	}
	for _, t := range tracks {
		if err := c.srv.session.Append(t); err != nil {
			return err
		}
	}
	return nil
}

// cmdSave stores the current queue as a named playlist.
func cmdSave(c *conn, args []string) error {
	if len(args) == 0 {
		return errs.New(errs.InvalidArgument, "missing playlist name")
	}
	tracks, _, err := c.srv.session.Tracklist()
	if err != nil {
		return err
	}
	ids := make([]string, len(tracks))
	for i, t := range tracks {
		ids[i] = t.ID
	}
	if _, err = c.srv.store.CreatePlaylist(args[0], "", "", ids); err != nil {
		return err
	}
	c.srv.bus.Changed(events.StoredPlaylist)
	return nil
}

func cmdRename(c *conn, args []string) error {
	if len(args) < 2 {
		return errs.New(errs.InvalidArgument, "missing playlist name")
	}
	playlist, err := c.findPlaylistByName(args[0])
	if err != nil {
		return err
	}
	if err := c.srv.store.RenamePlaylist(playlist.ID, args[1]); err != nil {
		return err
	}
	c.srv.bus.Changed(events.StoredPlaylist)
	return nil
}

func cmdRm(c *conn, args []string) error {
	if len(args) == 0 {
		return errs.New(errs.InvalidArgument, "missing playlist name")
	}
	playlist, err := c.findPlaylistByName(args[0])
	if err != nil {
		return err
	}
	if err := c.srv.store.DeletePlaylist(playlist.ID); err != nil {
		return err
	}
	c.srv.bus.Changed(events.StoredPlaylist)
	return nil
}

func (c *conn) playlistTracksByName(name string) ([]models.Track, error) {
	playlist, err := c.findPlaylistByName(name)
	if err != nil {
		return nil, err
	}
	return c.srv.store.PlaylistTracks(playlist.ID)
}

func cmdListPlaylist(c *conn, args []string) error {
	if len(args) == 0 {
		return errs.New(errs.InvalidArgument, "missing playlist name")
	}
	tracks, err := c.playlistTracksByName(args[0])
	if err != nil {
		return err
	}
	for _, t := range tracks {
		c.printf("file: %s", t.Path)
	}
	return nil
}

func cmdListPlaylistInfo(c *conn, args []string) error {
	if len(args) == 0 {
		return errs.New(errs.InvalidArgument, "missing playlist name")
	}
	tracks, err := c.playlistTracksByName(args[0])
	if err != nil {
		return err
	}
	for _, t := range tracks {
		c.writeTrack(t, -1)
	}
	return nil
}

func cmdListPlaylists(c *conn, _ []string) error {
	playlists, err := c.srv.store.AllPlaylists()
	if err != nil {
		return err
	}
	for _, p := range playlists {
		c.printf("playlist: %s", p.Name)
		c.printf("Last-Modified: %s", p.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"))
	}
	return nil
}

func cmdPlaylistAdd(c *conn, args []string) error {
	if len(args) < 2 {
		return errs.New(errs.InvalidArgument, "missing arguments")
	}
	playlist, err := c.findPlaylistByName(args[0])
	if err != nil {
		return err
	}
	track, err := c.resolveURI(args[1])
	if err != nil {
		return err
	}
	if err := c.srv.store.InsertPlaylistTracks(playlist.ID, []string{track.ID}, -1); err != nil {
		return err
	}
	c.srv.bus.Changed(events.StoredPlaylist)
	return nil
}

func cmdPlaylistClear(c *conn, args []string) error {
	if len(args) == 0 {
		return errs.New(errs.InvalidArgument, "missing playlist name")
	}
	playlist, err := c.findPlaylistByName(args[0])
	if err != nil {
		return err
	}
	if err := c.srv.store.ClearPlaylist(playlist.ID); err != nil {
		return err
	}
	c.srv.bus.Changed(events.StoredPlaylist)
	return nil
}

func cmdPlaylistDelete(c *conn, args []string) error {
	if len(args) < 2 {
		return errs.New(errs.InvalidArgument, "missing arguments")
	}
	playlist, err := c.findPlaylistByName(args[0])
	if err != nil {
		return err
	}
	pos, err := argInt(args, 1, "position")
	if err != nil {
		return err
	}
	if err := c.srv.store.RemovePlaylistTrackAt(playlist.ID, pos); err != nil {
		return err
	}
	c.srv.bus.Changed(events.StoredPlaylist)
	return nil
}

func cmdPlaylistMove(c *conn, args []string) error {
	if len(args) < 3 {
		return errs.New(errs.InvalidArgument, "missing arguments")
	}
	playlist, err := c.findPlaylistByName(args[0])
	if err != nil {
		return err
	}
	from, err := argInt(args, 1, "from")
	if err != nil {
		return err
	}
	to, err := argInt(args, 2, "to")
	if err != nil {
		return err
	}
	if err := c.srv.store.MovePlaylistTrack(playlist.ID, from, to); err != nil {
		return err
	}
	c.srv.bus.Changed(events.StoredPlaylist)
	return nil
}
