package mpd

import (
	"strconv"
	"strings"

	"rockboxd/internal/events"

	"rockboxd/internal/settings"
	"rockboxd/pkg/errs"
	"rockboxd/pkg/models"
)

// handler executes one command. Response lines go to the connection; the
// trailing OK/ACK frame is written by the caller.
type handler func(*conn, []string) error

// commands is the full dispatch table. The control-flow commands (idle,
// noidle, close, kill, command lists) are intercepted before dispatch.
var commands map[string]handler

// openCommands may run before a successful password on a protected daemon.
var openCommands = map[string]bool{
	"password":    true,
	"ping":        true,
	"commands":    true,
	"notcommands": true,
}

func init() {
	commands = map[string]handler{
		// transport
		"status":      cmdStatus,
		"currentsong": cmdCurrentSong,
		"play":        cmdPlay,
		"pause":       cmdPause,
		"stop":        cmdStop,
		"next":        cmdNext,
		"previous":    cmdPrevious,
		"seek":        cmdSeek,
		"seekid":      cmdSeek,
		"seekcur":     cmdSeekCur,

		// mixer
		"setvol": cmdSetVol,
		"getvol": cmdGetVol,
		"volume": cmdVolume,

		// options
		"consume":   cmdConsume,
		"random":    cmdRandom,
		"repeat":    cmdRepeat,
		"single":    cmdSingle,
		"crossfade": cmdCrossfade,

		// queue
		"playlistinfo": cmdPlaylistInfo,
		"playlistid":   cmdPlaylistID,
		"plchanges":    cmdPlChanges,
		"add":          cmdAdd,
		"addid":        cmdAddID,
		"delete":       cmdDelete,
		"deleteid":     cmdDelete,
		"move":         cmdMove,
		"moveid":       cmdMove,
		"shuffle":      cmdShuffle,
		"clear":        cmdClear,

		// stored playlists
		"load":             cmdLoad,
		"save":             cmdSave,
		"rename":           cmdRename,
		"rm":               cmdRm,
		"listplaylist":     cmdListPlaylist,
		"listplaylistinfo": cmdListPlaylistInfo,
		"listplaylists":    cmdListPlaylists,
		"playlistadd":      cmdPlaylistAdd,
		"playlistclear":    cmdPlaylistClear,
		"playlistdelete":   cmdPlaylistDelete,
		"playlistmove":     cmdPlaylistMove,

		// database
		"lsinfo":      cmdLsInfo,
		"listall":     cmdListAll,
		"listallinfo": cmdListAllInfo,
		"find":        cmdFind,
		"search":      cmdSearch,
		"count":       cmdCount,
		"list":        cmdList,
		"update":      cmdUpdate,
		"rescan":      cmdRescan,
		"stats":       cmdStats,

		// outputs
		"outputs":       cmdOutputs,
		"enableoutput":  cmdEnableOutput,
		"disableoutput": cmdDisableOutput,
		"toggleoutput":  cmdToggleOutput,

		// static responders
		"decoders":    cmdDecoders,
		"commands":    cmdCommands,
		"notcommands": cmdNotCommands,
		"tagtypes":    cmdTagTypes,
		"urlhandlers": cmdURLHandlers,
		"binarylimit": cmdBinaryLimit,

		// session
		"password": cmdPassword,
		"ping":     cmdPing,
	}
}

func argInt(args []string, i int, name string) (int, error) {
	if i >= len(args) {
		return 0, errs.New(errs.InvalidArgument, "missing argument %s", name)
	}
	v, err := strconv.Atoi(args[i])
	if err != nil {
		return 0, errs.New(errs.InvalidArgument, "invalid %s %q", name, args[i])
	}
	return v, nil
}

func argBool(args []string, i int, name string) (bool, error) {
	v, err := argInt(args, i, name)
	if err != nil {
		return false, err
	}
	if v != 0 && v != 1 {
		return false, errs.New(errs.InvalidArgument, "%s must be 0 or 1", name)
	}
	return v == 1, nil
}

// writeTrack prints the standard song block for a queue or listing entry.
// pos < 0 omits the queue position lines.
func (c *conn) writeTrack(t models.Track, pos int) {
	c.printf("file: %s", t.Path)
	if t.Title != "" {
		c.printf("Title: %s", t.Title)
	}
	if t.ArtistName != "" {
		c.printf("Artist: %s", t.ArtistName)
	}
	if t.AlbumTitle != "" {
		c.printf("Album: %s", t.AlbumTitle)
	}
	if t.AlbumArtist != "" {
		c.printf("AlbumArtist: %s", t.AlbumArtist)
	}
	if t.Genre != "" {
		c.printf("Genre: %s", t.Genre)
	}
	if t.TrackNumber > 0 {
		c.printf("Track: %d", t.TrackNumber)
	}
	if t.DiscNumber > 0 {
		c.printf("Disc: %d", t.DiscNumber)
	}
	if t.Year > 0 {
		c.printf("Date: %d", t.Year)
	}
	if t.LengthMs > 0 {
		c.printf("Time: %d", t.LengthMs/1000)
		c.printf("duration: %.3f", float64(t.LengthMs)/1000)
	}
	if pos >= 0 {
		c.printf("Pos: %d", pos)
		c.printf("Id: %d", pos)
	}
}

func cmdStatus(c *conn, _ []string) error {
	status, err := c.srv.session.Status()
	if err != nil {
		return err
	}
	us, err := c.srv.settings.Load()
	if err != nil {
		us = settings.DefaultSettings()
	}
	tracks, _, err := c.srv.session.Tracklist()
	if err != nil {
		return err
	}

	c.srv.opts.mu.Lock()
	consume, single := c.srv.opts.consume, c.srv.opts.single
	c.srv.opts.mu.Unlock()

	c.printf("volume: %d", status.Volume)
	c.printf("repeat: %d", boolInt(us.Repeat != 0))
	c.printf("random: %d", boolInt(us.Shuffle))
	c.printf("single: %d", boolInt(single))
	c.printf("consume: %d", boolInt(consume))
	c.printf("playlist: %d", c.srv.queueVersion())
	c.printf("playlistlength: %d", len(tracks))
	c.printf("state: %s", mpdState(status.State))
	if us.Crossfade > 0 {
		c.printf("xfade: %d", us.Crossfade)
	}
	if status.Track != nil {
		c.printf("song: %d", status.Index)
		c.printf("songid: %d", status.Index)
		elapsed := float64(status.ElapsedMs) / 1000
		c.printf("elapsed: %.3f", elapsed)
		if status.Track.LengthMs > 0 {
			c.printf("time: %d:%d", status.ElapsedMs/1000, status.Track.LengthMs/1000)
			c.printf("duration: %.3f", float64(status.Track.LengthMs)/1000)
		}
		if status.Track.Bitrate > 0 {
			c.printf("bitrate: %d", status.Track.Bitrate)
		}
		if status.Track.Frequency > 0 {
			c.printf("audio: %d:16:2", status.Track.Frequency)
		}
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func mpdState(s models.PlaybackState) string {
	switch s {
	case models.StatePlaying:
		return "play"
	case models.StatePaused:
		return "pause"
	default:
		return "stop"
	}
}

func cmdCurrentSong(c *conn, _ []string) error {
	status, err := c.srv.session.Status()
	if err != nil {
		return err
	}
	if status.Track != nil {
		c.writeTrack(*status.Track, status.Index)
	}
	return nil
}

func cmdPlay(c *conn, args []string) error {
	if len(args) > 0 {
		pos, err := argInt(args, 0, "position")
		if err != nil {
			return err
		}
		return c.srv.session.PlayTrackAt(pos)
	}
	status, err := c.srv.session.Status()
	if err != nil {
		return err
	}
	if status.State == models.StatePaused {
		return c.srv.session.Resume()
	}
	return c.srv.session.Play()
}

func cmdPause(c *conn, args []string) error {
	// "pause 0" resumes, "pause 1" or bare "pause" pauses.
	if len(args) > 0 {
		on, err := argBool(args, 0, "pause")
		if err != nil {
			return err
		}
		if !on {
			return c.srv.session.Resume()
		}
	}
	return c.srv.session.Pause()
}

func cmdStop(c *conn, _ []string) error     { return c.srv.session.Stop() }
func cmdNext(c *conn, _ []string) error     { return c.srv.session.Next() }
func cmdPrevious(c *conn, _ []string) error { return c.srv.session.Previous() }

// cmdSeek jumps to a song position and seeks within it.
func cmdSeek(c *conn, args []string) error {
	pos, err := argInt(args, 0, "position")
	if err != nil {
		return err
	}
	seconds, err := argInt(args, 1, "time")
	if err != nil {
		return err
	}
	if err := c.srv.session.PlayTrackAt(pos); err != nil {
		return err
	}
	return c.srv.session.Seek(int64(seconds) * 1000)
}

// cmdSeekCur seeks within the current song. A +/- prefix seeks relative,
// otherwise the time is absolute.
func cmdSeekCur(c *conn, args []string) error {
	if len(args) == 0 {
		return errs.New(errs.InvalidArgument, "missing argument time")
	}
	raw := args[0]
	relative := strings.HasPrefix(raw, "+") || strings.HasPrefix(raw, "-")
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return errs.New(errs.InvalidArgument, "invalid time %q", raw)
	}
	deltaMs := int64(seconds * 1000)
	if !relative {
		status, err := c.srv.session.Status()
		if err != nil {
			return err
		}
		deltaMs -= status.ElapsedMs
	}
	return c.srv.session.Seek(deltaMs)
}

func cmdSetVol(c *conn, args []string) error {
	v, err := argInt(args, 0, "volume")
	if err != nil {
		return err
	}
	if v < 0 || v > 100 {
		return errs.New(errs.InvalidArgument, "volume %d out of range", v)
	}
	return c.srv.session.SetVolume(v)
}

func cmdGetVol(c *conn, _ []string) error {
	status, err := c.srv.session.Status()
	if err != nil {
		return err
	}
	c.printf("volume: %d", status.Volume)
	return nil
}

// cmdVolume adjusts the volume relatively (deprecated MPD command, still
// sent by older clients).
func cmdVolume(c *conn, args []string) error {
	delta, err := argInt(args, 0, "change")
	if err != nil {
		return err
	}
	status, err := c.srv.session.Status()
	if err != nil {
		return err
	}
	v := status.Volume + delta
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	return c.srv.session.SetVolume(v)
}

func cmdConsume(c *conn, args []string) error {
	on, err := argBool(args, 0, "state")
	if err != nil {
		return err
	}
	c.srv.opts.mu.Lock()
	c.srv.opts.consume = on
	c.srv.opts.mu.Unlock()
	c.srv.bus.Changed(events.Options)
	return nil
}

func cmdSingle(c *conn, args []string) error {
	// "single oneshot" behaves as enabled until the song ends.
	if len(args) > 0 && args[0] == "oneshot" {
		args = []string{"1"}
	}
	on, err := argBool(args, 0, "state")
	if err != nil {
		return err
	}
	c.srv.opts.mu.Lock()
	c.srv.opts.single = on
	c.srv.opts.mu.Unlock()
	c.srv.bus.Changed(events.Options)
	return nil
}

func cmdRandom(c *conn, args []string) error {
	on, err := argBool(args, 0, "state")
	if err != nil {
		return err
	}
	_, err = c.srv.settings.Update(settings.NewGlobalSettings{Shuffle: &on})
	if err != nil {
		return err
	}
	c.srv.bus.Changed(events.Options)
	return nil
}

func cmdRepeat(c *conn, args []string) error {
	on, err := argBool(args, 0, "state")
	if err != nil {
		return err
	}
	mode := 0
	if on {
		mode = 1
	}
	_, err = c.srv.settings.Update(settings.NewGlobalSettings{Repeat: &mode})
	if err != nil {
		return err
	}
	c.srv.bus.Changed(events.Options)
	return nil
}

func cmdCrossfade(c *conn, args []string) error {
	seconds, err := argInt(args, 0, "seconds")
	if err != nil {
		return err
	}
	if seconds < 0 {
		return errs.New(errs.InvalidArgument, "crossfade must not be negative")
	}
	_, err = c.srv.settings.Update(settings.NewGlobalSettings{Crossfade: &seconds})
	if err != nil {
		return err
	}
	c.srv.bus.Changed(events.Options)
	return nil
}

func cmdPassword(c *conn, args []string) error {
	if len(args) == 0 {
		return errs.New(errs.InvalidArgument, "missing password")
	}
	if err := c.srv.settings.CheckPassword(args[0]); err != nil {
		return errs.New(errs.PermissionDenied, "incorrect password")
	}
	c.authed = true
	return nil
}

func cmdPing(*conn, []string) error { return nil }
