package mpd

import (
	"sort"
	"strconv"

	"rockboxd/pkg/errs"
	"rockboxd/pkg/models"
)

// Outputs map onto playback targets: output 0 is the local engine, outputs
// 1..n are the discovered cast devices in registry order. Enabling a device
// output connects it; disabling restores the engine.

func (c *conn) outputDevices() []models.Device {
	return c.srv.registry.All()
}

func cmdOutputs(c *conn, _ []string) error {
	current, onDevice := c.srv.registry.Current()

	c.printf("outputid: 0")
	c.printf("outputname: %s", "Rockbox engine")
	c.printf("plugin: engine")
	c.printf("outputenabled: %d", boolInt(!onDevice))

	for i, d := range c.outputDevices() {
		c.printf("outputid: %d", i+1)
		c.printf("outputname: %s", d.Name)
		c.printf("plugin: cast")
		enabled := onDevice && d.ID == current.ID
		c.printf("outputenabled: %d", boolInt(enabled))
	}
	return nil
}

func (c *conn) outputByID(args []string) (int, []models.Device, error) {
	id, err := argInt(args, 0, "output id")
	if err != nil {
		return 0, nil, err
	}
	devs := c.outputDevices()
	if id < 0 || id > len(devs) {
		return 0, nil, errs.New(errs.NotFound, "no such audio output %d", id)
	}
	return id, devs, nil
}

func cmdEnableOutput(c *conn, args []string) error {
	id, devs, err := c.outputByID(args)
	if err != nil {
		return err
	}
	if id == 0 {
		return c.srv.session.Disconnect()
	}
	return c.srv.session.Connect(devs[id-1].ID)
}

func cmdDisableOutput(c *conn, args []string) error {
	id, devs, err := c.outputByID(args)
	if err != nil {
		return err
	}
	if id == 0 {
		// The engine output cannot be disabled without a cast target.
		return nil
	}
	if current, ok := c.srv.registry.Current(); ok && current.ID == devs[id-1].ID {
		return c.srv.session.Disconnect()
	}
	return nil
}

func cmdToggleOutput(c *conn, args []string) error {
	id, devs, err := c.outputByID(args)
	if err != nil {
		return err
	}
	current, onDevice := c.srv.registry.Current()
	if id == 0 {
		if onDevice {
			return c.srv.session.Disconnect()
		}
		return nil
	}
	if onDevice && current.ID == devs[id-1].ID {
		return c.srv.session.Disconnect()
	}
	return c.srv.session.Connect(devs[id-1].ID)
}

// decoderPlugins mirrors the engine's codec set.
var decoderPlugins = []struct {
	name     string
	suffixes []string
	mime     []string
}{
	{"mpg123", []string{"mp3", "mp2"}, []string{"audio/mpeg"}},
	{"flac", []string{"flac"}, []string{"audio/flac", "audio/x-flac"}},
	{"vorbis", []string{"ogg", "oga"}, []string{"audio/ogg", "application/ogg"}},
	{"opus", []string{"opus"}, []string{"audio/opus"}},
	{"faad", []string{"aac", "m4a", "mp4"}, []string{"audio/aac", "audio/mp4"}},
	{"pcm", []string{"wav", "aiff", "aif"}, []string{"audio/wav", "audio/x-wav", "audio/aiff"}},
	{"wavpack", []string{"wv"}, []string{"audio/x-wavpack"}},
	{"mpc", []string{"mpc"}, []string{"audio/x-musepack"}},
}

func cmdDecoders(c *conn, _ []string) error {
	for _, p := range decoderPlugins {
		c.printf("plugin: %s", p.name)
		for _, s := range p.suffixes {
			c.printf("suffix: %s", s)
		}
		for _, m := range p.mime {
			c.printf("mime_type: %s", m)
		}
	}
	return nil
}

func cmdCommands(c *conn, _ []string) error {
	names := make([]string, 0, len(commands)+6)
	for name := range commands {
		names = append(names, name)
	}
	names = append(names, "idle", "noidle", "close", "kill",
		"command_list_begin", "command_list_ok_begin", "command_list_end")
	sort.Strings(names)
	for _, name := range names {
		c.printf("command: %s", name)
	}
	return nil
}

func cmdNotCommands(c *conn, _ []string) error {
	// Everything registered is allowed once authenticated.
	if c.authed || !c.srv.requiresAuth() {
		return nil
	}
	names := make([]string, 0, len(commands))
	for name := range commands {
		if !openCommands[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		c.printf("command: %s", name)
	}
	return nil
}

var tagTypes = []string{
	"Artist", "ArtistSort", "Album", "AlbumSort", "AlbumArtist",
	"AlbumArtistSort", "Title", "Track", "Name", "Genre", "Date",
	"Composer", "Performer", "Disc",
}

func cmdTagTypes(c *conn, _ []string) error {
	for _, t := range tagTypes {
		c.printf("tagtype: %s", t)
	}
	return nil
}

func cmdURLHandlers(c *conn, _ []string) error {
	for _, h := range []string{"http://", "https://", "file://"} {
		c.printf("handler: %s", h)
	}
	return nil
}

// cmdBinaryLimit accepts the client's preferred chunk size. The value is
// validated but otherwise unused; no command here streams binary data yet.
func cmdBinaryLimit(c *conn, args []string) error {
	if len(args) == 0 {
		return errs.New(errs.InvalidArgument, "missing size")
	}
	size, err := strconv.Atoi(args[0])
	if err != nil || size < 64 {
		return errs.New(errs.InvalidArgument, "invalid binary limit %q", args[0])
	}
	return nil
}
