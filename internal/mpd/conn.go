package mpd

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"

	"rockboxd/internal/events"
	"rockboxd/pkg/errs"
)

// conn is one MPD protocol connection. A single goroutine runs serve; a
// second goroutine owns the socket reads and feeds lines through a channel
// so idle waits can select between client input and bus events.
type conn struct {
	srv    *Server
	nc     net.Conn
	w      *bufio.Writer
	lines  chan string
	sub    *events.Subscriber
	authed bool

	// pending accumulates changed subsystems between idles.
	pending map[string]bool

	closeOnce sync.Once
}

func newConn(s *Server, nc net.Conn) *conn {
	return &conn{
		srv:     s,
		nc:      nc,
		w:       bufio.NewWriter(nc),
		lines:   make(chan string),
		sub:     s.bus.Subscribe(events.Topics...),
		pending: make(map[string]bool),
	}
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		c.sub.Close()
		c.nc.Close()
	})
}

// serve runs the connection state machine until the client disconnects.
func (c *conn) serve() {
	defer c.close()

	go c.readLoop()

	fmt.Fprintf(c.w, "OK MPD %s\n", ProtocolVersion)
	c.w.Flush()

	for {
		line, ok := <-c.lines
		if !ok {
			return
		}
		if !c.dispatchLine(line) {
			return
		}
	}
}

// readLoop feeds raw lines into c.lines; closing the socket ends it.
func (c *conn) readLoop() {
	scanner := bufio.NewScanner(c.nc)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		c.lines <- scanner.Text()
	}
	close(c.lines)
}

// dispatchLine handles one top-level line. Returns false when the
// connection should close.
func (c *conn) dispatchLine(line string) bool {
	name, args, err := parseCommand(line)
	if err != nil {
		c.writeACK(errs.AckUnknown, 0, "", err.Error())
		return true
	}
	if name == "" {
		return true
	}

	switch name {
	case "close":
		return false
	case "kill":
		c.writeOK()
		if c.srv.onKill != nil {
			go c.srv.onKill()
		}
		return false
	case "idle":
		return c.runIdle(args)
	case "noidle":
		// Not idling: protocol says just acknowledge.
		c.writeOK()
		return true
	case "command_list_begin":
		return c.runCommandList(false)
	case "command_list_ok_begin":
		return c.runCommandList(true)
	}

	if err := c.runCommand(name, args); err != nil {
		c.writeACK(errs.MPDAck(err), 0, name, err.Error())
		return true
	}
	c.writeOK()
	return true
}

// runIdle blocks until a subscribed subsystem changes or the client sends
// noidle. Non-noidle input cancels the idle and is then processed normally.
func (c *conn) runIdle(args []string) bool {
	want := make(map[string]bool)
	for _, a := range args {
		if !events.IsSubsystem(a) {
			c.writeACK(errs.AckArg, 0, "idle", fmt.Sprintf("unknown subsystem %q", a))
			return true
		}
		want[a] = true
	}
	matches := func(sub string) bool { return len(want) == 0 || want[sub] }

	c.drainEvents()
	for sub := range c.pending {
		if matches(sub) {
			c.flushIdle(matches)
			return true
		}
	}

	for {
		select {
		case ev, ok := <-c.sub.C:
			if !ok {
				return false
			}
			c.note(ev)
			if matches(string(ev.Topic)) {
				c.flushIdle(matches)
				return true
			}
		case line, ok := <-c.lines:
			if !ok {
				return false
			}
			name, _, _ := parseCommand(line)
			if name == "noidle" {
				c.flushIdle(matches)
				return true
			}
			// Any other command cancels the idle and runs.
			c.flushIdle(matches)
			return c.dispatchLine(line)
		}
	}
}

// flushIdle reports and clears the pending subsystems matching the filter.
func (c *conn) flushIdle(matches func(string) bool) {
	for sub := range c.pending {
		if matches(sub) {
			fmt.Fprintf(c.w, "changed: %s\n", sub)
			delete(c.pending, sub)
		}
	}
	c.writeOK()
}

// drainEvents folds queued bus events into the pending set without blocking.
func (c *conn) drainEvents() {
	for {
		select {
		case ev, ok := <-c.sub.C:
			if !ok {
				return
			}
			c.note(ev)
		default:
			return
		}
	}
}

// note records one event. A lagged marker means deliveries were dropped, so
// every subsystem is considered changed.
func (c *conn) note(ev events.Event) {
	if ev.Lagged {
		for _, t := range events.Topics {
			c.pending[string(t)] = true
		}
		return
	}
	c.pending[string(ev.Topic)] = true
}

// runCommandList buffers commands until command_list_end, then executes them
// in order, aborting at the first failure.
func (c *conn) runCommandList(okMode bool) bool {
	type queued struct {
		name string
		args []string
	}
	var batch []queued
	for {
		line, ok := <-c.lines
		if !ok {
			return false
		}
		name, args, err := parseCommand(line)
		if err != nil {
			c.writeACK(errs.AckUnknown, len(batch), "", err.Error())
			return true
		}
		if name == "command_list_end" {
			break
		}
		batch = append(batch, queued{name, args})
	}

	for i, cmd := range batch {
		if err := c.runCommand(cmd.name, cmd.args); err != nil {
			c.writeACK(errs.MPDAck(err), i, cmd.name, err.Error())
			return true
		}
		if okMode {
			fmt.Fprint(c.w, "list_OK\n")
		}
	}
	c.writeOK()
	return true
}

// runCommand executes one command, writing its response lines but not the
// trailing OK/ACK. Errors are returned for the caller to frame.
func (c *conn) runCommand(name string, args []string) error {
	handler, ok := commands[name]
	if !ok {
		return errs.New(errs.InvalidArgument, "unknown command %q", name)
	}
	if !c.authed && c.srv.requiresAuth() && !openCommands[name] {
		return errs.New(errs.PermissionDenied, "you don't have permission for %q", name)
	}
	return handler(c, args)
}

func (c *conn) writeOK() {
	fmt.Fprint(c.w, "OK\n")
	c.w.Flush()
}

func (c *conn) writeACK(code, index int, cmd, msg string) {
	fmt.Fprintf(c.w, "ACK [%d@%d] {%s} %s\n", code, index, cmd, msg)
	c.w.Flush()
}

// printf writes one response line.
func (c *conn) printf(format string, args ...interface{}) {
	fmt.Fprintf(c.w, format+"\n", args...)
}

// requiresAuth reports whether a password has been configured.
func (s *Server) requiresAuth() bool {
	// CheckPassword with an empty password succeeds only when no token file
	// exists.
	return s.settings.CheckPassword("") != nil
}

// parseCommand splits an MPD command line into the command name and its
// arguments, honoring double-quoted arguments with backslash escapes.
func parseCommand(line string) (string, []string, error) {
	fields, err := splitQuoted(line)
	if err != nil {
		return "", nil, err
	}
	if len(fields) == 0 {
		return "", nil, nil
	}
	return strings.ToLower(fields[0]), fields[1:], nil
}

func splitQuoted(line string) ([]string, error) {
	var fields []string
	var b strings.Builder
	inQuote := false
	escaped := false
	flushed := true

	flush := func() {
		if !flushed {
			fields = append(fields, b.String())
			b.Reset()
			flushed = true
		}
	}

	for _, r := range line {
		switch {
		case escaped:
			b.WriteRune(r)
			escaped = false
		case r == '\\' && inQuote:
			escaped = true
		case r == '"':
			inQuote = !inQuote
			flushed = false
		case r == ' ' && !inQuote:
			flush()
		default:
			b.WriteRune(r)
			flushed = false
		}
	}
	if inQuote || escaped {
		return nil, fmt.Errorf("unterminated quote")
	}
	flush()
	return fields, nil
}
