// Package cast drives a networked media renderer over its HTTP control
// endpoint. The coordinator owns one client per connected device.
package cast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"rockboxd/pkg/errs"
	"rockboxd/pkg/models"
)

// Client controls one renderer. It owns the media-session id, the remote
// tracklist and the current position. Not safe for concurrent use; the
// cast player wrapping it serializes access.
type Client struct {
	device  models.Device
	baseURL string
	http    *http.Client
	logger  *logrus.Logger

	SessionID string
	tracklist []models.Track
	position  int

	hbStop chan struct{}
	hbOnce sync.Once

	mu    sync.RWMutex
	alive bool
}

// Connect establishes a media session with the device and starts the
// heartbeat. heartbeat <= 0 defaults to 30s.
func Connect(device models.Device, heartbeat time.Duration, logger *logrus.Logger) (*Client, error) {
	if logger == nil {
		logger = logrus.New()
	}
	base := device.BaseURL
	if base == "" {
		base = fmt.Sprintf("http://%s:%d", device.IP, device.Port)
	}

	c := &Client{
		device:    device,
		baseURL:   base,
		http:      &http.Client{Timeout: 10 * time.Second},
		logger:    logger,
		SessionID: uuid.NewString(),
		position:  -1,
		hbStop:    make(chan struct{}),
		alive:     true,
	}

	if err := c.post("/session", map[string]string{"session_id": c.SessionID}); err != nil {
		return nil, err
	}
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	go c.heartbeat(heartbeat)
	return c, nil
}

// Alive reports whether the last heartbeat succeeded.
func (c *Client) Alive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.alive
}

func (c *Client) heartbeat(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-c.hbStop:
			return
		case <-ticker.C:
			err := c.post("/ping", nil)
			c.mu.Lock()
			c.alive = err == nil
			c.mu.Unlock()
			if err != nil {
				c.logger.WithError(err).WithField("device", c.device.Name).Warn("Cast heartbeat missed")
			}
		}
	}
}

func (c *Client) post(path string, body interface{}) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return errs.Wrap(errs.Internal, err, "failed to encode cast request")
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "failed to build cast request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Session-Id", c.SessionID)

	resp, err := c.http.Do(req)
	if err != nil {
		return errs.Wrap(errs.Unavailable, err, "device unreachable")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return errs.New(errs.Unavailable, "device returned %d for %s", resp.StatusCode, path)
	}
	return nil
}

// Play starts or restarts playback at the current position.
func (c *Client) Play() error { return c.post("/play", nil) }

// Pause pauses playback.
func (c *Client) Pause() error { return c.post("/pause", nil) }

// Resume resumes paused playback.
func (c *Client) Resume() error { return c.post("/resume", nil) }

// Stop halts playback on the renderer.
func (c *Client) Stop() error { return c.post("/stop", nil) }

// Next advances to the next tracklist entry.
func (c *Client) Next() error {
	if c.position+1 < len(c.tracklist) {
		c.position++
	}
	return c.post("/next", nil)
}

// Previous returns to the previous tracklist entry.
func (c *Client) Previous() error {
	if c.position > 0 {
		c.position--
	}
	return c.post("/previous", nil)
}

// Seek moves the playback position by deltaMs.
func (c *Client) Seek(deltaMs int64) error {
	return c.post("/seek", map[string]int64{"delta": deltaMs})
}

// SetVolume sets the renderer volume (0-100).
func (c *Client) SetVolume(volume int) error {
	return c.post("/volume", map[string]int{"volume": volume})
}

// LoadTracks replaces the remote tracklist and starts at startIndex.
func (c *Client) LoadTracks(tracks []models.Track, startIndex int) error {
	if startIndex < 0 || startIndex >= len(tracks) {
		startIndex = 0
	}
	urls := make([]string, len(tracks))
	for i, t := range tracks {
		urls[i] = t.Path
	}
	if err := c.post("/load", map[string]interface{}{"tracks": urls, "start_index": startIndex}); err != nil {
		return err
	}
	c.tracklist = append([]models.Track(nil), tracks...)
	if len(c.tracklist) == 0 {
		c.position = -1
	} else {
		c.position = startIndex
	}
	return nil
}

// Append adds a track to the end of the remote tracklist.
func (c *Client) Append(track models.Track) error {
	if err := c.post("/enqueue", map[string]string{"track": track.Path}); err != nil {
		return err
	}
	c.tracklist = append(c.tracklist, track)
	if c.position < 0 {
		c.position = 0
	}
	return nil
}

// PlayNext inserts a track right after the current position.
func (c *Client) PlayNext(track models.Track) error {
	if err := c.post("/queue-next", map[string]string{"track": track.Path}); err != nil {
		return err
	}
	at := c.position + 1
	if at > len(c.tracklist) {
		at = len(c.tracklist)
	}
	c.tracklist = append(c.tracklist[:at], append([]models.Track{track}, c.tracklist[at:]...)...)
	return nil
}

// PlayTrackAt jumps within the loaded tracklist.
func (c *Client) PlayTrackAt(position int) error {
	if position < 0 || position >= len(c.tracklist) {
		return errs.New(errs.InvalidArgument, "position %d out of range", position)
	}
	if err := c.post("/play-at", map[string]int{"position": position}); err != nil {
		return err
	}
	c.position = position
	return nil
}

// RemoveTrackAt splices the tracklist and renumbers.
func (c *Client) RemoveTrackAt(position int) error {
	if position < 0 || position >= len(c.tracklist) {
		return errs.New(errs.InvalidArgument, "position %d out of range", position)
	}
	if err := c.post("/remove-at", map[string]int{"position": position}); err != nil {
		return err
	}
	c.tracklist = append(c.tracklist[:position], c.tracklist[position+1:]...)
	switch {
	case len(c.tracklist) == 0:
		c.position = -1
	case position < c.position:
		c.position--
	case c.position >= len(c.tracklist):
		c.position = len(c.tracklist) - 1
	}
	return nil
}

// Tracklist returns a snapshot of the remote tracklist and position.
func (c *Client) Tracklist() ([]models.Track, int) {
	return append([]models.Track(nil), c.tracklist...), c.position
}

// CurrentTrack returns the track at the current position, if any.
func (c *Client) CurrentTrack() *models.Track {
	if c.position < 0 || c.position >= len(c.tracklist) {
		return nil
	}
	t := c.tracklist[c.position]
	return &t
}

// Close stops playback and releases the session. Errors from a device that
// already vanished are swallowed.
func (c *Client) Close() {
	c.hbOnce.Do(func() { close(c.hbStop) })
	if err := c.post("/stop", nil); err != nil {
		c.logger.WithError(err).WithField("device", c.device.Name).Debug("Stop on disconnect failed")
	}
	if err := c.post("/session/close", nil); err != nil {
		c.logger.WithError(err).WithField("device", c.device.Name).Debug("Session close failed")
	}
}
