package player

import (
	"sync"

	"rockboxd/internal/cast"
	"rockboxd/pkg/errs"
	"rockboxd/pkg/models"
)

// CastPlayer adapts a cast client to the playback capability set. The
// renderer reports nothing back, so state and volume are mirrored locally
// from the commands that succeeded. All surfaces hit the same target
// concurrently, so every method serializes on the mutex; the client's
// tracklist bookkeeping is only touched under it.
type CastPlayer struct {
	client *cast.Client

	mu      sync.Mutex
	state   models.PlaybackState
	volume  int
	elapsed int64
}

// NewCastPlayer wraps an established cast session.
func NewCastPlayer(client *cast.Client) *CastPlayer {
	return &CastPlayer{client: client, state: models.StateStopped, volume: 70}
}

func (p *CastPlayer) Kind() string { return "cast" }

// Client exposes the underlying session for heartbeat checks and teardown.
func (p *CastPlayer) Client() *cast.Client { return p.client }

func (p *CastPlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.client.Play(); err != nil {
		return err
	}
	p.state = models.StatePlaying
	return nil
}

func (p *CastPlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.client.Pause(); err != nil {
		return err
	}
	p.state = models.StatePaused
	return nil
}

func (p *CastPlayer) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.client.Resume(); err != nil {
		return err
	}
	p.state = models.StatePlaying
	return nil
}

func (p *CastPlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.client.Stop(); err != nil {
		return err
	}
	p.state = models.StateStopped
	p.elapsed = 0
	return nil
}

func (p *CastPlayer) Next() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.client.Next(); err != nil {
		return err
	}
	p.elapsed = 0
	return nil
}

func (p *CastPlayer) Previous() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.client.Previous(); err != nil {
		return err
	}
	p.elapsed = 0
	return nil
}

func (p *CastPlayer) Seek(deltaMs int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.client.Seek(deltaMs); err != nil {
		return err
	}
	p.elapsed += deltaMs
	if p.elapsed < 0 {
		p.elapsed = 0
	}
	return nil
}

func (p *CastPlayer) SetVolume(volume int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	if err := p.client.SetVolume(volume); err != nil {
		return err
	}
	p.volume = volume
	return nil
}

func (p *CastPlayer) LoadTracks(tracks []models.Track, startIndex int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.client.LoadTracks(tracks, startIndex); err != nil {
		return err
	}
	p.state = models.StatePlaying
	p.elapsed = 0
	return nil
}

func (p *CastPlayer) Append(track models.Track) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.client.Append(track)
}

func (p *CastPlayer) PlayNext(track models.Track) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.client.PlayNext(track)
}

func (p *CastPlayer) PlayTrackAt(position int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.client.PlayTrackAt(position); err != nil {
		return err
	}
	p.state = models.StatePlaying
	p.elapsed = 0
	return nil
}

func (p *CastPlayer) RemoveTrackAt(position int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.client.RemoveTrackAt(position)
}

func (p *CastPlayer) ClearTracklist() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.client.LoadTracks(nil, 0); err != nil {
		return err
	}
	p.state = models.StateStopped
	p.elapsed = 0
	return nil
}

func (p *CastPlayer) Status() (models.PlaybackStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.client.Alive() {
		return models.PlaybackStatus{}, errs.New(errs.Unavailable, "cast device not responding")
	}
	_, index := p.client.Tracklist()
	return models.PlaybackStatus{
		State:     p.state,
		ElapsedMs: p.elapsed,
		Track:     p.client.CurrentTrack(),
		Index:     index,
		Volume:    p.volume,
	}, nil
}

func (p *CastPlayer) Tracklist() ([]models.Track, int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	tracks, index := p.client.Tracklist()
	return tracks, index, nil
}

func (p *CastPlayer) CurrentTrack() (*models.Track, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.client.CurrentTrack(), nil
}
