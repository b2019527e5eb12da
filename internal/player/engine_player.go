package player

import (
	"path/filepath"
	"strings"

	"rockboxd/internal/engine"
	"rockboxd/pkg/models"
)

// EnginePlayer is the default target. It drives the local engine through
// its facade and resolves the engine's path-based tracklist back to library
// rows for frontends.
type EnginePlayer struct {
	eng      *engine.Facade
	resolver TrackResolver
}

// NewEnginePlayer wraps an engine facade. resolver may be nil; paths then
// render with filename-derived titles only.
func NewEnginePlayer(eng *engine.Facade, resolver TrackResolver) *EnginePlayer {
	return &EnginePlayer{eng: eng, resolver: resolver}
}

func (p *EnginePlayer) Kind() string { return "engine" }

func (p *EnginePlayer) Play() error               { return p.eng.Play(0, 0) }
func (p *EnginePlayer) Pause() error              { return p.eng.Pause() }
func (p *EnginePlayer) Resume() error             { return p.eng.Resume() }
func (p *EnginePlayer) Stop() error               { return p.eng.HardStop() }
func (p *EnginePlayer) Next() error               { return p.eng.Next() }
func (p *EnginePlayer) Previous() error           { return p.eng.Prev() }
func (p *EnginePlayer) Seek(deltaMs int64) error  { return p.eng.Seek(deltaMs) }
func (p *EnginePlayer) SetVolume(v int) error     { return p.eng.SetVolume(v) }
func (p *EnginePlayer) PlayTrackAt(pos int) error { return p.eng.PlayTrackAt(pos) }
func (p *EnginePlayer) RemoveTrackAt(pos int) error {
	return p.eng.RemoveTrackAt(pos)
}
func (p *EnginePlayer) ClearTracklist() error { return p.eng.ClearTracklist() }

func (p *EnginePlayer) LoadTracks(tracks []models.Track, startIndex int) error {
	paths := make([]string, len(tracks))
	for i, t := range tracks {
		paths[i] = t.Path
	}
	return p.eng.LoadTracks(paths, startIndex)
}

func (p *EnginePlayer) Append(track models.Track) error {
	paths, _, err := p.eng.Tracklist()
	if err != nil {
		return err
	}
	return p.eng.InsertTrack(track.Path, len(paths))
}

func (p *EnginePlayer) PlayNext(track models.Track) error {
	_, index, err := p.eng.Tracklist()
	if err != nil {
		return err
	}
	return p.eng.InsertTrack(track.Path, index+1)
}

func (p *EnginePlayer) Status() (models.PlaybackStatus, error) {
	state, err := p.eng.Status()
	if err != nil {
		return models.PlaybackStatus{}, err
	}
	volume, err := p.eng.Volume()
	if err != nil {
		return models.PlaybackStatus{}, err
	}
	_, index, err := p.eng.Tracklist()
	if err != nil {
		return models.PlaybackStatus{}, err
	}
	status := models.PlaybackStatus{State: state, Index: index, Volume: volume}
	if meta, err := p.eng.CurrentTrack(); err == nil && meta != nil {
		status.ElapsedMs = meta.ElapsedMs
		track := p.resolve(meta.Path)
		if track.LengthMs == 0 {
			track.LengthMs = meta.LengthMs
		}
		status.Track = &track
	}
	return status, nil
}

func (p *EnginePlayer) Tracklist() ([]models.Track, int, error) {
	paths, index, err := p.eng.Tracklist()
	if err != nil {
		return nil, -1, err
	}
	tracks := make([]models.Track, len(paths))
	for i, path := range paths {
		tracks[i] = p.resolve(path)
	}
	return tracks, index, nil
}

func (p *EnginePlayer) CurrentTrack() (*models.Track, error) {
	meta, err := p.eng.CurrentTrack()
	if err != nil || meta == nil {
		return nil, err
	}
	track := p.resolve(meta.Path)
	if track.LengthMs == 0 {
		track.LengthMs = meta.LengthMs
	}
	return &track, nil
}

func (p *EnginePlayer) resolve(path string) models.Track {
	if p.resolver != nil {
		if track, err := p.resolver.FindTrackByPath(path); err == nil {
			return track
		}
	}
	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return models.Track{
		ID:    models.TrackID(path, ""),
		Path:  path,
		Title: title,
	}
}
