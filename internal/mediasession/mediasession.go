//go:build linux

// Package mediasession exposes playback on the desktop "now playing"
// surface over MPRIS. Every call fails silently: the surface is an
// optional convenience, never a dependency of playback itself.
package mediasession

import (
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/quarckster/go-mpris-server/pkg/server"
	"github.com/quarckster/go-mpris-server/pkg/types"

	"github.com/llehouerou/hifi/internal/playback"
	"github.com/llehouerou/hifi/internal/queue"
)

// Controls is the transport surface the OS buttons drive.
type Controls interface {
	Play() error
	Pause() error
	Toggle() error
	Next() error
	Previous() error
	Seek(delta float64) error
	SeekTo(seconds float64) error
	SetVolume(volume float64) error
	State() playback.State
}

// Adapter connects the playback controller to MPRIS over D-Bus. It
// implements playback.MediaSession on the push side and serves the D-Bus
// property pulls from a local snapshot.
type Adapter struct {
	controls Controls
	server   *server.Server

	mu       sync.Mutex
	track    *queue.Track
	status   playback.Status
	position float64
	duration float64

	enabled bool
}

var _ playback.MediaSession = (*Adapter)(nil)

// New creates and starts an MPRIS adapter. A D-Bus failure disables the
// adapter rather than surfacing an error.
func New(controls Controls) *Adapter {
	a := &Adapter{controls: controls}
	a.server = server.NewServer("hifi", &rootAdapter{}, &playerAdapter{adapter: a})
	a.enabled = true

	go func() {
		if err := a.server.Listen(); err != nil {
			a.mu.Lock()
			a.enabled = false
			a.mu.Unlock()
		}
	}()

	return a
}

// Enabled reports whether the MPRIS surface is live.
func (a *Adapter) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}

// SetMetadata records the current track for D-Bus metadata pulls.
func (a *Adapter) SetMetadata(track *queue.Track) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.track = track
}

// SetPlaybackState records the playback status.
func (a *Adapter) SetPlaybackState(status playback.Status) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = status
}

// SetPosition records the playback position.
func (a *Adapter) SetPosition(position, duration float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.position = position
	a.duration = duration
}

// Destroy stops the adapter and releases D-Bus resources.
func (a *Adapter) Destroy() {
	a.mu.Lock()
	a.enabled = false
	a.mu.Unlock()
	_ = a.server.Stop()
}

func (a *Adapter) snapshot() (*queue.Track, playback.Status, float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.track, a.status, a.position
}

// rootAdapter implements OrgMprisMediaPlayer2Adapter.
type rootAdapter struct{}

func (r *rootAdapter) Raise() error {
	return nil // Not supported
}

func (r *rootAdapter) Quit() error {
	return nil // Not supported - app manages its own lifecycle
}

func (r *rootAdapter) CanQuit() (bool, error) {
	return false, nil
}

func (r *rootAdapter) CanRaise() (bool, error) {
	return false, nil
}

func (r *rootAdapter) HasTrackList() (bool, error) {
	return false, nil
}

func (r *rootAdapter) Identity() (string, error) {
	return "Hifi", nil
}

//nolint:revive // Method name required by interface.
func (r *rootAdapter) SupportedUriSchemes() ([]string, error) {
	return []string{"https"}, nil
}

func (r *rootAdapter) SupportedMimeTypes() ([]string, error) {
	return []string{"audio/flac", "audio/mpeg", "application/dash+xml"}, nil
}

// playerAdapter implements OrgMprisMediaPlayer2PlayerAdapter.
type playerAdapter struct {
	adapter *Adapter
}

func (p *playerAdapter) Next() error {
	return p.adapter.controls.Next()
}

func (p *playerAdapter) Previous() error {
	return p.adapter.controls.Previous()
}

func (p *playerAdapter) Pause() error {
	return p.adapter.controls.Pause()
}

func (p *playerAdapter) PlayPause() error {
	return p.adapter.controls.Toggle()
}

func (p *playerAdapter) Stop() error {
	if err := p.adapter.controls.Pause(); err != nil {
		return err
	}
	return p.adapter.controls.SeekTo(0)
}

func (p *playerAdapter) Play() error {
	return p.adapter.controls.Play()
}

func (p *playerAdapter) Seek(offset types.Microseconds) error {
	return p.adapter.controls.Seek(float64(offset) / 1e6)
}

func (p *playerAdapter) SetPosition(_ string, position types.Microseconds) error {
	return p.adapter.controls.SeekTo(float64(position) / 1e6)
}

//nolint:revive // Method name required by interface.
func (p *playerAdapter) OpenUri(_ string) error {
	return nil // Not supported
}

func (p *playerAdapter) PlaybackStatus() (types.PlaybackStatus, error) {
	_, status, _ := p.adapter.snapshot()
	switch status {
	case playback.StatusPlaying, playback.StatusBuffering, playback.StatusLoading:
		return types.PlaybackStatusPlaying, nil
	case playback.StatusPaused, playback.StatusBlocked, playback.StatusError:
		return types.PlaybackStatusPaused, nil
	default:
		return types.PlaybackStatusStopped, nil
	}
}

func (p *playerAdapter) Rate() (float64, error) {
	return 1.0, nil
}

func (p *playerAdapter) SetRate(_ float64) error {
	return nil // Not supported
}

func (p *playerAdapter) Metadata() (types.Metadata, error) {
	track, _, _ := p.adapter.snapshot()
	if track == nil {
		return types.Metadata{}, nil
	}

	return types.Metadata{
		TrackId: dbus.ObjectPath(formatTrackID(track.Identity())),
		Length:  types.Microseconds(track.Duration.Microseconds()),
		Title:   track.Title,
		Artist:  []string{track.Artist},
		Album:   track.Album,
	}, nil
}

func (p *playerAdapter) Volume() (float64, error) {
	return p.adapter.controls.State().Volume, nil
}

func (p *playerAdapter) SetVolume(volume float64) error {
	return p.adapter.controls.SetVolume(volume)
}

func (p *playerAdapter) Position() (int64, error) {
	_, _, position := p.adapter.snapshot()
	return int64(position * 1e6), nil
}

func (p *playerAdapter) MinimumRate() (float64, error) {
	return 1.0, nil
}

func (p *playerAdapter) MaximumRate() (float64, error) {
	return 1.0, nil
}

func (p *playerAdapter) CanGoNext() (bool, error) {
	return true, nil
}

func (p *playerAdapter) CanGoPrevious() (bool, error) {
	return true, nil
}

func (p *playerAdapter) CanPlay() (bool, error) {
	return true, nil
}

func (p *playerAdapter) CanPause() (bool, error) {
	return true, nil
}

func (p *playerAdapter) CanSeek() (bool, error) {
	return true, nil
}

func (p *playerAdapter) CanControl() (bool, error) {
	return true, nil
}

// formatTrackID builds a D-Bus object path from a track identity.
func formatTrackID(identity string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(identity))
	return fmt.Sprintf("/com/github/llehouerou/hifi/track/%d", h.Sum64())
}
