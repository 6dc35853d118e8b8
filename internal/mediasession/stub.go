//go:build !linux

// Package mediasession exposes playback on the desktop "now playing"
// surface. On platforms without MPRIS it is a no-op shim.
package mediasession

import (
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

// Adapter is a no-op on platforms without a media session surface.
type Adapter struct{}

var _ playback.MediaSession = (*Adapter)(nil)

// New returns a disabled adapter.
func New(_ Controls) *Adapter {
	return &Adapter{}
}

// Enabled reports that no surface is available.
func (a *Adapter) Enabled() bool { return false }

func (a *Adapter) SetMetadata(_ *queue.Track)       {}
func (a *Adapter) SetPlaybackState(playback.Status) {}
func (a *Adapter) SetPosition(_, _ float64)         {}
func (a *Adapter) Destroy()                         {}
