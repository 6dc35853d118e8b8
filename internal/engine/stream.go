package engine

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/rs/zerolog/log"
)

const (
	speakerSampleRate = beep.SampleRate(44100)
	speakerBufferSize = 250 * time.Millisecond

	downloadChunkSize = 64 * 1024
	readStallTimeout  = 10 * time.Second
	tickInterval      = 200 * time.Millisecond
)

var (
	speakerOnce    sync.Once
	speakerInitErr error
)

func initSpeaker() error {
	speakerOnce.Do(func() {
		speakerInitErr = speaker.Init(speakerSampleRate, speakerSampleRate.N(speakerBufferSize))
	})
	return speakerInitErr
}

// cancelStreamer lets one engine drop out of the shared speaker mix without
// clearing the other engine's streamer.
type cancelStreamer struct {
	mu      sync.Mutex
	inner   beep.Streamer
	stopped bool
}

func (c *cancelStreamer) Stream(samples [][2]float64) (int, bool) {
	c.mu.Lock()
	stopped := c.stopped
	inner := c.inner
	c.mu.Unlock()
	if stopped || inner == nil {
		return 0, false
	}
	return inner.Stream(samples)
}

func (c *cancelStreamer) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inner != nil {
		return c.inner.Err()
	}
	return nil
}

func (c *cancelStreamer) stop() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
}

// StreamEngine plays direct HTTP audio streams (FLAC or MP3) through beep.
// The source is fetched to a temp file so the decoder gets a seekable
// stream; download progress is surfaced as buffered-percent events. It has
// no manifest (DASH) support.
type StreamEngine struct {
	mu sync.Mutex

	http   *http.Client
	events chan Event

	source   string
	file     *os.File
	streamer beep.StreamSeekCloser
	format   beep.Format
	ctrl     *beep.Ctrl
	volume   *effects.Volume
	cancel   *cancelStreamer

	level    float64
	muted    bool
	playing  bool
	started  bool
	duration float64
	buffered float64

	loadCancel context.CancelFunc
	loadGen    uint64

	tickStop chan struct{}
	closed   bool
}

var _ Engine = (*StreamEngine)(nil)

// NewStreamEngine creates a direct-stream engine.
func NewStreamEngine() *StreamEngine {
	return &StreamEngine{
		http: &http.Client{
			Timeout: 0, // downloads are bounded by the stall watchdog instead
			Transport: &http.Transport{
				DialContext:           (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 15 * time.Second,
				MaxIdleConns:          10,
				IdleConnTimeout:       90 * time.Second,
			},
		},
		events: make(chan Event, 64),
		level:  1,
	}
}

func (e *StreamEngine) Load(url string) {
	e.mu.Lock()
	e.teardownLocked()
	e.source = url
	e.buffered = 0
	e.duration = 0
	e.loadGen++
	gen := e.loadGen
	ctx, cancel := context.WithCancel(context.Background())
	e.loadCancel = cancel
	e.mu.Unlock()

	e.emit(Event{Type: EventLoadStart, Source: url})
	go e.download(ctx, gen, url)
}

// download fetches the source to a temp file, reporting progress, then
// opens a decoder over it.
func (e *StreamEngine) download(ctx context.Context, gen uint64, url string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		e.emitFor(gen, Event{Type: EventError, Source: url, Err: err})
		return
	}

	resp, err := e.http.Do(req)
	if err != nil {
		e.emitFor(gen, Event{Type: EventError, Source: url, Err: err})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		e.emitFor(gen, Event{Type: EventError, Source: url,
			Err: fmt.Errorf("stream returned status %d: %s", resp.StatusCode, resp.Status)})
		return
	}

	tmp, err := os.CreateTemp("", "hifi-stream-*")
	if err != nil {
		e.emitFor(gen, Event{Type: EventError, Source: url, Err: err})
		return
	}

	total := resp.ContentLength
	var written int64
	buf := make([]byte, downloadChunkSize)
	stalled := false
	for {
		if ctx.Err() != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			return
		}

		deadline := time.AfterFunc(readStallTimeout, func() {
			if !stalled {
				e.emitFor(gen, Event{Type: EventStalled, Source: url})
			}
		})
		n, readErr := resp.Body.Read(buf)
		deadline.Stop()

		if n > 0 {
			if _, werr := tmp.Write(buf[:n]); werr != nil {
				tmp.Close()
				os.Remove(tmp.Name())
				e.emitFor(gen, Event{Type: EventError, Source: url, Err: werr})
				return
			}
			written += int64(n)
			if total > 0 {
				percent := float64(written) / float64(total) * 100
				e.setBuffered(gen, percent)
				e.emitFor(gen, Event{Type: EventProgress, Source: url, Buffered: percent})
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			if ctx.Err() == nil {
				e.emitFor(gen, Event{Type: EventError, Source: url, Err: readErr})
			}
			return
		}
	}

	e.setBuffered(gen, 100)
	if err := e.openDecoder(gen, url, tmp, resp.Header.Get("Content-Type")); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		e.emitFor(gen, Event{Type: EventError, Source: url, Err: err})
	}
}

func (e *StreamEngine) openDecoder(gen uint64, url string, f *os.File, contentType string) error {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}

	var streamer beep.StreamSeekCloser
	var format beep.Format
	var err error
	if isMP3(url, contentType) {
		streamer, format, err = mp3.Decode(f)
	} else {
		streamer, format, err = flac.Decode(f)
	}
	if err != nil {
		return fmt.Errorf("decode stream: %w", err)
	}

	e.mu.Lock()
	if gen != e.loadGen {
		e.mu.Unlock()
		streamer.Close()
		return nil
	}
	e.file = f
	e.streamer = streamer
	e.format = format
	e.duration = format.SampleRate.D(streamer.Len()).Seconds()
	e.mu.Unlock()

	e.emitFor(gen, Event{Type: EventCanPlay, Source: url})
	return nil
}

func isMP3(url, contentType string) bool {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "mpeg") || strings.Contains(ct, "mp3") {
		return true
	}
	if strings.Contains(ct, "flac") {
		return false
	}
	trimmed := url
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	return strings.HasSuffix(strings.ToLower(trimmed), ".mp3")
}

func (e *StreamEngine) LoadManifest(_, _ string) error {
	return ErrUnsupportedSource
}

func (e *StreamEngine) Play() error {
	e.mu.Lock()
	if e.source == "" {
		e.mu.Unlock()
		return ErrNoSource
	}

	// Resume path
	if e.started && e.ctrl != nil {
		speaker.Lock()
		e.ctrl.Paused = false
		speaker.Unlock()
		e.playing = true
		src := e.source
		e.mu.Unlock()
		e.emit(Event{Type: EventPlaying, Source: src})
		return nil
	}

	if e.streamer == nil {
		e.mu.Unlock()
		return fmt.Errorf("source not ready: %w", ErrNoSource)
	}

	if err := initSpeaker(); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("audio output unavailable: %w", err)
	}

	var play beep.Streamer = e.streamer
	if e.format.SampleRate != speakerSampleRate {
		play = beep.Resample(4, e.format.SampleRate, speakerSampleRate, e.streamer)
	}
	e.ctrl = &beep.Ctrl{Streamer: play}
	e.volume = &effects.Volume{
		Streamer: e.ctrl,
		Base:     2,
		Volume:   levelToVolume(e.level),
		Silent:   e.muted || e.level == 0,
	}
	e.cancel = &cancelStreamer{inner: e.volume}
	cancel := e.cancel
	src := e.source
	gen := e.loadGen
	e.started = true
	e.playing = true
	e.tickStop = make(chan struct{})
	go e.positionLoop(e.tickStop, gen)
	e.mu.Unlock()

	speaker.Play(beep.Seq(cancel, beep.Callback(func() {
		e.onDrained(gen, src)
	})))
	e.emit(Event{Type: EventPlaying, Source: src})
	return nil
}

func (e *StreamEngine) onDrained(gen uint64, src string) {
	e.mu.Lock()
	if gen != e.loadGen {
		e.mu.Unlock()
		return
	}
	e.playing = false
	duration := e.duration
	e.mu.Unlock()
	e.emit(Event{Type: EventEnded, Source: src, Time: duration})
}

func (e *StreamEngine) positionLoop(stop chan struct{}, gen uint64) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.mu.Lock()
			if gen != e.loadGen || !e.playing || e.streamer == nil {
				e.mu.Unlock()
				continue
			}
			src := e.source
			pos := e.format.SampleRate.D(e.streamer.Position()).Seconds()
			e.mu.Unlock()
			e.emit(Event{Type: EventTimeUpdate, Source: src, Time: pos})
		}
	}
}

func (e *StreamEngine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctrl == nil || !e.playing {
		return
	}
	speaker.Lock()
	e.ctrl.Paused = true
	speaker.Unlock()
	e.playing = false
}

func (e *StreamEngine) Stop() {
	e.mu.Lock()
	e.teardownLocked()
	e.source = ""
	e.mu.Unlock()
}

// teardownLocked cancels any in-flight download and releases the decoder.
func (e *StreamEngine) teardownLocked() {
	if e.loadCancel != nil {
		e.loadCancel()
		e.loadCancel = nil
	}
	if e.tickStop != nil {
		close(e.tickStop)
		e.tickStop = nil
	}
	if e.cancel != nil {
		e.cancel.stop()
		e.cancel = nil
	}
	if e.streamer != nil {
		e.streamer.Close()
		e.streamer = nil
	}
	if e.file != nil {
		name := e.file.Name()
		e.file.Close()
		os.Remove(name)
		e.file = nil
	}
	e.ctrl = nil
	e.volume = nil
	e.playing = false
	e.started = false
	e.buffered = 0
	e.duration = 0
}

func (e *StreamEngine) Seek(seconds float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.streamer == nil {
		return
	}
	if seconds < 0 {
		seconds = 0
	}
	target := e.format.SampleRate.N(time.Duration(seconds * float64(time.Second)))
	if target > e.streamer.Len() {
		target = e.streamer.Len()
	}
	speaker.Lock()
	if err := e.streamer.Seek(target); err != nil {
		log.Debug().Err(err).Msg("stream seek failed")
	}
	speaker.Unlock()
}

func (e *StreamEngine) SetVolume(level float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}
	e.level = level
	if e.volume != nil {
		speaker.Lock()
		e.volume.Volume = levelToVolume(level)
		e.volume.Silent = e.muted || level == 0
		speaker.Unlock()
	}
}

func (e *StreamEngine) Volume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.level
}

func (e *StreamEngine) SetMuted(muted bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.muted = muted
	if e.volume != nil {
		speaker.Lock()
		e.volume.Silent = muted || e.level == 0
		speaker.Unlock()
	}
}

func (e *StreamEngine) Muted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.muted
}

func (e *StreamEngine) CurrentTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.streamer == nil {
		return 0
	}
	return e.format.SampleRate.D(e.streamer.Position()).Seconds()
}

func (e *StreamEngine) Duration() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.duration
}

func (e *StreamEngine) BufferedPercent() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buffered
}

func (e *StreamEngine) Source() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.source
}

// Unlock initializes the audio output ahead of the first real playback so
// the first Play does not pay the device-open latency.
func (e *StreamEngine) Unlock() {
	if err := initSpeaker(); err != nil {
		log.Debug().Err(err).Msg("audio unlock failed")
	}
}

func (e *StreamEngine) Events() <-chan Event {
	return e.events
}

func (e *StreamEngine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.teardownLocked()
	e.mu.Unlock()
	close(e.events)
}

func (e *StreamEngine) setBuffered(gen uint64, percent float64) {
	e.mu.Lock()
	if gen == e.loadGen {
		e.buffered = percent
	}
	e.mu.Unlock()
}

// emitFor drops events from a superseded load.
func (e *StreamEngine) emitFor(gen uint64, ev Event) {
	e.mu.Lock()
	stale := gen != e.loadGen || e.closed
	e.mu.Unlock()
	if stale {
		return
	}
	e.emit(ev)
}

func (e *StreamEngine) emit(ev Event) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return
	}
	select {
	case e.events <- ev:
	default:
	}
}
