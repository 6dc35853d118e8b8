package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/llehouerou/hifi/internal/api"
	"github.com/llehouerou/hifi/internal/config"
	"github.com/llehouerou/hifi/internal/engine"
	"github.com/llehouerou/hifi/internal/mediasession"
	"github.com/llehouerou/hifi/internal/playback"
	"github.com/llehouerou/hifi/internal/prefetch"
	"github.com/llehouerou/hifi/internal/quality"
	"github.com/llehouerou/hifi/internal/queue"
	"github.com/llehouerou/hifi/internal/resolver"
	"github.com/llehouerou/hifi/internal/state"
	"github.com/llehouerou/hifi/internal/streamcache"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setupLogging(cfg.LogLevel)

	if cfg.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is not configured")
	}

	stateMgr, err := state.Open()
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	defer stateMgr.Close()

	cacheOpts := streamcache.Options{
		Capacity: cfg.Cache.Capacity,
		TTL:      time.Duration(cfg.Cache.TTLHours) * time.Hour,
	}
	fallback := streamcache.NewFileStore(filepath.Join(xdg.CacheHome, "hifi"))
	cache := streamcache.New(cacheOpts, stateMgr, fallback)

	client := api.NewClient(cfg.API.BaseURL)
	res := resolver.New(client, cache)

	warm := prefetch.New(res, cache, prefetch.Options{
		Workers:        cfg.Prefetch.Workers,
		DataSaver:      cfg.Prefetch.DataSaver,
		SlowConnection: cfg.Prefetch.SlowConnection,
		AllowSlowWarm:  cfg.Prefetch.AllowWarmOnSlow(),
	})

	prefs, err := stateMgr.GetPrefs()
	if err != nil {
		log.Warn().Err(err).Msg("preferences unreadable, using defaults")
		prefs = playback.DefaultPrefs()
	}

	dual := engine.NewDual(engine.NewStreamEngine(), engine.NewStreamEngine())

	// The media session adapter needs the controller for transport commands
	// and the controller needs the adapter for metadata pushes; a late-bound
	// proxy breaks the construction cycle.
	var session playback.MediaSession
	proxy := &sessionControls{}
	if cfg.MediaSessionEnabled() {
		adapter := mediasession.New(proxy)
		log.Debug().Bool("enabled", adapter.Enabled()).Msg("media session bridge")
		session = adapter
	}

	ctrl := playback.New(playback.Options{
		Dual:         dual,
		Resolver:     res,
		Cache:        cache,
		API:          client,
		Links:        client,
		Prefetch:     warm,
		Session:      session,
		Persist:      stateMgr,
		RewriteURL:   rewriteURL(cfg.Proxy.Prefix),
		InitialPrefs: &prefs,
	})
	defer ctrl.Close()
	proxy.bind(ctrl)

	if saved, err := stateMgr.GetQueue(); err == nil && len(saved.Tracks) > 0 {
		if err := ctrl.SetQueue(saved.Tracks, saved.Index); err != nil {
			log.Warn().Err(err).Msg("queue restore failed")
		}
	}

	go printEvents(ctrl)

	fmt.Println("hifi ready. Commands: play pause toggle next prev seek <s> vol <0-1>")
	fmt.Println("  mute unmute repeat <off|all|one> shuffle quality <tier> crossfade <s>")
	fmt.Println("  queue <id,...> add <id> addnext <id> remove <idx> clear status quit")
	return repl(ctrl)
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl)
}

// rewriteURL builds the proxy indirection hook: a pure string transform
// applied to every resolved stream URL.
func rewriteURL(prefix string) func(string) string {
	if prefix == "" {
		return nil
	}
	return func(u string) string { return prefix + u }
}

// sessionControls forwards OS transport commands to the controller once it
// exists. Calls arriving before bind are dropped.
type sessionControls struct {
	mu   sync.Mutex
	ctrl *playback.Controller
}

var _ mediasession.Controls = (*sessionControls)(nil)

func (s *sessionControls) bind(ctrl *playback.Controller) {
	s.mu.Lock()
	s.ctrl = ctrl
	s.mu.Unlock()
}

func (s *sessionControls) get() *playback.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl
}

func (s *sessionControls) Play() error {
	if c := s.get(); c != nil {
		return c.Play()
	}
	return nil
}

func (s *sessionControls) Pause() error {
	if c := s.get(); c != nil {
		return c.Pause()
	}
	return nil
}

func (s *sessionControls) Toggle() error {
	if c := s.get(); c != nil {
		return c.Toggle()
	}
	return nil
}

func (s *sessionControls) Next() error {
	if c := s.get(); c != nil {
		return c.Next()
	}
	return nil
}

func (s *sessionControls) Previous() error {
	if c := s.get(); c != nil {
		return c.Previous()
	}
	return nil
}

func (s *sessionControls) Seek(delta float64) error {
	if c := s.get(); c != nil {
		return c.Seek(delta)
	}
	return nil
}

func (s *sessionControls) SeekTo(seconds float64) error {
	if c := s.get(); c != nil {
		return c.SeekTo(seconds)
	}
	return nil
}

func (s *sessionControls) SetVolume(volume float64) error {
	if c := s.get(); c != nil {
		return c.SetVolume(volume)
	}
	return nil
}

func (s *sessionControls) State() playback.State {
	if c := s.get(); c != nil {
		return c.State()
	}
	return playback.InitialState()
}

func printEvents(ctrl *playback.Controller) {
	sub := ctrl.Subscribe()
	for {
		select {
		case <-sub.Done:
			return
		case e := <-sub.TrackChanged:
			if e.Current != nil {
				fmt.Printf("▶ %s — %s\n", e.Current.Artist, e.Current.Title)
			}
		case e := <-sub.StateChanged:
			if e.Previous.Status != e.Current.Status {
				fmt.Printf("  [%s]\n", e.Current.Status)
			}
			if e.Current.Error != "" && e.Previous.Error == "" {
				fmt.Printf("  error: %s\n", e.Current.Error)
			}
		case e := <-sub.Error:
			fmt.Printf("  %s failed: %v\n", e.Operation, e.Err)
		case <-sub.PositionChanged:
		case <-sub.QueueChanged:
		case <-sub.ModeChanged:
		case <-sub.QualityChanged:
		}
	}
}

func repl(ctrl *playback.Controller) error {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		cmd, args := fields[0], fields[1:]

		var err error
		switch cmd {
		case "quit", "exit", "q":
			return nil
		case "play":
			err = ctrl.Play()
		case "pause":
			err = ctrl.Pause()
		case "toggle":
			err = ctrl.Toggle()
		case "next":
			err = ctrl.Next()
		case "prev":
			err = ctrl.Previous()
		case "seek":
			err = withFloat(args, ctrl.SeekTo)
		case "vol":
			err = withFloat(args, ctrl.SetVolume)
		case "crossfade":
			err = withFloat(args, ctrl.SetCrossfadeSeconds)
		case "mute":
			err = ctrl.SetMuted(true)
		case "unmute":
			err = ctrl.SetMuted(false)
		case "repeat":
			err = setRepeat(ctrl, args)
		case "shuffle":
			fmt.Printf("  shuffle: %v\n", ctrl.ToggleShuffle())
		case "quality":
			err = setQuality(ctrl, args)
		case "queue":
			err = setQueueFromIDs(ctrl, args)
		case "add":
			err = withTracks(args, func(ts []queue.Track) error { return ctrl.Enqueue(ts...) })
		case "addnext":
			err = withTracks(args, func(ts []queue.Track) error { return ctrl.EnqueueNext(ts...) })
		case "remove":
			err = withInt(args, ctrl.RemoveFromQueue)
		case "clear":
			err = ctrl.ClearQueue()
		case "status":
			printStatus(ctrl.State())
		default:
			fmt.Printf("  unknown command %q\n", cmd)
		}
		if err != nil {
			fmt.Printf("  error: %v\n", err)
		}
	}
	return scanner.Err()
}

func withFloat(args []string, fn func(float64) error) error {
	if len(args) != 1 {
		return fmt.Errorf("expected one numeric argument")
	}
	v, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return err
	}
	return fn(v)
}

func withInt(args []string, fn func(int) error) error {
	if len(args) != 1 {
		return fmt.Errorf("expected one integer argument")
	}
	v, err := strconv.Atoi(args[0])
	if err != nil {
		return err
	}
	return fn(v)
}

func setRepeat(ctrl *playback.Controller, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("expected off, all or one")
	}
	switch args[0] {
	case "off":
		return ctrl.SetRepeatMode(queue.RepeatOff)
	case "all":
		return ctrl.SetRepeatMode(queue.RepeatAll)
	case "one":
		return ctrl.SetRepeatMode(queue.RepeatOne)
	default:
		return fmt.Errorf("unknown repeat mode %q", args[0])
	}
}

func setQuality(ctrl *playback.Controller, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("expected a quality tier")
	}
	if args[0] == "auto" {
		return ctrl.SetQuality(quality.HiResLossless, quality.SourceAuto)
	}
	tier, err := quality.Parse(strings.ToUpper(args[0]))
	if err != nil {
		return err
	}
	return ctrl.SetQuality(tier, quality.SourceManual)
}

func setQueueFromIDs(ctrl *playback.Controller, args []string) error {
	tracks, err := parseTracks(args)
	if err != nil {
		return err
	}
	return ctrl.PlayQueue(tracks, 0)
}

func withTracks(args []string, fn func([]queue.Track) error) error {
	tracks, err := parseTracks(args)
	if err != nil {
		return err
	}
	return fn(tracks)
}

// parseTracks accepts numeric first-party ids and external URLs, comma or
// space separated.
func parseTracks(args []string) ([]queue.Track, error) {
	var tracks []queue.Track
	for _, arg := range args {
		for ref := range strings.SplitSeq(arg, ",") {
			if ref == "" {
				continue
			}
			if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
				tracks = append(tracks, queue.Track{Kind: queue.FirstParty, ID: id})
				continue
			}
			if strings.Contains(ref, "://") {
				tracks = append(tracks, queue.Track{Kind: queue.ExternalLink, ExternalID: ref, Title: ref})
				continue
			}
			return nil, fmt.Errorf("unrecognized track reference %q", ref)
		}
	}
	if len(tracks) == 0 {
		return nil, fmt.Errorf("no tracks given")
	}
	return tracks, nil
}

func printStatus(st playback.State) {
	track := "(none)"
	if st.CurrentTrack != nil {
		track = fmt.Sprintf("%s — %s", st.CurrentTrack.Artist, st.CurrentTrack.Title)
	}
	fmt.Printf("  %s  %s  %.0f/%.0fs  vol %.2f  q=%s (%s, active %s)  repeat=%s shuffle=%v xfade=%.0fs\n",
		st.Status, track, st.CurrentTime, st.Duration, st.Volume,
		st.Quality, st.QualitySource, st.ActiveQuality,
		st.RepeatMode, st.ShuffleEnabled, st.CrossfadeSeconds)
}
