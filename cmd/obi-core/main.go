package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/obi-sound/obi-core/internal/asset"
	"github.com/obi-sound/obi-core/internal/audio"
	"github.com/obi-sound/obi-core/internal/autoupdate"
	"github.com/obi-sound/obi-core/internal/capture"
	"github.com/obi-sound/obi-core/internal/capture/wsdevice"
	"github.com/obi-sound/obi-core/internal/compose"
	"github.com/obi-sound/obi-core/internal/config"
	"github.com/obi-sound/obi-core/internal/diaglog"
	"github.com/obi-sound/obi-core/internal/events"
	"github.com/obi-sound/obi-core/internal/ipc"
	"github.com/obi-sound/obi-core/internal/pidfile"
	"github.com/obi-sound/obi-core/internal/playback"
	"github.com/obi-sound/obi-core/internal/search"
	"github.com/obi-sound/obi-core/internal/validation"
)

const logPrefix = "[obi-core]"

var (
	// Version is set at build time via -ldflags "-X main.Version=..."
	Version = "dev"

	outLog *log.Logger
	errLog *log.Logger
)

// daemon bundles the long-lived state the command handlers work against.
type daemon struct {
	surface *compose.Surface
	orch    *search.Orchestrator
	session *capture.Session

	mu           sync.Mutex
	players      map[string]*playback.Engine // keyed by locator
	lastAdvisory string
	lastError    string

	diag *diaglog.Logger
}

func main() {
	// --export-diag subcommand: read log, write bundle, exit.
	if len(os.Args) > 1 && os.Args[1] == "--export-diag" {
		logPath := os.Getenv("OBI_LOG_PATH")
		if logPath == "" {
			logPath = "/tmp/obi-debug.log"
		}
		diaglog.Version = Version
		path, n, err := diaglog.Export(logPath, ".")
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			if os.IsNotExist(err) {
				fmt.Fprintln(os.Stderr, "hint: run with OBI_DEBUG=true to enable logging")
				os.Exit(1)
			}
			os.Exit(2)
		}
		fmt.Printf("Wrote: %s (%d lines)\n", path, n)
		os.Exit(0)
	}

	// Recover from any panics and log them
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "PANIC in obi-core: %v\n", r)
			if errLog != nil {
				errLog.Printf("PANIC: %v", r)
			}
			os.Exit(1)
		}
	}()

	if err := initLogging(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}

	outLog.Println("===========================================")
	outLog.Println("Starting OBI Core v" + Version + "...")
	outLog.Printf("PID: %d", os.Getpid())
	outLog.Printf("Timestamp: %s", time.Now().Format(time.RFC3339))
	outLog.Println("===========================================")

	// Check for duplicate instances
	pidPath := pidfile.Path("obi-core")
	outLog.Printf("Checking PID file: %s", pidPath)
	pf, err := pidfile.Acquire(pidPath)
	if err != nil {
		errLog.Printf("Failed to acquire PID file: %v", err)
		errLog.Println("Another instance of obi-core may already be running.")
		errLog.Printf("If you're sure no other instance is running, remove: %s", pidPath)
		os.Exit(1)
	}
	defer func() {
		outLog.Println("Cleaning up before exit...")
		if err := pf.Release(); err != nil {
			errLog.Printf("Warning: failed to remove PID file: %v", err)
		}
	}()
	outLog.Printf("PID file created: %s (PID %d)", pidPath, os.Getpid())

	// Load configuration
	outLog.Println("[STARTUP] Loading configuration...")
	cfgPath := os.Getenv("OBI_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		errLog.Printf("Failed to load config: %v", err)
		os.Exit(1)
	}
	outLog.Printf("[STARTUP] Loaded config: backend=%s gateway=%s fallback_results=%v",
		cfg.Backend.BaseURL, cfg.Gateway.URL, cfg.FallbackResults)

	// Endpoint preflight. Nothing here is fatal: a dead backend is covered
	// by the fallback policy, and the gateway is only needed when recording.
	outLog.Println("[STARTUP] Running endpoint preflight...")
	preflight := validation.CheckEndpoints(cfg.Backend.BaseURL, cfg.Gateway.URL)
	outLog.Printf("[STARTUP] %s", preflight.Message)
	for _, issue := range preflight.Issues {
		errLog.Printf("[STARTUP] Preflight issue: %s", issue)
	}
	for _, warning := range preflight.Warnings {
		outLog.Printf("[STARTUP] Preflight warning: %s", warning)
	}
	for _, fix := range preflight.Fixes {
		outLog.Printf("[STARTUP]   fix: %s", fix)
	}

	// Optional update check, gated so air-gapped installs never phone home.
	if os.Getenv("OBI_UPDATE_CHECK") == "true" {
		go func() {
			checker := autoupdate.NewChecker("obi-sound", "obi-core", Version)
			avail, release, err := checker.IsUpdateAvailable()
			if err != nil {
				outLog.Printf("[STARTUP] Update check failed: %v", err)
				return
			}
			if avail {
				outLog.Printf("[STARTUP] Update available: %s (running v%s)", release.TagName, Version)
			} else {
				outLog.Printf("[STARTUP] Running the latest release (v%s)", Version)
			}
		}()
	}

	// Diagnostic logger, gated on OBI_DEBUG=true.
	logPath := os.Getenv("OBI_LOG_PATH")
	if logPath == "" {
		logPath = "/tmp/obi-debug.log"
	}
	diagLogger, diagErr := diaglog.New(logPath)
	if diagErr != nil {
		errLog.Printf("[STARTUP] WARNING: could not open diagnostic log at %s: %v (continuing)", logPath, diagErr)
		diagLogger = diaglog.NewNoOp()
	}
	defer func() { _ = diagLogger.Close() }()
	diaglog.Version = Version
	if diaglog.IsDebugEnabled() {
		outLog.Printf("[STARTUP] Diagnostic logging enabled: %s", logPath)
	}

	// Assemble the pipeline
	outLog.Println("[STARTUP] Assembling capture and search pipeline...")
	device := wsdevice.New(wsdevice.Config{
		URL:           cfg.Gateway.URL,
		HandshakeSecs: cfg.Gateway.HandshakeSeconds,
	})
	device.SetLogger(diagLogger)

	session := capture.NewSession(device, cfg.Audio.SampleRate, cfg.Audio.Channels)
	session.SetLogger(diagLogger)

	client := search.NewClient(search.Config{
		BaseURL:        cfg.Backend.BaseURL,
		Token:          cfg.Backend.Token,
		TimeoutSeconds: cfg.Backend.TimeoutSeconds,
		Retries:        cfg.Backend.Retries,
	})
	client.SetLogger(diagLogger)

	orch := search.NewOrchestrator(client, cfg.FallbackResults)
	orch.SetLogger(diagLogger)

	surface := compose.New(asset.NewSlot(cfg.PreviewDir), session, orch)
	surface.SetLogger(diagLogger)

	d := &daemon{
		surface: surface,
		orch:    orch,
		session: session,
		players: make(map[string]*playback.Engine),
		diag:    diagLogger,
	}

	// Event subscriptions drive the status surface.
	outLog.Println("[STARTUP] Subscribing to state transitions...")
	if err := d.subscribe(); err != nil {
		errLog.Printf("Failed to subscribe to events: %v", err)
		os.Exit(1)
	}

	// Write initial status
	outLog.Println("[STARTUP] Writing initial status...")
	d.writeStatus()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	outLog.Println("[STARTUP] Signal handlers registered (SIGINT, SIGTERM)")

	g, ctx := errgroup.WithContext(ctx)

	// Command file watcher
	outLog.Println("[STARTUP] Starting command file watcher...")
	g.Go(func() error {
		d.watchCommands(ctx, stop)
		return nil
	})

	// Config live reload: the fallback gate and backend address follow the
	// file without a restart.
	g.Go(func() error {
		config.Watch(ctx, cfgPath, func(next *config.Config) {
			outLog.Printf("Config reloaded: backend=%s fallback_results=%v",
				next.Backend.BaseURL, next.FallbackResults)
			orch.SetFallbackEnabled(next.FallbackResults)
		}, func(err error) {
			errLog.Printf("Config reload error: %v", err)
		})
		return nil
	})

	// Periodic status refresh keeps timestamps honest for liveness checks.
	g.Go(func() error {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				d.writeStatus()
			}
		}
	})

	outLog.Println("===========================================")
	outLog.Println("[RUNNING] OBI Core is running")

	<-ctx.Done()

	outLog.Println("===========================================")
	outLog.Printf("[SHUTDOWN] Received shutdown signal at %s", time.Now().Format(time.RFC3339))

	if session.State() != capture.StateIdle {
		outLog.Println("[SHUTDOWN] Recording is active - stopping before shutdown...")
		if err := surface.StopRecording(); err != nil {
			errLog.Printf("[SHUTDOWN] Failed to finalize recording: %v", err)
			session.Close()
		}
	}
	d.writeStatus()

	_ = g.Wait()
	outLog.Println("[SHUTDOWN] Shutting down gracefully")
	outLog.Println("===========================================")
}

// subscribe registers the event handlers that keep status.json current.
func (d *daemon) subscribe() error {
	if err := events.Subscribe(events.TopicCaptureState, func(ev events.CaptureEventData) {
		outLog.Printf("[EVENT] capture %s -> %s (session=%s)", ev.From, ev.To, ev.SessionID)
		d.writeStatus()
	}); err != nil {
		return err
	}
	if err := events.Subscribe(events.TopicSearchState, func(ev events.SearchEventData) {
		outLog.Printf("[EVENT] search %s (request=%s, results=%d, fallback=%v)",
			ev.Status, ev.RequestID, ev.ResultCount, ev.Fallback)
		if ev.Status != string(search.StatusPending) {
			d.syncPlayers()
		}
		d.writeStatus()
	}); err != nil {
		return err
	}
	if err := events.Subscribe(events.TopicAssetChanged, func(ev events.AssetEventData) {
		if ev.AssetID == "" {
			outLog.Println("[EVENT] asset cleared")
		} else {
			outLog.Printf("[EVENT] asset set: %s (%s)", ev.Name, ev.MIMEType)
		}
		// A cleared or superseded asset takes its preview locator with it;
		// drop any engine still keyed to it.
		d.syncPlayers()
		d.writeStatus()
	}); err != nil {
		return err
	}
	if err := events.Subscribe(events.TopicAdvisory, func(ev events.AdvisoryEventData) {
		outLog.Printf("[EVENT] advisory (%s): %s", ev.Condition, ev.Message)
		d.mu.Lock()
		d.lastAdvisory = ev.Message
		d.mu.Unlock()
		d.writeStatus()
	}); err != nil {
		return err
	}
	return events.Subscribe(events.TopicPlaybackState, func(ev events.PlaybackEventData) {
		d.writeStatus()
	})
}

// watchCommands monitors cmd.txt for control commands. stop cancels the
// daemon when a quit command arrives.
func (d *daemon) watchCommands(ctx context.Context, stop func()) {
	cmdPath := ipc.CommandPath()
	cmdDir := filepath.Dir(cmdPath)
	if err := os.MkdirAll(cmdDir, 0755); err != nil {
		errLog.Printf("Failed to create command directory: %v", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		errLog.Printf("fsnotify not available, falling back to polling: %v", err)
		d.watchCommandsWithPolling(ctx, cmdPath, stop)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(cmdDir); err != nil {
		errLog.Printf("Failed to watch command directory, falling back to polling: %v", err)
		d.watchCommandsWithPolling(ctx, cmdPath, stop)
		return
	}

	outLog.Println("Command watcher started (using fsnotify)")

	// Fallback polling ticker in case fsnotify drops events.
	pollTicker := time.NewTicker(1 * time.Second)
	defer pollTicker.Stop()

	lastCheckTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				outLog.Println("fsnotify watcher closed, switching to polling")
				d.watchCommandsWithPolling(ctx, cmdPath, stop)
				return
			}
			if event.Name == cmdPath && (event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create) {
				// Small delay to ensure the write is complete.
				time.Sleep(50 * time.Millisecond)
				cmd, arg, err := ipc.ReadCommand()
				if err != nil || cmd == "" {
					continue
				}
				d.handleCommand(ctx, cmd, arg, stop)
				lastCheckTime = time.Now()
			}

		case <-pollTicker.C:
			if info, err := os.Stat(cmdPath); err == nil && info.ModTime().After(lastCheckTime) {
				time.Sleep(50 * time.Millisecond)
				cmd, arg, err := ipc.ReadCommand()
				if err == nil && cmd != "" {
					d.handleCommand(ctx, cmd, arg, stop)
				}
				lastCheckTime = time.Now()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				outLog.Println("fsnotify error channel closed, switching to polling")
				d.watchCommandsWithPolling(ctx, cmdPath, stop)
				return
			}
			errLog.Printf("File watcher error: %v", err)
		}
	}
}

// watchCommandsWithPolling is the pure polling fallback, 1s interval.
func (d *daemon) watchCommandsWithPolling(ctx context.Context, cmdPath string, stop func()) {
	outLog.Println("Command watcher started (using polling fallback, 1s interval)")

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	lastCheckTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := os.Stat(cmdPath)
			if err != nil {
				continue
			}
			if info.ModTime().After(lastCheckTime) {
				time.Sleep(50 * time.Millisecond)
				cmd, arg, err := ipc.ReadCommand()
				if err == nil && cmd != "" {
					d.handleCommand(ctx, cmd, arg, stop)
				}
				lastCheckTime = time.Now()
			}
		}
	}
}

// handleCommand processes one control command.
func (d *daemon) handleCommand(ctx context.Context, cmd ipc.Command, arg string, stop func()) {
	outLog.Printf("Received command: %s %s", cmd, arg)
	d.diag.Log(diaglog.LogEntry{
		Component: diaglog.ComponentCore,
		Event:     diaglog.EventCommand,
		Payload:   map[string]interface{}{"command": string(cmd), "arg": arg},
	})

	var err error
	switch cmd {
	case ipc.CmdStart:
		err = d.surface.StartRecording(ctx)

	case ipc.CmdStop:
		err = d.surface.StopRecording()

	case ipc.CmdClear:
		d.surface.ClearAsset()

	case ipc.CmdQuery:
		d.surface.SetQuery(arg)
		d.writeStatus()

	case ipc.CmdSubmit:
		_, err = d.surface.Submit(ctx)

	case ipc.CmdPlay:
		err = d.handlePlay(arg)

	case ipc.CmdSeek:
		err = d.handleSeek(arg)

	case ipc.CmdDuration:
		err = d.handleDuration(arg)

	case ipc.CmdTick:
		err = d.handleTick(arg)

	case ipc.CmdEnded:
		err = d.handleEnded(arg)

	case ipc.CmdQuit:
		outLog.Println("Quit command received - shutting down")
		stop()
		return
	}

	if err != nil {
		errLog.Printf("Command %s failed: %v", cmd, err)
		d.mu.Lock()
		d.lastError = err.Error()
		if adv := compose.AdvisoryFor(err); adv != "" {
			d.lastAdvisory = adv
		}
		d.mu.Unlock()
		d.writeStatus()
	}
}

// playerFor resolves a play/seek target to its engine, creating one on
// first use. Target "asset" means the current asset's preview; anything
// else is a result ID.
func (d *daemon) playerFor(target string) (*playback.Engine, error) {
	locator := ""
	var localAsset *asset.Asset

	if target == "asset" {
		a := d.surface.CurrentAsset()
		if a == nil || a.Preview.Locator() == "" {
			return nil, fmt.Errorf("no current asset to play")
		}
		locator = a.Preview.Locator()
		localAsset = a
	} else {
		for _, r := range d.orch.Results() {
			if r.ID == target {
				locator = r.URL
				break
			}
		}
		if locator == "" {
			return nil, fmt.Errorf("no result with id %q", target)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.players[locator]; ok {
		return e, nil
	}
	e := playback.NewEngine(locator)
	e.SetLogger(d.diag)
	if localAsset != nil {
		if dur, err := audio.ProbeDuration(localAsset.Data, localAsset.MIMEType); err == nil {
			e.SetDuration(dur.Seconds())
		}
	}
	d.players[locator] = e
	return e, nil
}

func (d *daemon) handlePlay(arg string) error {
	if arg == "" {
		arg = "asset"
	}
	e, err := d.playerFor(arg)
	if err != nil {
		return err
	}
	e.Toggle()
	return nil
}

func (d *daemon) handleSeek(arg string) error {
	target, fraction, err := splitTargetNumber(arg, "seek", "fraction")
	if err != nil {
		return err
	}
	e, err := d.playerFor(target)
	if err != nil {
		return err
	}
	e.Seek(fraction, 0, 1)
	return nil
}

// handleDuration records a track duration reported by the renderer. This is
// how engines for remote result URLs learn their duration; local assets are
// probed directly.
func (d *daemon) handleDuration(arg string) error {
	target, seconds, err := splitTargetNumber(arg, "duration", "seconds")
	if err != nil {
		return err
	}
	e, err := d.playerFor(target)
	if err != nil {
		return err
	}
	e.SetDuration(seconds)
	d.writeStatus()
	return nil
}

// handleTick applies a position report from the renderer's clock.
func (d *daemon) handleTick(arg string) error {
	target, seconds, err := splitTargetNumber(arg, "tick", "seconds")
	if err != nil {
		return err
	}
	e, err := d.playerFor(target)
	if err != nil {
		return err
	}
	e.OnPositionUpdate(seconds, time.Now())
	d.writeStatus()
	return nil
}

// handleEnded marks a track finished: paused, rewound to the start.
func (d *daemon) handleEnded(arg string) error {
	if arg == "" {
		arg = "asset"
	}
	e, err := d.playerFor(arg)
	if err != nil {
		return err
	}
	e.OnEnded()
	return nil
}

// splitTargetNumber parses "<target> <number>" command arguments.
func splitTargetNumber(arg, verb, field string) (string, float64, error) {
	target, numStr, ok := strings.Cut(arg, " ")
	if !ok {
		return "", 0, fmt.Errorf("%s wants '<target> <%s>', got %q", verb, field, arg)
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(numStr), 64)
	if err != nil {
		return "", 0, fmt.Errorf("bad %s %s %q: %w", verb, field, numStr, err)
	}
	return target, value, nil
}

// syncPlayers drops engines whose locators are no longer reachable from the
// current results or asset.
func (d *daemon) syncPlayers() {
	live := make(map[string]bool)
	for _, r := range d.orch.Results() {
		live[r.URL] = true
	}
	if a := d.surface.CurrentAsset(); a != nil {
		live[a.Preview.Locator()] = true
	}

	d.mu.Lock()
	for locator := range d.players {
		if !live[locator] {
			delete(d.players, locator)
		}
	}
	d.mu.Unlock()
}

// writeStatus updates the status.json file.
func (d *daemon) writeStatus() {
	results := d.orch.Results()
	infos := make([]ipc.ResultInfo, len(results))
	for i, r := range results {
		infos[i] = ipc.ResultInfo{
			ID:           r.ID,
			Title:        r.Title,
			ScorePercent: r.ScorePercent(),
			URL:          r.URL,
		}
	}

	var assetInfo *ipc.AssetInfo
	if a := d.surface.CurrentAsset(); a != nil {
		assetInfo = &ipc.AssetInfo{
			ID:             a.ID,
			Name:           a.Name,
			MIMEType:       a.MIMEType,
			SizeBytes:      len(a.Data),
			PreviewLocator: a.Preview.Locator(),
		}
		if dur, err := audio.ProbeDuration(a.Data, a.MIMEType); err == nil {
			assetInfo.DurationSec = dur.Seconds()
		}
	}

	d.mu.Lock()
	playbackInfos := make([]ipc.PlaybackInfo, 0, len(d.players))
	for _, e := range d.players {
		progress := e.Progress()
		filled := 0
		for i := 0; i < playback.DefaultBarCount; i++ {
			if playback.BarFilled(i, playback.DefaultBarCount, progress) {
				filled++
			}
		}
		playbackInfos = append(playbackInfos, ipc.PlaybackInfo{
			Locator:     e.Locator(),
			Playing:     e.Playing(),
			PositionSec: e.Position(),
			DurationSec: e.Duration(),
			Progress:    progress,
			Bars:        playback.Bars(e.Locator(), playback.DefaultBarCount),
			FilledBars:  filled,
		})
	}
	advisory := d.lastAdvisory
	lastError := d.lastError
	d.mu.Unlock()

	status := ipc.StatusSnapshot{
		RecordingState: string(d.session.State()),
		SearchStatus:   string(d.orch.Status()),
		RequestID:      d.orch.RequestID(),
		Results:        infos,
		UsedFallback:   d.orch.UsedFallback(),
		Query:          d.surface.Query(),
		Asset:          assetInfo,
		Playback:       playbackInfos,
		Advisory:       advisory,
		LastError:      lastError,
		Timestamp:      time.Now(),
	}
	if err := ipc.WriteStatus(&status); err != nil {
		errLog.Printf("Failed to write status: %v", err)
	}
}

// initLogging sets up log files with rotation support.
func initLogging() error {
	logDir := "/tmp"

	outLogPath := filepath.Join(logDir, "obi-core.out.log")
	errLogPath := filepath.Join(logDir, "obi-core.err.log")

	if err := rotateLogIfNeeded(outLogPath, 10*1024*1024); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to rotate out log: %v\n", err)
	}
	if err := rotateLogIfNeeded(errLogPath, 10*1024*1024); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to rotate err log: %v\n", err)
	}

	outFile, err := os.OpenFile(outLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	errFile, err := os.OpenFile(errLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	outLog = log.New(outFile, logPrefix+" ", log.LstdFlags)
	errLog = log.New(errFile, logPrefix+" ERROR: ", log.LstdFlags)
	return nil
}

// rotateLogIfNeeded rotates a log file if it exceeds maxSize bytes.
func rotateLogIfNeeded(logPath string, maxSize int64) error {
	info, err := os.Stat(logPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Size() < maxSize {
		return nil
	}

	oldPath := logPath + ".old"
	if err := os.Remove(oldPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove old log: %w", err)
	}
	return os.Rename(logPath, oldPath)
}
