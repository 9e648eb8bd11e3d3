// Command squawkbox monitors ATC voice channels: it records
// transmissions from live audio streams, transcribes them with a worker
// pool, and correlates the transcripts against live ADS-B surveillance
// data. Events stream to websocket subscribers; alerts go to Discord.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/quonset/squawkbox/internal/bus"
	"github.com/quonset/squawkbox/internal/config"
	"github.com/quonset/squawkbox/internal/health"
	"github.com/quonset/squawkbox/internal/monitor"
	"github.com/quonset/squawkbox/internal/notify"
	"github.com/quonset/squawkbox/internal/observe"
	"github.com/quonset/squawkbox/pkg/provider/adsb"
	"github.com/quonset/squawkbox/pkg/provider/adsb/adsbx"
	adsblocal "github.com/quonset/squawkbox/pkg/provider/adsb/local"
	adsbmock "github.com/quonset/squawkbox/pkg/provider/adsb/mock"
	"github.com/quonset/squawkbox/pkg/provider/adsb/opensky"
	"github.com/quonset/squawkbox/pkg/provider/llm"
	llmmock "github.com/quonset/squawkbox/pkg/provider/llm/mock"
	"github.com/quonset/squawkbox/pkg/provider/llm/ollama"
	llmopenai "github.com/quonset/squawkbox/pkg/provider/llm/openai"
	"github.com/quonset/squawkbox/pkg/provider/stt"
	sttmock "github.com/quonset/squawkbox/pkg/provider/stt/mock"
	sttopenai "github.com/quonset/squawkbox/pkg/provider/stt/openai"
	"github.com/quonset/squawkbox/pkg/provider/stt/whisper"
)

// version is stamped by the release build via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	monitorFlag := flag.Bool("monitor", false, "start continuous monitoring")
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	duration := flag.Float64("duration", 0, "monitoring duration in seconds (0 = until interrupted)")
	vadThreshold := flag.Float64("vad-threshold", 0, "voice activity RMS threshold in (0, 1); overrides config")
	silenceDuration := flag.Float64("silence-duration", 0, "seconds of silence that end a transmission; overrides config")
	streamURL := flag.String("stream-url", "", "monitor a single stream URL instead of the configured channels")
	systemAudio := flag.Bool("system-audio", false, "record from the default capture device instead of streams")
	flag.Parse()

	if !*monitorFlag {
		flag.Usage()
		return 0
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "squawkbox: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "squawkbox: %v\n", err)
		}
		return 1
	}

	applyFlagOverrides(cfg, *vadThreshold, *silenceDuration, *streamURL)
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "squawkbox: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	slog.Info("squawkbox starting",
		"version", version,
		"config", *configPath,
		"channels", len(cfg.Channels),
		"system_audio", *systemAudio,
		"adsb", cfg.ADSB.Enabled,
		"llm", cfg.LLM.Enabled,
	)

	// ── Signal context and session duration ───────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(*duration*float64(time.Second)))
		defer cancel()
		slog.Info("session duration set", "seconds", *duration)
	}

	// ── Metrics ───────────────────────────────────────────────────────────────
	if cfg.Metrics.Enabled {
		shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
		if err != nil {
			slog.Error("failed to initialise metrics", "err", err)
			return 1
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(flushCtx); err != nil {
				slog.Warn("metrics shutdown error", "err", err)
			}
		}()
	}

	// ── Provider backends ─────────────────────────────────────────────────────
	deps, closers, err := buildDeps(cfg, logger)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	defer closeAll(closers)

	// ── Monitor ───────────────────────────────────────────────────────────────
	b := bus.New(cfg.Bus.QueueSoftCap, logger.With("component", "bus"))

	var opts []monitor.Option
	if *systemAudio {
		opts = append(opts, monitor.WithSystemAudio())
	}
	mon, err := monitor.New(cfg, deps, b, logger, opts...)
	if err != nil {
		slog.Error("failed to initialise monitor", "err", err)
		return 1
	}

	// ── Feed listener: websocket events, health, /metrics ─────────────────────
	if cfg.Feed.Enabled {
		srv := newFeedServer(cfg, b, mon, logger)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("feed listener error", "err", err)
			}
		}()
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(closeCtx); err != nil {
				slog.Warn("feed shutdown error", "err", err)
			}
		}()
		slog.Info("feed listening", "addr", cfg.Feed.Listen)
	}

	slog.Info("monitoring — press Ctrl+C to stop")

	if err := mon.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// applyFlagOverrides folds the CLI overrides into cfg before validation.
// A --stream-url replaces the whole channel list with one ad-hoc channel,
// matching the quick-look workflow of pointing the monitor at a single
// LiveATC feed.
func applyFlagOverrides(cfg *config.Config, vadThreshold, silenceDuration float64, streamURL string) {
	if vadThreshold > 0 {
		cfg.Audio.VADThreshold = vadThreshold
	}
	if silenceDuration > 0 {
		cfg.Audio.SilenceDuration = silenceDuration
	}
	if streamURL != "" {
		cfg.Channels = []config.ChannelConfig{{
			Name:      "Custom Stream",
			Frequency: "custom",
			StreamURL: streamURL,
			Color:     "cyan",
		}}
	}
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// buildDeps instantiates the backends named in cfg and returns them with
// the closers main must run at shutdown.
func buildDeps(cfg *config.Config, log *slog.Logger) (monitor.Deps, []io.Closer, error) {
	var deps monitor.Deps
	var closers []io.Closer

	deps.STT = sttFactory(cfg)
	slog.Info("provider selected", "kind", "stt", "name", cfg.Transcribe.Provider, "model", cfg.Transcribe.ModelSize)

	if cfg.ADSB.Enabled {
		source, err := adsbSource(cfg)
		if err != nil {
			return monitor.Deps{}, closers, err
		}
		deps.ADSB = source
		slog.Info("provider selected", "kind", "adsb", "name", cfg.ADSB.Source)
	}

	if cfg.LLM.Enabled {
		gen, err := llmGenerator(cfg)
		if err != nil {
			return monitor.Deps{}, closers, err
		}
		deps.LLM = gen
		slog.Info("provider selected", "kind", "llm", "name", cfg.LLM.Provider, "model", cfg.LLM.Model)
	}

	if cfg.Notify.Discord.Enabled {
		sink, err := notify.NewDiscord(notify.Config{
			Token:       cfg.Notify.Discord.Token,
			ChannelID:   cfg.Notify.Discord.ChannelID,
			MinSeverity: cfg.Notify.Discord.MinSeverity,
		}, log.With("component", "notify"))
		if err != nil {
			return monitor.Deps{}, closers, fmt.Errorf("create discord sink: %w", err)
		}
		deps.Alerts = sink
		closers = append(closers, sink)
		slog.Info("discord alerts enabled", "channel_id", cfg.Notify.Discord.ChannelID, "min_severity", cfg.Notify.Discord.MinSeverity)
	}

	return deps, closers, nil
}

// sttFactory returns the per-worker transcriber factory for the
// configured backend. Each pool worker calls it once, so the whisper
// branch loads one model instance per worker.
func sttFactory(cfg *config.Config) stt.Factory {
	tc := cfg.Transcribe
	switch tc.Provider {
	case config.STTOpenAI:
		return func(context.Context) (stt.Transcriber, error) {
			opts := []sttopenai.Option{
				sttopenai.WithLanguage(tc.Language),
			}
			if tc.ModelSize != "" {
				opts = append(opts, sttopenai.WithModel(tc.ModelSize))
			}
			if tc.InitialPrompt != "" {
				opts = append(opts, sttopenai.WithPrompt(tc.InitialPrompt))
			}
			return sttopenai.New(tc.APIKey, opts...)
		}
	case config.STTMock:
		return func(context.Context) (stt.Transcriber, error) {
			return &sttmock.Transcriber{}, nil
		}
	default:
		modelPath := filepath.Join(tc.ModelDir, "ggml-"+tc.ModelSize+".bin")
		return func(context.Context) (stt.Transcriber, error) {
			opts := []whisper.Option{
				whisper.WithLanguage(tc.Language),
			}
			if tc.InitialPrompt != "" {
				opts = append(opts, whisper.WithInitialPrompt(tc.InitialPrompt))
			}
			return whisper.New(modelPath, opts...)
		}
	}
}

// adsbSource builds the configured surveillance backend.
func adsbSource(cfg *config.Config) (adsb.Source, error) {
	ac := cfg.ADSB
	switch ac.Source {
	case config.SourceADSBX:
		opts := []adsbx.Option{adsbx.WithAPIKey(ac.APIKey)}
		if ac.BaseURL != "" {
			opts = append(opts, adsbx.WithBaseURL(ac.BaseURL))
		}
		return adsbx.New(opts...), nil

	case config.SourceLocal:
		return adsblocal.New(adsblocal.WithURL(ac.BaseURL)), nil

	case config.SourceMock:
		return &adsbmock.Source{Interval: 5 * time.Second}, nil

	default:
		secs := func(s float64) time.Duration { return time.Duration(s * float64(time.Second)) }
		opts := []opensky.Option{
			opensky.WithPollIntervals(secs(ac.PollIntervalAuth), secs(ac.PollIntervalAnon)),
		}
		if ac.BaseURL != "" {
			opts = append(opts, opensky.WithBaseURL(ac.BaseURL))
		}
		if ac.TokenURL != "" {
			opts = append(opts, opensky.WithTokenURL(ac.TokenURL))
		}
		if ac.CredentialsFile != "" {
			creds, err := config.LoadOpenSkyCredentials(ac.CredentialsFile)
			if err != nil {
				return nil, err
			}
			opts = append(opts, opensky.WithClientCredentials(creds.ClientID, creds.ClientSecret))
		}
		return opensky.New(opts...), nil
	}
}

// llmGenerator builds the configured correlation backend.
func llmGenerator(cfg *config.Config) (llm.Generator, error) {
	lc := cfg.LLM
	timeout := time.Duration(lc.RequestTimeout * float64(time.Second))
	switch lc.Provider {
	case config.LLMOpenAI:
		opts := []llmopenai.Option{llmopenai.WithTimeout(timeout)}
		if lc.BaseURL != "" {
			opts = append(opts, llmopenai.WithBaseURL(lc.BaseURL))
		}
		return llmopenai.New(lc.APIKey, opts...), nil

	case config.LLMMock:
		return &llmmock.Generator{}, nil

	default:
		opts := []ollama.Option{ollama.WithTimeout(timeout)}
		if lc.BaseURL != "" {
			opts = append(opts, ollama.WithBaseURL(lc.BaseURL))
		}
		return ollama.New(opts...)
	}
}

func closeAll(closers []io.Closer) {
	for _, c := range closers {
		if err := c.Close(); err != nil {
			slog.Warn("close error", "err", err)
		}
	}
}

// ── Feed listener ─────────────────────────────────────────────────────────────

// newFeedServer assembles the shared HTTP listener: the websocket event
// feed on /events, health probes, and the Prometheus scrape endpoint.
func newFeedServer(cfg *config.Config, b *bus.Bus, mon *monitor.Monitor, log *slog.Logger) *http.Server {
	mux := http.NewServeMux()

	feed := bus.NewWSFeed(b,
		time.Duration(cfg.Bus.BatchInterval*float64(time.Second)),
		cfg.Bus.BatchMax,
		log.With("component", "feed"))
	mux.Handle("/events", feed)

	health.New(mon.Checkers()...).Register(mux)

	if cfg.Metrics.Enabled {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	return &http.Server{
		Addr:              cfg.Feed.Listen,
		Handler:           observe.Middleware(observe.DefaultMetrics())(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// ── Logger ────────────────────────────────────────────────────────────────────

// newLogger builds the process logger from config: text or JSON handler,
// stderr plus optional rotated file output.
func newLogger(cfg config.LogConfig) *slog.Logger {
	var lvl slog.Level
	switch cfg.Level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	var out io.Writer = os.Stderr
	if cfg.File != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		})
	}

	hopts := &slog.HandlerOptions{Level: lvl}
	if cfg.Format == config.LogJSON {
		return slog.New(slog.NewJSONHandler(out, hopts))
	}
	return slog.New(slog.NewTextHandler(out, hopts))
}
