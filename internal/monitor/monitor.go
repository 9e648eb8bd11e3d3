// Package monitor wires the Squawkbox pipeline into a running session.
//
// The Monitor owns the full lifecycle: New connects recorders, the
// transcription pool, the surveillance poller, and the correlator; Run
// supervises them until the context ends; teardown drains in-flight work
// and logs the session statistics.
//
// Provider backends are injected through Deps so tests can substitute the
// mock providers without touching configuration.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quonset/squawkbox/internal/analysis"
	"github.com/quonset/squawkbox/internal/bus"
	"github.com/quonset/squawkbox/internal/config"
	"github.com/quonset/squawkbox/internal/correlate"
	"github.com/quonset/squawkbox/internal/health"
	"github.com/quonset/squawkbox/internal/observe"
	"github.com/quonset/squawkbox/internal/recorder"
	"github.com/quonset/squawkbox/internal/track"
	"github.com/quonset/squawkbox/internal/transcribe"
	"github.com/quonset/squawkbox/pkg/atc"
	"github.com/quonset/squawkbox/pkg/provider/adsb"
	"github.com/quonset/squawkbox/pkg/provider/llm"
	"github.com/quonset/squawkbox/pkg/provider/stt"
)

// AlertSink receives correlation alerts that cleared the confidence
// threshold. internal/notify implements it.
type AlertSink interface {
	Notify(alert atc.Alert, channel string)
}

// Deps holds one injected backend per provider slot. Nil disables the
// corresponding subsystem. Populated by main via the config enums.
type Deps struct {
	STT    stt.Factory
	ADSB   adsb.Source
	LLM    llm.Generator
	Alerts AlertSink
}

// SourceFactory builds the chunk source for one channel. The default
// spawns the stream decoder; tests inject canned PCM.
type SourceFactory func(ch config.ChannelConfig) (recorder.ChunkSource, error)

// Option is a functional option for New.
type Option func(*Monitor)

// WithSourceFactory overrides how per-channel audio sources are built.
func WithSourceFactory(fn SourceFactory) Option {
	return func(m *Monitor) { m.sourceFor = fn }
}

// WithMetrics sets the metrics instance. Defaults to the package-level
// instruments.
func WithMetrics(met *observe.Metrics) Option {
	return func(m *Monitor) { m.met = met }
}

// WithSystemAudio records from the default capture device instead of the
// configured streams. All channels collapse into a single "System Audio"
// channel.
func WithSystemAudio() Option {
	return func(m *Monitor) { m.systemAudio = true }
}

// Monitor coordinates all per-session subsystems.
type Monitor struct {
	cfg  *config.Config
	deps Deps
	bus  *bus.Bus
	log  *slog.Logger
	met  *observe.Metrics

	pool   *transcribe.Pool
	poller *track.Poller
	corr   *correlate.Correlator

	sourceFor   SourceFactory
	systemAudio bool
	analysisDir string

	// runCtx is the Run context; callbacks use it for submission and
	// correlation deadlines.
	runCtx atomic.Pointer[context.Context]

	mu          sync.Mutex
	channels    []*channelState
	byName      map[string]*channelState
	summaryRows []analysis.SummaryRow
	workerBusy  map[int]bool
	correlating bool
	corrPending *channelState

	txSeq        atomic.Int64
	queueGauge   atomic.Int64
	lastContacts atomic.Int64
	startedAt    time.Time
}

// New assembles a Monitor from config and injected backends. The LLM and
// ADS-B subsystems are built only when both enabled in config and
// supplied in deps.
func New(cfg *config.Config, deps Deps, b *bus.Bus, log *slog.Logger, opts ...Option) (*Monitor, error) {
	if deps.STT == nil {
		return nil, fmt.Errorf("monitor: an STT factory is required")
	}
	if log == nil {
		log = slog.Default()
	}

	m := &Monitor{
		cfg:        cfg,
		deps:       deps,
		bus:        b,
		log:        log,
		byName:     make(map[string]*channelState),
		workerBusy: make(map[int]bool),
	}
	for _, o := range opts {
		o(m)
	}
	if m.met == nil {
		m.met = observe.DefaultMetrics()
	}
	if m.sourceFor == nil {
		m.sourceFor = m.defaultSource
	}

	if cfg.LLM.Enabled && deps.LLM != nil {
		m.corr = correlate.New(deps.LLM, correlatorConfig(cfg.LLM), log.With("component", "correlate"))
	}

	historyCap := 3 * cfg.LLM.MaxTransmissions
	if m.corr != nil {
		if h := 3 * m.corr.MaxTransmissions(); h > historyCap {
			historyCap = h
		}
	}

	channels := cfg.Channels
	if m.systemAudio {
		channels = []config.ChannelConfig{{Name: "System Audio", Frequency: "", Color: "white"}}
	}
	for _, ch := range channels {
		dir := recorder.ChannelDirName(ch.Frequency, ch.Name)
		state := newChannelState(ch,
			filepath.Join(cfg.Audio.AudioDir, dir),
			filepath.Join(cfg.Audio.TranscriptDir, dir),
			historyCap,
		)
		m.channels = append(m.channels, state)
		m.byName[ch.Name] = state
	}
	m.analysisDir = cfg.Audio.AnalysisDir

	m.pool = transcribe.NewPool(cfg.Transcribe.NumWorkers, deps.STT,
		transcribe.WithQueueSize(cfg.Transcribe.QueueSize),
		transcribe.WithLogger(log.With("component", "transcribe")),
		transcribe.WithResultHandler(m.onTranscribed),
		transcribe.WithStatusHandler(m.onWorkerStatus),
	)

	if cfg.ADSB.Enabled && deps.ADSB != nil {
		m.poller = track.NewPoller(deps.ADSB,
			cfg.ADSB.AirportLat, cfg.ADSB.AirportLon, cfg.ADSB.SearchRadiusNM,
			track.WithLogger(log.With("component", "track")),
			track.WithContactHandler(m.onContact),
			track.WithSnapshotHandler(m.onSnapshot),
		)
	}

	return m, nil
}

// Run starts every subsystem and blocks until ctx is done or a fatal
// startup error occurs. A context deadline acts as the session duration
// budget. Teardown order: recorders, pool, poller.
func (m *Monitor) Run(ctx context.Context) error {
	m.startedAt = time.Now()
	m.runCtx.Store(&ctx)

	if err := m.makeDirs(); err != nil {
		return err
	}
	if err := m.pool.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	started := 0
	for _, ch := range m.channels {
		src, err := m.sourceFor(ch.cfg)
		if err != nil {
			m.log.Error("channel source failed, skipping channel",
				"channel", ch.cfg.Name, "err", err)
			continue
		}
		started++

		rec := recorder.New(src, recorder.Config{
			SampleRate:      m.cfg.Audio.SampleRate,
			Channels:        m.cfg.Audio.Channels,
			VADThreshold:    m.cfg.Audio.VADThreshold,
			SilenceDuration: m.cfg.Audio.SilenceDuration,
			MinLength:       m.cfg.Audio.MinTransmissionLength,
			MaxDuration:     m.cfg.Audio.MaxDuration,
			Dir:             ch.audioDir,
			Frequency:       ch.cfg.Frequency,
		}, m.segmentHandler(ch), m.log.With("channel", ch.cfg.Name))

		g.Go(func() error {
			if err := rec.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				m.log.Error("channel stopped", "channel", ch.cfg.Name, "err", err)
			}
			return nil
		})
	}
	if started == 0 {
		m.pool.Stop()
		return fmt.Errorf("monitor: no channels could be started")
	}

	if m.poller != nil {
		g.Go(func() error {
			if err := m.poller.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				m.log.Error("surveillance poller stopped", "err", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		m.sample(gctx)
		return nil
	})

	m.bus.Publish(bus.KindChannelsInitialized, m.channelInfos())
	m.log.Info("monitor running",
		"channels", started,
		"workers", m.cfg.Transcribe.NumWorkers,
		"adsb", m.poller != nil,
		"llm", m.corr != nil)

	_ = g.Wait()

	// Recorders have flushed their final segments; drain the queue before
	// reporting.
	m.pool.Stop()
	m.writeSummary()
	m.logSessionStats()
	return nil
}

// Checkers returns readiness checks for the subsystems this Monitor
// runs. Only configured subsystems contribute a check.
func (m *Monitor) Checkers() []health.Checker {
	checks := []health.Checker{{
		Name: "transcribe",
		Check: func(context.Context) error {
			if !m.pool.Started() {
				return errors.New("worker pool not started")
			}
			return nil
		},
	}}
	if m.poller != nil {
		checks = append(checks, health.Checker{
			Name: "adsb",
			Check: func(context.Context) error {
				if m.poller.Polls() == 0 {
					return errors.New("no surveillance snapshot yet")
				}
				return nil
			},
		})
	}
	if m.corr != nil {
		checks = append(checks, health.Checker{
			Name: "llm",
			Check: func(context.Context) error {
				stats := m.corr.Stats()
				if stats.APICalls > 0 && stats.Errors == stats.APICalls {
					return fmt.Errorf("all %d correlation calls failed", stats.APICalls)
				}
				return nil
			},
		})
	}
	return checks
}

// makeDirs creates the artifact tree before any recorder starts.
func (m *Monitor) makeDirs() error {
	dirs := []string{m.analysisDir}
	for _, ch := range m.channels {
		dirs = append(dirs, ch.audioDir, ch.transcriptDir)
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("monitor: create %s: %w", dir, err)
		}
	}
	return nil
}

// defaultSource spawns the stream decoder, or the capture device when
// running with system audio.
func (m *Monitor) defaultSource(ch config.ChannelConfig) (recorder.ChunkSource, error) {
	if m.systemAudio {
		return recorder.NewCaptureSource(m.cfg.Audio.SampleRate)
	}
	return recorder.NewDecoderSource(m.cfg.Audio.DecoderCommand, ch.StreamURL,
		m.cfg.Audio.SampleRate, m.cfg.Audio.Channels)
}

// channelInfo is the channels_initialized payload entry.
type channelInfo struct {
	Name      string `json:"name"`
	Frequency string `json:"frequency"`
	Color     string `json:"color"`
}

func (m *Monitor) channelInfos() []channelInfo {
	infos := make([]channelInfo, 0, len(m.channels))
	for _, ch := range m.channels {
		infos = append(infos, channelInfo{
			Name:      ch.cfg.Name,
			Frequency: ch.cfg.Frequency,
			Color:     ch.cfg.Color,
		})
	}
	return infos
}

// segmentHandler returns the recorder callback for one channel: count
// the recording, announce it, and queue it for transcription.
func (m *Monitor) segmentHandler(ch *channelState) recorder.SegmentFunc {
	return func(seg recorder.Segment) {
		ctx := *m.runCtx.Load()
		m.met.RecordRecording(ctx, ch.cfg.Name)

		m.mu.Lock()
		ch.recorded++
		ch.lastTransmitted = seg.RecordedAt
		count := ch.recorded
		m.mu.Unlock()

		m.bus.Publish(bus.KindChannelRecording, map[string]any{
			"channel":         ch.cfg.Name,
			"frequency":       ch.cfg.Frequency,
			"recording_count": count,
		})

		err := m.pool.Submit(ctx, transcribe.Job{
			Path:       seg.Path,
			Channel:    ch.cfg.Name,
			Frequency:  ch.cfg.Frequency,
			RecordedAt: seg.RecordedAt,
			Duration:   seg.Duration,
		})
		if err != nil {
			m.log.Warn("segment not submitted", "channel", ch.cfg.Name, "err", err)
		}
	}
}

// onWorkerStatus tracks busy workers and republishes the transition.
func (m *Monitor) onWorkerStatus(worker int, busy bool, channel string) {
	m.mu.Lock()
	m.workerBusy[worker] = busy
	m.mu.Unlock()

	status := "idle"
	if busy {
		status = "busy"
	}
	m.bus.Publish(bus.KindWorkerStatus, map[string]any{
		"worker":  worker,
		"status":  status,
		"channel": channel,
	})
}

// onTranscribed is the pool result callback: persist the transcript,
// extract identifiers, record the transmission, and kick off correlation.
func (m *Monitor) onTranscribed(res transcribe.Result) {
	ctx := *m.runCtx.Load()
	ch := m.byName[res.Job.Channel]
	if ch == nil {
		m.log.Warn("transcription for unknown channel", "channel", res.Job.Channel)
		return
	}

	now := time.Now()
	delay := now.Sub(res.Job.RecordedAt).Seconds()
	if delay < 0 {
		delay = 0
	}
	tx := atc.Transmission{
		ID:           m.txSeq.Add(1),
		Channel:      ch.cfg.Name,
		Frequency:    ch.cfg.Frequency,
		Time:         now,
		Text:         res.STT.Text,
		Segments:     res.STT.Segments,
		AudioSeconds: atc.AudioDuration(res.STT.Segments),
		DelaySeconds: delay,
	}

	base := strings.TrimSuffix(filepath.Base(res.Job.Path), filepath.Ext(res.Job.Path))
	if err := m.writeTranscript(ch, base, tx, res); err != nil {
		m.log.Warn("transcript artifact not written", "path", res.Job.Path, "err", err)
	}

	report := analysis.Analyze(res.STT.Text, res.STT.Segments, res.Job.RecordedAt)
	if m.analysisDir != "" {
		if _, err := analysis.WriteReport(m.analysisDir, base+"_transcript", report); err != nil {
			m.log.Warn("analysis artifact not written", "path", res.Job.Path, "err", err)
		}
	}

	m.mu.Lock()
	ch.transcribed++
	count := ch.transcribed
	ch.append(tx)
	ch.addCallsigns(report.OverallInfo.Callsigns)
	m.summaryRows = append(m.summaryRows, analysis.SummaryRow{
		File:        base + "_transcript.json",
		Callsigns:   len(report.OverallInfo.Callsigns),
		Altitudes:   len(report.OverallInfo.Altitudes),
		Headings:    len(report.OverallInfo.Headings),
		Frequencies: len(report.OverallInfo.Frequencies),
	})
	m.mu.Unlock()

	m.met.RecordTranscription(ctx, ch.cfg.Name, "ok", res.Elapsed.Seconds())

	m.bus.Publish(bus.KindATCTransmission, map[string]any{
		"transcript":           tx.Text,
		"channel":              ch.cfg.Name,
		"frequency":            ch.cfg.Frequency,
		"color":                ch.cfg.Color,
		"timestamp":            tx.Time,
		"worker_id":            res.Worker,
		"processing_time":      res.Elapsed.Seconds(),
		"transcription_number": count,
	})

	m.log.Info("transmission",
		"channel", ch.cfg.Name,
		"worker", res.Worker,
		"elapsed", res.Elapsed,
		"text", tx.Text)

	// Correlate in the background so a slow model never stalls the pool.
	// One request in flight at a time; a transmission that lands while a
	// pass is running marks its channel pending and the loop runs a
	// follow-up pass for it.
	if m.corr == nil {
		return
	}
	m.mu.Lock()
	if m.correlating {
		m.corrPending = ch
		m.mu.Unlock()
		return
	}
	m.correlating = true
	m.mu.Unlock()
	go m.correlationLoop(ctx, ch)
}

// transcriptArtifact is the on-disk transcript JSON shape.
type transcriptArtifact struct {
	Text           string                  `json:"text"`
	Segments       []atc.TranscriptSegment `json:"segments"`
	Language       string                  `json:"language"`
	Model          string                  `json:"model"`
	Channel        string                  `json:"channel"`
	Frequency      string                  `json:"frequency"`
	AudioFile      string                  `json:"audio_file"`
	RecordedAt     time.Time               `json:"recorded_at"`
	TranscribedAt  time.Time               `json:"transcribed_at"`
	Worker         int                     `json:"worker_id"`
	ProcessingSecs float64                 `json:"processing_time"`
}

func (m *Monitor) writeTranscript(ch *channelState, base string, tx atc.Transmission, res transcribe.Result) error {
	artifact := transcriptArtifact{
		Text:           tx.Text,
		Segments:       tx.Segments,
		Language:       res.STT.Language,
		Model:          res.STT.Model,
		Channel:        ch.cfg.Name,
		Frequency:      ch.cfg.Frequency,
		AudioFile:      filepath.Base(res.Job.Path),
		RecordedAt:     res.Job.RecordedAt,
		TranscribedAt:  tx.Time,
		Worker:         res.Worker,
		ProcessingSecs: res.Elapsed.Seconds(),
	}
	data, err := json.MarshalIndent(artifact, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(ch.transcriptDir, base+"_transcript.json"), data, 0o644)
}

// correlationLoop runs one correlation pass for ch, then keeps going
// as long as transmissions landed while a pass was in flight, so the
// last word on a channel is never left uncorrelated.
func (m *Monitor) correlationLoop(ctx context.Context, ch *channelState) {
	for {
		m.runCorrelation(ctx, ch)

		m.mu.Lock()
		next := m.corrPending
		m.corrPending = nil
		if next == nil {
			m.correlating = false
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()
		ch = next
	}
}

// runCorrelation sends the triggering channel's recent transmissions
// and the current surveillance picture to the correlator and fans the
// outcome back out as events, alerts, and notifications.
func (m *Monitor) runCorrelation(ctx context.Context, ch *channelState) {
	var contacts []atc.Contact
	if m.poller != nil {
		contacts = m.poller.Current().List()
		if max := m.cfg.LLM.MaxADSBContacts; max > 0 && len(contacts) > max {
			contacts = contacts[:max]
		}
	}

	m.mu.Lock()
	recent := ch.recent(m.cfg.LLM.MaxTransmissions)
	m.mu.Unlock()
	if len(recent) == 0 {
		return
	}

	start := time.Now()
	out, err := m.corr.Correlate(ctx, contacts, recent)
	elapsed := time.Since(start)
	if err != nil {
		m.met.RecordCorrelation(ctx, elapsed.Seconds(), 0, 0)
		m.log.Error("correlation failed", "err", err)
		return
	}
	if len(out.Batch) == 0 {
		return
	}
	m.met.RecordCorrelation(ctx, elapsed.Seconds(), int64(out.PromptEvalCount), int64(out.EvalCount))

	for _, corr := range out.Result.Correlations {
		m.log.Info("correlation",
			"identifier", corr.ExtractedIdentifier,
			"matched_icao", corr.MatchedICAO,
			"matched_callsign", corr.MatchedCallsign,
			"confidence", corr.MatchConfidence,
			"flags", corr.Flags)
	}

	for _, alert := range out.Result.Alerts {
		m.handleAlert(ctx, alert, ch)
	}
}

// handleAlert publishes one alert event against the channel whose
// transmissions were correlated, counts it, and forwards it to the
// notification sink.
func (m *Monitor) handleAlert(ctx context.Context, alert atc.Alert, ch *channelState) {
	if alert.Type == atc.AlertNonTransponder {
		m.mu.Lock()
		ch.nonTransponder++
		m.mu.Unlock()
	}

	m.met.RecordAlert(ctx, alert.Type, alert.Severity)
	m.bus.Publish(bus.KindAlert, map[string]any{
		"type":       fmt.Sprintf("LLM %s (%s)", alert.Type, alert.Severity),
		"transcript": fmt.Sprintf("[%s] %s", ch.cfg.Name, alert.Details),
		"confidence": alert.Confidence,
	})
	m.log.Warn("alert",
		"type", alert.Type,
		"severity", alert.Severity,
		"confidence", alert.Confidence,
		"details", alert.Details)

	if m.deps.Alerts != nil {
		m.deps.Alerts.Notify(alert, ch.cfg.Name)
	}
}

// onContact republishes each refreshed contact.
func (m *Monitor) onContact(c atc.Contact) {
	m.bus.Publish(bus.KindUpdateAircraft, c)
}

// onSnapshot records poll metrics against the previous snapshot size.
func (m *Monitor) onSnapshot(snap *track.Snapshot, elapsed time.Duration) {
	ctx := *m.runCtx.Load()
	n := int64(snap.Len())
	delta := n - m.lastContacts.Swap(n)
	m.met.RecordPoll(ctx, string(m.cfg.ADSB.Source), elapsed.Seconds(), delta, false)
}
