package monitor

import (
	"context"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/quonset/squawkbox/internal/analysis"
	"github.com/quonset/squawkbox/internal/bus"
	"github.com/quonset/squawkbox/internal/config"
	"github.com/quonset/squawkbox/internal/correlate"
)

// sampleInterval is how often stats_update events are published.
const sampleInterval = time.Second

// sample publishes pipeline load and process usage once a second until
// ctx ends.
func (m *Monitor) sample(ctx context.Context) {
	proc, procErr := process.NewProcess(int32(os.Getpid()))
	if procErr != nil {
		m.log.Warn("process stats unavailable", "err", procErr)
	}

	ticker := time.NewTicker(sampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		depth := m.pool.QueueDepth()
		m.mu.Lock()
		busy := 0
		for _, b := range m.workerBusy {
			if b {
				busy++
			}
		}
		m.mu.Unlock()

		update := map[string]any{
			"queue_size":   depth,
			"workers_busy": busy,
		}
		if proc != nil {
			if cpu, err := proc.Percent(0); err == nil {
				update["cpu_percent"] = cpu
			}
			if mem, err := proc.MemoryInfo(); err == nil {
				update["rss_mb"] = float64(mem.RSS) / (1024 * 1024)
			}
		}
		m.bus.Publish(bus.KindStatsUpdate, update)

		// Gauges are additive; push the delta since the last sample.
		m.met.QueueDepth.Add(ctx, int64(depth)-m.queueGauge.Swap(int64(depth)))
	}
}

// writeSummary flushes the batch analysis table collected over the
// session.
func (m *Monitor) writeSummary() {
	m.mu.Lock()
	rows := m.summaryRows
	m.mu.Unlock()

	if m.analysisDir == "" || len(rows) == 0 {
		return
	}
	if _, err := analysis.WriteSummary(m.analysisDir, rows); err != nil {
		m.log.Warn("analysis summary not written", "err", err)
	}
}

// logSessionStats writes the end-of-session report to the log.
func (m *Monitor) logSessionStats() {
	m.mu.Lock()
	defer m.mu.Unlock()

	var recorded, transcribed, nonTransponder int64
	for _, ch := range m.channels {
		recorded += ch.recorded
		transcribed += ch.transcribed
		nonTransponder += ch.nonTransponder
		m.log.Info("channel summary",
			"channel", ch.cfg.Name,
			"frequency", ch.cfg.Frequency,
			"recorded", ch.recorded,
			"transcribed", ch.transcribed,
			"callsigns", ch.callsignList())
	}

	attrs := []any{
		"duration", time.Since(m.startedAt).Truncate(time.Second),
		"recorded", recorded,
		"transcribed", transcribed,
		"transcription_errors", m.pool.Errors(),
		"empty_transcripts", m.pool.Empty(),
		"non_transponder_alerts", nonTransponder,
	}
	if m.poller != nil {
		attrs = append(attrs, "polls", m.poller.Polls(), "poll_errors", m.poller.Errors())
	}
	if m.corr != nil {
		cs := m.corr.Stats()
		attrs = append(attrs,
			"llm_calls", cs.APICalls,
			"llm_tokens", cs.TotalTokens,
			"llm_errors", cs.Errors,
			"llm_mean_latency", cs.MeanLatency)
	}
	m.log.Info("session complete", attrs...)
}

// correlatorConfig maps the YAML tuning onto the correlator, keeping
// defaults for anything unset.
func correlatorConfig(cfg config.LLMConfig) correlate.Config {
	c := correlate.DefaultConfig()
	if cfg.Model != "" {
		c.Model = cfg.Model
	}
	if cfg.ContextWindow > 0 {
		c.ContextWindow = cfg.ContextWindow
	}
	if cfg.MaxResponse > 0 {
		c.MaxResponse = cfg.MaxResponse
	}
	if cfg.CharsPerToken > 0 {
		c.CharsPerToken = cfg.CharsPerToken
	}
	if cfg.TokensPerCorrelation > 0 {
		c.TokensPerCorrelation = cfg.TokensPerCorrelation
	}
	if cfg.ResponseJSONOverhead > 0 {
		c.JSONOverhead = cfg.ResponseJSONOverhead
	}
	if cfg.MaxBatch > 0 {
		c.MaxBatch = cfg.MaxBatch
	}
	if cfg.ADSBPromptRatio > 0 {
		c.ADSBRatio = cfg.ADSBPromptRatio
	}
	if cfg.Temperature > 0 {
		c.Temperature = cfg.Temperature
	}
	if cfg.TopP > 0 {
		c.TopP = cfg.TopP
	}
	if cfg.RepeatPenalty > 0 {
		c.RepeatPenalty = cfg.RepeatPenalty
	}
	if cfg.SafetyMargin > 0 {
		c.SafetyMargin = cfg.SafetyMargin
	}
	if cfg.AlertConfidenceThreshold > 0 {
		c.AlertThreshold = cfg.AlertConfidenceThreshold
	}
	return c
}
