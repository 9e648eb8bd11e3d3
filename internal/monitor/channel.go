package monitor

import (
	"sort"
	"time"

	"github.com/quonset/squawkbox/internal/config"
	"github.com/quonset/squawkbox/pkg/atc"
)

// channelState tracks one monitored radio channel: its identity, artifact
// directories, counters, and the rolling transmission history. All mutable
// fields are guarded by the monitor's shared mutex.
type channelState struct {
	cfg config.ChannelConfig

	// audioDir and transcriptDir are the per-channel artifact roots.
	audioDir      string
	transcriptDir string

	recorded        int64
	transcribed     int64
	nonTransponder  int64
	lastTransmitted time.Time

	// callsigns accumulates unique regex-extracted identifiers.
	callsigns map[string]struct{}

	// history is a bounded ring of the most recent transmissions,
	// oldest first. historyCap bounds it.
	history    []atc.Transmission
	historyCap int
}

func newChannelState(cfg config.ChannelConfig, audioDir, transcriptDir string, historyCap int) *channelState {
	if historyCap < 1 {
		historyCap = 1
	}
	return &channelState{
		cfg:           cfg,
		audioDir:      audioDir,
		transcriptDir: transcriptDir,
		callsigns:     make(map[string]struct{}),
		historyCap:    historyCap,
	}
}

// append adds a transmission to the ring, evicting the oldest entry when
// the ring is full. Caller holds the monitor mutex.
func (c *channelState) append(tx atc.Transmission) {
	if len(c.history) == c.historyCap {
		copy(c.history, c.history[1:])
		c.history[len(c.history)-1] = tx
		return
	}
	c.history = append(c.history, tx)
}

// addCallsigns folds freshly extracted identifiers into the unique set.
// Caller holds the monitor mutex.
func (c *channelState) addCallsigns(ids []string) {
	for _, id := range ids {
		c.callsigns[id] = struct{}{}
	}
}

// callsignList returns the unique callsigns sorted for stable logging.
// Caller holds the monitor mutex.
func (c *channelState) callsignList() []string {
	out := make([]string, 0, len(c.callsigns))
	for cs := range c.callsigns {
		out = append(out, cs)
	}
	sort.Strings(out)
	return out
}

// recent returns a copy of the newest transmissions on this channel,
// oldest first, capped at limit. Caller holds the monitor mutex.
func (c *channelState) recent(limit int) []atc.Transmission {
	h := c.history
	if limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	out := make([]atc.Transmission, len(h))
	copy(out, h)
	return out
}
