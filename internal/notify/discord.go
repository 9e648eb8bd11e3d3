// Package notify delivers correlation alerts to external sinks. The only
// sink for now is a Discord text channel, posted write-only through a bot
// session: the bot never reads messages and registers no commands.
package notify

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/quonset/squawkbox/pkg/atc"
)

// Severity ranks for filtering. Unknown severities rank lowest so a typo in
// an alert never bypasses the filter.
var severityRank = map[string]int{
	"LOW":    1,
	"MEDIUM": 2,
	"HIGH":   3,
}

// Embed sidebar colors by severity.
const (
	embedColorYellow = 0xF1C40F
	embedColorOrange = 0xE67E22
	embedColorRed    = 0xE74C3C
)

// EmbedSender is the slice of the Discord session the notifier uses.
// *discordgo.Session satisfies it.
type EmbedSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts alert embeds to a single text channel. Safe for concurrent
// use; sends are serialized so embeds arrive in the order alerts fire.
type Discord struct {
	mu          sync.Mutex
	sender      EmbedSender
	session     *discordgo.Session // nil when constructed via NewDiscordWithSender
	channelID   string
	minSeverity int
	log         *slog.Logger
	closeOnce   sync.Once
}

// Config holds Discord sink settings.
type Config struct {
	// Token is the bot token, without the "Bot " prefix.
	Token string

	// ChannelID is the target text channel.
	ChannelID string

	// MinSeverity is the lowest severity that gets posted: "LOW", "MEDIUM",
	// or "HIGH". Empty means LOW.
	MinSeverity string
}

// NewDiscord connects a bot session and returns a Discord alert sink. The
// session is opened with no gateway intents beyond the minimum; the bot
// only writes.
func NewDiscord(cfg Config, log *slog.Logger) (*Discord, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("notify: create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("notify: open session: %w", err)
	}

	d := newDiscord(session, cfg, log)
	d.session = session
	return d, nil
}

// NewDiscordWithSender builds a sink around an existing sender. Used by
// tests to inject a recording double.
func NewDiscordWithSender(sender EmbedSender, cfg Config, log *slog.Logger) *Discord {
	return newDiscord(sender, cfg, log)
}

func newDiscord(sender EmbedSender, cfg Config, log *slog.Logger) *Discord {
	if log == nil {
		log = slog.Default()
	}
	min, ok := severityRank[strings.ToUpper(cfg.MinSeverity)]
	if !ok {
		min = severityRank["LOW"]
	}
	return &Discord{
		sender:      sender,
		channelID:   cfg.ChannelID,
		minSeverity: min,
		log:         log,
	}
}

// Notify posts one alert embed if it clears the severity filter. Delivery
// failures are logged, not returned: a dead webhook must never stall the
// correlation loop.
func (d *Discord) Notify(alert atc.Alert, channel string) {
	if severityRank[strings.ToUpper(alert.Severity)] < d.minSeverity {
		return
	}

	embed := buildAlertEmbed(alert, channel)

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.sender.ChannelMessageSendEmbed(d.channelID, embed); err != nil {
		d.log.Warn("alert notification failed",
			"channel_id", d.channelID, "type", alert.Type, "err", err)
		return
	}
	d.log.Debug("alert posted", "type", alert.Type, "severity", alert.Severity)
}

// Close disconnects the bot session. Safe to call more than once.
func (d *Discord) Close() error {
	var closeErr error
	d.closeOnce.Do(func() {
		if d.session != nil {
			closeErr = d.session.Close()
		}
	})
	return closeErr
}

// buildAlertEmbed renders one alert as a Discord embed.
func buildAlertEmbed(alert atc.Alert, channel string) *discordgo.MessageEmbed {
	color := embedColorYellow
	switch strings.ToUpper(alert.Severity) {
	case "MEDIUM":
		color = embedColorOrange
	case "HIGH":
		color = embedColorRed
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "Severity", Value: alert.Severity, Inline: true},
		{Name: "Confidence", Value: fmt.Sprintf("%.2f", alert.Confidence), Inline: true},
	}
	if channel != "" {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "Channel", Value: channel, Inline: true,
		})
	}

	return &discordgo.MessageEmbed{
		Title:       "ATC Alert: " + alert.Type,
		Description: alert.Details,
		Color:       color,
		Fields:      fields,
		Footer: &discordgo.MessageEmbedFooter{
			Text: "squawkbox",
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
