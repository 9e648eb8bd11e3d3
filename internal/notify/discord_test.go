package notify

import (
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/quonset/squawkbox/pkg/atc"
)

// embedRecorder records ChannelMessageSendEmbed calls for test assertions.
type embedRecorder struct {
	Channels []string
	Embeds   []*discordgo.MessageEmbed
	Err      error
}

func (m *embedRecorder) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.Channels = append(m.Channels, channelID)
	m.Embeds = append(m.Embeds, embed)
	if m.Err != nil {
		return nil, m.Err
	}
	return &discordgo.Message{ID: "mock-msg"}, nil
}

func newTestSink(t *testing.T, minSeverity string) (*Discord, *embedRecorder) {
	t.Helper()
	rec := &embedRecorder{}
	d := NewDiscordWithSender(rec, Config{
		ChannelID:   "chan-1",
		MinSeverity: minSeverity,
	}, slog.Default())
	return d, rec
}

func TestNotify_PostsEmbed(t *testing.T) {
	d, rec := newTestSink(t, "LOW")

	d.Notify(atc.Alert{
		Type:       "EMERGENCY",
		Details:    "MAYDAY declared by DAL2617",
		Severity:   "HIGH",
		Confidence: 0.95,
	}, "Tower")

	if len(rec.Embeds) != 1 {
		t.Fatalf("embeds sent = %d, want 1", len(rec.Embeds))
	}
	if rec.Channels[0] != "chan-1" {
		t.Errorf("channel = %q, want %q", rec.Channels[0], "chan-1")
	}

	embed := rec.Embeds[0]
	if embed.Title != "ATC Alert: EMERGENCY" {
		t.Errorf("title = %q", embed.Title)
	}
	if embed.Description != "MAYDAY declared by DAL2617" {
		t.Errorf("description = %q", embed.Description)
	}
	if embed.Color != embedColorRed {
		t.Errorf("color = %#x, want %#x", embed.Color, embedColorRed)
	}

	var gotChannel, gotConfidence bool
	for _, f := range embed.Fields {
		switch f.Name {
		case "Channel":
			gotChannel = f.Value == "Tower"
		case "Confidence":
			gotConfidence = f.Value == "0.95"
		}
	}
	if !gotChannel {
		t.Error("embed missing Channel field with value Tower")
	}
	if !gotConfidence {
		t.Error("embed missing Confidence field with value 0.95")
	}
}

func TestNotify_SeverityFilter(t *testing.T) {
	tests := []struct {
		min      string
		severity string
		want     bool
	}{
		{"LOW", "LOW", true},
		{"LOW", "HIGH", true},
		{"MEDIUM", "LOW", false},
		{"MEDIUM", "MEDIUM", true},
		{"MEDIUM", "high", true},
		{"HIGH", "MEDIUM", false},
		{"HIGH", "HIGH", true},
		{"HIGH", "UNKNOWN", false},
		{"", "LOW", true},
	}

	for _, tc := range tests {
		t.Run(tc.min+"/"+tc.severity, func(t *testing.T) {
			d, rec := newTestSink(t, tc.min)
			d.Notify(atc.Alert{Type: "UNUSUAL", Severity: tc.severity}, "")

			sent := len(rec.Embeds) == 1
			if sent != tc.want {
				t.Errorf("sent = %v, want %v", sent, tc.want)
			}
		})
	}
}

func TestNotify_SeverityColors(t *testing.T) {
	tests := []struct {
		severity string
		want     int
	}{
		{"LOW", embedColorYellow},
		{"MEDIUM", embedColorOrange},
		{"HIGH", embedColorRed},
	}

	for _, tc := range tests {
		d, rec := newTestSink(t, "LOW")
		d.Notify(atc.Alert{Type: "UNUSUAL", Severity: tc.severity}, "")
		if len(rec.Embeds) != 1 {
			t.Fatalf("severity %s: no embed sent", tc.severity)
		}
		if rec.Embeds[0].Color != tc.want {
			t.Errorf("severity %s: color = %#x, want %#x", tc.severity, rec.Embeds[0].Color, tc.want)
		}
	}
}

func TestNotify_OmitsEmptyChannelField(t *testing.T) {
	d, rec := newTestSink(t, "LOW")
	d.Notify(atc.Alert{Type: "UNUSUAL", Severity: "LOW"}, "")

	for _, f := range rec.Embeds[0].Fields {
		if f.Name == "Channel" {
			t.Error("embed should not carry an empty Channel field")
		}
	}
}

func TestNotify_SendErrorDoesNotPropagate(t *testing.T) {
	rec := &embedRecorder{Err: errors.New("missing access")}
	d := NewDiscordWithSender(rec, Config{ChannelID: "chan-1"}, slog.Default())

	// Must not panic and must keep accepting alerts.
	d.Notify(atc.Alert{Type: "EMERGENCY", Severity: "HIGH"}, "Tower")
	d.Notify(atc.Alert{Type: "EMERGENCY", Severity: "HIGH"}, "Tower")

	if len(rec.Embeds) != 2 {
		t.Errorf("send attempts = %d, want 2", len(rec.Embeds))
	}
}

func TestClose_Idempotent(t *testing.T) {
	d, _ := newTestSink(t, "LOW")
	if err := d.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestBuildAlertEmbed_TitleUsesType(t *testing.T) {
	embed := buildAlertEmbed(atc.Alert{Type: "NON_TRANSPONDER", Severity: "MEDIUM"}, "Ground")
	if !strings.HasPrefix(embed.Title, "ATC Alert: ") {
		t.Errorf("title = %q", embed.Title)
	}
	if !strings.Contains(embed.Title, "NON_TRANSPONDER") {
		t.Errorf("title missing alert type: %q", embed.Title)
	}
}
