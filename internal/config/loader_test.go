package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validYAML = `
audio:
  vad_threshold: 0.12
  silence_duration: 2.5
channels:
  - name: "MSP Tower"
    frequency: "118.7"
    stream_url: "http://example.com/msp_twr"
  - name: "MSP Approach"
    frequency: "119.3"
    stream_url: "http://example.com/msp_app"
adsb:
  enabled: true
  source: mock
  airport_lat: 44.8848
  airport_lon: -93.2223
llm:
  enabled: true
  provider: ollama
  model: "gpt-oss:20b"
`

func TestLoadFromReader(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Audio.VADThreshold != 0.12 {
		t.Errorf("VADThreshold = %v, want 0.12", cfg.Audio.VADThreshold)
	}
	if len(cfg.Channels) != 2 {
		t.Fatalf("len(Channels) = %d, want 2", len(cfg.Channels))
	}
	if cfg.Channels[0].Name != "MSP Tower" || cfg.Channels[0].Frequency != "118.7" {
		t.Errorf("Channels[0] = %+v", cfg.Channels[0])
	}
	// Defaults fill in around explicit values.
	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want default 16000", cfg.Audio.SampleRate)
	}
	if cfg.LLM.ContextWindow != 12400 {
		t.Errorf("ContextWindow = %d, want default 12400", cfg.LLM.ContextWindow)
	}
}

func TestLoadFromReaderRejectsUnknownFields(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("audio:\n  bitrate: 128\n"))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{
			"vad threshold out of range",
			func(c *Config) { c.Audio.VADThreshold = 1.5 },
			"vad_threshold",
		},
		{
			"duplicate channel name",
			func(c *Config) { c.Channels[1].Name = c.Channels[0].Name },
			"duplicate",
		},
		{
			"channel missing stream url",
			func(c *Config) { c.Channels[0].StreamURL = "" },
			"stream_url is required",
		},
		{
			"adsbx without api key",
			func(c *Config) { c.ADSB.Source = SourceADSBX },
			"adsb.api_key is required",
		},
		{
			"llm model missing",
			func(c *Config) { c.LLM.Model = "" },
			"llm.model is required",
		},
		{
			"max response exceeds context window",
			func(c *Config) { c.LLM.MaxResponse = 20000 },
			"llm.max_response",
		},
		{
			"discord enabled without token",
			func(c *Config) { c.Notify.Discord.Enabled = true; c.Notify.Discord.ChannelID = "42" },
			"notify.discord.token is required",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := LoadFromReader(strings.NewReader(validYAML))
			if err != nil {
				t.Fatalf("LoadFromReader: %v", err)
			}
			tc.mutate(cfg)
			err = Validate(cfg)
			if err == nil {
				t.Fatal("Validate: expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Errorf("Validate error %q does not contain %q", err, tc.wantSub)
			}
		})
	}
}

func TestValidateJoinsMultipleErrors(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	cfg.Audio.VADThreshold = -1
	cfg.Channels[0].Frequency = ""
	err = Validate(cfg)
	if err == nil {
		t.Fatal("Validate: expected error, got nil")
	}
	if !strings.Contains(err.Error(), "vad_threshold") || !strings.Contains(err.Error(), "frequency is required") {
		t.Errorf("joined error missing parts: %q", err)
	}
}

func TestLoadOpenSkyCredentials(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		wantID  string
		wantErr bool
	}{
		{"camel case", `{"clientId":"abc","clientSecret":"s3cret"}`, "abc", false},
		{"snake case", `{"client_id":"def","client_secret":"s3cret"}`, "def", false},
		{"missing secret", `{"clientId":"abc"}`, "", true},
		{"not json", `clientId=abc`, "", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "credentials.json")
			if err := os.WriteFile(path, []byte(tc.json), 0o600); err != nil {
				t.Fatal(err)
			}
			creds, err := LoadOpenSkyCredentials(path)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadOpenSkyCredentials: %v", err)
			}
			if creds.ClientID != tc.wantID {
				t.Errorf("ClientID = %q, want %q", creds.ClientID, tc.wantID)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}
