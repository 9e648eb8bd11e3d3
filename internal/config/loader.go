package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a
// validated [Config]. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. Useful in tests where configs are constructed
// from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
// Soft issues that do not prevent startup are logged as warnings.
func Validate(cfg *Config) error {
	var errs []error

	// Audio
	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Channels != 1 {
		errs = append(errs, fmt.Errorf("audio.channels %d is invalid; only mono (1) is supported", cfg.Audio.Channels))
	}
	if cfg.Audio.VADThreshold <= 0 || cfg.Audio.VADThreshold >= 1 {
		errs = append(errs, fmt.Errorf("audio.vad_threshold %.3f is out of range (0, 1)", cfg.Audio.VADThreshold))
	}
	if cfg.Audio.SilenceDuration <= 0 {
		errs = append(errs, fmt.Errorf("audio.silence_duration %.2f must be positive", cfg.Audio.SilenceDuration))
	}
	if cfg.Audio.MinTransmissionLength < 0 {
		errs = append(errs, fmt.Errorf("audio.min_transmission_length %.2f must not be negative", cfg.Audio.MinTransmissionLength))
	}
	if cfg.Audio.MaxDuration != 0 && cfg.Audio.MaxDuration < cfg.Audio.MinTransmissionLength {
		errs = append(errs, fmt.Errorf("audio.max_duration %.2f is shorter than audio.min_transmission_length %.2f",
			cfg.Audio.MaxDuration, cfg.Audio.MinTransmissionLength))
	}

	// Transcription
	if !cfg.Transcribe.Provider.IsValid() {
		errs = append(errs, fmt.Errorf("transcribe.provider %q is invalid; valid values: whisper, openai, mock", cfg.Transcribe.Provider))
	}
	if cfg.Transcribe.NumWorkers <= 0 {
		errs = append(errs, fmt.Errorf("transcribe.num_workers %d must be positive", cfg.Transcribe.NumWorkers))
	}
	if cfg.Transcribe.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("transcribe.queue_size %d must be positive", cfg.Transcribe.QueueSize))
	}
	if cfg.Transcribe.Provider == STTOpenAI && cfg.Transcribe.APIKey == "" {
		slog.Warn("transcribe.provider is openai but transcribe.api_key is empty; expecting OPENAI_API_KEY in the environment")
	}

	// Channels
	namesSeen := make(map[string]int, len(cfg.Channels))
	for i, ch := range cfg.Channels {
		prefix := fmt.Sprintf("channels[%d]", i)
		if ch.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := namesSeen[ch.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of channels[%d]", prefix, ch.Name, prev))
			}
			namesSeen[ch.Name] = i
		}
		if ch.Frequency == "" {
			errs = append(errs, fmt.Errorf("%s.frequency is required", prefix))
		}
		if ch.StreamURL == "" {
			errs = append(errs, fmt.Errorf("%s.stream_url is required", prefix))
		}
	}

	// ADS-B
	if cfg.ADSB.Enabled {
		if !cfg.ADSB.Source.IsValid() {
			errs = append(errs, fmt.Errorf("adsb.source %q is invalid; valid values: opensky, adsbx, local, mock", cfg.ADSB.Source))
		}
		if cfg.ADSB.AirportLat < -90 || cfg.ADSB.AirportLat > 90 {
			errs = append(errs, fmt.Errorf("adsb.airport_lat %.4f is out of range [-90, 90]", cfg.ADSB.AirportLat))
		}
		if cfg.ADSB.AirportLon < -180 || cfg.ADSB.AirportLon > 180 {
			errs = append(errs, fmt.Errorf("adsb.airport_lon %.4f is out of range [-180, 180]", cfg.ADSB.AirportLon))
		}
		if cfg.ADSB.SearchRadiusNM <= 0 {
			errs = append(errs, fmt.Errorf("adsb.search_radius_nm %.1f must be positive", cfg.ADSB.SearchRadiusNM))
		}
		if cfg.ADSB.Source == SourceOpenSky && cfg.ADSB.CredentialsFile == "" {
			slog.Warn("adsb.credentials_file is empty; using anonymous OpenSky access with a slower poll interval")
		}
		if cfg.ADSB.Source == SourceADSBX && cfg.ADSB.APIKey == "" {
			errs = append(errs, fmt.Errorf("adsb.api_key is required when adsb.source is adsbx"))
		}
		if cfg.ADSB.Source == SourceLocal && cfg.ADSB.BaseURL == "" {
			errs = append(errs, fmt.Errorf("adsb.base_url is required when adsb.source is local"))
		}
	}

	// LLM
	if cfg.LLM.Enabled {
		if !cfg.LLM.Provider.IsValid() {
			errs = append(errs, fmt.Errorf("llm.provider %q is invalid; valid values: ollama, openai, mock", cfg.LLM.Provider))
		}
		if cfg.LLM.Model == "" && cfg.LLM.Provider != LLMMock {
			errs = append(errs, fmt.Errorf("llm.model is required when llm.enabled is true"))
		}
		if cfg.LLM.MaxResponse >= cfg.LLM.ContextWindow {
			errs = append(errs, fmt.Errorf("llm.max_response %d must be smaller than llm.context_window %d",
				cfg.LLM.MaxResponse, cfg.LLM.ContextWindow))
		}
		if cfg.LLM.ADSBPromptRatio <= 0 || cfg.LLM.ADSBPromptRatio >= 1 {
			errs = append(errs, fmt.Errorf("llm.adsb_prompt_ratio %.2f is out of range (0, 1)", cfg.LLM.ADSBPromptRatio))
		}
		if cfg.LLM.AlertConfidenceThreshold < 0 || cfg.LLM.AlertConfidenceThreshold > 1 {
			errs = append(errs, fmt.Errorf("llm.alert_confidence_threshold %.2f is out of range [0, 1]", cfg.LLM.AlertConfidenceThreshold))
		}
		if cfg.LLM.Enabled && !cfg.ADSB.Enabled {
			slog.Warn("llm.enabled is true but adsb.enabled is false; correlations will run without surveillance contacts")
		}
	}

	// Bus
	if cfg.Bus.QueueSoftCap <= 0 {
		errs = append(errs, fmt.Errorf("bus.queue_soft_cap %d must be positive", cfg.Bus.QueueSoftCap))
	}
	if cfg.Bus.BatchInterval <= 0 {
		errs = append(errs, fmt.Errorf("bus.batch_interval %.2f must be positive", cfg.Bus.BatchInterval))
	}
	if cfg.Bus.BatchMax <= 0 {
		errs = append(errs, fmt.Errorf("bus.batch_max %d must be positive", cfg.Bus.BatchMax))
	}

	// Log
	if !cfg.Log.Level.IsValid() {
		errs = append(errs, fmt.Errorf("log.level %q is invalid; valid values: debug, info, warn, error", cfg.Log.Level))
	}
	if !cfg.Log.Format.IsValid() {
		errs = append(errs, fmt.Errorf("log.format %q is invalid; valid values: text, json", cfg.Log.Format))
	}

	// Notify
	if cfg.Notify.Discord.Enabled {
		if cfg.Notify.Discord.Token == "" {
			errs = append(errs, fmt.Errorf("notify.discord.token is required when notify.discord.enabled is true"))
		}
		if cfg.Notify.Discord.ChannelID == "" {
			errs = append(errs, fmt.Errorf("notify.discord.channel_id is required when notify.discord.enabled is true"))
		}
		switch cfg.Notify.Discord.MinSeverity {
		case "LOW", "MEDIUM", "HIGH":
		default:
			errs = append(errs, fmt.Errorf("notify.discord.min_severity %q is invalid; valid values: LOW, MEDIUM, HIGH", cfg.Notify.Discord.MinSeverity))
		}
	}

	return errors.Join(errs...)
}

// OpenSkyCredentials holds the client credentials issued by the
// OpenSky account portal. The portal has exported both camelCase and
// snake_case key spellings over time, so both are accepted.
type OpenSkyCredentials struct {
	ClientID     string
	ClientSecret string
}

// LoadOpenSkyCredentials reads an OpenSky credentials JSON file.
func LoadOpenSkyCredentials(path string) (*OpenSkyCredentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read credentials %q: %w", path, err)
	}

	var raw struct {
		ClientID      string `json:"clientId"`
		ClientIDSnake string `json:"client_id"`
		Secret        string `json:"clientSecret"`
		SecretSnake   string `json:"client_secret"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: decode credentials %q: %w", path, err)
	}

	creds := &OpenSkyCredentials{
		ClientID:     raw.ClientID,
		ClientSecret: raw.Secret,
	}
	if creds.ClientID == "" {
		creds.ClientID = raw.ClientIDSnake
	}
	if creds.ClientSecret == "" {
		creds.ClientSecret = raw.SecretSnake
	}
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, fmt.Errorf("config: credentials %q missing clientId or clientSecret", path)
	}
	return creds, nil
}
