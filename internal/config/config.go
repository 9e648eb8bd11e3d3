// Package config provides the configuration schema, loader, and
// validation for the Squawkbox monitor.
package config

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// LogFormat selects the slog handler.
type LogFormat string

const (
	LogText LogFormat = "text"
	LogJSON LogFormat = "json"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	return f == LogText || f == LogJSON
}

// STTProvider selects the speech-to-text backend for the worker pool.
type STTProvider string

const (
	STTWhisper STTProvider = "whisper"
	STTOpenAI  STTProvider = "openai"
	STTMock    STTProvider = "mock"
)

// IsValid reports whether p is a recognised STT provider.
func (p STTProvider) IsValid() bool {
	switch p {
	case STTWhisper, STTOpenAI, STTMock:
		return true
	}
	return false
}

// ADSBSource selects the surveillance feed.
type ADSBSource string

const (
	SourceOpenSky ADSBSource = "opensky"
	SourceADSBX   ADSBSource = "adsbx"
	SourceLocal   ADSBSource = "local"
	SourceMock    ADSBSource = "mock"
)

// IsValid reports whether s is a recognised surveillance source.
func (s ADSBSource) IsValid() bool {
	switch s {
	case SourceOpenSky, SourceADSBX, SourceLocal, SourceMock:
		return true
	}
	return false
}

// LLMProvider selects the correlator generation backend.
type LLMProvider string

const (
	LLMOllama LLMProvider = "ollama"
	LLMOpenAI LLMProvider = "openai"
	LLMMock   LLMProvider = "mock"
)

// IsValid reports whether p is a recognised LLM provider.
func (p LLMProvider) IsValid() bool {
	switch p {
	case LLMOllama, LLMOpenAI, LLMMock:
		return true
	}
	return false
}

// Config is the root configuration structure for Squawkbox. It is
// typically loaded from a YAML file using [Load] or [LoadFromReader];
// both apply defaults before validating.
type Config struct {
	Audio      AudioConfig      `yaml:"audio"`
	Transcribe TranscribeConfig `yaml:"transcribe"`
	Channels   []ChannelConfig  `yaml:"channels"`
	ADSB       ADSBConfig       `yaml:"adsb"`
	LLM        LLMConfig        `yaml:"llm"`
	Bus        BusConfig        `yaml:"bus"`
	Feed       FeedConfig       `yaml:"feed"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Notify     NotifyConfig     `yaml:"notify"`
}

// AudioConfig holds recorder and artifact settings shared by all channels.
type AudioConfig struct {
	// SampleRate is the PCM rate the decoder is asked to produce, Hz.
	SampleRate int `yaml:"sample_rate"`

	// Channels is the decoder channel count. Mono is correct for ATC.
	Channels int `yaml:"channels"`

	// VADThreshold is the normalized RMS level above which a chunk
	// counts as voice, in (0, 1).
	VADThreshold float64 `yaml:"vad_threshold"`

	// SilenceDuration is how many seconds of silence end a transmission.
	SilenceDuration float64 `yaml:"silence_duration"`

	// MinTransmissionLength discards segments shorter than this many
	// seconds of audio.
	MinTransmissionLength float64 `yaml:"min_transmission_length"`

	// MaxDuration force-closes a segment after this many seconds of
	// audio. Zero disables the cap.
	MaxDuration float64 `yaml:"max_duration"`

	// AudioDir, TranscriptDir and AnalysisDir are the artifact roots.
	// Channel subdirectories are created beneath the first two.
	AudioDir      string `yaml:"audio_dir"`
	TranscriptDir string `yaml:"transcript_dir"`
	AnalysisDir   string `yaml:"analysis_dir"`

	// DecoderCommand overrides the stream decoder binary. Empty means
	// "ffmpeg" from PATH.
	DecoderCommand string `yaml:"decoder_command"`
}

// TranscribeConfig holds worker pool and model settings.
type TranscribeConfig struct {
	// Provider selects the STT backend.
	Provider STTProvider `yaml:"provider"`

	// ModelSize is the whisper model identifier or file basename, e.g.
	// "small.en" or "distil-large-v3".
	ModelSize string `yaml:"model_size"`

	// ModelDir is where whisper model files live.
	ModelDir string `yaml:"model_dir"`

	// NumWorkers is the number of parallel transcription workers, each
	// owning its own model instance.
	NumWorkers int `yaml:"num_workers"`

	// QueueSize is the job queue high-water mark; producers block when
	// it is full.
	QueueSize int `yaml:"queue_size"`

	// Language is the decode language code.
	Language string `yaml:"language"`

	// InitialPrompt primes the decoder with domain vocabulary.
	InitialPrompt string `yaml:"initial_prompt"`

	// APIKey authenticates the openai provider. Ignored by others.
	APIKey string `yaml:"api_key"`
}

// ChannelConfig describes one monitored radio channel.
type ChannelConfig struct {
	// Name is the stable channel identifier, e.g. "MSP Tower".
	Name string `yaml:"name"`

	// Frequency is the dial string in MHz, e.g. "118.7".
	Frequency string `yaml:"frequency"`

	// StreamURL is the compressed audio stream to decode.
	StreamURL string `yaml:"stream_url"`

	// Color is the display color forwarded to UI subscribers.
	Color string `yaml:"color"`
}

// ADSBConfig holds surveillance poller settings.
type ADSBConfig struct {
	Enabled bool       `yaml:"enabled"`
	Source  ADSBSource `yaml:"source"`

	// BaseURL overrides the source's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// TokenURL overrides the OpenSky OAuth token endpoint.
	TokenURL string `yaml:"token_url"`

	// CredentialsFile is a JSON file holding clientId/clientSecret for
	// OpenSky. Empty means anonymous access.
	CredentialsFile string `yaml:"credentials_file"`

	// APIKey authenticates the adsbx source.
	APIKey string `yaml:"api_key"`

	// AirportLat and AirportLon are the reference point, WGS-84 degrees.
	AirportLat float64 `yaml:"airport_lat"`
	AirportLon float64 `yaml:"airport_lon"`

	// SearchRadiusNM bounds the contact set, nautical miles.
	SearchRadiusNM float64 `yaml:"search_radius_nm"`

	// PollIntervalAuth and PollIntervalAnon are the minimum seconds
	// between provider requests with and without credentials.
	PollIntervalAuth float64 `yaml:"poll_interval_auth"`
	PollIntervalAnon float64 `yaml:"poll_interval_anon"`
}

// LLMConfig holds correlator settings. The token-budget fields mirror
// the generation backend's accounting; see internal/correlate.
type LLMConfig struct {
	Enabled  bool        `yaml:"enabled"`
	Provider LLMProvider `yaml:"provider"`

	// Model is the backend model name, e.g. "gpt-oss:20b".
	Model string `yaml:"model"`

	// BaseURL overrides the backend's default endpoint.
	BaseURL string `yaml:"base_url"`

	// APIKey authenticates the openai provider.
	APIKey string `yaml:"api_key"`

	// RequestTimeout is the per-call HTTP timeout in seconds.
	RequestTimeout float64 `yaml:"request_timeout"`

	// ContextWindow and MaxResponse are the model's token limits.
	ContextWindow int `yaml:"context_window"`
	MaxResponse   int `yaml:"max_response"`

	// CharsPerToken is the conservative chars-to-tokens ratio used for
	// prompt budgeting.
	CharsPerToken float64 `yaml:"chars_per_token"`

	// TokensPerCorrelation estimates response tokens consumed per
	// correlation entry; ResponseJSONOverhead covers the JSON wrapper.
	TokensPerCorrelation int `yaml:"tokens_per_correlation"`
	ResponseJSONOverhead int `yaml:"response_json_overhead"`

	// MaxBatch hard-caps transmissions per request.
	MaxBatch int `yaml:"max_batch"`

	// ADSBPromptRatio is the share of the remaining prompt budget given
	// to contact lines, in (0, 1); transmissions get the rest.
	ADSBPromptRatio float64 `yaml:"adsb_prompt_ratio"`

	// Sampling parameters forwarded to the backend.
	Temperature   float64 `yaml:"temperature"`
	TopP          float64 `yaml:"top_p"`
	RepeatPenalty float64 `yaml:"repeat_penalty"`

	// SafetyMargin is how close (tokens) a response may come to
	// MaxResponse before it is treated as truncated.
	SafetyMargin int `yaml:"safety_margin"`

	// AlertConfidenceThreshold suppresses alerts below this confidence.
	AlertConfidenceThreshold float64 `yaml:"alert_confidence_threshold"`

	// MaxADSBContacts and MaxTransmissions cap the correlator inputs
	// before budgeting.
	MaxADSBContacts  int `yaml:"max_adsb_contacts"`
	MaxTransmissions int `yaml:"max_transmissions"`

	// CorrelationWindow, AltitudeTolerance and PositionTolerance tune
	// the heuristic lookup helpers (seconds, feet, nautical miles).
	CorrelationWindow int `yaml:"correlation_window"`
	AltitudeTolerance int `yaml:"altitude_tolerance"`
	PositionTolerance int `yaml:"position_tolerance"`
}

// BusConfig holds event delivery settings.
type BusConfig struct {
	// QueueSoftCap is the per-subscriber queue bound; the oldest event
	// is dropped beyond it.
	QueueSoftCap int `yaml:"queue_soft_cap"`

	// BatchInterval is the minimum seconds between transmission-batch
	// flushes; BatchMax caps the batch size.
	BatchInterval float64 `yaml:"batch_interval"`
	BatchMax      int     `yaml:"batch_max"`
}

// FeedConfig holds the HTTP feed settings. The websocket event feed,
// health endpoints and /metrics share one listener.
type FeedConfig struct {
	Enabled bool `yaml:"enabled"`

	// Listen is the TCP address, e.g. ":8571".
	Listen string `yaml:"listen"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`

	// File enables rotated file output in addition to stderr. Empty
	// means stderr only.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// NotifyConfig holds alert sink settings.
type NotifyConfig struct {
	Discord DiscordConfig `yaml:"discord"`
}

// DiscordConfig configures the Discord alert sink.
type DiscordConfig struct {
	Enabled bool `yaml:"enabled"`

	// Token is the bot token, ChannelID the target text channel.
	Token     string `yaml:"token"`
	ChannelID string `yaml:"channel_id"`

	// MinSeverity filters alerts: "LOW" posts everything, "HIGH" only
	// the worst.
	MinSeverity string `yaml:"min_severity"`
}

// ApplyDefaults fills zero-valued fields with working defaults. The
// loader calls it before validation; exported so tests and the CLI can
// build configs programmatically.
func (c *Config) ApplyDefaults() {
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.Channels == 0 {
		c.Audio.Channels = 1
	}
	if c.Audio.VADThreshold == 0 {
		c.Audio.VADThreshold = 0.1
	}
	if c.Audio.SilenceDuration == 0 {
		c.Audio.SilenceDuration = 3.0
	}
	if c.Audio.MinTransmissionLength == 0 {
		c.Audio.MinTransmissionLength = 1.0
	}
	if c.Audio.AudioDir == "" {
		c.Audio.AudioDir = "audio/raw"
	}
	if c.Audio.TranscriptDir == "" {
		c.Audio.TranscriptDir = "transcripts"
	}
	if c.Audio.AnalysisDir == "" {
		c.Audio.AnalysisDir = "analysis"
	}

	if c.Transcribe.Provider == "" {
		c.Transcribe.Provider = STTWhisper
	}
	if c.Transcribe.ModelSize == "" {
		c.Transcribe.ModelSize = "small.en"
	}
	if c.Transcribe.ModelDir == "" {
		c.Transcribe.ModelDir = "models"
	}
	if c.Transcribe.NumWorkers == 0 {
		c.Transcribe.NumWorkers = 5
	}
	if c.Transcribe.QueueSize == 0 {
		c.Transcribe.QueueSize = 32
	}
	if c.Transcribe.Language == "" {
		c.Transcribe.Language = "en"
	}

	if c.ADSB.Source == "" {
		c.ADSB.Source = SourceOpenSky
	}
	if c.ADSB.SearchRadiusNM == 0 {
		c.ADSB.SearchRadiusNM = 50
	}
	if c.ADSB.PollIntervalAuth == 0 {
		c.ADSB.PollIntervalAuth = 5
	}
	if c.ADSB.PollIntervalAnon == 0 {
		c.ADSB.PollIntervalAnon = 10
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = LLMOllama
	}
	if c.LLM.RequestTimeout == 0 {
		c.LLM.RequestTimeout = 220
	}
	if c.LLM.ContextWindow == 0 {
		c.LLM.ContextWindow = 12400
	}
	if c.LLM.MaxResponse == 0 {
		c.LLM.MaxResponse = 6400
	}
	if c.LLM.CharsPerToken == 0 {
		c.LLM.CharsPerToken = 4.0
	}
	if c.LLM.TokensPerCorrelation == 0 {
		c.LLM.TokensPerCorrelation = 180
	}
	if c.LLM.ResponseJSONOverhead == 0 {
		c.LLM.ResponseJSONOverhead = 200
	}
	if c.LLM.MaxBatch == 0 {
		c.LLM.MaxBatch = 10
	}
	if c.LLM.ADSBPromptRatio == 0 {
		c.LLM.ADSBPromptRatio = 0.70
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.3
	}
	if c.LLM.TopP == 0 {
		c.LLM.TopP = 0.9
	}
	if c.LLM.RepeatPenalty == 0 {
		c.LLM.RepeatPenalty = 1.1
	}
	if c.LLM.SafetyMargin == 0 {
		c.LLM.SafetyMargin = 50
	}
	if c.LLM.AlertConfidenceThreshold == 0 {
		c.LLM.AlertConfidenceThreshold = 0.7
	}
	if c.LLM.MaxADSBContacts == 0 {
		c.LLM.MaxADSBContacts = 100
	}
	if c.LLM.MaxTransmissions == 0 {
		c.LLM.MaxTransmissions = 15
	}
	if c.LLM.CorrelationWindow == 0 {
		c.LLM.CorrelationWindow = 30
	}
	if c.LLM.AltitudeTolerance == 0 {
		c.LLM.AltitudeTolerance = 500
	}
	if c.LLM.PositionTolerance == 0 {
		c.LLM.PositionTolerance = 5
	}

	if c.Bus.QueueSoftCap == 0 {
		c.Bus.QueueSoftCap = 100
	}
	if c.Bus.BatchInterval == 0 {
		c.Bus.BatchInterval = 0.5
	}
	if c.Bus.BatchMax == 0 {
		c.Bus.BatchMax = 20
	}

	if c.Feed.Listen == "" {
		c.Feed.Listen = ":8571"
	}

	if c.Log.Level == "" {
		c.Log.Level = LogInfo
	}
	if c.Log.Format == "" {
		c.Log.Format = LogText
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 50
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 3
	}

	if c.Notify.Discord.MinSeverity == "" {
		c.Notify.Discord.MinSeverity = "MEDIUM"
	}
}
