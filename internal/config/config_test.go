package config

import "testing"

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()

	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", cfg.Audio.SampleRate)
	}
	if cfg.Audio.VADThreshold != 0.1 {
		t.Errorf("VADThreshold = %v, want 0.1", cfg.Audio.VADThreshold)
	}
	if cfg.Audio.SilenceDuration != 3.0 {
		t.Errorf("SilenceDuration = %v, want 3", cfg.Audio.SilenceDuration)
	}
	if cfg.Transcribe.Provider != STTWhisper {
		t.Errorf("Transcribe.Provider = %q, want whisper", cfg.Transcribe.Provider)
	}
	if cfg.Transcribe.NumWorkers != 5 {
		t.Errorf("NumWorkers = %d, want 5", cfg.Transcribe.NumWorkers)
	}
	if cfg.LLM.ContextWindow != 12400 || cfg.LLM.MaxResponse != 6400 {
		t.Errorf("token limits = %d/%d, want 12400/6400", cfg.LLM.ContextWindow, cfg.LLM.MaxResponse)
	}
	if cfg.LLM.ADSBPromptRatio != 0.70 {
		t.Errorf("ADSBPromptRatio = %v, want 0.70", cfg.LLM.ADSBPromptRatio)
	}
	if cfg.LLM.RequestTimeout != 220 {
		t.Errorf("RequestTimeout = %v, want 220", cfg.LLM.RequestTimeout)
	}
	if cfg.Bus.QueueSoftCap != 100 {
		t.Errorf("QueueSoftCap = %d, want 100", cfg.Bus.QueueSoftCap)
	}
	if cfg.Log.Level != LogInfo || cfg.Log.Format != LogText {
		t.Errorf("log defaults = %q/%q, want info/text", cfg.Log.Level, cfg.Log.Format)
	}
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Audio.VADThreshold = 0.25
	cfg.Transcribe.NumWorkers = 2
	cfg.LLM.MaxBatch = 4
	cfg.ApplyDefaults()

	if cfg.Audio.VADThreshold != 0.25 {
		t.Errorf("VADThreshold = %v, want 0.25", cfg.Audio.VADThreshold)
	}
	if cfg.Transcribe.NumWorkers != 2 {
		t.Errorf("NumWorkers = %d, want 2", cfg.Transcribe.NumWorkers)
	}
	if cfg.LLM.MaxBatch != 4 {
		t.Errorf("MaxBatch = %d, want 4", cfg.LLM.MaxBatch)
	}
}

func TestEnumValidity(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
		check func() bool
	}{
		{"stt whisper", true, STTWhisper.IsValid},
		{"stt unknown", false, STTProvider("deepgram").IsValid},
		{"adsb opensky", true, SourceOpenSky.IsValid},
		{"adsb unknown", false, ADSBSource("fr24").IsValid},
		{"llm ollama", true, LLMOllama.IsValid},
		{"llm unknown", false, LLMProvider("claude").IsValid},
		{"log level warn", true, LogWarn.IsValid},
		{"log level unknown", false, LogLevel("trace").IsValid},
		{"log format json", true, LogJSON.IsValid},
		{"log format unknown", false, LogFormat("logfmt").IsValid},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.check(); got != tc.valid {
				t.Errorf("IsValid() = %v, want %v", got, tc.valid)
			}
		})
	}
}
