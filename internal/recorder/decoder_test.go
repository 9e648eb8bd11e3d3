package recorder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// fakeDecoder writes a shell script that stands in for ffmpeg. The
// script ignores the decoder argument list, emits whatever body says
// on stdout and exits with body's status.
func fakeDecoder(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "decoder.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func newFakeDecoderSource(t *testing.T, body string) *DecoderSource {
	t.Helper()
	src, err := NewDecoderSource(fakeDecoder(t, body), "http://example.invalid/stream", 16000, 1)
	if err != nil {
		t.Fatalf("NewDecoderSource: %v", err)
	}
	return src
}

func TestDecoderCrashSurfacesExitStatus(t *testing.T) {
	src := newFakeDecoderSource(t, "head -c 2048 /dev/zero; exit 3")
	r := New(src, testConfig(t), nil, nil)

	err := r.Run(context.Background())
	if err == nil {
		t.Fatal("Run returned nil for a decoder that exited with status 3")
	}
	if !strings.Contains(err.Error(), "exit status 3") {
		t.Errorf("Run error = %v, want exit status 3", err)
	}
}

func TestDecoderCleanExitEndsRun(t *testing.T) {
	src := newFakeDecoderSource(t, "head -c 2048 /dev/zero; exit 0")
	r := New(src, testConfig(t), nil, nil)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestDecoderShutdownIsNotACrash(t *testing.T) {
	src := newFakeDecoderSource(t, "exec cat /dev/zero")
	r := New(src, testConfig(t), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	if err := r.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
}
