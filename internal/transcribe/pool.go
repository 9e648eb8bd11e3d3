// Package transcribe runs a bounded pool of speech-to-text workers.
//
// Each worker owns one Transcriber built from the pool's Factory, so
// model instances are never shared between goroutines. Jobs enter
// through a bounded queue; producers block when the queue is full,
// which back-pressures the recorders instead of growing memory.
package transcribe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quonset/squawkbox/pkg/provider/stt"
)

// DefaultQueueSize bounds the job queue when no option overrides it.
const DefaultQueueSize = 32

// Job is one recorded segment waiting for transcription.
type Job struct {
	// Path is the WAV file to transcribe.
	Path string

	// Channel and Frequency identify the radio channel the segment was
	// recorded from.
	Channel   string
	Frequency string

	// RecordedAt is when the transmission started.
	RecordedAt time.Time

	// Duration is the audio length in seconds.
	Duration float64
}

// Result pairs a finished transcription with its originating job.
type Result struct {
	Job Job
	STT stt.Result

	// Worker is the index of the worker that produced the result.
	Worker int

	// Elapsed is the wall-clock decode time.
	Elapsed time.Duration
}

// ResultFunc receives transcriptions that produced text. Called from
// worker goroutines.
type ResultFunc func(Result)

// StatusFunc observes worker busy/idle transitions. Busy transitions
// carry the channel whose segment the worker picked up; idle transitions
// carry the empty string. Called from worker goroutines.
type StatusFunc func(worker int, busy bool, channel string)

type config struct {
	queueSize int
	log       *slog.Logger
	onResult  ResultFunc
	onStatus  StatusFunc
}

// Option configures a Pool.
type Option func(*config)

// WithQueueSize overrides the job queue bound.
func WithQueueSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// WithLogger sets the pool logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *config) {
		if log != nil {
			c.log = log
		}
	}
}

// WithResultHandler sets the callback invoked for every transcription
// that yields non-empty text. Empty results are counted but not
// delivered; there is nothing downstream to do with them.
func WithResultHandler(fn ResultFunc) Option {
	return func(c *config) { c.onResult = fn }
}

// WithStatusHandler sets the worker busy/idle observer.
func WithStatusHandler(fn StatusFunc) Option {
	return func(c *config) { c.onStatus = fn }
}

// Pool is a fixed-size transcription worker pool.
type Pool struct {
	workers int
	factory stt.Factory
	cfg     config

	queue chan Job
	wg    sync.WaitGroup

	started  atomic.Bool
	stopOnce sync.Once

	errorCount atomic.Int64
	emptyCount atomic.Int64
	doneCount  atomic.Int64
}

// NewPool builds a pool of the given worker count over factory.
func NewPool(workers int, factory stt.Factory, opts ...Option) *Pool {
	if workers < 1 {
		workers = 1
	}
	cfg := config{
		queueSize: DefaultQueueSize,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Pool{
		workers: workers,
		factory: factory,
		cfg:     cfg,
		queue:   make(chan Job, cfg.queueSize),
	}
}

// Start builds one Transcriber per worker and launches the workers.
// A factory failure is fatal: transcribers already built are closed
// and the error is returned, because a pool missing workers would
// silently fall behind the recorders.
func (p *Pool) Start(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return fmt.Errorf("transcribe: pool already started")
	}

	transcribers := make([]stt.Transcriber, 0, p.workers)
	for i := 0; i < p.workers; i++ {
		tr, err := p.factory(ctx)
		if err != nil {
			for _, t := range transcribers {
				closeTranscriber(t, p.cfg.log)
			}
			return fmt.Errorf("transcribe: build worker %d: %w", i, err)
		}
		transcribers = append(transcribers, tr)
	}

	for i, tr := range transcribers {
		p.wg.Add(1)
		p.setStatus(i, false, "")
		go p.worker(ctx, i, tr)
	}
	p.cfg.log.Info("transcription pool started", "workers", p.workers, "queue_size", cap(p.queue))
	return nil
}

// Submit queues a job, blocking while the queue is full. It returns
// ctx's error if the caller gives up first.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	select {
	case p.queue <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop closes the queue, waits for in-flight jobs to finish, and shuts
// the workers down. Safe to call more than once.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.queue)
	})
	p.wg.Wait()
}

// Started reports whether Start has run.
func (p *Pool) Started() bool { return p.started.Load() }

// QueueDepth reports how many jobs are waiting.
func (p *Pool) QueueDepth() int { return len(p.queue) }

// Completed reports how many jobs have finished, successfully or not.
func (p *Pool) Completed() int64 { return p.doneCount.Load() }

// Errors reports how many jobs failed.
func (p *Pool) Errors() int64 { return p.errorCount.Load() }

// Empty reports how many jobs decoded to no speech.
func (p *Pool) Empty() int64 { return p.emptyCount.Load() }

func (p *Pool) worker(ctx context.Context, id int, tr stt.Transcriber) {
	defer p.wg.Done()
	defer closeTranscriber(tr, p.cfg.log)

	log := p.cfg.log.With("worker", id)
	for job := range p.queue {
		p.setStatus(id, true, job.Channel)
		start := time.Now()
		res, err := tr.Transcribe(ctx, job.Path)
		elapsed := time.Since(start)
		p.doneCount.Add(1)
		p.setStatus(id, false, "")

		switch {
		case err != nil:
			p.errorCount.Add(1)
			log.Error("transcription failed", "path", job.Path, "error", err)
		case res.Text == "":
			p.emptyCount.Add(1)
			log.Debug("no speech recognized", "path", job.Path)
		default:
			log.Debug("transcribed", "path", job.Path, "chars", len(res.Text), "elapsed", elapsed)
			if p.cfg.onResult != nil {
				p.cfg.onResult(Result{Job: job, STT: res, Worker: id, Elapsed: elapsed})
			}
		}
	}
}

func (p *Pool) setStatus(id int, busy bool, channel string) {
	if p.cfg.onStatus != nil {
		p.cfg.onStatus(id, busy, channel)
	}
}

func closeTranscriber(tr stt.Transcriber, log *slog.Logger) {
	if c, ok := tr.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.Warn("failed to close transcriber", "error", err)
		}
	}
}
