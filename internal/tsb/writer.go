package tsb

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/tsb/internal/media"
	"github.com/jmylchreest/tsb/internal/metrics"
	"github.com/jmylchreest/tsb/internal/observability"
	"github.com/jmylchreest/tsb/internal/storage"
)

// JobState is the lifecycle state of a write job.
type JobState int

const (
	JobEnqueued JobState = iota
	JobWriting
	JobCommitted
	JobAlreadyExists
	JobFailedRetry
	JobFailedTerminal
)

func (s JobState) String() string {
	switch s {
	case JobEnqueued:
		return "enqueued"
	case JobWriting:
		return "writing"
	case JobCommitted:
		return "committed"
	case JobAlreadyExists:
		return "already_exists"
	case JobFailedRetry:
		return "failed_retry"
	case JobFailedTerminal:
		return "failed_terminal"
	default:
		return "unknown"
	}
}

// writeTarget applies the outcome of store writes to the indexes.
type writeTarget interface {
	// commitWrite registers a persisted job. existed is set when the store
	// already held the key.
	commitWrite(job WriteJob, mediaType media.MediaType, existed bool)
	// evictOldest drops the oldest fragment of a track from the index and
	// the store. It returns errTrackEmpty when there is nothing to drop.
	evictOldest(mediaType media.MediaType) error
}

// writer drains the write queue on a single goroutine. The queue lock is
// never held while the store is written.
type writer struct {
	store  FragmentStore
	target writeTarget
	logger *slog.Logger

	mu      sync.Mutex
	idle    *sync.Cond
	queue   []WriteJob
	pending int
	stopped bool

	wake   chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func newWriter(store FragmentStore, target writeTarget, logger *slog.Logger) *writer {
	w := &writer{
		store:  store,
		target: target,
		logger: observability.WithComponent(observability.OrDefault(logger), "tsb-writer"),
		wake:   make(chan struct{}, 1),
		stopCh: make(chan struct{}),
	}
	w.idle = sync.NewCond(&w.mu)
	return w
}

func (w *writer) start() {
	w.wg.Add(1)
	go w.run()
}

// enqueue appends a job and wakes the writer. Jobs submitted after stop are
// dropped.
func (w *writer) enqueue(job WriteJob) bool {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return false
	}
	w.queue = append(w.queue, job)
	w.pending++
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return true
}

// stop signals the writer, waits for the goroutine and drops queued jobs.
func (w *writer) stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	w.mu.Unlock()

	close(w.stopCh)
	w.wg.Wait()

	w.mu.Lock()
	dropped := len(w.queue)
	w.queue = nil
	w.pending = 0
	w.idle.Broadcast()
	w.mu.Unlock()

	if dropped > 0 {
		w.logger.Debug("dropped queued writes on stop", slog.Int("jobs", dropped))
	}
}

// waitIdle blocks until every enqueued job has finished or the writer stopped.
func (w *writer) waitIdle() {
	w.mu.Lock()
	for w.pending > 0 && !w.stopped {
		w.idle.Wait()
	}
	w.mu.Unlock()
}

// Pending returns the number of queued and in-flight jobs.
func (w *writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending
}

func (w *writer) run() {
	defer w.wg.Done()
	for {
		job, ok := w.next()
		if !ok {
			return
		}
		w.process(job)
		w.finish()
	}
}

// next pops the oldest job, parking until one arrives or stop is signalled.
func (w *writer) next() (WriteJob, bool) {
	for {
		select {
		case <-w.stopCh:
			return WriteJob{}, false
		default:
		}

		w.mu.Lock()
		if len(w.queue) > 0 {
			job := w.queue[0]
			w.queue[0] = WriteJob{}
			w.queue = w.queue[1:]
			w.mu.Unlock()
			return job, true
		}
		w.mu.Unlock()

		select {
		case <-w.wake:
		case <-w.stopCh:
			return WriteJob{}, false
		}
	}
}

func (w *writer) finish() {
	w.mu.Lock()
	if w.pending > 0 {
		w.pending--
	}
	if w.pending == 0 {
		w.idle.Broadcast()
	}
	w.mu.Unlock()
}

func (w *writer) stopping() bool {
	select {
	case <-w.stopCh:
		return true
	default:
		return false
	}
}

// process writes one job, evicting the oldest fragment of its track and
// retrying for as long as the store rejects the write.
func (w *writer) process(job WriteJob) JobState {
	frag := job.Fragment
	mt := frag.Type.Track()
	logger := w.logger.With(
		slog.String("media_type", mt.String()),
		slog.String("url", job.URL),
	)

	if len(frag.Data) == 0 {
		logger.Debug("skipping empty fragment")
		metrics.ObserveWrite(mt.String(), JobCommitted.String(), 0)
		return JobCommitted
	}

	start := time.Now()
	attempts := 0
	for {
		if w.stopping() {
			logger.Debug("writer stopped, dropping job", slog.Int("attempts", attempts))
			return JobFailedTerminal
		}

		attempts++
		writeStart := time.Now()
		err := w.store.Write(job.URL, frag.Data)
		attrs := []slog.Attr{
			slog.Duration("took", time.Since(writeStart)),
			slog.Int("bytes", len(frag.Data)),
			slog.Int64("bandwidth", frag.StreamInfo.Bandwidth),
			slog.Bool("init", frag.InitFragment),
			slog.Bool("discontinuity", frag.Discontinuity),
			slog.Float64("pts", job.PTS),
			slog.String("period", job.PeriodID),
		}

		switch {
		case err == nil:
			observability.Trace(context.Background(), logger, "fragment written", attrs...)
			w.target.commitWrite(job, mt, false)
			metrics.ObserveWrite(mt.String(), JobCommitted.String(), time.Since(start))
			return JobCommitted

		case errors.Is(err, storage.ErrAlreadyExists):
			observability.Trace(context.Background(), logger, "fragment already stored", attrs...)
			w.target.commitWrite(job, mt, true)
			metrics.ObserveWrite(mt.String(), JobAlreadyExists.String(), time.Since(start))
			return JobAlreadyExists
		}

		attrs = append(attrs, slog.String("error", err.Error()))
		if errors.Is(err, storage.ErrNoSpace) {
			// Expected under pressure; one line per eviction is enough.
			observability.Trace(context.Background(), logger, "fragment write failed", attrs...)
		} else {
			logger.LogAttrs(context.Background(), slog.LevelError, "fragment write failed", attrs...)
		}
		metrics.ObserveWrite(mt.String(), JobFailedRetry.String(), 0)

		if evictErr := w.target.evictOldest(mt); evictErr != nil {
			logger.Warn("giving up on fragment write",
				slog.Int("attempts", attempts),
				slog.String("error", evictErr.Error()),
			)
			metrics.ObserveWrite(mt.String(), JobFailedTerminal.String(), time.Since(start))
			return JobFailedTerminal
		}
	}
}
