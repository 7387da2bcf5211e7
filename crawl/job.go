package crawl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/onnwee/flvwatch/store"
	"github.com/onnwee/flvwatch/telemetry"
)

// Recorder mirrors a finished run somewhere outside the store file.
type Recorder interface {
	RecordRun(ctx context.Context, sum RunSummary) error
}

// Publisher pushes the written store somewhere readers can fetch it.
type Publisher interface {
	Publish(ctx context.Context, path, message string) error
}

// Job owns the store file lifecycle and serializes runs against it.
type Job struct {
	Pipeline  *Pipeline
	StorePath string
	// DryRun skips the store write, the mirror and publishing.
	DryRun    bool
	Recorder  Recorder
	Publisher Publisher

	runMu   sync.Mutex
	running atomic.Bool

	mu          sync.RWMutex
	lastSummary *RunSummary
	lastErr     error
	lastAt      time.Time
}

// Status is a snapshot of the most recent run attempt.
type Status struct {
	Running     bool        `json:"running"`
	LastAttempt time.Time   `json:"lastAttempt,omitempty"`
	LastError   string      `json:"lastError,omitempty"`
	LastRun     *RunSummary `json:"lastRun,omitempty"`
}

// Status reports whether a run is active and how the last one went.
func (j *Job) Status() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	st := Status{Running: j.running.Load(), LastAttempt: j.lastAt, LastRun: j.lastSummary}
	if j.lastErr != nil {
		st.LastError = j.lastErr.Error()
	}
	return st
}

// RunOnce loads the store, runs the pipeline and atomically replaces the store file.
// It returns ErrRunInProgress without doing anything when another run is active.
// Any pipeline or store error leaves the file on disk untouched. Mirror and publish
// failures are logged and do not fail the run.
func (j *Job) RunOnce(ctx context.Context) (RunSummary, error) {
	if !j.acquire() {
		return RunSummary{}, ErrRunInProgress
	}
	defer j.release()
	return j.runLocked(ctx)
}

// TryStart claims the run lock and performs the run in the background, calling done
// (when non-nil) with the outcome after the lock is released. It returns
// ErrRunInProgress when another run is active; the claim is settled before it returns.
func (j *Job) TryStart(ctx context.Context, done func(RunSummary, error)) error {
	if !j.acquire() {
		return ErrRunInProgress
	}
	go func() {
		sum, err := j.runLocked(ctx)
		j.release()
		if done != nil {
			done(sum, err)
		}
	}()
	return nil
}

func (j *Job) acquire() bool {
	if !j.runMu.TryLock() {
		telemetry.IncRunsSkipped()
		return false
	}
	j.running.Store(true)
	return true
}

func (j *Job) release() {
	j.running.Store(false)
	j.runMu.Unlock()
}

func (j *Job) runLocked(ctx context.Context) (RunSummary, error) {
	telemetry.IncRunsStarted()
	start := time.Now()
	var (
		sum RunSummary
		err error
	)
	telemetry.TimeFunc(telemetry.RunDuration, func() { sum, err = j.run(ctx) })

	j.mu.Lock()
	j.lastAt = start
	j.lastErr = err
	if err == nil {
		s := sum
		j.lastSummary = &s
	}
	j.mu.Unlock()

	if err != nil {
		telemetry.IncRunsFailed()
		return sum, err
	}
	if !j.DryRun {
		telemetry.RecordRunSuccess(sum.FinishedAt, sum.Records)
	}
	return sum, nil
}

func (j *Job) run(ctx context.Context) (RunSummary, error) {
	prior, err := store.Load(j.StorePath)
	if err != nil {
		return RunSummary{}, &storeError{op: "load", err: err}
	}
	next, sum, err := j.Pipeline.Run(ctx, prior)
	if err != nil {
		return sum, err
	}
	// A cancellation that lands after reconciliation still abandons the write.
	if err := ctx.Err(); err != nil {
		return sum, err
	}
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "crawl_job"), slog.String("run_id", sum.RunID))
	if j.DryRun {
		logger.Info("dry run, store not written", slog.Int("records", sum.Records))
		return sum, nil
	}
	if err := store.Save(j.StorePath, next); err != nil {
		return sum, &storeError{op: "save", err: err}
	}
	logger.Info("store written", slog.String("path", j.StorePath), slog.Int("records", sum.Records))

	if j.Recorder != nil {
		if err := j.Recorder.RecordRun(ctx, sum); err != nil {
			telemetry.IncMirrorFailures()
			logger.Warn("run mirror failed", slog.Any("err", err))
		}
	}
	if j.Publisher != nil {
		msg := fmt.Sprintf("update data %s", sum.FinishedAt.UTC().Format(time.RFC3339))
		if err := j.Publisher.Publish(ctx, j.StorePath, msg); err != nil {
			telemetry.IncPublishFailures()
			logger.Warn("store publish failed", slog.Any("err", err))
		}
	}
	return sum, nil
}

// Start runs the job (immediately when runOnStart is set) and then on every tick
// of interval until ctx ends. Overlapping triggers are skipped.
func (j *Job) Start(ctx context.Context, interval time.Duration, runOnStart bool) {
	slog.Info("crawl job starting", slog.Duration("interval", interval), slog.Bool("run_on_start", runOnStart))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	if runOnStart {
		j.trigger(ctx, "startup")
	}
	for {
		select {
		case <-ctx.Done():
			slog.Info("crawl job stopped")
			return
		case <-ticker.C:
			j.trigger(ctx, "schedule")
		}
	}
}

func (j *Job) trigger(ctx context.Context, source string) {
	sum, err := j.RunOnce(ctx)
	switch {
	case errors.Is(err, ErrRunInProgress):
		slog.Warn("crawl trigger skipped, previous run still active", slog.String("source", source))
	case err != nil:
		slog.Error("crawl run failed",
			slog.String("source", source),
			slog.String("class", ClassifyError(err).String()),
			slog.Any("err", err))
	default:
		slog.Info("crawl run finished",
			slog.String("source", source),
			slog.String("run_id", sum.RunID),
			slog.Int("observations", len(sum.Observations)),
			slog.Duration("took", sum.FinishedAt.Sub(sum.StartedAt)))
	}
}
