package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"crawlq/internal/command"
	"crawlq/internal/config"
	"crawlq/internal/logging"
	"crawlq/internal/queue"
	"crawlq/internal/telemetry"
)

// State is the worker loop state.
type State int

const (
	StateRunning State = iota
	StateDone
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const defaultPollInterval = 50 * time.Millisecond

// RunStats summarizes one run.
type RunStats struct {
	RunID     string
	Recovered int64
	Completed int
	Failed    int
	Enqueued  int
	Results   int
	Elapsed   time.Duration
}

// Runner executes queued commands until nothing claimable remains.
type Runner struct {
	queue     *queue.Queue
	env       command.Env
	logger    *slog.Logger
	metrics   *telemetry.Metrics
	heartbeat *HeartbeatMonitor

	runID        string
	workers      int
	pollInterval time.Duration

	mu    sync.Mutex
	state State
	stats RunStats
}

// Option configures optional Runner behavior.
type Option func(*Runner)

// WithMetrics records run activity on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithRunID overrides the generated run identifier.
func WithRunID(id string) Option {
	return func(r *Runner) {
		if id != "" {
			r.runID = id
		}
	}
}

// WithWorkers overrides the configured worker count.
func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithPollInterval sets how long an idle worker waits before re-checking the
// queue while other workers are still executing.
func WithPollInterval(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

// NewRunner constructs a Runner over q.
func NewRunner(cfg *config.Config, q *queue.Queue, env command.Env, logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	if env.MaxPages == 0 {
		env.MaxPages = cfg.Crawl.MaxPages
	}
	r := &Runner{
		queue:        q,
		env:          env,
		runID:        uuid.NewString(),
		workers:      cfg.Workflow.Workers,
		pollInterval: defaultPollInterval,
		state:        StateRunning,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.workers <= 0 {
		r.workers = 1
	}
	r.logger = logging.NewComponentLogger(logger, "workflow").With(logging.String(logging.FieldRunID, r.runID))
	r.heartbeat = NewHeartbeatMonitor(q.Store(), r.logger, cfg.HeartbeatInterval(), cfg.HeartbeatTimeout())
	return r
}

// RunID returns the identifier recorded against claims and failures.
func (r *Runner) RunID() string {
	return r.runID
}

// State reports whether the loop is still running.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Recover returns records left in flight by a previous process to pending.
// Callers must hold the run lock.
func (r *Runner) Recover(ctx context.Context) (int64, error) {
	reset, err := r.queue.Store().ResetInFlight(ctx)
	if err != nil {
		return 0, err
	}
	if reset > 0 {
		r.logger.Info("requeued in-flight commands from a previous run",
			logging.Int64("count", reset),
			logging.String(logging.FieldEventType, "crash_recovery"),
		)
	}
	r.mu.Lock()
	r.stats.Recovered = reset
	r.mu.Unlock()
	return reset, nil
}

// Seed enqueues one GenreList for rootURL when nothing is pending. It reports
// whether a root command was added.
func (r *Runner) Seed(ctx context.Context, rootURL string) (bool, error) {
	empty, err := r.queue.IsEmpty(ctx)
	if err != nil {
		return false, err
	}
	if !empty {
		r.logger.Info("resuming existing queue", logging.String(logging.FieldEventType, "resume"))
		return false, nil
	}
	root := command.NewGenreList(rootURL)
	id, err := r.queue.Enqueue(ctx, root)
	if err != nil {
		return false, fmt.Errorf("seed %s: %w", rootURL, err)
	}
	r.metrics.ObserveEnqueued(string(root.Kind()), 1)
	r.logger.Info("seeded root command",
		logging.Int64(logging.FieldCommandID, id),
		logging.String("url", rootURL),
		logging.String(logging.FieldEventType, "seed"),
	)
	return true, nil
}

// Run starts the workers and blocks until the loop is Done, a fatal queue
// error occurs, or ctx is cancelled. A command already executing when ctx is
// cancelled runs to completion or failure first.
func (r *Runner) Run(ctx context.Context) (RunStats, error) {
	start := time.Now()
	r.setState(StateRunning)
	r.logger.Info("worker loop started",
		logging.Int("workers", r.workers),
		logging.String(logging.FieldEventType, "run_started"),
	)

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var wg sync.WaitGroup
	for i := 1; i <= r.workers; i++ {
		workerID := fmt.Sprintf("%s/%d", shortRunID(r.runID), i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.work(logging.WithWorker(runCtx, workerID), workerID); err != nil {
				cancel(err)
			}
		}()
	}
	wg.Wait()

	r.setState(StateDone)
	r.refreshGauges(context.WithoutCancel(ctx))

	r.mu.Lock()
	r.stats.RunID = r.runID
	r.stats.Elapsed = time.Since(start)
	stats := r.stats
	r.mu.Unlock()

	if ctx.Err() == nil {
		if err := context.Cause(runCtx); err != nil {
			logging.ErrorWithContext(r.logger, "worker loop aborted", "run_aborted",
				logging.Error(err),
				logging.Alert("run_aborted"),
				logging.String(logging.FieldErrorHint, "inspect the record with crawlq queue show"),
			)
			return stats, err
		}
	} else {
		r.logger.Info("worker loop interrupted", logging.String(logging.FieldEventType, "run_interrupted"))
		return stats, ctx.Err()
	}
	r.logger.Info("worker loop done",
		logging.Int("completed", stats.Completed),
		logging.Int("failed", stats.Failed),
		logging.Int("enqueued", stats.Enqueued),
		logging.Duration("elapsed", stats.Elapsed),
		logging.String(logging.FieldEventType, "run_done"),
	)
	return stats, nil
}

func (r *Runner) work(ctx context.Context, workerID string) error {
	logger := logging.WithContext(ctx, r.logger)
	for {
		if ctx.Err() != nil {
			return nil
		}
		cmd, err := r.queue.Claim(ctx, r.runID, workerID)
		if errors.Is(err, queue.ErrEmptyQueue) {
			done, err := r.drained(ctx)
			if err != nil {
				return r.queueError(ctx, err)
			}
			if done {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(r.pollInterval):
			}
			continue
		}
		if err != nil {
			if decodeErr := (*queue.DecodeError)(nil); errors.As(err, &decodeErr) {
				logging.ErrorWithContext(logger, "stored command cannot be decoded", "decode_failed",
					logging.Int64(logging.FieldCommandID, decodeErr.ID),
					logging.String(logging.FieldKind, decodeErr.Kind),
					logging.Error(err),
					logging.Alert("serialization_failed"),
					logging.String(logging.FieldErrorHint, "inspect the record with crawlq queue show"),
				)
				return err
			}
			return r.queueError(ctx, err)
		}
		if err := r.execute(ctx, workerID, cmd); err != nil {
			return err
		}
	}
}

// drained reports whether this run has nothing left to do: no claimable
// record and no record still executing in another worker.
func (r *Runner) drained(ctx context.Context) (bool, error) {
	if _, err := r.heartbeat.ReclaimStale(ctx, r.runID); err != nil {
		return false, err
	}
	claimable, err := r.queue.HasClaimable(ctx, r.runID)
	if err != nil || claimable {
		return false, err
	}
	inFlight, err := r.queue.InFlightCount(ctx, r.runID)
	if err != nil {
		return false, err
	}
	return inFlight == 0, nil
}

func (r *Runner) queueError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("queue: %w", err)
}

func (r *Runner) execute(ctx context.Context, workerID string, cmd command.Command) error {
	kind := string(cmd.Kind())
	cmdCtx := logging.WithCommand(ctx, cmd.ID(), kind)
	logger := logging.WithContext(cmdCtx, r.logger)
	// Once claimed, a command finishes even if the run is cancelled.
	stepCtx := context.WithoutCancel(cmdCtx)

	stop := r.heartbeat.Start(stepCtx, cmd.ID())
	start := time.Now()
	outcome, execErr := cmd.Execute(stepCtx, r.env)
	stop()
	elapsed := time.Since(start)

	if execErr != nil {
		if err := r.queue.Fail(stepCtx, cmd, r.runID, execErr); err != nil {
			return fmt.Errorf("record failure of command %d: %w", cmd.ID(), err)
		}
		r.metrics.ObserveFailed(kind, elapsed)
		r.bump(func(s *RunStats) { s.Failed++ })
		logger.Warn("command failed; left pending for the next run",
			logging.String("target", cmd.Target()),
			logging.Error(execErr),
			logging.String(logging.FieldEventType, "command_failed"),
			logging.String(logging.FieldErrorHint, "run crawlq queue retry to try it again in this run"),
		)
		return nil
	}

	if err := r.queue.Commit(stepCtx, cmd, outcome); err != nil {
		if errors.Is(err, queue.ErrAlreadyCompleted) {
			logging.WarnWithContext(logger, "command was already completed; discarded its follow-ups", "command_duplicate",
				logging.String(logging.FieldErrorHint, "another process may be driving the same queue"),
			)
			return nil
		}
		logging.ErrorWithContext(logger, "commit failed", "commit_failed",
			logging.Error(err),
			logging.Alert("commit_failed"),
		)
		return fmt.Errorf("commit command %d: %w", cmd.ID(), err)
	}

	for _, f := range outcome.FollowUps {
		r.metrics.ObserveEnqueued(string(f.Kind()), 1)
	}
	r.metrics.ObserveCompleted(kind, elapsed)
	r.bump(func(s *RunStats) {
		s.Completed++
		s.Enqueued += len(outcome.FollowUps)
		s.Results += len(outcome.Results)
	})
	r.refreshGauges(stepCtx)
	logger.Debug("command completed",
		logging.String("target", cmd.Target()),
		logging.Int("follow_ups", len(outcome.FollowUps)),
		logging.Int("results", len(outcome.Results)),
		logging.Duration("elapsed", elapsed),
		logging.String(logging.FieldWorker, workerID),
	)
	return nil
}

func (r *Runner) refreshGauges(ctx context.Context) {
	if r.metrics == nil {
		return
	}
	health, err := r.queue.Store().Health(ctx)
	if err != nil {
		r.logger.Debug("queue gauge refresh failed", logging.Error(err))
		return
	}
	r.metrics.SetQueue(health)
}

func (r *Runner) bump(fn func(*RunStats)) {
	r.mu.Lock()
	fn(&r.stats)
	r.mu.Unlock()
}

func (r *Runner) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
