/*
Package jobqueue provides a River-based job queue for asynchronous review
runs.

For configuration options and tuning parameters, see queue_config.go.
*/
package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/rs/zerolog"

	"github.com/quorumreview/internal/review"
	"github.com/quorumreview/internal/strategy"
)

// ReviewJobArgs carries one queued review request.
type ReviewJobArgs struct {
	RunID   string         `json:"run_id"`
	Request review.Request `json:"request"`
}

// Kind returns the job kind for River.
func (ReviewJobArgs) Kind() string {
	return "review_run"
}

// ReviewWorker executes queued review runs through the orchestrator.
type ReviewWorker struct {
	river.WorkerDefaults[ReviewJobArgs]
	svc     *review.Service
	timeout time.Duration
	log     zerolog.Logger
}

// Timeout bounds a single review run, batches included.
func (w *ReviewWorker) Timeout(*river.Job[ReviewJobArgs]) time.Duration {
	return w.timeout
}

// Work runs one review. Input rejections cancel the job instead of burning
// retries: an empty or oversized change will not grow smaller on attempt two.
func (w *ReviewWorker) Work(ctx context.Context, job *river.Job[ReviewJobArgs]) error {
	args := job.Args

	w.log.Info().
		Str("run_id", args.RunID).
		Str("pr_id", args.Request.PRID).
		Str("repository", args.Request.Repository).
		Int("attempt", job.Attempt).
		Msg("review job started")

	report, err := w.svc.Run(ctx, args.Request)
	if err != nil {
		if isPermanent(err) {
			w.log.Warn().Str("run_id", args.RunID).Err(err).Msg("review job rejected")
			return river.JobCancel(err)
		}
		w.log.Error().Str("run_id", args.RunID).Err(err).Msg("review job failed")
		return fmt.Errorf("failed to run review: %w", err)
	}

	w.log.Info().
		Str("run_id", args.RunID).
		Str("mode", string(report.Decision.Mode)).
		Str("decision", string(report.Opinion.Decision)).
		Msg("review job completed")
	return nil
}

// isPermanent reports whether the error is an input rejection that no retry
// can fix.
func isPermanent(err error) bool {
	return errors.Is(err, strategy.ErrInvalidInput) ||
		errors.Is(err, strategy.ErrEmptyChange) ||
		errors.Is(err, strategy.ErrZeroLOC) ||
		errors.Is(err, strategy.ErrGeneratedOnly) ||
		errors.Is(err, review.ErrChangeTooLarge)
}

// Queue manages the River client and its worker pool.
type Queue struct {
	client *river.Client[pgx.Tx]
	pool   *pgxpool.Pool
	config *QueueConfig
	log    zerolog.Logger
}

// NewQueue creates the queue: a pgx pool, the review worker, and a River
// client over them. A nil config gets the defaults.
func NewQueue(ctx context.Context, databaseURL string, svc *review.Service, config *QueueConfig, log zerolog.Logger) (*Queue, error) {
	if config == nil {
		config = DefaultQueueConfig()
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, &ReviewWorker{svc: svc, timeout: config.JobTimeout, log: log})

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues:  config.RiverQueues(),
		Workers: workers,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}

	return &Queue{
		client: client,
		pool:   pool,
		config: config,
		log:    log,
	}, nil
}

// Start begins processing queued jobs.
func (q *Queue) Start(ctx context.Context) error {
	return q.client.Start(ctx)
}

// Stop drains the workers and stops the client.
func (q *Queue) Stop(ctx context.Context) error {
	return q.client.Stop(ctx)
}

// Close releases the connection pool. Call after Stop.
func (q *Queue) Close() {
	q.pool.Close()
}

// EnqueueReview queues one review run and returns its River job id.
func (q *Queue) EnqueueReview(ctx context.Context, runID string, req review.Request) (int64, error) {
	args := ReviewJobArgs{RunID: runID, Request: req}

	res, err := q.client.Insert(ctx, args, &river.InsertOpts{MaxAttempts: q.config.MaxAttempts})
	if err != nil {
		return 0, fmt.Errorf("failed to queue review job: %w", err)
	}

	q.log.Info().
		Str("run_id", runID).
		Int64("job_id", res.Job.ID).
		Str("pr_id", req.PRID).
		Msg("review job queued")
	return res.Job.ID, nil
}
