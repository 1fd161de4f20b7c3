// Package worker runs governance background work: queued notification
// delivery and the periodic restriction sweep. On postgres it is backed by
// River; on sqlite a cron scheduler runs the sweep and notifications are
// delivered inline.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/d9705996/commune/internal/notify"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/riverqueue/river/rivertype"
	"github.com/robfig/cron/v3"
)

// notifyMaxAttempts bounds redelivery of a failing notification.
const notifyMaxAttempts = 5

// Sweeper archives restrictions whose expiry has passed.
type Sweeper interface {
	SweepRestrictions(ctx context.Context) (int64, error)
}

// NotifyArgs carries one governance notification through the queue.
type NotifyArgs struct {
	Event notify.Event `json:"event"`
}

// Kind returns the unique job type identifier for notification jobs.
func (NotifyArgs) Kind() string { return "notification" }

// InsertOpts caps retries so a dead mailbox does not retry forever.
func (NotifyArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: notifyMaxAttempts}
}

type notifyWorker struct {
	river.WorkerDefaults[NotifyArgs]
	deliver notify.Notifier
}

func (w *notifyWorker) Work(ctx context.Context, job *river.Job[NotifyArgs]) error {
	return w.deliver.Notify(ctx, job.Args.Event)
}

// SweepArgs triggers one restriction sweep.
type SweepArgs struct{}

// Kind returns the unique job type identifier for sweep jobs.
func (SweepArgs) Kind() string { return "restriction_sweep" }

type sweepWorker struct {
	river.WorkerDefaults[SweepArgs]
	sweeper Sweeper
	log     *slog.Logger
}

func (w *sweepWorker) Work(ctx context.Context, _ *river.Job[SweepArgs]) error {
	return sweep(ctx, w.sweeper, w.log)
}

var errUnbound = errors.New("no sweeper bound")

func sweep(ctx context.Context, s Sweeper, log *slog.Logger) error {
	if s == nil {
		return errUnbound
	}
	n, err := s.SweepRestrictions(ctx)
	if err != nil {
		log.ErrorContext(ctx, "restriction sweep failed", "err", err)
		return err
	}
	if n > 0 {
		log.InfoContext(ctx, "restriction sweep", "archived", n)
	}
	return nil
}

// Inserter is the slice of river.Client used to enqueue jobs.
type Inserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// QueueNotifier enqueues notifications instead of delivering them, so a slow
// SMTP server or broker never holds up a governance request.
type QueueNotifier struct {
	jobs Inserter
}

// NewQueueNotifier returns a Notifier that enqueues through jobs.
func NewQueueNotifier(jobs Inserter) *QueueNotifier {
	return &QueueNotifier{jobs: jobs}
}

// Notify implements notify.Notifier.
func (q *QueueNotifier) Notify(ctx context.Context, ev notify.Event) error {
	if _, err := q.jobs.Insert(ctx, NotifyArgs{Event: ev}, nil); err != nil {
		return fmt.Errorf("enqueue %s: %w", ev.Type, err)
	}
	return nil
}

// Options configures New.
type Options struct {
	Concurrency   int
	SweepInterval time.Duration
	// Deliver sends notifications to their channels.
	Deliver notify.Notifier
}

// Queue is the interface exposed by both the River client and cronQueue.
type Queue interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	// Notifier is the channel the governance core should notify through.
	Notifier() notify.Notifier
	// Bind sets the sweeper run every SweepInterval. Call it before Start.
	Bind(s Sweeper)
}

// Client wraps river.Client and exposes a Start/Stop lifecycle.
type Client struct {
	client *river.Client[pgx.Tx]
	sweep  *sweepWorker
	log    *slog.Logger
}

// Start begins processing queued jobs.
func (c *Client) Start(ctx context.Context) error { return c.client.Start(ctx) }

// Stop gracefully shuts down the worker client.
func (c *Client) Stop(ctx context.Context) error { return c.client.Stop(ctx) }

// Notifier returns a QueueNotifier backed by the River client.
func (c *Client) Notifier() notify.Notifier { return NewQueueNotifier(c.client) }

// Bind implements Queue.
func (c *Client) Bind(s Sweeper) { c.sweep.sweeper = s }

// cronQueue is used when River is unavailable (DB_DRIVER=sqlite).
type cronQueue struct {
	cron     *cron.Cron
	deliver  notify.Notifier
	interval time.Duration
	sweeper  Sweeper
	log      *slog.Logger
}

func (q *cronQueue) Start(ctx context.Context) error {
	q.log.Info("river disabled on sqlite, running sweep on cron", "interval", q.interval)
	spec := fmt.Sprintf("@every %s", q.interval)
	if _, err := q.cron.AddFunc(spec, func() {
		_ = sweep(context.WithoutCancel(ctx), q.sweeper, q.log)
	}); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	q.cron.Start()
	return nil
}

func (q *cronQueue) Stop(ctx context.Context) error {
	select {
	case <-q.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *cronQueue) Notifier() notify.Notifier { return q.deliver }

func (q *cronQueue) Bind(s Sweeper) { q.sweeper = s }

// New creates a queue implementation appropriate for the given driver.
//   - "postgres": returns a River client backed by pool, with the sweep as a
//     periodic job.
//   - anything else: returns a cron-driven queue that sweeps in process.
//
// pool may be nil when driver != "postgres".
func New(ctx context.Context, pool *pgxpool.Pool, driver string, opts Options, log *slog.Logger) (Queue, error) {
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 15 * time.Minute
	}
	if opts.Deliver == nil {
		opts.Deliver = notify.Log{Logger: log}
	}
	if driver != "postgres" {
		return &cronQueue{
			cron:     cron.New(),
			deliver:  opts.Deliver,
			interval: opts.SweepInterval,
			log:      log,
		}, nil
	}

	sw := &sweepWorker{log: log}
	workers := river.NewWorkers()
	river.AddWorker(workers, &notifyWorker{deliver: opts.Deliver})
	river.AddWorker(workers, sw)

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: opts.Concurrency},
		},
		Workers: workers,
		PeriodicJobs: []*river.PeriodicJob{
			river.NewPeriodicJob(
				river.PeriodicInterval(opts.SweepInterval),
				func() (river.JobArgs, *river.InsertOpts) { return SweepArgs{}, nil },
				&river.PeriodicJobOpts{RunOnStart: true},
			),
		},
		Logger: log,
	})
	if err != nil {
		return nil, fmt.Errorf("create river client: %w", err)
	}
	return &Client{client: client, sweep: sw, log: log}, nil
}

// MigrateRiver runs River's built-in schema migrations against the given pool.
// Only call this when DB_DRIVER=postgres.
func MigrateRiver(ctx context.Context, db *pgxpool.Pool) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(db), nil)
	if err != nil {
		return fmt.Errorf("create river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return fmt.Errorf("run river migrations: %w", err)
	}
	return nil
}
