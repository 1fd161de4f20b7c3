package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/d9705996/commune/internal/notify"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeInserter struct {
	mu   sync.Mutex
	args []river.JobArgs
	err  error
}

func (f *fakeInserter) Insert(_ context.Context, args river.JobArgs, _ *river.InsertOpts) (*rivertype.JobInsertResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.args = append(f.args, args)
	return &rivertype.JobInsertResult{Job: &rivertype.JobRow{}}, nil
}

type captureNotifier struct {
	events []notify.Event
}

func (c *captureNotifier) Notify(_ context.Context, ev notify.Event) error {
	c.events = append(c.events, ev)
	return nil
}

type countingSweeper struct {
	calls atomic.Int64
	err   error
}

func (s *countingSweeper) SweepRestrictions(context.Context) (int64, error) {
	s.calls.Add(1)
	return 2, s.err
}

func TestQueueNotifier_EnqueuesEvent(t *testing.T) {
	jobs := &fakeInserter{}
	ev := notify.Event{Type: notify.EventTransferOffered, CommunityID: "c-1", RecipientID: "u-2"}

	require.NoError(t, NewQueueNotifier(jobs).Notify(context.Background(), ev))
	require.Len(t, jobs.args, 1)
	assert.Equal(t, NotifyArgs{Event: ev}, jobs.args[0])
	assert.Equal(t, "notification", jobs.args[0].Kind())
}

func TestQueueNotifier_InsertFailure(t *testing.T) {
	jobs := &fakeInserter{err: errors.New("pool closed")}
	err := NewQueueNotifier(jobs).Notify(context.Background(), notify.Event{Type: notify.EventJoinRequestCreated})
	require.Error(t, err)
	assert.Contains(t, err.Error(), notify.EventJoinRequestCreated)
}

func TestNotifyWorker_Delivers(t *testing.T) {
	sink := &captureNotifier{}
	w := &notifyWorker{deliver: sink}
	ev := notify.Event{Type: notify.EventTransferAccepted, RecipientID: "u-1"}

	err := w.Work(context.Background(), &river.Job[NotifyArgs]{JobRow: &rivertype.JobRow{}, Args: NotifyArgs{Event: ev}})
	require.NoError(t, err)
	assert.Equal(t, []notify.Event{ev}, sink.events)
	assert.Equal(t, notifyMaxAttempts, NotifyArgs{}.InsertOpts().MaxAttempts)
}

func TestSweepWorker(t *testing.T) {
	w := &sweepWorker{log: discard}
	job := &river.Job[SweepArgs]{JobRow: &rivertype.JobRow{}}
	assert.ErrorIs(t, w.Work(context.Background(), job), errUnbound)

	s := &countingSweeper{}
	w.sweeper = s
	require.NoError(t, w.Work(context.Background(), job))
	assert.Equal(t, int64(1), s.calls.Load())

	s.err = errors.New("db gone")
	assert.Error(t, w.Work(context.Background(), job))
}

func TestNew_SQLiteRunsSweepOnCron(t *testing.T) {
	deliver := &captureNotifier{}
	q, err := New(context.Background(), nil, "sqlite", Options{SweepInterval: time.Second, Deliver: deliver}, discard)
	require.NoError(t, err)
	assert.Same(t, deliver, q.Notifier())

	s := &countingSweeper{}
	q.Bind(s)
	require.NoError(t, q.Start(context.Background()))
	t.Cleanup(func() { _ = q.Stop(context.Background()) })

	assert.Eventually(t, func() bool { return s.calls.Load() > 0 }, 5*time.Second, 50*time.Millisecond)
}
