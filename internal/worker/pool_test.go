package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rideguardian/internal/apperrors"
)

func newPool(t *testing.T, workers, queue int) *Pool {
	t.Helper()
	p := NewPool(workers, queue)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})
	return p
}

func waitStatus(t *testing.T, p *Pool, id string, want Status) Job {
	t.Helper()
	var job Job
	require.Eventually(t, func() bool {
		j, ok := p.Get(id)
		job = j
		return ok && j.Status == want
	}, 5*time.Second, 5*time.Millisecond, "job %s never reached %s", id, want)
	return job
}

func TestJobCompletesWithResult(t *testing.T) {
	p := newPool(t, 2, 4)
	id, err := p.Submit("fahrtenbuch", func(ctx context.Context, progress func(string)) (interface{}, error) {
		progress("Blatt 1 von 1")
		return "/tmp/fahrtenbuch.xlsx", nil
	})
	require.NoError(t, err)

	job := waitStatus(t, p, id, StatusDone)
	assert.Equal(t, "/tmp/fahrtenbuch.xlsx", job.Result)
	assert.Equal(t, "Blatt 1 von 1", job.Message)
	assert.Empty(t, job.Error)
	require.NotNil(t, job.Started)
	require.NotNil(t, job.Finished)
	assert.False(t, job.Finished.Before(*job.Started))
}

func TestMessagesReportLifecycle(t *testing.T) {
	p := newPool(t, 1, 4)
	id, err := p.Submit("payroll", func(ctx context.Context, progress func(string)) (interface{}, error) {
		return nil, nil
	})
	require.NoError(t, err)

	var seen []Status
	timeout := time.After(5 * time.Second)
	for len(seen) == 0 || !seen[len(seen)-1].Finished() {
		select {
		case m := <-p.Messages():
			if m.JobID == id {
				seen = append(seen, m.Status)
			}
		case <-timeout:
			t.Fatalf("no final message, got %v", seen)
		}
	}
	assert.Equal(t, []Status{StatusQueued, StatusRunning, StatusDone}, seen)
}

func TestCancelRunningJob(t *testing.T) {
	p := newPool(t, 1, 4)
	started := make(chan struct{})
	id, err := p.Submit("export", func(ctx context.Context, progress func(string)) (interface{}, error) {
		close(started)
		<-ctx.Done()
		return nil, apperrors.Cancelled(ctx.Err())
	})
	require.NoError(t, err)
	<-started

	require.NoError(t, p.Cancel(id))
	job := waitStatus(t, p, id, StatusCancelled)
	assert.Equal(t, apperrors.KindCancelled, job.ErrorKind)

	err = p.Cancel(id)
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
	assert.ErrorIs(t, p.Cancel("unbekannt"), apperrors.ErrNotFound)
}

func TestCancelQueuedJobNeverRuns(t *testing.T) {
	p := newPool(t, 1, 4)
	block := make(chan struct{})
	_, err := p.Submit("busy", func(ctx context.Context, progress func(string)) (interface{}, error) {
		<-block
		return nil, nil
	})
	require.NoError(t, err)

	ran := false
	id, err := p.Submit("queued", func(ctx context.Context, progress func(string)) (interface{}, error) {
		ran = true
		return nil, nil
	})
	require.NoError(t, err)
	require.NoError(t, p.Cancel(id))
	close(block)

	waitStatus(t, p, id, StatusCancelled)
	assert.False(t, ran)
}

func TestFailedAndPanickingJobs(t *testing.T) {
	p := newPool(t, 2, 4)
	failed, err := p.Submit("export", func(ctx context.Context, progress func(string)) (interface{}, error) {
		return nil, apperrors.ExportFailed(errors.New("disk full"), "Exportdatei kann nicht geschrieben werden")
	})
	require.NoError(t, err)
	panicked, err := p.Submit("export", func(ctx context.Context, progress func(string)) (interface{}, error) {
		panic("boom")
	})
	require.NoError(t, err)

	job := waitStatus(t, p, failed, StatusFailed)
	assert.Equal(t, apperrors.KindExportFailed, job.ErrorKind)
	assert.Contains(t, job.Error, "disk full")

	job = waitStatus(t, p, panicked, StatusFailed)
	assert.Equal(t, apperrors.KindInternal, job.ErrorKind)
}

func TestQueueFullAndShutdown(t *testing.T) {
	p := NewPool(1, 1)
	block := make(chan struct{})
	noop := func(ctx context.Context, progress func(string)) (interface{}, error) {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil, ctx.Err()
	}
	_, err := p.Submit("a", noop)
	require.NoError(t, err)
	// Первая задача может быть еще в очереди, поэтому отправляем, пока очередь не заполнится.
	var full error
	for i := 0; i < 3 && full == nil; i++ {
		_, full = p.Submit("b", noop)
	}
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(full))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))
	close(block)

	_, err = p.Submit("c", noop)
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
	require.NoError(t, p.Shutdown(ctx))
}

func TestPruneRemovesFinishedJobs(t *testing.T) {
	p := newPool(t, 1, 4)
	id, err := p.Submit("payroll", func(ctx context.Context, progress func(string)) (interface{}, error) {
		return 1, nil
	})
	require.NoError(t, err)
	waitStatus(t, p, id, StatusDone)

	assert.Equal(t, 0, p.Prune(time.Now().Add(-time.Hour)))
	assert.Equal(t, 1, p.Prune(time.Now().Add(time.Second)))
	_, ok := p.Get(id)
	assert.False(t, ok)
	assert.Empty(t, p.List())
}
