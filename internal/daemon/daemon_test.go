package daemon

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elsanchez/resfetch/internal/domain"
	"github.com/elsanchez/resfetch/internal/downloader"
	"github.com/elsanchez/resfetch/internal/repository/sqlite"
	"github.com/elsanchez/resfetch/pkg/client"
)

type fakeProcessor struct {
	calls atomic.Int32
}

func (f *fakeProcessor) Process(ctx context.Context, spec domain.TargetSpec, onProgress downloader.ProgressFunc) domain.TaskResult {
	f.calls.Add(1)
	res := domain.TaskResult{Target: spec, StartedAt: time.Now()}
	if spec.Params["file_id"] == "missing" {
		res.ResolveOutcome(nil)
	} else {
		onProgress(10, 10)
		res.Attempts = []domain.DownloadResult{{
			Success:      true,
			Status:       domain.JobComplete,
			URL:          spec.BaseURL + "/file",
			BytesWritten: 10,
			FinalPath:    "/tmp/" + spec.ID + ".bin",
		}}
		res.ResolveOutcome(nil)
	}
	res.FinishedAt = time.Now()
	return res
}

// startDaemon levanta base de datos, cola y servidor sobre un socket temporal
func startDaemon(t *testing.T, proc *fakeProcessor) (*client.Client, *sqlite.Database) {
	t.Helper()

	db, err := sqlite.NewDatabase(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	// Los sockets unix tienen un límite de longitud de path
	sockDir, err := os.MkdirTemp("", "rf")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(sockDir) })
	socket := filepath.Join(sockDir, "d.sock")

	queue := NewQueueManager(db.SubmissionRepo, proc, nil, 2, nil)
	queue.Start()
	t.Cleanup(queue.Stop)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	server := NewServer(socket, NewHandlers(db.SubmissionRepo, queue), nil)
	require.NoError(t, server.Start(ctx))
	t.Cleanup(func() { server.Stop() })

	return client.NewClient(socket), db
}

func TestDaemon_AddAndReport(t *testing.T) {
	proc := &fakeProcessor{}
	c, _ := startDaemon(t, proc)
	ctx := context.Background()

	require.NoError(t, c.Ping(ctx))

	added, err := c.Add(ctx,
		[]domain.TargetSpec{
			{ID: "abc", BaseURL: "https://example.com", Params: map[string]string{"file_id": "abc"}},
			{ID: "missing", BaseURL: "https://example.com", Params: map[string]string{"file_id": "missing"}},
		},
		[]string{"https://example.com/play?_id=xyz"},
	)
	require.NoError(t, err)
	assert.Equal(t, 3, added.Count)
	assert.NotEmpty(t, added.RunID)

	var report *client.RunReport
	require.Eventually(t, func() bool {
		report, err = c.Report(ctx, added.RunID)
		return err == nil && report.Pending == 0
	}, 5*time.Second, 20*time.Millisecond)

	assert.Len(t, report.Results, 3)
	assert.Equal(t, 2, report.Outcomes[domain.OutcomeComplete])
	assert.Equal(t, 1, report.Outcomes[domain.OutcomeNothingFound])
	assert.Equal(t, domain.OutcomeComplete, report.Results["https://example.com/play?_id=xyz"].Outcome)
	assert.EqualValues(t, 3, proc.calls.Load())

	sub, err := c.Status(ctx, added.IDs[0])
	require.NoError(t, err)
	assert.Equal(t, domain.QueueFinished, sub.Status)
	assert.Equal(t, "/tmp/abc.bin", sub.OutputPath)
	require.NotNil(t, sub.Report)
	assert.Equal(t, domain.OutcomeComplete, sub.Report.Outcome)

	list, err := c.List(ctx, 10, added.RunID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	for _, s := range list {
		assert.Nil(t, s.Report, "list omits full reports")
	}

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats["finished"])
	assert.Equal(t, 2, stats["outcome_complete"])
	assert.Equal(t, 2, stats["workers_total"])
}

func TestDaemon_InvalidRequests(t *testing.T) {
	c, _ := startDaemon(t, &fakeProcessor{})
	ctx := context.Background()

	_, err := c.Add(ctx, nil, nil)
	assert.Error(t, err)

	_, err = c.Add(ctx, nil, []string{"not a url"})
	assert.Error(t, err)

	_, err = c.Report(ctx, "no-such-run")
	assert.Error(t, err)

	resp, err := c.Send(ctx, &client.Request{Action: "reboot"})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "unknown action")
}

func TestQueue_RequeuesInterruptedTargets(t *testing.T) {
	db, err := sqlite.NewDatabase(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	id, err := db.SubmissionRepo.Create(ctx, &domain.Submission{
		RunID:  "old-run",
		Target: domain.TargetSpec{ID: "left", BaseURL: "https://example.com"},
	})
	require.NoError(t, err)
	require.NoError(t, db.SubmissionRepo.UpdateStatus(ctx, id, domain.QueueRunning))

	proc := &fakeProcessor{}
	queue := NewQueueManager(db.SubmissionRepo, proc, nil, 1, nil)
	queue.Start()
	defer queue.Stop()

	require.Eventually(t, func() bool {
		sub, err := db.SubmissionRepo.GetByID(ctx, id)
		return err == nil && sub.Status == domain.QueueFinished
	}, 5*time.Second, 20*time.Millisecond)
	assert.EqualValues(t, 1, proc.calls.Load())
}
