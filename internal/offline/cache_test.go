package offline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roofmanager/fieldsync/internal/domain"
)

// memPersister is an in-memory Persister that can be told to fail writes.
type memPersister struct {
	mu      sync.Mutex
	slots   map[string][]byte
	saveErr error
	saves   int
}

func newMemPersister() *memPersister {
	return &memPersister{slots: make(map[string][]byte)}
}

func (m *memPersister) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.slots[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), data...), nil
}

func (m *memPersister) Save(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.slots[key] = append([]byte(nil), data...)
	return nil
}

// fakeClock hands out a fixed instant that tests advance explicitly.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func newTestCache(t *testing.T) (*Cache, *memPersister, *fakeClock) {
	t.Helper()
	p := newMemPersister()
	clock := &fakeClock{now: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}
	c, err := Open(context.Background(), p, WithClock(clock.Now), WithIDGenerator(sequentialIDs()))
	require.NoError(t, err)
	return c, p, clock
}

func sampleJobs() []domain.Job {
	start := time.Date(2026, 3, 2, 7, 30, 0, 0, time.UTC)
	return []domain.Job{
		{
			ID:             "job-1",
			JobNumber:      "JOB-2026-001",
			Title:          "Tear-off and re-shingle",
			Address:        "12 Ring Road, Accra",
			Status:         domain.JobStatusScheduled,
			ScheduledStart: &start,
			Assignments:    []domain.Assignment{{UserID: "u-1", FirstName: "Kofi", Role: "CREW_LEAD"}},
		},
		{
			ID:        "job-2",
			JobNumber: "JOB-2026-002",
			Title:     "Gutter repair",
			Address:   "4 Liberation Ave, Accra",
			Status:    domain.JobStatusInProgress,
		},
	}
}

func TestOpen_EmptySlot(t *testing.T) {
	c, _, _ := newTestCache(t)

	assert.Empty(t, c.Jobs())
	assert.Empty(t, c.PendingPhotos())
	assert.Empty(t, c.PendingCheckIns())
	assert.Empty(t, c.TimeLogs())
	assert.Nil(t, c.ActiveTimeLog())
	assert.True(t, c.Online())
}

func TestOpen_CorruptSlot(t *testing.T) {
	p := newMemPersister()
	p.slots[SlotKey] = []byte("{not json")

	_, err := Open(context.Background(), p)
	assert.Error(t, err)
}

func TestReplaceJobs_DropsStaleEntries(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.ReplaceJobs(ctx, sampleJobs()))
	require.Len(t, c.Jobs(), 2)

	fresh := []domain.Job{{ID: "job-3", JobNumber: "JOB-2026-003", Title: "Inspection"}}
	require.NoError(t, c.ReplaceJobs(ctx, fresh))

	jobs := c.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "job-3", jobs[0].ID)
	assert.Nil(t, c.Job("job-1"))
}

func TestReplaceJobs_Idempotent(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.ReplaceJobs(ctx, sampleJobs()))
	first := c.Snapshot()
	require.NoError(t, c.ReplaceJobs(ctx, sampleJobs()))

	assert.Equal(t, first, c.Snapshot())
}

func TestReplaceJobs_CallerCannotMutateSnapshot(t *testing.T) {
	c, _, _ := newTestCache(t)
	jobs := sampleJobs()
	require.NoError(t, c.ReplaceJobs(context.Background(), jobs))

	jobs[0].Title = "changed by caller"
	jobs[0].Assignments[0].FirstName = "changed"

	cached := c.Job("job-1")
	require.NotNil(t, cached)
	assert.Equal(t, "Tear-off and re-shingle", cached.Title)
	assert.Equal(t, "Kofi", cached.Assignments[0].FirstName)
}

func TestAddJob(t *testing.T) {
	c, _, _ := newTestCache(t)

	require.NoError(t, c.AddJob(context.Background(), domain.Job{ID: "job-9", Title: "Skylight"}))

	job := c.Job("job-9")
	require.NotNil(t, job)
	assert.Equal(t, "Skylight", job.Title)
}

func TestAddJob_RejectsCachedID(t *testing.T) {
	c, p, _ := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.ReplaceJobs(ctx, sampleJobs()))
	saves := p.saves

	err := c.AddJob(ctx, domain.Job{ID: "job-1", Title: "Duplicate"})
	require.ErrorIs(t, err, ErrJobExists)

	assert.Len(t, c.Jobs(), 2)
	assert.Equal(t, "Tear-off and re-shingle", c.Job("job-1").Title)
	assert.Equal(t, saves, p.saves)
}

func TestUpdateJob_MergesFields(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.ReplaceJobs(ctx, sampleJobs()))

	status := domain.JobStatusInProgress
	updated, err := c.UpdateJob(ctx, "job-1", domain.JobPatch{Status: &status})
	require.NoError(t, err)

	assert.Equal(t, domain.JobStatusInProgress, updated.Status)
	assert.Equal(t, "Tear-off and re-shingle", updated.Title, "untouched fields survive")
	assert.Equal(t, domain.JobStatusInProgress, c.Job("job-1").Status)
}

func TestUpdateJob_UnknownID(t *testing.T) {
	c, p, _ := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.ReplaceJobs(ctx, sampleJobs()))
	before := c.Snapshot()
	saves := p.saves

	title := "ghost"
	_, err := c.UpdateJob(ctx, "missing", domain.JobPatch{Title: &title})

	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.Equal(t, before, c.Snapshot())
	assert.Equal(t, saves, p.saves)
}

func TestSelectJob(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.ReplaceJobs(ctx, sampleJobs()))

	assert.ErrorIs(t, c.SelectJob("missing"), ErrJobNotFound)
	require.NoError(t, c.SelectJob("job-2"))
	require.NotNil(t, c.SelectedJob())
	assert.Equal(t, "job-2", c.SelectedJob().ID)

	// The selection disappears with the job.
	require.NoError(t, c.ReplaceJobs(ctx, sampleJobs()[:1]))
	assert.Nil(t, c.SelectedJob())

	require.NoError(t, c.SelectJob(""))
	assert.Nil(t, c.SelectedJob())
}

func TestAddPendingPhoto_QueueLengthMatchesCalls(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := c.AddPendingPhoto(ctx, domain.PendingPhoto{JobID: "job-1", StorageKey: fmt.Sprintf("k%d", i)})
		require.NoError(t, err)
	}

	photos := c.PendingPhotos()
	require.Len(t, photos, 5)
	for _, p := range photos {
		assert.False(t, p.Synced)
		assert.NotEmpty(t, p.ID)
	}
	// FIFO order is preserved.
	assert.Equal(t, "k0", photos[0].StorageKey)
	assert.Equal(t, "k4", photos[4].StorageKey)
}

func TestAddPendingPhoto_ForcesUnsynced(t *testing.T) {
	c, _, _ := newTestCache(t)

	stored, err := c.AddPendingPhoto(context.Background(), domain.PendingPhoto{ID: "p1", Synced: true})
	require.NoError(t, err)
	assert.False(t, stored.Synced)
	assert.Equal(t, time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC), stored.TakenAt)
}

func TestAddPendingPhoto_DedupByID(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()

	_, err := c.AddPendingPhoto(ctx, domain.PendingPhoto{ID: "p1", StorageKey: "a"})
	require.NoError(t, err)
	again, err := c.AddPendingPhoto(ctx, domain.PendingPhoto{ID: "p1", StorageKey: "b"})
	require.NoError(t, err)
	_, err = c.AddPendingPhoto(ctx, domain.PendingPhoto{ID: "p2", StorageKey: "a"})
	require.NoError(t, err)

	assert.Equal(t, "a", again.StorageKey, "first record wins")
	assert.Len(t, c.PendingPhotos(), 2, "same content under a new id is kept")
}

func TestMarkPhotoSynced_Idempotent(t *testing.T) {
	c, p, _ := newTestCache(t)
	ctx := context.Background()

	_, err := c.AddPendingPhoto(ctx, domain.PendingPhoto{ID: "p1", JobID: "job-1", Caption: "ridge"})
	require.NoError(t, err)
	_, err = c.AddPendingPhoto(ctx, domain.PendingPhoto{ID: "p2", JobID: "job-1"})
	require.NoError(t, err)

	require.NoError(t, c.MarkPhotoSynced(ctx, "p1"))
	afterFirst := c.Snapshot()
	saves := p.saves

	require.NoError(t, c.MarkPhotoSynced(ctx, "p1"))

	assert.Equal(t, afterFirst, c.Snapshot())
	assert.Equal(t, saves, p.saves, "second mark does not rewrite the slot")
	photos := c.PendingPhotos()
	require.Len(t, photos, 2)
	assert.True(t, photos[0].Synced)
	assert.Equal(t, "ridge", photos[0].Caption)
	assert.False(t, photos[1].Synced)
	assert.Len(t, c.UnsyncedPhotos(), 1)
}

func TestMarkPhotoSynced_Unknown(t *testing.T) {
	c, _, _ := newTestCache(t)
	assert.ErrorIs(t, c.MarkPhotoSynced(context.Background(), "nope"), ErrPhotoNotFound)
}

func TestRemovePendingPhoto(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()

	_, err := c.AddPendingPhoto(ctx, domain.PendingPhoto{ID: "p1", StorageKey: "job_1/a.jpg"})
	require.NoError(t, err)
	_, err = c.AddPendingPhoto(ctx, domain.PendingPhoto{ID: "p2"})
	require.NoError(t, err)

	removed, err := c.RemovePendingPhoto(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "job_1/a.jpg", removed.StorageKey)
	assert.Nil(t, c.Photo("p1"))
	assert.Len(t, c.PendingPhotos(), 1)

	_, err = c.RemovePendingPhoto(ctx, "p1")
	assert.ErrorIs(t, err, ErrPhotoNotFound)
}

func TestStartStopTimer(t *testing.T) {
	c, _, clock := newTestCache(t)
	ctx := context.Background()

	started, err := c.StartTimer(ctx, "job-1")
	require.NoError(t, err)
	require.NotNil(t, c.ActiveTimeLog())
	assert.Equal(t, started.ID, c.ActiveTimeLog().ID)

	clock.Advance(90 * time.Minute)

	stopped, err := c.StopTimer(ctx)
	require.NoError(t, err)
	require.NotNil(t, stopped)
	assert.Nil(t, c.ActiveTimeLog())

	logs := c.TimeLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, started.ID, logs[0].ID)
	assert.Equal(t, "job-1", logs[0].JobID)
	require.NotNil(t, logs[0].EndTime)
	require.NotNil(t, logs[0].TotalHours)
	assert.Equal(t, 1.5, *logs[0].TotalHours)
	assert.Equal(t, logs[0].EndTime.Sub(logs[0].StartTime).Hours(), *logs[0].TotalHours)
	assert.False(t, logs[0].Synced)
}

func TestStartTimer_RejectsSecondStart(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()

	first, err := c.StartTimer(ctx, "job-1")
	require.NoError(t, err)

	_, err = c.StartTimer(ctx, "job-2")
	assert.ErrorIs(t, err, ErrTimerRunning)

	active := c.ActiveTimeLog()
	require.NotNil(t, active)
	assert.Equal(t, first.ID, active.ID, "running timer is not replaced")
	assert.Equal(t, "job-1", active.JobID)
}

func TestStartTimer_ConcurrentStartsOnlyOneWins(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := c.StartTimer(ctx, fmt.Sprintf("job-%d", i)); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestStopTimer_IdleIsNoOp(t *testing.T) {
	c, p, _ := newTestCache(t)

	stopped, err := c.StopTimer(context.Background())
	require.NoError(t, err)
	assert.Nil(t, stopped)
	assert.Empty(t, c.TimeLogs())
	assert.Zero(t, p.saves)
}

func TestTimerCanRestartAfterStop(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()

	_, err := c.StartTimer(ctx, "job-1")
	require.NoError(t, err)
	_, err = c.StopTimer(ctx)
	require.NoError(t, err)
	_, err = c.StartTimer(ctx, "job-2")
	require.NoError(t, err)

	assert.Equal(t, "job-2", c.ActiveTimeLog().JobID)
}

func TestMarkTimeLogSynced(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()

	_, err := c.StartTimer(ctx, "job-1")
	require.NoError(t, err)
	stopped, err := c.StopTimer(ctx)
	require.NoError(t, err)

	require.NoError(t, c.MarkTimeLogSynced(ctx, stopped.ID))
	require.NoError(t, c.MarkTimeLogSynced(ctx, stopped.ID))
	assert.Empty(t, c.UnsyncedTimeLogs())
	assert.ErrorIs(t, c.MarkTimeLogSynced(ctx, "missing"), ErrTimeLogNotFound)
}

func TestMarkAllTimeLogsSynced(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()

	for _, job := range []string{"job-1", "job-2"} {
		_, err := c.StartTimer(ctx, job)
		require.NoError(t, err)
		_, err = c.StopTimer(ctx)
		require.NoError(t, err)
	}

	n, err := c.MarkAllTimeLogsSynced(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = c.MarkAllTimeLogsSynced(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAddPendingCheckIn_TodayFlag(t *testing.T) {
	c, _, clock := newTestCache(t)
	ctx := context.Background()
	now := clock.Now()

	assert.Nil(t, c.CheckedInToday("job-1", now))
	require.Empty(t, c.PendingCheckIns())

	stored, err := c.AddPendingCheckIn(ctx, domain.CheckIn{JobID: "job-1", Latitude: 5.6037, Longitude: -0.1870, Timestamp: now})
	require.NoError(t, err)

	checkIns := c.PendingCheckIns()
	require.Len(t, checkIns, 1)
	assert.Equal(t, 5.6037, checkIns[0].Latitude)
	assert.Equal(t, -0.1870, checkIns[0].Longitude)
	assert.False(t, checkIns[0].Synced)

	today := c.CheckedInToday("job-1", now)
	require.NotNil(t, today)
	assert.Equal(t, stored.ID, today.ID)
	assert.Nil(t, c.CheckedInToday("job-2", now))
	assert.Nil(t, c.CheckedInToday("job-1", now.Add(24*time.Hour)))
}

func TestAddPendingCheckIn_NoJobDayDedup(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := c.AddPendingCheckIn(ctx, domain.CheckIn{JobID: "job-1", Latitude: 5.6, Longitude: -0.18})
		require.NoError(t, err)
	}
	assert.Len(t, c.PendingCheckIns(), 2)
}

func TestMarkCheckInSynced(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()

	ci, err := c.AddPendingCheckIn(ctx, domain.CheckIn{JobID: "job-1"})
	require.NoError(t, err)

	require.NoError(t, c.MarkCheckInSynced(ctx, ci.ID))
	require.NoError(t, c.MarkCheckInSynced(ctx, ci.ID))
	assert.Empty(t, c.UnsyncedCheckIns())
	assert.Len(t, c.PendingCheckIns(), 1)
	assert.ErrorIs(t, c.MarkCheckInSynced(ctx, "missing"), ErrCheckInNotFound)
}

func TestSetOnline(t *testing.T) {
	c, p, _ := newTestCache(t)
	ctx := context.Background()
	_, err := c.AddPendingCheckIn(ctx, domain.CheckIn{JobID: "job-1"})
	require.NoError(t, err)
	saves := p.saves

	assert.True(t, c.SetOnline(false))
	assert.False(t, c.SetOnline(false))
	assert.False(t, c.Online())
	assert.Len(t, c.PendingCheckIns(), 1, "queues are untouched")
	assert.Equal(t, saves, p.saves, "connectivity is not persisted")
}

func TestClearAll(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.ReplaceJobs(ctx, sampleJobs()))
	require.NoError(t, c.SelectJob("job-1"))
	_, err := c.AddPendingPhoto(ctx, domain.PendingPhoto{JobID: "job-1"})
	require.NoError(t, err)
	_, err = c.AddPendingCheckIn(ctx, domain.CheckIn{JobID: "job-1"})
	require.NoError(t, err)
	_, err = c.StartTimer(ctx, "job-1")
	require.NoError(t, err)
	_, err = c.StopTimer(ctx)
	require.NoError(t, err)
	_, err = c.StartTimer(ctx, "job-2")
	require.NoError(t, err)
	c.SetLastSyncTime(time.Now())

	require.NoError(t, c.ClearAll(ctx))

	assert.Empty(t, c.Jobs())
	assert.Empty(t, c.PendingPhotos())
	assert.Empty(t, c.PendingCheckIns())
	assert.Empty(t, c.TimeLogs())
	assert.Nil(t, c.ActiveTimeLog())
	assert.Nil(t, c.SelectedJob())
	assert.Nil(t, c.Status().LastSyncTime)
}

// gatedPersister blocks every Save until release is closed.
type gatedPersister struct {
	*memPersister
	entered chan struct{}
	release chan struct{}
}

func (g *gatedPersister) Save(ctx context.Context, key string, data []byte) error {
	g.entered <- struct{}{}
	<-g.release
	return g.memPersister.Save(ctx, key, data)
}

func TestClearAll_LastSyncSetDuringClearSurvives(t *testing.T) {
	g := &gatedPersister{memPersister: newMemPersister(), entered: make(chan struct{}, 1), release: make(chan struct{})}
	c, err := Open(context.Background(), g)
	require.NoError(t, err)

	cleared := make(chan error, 1)
	go func() { cleared <- c.ClearAll(context.Background()) }()
	<-g.entered

	stamp := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	stamped := make(chan struct{})
	go func() {
		c.SetLastSyncTime(stamp)
		close(stamped)
	}()
	time.Sleep(10 * time.Millisecond)
	close(g.release)

	require.NoError(t, <-cleared)
	<-stamped

	// The stamp is ordered after the whole clear, so it is kept.
	last := c.Status().LastSyncTime
	require.NotNil(t, last)
	assert.Equal(t, stamp, *last)
}

func TestClearAll_ResetsRuntimeFieldsWithState(t *testing.T) {
	c, p, _ := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.ReplaceJobs(ctx, sampleJobs()))
	require.NoError(t, c.SelectJob("job-1"))
	c.SetLastSyncTime(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))

	p.saveErr = errors.New("disk full")
	require.Error(t, c.ClearAll(ctx))

	assert.NotNil(t, c.SelectedJob(), "failed clear keeps the selection")
	assert.NotNil(t, c.Status().LastSyncTime, "failed clear keeps the last sync time")
}

func TestPersistFailureLeavesStateUntouched(t *testing.T) {
	c, p, _ := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.ReplaceJobs(ctx, sampleJobs()))
	before := c.Snapshot()

	p.saveErr = errors.New("disk full")

	_, err := c.AddPendingPhoto(ctx, domain.PendingPhoto{JobID: "job-1"})
	assert.Error(t, err)
	_, err = c.StartTimer(ctx, "job-1")
	assert.Error(t, err)
	assert.Error(t, c.ClearAll(ctx))

	assert.Equal(t, before, c.Snapshot())
	assert.Nil(t, c.ActiveTimeLog())
}

func TestReopenRestoresPendingRecords(t *testing.T) {
	c, p, clock := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.ReplaceJobs(ctx, sampleJobs()))
	_, err := c.AddPendingPhoto(ctx, domain.PendingPhoto{JobID: "job-1", StorageKey: "a.jpg"})
	require.NoError(t, err)
	_, err = c.AddPendingCheckIn(ctx, domain.CheckIn{JobID: "job-1", Latitude: 5.6037, Longitude: -0.1870})
	require.NoError(t, err)
	_, err = c.StartTimer(ctx, "job-1")
	require.NoError(t, err)
	c.SetOnline(false)

	reopened, err := Open(ctx, p, WithClock(clock.Now))
	require.NoError(t, err)

	assert.Equal(t, c.Snapshot(), reopened.Snapshot())
	assert.True(t, reopened.Online(), "connectivity is recomputed, not restored")
	assert.Nil(t, reopened.Status().LastSyncTime)
}
