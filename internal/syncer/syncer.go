package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roofmanager/fieldsync/internal/domain"
	"github.com/roofmanager/fieldsync/internal/photostore"
	"github.com/roofmanager/fieldsync/internal/upstream"
)

var (
	ErrOffline    = errors.New("device is offline")
	ErrInProgress = errors.New("sync already in progress")
)

// Backend is the subset of upstream.Client the syncer drives.
type Backend interface {
	FetchJobs(ctx context.Context) ([]domain.Job, error)
	PushCheckIn(ctx context.Context, ci domain.CheckIn) error
	PushTimeLog(ctx context.Context, log domain.TimeLog) error
	PushPhoto(ctx context.Context, photo domain.PendingPhoto, data []byte) error
}

// syncCache is the subset of offline.Cache the syncer reads and marks.
type syncCache interface {
	Online() bool
	SetOnline(online bool) bool
	SetLastSyncTime(t time.Time)
	ReplaceJobs(ctx context.Context, jobs []domain.Job) error
	UnsyncedCheckIns() []domain.CheckIn
	MarkCheckInSynced(ctx context.Context, id string) error
	UnsyncedTimeLogs() []domain.TimeLog
	MarkTimeLogSynced(ctx context.Context, id string) error
	UnsyncedPhotos() []domain.PendingPhoto
	PendingPhotos() []domain.PendingPhoto
	MarkPhotoSynced(ctx context.Context, id string) error
	RemovePendingPhoto(ctx context.Context, id string) (*domain.PendingPhoto, error)
}

// runRecorder persists sync run history.
type runRecorder interface {
	Create(ctx context.Context, run *domain.SyncRun) error
	List(ctx context.Context, limit int) ([]*domain.SyncRun, error)
}

type Options struct {
	// PruneSyncedPhotos drops uploaded photos and their payloads at the end
	// of a run.
	PruneSyncedPhotos bool
}

// Syncer reconciles the offline cache with the backend. The job snapshot is
// taken from the server as-is; field records flow the other way and are
// marked synced one by one as the server accepts them.
type Syncer struct {
	mu       sync.Mutex
	backend  Backend
	cache    syncCache
	photoStg photostore.PhotoStore
	runs     runRecorder
	opts     Options
	now      func() time.Time
	logger   *slog.Logger
}

func New(backend Backend, cache syncCache, photoStg photostore.PhotoStore, runs runRecorder, opts Options, logger *slog.Logger) *Syncer {
	return &Syncer{
		backend:  backend,
		cache:    cache,
		photoStg: photoStg,
		runs:     runs,
		opts:     opts,
		now:      time.Now,
		logger:   logger,
	}
}

// WithClock replaces the time source; used by tests.
func (s *Syncer) WithClock(now func() time.Time) *Syncer {
	s.now = now
	return s
}

// isAbort reports failures that end the run early.
func isAbort(err error) bool {
	return errors.Is(err, upstream.ErrUnauthorized) ||
		errors.Is(err, upstream.ErrUnreachable) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Sync runs one reconciliation pass and records it. The returned run is
// non-nil whenever the pass started, including when it was aborted.
func (s *Syncer) Sync(ctx context.Context) (*domain.SyncRun, error) {
	if !s.mu.TryLock() {
		return nil, ErrInProgress
	}
	defer s.mu.Unlock()

	if !s.cache.Online() {
		return nil, ErrOffline
	}

	run := &domain.SyncRun{ID: uuid.NewString(), StartedAt: s.now().UTC()}
	s.logger.Info("sync started", "run_id", run.ID)

	err := s.pass(ctx, run)

	finished := s.now().UTC()
	run.FinishedAt = &finished
	if err != nil {
		run.Error = err.Error()
		if errors.Is(err, upstream.ErrUnreachable) {
			s.cache.SetOnline(false)
		}
		s.logger.Warn("sync aborted", "run_id", run.ID, "pushed", run.Pushed, "failed", run.Failed, "error", err)
	} else {
		s.cache.SetLastSyncTime(finished)
		s.logger.Info("sync complete", "run_id", run.ID, "jobs", run.JobsFetched, "pushed", run.Pushed, "failed", run.Failed)
	}

	// Record with a fresh context so a cancelled run still leaves history.
	if rerr := s.runs.Create(context.WithoutCancel(ctx), run); rerr != nil {
		s.logger.Error("failed to record sync run", "run_id", run.ID, "error", rerr)
	}
	return run, err
}

func (s *Syncer) pass(ctx context.Context, run *domain.SyncRun) error {
	jobs, err := s.backend.FetchJobs(ctx)
	if err != nil {
		return err
	}
	if err := s.cache.ReplaceJobs(ctx, jobs); err != nil {
		return fmt.Errorf("failed to store job snapshot: %w", err)
	}
	run.JobsFetched = len(jobs)

	for _, ci := range s.cache.UnsyncedCheckIns() {
		err := s.push(ctx, run, "checkin", ci.ID,
			func() error { return s.backend.PushCheckIn(ctx, ci) },
			func() error { return s.cache.MarkCheckInSynced(ctx, ci.ID) })
		if err != nil {
			return err
		}
	}

	for _, log := range s.cache.UnsyncedTimeLogs() {
		if log.EndTime == nil {
			continue
		}
		err := s.push(ctx, run, "timelog", log.ID,
			func() error { return s.backend.PushTimeLog(ctx, log) },
			func() error { return s.cache.MarkTimeLogSynced(ctx, log.ID) })
		if err != nil {
			return err
		}
	}

	for _, photo := range s.cache.UnsyncedPhotos() {
		err := s.push(ctx, run, "photo", photo.ID,
			func() error {
				data, err := s.readPayload(ctx, photo.StorageKey)
				if err != nil {
					return err
				}
				return s.backend.PushPhoto(ctx, photo, data)
			},
			func() error { return s.cache.MarkPhotoSynced(ctx, photo.ID) })
		if err != nil {
			return err
		}
	}

	if s.opts.PruneSyncedPhotos {
		s.prune(ctx)
	}
	return nil
}

// push sends one record and marks it. Only aborting errors are returned;
// anything else is counted and left for the next run.
func (s *Syncer) push(ctx context.Context, run *domain.SyncRun, kind, id string, send, mark func() error) error {
	if err := send(); err != nil {
		if isAbort(err) {
			return err
		}
		run.Failed++
		s.logger.Warn("push failed", "kind", kind, "id", id, "error", err)
		return nil
	}
	if err := mark(); err != nil {
		// The server has it; the idempotency key makes the retry harmless.
		run.Failed++
		s.logger.Error("failed to mark record synced", "kind", kind, "id", id, "error", err)
		return nil
	}
	run.Pushed++
	s.logger.Debug("record pushed", "kind", kind, "id", id)
	return nil
}

func (s *Syncer) readPayload(ctx context.Context, key string) ([]byte, error) {
	rc, _, err := s.photoStg.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to open photo payload: %w", err)
	}
	defer func() {
		if cerr := rc.Close(); cerr != nil {
			s.logger.Error("failed to close photo payload", "storage_key", key, "error", cerr)
		}
	}()
	return io.ReadAll(rc)
}

func (s *Syncer) prune(ctx context.Context) {
	for _, p := range s.cache.PendingPhotos() {
		if !p.Synced {
			continue
		}
		if _, err := s.cache.RemovePendingPhoto(ctx, p.ID); err != nil {
			s.logger.Error("failed to prune photo", "photo_id", p.ID, "error", err)
			continue
		}
		if err := s.photoStg.Delete(ctx, p.StorageKey); err != nil && !errors.Is(err, photostore.ErrNotFound) {
			s.logger.Error("failed to delete pruned photo file", "photo_id", p.ID, "error", err)
		}
	}
}

// Runs returns the most recent sync runs, newest first.
func (s *Syncer) Runs(ctx context.Context, limit int) ([]*domain.SyncRun, error) {
	return s.runs.List(ctx, limit)
}
