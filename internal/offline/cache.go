package offline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roofmanager/fieldsync/internal/domain"
	"github.com/roofmanager/fieldsync/internal/timecalc"
)

// SlotKey is the fixed key the cache state is persisted under.
const SlotKey = "roofmanager-offline"

var (
	ErrJobNotFound     = errors.New("job not found")
	ErrJobExists       = errors.New("job already cached")
	ErrPhotoNotFound   = errors.New("pending photo not found")
	ErrCheckInNotFound = errors.New("check-in not found")
	ErrTimeLogNotFound = errors.New("time log not found")
	ErrTimerRunning    = errors.New("a timer is already running")
)

// errNoChange short-circuits a mutation that would leave state untouched,
// so idempotent calls do not rewrite the slot.
var errNoChange = errors.New("no change")

// Persister is a durable key-value slot. Load returns (nil, nil) when the
// key has never been written.
type Persister interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
}

// Cache holds the last-known job snapshot and the queues of field actions
// that have not reached the backend yet. Every mutation is written through
// to the Persister before it becomes visible; a failed write leaves the
// cache unchanged.
type Cache struct {
	mu            sync.RWMutex
	state         State
	selectedJobID string
	online        bool
	lastSync      *time.Time

	persister Persister
	now       func() time.Time
	newID     func() string
	logger    *slog.Logger
}

type Option func(*Cache)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithIDGenerator overrides how record ids are minted.
func WithIDGenerator(newID func() string) Option {
	return func(c *Cache) { c.newID = newID }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// WithOnline sets the initial connectivity flag. The default is online.
func WithOnline(online bool) Option {
	return func(c *Cache) { c.online = online }
}

// Open restores the cache from the persister's slot, starting empty if the
// slot has never been written.
func Open(ctx context.Context, p Persister, opts ...Option) (*Cache, error) {
	c := &Cache{
		state:     emptyState(),
		online:    true,
		persister: p,
		now:       time.Now,
		newID:     uuid.NewString,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	data, err := p.Load(ctx, SlotKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load offline state: %w", err)
	}
	if data != nil {
		s, err := Decode(data)
		if err != nil {
			return nil, err
		}
		c.state = s
	}

	c.logger.Debug("offline cache restored",
		"jobs", len(c.state.Jobs),
		"pending_photos", len(c.state.PendingPhotos),
		"pending_checkins", len(c.state.PendingCheckIns),
		"time_logs", len(c.state.TimeLogs),
		"timer_running", c.state.ActiveTimeLog != nil,
	)
	return c, nil
}

func (c *Cache) timestamp() time.Time {
	return c.now().UTC()
}

// mutate applies fn to a copy of the state, persists the copy and commits it.
func (c *Cache) mutate(ctx context.Context, fn func(s *State) error) error {
	return c.mutateThen(ctx, fn, nil)
}

// mutateThen is mutate with a hook that runs after the commit, still under
// the lock, for runtime fields that must change together with the state.
func (c *Cache) mutateThen(ctx context.Context, fn func(s *State) error, committed func()) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.state.clone()
	if err := fn(&next); err != nil {
		if errors.Is(err, errNoChange) {
			return nil
		}
		return err
	}

	data, err := Encode(next)
	if err != nil {
		return err
	}
	if err := c.persister.Save(ctx, SlotKey, data); err != nil {
		return fmt.Errorf("failed to persist offline state: %w", err)
	}
	c.state = next
	if committed != nil {
		committed()
	}
	return nil
}

// Snapshot returns a deep copy of the persisted state.
func (c *Cache) Snapshot() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.clone()
}

// Jobs

// ReplaceJobs overwrites the job snapshot. Entries missing from jobs are dropped.
func (c *Cache) ReplaceJobs(ctx context.Context, jobs []domain.Job) error {
	return c.mutate(ctx, func(s *State) error {
		s.Jobs = make([]domain.Job, len(jobs))
		for i, j := range jobs {
			s.Jobs[i] = cloneJob(j)
		}
		return nil
	})
}

// AddJob caches a job the snapshot does not have yet. An id that is already
// cached returns ErrJobExists; use UpdateJob to change it.
func (c *Cache) AddJob(ctx context.Context, job domain.Job) error {
	return c.mutate(ctx, func(s *State) error {
		if slices.ContainsFunc(s.Jobs, func(j domain.Job) bool { return j.ID == job.ID }) {
			return fmt.Errorf("%w: %s", ErrJobExists, job.ID)
		}
		s.Jobs = append(s.Jobs, cloneJob(job))
		return nil
	})
}

// UpdateJob merges the non-nil fields of patch into the cached job.
func (c *Cache) UpdateJob(ctx context.Context, id string, patch domain.JobPatch) (*domain.Job, error) {
	var updated domain.Job
	err := c.mutate(ctx, func(s *State) error {
		for i := range s.Jobs {
			if s.Jobs[i].ID == id {
				applyPatch(&s.Jobs[i], patch)
				updated = cloneJob(s.Jobs[i])
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func applyPatch(j *domain.Job, p domain.JobPatch) {
	if p.Title != nil {
		j.Title = *p.Title
	}
	if p.Address != nil {
		j.Address = *p.Address
	}
	if p.Status != nil {
		j.Status = *p.Status
	}
	if p.PropertyType != nil {
		j.PropertyType = *p.PropertyType
	}
	if p.RoofSize != nil {
		j.RoofSize = *p.RoofSize
	}
	if p.ScheduledStart != nil {
		j.ScheduledStart = cloneTime(p.ScheduledStart)
	}
	if p.ScheduledEnd != nil {
		j.ScheduledEnd = cloneTime(p.ScheduledEnd)
	}
	if p.EstimatedCost != nil {
		j.EstimatedCost = *p.EstimatedCost
	}
	if p.Assignments != nil {
		j.Assignments = append([]domain.Assignment{}, (*p.Assignments)...)
	}
}

func (c *Cache) Jobs() []domain.Job {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Job, len(c.state.Jobs))
	for i, j := range c.state.Jobs {
		out[i] = cloneJob(j)
	}
	return out
}

// Job returns the cached job with id, or nil if the snapshot has none.
func (c *Cache) Job(id string) *domain.Job {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.findJob(id)
}

func (c *Cache) findJob(id string) *domain.Job {
	for _, j := range c.state.Jobs {
		if j.ID == id {
			out := cloneJob(j)
			return &out
		}
	}
	return nil
}

// SelectJob marks a job as the one being worked on. An empty id clears the
// selection. Selection is not persisted.
func (c *Cache) SelectJob(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id != "" && c.findJob(id) == nil {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	c.selectedJobID = id
	return nil
}

// SelectedJob returns the selected job, or nil when nothing is selected or
// the selected job has left the snapshot.
func (c *Cache) SelectedJob() *domain.Job {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.selectedJobID == "" {
		return nil
	}
	return c.findJob(c.selectedJobID)
}

// Photos

// AddPendingPhoto queues photo as unsynced. A photo whose id is already
// queued is ignored. An empty id is filled in.
func (c *Cache) AddPendingPhoto(ctx context.Context, photo domain.PendingPhoto) (*domain.PendingPhoto, error) {
	var stored domain.PendingPhoto
	err := c.mutate(ctx, func(s *State) error {
		if photo.ID != "" {
			for _, p := range s.PendingPhotos {
				if p.ID == photo.ID {
					stored = clonePhoto(p)
					return errNoChange
				}
			}
		} else {
			photo.ID = c.newID()
		}
		if photo.TakenAt.IsZero() {
			photo.TakenAt = c.timestamp()
		}
		photo.Synced = false
		stored = clonePhoto(photo)
		s.PendingPhotos = append(s.PendingPhotos, clonePhoto(photo))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// MarkPhotoSynced flips the photo's synced flag. The record stays queued.
func (c *Cache) MarkPhotoSynced(ctx context.Context, id string) error {
	return c.mutate(ctx, func(s *State) error {
		for i := range s.PendingPhotos {
			if s.PendingPhotos[i].ID != id {
				continue
			}
			if s.PendingPhotos[i].Synced {
				return errNoChange
			}
			s.PendingPhotos[i].Synced = true
			return nil
		}
		return fmt.Errorf("%w: %s", ErrPhotoNotFound, id)
	})
}

// RemovePendingPhoto deletes the photo from the queue and returns it so the
// caller can release its payload.
func (c *Cache) RemovePendingPhoto(ctx context.Context, id string) (*domain.PendingPhoto, error) {
	var removed domain.PendingPhoto
	err := c.mutate(ctx, func(s *State) error {
		for i, p := range s.PendingPhotos {
			if p.ID == id {
				removed = p
				s.PendingPhotos = append(s.PendingPhotos[:i], s.PendingPhotos[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrPhotoNotFound, id)
	})
	if err != nil {
		return nil, err
	}
	return &removed, nil
}

func (c *Cache) PendingPhotos() []domain.PendingPhoto {
	return c.photos(func(domain.PendingPhoto) bool { return true })
}

func (c *Cache) UnsyncedPhotos() []domain.PendingPhoto {
	return c.photos(func(p domain.PendingPhoto) bool { return !p.Synced })
}

func (c *Cache) photos(keep func(domain.PendingPhoto) bool) []domain.PendingPhoto {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.PendingPhoto, 0, len(c.state.PendingPhotos))
	for _, p := range c.state.PendingPhotos {
		if keep(p) {
			out = append(out, clonePhoto(p))
		}
	}
	return out
}

// Photo returns the queued photo with id, or nil.
func (c *Cache) Photo(id string) *domain.PendingPhoto {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.state.PendingPhotos {
		if p.ID == id {
			out := clonePhoto(p)
			return &out
		}
	}
	return nil
}

// Time logs

// StartTimer moves the timer from idle to running for jobID. Starting while
// a timer is already running fails with ErrTimerRunning.
func (c *Cache) StartTimer(ctx context.Context, jobID string) (*domain.TimeLog, error) {
	var started domain.TimeLog
	err := c.mutate(ctx, func(s *State) error {
		if s.ActiveTimeLog != nil {
			return fmt.Errorf("%w: job %s", ErrTimerRunning, s.ActiveTimeLog.JobID)
		}
		started = domain.TimeLog{
			ID:        c.newID(),
			JobID:     jobID,
			StartTime: c.timestamp(),
		}
		active := started
		s.ActiveTimeLog = &active
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &started, nil
}

// StopTimer completes the running time log and returns it. It returns
// (nil, nil) when no timer is running.
func (c *Cache) StopTimer(ctx context.Context) (*domain.TimeLog, error) {
	var completed *domain.TimeLog
	err := c.mutate(ctx, func(s *State) error {
		if s.ActiveTimeLog == nil {
			return errNoChange
		}
		log := cloneTimeLog(*s.ActiveTimeLog)
		end := c.timestamp()
		hours := timecalc.Hours(log.StartTime, end)
		log.EndTime = &end
		log.TotalHours = &hours

		s.TimeLogs = append(s.TimeLogs, log)
		s.ActiveTimeLog = nil
		out := cloneTimeLog(log)
		completed = &out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return completed, nil
}

func (c *Cache) ActiveTimeLog() *domain.TimeLog {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state.ActiveTimeLog == nil {
		return nil
	}
	out := cloneTimeLog(*c.state.ActiveTimeLog)
	return &out
}

// TimeLogs returns completed time logs in the order they were stopped.
func (c *Cache) TimeLogs() []domain.TimeLog {
	return c.timeLogs(func(domain.TimeLog) bool { return true })
}

func (c *Cache) UnsyncedTimeLogs() []domain.TimeLog {
	return c.timeLogs(func(l domain.TimeLog) bool { return !l.Synced })
}

func (c *Cache) timeLogs(keep func(domain.TimeLog) bool) []domain.TimeLog {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.TimeLog, 0, len(c.state.TimeLogs))
	for _, l := range c.state.TimeLogs {
		if keep(l) {
			out = append(out, cloneTimeLog(l))
		}
	}
	return out
}

func (c *Cache) MarkTimeLogSynced(ctx context.Context, id string) error {
	return c.mutate(ctx, func(s *State) error {
		for i := range s.TimeLogs {
			if s.TimeLogs[i].ID != id {
				continue
			}
			if s.TimeLogs[i].Synced {
				return errNoChange
			}
			s.TimeLogs[i].Synced = true
			return nil
		}
		return fmt.Errorf("%w: %s", ErrTimeLogNotFound, id)
	})
}

// MarkAllTimeLogsSynced flips every completed time log to synced and reports
// how many changed.
func (c *Cache) MarkAllTimeLogsSynced(ctx context.Context) (int, error) {
	changed := 0
	err := c.mutate(ctx, func(s *State) error {
		for i := range s.TimeLogs {
			if !s.TimeLogs[i].Synced {
				s.TimeLogs[i].Synced = true
				changed++
			}
		}
		if changed == 0 {
			return errNoChange
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}

// Check-ins

// AddPendingCheckIn queues a check-in as unsynced. Nothing stops several
// check-ins for the same job and day at this level.
func (c *Cache) AddPendingCheckIn(ctx context.Context, checkIn domain.CheckIn) (*domain.CheckIn, error) {
	var stored domain.CheckIn
	err := c.mutate(ctx, func(s *State) error {
		if checkIn.ID != "" {
			for _, existing := range s.PendingCheckIns {
				if existing.ID == checkIn.ID {
					stored = existing
					return errNoChange
				}
			}
		} else {
			checkIn.ID = c.newID()
		}
		if checkIn.Timestamp.IsZero() {
			checkIn.Timestamp = c.timestamp()
		}
		checkIn.Synced = false
		stored = checkIn
		s.PendingCheckIns = append(s.PendingCheckIns, checkIn)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

func (c *Cache) MarkCheckInSynced(ctx context.Context, id string) error {
	return c.mutate(ctx, func(s *State) error {
		for i := range s.PendingCheckIns {
			if s.PendingCheckIns[i].ID != id {
				continue
			}
			if s.PendingCheckIns[i].Synced {
				return errNoChange
			}
			s.PendingCheckIns[i].Synced = true
			return nil
		}
		return fmt.Errorf("%w: %s", ErrCheckInNotFound, id)
	})
}

func (c *Cache) PendingCheckIns() []domain.CheckIn {
	return c.checkIns(func(domain.CheckIn) bool { return true })
}

func (c *Cache) UnsyncedCheckIns() []domain.CheckIn {
	return c.checkIns(func(ci domain.CheckIn) bool { return !ci.Synced })
}

func (c *Cache) checkIns(keep func(domain.CheckIn) bool) []domain.CheckIn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.CheckIn, 0, len(c.state.PendingCheckIns))
	for _, ci := range c.state.PendingCheckIns {
		if keep(ci) {
			out = append(out, ci)
		}
	}
	return out
}

// CheckedInToday returns the earliest check-in for jobID that falls on the
// calendar day of now, in now's location, or nil.
func (c *Cache) CheckedInToday(jobID string, now time.Time) *domain.CheckIn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ci := range c.state.PendingCheckIns {
		if ci.JobID == jobID && timecalc.SameDay(now, ci.Timestamp) {
			out := ci
			return &out
		}
	}
	return nil
}

// Connectivity

// SetOnline updates the connectivity flag and reports whether it changed.
// Queued data is unaffected.
func (c *Cache) SetOnline(online bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.online == online {
		return false
	}
	c.online = online
	c.logger.Info("connectivity changed", "online", online)
	return true
}

func (c *Cache) Online() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.online
}

func (c *Cache) SetLastSyncTime(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := t.UTC()
	c.lastSync = &ts
}

func (c *Cache) Status() domain.Connectivity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.Connectivity{Online: c.online, LastSyncTime: cloneTime(c.lastSync)}
}

// ClearAll drops the job snapshot, every queue, the running timer and the
// last sync time. It cannot be undone.
func (c *Cache) ClearAll(ctx context.Context) error {
	return c.mutateThen(ctx, func(s *State) error {
		*s = emptyState()
		return nil
	}, func() {
		c.selectedJobID = ""
		c.lastSync = nil
	})
}
