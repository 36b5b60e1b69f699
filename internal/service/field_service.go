package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roofmanager/fieldsync/internal/domain"
	"github.com/roofmanager/fieldsync/internal/geo"
	"github.com/roofmanager/fieldsync/internal/offline"
	"github.com/roofmanager/fieldsync/internal/photostore"
	"github.com/roofmanager/fieldsync/internal/timecalc"
)

var ErrAlreadyCheckedIn = errors.New("already checked in to this job today")

// fieldCache is the subset of offline.Cache that FieldService requires.
type fieldCache interface {
	Jobs() []domain.Job
	Job(id string) *domain.Job
	ReplaceJobs(ctx context.Context, jobs []domain.Job) error
	AddJob(ctx context.Context, job domain.Job) error
	UpdateJob(ctx context.Context, id string, patch domain.JobPatch) (*domain.Job, error)
	SelectJob(id string) error
	SelectedJob() *domain.Job

	AddPendingPhoto(ctx context.Context, photo domain.PendingPhoto) (*domain.PendingPhoto, error)
	MarkPhotoSynced(ctx context.Context, id string) error
	RemovePendingPhoto(ctx context.Context, id string) (*domain.PendingPhoto, error)
	PendingPhotos() []domain.PendingPhoto
	Photo(id string) *domain.PendingPhoto

	StartTimer(ctx context.Context, jobID string) (*domain.TimeLog, error)
	StopTimer(ctx context.Context) (*domain.TimeLog, error)
	ActiveTimeLog() *domain.TimeLog
	TimeLogs() []domain.TimeLog
	MarkAllTimeLogsSynced(ctx context.Context) (int, error)

	AddPendingCheckIn(ctx context.Context, checkIn domain.CheckIn) (*domain.CheckIn, error)
	MarkCheckInSynced(ctx context.Context, id string) error
	PendingCheckIns() []domain.CheckIn
	CheckedInToday(jobID string, now time.Time) *domain.CheckIn

	SetOnline(online bool) bool
	Status() domain.Connectivity
	ClearAll(ctx context.Context) error
}

// FieldService is what the crew's device talks to: it layers check-in rules
// and photo payload handling over the offline cache.
type FieldService struct {
	cache    fieldCache
	photoStg photostore.PhotoStore
	now      func() time.Time
	loc      *time.Location
	geoOpts  geo.Options
	logger   *slog.Logger
}

type Option func(*FieldService)

func WithClock(now func() time.Time) Option {
	return func(s *FieldService) { s.now = now }
}

// WithLocation sets the zone whose calendar day bounds "checked in today".
func WithLocation(loc *time.Location) Option {
	return func(s *FieldService) { s.loc = loc }
}

func WithGeoOptions(opts geo.Options) Option {
	return func(s *FieldService) { s.geoOpts = opts }
}

func NewFieldService(cache fieldCache, photoStg photostore.PhotoStore, logger *slog.Logger, opts ...Option) *FieldService {
	s := &FieldService{
		cache:    cache,
		photoStg: photoStg,
		now:      time.Now,
		loc:      time.Local,
		geoOpts:  geo.DefaultOptions,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *FieldService) today() time.Time {
	return s.now().In(s.loc)
}

// GeoOptions are the settings the client should use when acquiring a fix.
func (s *FieldService) GeoOptions() geo.Options {
	return s.geoOpts
}

func (s *FieldService) requireJob(jobID string) (*domain.Job, error) {
	job := s.cache.Job(jobID)
	if job == nil {
		return nil, fmt.Errorf("%w: %s", offline.ErrJobNotFound, jobID)
	}
	return job, nil
}

// Jobs

func (s *FieldService) ListJobs() []domain.Job {
	return s.cache.Jobs()
}

func (s *FieldService) GetJob(jobID string) (*domain.Job, error) {
	return s.requireJob(jobID)
}

func (s *FieldService) ReplaceJobs(ctx context.Context, jobs []domain.Job) error {
	return s.cache.ReplaceJobs(ctx, jobs)
}

func (s *FieldService) AddJob(ctx context.Context, job domain.Job) error {
	return s.cache.AddJob(ctx, job)
}

func (s *FieldService) UpdateJob(ctx context.Context, jobID string, patch domain.JobPatch) (*domain.Job, error) {
	return s.cache.UpdateJob(ctx, jobID, patch)
}

func (s *FieldService) SelectJob(jobID string) error {
	return s.cache.SelectJob(jobID)
}

func (s *FieldService) SelectedJob() *domain.Job {
	return s.cache.SelectedJob()
}

// Check-ins

// CheckIn records the crew's arrival at a job. Only one check-in per job per
// calendar day is accepted.
func (s *FieldService) CheckIn(ctx context.Context, jobID string, pos geo.Position) (*domain.CheckIn, error) {
	if _, err := s.requireJob(jobID); err != nil {
		return nil, err
	}
	now := s.today()
	if err := pos.Validate(now, s.geoOpts); err != nil {
		return nil, err
	}
	if existing := s.cache.CheckedInToday(jobID, now); existing != nil {
		return existing, fmt.Errorf("%w: job %s at %s", ErrAlreadyCheckedIn, jobID, existing.Timestamp.In(s.loc).Format(time.Kitchen))
	}

	ci, err := s.cache.AddPendingCheckIn(ctx, domain.CheckIn{
		JobID:     jobID,
		Latitude:  pos.Latitude,
		Longitude: pos.Longitude,
		Timestamp: now.UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record check-in: %w", err)
	}
	s.logger.Info("checked in", "job_id", jobID, "checkin_id", ci.ID, "lat", ci.Latitude, "lng", ci.Longitude)
	return ci, nil
}

func (s *FieldService) CheckedInToday(jobID string) *domain.CheckIn {
	return s.cache.CheckedInToday(jobID, s.today())
}

func (s *FieldService) ListCheckIns() []domain.CheckIn {
	return s.cache.PendingCheckIns()
}

func (s *FieldService) MarkCheckInSynced(ctx context.Context, id string) error {
	return s.cache.MarkCheckInSynced(ctx, id)
}

// Photos

// PhotoCapture is a photo taken on site. Position is optional.
type PhotoCapture struct {
	JobID    string
	MimeType string
	Caption  string
	Position *geo.Position
	Data     io.Reader
}

// CapturePhoto stores the payload and queues the photo for upload. The
// payload is removed again if the queue entry cannot be recorded.
func (s *FieldService) CapturePhoto(ctx context.Context, in PhotoCapture) (*domain.PendingPhoto, error) {
	if _, err := s.requireJob(in.JobID); err != nil {
		return nil, err
	}
	if in.Position != nil {
		if err := in.Position.Validate(s.today(), geo.Options{}); err != nil {
			return nil, err
		}
	}

	storageKey, err := s.photoStg.Save(ctx, in.JobID, in.MimeType, in.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to save photo: %w", err)
	}
	s.logger.Debug("photo saved", "job_id", in.JobID, "storage_key", storageKey)

	photo := domain.PendingPhoto{
		JobID:      in.JobID,
		StorageKey: storageKey,
		MimeType:   in.MimeType,
		Caption:    in.Caption,
		TakenAt:    s.now().UTC(),
	}
	if in.Position != nil {
		lat, lng := in.Position.Latitude, in.Position.Longitude
		photo.Latitude, photo.Longitude = &lat, &lng
	}

	stored, err := s.cache.AddPendingPhoto(ctx, photo)
	if err != nil {
		if stgErr := s.photoStg.Delete(ctx, storageKey); stgErr != nil {
			s.logger.Error("failed to roll back photo file", "job_id", in.JobID, "storage_key", storageKey, "error", stgErr)
		}
		return nil, fmt.Errorf("failed to queue photo: %w", err)
	}
	s.logger.Info("photo captured", "job_id", in.JobID, "photo_id", stored.ID)
	return stored, nil
}

func (s *FieldService) ListPhotos() []domain.PendingPhoto {
	return s.cache.PendingPhotos()
}

// OpenPhoto returns the payload of a queued photo. The caller closes it.
func (s *FieldService) OpenPhoto(ctx context.Context, id string) (io.ReadCloser, string, error) {
	photo := s.cache.Photo(id)
	if photo == nil {
		return nil, "", fmt.Errorf("%w: %s", offline.ErrPhotoNotFound, id)
	}
	return s.photoStg.Get(ctx, photo.StorageKey)
}

func (s *FieldService) MarkPhotoSynced(ctx context.Context, id string) error {
	return s.cache.MarkPhotoSynced(ctx, id)
}

// RemovePhoto drops the queue entry and then its payload. A payload that is
// already gone is not an error.
func (s *FieldService) RemovePhoto(ctx context.Context, id string) error {
	photo, err := s.cache.RemovePendingPhoto(ctx, id)
	if err != nil {
		return err
	}
	if err := s.photoStg.Delete(ctx, photo.StorageKey); err != nil && !errors.Is(err, photostore.ErrNotFound) {
		s.logger.Error("failed to delete photo file", "photo_id", id, "storage_key", photo.StorageKey, "error", err)
	}
	return nil
}

// Timer

// Timer is the running-timer view shown on the job screen.
type Timer struct {
	Running      bool            `json:"running"`
	Log          *domain.TimeLog `json:"log,omitempty"`
	ElapsedHours float64         `json:"elapsedHours"`
	Elapsed      string          `json:"elapsed"`
}

func (s *FieldService) StartTimer(ctx context.Context, jobID string) (*domain.TimeLog, error) {
	if _, err := s.requireJob(jobID); err != nil {
		return nil, err
	}
	log, err := s.cache.StartTimer(ctx, jobID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("timer started", "job_id", jobID, "timelog_id", log.ID)
	return log, nil
}

// StopTimer returns the completed log, or nil when no timer was running.
func (s *FieldService) StopTimer(ctx context.Context) (*domain.TimeLog, error) {
	log, err := s.cache.StopTimer(ctx)
	if err != nil {
		return nil, err
	}
	if log != nil {
		s.logger.Info("timer stopped", "job_id", log.JobID, "timelog_id", log.ID, "hours", *log.TotalHours)
	}
	return log, nil
}

func (s *FieldService) CurrentTimer() Timer {
	active := s.cache.ActiveTimeLog()
	if active == nil {
		return Timer{Elapsed: timecalc.FormatHours(0)}
	}
	hours := timecalc.Hours(active.StartTime, s.now())
	return Timer{Running: true, Log: active, ElapsedHours: hours, Elapsed: timecalc.FormatHours(hours)}
}

func (s *FieldService) ListTimeLogs() []domain.TimeLog {
	return s.cache.TimeLogs()
}

func (s *FieldService) MarkAllTimeLogsSynced(ctx context.Context) (int, error) {
	return s.cache.MarkAllTimeLogsSynced(ctx)
}

// Connectivity

func (s *FieldService) Status() domain.Connectivity {
	return s.cache.Status()
}

func (s *FieldService) SetOnline(online bool) domain.Connectivity {
	s.cache.SetOnline(online)
	return s.cache.Status()
}

// ClearAll wipes the cache and then deletes every photo payload it referenced.
func (s *FieldService) ClearAll(ctx context.Context) error {
	photos := s.cache.PendingPhotos()
	if err := s.cache.ClearAll(ctx); err != nil {
		return fmt.Errorf("failed to clear offline data: %w", err)
	}
	for _, p := range photos {
		if err := s.photoStg.Delete(ctx, p.StorageKey); err != nil && !errors.Is(err, photostore.ErrNotFound) {
			s.logger.Error("failed to delete photo file", "photo_id", p.ID, "storage_key", p.StorageKey, "error", err)
		}
	}
	s.logger.Info("offline data cleared", "photos_deleted", len(photos))
	return nil
}
