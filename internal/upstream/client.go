package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"

	"github.com/roofmanager/fieldsync/internal/domain"
	"github.com/roofmanager/fieldsync/internal/photostore"
)

var (
	ErrUnauthorized = errors.New("upstream rejected credentials")
	ErrUnreachable  = errors.New("upstream unreachable")
)

// StatusError is a non-2xx answer other than 401.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.Code, e.Body)
}

// assignedStatuses are the job states the crew works from offline.
const assignedStatuses = domain.JobStatusInProgress + "," + domain.JobStatusScheduled

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
}

// Client talks to the roofing backend REST API with a bearer token.
type Client struct {
	http   *resty.Client
	probe  *resty.Client
	tokens *TokenHolder
	logger *slog.Logger
}

func NewClient(opts Options, tokens *TokenHolder, logger *slog.Logger) *Client {
	hc := &http.Client{Transport: &oauth2.Transport{Source: tokens}}

	client := resty.NewWithClient(hc).
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Accept", "application/json").
		// Only reads are retried here; pushes are retried by the next sync run.
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if r == nil || r.Request == nil || r.Request.Method != http.MethodGet {
				return false
			}
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})

	// The health probe goes out unauthenticated so it works after eviction.
	probe := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout)

	return &Client{http: client, probe: probe, tokens: tokens, logger: logger}
}

// Tokens exposes the holder so a fresh login can install a new token.
func (c *Client) Tokens() *TokenHolder {
	return c.tokens
}

type jobsEnvelope struct {
	Success bool `json:"success"`
	Data    struct {
		Jobs []upstreamJob `json:"jobs"`
	} `json:"data"`
}

type upstreamJob struct {
	ID             string     `json:"id"`
	JobNumber      string     `json:"jobNumber"`
	Title          string     `json:"title"`
	Address        string     `json:"address"`
	Status         string     `json:"status"`
	PropertyType   string     `json:"propertyType"`
	RoofSize       float64    `json:"roofSize"`
	ScheduledStart *time.Time `json:"scheduledStart"`
	ScheduledEnd   *time.Time `json:"scheduledEnd"`
	EstimatedCost  float64    `json:"estimatedCost"`
	Assignments    []struct {
		UserID string `json:"userId"`
		User   struct {
			FirstName string `json:"firstName"`
			Role      string `json:"role"`
		} `json:"user"`
	} `json:"assignments"`
}

func (j upstreamJob) toDomain() domain.Job {
	job := domain.Job{
		ID:             j.ID,
		JobNumber:      j.JobNumber,
		Title:          j.Title,
		Address:        j.Address,
		Status:         j.Status,
		PropertyType:   j.PropertyType,
		RoofSize:       j.RoofSize,
		ScheduledStart: j.ScheduledStart,
		ScheduledEnd:   j.ScheduledEnd,
		EstimatedCost:  j.EstimatedCost,
		Assignments:    make([]domain.Assignment, 0, len(j.Assignments)),
	}
	for _, a := range j.Assignments {
		job.Assignments = append(job.Assignments, domain.Assignment{
			UserID:    a.UserID,
			FirstName: a.User.FirstName,
			Role:      a.User.Role,
		})
	}
	return job
}

// FetchJobs returns the crew's scheduled and in-progress jobs.
func (c *Client) FetchJobs(ctx context.Context) ([]domain.Job, error) {
	if !c.tokens.Has() {
		return nil, ErrUnauthorized
	}

	var env jobsEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("status", assignedStatuses).
		SetResult(&env).
		Get("/jobs")
	if err := c.check(ctx, resp, err); err != nil {
		return nil, fmt.Errorf("fetch jobs: %w", err)
	}

	jobs := make([]domain.Job, 0, len(env.Data.Jobs))
	for _, j := range env.Data.Jobs {
		jobs = append(jobs, j.toDomain())
	}
	c.logger.Debug("fetched jobs", "count", len(jobs))
	return jobs, nil
}

func (c *Client) PushCheckIn(ctx context.Context, ci domain.CheckIn) error {
	body := map[string]any{
		"id":        ci.ID,
		"latitude":  ci.Latitude,
		"longitude": ci.Longitude,
		"timestamp": ci.Timestamp,
	}
	return c.post(ctx, "/jobs/{jobId}/checkins", ci.JobID, ci.ID, body)
}

func (c *Client) PushTimeLog(ctx context.Context, log domain.TimeLog) error {
	body := map[string]any{
		"id":         log.ID,
		"startTime":  log.StartTime,
		"endTime":    log.EndTime,
		"totalHours": log.TotalHours,
	}
	return c.post(ctx, "/jobs/{jobId}/time-logs", log.JobID, log.ID, body)
}

func (c *Client) post(ctx context.Context, path, jobID, recordID string, body any) error {
	if !c.tokens.Has() {
		return ErrUnauthorized
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("jobId", jobID).
		SetHeader("Idempotency-Key", recordID).
		SetBody(body).
		Post(path)
	if err := c.check(ctx, resp, err); err != nil {
		return fmt.Errorf("push %s: %w", recordID, err)
	}
	return nil
}

// PushPhoto uploads the payload as the multipart field "photo".
func (c *Client) PushPhoto(ctx context.Context, photo domain.PendingPhoto, data []byte) error {
	if !c.tokens.Has() {
		return ErrUnauthorized
	}

	fields := map[string]string{
		"id":      photo.ID,
		"caption": photo.Caption,
		"takenAt": photo.TakenAt.Format(time.RFC3339Nano),
	}
	if photo.Latitude != nil && photo.Longitude != nil {
		fields["latitude"] = strconv.FormatFloat(*photo.Latitude, 'f', -1, 64)
		fields["longitude"] = strconv.FormatFloat(*photo.Longitude, 'f', -1, 64)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("jobId", photo.JobID).
		SetHeader("Idempotency-Key", photo.ID).
		SetMultipartFormData(fields).
		SetMultipartField("photo", photo.ID+photostore.ExtForMIME(photo.MimeType), photo.MimeType, bytes.NewReader(data)).
		Post("/jobs/{jobId}/photos")
	if err := c.check(ctx, resp, err); err != nil {
		return fmt.Errorf("push photo %s: %w", photo.ID, err)
	}
	return nil
}

// Ping reports whether the backend answers at all.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.probe.R().SetContext(ctx).Get("/health")
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	if resp.StatusCode() >= http.StatusInternalServerError {
		return &StatusError{Code: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}

// check turns a resty outcome into the package's error taxonomy. A 401
// evicts the token.
func (c *Client) check(ctx context.Context, resp *resty.Response, err error) error {
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusUnauthorized:
		c.tokens.Evict()
		c.logger.Warn("upstream rejected token, evicted", "path", resp.Request.URL)
		return ErrUnauthorized
	case code >= http.StatusBadRequest:
		return &StatusError{Code: code, Body: resp.String()}
	}
	return nil
}
