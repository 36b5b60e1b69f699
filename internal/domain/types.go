package domain

import "time"

// Job statuses the upstream backend reports for crew assignments.
const (
	JobStatusScheduled  = "SCHEDULED"
	JobStatusInProgress = "IN_PROGRESS"
	JobStatusCompleted  = "COMPLETED"
)

type Assignment struct {
	UserID    string `json:"userId"`
	FirstName string `json:"firstName"`
	Role      string `json:"role"`
}

type Job struct {
	ID             string       `json:"id"`
	JobNumber      string       `json:"jobNumber"`
	Title          string       `json:"title"`
	Address        string       `json:"address"`
	Status         string       `json:"status"`
	PropertyType   string       `json:"propertyType,omitempty"`
	RoofSize       float64      `json:"roofSize,omitempty"`
	ScheduledStart *time.Time   `json:"scheduledStart,omitempty"`
	ScheduledEnd   *time.Time   `json:"scheduledEnd,omitempty"`
	EstimatedCost  float64      `json:"estimatedCost,omitempty"`
	Assignments    []Assignment `json:"assignments"`
}

// JobPatch carries a partial job update. Nil fields are left untouched.
type JobPatch struct {
	Title          *string       `json:"title,omitempty"`
	Address        *string       `json:"address,omitempty"`
	Status         *string       `json:"status,omitempty"`
	PropertyType   *string       `json:"propertyType,omitempty"`
	RoofSize       *float64      `json:"roofSize,omitempty"`
	ScheduledStart *time.Time    `json:"scheduledStart,omitempty"`
	ScheduledEnd   *time.Time    `json:"scheduledEnd,omitempty"`
	EstimatedCost  *float64      `json:"estimatedCost,omitempty"`
	Assignments    *[]Assignment `json:"assignments,omitempty"`
}

// PendingPhoto is a locally captured image awaiting upload. The image bytes
// live in the photo store under StorageKey.
type PendingPhoto struct {
	ID         string    `json:"id"`
	JobID      string    `json:"jobId"`
	StorageKey string    `json:"storageKey"`
	MimeType   string    `json:"mimeType"`
	Caption    string    `json:"caption,omitempty"`
	Latitude   *float64  `json:"latitude,omitempty"`
	Longitude  *float64  `json:"longitude,omitempty"`
	TakenAt    time.Time `json:"takenAt"`
	Synced     bool      `json:"synced"`
}

type CheckIn struct {
	ID        string    `json:"id"`
	JobID     string    `json:"jobId"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
	Synced    bool      `json:"synced"`
}

// TimeLog is a clocked work session. EndTime and TotalHours are nil while
// the session is running.
type TimeLog struct {
	ID         string     `json:"id"`
	JobID      string     `json:"jobId"`
	StartTime  time.Time  `json:"startTime"`
	EndTime    *time.Time `json:"endTime,omitempty"`
	TotalHours *float64   `json:"totalHours,omitempty"`
	Synced     bool       `json:"synced"`
}

// Connectivity is runtime-only state; it is never persisted.
type Connectivity struct {
	Online       bool       `json:"online"`
	LastSyncTime *time.Time `json:"lastSyncTime,omitempty"`
}

// SyncRun records the outcome of one synchronization attempt.
type SyncRun struct {
	ID          string     `json:"id"`
	StartedAt   time.Time  `json:"startedAt"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
	JobsFetched int        `json:"jobsFetched"`
	Pushed      int        `json:"pushed"`
	Failed      int        `json:"failed"`
	Error       string     `json:"error,omitempty"`
}
