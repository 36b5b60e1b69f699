package offline

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roofmanager/fieldsync/internal/domain"
)

// stateVersion is bumped whenever the persisted layout changes shape.
const stateVersion = 1

var ErrUnsupportedVersion = errors.New("unsupported offline state version")

// State is the persisted portion of the cache. Connectivity is runtime-only
// and deliberately absent.
type State struct {
	Jobs            []domain.Job          `json:"jobs"`
	PendingPhotos   []domain.PendingPhoto `json:"pendingPhotos"`
	TimeLogs        []domain.TimeLog      `json:"timeLogs"`
	ActiveTimeLog   *domain.TimeLog       `json:"activeTimeLog"`
	PendingCheckIns []domain.CheckIn      `json:"pendingCheckIns"`
}

type envelope struct {
	State   State `json:"state"`
	Version int   `json:"version"`
}

func emptyState() State {
	return State{
		Jobs:            []domain.Job{},
		PendingPhotos:   []domain.PendingPhoto{},
		TimeLogs:        []domain.TimeLog{},
		PendingCheckIns: []domain.CheckIn{},
	}
}

// Encode serializes s into the slot format.
func Encode(s State) ([]byte, error) {
	data, err := json.Marshal(envelope{State: s, Version: stateVersion})
	if err != nil {
		return nil, fmt.Errorf("failed to encode offline state: %w", err)
	}
	return data, nil
}

// Decode restores a State written by Encode. Missing queues come back empty.
func Decode(data []byte) (State, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return State{}, fmt.Errorf("failed to decode offline state: %w", err)
	}
	if env.Version > stateVersion {
		return State{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.Version)
	}

	s := env.State
	if s.Jobs == nil {
		s.Jobs = []domain.Job{}
	}
	if s.PendingPhotos == nil {
		s.PendingPhotos = []domain.PendingPhoto{}
	}
	if s.TimeLogs == nil {
		s.TimeLogs = []domain.TimeLog{}
	}
	if s.PendingCheckIns == nil {
		s.PendingCheckIns = []domain.CheckIn{}
	}
	return s, nil
}

// clone returns a deep copy so a pending mutation never aliases committed state.
func (s State) clone() State {
	out := State{
		Jobs:            make([]domain.Job, len(s.Jobs)),
		PendingPhotos:   make([]domain.PendingPhoto, len(s.PendingPhotos)),
		TimeLogs:        make([]domain.TimeLog, len(s.TimeLogs)),
		PendingCheckIns: make([]domain.CheckIn, len(s.PendingCheckIns)),
	}
	for i, j := range s.Jobs {
		out.Jobs[i] = cloneJob(j)
	}
	for i, p := range s.PendingPhotos {
		out.PendingPhotos[i] = clonePhoto(p)
	}
	for i, l := range s.TimeLogs {
		out.TimeLogs[i] = cloneTimeLog(l)
	}
	copy(out.PendingCheckIns, s.PendingCheckIns)
	if s.ActiveTimeLog != nil {
		active := cloneTimeLog(*s.ActiveTimeLog)
		out.ActiveTimeLog = &active
	}
	return out
}

func cloneJob(j domain.Job) domain.Job {
	if j.Assignments != nil {
		j.Assignments = append([]domain.Assignment(nil), j.Assignments...)
	}
	j.ScheduledStart = cloneTime(j.ScheduledStart)
	j.ScheduledEnd = cloneTime(j.ScheduledEnd)
	return j
}

func clonePhoto(p domain.PendingPhoto) domain.PendingPhoto {
	p.Latitude = cloneFloat(p.Latitude)
	p.Longitude = cloneFloat(p.Longitude)
	return p
}

func cloneTimeLog(l domain.TimeLog) domain.TimeLog {
	l.EndTime = cloneTime(l.EndTime)
	l.TotalHours = cloneFloat(l.TotalHours)
	return l
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
