package timesheet

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/roofmanager/fieldsync/internal/domain"
)

func completedLog(id, jobID string, start time.Time, d time.Duration, synced bool) domain.TimeLog {
	end := start.Add(d)
	hours := d.Hours()
	return domain.TimeLog{ID: id, JobID: jobID, StartTime: start, EndTime: &end, TotalHours: &hours, Synced: synced}
}

func TestWrite(t *testing.T) {
	day := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	logs := []domain.TimeLog{
		completedLog("t2", "job-2", day.Add(5*time.Hour), 45*time.Minute, false),
		completedLog("t1", "job-1", day, 90*time.Minute, true),
		{ID: "t3", JobID: "job-1", StartTime: day.Add(7 * time.Hour)},
	}
	jobs := []domain.Job{
		{ID: "job-1", JobNumber: "RM-0001", Title: "Re-roof"},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, logs, jobs, time.UTC))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, header, rows[0])
	assert.Equal(t, []string{"RM-0001", "Re-roof", "2026-03-02", "08:00", "09:30", "1.5", "1h 30m", "yes"}, rows[1])
	// Unknown jobs fall back to the id.
	assert.Equal(t, "job-2", rows[2][1])
	assert.Equal(t, "45m", rows[2][6])
	assert.Equal(t, "Total", rows[3][0])
	assert.Equal(t, "2.25", rows[3][5])
}

func TestWrite_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, nil, nil, time.UTC))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Total", rows[1][0])
}

func TestWrite_Location(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	logs := []domain.TimeLog{completedLog("t1", "job-1", time.Date(2026, 3, 2, 23, 0, 0, 0, time.UTC), time.Hour, false)}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, logs, nil, loc))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-03", rows[1][2])
	assert.Equal(t, "01:00", rows[1][3])
}
