package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fxload/internal/report"
)

func record(t *testing.T, passed bool, reqs float64) RunRecord {
	t.Helper()
	id, err := uuid.NewV7()
	require.NoError(t, err)
	return NewRecord(&report.Summary{
		Meta:   report.Meta{RunID: id.String(), Scenarios: []string{"user_journey"}, StartedAt: time.Now().UTC()},
		Passed: passed,
		Metrics: map[string]report.MetricSummary{
			"http_reqs":         {Type: "counter", Sum: reqs},
			"http_req_duration": {Type: "trend", IsTime: true, P95: 180},
		},
	})
}

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, path, s.Path())

	first := record(t, true, 10)
	second := record(t, false, 20)
	require.NoError(t, s.Save(first))
	require.NoError(t, s.Save(second))

	got, err := s.Get(first.ID)
	require.NoError(t, err)
	assert.True(t, got.Passed)
	assert.Equal(t, []string{"user_journey"}, got.Scenarios)
	assert.Equal(t, 10.0, got.Requests())
	assert.Equal(t, 180.0, got.P95())

	all, err := s.List(0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID, "newest first")

	one, err := s.List(1)
	require.NoError(t, err)
	assert.Len(t, one, 1)
}

func TestStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	require.NoError(t, err)
	rec := record(t, true, 1)
	require.NoError(t, s.Save(rec))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	_, err = s.Get(rec.ID)
	assert.NoError(t, err)
}

func TestStoreErrors(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Error(t, s.Save(RunRecord{}))

	var empty RunRecord
	assert.Zero(t, empty.Requests())
}
