package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"fxload/internal/runner"
)

func TestLine(t *testing.T) {
	s := runner.StatsSnapshot{
		Elapsed:      30 * time.Second,
		Duration:     time.Minute,
		VUs:          12,
		VUsMax:       50,
		Success:      90,
		Fail:         10,
		ChecksPassed: 7,
		ChecksFailed: 1,
		P95ServiceMs: 123.46,
	}
	line := Line(s, 3.5)
	assert.Contains(t, line, "[██████████----------]  50%")
	assert.Contains(t, line, "30s/1m0s")
	assert.Contains(t, line, "VUs:  12/50")
	assert.Contains(t, line, "RPS: 3.5")
	assert.Contains(t, line, "Err: 10")
	assert.Contains(t, line, "✓ 7 ✗ 1")
	assert.Contains(t, line, "p(95): 123.5ms")
}

func TestLineDraining(t *testing.T) {
	line := Line(runner.StatsSnapshot{Elapsed: 2 * time.Minute, Duration: time.Minute, Inflight: 3}, 0)
	assert.Contains(t, line, "Draining: 3 iterations")
	assert.Contains(t, line, "100%")
}

func TestProgressStopsOnFinalSnapshot(t *testing.T) {
	updates := make(runner.StatsUpdateChan, 3)
	updates <- runner.StatsSnapshot{Duration: time.Second, Requests: 1}
	updates <- runner.StatsSnapshot{Duration: time.Second, Requests: 2, Done: true}

	var buf bytes.Buffer
	done := make(chan struct{})
	go func() {
		Progress(context.Background(), &buf, updates)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("progress did not stop")
	}
	assert.Equal(t, 2, strings.Count(buf.String(), "\r"))
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
}

func TestProgressBarBounds(t *testing.T) {
	assert.Equal(t, "[----]", progressBar(-1, 4))
	assert.Equal(t, "[████]", progressBar(2, 4))
}

func TestHeader(t *testing.T) {
	var buf bytes.Buffer
	Header(&buf, "http://localhost:8080/api/v1", []string{"api_load", "user_journey"}, 10*time.Minute)
	assert.Contains(t, buf.String(), "api_load, user_journey")
	assert.Contains(t, buf.String(), "10m0s")
}
