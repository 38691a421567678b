package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"fxload/internal/runner"
)

// Progress prints a single carriage-return progress line for every snapshot
// until the final one arrives or ctx is done.
func Progress(ctx context.Context, w io.Writer, updates runner.StatsUpdateChan) {
	start := time.Now()
	var lastReqs uint64
	last := start
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(w)
			return
		case s, ok := <-updates:
			if !ok {
				fmt.Fprintln(w)
				return
			}
			now := time.Now()
			rps := 0.0
			if dt := now.Sub(last).Seconds(); dt > 0 && s.Requests >= lastReqs {
				rps = float64(s.Requests-lastReqs) / dt
			}
			lastReqs, last = s.Requests, now

			fmt.Fprint(w, "\r"+Line(s, rps))
			if s.Done {
				fmt.Fprintln(w)
				return
			}
		}
	}
}

// Line renders one snapshot as the headless status line.
func Line(s runner.StatsSnapshot, rps float64) string {
	pct := 1.0
	if !s.Done && s.Duration > 0 {
		pct = min(float64(s.Elapsed)/float64(s.Duration), 1)
	}

	if !s.Done && s.Elapsed >= s.Duration && s.Inflight > 0 {
		return fmt.Sprintf("%s %3.0f%% | %s/%s | Draining: %d iterations...        ",
			progressBar(1, 20), 100.0,
			s.Elapsed.Round(time.Second), s.Duration,
			s.Inflight)
	}

	return fmt.Sprintf("%s %3.0f%% | %s/%s | VUs: %3d/%d | RPS: %.1f | OK: %d | Err: %d | Checks: ✓ %d ✗ %d | p(95): %.1fms",
		progressBar(pct, 20), pct*100,
		s.Elapsed.Round(time.Second), s.Duration,
		s.VUs, s.VUsMax,
		rps,
		s.Success,
		s.Fail,
		s.ChecksPassed, s.ChecksFailed,
		s.P95ServiceMs,
	)
}

// Header describes the run before it starts.
func Header(w io.Writer, baseURL string, scenarios []string, total time.Duration) {
	fmt.Fprintf(w, "\n🚀 STARTING FXLOAD TEST\n")
	fmt.Fprintf(w, "======================================================================\n")
	fmt.Fprintf(w, "Target URL : %s\n", baseURL)
	fmt.Fprintf(w, "Scenarios  : %s\n", strings.Join(scenarios, ", "))
	fmt.Fprintf(w, "Duration   : %s (longest scenario, excluding graceful stop)\n", total)
	fmt.Fprintf(w, "======================================================================\n\n")
}

func progressBar(pct float64, width int) string {
	filled := int(pct * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("-", width-filled) + "]"
}
