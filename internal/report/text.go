package report

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/montanaflynn/stats"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"fxload/internal/metrics"
	"fxload/internal/tui/styles"
)

var printer = message.NewPrinter(language.English)

const nameWidth = 34

// WriteText renders the end-of-run summary: checks, thresholds, metric
// lines, the latency histogram and throughput statistics.
func WriteText(w io.Writer, s *Summary) error {
	var sb strings.Builder

	sb.WriteString("\n" + styles.Title.Render("SUMMARY") + "\n\n")
	writeMeta(&sb, s)

	if len(s.Checks) > 0 {
		sb.WriteString("\n  CHECKS\n")
		group := "\x00"
		for _, c := range s.Checks {
			if c.Group != group {
				group = c.Group
				if group != "" {
					fmt.Fprintf(&sb, "    █ %s\n", strings.TrimPrefix(group, "::"))
				}
			}
			total := c.Passes + c.Fails
			line := fmt.Sprintf("%s %s", styles.Mark(c.Fails == 0), c.Name)
			if c.Fails > 0 {
				line += styles.Subtle.Render(printer.Sprintf("  ↳ %d%%  ✓ %d / ✗ %d", 100*c.Passes/total, c.Passes, c.Fails))
			}
			sb.WriteString("      " + line + "\n")
		}
	}

	if len(s.Thresholds) > 0 {
		sb.WriteString("\n  THRESHOLDS\n")
		for _, t := range s.Thresholds {
			detail := formatValue(t.Selector, t.Value, s)
			if t.Error != "" {
				detail = t.Error
			}
			fmt.Fprintf(&sb, "    %s %s %s %s\n", styles.Mark(t.Pass), t.Selector, t.Threshold, styles.Subtle.Render(detail))
		}
	}

	sb.WriteString("\n  METRICS\n")
	names := make([]string, 0, len(s.Metrics))
	for name := range s.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		label := name
		if base, _, err := metrics.ParseSelector(name); err == nil && base != name {
			label = "  " + strings.TrimPrefix(name, base)
		}
		dots := max(nameWidth-len([]rune(label)), 1)
		fmt.Fprintf(&sb, "    %s%s: %s\n", label, strings.Repeat(".", dots), metricLine(name, s.Metrics[name]))
	}

	if a, ok := s.Aggregate(metrics.HTTPReqDuration); ok && len(a.Samples) > 0 {
		sb.WriteString("\n  HTTP_REQ_DURATION DISTRIBUTION\n")
		sb.WriteString(latencyHistogram(a.Samples))
	}
	if a, ok := s.Aggregate(metrics.HTTPReqs); ok && len(a.PerSecond) > 1 {
		sb.WriteString("\n  THROUGHPUT (requests per second)\n")
		sb.WriteString(throughput(a.PerSecond))
	}

	sb.WriteString("\n  " + styles.Verdict(s.Passed) + "\n")

	_, err := io.WriteString(w, sb.String())
	return err
}

func writeMeta(sb *strings.Builder, s *Summary) {
	m := s.Meta
	fmt.Fprintf(sb, "  run        : %s\n", m.RunID)
	fmt.Fprintf(sb, "  scenarios  : %s\n", strings.Join(m.Scenarios, ", "))
	fmt.Fprintf(sb, "  duration   : %s\n", time.Duration(m.Duration).Round(time.Millisecond))
	if m.Aborted {
		sb.WriteString("  " + styles.Warn.Render("aborted by threshold") + "\n")
	}
}

func metricLine(name string, m MetricSummary) string {
	switch m.Type {
	case "counter":
		if isData(name) {
			return fmt.Sprintf("%s %s/s", formatBytes(m.Sum), formatBytes(m.Rate))
		}
		return printer.Sprintf("%v %.2f/s", m.Sum, m.Rate)
	case "gauge":
		return printer.Sprintf("%v min=%v max=%v", m.Value, m.Min, m.Max)
	case "rate":
		return printer.Sprintf("%.2f%% ✓ %d ✗ %d", m.Rate*100, m.Passes, m.Fails)
	case "trend":
		f := func(v float64) string { return formatTrend(m, v) }
		return fmt.Sprintf("avg=%s min=%s med=%s max=%s p(90)=%s p(95)=%s",
			f(m.Avg), f(m.Min), f(m.Med), f(m.Max), f(m.P90), f(m.P95))
	}
	return ""
}

// formatValue renders a threshold's observed value in the unit of its metric.
func formatValue(selector string, v float64, s *Summary) string {
	m, ok := s.Metrics[selector]
	if !ok {
		base, _, _ := metrics.ParseSelector(selector)
		m, ok = s.Metrics[base]
	}
	if ok && m.Type == "trend" {
		return formatTrend(m, v)
	}
	return printer.Sprintf("%v", v)
}

func formatTrend(m MetricSummary, v float64) string {
	if !m.IsTime {
		return printer.Sprintf("%.2f", v)
	}
	return formatMillis(v)
}

func formatMillis(ms float64) string {
	switch {
	case ms < 1:
		return fmt.Sprintf("%.2fµs", ms*1000)
	case ms < 1000:
		return fmt.Sprintf("%.2fms", ms)
	}
	return fmt.Sprintf("%.2fs", ms/1000)
}

func isData(name string) bool {
	if base, _, err := metrics.ParseSelector(name); err == nil {
		name = base
	}
	return name == metrics.DataSent || name == metrics.DataReceived
}

func formatBytes(b float64) string {
	units := []string{"B", "kB", "MB", "GB", "TB"}
	i := 0
	for b >= 1000 && i < len(units)-1 {
		b /= 1000
		i++
	}
	return fmt.Sprintf("%.1f %s", b, units[i])
}

// latencyHistogram plots the reservoir of request durations (milliseconds).
func latencyHistogram(samples []float64) string {
	buf := new(bytes.Buffer)
	hist := histogram.Hist(10, samples)
	err := histogram.Fprintf(buf, hist, histogram.Linear(30), func(v float64) string {
		return formatMillis(v)
	})
	if err != nil {
		return fmt.Sprintf("    unable to plot: %v\n", err)
	}
	return indent(buf.String(), "    ")
}

func throughput(perSecond []float64) string {
	mean, _ := stats.Mean(perSecond)
	median, _ := stats.Median(perSecond)
	peak, _ := stats.Max(perSecond)
	stdev, _ := stats.StandardDeviation(perSecond)
	return printer.Sprintf("    mean=%.2f median=%.2f max=%v stddev=%.2f over %d s\n", mean, median, peak, stdev, len(perSecond))
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n") + "\n"
}
