package report

import (
	"encoding/csv"
	"os"
	"sort"
	"strconv"
)

var csvHeader = []string{
	"metric", "type", "count", "sum", "rate", "value",
	"avg", "min", "med", "max", "p(90)", "p(95)", "p(99)",
	"passes", "fails",
}

// WriteCSV exports one row per metric and submetric, sorted by name.
func WriteCSV(path string, s *Summary) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return err
	}

	names := make([]string, 0, len(s.Metrics))
	for name := range s.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		m := s.Metrics[name]
		record := []string{
			name,
			m.Type,
			strconv.FormatInt(m.Count, 10),
			num(m.Sum), num(m.Rate), num(m.Value),
			num(m.Avg), num(m.Min), num(m.Med), num(m.Max),
			num(m.P90), num(m.P95), num(m.P99),
			strconv.FormatInt(m.Passes, 10),
			strconv.FormatInt(m.Fails, 10),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
