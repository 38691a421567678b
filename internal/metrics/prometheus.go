package metrics

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const promNamespace = "fxload"

var summaryQuantiles = []float64{0.5, 0.9, 0.95, 0.99}

// Exporter exposes the collector's current aggregates to Prometheus.
// It is unchecked: the metric set grows as scenarios record.
type Exporter struct {
	collector *Collector
}

func NewExporter(c *Collector) *Exporter {
	return &Exporter{collector: c}
}

func (e *Exporter) Describe(chan<- *prometheus.Desc) {}

func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	for _, m := range e.collector.Metrics() {
		a := m.Snapshot()
		name := prometheus.BuildFQName(promNamespace, "", promName(m.Name))
		help := m.Type.String() + " " + m.Name

		switch m.Type {
		case Counter:
			desc := prometheus.NewDesc(name+"_total", help, nil, nil)
			ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, a.Sum)
		case Gauge:
			desc := prometheus.NewDesc(name, help, nil, nil)
			ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, a.Value)
		case Rate:
			desc := prometheus.NewDesc(name+"_ratio", help, nil, nil)
			ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, a.Rate)
		case Trend:
			if m.IsTime {
				name += "_ms"
			}
			desc := prometheus.NewDesc(name, help, nil, nil)
			quantiles := make(map[float64]float64, len(summaryQuantiles))
			for _, q := range summaryQuantiles {
				quantiles[q] = a.P(q * 100)
			}
			ch <- prometheus.MustNewConstSummary(desc, uint64(a.Count), a.Sum, quantiles)
		}
	}
}

func promName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, name)
}

// Handler serves the collector in the Prometheus text format.
func Handler(c *Collector) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewExporter(c))
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, c *Collector, log zerolog.Logger) error {
	router := mux.NewRouter()
	router.Handle("/metrics", Handler(c)).Methods("GET")

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("Serving live metrics")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
