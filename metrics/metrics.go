// Package metrics records load-run counters and step timings with the
// Prometheus client and pushes them to a Pushgateway once the run ends.
// A one-shot job has no scrape window, so the Pushgateway is the only sink.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Recorder collects the metrics of one load run. The zero value is not
// usable; construct with NewRecorder.
type Recorder struct {
	gatewayURL string
	jobName    string
	reg        *prometheus.Registry

	rows         *prometheus.CounterVec // etl_rows_total{kind}
	stepDuration *prometheus.GaugeVec   // etl_step_duration_seconds{step}
	lastSuccess  prometheus.Gauge       // etl_last_success_timestamp_seconds
}

// NewRecorder builds a Recorder. An empty gatewayURL disables Push.
func NewRecorder(jobName, gatewayURL string) (*Recorder, error) {
	if jobName == "" {
		jobName = "retail_etl"
	}

	r := &Recorder{
		gatewayURL: gatewayURL,
		jobName:    jobName,
		reg:        prometheus.NewRegistry(),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "etl_rows_total",
			Help: "Rows seen per kind (raw, cleaned, missing_customer, cancelled, inserted_<table>).",
		}, []string{"kind"}),
		stepDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "etl_step_duration_seconds",
			Help: "Wall time of each load step in the last run.",
		}, []string{"step"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "etl_last_success_timestamp_seconds",
			Help: "Unix time of the last successful load.",
		}),
	}

	for _, c := range []prometheus.Collector{r.rows, r.stepDuration, r.lastSuccess} {
		if err := r.reg.Register(c); err != nil {
			return nil, fmt.Errorf("metrics: register: %w", err)
		}
	}
	return r, nil
}

// AddRows adds n to the row counter of kind.
func (r *Recorder) AddRows(kind string, n int64) {
	if n <= 0 {
		return
	}
	r.rows.WithLabelValues(kind).Add(float64(n))
}

// ObserveStep records how long step took.
func (r *Recorder) ObserveStep(step string, d time.Duration) {
	r.stepDuration.WithLabelValues(step).Set(d.Seconds())
}

// MarkSuccess stamps the completion time of a successful run.
func (r *Recorder) MarkSuccess(t time.Time) {
	r.lastSuccess.Set(float64(t.Unix()))
}

// Push sends the collected metrics to the Pushgateway. It is a no-op when
// no gateway is configured.
func (r *Recorder) Push(ctx context.Context) error {
	if r.gatewayURL == "" {
		return nil
	}
	if err := push.New(r.gatewayURL, r.jobName).Gatherer(r.reg).PushContext(ctx); err != nil {
		return fmt.Errorf("metrics: push: %w", err)
	}
	return nil
}
