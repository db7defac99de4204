// Package metrics provides Prometheus metrics for fracture runs
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Faultbox/fracture/pkg/fracture"
)

var (
	// Run metrics
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fracture_runs_total",
			Help: "Total number of fracture runs",
		},
		[]string{"mode", "status"},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fracture_run_duration_seconds",
			Help:    "Wall time of fracture runs",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"mode"},
	)

	// Output metrics
	PartsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fracture_parts_created_total",
			Help: "Total number of parts added to hierarchies",
		},
		[]string{"mode"},
	)

	CutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fracture_cuts_total",
			Help: "Total number of boolean splits performed",
		},
		[]string{"mode"},
	)

	// BSP metrics
	BSPPolygons = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fracture_bsp_polygons",
			Help:    "Polygon count of BSP trees produced by cuts",
			Buckets: prometheus.ExponentialBuckets(16, 4, 8),
		},
	)
)

// Status labels for RunsTotal.
const (
	StatusOK        = "ok"
	StatusCancelled = "cancelled"
	StatusError     = "error"
)

// Recorder records fracture run metrics. It satisfies fracture.Recorder.
type Recorder struct {
	// Cancelled classifies run errors as cancellations.
	Cancelled func(error) bool
}

var _ fracture.Recorder = (*Recorder)(nil)

// NewRecorder creates a recorder. A nil cancelled matches
// fracture.ErrCancelled and context errors.
func NewRecorder(cancelled func(error) bool) *Recorder {
	if cancelled == nil {
		cancelled = func(err error) bool {
			return errors.Is(err, fracture.ErrCancelled) ||
				errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		}
	}
	return &Recorder{Cancelled: cancelled}
}

// ObserveRun records the outcome and duration of one run.
func (r *Recorder) ObserveRun(mode string, err error, d time.Duration) {
	status := StatusOK
	switch {
	case err == nil:
	case r.Cancelled != nil && r.Cancelled(err):
		status = StatusCancelled
	default:
		status = StatusError
	}
	RunsTotal.WithLabelValues(mode, status).Inc()
	RunDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// AddParts counts parts added by a run.
func (r *Recorder) AddParts(mode string, n int) {
	PartsCreated.WithLabelValues(mode).Add(float64(n))
}

// AddCuts counts boolean splits.
func (r *Recorder) AddCuts(mode string, n int) {
	CutsTotal.WithLabelValues(mode).Add(float64(n))
}

// ObservePolygons records the polygon count of a cut result.
func (r *Recorder) ObservePolygons(n int) {
	BSPPolygons.Observe(float64(n))
}

// WriteTextfile writes the default registry in the Prometheus text format,
// for node exporter's textfile collector.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, log *zap.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()
	log.Info("serving metrics", zap.String("addr", ln.Addr().String()))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
