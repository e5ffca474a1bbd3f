package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/cjeanneret/DualCap/internal/hw/camera"
)

// Metrics holds the Prometheus collectors of the capture station.
type Metrics struct {
	Shots        *prometheus.CounterVec
	ShotDuration *prometheus.HistogramVec
	Flashes      prometheus.Counter
	Uploads      *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Shots: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dualcap_shots_total",
			Help: "Shutter actions by facing and outcome",
		}, []string{"facing", "outcome"}),
		ShotDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dualcap_shot_duration_seconds",
			Help:    "Time from shutter trigger to usable photo",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 8),
		}, []string{"facing"}),
		Flashes: f.NewCounter(prometheus.CounterOpts{
			Name: "dualcap_flash_cycles_total",
			Help: "Brightness flash cycles",
		}),
		Uploads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dualcap_uploads_total",
			Help: "Pair submissions by outcome",
		}, []string{"outcome"}),
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveShot implements capture.Recorder.
func (m *Metrics) ObserveShot(facing camera.Facing, err error, d time.Duration) {
	m.Shots.WithLabelValues(facing.String(), outcome(err)).Inc()
	if err == nil {
		m.ShotDuration.WithLabelValues(facing.String()).Observe(d.Seconds())
	}
}

// ObserveFlash implements capture.Recorder.
func (m *Metrics) ObserveFlash() {
	m.Flashes.Inc()
}

// ObserveUpload implements capture.Recorder.
func (m *Metrics) ObserveUpload(err error) {
	m.Uploads.WithLabelValues(outcome(err)).Inc()
}
