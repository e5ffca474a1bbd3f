package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/cjeanneret/DualCap/internal/hw/camera"
	"github.com/cjeanneret/DualCap/internal/logic/capture"
)

var _ capture.Recorder = (*Metrics)(nil)

func TestMetrics_CountsOutcomes(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveShot(camera.Front, nil, 20*time.Millisecond)
	m.ObserveShot(camera.Back, errors.New("x"), time.Millisecond)
	m.ObserveFlash()
	m.ObserveUpload(nil)
	m.ObserveUpload(errors.New("down"))
	m.ObserveUpload(errors.New("down"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Shots.WithLabelValues("front", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Shots.WithLabelValues("back", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Flashes))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Uploads.WithLabelValues("error")))
}

func TestFeed_CountsOutcomes(t *testing.T) {
	m := NewFeed(prometheus.NewRegistry())

	m.ObserveMoment(nil)
	m.ObserveMoment(errors.New("invalid"))
	m.ObserveLogin(true)
	m.ObserveLogin(false)
	m.ObserveLogin(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Moments.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Moments.WithLabelValues("error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Logins.WithLabelValues("denied")))
}
