package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Feed holds the collectors of the reference feed server.
type Feed struct {
	Moments *prometheus.CounterVec
	Logins  *prometheus.CounterVec
}

// NewFeed creates the feed server collectors and registers them on reg.
func NewFeed(reg prometheus.Registerer) *Feed {
	f := promauto.With(reg)
	return &Feed{
		Moments: f.NewCounterVec(prometheus.CounterOpts{
			Name: "feed_moments_created_total",
			Help: "Moment creations by outcome",
		}, []string{"outcome"}),
		Logins: f.NewCounterVec(prometheus.CounterOpts{
			Name: "feed_logins_total",
			Help: "Login attempts by outcome",
		}, []string{"outcome"}),
	}
}

// ObserveMoment counts one creation attempt.
func (m *Feed) ObserveMoment(err error) {
	m.Moments.WithLabelValues(outcome(err)).Inc()
}

// ObserveLogin counts one login attempt.
func (m *Feed) ObserveLogin(ok bool) {
	if ok {
		m.Logins.WithLabelValues("ok").Inc()
		return
	}
	m.Logins.WithLabelValues("denied").Inc()
}
