package download

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts a completed download by which cascade strategy served
// it, per §4.8's ordered-strategy requirement being observable.
type Metrics struct {
	byStrategy *prometheus.CounterVec
	failures   prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		byStrategy: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dig_downloads_total",
			Help: "Completed store downloads by the cascade strategy that served them.",
		}, []string{"strategy"}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dig_downloads_failed_total",
			Help: "Downloads that exhausted every cascade strategy.",
		}),
	}
	if err := reg.Register(m.byStrategy); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			panic(err)
		}
		m.byStrategy = are.ExistingCollector.(*prometheus.CounterVec)
	}
	if err := reg.Register(m.failures); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			panic(err)
		}
		m.failures = are.ExistingCollector.(prometheus.Counter)
	}
	return m
}

func (m *Metrics) observe(strategy Strategy) {
	if m == nil {
		return
	}
	m.byStrategy.WithLabelValues(string(strategy)).Inc()
}

func (m *Metrics) observeFailure() {
	if m == nil {
		return
	}
	m.failures.Inc()
}
