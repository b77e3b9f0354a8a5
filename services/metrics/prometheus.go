package metricsvc

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trezcool/labportal/core/bom"
)

// Prometheus exposes the workflow counters on its own registry.
type Prometheus struct {
	registry    *prometheus.Registry
	transitions *prometheus.CounterVec
}

var _ bom.Metrics = (*Prometheus)(nil)

func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "labportal",
		Name:      "bom_transitions_total",
		Help:      "BOM request workflow operations, by actor and action.",
	}, []string{"actor", "action"})
	reg.MustRegister(transitions)

	return &Prometheus{registry: reg, transitions: transitions}
}

func (p *Prometheus) Transition(actor, action string) {
	p.transitions.WithLabelValues(actor, action).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}
