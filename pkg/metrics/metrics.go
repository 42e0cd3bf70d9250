// Package metrics wraps github.com/prometheus/client_golang with the small
// call-site-friendly surface the workers use: one registry per process,
// label-qualified counters/gauges/histograms created lazily by name.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry owns a prometheus.Registerer and memoizes metrics by name+labels
// so repeated calls with the same label values return the same vec member.
type Registry struct {
	reg        *prometheus.Registry
	factory    promauto.Factory
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// New creates a Registry with the standard process/go collectors registered.
func New() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(collectors.NewGoCollector())
	return &Registry{
		reg:        reg,
		factory:    promauto.With(reg),
		counters:   map[string]*prometheus.CounterVec{},
		gauges:     map[string]*prometheus.GaugeVec{},
		histograms: map[string]*prometheus.HistogramVec{},
	}
}

// LabelSet pairs a metric name with label names/values, so call sites can
// read naturally: met.Counter(metrics.WithLabels("jobs_total", "kind", kind), "help").
type LabelSet struct {
	Name   string
	Labels []string
	Values []string
}

// WithLabels builds a LabelSet from alternating key/value pairs.
func WithLabels(name string, kv ...string) LabelSet {
	ls := LabelSet{Name: name}
	for i := 0; i+1 < len(kv); i += 2 {
		ls.Labels = append(ls.Labels, kv[i])
		ls.Values = append(ls.Values, kv[i+1])
	}
	return ls
}

func plain(name string) LabelSet { return LabelSet{Name: name} }

// Counter returns the counter named by spec (a bare name or a WithLabels
// result), creating the underlying vec on first use.
func (r *Registry) Counter(spec any, help string) prometheus.Counter {
	ls := toLabelSet(spec)
	vec, ok := r.counters[ls.Name]
	if !ok {
		vec = r.factory.NewCounterVec(prometheus.CounterOpts{Name: ls.Name, Help: help}, ls.Labels)
		r.counters[ls.Name] = vec
	}
	return vec.WithLabelValues(ls.Values...)
}

// Gauge returns the gauge named by spec, creating the underlying vec on
// first use.
func (r *Registry) Gauge(spec any, help string) prometheus.Gauge {
	ls := toLabelSet(spec)
	vec, ok := r.gauges[ls.Name]
	if !ok {
		vec = r.factory.NewGaugeVec(prometheus.GaugeOpts{Name: ls.Name, Help: help}, ls.Labels)
		r.gauges[ls.Name] = vec
	}
	return vec.WithLabelValues(ls.Values...)
}

// Histogram returns the histogram named by spec. A nil buckets slice uses
// prometheus.DefBuckets.
func (r *Registry) Histogram(spec any, help string, buckets []float64) prometheus.Observer {
	ls := toLabelSet(spec)
	vec, ok := r.histograms[ls.Name]
	if !ok {
		if buckets == nil {
			buckets = prometheus.DefBuckets
		}
		vec = r.factory.NewHistogramVec(prometheus.HistogramOpts{Name: ls.Name, Help: help, Buckets: buckets}, ls.Labels)
		r.histograms[ls.Name] = vec
	}
	return vec.WithLabelValues(ls.Values...)
}

func toLabelSet(spec any) LabelSet {
	switch v := spec.(type) {
	case string:
		return plain(v)
	case LabelSet:
		return v
	default:
		panic(fmt.Sprintf("metrics: unsupported spec type %T", spec))
	}
}

// Handler returns the /metrics exposition handler for this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// ServeAsync starts an HTTP server exposing /metrics on the given port in a
// background goroutine. Errors are non-fatal; the caller's process keeps
// running without metrics scraping rather than crash on a busy port.
func (r *Registry) ServeAsync(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		_ = srv.ListenAndServe()
	}()
}

// Since observes the duration elapsed since t on a histogram observer.
func Since(o prometheus.Observer, t time.Time) {
	o.Observe(time.Since(t).Seconds())
}

// Shutdown is a no-op placeholder kept for symmetry with servers that need
// graceful shutdown; Registry itself holds no long-lived connections beyond
// the optional ServeAsync HTTP listener.
func (r *Registry) Shutdown(_ context.Context) error { return nil }
