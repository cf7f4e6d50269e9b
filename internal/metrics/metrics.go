// Package metrics exports poll-loop counters for Prometheus.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"espresso_rig/internal/models"
	"espresso_rig/internal/telemetry"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "espresso"

// Collector implements service.CycleObserver on its own registry.
type Collector struct {
	reg *prometheus.Registry

	cycles        prometheus.Counter
	deviceErrors  prometheus.Counter
	cloudErrors   prometheus.Counter
	cycleDuration prometheus.Histogram
	lastPublish   prometheus.Gauge
	shotWeight    prometheus.Gauge
	brewing       prometheus.Gauge
	source        *prometheus.GaugeVec
}

// New registers the collectors; source is the active telemetry source name.
func New(source string) *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		reg: reg,
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "poll_cycles_total",
			Help: "Poll cycles published.",
		}),
		deviceErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "device_errors_total",
			Help: "Cycles whose controller read carried an error.",
		}),
		cloudErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "cloud_errors_total",
			Help: "Cycles whose telemetry carried a cloud polling error.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "poll_cycle_seconds",
			Help:    "Duration of one poll cycle.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		}),
		lastPublish: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_publish_timestamp_seconds",
			Help: "Unix time of the last published state.",
		}),
		shotWeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "shot_weight_grams",
			Help: "Weight in the last published state.",
		}),
		brewing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "brewing",
			Help: "1 while the published brew state is BREWING.",
		}),
		source: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "telemetry_source",
			Help: "Active telemetry source (value is always 1).",
		}, []string{"source"}),
	}

	reg.MustRegister(
		c.cycles, c.deviceErrors, c.cloudErrors, c.cycleDuration,
		c.lastPublish, c.shotWeight, c.brewing, c.source,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.source.WithLabelValues(source).Set(1)
	return c
}

// ObserveCycle records one published state.
func (c *Collector) ObserveCycle(took time.Duration, st models.CombinedState) {
	c.cycles.Inc()
	c.cycleDuration.Observe(took.Seconds())
	c.lastPublish.Set(float64(st.Timestamp.UnixMilli()) / 1000)
	c.shotWeight.Set(st.Shot.WeightG)

	if st.Device.LastError != "" {
		c.deviceErrors.Inc()
	}
	if strings.HasPrefix(st.Shot.Notes, telemetry.CloudErrorPrefix) {
		c.cloudErrors.Inc()
	}
	if st.Shot.BrewState == models.BrewStateBrewing {
		c.brewing.Set(1)
	} else {
		c.brewing.Set(0)
	}
}

// Registry exposes the registry for tests and extra collectors.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{Registry: c.reg})
}
