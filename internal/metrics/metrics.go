package metrics

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	RecordsRead    *prometheus.CounterVec // job label
	RecordsSkipped *prometheus.CounterVec // job label

	VehiclesProcessed prometheus.Counter
	VehicleFailures   prometheus.Counter
	TripsBuilt        prometheus.Counter
	ValidTrips        prometheus.Counter
	Revenue           prometheus.Gauge

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge

	JobRuns *prometheus.CounterVec // job, result labels

	VehicleDuration prometheus.Histogram
	PublishDuration prometheus.Histogram

	Workers prometheus.Gauge
}

func NewCollector(workers int) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		RecordsRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taxi_records_read_total",
			Help: "Non-blank input records read.",
		}, []string{"job"}),
		RecordsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taxi_records_skipped_total",
			Help: "Input records dropped because they failed to parse.",
		}, []string{"job"}),
		VehiclesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taxi_vehicles_processed_total",
			Help: "Vehicles whose segments were reconstructed into trips.",
		}),
		VehicleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taxi_vehicle_failures_total",
			Help: "Vehicles whose reconstruction failed.",
		}),
		TripsBuilt: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taxi_trips_reconstructed_total",
			Help: "Trips written by the reconstruction job.",
		}),
		ValidTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taxi_valid_trips_total",
			Help: "Trips that passed the revenue filter.",
		}),
		Revenue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "taxi_revenue_total",
			Help: "Total fare of the last revenue run.",
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taxi_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taxi_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "taxi_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		JobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taxi_job_runs_total",
			Help: "Job executions by outcome.",
		}, []string{"job", "result"}),
		VehicleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "taxi_vehicle_duration_seconds",
			Help:    "Duration of one vehicle's trip reconstruction.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "taxi_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		Workers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "taxi_workers",
			Help: "Configured number of concurrent processing units.",
		}),
	}

	// Register
	reg.MustRegister(
		c.RecordsRead, c.RecordsSkipped,
		c.VehiclesProcessed, c.VehicleFailures, c.TripsBuilt, c.ValidTrips, c.Revenue,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected,
		c.JobRuns, c.VehicleDuration, c.PublishDuration, c.Workers,
	)

	c.Workers.Set(float64(workers))

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	log.Printf("metrics listening on %s", addr)
	return srv
}

// Stream returns the hooks the grouped-stream facility reports to, with
// record counts labelled by job.
func (c *Collector) Stream(job string) *StreamMetrics {
	return &StreamMetrics{c: c, job: job}
}

type StreamMetrics struct {
	c   *Collector
	job string
}

func (s *StreamMetrics) RecordsRead(n int) { s.c.RecordsRead.WithLabelValues(s.job).Add(float64(n)) }
func (s *StreamMetrics) RecordsSkipped(n int) {
	s.c.RecordsSkipped.WithLabelValues(s.job).Add(float64(n))
}
func (s *StreamMetrics) KeyProcessed(d time.Duration) {
	s.c.VehiclesProcessed.Inc()
	s.c.VehicleDuration.Observe(d.Seconds())
}
func (s *StreamMetrics) KeyFailed() { s.c.VehicleFailures.Inc() }

// Publisher hooks, matching publisher.PublisherMetrics.
func (c *Collector) NATSPublishedInc()              { c.NATSPublished.Inc() }
func (c *Collector) NATSPublishErrInc()             { c.NATSPublishErrs.Inc() }
func (c *Collector) PublishObserve(d time.Duration) { c.PublishDuration.Observe(d.Seconds()) }
func (c *Collector) NATSSetConnected(b bool) {
	if b {
		c.NATSConnected.Set(1)
	} else {
		c.NATSConnected.Set(0)
	}
}
