// Package metrics exposes scan progress as Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mattjoyce/jarscout/internal/archive"
	"github.com/mattjoyce/jarscout/internal/pipeline"
	"github.com/mattjoyce/jarscout/internal/workqueue"
)

const namespace = "jarscout"

// Metrics holds the collectors fed by Observer.
type Metrics struct {
	ScansRequested  prometheus.Counter
	ScansFailed     prometheus.Counter
	ArchivesListed  prometheus.Counter
	ArchivesFailed  prometheus.Counter
	ClassesListed   prometheus.Counter
	StandaloneFound prometheus.Counter
	ItemFailures    *prometheus.CounterVec
	QueueDepth      prometheus.Gauge
	ArchiveClasses  prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ScansRequested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_requested_total",
			Help:      "Total number of scan roots handed to the walker",
		}),
		ScansFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_failed_total",
			Help:      "Total number of scan roots that could not be fully walked",
		}),
		ArchivesListed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archives_listed_total",
			Help:      "Total number of archives listed successfully",
		}),
		ArchivesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archives_failed_total",
			Help:      "Total number of archives that could not be listed",
		}),
		ClassesListed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classes_listed_total",
			Help:      "Total number of class entries found inside archives",
		}),
		StandaloneFound: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "standalone_classes_total",
			Help:      "Total number of class files found outside archives",
		}),
		ItemFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "item_failures_total",
			Help:      "Pipeline items whose handler failed, by item kind",
		}, []string{"kind"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "active_items",
			Help:      "Pipeline items accepted but not yet finished",
		}),
		ArchiveClasses: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "archive_classes",
			Help:      "Histogram of class entries per listed archive",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
	}
	reg.MustRegister(
		m.ScansRequested,
		m.ScansFailed,
		m.ArchivesListed,
		m.ArchivesFailed,
		m.ClassesListed,
		m.StandaloneFound,
		m.ItemFailures,
		m.QueueDepth,
		m.ArchiveClasses,
	)
	return m
}

// Observer returns a pipeline.Observer that updates m.
func (m *Metrics) Observer() pipeline.Observer { return observer{m: m} }

type observer struct {
	pipeline.NopObserver
	m *Metrics
}

func (o observer) OnFinished(workqueue.Item)        { o.m.QueueDepth.Dec() }
func (o observer) OnScanRequested(string)           { o.m.ScansRequested.Inc() }
func (o observer) OnScanFailed(string, error)       { o.m.ScansFailed.Inc() }
func (o observer) OnExtractionFailed(string, error) { o.m.ArchivesFailed.Inc() }
func (o observer) OnStandalone(string)              { o.m.StandaloneFound.Inc() }

// The stop sentinel never finishes, so it is not counted.
func (o observer) OnEnqueue(item workqueue.Item) {
	if item.Kind != workqueue.KindStop {
		o.m.QueueDepth.Inc()
	}
}

func (o observer) OnItemFailed(item workqueue.Item, _ error) {
	o.m.ItemFailures.WithLabelValues(string(item.Kind)).Inc()
}

func (o observer) OnExtracted(l archive.Listing) {
	o.m.ArchivesListed.Inc()
	o.m.ClassesListed.Add(float64(len(l.Entries)))
	o.m.ArchiveClasses.Observe(float64(len(l.Entries)))
}
