package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ski_report"

// Metrics holds the Prometheus counters, histograms, and gauges for the report service.
type Metrics struct {
	// Controller metrics.
	ActionsProcessed *prometheus.CounterVec // labels: action={add,remove,load_all,remove_old}
	ActionFailures   *prometheus.CounterVec // labels: action={add,remove,load_all,remove_old}
	ControllerBusy   prometheus.Gauge
	CachedReports    prometheus.Gauge
	ListenerPanics   prometheus.Counter

	// Report server metrics.
	ReportFetches       *prometheus.CounterVec // labels: outcome={success,error}
	ReportFetchDuration prometheus.Histogram
	ServerSelections    *prometheus.CounterVec // labels: outcome={selected,default}
	LocationCache       *prometheus.CounterVec // labels: result={hit,miss}

	// Alert metrics.
	AlertsUpserted      prometheus.Counter
	AlertsRemoved       prometheus.Counter
	NotificationsRaised prometheus.Counter
	WakeupsRaised       prometheus.Counter
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		ActionsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_processed_total",
			Help:      "Controller actions executed by the worker, by kind.",
		}, []string{"action"}),
		ActionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "action_failures_total",
			Help:      "Controller actions that returned an error or panicked, by kind.",
		}, []string{"action"}),
		ControllerBusy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "controller_busy",
			Help:      "1 while the worker executes an action, 0 when idle.",
		}),
		CachedReports: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cached_reports",
			Help:      "Number of reports in the shared cache.",
		}),
		ListenerPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listener_panics_total",
			Help:      "Listener callbacks that panicked and were recovered.",
		}),
		ReportFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_fetches_total",
			Help:      "Resort report fetches by outcome.",
		}, []string{"outcome"}),
		ReportFetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "report_fetch_duration_seconds",
			Help:      "Duration of a single resort report fetch.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}),
		ServerSelections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "server_selections_total",
			Help:      "Report server selections, by whether a versioned server won or the default was used.",
		}, []string{"outcome"}),
		LocationCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "location_cache_total",
			Help:      "Location finder cache lookups by result.",
		}, []string{"result"}),
		AlertsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_upserted_total",
			Help:      "Forecasts that met the alert threshold and were stored.",
		}),
		AlertsRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_removed_total",
			Help:      "Alerts deleted by aging or resort removal.",
		}),
		NotificationsRaised: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_raised_total",
			Help:      "Consolidated alert notifications raised.",
		}),
		WakeupsRaised: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wakeups_raised_total",
			Help:      "Wake-up events raised for resorts meeting the wake-up threshold.",
		}),
	}

	prometheus.MustRegister(
		m.ActionsProcessed,
		m.ActionFailures,
		m.ControllerBusy,
		m.CachedReports,
		m.ListenerPanics,
		m.ReportFetches,
		m.ReportFetchDuration,
		m.ServerSelections,
		m.LocationCache,
		m.AlertsUpserted,
		m.AlertsRemoved,
		m.NotificationsRaised,
		m.WakeupsRaised,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		ActionsProcessed:    prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "actions_processed_total"}, []string{"action"}),
		ActionFailures:      prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "action_failures_total"}, []string{"action"}),
		ControllerBusy:      prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "controller_busy"}),
		CachedReports:       prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "cached_reports"}),
		ListenerPanics:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "listener_panics_total"}),
		ReportFetches:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "report_fetches_total"}, []string{"outcome"}),
		ReportFetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "report_fetch_duration_seconds"}),
		ServerSelections:    prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "server_selections_total"}, []string{"outcome"}),
		LocationCache:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "location_cache_total"}, []string{"result"}),
		AlertsUpserted:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "alerts_upserted_total"}),
		AlertsRemoved:       prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "alerts_removed_total"}),
		NotificationsRaised: prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "notifications_raised_total"}),
		WakeupsRaised:       prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "wakeups_raised_total"}),
	}
}
