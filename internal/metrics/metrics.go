// Package metrics registers the broker's Prometheus counters:
//
//	#quotebroker_candle_cache_lookups_total{result}
//	#quotebroker_vendor_fetches_total{vendor,outcome}
//	#quotebroker_sanitizer_dropped_rows_total
//	#quotebroker_candle_repairs_total
//	#quotebroker_cagr_requests_total{result}
//	#quotebroker_log_events_total{component,level}
//	#go_* and process_* system metrics
//
// Counters are no-ops until Init is called.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once          sync.Once
	cacheLookups  *prometheus.CounterVec
	vendorFetches *prometheus.CounterVec
	droppedRows   prometheus.Counter
	repairs       prometheus.Counter
	cagrRequests  *prometheus.CounterVec
	logEvents     *prometheus.CounterVec
)

func Init() {
	once.Do(func() {
		cacheLookups = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quotebroker_candle_cache_lookups_total",
				Help: "Candle cache lookups by result (hit, miss, stale, forced)",
			},
			[]string{"result"},
		)
		vendorFetches = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quotebroker_vendor_fetches_total",
				Help: "Upstream vendor fetches by outcome (ok, empty, error)",
			},
			[]string{"vendor", "outcome"},
		)
		droppedRows = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quotebroker_sanitizer_dropped_rows_total",
			Help: "Vendor rows dropped for non-finite or unparsable fields",
		})
		repairs = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quotebroker_candle_repairs_total",
			Help: "Cache entries rewritten with second-resolution timestamps",
		})
		cagrRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quotebroker_cagr_requests_total",
				Help: "CAGR requests by result (cached, computed, insufficient)",
			},
			[]string{"result"},
		)
		logEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quotebroker_log_events_total",
				Help: "Warn and error log lines by component",
			},
			[]string{"component", "level"},
		)

		_ = prometheus.Register(cacheLookups)
		_ = prometheus.Register(vendorFetches)
		_ = prometheus.Register(droppedRows)
		_ = prometheus.Register(repairs)
		_ = prometheus.Register(cagrRequests)
		_ = prometheus.Register(logEvents)
		_ = prometheus.Register(collectors.NewGoCollector())
		_ = prometheus.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func CacheLookup(result string) {
	if cacheLookups != nil {
		cacheLookups.WithLabelValues(result).Inc()
	}
}

func VendorFetch(vendor, outcome string) {
	if vendorFetches != nil {
		vendorFetches.WithLabelValues(vendor, outcome).Inc()
	}
}

func DroppedRows(n int) {
	if droppedRows != nil && n > 0 {
		droppedRows.Add(float64(n))
	}
}

func CandleRepair() {
	if repairs != nil {
		repairs.Inc()
	}
}

func CAGRRequest(result string) {
	if cagrRequests != nil {
		cagrRequests.WithLabelValues(result).Inc()
	}
}

func LogEvent(component, level string) {
	if logEvents != nil {
		logEvents.WithLabelValues(component, level).Inc()
	}
}
