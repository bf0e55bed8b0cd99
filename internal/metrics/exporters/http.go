// Package exporters serves the metrics registered by package metrics.
package exporters

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// errorLog adapts a slog.Logger to promhttp's Println-style logger.
type errorLog struct{ logger *slog.Logger }

func (l errorLog) Println(v ...any) {
	l.logger.Warn("Metrics export failed", "error", fmt.Sprint(v...))
}

// HTTPHandler returns the /metrics handler for the default registry.
// Gathering errors are logged and the metrics that could be collected are
// still served.
func HTTPHandler(logger *slog.Logger) http.Handler {
	return HandlerFor(prometheus.DefaultGatherer, logger)
}

// HandlerFor serves metrics from gatherer, counting scrapes in the
// promhttp_metric_handler_* metrics of the default registerer.
func HandlerFor(gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	return promhttp.InstrumentMetricHandler(
		prometheus.DefaultRegisterer,
		promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
			ErrorLog:          errorLog{logger: logger},
			ErrorHandling:     promhttp.ContinueOnError,
			EnableOpenMetrics: true,
		}),
	)
}
