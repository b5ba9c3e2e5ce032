package receipt

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zombor/receipt-processor/internal/parsing"
)

// Metrics counts what the upload pipeline does.
// Each instance owns its registry so servers and tests never share counters.
type Metrics struct {
	registry      *prometheus.Registry
	processed     *prometheus.CounterVec
	failures      *prometheus.CounterVec
	items         *prometheus.CounterVec
	countMismatch prometheus.Counter
}

// NewMetrics creates and registers the receipt processor metrics
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "receipt_processor",
			Name:      "receipts_processed_total",
			Help:      "Receipts parsed and stored, by detected merchant.",
		}, []string{"merchant"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "receipt_processor",
			Name:      "parse_failures_total",
			Help:      "Uploads that did not produce a stored receipt, by reason.",
		}, []string{"reason"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "receipt_processor",
			Name:      "items_segmented_total",
			Help:      "Line items emitted by the segmenter, by parse mode.",
		}, []string{"parse_mode"}),
		countMismatch: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "receipt_processor",
			Name:      "item_count_mismatch_total",
			Help:      "Receipts whose printed item count differs from the segmented quantity.",
		}),
	}
	m.registry.MustRegister(
		m.processed,
		m.failures,
		m.items,
		m.countMismatch,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) observeRecord(rec *parsing.Record) {
	if m == nil {
		return
	}
	m.processed.WithLabelValues(string(rec.Merchant)).Inc()
	for _, it := range rec.Items {
		m.items.WithLabelValues(string(it.ParseMode)).Inc()
	}
	if rec.Diagnostics.CountMismatch {
		m.countMismatch.Inc()
	}
}

func (m *Metrics) observeFailure(err error) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(failureReason(err)).Inc()
}

// failureReason maps pipeline errors onto a small label set
func failureReason(err error) string {
	var stage *stageError
	switch {
	case errors.Is(err, parsing.ErrNoText):
		return "no_text"
	case errors.As(err, &stage):
		return stage.stage
	default:
		return "other"
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
