package dataset

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	datasetsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subsets_datasets_written_total",
		Help: "Number of dataset writes that reached storage",
	}, []string{"dataset", "mode"})

	datasetsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subsets_datasets_skipped_total",
		Help: "Number of sync calls skipped because the digest was unchanged",
	}, []string{"dataset"})

	rowsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subsets_rows_written_total",
		Help: "Rows written to datasets",
	}, []string{"dataset"})

	bytesWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subsets_bytes_written_total",
		Help: "Serialized bytes written to datasets",
	}, []string{"dataset"})
)

// recordWrite feeds the prometheus counters from a write event.
func recordWrite(ev WriteEvent) {
	datasetsWritten.WithLabelValues(ev.Dataset, string(ev.Mode)).Inc()
	rowsWritten.WithLabelValues(ev.Dataset).Add(float64(ev.Rows))
	bytesWritten.WithLabelValues(ev.Dataset).Add(float64(ev.Bytes))
}
