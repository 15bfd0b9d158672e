package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	rowsDeletedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "geolife",
		Subsystem: "pipeline",
		Name:      "rows_deleted_total",
		Help:      "Number of duplicate trackpoint rows dropped during cleaning.",
	})

	rowsRepairedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "geolife",
		Subsystem: "pipeline",
		Name:      "rows_repaired_total",
		Help:      "Number of trackpoint rows whose altitude was replaced with the sentinel.",
	})

	filesRemovedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "geolife",
		Subsystem: "pipeline",
		Name:      "files_removed_total",
		Help:      "Number of trajectory files removed for exceeding the trackpoint ceiling.",
	})

	usersIngestedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "geolife",
		Subsystem: "pipeline",
		Name:      "users_ingested_total",
		Help:      "Number of users processed during ingest.",
	})

	activitiesIngestedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "geolife",
		Subsystem: "pipeline",
		Name:      "activities_ingested_total",
		Help:      "Number of activities handed to the sink.",
	})

	trackpointsIngestedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "geolife",
		Subsystem: "pipeline",
		Name:      "trackpoints_ingested_total",
		Help:      "Number of trackpoints actually inserted by the sink.",
	})

	fileErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "geolife",
		Subsystem: "pipeline",
		Name:      "file_errors_total",
		Help:      "Number of per-file failures skipped during ingest, by stage.",
	}, []string{"stage"})
)

func init() {
	prometheus.MustRegister(
		rowsDeletedCounter,
		rowsRepairedCounter,
		filesRemovedCounter,
		usersIngestedCounter,
		activitiesIngestedCounter,
		trackpointsIngestedCounter,
		fileErrorCounter,
	)
}

func recordCleanSummary(deleted, updated, removed int) {
	rowsDeletedCounter.Add(float64(deleted))
	rowsRepairedCounter.Add(float64(updated))
	filesRemovedCounter.Add(float64(removed))
}

func recordFileError(stage string) {
	fileErrorCounter.WithLabelValues(stage).Inc()
}
