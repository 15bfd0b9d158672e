package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	trackpointWatermarkGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "geolife",
		Subsystem: "ingest",
		Name:      "last_trackpoint_recorded_timestamp_seconds",
		Help:      "Recording timestamp of the most recent trackpoint handed to the sink.",
	})
	ingestCompletedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "geolife",
		Subsystem: "ingest",
		Name:      "last_ingest_completed_timestamp_seconds",
		Help:      "Unix timestamp of the most recent completed ingest pass.",
	})
)

func init() {
	prometheus.MustRegister(trackpointWatermarkGauge, ingestCompletedGauge)
}

// RecordTrackPointWatermark advances the trackpoint watermark gauge.
func RecordTrackPointWatermark(ts time.Time) {
	if ts.IsZero() {
		return
	}
	trackpointWatermarkGauge.Set(float64(ts.Unix()))
}

// RecordIngestCompleted marks the end of an ingest pass.
func RecordIngestCompleted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	ingestCompletedGauge.Set(float64(ts.Unix()))
}
