package backup

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// backupLastSuccessTimestamp tracks the Unix timestamp of the last successful backup.
	backupLastSuccessTimestamp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "spaces",
			Subsystem: "backup",
			Name:      "last_success_timestamp",
			Help:      "Unix timestamp of the last successful backup",
		},
		[]string{"source_bucket"},
	)

	// backupLastDurationSeconds tracks the duration of the last backup in seconds.
	backupLastDurationSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "spaces",
			Subsystem: "backup",
			Name:      "last_duration_seconds",
			Help:      "Duration of the last backup in seconds",
		},
		[]string{"source_bucket"},
	)

	// backupLastSizeBytes tracks the size of the last archive in bytes.
	backupLastSizeBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "spaces",
			Subsystem: "backup",
			Name:      "last_size_bytes",
			Help:      "Size of the last backup archive in bytes",
		},
		[]string{"source_bucket"},
	)

	// backupLastFileCount tracks the number of objects in the last archive.
	backupLastFileCount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "spaces",
			Subsystem: "backup",
			Name:      "last_file_count",
			Help:      "Number of objects included in the last backup archive",
		},
		[]string{"source_bucket"},
	)

	// backupSuccessTotal tracks the total number of successful backups.
	backupSuccessTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spaces",
			Subsystem: "backup",
			Name:      "success_total",
			Help:      "Total number of successful backups",
		},
		[]string{"source_bucket"},
	)

	// backupFailureTotal tracks the total number of backup failures by stage.
	backupFailureTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spaces",
			Subsystem: "backup",
			Name:      "failure_total",
			Help:      "Total number of backup failures",
		},
		[]string{"source_bucket", "kind"},
	)
)

func init() {
	prometheus.MustRegister(
		backupLastSuccessTimestamp,
		backupLastDurationSeconds,
		backupLastSizeBytes,
		backupLastFileCount,
		backupSuccessTotal,
		backupFailureTotal,
	)
}

// recordSuccess updates metrics after a completed backup.
func recordSuccess(sourceBucket string, result *Result) {
	backupLastSuccessTimestamp.WithLabelValues(sourceBucket).Set(float64(time.Now().Unix()))
	backupLastDurationSeconds.WithLabelValues(sourceBucket).Set(result.Duration.Seconds())
	backupLastSizeBytes.WithLabelValues(sourceBucket).Set(float64(result.ArchiveBytes))
	backupLastFileCount.WithLabelValues(sourceBucket).Set(float64(result.FilesBackedUp))
	backupSuccessTotal.WithLabelValues(sourceBucket).Inc()
}

// recordFailure updates metrics after a failed backup.
func recordFailure(sourceBucket, kind string) {
	backupFailureTotal.WithLabelValues(sourceBucket, kind).Inc()
}
