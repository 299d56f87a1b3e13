package cache

import "fmt"

// Every key lives under this prefix so livewatch can share a Redis.
const keyPrefix = "livewatch:"

// SnapshotKey caches the result payload of a job.
func SnapshotKey(jobID string) string {
	return fmt.Sprintf("%sresult:%s", keyPrefix, jobID)
}

// StatusReportKey caches the job status payload of a job.
func StatusReportKey(jobID string) string {
	return fmt.Sprintf("%sstatus:%s", keyPrefix, jobID)
}

// JobStatusKey holds the last status a watcher observed.
func JobStatusKey(jobID string) string {
	return fmt.Sprintf("%swatched:%s", keyPrefix, jobID)
}

func RateLimitKey(clientKey string) string {
	return fmt.Sprintf("%sratelimit:%s", keyPrefix, clientKey)
}
