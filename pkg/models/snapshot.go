package models

// JobStatus is the aggregate state of a job as reported by the status endpoint.
// Values outside the named constants are passed through unchanged.
type JobStatus string

const (
	JobStatusPending  JobStatus = "Pending"
	JobStatusRunning  JobStatus = "Running"
	JobStatusComplete JobStatus = "Complete"
	JobStatusFailed   JobStatus = "Failed"
)

// Active reports whether a page watching this job should show live results.
func (s JobStatus) Active() bool {
	return s == JobStatusRunning || s == JobStatusComplete
}

// TaskStatus is the state of one sub-task. Free-form values are allowed.
type TaskStatus string

const (
	TaskStatusRunning  TaskStatus = "Running"
	TaskStatusComplete TaskStatus = "Complete"
	TaskStatusFailed   TaskStatus = "Failed"
)

// JobSnapshot is one status payload for a job. It is rebuilt on every poll
// tick and discarded after reconciliation.
type JobSnapshot struct {
	Status   JobStatus         `json:"status"`
	Results  []TaskResult      `json:"results"`
	Messages map[string]string `json:"messages,omitempty"`
}

// TaskResult is the status of one contaminant candidate, keyed by UniprotID.
// QFactor and SpaceGroup are only meaningful when Percent > 0.
type TaskResult struct {
	UniprotID      string     `json:"uniprot_id"`
	Status         TaskStatus `json:"status"`
	Percent        float64    `json:"percent"`
	QFactor        float64    `json:"q_factor"`
	SpaceGroup     string     `json:"space_group"`
	FilesAvailable bool       `json:"files_available"`
	PackNumber     string     `json:"pack_number"`
}

// JobStatusReport is the payload of the lighter job status endpoint.
type JobStatusReport struct {
	Status JobStatus `json:"status"`
}

// PageConfig is the page-supplied configuration the reconciler works with.
type PageConfig struct {
	APIURL           string  `json:"api_url"`
	JobID            string  `json:"job_id"`
	PercentThreshold float64 `json:"percent_threshold"`
	UglymolURL       string  `json:"uglymol_url"`
}
