package models

import "time"

// TableStatus is the terminal state of one table in a run.
type TableStatus string

// Table terminal states.
const (
	TableSucceeded TableStatus = "succeeded"
	TableFailed    TableStatus = "failed"
)

// Rejection records a row dropped as malformed.
type Rejection struct {
	Table  TableName         `json:"table"`
	Row    int               `json:"row"`
	Reason string            `json:"reason"`
	Values map[string]string `json:"values,omitempty"`
}

// TableResult reports how one table finished.
type TableResult struct {
	Table      TableName     `json:"table"`
	Status     TableStatus   `json:"status"`
	Count      int           `json:"count"`
	Extracted  int           `json:"extracted"`
	Rejected   int           `json:"rejected"`
	Excluded   int           `json:"excluded"`
	Reason     string        `json:"reason,omitempty"`
	ErrorCode  string        `json:"error_code,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
	RejectFile string        `json:"reject_file,omitempty"`
}

// Failed reports whether the table did not reach succeeded.
func (r TableResult) Failed() bool {
	return r.Status != TableSucceeded
}

// RunSummary is the outcome of one pipeline invocation.
type RunSummary struct {
	RunID      string        `json:"run_id"`
	TargetDate Date          `json:"target_date"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Driver     string        `json:"driver"`
	Tables     []TableResult `json:"tables"`
	// Fatal is set when the run was aborted by a connection or credential error.
	Fatal string `json:"fatal,omitempty"`
	// PreviousRuns counts earlier ledger entries for the same target date.
	PreviousRuns int `json:"previous_runs,omitempty"`
}

// Succeeded is true when no table failed and the run was not aborted.
func (s *RunSummary) Succeeded() bool {
	if s.Fatal != "" {
		return false
	}
	for _, t := range s.Tables {
		if t.Failed() {
			return false
		}
	}
	return true
}

// Counts returns the number of succeeded and failed tables.
func (s *RunSummary) Counts() (succeeded, failed int) {
	for _, t := range s.Tables {
		if t.Failed() {
			failed++
		} else {
			succeeded++
		}
	}
	return succeeded, failed
}

// Table returns the result for name.
func (s *RunSummary) Table(name TableName) (TableResult, bool) {
	for _, t := range s.Tables {
		if t.Table == name {
			return t, true
		}
	}
	return TableResult{}, false
}
