package dto

import "github.com/noah-isme/sheets-etl/internal/models"

// TriggerRunRequest is the optional body of POST /api/v1/runs. Without a target date the run processes
// yesterday in UTC-5.
type TriggerRunRequest struct {
	TargetDate string `json:"target_date" binding:"omitempty,datetime=2006-01-02"`
}

// RunResponse reports a finished run.
type RunResponse struct {
	Success         bool `json:"success"`
	TablesSucceeded int  `json:"tables_succeeded"`
	TablesFailed    int  `json:"tables_failed"`
	*models.RunSummary
}

// NewRunResponse builds the response for summary.
func NewRunResponse(summary *models.RunSummary) *RunResponse {
	succeeded, failed := summary.Counts()
	return &RunResponse{
		Success:         summary.Succeeded(),
		TablesSucceeded: succeeded,
		TablesFailed:    failed,
		RunSummary:      summary,
	}
}

// RunHistoryResponse lists the recorded runs of one target date, oldest first.
type RunHistoryResponse struct {
	TargetDate string              `json:"target_date"`
	Runs       []models.RunSummary `json:"runs"`
}
