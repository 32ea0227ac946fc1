package service

import (
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sheets-etl/internal/models"
	"github.com/noah-isme/sheets-etl/pkg/export"
)

type rejectStore interface {
	Save(filename string, data []byte) (string, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// RejectService backs up rows dropped during transformation as CSV files, one per table and run.
type RejectService struct {
	store     rejectStore
	exporter  *export.CSVExporter
	retention time.Duration
	logger    *zap.Logger
}

// NewRejectService constructs the service. A nil store disables backups.
func NewRejectService(store rejectStore, retention time.Duration, logger *zap.Logger) *RejectService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RejectService{store: store, exporter: export.NewCSVExporter(), retention: retention, logger: logger}
}

// Enabled reports whether backups are written.
func (s *RejectService) Enabled() bool {
	return s != nil && s.store != nil
}

// Save writes rejections to <target_date>/<run_id>_<table>.csv and returns the file path.
func (s *RejectService) Save(runID string, target models.Date, table models.TableName, rejections []models.Rejection) (string, error) {
	if !s.Enabled() || len(rejections) == 0 {
		return "", nil
	}

	rows := make([]map[string]string, 0, len(rejections))
	for _, r := range rejections {
		row := make(map[string]string, len(r.Values)+2)
		for k, v := range r.Values {
			row[k] = v
		}
		row["row"] = strconv.Itoa(r.Row)
		row["reason"] = r.Reason
		rows = append(rows, row)
	}

	data, err := s.exporter.Render(export.Dataset{Rows: rows}.WithFixedHeaders("row", "reason"))
	if err != nil {
		return "", fmt.Errorf("render %s rejections: %w", table, err)
	}

	name := fmt.Sprintf("%s/%s_%s.csv", target.String(), runID, table)
	path, err := s.store.Save(name, data)
	if err != nil {
		return "", fmt.Errorf("save %s rejections: %w", table, err)
	}
	s.logger.Info("rejections saved", zap.String("table", string(table)), zap.Int("rows", len(rejections)), zap.String("path", path))
	return path, nil
}

// Cleanup drops backups older than the retention window.
func (s *RejectService) Cleanup() {
	if !s.Enabled() || s.retention <= 0 {
		return
	}
	deleted, err := s.store.CleanupOlderThan(s.retention)
	if err != nil {
		s.logger.Warn("reject cleanup failed", zap.Error(err))
		return
	}
	if len(deleted) > 0 {
		s.logger.Info("old rejections removed", zap.Int("files", len(deleted)))
	}
}
