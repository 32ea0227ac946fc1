package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/sheets-etl/internal/models"
	appErrors "github.com/noah-isme/sheets-etl/pkg/errors"
)

// DefaultBatchSize bounds the rows sent per write when none is configured.
const DefaultBatchSize = 500

// Writer persists records into the datastore. Each call writes all rows or none of them.
type Writer interface {
	Ping(ctx context.Context) error
	Upsert(ctx context.Context, spec models.TableSpec, rows []models.Record) (int, error)
	Insert(ctx context.Context, spec models.TableSpec, rows []models.Record) (int, error)
}

// LoadService writes transformed records using each table's strategy.
type LoadService struct {
	writer    Writer
	batchSize int
	logger    *zap.Logger
}

// NewLoadService constructs the service.
func NewLoadService(writer Writer, batchSize int, logger *zap.Logger) *LoadService {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoadService{writer: writer, batchSize: batchSize, logger: logger}
}

// Ping verifies the datastore accepts the configured credentials.
func (s *LoadService) Ping(ctx context.Context) error {
	if err := s.writer.Ping(ctx); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return err
		}
		return appErrors.WrapAs(err, appErrors.ErrSinkUnavailable, "")
	}
	return nil
}

// Load writes rows for spec and returns how many were written. Upsert tables are keyed on spec.Key with the
// last row per key winning. Filtered-insert tables append rows as given; callers pass only in-window rows.
// On failure the count covers the batches committed before the error.
func (s *LoadService) Load(ctx context.Context, spec models.TableSpec, rows []models.Record) (int, error) {
	if len(rows) == 0 {
		s.logger.Info("nothing to load", zap.String("table", string(spec.Name)))
		return 0, nil
	}

	write := s.writer.Insert
	if spec.Strategy == models.StrategyUpsert {
		write = s.writer.Upsert
		rows, _ = dedupeByKey(rows)
	}

	written := 0
	for start := 0; start < len(rows); start += s.batchSize {
		end := start + s.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := ctx.Err(); err != nil {
			return written, appErrors.WrapAs(err, appErrors.ErrLoadFailed, "load interrupted")
		}

		n, err := write(ctx, spec, rows[start:end])
		written += n
		if err != nil {
			s.logger.Error("batch write failed",
				zap.String("table", string(spec.Name)),
				zap.Int("batch_start", start),
				zap.Int("batch_size", end-start),
				zap.Int("written", written),
				zap.Error(err),
			)
			var appErr *appErrors.Error
			if errors.As(err, &appErr) {
				return written, err
			}
			return written, appErrors.WrapAs(err, appErrors.ErrLoadFailed, "")
		}
		s.logger.Debug("batch written", zap.String("table", string(spec.Name)), zap.Int("rows", n))
	}

	s.logger.Info("table loaded",
		zap.String("table", string(spec.Name)),
		zap.String("strategy", string(spec.Strategy)),
		zap.Int("rows", written),
	)
	return written, nil
}
