package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/sheets-etl/internal/models"
	appErrors "github.com/noah-isme/sheets-etl/pkg/errors"
)

const ledgerKeyPrefix = "sheets-etl:runs:"

// RunLedgerRepository keeps the summaries of past runs in Redis, one list per target date.
type RunLedgerRepository struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRunLedgerRepository constructs a ledger. A nil client disables it: writes are dropped and reads miss.
func NewRunLedgerRepository(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RunLedgerRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunLedgerRepository{client: client, ttl: ttl, logger: logger}
}

func ledgerKey(date models.Date) string {
	return ledgerKeyPrefix + date.String()
}

// Enabled reports whether a Redis client is configured.
func (r *RunLedgerRepository) Enabled() bool {
	return r != nil && r.client != nil
}

// Append records summary under its target date.
func (r *RunLedgerRepository) Append(ctx context.Context, summary *models.RunSummary) error {
	if !r.Enabled() {
		return nil
	}

	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal run summary %s: %w", summary.RunID, err)
	}

	key := ledgerKey(summary.TargetDate)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, payload)
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis append %s: %w", key, err)
	}
	return nil
}

// History returns every recorded run for date, oldest first.
func (r *RunLedgerRepository) History(ctx context.Context, date models.Date) ([]models.RunSummary, error) {
	if !r.Enabled() {
		return nil, appErrors.ErrLedgerMiss
	}

	key := ledgerKey(date)
	raw, err := r.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, appErrors.ErrLedgerMiss
		}
		return nil, fmt.Errorf("redis lrange %s: %w", key, err)
	}
	if len(raw) == 0 {
		return nil, appErrors.ErrLedgerMiss
	}

	out := make([]models.RunSummary, 0, len(raw))
	for _, item := range raw {
		var s models.RunSummary
		if err := json.Unmarshal([]byte(item), &s); err != nil {
			r.logger.Warn("skipping unreadable ledger entry", zap.String("key", key), zap.Error(err))
			continue
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, appErrors.ErrLedgerMiss
	}
	return out, nil
}

// Count returns how many runs were recorded for date.
func (r *RunLedgerRepository) Count(ctx context.Context, date models.Date) (int, error) {
	if !r.Enabled() {
		return 0, nil
	}
	n, err := r.client.LLen(ctx, ledgerKey(date)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis llen %s: %w", ledgerKey(date), err)
	}
	return int(n), nil
}
