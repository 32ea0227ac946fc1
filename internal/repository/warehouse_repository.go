package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sheets-etl/internal/models"
	appErrors "github.com/noah-isme/sheets-etl/pkg/errors"
)

// WarehouseRepository writes records straight into Postgres.
type WarehouseRepository struct {
	db *sqlx.DB
}

// NewWarehouseRepository constructs the repository.
func NewWarehouseRepository(db *sqlx.DB) *WarehouseRepository {
	return &WarehouseRepository{db: db}
}

// Ping verifies the database answers.
func (r *WarehouseRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return classifyPreflightError(err)
	}
	return nil
}

// Upsert inserts rows, overwriting every non-key column when the key already exists.
func (r *WarehouseRepository) Upsert(ctx context.Context, spec models.TableSpec, rows []models.Record) (int, error) {
	return r.exec(ctx, upsertQuery(spec), spec, rows)
}

// Insert appends rows without any uniqueness check.
func (r *WarehouseRepository) Insert(ctx context.Context, spec models.TableSpec, rows []models.Record) (int, error) {
	return r.exec(ctx, insertQuery(spec), spec, rows)
}

// exec writes rows in one transaction so a batch is either fully written or not at all.
func (r *WarehouseRepository) exec(ctx context.Context, query string, spec models.TableSpec, rows []models.Record) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, classifyPostgresError(fmt.Errorf("begin %s batch: %w", spec.Name, err), appErrors.ErrLoadFailed)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, row := range rows {
		if _, err := tx.NamedExecContext(ctx, query, row); err != nil {
			return 0, classifyPostgresError(fmt.Errorf("write %s %q: %w", spec.Name, row.BusinessKey(), err), appErrors.ErrLoadFailed)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, classifyPostgresError(fmt.Errorf("commit %s batch: %w", spec.Name, err), appErrors.ErrLoadFailed)
	}
	return len(rows), nil
}

func insertQuery(spec models.TableSpec) string {
	cols := make([]string, len(spec.Columns))
	binds := make([]string, len(spec.Columns))
	for i, c := range spec.Columns {
		cols[i] = pq.QuoteIdentifier(c)
		binds[i] = ":" + c
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		pq.QuoteIdentifier(string(spec.Name)), strings.Join(cols, ", "), strings.Join(binds, ", "))
}

func upsertQuery(spec models.TableSpec) string {
	key := pq.QuoteIdentifier(spec.Key)
	sets := make([]string, 0, len(spec.Columns))
	for _, c := range spec.Columns {
		if c == spec.Key {
			continue
		}
		q := pq.QuoteIdentifier(c)
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", q, q))
	}
	if len(sets) == 0 {
		return insertQuery(spec) + fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", key)
	}
	return insertQuery(spec) + fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", key, strings.Join(sets, ", "))
}

// classifyPostgresError treats rejected credentials (SQLSTATE class 28) as fatal. A missing grant or a
// row-level security rejection (42501) only concerns the table being written and gets the fallback class.
func classifyPostgresError(err error, fallback *appErrors.Error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Class() == "28" {
		return appErrors.WrapAs(err, appErrors.ErrSinkUnauthorized, "")
	}
	return appErrors.WrapAs(err, fallback, "")
}

// classifyPreflightError classifies Ping and connect failures. Every outcome is fatal, and 42501 counts as a
// rejected credential there.
func classifyPreflightError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "42501" {
		return appErrors.WrapAs(err, appErrors.ErrSinkUnauthorized, "")
	}
	return classifyPostgresError(err, appErrors.ErrSinkUnavailable)
}

// ConnectError classifies a failure to open the datastore. It is always fatal.
func ConnectError(err error) error {
	return classifyPreflightError(fmt.Errorf("connect to postgres: %w", err))
}
