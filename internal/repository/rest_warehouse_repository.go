package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/noah-isme/sheets-etl/internal/models"
	appErrors "github.com/noah-isme/sheets-etl/pkg/errors"
	"github.com/noah-isme/sheets-etl/pkg/postgrest"
)

// RestWarehouseRepository writes records through the PostgREST gateway.
type RestWarehouseRepository struct {
	client *postgrest.Client
}

// NewRestWarehouseRepository constructs the repository.
func NewRestWarehouseRepository(client *postgrest.Client) *RestWarehouseRepository {
	return &RestWarehouseRepository{client: client}
}

// Ping verifies the gateway is reachable and that the key can read the first destination table.
func (r *RestWarehouseRepository) Ping(ctx context.Context) error {
	table := string(models.Tables()[0].Name)
	if err := r.client.Ping(ctx, table); err != nil {
		var apiErr *postgrest.APIError
		if errors.As(err, &apiErr) && (apiErr.CredentialRejected() || apiErr.PermissionDenied()) {
			return appErrors.WrapAs(err, appErrors.ErrSinkUnauthorized, "")
		}
		return appErrors.WrapAs(err, appErrors.ErrSinkUnavailable, "")
	}
	return nil
}

// Upsert merges rows on the table key.
func (r *RestWarehouseRepository) Upsert(ctx context.Context, spec models.TableSpec, rows []models.Record) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := r.client.Upsert(ctx, string(spec.Name), spec.Key, rows); err != nil {
		return 0, classifyWriteError(fmt.Errorf("upsert %s: %w", spec.Name, err))
	}
	return len(rows), nil
}

// Insert appends rows.
func (r *RestWarehouseRepository) Insert(ctx context.Context, spec models.TableSpec, rows []models.Record) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := r.client.Insert(ctx, string(spec.Name), rows); err != nil {
		return 0, classifyWriteError(fmt.Errorf("insert %s: %w", spec.Name, err))
	}
	return len(rows), nil
}

// classifyWriteError is fatal only when the key itself is refused. Permission and row-level security
// rejections concern the table being written.
func classifyWriteError(err error) error {
	var apiErr *postgrest.APIError
	if errors.As(err, &apiErr) && apiErr.CredentialRejected() {
		return appErrors.WrapAs(err, appErrors.ErrSinkUnauthorized, "")
	}
	return appErrors.WrapAs(err, appErrors.ErrLoadFailed, "")
}
