package repository

import (
	"context"
	"sync"

	"github.com/noah-isme/sheets-etl/internal/models"
)

// MemoryWarehouseRepository keeps written rows in process. It backs dry runs and tests.
type MemoryWarehouseRepository struct {
	mu       sync.Mutex
	keyed    map[models.TableName]map[string]models.Record
	order    map[models.TableName][]string
	appended map[models.TableName][]models.Record
}

// NewMemoryWarehouseRepository constructs an empty store.
func NewMemoryWarehouseRepository() *MemoryWarehouseRepository {
	return &MemoryWarehouseRepository{
		keyed:    make(map[models.TableName]map[string]models.Record),
		order:    make(map[models.TableName][]string),
		appended: make(map[models.TableName][]models.Record),
	}
}

// Ping always succeeds.
func (r *MemoryWarehouseRepository) Ping(context.Context) error { return nil }

// Upsert stores rows by business key, replacing earlier versions.
func (r *MemoryWarehouseRepository) Upsert(_ context.Context, spec models.TableSpec, rows []models.Record) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	table := r.keyed[spec.Name]
	if table == nil {
		table = make(map[string]models.Record)
		r.keyed[spec.Name] = table
	}
	for _, row := range rows {
		key := row.BusinessKey()
		if _, exists := table[key]; !exists {
			r.order[spec.Name] = append(r.order[spec.Name], key)
		}
		table[key] = row
	}
	return len(rows), nil
}

// Insert appends rows.
func (r *MemoryWarehouseRepository) Insert(_ context.Context, spec models.TableSpec, rows []models.Record) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.appended[spec.Name] = append(r.appended[spec.Name], rows...)
	return len(rows), nil
}

// Rows returns the stored rows of a table, keyed rows in first-write order followed by appended rows.
func (r *MemoryWarehouseRepository) Rows(table models.TableName) []models.Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.Record, 0, len(r.order[table])+len(r.appended[table]))
	for _, key := range r.order[table] {
		out = append(out, r.keyed[table][key])
	}
	return append(out, r.appended[table]...)
}
