package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sheets-etl/internal/models"
	"github.com/noah-isme/sheets-etl/internal/repository"
	appErrors "github.com/noah-isme/sheets-etl/pkg/errors"
)

// recordingWriter forwards to an in-memory store and can fail chosen tables or calls.
type recordingWriter struct {
	*repository.MemoryWarehouseRepository
	mu       sync.Mutex
	batches  []int
	failOn   map[models.TableName]error
	failCall int
	pingErr  error
}

func newRecordingWriter() *recordingWriter {
	return &recordingWriter{MemoryWarehouseRepository: repository.NewMemoryWarehouseRepository(), failOn: map[models.TableName]error{}}
}

func (w *recordingWriter) Ping(ctx context.Context) error {
	if w.pingErr != nil {
		return w.pingErr
	}
	return w.MemoryWarehouseRepository.Ping(ctx)
}

func (w *recordingWriter) record(spec models.TableSpec, rows []models.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.batches = append(w.batches, len(rows))
	if err := w.failOn[spec.Name]; err != nil {
		return err
	}
	if w.failCall > 0 && len(w.batches) == w.failCall {
		return errors.New("connection reset by peer")
	}
	return nil
}

func (w *recordingWriter) Upsert(ctx context.Context, spec models.TableSpec, rows []models.Record) (int, error) {
	if err := w.record(spec, rows); err != nil {
		return 0, err
	}
	return w.MemoryWarehouseRepository.Upsert(ctx, spec, rows)
}

func (w *recordingWriter) Insert(ctx context.Context, spec models.TableSpec, rows []models.Record) (int, error) {
	if err := w.record(spec, rows); err != nil {
		return 0, err
	}
	return w.MemoryWarehouseRepository.Insert(ctx, spec, rows)
}

func payments(n int) []models.Record {
	out := make([]models.Record, n)
	for i := range out {
		out[i] = models.Payment{EnrollmentCode: "M1", PaymentDate: models.NewDate(2024, 3, 13)}
	}
	return out
}

func TestLoadBatchesInserts(t *testing.T) {
	w := newRecordingWriter()
	svc := NewLoadService(w, 2, nil)

	n, err := svc.Load(context.Background(), models.PaymentsTable, payments(5))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []int{2, 2, 1}, w.batches)
	// Same key five times: inserts keep every row.
	assert.Len(t, w.Rows(models.TablePayments), 5)
}

func TestLoadUpsertKeepsLastRowPerKey(t *testing.T) {
	w := newRecordingWriter()
	svc := NewLoadService(w, 0, nil)

	rows := []models.Record{
		models.Course{CourseCode: "P1", CourseName: "Old"},
		models.Course{CourseCode: "P2", CourseName: "Other"},
		models.Course{CourseCode: "P1", CourseName: "New"},
	}
	n, err := svc.Load(context.Background(), models.CoursesTable, rows)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []models.Record{
		models.Course{CourseCode: "P1", CourseName: "New"},
		models.Course{CourseCode: "P2", CourseName: "Other"},
	}, w.Rows(models.TableCourses))
}

func TestLoadIsIdempotentForUpsertTables(t *testing.T) {
	w := newRecordingWriter()
	svc := NewLoadService(w, 10, nil)
	rows := []models.Record{models.Student{StudentCode: "E1", FirstNames: "Ana"}}

	_, err := svc.Load(context.Background(), models.StudentsTable, rows)
	require.NoError(t, err)
	_, err = svc.Load(context.Background(), models.StudentsTable, rows)
	require.NoError(t, err)
	assert.Len(t, w.Rows(models.TableStudents), 1)
}

func TestLoadReportsPartialProgressOnFailure(t *testing.T) {
	w := newRecordingWriter()
	w.failCall = 2
	svc := NewLoadService(w, 2, nil)

	n, err := svc.Load(context.Background(), models.PaymentsTable, payments(5))
	require.Error(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, errors.Is(err, appErrors.ErrLoadFailed))
	assert.False(t, appErrors.IsFatal(err))
}

func TestLoadKeepsFatalErrors(t *testing.T) {
	w := newRecordingWriter()
	w.failOn[models.TableCourses] = appErrors.Clone(appErrors.ErrSinkUnauthorized, "")
	svc := NewLoadService(w, 2, nil)

	_, err := svc.Load(context.Background(), models.CoursesTable, []models.Record{models.Course{CourseCode: "P1"}})
	require.Error(t, err)
	assert.True(t, appErrors.IsFatal(err))
}

func TestLoadEmptyAndPing(t *testing.T) {
	w := newRecordingWriter()
	svc := NewLoadService(w, 2, nil)

	n, err := svc.Load(context.Background(), models.EnrollmentsTable, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, w.batches)

	require.NoError(t, svc.Ping(context.Background()))
	w.pingErr = errors.New("dial tcp: connection refused")
	err = svc.Ping(context.Background())
	assert.True(t, errors.Is(err, appErrors.ErrSinkUnavailable))
	assert.True(t, appErrors.IsFatal(err))
}
