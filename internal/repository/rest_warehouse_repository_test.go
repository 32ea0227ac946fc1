package repository

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sheets-etl/internal/models"
	appErrors "github.com/noah-isme/sheets-etl/pkg/errors"
	"github.com/noah-isme/sheets-etl/pkg/postgrest"
)

func TestRestWarehouseRepositoryEncodesRecords(t *testing.T) {
	var body []map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/enrollments", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	repo := NewRestWarehouseRepository(postgrest.New(srv.URL, "key", time.Second))
	n, err := repo.Insert(context.Background(), models.EnrollmentsTable, []models.Record{
		models.Enrollment{EnrollmentCode: "M1", CourseCode: "P101", CourseCount: 2, EnrollmentDate: models.NewDate(2024, time.March, 14), StudentCode: "E1", EnrollmentAmount: decimal.RequireFromString("99.9")},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, body, 1)
	assert.Equal(t, "2024-03-14", body[0]["enrollment_date"])
	assert.Equal(t, "99.9", body[0]["enrollment_amount"])
	assert.EqualValues(t, 2, body[0]["course_count"])
}

func TestRestWarehouseRepositoryClassifiesErrors(t *testing.T) {
	body := `{"code":"PGRST204","message":"column not found"}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()
	repo := NewRestWarehouseRepository(postgrest.New(srv.URL, "key", time.Second))
	rows := []models.Record{models.Student{StudentCode: "E1"}}

	_, err := repo.Upsert(context.Background(), models.StudentsTable, rows)
	assert.True(t, errors.Is(err, appErrors.ErrLoadFailed))
	assert.False(t, appErrors.IsFatal(err))

	body = `{"code":"42501","message":"new row violates row-level security policy for table \"students\""}`
	_, err = repo.Upsert(context.Background(), models.StudentsTable, rows)
	assert.True(t, errors.Is(err, appErrors.ErrLoadFailed))
	assert.False(t, appErrors.IsFatal(err))

	err = repo.Ping(context.Background())
	assert.True(t, errors.Is(err, appErrors.ErrSinkUnauthorized))

	body = `{"code":"PGRST301","message":"JWT expired"}`
	_, err = repo.Insert(context.Background(), models.PaymentsTable, []models.Record{models.Payment{EnrollmentCode: "M1"}})
	assert.True(t, errors.Is(err, appErrors.ErrSinkUnauthorized))
	assert.True(t, appErrors.IsFatal(err))

	srv.Close()
	err = repo.Ping(context.Background())
	assert.True(t, errors.Is(err, appErrors.ErrSinkUnavailable))
	_, err = repo.Insert(context.Background(), models.PaymentsTable, []models.Record{models.Payment{EnrollmentCode: "M1"}})
	assert.True(t, errors.Is(err, appErrors.ErrLoadFailed))
}
