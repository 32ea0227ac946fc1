package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sheets-etl/internal/models"
	"github.com/noah-isme/sheets-etl/pkg/postgrest"
)

type fakeCounter struct {
	counts  map[models.TableName]int
	err     error
	filters []map[string]string
}

func (f *fakeCounter) Count(_ context.Context, table string, eq map[string]string) (int, error) {
	f.filters = append(f.filters, eq)
	return f.counts[models.TableName(table)], f.err
}

func TestCompareTableFiltersTransactionalTablesByDay(t *testing.T) {
	target := models.NewDate(2024, time.March, 13)
	legacy := &fakeCounter{counts: map[models.TableName]int{models.TablePayments: 4}}
	current := &fakeCounter{counts: map[models.TableName]int{models.TablePayments: 3}}

	comp := compareTable(context.Background(), legacy, current, models.PaymentsTable, target)
	assert.True(t, comp.Critical)
	assert.False(t, comp.match())
	assert.Equal(t, "payment_date=eq.2024-03-13", comp.Filter)
	assert.Equal(t, map[string]string{"payment_date": "2024-03-13"}, current.filters[0])

	comp = compareTable(context.Background(), legacy, current, models.CoursesTable, target)
	assert.False(t, comp.Critical)
	assert.True(t, comp.match())
	assert.Empty(t, comp.Filter)
}

func TestCompareTableReportsErrors(t *testing.T) {
	legacy := &fakeCounter{err: errors.New("401")}
	comp := compareTable(context.Background(), legacy, &fakeCounter{}, models.EnrollmentsTable, models.NewDate(2024, time.March, 13))
	assert.Error(t, comp.Error)
	assert.False(t, comp.match())
}

func countServer(t *testing.T, total string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/enrollments", r.URL.Path)
		assert.Equal(t, "eq.2024-03-13", r.URL.Query().Get("enrollment_date"))
		w.Header().Set("Content-Range", total)
		_, _ = w.Write([]byte(`[]`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCompareTableAgainstTwoDeployments(t *testing.T) {
	legacy := postgrest.New(countServer(t, "0-0/7").URL, "legacy", time.Second)
	current := postgrest.New(countServer(t, "0-0/7").URL, "current", time.Second)

	comp := compareTable(context.Background(), legacy, current, models.EnrollmentsTable, models.NewDate(2024, time.March, 13))
	require.NoError(t, comp.Error)
	assert.Equal(t, 7, comp.LegacyCount)
	assert.Equal(t, 7, comp.GoCount)
	assert.True(t, comp.match())
}
