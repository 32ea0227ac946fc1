package repository

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	appErrors "github.com/noah-isme/sheets-etl/pkg/errors"
)

func newSheetRepo(t *testing.T, handler http.HandlerFunc) *SheetRepository {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	svc, err := sheets.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return NewSheetRepository(svc, "doc-1")
}

func TestSheetRepositoryTitles(t *testing.T) {
	repo := newSheetRepo(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/v4/spreadsheets/doc-1"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sheets":[{"properties":{"title":"Cursos"}},{"properties":{"title":"Pagos"}}]}`))
	})

	titles, err := repo.Titles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Cursos", "Pagos"}, titles)
}

func TestSheetRepositoryValues(t *testing.T) {
	repo := newSheetRepo(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/values/'Cursos PI'")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"range":"'Cursos PI'!A1:C3","majorDimension":"ROWS","values":[["BANNER"],["CÓDIGO_C","I1"],["P101",3]]}`))
	})

	values, err := repo.Values(context.Background(), "Cursos PI")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"BANNER"}, {"CÓDIGO_C", "I1"}, {"P101", "3"}}, values)
}

func TestSheetRepositoryErrorClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   *appErrors.Error
		fatal  bool
	}{
		{"unknown worksheet", http.StatusBadRequest, appErrors.ErrWorksheetNotFound, false},
		{"forbidden", http.StatusForbidden, appErrors.ErrSourceUnauthorized, true},
		{"unauthenticated", http.StatusUnauthorized, appErrors.ErrSourceUnauthorized, true},
		{"missing document", http.StatusNotFound, appErrors.ErrSourceUnavailable, true},
		{"backend error", http.StatusServiceUnavailable, appErrors.ErrSourceUnavailable, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newSheetRepo(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"error":{"message":"nope"}}`))
			})

			_, err := repo.Values(context.Background(), "Cursos")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
			assert.Equal(t, tc.fatal, appErrors.IsFatal(err))
		})
	}
}
