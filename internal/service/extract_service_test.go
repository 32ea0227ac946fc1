package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sheets-etl/pkg/config"
	appErrors "github.com/noah-isme/sheets-etl/pkg/errors"
)

type fakeSheetReader struct {
	mu     sync.Mutex
	titles []string
	values map[string][][]string
	errs   map[string]error
	reads  map[string]int
}

func newFakeSheetReader() *fakeSheetReader {
	return &fakeSheetReader{values: map[string][][]string{}, errs: map[string]error{}, reads: map[string]int{}}
}

func (f *fakeSheetReader) Titles(context.Context) ([]string, error) {
	if err := f.errs[""]; err != nil {
		return nil, err
	}
	if f.titles != nil {
		return f.titles, nil
	}
	titles := make([]string, 0, len(f.values))
	for k := range f.values {
		titles = append(titles, k)
	}
	return titles, nil
}

func (f *fakeSheetReader) Values(_ context.Context, worksheet string) ([][]string, error) {
	f.mu.Lock()
	f.reads[worksheet]++
	f.mu.Unlock()
	if err := f.errs[worksheet]; err != nil {
		return nil, err
	}
	v, ok := f.values[worksheet]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrWorksheetNotFound, "worksheet "+worksheet+" not found")
	}
	return v, nil
}

func TestBuildSheetConfiguredHeaderRow(t *testing.T) {
	values := [][]string{
		{"REPORTE DE PAGOS"},
		{"Código de matrícula", "", "Monto", "Monto", ""},
		{" M1 ", "x", "10"},
		{"", "", ""},
		{"M2", "", "20", "21", "extra", "ignored"},
	}

	sheet := BuildSheet("Pagos", values, 2)

	assert.Equal(t, 2, sheet.HeaderRow)
	assert.Equal(t, []string{"Código de matrícula", "col_1", "Monto", "Monto_1", "col_4"}, sheet.Header)
	require.Len(t, sheet.Rows, 2)
	assert.Equal(t, 3, sheet.Rows[0].Number)
	assert.Equal(t, "M1", sheet.Rows[0].Get("Código de matrícula"))
	assert.Equal(t, "", sheet.Rows[0].Get("Monto_1"))
	assert.Equal(t, 5, sheet.Rows[1].Number)
	assert.Equal(t, "21", sheet.Rows[1].Get("Monto_1"))
	assert.Len(t, sheet.Rows[1].Values, 5)
}

func TestBuildSheetFallsBackToFirstNonEmptyRow(t *testing.T) {
	values := [][]string{{"", " "}, {"CODIGO_E", "NOMBRES_E"}, {"E1", "ana"}}

	assert.Equal(t, 2, BuildSheet("Estudiantes", values, 0).HeaderRow)
	assert.Equal(t, 2, BuildSheet("Estudiantes", values, 9).HeaderRow)
	assert.Equal(t, 2, BuildSheet("Estudiantes", values, 1).HeaderRow)
}

func TestBuildSheetEmptyWorksheet(t *testing.T) {
	sheet := BuildSheet("Cursos", nil, 2)
	assert.Empty(t, sheet.Rows)
	assert.Empty(t, sheet.Header)

	sheet = BuildSheet("Cursos", [][]string{{"A", "B"}}, 1)
	assert.Equal(t, []string{"A", "B"}, sheet.Header)
	assert.Empty(t, sheet.Rows)
}

func TestExtractSessionReadsWorksheetOnce(t *testing.T) {
	reader := newFakeSheetReader()
	reader.values["Matriculas"] = [][]string{{"Código de matrícula"}, {"M1"}}
	session := NewExtractService(reader, nil).Session()
	ws := config.Worksheet{Name: "Matriculas", HeaderRow: 1}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sheet, err := session.Extract(context.Background(), ws)
			assert.NoError(t, err)
			assert.Len(t, sheet.Rows, 1)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, reader.reads["Matriculas"])
}

func TestExtractPropagatesReaderErrors(t *testing.T) {
	reader := newFakeSheetReader()
	reader.errs["Cursos"] = appErrors.Clone(appErrors.ErrSourceUnauthorized, "token revoked")

	_, err := NewExtractService(reader, nil).Extract(context.Background(), config.Worksheet{Name: "Cursos"})
	assert.True(t, errors.Is(err, appErrors.ErrSourceUnauthorized))
}
