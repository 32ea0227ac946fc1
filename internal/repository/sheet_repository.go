package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/sheets/v4"

	appErrors "github.com/noah-isme/sheets-etl/pkg/errors"
)

// SheetRepository reads worksheet values from one spreadsheet document.
type SheetRepository struct {
	svc           *sheets.Service
	spreadsheetID string
}

// NewSheetRepository constructs the repository.
func NewSheetRepository(svc *sheets.Service, spreadsheetID string) *SheetRepository {
	return &SheetRepository{svc: svc, spreadsheetID: spreadsheetID}
}

// Titles lists the worksheet titles of the document.
func (r *SheetRepository) Titles(ctx context.Context) ([]string, error) {
	doc, err := r.svc.Spreadsheets.Get(r.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return nil, classifySheetsError(err, "")
	}
	titles := make([]string, 0, len(doc.Sheets))
	for _, s := range doc.Sheets {
		if s.Properties != nil {
			titles = append(titles, s.Properties.Title)
		}
	}
	return titles, nil
}

// Values returns every populated cell of the worksheet as formatted strings, row by row.
func (r *SheetRepository) Values(ctx context.Context, worksheet string) ([][]string, error) {
	resp, err := r.svc.Spreadsheets.Values.Get(r.spreadsheetID, quoteRange(worksheet)).
		ValueRenderOption("FORMATTED_VALUE").
		MajorDimension("ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return nil, classifySheetsError(err, worksheet)
	}

	out := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		cells := make([]string, len(row))
		for j, cell := range row {
			if cell != nil {
				cells[j] = fmt.Sprint(cell)
			}
		}
		out[i] = cells
	}
	return out, nil
}

func quoteRange(worksheet string) string {
	return "'" + strings.ReplaceAll(worksheet, "'", "''") + "'"
}

// classifySheetsError maps API failures onto the pipeline taxonomy. A 400 on a values read is how the API reports an unknown tab.
func classifySheetsError(err error, worksheet string) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
			return appErrors.WrapAs(err, appErrors.ErrSourceUnauthorized, "")
		case apiErr.Code == http.StatusBadRequest && worksheet != "":
			return appErrors.WrapAs(err, appErrors.ErrWorksheetNotFound, fmt.Sprintf("worksheet %q not found", worksheet))
		case apiErr.Code == http.StatusNotFound:
			return appErrors.WrapAs(err, appErrors.ErrSourceUnavailable, "spreadsheet not found")
		}
	}
	var tokenErr *oauth2.RetrieveError
	if errors.As(err, &tokenErr) {
		return appErrors.WrapAs(err, appErrors.ErrSourceUnauthorized, "")
	}
	return appErrors.WrapAs(err, appErrors.ErrSourceUnavailable, "")
}
