package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/sheets-etl/internal/models"
	"github.com/noah-isme/sheets-etl/pkg/config"
)

type sheetReader interface {
	Titles(ctx context.Context) ([]string, error)
	Values(ctx context.Context, worksheet string) ([][]string, error)
}

// ExtractService turns worksheet cells into header-keyed rows.
type ExtractService struct {
	reader sheetReader
	logger *zap.Logger
}

// NewExtractService constructs the service.
func NewExtractService(reader sheetReader, logger *zap.Logger) *ExtractService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExtractService{reader: reader, logger: logger}
}

// Titles lists the worksheets of the configured document.
func (s *ExtractService) Titles(ctx context.Context) ([]string, error) {
	return s.reader.Titles(ctx)
}

// Extract reads one worksheet and applies header detection.
func (s *ExtractService) Extract(ctx context.Context, ws config.Worksheet) (*models.Sheet, error) {
	values, err := s.reader.Values(ctx, ws.Name)
	if err != nil {
		return nil, err
	}
	sheet := BuildSheet(ws.Name, values, ws.HeaderRow)
	s.logger.Info("worksheet extracted",
		zap.String("worksheet", ws.Name),
		zap.Int("header_row", sheet.HeaderRow),
		zap.Int("rows", len(sheet.Rows)),
		zap.Strings("headers", sheet.Header),
	)
	return sheet, nil
}

// Session returns an extractor that reads each worksheet at most once. Use one session per run.
func (s *ExtractService) Session() *ExtractSession {
	return &ExtractSession{svc: s, entries: make(map[string]*sessionEntry)}
}

// ExtractSession memoises worksheet reads for the lifetime of one run.
type ExtractSession struct {
	svc     *ExtractService
	mu      sync.Mutex
	entries map[string]*sessionEntry
}

type sessionEntry struct {
	once  sync.Once
	sheet *models.Sheet
	err   error
}

// Extract returns the sheet for ws, reading it on first use. The returned sheet is shared and must not be modified.
func (x *ExtractSession) Extract(ctx context.Context, ws config.Worksheet) (*models.Sheet, error) {
	key := fmt.Sprintf("%s#%d", ws.Name, ws.HeaderRow)

	x.mu.Lock()
	entry, ok := x.entries[key]
	if !ok {
		entry = &sessionEntry{}
		x.entries[key] = entry
	}
	x.mu.Unlock()

	entry.once.Do(func() {
		entry.sheet, entry.err = x.svc.Extract(ctx, ws)
	})
	return entry.sheet, entry.err
}

// BuildSheet maps raw cell rows onto header names.
//
// headerRow is 1-based. When it is 0, out of range or blank, the first non-empty row is used instead.
// Blank header cells are named col_<index>, repeated names get _1, _2 suffixes, and fully empty data rows are dropped.
func BuildSheet(title string, values [][]string, headerRow int) *models.Sheet {
	sheet := &models.Sheet{Title: title}

	headerIdx := -1
	if headerRow > 0 && headerRow <= len(values) && !blankRow(values[headerRow-1]) {
		headerIdx = headerRow - 1
	} else {
		for i, row := range values {
			if !blankRow(row) {
				headerIdx = i
				break
			}
		}
	}
	if headerIdx < 0 {
		return sheet
	}

	sheet.HeaderRow = headerIdx + 1
	sheet.Header = uniqueHeaders(values[headerIdx])

	for i := headerIdx + 1; i < len(values); i++ {
		raw := values[i]
		if blankRow(raw) {
			continue
		}
		row := models.SheetRow{Number: i + 1, Values: make(map[string]string, len(sheet.Header))}
		for j, name := range sheet.Header {
			if j < len(raw) {
				row.Values[name] = strings.TrimSpace(raw[j])
			} else {
				row.Values[name] = ""
			}
		}
		sheet.Rows = append(sheet.Rows, row)
	}
	return sheet
}

func uniqueHeaders(raw []string) []string {
	seen := make(map[string]int, len(raw))
	headers := make([]string, len(raw))
	for j, h := range raw {
		name := strings.TrimSpace(h)
		if name == "" {
			name = fmt.Sprintf("col_%d", j)
		}
		if n, dup := seen[name]; dup {
			seen[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n+1)
		} else {
			seen[name] = 0
		}
		headers[j] = name
	}
	return headers
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
