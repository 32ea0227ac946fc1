package models

// Sheet is the raw content of one worksheet after header detection.
type Sheet struct {
	Title     string
	Header    []string
	HeaderRow int
	Rows      []SheetRow
}

// SheetRow maps header names to trimmed cell values.
type SheetRow struct {
	// Number is the 1-based row number in the worksheet.
	Number int
	Values map[string]string
}

// Get returns the cell under header, or "" when absent.
func (r SheetRow) Get(header string) string {
	return r.Values[header]
}
