package service

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/noah-isme/sheets-etl/internal/models"
)

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalizeName folds a header to ascii snake case: "Código de matrícula" becomes "codigo_de_matricula".
func normalizeName(s string) string {
	folded, _, err := transform.String(stripMarks, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}

// columnIndex resolves canonical field names against a sheet header.
type columnIndex struct {
	header []string
	norm   []string
}

func newColumnIndex(header []string) columnIndex {
	idx := columnIndex{header: header, norm: make([]string, len(header))}
	for i, h := range header {
		idx.norm[i] = normalizeName(h)
	}
	return idx
}

// find returns the header matching the first candidate, trying exact normalised matches before substring ones.
func (c columnIndex) find(candidates ...string) string {
	for _, cand := range candidates {
		n := normalizeName(cand)
		for i, k := range c.norm {
			if k == n {
				return c.header[i]
			}
		}
	}
	for _, cand := range candidates {
		n := normalizeName(cand)
		if n == "" {
			continue
		}
		for i, k := range c.norm {
			if k != "" && (strings.Contains(k, n) || strings.Contains(n, k)) {
				return c.header[i]
			}
		}
	}
	return ""
}

var titleCaser = cases.Title(language.Spanish)

func titleCase(s string) string {
	return titleCaser.String(strings.TrimSpace(s))
}

func firstToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

var (
	dateLayouts = []string{
		"02/01/2006", "2/1/2006", "02/01/2006 15:04:05", "2/1/2006 15:04:05", "2/1/2006 15:04",
		"02-01-2006", "2-1-2006",
		"2006-01-02", "2006-01-02 15:04:05", "2006-01-02T15:04:05", time.RFC3339,
		"02/01/06", "2/1/06",
	}
	serialPattern = regexp.MustCompile(`^\d+(\.\d+)?$`)
	sheetsEpoch   = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)
)

// parseDate reads day-first and ISO dates plus spreadsheet serial day numbers. Only the calendar day is kept.
func parseDate(raw string) (models.Date, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return models.Date{}, nil
	}
	if serialPattern.MatchString(s) {
		days, err := strconv.ParseFloat(s, 64)
		if err == nil && days >= 1 && days < 2958466 {
			return models.DateOf(sheetsEpoch.AddDate(0, 0, int(days))), nil
		}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return models.DateOf(t), nil
		}
	}
	return models.Date{}, fmt.Errorf("unrecognised date %q", raw)
}

// parseAmount reads money cells such as "S/ 1.234,50", "$150" or "99.9", rounded to cents. Empty cells are zero.
func parseAmount(raw string) (decimal.Decimal, error) {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == ',' || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	s := strings.Trim(b.String(), ".,")
	if s == "" {
		if strings.TrimSpace(raw) == "" {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("unrecognised amount %q", raw)
	}

	lastComma, lastDot := strings.LastIndex(s, ","), strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") == 1 && len(s)-lastComma-1 <= 2 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unrecognised amount %q", raw)
	}
	return d.Round(2), nil
}

// parseCount reads an integer cell. Empty cells are zero; "3.0" is accepted.
func parseCount(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.Equal(d.Truncate(0)) {
		return 0, fmt.Errorf("unrecognised number %q", raw)
	}
	return int(d.IntPart()), nil
}

var accountNames = map[string]string{
	"BANCO DE LA NACIÓN":   "Banco de la Nación",
	"BANCO DE LA NACION":   "Banco de la Nación",
	"SCOTIABANK":           "Scotiabank",
	"INTERBANK":            "Interbank",
	"YAPE":                 "Yape",
	"PLIN":                 "Plin",
	"BBVA":                 "BBVA",
	"BCP":                  "BCP",
	"TARJETA LINK":         "Tarjeta LINK",
	"PAYPAL":               "Paypal",
	"BANCO DE MÉXICO":      "Banco de México",
	"BANCO DE MEXICO":      "Banco de México",
	"BANCO DE MÉXICO / P":  "Banco de México",
	"BANCO DE MEXICO / P":  "Banco de México",
	"BANCO DE ECUADOR":     "Banco de Ecuador",
	"BANCO DE ECUADOR / P": "Banco de Ecuador",
	"BANCO DE COLOMBIA":    "Banco de Colombia",
	"BANCO DE CHILE":       "Banco de Chile",
	"OTROS":                "Sin Especificar",
}

// normalizeAccount maps a payment method cell to its display name. Unknown methods are title cased.
func normalizeAccount(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if name, ok := accountNames[strings.ToUpper(s)]; ok {
		return name
	}
	return titleCase(s)
}

// inferCurrency derives the currency from the raw payment method. Accounts tagged "/ P" are settled in MXN.
func inferCurrency(rawMethod string) string {
	key := strings.ToUpper(strings.TrimSpace(rawMethod))
	switch {
	case strings.HasSuffix(key, "/ P"):
		return "MXN"
	case key == "BANCO DE MÉXICO" || key == "BANCO DE MEXICO":
		return "MXN"
	case key == "BANCO DE ECUADOR" || key == "PAYPAL":
		return "USD"
	case key == "BANCO DE CHILE":
		return "CLP"
	default:
		return "PEN"
	}
}

const unknownCountry = "Desconocido"

// phonePrefixes is ordered: earlier rules win.
var phonePrefixes = []struct {
	country string
	match   func(digits string) bool
}{
	{"Argentina", prefix("549")},
	{"Chile", prefix("569")},
	{"Perú", prefix("51")},
	{"Colombia", prefix("57")},
	{"Ecuador", prefix("593")},
	{"Bolivia", prefix("591")},
	{"Panamá", prefix("507")},
	{"México", prefix("52")},
	{"Brasil", prefix("55")},
	{"Estados Unidos / Puerto Rico", func(n string) bool { return len(n) == 11 && strings.HasPrefix(n, "1") }},
	{"Italia", prefix("39")},
	{"España", prefix("34")},
	{"Francia", prefix("33")},
	{"Alemania", prefix("49")},
}

func prefix(p string) func(string) bool {
	return func(n string) bool { return strings.HasPrefix(n, p) }
}

// phoneCountry guesses the country of an international phone number from its dialing prefix.
func phoneCountry(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return unknownCountry
	}
	for _, p := range phonePrefixes {
		if p.match(digits) {
			return p.country
		}
	}
	return unknownCountry
}
