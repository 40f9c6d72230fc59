// Package records defines the raw premium record exchanged with data sources
// and the normalization applied to spreadsheet exports.
package records

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/iwvelando/premium-forecast/pkg/datetime"
)

// Record is one row of premium production for a business line.
type Record struct {
	// Date is the month start of the record; the zero value marks a date that
	// could not be parsed.
	Date   time.Time
	Line   string
	Amount *float64
	Budget *float64
}

// HasDate reports whether the record carries a usable date.
func (r Record) HasDate() bool {
	return !r.Date.IsZero()
}

// AmountOrZero returns the premium amount, treating a missing amount as zero.
func (r Record) AmountOrZero() float64 {
	if r.Amount == nil {
		return 0
	}
	return *r.Amount
}

// BudgetOrZero returns the budget amount, treating a missing budget as zero.
func (r Record) BudgetOrZero() float64 {
	if r.Budget == nil {
		return 0
	}
	return *r.Budget
}

// Canonical column names.
const (
	ColumnYear      = "ANIO"
	ColumnMonthText = "MES_TXT"
	ColumnBranch    = "SUCURSAL"
	ColumnLine      = "LINEA"
	ColumnLinePlus  = "LINEA_PLUS"
	ColumnCompany   = "COMPANIA"
	ColumnAmount    = "IMP_PRIMA"
	ColumnBudget    = "PRESUPUESTO"
	ColumnBranchRam = "CODIGO_RAMO"
)

var columnAliases = map[string]string{
	"Año":                ColumnYear,
	"ANO":                ColumnYear,
	"YEAR":               ColumnYear,
	"Mes yyyy":           ColumnMonthText,
	"MES YYYY":           ColumnMonthText,
	"Mes":                ColumnMonthText,
	"MES":                ColumnMonthText,
	"Codigo y Sucursal":  ColumnBranch,
	"Código y Sucursal":  ColumnBranch,
	"Linea":              ColumnLine,
	"Línea":              ColumnLine,
	"Linea +":            ColumnLinePlus,
	"Línea +":            ColumnLinePlus,
	"LINEA +":            ColumnLinePlus,
	"Compañía":           ColumnCompany,
	"COMPAÑÍA":           ColumnCompany,
	"Imp Prima":          ColumnAmount,
	"Imp Prima Cuota":    ColumnBudget,
	"IMP_PRIMA_CUOTA":    ColumnBudget,
	"Código y Ramo":      ColumnBranchRam,
	"Codigo y Ramo":      ColumnBranchRam,
}

// NormalizeColumn maps a spreadsheet header onto its canonical column name.
func NormalizeColumn(header string) string {
	trimmed := strings.TrimSpace(strings.TrimPrefix(header, "\uFEFF"))
	if canonical, ok := columnAliases[trimmed]; ok {
		return canonical
	}
	return trimmed
}

var nonNumeric = regexp.MustCompile(`[^\d,.\-]`)

// ParseNumberCO parses an amount written with Colombian separators
// ("$ 1.234.567,89"): dots group thousands and the comma is the decimal mark.
func ParseNumberCO(value string) (float64, error) {
	cleaned := nonNumeric.ReplaceAllString(value, "")
	cleaned = strings.ReplaceAll(cleaned, ".", "")
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	if cleaned == "" || cleaned == "-" {
		return 0, fmt.Errorf("no digits in %q", value)
	}
	return strconv.ParseFloat(cleaned, 64)
}

// ErrMissingLineColumn is returned when an export has no business line column.
var ErrMissingLineColumn = errors.New("records: missing LINEA_PLUS column")

// ParseCSV reads a premium export. Rows whose date cannot be resolved are
// dropped; unparseable amounts are kept as missing.
func ParseCSV(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[NormalizeColumn(h)] = i
	}
	if _, ok := index[ColumnLinePlus]; !ok {
		return nil, ErrMissingLineColumn
	}

	field := func(row []string, column string) (string, bool) {
		i, ok := index[column]
		if !ok || i >= len(row) {
			return "", false
		}
		return strings.TrimSpace(row[i]), true
	}

	var out []Record
	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", line, err)
		}

		date, ok := resolveDate(row, field)
		if !ok {
			continue
		}

		lineName, _ := field(row, ColumnLinePlus)
		rec := Record{Date: date, Line: lineName}
		if raw, ok := field(row, ColumnAmount); ok {
			if v, err := ParseNumberCO(raw); err == nil {
				rec.Amount = &v
			}
		}
		if raw, ok := field(row, ColumnBudget); ok {
			if v, err := ParseNumberCO(raw); err == nil {
				rec.Budget = &v
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

func resolveDate(row []string, field func([]string, string) (string, bool)) (time.Time, bool) {
	yearText, hasYear := field(row, ColumnYear)
	monthText, hasMonth := field(row, ColumnMonthText)

	if hasMonth && monthText != "" {
		if month, err := strconv.Atoi(monthText); err == nil && hasYear {
			year, err := strconv.Atoi(yearText)
			if err != nil || month < 1 || month > 12 {
				return time.Time{}, false
			}
			return datetime.Date(year, time.Month(month), 1), true
		}
		if t, err := datetime.ParseFlexible(monthText); err == nil {
			return datetime.MonthStart(t), true
		}
		return time.Time{}, false
	}
	if hasYear {
		year, err := strconv.Atoi(yearText)
		if err != nil {
			return time.Time{}, false
		}
		return datetime.Date(year, time.January, 1), true
	}
	return time.Time{}, false
}

// Lines returns the distinct non-empty business lines, sorted.
func Lines(recs []Record) []string {
	seen := make(map[string]struct{})
	for _, r := range recs {
		if r.Line == "" {
			continue
		}
		seen[r.Line] = struct{}{}
	}
	lines := make([]string, 0, len(seen))
	for line := range seen {
		lines = append(lines, line)
	}
	sort.Strings(lines)
	return lines
}

// GroupByLine partitions records by business line. Records without a line are
// dropped.
func GroupByLine(recs []Record) map[string][]Record {
	groups := make(map[string][]Record)
	for _, r := range recs {
		if r.Line == "" {
			continue
		}
		groups[r.Line] = append(groups[r.Line], r)
	}
	return groups
}

// Float returns a pointer to v, convenient for building records in code.
func Float(v float64) *float64 {
	return &v
}
