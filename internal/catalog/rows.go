package catalog

import (
	"math"
	"strconv"
	"strings"
)

// Column names recognised in uploaded files (header match is case-insensitive).
const (
	ColumnID          = "id"
	ColumnTitle       = "title"
	ColumnDescription = "description"
	ColumnPrice       = "price"
	ColumnCount       = "count"
)

// FromRow converts one parsed row (column name -> cell) into a Record.
//
// The id is copied when the file provides one and left empty otherwise; the
// importer assigns a stable id for id-less rows. Cells that do not convert
// to numbers yield a *ValidationError, which drops the row but not the file.
func FromRow(row map[string]string) (Record, error) {
	rec := Record{
		ID:          strings.TrimSpace(row[ColumnID]),
		Title:       strings.TrimSpace(row[ColumnTitle]),
		Description: strings.TrimSpace(row[ColumnDescription]),
	}

	price, err := parseNumber(ColumnPrice, row[ColumnPrice])
	if err != nil {
		return Record{}, err
	}
	rec.Price = price

	count, err := parseNumber(ColumnCount, row[ColumnCount])
	if err != nil {
		return Record{}, err
	}
	if count != math.Trunc(count) || math.Abs(count) > math.MaxInt32 {
		return Record{}, &ValidationError{Field: ColumnCount, Message: "must be an integer"}
	}
	rec.Count = int(count)

	return rec, nil
}

func parseNumber(field, raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, &ValidationError{Field: field, Message: "is required"}
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &ValidationError{Field: field, Message: "must be a number, got " + strconv.Quote(raw)}
	}
	return f, nil
}
