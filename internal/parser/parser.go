// Package parser streams delimited catalog files into rows keyed by header.
package parser

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
)

// maxLineBytes bounds a single physical line in unquoted mode.
const maxLineBytes = 1 << 20

var (
	ErrInvalidConfig   = errors.New("invalid parser config")
	ErrDuplicateColumn = errors.New("duplicate column in header")
	ErrEmptyColumn     = errors.New("empty column name in header")
)

// Config selects the dialect. A zero Quote means fields are never quoted and
// quote characters are ordinary data.
type Config struct {
	Delimiter rune
	Quote     rune
}

// Semicolon and Comma are the two dialects uploads arrive in.
var (
	Semicolon = Config{Delimiter: ';', Quote: '"'}
	Comma     = Config{Delimiter: ',', Quote: 0}
)

func (c Config) validate() error {
	switch {
	case c.Delimiter == 0:
		return fmt.Errorf("%w: delimiter is required", ErrInvalidConfig)
	case c.Delimiter == '\r' || c.Delimiter == '\n' || c.Delimiter == '"':
		return fmt.Errorf("%w: delimiter %q not allowed", ErrInvalidConfig, c.Delimiter)
	case c.Quote != 0 && c.Quote != '"':
		return fmt.Errorf("%w: quote must be '\"' or none", ErrInvalidConfig)
	}
	return nil
}

// RawRow is one data line: lower-cased header name to cell text.
type RawRow struct {
	Line   int
	Fields map[string]string
}

// ParseError reports the line that stopped parsing.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error on line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Rows returns a lazy sequence over the data rows of r. The first non-blank
// line is the header; blank lines are skipped. The first malformed line
// yields a *ParseError and ends the sequence. An empty input yields nothing.
//
// r is consumed once; the sequence must not be ranged over twice.
func Rows(r io.Reader, cfg Config) iter.Seq2[RawRow, error] {
	return func(yield func(RawRow, error) bool) {
		if err := cfg.validate(); err != nil {
			yield(RawRow{}, &ParseError{Line: 0, Err: err})
			return
		}

		var next func() ([]string, int, error)
		if cfg.Quote == 0 {
			next = unquotedLines(Prepare(r), cfg.Delimiter)
		} else {
			next = quotedRecords(Prepare(r), cfg.Delimiter)
		}

		header, line, err := next()
		if err == io.EOF {
			return
		}
		if err != nil {
			yield(RawRow{}, &ParseError{Line: line, Err: err})
			return
		}
		columns, err := cleanHeader(header)
		if err != nil {
			yield(RawRow{}, &ParseError{Line: line, Err: err})
			return
		}

		for {
			record, line, err := next()
			if err == io.EOF {
				return
			}
			if err == nil && len(record) != len(columns) {
				err = fmt.Errorf("%w: got %d fields, header has %d", csv.ErrFieldCount, len(record), len(columns))
			}
			if err != nil {
				yield(RawRow{}, &ParseError{Line: line, Err: err})
				return
			}

			fields := make(map[string]string, len(columns))
			for i, name := range columns {
				fields[name] = record[i]
			}
			if !yield(RawRow{Line: line, Fields: fields}, nil) {
				return
			}
		}
	}
}

// quotedRecords reads RFC 4180 style records. csv.Reader already skips blank
// lines and reports the starting line of each record.
func quotedRecords(r io.Reader, delim rune) func() ([]string, int, error) {
	cr := csv.NewReader(r)
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	return func() ([]string, int, error) {
		record, err := cr.Read()
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, pe.StartLine, pe.Err
			}
			return nil, 0, err
		}
		line, _ := cr.FieldPos(0)
		return record, line, nil
	}
}

// unquotedLines splits each physical line on delim with no quote handling.
func unquotedLines(r io.Reader, delim rune) func() ([]string, int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	sep := string(delim)
	line := 0
	return func() ([]string, int, error) {
		for sc.Scan() {
			line++
			text := strings.TrimSuffix(sc.Text(), "\r")
			if strings.TrimSpace(text) == "" {
				continue
			}
			return strings.Split(text, sep), line, nil
		}
		if err := sc.Err(); err != nil {
			return nil, line + 1, err
		}
		return nil, line, io.EOF
	}
}

func cleanHeader(header []string) ([]string, error) {
	columns := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		if name == "" {
			return nil, fmt.Errorf("%w (position %d)", ErrEmptyColumn, i+1)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateColumn, name)
		}
		seen[name] = true
		columns[i] = name
	}
	return columns, nil
}
