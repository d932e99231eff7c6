package admin

import (
	"errors"
	"io"

	"github.com/JonMunkholm/catalogimport/internal/batch"
	"github.com/JonMunkholm/catalogimport/internal/catalog"
	"github.com/JonMunkholm/catalogimport/internal/importer"
	"github.com/JonMunkholm/catalogimport/internal/parser"
)

// Rejection is one row the validator refused.
type Rejection struct {
	Line   int
	Reason string
}

// CheckReport is what an import of the file would do, short of sending.
type CheckReport struct {
	Rows       int
	Valid      int
	Rejected   []Rejection
	Batches    int
	ParseError *parser.ParseError
}

// WouldRelocate reports whether an import would move the file to parsed/.
func (r CheckReport) WouldRelocate() bool { return r.ParseError == nil }

// Check runs r through the same parse, convert and batch steps the importer
// uses. key and version seed ids for id-less rows exactly as they would for
// that object under uploaded/. Only a read error that is not a parse error
// is returned; a malformed row is reported in ParseError.
func Check(r io.Reader, key, version string, cfg parser.Config, batchSize int, each func(catalog.Record)) (CheckReport, error) {
	var rep CheckReport
	acc := batch.NewAccumulator(batchSize)

	for row, err := range parser.Rows(r, cfg) {
		if err != nil {
			var pe *parser.ParseError
			if errors.As(err, &pe) {
				rep.ParseError = pe
				if acc.Pending() > 0 {
					rep.Batches++
				}
				return rep, nil
			}
			return rep, err
		}
		rep.Rows++

		rec, err := importer.RecordFromRow(key, version, row)
		if err != nil {
			rep.Rejected = append(rep.Rejected, Rejection{Line: row.Line, Reason: err.Error()})
			continue
		}
		rep.Valid++
		if each != nil {
			each(rec)
		}
		if _, full := acc.Push(rec); full {
			rep.Batches++
		}
	}
	if !acc.Flush().Empty() {
		rep.Batches++
	}
	return rep, nil
}
