package admin

import (
	"context"

	"github.com/JonMunkholm/catalogimport/internal/catalog"
	"github.com/JonMunkholm/catalogimport/internal/commit"
)

// Committer is satisfied by *commit.Coordinator.
type Committer interface {
	Commit(ctx context.Context, rec catalog.Record) commit.Outcome
}

// SampleRecords returns the demo catalog. newID supplies ids and count
// supplies stock counts.
func SampleRecords(newID func() string, count func() int) []catalog.Record {
	products := []struct {
		title, description string
		price              float64
	}{
		{"Aurora", "Elegance and luxury", 690},
		{"Borealis", "Brutal and stylish", 380},
		{"Chorus", "Mysterious and eye-catching", 420},
		{"Delor", "Innovative and game-changer", 500},
	}

	recs := make([]catalog.Record, len(products))
	for i, p := range products {
		recs[i] = catalog.Record{
			ID:          newID(),
			Title:       p.title,
			Description: p.description,
			Price:       p.price,
			Count:       count(),
		}
	}
	return recs
}

// SeedReport counts commit outcomes.
type SeedReport struct {
	Committed int
	Skipped   int
	Failed    int
}

// Seed commits recs one by one. Failures are counted, not returned; the
// coordinator has already logged and dead-lettered them.
func Seed(ctx context.Context, c Committer, recs []catalog.Record, each func(catalog.Record, commit.Outcome)) SeedReport {
	var rep SeedReport
	for _, rec := range recs {
		outcome := c.Commit(ctx, rec)
		switch outcome {
		case commit.Committed:
			rep.Committed++
		case commit.DuplicateSkipped:
			rep.Skipped++
		default:
			rep.Failed++
		}
		if each != nil {
			each(rec, outcome)
		}
	}
	return rep
}
