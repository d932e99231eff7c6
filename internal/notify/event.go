// Package notify fans out product-created events and routes them to
// subscribers by numeric attribute filters.
package notify

import (
	"fmt"

	"github.com/JonMunkholm/catalogimport/internal/catalog"
)

// AttrCount is the attribute subscribers filter on.
const AttrCount = "count"

// Event is published once per committed record. It is never persisted.
type Event struct {
	Subject    string             `json:"subject"`
	Message    Message            `json:"message"`
	Attributes map[string]float64 `json:"attributes"`
}

// Message is the human-readable text plus the record it describes.
type Message struct {
	Text   string         `json:"text"`
	Record catalog.Record `json:"record"`
}

// NewEvent builds the event for a committed record.
func NewEvent(subject string, rec catalog.Record) Event {
	return Event{
		Subject: subject,
		Message: Message{
			Text:   fmt.Sprintf("Product %q (%s) created with %d in stock", rec.Title, rec.ID, rec.Count),
			Record: rec,
		},
		Attributes: map[string]float64{AttrCount: float64(rec.Count)},
	}
}
