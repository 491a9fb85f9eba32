package stream

import "github.com/bz888/llamagate/internal/models"

// Fragment is the text payload extracted from one record for display,
// addressed to the message it belongs to.
type Fragment struct {
	MessageID string
	Text      string
}

// Extractor maps records of one stream to display fragments for a single
// target message. Once the message has completed, further records are
// ignored; a malformed stream must not restart a finished message.
type Extractor struct {
	messageID string
	completed bool
}

func NewExtractor(messageID string) *Extractor {
	return &Extractor{messageID: messageID}
}

// Extract returns at most one fragment for the record. The second return
// value is false when the record carries no text or the message has already
// completed. Completion itself is observed through Completed.
func (e *Extractor) Extract(rec models.GenerateRecord) (Fragment, bool) {
	if e.completed {
		return Fragment{}, false
	}
	if rec.Done {
		e.completed = true
	}
	if rec.Response == "" {
		return Fragment{}, false
	}
	return Fragment{MessageID: e.messageID, Text: rec.Response}, true
}

// Completed reports whether a done record has been seen.
func (e *Extractor) Completed() bool {
	return e.completed
}
