package stream

import (
	"bytes"
	"encoding/json"

	"github.com/bz888/llamagate/internal/models"
)

// Reassembler turns an arbitrarily-chunked byte stream into complete NDJSON
// records. It owns one accumulation buffer for the lifetime of a single
// logical stream; it must not be shared across streams.
//
// Bytes after the last newline stay in the buffer until more bytes arrive, so
// a multi-byte character split across chunk boundaries is held back intact
// rather than dropped. The emitted record sequence depends only on the
// concatenation of all pushed bytes, never on how the transport chunked them.
type Reassembler struct {
	buf     []byte
	dropped int
}

func NewReassembler() *Reassembler {
	return &Reassembler{}
}

// Push appends one incoming chunk and returns every record completed by it.
// A line that fails to parse is dropped; it does not abort the stream.
func (r *Reassembler) Push(chunk []byte) []models.GenerateRecord {
	r.buf = append(r.buf, chunk...)

	var records []models.GenerateRecord
	for {
		i := bytes.IndexByte(r.buf, '\n')
		if i < 0 {
			break
		}
		line := r.buf[:i]
		r.buf = r.buf[i+1:]

		if rec, ok := r.parse(line); ok {
			records = append(records, rec)
		}
	}
	return records
}

// Close parses whatever remains in the buffer as one final line, for streams
// that end without a trailing newline. The reassembler must not be pushed to
// afterwards.
func (r *Reassembler) Close() []models.GenerateRecord {
	line := r.buf
	r.buf = nil

	if rec, ok := r.parse(line); ok {
		return []models.GenerateRecord{rec}
	}
	return nil
}

// Dropped reports how many malformed lines were skipped so far.
func (r *Reassembler) Dropped() int {
	return r.dropped
}

func (r *Reassembler) parse(line []byte) (models.GenerateRecord, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return models.GenerateRecord{}, false
	}

	var rec models.GenerateRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		r.dropped++
		return models.GenerateRecord{}, false
	}
	return rec, true
}
