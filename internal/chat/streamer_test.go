package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bz888/llamagate/internal/models"
)

// fakeGenerator replays canned chunks on the returned channel.
type fakeGenerator struct {
	chunks []Chunk
	err    error
}

func (f *fakeGenerator) GenerateStream(ctx context.Context, req models.GenerateRequest) (<-chan Chunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(chan Chunk)
	go func() {
		defer close(out)
		for _, c := range f.chunks {
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func waitForState(t *testing.T, st *Store, id string, want State) Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if msg, ok := st.Get(id); ok && msg.State == want {
			return msg
		}
		time.Sleep(time.Millisecond)
	}
	msg, _ := st.Get(id)
	t.Fatalf("message never reached %v, stuck at %v with content %q", want, msg.State, msg.Content)
	return Message{}
}

func TestStreamerAssemblesPacedResponse(t *testing.T) {
	gen := &fakeGenerator{chunks: []Chunk{
		// Chunk boundaries deliberately fall inside records.
		{Data: []byte(`{"response":"Hel`)},
		{Data: []byte(`lo","done":false}` + "\n" + `{"response":" wor`)},
		{Data: []byte(`ld","done":false}` + "\n")},
		{Data: []byte(`{"response":"!","done":true}` + "\n")},
	}}

	st := NewStore()
	s := NewStreamer(gen, st, st, time.Millisecond)

	asst := s.Send(context.Background(), "llama2", "hi", nil)

	msg := waitForState(t, st, asst.ID, StateCompleted)
	assert.Equal(t, "Hello world!", msg.Content)

	msgs := st.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", msgs[0].Content)
}

func TestStreamerTrailingRecordWithoutNewline(t *testing.T) {
	gen := &fakeGenerator{chunks: []Chunk{
		{Data: []byte(`{"response":"X","done":true}`)},
	}}

	st := NewStore()
	s := NewStreamer(gen, st, st, time.Millisecond)

	asst := s.Send(context.Background(), "llama2", "hi", nil)

	msg := waitForState(t, st, asst.ID, StateCompleted)
	assert.Equal(t, "X", msg.Content)
}

func TestStreamerCompletesWhenTransportClosesWithoutDone(t *testing.T) {
	gen := &fakeGenerator{chunks: []Chunk{
		{Data: []byte(`{"response":"partial","done":false}` + "\n")},
	}}

	st := NewStore()
	s := NewStreamer(gen, st, st, time.Millisecond)

	asst := s.Send(context.Background(), "llama2", "hi", nil)

	msg := waitForState(t, st, asst.ID, StateCompleted)
	assert.Equal(t, "partial", msg.Content)
}

func TestStreamerDispatchFailureErrorsMessage(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("connection refused")}

	st := NewStore()
	s := NewStreamer(gen, st, st, time.Millisecond)

	asst := s.Send(context.Background(), "llama2", "hi", nil)

	msg := waitForState(t, st, asst.ID, StateErrored)
	assert.Contains(t, msg.Content, "connection refused")
}

func TestStreamerErrorJoinsQueueBehindFragments(t *testing.T) {
	gen := &fakeGenerator{chunks: []Chunk{
		{Data: []byte(`{"response":"a","done":false}` + "\n")},
		{Data: []byte(`{"response":"b","done":false}` + "\n")},
		{Err: errors.New("stream read failed")},
	}}

	st := NewStore()
	s := NewStreamer(gen, st, st, time.Millisecond)

	asst := s.Send(context.Background(), "llama2", "hi", nil)

	msg := waitForState(t, st, asst.ID, StateErrored)
	// Queued fragments stay ahead of the error text.
	assert.True(t, strings.HasPrefix(msg.Content, "ab"), "content %q", msg.Content)
	assert.Contains(t, msg.Content, "stream read failed")
}

func TestStreamerAbortDiscardsQueuedFragments(t *testing.T) {
	gen := &fakeGenerator{chunks: []Chunk{
		{Data: []byte(`{"response":"a","done":false}` + "\n" +
			`{"response":"b","done":false}` + "\n" +
			`{"response":"c","done":false}` + "\n")},
	}}

	st := NewStore()
	s := NewStreamer(gen, st, st, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Message, 1)
	go func() { done <- s.Send(ctx, "llama2", "hi", nil) }()

	// Give the first append a chance, then cancel mid-reveal.
	time.Sleep(20 * time.Millisecond)
	cancel()
	s.Abort()

	asst := <-done
	time.Sleep(150 * time.Millisecond)

	msg, ok := st.Get(asst.ID)
	require.True(t, ok)
	assert.NotEqual(t, "abc", msg.Content, "queued fragments must be discarded, not flushed")
	assert.NotEqual(t, StateCompleted, msg.State)
}
