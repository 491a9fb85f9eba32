package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bz888/llamagate/internal/models"
	"github.com/bz888/llamagate/internal/pace"
	"github.com/bz888/llamagate/internal/stream"
)

// StreamGenerator is the slice of the gateway client the streamer needs.
type StreamGenerator interface {
	GenerateStream(ctx context.Context, req models.GenerateRequest) (<-chan Chunk, error)
}

// Streamer drives one conversation: it records the user message, opens the
// generation stream and pumps bytes through reassembly and extraction into a
// pacing queue. Each Send owns a fresh reassembly buffer and pacing queue;
// nothing is shared across streams.
type Streamer struct {
	client StreamGenerator
	store  *Store
	sink   pace.Sink
	delay  time.Duration

	mu      sync.Mutex
	current *pace.Scheduler
}

func NewStreamer(client StreamGenerator, store *Store, sink pace.Sink, delay time.Duration) *Streamer {
	return &Streamer{client: client, store: store, sink: sink, delay: delay}
}

// Send issues one streaming generation and blocks until the upstream closes
// or ctx is cancelled; paced appends may still be draining when it returns.
// The returned message is the assistant placeholder the fragments are
// appended to. Terminal dispatch errors join the back of the pacing queue so
// fragments already queued stay in order.
func (s *Streamer) Send(ctx context.Context, model, prompt string, images []string) Message {
	s.store.AddUser(prompt, images)
	asst := s.store.StartAssistant()

	sched := pace.NewScheduler(s.sink, s.delay)
	s.mu.Lock()
	s.current = sched
	s.mu.Unlock()

	req := models.GenerateRequest{
		Model:  model,
		Prompt: prompt,
		Images: images,
		Stream: true,
	}

	chunks, err := s.client.GenerateStream(ctx, req)
	if err != nil {
		fail(sched, asst.ID, err)
		return asst
	}

	reasm := stream.NewReassembler()
	ex := stream.NewExtractor(asst.ID)
	signalled := false

	emit := func(rec models.GenerateRecord) {
		if frag, ok := ex.Extract(rec); ok {
			sched.Enqueue(pace.Item{MessageID: frag.MessageID, Text: frag.Text})
		}
		if ex.Completed() && !signalled {
			signalled = true
			sched.Enqueue(pace.Item{MessageID: asst.ID, Done: true})
		}
	}

	for chunk := range chunks {
		if chunk.Err != nil {
			fail(sched, asst.ID, chunk.Err)
			return asst
		}
		for _, rec := range reasm.Push(chunk.Data) {
			emit(rec)
		}
	}

	// Aborted: the residual reassembly buffer is discarded, not flushed.
	if ctx.Err() != nil {
		return asst
	}

	for _, rec := range reasm.Close() {
		emit(rec)
	}
	// Transport closed without a done record; the stream still terminates.
	if !signalled {
		sched.Enqueue(pace.Item{MessageID: asst.ID, Done: true})
	}
	return asst
}

// Abort discards the pacing queue of the in-flight Send. The caller is
// responsible for cancelling the context passed to Send.
func (s *Streamer) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.current.Stop()
	}
}

func fail(sched *pace.Scheduler, messageID string, err error) {
	sched.Enqueue(pace.Item{
		MessageID: messageID,
		Text:      fmt.Sprintf("generation failed: %v", err),
		Errored:   true,
	})
}
