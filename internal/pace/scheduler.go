package pace

import (
	"sync"
	"time"
)

// DefaultDelay is the fixed interval between successive fragment appends.
const DefaultDelay = 30 * time.Millisecond

// Item is one queued append for a message. Done marks the completion of the
// message after its text (if any) is appended; Errored marks a terminal
// dispatch error, whose text joins the back of the queue like any other
// fragment so the visible ordering is never violated.
type Item struct {
	MessageID string
	Text      string
	Done      bool
	Errored   bool
}

// Sink receives paced appends. AppendFragment is called once per item with
// non-empty text; FinishMessage is called once when an item carries Done or
// Errored.
type Sink interface {
	AppendFragment(messageID, text string)
	FinishMessage(messageID string, errored bool)
}

// Scheduler decouples bursty record arrival from a constant-rate reveal.
// Enqueue never blocks; a single background loop drains the queue, sleeping
// the configured delay between items. When the queue drains the loop exits,
// and the next Enqueue starts exactly one new loop. One scheduler serves one
// session; it is never shared across sessions.
type Scheduler struct {
	sink  Sink
	delay time.Duration

	mu      sync.Mutex
	queue   []Item
	running bool
	stopped bool
	stop    chan struct{}
}

func NewScheduler(sink Sink, delay time.Duration) *Scheduler {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Scheduler{
		sink:  sink,
		delay: delay,
		stop:  make(chan struct{}),
	}
}

// Enqueue appends an item to the pacing queue and reactivates the pacing
// loop if it has gone idle. Safe to call from any goroutine.
func (s *Scheduler) Enqueue(item Item) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.queue = append(s.queue, item)
	if !s.running {
		s.running = true
		go s.run()
	}
}

// Stop aborts pacing: queued items are discarded, not flushed, and the loop
// exits within one scheduling step. The scheduler cannot be reused.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true
	s.queue = nil
	close(s.stop)
}

// Idle reports whether the pacing loop is currently running.
func (s *Scheduler) Idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.running
}

func (s *Scheduler) run() {
	for {
		s.mu.Lock()
		if s.stopped || len(s.queue) == 0 {
			s.running = false
			s.mu.Unlock()
			return
		}
		item := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		if item.Text != "" {
			s.sink.AppendFragment(item.MessageID, item.Text)
		}
		if item.Done || item.Errored {
			s.sink.FinishMessage(item.MessageID, item.Errored)
		}

		select {
		case <-s.stop:
			return
		case <-time.After(s.delay):
		}
	}
}
