package chat

import (
	"sync"

	"github.com/google/uuid"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// State is the lifecycle of one message. Streaming is entered when the
// assistant placeholder is created; there is no transition out of Completed
// or Errored back to Streaming.
type State int

const (
	StateIdle State = iota
	StateStreaming
	StateCompleted
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Message is one conversation entry. Content is append-only while the
// message is streaming; the pacing loop is its only writer.
type Message struct {
	ID      string
	Role    string
	Content string
	Images  []string
	State   State
}

// Streaming reports whether the message is still being revealed.
func (m Message) Streaming() bool {
	return m.State == StateStreaming
}

// Store holds the messages of one conversation in insertion order. It is the
// scheduler's sink target; appends come from the single pacing loop while the
// UI reads concurrently.
type Store struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]*Message
}

func NewStore() *Store {
	return &Store{byID: make(map[string]*Message)}
}

// AddUser records a sent user message.
func (st *Store) AddUser(content string, images []string) Message {
	st.mu.Lock()
	defer st.mu.Unlock()

	msg := &Message{
		ID:      uuid.NewString(),
		Role:    RoleUser,
		Content: content,
		Images:  images,
		State:   StateCompleted,
	}
	st.order = append(st.order, msg.ID)
	st.byID[msg.ID] = msg
	return *msg
}

// StartAssistant creates the streaming placeholder the fragments will be
// appended to.
func (st *Store) StartAssistant() Message {
	st.mu.Lock()
	defer st.mu.Unlock()

	msg := &Message{
		ID:    uuid.NewString(),
		Role:  RoleAssistant,
		State: StateStreaming,
	}
	st.order = append(st.order, msg.ID)
	st.byID[msg.ID] = msg
	return *msg
}

// AppendFragment appends text to a streaming message. Fragments arriving for
// a completed or errored message are discarded.
func (st *Store) AppendFragment(messageID, text string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	msg, ok := st.byID[messageID]
	if !ok || msg.State != StateStreaming {
		return
	}
	msg.Content += text
}

// FinishMessage moves a streaming message to its terminal state. Finishing
// an already finished message is a no-op.
func (st *Store) FinishMessage(messageID string, errored bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	msg, ok := st.byID[messageID]
	if !ok || msg.State == StateCompleted || msg.State == StateErrored {
		return
	}
	if errored {
		msg.State = StateErrored
	} else {
		msg.State = StateCompleted
	}
}

// Get returns a copy of one message.
func (st *Store) Get(messageID string) (Message, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	msg, ok := st.byID[messageID]
	if !ok {
		return Message{}, false
	}
	return *msg, true
}

// Messages returns copies of all messages in insertion order.
func (st *Store) Messages() []Message {
	st.mu.RLock()
	defer st.mu.RUnlock()

	out := make([]Message, 0, len(st.order))
	for _, id := range st.order {
		out = append(out, *st.byID[id])
	}
	return out
}
