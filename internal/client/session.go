package client

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/RichardoC/relaychat/internal/models"
)

var (
	ErrEmptyInput = errors.New("message is empty")
	ErrBusy       = errors.New("a reply is still streaming")
)

// State is the phase of the current exchange.
type State int

const (
	Idle State = iota
	Sending
	Streaming
	Errored
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sending:
		return "sending"
	case Streaming:
		return "streaming"
	case Errored:
		return "errored"
	}
	return "unknown"
}

// Snapshot is a copy of the session state. Snapshots are never modified after
// they are published.
type Snapshot struct {
	Messages       []models.ChatMessage
	State          State
	Err            error
	InlineErrors   []string
	ConversationID string
}

// Busy reports whether an exchange is in flight.
func (s Snapshot) Busy() bool {
	return s.State == Sending || s.State == Streaming
}

// Session holds one conversation and runs at most one exchange at a time.
type Session struct {
	transport Transport
	onUpdate  func(Snapshot)

	mu       sync.Mutex
	messages []models.ChatMessage
	state    State
	err      error
	inline   []string
	convID   string
}

// NewSession starts a conversation whose first message is systemPrompt.
// onUpdate, if set, receives a snapshot after every state change; it is
// called from the goroutine running Submit.
func NewSession(transport Transport, systemPrompt string, onUpdate func(Snapshot)) *Session {
	s := &Session{transport: transport, onUpdate: onUpdate}
	if systemPrompt != "" {
		s.messages = []models.ChatMessage{{Role: models.RoleSystem, Content: systemPrompt}}
	}
	return s
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		Messages:       slices.Clone(s.messages),
		State:          s.state,
		Err:            s.err,
		InlineErrors:   slices.Clone(s.inline),
		ConversationID: s.convID,
	}
}

// update applies fn under the lock and publishes the resulting state.
func (s *Session) update(fn func()) {
	s.mu.Lock()
	fn()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if s.onUpdate != nil {
		s.onUpdate(snap)
	}
}

// Submit sends input as the next user message and streams the reply into the
// conversation. It blocks until the exchange ends. Empty input and a submit
// during another exchange are rejected without touching the conversation.
func (s *Session) Submit(ctx context.Context, input string) error {
	text := strings.TrimSpace(input)

	s.mu.Lock()
	if text == "" {
		s.mu.Unlock()
		return ErrEmptyInput
	}
	if s.state == Sending || s.state == Streaming {
		s.mu.Unlock()
		return ErrBusy
	}
	s.messages = append(s.messages, models.ChatMessage{Role: models.RoleUser, Content: text})
	s.state = Sending
	s.err = nil
	s.inline = nil
	req := Request{Messages: slices.Clone(s.messages), ConversationID: s.convID}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	if s.onUpdate != nil {
		s.onUpdate(snap)
	}

	st, err := s.transport.Open(ctx, req)
	if err != nil {
		s.fail(err)
		return err
	}
	defer st.Body.Close()

	s.update(func() {
		s.state = Streaming
		if st.ConversationID != "" {
			s.convID = st.ConversationID
		}
		s.messages = append(s.messages, models.ChatMessage{Role: models.RoleAssistant})
	})

	var reply strings.Builder
	err = Consume(st.Body,
		func(token string) {
			reply.WriteString(token)
			assistant := models.ChatMessage{Role: models.RoleAssistant, Content: reply.String()}
			s.update(func() {
				s.messages[len(s.messages)-1] = assistant
			})
		},
		func(msg string) {
			s.update(func() {
				s.inline = append(s.inline, msg)
			})
		})
	if err != nil {
		s.fail(err)
		return err
	}

	s.update(func() { s.state = Idle })
	return nil
}

func (s *Session) fail(err error) {
	s.update(func() {
		s.state = Errored
		s.err = err
	})
}
