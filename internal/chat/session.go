package chat

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"

	"github.com/aegisvoice/voicebridge/internal/domain"
	"github.com/aegisvoice/voicebridge/internal/events"
)

const (
	placeholder = "…"
	noOutput    = "(no output)"
)

// Streamer is the reply stream operation the session depends on.
type Streamer interface {
	Stream(ctx context.Context, history []domain.Turn, fn func(events.StreamEvent) error) error
}

// Session owns a text-mode conversation. Send streams the reply
// asynchronously; a new Send cancels the stream still in flight so two
// replies never interleave into one turn.
type Session struct {
	client   Streamer
	onUpdate func([]domain.Turn)

	mu     sync.Mutex
	conv   *domain.Conversation
	acc    strings.Builder
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSession creates a Session. system, if non-empty, seeds the conversation
// with a system turn. onUpdate, if non-nil, receives a snapshot after every
// visible change.
func NewSession(client Streamer, system string, onUpdate func([]domain.Turn)) *Session {
	return &Session{
		client:   client,
		onUpdate: onUpdate,
		conv:     domain.NewConversation(system),
	}
}

// Turns returns a snapshot of the conversation.
func (s *Session) Turns() []domain.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv.Turns()
}

// Wait blocks until no reply stream is in flight.
func (s *Session) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (s *Session) render() {
	if s.onUpdate == nil {
		return
	}
	s.mu.Lock()
	snapshot := s.conv.Turns()
	s.mu.Unlock()
	s.onUpdate(snapshot)
}

// Send appends the user's turn plus a placeholder reply and starts streaming
// the assistant's reply in the background. An in-flight reply is canceled
// first. Empty or whitespace-only text is a no-op.
func (s *Session) Send(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	s.mu.Lock()
	if s.cancel != nil {
		log.Printf("[chat] interrupting in-flight reply")
		s.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	done := make(chan struct{})
	s.done = done

	s.conv.Append(domain.RoleUser, text)
	s.conv.Append(domain.RoleAssistant, placeholder)
	s.acc.Reset()
	history := s.conv.Turns()
	// The placeholder is display-only; the upstream sees committed turns.
	history = history[:len(history)-1]
	s.mu.Unlock()
	s.render()

	go s.run(ctx, cancel, done, history)
}

// Cancel stops the reply stream in flight, if any.
func (s *Session) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Session) run(ctx context.Context, cancel context.CancelFunc, done chan struct{}, history []domain.Turn) {
	defer close(done)
	defer cancel()

	err := s.client.Stream(ctx, history, func(ev events.StreamEvent) error {
		return s.apply(ctx, done, ev)
	})

	s.mu.Lock()
	if s.done != done {
		// A newer Send took over this slot; nothing left to finalize.
		s.mu.Unlock()
		return
	}
	s.cancel = nil
	s.done = nil

	switch {
	case err == nil || errors.Is(err, errStreamDone):
		if s.acc.Len() == 0 {
			s.conv.SetLastContent(noOutput)
		}
	case errors.Is(err, context.Canceled):
		// Interrupted locally; leave whatever accumulated.
	default:
		s.conv.SetLastContent("Error: " + streamMessage(err))
	}
	s.acc.Reset()
	s.mu.Unlock()
	s.render()
}

// errStreamDone stops DecodeSSE early once the reply completed.
var errStreamDone = errors.New("stream complete")

func (s *Session) apply(ctx context.Context, done chan struct{}, ev events.StreamEvent) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	switch ev.Kind {
	case events.KindTextDelta:
		s.mu.Lock()
		if s.done != done {
			// A newer Send owns the accumulator now.
			s.mu.Unlock()
			return context.Canceled
		}
		s.acc.WriteString(ev.Delta)
		s.conv.SetLastContent(s.acc.String())
		s.mu.Unlock()
		s.render()
	case events.KindCompleted:
		return errStreamDone
	case events.KindError:
		return &domain.StreamError{Message: ev.Message}
	}
	return nil
}

func streamMessage(err error) string {
	var se *domain.StreamError
	if errors.As(err, &se) {
		if se.Message != "" {
			return se.Message
		}
		return se.Error()
	}
	return err.Error()
}
