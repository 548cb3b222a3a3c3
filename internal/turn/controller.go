// Package turn sequences outbound user turns against the negotiated event
// channel and folds streamed reply events into the conversation.
package turn

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/aegisvoice/voicebridge/internal/domain"
	"github.com/aegisvoice/voicebridge/internal/events"
)

// placeholder is the assistant turn content shown while a reply streams.
const placeholder = "…"

// Ensurer is the connect operation the controller depends on.
type Ensurer interface {
	EnsureConnected(ctx context.Context) (domain.Channel, error)
}

// Controller owns the conversation and the reply accumulator. Wire
// HandleMessage as the channel's inbound message handler.
type Controller struct {
	ensurer  Ensurer
	onUpdate func([]domain.Turn)

	mu        sync.Mutex
	conv      *domain.Conversation
	acc       strings.Builder
	streaming bool
}

// NewController creates a Controller. onUpdate, if non-nil, is invoked with a
// snapshot of the conversation after every visible change.
func NewController(ensurer Ensurer, onUpdate func([]domain.Turn)) *Controller {
	return &Controller{
		ensurer:  ensurer,
		onUpdate: onUpdate,
		conv:     domain.NewConversation(""),
	}
}

// Turns returns a snapshot of the conversation.
func (c *Controller) Turns() []domain.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conv.Turns()
}

func (c *Controller) render() {
	if c.onUpdate == nil {
		return
	}
	c.mu.Lock()
	snapshot := c.conv.Turns()
	c.mu.Unlock()
	c.onUpdate(snapshot)
}

// SendTurn appends the user's turn plus a placeholder reply, connects, and
// submits the turn as the protocol's two-step idiom: register the content as
// a conversation item, then request a response generation over it.
//
// A SendTurn issued while a prior reply is still streaming interrupts it: the
// prior accumulator is abandoned and subsequent events apply to the new
// placeholder.
func (c *Controller) SendTurn(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	c.mu.Lock()
	if c.streaming {
		log.Printf("[turn] interrupting in-flight reply")
	}
	c.conv.Append(domain.RoleUser, text)
	c.conv.Append(domain.RoleAssistant, placeholder)
	c.acc.Reset()
	c.streaming = true
	c.mu.Unlock()
	c.render()

	ch, err := c.ensurer.EnsureConnected(ctx)
	if err != nil {
		c.failCurrent(err)
		return err
	}

	if err := ch.Send(newItemCreate(text)); err != nil {
		c.failCurrent(err)
		return err
	}
	if err := ch.Send(newResponseCreate()); err != nil {
		c.failCurrent(err)
		return err
	}
	return nil
}

// failCurrent degrades the in-progress assistant turn to an error display.
func (c *Controller) failCurrent(err error) {
	c.mu.Lock()
	c.conv.SetLastContent("Error: " + userMessage(err))
	c.streaming = false
	c.acc.Reset()
	c.mu.Unlock()
	c.render()
}

// HandleMessage decodes one inbound channel message and applies it to the
// conversation. Unrecognized and unparseable messages are ignored; an
// upstream error event degrades the current turn but leaves the channel
// usable for the next one.
func (c *Controller) HandleMessage(data []byte) {
	ev := events.Classify(data)

	c.mu.Lock()
	switch ev.Kind {
	case events.KindTextDelta:
		if !c.streaming {
			c.mu.Unlock()
			return
		}
		c.acc.WriteString(ev.Delta)
		c.conv.SetLastContent(c.acc.String())
	case events.KindCompleted:
		if !c.streaming {
			c.mu.Unlock()
			return
		}
		c.streaming = false
		c.acc.Reset()
	case events.KindError:
		if !c.streaming {
			c.mu.Unlock()
			return
		}
		c.conv.SetLastContent("Error: " + ev.Message)
		c.streaming = false
		c.acc.Reset()
	case events.KindIgnore:
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.render()
}

// userMessage derives the user-visible text for a failure.
func userMessage(err error) string {
	var (
		se  *domain.SessionError
		ge  *domain.SignalingError
		ce  *domain.ChannelError
		ste *domain.StreamError
	)
	switch {
	case errors.As(err, &se):
		return "could not start a session: " + se.Reason
	case errors.As(err, &ge):
		return fmt.Sprintf("signaling failed (status %d)", ge.Status)
	case errors.As(err, &ce):
		return ce.Reason
	case errors.As(err, &ste):
		return ste.Message
	default:
		return err.Error()
	}
}
