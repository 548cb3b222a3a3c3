// Package events decodes the remote endpoint's event stream into typed
// StreamEvents, normalizing the two upstream protocol spellings of each
// logical event to a single internal kind.
package events

import "encoding/json"

// Kind tags a StreamEvent variant.
type Kind int

const (
	// KindIgnore is the explicit fallback for unrecognized types, keepalive
	// noise and unparseable payloads. It never fails the pipeline.
	KindIgnore Kind = iota
	KindTextDelta
	KindCompleted
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindTextDelta:
		return "text-delta"
	case KindCompleted:
		return "completed"
	case KindError:
		return "error"
	default:
		return "ignore"
	}
}

// StreamEvent is one normalized unit decoded from either an SSE frame or a
// channel message. Delta is set only for text deltas, Message only for errors.
type StreamEvent struct {
	Kind    Kind
	Delta   string
	Message string
}

// kinds maps the closed set of recognized upstream type spellings to internal
// kinds. Unlisted types fall through to KindIgnore.
var kinds = map[string]Kind{
	"response.output_text.delta": KindTextDelta,
	"response.text.delta":        KindTextDelta,
	"response.refusal.delta":     KindTextDelta,
	"response.completed":         KindCompleted,
	"response.done":              KindCompleted,
	"response.error":             KindError,
	"error":                      KindError,
}

type envelope struct {
	Type  string  `json:"type"`
	Delta *string `json:"delta"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

const genericErrorMessage = "upstream error"

// Classify decodes one complete JSON payload into a StreamEvent. Malformed
// payloads classify as KindIgnore rather than failing.
func Classify(payload []byte) StreamEvent {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return StreamEvent{Kind: KindIgnore}
	}
	switch kinds[env.Type] {
	case KindTextDelta:
		if env.Delta == nil {
			return StreamEvent{Kind: KindIgnore}
		}
		return StreamEvent{Kind: KindTextDelta, Delta: *env.Delta}
	case KindCompleted:
		return StreamEvent{Kind: KindCompleted}
	case KindError:
		msg := genericErrorMessage
		if env.Error != nil && env.Error.Message != "" {
			msg = env.Error.Message
		}
		return StreamEvent{Kind: KindError, Message: msg}
	default:
		return StreamEvent{Kind: KindIgnore}
	}
}
