package turn

import "github.com/oklog/ulid/v2"

// clientEvent is the outbound channel message envelope. The upstream protocol
// models "append to context" and "generate" as separable actions, so a user
// turn is always two distinct messages.
type clientEvent struct {
	EventID  string            `json:"event_id"`
	Type     string            `json:"type"`
	Item     *conversationItem `json:"item,omitempty"`
	Response *responseOptions  `json:"response,omitempty"`
}

type conversationItem struct {
	Type    string        `json:"type"`
	Role    string        `json:"role"`
	Content []itemContent `json:"content"`
}

type itemContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type responseOptions struct {
	Modalities []string `json:"modalities"`
}

func newItemCreate(text string) clientEvent {
	return clientEvent{
		EventID: ulid.Make().String(),
		Type:    "conversation.item.create",
		Item: &conversationItem{
			Type: "message",
			Role: "user",
			Content: []itemContent{
				{Type: "input_text", Text: text},
			},
		},
	}
}

func newResponseCreate() clientEvent {
	return clientEvent{
		EventID: ulid.Make().String(),
		Type:    "response.create",
		Response: &responseOptions{
			Modalities: []string{"text"},
		},
	}
}
