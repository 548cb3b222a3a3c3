package domain

// Role identifies the author of a Turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one logical message in the conversation. The last Turn is mutable
// while a reply is streaming; all prior Turns are immutable once committed.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Conversation is an ordered list of Turns. It does no locking of its own;
// the owning controller serializes all mutation.
type Conversation struct {
	turns []Turn
}

// NewConversation creates a Conversation, optionally seeded with a system turn.
func NewConversation(system string) *Conversation {
	c := &Conversation{}
	if system != "" {
		c.turns = append(c.turns, Turn{Role: RoleSystem, Content: system})
	}
	return c
}

// Append commits a new Turn at the end of the conversation.
func (c *Conversation) Append(role Role, content string) {
	c.turns = append(c.turns, Turn{Role: role, Content: content})
}

// SetLastContent replaces the content of the last Turn. It is a no-op on an
// empty conversation.
func (c *Conversation) SetLastContent(content string) {
	if len(c.turns) == 0 {
		return
	}
	c.turns[len(c.turns)-1].Content = content
}

// Last returns the most recent Turn.
func (c *Conversation) Last() (Turn, bool) {
	if len(c.turns) == 0 {
		return Turn{}, false
	}
	return c.turns[len(c.turns)-1], true
}

// Turns returns a copy of the committed turn list.
func (c *Conversation) Turns() []Turn {
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Len reports the number of turns.
func (c *Conversation) Len() int {
	return len(c.turns)
}
