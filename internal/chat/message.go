package chat

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a single message in a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is the payload the widget posts to the relay and the relay
// forwards upstream.
type Request struct {
	Messages []Message `json:"messages"`
}

// Reply is the expected upstream success shape.
type Reply struct {
	Message Message `json:"message"`
}

// NewUserRequest wraps a single user-authored text.
func NewUserRequest(text string) Request {
	return Request{Messages: []Message{{Role: RoleUser, Content: text}}}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}
