package types

// Role identifies the speaker of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Normalize maps any unrecognized role to RoleUser.
func (r Role) Normalize() Role {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return r
	default:
		return RoleUser
	}
}

// ConversationTurn is one message of a conversation. Turn order is significant.
type ConversationTurn struct {
	// Speaker of the turn: user, assistant or system.
	Role Role `json:"role"`
	// Raw message text.
	Content string `json:"content"`
}

// ModelEntry describes a model artifact discovered on disk.
type ModelEntry struct {
	// Display name derived from the file base name.
	Name string `json:"name"`
	// Absolute path to the GGUF file.
	Path string `json:"path"`
	// File size in bytes.
	SizeBytes int64 `json:"size_bytes"`
	// Whether this is the file the locator would load.
	Selected bool `json:"selected"`
}
