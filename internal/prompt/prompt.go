// Package prompt renders conversations into the ChatML turn template.
package prompt

import (
	"strings"

	"llmcore/pkg/types"
)

const (
	roleStart = "<|im_start|>"
	// EndOfTurn closes a turn. Models sometimes echo it at the end of a reply.
	EndOfTurn = "<|im_end|>"
)

// Format builds the prompt for turns, preceded by the system instruction
// when non-nil, and ends with an open assistant turn.
func Format(turns []types.ConversationTurn, system *string) string {
	var b strings.Builder
	if system != nil {
		writeTurn(&b, types.RoleSystem, *system)
	}
	for _, t := range turns {
		writeTurn(&b, t.Role.Normalize(), t.Content)
	}
	b.WriteString(roleStart)
	b.WriteString(string(types.RoleAssistant))
	b.WriteByte('\n')
	return b.String()
}

func writeTurn(b *strings.Builder, role types.Role, content string) {
	b.WriteString(roleStart)
	b.WriteString(string(role))
	b.WriteByte('\n')
	b.WriteString(content)
	b.WriteString(EndOfTurn)
	b.WriteByte('\n')
}
