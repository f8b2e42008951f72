package pipeline

import (
	"strings"
	"time"

	"personabot/internal/domain"
)

// Role tags a transcript segment.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Segment is one role-tagged line of the conversation.
type Segment struct {
	Role      Role
	Speaker   string
	Text      string
	Generator domain.Generator
	At        time.Time
}

// Context is the assembled view a route handler works from: persona preamble,
// prior turns oldest first, and the current input.
type Context struct {
	AgentName string
	System    string
	History   []Segment
	Input     domain.InputObject
}

// Transcript renders the prior turns followed by the current input.
func (c *Context) Transcript() string {
	var sb strings.Builder
	for _, s := range c.History {
		writeSegment(&sb, s)
	}
	writeSegment(&sb, Segment{Role: RoleUser, Speaker: c.Input.UserID, Text: c.Input.Text})
	return strings.TrimRight(sb.String(), "\n")
}

// String renders the full prompt: system preamble then the transcript.
func (c *Context) String() string {
	if c == nil {
		return ""
	}
	transcript := c.Transcript()
	if c.System == "" {
		return transcript
	}
	return c.System + "\n\n" + transcript
}

func writeSegment(sb *strings.Builder, s Segment) {
	sb.WriteString("[")
	sb.WriteString(string(s.Role))
	if s.Speaker != "" {
		sb.WriteString(":")
		sb.WriteString(s.Speaker)
	}
	sb.WriteString("] ")
	sb.WriteString(s.Text)
	sb.WriteString("\n")
}
