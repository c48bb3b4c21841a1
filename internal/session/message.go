// Package session implements the Context Session: bounded message
// history with compaction, pinned content, token accounting, and the
// MCP client pool.
package session

import "time"

// Role is a message's position in the wire conversation.
type Role string

const (
	RoleSystem     Role = "system"
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolResult Role = "tool-result"
)

// ToolUseBlock is a structured tool_use block inside an assistant
// message.
type ToolUseBlock struct {
	CallID string
	Name   string
	Input  string
}

// ToolResultBlock is a structured tool_result block inside a
// tool-result message.
type ToolResultBlock struct {
	CallID  string
	Content string
	IsError bool
}

// Message is one entry in session history.
type Message struct {
	Role       Role
	Text       string
	ToolUses   []ToolUseBlock
	ToolResults []ToolResultBlock
	TokenCount int
	Pinned     bool
	Timestamp  time.Time
}

// OutstandingToolUseIDs returns the call_ids of all of this message's
// tool_use blocks; whether a later tool_result has already satisfied
// them is decided by the Session, not here.
func (m Message) OutstandingToolUseIDs() []string {
	ids := make([]string, 0, len(m.ToolUses))
	for _, tu := range m.ToolUses {
		ids = append(ids, tu.CallID)
	}
	return ids
}
