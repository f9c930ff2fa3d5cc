// Package session persists conversations as JSON files and tracks context
// window usage.
package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/chetcli/chet/internal/llm"
	"github.com/google/uuid"
)

// Mode selects the agent's operating mode for a session.
type Mode string

const (
	// ModeNormal is the full tool set.
	ModeNormal Mode = "normal"
	// ModePlan restricts the registry to read-only tools.
	ModePlan Mode = "plan"
)

// maxLabelLength bounds auto-generated labels.
const maxLabelLength = 60

// Session is one persistent conversation.
type Session struct {
	ID              uuid.UUID     `json:"id"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
	Label           string        `json:"label,omitempty"`
	Mode            Mode          `json:"mode"`
	Model           string        `json:"model,omitempty"`
	Messages        []llm.Message `json:"messages"`
	CumulativeUsage llm.Usage     `json:"cumulative_usage"`
}

// New creates an empty session in normal mode, recorded against the model
// it will converse with.
func New(model string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        uuid.New(),
		CreatedAt: now,
		UpdatedAt: now,
		Mode:      ModeNormal,
		Model:     model,
		Messages:  []llm.Message{},
	}
}

// ShortID is the display prefix of the session id.
func (s *Session) ShortID() string {
	return s.ID.String()[:8]
}

// Touch bumps the updated timestamp.
func (s *Session) Touch() {
	s.UpdatedAt = time.Now().UTC()
}

// EnsureLabel sets the label from the first user prompt when none is set:
// the trimmed first line, truncated.
func (s *Session) EnsureLabel(prompt string) {
	if s.Label != "" {
		return
	}
	line := strings.TrimSpace(prompt)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	if len(line) > maxLabelLength {
		line = line[:maxLabelLength-3] + "..."
	}
	s.Label = line
}

// Preview returns the first user text line for listings.
func (s *Session) Preview() string {
	for _, msg := range s.Messages {
		if msg.Role != llm.RoleUser {
			continue
		}
		text := strings.TrimSpace(msg.PlainText())
		if text == "" {
			continue
		}
		if i := strings.IndexByte(text, '\n'); i >= 0 {
			text = text[:i]
		}
		if len(text) > 80 {
			text = text[:77] + "..."
		}
		return text
	}
	return ""
}

// Summary is a lightweight view of a session for listing.
type Summary struct {
	ID           uuid.UUID
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Label        string
	Mode         Mode
	Model        string
	MessageCount int
	Preview      string
}

// ShortID is the display prefix of the session id.
func (s Summary) ShortID() string {
	return s.ID.String()[:8]
}

// Age renders a human-readable time since last update.
func (s Summary) Age() string {
	minutes := int(time.Since(s.UpdatedAt).Minutes())
	switch {
	case minutes < 1:
		return "just now"
	case minutes < 60:
		return fmt.Sprintf("%dm ago", minutes)
	case minutes < 1440:
		return fmt.Sprintf("%dh ago", minutes/60)
	default:
		return fmt.Sprintf("%dd ago", minutes/1440)
	}
}

// summary builds the listing view of a session.
func (s *Session) summary() Summary {
	return Summary{
		ID:           s.ID,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
		Label:        s.Label,
		Mode:         s.Mode,
		Model:        s.Model,
		MessageCount: len(s.Messages),
		Preview:      s.Preview(),
	}
}
