package llm

import "encoding/json"

// Role identifies a message participant.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Block type discriminators used on the wire.
const (
	BlockText       = "text"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
	BlockThinking   = "thinking"
	BlockImage      = "image"
)

// Stop reasons reported by the API.
const (
	StopEndTurn      = "end_turn"
	StopMaxTokens    = "max_tokens"
	StopStopSequence = "stop_sequence"
	StopToolUse      = "tool_use"
)

// Message is a single conversation entry: a role plus ordered content blocks.
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock is one tagged piece of message content. The Type field selects
// which of the remaining fields are meaningful.
type ContentBlock struct {
	Type string `json:"type"`

	// Text blocks.
	Text string `json:"text,omitempty"`

	// Tool use blocks.
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// Tool result blocks.
	ToolUseID string              `json:"tool_use_id,omitempty"`
	Content   []ToolResultContent `json:"content,omitempty"`
	IsError   bool                `json:"is_error,omitempty"`

	// Thinking blocks. The signature must round-trip byte-exact; the server
	// rejects requests that echo a mutated signature.
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`

	// Image blocks.
	Source *ImageSource `json:"source,omitempty"`
}

// ToolResultContent is one piece of a structured tool result.
type ToolResultContent struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *ImageSource `json:"source,omitempty"`
}

// ImageSource carries a base64 image payload.
type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// TextBlock builds a plain text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ToolResultBlock builds a text tool result for the given tool use id.
func ToolResultBlock(toolUseID string, text string, isError bool) ContentBlock {
	return ContentBlock{
		Type:      BlockToolResult,
		ToolUseID: toolUseID,
		Content:   []ToolResultContent{{Type: BlockText, Text: text}},
		IsError:   isError,
	}
}

// UserText builds a user message with a single text block.
func UserText(text string) Message {
	return Message{Role: RoleUser, Content: []ContentBlock{TextBlock(text)}}
}

// AssistantText builds an assistant message with a single text block.
func AssistantText(text string) Message {
	return Message{Role: RoleAssistant, Content: []ContentBlock{TextBlock(text)}}
}

// PlainText concatenates the text blocks of a message.
func (m Message) PlainText() string {
	var out string
	for _, block := range m.Content {
		if block.Type != BlockText || block.Text == "" {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += block.Text
	}
	return out
}

// ToolUses returns the tool_use blocks of a message in emission order.
func (m Message) ToolUses() []ContentBlock {
	var uses []ContentBlock
	for _, block := range m.Content {
		if block.Type == BlockToolUse {
			uses = append(uses, block)
		}
	}
	return uses
}

// Usage reports token counts for a request. Fields the server omits stay zero.
type Usage struct {
	InputTokens              int64 `json:"input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
}

// Add accumulates another usage report into this one.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheCreationInputTokens += other.CacheCreationInputTokens
	u.CacheReadInputTokens += other.CacheReadInputTokens
}

// CacheControl marks content for prompt caching.
type CacheControl struct {
	Type string `json:"type"`
}

// EphemeralCache returns the ephemeral cache control marker.
func EphemeralCache() *CacheControl {
	return &CacheControl{Type: "ephemeral"}
}

// SystemContent is one block of the structured system prompt.
type SystemContent struct {
	Type         string        `json:"type"`
	Text         string        `json:"text"`
	CacheControl *CacheControl `json:"cache_control,omitempty"`
}

// ThinkingConfig enables extended thinking with a token budget.
type ThinkingConfig struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens,omitempty"`
}

// ToolDefinition describes a tool to the API.
type ToolDefinition struct {
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	InputSchema  map[string]any `json:"input_schema"`
	CacheControl *CacheControl  `json:"cache_control,omitempty"`
}

// Request is a single Messages API call. Absent optionals are omitted from
// the serialized body.
type Request struct {
	Model         string           `json:"model"`
	MaxTokens     int              `json:"max_tokens"`
	Messages      []Message        `json:"messages"`
	System        []SystemContent  `json:"system,omitempty"`
	Tools         []ToolDefinition `json:"tools,omitempty"`
	StopSequences []string         `json:"stop_sequences,omitempty"`
	Temperature   *float64         `json:"temperature,omitempty"`
	Thinking      *ThinkingConfig  `json:"thinking,omitempty"`
	Stream        bool             `json:"stream"`
}

// MessageStart is the message envelope carried by a message_start event.
type MessageStart struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       Role           `json:"role"`
	Model      string         `json:"model"`
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      Usage          `json:"usage"`
}

// Stream event type discriminators.
const (
	EventMessageStart      = "message_start"
	EventContentBlockStart = "content_block_start"
	EventContentBlockDelta = "content_block_delta"
	EventContentBlockStop  = "content_block_stop"
	EventMessageDelta      = "message_delta"
	EventMessageStop       = "message_stop"
	EventPing              = "ping"
	EventError             = "error"
)

// Delta kind discriminators within content_block_delta events.
const (
	DeltaText      = "text_delta"
	DeltaInputJSON = "input_json_delta"
	DeltaThinking  = "thinking_delta"
	DeltaSignature = "signature_delta"
)

// Delta is the payload of a content_block_delta event.
type Delta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	Thinking    string `json:"thinking,omitempty"`
	Signature   string `json:"signature,omitempty"`
}

// APIErrorDetail is the error body carried by an error event.
type APIErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// StreamEvent is one typed event decoded from the SSE stream. Type selects
// which fields are populated.
type StreamEvent struct {
	Type string

	// message_start
	Message *MessageStart

	// content_block_start / content_block_delta / content_block_stop
	Index        int
	ContentBlock *ContentBlock
	Delta        *Delta

	// message_delta
	StopReason string
	Usage      *Usage

	// error
	Error *APIErrorDetail
}
