package llm

import (
	"encoding/json"
	"sort"
	"strings"
)

// Assembler reconstructs a full assistant message from streamed deltas.
type Assembler struct {
	// id captures the message id from message_start.
	id string
	// model records the model identifier.
	model string
	// usage merges usage reports; message_delta may carry output tokens only.
	usage Usage
	// stopReason stores the latest stop reason.
	stopReason string
	// blocks stores in-progress blocks keyed by streaming index.
	blocks map[int]*blockState
	// done is set once message_stop arrives.
	done bool
}

// blockState accumulates a single content block across deltas.
type blockState struct {
	// block holds the fields declared at content_block_start.
	block ContentBlock
	// text accumulates text or thinking deltas.
	text strings.Builder
	// partialJSON accumulates tool_use input fragments.
	partialJSON strings.Builder
	// signature accumulates signature deltas for thinking blocks.
	signature strings.Builder
	// closed is set once content_block_stop finalizes the block.
	closed bool
}

// NewAssembler creates an assembler for one streamed message.
func NewAssembler() *Assembler {
	return &Assembler{blocks: map[int]*blockState{}}
}

// Apply ingests one stream event and updates the assembler state.
func (a *Assembler) Apply(event StreamEvent) {
	switch event.Type {
	case EventMessageStart:
		if event.Message == nil {
			return
		}
		a.id = event.Message.ID
		a.model = event.Message.Model
		a.usage.Add(event.Message.Usage)
	case EventContentBlockStart:
		if event.ContentBlock == nil {
			return
		}
		state := &blockState{block: *event.ContentBlock}
		// Seed scratch buffers with any content already present at start.
		if state.block.Text != "" {
			state.text.WriteString(state.block.Text)
			state.block.Text = ""
		}
		if state.block.Thinking != "" {
			state.text.WriteString(state.block.Thinking)
			state.block.Thinking = ""
		}
		if state.block.Signature != "" {
			state.signature.WriteString(state.block.Signature)
			state.block.Signature = ""
		}
		a.blocks[event.Index] = state
	case EventContentBlockDelta:
		state := a.blocks[event.Index]
		if state == nil || event.Delta == nil {
			return
		}
		switch event.Delta.Type {
		case DeltaText:
			state.text.WriteString(event.Delta.Text)
		case DeltaInputJSON:
			state.partialJSON.WriteString(event.Delta.PartialJSON)
		case DeltaThinking:
			state.text.WriteString(event.Delta.Thinking)
		case DeltaSignature:
			state.signature.WriteString(event.Delta.Signature)
		}
	case EventContentBlockStop:
		state := a.blocks[event.Index]
		if state == nil {
			return
		}
		state.closed = true
	case EventMessageDelta:
		if event.StopReason != "" {
			a.stopReason = event.StopReason
		}
		if event.Usage != nil {
			a.usage.Add(*event.Usage)
		}
	case EventMessageStop:
		a.done = true
	}
}

// Done reports whether message_stop has been seen.
func (a *Assembler) Done() bool {
	return a.done
}

// StopReason returns the recorded stop reason, if any.
func (a *Assembler) StopReason() string {
	return a.stopReason
}

// Usage returns the merged usage for the message.
func (a *Assembler) Usage() Usage {
	return a.usage
}

// ID returns the message id from message_start, if seen.
func (a *Assembler) ID() string {
	return a.id
}

// Model returns the model identifier, if seen.
func (a *Assembler) Model() string {
	return a.model
}

// Message finalizes and returns the assembled assistant message. Blocks are
// emitted in streaming index order. Tool_use inputs that fail to parse become
// empty-object inputs so the model can recover on the next turn.
func (a *Assembler) Message() Message {
	indexes := make([]int, 0, len(a.blocks))
	for index := range a.blocks {
		indexes = append(indexes, index)
	}
	sort.Ints(indexes)

	content := make([]ContentBlock, 0, len(indexes))
	for _, index := range indexes {
		state := a.blocks[index]
		block := state.block
		switch block.Type {
		case BlockText:
			block.Text = state.text.String()
		case BlockThinking:
			block.Thinking = state.text.String()
			if sig := state.signature.String(); sig != "" {
				block.Signature = sig
			}
		case BlockToolUse:
			raw := strings.TrimSpace(state.partialJSON.String())
			if raw == "" {
				raw = string(block.Input)
			}
			if raw == "" || !json.Valid([]byte(raw)) {
				raw = "{}"
			}
			block.Input = json.RawMessage(raw)
		}
		content = append(content, block)
	}

	return Message{Role: RoleAssistant, Content: content}
}
