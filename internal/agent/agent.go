// Package agent drives the conversation loop: provider call, content
// assembly, permission-gated tool dispatch, repeat until end of turn.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/chetcli/chet/internal/llm"
	"github.com/chetcli/chet/internal/permission"
	"github.com/chetcli/chet/internal/tools"
	"go.uber.org/zap"
)

// maxProviderCalls bounds consecutive provider calls within one user turn.
const maxProviderCalls = 50

// ErrTurnLimit terminates a turn that exceeded the provider-call budget.
var ErrTurnLimit = errors.New("turn limit exceeded")

// ErrCancelled reports a user-cancelled turn. Whatever partial assistant
// message existed has already been appended to the transcript.
var ErrCancelled = errors.New("cancelled")

// Agent executes user turns against a provider with tool dispatch.
type Agent struct {
	// Provider issues streaming model requests.
	Provider llm.Provider
	// Registry holds the dispatchable tools.
	Registry *tools.Registry
	// Permissions gates every tool invocation; shared with subagents.
	Permissions *permission.Engine
	// Model and MaxTokens parameterize each request.
	Model     string
	MaxTokens int
	// SystemPrompt is sent as a single cache-controlled text block.
	SystemPrompt string
	// ThinkingBudget enables extended thinking when positive.
	ThinkingBudget int
	// ReadOnly restricts the advertised registry to the read-only subset
	// (plan mode).
	ReadOnly bool
	// CWD is handed to tools.
	CWD string
	// Observer receives progress events; nil means silent.
	Observer Observer
	// Log is optional debug logging.
	Log *zap.Logger
}

// Run executes one user turn. The transcript is borrowed by pointer: each
// iteration hands the slice to the request and takes it back afterwards; it
// is never copied, so a long transcript stays O(1) per provider call.
//
// On return the transcript always satisfies the pairing invariant: every
// tool_use block in an appended assistant message is answered by exactly one
// tool_result in the immediately following user message.
func (a *Agent) Run(ctx context.Context, messages *[]llm.Message) (llm.Usage, error) {
	observer := a.Observer
	if observer == nil {
		observer = NopObserver{}
	}
	log := a.Log
	if log == nil {
		log = zap.NewNop()
	}

	msgs := *messages
	defer func() { *messages = msgs }()

	var totalUsage llm.Usage

	for call := 0; call < maxProviderCalls; call++ {
		if err := ctx.Err(); err != nil {
			return totalUsage, ErrCancelled
		}

		request := &llm.Request{
			Model:     a.Model,
			MaxTokens: a.MaxTokens,
			Messages:  msgs,
			Tools:     a.Registry.Definitions(a.ReadOnly),
			Stream:    true,
		}
		if a.SystemPrompt != "" {
			request.System = []llm.SystemContent{{
				Type:         "text",
				Text:         a.SystemPrompt,
				CacheControl: llm.EphemeralCache(),
			}}
		}
		if a.ThinkingBudget > 0 {
			request.Thinking = &llm.ThinkingConfig{Type: "enabled", BudgetTokens: a.ThinkingBudget}
		}

		stream, err := a.Provider.Stream(ctx, request)
		msgs = request.Messages
		if err != nil {
			if ctx.Err() != nil {
				return totalUsage, ErrCancelled
			}
			return totalUsage, err
		}

		assembler := llm.NewAssembler()
		cancelled, streamErr := a.consumeStream(ctx, stream, assembler, observer)
		stream.Close()

		assistant := assembler.Message()
		totalUsage.Add(assembler.Usage())

		if streamErr != nil {
			// Keep whatever was assembled before the failure; answering its
			// tool_use blocks keeps the transcript pairing intact.
			if len(assistant.Content) > 0 {
				msgs = append(msgs, assistant)
				msgs = a.answerPendingToolUses(msgs, assistant, observer, "stream interrupted")
			}
			return totalUsage, streamErr
		}
		if cancelled {
			// Keep whatever partial message exists, skip tool dispatch.
			if len(assistant.Content) > 0 {
				msgs = append(msgs, assistant)
				msgs = a.answerPendingToolUses(msgs, assistant, observer, "cancelled")
			}
			return totalUsage, ErrCancelled
		}

		if len(assistant.Content) > 0 {
			msgs = append(msgs, assistant)
		}

		toolUses := assistant.ToolUses()
		if assembler.StopReason() != llm.StopToolUse || len(toolUses) == 0 {
			observer.Usage(totalUsage)
			observer.Done()
			return totalUsage, nil
		}

		results, dispatchCancelled := a.dispatchTools(ctx, toolUses, observer, log)
		msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: results})
		if dispatchCancelled {
			return totalUsage, ErrCancelled
		}
	}

	return totalUsage, ErrTurnLimit
}

// consumeStream folds stream events through the assembler, forwarding deltas
// to the observer. Returns cancelled=true when the context fired mid-stream.
func (a *Agent) consumeStream(
	ctx context.Context,
	stream llm.Stream,
	assembler *llm.Assembler,
	observer Observer,
) (cancelled bool, err error) {
	for {
		if ctx.Err() != nil {
			return true, nil
		}
		event, recvErr := stream.Recv()
		if recvErr != nil {
			if recvErr == io.EOF {
				return false, nil
			}
			if ctx.Err() != nil || errors.Is(recvErr, context.Canceled) {
				return true, nil
			}
			return false, recvErr
		}

		assembler.Apply(event)

		switch event.Type {
		case llm.EventContentBlockDelta:
			if event.Delta == nil {
				continue
			}
			switch event.Delta.Type {
			case llm.DeltaText:
				observer.TextDelta(event.Delta.Text)
			case llm.DeltaThinking:
				observer.ThinkingDelta(event.Delta.Thinking)
			}
		case llm.EventError:
			return false, &llm.APIError{
				Kind:    llm.ErrKindServer,
				Message: fmt.Sprintf("%s: %s", event.Error.Type, event.Error.Message),
			}
		case llm.EventMessageStop:
			return false, nil
		}
	}
}

// dispatchTools runs the turn's tool_use blocks sequentially in emission
// order and returns one result per block, in the same order. A cancellation
// observed between or during tools answers the remaining blocks with
// cancelled errors so the pairing invariant holds.
func (a *Agent) dispatchTools(
	ctx context.Context,
	toolUses []llm.ContentBlock,
	observer Observer,
	log *zap.Logger,
) (results []llm.ContentBlock, cancelled bool) {
	toolCtx := tools.Context{
		CWD:         a.CWD,
		Permissions: a.Permissions,
		Events:      observerSink{observer: observer},
	}

	for i, use := range toolUses {
		if ctx.Err() != nil {
			for _, pending := range toolUses[i:] {
				results = append(results, llm.ToolResultBlock(pending.ID, "cancelled", true))
			}
			return results, true
		}

		if a.ReadOnly && !a.Registry.Allowed(use.Name, true) {
			reason := fmt.Sprintf("tool %q is not available in plan mode", use.Name)
			observer.ToolBlocked(use.Name, reason)
			results = append(results, llm.ToolResultBlock(use.ID, reason, true))
			continue
		}

		decision := a.Permissions.Check(ctx, use.Name, use.Input, a.Registry.Mutating(use.Name))
		if decision.Kind != permission.Permitted {
			observer.ToolBlocked(use.Name, decision.Reason)
			results = append(results, llm.ToolResultBlock(use.ID, decision.Reason, true))
			continue
		}

		observer.ToolStart(use.Name, decision.Input)
		var result tools.Result
		if ctx.Err() == nil {
			var err error
			result, err = a.Registry.Run(ctx, use.Name, decision.Input, toolCtx)
			if err != nil {
				result = tools.Result{IsError: true, Content: err.Error()}
			}
		}
		if ctx.Err() != nil {
			results = append(results, llm.ToolResultBlock(use.ID, "cancelled", true))
			for _, pending := range toolUses[i+1:] {
				results = append(results, llm.ToolResultBlock(pending.ID, "cancelled", true))
			}
			return results, true
		}

		a.Permissions.RunHooks(ctx, permission.EventAfterTool, use.Name, decision.Input)
		observer.ToolEnd(use.Name, result.Content, result.IsError)
		log.Debug("tool finished",
			zap.String("tool", use.Name),
			zap.Bool("is_error", result.IsError))

		results = append(results, llm.ToolResultBlock(use.ID, result.Content, result.IsError))
	}

	return results, false
}

// answerPendingToolUses appends a user message answering every tool_use in a
// partial assistant message with an error result carrying the given reason.
func (a *Agent) answerPendingToolUses(
	msgs []llm.Message,
	assistant llm.Message,
	observer Observer,
	reason string,
) []llm.Message {
	toolUses := assistant.ToolUses()
	if len(toolUses) == 0 {
		return msgs
	}
	results := make([]llm.ContentBlock, 0, len(toolUses))
	for _, use := range toolUses {
		observer.ToolBlocked(use.Name, reason)
		results = append(results, llm.ToolResultBlock(use.ID, reason, true))
	}
	return append(msgs, llm.Message{Role: llm.RoleUser, Content: results})
}
