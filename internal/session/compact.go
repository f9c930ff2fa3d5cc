package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/chetcli/chet/internal/llm"
)

// compactionSystemPrompt instructs the one-shot summarization call.
const compactionSystemPrompt = "You summarize coding-assistant conversations. " +
	"Produce a dense summary of the transcript you are given: the user's goals, " +
	"decisions made, files read or changed, commands run, errors hit, and any " +
	"unfinished work. Write it so the conversation can continue from the summary alone."

// Compact replaces a session's transcript with a model-generated summary.
// The full transcript is archived first; id, label, mode, and cumulative
// usage survive the replacement. Compaction is user-triggered only.
func Compact(
	ctx context.Context,
	provider llm.Provider,
	store *Store,
	session *Session,
	model string,
	maxTokens int,
) (archivePath string, err error) {
	if len(session.Messages) == 0 {
		return "", fmt.Errorf("nothing to compact: conversation is empty")
	}

	// 1. Archive the full transcript.
	archivePath = store.ArchivePath(session.ID, time.Now().Unix())
	archive, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal archive: %w", err)
	}
	if err := os.WriteFile(archivePath, archive, 0o644); err != nil {
		return "", fmt.Errorf("write archive: %w", err)
	}

	// 2. One-shot summarization call.
	summary, err := summarize(ctx, provider, session.Messages, model, maxTokens)
	if err != nil {
		return archivePath, fmt.Errorf("summarize transcript: %w", err)
	}

	// 3. Replace the transcript. Mode and label are carried by the session
	// struct itself and are deliberately untouched here.
	session.Messages = []llm.Message{
		llm.UserText("[Conversation summary from compaction]\n\n" + summary),
	}
	session.Touch()

	if err := store.Save(session); err != nil {
		return archivePath, err
	}
	return archivePath, nil
}

// summarize issues the compaction provider call and collects the text.
func summarize(
	ctx context.Context,
	provider llm.Provider,
	messages []llm.Message,
	model string,
	maxTokens int,
) (string, error) {
	request := &llm.Request{
		Model:     model,
		MaxTokens: maxTokens,
		Messages: []llm.Message{
			llm.UserText("Summarize this conversation transcript:\n\n" + renderTranscript(messages)),
		},
		System: []llm.SystemContent{{Type: "text", Text: compactionSystemPrompt}},
		Stream: true,
	}

	stream, err := provider.Stream(ctx, request)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	assembler := llm.NewAssembler()
	for {
		event, err := stream.Recv()
		if err != nil {
			if err == io.EOF {
				break
			}
			return "", err
		}
		assembler.Apply(event)
		if event.Type == llm.EventMessageStop {
			break
		}
	}

	summary := assembler.Message().PlainText()
	if strings.TrimSpace(summary) == "" {
		return "", fmt.Errorf("summarization returned no text")
	}
	return summary, nil
}

// renderTranscript flattens messages into readable text for the summarizer.
func renderTranscript(messages []llm.Message) string {
	var b strings.Builder
	for _, msg := range messages {
		fmt.Fprintf(&b, "## %s\n\n", msg.Role)
		for _, block := range msg.Content {
			switch block.Type {
			case llm.BlockText:
				b.WriteString(block.Text)
				b.WriteString("\n\n")
			case llm.BlockToolUse:
				fmt.Fprintf(&b, "[tool call: %s %s]\n\n", block.Name, truncate(string(block.Input), 200))
			case llm.BlockToolResult:
				label := "tool result"
				if block.IsError {
					label = "tool error"
				}
				var text string
				for _, content := range block.Content {
					if content.Type == llm.BlockText {
						text += content.Text
					}
				}
				fmt.Fprintf(&b, "[%s: %s]\n\n", label, truncate(text, 500))
			case llm.BlockThinking:
				// Reasoning is omitted from the summarizer input.
			case llm.BlockImage:
				b.WriteString("[image]\n\n")
			}
		}
	}
	return b.String()
}

// truncate shortens long text for transcript rendering.
func truncate(text string, max int) string {
	if len(text) <= max {
		return text
	}
	return text[:max] + "..."
}
