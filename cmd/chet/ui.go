package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/chetcli/chet/internal/llm"
	"github.com/chetcli/chet/internal/session"
)

// Styles for status output. Assistant prose goes through glamour; everything
// else gets light lipgloss coloring on stderr.
var (
	toolStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	blockedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	thinkingStyle = lipgloss.NewStyle().Faint(true)
	promptStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	planStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("5")).Bold(true)
)

// promptMarker renders the input prompt for the session mode.
func promptMarker(mode session.Mode) string {
	if mode == session.ModePlan {
		return planStyle.Render("plan>") + " "
	}
	return promptStyle.Render(">") + " "
}

// planBanner announces plan mode entry.
func planBanner() string {
	return planStyle.Render("Entered plan mode: read-only tools only (Read, Glob, Grep).")
}

// replObserver renders agent events for the interactive loop. Assistant text
// is buffered per response and rendered as markdown once the turn settles;
// tool and thinking activity streams live to stderr.
type replObserver struct {
	out      io.Writer
	errOut   io.Writer
	text     strings.Builder
	renderer *glamour.TermRenderer
	thought  bool
}

// newReplObserver builds the REPL event renderer.
func newReplObserver(out io.Writer, errOut io.Writer) *replObserver {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		renderer = nil
	}
	return &replObserver{out: out, errOut: errOut, renderer: renderer}
}

func (o *replObserver) TextDelta(text string) {
	o.text.WriteString(text)
}

func (o *replObserver) ThinkingDelta(text string) {
	o.thought = true
	fmt.Fprint(o.errOut, thinkingStyle.Render(text))
}

func (o *replObserver) ToolStart(name string, input json.RawMessage) {
	o.flushText()
	fmt.Fprintln(o.errOut, toolStyle.Render("* "+name+" "+summarizeInput(input, 120)))
}

func (o *replObserver) ToolProgress(name string, message string) {
	fmt.Fprintln(o.errOut, toolStyle.Render("  ... "+truncateDisplay(message, 120)))
}

func (o *replObserver) ToolEnd(name string, output string, isError bool) {
	if isError {
		fmt.Fprintln(o.errOut, errorStyle.Render("  x "+name+": "+truncateDisplay(output, 200)))
		return
	}
	fmt.Fprintln(o.errOut, toolStyle.Render("  ok "+name))
}

func (o *replObserver) ToolBlocked(name string, reason string) {
	fmt.Fprintln(o.errOut, blockedStyle.Render("  blocked "+name+": "+reason))
}

func (o *replObserver) Usage(llm.Usage) {}

func (o *replObserver) Done() {
	o.flushText()
}

// finish flushes any remaining buffered text, for cancelled or failed turns.
func (o *replObserver) finish() {
	o.flushText()
}

// flushText renders and clears the buffered assistant prose.
func (o *replObserver) flushText() {
	if o.thought {
		fmt.Fprintln(o.errOut)
		o.thought = false
	}
	text := o.text.String()
	if strings.TrimSpace(text) == "" {
		o.text.Reset()
		return
	}
	o.text.Reset()
	if o.renderer != nil {
		if rendered, err := o.renderer.Render(text); err == nil {
			fmt.Fprint(o.out, rendered)
			return
		}
	}
	fmt.Fprintln(o.out, text)
}

// printObserver streams raw text for --print mode so output stays pipeable.
type printObserver struct {
	out    io.Writer
	errOut io.Writer
	wrote  bool
}

// newPrintObserver builds the non-interactive event renderer.
func newPrintObserver(out io.Writer, errOut io.Writer) *printObserver {
	return &printObserver{out: out, errOut: errOut}
}

func (o *printObserver) TextDelta(text string) {
	o.wrote = true
	fmt.Fprint(o.out, text)
}

func (o *printObserver) ThinkingDelta(string) {}

func (o *printObserver) ToolStart(name string, input json.RawMessage) {
	fmt.Fprintf(o.errOut, "* %s %s\n", name, summarizeInput(input, 120))
}

func (o *printObserver) ToolProgress(string, string) {}

func (o *printObserver) ToolEnd(name string, output string, isError bool) {
	if isError {
		fmt.Fprintf(o.errOut, "  x %s: %s\n", name, truncateDisplay(output, 200))
	}
}

func (o *printObserver) ToolBlocked(name string, reason string) {
	fmt.Fprintf(o.errOut, "  blocked %s: %s\n", name, reason)
}

func (o *printObserver) Usage(llm.Usage) {}

func (o *printObserver) Done() {}

// finish terminates the output line when any text was written.
func (o *printObserver) finish() {
	if o.wrote {
		fmt.Fprintln(o.out)
	}
}

// summarizeInput flattens tool input JSON for one-line display.
func summarizeInput(input json.RawMessage, max int) string {
	compact := strings.Join(strings.Fields(string(input)), " ")
	return truncateDisplay(compact, max)
}

// truncateDisplay shortens long strings without breaking runes.
func truncateDisplay(value string, max int) string {
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max]) + "...(truncated)"
}
