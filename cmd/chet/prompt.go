package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/chetcli/chet/internal/permission"
	"golang.org/x/term"
)

// terminalPrompter asks permission questions on the controlling terminal.
// It shares the REPL's stdin reader so buffered input is not lost between
// the two.
type terminalPrompter struct {
	stdin *bufio.Reader
}

// PromptPermission shows the tool call and reads a y/a/n answer. Anything
// unreadable, or a non-terminal stdin, denies.
func (p *terminalPrompter) PromptPermission(
	tool string,
	input json.RawMessage,
	description string,
) permission.PromptResponse {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return permission.Deny
	}

	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, blockedStyle.Render("Permission required: "+tool))
	if summary := summarizeInput(input, 200); summary != "" {
		fmt.Fprintln(os.Stderr, "  input: "+summary)
	}
	if description != "" {
		fmt.Fprintln(os.Stderr, "  "+description)
	}
	fmt.Fprint(os.Stderr, "  [y]es once / [a]lways this session / [n]o > ")

	line, err := p.stdin.ReadString('\n')
	if err != nil {
		fmt.Fprintln(os.Stderr)
		return permission.Deny
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return permission.AllowOnce
	case "a", "always":
		return permission.AllowSession
	default:
		return permission.Deny
	}
}
