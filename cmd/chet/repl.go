package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/chetcli/chet/internal/agent"
	"github.com/chetcli/chet/internal/config"
	"github.com/chetcli/chet/internal/llm"
	"github.com/chetcli/chet/internal/permission"
	"github.com/chetcli/chet/internal/session"
	"go.uber.org/zap"
)

// repl drives the interactive loop: read a line, run a turn, persist.
type repl struct {
	agent   *agent.Agent
	engine  *permission.Engine
	config  *config.Config
	stdin   *bufio.Reader
	tracker *session.ContextTracker
	log     *zap.Logger
}

// run enters the REPL, optionally resuming a session by prefix.
func (r *repl) run(resumePrefix string) error {
	store, err := session.NewStore(r.config.ConfigDir, r.log)
	if err != nil {
		return err
	}

	var current *session.Session
	if resumePrefix != "" {
		current, err = store.ResolvePrefix(resumePrefix)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Resumed session %s (%d messages)\n", current.ShortID(), len(current.Messages))
		r.syncModel(current)
	} else {
		current = session.New(r.config.Model)
	}
	r.applyMode(current)

	r.engine.RunHooks(context.Background(), permission.EventSessionStart, "", nil)
	defer r.engine.RunHooks(context.Background(), permission.EventSessionEnd, "", nil)

	thinkingInfo := ""
	if r.config.ThinkingBudget > 0 {
		thinkingInfo = fmt.Sprintf(", thinking: %d tokens", r.config.ThinkingBudget)
	}
	fmt.Fprintf(os.Stderr, "chet v%s (model: %s%s, session: %s)\n",
		version, r.config.Model, thinkingInfo, current.ShortID())
	fmt.Fprintln(os.Stderr, "Type your message. Press Ctrl+D to exit.")
	fmt.Fprintln(os.Stderr)

	for {
		fmt.Fprint(os.Stderr, promptMarker(current.Mode))
		line, err := r.stdin.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				fmt.Fprintln(os.Stderr)
				break
			}
			return err
		}
		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			quit := r.handleSlash(input, &current, store)
			if quit {
				break
			}
			continue
		}

		r.runTurn(current, store, input)
	}

	current.Touch()
	if err := store.Save(current); err != nil {
		fmt.Fprintln(os.Stderr, "Warning: failed to save session:", err)
	}
	printUsage(os.Stderr, current.CumulativeUsage)
	return nil
}

// runTurn executes one user turn and persists the session afterwards,
// including cancelled and failed turns.
func (r *repl) runTurn(current *session.Session, store *session.Store, input string) {
	current.EnsureLabel(input)
	current.Messages = append(current.Messages, llm.UserText(input))

	printer := newReplObserver(os.Stdout, os.Stderr)
	r.agent.Observer = printer

	ctx, cleanup := withInterrupt()
	usage, err := r.agent.Run(ctx, &current.Messages)
	cleanup()
	printer.finish()

	current.CumulativeUsage.Add(usage)
	current.Touch()
	if saveErr := store.Save(current); saveErr != nil {
		fmt.Fprintln(os.Stderr, "Warning: failed to save session:", saveErr)
	}

	switch {
	case err == nil:
		info := r.tracker.Estimate(current.Messages, r.agent.SystemPrompt)
		fmt.Fprintln(os.Stderr, r.tracker.FormatBrief(info))
	case errors.Is(err, agent.ErrCancelled):
		fmt.Fprintln(os.Stderr, "\nCancelled.")
	case errors.Is(err, agent.ErrTurnLimit):
		fmt.Fprintln(os.Stderr, "\nTurn limit exceeded; transcript kept.")
	default:
		fmt.Fprintln(os.Stderr, "\nError:", err)
	}
	fmt.Fprintln(os.Stderr)
}

// handleSlash routes slash commands. Returns true when the REPL should quit.
func (r *repl) handleSlash(input string, current **session.Session, store *session.Store) bool {
	cmd, args, _ := strings.Cut(input, " ")
	args = strings.TrimSpace(args)

	switch cmd {
	case "/quit", "/exit":
		return true
	case "/help":
		printHelp(os.Stderr)
	case "/model":
		fmt.Fprintln(os.Stderr, "Current model:", (*current).Model)
	case "/cost":
		printUsage(os.Stderr, (*current).CumulativeUsage)
	case "/context":
		info := r.tracker.Estimate((*current).Messages, r.agent.SystemPrompt)
		fmt.Fprintln(os.Stderr, r.tracker.FormatDetailed(info))
	case "/clear":
		*current = session.New(r.config.Model)
		r.applyMode(*current)
		fmt.Fprintln(os.Stderr, "Conversation cleared. New session:", (*current).ShortID())
	case "/plan":
		r.togglePlan(*current)
	case "/compact":
		r.compact(*current, store)
	case "/sessions":
		r.listSessions(store)
	case "/resume":
		if args == "" {
			fmt.Fprintln(os.Stderr, "Usage: /resume <session-id-prefix>")
			break
		}
		loaded, err := store.ResolvePrefix(args)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Failed to resume:", err)
			break
		}
		*current = loaded
		r.applyMode(loaded)
		fmt.Fprintf(os.Stderr, "Resumed session %s (%d messages)\n", loaded.ShortID(), len(loaded.Messages))
		r.syncModel(loaded)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s. Type /help for available commands.\n", cmd)
	}
	return false
}

// togglePlan flips the session between plan and normal mode.
func (r *repl) togglePlan(current *session.Session) {
	if current.Mode == session.ModePlan {
		current.Mode = session.ModeNormal
		r.applyMode(current)
		fmt.Fprintln(os.Stderr, "Exited plan mode.")
		return
	}
	current.Mode = session.ModePlan
	r.applyMode(current)
	fmt.Fprintln(os.Stderr, planBanner())
}

// syncModel aligns a resumed session with the configured model, telling the
// user when the transcript was recorded under a different one.
func (r *repl) syncModel(current *session.Session) {
	if current.Model != "" && current.Model != r.config.Model {
		fmt.Fprintf(os.Stderr, "Note: session was recorded with model %s; continuing with %s.\n",
			current.Model, r.config.Model)
	}
	current.Model = r.config.Model
}

// applyMode syncs the agent's registry restriction and system prompt with
// the session mode. Resumed and compacted sessions keep their mode.
func (r *repl) applyMode(current *session.Session) {
	if current.Mode == session.ModePlan {
		r.agent.ReadOnly = true
		r.agent.SystemPrompt = planSystemPrompt(r.agent.CWD)
		return
	}
	r.agent.ReadOnly = false
	r.agent.SystemPrompt = systemPrompt(r.agent.CWD)
}

// compact archives and summarizes the current session.
func (r *repl) compact(current *session.Session, store *session.Store) {
	before := len(current.Messages)
	ctx, cleanup := withInterrupt()
	defer cleanup()

	fmt.Fprintln(os.Stderr, "Compacting...")
	archivePath, err := session.Compact(ctx, r.agent.Provider, store, current, r.config.Model, r.config.MaxTokens)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Compaction failed:", err)
		return
	}
	fmt.Fprintf(os.Stderr, "Compacted: %d messages replaced with a summary.\n", before)
	fmt.Fprintln(os.Stderr, "Archive saved to:", archivePath)
}

// listSessions prints saved sessions, most recent first.
func (r *repl) listSessions(store *session.Store) {
	summaries, err := store.List()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to list sessions:", err)
		return
	}
	if len(summaries) == 0 {
		fmt.Fprintln(os.Stderr, "No saved sessions.")
		return
	}
	fmt.Fprintln(os.Stderr, "Saved sessions:")
	for _, summary := range summaries {
		label := ""
		if summary.Label != "" {
			label = " [" + summary.Label + "]"
		}
		preview := summary.Preview
		if preview == "" {
			preview = "(empty)"
		}
		fmt.Fprintf(os.Stderr, "  %s %8s  %3d msgs  %s%s  %s\n",
			summary.ShortID(), summary.Age(), summary.MessageCount, summary.Model, label, preview)
	}
}

// printHelp lists the REPL surface.
func printHelp(w io.Writer) {
	fmt.Fprintln(w, "Available commands:")
	fmt.Fprintln(w, "  /help     show this help")
	fmt.Fprintln(w, "  /plan     toggle plan mode (read-only exploration)")
	fmt.Fprintln(w, "  /model    show current model")
	fmt.Fprintln(w, "  /cost     show token usage")
	fmt.Fprintln(w, "  /context  show detailed context window usage")
	fmt.Fprintln(w, "  /compact  compact conversation (archive + summarize)")
	fmt.Fprintln(w, "  /sessions list saved sessions")
	fmt.Fprintln(w, "  /resume   resume a saved session by id prefix")
	fmt.Fprintln(w, "  /clear    clear conversation (starts a new session)")
	fmt.Fprintln(w, "  /quit     exit")
}

// withInterrupt returns a context cancelled by SIGINT, plus its cleanup.
func withInterrupt() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	done := make(chan struct{})

	go func() {
		select {
		case <-interrupt:
			cancel()
		case <-done:
		}
	}()

	return ctx, func() {
		close(done)
		signal.Stop(interrupt)
		cancel()
	}
}
