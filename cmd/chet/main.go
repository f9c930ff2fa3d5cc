// Command chet is an AI-powered coding assistant for the terminal.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"

	"github.com/chetcli/chet/internal/agent"
	"github.com/chetcli/chet/internal/config"
	"github.com/chetcli/chet/internal/llm"
	"github.com/chetcli/chet/internal/llm/anthropic"
	"github.com/chetcli/chet/internal/permission"
	"github.com/chetcli/chet/internal/session"
	"github.com/chetcli/chet/internal/tools"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

// version is stamped by the release build.
var version = "0.3.0"

// usageError marks argument problems so main can exit 2.
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }

// cliFlags collects the root command's flag values.
type cliFlags struct {
	print          string
	resume         string
	model          string
	maxTokens      int
	apiKey         string
	thinkingBudget int
	ludicrous      bool
	verbose        bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		var usage usageError
		if errors.As(err, &usage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// newRootCommand builds the chet CLI surface.
func newRootCommand() *cobra.Command {
	flags := &cliFlags{}

	cmd := &cobra.Command{
		Use:     "chet",
		Short:   "An AI-powered coding assistant",
		Version: version,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return usageError{err: fmt.Errorf("unexpected arguments: %v", args)}
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(flags)
		},
	}

	cmd.Flags().StringVarP(&flags.print, "print", "p", "", "send a single prompt and print the response")
	cmd.Flags().StringVar(&flags.resume, "resume", "", "resume a previous session by id or prefix")
	cmd.Flags().StringVar(&flags.model, "model", "", "model to use")
	cmd.Flags().IntVar(&flags.maxTokens, "max-tokens", 0, "maximum tokens in the response")
	cmd.Flags().StringVar(&flags.apiKey, "api-key", "", "API key (overrides ANTHROPIC_API_KEY)")
	cmd.Flags().IntVar(&flags.thinkingBudget, "thinking-budget", 0, "enable extended thinking with the given token budget")
	cmd.Flags().BoolVar(&flags.ludicrous, "ludicrous", false, "skip all permission checks")
	cmd.Flags().BoolVar(&flags.verbose, "verbose", false, "enable debug logging")

	cmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		cmd.PrintErrln(cmd.UsageString())
		return usageError{err: err}
	})

	return cmd
}

// run wires the configured components together and enters print or REPL mode.
func run(flags *cliFlags) error {
	log := newLogger(flags.verbose)
	defer log.Sync()

	cfg, err := config.Load(config.Overrides{
		APIKey:         flags.apiKey,
		Model:          flags.model,
		MaxTokens:      flags.maxTokens,
		ThinkingBudget: flags.thinkingBudget,
	})
	if err != nil {
		return err
	}

	client := anthropic.NewClient(cfg.APIKey, cfg.BaseURL,
		anthropic.WithRetryConfig(cfg.Retry),
		anthropic.WithLogger(log))

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}

	stdin := bufio.NewReader(os.Stdin)

	var prompter permission.Prompter
	interactive := flags.print == "" && term.IsTerminal(int(os.Stdin.Fd()))
	if interactive {
		prompter = &terminalPrompter{stdin: stdin}
	}

	var engine *permission.Engine
	if flags.ludicrous {
		engine = permission.NewLudicrousEngine(log)
	} else {
		engine = permission.NewEngine(cfg.Rules, cfg.Hooks, prompter, log)
	}

	baseAgent := newAgent(client, engine, cfg, cwd, log)

	if flags.print != "" {
		return runPrint(baseAgent, flags.print)
	}

	repl := &repl{
		agent:   baseAgent,
		engine:  engine,
		config:  cfg,
		stdin:   stdin,
		tracker: session.NewContextTracker(cfg.Model),
		log:     log,
	}
	return repl.run(flags.resume)
}

// newAgent assembles the main agent with builtins plus the subagent tool.
func newAgent(
	provider llm.Provider,
	engine *permission.Engine,
	cfg *config.Config,
	cwd string,
	log *zap.Logger,
) *agent.Agent {
	toolSet := tools.Builtins()
	toolSet = append(toolSet, &agent.SubagentTool{
		Provider:    provider,
		Permissions: engine,
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		CWD:         cwd,
	})

	return &agent.Agent{
		Provider:       provider,
		Registry:       tools.NewRegistry(toolSet),
		Permissions:    engine,
		Model:          cfg.Model,
		MaxTokens:      cfg.MaxTokens,
		SystemPrompt:   systemPrompt(cwd),
		ThinkingBudget: cfg.ThinkingBudget,
		CWD:            cwd,
		Log:            log,
	}
}

// runPrint executes one prompt without session persistence.
func runPrint(a *agent.Agent, prompt string) error {
	printer := newPrintObserver(os.Stdout, os.Stderr)
	a.Observer = printer

	ctx, cleanup := withInterrupt()
	defer cleanup()

	messages := []llm.Message{llm.UserText(prompt)}
	usage, err := a.Run(ctx, &messages)
	printer.finish()
	if err != nil && !errors.Is(err, agent.ErrCancelled) {
		return err
	}
	printUsage(os.Stderr, usage)
	return nil
}

// newLogger builds the stderr console logger.
func newLogger(verbose bool) *zap.Logger {
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.Lock(os.Stderr),
		level,
	)
	return zap.New(core)
}

// systemPrompt is the default assistant instruction block.
func systemPrompt(cwd string) string {
	return "You are chet, an AI coding assistant running in a terminal. " +
		"You help users with software engineering tasks by reading, writing, " +
		"and editing code files, running commands, and searching codebases.\n\n" +
		"Current working directory: " + cwd + "\n\n" +
		"Use the available tools to assist the user. Be concise and helpful."
}

// planSystemPrompt replaces the default instructions in plan mode.
func planSystemPrompt(cwd string) string {
	return "You are chet, an AI coding assistant running in PLAN MODE.\n\n" +
		"Current working directory: " + cwd + "\n\n" +
		"In plan mode you can ONLY use read-only tools (Read, Glob, Grep) to " +
		"explore the codebase. You cannot modify files or run commands.\n\n" +
		"Explore the code, understand its structure, and produce a clear, " +
		"structured implementation plan in markdown."
}

// printUsage writes the cumulative token report.
func printUsage(w *os.File, usage llm.Usage) {
	fmt.Fprintf(w, "Tokens: input %d, output %d, cache read %d, cache write %d\n",
		usage.InputTokens,
		usage.OutputTokens,
		usage.CacheReadInputTokens,
		usage.CacheCreationInputTokens)
}
