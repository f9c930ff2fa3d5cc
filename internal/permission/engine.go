package permission

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Engine is the central permission gate. It is shared read-mostly between
// the parent agent and subagents; only session-scoped rule insertion writes,
// behind a mutex.
type Engine struct {
	// rules are the config-declared rules, evaluated in declaration order.
	rules []Rule
	// sessionMu guards sessionRules.
	sessionMu sync.Mutex
	// sessionRules hold permits added by yes-session answers. They die with
	// the process and are never persisted.
	sessionRules []Rule
	// hooks are the configured hook processes, grouped by event at check time.
	hooks []HookConfig
	// prompter asks the user on prompt decisions; nil means non-interactive,
	// where the safe default is deny.
	prompter Prompter
	// ludicrous short-circuits every check to permit.
	ludicrous bool
	log       *zap.Logger
}

// NewEngine builds an engine from compiled rules and hook configs.
func NewEngine(rules []Rule, hooks []HookConfig, prompter Prompter, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{rules: rules, hooks: hooks, prompter: prompter, log: log}
}

// NewLudicrousEngine builds an engine that permits everything.
func NewLudicrousEngine(log *zap.Logger) *Engine {
	engine := NewEngine(nil, nil, nil, log)
	engine.ludicrous = true
	return engine
}

// Check gates one tool invocation. The returned decision's Input is the
// input the tool must run with; a before_tool hook may have rewritten it.
//
// Order: ludicrous bypass, before_tool hooks, rule matching (session rules
// first, then config rules, first match wins), mutating-default, prompt.
func (e *Engine) Check(ctx context.Context, tool string, input json.RawMessage, mutating bool) Decision {
	if e.ludicrous {
		return Decision{Kind: Permitted, Input: input}
	}

	forcePrompt := false
	promptReason := ""
	for _, hook := range e.hooks {
		if hook.Event != EventBeforeTool {
			continue
		}
		result := runHook(ctx, hook, HookInput{Tool: tool, Input: input, Event: EventBeforeTool}, e.log)
		switch result.outcome {
		case hookBlock:
			return Decision{Kind: Blocked, Reason: result.reason, Input: input}
		case hookPermit:
			if len(result.modifiedInput) > 0 {
				input = result.modifiedInput
			}
			return Decision{Kind: Permitted, Reason: result.reason, Input: input}
		case hookPrompt:
			forcePrompt = true
			promptReason = result.reason
		case hookPass:
		}
	}

	if !forcePrompt {
		if decision, matched := e.applyRules(tool, input); matched {
			return decision
		}
		if !mutating {
			return Decision{Kind: Permitted, Input: input}
		}
		promptReason = fmt.Sprintf("tool %q modifies state and no rule covers it", tool)
	}

	return e.askUser(tool, input, promptReason)
}

// applyRules evaluates session rules then config rules, first match wins.
// A matched prompt rule falls through to the interactive prompt.
func (e *Engine) applyRules(tool string, input json.RawMessage) (Decision, bool) {
	e.sessionMu.Lock()
	session := make([]Rule, len(e.sessionRules))
	copy(session, e.sessionRules)
	e.sessionMu.Unlock()

	for _, rules := range [][]Rule{session, e.rules} {
		for i := range rules {
			rule := &rules[i]
			if !rule.Matches(tool, input) {
				continue
			}
			switch rule.Level {
			case LevelPermit:
				return Decision{Kind: Permitted, Input: input}, true
			case LevelBlock:
				return Decision{
					Kind:   Blocked,
					Reason: fmt.Sprintf("tool %q blocked by permission %s", tool, rule.Describe()),
					Input:  input,
				}, true
			case LevelPrompt:
				return e.askUser(tool, input, rule.Describe()), true
			}
		}
	}
	return Decision{}, false
}

// askUser runs the interactive prompt. yes-session installs a session-scoped
// permit rule for the tool before permitting.
func (e *Engine) askUser(tool string, input json.RawMessage, description string) Decision {
	if e.prompter == nil {
		return Decision{
			Kind:   Denied,
			Reason: fmt.Sprintf("tool %q requires permission and no interactive prompt is available", tool),
			Input:  input,
		}
	}

	switch e.prompter.PromptPermission(tool, input, description) {
	case AllowOnce:
		return Decision{Kind: Permitted, Input: input}
	case AllowSession:
		e.AddSessionRule(Rule{Tool: tool, Level: LevelPermit})
		return Decision{Kind: Permitted, Input: input}
	default:
		return Decision{
			Kind:   Denied,
			Reason: fmt.Sprintf("tool %q denied by user", tool),
			Input:  input,
		}
	}
}

// AddSessionRule appends a session-scoped rule. Bad patterns are dropped
// rather than surfaced; session rules come from trusted prompt answers.
func (e *Engine) AddSessionRule(rule Rule) {
	if err := rule.Compile(); err != nil {
		e.log.Warn("dropping invalid session rule", zap.Error(err))
		return
	}
	e.sessionMu.Lock()
	defer e.sessionMu.Unlock()
	e.sessionRules = append(e.sessionRules, rule)
}

// SessionRules returns a copy of the session-scoped rules.
func (e *Engine) SessionRules() []Rule {
	e.sessionMu.Lock()
	defer e.sessionMu.Unlock()
	rules := make([]Rule, len(e.sessionRules))
	copy(rules, e.sessionRules)
	return rules
}

// RunHooks fires every hook registered for an event. Decisions are advisory
// here: outcomes are logged, never enforced. Used for after_tool auditing
// and session lifecycle events.
func (e *Engine) RunHooks(ctx context.Context, event HookEvent, tool string, input json.RawMessage) {
	if e.ludicrous {
		return
	}
	for _, hook := range e.hooks {
		if hook.Event != event {
			continue
		}
		result := runHook(ctx, hook, HookInput{Tool: tool, Input: input, Event: event}, e.log)
		if result.outcome != hookPass {
			e.log.Debug("hook outcome recorded",
				zap.String("event", string(event)),
				zap.String("command", hook.Command),
				zap.String("reason", result.reason))
		}
	}
}
