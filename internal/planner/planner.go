// Package planner implements the think-act loop (spec §4.7): build a
// context from wall time, goal, memory and diary, call the LLM for a
// single JSON Plan, then execute its actions. Ported from the Python
// prototype's agent_core.py AutonomousAgent, generalized from a
// hard-coded Japanese system prompt and completion-marker list into
// configuration.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shipos/autonomous/internal/costguard"
	"github.com/shipos/autonomous/internal/executor"
	"github.com/shipos/autonomous/internal/inbox"
	"github.com/shipos/autonomous/internal/llm"
	"github.com/shipos/autonomous/internal/logging"
	"github.com/shipos/autonomous/internal/memory"
	"github.com/shipos/autonomous/internal/modemgr"
	"github.com/shipos/autonomous/internal/notifier"
	"github.com/shipos/autonomous/internal/selfmod"
	"github.com/shipos/autonomous/internal/statefile"
	"github.com/shipos/autonomous/internal/types"
)

// SystemPrompt is the fixed instruction constraining the LLM to a single
// JSON Plan object.
const SystemPrompt = `You are an autonomous research and operations agent running on a small single-board computer.

# Rules
1. Think privately; your output is always exactly one JSON object, nothing else.
2. Follow the JSON schema strictly.
3. Run only the minimal commands needed.
4. Never attempt destructive or dangerous operations.
5. On error, adapt and continue to the next step.
6. Prefer actions with durable long-term value.

# Output JSON schema
{
  "say": "a short message to the operator",
  "cmd": ["shell commands to run"],
  "memory_write": [{"filename": "topic_yyyymmdd_hhmmss.txt", "content": "..."}],
  "diary_append": "text to append to the diary",
  "next_goal": "the goal for the next iteration",
  "self_improve": {"enabled": false, "target_file": "", "request": ""}
}

# Self-improvement
- Setting self_improve.enabled requests an analysis-only review of your own source; it never applies changes directly.
- target_file names one file (e.g. "memory.go"); empty reviews everything.
- request should be concrete (e.g. "fix a bug", "improve performance").

# Forbidden
- Destroying the filesystem.
- Infinite loops.
- Heavy network traffic.
- Exfiltrating personal data.
- Destabilizing the system.

Respond with JSON only.`

const quickResponderPrompt = `You are a quick-response assistant. Answer the operator's question in one or two short sentences, plain text, no JSON.`

// ErrCostGuardStop is returned by RunIteration when the cost guard has
// reached its stop threshold; the caller (supervisor) must halt the loop.
var ErrCostGuardStop = errors.New("planner: cost guard requested a halt")

// Deps wires every collaborator the planner drives.
type Deps struct {
	Inbox        *inbox.Inbox
	CostGuard    *costguard.Guard
	Memory       *memory.Manager
	Executor     *executor.Executor
	Modes        *modemgr.Manager
	LLM          llm.Client
	SelfModifier selfmod.SelfModifier // optional
	Notify       *notifier.Notifier   // optional
}

// Config holds the planner's tunables.
type Config struct {
	Model             string
	Temperature       float64 // default 0.7
	MaxTokens         int     // default 800
	CompletionMarkers []string
	GoalHistoryPath   string
	GoalSnapshotPath  string
	LegacyCommandsPath string // deprecated single-command file, drained alongside the inbox
}

func (c Config) withDefaults() Config {
	if c.Temperature == 0 {
		c.Temperature = 0.7
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 800
	}
	if len(c.CompletionMarkers) == 0 {
		c.CompletionMarkers = []string{"done", "completed", "finished"}
	}
	return c
}

type goalSnapshot struct {
	Goal string `json:"goal"`
}

// Planner owns current_goal exclusively; every external mutator (inbox,
// webhook, voice) goes through UpdateGoal.
type Planner struct {
	deps Deps
	cfg  Config

	mu                sync.Mutex
	currentGoal       string
	iterationCount    int
	userGoalActive    bool
	lastAction        types.Plan
	lastCommands      []string
	lastResults       []executor.Result
	lastThinking      string
	lastExecutionTime time.Time
}

// New builds a Planner with the given starting goal.
func New(deps Deps, cfg Config, initialGoal string) *Planner {
	p := &Planner{deps: deps, cfg: cfg.withDefaults(), currentGoal: initialGoal}
	if cfg.GoalSnapshotPath != "" {
		_ = statefile.WriteSnapshot(cfg.GoalSnapshotPath, goalSnapshot{Goal: initialGoal})
	}
	return p
}

// CurrentGoal returns the active goal.
func (p *Planner) CurrentGoal() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentGoal
}

// IterationCount returns the number of completed iterations.
func (p *Planner) IterationCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.iterationCount
}

// UserGoalActive reports whether a user-submitted goal is currently
// suppressing the LLM's own next_goal proposals.
func (p *Planner) UserGoalActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.userGoalActive
}

// UpdateGoal replaces the current goal. When source is "user" the previous
// goal is archived to the goal-history JSONL, the last-execution state is
// reset, and user_goal_active is raised so the LLM's own next_goal
// proposals are suppressed until a completion marker appears.
func (p *Planner) UpdateGoal(newGoal, source string) {
	p.mu.Lock()
	old := p.currentGoal

	if source == "user" {
		if p.cfg.GoalHistoryPath != "" {
			_ = statefile.AppendJSONL(p.cfg.GoalHistoryPath, types.GoalHistoryEntry{
				PreviousGoal: old,
				NewGoal:      newGoal,
				Source:       "REPLACED_BY_USER",
				Timestamp:    time.Now(),
			})
		}
		p.lastCommands = nil
		p.lastResults = nil
		p.lastAction = types.Plan{}
		p.lastThinking = ""
		p.userGoalActive = true
	}

	p.currentGoal = newGoal
	p.mu.Unlock()

	if p.cfg.GoalSnapshotPath != "" {
		_ = statefile.WriteSnapshot(p.cfg.GoalSnapshotPath, goalSnapshot{Goal: newGoal})
	}
	logging.For("planner").Info().Str("source", source).Str("from", old).Str("to", newGoal).Msg("goal updated")
}

// buildContext assembles the plain-text prompt block from step 3 of the
// algorithm: wall time, goal, iteration count, last 20 diary lines, memory
// summary, previews of the 3 most recent memories.
func (p *Planner) buildContext() string {
	p.mu.Lock()
	goal := p.currentGoal
	iter := p.iterationCount
	p.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "# Current state\n\n")
	fmt.Fprintf(&b, "## Time\n%s\n\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "## Current goal\n%s\n\n", goal)
	fmt.Fprintf(&b, "## Iteration\n%d\n\n", iter)

	diary, err := p.deps.Memory.ReadDiary(20)
	if err != nil {
		diary = "(diary unavailable)"
	}
	fmt.Fprintf(&b, "## Recent diary\n%s\n\n", diary)
	fmt.Fprintf(&b, "## Memory summary\n%s\n\n", p.deps.Memory.Summary())

	fmt.Fprintf(&b, "## Recent memories\n")
	for _, rec := range p.deps.Memory.Recent(3) {
		content, err := p.deps.Memory.Content(rec.Filename)
		if err != nil {
			continue
		}
		if len(content) > 300 {
			content = content[:300] + "..."
		}
		fmt.Fprintf(&b, "\n### %s\n%s\n", rec.Filename, content)
	}

	fmt.Fprintf(&b, "\n# Instructions\nBased on the above, output the next action as a single JSON object.")
	return b.String()
}

// parsePlan tolerates a ```json fenced response and rejects one missing
// required keys, matching the prototype's parse_gpt_response.
func parsePlan(raw string) (types.Plan, error) {
	body := extractJSON(raw)

	var generic map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &generic); err != nil {
		return types.Plan{}, fmt.Errorf("planner: invalid JSON: %w", err)
	}
	for _, key := range []string{"say", "cmd", "memory_write", "diary_append", "next_goal"} {
		if _, ok := generic[key]; !ok {
			return types.Plan{}, fmt.Errorf("planner: missing required key %q", key)
		}
	}

	var plan types.Plan
	if err := json.Unmarshal([]byte(body), &plan); err != nil {
		return types.Plan{}, fmt.Errorf("planner: decode plan: %w", err)
	}
	return plan, nil
}

func extractJSON(s string) string {
	if i := strings.Index(s, "```json"); i >= 0 {
		rest := s[i+len("```json"):]
		if j := strings.Index(rest, "```"); j >= 0 {
			return strings.TrimSpace(rest[:j])
		}
	}
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		if j := strings.Index(rest, "```"); j >= 0 {
			return strings.TrimSpace(rest[:j])
		}
	}
	return strings.TrimSpace(s)
}

func containsCompletionMarker(say string, markers []string) bool {
	lower := strings.ToLower(say)
	for _, m := range markers {
		if strings.Contains(lower, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

// RunIteration executes exactly one iteration of the 8-step algorithm.
func (p *Planner) RunIteration(ctx context.Context) error {
	logger := logging.For("planner")

	p.mu.Lock()
	p.iterationCount++
	p.mu.Unlock()

	// 1. Drain the event inbox.
	if p.deps.Inbox != nil {
		events, err := p.deps.Inbox.Drain()
		if err != nil {
			logger.Error().Err(err).Msg("inbox drain failed")
		}
		for _, ev := range events {
			p.handleInboxEvent(ctx, ev)
		}
	}

	// 1b. Drain the deprecated single-command file, if configured.
	if p.deps.Inbox != nil && p.cfg.LegacyCommandsPath != "" {
		if text, err := p.deps.Inbox.DrainLegacy(p.cfg.LegacyCommandsPath); err != nil {
			logger.Error().Err(err).Msg("legacy command drain failed")
		} else if text != "" {
			p.UpdateGoal(text, "user")
			if p.deps.Notify != nil && p.deps.Modes != nil {
				p.deps.Notify.Notify(ctx, notifier.LevelUserResponse, p.deps.Modes.GetConfig().NotifyLevel, "Legacy command received, goal set:\n"+text)
			}
		}
	}

	// 2. Ask the cost guard.
	if p.deps.CostGuard != nil {
		if p.deps.CostGuard.Check() == costguard.LevelStop {
			return ErrCostGuardStop
		}
	}

	// 3. Build context.
	promptContext := p.buildContext()

	// 4. Call the LLM.
	resp, err := p.deps.LLM.Chat(ctx, llm.Request{
		Model: p.cfg.Model,
		Messages: []llm.Message{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: promptContext},
		},
		Temperature: p.cfg.Temperature,
		MaxTokens:   p.cfg.MaxTokens,
	})
	if err != nil {
		logger.Error().Err(err).Msg("llm transport error")
		if p.deps.Notify != nil && p.deps.Modes != nil {
			p.deps.Notify.Notify(ctx, notifier.LevelError, p.deps.Modes.GetConfig().NotifyLevel, "planner: LLM call failed: "+err.Error())
		}
		return nil
	}

	// 5. Parse.
	plan, err := parsePlan(resp.Content)
	if err != nil {
		logger.Error().Err(err).Str("response", resp.Content).Msg("malformed plan, skipping iteration")
		return nil
	}

	// 6. Execute.
	p.executePlan(ctx, plan)

	// 7. Record token usage.
	if p.deps.CostGuard != nil {
		if err := p.deps.CostGuard.Record(p.cfg.Model, resp.Usage.InputTokens, resp.Usage.OutputTokens); err != nil {
			logger.Error().Err(err).Msg("cost guard record failed")
		}
	}

	p.mu.Lock()
	p.lastExecutionTime = time.Now()
	p.mu.Unlock()
	return nil
}

func (p *Planner) handleInboxEvent(ctx context.Context, ev types.Event) {
	switch ev.Type {
	case types.EventQuery:
		p.answerQuery(ctx, ev)
	case types.EventGoal:
		p.UpdateGoal(ev.Text, "user")
	}
}

// answerQuery issues a quick, separate completion for a query-classified
// inbox event and pushes the answer back through the notifier.
func (p *Planner) answerQuery(ctx context.Context, ev types.Event) {
	logger := logging.For("planner")
	if p.deps.LLM == nil {
		return
	}
	resp, err := p.deps.LLM.Chat(ctx, llm.Request{
		Model: p.cfg.Model,
		Messages: []llm.Message{
			{Role: "system", Content: quickResponderPrompt},
			{Role: "user", Content: ev.Text},
		},
		Temperature: 0.3,
		MaxTokens:   300,
	})
	if err != nil {
		logger.Error().Err(err).Msg("quick responder failed")
		return
	}
	if p.deps.Notify != nil && p.deps.Modes != nil {
		p.deps.Notify.Notify(ctx, notifier.LevelUserResponse, p.deps.Modes.GetConfig().NotifyLevel, resp.Content)
	}
	if p.deps.CostGuard != nil {
		_ = p.deps.CostGuard.Record(p.cfg.Model, resp.Usage.InputTokens, resp.Usage.OutputTokens)
	}
}

func (p *Planner) executePlan(ctx context.Context, plan types.Plan) {
	logger := logging.For("planner")

	p.mu.Lock()
	p.lastAction = plan
	p.lastThinking = plan.Say
	p.mu.Unlock()

	var results []executor.Result
	if p.deps.Executor != nil {
		for _, cmd := range plan.Cmd {
			results = append(results, p.deps.Executor.Execute(ctx, cmd))
		}
	}
	p.mu.Lock()
	p.lastCommands = plan.Cmd
	p.lastResults = results
	p.mu.Unlock()

	if p.deps.Memory != nil {
		for _, mw := range plan.MemoryWrite {
			if mw.Filename == "" || mw.Content == "" {
				continue
			}
			if err := p.deps.Memory.Write(mw.Filename, mw.Content); err != nil {
				logger.Error().Err(err).Str("filename", mw.Filename).Msg("memory write failed")
			}
		}
		if plan.DiaryAppend != "" {
			if err := p.deps.Memory.AppendDiary(plan.DiaryAppend); err != nil {
				logger.Error().Err(err).Msg("diary append failed")
			}
		}
	}

	if plan.NextGoal != "" {
		p.mu.Lock()
		active := p.userGoalActive
		p.mu.Unlock()
		if active {
			if containsCompletionMarker(plan.Say, p.cfg.CompletionMarkers) {
				p.mu.Lock()
				p.userGoalActive = false
				p.mu.Unlock()
				p.UpdateGoal(plan.NextGoal, "system")
			} else {
				logger.Info().Str("proposed_goal", plan.NextGoal).Msg("suppressing LLM goal proposal: user goal still active")
			}
		} else {
			p.UpdateGoal(plan.NextGoal, "system")
		}
	}

	if plan.SelfImprove.Enabled && p.deps.SelfModifier != nil {
		p.runSelfImprove(ctx, plan.SelfImprove)
	}
}

func (p *Planner) runSelfImprove(ctx context.Context, req types.SelfImproveRequest) {
	logger := logging.For("planner")
	diff, err := p.deps.SelfModifier.Propose(ctx, req.TargetFile, req.Request)
	if err != nil {
		logger.Error().Err(err).Msg("self-improve proposal failed")
		return
	}
	data, err := json.MarshalIndent(diff, "", "  ")
	if err != nil {
		logger.Error().Err(err).Msg("self-improve marshal failed")
		return
	}
	filename := fmt.Sprintf("self_improve_%s.txt", time.Now().Format("20060102_150405"))
	if p.deps.Memory != nil {
		if err := p.deps.Memory.Write(filename, string(data)); err != nil {
			logger.Error().Err(err).Msg("self-improve memory write failed")
		}
	}
}

// Run loops RunIteration until ctx is cancelled or the cost guard signals
// a stop, sleeping iteration_interval_sec (from the active mode config)
// between iterations.
func Run(ctx context.Context, p *Planner) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := p.RunIteration(ctx); err != nil {
			return err
		}

		interval := 60 * time.Second
		if p.deps.Modes != nil {
			if sec := p.deps.Modes.GetConfig().IterationIntervalSec; sec > 0 {
				interval = time.Duration(sec) * time.Second
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
