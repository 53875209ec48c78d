package planner

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shipos/autonomous/internal/executor"
	"github.com/shipos/autonomous/internal/inbox"
	"github.com/shipos/autonomous/internal/llm"
	"github.com/shipos/autonomous/internal/memory"
	"github.com/shipos/autonomous/internal/statefile"
	"github.com/shipos/autonomous/internal/types"
)

type fakeLLM struct {
	content string
	err     error
	calls   []llm.Request
}

func (f *fakeLLM) Chat(ctx context.Context, req llm.Request) (llm.Response, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return llm.Response{Content: f.content, Usage: llm.Usage{InputTokens: 10, OutputTokens: 5}}, nil
}

func newTestMemory(t *testing.T) *memory.Manager {
	t.Helper()
	m, err := memory.New(t.TempDir())
	if err != nil {
		t.Fatalf("memory.New: %v", err)
	}
	return m
}

func newTestExecutor(t *testing.T) *executor.Executor {
	t.Helper()
	dir := t.TempDir()
	return executor.New([]string{dir}, 5*time.Second, 4096, dir, filepath.Join(dir, "audit.jsonl"))
}

func newTestInbox(t *testing.T) *inbox.Inbox {
	t.Helper()
	dir := t.TempDir()
	classifier := inbox.NewClassifier([]string{`\?`}, 10, []string{"please", "now"})
	return inbox.New(filepath.Join(dir, "inbox.jsonl"), filepath.Join(dir, "history"), classifier)
}

func TestUpdateGoalFromUserArchivesHistoryAndResetsState(t *testing.T) {
	dir := t.TempDir()
	p := New(Deps{Memory: newTestMemory(t)}, Config{
		GoalHistoryPath:  filepath.Join(dir, "goal_history.jsonl"),
		GoalSnapshotPath: filepath.Join(dir, "goal.json"),
	}, "initial goal")

	p.UpdateGoal("new user goal", "user")

	if p.CurrentGoal() != "new user goal" {
		t.Fatalf("expected goal to update, got %q", p.CurrentGoal())
	}
	if !p.UserGoalActive() {
		t.Fatalf("expected user_goal_active to be set")
	}

	entries, err := statefile.ReadAllJSONL[types.GoalHistoryEntry](filepath.Join(dir, "goal_history.jsonl"))
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one goal history entry, got %v (err=%v)", entries, err)
	}
	if entries[0].PreviousGoal != "initial goal" || entries[0].NewGoal != "new user goal" {
		t.Fatalf("unexpected history entry: %+v", entries[0])
	}

	var snap goalSnapshot
	if ok, _ := statefile.ReadSnapshot(filepath.Join(dir, "goal.json"), &snap); !ok || snap.Goal != "new user goal" {
		t.Fatalf("expected goal snapshot to be written, got %+v", snap)
	}
}

func TestUpdateGoalFromSystemDoesNotSetUserGoalActive(t *testing.T) {
	p := New(Deps{Memory: newTestMemory(t)}, Config{}, "initial goal")
	p.UpdateGoal("system goal", "system")
	if p.UserGoalActive() {
		t.Fatalf("expected user_goal_active to remain false for a system-sourced update")
	}
}

func TestRunIterationExecutesCommandsMemoryAndDiary(t *testing.T) {
	mem := newTestMemory(t)
	exec := newTestExecutor(t)
	fake := &fakeLLM{content: `{"say":"working on it","cmd":[],"memory_write":[{"filename":"topic_note.txt","content":"hello"}],"diary_append":"did a thing","next_goal":""}`}

	p := New(Deps{Memory: mem, Executor: exec, LLM: fake}, Config{Model: "gpt-4.1-mini"}, "goal")

	if err := p.RunIteration(context.Background()); err != nil {
		t.Fatalf("RunIteration: %v", err)
	}

	content, err := mem.Content("topic_note.txt")
	if err != nil || content != "hello" {
		t.Fatalf("expected memory_write to persist, got %q (err=%v)", content, err)
	}
	diary, _ := mem.ReadDiary(5)
	if !contains(diary, "did a thing") {
		t.Fatalf("expected diary append, got %q", diary)
	}
	if p.IterationCount() != 1 {
		t.Fatalf("expected iteration count 1, got %d", p.IterationCount())
	}
}

func TestRunIterationAdoptsNextGoalWhenNoUserGoalActive(t *testing.T) {
	fake := &fakeLLM{content: `{"say":"ok","cmd":[],"memory_write":[],"diary_append":"","next_goal":"explore logs"}`}
	p := New(Deps{Memory: newTestMemory(t), LLM: fake}, Config{}, "goal")

	p.RunIteration(context.Background())

	if p.CurrentGoal() != "explore logs" {
		t.Fatalf("expected goal to adopt LLM's next_goal, got %q", p.CurrentGoal())
	}
}

func TestRunIterationSuppressesNextGoalWhileUserGoalActiveWithoutCompletionMarker(t *testing.T) {
	fake := &fakeLLM{content: `{"say":"still working","cmd":[],"memory_write":[],"diary_append":"","next_goal":"explore logs"}`}
	p := New(Deps{Memory: newTestMemory(t), LLM: fake}, Config{}, "goal")
	p.UpdateGoal("user's goal", "user")

	p.RunIteration(context.Background())

	if p.CurrentGoal() != "user's goal" {
		t.Fatalf("expected goal to remain the user's goal, got %q", p.CurrentGoal())
	}
	if !p.UserGoalActive() {
		t.Fatalf("expected user_goal_active to remain set")
	}
}

func TestRunIterationAdoptsNextGoalOnCompletionMarker(t *testing.T) {
	fake := &fakeLLM{content: `{"say":"task completed","cmd":[],"memory_write":[],"diary_append":"","next_goal":"explore logs"}`}
	p := New(Deps{Memory: newTestMemory(t), LLM: fake}, Config{CompletionMarkers: []string{"completed"}}, "goal")
	p.UpdateGoal("user's goal", "user")

	p.RunIteration(context.Background())

	if p.CurrentGoal() != "explore logs" {
		t.Fatalf("expected goal to switch to the LLM's next_goal after a completion marker, got %q", p.CurrentGoal())
	}
	if p.UserGoalActive() {
		t.Fatalf("expected user_goal_active to clear after completion")
	}
}

func TestRunIterationSkipsMalformedPlan(t *testing.T) {
	fake := &fakeLLM{content: `not json at all`}
	p := New(Deps{Memory: newTestMemory(t), LLM: fake}, Config{}, "goal")

	if err := p.RunIteration(context.Background()); err != nil {
		t.Fatalf("expected malformed plan to be skipped without error, got %v", err)
	}
	if p.CurrentGoal() != "goal" {
		t.Fatalf("expected goal to stay unchanged on malformed plan")
	}
}

func TestRunIterationTreatsLLMTransportErrorAsRetry(t *testing.T) {
	fake := &fakeLLM{err: context.DeadlineExceeded}
	p := New(Deps{Memory: newTestMemory(t), LLM: fake}, Config{}, "goal")

	if err := p.RunIteration(context.Background()); err != nil {
		t.Fatalf("expected a transport error to be swallowed for retry, got %v", err)
	}
}

func TestRunIterationHandlesGoalInboxEventAsUserUpdate(t *testing.T) {
	ib := newTestInbox(t)
	ib.Push("please organize the archive now", "user1")

	fake := &fakeLLM{content: `{"say":"ok","cmd":[],"memory_write":[],"diary_append":"","next_goal":""}`}
	p := New(Deps{Memory: newTestMemory(t), Inbox: ib, LLM: fake}, Config{}, "initial goal")

	p.RunIteration(context.Background())

	if p.CurrentGoal() != "please organize the archive now" {
		t.Fatalf("expected the inbox goal event to update the current goal, got %q", p.CurrentGoal())
	}
}

func TestParsePlanTolerantOfFencedJSON(t *testing.T) {
	plan, err := parsePlan("```json\n{\"say\":\"hi\",\"cmd\":[],\"memory_write\":[],\"diary_append\":\"\",\"next_goal\":\"\"}\n```")
	if err != nil {
		t.Fatalf("parsePlan: %v", err)
	}
	if plan.Say != "hi" {
		t.Fatalf("unexpected plan: %+v", plan)
	}
}

func TestParsePlanRejectsMissingRequiredKey(t *testing.T) {
	_, err := parsePlan(`{"say":"hi"}`)
	if err == nil {
		t.Fatalf("expected an error for a plan missing required keys")
	}
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
