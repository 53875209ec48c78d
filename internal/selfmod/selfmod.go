// Package selfmod implements the analyze-only self-improvement collaborator
// the planner's self_improve action delegates to (spec §4.7, supplemented
// from original_source/src/self_modifier.py). It never writes to the
// running source tree: Propose asks the LLM for a structured review of one
// or all source files and returns a Diff for a human to apply by hand.
package selfmod

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shipos/autonomous/internal/llm"
)

const systemPrompt = `You are a careful Go code reviewer for an autonomous agent runtime.
You read the given source file(s) and propose improvements. You never apply
changes yourself; you only describe them. Respond with a single JSON object:
{"analysis": "...", "issues": ["..."], "improvements": ["..."],
 "modifications": [{"file": "...", "reason": "...", "original_code": "...",
 "modified_code": "...", "line_start": 0, "line_end": 0}],
 "risk_level": "low|medium|high", "recommendation": "apply|review|reject"}`

// Modification is one proposed source-code change. It is descriptive only;
// nothing in this package applies it.
type Modification struct {
	File         string `json:"file"`
	Reason       string `json:"reason"`
	OriginalCode string `json:"original_code"`
	ModifiedCode string `json:"modified_code"`
	LineStart    int    `json:"line_start"`
	LineEnd      int    `json:"line_end"`
}

// Diff is the SelfModifier's analysis output.
type Diff struct {
	Analysis       string          `json:"analysis"`
	Issues         []string        `json:"issues"`
	Improvements   []string        `json:"improvements"`
	Modifications  []Modification  `json:"modifications"`
	RiskLevel      string          `json:"risk_level"`
	Recommendation string          `json:"recommendation"`
}

// SelfModifier is the analyze-only collaborator interface the planner's
// self_improve action targets.
type SelfModifier interface {
	Propose(ctx context.Context, targetFile, request string) (Diff, error)
}

// LLMSelfModifier implements SelfModifier by asking an llm.Client to review
// source under sourceDir. It has no write access to the tree it reviews.
type LLMSelfModifier struct {
	client    llm.Client
	model     string
	sourceDir string
}

// New builds an LLMSelfModifier rooted at sourceDir.
func New(client llm.Client, model, sourceDir string) *LLMSelfModifier {
	return &LLMSelfModifier{client: client, model: model, sourceDir: sourceDir}
}

// Propose reads targetFile (or, if empty, every .go file under sourceDir up
// to a byte budget) and asks the LLM to analyze it against request.
func (m *LLMSelfModifier) Propose(ctx context.Context, targetFile, request string) (Diff, error) {
	source, err := m.readSource(targetFile)
	if err != nil {
		return Diff{}, fmt.Errorf("selfmod: read source: %w", err)
	}

	userMsg := fmt.Sprintf("# Request\n%s\n\n# Source\n%s", request, source)
	resp, err := m.client.Chat(ctx, llm.Request{
		Model: m.model,
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userMsg},
		},
		Temperature: 0.3,
		MaxTokens:   2000,
	})
	if err != nil {
		return Diff{}, fmt.Errorf("selfmod: llm call: %w", err)
	}

	var diff Diff
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &diff); err != nil {
		return Diff{}, fmt.Errorf("selfmod: parse response: %w", err)
	}
	return diff, nil
}

const maxSourceBytes = 60_000

func (m *LLMSelfModifier) readSource(targetFile string) (string, error) {
	if targetFile != "" {
		data, err := os.ReadFile(filepath.Join(m.sourceDir, targetFile))
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	var b strings.Builder
	err := filepath.Walk(m.sourceDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || filepath.Ext(path) != ".go" || b.Len() >= maxSourceBytes {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(m.sourceDir, path)
		fmt.Fprintf(&b, "\n--- %s ---\n%s\n", rel, string(data))
		return nil
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}

// extractJSON strips a ```json fenced block if present, mirroring the
// planner's tolerant parsing.
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
