// Package inbox implements the event inbox / goal-update protocol (spec
// §4.6): classifying raw chat text as query or goal, and draining the
// JSONL inbox file for the planner. The classification heuristic is
// ported from the Python prototype's line_bot.py::_classify_input, with
// its hard-coded interrogative-marker list generalized into a configured
// pattern table (see internal/config.InboxConfig).
package inbox

import (
	"encoding/json"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shipos/autonomous/internal/statefile"
	"github.com/shipos/autonomous/internal/types"
)

// Classifier turns raw text into an EventType using a configured pattern
// table, a pure deterministic function of the text.
type Classifier struct {
	queryPatterns     []*regexp.Regexp
	shortTextMaxLen   int
	imperativeEndings []string
}

// NewClassifier compiles the configured query patterns.
func NewClassifier(queryPatterns []string, shortTextMaxLen int, imperativeEndings []string) *Classifier {
	c := &Classifier{shortTextMaxLen: shortTextMaxLen, imperativeEndings: imperativeEndings}
	for _, p := range queryPatterns {
		if re, err := regexp.Compile("(?i)" + p); err == nil {
			c.queryPatterns = append(c.queryPatterns, re)
		}
	}
	return c
}

// Classify returns query if text matches any configured interrogative
// pattern, or is short without an imperative ending; otherwise goal.
func (c *Classifier) Classify(text string) types.EventType {
	trimmed := strings.TrimSpace(text)
	for _, re := range c.queryPatterns {
		if re.MatchString(trimmed) {
			return types.EventQuery
		}
	}
	if len([]rune(trimmed)) <= c.shortTextMaxLen && !c.endsImperative(trimmed) {
		return types.EventQuery
	}
	return types.EventGoal
}

func (c *Classifier) endsImperative(text string) bool {
	lower := strings.ToLower(text)
	for _, ending := range c.imperativeEndings {
		if strings.HasSuffix(lower, strings.ToLower(ending)) {
			return true
		}
	}
	return false
}

// Inbox owns commands/inbox.jsonl and commands/history/.
type Inbox struct {
	path       string
	historyDir string
	classifier *Classifier
}

// New builds an Inbox backed by the given JSONL path and history directory.
func New(path, historyDir string, classifier *Classifier) *Inbox {
	return &Inbox{path: path, historyDir: historyDir, classifier: classifier}
}

// Push classifies text and appends a new Event to the inbox file, returning
// the generated event.
func (ib *Inbox) Push(text, userID string) (types.Event, error) {
	ev := types.Event{
		ID:        uuid.New().String(),
		Type:      ib.classifier.Classify(text),
		Text:      text,
		UserID:    userID,
		Timestamp: time.Now(),
	}
	if err := statefile.AppendJSONL(ib.path, ev); err != nil {
		return ev, err
	}
	return ev, nil
}

// PushEvent appends an already-typed event, used when the caller (e.g. the
// webhook command vocabulary) has already decided type/text.
func (ib *Inbox) PushEvent(ev types.Event) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	return statefile.AppendJSONL(ib.path, ev)
}

// Drain reads every pending event, archives each to
// history/YYYYMMDD/<uuid>.json, then truncates the inbox file. Each event
// id appears exactly once in history and is returned exactly once to the
// caller (spec §8 "inbox exactly-once").
func (ib *Inbox) Drain() ([]types.Event, error) {
	events, err := statefile.ReadAllJSONL[types.Event](ib.path)
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		day := ev.Timestamp.Format("20060102")
		path := ib.historyDir + "/" + day + "/" + ev.ID + ".json"
		_ = statefile.WriteSnapshot(path, ev) // archival failures never block draining
	}
	if err := statefile.Truncate(ib.path); err != nil {
		return events, err
	}
	return events, nil
}

// legacyCommand is the JSON shape of the deprecated single-command file.
type legacyCommand struct {
	Command string `json:"command"`
}

// DrainLegacy supports the pre-inbox single-command file: it takes the
// last line's command field as a new user goal and always removes the
// file afterward, whether or not a usable command was found. Mirrors the
// prototype's process_inbox() backward-compatibility branch for
// user_commands.jsonl, which this module generalizes to a configurable
// path rather than a hard-coded one.
func (ib *Inbox) DrainLegacy(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	defer os.Remove(path)

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if last == "" {
		return "", nil
	}
	var cmd legacyCommand
	if err := json.Unmarshal([]byte(last), &cmd); err != nil {
		return "", nil
	}
	return cmd.Command, nil
}
