// Package memory implements the append-only diary, topic files, and
// regenerable index (spec §4.4), ported from the Python prototype's
// memory.py.
package memory

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shipos/autonomous/internal/statefile"
	"github.com/shipos/autonomous/internal/types"
)

// Manager owns the diary file, the topics directory, and the regenerable
// index.json. All writes go through it so index.json and the topic files
// never drift apart.
type Manager struct {
	mu         sync.Mutex
	baseDir    string
	diaryPath  string
	indexPath  string
	topicsDir  string
	index      types.MemoryIndex
}

// New creates the directory layout under baseDir and loads (or
// initializes) the index.
func New(baseDir string) (*Manager, error) {
	topicsDir := filepath.Join(baseDir, "topics")
	if err := os.MkdirAll(topicsDir, 0o755); err != nil {
		return nil, fmt.Errorf("memory: mkdir topics: %w", err)
	}
	m := &Manager{
		baseDir:   baseDir,
		diaryPath: filepath.Join(baseDir, "diary.txt"),
		indexPath: filepath.Join(baseDir, "index.json"),
		topicsDir: topicsDir,
	}
	var idx types.MemoryIndex
	if ok, _ := statefile.ReadSnapshot(m.indexPath, &idx); ok && idx.Topics != nil {
		m.index = idx
	} else {
		m.index = types.MemoryIndex{Topics: map[string][]types.MemoryRecord{}}
	}
	return m, nil
}

func topicOf(filename string) string {
	if i := strings.Index(filename, "_"); i > 0 {
		return filename[:i]
	}
	return "general"
}

// Write saves a topic file (topic = prefix before the first underscore, or
// "general") and atomically updates the index.
func (m *Manager) Write(filename, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := filepath.Join(m.topicsDir, filename)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("memory: write %s: %w", filename, err)
	}

	sum := md5.Sum([]byte(content))
	rec := types.MemoryRecord{
		Topic:     topicOf(filename),
		Filename:  filename,
		CreatedAt: time.Now(),
		Size:      int64(len(content)),
		Hash:      hex.EncodeToString(sum[:]),
	}
	m.index.Topics[rec.Topic] = append(m.index.Topics[rec.Topic], rec)
	m.index.TotalMemories++
	return m.saveIndex()
}

func (m *Manager) saveIndex() error {
	return statefile.WriteSnapshot(m.indexPath, m.index)
}

// AppendDiary appends a timestamped entry block to diary.txt.
func (m *Manager) AppendDiary(entry string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, err := os.OpenFile(m.diaryPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("memory: open diary: %w", err)
	}
	defer f.Close()

	block := fmt.Sprintf("\n[%s]\n%s\n", time.Now().Format("2006-01-02 15:04:05"), entry)
	_, err = f.WriteString(block)
	return err
}

// ReadDiary returns the last n lines of the diary, or a documented
// placeholder if the diary is empty.
func (m *Manager) ReadDiary(n int) (string, error) {
	data, err := os.ReadFile(m.diaryPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "The diary is still empty.", nil
		}
		return "", fmt.Errorf("memory: read diary: %w", err)
	}
	if len(data) == 0 {
		return "The diary is still empty.", nil
	}
	lines := strings.Split(string(data), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n"), nil
}

// SearchResult is one search() hit.
type SearchResult struct {
	Filename   string `json:"filename"`
	Preview    string `json:"preview"`
	MatchCount int    `json:"match_count"`
}

// Search scans every topic file case-insensitively for keyword, ranking by
// match count descending.
func (m *Manager) Search(keyword string, limit int) ([]SearchResult, error) {
	entries, err := os.ReadDir(m.topicsDir)
	if err != nil {
		return nil, fmt.Errorf("memory: list topics: %w", err)
	}
	lowerKw := strings.ToLower(keyword)
	var results []SearchResult
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(m.topicsDir, e.Name()))
		if err != nil {
			continue
		}
		content := string(data)
		lower := strings.ToLower(content)
		count := strings.Count(lower, lowerKw)
		if count == 0 {
			continue
		}
		preview := content
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		results = append(results, SearchResult{Filename: e.Name(), Preview: preview, MatchCount: count})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].MatchCount > results[j].MatchCount })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Recent returns the n newest records across all topics, ordered by
// created_at descending.
func (m *Manager) Recent(n int) []types.MemoryRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	var all []types.MemoryRecord
	all = append(all, flatten(m.index)...)
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if len(all) > n {
		all = all[:n]
	}
	return all
}

func flatten(idx types.MemoryIndex) []types.MemoryRecord {
	var all []types.MemoryRecord
	for _, recs := range idx.Topics {
		all = append(all, recs...)
	}
	return all
}

// Summary returns a short Markdown digest used by the planner's prompt
// builder.
func (m *Manager) Summary() string {
	m.mu.Lock()
	idx := m.index
	m.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "# Memory summary\n\n")
	fmt.Fprintf(&b, "Total memories: %d\n", idx.TotalMemories)
	fmt.Fprintf(&b, "Topics: %d\n\n", len(idx.Topics))
	fmt.Fprintf(&b, "## Memories per topic\n")
	for topic, recs := range idx.Topics {
		fmt.Fprintf(&b, "- %s: %d\n", topic, len(recs))
	}
	fmt.Fprintf(&b, "\n## Recent memories\n")
	for _, rec := range m.Recent(5) {
		fmt.Fprintf(&b, "- [%s] %s (%s)\n", rec.Topic, rec.Filename, rec.CreatedAt.Format("2006-01-02"))
	}
	return b.String()
}

// WeeklyDigest renders the last 500 diary lines (not filtered by date) as a
// Markdown report,
// the scheduled maintenance-mode counterpart to ships_log.py's
// generate_weekly_summary: a running narrative digest rather than the
// per-action statistics the prototype also tracked (command/query/goal
// counters), which this module doesn't separately record.
func (m *Manager) WeeklyDigest() (string, error) {
	entries, err := m.ReadDiary(500)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# Weekly ship's log\n\n")
	fmt.Fprintf(&b, "%s\n", entries)
	return b.String(), nil
}

// Content returns a topic file's raw content, for callers (the planner's
// context builder) that need more than the index metadata.
func (m *Manager) Content(filename string) (string, error) {
	data, err := os.ReadFile(filepath.Join(m.topicsDir, filename))
	if err != nil {
		return "", fmt.Errorf("memory: read %s: %w", filename, err)
	}
	return string(data), nil
}

// Cleanup deletes topic files older than days and rebuilds the index,
// returning the number of files deleted.
func (m *Manager) Cleanup(days int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -days)
	deleted := 0
	for topic, recs := range m.index.Topics {
		var kept []types.MemoryRecord
		for _, rec := range recs {
			if rec.CreatedAt.Before(cutoff) {
				_ = os.Remove(filepath.Join(m.topicsDir, rec.Filename))
				deleted++
				continue
			}
			kept = append(kept, rec)
		}
		if len(kept) == 0 {
			delete(m.index.Topics, topic)
		} else {
			m.index.Topics[topic] = kept
		}
	}
	m.index.TotalMemories -= deleted
	if m.index.TotalMemories < 0 {
		m.index.TotalMemories = 0
	}
	return deleted, m.saveIndex()
}

// RegenerateIndex rebuilds index.json from the topic directory's actual
// contents, discarding whatever the in-memory/disk index said before. Used
// by the watchdog when index.json is found corrupt (spec §4.11); idempotent
// regardless of the index's prior state (spec §8).
func (m *Manager) RegenerateIndex() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := os.ReadDir(m.topicsDir)
	if err != nil {
		return fmt.Errorf("memory: list topics: %w", err)
	}
	idx := types.MemoryIndex{Topics: map[string][]types.MemoryRecord{}}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(m.topicsDir, e.Name()))
		if err != nil {
			continue
		}
		sum := md5.Sum(data)
		topic := topicOf(e.Name())
		idx.Topics[topic] = append(idx.Topics[topic], types.MemoryRecord{
			Topic:     topic,
			Filename:  e.Name(),
			CreatedAt: info.ModTime(),
			Size:      info.Size(),
			Hash:      hex.EncodeToString(sum[:]),
		})
		idx.TotalMemories++
	}
	m.index = idx
	return m.saveIndex()
}

// ExportAll dumps the index, diary, and every topic file's content into one
// JSON snapshot at outputPath.
func (m *Manager) ExportAll(outputPath string) error {
	m.mu.Lock()
	idx := m.index
	m.mu.Unlock()

	diary, err := m.ReadDiary(1000)
	if err != nil {
		return err
	}

	memories := map[string]string{}
	entries, err := os.ReadDir(m.topicsDir)
	if err != nil {
		return fmt.Errorf("memory: list topics: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(m.topicsDir, e.Name()))
		if err != nil {
			continue
		}
		memories[e.Name()] = string(data)
	}

	export := struct {
		ExportedAt time.Time              `json:"exported_at"`
		Index      types.MemoryIndex      `json:"index"`
		Diary      string                 `json:"diary"`
		Memories   map[string]string      `json:"memories"`
	}{ExportedAt: time.Now(), Index: idx, Diary: diary, Memories: memories}

	return statefile.WriteSnapshot(outputPath, export)
}
