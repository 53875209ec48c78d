// Package organizer implements the file-organizer maintenance task
// (SPEC_FULL.md §6 "AI file organizer"): classify loose files in the fast
// tier by extension and propose a move plan, without ever moving anything
// itself. Ported from the prototype's ai_file_organizer.py, narrowed from
// its vision-model content classification (it shipped images to an LLM
// for a landscape/people/food/... category) to an extension heuristic,
// since this module has no image-classification collaborator; the
// move-plan shape and the never-mutate-directly rule carry over unchanged.
package organizer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var categoryByExtension = map[string]string{
	".jpg": "images", ".jpeg": "images", ".png": "images", ".gif": "images", ".webp": "images",
	".pdf": "documents", ".doc": "documents", ".docx": "documents", ".txt": "documents", ".md": "documents",
	".mp3": "music", ".flac": "music", ".wav": "music", ".ogg": "music",
	".mp4": "videos", ".mkv": "videos", ".mov": "videos", ".avi": "videos",
	".zip": "archives", ".tar": "archives", ".gz": "archives", ".7z": "archives",
}

func categoryFor(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if cat, ok := categoryByExtension[ext]; ok {
		return cat
	}
	return "other"
}

// MoveProposal is one file's recommended destination.
type MoveProposal struct {
	Source      string
	Destination string
	Category    string
}

// Classify walks root (non-recursively into existing category
// subdirectories, to avoid re-proposing files already organized) and
// proposes a destination under root/organized/<category>/ for every loose
// file it finds directly in root.
func Classify(root string) ([]MoveProposal, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("organizer: read %s: %w", root, err)
	}

	var proposals []MoveProposal
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		cat := categoryFor(name)
		proposals = append(proposals, MoveProposal{
			Source:      filepath.Join(root, name),
			Destination: filepath.Join(root, "organized", cat, name),
			Category:    cat,
		})
	}
	sort.Slice(proposals, func(i, j int) bool { return proposals[i].Source < proposals[j].Source })
	return proposals, nil
}

// RenderPlan formats proposals as Markdown for a memory-store write,
// letting the planner review and execute moves through its own cmd[] path
// (the Command Executor remains the only mutator of the filesystem).
func RenderPlan(proposals []MoveProposal) string {
	if len(proposals) == 0 {
		return "# File organizer\n\nNothing to organize right now.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# File organizer proposal\n\n")
	fmt.Fprintf(&b, "%d loose file(s) found. Proposed moves (none applied yet):\n\n", len(proposals))
	for _, p := range proposals {
		fmt.Fprintf(&b, "- `%s` -> `%s` (%s)\n", p.Source, p.Destination, p.Category)
	}
	return b.String()
}
