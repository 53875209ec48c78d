package organizer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestClassifySortsLooseFilesByExtension(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"photo.jpg", "notes.txt", "archive.zip", "unknown.xyz"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "organized"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	proposals, err := Classify(dir)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(proposals) != 4 {
		t.Fatalf("expected 4 loose files classified, got %d: %+v", len(proposals), proposals)
	}

	byName := map[string]string{}
	for _, p := range proposals {
		byName[filepath.Base(p.Source)] = p.Category
	}
	if byName["photo.jpg"] != "images" || byName["notes.txt"] != "documents" ||
		byName["archive.zip"] != "archives" || byName["unknown.xyz"] != "other" {
		t.Fatalf("unexpected categories: %+v", byName)
	}
}

func TestRenderPlanListsEveryProposal(t *testing.T) {
	plan := RenderPlan([]MoveProposal{{Source: "/a/x.jpg", Destination: "/a/organized/images/x.jpg", Category: "images"}})
	if !strings.Contains(plan, "x.jpg") || !strings.Contains(plan, "images") {
		t.Fatalf("expected the plan to mention the file and category, got %q", plan)
	}
}

func TestRenderPlanEmptyProposals(t *testing.T) {
	plan := RenderPlan(nil)
	if !strings.Contains(plan, "Nothing to organize") {
		t.Fatalf("expected an empty-plan message, got %q", plan)
	}
}
