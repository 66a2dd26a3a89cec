package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ppiankov/siteintent/internal/model"
)

type mockBuilder struct {
	shouldError bool
}

func (m *mockBuilder) Build(ctx context.Context, facts model.RawFacts) (*model.BuildResult, error) {
	time.Sleep(5 * time.Millisecond)
	if m.shouldError {
		return nil, errors.New("build error")
	}
	return &model.BuildResult{SourceURL: facts.SourceURL}, nil
}

func writeFacts(t *testing.T, dir, name, sourceURL string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	body := `{"source_url":"` + sourceURL + `"}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBatchProcessor_ProcessFiles(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		writeFacts(t, dir, "a.json", "https://a.example"),
		writeFacts(t, dir, "b.json", "https://b.example"),
		writeFacts(t, dir, "c.json", "https://c.example"),
	}

	processor := NewBatchProcessor(&mockBuilder{}, 2)
	outcomes := processor.ProcessFiles(context.Background(), paths)

	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}
	want := []string{"https://a.example", "https://b.example", "https://c.example"}
	for i, o := range outcomes {
		if o.Error != nil {
			t.Errorf("unexpected error for %s: %v", o.Path, o.Error)
			continue
		}
		if o.Result.SourceURL != want[i] {
			t.Errorf("outcome %d source = %s, want %s", i, o.Result.SourceURL, want[i])
		}
	}
}

func TestBatchProcessor_BuildError(t *testing.T) {
	dir := t.TempDir()
	path := writeFacts(t, dir, "a.json", "https://a.example")

	outcomes := NewBatchProcessor(&mockBuilder{shouldError: true}, 2).ProcessFiles(context.Background(), []string{path})
	if len(outcomes) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(outcomes))
	}
	if outcomes[0].Error == nil {
		t.Error("expected error, got nil")
	}
	if outcomes[0].Result != nil {
		t.Error("expected nil result on error")
	}
}

func TestBatchProcessor_BadFacts(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	outcomes := NewBatchProcessor(&mockBuilder{}, 1).ProcessFiles(context.Background(), []string{bad, filepath.Join(dir, "missing.json")})
	for _, o := range outcomes {
		if o.Error == nil {
			t.Errorf("expected error for %s", o.Path)
		}
	}
}

func TestBatchProcessor_Empty(t *testing.T) {
	outcomes := NewBatchProcessor(&mockBuilder{}, 2).ProcessFiles(context.Background(), nil)
	if len(outcomes) != 0 {
		t.Errorf("expected 0 outcomes, got %d", len(outcomes))
	}
}

func TestReadPathsFromFile(t *testing.T) {
	dir := t.TempDir()
	list := filepath.Join(dir, "list.txt")
	content := "a.json\n# comment\n/abs/b.json\n   \nc.json   \na.json\n"
	if err := os.WriteFile(list, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	paths, err := ReadPathsFromFile(list)
	if err != nil {
		t.Fatalf("ReadPathsFromFile failed: %v", err)
	}

	expected := []string{filepath.Join(dir, "a.json"), "/abs/b.json", filepath.Join(dir, "c.json")}
	if len(paths) != len(expected) {
		t.Fatalf("expected %d paths, got %d: %v", len(expected), len(paths), paths)
	}
	for i, p := range paths {
		if p != expected[i] {
			t.Errorf("path %d = %s, want %s", i, p, expected[i])
		}
	}
}

func TestReadPathsFromFile_NonExistent(t *testing.T) {
	if _, err := ReadPathsFromFile("non_existent_file.txt"); err == nil {
		t.Error("expected error for non-existent file, got nil")
	}
}

func TestBatchProcessor_ProcessList(t *testing.T) {
	dir := t.TempDir()
	writeFacts(t, dir, "a.json", "https://a.example")
	writeFacts(t, dir, "b.json", "https://b.example")
	list := filepath.Join(dir, "list.txt")
	if err := os.WriteFile(list, []byte("a.json\nb.json\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	outcomes, err := NewBatchProcessor(&mockBuilder{}, 2).ProcessList(context.Background(), list)
	if err != nil {
		t.Fatalf("ProcessList failed: %v", err)
	}
	if len(outcomes) != 2 {
		t.Errorf("expected 2 outcomes, got %d", len(outcomes))
	}

	if _, err := NewBatchProcessor(&mockBuilder{}, 2).ProcessList(context.Background(), filepath.Join(dir, "nope.txt")); err == nil {
		t.Error("expected error for missing list")
	}
}

func TestFactsInDir(t *testing.T) {
	dir := t.TempDir()
	writeFacts(t, dir, "b.json", "b")
	writeFacts(t, dir, "a.json", "a")
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	paths, err := FactsInDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 2 || filepath.Base(paths[0]) != "a.json" {
		t.Errorf("unexpected paths: %v", paths)
	}
}
