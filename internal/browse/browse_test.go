package browse

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func makeTree(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()

	dirs := []string{
		filepath.Join(tmpDir, "streamer", "2024-03"),
		filepath.Join(tmpDir, ".trash"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatalf("failed to create test dirs: %v", err)
		}
	}

	files := map[string]string{
		"b_stream.ts":                 "bbbb",
		"a_stream.TS":                 "aa",
		"._a_stream.ts":               "resource fork",
		"notes.txt":                   "some notes",
		"a_stream.mp4":                "already converted",
		"streamer/2024-03/late.ts":    "late",
		"streamer/2024-03/._late.ts":  "resource fork",
		".trash/deleted.ts":           "gone",
		"streamer/early.ts":           "early",
		"streamer/2024-03/cover.jpeg": "jpeg",
	}
	for name, content := range files {
		path := filepath.Join(tmpDir, filepath.FromSlash(name))
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("failed to create test file: %v", err)
		}
	}
	return tmpDir
}

func paths(root string, files []SourceFile) []string {
	out := make([]string, len(files))
	for i, f := range files {
		rel, _ := filepath.Rel(root, f.Path)
		out[i] = filepath.ToSlash(rel)
	}
	return out
}

func TestScanTopLevel(t *testing.T) {
	root := makeTree(t)
	scanner := NewScanner([]string{".ts"})

	files, err := scanner.Scan(context.Background(), root, false)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	got := paths(root, files)
	expected := []string{"a_stream.TS", "b_stream.ts"}
	if len(got) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("position %d: expected %s, got %s", i, expected[i], got[i])
		}
	}

	if files[0].Size != 2 {
		t.Errorf("expected size 2, got %d", files[0].Size)
	}
}

func TestScanRecursive(t *testing.T) {
	root := makeTree(t)
	scanner := NewScanner([]string{"ts"})

	files, err := scanner.Scan(context.Background(), root, true)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	got := paths(root, files)
	expected := []string{
		".trash/deleted.ts",
		"a_stream.TS",
		"b_stream.ts",
		"streamer/2024-03/late.ts",
		"streamer/early.ts",
	}
	if len(got) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("position %d: expected %s, got %s", i, expected[i], got[i])
		}
	}
}

func TestScanIsDeterministic(t *testing.T) {
	root := makeTree(t)
	scanner := NewScanner([]string{".ts"})

	first, err := scanner.Scan(context.Background(), root, true)
	if err != nil {
		t.Fatal(err)
	}
	second, err := scanner.Scan(context.Background(), root, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != len(second) {
		t.Fatalf("scan results differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Path != second[i].Path {
			t.Errorf("position %d differs: %s vs %s", i, first[i].Path, second[i].Path)
		}
	}
}

func TestScanEmptyDirectory(t *testing.T) {
	files, err := NewScanner([]string{".ts"}).Scan(context.Background(), t.TempDir(), true)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("expected no files, got %d", len(files))
	}
}

func TestScanRejectsNonDirectory(t *testing.T) {
	root := makeTree(t)
	scanner := NewScanner([]string{".ts"})

	if _, err := scanner.Scan(context.Background(), filepath.Join(root, "b_stream.ts"), false); err == nil {
		t.Error("expected error for a file path")
	}
	if _, err := scanner.Scan(context.Background(), filepath.Join(root, "missing"), false); err == nil {
		t.Error("expected error for a missing path")
	}
}

func TestScanCancelled(t *testing.T) {
	root := makeTree(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewScanner([]string{".ts"}).Scan(ctx, root, true); err == nil {
		t.Error("expected cancelled scan to fail")
	}
}

func TestIsCandidate(t *testing.T) {
	scanner := NewScanner([]string{".ts", "M2TS"})

	tests := []struct {
		name     string
		expected bool
	}{
		{"stream.ts", true},
		{"STREAM.TS", true},
		{"capture.m2ts", true},
		{"._stream.ts", false},
		{"stream.mp4", false},
		{"stream.ts.part", false},
		{"ts", false},
	}
	for _, tt := range tests {
		if got := scanner.IsCandidate(tt.name); got != tt.expected {
			t.Errorf("IsCandidate(%q) = %v, expected %v", tt.name, got, tt.expected)
		}
	}
}

func TestOutputPath(t *testing.T) {
	tests := []struct {
		src      string
		ext      string
		expected string
	}{
		{"/rec/stream.ts", ".mp4", "/rec/stream.mp4"},
		{"/rec/stream.TS", "mp4", "/rec/stream.mp4"},
		{"/rec/my.show.ts", ".mp4", "/rec/my.show.mp4"},
		{"/rec/noext", ".mp4", "/rec/noext.mp4"},
	}
	for _, tt := range tests {
		if got := OutputPath(tt.src, tt.ext); got != tt.expected {
			t.Errorf("OutputPath(%q, %q) = %q, expected %q", tt.src, tt.ext, got, tt.expected)
		}
	}
}

func TestTotalSize(t *testing.T) {
	files := []SourceFile{{Size: 10}, {Size: 32}}
	if got := TotalSize(files); got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
}
