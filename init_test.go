package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestApplySectionCreate verifies that applySection on empty content yields
// just the section with a trailing newline.
func TestApplySectionCreate(t *testing.T) {
	t.Parallel()
	section := sentinelStart + "\nproject: \"app\"\n" + sentinelEnd
	got := applySection("", section)
	if got != section+"\n" {
		t.Errorf("got %q", got)
	}
}

// TestApplySectionAppend verifies that existing content without a sentinel block
// is preserved and the section is appended.
func TestApplySectionAppend(t *testing.T) {
	t.Parallel()
	existing := "format: toon\nskip_install: true"
	section := sentinelStart + "\nproject: \"app\"\n" + sentinelEnd
	got := applySection(existing, section)

	if !strings.HasPrefix(got, existing+"\n\n") {
		t.Errorf("existing content should be preserved at start:\n%s", got)
	}
	if !strings.HasSuffix(got, section+"\n") {
		t.Errorf("section should be appended:\n%s", got)
	}
}

// TestApplySectionUpdate verifies that an existing sentinel block is replaced
// precisely, leaving surrounding content intact.
func TestApplySectionUpdate(t *testing.T) {
	t.Parallel()
	before := "format: toon\n\n"
	after := "\n\nverbose: true\n"
	old := before + sentinelStart + "\nproject: \"old\"\n" + sentinelEnd + after

	section := generateSection("new", "")
	got := applySection(old, section)

	if !strings.HasPrefix(got, before) {
		t.Errorf("content before sentinel should be preserved:\n%s", got)
	}
	if !strings.HasSuffix(got, after) {
		t.Errorf("content after sentinel should be preserved:\n%s", got)
	}
	if strings.Contains(got, `"old"`) {
		t.Error("old project should be replaced")
	}
	if !strings.Contains(got, `project: "new"`) {
		t.Error("new project missing")
	}
}

func TestGenerateSection(t *testing.T) {
	t.Parallel()
	got := generateSection("shop", "web")
	want := sentinelStart + "\nproject: \"shop\"\ndirectory: \"web\"\n" + sentinelEnd
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if strings.Contains(generateSection("shop", ""), "directory") {
		t.Error("empty directory should be omitted")
	}
}

func createWorkspace(t *testing.T, angularJSON string) string {
	t.Helper()
	dir := t.TempDir()
	writeTestFile(t, dir, "angular.json", angularJSON)
	return dir
}

// TestInitInfersSingleProject verifies that init writes the only declared
// project when --client-project is omitted.
func TestInitInfersSingleProject(t *testing.T) {
	t.Parallel()
	dir := createWorkspace(t, `{"projects":{"shop":{}}}`)

	var stdout, stderr bytes.Buffer
	if err := run([]string{"init", dir}, &stdout, &stderr); err != nil {
		t.Fatalf("init: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, configName))
	if err != nil {
		t.Fatalf("file not created: %v", err)
	}
	if !strings.Contains(string(data), `project: "shop"`) {
		t.Errorf("missing project, got:\n%s", data)
	}
}

func TestInitDefaultProject(t *testing.T) {
	t.Parallel()
	dir := createWorkspace(t, `{"defaultProject":"admin","projects":{"shop":{},"admin":{}}}`)

	var stdout, stderr bytes.Buffer
	if err := run([]string{"init", "--dry-run", dir}, &stdout, &stderr); err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(stdout.String(), `project: "admin"`) {
		t.Errorf("got:\n%s", stdout.String())
	}
}

func TestInitAmbiguousProject(t *testing.T) {
	t.Parallel()
	dir := createWorkspace(t, `{"projects":{"shop":{},"admin":{}}}`)

	var stdout, stderr bytes.Buffer
	err := run([]string{"init", dir}, &stdout, &stderr)
	if err == nil || !strings.Contains(err.Error(), "--client-project") {
		t.Fatalf("expected hint about --client-project, got %v", err)
	}
}

// TestInitDryRun verifies that --dry-run prints the full would-be file content
// to stdout and does not create or modify the target file.
func TestInitDryRun(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	existing := "format: toon\n"
	writeTestFile(t, dir, configName, existing)

	var stdout, stderr bytes.Buffer
	if err := run([]string{"init", "--dry-run", "--client-project", "app", dir}, &stdout, &stderr); err != nil {
		t.Fatalf("init: %v", err)
	}

	out := stdout.String()
	if !strings.HasPrefix(out, existing) {
		t.Error("dry-run output missing existing file content")
	}
	if !strings.Contains(out, sentinelStart) {
		t.Error("dry-run output missing sentinel start")
	}
	data, _ := os.ReadFile(filepath.Join(dir, configName))
	if string(data) != existing {
		t.Error("--dry-run must not modify the file")
	}
}

// TestInitIdempotent verifies that running init twice produces identical output.
func TestInitIdempotent(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, configName)

	var buf bytes.Buffer
	if err := run([]string{"init", "--client-project", "app", dir}, &buf, &buf); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first, _ := os.ReadFile(path)

	if err := run([]string{"init", "--client-project", "app", dir}, &buf, &buf); err != nil {
		t.Fatalf("second run: %v", err)
	}
	second, _ := os.ReadFile(path)

	if string(first) != string(second) {
		t.Errorf("init is not idempotent:\nfirst:\n%s\nsecond:\n%s", first, second)
	}
}
