package executor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func TestPrepareWorkspaceCopiesTemplate(t *testing.T) {
	template := t.TempDir()
	writeFile(t, filepath.Join(template, "Cargo.toml"), "[package]\nname = \"challenge\"\n")
	writeFile(t, filepath.Join(template, "tests", "it.rs"), "#[test] fn it() {}")
	writeFile(t, filepath.Join(template, "src", "lib.rs"), "// placeholder")

	root := t.TempDir()
	dir, err := PrepareWorkspace(root, template, "pub fn add(a: i32, b: i32) -> i32 { a + b }")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if filepath.Dir(dir) != root {
		t.Fatalf("expected workspace under %s, got %s", root, dir)
	}
	if !strings.HasPrefix(filepath.Base(dir), containerNamePrefix) {
		t.Fatalf("expected workspace name to start with %s, got %s", containerNamePrefix, filepath.Base(dir))
	}
	if got := readFile(t, filepath.Join(dir, "Cargo.toml")); !strings.Contains(got, "challenge") {
		t.Fatalf("Cargo.toml not copied, got %q", got)
	}
	if got := readFile(t, filepath.Join(dir, "tests", "it.rs")); got != "#[test] fn it() {}" {
		t.Fatalf("nested file not copied, got %q", got)
	}
	// the submission replaces the template's placeholder
	if got := readFile(t, filepath.Join(dir, "src", "lib.rs")); !strings.HasPrefix(got, "pub fn add") {
		t.Fatalf("submission not written, got %q", got)
	}

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o777 {
		t.Fatalf("expected workspace mode 0777, got %o", info.Mode().Perm())
	}
}

func TestPrepareWorkspaceSymlinkedTemplate(t *testing.T) {
	base := t.TempDir()
	real := filepath.Join(base, "real")
	writeFile(t, filepath.Join(real, "Cargo.toml"), "[package]\nname = \"challenge\"\n")
	writeFile(t, filepath.Join(real, "tests", "it.rs"), "#[test] fn it() {}")

	link := filepath.Join(base, "link")
	if err := os.Symlink(real, link); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	dir, err := PrepareWorkspace(t.TempDir(), link, "pub fn f() {}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	info, err := os.Lstat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("expected the workspace to be a real directory, got %v (%v)", info, err)
	}
	if got := readFile(t, filepath.Join(dir, "tests", "it.rs")); got != "#[test] fn it() {}" {
		t.Fatalf("template behind symlink not copied, got %q", got)
	}
	if got := readFile(t, filepath.Join(dir, SubmissionPath)); got != "pub fn f() {}" {
		t.Fatalf("submission not written, got %q", got)
	}
}

func TestPrepareWorkspaceMissingTemplate(t *testing.T) {
	root := t.TempDir()
	dir, err := PrepareWorkspace(root, filepath.Join(root, "does-not-exist"), "fn main() {}")
	if err != nil {
		t.Fatalf("missing template must not be an error, got %v", err)
	}
	if got := readFile(t, filepath.Join(dir, SubmissionPath)); got != "fn main() {}" {
		t.Fatalf("unexpected submission %q", got)
	}
}

func TestPrepareWorkspaceEmptyTemplatePath(t *testing.T) {
	dir, err := PrepareWorkspace(t.TempDir(), "", "x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "src" {
		t.Fatalf("expected only src/, got %v", entries)
	}
}

func TestPrepareWorkspaceTemplateIsFile(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "template.txt")
	writeFile(t, file, "not a dir")

	dir, err := PrepareWorkspace(root, file, "x")
	if err == nil {
		t.Fatalf("expected error for non-directory template")
	}
	if dir == "" {
		t.Fatalf("expected the half-built workspace path to be returned for cleanup")
	}
}

func TestPrepareWorkspaceUniquePerRun(t *testing.T) {
	root := t.TempDir()
	first, err := PrepareWorkspace(root, "", "a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := PrepareWorkspace(root, "", "b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct workspaces, both were %s", first)
	}
}

func TestCopyDirPreservesModesAndSymlinks(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "run.sh"), "#!/bin/sh\n")
	if err := os.Chmod(filepath.Join(src, "run.sh"), 0o755); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	if err := os.Symlink("run.sh", filepath.Join(src, "link.sh")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	dst := t.TempDir()
	if err := copyDir(src, dst); err != nil {
		t.Fatalf("copyDir: %v", err)
	}

	info, err := os.Stat(filepath.Join(dst, "run.sh"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm()&0o100 == 0 {
		t.Fatalf("expected executable bit to survive, got %o", info.Mode().Perm())
	}

	target, err := os.Readlink(filepath.Join(dst, "link.sh"))
	if err != nil {
		t.Fatalf("expected symlink to be copied as a link: %v", err)
	}
	if target != "run.sh" {
		t.Fatalf("expected link target run.sh, got %s", target)
	}
}
