package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const templatesYAML = `
- id: lease
  title: Lease
  published: true
  content: "Lease for {{tenant}}."
  requiredVariables:
    - name: tenant
- id: draft
  title: Draft
  content: "Dear {{name}}, [TODO]"
`

func seedDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "templates"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "templates", "seed.yaml"), []byte(templatesYAML), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "data.yaml"), []byte("tenant: Ben\n"), 0o644); err != nil {
		t.Fatalf("write data: %v", err)
	}
	return dir
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunUsage(t *testing.T) {
	t.Parallel()

	code, _, stderr := runCLI(t)
	if code != 2 || !strings.Contains(stderr, "batch-lint") {
		t.Fatalf("expected usage, got code %d: %s", code, stderr)
	}

	code, _, stderr = runCLI(t, "publish")
	if code != 2 || !strings.Contains(stderr, `unknown command "publish"`) {
		t.Fatalf("expected unknown command, got code %d: %s", code, stderr)
	}
}

func TestRunLintAndVerify(t *testing.T) {
	t.Parallel()
	dir := seedDir(t)

	code, stdout, stderr := runCLI(t, "lint", "-seed", dir, "lease")
	if code != 0 {
		t.Fatalf("lint failed (%d): %s", code, stderr)
	}
	if !strings.Contains(stdout, `"ok": true`) {
		t.Fatalf("unexpected lint output: %s", stdout)
	}

	code, stdout, _ = runCLI(t, "lint", "-seed", dir, "draft")
	if code != 1 || !strings.Contains(stdout, `"hasPlaceholders": true`) {
		t.Fatalf("expected draft lint to fail, got %d: %s", code, stdout)
	}

	code, stdout, stderr = runCLI(t, "verify", "-seed", dir, "-dry-run", "lease")
	if code != 0 {
		t.Fatalf("verify failed (%d): %s", code, stderr)
	}
	if !strings.Contains(stdout, `"status": "VERIFIED"`) {
		t.Fatalf("unexpected verify output: %s", stdout)
	}

	code, _, stderr = runCLI(t, "verify", "-seed", dir, "draft")
	if code != 1 || !strings.Contains(stderr, "verification: blocked") {
		t.Fatalf("expected blocked verify, got %d: %s", code, stderr)
	}
}

func TestRunRenderAndBatchLint(t *testing.T) {
	t.Parallel()
	dir := seedDir(t)

	code, stdout, stderr := runCLI(t, "render", "-seed", dir, "-data", filepath.Join(dir, "data.yaml"), "lease")
	if code != 0 {
		t.Fatalf("render failed (%d): %s", code, stderr)
	}
	if strings.TrimSpace(stdout) != "Lease for Ben." {
		t.Fatalf("unexpected render output %q", stdout)
	}

	code, stdout, _ = runCLI(t, "batch-lint", "-seed", dir, "-published")
	if code != 0 || !strings.Contains(stdout, `"templates": 1`) {
		t.Fatalf("unexpected batch lint result %d: %s", code, stdout)
	}

	code, _, _ = runCLI(t, "batch-lint", "-seed", dir)
	if code != 1 {
		t.Fatalf("expected batch lint over the draft to fail, got %d", code)
	}
}

func TestRunEdit(t *testing.T) {
	t.Parallel()
	dir := seedDir(t)
	body := filepath.Join(dir, "body.yaml")
	if err := os.WriteFile(body, []byte("en: Lease for {{tenant}}\nes: Arriendo para {{tenant}}\n"), 0o644); err != nil {
		t.Fatalf("write body: %v", err)
	}

	code, stdout, stderr := runCLI(t, "edit", "-seed", dir, "-file", body, "lease")
	if code != 0 {
		t.Fatalf("edit failed (%d): %s", code, stderr)
	}
	if !strings.Contains(stdout, `"verificationRequired": true`) || !strings.Contains(stdout, "Arriendo") {
		t.Fatalf("unexpected edit output: %s", stdout)
	}

	code, _, stderr = runCLI(t, "edit", "-seed", dir, "lease")
	if code != 1 || !strings.Contains(stderr, "-file is required") {
		t.Fatalf("expected missing file error, got %d: %s", code, stderr)
	}
}
