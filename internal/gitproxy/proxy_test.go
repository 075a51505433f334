package gitproxy

import (
	"errors"
	"os/exec"
	"testing"
)

func TestResolveRepoPath(t *testing.T) {
	root := t.TempDir()

	got, err := resolveRepoPath(root, "alice", "demo.git")
	if err != nil {
		t.Fatalf("resolveRepoPath: %v", err)
	}
	want := root + "/alice/demo.git"
	if got != want {
		t.Errorf("resolveRepoPath() = %q, want %q", got, want)
	}
}

func TestResolveRepoPathRejectsTraversal(t *testing.T) {
	root := t.TempDir()

	cases := []struct{ user, repo string }{
		{"../etc", "demo.git"},
		{"alice", "../../etc/passwd"},
		{"alice/x", "demo.git"},
	}
	for _, c := range cases {
		if _, err := resolveRepoPath(root, c.user, c.repo); err == nil {
			t.Errorf("resolveRepoPath(%q, %q) succeeded, want path-traversal error", c.user, c.repo)
		}
	}
}

func TestExitCodeNil(t *testing.T) {
	if code := exitCode(nil); code != 0 {
		t.Errorf("exitCode(nil) = %d, want 0", code)
	}
}

func TestExitCodeNonExitError(t *testing.T) {
	if code := exitCode(errors.New("boom")); code != 1 {
		t.Errorf("exitCode(generic error) = %d, want 1", code)
	}
}

func TestExitCodeFromExitError(t *testing.T) {
	cmd := exec.Command("sh", "-c", "exit 7")
	err := cmd.Run()
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Skip("sh not available in this environment")
	}
	if code := exitCode(err); code != 7 {
		t.Errorf("exitCode() = %d, want 7", code)
	}
}
