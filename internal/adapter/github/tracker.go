// Package github files issue reports through the GitHub CLI.
package github

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/couchcryptid/occupancy-etl/internal/issues"
)

type runFunc func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

// Tracker creates issues with `gh issue create`. The gh CLI must be installed
// and authenticated.
type Tracker struct {
	label string
	repo  string
	run   runFunc
}

// NewTracker creates a Tracker applying label to every issue. An empty repo
// lets gh infer the repository from the working directory.
func NewTracker(label, repo string) *Tracker {
	return &Tracker{label: label, repo: repo, run: runCommand}
}

// Submit creates the issue and returns the URL printed by gh.
func (t *Tracker) Submit(ctx context.Context, report issues.Report) (string, error) {
	args := []string{"issue", "create", "--title", report.Title, "--body", report.Body}
	if t.label != "" {
		args = append(args, "--label", t.label)
	}
	if t.repo != "" {
		args = append(args, "--repo", t.repo)
	}

	stdout, stderr, err := t.run(ctx, "gh", args...)
	if errors.Is(err, exec.ErrNotFound) {
		return "", fmt.Errorf("%w: gh CLI not found in PATH", issues.ErrTrackerUnavailable)
	}
	if err != nil {
		if msg := strings.TrimSpace(string(stderr)); msg != "" {
			return "", fmt.Errorf("gh issue create: %w: %s", err, msg)
		}
		return "", fmt.Errorf("gh issue create: %w", err)
	}
	return strings.TrimSpace(string(stdout)), nil
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}
