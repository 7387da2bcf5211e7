// Package publish pushes the written store file to a git remote so static
// hosting can serve it.
package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Runner executes git with args inside dir and returns combined output.
type Runner func(ctx context.Context, dir string, args ...string) ([]byte, error)

// ExecRunner runs the git binary found on PATH.
func ExecRunner(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// GitPublisher commits the store file in RepoDir and pushes it. It implements crawl.Publisher.
type GitPublisher struct {
	RepoDir string
	Remote  string
	// Branch is the remote branch to push to; empty pushes the current branch.
	Branch  string
	Timeout time.Duration
	Run     Runner
}

func (g *GitPublisher) runner() Runner {
	if g.Run != nil {
		return g.Run
	}
	return ExecRunner
}

// Publish stages path, commits it with message when it changed, and pushes.
// An unchanged file is not an error and nothing is pushed.
func (g *GitPublisher) Publish(ctx context.Context, path, message string) error {
	if g.RepoDir == "" {
		return errors.New("publish: repo dir not set")
	}
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}
	rel, err := relativeTo(g.RepoDir, path)
	if err != nil {
		return err
	}
	run := g.runner()
	git := func(args ...string) error {
		out, err := run(ctx, g.RepoDir, args...)
		if err != nil {
			return fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
		}
		return nil
	}

	if err := git("add", "--", rel); err != nil {
		return err
	}
	// diff --quiet exits 1 when the staged tree differs from HEAD
	if _, err := run(ctx, g.RepoDir, "diff", "--cached", "--quiet", "--", rel); err == nil {
		slog.Info("store unchanged, nothing to publish", slog.String("component", "publish"), slog.String("path", rel))
		return nil
	}
	if err := git("commit", "-m", message, "--", rel); err != nil {
		return err
	}
	remote := g.Remote
	if remote == "" {
		remote = "origin"
	}
	ref := "HEAD"
	if g.Branch != "" {
		ref = "HEAD:" + g.Branch
	}
	if err := git("push", remote, ref); err != nil {
		return err
	}
	slog.Info("store published", slog.String("component", "publish"), slog.String("remote", remote), slog.String("ref", ref))
	return nil
}

func relativeTo(dir, path string) (string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("publish: %s is outside repo %s", path, dir)
	}
	return filepath.ToSlash(rel), nil
}
