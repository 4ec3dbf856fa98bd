package gitops

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var tagPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._/-]*$`)

// Upper bounds for git subprocesses. A shorter deadline on ctx still wins.
const (
	CloneTimeout   = 10 * time.Minute
	CommandTimeout = 30 * time.Second
)

// output runs a read-only git command in dir under CommandTimeout.
func output(ctx context.Context, dir string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, CommandTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil && ctx.Err() != nil {
		return nil, fmt.Errorf("git %s: %w", args[0], ctx.Err())
	}
	return out, err
}

// CloneAndCheckout shallow-clones repo at ref into dest. An empty ref clones
// the default branch with full history so commit metrics stay meaningful.
func CloneAndCheckout(ctx context.Context, repo, ref, dest string) error {
	if repo == "" || strings.HasPrefix(repo, "-") {
		return fmt.Errorf("invalid repository %q", repo)
	}
	args := []string{"clone"}
	if ref != "" {
		if !tagPattern.MatchString(ref) {
			return fmt.Errorf("invalid ref %q", ref)
		}
		args = append(args, "--branch", ref)
	}
	args = append(args, "--", repo, dest)
	ctx, cancel := context.WithTimeout(ctx, CloneTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "git", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("git clone: %w", ctx.Err())
		}
		return fmt.Errorf("git clone: %s: %w", out, err)
	}
	return nil
}

// IsRepo reports whether dir is the top of a git work tree.
func IsRepo(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil
}

type Commit struct {
	Hash    string    `json:"hash"`
	Time    time.Time `json:"time"`
	Subject string    `json:"subject"`
}

// Log returns commits reachable from HEAD, newest first. limit <= 0 means
// no limit.
func Log(ctx context.Context, dir string, limit int) ([]Commit, error) {
	args := []string{"log", "--format=%H%x09%at%x09%s"}
	if limit > 0 {
		args = append(args, "-n", strconv.Itoa(limit))
	}
	out, err := output(ctx, dir, args...)
	if err != nil {
		return nil, fmt.Errorf("git log: %w", err)
	}
	var commits []Commit
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 {
			continue
		}
		c := Commit{Hash: parts[0], Subject: parts[2]}
		if ts, err := strconv.ParseInt(parts[1], 10, 64); err == nil {
			c.Time = time.Unix(ts, 0).UTC()
		}
		commits = append(commits, c)
	}
	return commits, nil
}

// BranchCount counts local and remote-tracking branches.
func BranchCount(ctx context.Context, dir string) (int, error) {
	out, err := output(ctx, dir, "branch", "-a", "--format=%(refname)")
	if err != nil {
		return 0, fmt.Errorf("git branch: %w", err)
	}
	n := 0
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasSuffix(line, "/HEAD") {
			continue
		}
		n++
	}
	return n, nil
}

// CommitCount is a cheap count of commits reachable from HEAD.
func CommitCount(ctx context.Context, dir string) (int, error) {
	out, err := output(ctx, dir, "rev-list", "--count", "HEAD")
	if err != nil {
		return 0, fmt.Errorf("git rev-list: %w", err)
	}
	return strconv.Atoi(strings.TrimSpace(string(out)))
}
