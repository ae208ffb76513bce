package publish

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Git publishes files by committing them in a working tree and pushing.
type Git struct {
	// Dir is the working tree. Paths passed to Publish may be absolute or
	// relative to Dir.
	Dir string

	// Remote and Branch are passed to git push when set.
	Remote string
	Branch string

	// Push controls whether the commit is pushed.
	Push bool

	// Author overrides the commit author ("Name <email>") when set.
	Author string

	Logger *zap.SugaredLogger
}

// Publish runs git add, git commit and optionally git push.
// A commit with nothing staged is treated as success and nothing is pushed.
func (g *Git) Publish(ctx context.Context, paths []string, message string) error {
	if len(paths) == 0 {
		return nil
	}

	rel := make([]string, 0, len(paths))
	for _, p := range paths {
		rel = append(rel, g.relative(p))
	}

	if _, err := g.run(ctx, append([]string{"add", "--"}, rel...)...); err != nil {
		return err
	}

	commitArgs := []string{"commit", "-m", message}
	if g.Author != "" {
		commitArgs = append(commitArgs, "--author", g.Author)
	}
	commitArgs = append(commitArgs, "--")
	commitArgs = append(commitArgs, rel...)
	if out, err := g.run(ctx, commitArgs...); err != nil {
		if nothingToCommit(out, err) {
			g.logf("nothing to commit", "paths", rel)
			return nil
		}
		return err
	}

	if !g.Push {
		return nil
	}

	pushArgs := []string{"push"}
	if g.Remote != "" {
		pushArgs = append(pushArgs, g.Remote)
		if g.Branch != "" {
			pushArgs = append(pushArgs, g.Branch)
		}
	}
	if _, err := g.run(ctx, pushArgs...); err != nil {
		return err
	}

	g.logf("published", "paths", rel, "message", message)
	return nil
}

// Verify checks that Dir is inside a git working tree.
func (g *Git) Verify(ctx context.Context) error {
	out, err := g.run(ctx, "rev-parse", "--is-inside-work-tree")
	if err != nil {
		return err
	}
	if strings.TrimSpace(out) != "true" {
		return fmt.Errorf("%s is not a git working tree", g.Dir)
	}
	return nil
}

// run executes git in Dir, returning combined stdout for inspection.
func (g *Git) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if g.Dir != "" {
		cmd.Dir = g.Dir
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		return stdout.String(), fmt.Errorf("git %s: %w: %s", args[0], err, msg)
	}
	return stdout.String(), nil
}

func (g *Git) relative(path string) string {
	if g.Dir == "" || !filepath.IsAbs(path) {
		return path
	}
	if rel, err := filepath.Rel(g.Dir, path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return path
}

func (g *Git) logf(msg string, keysAndValues ...interface{}) {
	if g.Logger != nil {
		g.Logger.Debugw(msg, keysAndValues...)
	}
}

// nothingToCommit recognizes git's exit status 1 with a clean index.
func nothingToCommit(stdout string, err error) bool {
	text := stdout + err.Error()
	return strings.Contains(text, "nothing to commit") ||
		strings.Contains(text, "no changes added to commit") ||
		strings.Contains(text, "nothing added to commit")
}
