// Package actor works out who is making a change when no name is given.
package actor

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Sources an identity can come from.
const (
	SourceFlag        = "flag"
	SourceGitConfig   = "git-config"
	SourceGitHubCLI   = "github-cli"
	SourceEnvironment = "environment"
)

const detectTimeout = 2 * time.Second

// Actor is the identity recorded with a roster change.
type Actor struct {
	// Username is the short handle written to logs and notifications.
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Source   string `json:"source"`
}

func (a Actor) String() string {
	return a.Username
}

// Resolve returns the explicit name when set, otherwise Detect(workDir).
func Resolve(ctx context.Context, explicit, workDir string) Actor {
	if name := strings.TrimSpace(explicit); name != "" {
		return Actor{Username: name, Name: name, Source: SourceFlag}
	}
	return Detect(ctx, workDir)
}

// Detect attempts to detect an identity from available sources.
// Priority order:
//  1. Git config of workDir (user.name + user.email)
//  2. GitHub CLI (gh api user)
//  3. Environment ($USER)
func Detect(ctx context.Context, workDir string) Actor {
	ctx, cancel := context.WithTimeout(ctx, detectTimeout)
	defer cancel()

	if a, ok := fromGitConfig(ctx, workDir); ok {
		return a
	}
	if a, ok := fromGitHub(ctx); ok {
		return a
	}
	return fromEnvironment()
}

func gitConfig(ctx context.Context, dir, key string) string {
	cmd := exec.CommandContext(ctx, "git", "config", key)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

func fromGitConfig(ctx context.Context, dir string) (Actor, bool) {
	name := gitConfig(ctx, dir, "user.name")
	if name == "" {
		return Actor{}, false
	}
	email := gitConfig(ctx, dir, "user.email")
	return Actor{
		Username: deriveUsername(name, email),
		Name:     name,
		Email:    email,
		Source:   SourceGitConfig,
	}, true
}

func fromGitHub(ctx context.Context) (Actor, bool) {
	out, err := exec.CommandContext(ctx, "gh", "api", "user", "--jq", `.login + "|" + .name + "|" + .email`).Output()
	if err != nil {
		return Actor{}, false
	}
	return parseGitHub(string(out))
}

// parseGitHub reads "login|name|email" as printed by gh.
func parseGitHub(out string) (Actor, bool) {
	parts := strings.Split(strings.TrimSpace(out), "|")
	if parts[0] == "" {
		return Actor{}, false
	}

	a := Actor{Username: parts[0], Name: parts[0], Source: SourceGitHubCLI}
	if len(parts) >= 2 && parts[1] != "" {
		a.Name = parts[1]
	}
	if len(parts) >= 3 {
		a.Email = parts[2]
	}
	return a, true
}

func fromEnvironment() Actor {
	name := os.Getenv("USER")
	if name == "" {
		name = os.Getenv("USERNAME")
	}
	if name == "" {
		name = "unknown"
	}
	return Actor{Username: name, Name: name, Source: SourceEnvironment}
}

// deriveUsername uses the local part of email, or failing that a lowercased
// and hyphenated name.
func deriveUsername(name, email string) string {
	if idx := strings.Index(email, "@"); idx > 0 {
		return strings.ToLower(email[:idx])
	}

	var cleaned strings.Builder
	for _, r := range strings.ToLower(strings.ReplaceAll(name, " ", "-")) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			cleaned.WriteRune(r)
		}
	}
	if cleaned.Len() == 0 {
		return "unknown"
	}
	return cleaned.String()
}
