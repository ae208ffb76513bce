// Package doctor runs health checks against the roster file, the side image
// and the publish repository, and repairs what it can.
package doctor

import (
	"context"

	"github.com/vrcwmt/worldperm/internal/store"
)

// Status is the outcome of a check.
type Status int

const (
	StatusOK Status = iota
	StatusWarning
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusWarning:
		return "warning"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Verifier checks that the publish target is usable.
type Verifier interface {
	Verify(ctx context.Context) error
}

// CheckContext carries everything a check may look at.
type CheckContext struct {
	Context context.Context
	Gateway *store.Gateway

	// ImagePath, ImageWidth and ImageHeight describe the expected side image.
	ImagePath   string
	ImageWidth  int
	ImageHeight int

	// Repo is nil when publishing is disabled.
	Repo Verifier
}

func (ctx *CheckContext) context() context.Context {
	if ctx.Context == nil {
		return context.Background()
	}
	return ctx.Context
}

// CheckResult is what a check reports.
type CheckResult struct {
	Name    string   `json:"name"`
	Status  Status   `json:"status"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
	FixHint string   `json:"fix_hint,omitempty"`
	Fixed   bool     `json:"fixed,omitempty"`
}

// Check is a single diagnostic.
type Check interface {
	Name() string
	Description() string
	Run(ctx *CheckContext) *CheckResult
	CanFix() bool
	Fix(ctx *CheckContext) error
}

// BaseCheck implements the descriptive half of Check for checks that cannot
// fix anything.
type BaseCheck struct {
	CheckName        string
	CheckDescription string
}

func (b *BaseCheck) Name() string        { return b.CheckName }
func (b *BaseCheck) Description() string { return b.CheckDescription }
func (b *BaseCheck) CanFix() bool        { return false }

// Fix is a no-op for checks that cannot repair anything.
func (b *BaseCheck) Fix(*CheckContext) error { return nil }

// FixableCheck is embedded by checks that override Fix.
type FixableCheck struct {
	BaseCheck
}

func (f *FixableCheck) CanFix() bool { return true }
