package doctor

import (
	"fmt"
	"os"
	"strings"

	"github.com/vrcwmt/worldperm/internal/roster"
)

// NormalizeMessage is the publish message used when the doctor rewrites the
// roster file.
const NormalizeMessage = "Normalize WorldPermissions.PSC"

// RosterFileCheck verifies that the roster file exists, decodes without
// skipped lines and is in canonical form. It can fix all three by rewriting
// the file from what was decoded.
type RosterFileCheck struct {
	FixableCheck
}

// NewRosterFileCheck creates a new roster file check.
func NewRosterFileCheck() *RosterFileCheck {
	return &RosterFileCheck{
		FixableCheck: FixableCheck{
			BaseCheck: BaseCheck{
				CheckName:        "roster-file",
				CheckDescription: "Verify the roster file decodes cleanly and is canonical",
			},
		},
	}
}

// Run inspects the roster file.
func (c *RosterFileCheck) Run(ctx *CheckContext) *CheckResult {
	g := ctx.Gateway
	r, diags, exists, err := g.Inspect(ctx.context())
	if err != nil {
		return &CheckResult{
			Name:    c.Name(),
			Status:  StatusError,
			Message: "Cannot read roster file",
			Details: []string{err.Error()},
		}
	}

	if !exists {
		return &CheckResult{
			Name:    c.Name(),
			Status:  StatusWarning,
			Message: "No roster file at " + g.Path() + " (will be created on first save)",
			FixHint: "Run 'wperm doctor --fix' to write an empty roster",
		}
	}

	if len(diags) > 0 {
		details := make([]string, 0, len(diags)+1)
		for _, d := range diags {
			details = append(details, d.String())
		}
		if n := diags.Dropped(); n > 0 {
			details = append(details, fmt.Sprintf("%d pseudonyms in unrecognized sections will be lost on the next save", n))
		}
		return &CheckResult{
			Name:    c.Name(),
			Status:  StatusWarning,
			Message: fmt.Sprintf("%d lines were ignored while decoding", len(diags)),
			Details: details,
			FixHint: "Run 'wperm doctor --fix' to rewrite the file in canonical form",
		}
	}

	data, err := os.ReadFile(g.Path())
	if err != nil {
		return &CheckResult{
			Name:    c.Name(),
			Status:  StatusError,
			Message: "Cannot read roster file",
			Details: []string{err.Error()},
		}
	}
	canonical, err := roster.EncodeString(r, g.Header())
	if err != nil {
		return &CheckResult{
			Name:    c.Name(),
			Status:  StatusError,
			Message: "Cannot encode roster",
			Details: []string{err.Error()},
		}
	}
	if body(string(data)) != body(canonical) {
		return &CheckResult{
			Name:    c.Name(),
			Status:  StatusWarning,
			Message: "Roster file is not in canonical order",
			FixHint: "Run 'wperm doctor --fix' to rewrite the file in canonical form",
		}
	}

	return &CheckResult{
		Name:    c.Name(),
		Status:  StatusOK,
		Message: fmt.Sprintf("Roster file is canonical (%d pseudonyms)", r.Total()),
	}
}

// Fix rewrites the roster file from its decoded content.
func (c *RosterFileCheck) Fix(ctx *CheckContext) error {
	r, _, _, err := ctx.Gateway.Inspect(ctx.context())
	if err != nil {
		return err
	}
	return ctx.Gateway.Save(ctx.context(), r, NormalizeMessage)
}

// body strips the header so files written by different builds compare equal.
func body(s string) string {
	if strings.HasPrefix(s, ">> ") {
		return s
	}
	if i := strings.Index(s, "\n>> "); i >= 0 {
		return s[i+1:]
	}
	return ""
}
