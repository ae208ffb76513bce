package doctor

import (
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"os"
)

// SideImageCheck verifies the published side image decodes and has the
// expected size.
type SideImageCheck struct {
	BaseCheck
}

// NewSideImageCheck creates a new side image check.
func NewSideImageCheck() *SideImageCheck {
	return &SideImageCheck{
		BaseCheck: BaseCheck{
			CheckName:        "side-image",
			CheckDescription: "Verify the side image is a PNG of the configured size",
		},
	}
}

// Run checks the side image.
func (c *SideImageCheck) Run(ctx *CheckContext) *CheckResult {
	if ctx.ImagePath == "" {
		return &CheckResult{Name: c.Name(), Status: StatusOK, Message: "No side image configured"}
	}

	f, err := os.Open(ctx.ImagePath)
	if errors.Is(err, os.ErrNotExist) {
		return &CheckResult{
			Name:    c.Name(),
			Status:  StatusWarning,
			Message: "No side image at " + ctx.ImagePath,
			FixHint: "Run 'wperm image upload <file>'",
		}
	}
	if err != nil {
		return &CheckResult{Name: c.Name(), Status: StatusError, Message: "Cannot open side image", Details: []string{err.Error()}}
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return &CheckResult{
			Name:    c.Name(),
			Status:  StatusError,
			Message: "Side image is not a readable image",
			Details: []string{err.Error()},
			FixHint: "Run 'wperm image upload <file>' to replace it",
		}
	}

	if format != "png" || (ctx.ImageWidth > 0 && cfg.Width != ctx.ImageWidth) || (ctx.ImageHeight > 0 && cfg.Height != ctx.ImageHeight) {
		return &CheckResult{
			Name:    c.Name(),
			Status:  StatusWarning,
			Message: fmt.Sprintf("Side image is %dx%d %s, expected %dx%d png", cfg.Width, cfg.Height, format, ctx.ImageWidth, ctx.ImageHeight),
			FixHint: "Run 'wperm image upload <file>' to re-encode it",
		}
	}

	return &CheckResult{
		Name:    c.Name(),
		Status:  StatusOK,
		Message: fmt.Sprintf("Side image is %dx%d png", cfg.Width, cfg.Height),
	}
}
