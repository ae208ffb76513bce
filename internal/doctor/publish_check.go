package doctor

// PublishRepoCheck verifies the publish target is usable.
type PublishRepoCheck struct {
	BaseCheck
}

// NewPublishRepoCheck creates a new publish repository check.
func NewPublishRepoCheck() *PublishRepoCheck {
	return &PublishRepoCheck{
		BaseCheck: BaseCheck{
			CheckName:        "publish-repo",
			CheckDescription: "Verify the publish repository is a git working tree",
		},
	}
}

// Run checks the publish repository.
func (c *PublishRepoCheck) Run(ctx *CheckContext) *CheckResult {
	if ctx.Repo == nil {
		return &CheckResult{Name: c.Name(), Status: StatusOK, Message: "Publishing is disabled"}
	}
	if err := ctx.Repo.Verify(ctx.context()); err != nil {
		return &CheckResult{
			Name:    c.Name(),
			Status:  StatusError,
			Message: "Publish repository is not usable",
			Details: []string{err.Error()},
			FixHint: "Set publish.repo to a git checkout or run with --no-publish",
		}
	}
	return &CheckResult{Name: c.Name(), Status: StatusOK, Message: "Publish repository is a git working tree"}
}
