package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/vrcwmt/worldperm/internal/doctor"
	"github.com/vrcwmt/worldperm/internal/publish"
	"github.com/vrcwmt/worldperm/internal/style"
)

var doctorCmd = &cobra.Command{
	Use:     "doctor",
	GroupID: GroupService,
	Short:   "Check the roster file, side image and publish repository",
	Long: `Run health checks and optionally repair what can be repaired.

Checks:
  roster-file    The roster decodes without skipped lines and is canonical
  side-image     The side image is a PNG of the configured size
  publish-repo   The publish repository is a git working tree

With --fix the roster file is rewritten in canonical form. Pseudonyms under
unrecognized sections are lost when that happens, so read the warnings first.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

var (
	doctorFix  bool
	doctorJSON bool
)

var errChecksFailed = errors.New("doctor checks failed")

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().BoolVar(&doctorFix, "fix", false, "Repair fixable problems")
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "Print results as JSON")
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	git := newPublisher(cfg, logger)
	var pub publish.Publisher = publish.Nop{}
	ctx := &doctor.CheckContext{
		Context:     cmd.Context(),
		ImagePath:   cfg.ImagePath(),
		ImageWidth:  cfg.Image.Width,
		ImageHeight: cfg.Image.Height,
	}
	if git != nil {
		pub = git
		ctx.Repo = git
	}
	ctx.Gateway = newGateway(cfg, pub, logger)

	report := doctor.Default().Run(ctx, doctorFix)

	out := cmd.OutOrStdout()
	if doctorJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printReport(out, report)
	}

	if report.HasErrors() {
		return errChecksFailed
	}
	return nil
}

func printReport(w io.Writer, report *doctor.Report) {
	for _, res := range report.Results {
		prefix := style.SuccessPrefix
		switch res.Status {
		case doctor.StatusWarning:
			prefix = style.WarningPrefix
		case doctor.StatusError:
			prefix = style.ErrorPrefix
		}

		line := fmt.Sprintf("%s %s: %s", prefix, style.Bold.Render(res.Name), res.Message)
		if res.Fixed {
			line += style.Dim.Render(" (fixed)")
		}
		fmt.Fprintln(w, line)
		for _, d := range res.Details {
			fmt.Fprintf(w, "    %s\n", style.Dim.Render(d))
		}
		if res.FixHint != "" && res.Status != doctor.StatusOK {
			fmt.Fprintf(w, "    %s %s\n", style.ArrowPrefix, res.FixHint)
		}
	}
	fmt.Fprintf(w, "\n%s\n", report.Summary())
}
