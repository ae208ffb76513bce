// Package cmd implements the wperm command tree.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vrcwmt/worldperm/internal/actor"
	"github.com/vrcwmt/worldperm/internal/config"
	"github.com/vrcwmt/worldperm/internal/style"
)

// Version is stamped at build time.
var Version = "dev"

// Command groups shown in help output.
const (
	GroupRoster  = "roster"
	GroupImage   = "image"
	GroupService = "service"
)

var rootCmd = &cobra.Command{
	Use:   "wperm",
	Short: "Manage the world permission roster",
	Long: `wperm edits the world's permission roster (WorldPermissions.PSC) and
side image, then publishes both to the world repository.

Every change is written atomically and followed by a git commit and push.
Configuration is read from wperm.toml, WPERM_* environment variables and
flags, in increasing order of precedence.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

var (
	cfg    *config.Config
	logger *zap.SugaredLogger

	actorFlag string
)

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: GroupRoster, Title: "Roster Commands:"},
		&cobra.Group{ID: GroupImage, Title: "Image Commands:"},
		&cobra.Group{ID: GroupService, Title: "Service Commands:"},
	)

	pf := rootCmd.PersistentFlags()
	pf.String(config.KeyConfig, "", "Config file (default "+config.DefaultFile+" when present)")
	pf.String(config.KeyRosterFile, "", "Roster file, relative to the repository")
	pf.String(config.KeyRepo, "", "World repository working tree")
	pf.Bool(config.KeyNoPublish, false, "Write files without committing or pushing")
	pf.Bool(config.KeyDevelopment, false, "Human-readable debug logging")
	pf.String(config.KeySlackWebhook, "", "Slack incoming webhook for change notifications")
	pf.StringSlice(config.KeyKafkaBrokers, nil, "Kafka brokers for change events")
	pf.String(config.KeyRabbitMQURL, "", "RabbitMQ URL for change events")
	pf.StringVar(&actorFlag, "actor", "", "Name recorded with each change (default from git config)")

	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context) int {
	defer func() {
		if logger != nil {
			_ = logger.Sync()
		}
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", style.ErrorPrefix, err)
		return 1
	}
	return 0
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	v, err := config.NewViper(cmd.Flags())
	if err != nil {
		return err
	}
	c, err := config.Resolve(v)
	if err != nil {
		return err
	}

	unsugared, err := createLogger(c)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}

	cfg = c
	logger = unsugared.Sugar()
	return nil
}

func createLogger(c *config.Config) (logger *zap.Logger, err error) {
	if c.Development {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return logger, nil
}

// currentActor is the name recorded with changes made by this process.
func currentActor(cmd *cobra.Command) string {
	return actor.Resolve(cmd.Context(), actorFlag, cfg.Publish.Repo).Username
}

// requireSubcommand is the RunE of parent commands.
func requireSubcommand(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%s requires a subcommand\n\nRun '%s --help' for usage", cmd.CommandPath(), cmd.CommandPath())
	}
	return fmt.Errorf("unknown subcommand %q for %s", args[0], cmd.CommandPath())
}

var versionCmd = &cobra.Command{
	Use:               "version",
	Short:             "Print the wperm version",
	Args:              cobra.NoArgs,
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "wperm %s\n", Version)
	},
}
