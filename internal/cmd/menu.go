package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/vrcwmt/worldperm/internal/tui"
)

var menuCmd = &cobra.Command{
	Use:     "menu",
	GroupID: GroupRoster,
	Short:   "Interactive menu for roster and image changes",
	Long: `Open an interactive menu to list, add and remove pseudonyms and to
upload the side image.

Prompts wait 60 seconds for input before returning to the menu.`,
	Args: cobra.NoArgs,
	RunE: runMenu,
}

func init() {
	rootCmd.AddCommand(menuCmd)
}

func runMenu(cmd *cobra.Command, _ []string) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("menu needs an interactive terminal; use list, add or remove instead")
	}

	// The menu owns the terminal while it runs.
	a, err := openApp(cmd.Context(), cfg, zap.NewNop().Sugar(), nil)
	if err != nil {
		return err
	}
	defer a.Close()

	return tui.Run(cmd.Context(), a.facade, currentActor(cmd))
}
