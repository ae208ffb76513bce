package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vrcwmt/worldperm/internal/facade"
	"github.com/vrcwmt/worldperm/internal/roster"
	"github.com/vrcwmt/worldperm/internal/store"
	"github.com/vrcwmt/worldperm/internal/style"
)

var listCmd = &cobra.Command{
	Use:     "list",
	GroupID: GroupRoster,
	Short:   "Show every category and its pseudonyms",
	Long: `List the roster, one block per non-empty category.

Examples:
  wperm list                 # Plain text
  wperm list --output yaml   # Every category, including empty ones
  wperm list --output json`,
	Args: cobra.NoArgs,
	RunE: runList,
}

var addCmd = &cobra.Command{
	Use:     "add [CATEGORY] <pseudonym>",
	GroupID: GroupRoster,
	Short:   "Add a pseudonym to a category",
	Long: `Add a pseudonym to a category and publish the roster.

The category is matched case-insensitively. DIEUX can be appended to but
never removed from. Adding a pseudonym that is already present changes
nothing and publishes nothing.

Examples:
  wperm add SECURITER alice
  wperm add alice --category bar`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runAdd,
}

var removeCmd = &cobra.Command{
	Use:     "remove [CATEGORY] <pseudonym>",
	Aliases: []string{"rm"},
	GroupID: GroupRoster,
	Short:   "Remove a pseudonym from a category",
	Long: `Remove a pseudonym from a category and publish the roster.

Removing from DIEUX is always rejected. Removing a pseudonym that is not
present changes nothing.

Examples:
  wperm remove DJ mia
  wperm rm mia --category dj`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runRemove,
}

var whoisCmd = &cobra.Command{
	Use:     "whois <pseudonym>",
	GroupID: GroupRoster,
	Short:   "Show the categories a pseudonym belongs to",
	Args:    cobra.ExactArgs(1),
	RunE:    runWhois,
}

var categoriesCmd = &cobra.Command{
	Use:     "categories",
	GroupID: GroupRoster,
	Short:   "Show the permission categories",
	Args:    cobra.NoArgs,
	RunE:    runCategories,
}

var (
	listOutput   string
	categoryFlag string
)

func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(whoisCmd)
	rootCmd.AddCommand(categoriesCmd)

	listCmd.Flags().StringVarP(&listOutput, "output", "o", "text", "Output format: text, yaml or json")
	addCmd.Flags().StringVarP(&categoryFlag, "category", "c", "", "Category to add to")
	removeCmd.Flags().StringVarP(&categoryFlag, "category", "c", "", "Category to remove from")
}

func runList(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd.Context(), cfg, logger, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	return writeListing(cmd.OutOrStdout(), a.facade.List(), listOutput)
}

func writeListing(w io.Writer, l roster.Listing, format string) error {
	switch strings.ToLower(format) {
	case "", "text":
		text := facade.Render(l)
		if !strings.HasSuffix(text, "\n") {
			text += "\n"
		}
		_, err := io.WriteString(w, text)
		return err
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(l); err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(l)
	default:
		return fmt.Errorf("unknown output format %q (want text, yaml or json)", format)
	}
}

// requestArgs accepts "<CATEGORY> <pseudonym>" or "<pseudonym> --category".
func requestArgs(args []string) (category, pseudonym string, err error) {
	if len(args) == 2 {
		if categoryFlag != "" {
			return "", "", errors.New("give the category as an argument or with --category, not both")
		}
		return args[0], args[1], nil
	}
	if categoryFlag == "" {
		return "", "", fmt.Errorf("a category is required (one of %s)", categoryList(roster.Categories()))
	}
	return categoryFlag, args[0], nil
}

func runAdd(cmd *cobra.Command, args []string) error {
	return runMutation(cmd, roster.OpAdd, args)
}

func runRemove(cmd *cobra.Command, args []string) error {
	return runMutation(cmd, roster.OpRemove, args)
}

func runMutation(cmd *cobra.Command, op roster.Op, args []string) error {
	category, pseudonym, err := requestArgs(args)
	if err != nil {
		return err
	}
	req, err := facade.ParseRequest(op, category, pseudonym, currentActor(cmd))
	if err != nil {
		return err
	}

	a, err := openApp(cmd.Context(), cfg, logger, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.facade.Handle(cmd.Context(), req)
	out := cmd.OutOrStdout()
	if err != nil {
		if store.Written(err) {
			fmt.Fprintf(out, "%s %s\n", style.WarningPrefix, res.Message)
			return fmt.Errorf("roster written but not published: %w", err)
		}
		return err
	}

	if res.Changed {
		fmt.Fprintf(out, "%s %s\n", style.SuccessPrefix, res.Message)
	} else {
		fmt.Fprintf(out, "%s %s\n", style.WarningPrefix, res.Message)
	}
	return nil
}

func runWhois(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), cfg, logger, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	p := strings.TrimSpace(args[0])
	cats := a.facade.CategoriesOf(p)
	out := cmd.OutOrStdout()
	if len(cats) == 0 {
		fmt.Fprintf(out, "%s %q is not registered\n", style.Dim.Render("·"), p)
		return nil
	}

	fmt.Fprintf(out, "%s %s\n", style.Bold.Render(p+":"), categoryList(cats))
	return nil
}

func runCategories(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	for _, c := range roster.Categories() {
		line := fmt.Sprintf("  %-24s %s", style.Category(c), style.Dim.Render(c.Expression()))
		if c.Protected() {
			line += " " + style.LockPrefix + style.Dim.Render(" no removals")
		}
		fmt.Fprintln(out, line)
	}
	return nil
}

func categoryList(cats []roster.Category) string {
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = c.String()
	}
	return strings.Join(names, ", ")
}
