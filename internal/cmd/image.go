package cmd

import (
	"bytes"
	"fmt"
	"image"
	_ "image/png"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vrcwmt/worldperm/internal/style"
)

var imageCmd = &cobra.Command{
	Use:     "image",
	GroupID: GroupImage,
	Short:   "Manage the side image",
	Long: `Manage the image published next to the roster.

Uploaded images are resized to the configured size, written as PNG and
published with the same git hook as the roster.

Examples:
  wperm image upload poster.jpg
  wperm image show
  wperm image show --out current.png`,
	RunE: requireSubcommand,
}

var imageUploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Replace the side image",
	Args:  cobra.ExactArgs(1),
	RunE:  runImageUpload,
}

var imageShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Describe the side image or copy it out",
	Args:  cobra.NoArgs,
	RunE:  runImageShow,
}

var imageOut string

func init() {
	rootCmd.AddCommand(imageCmd)
	imageCmd.AddCommand(imageUploadCmd)
	imageCmd.AddCommand(imageShowCmd)

	imageShowCmd.Flags().StringVarP(&imageOut, "out", "o", "", "Copy the image to this file")
}

func runImageUpload(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("opening image: %w", err)
	}
	defer f.Close()

	a, err := openApp(cmd.Context(), cfg, logger, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.facade.UploadImage(cmd.Context(), f, mime.TypeByExtension(filepath.Ext(args[0]))); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Image updated (%dx%d)\n", style.SuccessPrefix, a.images.Width, a.images.Height)
	return nil
}

func runImageShow(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd.Context(), cfg, logger, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	rc, err := a.facade.OpenImage()
	if err != nil {
		return err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}

	out := cmd.OutOrStdout()
	if imageOut != "" {
		if err := os.WriteFile(imageOut, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", imageOut, err)
		}
		fmt.Fprintf(out, "%s Wrote %s\n", style.SuccessPrefix, imageOut)
		return nil
	}

	ic, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}
	fmt.Fprintf(out, "%s %s\n", style.Bold.Render("Image:"), a.images.Path)
	fmt.Fprintf(out, "  %dx%d %s, %d bytes\n", ic.Width, ic.Height, format, len(data))
	return nil
}
