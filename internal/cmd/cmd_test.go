package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/vrcwmt/worldperm/internal/config"
	"github.com/vrcwmt/worldperm/internal/facade"
	"github.com/vrcwmt/worldperm/internal/roster"
)

// setupTestConfig points the package state at a fresh repository with
// publishing disabled and restores it afterwards.
func setupTestConfig(t *testing.T) *config.Config {
	t.Helper()
	prevCfg, prevLogger := cfg, logger
	prevCategory, prevOutput, prevActor := categoryFlag, listOutput, actorFlag
	prevImageOut, prevFix, prevJSON := imageOut, doctorFix, doctorJSON
	t.Cleanup(func() {
		cfg, logger = prevCfg, prevLogger
		categoryFlag, listOutput, actorFlag = prevCategory, prevOutput, prevActor
		imageOut, doctorFix, doctorJSON = prevImageOut, prevFix, prevJSON
	})

	c := config.Default()
	c.Publish.Enabled = false
	c.Publish.Repo = t.TempDir()
	c.Image.Width = 4
	c.Image.Height = 5

	cfg = c
	logger = zap.NewNop().Sugar()
	categoryFlag, listOutput, actorFlag = "", "text", "tester"
	imageOut, doctorFix, doctorJSON = "", false, false
	return c
}

func newTestCmd() (*cobra.Command, *bytes.Buffer) {
	var buf bytes.Buffer
	c := &cobra.Command{}
	c.SetOut(&buf)
	c.SetContext(context.Background())
	return c, &buf
}

func run(t *testing.T, fn func(*cobra.Command, []string) error, args ...string) (string, error) {
	t.Helper()
	c, buf := newTestCmd()
	err := fn(c, args)
	return buf.String(), err
}

func TestAddThenList(t *testing.T) {
	c := setupTestConfig(t)

	out, err := run(t, runAdd, "securiter", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, `Pseudonym "alice" added to SECURITER.`)

	categoryFlag = "BAR"
	_, err = run(t, runAdd, "alice")
	require.NoError(t, err)
	categoryFlag = ""

	out, err = run(t, runList)
	require.NoError(t, err)
	assert.Equal(t, "Registered pseudonyms:\n\nSECURITER\n• alice\n\nBAR\n• alice\n", out)

	data, err := os.ReadFile(c.RosterPath())
	require.NoError(t, err)
	assert.Contains(t, string(data), ">> SECURITER > secu\nalice\n")
}

func TestAddNoOp(t *testing.T) {
	setupTestConfig(t)

	_, err := run(t, runAdd, "DJ", "mia")
	require.NoError(t, err)

	out, err := run(t, runAdd, "DJ", "mia")
	require.NoError(t, err)
	assert.Contains(t, out, `Pseudonym "mia" is already in DJ.`)
}

func TestRequestArgs(t *testing.T) {
	setupTestConfig(t)

	tests := []struct {
		name     string
		flag     string
		args     []string
		category string
		wantErr  string
	}{
		{name: "positional", args: []string{"DJ", "mia"}, category: "DJ"},
		{name: "flag", flag: "bar", args: []string{"mia"}, category: "bar"},
		{name: "both", flag: "bar", args: []string{"DJ", "mia"}, wantErr: "not both"},
		{name: "neither", args: []string{"mia"}, wantErr: "a category is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			categoryFlag = tt.flag
			category, pseudonym, err := requestArgs(tt.args)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.category, category)
			assert.Equal(t, "mia", pseudonym)
		})
	}
}

func TestRemoveProtected(t *testing.T) {
	c := setupTestConfig(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(c.RosterPath()), 0o755))
	require.NoError(t, os.WriteFile(c.RosterPath(), []byte(">> DIEUX > dj+bar+secu+spe\nzeus\n"), 0o644))

	_, err := run(t, runRemove, "dieux", "zeus")
	assert.ErrorIs(t, err, roster.ErrProtectedCategory)

	data, err := os.ReadFile(c.RosterPath())
	require.NoError(t, err)
	assert.Equal(t, ">> DIEUX > dj+bar+secu+spe\nzeus\n", string(data))
}

func TestRemoveUnknownCategory(t *testing.T) {
	setupTestConfig(t)

	_, err := run(t, runRemove, "VIP", "bob")
	assert.ErrorIs(t, err, roster.ErrInvalidCategory)
}

func TestListFormats(t *testing.T) {
	setupTestConfig(t)
	_, err := run(t, runAdd, "DJ", "mia")
	require.NoError(t, err)

	listOutput = "yaml"
	out, err := run(t, runList)
	require.NoError(t, err)
	var l struct {
		Sections []struct {
			Category string   `yaml:"category"`
			Members  []string `yaml:"members"`
		} `yaml:"sections"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &l))
	require.Len(t, l.Sections, 6)
	assert.Equal(t, "DJ", l.Sections[2].Category)
	assert.Equal(t, []string{"mia"}, l.Sections[2].Members)

	listOutput = "json"
	out, err = run(t, runList)
	require.NoError(t, err)
	var listing roster.Listing
	require.NoError(t, json.Unmarshal([]byte(out), &listing))
	assert.Equal(t, 1, listing.Total())

	listOutput = "xml"
	_, err = run(t, runList)
	assert.Error(t, err)
}

func TestListEmpty(t *testing.T) {
	setupTestConfig(t)

	out, err := run(t, runList)
	require.NoError(t, err)
	assert.Equal(t, facade.EmptyListing+"\n", out)
}

func TestWhois(t *testing.T) {
	setupTestConfig(t)
	_, err := run(t, runAdd, "ADMIN", "root")
	require.NoError(t, err)
	_, err = run(t, runAdd, "DJ", "root")
	require.NoError(t, err)

	out, err := run(t, runWhois, "root")
	require.NoError(t, err)
	assert.Contains(t, out, "DJ, ADMIN")

	out, err = run(t, runWhois, "nobody")
	require.NoError(t, err)
	assert.Contains(t, out, `"nobody" is not registered`)
}

func TestCategories(t *testing.T) {
	setupTestConfig(t)

	out, err := run(t, runCategories)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 6)
	assert.Contains(t, lines[3], "DIEUX")
	assert.Contains(t, lines[3], "no removals")
	assert.Contains(t, lines[5], "Banned")
}

func TestImageUploadAndShow(t *testing.T) {
	c := setupTestConfig(t)

	src := filepath.Join(t.TempDir(), "poster.png")
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 20, 20))))
	require.NoError(t, os.WriteFile(src, buf.Bytes(), 0o644))

	out, err := run(t, runImageUpload, src)
	require.NoError(t, err)
	assert.Contains(t, out, "Image updated (4x5)")
	assert.FileExists(t, c.ImagePath())

	out, err = run(t, runImageShow)
	require.NoError(t, err)
	assert.Contains(t, out, "4x5 png")

	imageOut = filepath.Join(t.TempDir(), "copy.png")
	_, err = run(t, runImageShow)
	require.NoError(t, err)
	assert.FileExists(t, imageOut)
}

func TestImageUploadMissingFile(t *testing.T) {
	setupTestConfig(t)

	_, err := run(t, runImageUpload, filepath.Join(t.TempDir(), "missing.png"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opening image")
}

func TestDoctor(t *testing.T) {
	c := setupTestConfig(t)

	out, err := run(t, runDoctor)
	require.NoError(t, err)
	assert.Contains(t, out, "roster-file")
	assert.Contains(t, out, "1 passed, 2 warnings, 0 errors")

	doctorFix = true
	_, err = run(t, runDoctor)
	require.NoError(t, err)
	assert.FileExists(t, c.RosterPath())

	doctorFix, doctorJSON = false, true
	out, err = run(t, runDoctor)
	require.NoError(t, err)
	var report struct {
		Results []struct {
			Name   string `json:"name"`
			Status int    `json:"status"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Results, 3)
	assert.Equal(t, "roster-file", report.Results[0].Name)
	assert.Equal(t, 0, report.Results[0].Status)
}

func TestDoctor_ReadErrorFails(t *testing.T) {
	c := setupTestConfig(t)
	require.NoError(t, os.MkdirAll(c.RosterPath(), 0o755))

	_, err := run(t, runDoctor)
	assert.ErrorIs(t, err, errChecksFailed)
}

func TestLoadConfig_FromEnv(t *testing.T) {
	setupTestConfig(t)

	path := filepath.Join(t.TempDir(), "wperm.toml")
	require.NoError(t, os.WriteFile(path, []byte("development = true\n\n[roster]\nfile = \"custom.PSC\"\n"), 0o644))
	t.Setenv("WPERM_CONFIG", path)

	require.NoError(t, loadConfig(&cobra.Command{}, nil))
	assert.Equal(t, "custom.PSC", cfg.Roster.File)
	assert.True(t, cfg.Development)
	assert.NotNil(t, logger)
}

func TestLoadConfig_MissingRequiredFile(t *testing.T) {
	setupTestConfig(t)
	t.Setenv("WPERM_CONFIG", filepath.Join(t.TempDir(), "missing.toml"))

	assert.Error(t, loadConfig(&cobra.Command{}, nil))
}

func TestRequireSubcommand(t *testing.T) {
	err := requireSubcommand(imageCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires a subcommand")

	err = requireSubcommand(imageCmd, []string{"resize"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown subcommand "resize"`)
}

func TestVersion(t *testing.T) {
	c, buf := newTestCmd()
	versionCmd.Run(c, nil)
	assert.Equal(t, "wperm "+Version+"\n", buf.String())
}

func TestCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"list", "add", "remove", "whois", "categories", "image", "doctor", "menu", "serve", "version"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestCurrentActor_Flag(t *testing.T) {
	setupTestConfig(t)
	c, _ := newTestCmd()
	assert.Equal(t, "tester", currentActor(c))
}
