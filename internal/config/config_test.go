package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"), false)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingRequiredFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"), true)
	assert.Error(t, err)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
development = true

[roster]
file = "data/perms.PSC"
version = "1.5.0"
lock_timeout = "2s"

[roster.header]
world_name = "TEST WORLD"

[publish]
repo = "/srv/world"
push = false

[kafka]
enabled = true
brokers = ["kafka:9092"]
`)

	cfg, err := Load(path, true)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.True(t, cfg.Development)
	assert.Equal(t, "data/perms.PSC", cfg.Roster.File)
	assert.Equal(t, "1.5.0", cfg.Roster.Version)
	assert.Equal(t, 2*time.Second, cfg.Roster.LockTimeout)
	assert.Equal(t, "TEST WORLD", cfg.Roster.Header.WorldName)
	assert.Equal(t, "MagmaMCNet", cfg.Roster.Header.WorldCreator, "unset header fields keep defaults")
	assert.False(t, cfg.Publish.Push)
	assert.True(t, cfg.Publish.Enabled)
	assert.Equal(t, []string{"kafka:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "world-permissions", cfg.Kafka.Topic)

	assert.Equal(t, "/srv/world/data/perms.PSC", cfg.RosterPath())
	assert.Equal(t, "/srv/world/pub/sfinx.png", cfg.ImagePath())
}

func TestLoad_UnknownKey(t *testing.T) {
	path := writeConfig(t, "[roster]\nfiel = \"x\"\n")
	_, err := Load(path, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "roster.fiel")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "empty roster file", mutate: func(c *Config) { c.Roster.File = "" }, wantErr: true},
		{name: "zero image width", mutate: func(c *Config) { c.Image.Width = 0 }, wantErr: true},
		{name: "slack enabled without webhook", mutate: func(c *Config) { c.Slack.Enabled = true }, wantErr: true},
		{name: "slack bad webhook", mutate: func(c *Config) {
			c.Slack.Enabled = true
			c.Slack.WebhookURL = "not a url"
		}, wantErr: true},
		{name: "slack ok", mutate: func(c *Config) {
			c.Slack.Enabled = true
			c.Slack.WebhookURL = "https://hooks.slack.com/services/x"
		}},
		{name: "kafka enabled without brokers", mutate: func(c *Config) { c.Kafka.Enabled = true }, wantErr: true},
		{name: "kafka bad broker", mutate: func(c *Config) {
			c.Kafka.Enabled = true
			c.Kafka.Brokers = []string{"no-port"}
		}, wantErr: true},
		{name: "bad listen address", mutate: func(c *Config) { c.Server.Address = "localhost" }, wantErr: true},
		{name: "negative rate", mutate: func(c *Config) { c.Server.RateLimit = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func newFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("wperm", pflag.ContinueOnError)
	fs.String(KeyConfig, "", "")
	fs.String(KeyRosterFile, "", "")
	fs.String(KeyRepo, "", "")
	fs.Bool(KeyNoPublish, false, "")
	fs.Bool(KeyDevelopment, false, "")
	return fs
}

func TestApplyOverrides_Flags(t *testing.T) {
	fs := newFlags()
	require.NoError(t, fs.Parse([]string{"--roster-file", "x.PSC", "--no-publish"}))

	v, err := NewViper(fs)
	require.NoError(t, err)

	cfg := Default()
	cfg.ApplyOverrides(v)

	assert.Equal(t, "x.PSC", cfg.Roster.File)
	assert.False(t, cfg.Publish.Enabled)
	assert.Equal(t, ".", cfg.Publish.Repo, "unchanged flags do not override")
	assert.False(t, cfg.Development)
}

func TestApplyOverrides_Env(t *testing.T) {
	t.Setenv("WPERM_REPO", "/tmp/world")
	t.Setenv("WPERM_SLACK_WEBHOOK", "https://hooks.slack.com/services/y")
	t.Setenv("WPERM_LISTEN", "0.0.0.0:9000")

	v, err := NewViper(newFlags())
	require.NoError(t, err)

	cfg := Default()
	cfg.ApplyOverrides(v)

	assert.Equal(t, "/tmp/world", cfg.Publish.Repo)
	assert.True(t, cfg.Slack.Enabled)
	assert.Equal(t, "https://hooks.slack.com/services/y", cfg.Slack.WebhookURL)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Address)
}

func TestResolve(t *testing.T) {
	path := writeConfig(t, "[server]\naddress = \"127.0.0.1:7000\"\n")

	fs := newFlags()
	require.NoError(t, fs.Parse([]string{"--config", path, "--development"}))
	v, err := NewViper(fs)
	require.NoError(t, err)

	cfg, err := Resolve(v)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", cfg.Server.Address)
	assert.True(t, cfg.Development)
}

func TestResolve_InvalidAfterOverride(t *testing.T) {
	fs := newFlags()
	require.NoError(t, fs.Parse([]string{"--config", writeConfig(t, "")}))
	t.Setenv("WPERM_LISTEN", "localhost")

	v, err := NewViper(fs)
	require.NoError(t, err)

	_, err = Resolve(v)
	assert.Error(t, err)
}

func TestLoad_ExampleFile(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "wperm.example.toml"), true)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, Default().Roster.Header, cfg.Roster.Header)
	assert.Equal(t, "origin", cfg.Publish.Remote)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
}
