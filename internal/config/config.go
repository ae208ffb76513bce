// Package config loads wperm.toml and applies flag and environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/vrcwmt/worldperm/internal/roster"
)

// DefaultFile is the config file looked up in the working directory when
// --config is not given.
const DefaultFile = "wperm.toml"

// Override keys. Each is a persistent flag name and, upper-cased with the
// WPERM_ prefix, an environment variable.
const (
	KeyConfig       = "config"
	KeyRosterFile   = "roster-file"
	KeyRepo         = "repo"
	KeyNoPublish    = "no-publish"
	KeyDevelopment  = "development"
	KeyListen       = "listen"
	KeySlackWebhook = "slack-webhook"
	KeyKafkaBrokers = "kafka-brokers"
	KeyRabbitMQURL  = "rabbitmq-url"

	envPrefix = "WPERM"
)

var validate = validator.New()

type Config struct {
	Development bool `toml:"development"`

	Roster   RosterConfig   `toml:"roster"`
	Image    ImageConfig    `toml:"image"`
	Publish  PublishConfig  `toml:"publish"`
	Slack    SlackConfig    `toml:"slack"`
	Kafka    KafkaConfig    `toml:"kafka"`
	RabbitMQ RabbitMQConfig `toml:"rabbitmq"`
	Server   ServerConfig   `toml:"server"`
}

type RosterConfig struct {
	// File is the PSC backing file. Relative paths are resolved against
	// Publish.Repo.
	File string `toml:"file" validate:"required"`

	// Version, when set, restamps the header build line on every save.
	Version string `toml:"version"`

	LockTimeout time.Duration `toml:"lock_timeout" validate:"gte=0"`

	Header roster.Header `toml:"header"`
}

type ImageConfig struct {
	File   string `toml:"file" validate:"required"`
	Width  int    `toml:"width" validate:"gt=0"`
	Height int    `toml:"height" validate:"gt=0"`
}

type PublishConfig struct {
	Enabled bool   `toml:"enabled"`
	Repo    string `toml:"repo"`
	Remote  string `toml:"remote"`
	Branch  string `toml:"branch"`
	Push    bool   `toml:"push"`
}

type SlackConfig struct {
	Enabled    bool   `toml:"enabled"`
	WebhookURL string `toml:"webhook_url" validate:"required_if=Enabled true,omitempty,url"`
	Channel    string `toml:"channel"`

	NotifyOn SlackNotifySettings `toml:"notify_on"`
}

// SlackNotifySettings controls which changes are posted.
type SlackNotifySettings struct {
	Roster bool `toml:"roster"`
	Image  bool `toml:"image"`
}

type KafkaConfig struct {
	Enabled bool     `toml:"enabled"`
	Brokers []string `toml:"brokers" validate:"required_if=Enabled true,dive,hostname_port"`
	Topic   string   `toml:"topic" validate:"required_if=Enabled true"`
}

type RabbitMQConfig struct {
	Enabled  bool   `toml:"enabled"`
	URL      string `toml:"url" validate:"required_if=Enabled true,omitempty,url"`
	Exchange string `toml:"exchange"`
}

type ServerConfig struct {
	Address         string        `toml:"address" validate:"required,hostname_port"`
	RateLimit       float64       `toml:"rate_limit" validate:"gte=0"`
	Burst           int           `toml:"burst" validate:"gte=0"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout" validate:"gte=0"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Roster: RosterConfig{
			File:        "perm/WorldPermissions.PSC",
			LockTimeout: 5 * time.Second,
			Header:      roster.DefaultHeader(),
		},
		Image: ImageConfig{
			File:   "pub/sfinx.png",
			Width:  1431,
			Height: 1820,
		},
		Publish: PublishConfig{
			Enabled: true,
			Repo:    ".",
			Push:    true,
		},
		Slack: SlackConfig{
			NotifyOn: SlackNotifySettings{Roster: true, Image: true},
		},
		Kafka: KafkaConfig{
			Topic: "world-permissions",
		},
		RabbitMQ: RabbitMQConfig{
			Exchange: "world-permissions",
		},
		Server: ServerConfig{
			Address:         "127.0.0.1:8080",
			RateLimit:       5,
			Burst:           10,
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// Load reads the TOML file at path over the defaults. A missing file yields
// the defaults unless required is set.
func Load(path string, required bool) (*Config, error) {
	cfg := Default()

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return cfg, nil
		}
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("loading %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}

	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// RosterPath returns the backing file path resolved against the repository.
func (c *Config) RosterPath() string {
	return c.resolve(c.Roster.File)
}

// ImagePath returns the side image path resolved against the repository.
func (c *Config) ImagePath() string {
	return c.resolve(c.Image.File)
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) || c.Publish.Repo == "" {
		return p
	}
	return filepath.Join(c.Publish.Repo, p)
}

// NewViper returns a viper instance bound to flags and to WPERM_* variables.
func NewViper(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	for _, key := range []string{
		KeyConfig, KeyRosterFile, KeyRepo, KeyNoPublish, KeyDevelopment,
		KeyListen, KeySlackWebhook, KeyKafkaBrokers, KeyRabbitMQURL,
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("binding %s: %w", key, err)
		}
		if f := flags.Lookup(key); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("binding flag %s: %w", key, err)
			}
		}
	}
	return v, nil
}

// ApplyOverrides copies every override that was set on a flag or in the
// environment into c.
func (c *Config) ApplyOverrides(v *viper.Viper) {
	if v.IsSet(KeyRosterFile) {
		c.Roster.File = v.GetString(KeyRosterFile)
	}
	if v.IsSet(KeyRepo) {
		c.Publish.Repo = v.GetString(KeyRepo)
	}
	if v.IsSet(KeyNoPublish) && v.GetBool(KeyNoPublish) {
		c.Publish.Enabled = false
	}
	if v.IsSet(KeyDevelopment) {
		c.Development = v.GetBool(KeyDevelopment)
	}
	if v.IsSet(KeyListen) {
		c.Server.Address = v.GetString(KeyListen)
	}
	if v.IsSet(KeySlackWebhook) {
		c.Slack.WebhookURL = v.GetString(KeySlackWebhook)
		c.Slack.Enabled = c.Slack.WebhookURL != ""
	}
	if v.IsSet(KeyKafkaBrokers) {
		c.Kafka.Brokers = v.GetStringSlice(KeyKafkaBrokers)
		c.Kafka.Enabled = len(c.Kafka.Brokers) > 0
	}
	if v.IsSet(KeyRabbitMQURL) {
		c.RabbitMQ.URL = v.GetString(KeyRabbitMQURL)
		c.RabbitMQ.Enabled = c.RabbitMQ.URL != ""
	}
}

// Resolve loads the file named by the config override (or DefaultFile),
// applies overrides and validates the result.
func Resolve(v *viper.Viper) (*Config, error) {
	path, required := DefaultFile, false
	if v.IsSet(KeyConfig) && v.GetString(KeyConfig) != "" {
		path, required = v.GetString(KeyConfig), true
	}

	cfg, err := Load(path, required)
	if err != nil {
		return nil, err
	}
	cfg.ApplyOverrides(v)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
