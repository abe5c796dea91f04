// Copyright 2024-2026 Aiku AI

package bridge

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"github.com/robfig/cron/v3"
	up "go.mau.fi/util/configupgrade"
	"go.mau.fi/zeroconfig"
	"gopkg.in/yaml.v3"

	"github.com/aiku/mattermost-extchat/pkg/admin"
	"github.com/aiku/mattermost-extchat/pkg/extchat/telegram"
)

//go:embed example-config.yaml
var ExampleConfig string

// Config is the whole bridge configuration file.
type Config struct {
	CasualChat CasualChatConfig  `yaml:"casualchat"`
	Telegram   telegram.Config   `yaml:"telegram"`
	Admin      AdminConfig       `yaml:"admin"`
	Database   DatabaseConfig    `yaml:"database"`
	Tracing    TracingConfig     `yaml:"tracing"`
	Logging    zeroconfig.Config `yaml:"logging"`
}

type CasualChatConfig struct {
	ServerURL   string `yaml:"server_url"`
	Token       string `yaml:"token"`
	VerifyToken bool   `yaml:"verify_token"`
}

type AdminConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	Token      string `yaml:"token"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type TracingConfig struct {
	// Endpoint is an OTLP/HTTP host:port. Tracing is off when empty.
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig Config
	return node.Decode((*rawConfig)(c))
}

// PostProcess applies environment fallbacks and validates the config.
func (c *Config) PostProcess() error {
	if c.CasualChat.Token == "" {
		c.CasualChat.Token = os.Getenv("CASUALCHAT_TOKEN")
	}
	if c.Admin.ListenAddr == "" {
		c.Admin.ListenAddr = os.Getenv("EXTCHAT_ADMIN_ADDR")
	}
	if c.Admin.ListenAddr == "" {
		c.Admin.ListenAddr = admin.DefaultAddr
	}
	if c.Database.Path == "" {
		c.Database.Path = "./extchat.db"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "mattermost-extchat"
	}

	if c.CasualChat.ServerURL == "" {
		return errors.New("casualchat.server_url is required")
	}
	if c.Telegram.GatewayURL == "" {
		return errors.New("telegram.gateway_url is required")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be between 0 and 1, got %v", c.Tracing.SampleRatio)
	}
	if c.Telegram.ContactSyncSchedule != "" {
		if _, err := cron.ParseStandard(c.Telegram.ContactSyncSchedule); err != nil {
			return fmt.Errorf("invalid telegram.contact_sync_schedule: %w", err)
		}
	}
	if err := c.Telegram.PostProcess(); err != nil {
		return fmt.Errorf("invalid telegram config: %w", err)
	}
	return nil
}

func upgradeConfig(helper up.Helper) {
	helper.Copy(up.Str, "casualchat", "server_url")
	helper.Copy(up.Str, "casualchat", "token")
	helper.Copy(up.Bool, "casualchat", "verify_token")

	helper.Copy(up.Str, "telegram", "gateway_url")
	helper.Copy(up.Str, "telegram", "instance_name")
	helper.Copy(up.Str, "telegram", "database_directory")
	helper.Copy(up.Int, "telegram", "api_id")
	helper.Copy(up.Str, "telegram", "api_hash")
	helper.Copy(up.Str, "telegram", "system_language_code")
	helper.Copy(up.Str, "telegram", "device_model")
	helper.Copy(up.Str, "telegram", "application_version")
	helper.Copy(up.Str, "telegram", "contact_name_template")
	helper.Copy(up.Int, "telegram", "contact_fetch_concurrency")
	helper.Copy(up.Bool, "telegram", "skip_failed_contacts")
	helper.Copy(up.Bool, "telegram", "lenient_login")
	helper.Copy(up.Bool, "telegram", "markdown_entities")
	helper.Copy(up.Str, "telegram", "contact_sync_schedule")

	helper.Copy(up.Str, "admin", "listen_addr")
	helper.Copy(up.Str, "admin", "token")

	helper.Copy(up.Str, "database", "path")

	helper.Copy(up.Str, "tracing", "endpoint")
	helper.Copy(up.Bool, "tracing", "insecure")
	helper.Copy(up.Str, "tracing", "service_name")
	helper.Copy(up.Float|up.Int, "tracing", "sample_ratio")

	helper.Copy(up.Map, "logging")
}

// Upgrader merges a user config into the current example config.
var Upgrader = &up.StructUpgrader{
	SimpleUpgrader: up.SimpleUpgrader(upgradeConfig),
	Blocks: [][]string{
		{"telegram"},
		{"admin"},
		{"database"},
		{"tracing"},
		{"logging"},
	},
	Base: ExampleConfig,
}

// Parse decodes and post-processes a config document.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{Telegram: telegram.DefaultConfig()}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.PostProcess(); err != nil {
		return nil, fmt.Errorf("failed to post-process config: %w", err)
	}
	return cfg, nil
}

// Load upgrades the config at path against the example config, saving the
// result back when save is set, and parses it.
func Load(path string, save bool) (*Config, error) {
	data, upgraded, err := up.Do(path, save, Upgrader)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if upgraded && !save {
		fmt.Fprintln(os.Stderr, "Config is outdated, run without --no-update to save the upgraded version")
	}
	return cfg, nil
}
