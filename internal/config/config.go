package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"pabench/internal/snapshot"
)

const FileName = "pab.yml"

// Config models pab.yml.
type Config struct {
	DataPath string          `yaml:"data_path"`
	State    snapshot.Keys   `yaml:"state"`
	Worlds   WorldsConfig    `yaml:"worlds"`
	Server   ServerConfig    `yaml:"server"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type WorldsConfig struct {
	BaseURL        string `yaml:"base_url"`
	HostTemplate   string `yaml:"host_template"`
	GmailURL       string `yaml:"gmail_url"`
	CalendarURL    string `yaml:"calendar_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	CreateMissing  *bool  `yaml:"create_missing"`
	EnvFile        string `yaml:"env_file"`
}

type ServerConfig struct {
	Addr      string `yaml:"addr"`
	BasePath  string `yaml:"base_path"`
	JWTSecret string `yaml:"jwt_secret"`
}

// WebhookConfig describes one outbound event subscription.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// Timeout returns the per-request timeout for instance calls.
func (w WorldsConfig) Timeout() time.Duration {
	if w.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(w.TimeoutSeconds) * time.Second
}

// CreateIfMissing reports whether unset instance URLs may be provisioned.
func (w WorldsConfig) CreateIfMissing() bool {
	return w.CreateMissing == nil || *w.CreateMissing
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with pab config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataPath) == "" {
		return fmt.Errorf("config.data_path is required")
	}
	if c.State.Mailbox == "" || c.State.Calendar == "" {
		return fmt.Errorf("config.state.mailbox_key and config.state.calendar_key are required")
	}
	if c.State.Mailbox == c.State.Calendar {
		return fmt.Errorf("config.state keys must differ")
	}
	if c.Worlds.TimeoutSeconds < 0 {
		return fmt.Errorf("config.worlds.timeout_seconds must not be negative")
	}
	for field, raw := range map[string]string{
		"config.worlds.base_url":     c.Worlds.BaseURL,
		"config.worlds.gmail_url":    c.Worlds.GmailURL,
		"config.worlds.calendar_url": c.Worlds.CalendarURL,
	} {
		if err := checkURL(field, raw); err != nil {
			return err
		}
	}
	if c.Worlds.HostTemplate != "" && strings.Count(c.Worlds.HostTemplate, "%s") != 1 {
		return fmt.Errorf("config.worlds.host_template must contain exactly one %%s")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if err := checkURL(fmt.Sprintf("config.webhooks[%d].url", i), hook.URL); err != nil {
			return err
		}
		for _, evt := range hook.Events {
			if strings.TrimSpace(evt) == "" {
				return fmt.Errorf("config.webhooks[%d] has empty event type", i)
			}
		}
	}
	return nil
}

func checkURL(field, raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL, got %q", field, raw)
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Unset fields
// keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `data_path: data

state:
  mailbox_key: gmail-clone
  calendar_key: calendar-clone

worlds:
  base_url: http://worlds.vibrantlabs.com
  host_template: http://%s.worlds.vibrantlabs.com
  timeout_seconds: 30
  create_missing: true
  env_file: .env

server:
  addr: 127.0.0.1:8080
  base_path: /v0
`
