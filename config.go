package chatwatch

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the configuration file layout.
type Config struct {
	Listen   string         `yaml:"listen"`
	DBPath   string         `yaml:"db_path"`
	Source   SourceConfig   `yaml:"source"`
	Page     PageConfig     `yaml:"page"`
	Notify   NotifyConfig   `yaml:"notify"`
	Pins     PinsConfig     `yaml:"pins"`
	Logging  LoggingConfig  `yaml:"logging"`
	Features FeaturesConfig `yaml:"features"`
}

// SourceConfig describes the remote chat page to mirror.
type SourceConfig struct {
	URL          string   `yaml:"url"`
	PollInterval Duration `yaml:"poll_interval"`
	RetryDelay   Duration `yaml:"retry_delay"`
	Timeout      Duration `yaml:"timeout"`
	UserAgent    string   `yaml:"user_agent"`
	RateInterval Duration `yaml:"rate_interval"`
	RateBurst    int      `yaml:"rate_burst"`
}

// PageConfig describes the host page markup.
type PageConfig struct {
	ContainerSelectors []string `yaml:"container_selectors"`
	MessageSelector    string   `yaml:"message_selector"`
	AuthorParam        string   `yaml:"author_param"`
	DiscoveryInterval  Duration `yaml:"discovery_interval"`
	DiscoveryAttempts  int      `yaml:"discovery_attempts"`
	HistoryCapacity    int      `yaml:"history_capacity"`
}

// NotifyConfig selects the native notification channel. When neither
// Telegram nor a webhook is configured, alerts go to the in-page channel.
type NotifyConfig struct {
	QueueSize int `yaml:"queue_size"`
	Telegram  struct {
		Token    string `yaml:"token"`
		ChatID   int64  `yaml:"chat_id"`
		Endpoint string `yaml:"endpoint"`
	} `yaml:"telegram"`
	WebhookURL string `yaml:"webhook_url"`
}

// PinsConfig holds the optional clear-all schedule.
type PinsConfig struct {
	ClearCron string `yaml:"clear_cron"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	Sink  string `yaml:"sink"`
}

// FeaturesConfig lists features enabled at startup when nothing has been
// persisted yet.
type FeaturesConfig struct {
	Default []string `yaml:"default"`
}

// Duration is a time.Duration that reads from YAML strings like "500ms" or
// plain numbers of seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = 0
		return nil
	}
	v, err := parseDuration(raw)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func parseDuration(raw string) (Duration, error) {
	if td, err := time.ParseDuration(raw); err == nil {
		return Duration(td), nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return Duration(time.Duration(f * float64(time.Second))), nil
	}
	return 0, fmt.Errorf("invalid duration value: %q", raw)
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	c := &Config{}
	_ = c.Validate()
	return c
}

// LoadConfig reads path, applies CHATWATCH_* environment overrides and
// validates the result. A missing file is not an error when path is empty.
func LoadConfig(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("config file not found: %s", path)
			}
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := c.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadDotEnv loads variables from a .env file into the environment. A
// missing file is ignored.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	err := godotenv.Load(path)
	if err != nil && errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// ApplyEnv overrides fields from CHATWATCH_* environment variables.
func (c *Config) ApplyEnv() error {
	var errs []error
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv("CHATWATCH_" + name); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	dur := func(name string, dst *Duration) {
		if v, ok := os.LookupEnv("CHATWATCH_" + name); ok {
			d, err := parseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("CHATWATCH_%s: %w", name, err))
				return
			}
			*dst = d
		}
	}

	str("LISTEN", &c.Listen)
	str("DB_PATH", &c.DBPath)
	str("SOURCE_URL", &c.Source.URL)
	dur("POLL_INTERVAL", &c.Source.PollInterval)
	str("MESSAGE_SELECTOR", &c.Page.MessageSelector)
	str("AUTHOR_PARAM", &c.Page.AuthorParam)
	str("TELEGRAM_TOKEN", &c.Notify.Telegram.Token)
	if v, ok := os.LookupEnv("CHATWATCH_TELEGRAM_CHAT_ID"); ok {
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("CHATWATCH_TELEGRAM_CHAT_ID: %w", err))
		} else {
			c.Notify.Telegram.ChatID = id
		}
	}
	str("WEBHOOK_URL", &c.Notify.WebhookURL)
	str("PINS_CLEAR_CRON", &c.Pins.ClearCron)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_SINK", &c.Logging.Sink)
	if v, ok := os.LookupEnv("CHATWATCH_FEATURES"); ok {
		c.Features.Default = nil
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				c.Features.Default = append(c.Features.Default, p)
			}
		}
	}
	return errors.Join(errs...)
}

// Validate applies defaults to unset fields and rejects invalid values.
func (c *Config) Validate() error {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8750"
	}
	if c.Source.PollInterval <= 0 {
		c.Source.PollInterval = Duration(DefaultPollInterval)
	}
	if c.Source.RetryDelay <= 0 {
		c.Source.RetryDelay = Duration(DefaultPollRetry)
	}
	if c.Source.Timeout <= 0 {
		c.Source.Timeout = Duration(30 * time.Second)
	}
	if c.Source.RateInterval <= 0 {
		c.Source.RateInterval = Duration(DefaultRequestInterval)
	}
	if c.Source.RateBurst <= 0 {
		c.Source.RateBurst = DefaultRequestBurst
	}
	if c.Source.UserAgent == "" {
		c.Source.UserAgent = "chatwatch/1.0"
	}
	if len(c.Page.ContainerSelectors) == 0 {
		c.Page.ContainerSelectors = DefaultContainerSelectors
	}
	if c.Page.MessageSelector == "" {
		c.Page.MessageSelector = "div.chat-message"
	}
	if c.Page.AuthorParam == "" {
		c.Page.AuthorParam = "player"
	}
	if c.Page.DiscoveryInterval <= 0 {
		c.Page.DiscoveryInterval = Duration(DefaultDiscoveryInterval)
	}
	if c.Page.DiscoveryAttempts <= 0 {
		c.Page.DiscoveryAttempts = DefaultDiscoveryAttempts
	}
	if c.Page.HistoryCapacity <= 0 {
		c.Page.HistoryCapacity = DefaultHistoryCapacity
	}
	if c.Notify.QueueSize <= 0 {
		c.Notify.QueueSize = DefaultAlertQueue
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	var errs []error
	if c.Pins.ClearCron != "" && !gronx.IsValid(c.Pins.ClearCron) {
		errs = append(errs, fmt.Errorf("invalid pins.clear_cron expression: %q", c.Pins.ClearCron))
	}
	if c.Notify.Telegram.Token != "" && c.Notify.Telegram.ChatID == 0 {
		errs = append(errs, errors.New("notify.telegram.chat_id is required with a token"))
	}
	for _, name := range c.Features.Default {
		if _, err := ParseFeature(name); err != nil {
			errs = append(errs, fmt.Errorf("features.default: %w", err))
		}
	}
	return errors.Join(errs...)
}

// ObserverConfig returns the container discovery settings.
func (c *Config) ObserverConfig() ObserverConfig {
	return ObserverConfig{
		Selectors: c.Page.ContainerSelectors,
		Interval:  c.Page.DiscoveryInterval.Duration(),
		Attempts:  c.Page.DiscoveryAttempts,
	}
}
