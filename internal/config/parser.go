// Package config provides configuration file parsing.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fgeck/gowol-homelab/internal/address"
	"github.com/fgeck/gowol-homelab/internal/models"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. GOWOL_API_LISTEN.
const EnvPrefix = "GOWOL"

// Parser handles configuration file parsing.
type Parser struct {
	v *viper.Viper
}

// NewParser creates a new configuration parser.
func NewParser() *Parser {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Parser{v: v}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("wol.broadcast_ip", "255.255.255.255")
	v.SetDefault("wol.port", 7)
	v.SetDefault("wol.parse_mode", address.ModeStrict.String())
	v.SetDefault("wol.overlap_policy", models.OverlapReject)
	v.SetDefault("wol.max_attempts", 3)
	v.SetDefault("wol.settle_delay", time.Second)
	v.SetDefault("wol.retry_delay", time.Second)
	v.SetDefault("wol.confirm_display", 2500*time.Millisecond)
	v.SetDefault("wol.failure_display", 2*time.Second)

	v.SetDefault("probe.method", models.ProbeICMP)
	v.SetDefault("probe.timeout", time.Second)
	v.SetDefault("probe.privileged", false)

	v.SetDefault("network.ready_interval", 1000)

	v.SetDefault("api.listen", ":8080")
	v.SetDefault("api.rate_limit", 1.0)
	v.SetDefault("api.burst", 5)
}

// Default returns the configuration used when no file is given. Environment
// overrides still apply.
func Default() (*models.Config, error) {
	return NewParser().parse()
}

// LoadFile loads configuration from a file path.
func (p *Parser) LoadFile(path string) (*models.Config, error) {
	p.v.SetConfigFile(path)

	if err := p.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return p.parse()
}

// LoadReader loads configuration from a reader (useful for testing).
func (p *Parser) LoadReader(content string) (*models.Config, error) {
	if err := p.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return p.parse()
}

//nolint:gocognit,gocyclo // parsing config requires checking many fields
func (p *Parser) parse() (*models.Config, error) {
	cfg := &models.Config{}

	cfg.WOL = models.WOLConfig{
		BroadcastIP:    p.v.GetString("wol.broadcast_ip"),
		Port:           p.v.GetInt("wol.port"),
		ParseMode:      strings.ToLower(p.v.GetString("wol.parse_mode")),
		OverlapPolicy:  strings.ToLower(p.v.GetString("wol.overlap_policy")),
		MaxAttempts:    p.v.GetInt("wol.max_attempts"),
		SettleDelay:    p.v.GetDuration("wol.settle_delay"),
		RetryDelay:     p.v.GetDuration("wol.retry_delay"),
		ConfirmDisplay: p.v.GetDuration("wol.confirm_display"),
		FailureDisplay: p.v.GetDuration("wol.failure_display"),
	}

	cfg.Probe = models.ProbeConfig{
		Method:     strings.ToLower(p.v.GetString("probe.method")),
		Timeout:    p.v.GetDuration("probe.timeout"),
		Privileged: p.v.GetBool("probe.privileged"),
		URL:        p.expandEnv(p.v.GetString("probe.url")),
	}

	cfg.Network = models.NetworkConfig{
		Interface:     p.v.GetString("network.interface"),
		ReadyInterval: p.v.GetInt("network.ready_interval"),
	}

	cfg.API = models.APIConfig{
		Listen:    p.v.GetString("api.listen"),
		RateLimit: p.v.GetFloat64("api.rate_limit"),
		Burst:     p.v.GetInt("api.burst"),
	}

	// Parse optional Telegram config.
	if p.v.IsSet("telegram") {
		cfg.Telegram = &models.TelegramConfig{
			BotToken: p.expandEnv(p.v.GetString("telegram.bot_token")),
			ChatID:   p.expandEnv(p.v.GetString("telegram.chat_id")),
		}

		if cfg.Telegram.BotToken == "" {
			return nil, errors.New("telegram.bot_token is required when telegram is configured")
		}
		if cfg.Telegram.ChatID == "" {
			return nil, errors.New("telegram.chat_id is required when telegram is configured")
		}
	}

	// Parse optional AMQP config.
	if p.v.IsSet("amqp") {
		cfg.AMQP = &models.AMQPConfig{
			URL:      p.expandEnv(p.v.GetString("amqp.url")),
			Exchange: p.v.GetString("amqp.exchange"),
		}

		if cfg.AMQP.URL == "" {
			return nil, errors.New("amqp.url is required when amqp is configured")
		}
		if cfg.AMQP.Exchange == "" {
			cfg.AMQP.Exchange = "wol.events"
		}
	}

	// Parse optional SSH shutdown config.
	if p.v.IsSet("ssh_shutdown") { //nolint:nestif // config parsing with defaults
		cfg.SSHShutdown = &models.SSHShutdownConfig{
			Host:          p.v.GetString("ssh_shutdown.host"),
			Port:          p.v.GetInt("ssh_shutdown.port"),
			Username:      p.v.GetString("ssh_shutdown.username"),
			KeyPath:       p.expandEnv(p.v.GetString("ssh_shutdown.key_path")),
			KnownHosts:    p.expandEnv(p.v.GetString("ssh_shutdown.known_hosts")),
			ShutdownDelay: p.v.GetInt("ssh_shutdown.shutdown_delay"),
			OS:            p.v.GetString("ssh_shutdown.os"),
		}

		if cfg.SSHShutdown.Port == 0 {
			cfg.SSHShutdown.Port = 22
		}
		if cfg.SSHShutdown.Username == "" {
			cfg.SSHShutdown.Username = "root"
		}
		if cfg.SSHShutdown.KeyPath == "" {
			return nil, errors.New("ssh_shutdown.key_path is required when ssh_shutdown is configured")
		}
		if !p.v.IsSet("ssh_shutdown.shutdown_delay") {
			cfg.SSHShutdown.ShutdownDelay = 1
		}
		if cfg.SSHShutdown.OS == "" {
			cfg.SSHShutdown.OS = "linux"
		}
		validOS := map[string]bool{"linux": true, "windows": true}
		if !validOS[cfg.SSHShutdown.OS] {
			return nil, errors.New("ssh_shutdown.os must be one of: linux, windows")
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// expandEnv expands environment variables in the format ${VAR} or $VAR.
func (p *Parser) expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate performs validation on the loaded configuration.
//
//nolint:gocyclo // one check per field
func Validate(cfg *models.Config) error {
	if cfg == nil {
		return errors.New("configuration is nil")
	}

	if _, err := address.ParseIPv4(cfg.WOL.BroadcastIP, address.ModeStrict); err != nil {
		return fmt.Errorf("wol.broadcast_ip: %w", err)
	}
	if cfg.WOL.Port < 1 || cfg.WOL.Port > 65535 {
		return fmt.Errorf("wol.port must be between 1 and 65535, got %d", cfg.WOL.Port)
	}
	if _, err := address.ParseMode(cfg.WOL.ParseMode); err != nil {
		return fmt.Errorf("wol.parse_mode: %w", err)
	}
	switch cfg.WOL.OverlapPolicy {
	case models.OverlapReject, models.OverlapPreempt:
	default:
		return fmt.Errorf("wol.overlap_policy must be one of: %s, %s", models.OverlapReject, models.OverlapPreempt)
	}
	if cfg.WOL.MaxAttempts < 1 {
		return errors.New("wol.max_attempts must be at least 1")
	}
	for name, d := range map[string]time.Duration{
		"wol.settle_delay":    cfg.WOL.SettleDelay,
		"wol.retry_delay":     cfg.WOL.RetryDelay,
		"wol.confirm_display": cfg.WOL.ConfirmDisplay,
		"wol.failure_display": cfg.WOL.FailureDisplay,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	switch cfg.Probe.Method {
	case models.ProbeICMP:
	case models.ProbeHTTP:
		if cfg.Probe.URL == "" {
			return errors.New("probe.url is required when probe.method is http")
		}
	default:
		return fmt.Errorf("probe.method must be one of: %s, %s", models.ProbeICMP, models.ProbeHTTP)
	}
	if cfg.Probe.Timeout <= 0 {
		return errors.New("probe.timeout must be positive")
	}

	if cfg.API.RateLimit <= 0 {
		return errors.New("api.rate_limit must be positive")
	}
	if cfg.API.Burst < 1 {
		return errors.New("api.burst must be at least 1")
	}

	return nil
}
