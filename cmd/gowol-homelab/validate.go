package main

import (
	"fmt"
	"os"

	"github.com/fgeck/gowol-homelab/internal/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the configuration file without sending packets or starting the daemon.`,
	RunE:  validateConfig,
}

func validateConfig(cmd *cobra.Command, args []string) error {
	if configFile == "" {
		log.Error().Msg("config file is required")
		return cmd.Help()
	}

	// Check if file exists
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		log.Error().Str("file", configFile).Msg("config file not found")
		return fmt.Errorf("config file not found: %s", configFile)
	}

	// Load configuration
	parser := config.NewParser()
	cfg, err := parser.LoadFile(configFile)
	if err != nil {
		log.Error().Err(err).Str("file", configFile).Msg("failed to parse config")
		return err
	}

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		log.Error().Err(err).Msg("configuration validation failed")
		return err
	}

	// Print configuration summary
	fmt.Println("Configuration is valid!")
	fmt.Println()
	fmt.Println("Wake-on-LAN:")
	fmt.Printf("  Broadcast: %s:%d\n", cfg.WOL.BroadcastIP, cfg.WOL.Port)
	fmt.Printf("  Parse mode: %s\n", cfg.WOL.ParseMode)
	fmt.Printf("  Overlap policy: %s\n", cfg.WOL.OverlapPolicy)
	fmt.Printf("  Attempts: %d\n", cfg.WOL.MaxAttempts)
	fmt.Printf("  Settle delay: %s\n", cfg.WOL.SettleDelay)
	fmt.Printf("  Retry delay: %s\n", cfg.WOL.RetryDelay)
	fmt.Println()
	fmt.Println("Probe:")
	fmt.Printf("  Method: %s\n", cfg.Probe.Method)
	fmt.Printf("  Timeout: %s\n", cfg.Probe.Timeout)
	if cfg.Probe.URL != "" {
		fmt.Printf("  URL: %s\n", cfg.Probe.URL)
	}
	fmt.Println()
	fmt.Println("API:")
	fmt.Printf("  Listen: %s\n", cfg.API.Listen)
	fmt.Printf("  Rate limit: %g/s (burst %d)\n", cfg.API.RateLimit, cfg.API.Burst)
	fmt.Println()
	fmt.Println("Optional Features:")
	fmt.Printf("  SSH Shutdown: %v\n", cfg.SSHShutdown != nil)
	fmt.Printf("  Telegram: %v\n", cfg.Telegram != nil)
	fmt.Printf("  RabbitMQ: %v\n", cfg.AMQP != nil)

	if cfg.SSHShutdown != nil {
		fmt.Println()
		fmt.Println("SSH Shutdown Configuration:")
		if cfg.SSHShutdown.Host != "" {
			fmt.Printf("  Host: %s\n", cfg.SSHShutdown.Host)
		}
		fmt.Printf("  Port: %d\n", cfg.SSHShutdown.Port)
		fmt.Printf("  Username: %s\n", cfg.SSHShutdown.Username)
		fmt.Printf("  OS: %s\n", cfg.SSHShutdown.OS)
		fmt.Printf("  Shutdown Delay: %d minute(s)\n", cfg.SSHShutdown.ShutdownDelay)
		fmt.Printf("  Host key check: %v\n", cfg.SSHShutdown.KnownHosts != "")
	}

	if cfg.Telegram != nil {
		fmt.Println()
		fmt.Println("Telegram Configuration:")
		fmt.Printf("  Chat ID: %s\n", cfg.Telegram.ChatID)
		fmt.Printf("  Bot Token: (configured)\n")
	}

	if cfg.AMQP != nil {
		fmt.Println()
		fmt.Println("RabbitMQ Configuration:")
		fmt.Printf("  Exchange: %s\n", cfg.AMQP.Exchange)
	}

	return nil
}
