package main

import (
	"errors"
	"fmt"

	"github.com/fgeck/gowol-homelab/internal/address"
	"github.com/fgeck/gowol-homelab/internal/services/ssh"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var shutdownTestOnly bool

var shutdownCmd = &cobra.Command{
	Use:   "shutdown <ip>",
	Short: "Shut a host down over SSH",
	Long:  `Connect to <ip> with the ssh_shutdown credentials and run the shutdown command for its OS.`,
	Args:  cobra.ExactArgs(1),
	RunE:  shutdownHost,
}

func init() {
	shutdownCmd.Flags().BoolVar(&shutdownTestOnly, "test", false, "only check that the SSH login works")
}

func shutdownHost(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.SSHShutdown == nil {
		log.Error().Msg("ssh_shutdown is not configured")
		return errors.New("ssh_shutdown section is required for shutdown")
	}

	mode, err := address.ParseMode(cfg.WOL.ParseMode)
	if err != nil {
		return err
	}
	ip, err := address.ParseIPv4(args[0], mode)
	if err != nil {
		return fmt.Errorf("invalid host address: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	svc := ssh.New(log.Logger)

	if shutdownTestOnly {
		result, err := svc.TestConnection(ctx, ssh.ForHost(*cfg.SSHShutdown, ip.String()))
		if err != nil {
			return err
		}
		if result.Error != nil {
			log.Error().Err(result.Error).Str("host", ip.String()).Msg("SSH connection test failed")
			return result.Error
		}
		log.Info().Str("host", ip.String()).Msg("SSH connection test succeeded")
		return nil
	}

	if err := ssh.NewHostShutdown(svc, *cfg.SSHShutdown).Shutdown(ctx, ip.String()); err != nil {
		log.Error().Err(err).Str("host", ip.String()).Msg("shutdown failed")
		return err
	}

	log.Info().Str("host", ip.String()).Msg("shutdown initiated")
	return nil
}
