package main

import (
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/fgeck/gowol-homelab/internal/address"
	"github.com/fgeck/gowol-homelab/internal/api"
	"github.com/fgeck/gowol-homelab/internal/netinfo"
	"github.com/fgeck/gowol-homelab/internal/services/runner"
	"github.com/fgeck/gowol-homelab/internal/services/ssh"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the wake daemon and its HTTP API",
	Long: `Run the wake daemon:
1. Wait until the local network interface has an IPv4 address
2. Publish the address and accept commands on the HTTP API
3. Send magic packets and verify reachability per command
4. Report status changes to Telegram and RabbitMQ (if configured)`,
	Args: cobra.NoArgs,
	RunE: serve,
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	mode, err := address.ParseMode(cfg.WOL.ParseMode)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	notifiers, closeNotifiers := buildNotifiers(cfg)
	defer closeNotifiers()

	svc, err := runner.New(log.Logger, *cfg, notifiers...)
	if err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return err
	}

	var shutdowner api.Shutdowner
	if cfg.SSHShutdown != nil {
		shutdowner = ssh.NewHostShutdown(ssh.New(log.Logger), *cfg.SSHShutdown)
	}
	server := api.New(log.Logger, cfg.API, mode, svc, shutdowner)
	monitor := netinfo.NewMonitor(log.Logger, cfg.Network)

	log.Info().
		Str("listen", cfg.API.Listen).
		Str("probe", cfg.Probe.Method).
		Str("overlap", cfg.WOL.OverlapPolicy).
		Msg("starting wake daemon")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(ctx) })
	g.Go(func() error { return server.Run(ctx) })
	g.Go(func() error {
		ip, err := monitor.WaitReady(ctx)
		if err != nil {
			// Only cancellation ends the wait.
			return nil
		}
		svc.NetworkReady(ip)
		sdNotify(daemon.SdNotifyReady)
		return nil
	})

	err = g.Wait()
	sdNotify(daemon.SdNotifyStopping)
	if err != nil {
		log.Error().Err(err).Msg("wake daemon failed")
		return err
	}

	log.Info().Msg("wake daemon stopped")
	return nil
}

// sdNotify reports state to systemd when running as a notify service.
func sdNotify(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warn().Err(err).Str("state", state).Msg("failed to notify systemd")
		return
	}
	if sent {
		log.Debug().Str("state", state).Msg("notified systemd")
	}
}
