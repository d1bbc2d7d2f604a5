package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/fgeck/gowol-homelab/internal/netinfo"
	"github.com/fgeck/gowol-homelab/internal/services/runner"
	"github.com/fgeck/gowol-homelab/internal/wake"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var errUnreachable = errors.New("target did not answer")

var wakeCmd = &cobra.Command{
	Use:   "wake <ip> <mac>",
	Short: "Wake a host and wait until it answers",
	Long: `Send a Wake-on-LAN magic packet for <mac>, then probe <ip> until it answers
or the configured attempts are used up. Exits non-zero when the host stays unreachable.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		param := args[0] + wake.ParamSeparator + args[1]
		return runCycle(func(svc *runner.Impl) (wake.Session, error) {
			return svc.Wake(param)
		})
	},
}

var pingCmd = &cobra.Command{
	Use:   "ping <ip>",
	Short: "Check whether a host answers",
	Long:  `Probe <ip> with the configured method and retries. Exits non-zero when the host stays unreachable.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCycle(func(svc *runner.Impl) (wake.Session, error) {
			return svc.Ping(args[0])
		})
	},
}

// runCycle starts one cycle on a private runner and waits for its outcome.
func runCycle(start func(*runner.Impl) (wake.Session, error)) error {
	cfg, err := loadConfig()
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

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- svc.Run(runCtx) }()
	defer func() {
		stop()
		<-done
	}()

	ip, err := netinfo.NewMonitor(log.Logger, cfg.Network).WaitReady(ctx)
	if err != nil {
		return fmt.Errorf("network not ready: %w", err)
	}
	svc.NetworkReady(ip)

	sess, err := start(svc)
	if err != nil {
		log.Error().Err(err).Msg("command rejected")
		return err
	}

	final, err := svc.Await(ctx, sess.Cycle)
	if err != nil {
		return err
	}
	return outcome(final)
}

// outcome turns a settled session into the command result.
func outcome(sess wake.Session) error {
	target := sess.Target.String()
	switch sess.Outcome {
	case wake.StatusReachable:
		log.Info().Str("target", target).Msg("host is reachable")
		return nil
	case wake.StatusUnreachable:
		log.Error().Str("target", target).Msg("host is unreachable")
		return fmt.Errorf("%w: %s", errUnreachable, target)
	default:
		return fmt.Errorf("wake cycle for %s ended with %q", target, sess.Outcome)
	}
}
