package main

import (
	"fmt"

	"github.com/fgeck/gowol-homelab/internal/services/wol"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var listenAddr string

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Print magic packets received on this machine",
	Long: `Listen for Wake-on-LAN magic packets and log the MAC address each one targets.
Useful to check that broadcasts from the daemon reach a network segment.`,
	Args: cobra.NoArgs,
	RunE: listen,
}

func init() {
	listenCmd.Flags().StringVar(&listenAddr, "addr", fmt.Sprintf(":%d", wol.DefaultPort), "UDP address to listen on")
}

func listen(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	l, err := wol.Listen(listenAddr, log.Logger)
	if err != nil {
		log.Error().Err(err).Str("addr", listenAddr).Msg("failed to listen")
		return err
	}
	defer l.Close()

	log.Info().Str("addr", l.Addr().String()).Msg("waiting for magic packets")

	return l.Serve(ctx, func(r wol.Received) {
		log.Info().
			Str("mac", r.Target.String()).
			Str("source", r.Source.String()).
			Msg("magic packet received")
	})
}
