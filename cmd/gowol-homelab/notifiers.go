package main

import (
	"github.com/fgeck/gowol-homelab/internal/models"
	"github.com/fgeck/gowol-homelab/internal/services/publisher"
	"github.com/fgeck/gowol-homelab/internal/services/runner"
	"github.com/fgeck/gowol-homelab/internal/services/telegram"
	"github.com/rs/zerolog/log"
)

// buildNotifiers wires the configured notification channels. A broker that
// cannot be reached is logged and skipped so waking still works without it.
func buildNotifiers(cfg *models.Config) ([]runner.Notifier, func()) {
	var notifiers []runner.Notifier
	var closers []func() error

	if cfg.Telegram != nil {
		notifiers = append(notifiers, telegram.NewNotifier(telegram.New(log.Logger), *cfg.Telegram, hostname()))
		log.Debug().Str("chat_id", cfg.Telegram.ChatID).Msg("telegram notifications enabled")
	}

	if cfg.AMQP != nil {
		pub, err := publisher.New(log.Logger, *cfg.AMQP)
		if err != nil {
			log.Warn().Err(err).Msg("status publishing disabled")
		} else {
			notifiers = append(notifiers, pub)
			closers = append(closers, pub.Close)
		}
	}

	return notifiers, func() {
		for _, closeFn := range closers {
			if err := closeFn(); err != nil {
				log.Warn().Err(err).Msg("failed to close notifier")
			}
		}
	}
}
