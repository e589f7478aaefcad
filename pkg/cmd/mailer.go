package cmd

import (
	"log/slog"

	"github.com/dukex/flowline/pkg/mailer"
)

// NewMailer sends through SMTP when a host is configured and only logs otherwise.
func NewMailer(cfg mailer.SMTPConfig, logger *slog.Logger) mailer.Mailer {
	if cfg.Host == "" {
		logger.Warn("No SMTP host configured, emails will only be logged")

		return mailer.NewLogMailer(logger)
	}

	return mailer.NewSMTPMailer(cfg)
}
