package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/quartzbi/beacon/logger"
	"github.com/quartzbi/beacon/report"
)

// Sender fans one envelope out to every recipient, isolating failures so
// one broken channel never blocks the others.
type Sender struct {
	registry *Registry
	dryRun   bool
	log      *zap.SugaredLogger
}

func NewSender(registry *Registry, dryRun bool, log *zap.SugaredLogger) *Sender {
	return &Sender{registry: registry, dryRun: dryRun, log: log}
}

// Send delivers to each recipient in order, collecting failures. After the
// loop it raises SystemErrorsError if any failure carried SYSTEM severity,
// ClientErrorsError if only CLIENT failures occurred, and nil otherwise.
func (s *Sender) Send(ctx context.Context, env *Envelope, recipients []report.Recipient) error {
	var failures []DeliveryError

	for _, recipient := range recipients {
		if s.dryRun {
			s.log.Infow("Would send notification, dry run is enabled",
				"notification", env.Name,
				logger.FieldRecipient, recipient.ID,
				logger.FieldChannel, string(recipient.Type),
			)
			continue
		}

		err := s.deliverOne(ctx, recipient, env)
		if err == nil {
			continue
		}
		failure := DeliveryError{
			RecipientID: recipient.ID,
			Channel:     string(recipient.Type),
			Severity:    severityOf(err),
			Message:     err.Error(),
		}
		failures = append(failures, failure)
		s.log.Warnw("Notification delivery failed",
			logger.FieldRecipient, recipient.ID,
			logger.FieldChannel, string(recipient.Type),
			logger.FieldSeverity, string(failure.Severity),
			"error", err,
		)
	}

	if len(failures) == 0 {
		return nil
	}
	for _, failure := range failures {
		if failure.Severity == SeveritySystem {
			return &SystemErrorsError{Errors: failures}
		}
	}
	return &ClientErrorsError{Errors: failures}
}

func (s *Sender) deliverOne(ctx context.Context, recipient report.Recipient, env *Envelope) error {
	channel, ok := s.registry.Get(recipient.Type)
	if !ok {
		return &StatusError{Code: 400, Err: errUnknownChannel(recipient.Type)}
	}
	return channel.Deliver(ctx, recipient, env)
}
