// Package notify fans out hub-level alerts and the daily report to Slack
// and email — a pure external-channel fan-out, since this hub has neither
// a users table nor an in-app notification feed.
package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Service fans out Warn (per-node alert conditions) and Info (the daily
// report) messages to every configured channel.
type Service interface {
	Warn(networkID, message string)
	Info(networkID, subject, body string)
}

type service struct {
	email   *emailSender
	webhook *webhookSender
	logger  *zap.Logger
}

func NewService(cfg Config, logger *zap.Logger) Service {
	return &service{
		email:   newEmailSender(cfg.SendGridAPIKey, cfg.SendGridTo),
		webhook: newWebhookSender(cfg.SlackWebhookURL),
		logger:  logger.Named("notify"),
	}
}

func (s *service) Warn(networkID, message string) {
	s.send(networkID, fmt.Sprintf("[%s] WARNING: %s", networkID, message), "fleethub alert")
}

func (s *service) Info(networkID, subject, body string) {
	s.send(networkID, fmt.Sprintf("[%s] %s", networkID, body), subject)
}

// send delivers text to every channel, logging (never propagating) a
// per-channel failure — external delivery is best-effort, matching the
// original's own fire-and-forget `noti.warn`/`noti.info` calls.
func (s *service) send(networkID, text, subject string) {
	ctx := context.Background()
	if err := s.webhook.Send(ctx, text); err != nil {
		s.logger.Warn("slack delivery failed", zap.String("network_id", networkID), zap.Error(err))
	}
	if err := s.email.Send(ctx, subject, text); err != nil {
		s.logger.Warn("email delivery failed", zap.String("network_id", networkID), zap.Error(err))
	}
}
