package channel

import (
	"context"
	"encoding/json"
	"strings"

	"storefront-notifier/internal/core/domain"
	"storefront-notifier/internal/core/ports"
	"storefront-notifier/pkg/apperror"

	"github.com/rs/zerolog"
)

// EmailConfig points the sender at a transactional e-mail API.
type EmailConfig struct {
	APIURL string
	APIKey string
}

// EmailSender implements ports.ChannelSender for e-mail.
type EmailSender struct {
	cfg    EmailConfig
	client HTTPClient
	log    zerolog.Logger
}

// NewEmailSender creates an e-mail sender.
func NewEmailSender(cfg EmailConfig, client HTTPClient, log zerolog.Logger) *EmailSender {
	return &EmailSender{cfg: cfg, client: client, log: log}
}

type emailAddress struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

type emailMessage struct {
	From    emailAddress      `json:"from"`
	To      []emailAddress    `json:"to"`
	ReplyTo *emailAddress     `json:"reply_to,omitempty"`
	Subject string            `json:"subject"`
	HTML    string            `json:"html"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Channel returns the e-mail channel tag.
func (s *EmailSender) Channel() domain.Channel { return domain.ChannelEmail }

// Send validates the recipient and sender identity, then posts the message.
func (s *EmailSender) Send(ctx context.Context, req ports.SendRequest) ports.SendResult {
	to := strings.TrimSpace(req.Recipient)
	if !strings.Contains(to, "@") {
		return failure(apperror.ErrInvalidRecipient(req.Recipient))
	}

	if req.Identities == nil {
		return failure(apperror.ErrSenderUnverified())
	}
	identity, err := req.Identities.Resolve(ctx, req.TenantID)
	if err != nil {
		return failure(apperror.ErrTransport(err))
	}
	if !identity.Verified || strings.TrimSpace(identity.VerifiedDomain) == "" {
		return failure(apperror.ErrSenderUnverified())
	}
	if !identity.DomainMatches() {
		return failure(apperror.ErrSenderDomainMismatch(identity.SenderDomain(), identity.VerifiedDomain))
	}

	msg := emailMessage{
		From:    emailAddress{Name: identity.FromName, Email: identity.FromAddress},
		To:      []emailAddress{{Email: to}},
		Subject: req.Content.Subject,
		HTML:    req.Content.Body,
		Headers: map[string]string{"X-Notification-ID": req.NotificationID.String()},
	}
	if identity.ReplyTo != "" {
		msg.ReplyTo = &emailAddress{Email: identity.ReplyTo}
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return failure(apperror.ErrTransport(err))
	}

	res := post(ctx, s.client, s.cfg.APIURL, body, map[string]string{
		"Authorization": "Bearer " + s.cfg.APIKey,
	})
	if !res.Success {
		s.log.Debug().
			Str("notification_id", req.NotificationID.String()).
			Str("error_code", res.ErrorCode).
			Msg("email provider rejected message")
	}
	return res
}
