package channel

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"storefront-notifier/internal/core/domain"
	"storefront-notifier/internal/core/ports"
	"storefront-notifier/internal/service"
	"storefront-notifier/pkg/apperror"

	"github.com/rs/zerolog"
)

// minPhoneDigits is the shortest number accepted after stripping formatting.
const minPhoneDigits = 10

// WhatsAppConfig points the sender at a messaging gateway.
type WhatsAppConfig struct {
	APIURL        string
	APIKey        string
	SigningSecret string
}

// WhatsAppSender implements ports.ChannelSender for WhatsApp.
type WhatsAppSender struct {
	cfg    WhatsAppConfig
	signer ports.SignatureService
	client HTTPClient
	log    zerolog.Logger
	now    func() time.Time
}

// NewWhatsAppSender creates a WhatsApp sender. Requests are signed when a
// signing secret is configured.
func NewWhatsAppSender(cfg WhatsAppConfig, signer ports.SignatureService, client HTTPClient, log zerolog.Logger) *WhatsAppSender {
	return &WhatsAppSender{cfg: cfg, signer: signer, client: client, log: log, now: time.Now}
}

type whatsAppMessage struct {
	To        string `json:"to"`
	Type      string `json:"type"`
	Text      string `json:"text"`
	Reference string `json:"reference"`
}

// Channel returns the WhatsApp channel tag.
func (s *WhatsAppSender) Channel() domain.Channel { return domain.ChannelWhatsApp }

// Send normalizes the phone number and posts a text message to the gateway.
func (s *WhatsAppSender) Send(ctx context.Context, req ports.SendRequest) ports.SendResult {
	phone := digitsOnly(req.Recipient)
	if len(phone) < minPhoneDigits {
		return failure(apperror.ErrInvalidRecipient(req.Recipient))
	}

	body, err := json.Marshal(whatsAppMessage{
		To:        phone,
		Type:      "text",
		Text:      req.Content.Body,
		Reference: req.NotificationID.String(),
	})
	if err != nil {
		return failure(apperror.ErrTransport(err))
	}

	headers := map[string]string{"Authorization": "Bearer " + s.cfg.APIKey}
	if s.cfg.SigningSecret != "" && s.signer != nil {
		ts := s.now().Unix()
		headers["X-Timestamp"] = strconv.FormatInt(ts, 10)
		headers["X-Signature"] = s.signer.Sign(s.cfg.SigningSecret, service.CanonicalPayload(ts, body))
	}

	res := post(ctx, s.client, s.cfg.APIURL, body, headers)
	if !res.Success {
		s.log.Debug().
			Str("notification_id", req.NotificationID.String()).
			Str("error_code", res.ErrorCode).
			Msg("whatsapp gateway rejected message")
	}
	return res
}

// digitsOnly keeps ASCII digits. Other scripts' numerals are dropped, the
// gateway only accepts 0-9.
func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
