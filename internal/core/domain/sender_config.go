package domain

import (
	"strings"

	"github.com/google/uuid"
)

// SenderConfig is the e-mail sending identity of a tenant, or the system-wide
// identity when TenantID is nil.
type SenderConfig struct {
	TenantID       *uuid.UUID `json:"tenant_id,omitempty"`
	FromName       string     `json:"from_name"`
	FromAddress    string     `json:"from_address"`
	ReplyTo        string     `json:"reply_to,omitempty"`
	Verified       bool       `json:"verified"`
	VerifiedDomain string     `json:"verified_domain"`
}

// SenderDomain returns the lower-cased domain part of FromAddress.
func (c *SenderConfig) SenderDomain() string {
	at := strings.LastIndex(c.FromAddress, "@")
	if at < 0 || at == len(c.FromAddress)-1 {
		return ""
	}
	return strings.ToLower(c.FromAddress[at+1:])
}

// DomainMatches reports whether the sender address belongs to the verified domain.
func (c *SenderConfig) DomainMatches() bool {
	d := c.SenderDomain()
	return d != "" && d == strings.ToLower(strings.TrimSpace(c.VerifiedDomain))
}
