package domain

import (
	"time"

	"github.com/google/uuid"
)

// RuleType is the semantic family a rule reacts to.
type RuleType string

const (
	RuleTypePayment           RuleType = "payment"
	RuleTypeShipping          RuleType = "shipping"
	RuleTypeAbandonedCheckout RuleType = "abandoned_checkout"
	RuleTypePostSale          RuleType = "post_sale"
	RuleTypeLegacy            RuleType = "legacy"
)

// Channel is a delivery medium.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
)

// DedupeScope controls ledger suppression for a rule.
type DedupeScope string

const (
	DedupeScopeNone    DedupeScope = "none"
	DedupeScopeDefault DedupeScope = "default"
)

// Enabled reports whether the ledger applies. An empty scope means the
// rule-type default, which is enabled.
func (s DedupeScope) Enabled() bool {
	return s != DedupeScopeNone
}

// DelayUnit is the unit of Rule.DelayAmount.
type DelayUnit string

const (
	DelayUnitSeconds DelayUnit = "seconds"
	DelayUnitMinutes DelayUnit = "minutes"
	DelayUnitHours   DelayUnit = "hours"
	DelayUnitDays    DelayUnit = "days"
)

// Seconds returns the length of one unit. An empty unit means minutes.
func (u DelayUnit) Seconds() (int64, bool) {
	switch u {
	case DelayUnitSeconds:
		return 1, true
	case DelayUnitMinutes, "":
		return 60, true
	case DelayUnitHours:
		return 3600, true
	case DelayUnitDays:
		return 86400, true
	default:
		return 0, false
	}
}

// Template is the authored content for one channel.
type Template struct {
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body"`
}

// LegacyFilter is one declarative condition of the pre-rule_type rule shape.
type LegacyFilter struct {
	Path     string `json:"path"`
	Operator string `json:"operator"`
	Value    any    `json:"value,omitempty"`
}

// LegacyAction is one channel entry of the pre-rule_type rule shape.
type LegacyAction struct {
	Channel  Channel  `json:"channel"`
	Template Template `json:"template"`
}

// Product scope modes.
const (
	ProductScopeAll      = "all"
	ProductScopeSpecific = "specific"
)

// ProductScope restricts a rule to events touching specific products.
type ProductScope struct {
	Mode       string   `json:"mode"`
	ProductIDs []string `json:"product_ids,omitempty"`
}

// Restricted reports whether the scope filters by product.
func (p ProductScope) Restricted() bool {
	return p.Mode == ProductScopeSpecific && len(p.ProductIDs) > 0
}

// Rule is tenant-authored notification configuration. Read-only to the pipeline.
type Rule struct {
	ID               uuid.UUID            `json:"id"`
	TenantID         uuid.UUID            `json:"tenant_id"`
	Name             string               `json:"name"`
	RuleType         RuleType             `json:"rule_type"`
	TriggerCondition string               `json:"trigger_condition"`
	Channels         []Channel            `json:"channels"`
	Templates        map[Channel]Template `json:"templates"`
	DelayAmount      int64                `json:"delay_amount"`
	DelayUnit        DelayUnit            `json:"delay_unit"`
	ProductScope     ProductScope         `json:"product_scope"`
	DedupeScope      DedupeScope          `json:"dedupe_scope"`
	Priority         int                  `json:"priority"`
	EffectiveFrom    time.Time            `json:"effective_from"`
	Enabled          bool                 `json:"enabled"`
	LegacyFilters    []LegacyFilter       `json:"legacy_filters,omitempty"`
	LegacyActions    []LegacyAction       `json:"legacy_actions,omitempty"`
	CreatedAt        time.Time            `json:"created_at"`
}

// AppliesAt reports whether an event that occurred at t is within the rule's
// effective window. Rules are never retroactive.
func (r *Rule) AppliesAt(t time.Time) bool {
	return r.EffectiveFrom.IsZero() || !t.Before(r.EffectiveFrom)
}

// MaxDelay caps the send delay of a rule.
const MaxDelay = 365 * 24 * time.Hour

// Delay returns the send delay, capped at MaxDelay. Unknown units yield zero
// and false.
func (r *Rule) Delay() (time.Duration, bool) {
	perUnit, ok := r.DelayUnit.Seconds()
	if !ok {
		return 0, false
	}
	if r.DelayAmount <= 0 {
		return 0, true
	}
	if r.DelayAmount > int64(MaxDelay/time.Second)/perUnit {
		return MaxDelay, true
	}
	return time.Duration(r.DelayAmount*perUnit) * time.Second, true
}

// DeliveryChannels resolves the channel list: explicit channels, then the
// legacy action list, then fallback.
func (r *Rule) DeliveryChannels(fallback Channel) []Channel {
	if len(r.Channels) > 0 {
		return dedupeChannels(r.Channels)
	}
	if len(r.LegacyActions) > 0 {
		chans := make([]Channel, 0, len(r.LegacyActions))
		for _, a := range r.LegacyActions {
			if a.Channel != "" {
				chans = append(chans, a.Channel)
			}
		}
		if len(chans) > 0 {
			return dedupeChannels(chans)
		}
	}
	return []Channel{fallback}
}

// TemplateFor returns the authored template for a channel, looking at the
// legacy actions when the per-channel map has no entry.
func (r *Rule) TemplateFor(ch Channel) (Template, bool) {
	if t, ok := r.Templates[ch]; ok && t.Body != "" {
		return t, true
	}
	for _, a := range r.LegacyActions {
		if a.Channel == ch && a.Template.Body != "" {
			return a.Template, true
		}
	}
	return Template{}, false
}

func dedupeChannels(in []Channel) []Channel {
	seen := make(map[Channel]struct{}, len(in))
	out := make([]Channel, 0, len(in))
	for _, c := range in {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
