package domain

// RuleKind is the closed set of rule shapes. Only the types in this file
// implement it; consumers switch over them exhaustively.
type RuleKind interface {
	ruleKind()
}

// PaymentRule fires on payment status changes matching Condition.
type PaymentRule struct{ Condition string }

// ShippingRule fires on shipment status changes matching Condition.
type ShippingRule struct{ Condition string }

// AbandonedCheckoutRule fires on abandoned checkouts of customers who have
// not converted since.
type AbandonedCheckoutRule struct{}

// PostSaleRule fires on a customer's first order.
type PostSaleRule struct{}

// LegacyRule is the declarative filter shape used before rule_type existed.
// An empty EventType accepts any event type.
type LegacyRule struct {
	EventType string
	Filters   []LegacyFilter
}

// UnsupportedRule carries a rule_type the pipeline does not know. It never matches.
type UnsupportedRule struct{ Type RuleType }

func (PaymentRule) ruleKind()           {}
func (ShippingRule) ruleKind()          {}
func (AbandonedCheckoutRule) ruleKind() {}
func (PostSaleRule) ruleKind()          {}
func (LegacyRule) ruleKind()            {}
func (UnsupportedRule) ruleKind()       {}

// Kind classifies the rule. Rules without a rule_type are legacy rules whose
// trigger_condition holds the event type tag.
func (r *Rule) Kind() RuleKind {
	switch r.RuleType {
	case RuleTypePayment:
		return PaymentRule{Condition: r.TriggerCondition}
	case RuleTypeShipping:
		return ShippingRule{Condition: r.TriggerCondition}
	case RuleTypeAbandonedCheckout:
		return AbandonedCheckoutRule{}
	case RuleTypePostSale:
		return PostSaleRule{}
	case RuleTypeLegacy, "":
		return LegacyRule{EventType: r.TriggerCondition, Filters: r.LegacyFilters}
	default:
		return UnsupportedRule{Type: r.RuleType}
	}
}
