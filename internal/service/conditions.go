package service

import (
	"maps"
	"slices"
	"strings"

	"storefront-notifier/config"
	"storefront-notifier/internal/core/domain"
)

// ConditionEntry lists the raw statuses accepted for one rule condition.
// PendingMethods lets a generic pending status satisfy the condition when the
// payment method is one of them.
type ConditionEntry struct {
	Statuses       []string
	PendingMethods []string
}

// ConditionTable maps a normalized trigger_condition to its accepted statuses.
// It is data, not code: operators override entries through config.
type ConditionTable map[string]ConditionEntry

// pendingStatuses are the generic "awaiting payment" statuses that legacy
// producers emit together with a payment method.
var pendingStatuses = []string{"pending", "waiting_payment"}

// DefaultPaymentConditions returns the built-in payment condition table.
func DefaultPaymentConditions() ConditionTable {
	return ConditionTable{
		"paid":             {Statuses: []string{"paid", "approved"}},
		"pending":          {Statuses: []string{"pending", "waiting_payment"}},
		"pix_generated":    {Statuses: []string{"pix_generated"}, PendingMethods: []string{"pix"}},
		"boleto_generated": {Statuses: []string{"boleto_generated"}, PendingMethods: []string{"boleto"}},
		"refused":          {Statuses: []string{"refused", "declined", "failed"}},
		"refunded":         {Statuses: []string{"refunded"}},
		"chargeback":       {Statuses: []string{"chargeback", "charged_back"}},
		"canceled":         {Statuses: []string{"canceled", "cancelled"}},
		"expired":          {Statuses: []string{"expired"}},
	}
}

// DefaultShippingConditions returns the built-in shipping condition table.
func DefaultShippingConditions() ConditionTable {
	return ConditionTable{
		"shipped":          {Statuses: []string{"shipped", "dispatched"}},
		"in_transit":       {Statuses: []string{"in_transit"}},
		"out_for_delivery": {Statuses: []string{"out_for_delivery"}},
		"delivered":        {Statuses: []string{"delivered"}},
		"returned":         {Statuses: []string{"returned", "returned_to_sender"}},
		"delivery_failed":  {Statuses: []string{"delivery_failed", "failed_attempt"}},
	}
}

// WithOverrides returns a copy of t with the configured entries replacing or
// extending the built-in ones.
func (t ConditionTable) WithOverrides(overrides map[string]config.ConditionEntry) ConditionTable {
	out := make(ConditionTable, len(t)+len(overrides))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range overrides {
		out[normalizeToken(k)] = ConditionEntry{
			Statuses:       normalizeAll(v.Statuses),
			PendingMethods: normalizeAll(v.PendingMethods),
		}
	}
	return out
}

// Satisfies reports whether a raw status (and payment method) satisfies condition.
func (t ConditionTable) Satisfies(condition, status, method string) bool {
	entry, ok := t[normalizeToken(condition)]
	if !ok {
		return false
	}
	status = normalizeToken(status)
	if slices.Contains(entry.Statuses, status) {
		return true
	}
	if len(entry.PendingMethods) > 0 && slices.Contains(pendingStatuses, status) {
		return slices.Contains(entry.PendingMethods, normalizeToken(method))
	}
	return false
}

// Known reports whether status appears anywhere in the table.
func (t ConditionTable) Known(status string) bool {
	status = normalizeToken(status)
	if status == "" {
		return false
	}
	for _, entry := range t {
		if slices.Contains(entry.Statuses, status) {
			return true
		}
		if len(entry.PendingMethods) > 0 && slices.Contains(pendingStatuses, status) {
			return true
		}
	}
	return false
}

// Conditions returns the table's condition names, sorted.
func (t ConditionTable) Conditions() []string {
	return slices.Sorted(maps.Keys(t))
}

// Event-type families, keyed by rule type. Producers have used several
// spellings over time; all of them are accepted.
var eventFamilies = map[domain.RuleType][]string{
	domain.RuleTypePayment: {
		"payment_status_changed", "payment.status_changed",
		"order.payment_status_changed", "order_payment_status_changed",
	},
	domain.RuleTypeShipping: {
		"shipment_status_changed", "shipment.status_changed",
		"shipping_status_changed", "shipping.status_changed",
		"order.shipping_status_changed",
	},
	domain.RuleTypeAbandonedCheckout: {
		"checkout_abandoned", "checkout.abandoned", "abandoned_checkout",
	},
	domain.RuleTypePostSale: {
		"customer_first_order", "customer.first_order", "first_order",
	},
}

// inFamily reports whether eventType is one of the spellings for ruleType.
func inFamily(ruleType domain.RuleType, eventType string) bool {
	return slices.Contains(eventFamilies[ruleType], normalizeToken(eventType))
}

// Payload paths for status fields, in lookup order.
var (
	paymentStatusPaths  = []string{"new_status", "status", "payment_status", "payment.status"}
	shippingStatusPaths = []string{"new_status", "status", "shipping_status", "shipment.status"}
	paymentMethodPaths  = []string{"payment_method", "payment.method"}
)

func normalizeToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if n := normalizeToken(s); n != "" {
			out = append(out, n)
		}
	}
	return out
}
