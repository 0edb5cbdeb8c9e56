package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"storefront-notifier/internal/core/domain"
	"storefront-notifier/internal/core/payload"
	"storefront-notifier/internal/core/ports"

	"github.com/rs/zerolog"
)

// matcherService implements ports.RuleMatcher.
type matcherService struct {
	payment  ConditionTable
	shipping ConditionTable
	orders   ports.OrderLookup
	log      zerolog.Logger
}

// NewMatcherService creates a rule matcher over the given condition tables.
func NewMatcherService(payment, shipping ConditionTable, orders ports.OrderLookup, log zerolog.Logger) ports.RuleMatcher {
	return &matcherService{
		payment:  payment,
		shipping: shipping,
		orders:   orders,
		log:      log,
	}
}

var noMatch = ports.MatchResult{}

// Match decides whether rule fires for event. The only side effect is the
// conversion lookup of abandoned-checkout rules; errors come from that lookup.
func (m *matcherService) Match(ctx context.Context, event *domain.Event, rule *domain.Rule) (ports.MatchResult, error) {
	if !rule.Enabled || rule.TenantID != event.TenantID {
		return noMatch, nil
	}
	if !rule.AppliesAt(event.OccurredAt) {
		return noMatch, nil
	}

	var res ports.MatchResult
	switch k := rule.Kind().(type) {
	case domain.PaymentRule:
		if !inFamily(domain.RuleTypePayment, event.EventType) {
			return noMatch, nil
		}
		res = m.matchStatus(m.payment, k.Condition, event,
			event.Payload.FirstString(paymentStatusPaths...),
			event.Payload.FirstString(paymentMethodPaths...))

	case domain.ShippingRule:
		if !inFamily(domain.RuleTypeShipping, event.EventType) {
			return noMatch, nil
		}
		res = m.matchStatus(m.shipping, k.Condition, event,
			event.Payload.FirstString(shippingStatusPaths...), "")

	case domain.AbandonedCheckoutRule:
		if !inFamily(domain.RuleTypeAbandonedCheckout, event.EventType) {
			return noMatch, nil
		}
		converted, err := m.customerConverted(ctx, event)
		if err != nil {
			return noMatch, err
		}
		if converted {
			return noMatch, nil
		}
		res = ports.MatchResult{Matched: true, Condition: string(domain.RuleTypeAbandonedCheckout)}

	case domain.PostSaleRule:
		if !inFamily(domain.RuleTypePostSale, event.EventType) {
			return noMatch, nil
		}
		res = ports.MatchResult{Matched: true, Condition: string(domain.RuleTypePostSale)}

	case domain.LegacyRule:
		if k.EventType != "" && normalizeToken(k.EventType) != normalizeToken(event.EventType) {
			return noMatch, nil
		}
		if !m.matchFilters(k.Filters, event.Payload) {
			return noMatch, nil
		}
		res = ports.MatchResult{Matched: true, Condition: normalizeToken(k.EventType)}

	case domain.UnsupportedRule:
		m.log.Warn().
			Str("rule_id", rule.ID.String()).
			Str("rule_type", string(k.Type)).
			Msg("rule type not supported, skipping")
		return noMatch, nil

	default:
		return noMatch, fmt.Errorf("unhandled rule kind %T", k)
	}

	if !res.Matched {
		return res, nil
	}
	if !productScopeMatches(rule.ProductScope, event.Payload) {
		return noMatch, nil
	}
	res.EntityType, res.EntityID = entityFor(rule.RuleType, event)
	return res, nil
}

func (m *matcherService) matchStatus(table ConditionTable, condition string, event *domain.Event, status, method string) ports.MatchResult {
	res := ports.MatchResult{Condition: normalizeToken(condition)}
	if status != "" && !table.Known(status) {
		res.UnknownStatus = status
		m.log.Warn().
			Str("event_id", event.ID.String()).
			Str("event_type", event.EventType).
			Str("status", status).
			Msg("status not covered by condition table")
	}
	res.Matched = table.Satisfies(condition, status, method)
	return res
}

// customerConverted reports whether the checkout's customer has completed an
// order since the checkout was abandoned. Without an e-mail address there is
// nothing to look up and the reminder stands.
func (m *matcherService) customerConverted(ctx context.Context, event *domain.Event) (bool, error) {
	email := strings.ToLower(strings.TrimSpace(event.CustomerEmail()))
	if email == "" || m.orders == nil {
		return false, nil
	}
	converted, err := m.orders.HasCompletedOrderSince(ctx, event.TenantID, email, event.OccurredAt)
	if err != nil {
		return false, fmt.Errorf("checking conversion: %w", err)
	}
	return converted, nil
}

func (m *matcherService) matchFilters(filters []domain.LegacyFilter, doc payload.Document) bool {
	for _, f := range filters {
		ok, known := evalFilter(f, doc)
		if !known {
			m.log.Warn().Str("operator", f.Operator).Str("path", f.Path).Msg("unknown legacy filter operator")
		}
		if !ok {
			return false
		}
	}
	return true
}

var legacyOperators = []string{"eq", "neq", "in", "contains", "exists", "not_exists", "gt", "gte", "lt", "lte"}

// evalFilter evaluates one legacy filter. An absent path never matches except
// for not_exists. The second result is false for unknown operators. An empty
// operator means eq.
func evalFilter(f domain.LegacyFilter, doc payload.Document) (matched bool, known bool) {
	op := normalizeToken(f.Operator)
	if op == "" {
		op = "eq"
	}
	if !slices.Contains(legacyOperators, op) {
		return false, false
	}

	v := doc.Lookup(f.Path)
	switch op {
	case "exists":
		return v.Present() && v.Raw() != nil, true
	case "not_exists":
		return !v.Present() || v.Raw() == nil, true
	}
	if !v.Present() {
		return false, true
	}
	want := payload.Of(f.Value)

	switch op {
	case "eq":
		return valuesEqual(v, want), true
	case "neq":
		return !valuesEqual(v, want), true
	case "in":
		for _, candidate := range listOf(f.Value) {
			if valuesEqual(v, payload.Of(candidate)) {
				return true, true
			}
		}
		return false, true
	case "contains":
		if items, ok := v.List(); ok {
			for _, item := range items {
				if valuesEqual(payload.Of(item), want) {
					return true, true
				}
			}
			return false, true
		}
		s, ok1 := v.String()
		sub, ok2 := want.String()
		return ok1 && ok2 && strings.Contains(strings.ToLower(s), strings.ToLower(sub)), true
	}

	a, ok1 := v.Float()
	b, ok2 := want.Float()
	if !ok1 || !ok2 {
		return false, true
	}
	switch op {
	case "gt":
		return a > b, true
	case "gte":
		return a >= b, true
	case "lt":
		return a < b, true
	default:
		return a <= b, true
	}
}

func valuesEqual(a, b payload.Value) bool {
	if af, ok := a.Float(); ok {
		if bf, ok := b.Float(); ok {
			return af == bf
		}
	}
	as, ok1 := a.String()
	bs, ok2 := b.String()
	if ok1 && ok2 {
		return strings.EqualFold(as, bs)
	}
	return a.Raw() == nil && b.Raw() == nil
}

func listOf(v any) []any {
	switch l := v.(type) {
	case []any:
		return l
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out
	default:
		return []any{v}
	}
}

// productScopeMatches checks a restricted scope against the product ids the
// event references.
func productScopeMatches(scope domain.ProductScope, doc payload.Document) bool {
	if !scope.Restricted() {
		return true
	}
	for _, id := range productIDs(doc) {
		if slices.Contains(scope.ProductIDs, id) {
			return true
		}
	}
	return false
}

func productIDs(doc payload.Document) []string {
	var ids []string
	collect := func(listPath, idKey string) {
		items, ok := doc.Lookup(listPath).List()
		if !ok {
			return
		}
		for _, item := range items {
			obj, ok := payload.Of(item).Object()
			if !ok {
				continue
			}
			if id := obj.FirstString(idKey); id != "" {
				ids = append(ids, id)
			}
		}
	}
	collect("items", "product_id")
	collect("products", "id")
	collect("order.items", "product_id")
	return ids
}

// entityFor derives the dedup scope of a match. Payment and shipping facts
// belong to the order, abandonment to the checkout, milestones to the
// customer. Without a business identifier the event itself is the entity.
func entityFor(ruleType domain.RuleType, event *domain.Event) (string, string) {
	var entityType, entityID string
	switch ruleType {
	case domain.RuleTypePayment, domain.RuleTypeShipping:
		entityType, entityID = domain.EntityOrder, event.OrderID()
	case domain.RuleTypeAbandonedCheckout:
		entityType, entityID = domain.EntityCheckout, event.CheckoutID()
	case domain.RuleTypePostSale:
		entityType, entityID = domain.EntityCustomer, event.CustomerID()
	default:
		switch {
		case event.OrderID() != "":
			entityType, entityID = domain.EntityOrder, event.OrderID()
		case event.CheckoutID() != "":
			entityType, entityID = domain.EntityCheckout, event.CheckoutID()
		case event.CustomerID() != "":
			entityType, entityID = domain.EntityCustomer, event.CustomerID()
		}
	}
	if entityID == "" {
		return domain.EntityEvent, event.ID.String()
	}
	return entityType, entityID
}
