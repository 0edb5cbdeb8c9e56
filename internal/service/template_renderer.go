package service

import (
	"regexp"
	"strconv"
	"strings"

	"storefront-notifier/internal/core/domain"
	"storefront-notifier/internal/core/payload"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// TemplateContext resolves template variables for one event. Named variables
// are derived first; any other name is looked up as a dot path in the payload.
type TemplateContext struct {
	vars map[string]string
	doc  payload.Document
}

// Resolve returns the value of a template variable.
func (c TemplateContext) Resolve(name string) (string, bool) {
	if v, ok := c.vars[name]; ok && v != "" {
		return v, true
	}
	s, ok := c.doc.Lookup(name).String()
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// BuildTemplateContext assembles the variables offered to rule templates.
func BuildTemplateContext(ev *domain.Event) TemplateContext {
	doc := ev.Payload
	name := doc.FirstString("customer.name", "customer_name", "customer.full_name", "name")
	first := doc.FirstString("customer.first_name", "first_name")
	if f := strings.Fields(name); first == "" && len(f) > 0 {
		first = f[0]
	}

	orderNumber := ev.OrderNumber()
	if orderNumber == "" {
		orderNumber = ev.OrderID()
	}

	paymentStatus := doc.FirstString("payment_status", "payment.status")
	shippingStatus := doc.FirstString("shipping_status", "shipment.status")
	generic := doc.FirstString("new_status", "status")
	switch {
	case inFamily(domain.RuleTypePayment, ev.EventType) && paymentStatus == "":
		paymentStatus = generic
	case inFamily(domain.RuleTypeShipping, ev.EventType) && shippingStatus == "":
		shippingStatus = generic
	}

	return TemplateContext{
		doc: doc,
		vars: map[string]string{
			"customer_name":   name,
			"first_name":      first,
			"customer_email":  ev.CustomerEmail(),
			"customer_phone":  ev.CustomerPhone(),
			"order_number":    orderNumber,
			"order_total":     formatAmount(doc, "order.total", "order_total", "total", "amount"),
			"payment_status":  paymentStatus,
			"shipping_status": shippingStatus,
			"tracking_code":   doc.FirstString("tracking_code", "shipment.tracking_code", "tracking.code"),
			"tracking_url":    doc.FirstString("tracking_url", "shipment.tracking_url", "tracking.url"),
			"payment_link":    doc.FirstString("payment_link", "payment_url", "payment.link", "payment.url"),
			"pix_code":        doc.FirstString("pix_code", "pix.qr_code", "payment.pix_code", "payment.pix.qr_code"),
			"boleto_url":      doc.FirstString("boleto_url", "payment.boleto_url", "boleto.url"),
			"checkout_url":    doc.FirstString("checkout_url", "checkout.url", "recovery_url"),
			"store_name":      doc.FirstString("store_name", "store.name", "tenant.name"),
			"product_names":   productNames(doc),
		},
	}
}

func formatAmount(doc payload.Document, paths ...string) string {
	for _, p := range paths {
		v := doc.Lookup(p)
		if f, ok := v.Float(); ok {
			return strconv.FormatFloat(f, 'f', 2, 64)
		}
		if s, ok := v.String(); ok && s != "" {
			return s
		}
	}
	return ""
}

func productNames(doc payload.Document) string {
	var names []string
	for _, listPath := range []string{"items", "products", "order.items"} {
		items, ok := doc.Lookup(listPath).List()
		if !ok {
			continue
		}
		for _, item := range items {
			obj, ok := payload.Of(item).Object()
			if !ok {
				continue
			}
			if n := obj.FirstString("name", "product_name", "title"); n != "" {
				names = append(names, n)
			}
		}
		if len(names) > 0 {
			break
		}
	}
	return strings.Join(names, ", ")
}

// TemplateRenderer substitutes {{variable}} placeholders.
type TemplateRenderer struct{}

// NewTemplateRenderer creates a template renderer.
func NewTemplateRenderer() *TemplateRenderer {
	return &TemplateRenderer{}
}

// Render fills subject and body. Unresolved placeholders stay verbatim and
// their names are returned, deduplicated, in order of appearance.
func (r *TemplateRenderer) Render(tpl domain.Template, tc TemplateContext) (domain.RenderedContent, []string) {
	var gaps []string
	seen := map[string]bool{}
	fill := func(text string) string {
		return placeholderRe.ReplaceAllStringFunc(text, func(match string) string {
			name := placeholderRe.FindStringSubmatch(match)[1]
			if v, ok := tc.Resolve(name); ok {
				return v
			}
			if !seen[name] {
				seen[name] = true
				gaps = append(gaps, name)
			}
			return match
		})
	}
	return domain.RenderedContent{
		Subject: fill(tpl.Subject),
		Body:    fill(tpl.Body),
	}, gaps
}

// DefaultTemplate is used when a rule names a channel without authoring a
// template for it.
func DefaultTemplate(ruleType domain.RuleType, condition string, channel domain.Channel) domain.Template {
	var subject, body string
	switch ruleType {
	case domain.RuleTypePayment:
		subject = "Order {{order_number}}: payment {{payment_status}}"
		body = "Hi {{first_name}}, the payment for order {{order_number}} is now {{payment_status}}."
	case domain.RuleTypeShipping:
		subject = "Order {{order_number}}: {{shipping_status}}"
		body = "Hi {{first_name}}, your order {{order_number}} is {{shipping_status}}. Tracking: {{tracking_code}}"
	case domain.RuleTypeAbandonedCheckout:
		subject = "You left something in your cart"
		body = "Hi {{first_name}}, your cart at {{store_name}} is waiting: {{checkout_url}}"
	case domain.RuleTypePostSale:
		subject = "Thank you for your first order"
		body = "Hi {{first_name}}, thank you for your first order at {{store_name}}!"
	default:
		subject = "Update from {{store_name}}"
		body = "Hi {{first_name}}, there is an update on your order {{order_number}} (" + condition + ")."
	}
	if channel != domain.ChannelEmail {
		subject = ""
	}
	return domain.Template{Subject: subject, Body: body}
}
