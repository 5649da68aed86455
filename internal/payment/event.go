package payment

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	EventPaymentPaid              = "payment.paid"
	EventPaymentFailed            = "payment.failed"
	EventCheckoutSessionCompleted = "checkout_session.completed"
)

var ErrMalformedEvent = errors.New("malformed webhook event")

// Event is a provider notification reduced to the fields reconciliation
// needs. Attributes keeps the resource attributes for payment-method lookup.
type Event struct {
	ID                string
	Type              string
	CheckoutSessionID string
	Amount            int64 // minor units
	Currency          string
	Attributes        map[string]any
}

// ParseEvent accepts the provider envelope
//
//	{"data":{"id":"evt_..","attributes":{"type":"payment.paid","data":{"id":"pay_..","attributes":{..}}}}}
//
// and the flat form {"type":"payment.paid","checkout_session_id":"cs_..","data":{..}}.
func ParseEvent(body []byte) (Event, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var root map[string]any
	if err := dec.Decode(&root); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	var (
		event      Event
		resourceID string
	)

	if eventType, ok := lookupString(root, "data", "attributes", "type"); ok {
		event.Type = eventType
		event.ID, _ = lookupString(root, "data", "id")
		resourceID, _ = lookupString(root, "data", "attributes", "data", "id")
		event.Attributes, _ = lookupMap(root, "data", "attributes", "data", "attributes")
	} else if eventType, ok := lookupString(root, "type"); ok {
		event.Type = eventType
		event.ID, _ = lookupString(root, "id")
		if attrs, ok := lookupMap(root, "data"); ok {
			event.Attributes = attrs
		} else {
			event.Attributes = root
		}
		if id, ok := lookupString(root, "checkout_session_id"); ok {
			event.CheckoutSessionID = id
		}
	} else {
		return Event{}, fmt.Errorf("%w: event type is missing", ErrMalformedEvent)
	}

	if event.Attributes == nil {
		event.Attributes = map[string]any{}
	}

	if event.CheckoutSessionID == "" {
		event.CheckoutSessionID = firstString(event.Attributes,
			[]string{"checkout_session_id"},
			[]string{"checkout_id"},
			[]string{"metadata", "checkout_session_id"},
		)
	}
	if event.CheckoutSessionID == "" && strings.HasPrefix(event.Type, "checkout_session.") {
		event.CheckoutSessionID = resourceID
	}

	if n, ok := lookup(event.Attributes, "amount"); ok {
		event.Amount = toInt64(n)
	}
	event.Currency, _ = lookupString(event.Attributes, "currency")

	return event, nil
}

// ResolveMethod returns the payment method named in a resource's
// attributes, or "" when none of the known fields is present.
func ResolveMethod(attrs map[string]any) string {
	if attrs == nil {
		return ""
	}
	return firstString(attrs,
		[]string{"payment_method_used"},
		[]string{"payment_method_type"},
		[]string{"payment_method"},
		[]string{"payment_method", "type"},
		[]string{"source", "type"},
		[]string{"payments", "0", "attributes", "source", "type"},
		[]string{"payments", "0", "attributes", "payment_method_used"},
	)
}

func firstString(m map[string]any, paths ...[]string) string {
	for _, path := range paths {
		if s, ok := lookupString(m, path...); ok && s != "" {
			return s
		}
	}
	return ""
}

// lookup walks nested maps; a numeric path element indexes into an array.
func lookup(m map[string]any, path ...string) (any, bool) {
	var cur any = m
	for _, key := range path {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[key]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, cur != nil
}

func lookupString(m map[string]any, path ...string) (string, bool) {
	v, ok := lookup(m, path...)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return strings.TrimSpace(s), ok
}

func lookupMap(m map[string]any, path ...string) (map[string]any, bool) {
	v, ok := lookup(m, path...)
	if !ok {
		return nil, false
	}
	out, ok := v.(map[string]any)
	return out, ok
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return int64(f)
		}
	case float64:
		return int64(n)
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i
		}
	}
	return 0
}
