package payment_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/payment"
)

func TestParseEvent(t *testing.T) {
	tests := []struct {
		name string
		body string
		want payment.Event
	}{
		{
			name: "provider_envelope_payment_paid",
			body: `{"data":{"id":"evt_1","type":"event","attributes":{"type":"payment.paid","data":{"id":"pay_1","type":"payment",
				"attributes":{"amount":259900,"currency":"PHP","source":{"type":"gcash"},"metadata":{"checkout_session_id":"cs_1"}}}}}}`,
			want: payment.Event{ID: "evt_1", Type: payment.EventPaymentPaid, CheckoutSessionID: "cs_1", Amount: 259900, Currency: "PHP"},
		},
		{
			name: "provider_envelope_checkout_completed_uses_resource_id",
			body: `{"data":{"id":"evt_2","attributes":{"type":"checkout_session.completed","data":{"id":"cs_2","attributes":{"payment_method_used":"card"}}}}}`,
			want: payment.Event{ID: "evt_2", Type: payment.EventCheckoutSessionCompleted, CheckoutSessionID: "cs_2"},
		},
		{
			name: "flat_normalized",
			body: `{"type":"payment.failed","checkout_session_id":"cs_3","data":{"amount":"1500","currency":"PHP"}}`,
			want: payment.Event{Type: payment.EventPaymentFailed, CheckoutSessionID: "cs_3", Amount: 1500, Currency: "PHP"},
		},
		{
			name: "flat_without_data_reads_top_level",
			body: `{"type":"payment.paid","checkout_id":"cs_4","amount":100}`,
			want: payment.Event{Type: payment.EventPaymentPaid, CheckoutSessionID: "cs_4", Amount: 100},
		},
		{
			name: "missing_session",
			body: `{"type":"payment.paid","data":{"amount":100}}`,
			want: payment.Event{Type: payment.EventPaymentPaid, Amount: 100},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := payment.ParseEvent([]byte(tt.body))
			require.NoError(t, err)
			assert.NotNil(t, got.Attributes)

			got.Attributes = nil
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseEvent() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseEvent_Malformed(t *testing.T) {
	for _, body := range []string{``, `not json`, `[]`, `{"data":{}}`} {
		_, err := payment.ParseEvent([]byte(body))
		require.ErrorIs(t, err, payment.ErrMalformedEvent, "body %q", body)
	}
}

func TestResolveMethod(t *testing.T) {
	tests := []struct {
		name  string
		attrs map[string]any
		want  string
	}{
		{name: "nil", attrs: nil, want: ""},
		{name: "payment_method_used", attrs: map[string]any{"payment_method_used": "gcash", "source": map[string]any{"type": "card"}}, want: "gcash"},
		{name: "payment_method_type", attrs: map[string]any{"payment_method_type": "paymaya"}, want: "paymaya"},
		{name: "payment_method_string", attrs: map[string]any{"payment_method": "card"}, want: "card"},
		{name: "payment_method_object", attrs: map[string]any{"payment_method": map[string]any{"type": "grab_pay"}}, want: "grab_pay"},
		{name: "source_type", attrs: map[string]any{"source": map[string]any{"type": "card"}}, want: "card"},
		{
			name: "first_payment_source",
			attrs: map[string]any{"payments": []any{
				map[string]any{"attributes": map[string]any{"source": map[string]any{"type": "gcash"}}},
			}},
			want: "gcash",
		},
		{name: "blank_value_skipped", attrs: map[string]any{"payment_method_used": "  ", "source": map[string]any{"type": "card"}}, want: "card"},
		{name: "none", attrs: map[string]any{"amount": 100}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, payment.ResolveMethod(tt.attrs))
		})
	}
}
