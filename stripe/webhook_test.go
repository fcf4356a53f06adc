package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	stripeapi "github.com/stripe/stripe-go/v82"
)

// signPayload produces a Stripe-Signature header for a payload, the same way
// the gateway signs deliveries.
func signPayload(payload []byte, secret string, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", at.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestHandleWebhookEventSignature(t *testing.T) {
	c := qt.New(t)

	s := newTestService(c, "")
	payload := []byte(`{"id":"evt_test_1","object":"event","type":"product.created","data":{"object":{}}}`)

	// wrong secret
	header := signPayload(payload, "whsec_wrong", time.Now())
	err := s.HandleWebhookEvent(payload, header)
	c.Assert(err, qt.IsNotNil)
	stripeErr, ok := err.(*StripeError)
	c.Assert(ok, qt.IsTrue)
	c.Assert(stripeErr.Code, qt.Equals, "webhook_validation")

	// tampered payload
	header = signPayload(payload, testWebhookSecret, time.Now())
	tampered := append([]byte{}, payload...)
	tampered[len(tampered)-2] = 'X'
	err = s.HandleWebhookEvent(tampered, header)
	c.Assert(err, qt.IsNotNil)

	// stale timestamp outside the tolerance window
	header = signPayload(payload, testWebhookSecret, time.Now().Add(-time.Hour))
	err = s.HandleWebhookEvent(payload, header)
	c.Assert(err, qt.IsNotNil)

	// valid signature on an unhandled event type is acknowledged
	header = signPayload(payload, testWebhookSecret, time.Now())
	err = s.HandleWebhookEvent(payload, header)
	c.Assert(err, qt.IsNil)
}

func TestHandleWebhookEventDeduplication(t *testing.T) {
	c := qt.New(t)

	s := newTestService(c, "")
	payload := []byte(`{"id":"evt_test_dup","object":"event","type":"product.created","data":{"object":{}}}`)
	header := signPayload(payload, testWebhookSecret, time.Now())

	c.Assert(s.HandleWebhookEvent(payload, header), qt.IsNil)
	c.Assert(s.events.EventExists("evt_test_dup"), qt.IsTrue)
	c.Assert(s.events.Size(), qt.Equals, 1)

	// redelivery of the same event is dropped without reprocessing
	c.Assert(s.HandleWebhookEvent(payload, header), qt.IsNil)
	c.Assert(s.events.Size(), qt.Equals, 1)
}

func TestHandleWebhookEventUnusablePayloads(t *testing.T) {
	c := qt.New(t)

	s := newTestService(c, "")

	// a one-off invoice has no subscription parent; it lands on the same
	// endpoint but is not mirrored here, so it is acknowledged, not retried
	payload := []byte(`{"id":"evt_oneoff","object":"event","type":"invoice.payment_succeeded",` +
		`"data":{"object":{"id":"in_oneoff","amount_paid":500}}}`)
	header := signPayload(payload, testWebhookSecret, time.Now())
	c.Assert(s.HandleWebhookEvent(payload, header), qt.IsNil)
	c.Assert(s.events.EventExists("evt_oneoff"), qt.IsTrue)

	// same for the failed-payment variant
	payload = []byte(`{"id":"evt_oneoff_failed","object":"event","type":"invoice.payment_failed",` +
		`"data":{"object":{"id":"in_oneoff","amount_due":500}}}`)
	header = signPayload(payload, testWebhookSecret, time.Now())
	c.Assert(s.HandleWebhookEvent(payload, header), qt.IsNil)

	// a subscription payload without items can never be reconciled either
	payload = []byte(`{"id":"evt_noitems","object":"event","type":"customer.subscription.updated",` +
		`"data":{"object":{"id":"sub_noitems","items":{"data":[]}}}}`)
	header = signPayload(payload, testWebhookSecret, time.Now())
	c.Assert(s.HandleWebhookEvent(payload, header), qt.IsNil)
	c.Assert(s.events.EventExists("evt_noitems"), qt.IsTrue)
}

func TestParseSubscriptionFromEvent(t *testing.T) {
	c := qt.New(t)

	raw := []byte(`{
		"id": "sub_test_1",
		"status": "active",
		"cancel_at_period_end": true,
		"customer": {"id": "cus_test_1"},
		"items": {"data": [{
			"current_period_start": 1756598400,
			"current_period_end": 1759190400,
			"price": {
				"id": "price_test_1",
				"type": "recurring",
				"product": {"id": "prod_test_1"},
				"recurring": {"interval": "month"}
			}
		}]}
	}`)
	event := &stripeapi.Event{
		ID:   "evt_sub",
		Type: stripeapi.EventTypeCustomerSubscriptionUpdated,
	}
	event.Data = &stripeapi.EventData{Raw: raw}

	info, err := parseSubscriptionFromEvent(event)
	c.Assert(err, qt.IsNil)
	c.Assert(info.ID, qt.Equals, "sub_test_1")
	c.Assert(info.Status, qt.Equals, stripeapi.SubscriptionStatusActive)
	c.Assert(info.CustomerID, qt.Equals, "cus_test_1")
	c.Assert(info.ProductID, qt.Equals, "prod_test_1")
	c.Assert(info.CancelAtPeriodEnd, qt.IsTrue)
	c.Assert(info.PeriodStart.Unix(), qt.Equals, int64(1756598400))
	c.Assert(info.PeriodEnd.Unix(), qt.Equals, int64(1759190400))

	// a subscription without items is rejected
	event.Data = &stripeapi.EventData{Raw: []byte(`{"id":"sub_empty","items":{"data":[]}}`)}
	_, err = parseSubscriptionFromEvent(event)
	c.Assert(err, qt.IsNotNil)
}

func TestParseInvoiceFromEvent(t *testing.T) {
	c := qt.New(t)

	raw := []byte(`{
		"id": "in_test_1",
		"amount_paid": 2999,
		"amount_due": 2999,
		"currency": "eur",
		"effective_at": 1756598400,
		"hosted_invoice_url": "https://invoice.example/in_test_1",
		"period_start": 1756598400,
		"period_end": 1759190400,
		"parent": {
			"type": "subscription_details",
			"subscription_details": {"subscription": {"id": "sub_test_1"}}
		}
	}`)
	event := &stripeapi.Event{ID: "evt_inv", Type: stripeapi.EventTypeInvoicePaymentSucceeded, Created: 1756598500}
	event.Data = &stripeapi.EventData{Raw: raw}

	info, err := parseInvoiceFromEvent(event)
	c.Assert(err, qt.IsNil)
	c.Assert(info.ID, qt.Equals, "in_test_1")
	c.Assert(info.SubscriptionID, qt.Equals, "sub_test_1")
	c.Assert(info.AmountPaid, qt.Equals, int64(2999))
	c.Assert(info.Currency, qt.Equals, "eur")
	c.Assert(info.PaymentTime.Unix(), qt.Equals, int64(1756598400))

	// invoices without subscription details are rejected
	event.Data = &stripeapi.EventData{Raw: []byte(`{"id":"in_standalone"}`)}
	_, err = parseInvoiceFromEvent(event)
	c.Assert(err, qt.IsNotNil)

	// missing effective_at falls back to the event timestamp
	event.Data = &stripeapi.EventData{Raw: []byte(`{
		"id": "in_test_2",
		"parent": {"type": "subscription_details",
			"subscription_details": {"subscription": {"id": "sub_test_1"}}}
	}`)}
	info, err = parseInvoiceFromEvent(event)
	c.Assert(err, qt.IsNil)
	c.Assert(info.PaymentTime.Unix(), qt.Equals, int64(1756598500))
}
