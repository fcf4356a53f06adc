package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/veloshop/billing-backend/db"
	"github.com/veloshop/billing-backend/errors"
	"github.com/veloshop/billing-backend/stripe"
	"github.com/veloshop/billing-backend/test"
	"go.vocdoni.io/dvote/log"
)

const testWebhookSecret = "whsec_api_test_secret"

var (
	testDB     *db.MongoStorage
	testServer *httptest.Server
)

func TestMain(m *testing.M) {
	log.Init("debug", "stdout", nil)
	ctx := context.Background()
	// start a MongoDB container for testing
	dbContainer, err := test.StartMongoContainer(ctx)
	if err != nil {
		panic(err)
	}
	// ensure the container is stopped when the test finishes
	defer func() { _ = dbContainer.Terminate(ctx) }()
	// get the MongoDB connection string
	mongoURI, err := dbContainer.Endpoint(ctx, "mongodb")
	if err != nil {
		panic(err)
	}
	// create a new MongoDB connection with the test database
	if testDB, err = db.New(mongoURI, test.RandomDatabaseName()); err != nil {
		panic(err)
	}
	defer testDB.Close()
	// create the Stripe service; no remote calls are made by these tests
	stripeService, err := stripe.NewService(&stripe.Config{
		APIKey:          "sk_test_xxx",
		WebhookSecret:   testWebhookSecret,
		WarmupCountries: stripe.DefaultWarmupCountries(),
		MethodCacheTTL:  time.Minute,
	}, testDB)
	if err != nil {
		panic(err)
	}
	// serve the API
	testServer = httptest.NewServer(New(&Config{
		Host:   "127.0.0.1",
		Port:   0,
		DB:     testDB,
		Stripe: stripeService,
	}).Router())
	defer testServer.Close()

	m.Run()
}

func testRequest(c *qt.C, method, path string, body any, headers map[string]string) (int, []byte) {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		encoded, err := json.Marshal(body)
		c.Assert(err, qt.IsNil)
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequest(method, testServer.URL+path, reader)
	c.Assert(err, qt.IsNil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	c.Assert(err, qt.IsNil)
	defer func() { _ = resp.Body.Close() }()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	c.Assert(err, qt.IsNil)
	return resp.StatusCode, buf.Bytes()
}

func signPayload(payload []byte, secret string, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", at.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestPing(t *testing.T) {
	c := qt.New(t)

	status, _ := testRequest(c, http.MethodGet, "/ping", nil, nil)
	c.Assert(status, qt.Equals, http.StatusOK)
}

func TestPlansEndpoint(t *testing.T) {
	c := qt.New(t)
	defer func() { c.Assert(testDB.Reset(), qt.IsNil) }()

	_, err := testDB.SetPlan(&db.Plan{
		Name:            "Starter",
		Amount:          999,
		Currency:        "eur",
		Interval:        db.BillingIntervalMonth,
		StripePriceID:   "price_starter",
		StripeProductID: "prod_starter",
		Active:          true,
	})
	c.Assert(err, qt.IsNil)
	_, err = testDB.SetPlan(&db.Plan{
		Name:            "Legacy",
		StripeProductID: "prod_legacy",
		Active:          false,
	})
	c.Assert(err, qt.IsNil)

	status, body := testRequest(c, http.MethodGet, plansEndpoint, nil, nil)
	c.Assert(status, qt.Equals, http.StatusOK)

	resp := &PlansResponse{}
	c.Assert(json.Unmarshal(body, resp), qt.IsNil)
	c.Assert(resp.Plans, qt.HasLen, 1)
	c.Assert(resp.Plans[0].Name, qt.Equals, "Starter")
	// exactly one trailing newline after the JSON body
	c.Assert(strings.HasSuffix(string(body), "}\n"), qt.IsTrue)
	c.Assert(strings.HasSuffix(string(body), "\n\n"), qt.IsFalse)
}

func TestCreateSubscriptionValidation(t *testing.T) {
	c := qt.New(t)

	// malformed body
	status, _ := testRequest(c, http.MethodPost, subscriptionsEndpoint, []byte("{not json"), nil)
	c.Assert(status, qt.Equals, http.StatusBadRequest)

	// malformed email
	status, body := testRequest(c, http.MethodPost, subscriptionsEndpoint,
		&CreateSubscriptionRequest{Email: "not-an-email", PlanID: 1}, nil)
	c.Assert(status, qt.Equals, http.StatusBadRequest)
	c.Assert(strings.Contains(string(body), "40002"), qt.IsTrue)

	// missing plan
	status, _ = testRequest(c, http.MethodPost, subscriptionsEndpoint,
		&CreateSubscriptionRequest{Email: "user@example.com"}, nil)
	c.Assert(status, qt.Equals, http.StatusBadRequest)

	// unknown plan
	status, body = testRequest(c, http.MethodPost, subscriptionsEndpoint,
		&CreateSubscriptionRequest{Email: "user@example.com", PlanID: 42}, nil)
	c.Assert(status, qt.Equals, http.StatusNotFound)
	c.Assert(strings.Contains(string(body), "40401"), qt.IsTrue)
}

func TestCustomerSubscriptionsEndpoint(t *testing.T) {
	c := qt.New(t)

	// email is required
	status, _ := testRequest(c, http.MethodGet, subscriptionsEndpoint, nil, nil)
	c.Assert(status, qt.Equals, http.StatusBadRequest)

	// unknown customers get an empty list, not an error
	status, body := testRequest(c, http.MethodGet, subscriptionsEndpoint+"?email=nobody@example.com", nil, nil)
	c.Assert(status, qt.Equals, http.StatusOK)
	resp := &SubscriptionsResponse{}
	c.Assert(json.Unmarshal(body, resp), qt.IsNil)
	c.Assert(resp.Subscriptions, qt.HasLen, 0)
}

func TestSubscriptionActionValidation(t *testing.T) {
	c := qt.New(t)

	// non-numeric id
	status, _ := testRequest(c, http.MethodPost, "/subscriptions/abc/cancel", nil, nil)
	c.Assert(status, qt.Equals, http.StatusBadRequest)

	// unknown subscription
	status, body := testRequest(c, http.MethodPost, "/subscriptions/999/renew", nil, nil)
	c.Assert(status, qt.Equals, http.StatusNotFound)
	c.Assert(strings.Contains(string(body), "40403"), qt.IsTrue)
}

func TestPaymentMethodsEndpoints(t *testing.T) {
	c := qt.New(t)

	status, body := testRequest(c, http.MethodGet, "/payment-methods/de", nil, nil)
	c.Assert(status, qt.Equals, http.StatusOK)
	list := &stripe.MethodList{}
	c.Assert(json.Unmarshal(body, list), qt.IsNil)
	c.Assert(list.Country, qt.Equals, "DE")
	c.Assert(list.Source, qt.Equals, db.PaymentMethodSourceStaticFallback)
	c.Assert(list.Methods[0], qt.Equals, "card")

	status, _ = testRequest(c, http.MethodGet, "/payment-methods/XYZ", nil, nil)
	c.Assert(status, qt.Equals, http.StatusBadRequest)

	status, body = testRequest(c, http.MethodGet, paymentMethodsEndpoint, nil, nil)
	c.Assert(status, qt.Equals, http.StatusOK)
	all := &PaymentMethodsResponse{}
	c.Assert(json.Unmarshal(body, all), qt.IsNil)
	c.Assert(len(all.Countries), qt.Equals, len(stripe.DefaultWarmupCountries()))
}

func TestOrderEndpointNotFound(t *testing.T) {
	c := qt.New(t)

	status, body := testRequest(c, http.MethodGet, "/orders/pi_unknown", nil, nil)
	c.Assert(status, qt.Equals, http.StatusNotFound)
	c.Assert(strings.Contains(string(body), "40404"), qt.IsTrue)
}

func TestCheckoutValidation(t *testing.T) {
	c := qt.New(t)

	// zero amount
	status, _ := testRequest(c, http.MethodPost, paymentIntentEndpoint,
		&stripe.PaymentIntentRequest{Amount: 0, Currency: "eur"}, nil)
	c.Assert(status, qt.Equals, http.StatusBadRequest)

	// express checkout without a country
	status, _ = testRequest(c, http.MethodPost, expressCheckoutEndpoint,
		&stripe.ExpressCheckoutRequest{Amount: 10}, nil)
	c.Assert(status, qt.Equals, http.StatusBadRequest)

	// order without a payment intent
	status, _ = testRequest(c, http.MethodPost, ordersEndpoint,
		&stripe.CreateOrderRequest{Currency: "eur"}, nil)
	c.Assert(status, qt.Equals, http.StatusBadRequest)
}

func TestWebhookErrorClassification(t *testing.T) {
	c := qt.New(t)

	// classification must survive the context wrapping the handlers add
	sigErr := fmt.Errorf("handling event evt_1: %w",
		stripe.NewStripeError("webhook_validation", "bad signature", nil))
	c.Assert(webhookErrorResponse(sigErr).Code, qt.Equals, errors.ErrInvalidSignature.Code)

	payloadErr := fmt.Errorf("handling event evt_2: %w",
		stripe.NewStripeError("invalid_event", "bad payload", nil))
	c.Assert(webhookErrorResponse(payloadErr).Code, qt.Equals, errors.ErrMalformedBody.Code)

	// anything else is transient and answered 500 so the gateway retries
	c.Assert(webhookErrorResponse(fmt.Errorf("storage timeout")).Code,
		qt.Equals, errors.ErrWebhookProcessing.Code)
}

func TestStripeWebhookEndpoint(t *testing.T) {
	c := qt.New(t)

	payload := []byte(`{"id":"evt_api_1","object":"event","type":"product.created","data":{"object":{}}}`)

	// missing signature header
	status, _ := testRequest(c, http.MethodPost, stripeWebhookEndpoint, payload, nil)
	c.Assert(status, qt.Equals, http.StatusBadRequest)

	// invalid signature
	status, body := testRequest(c, http.MethodPost, stripeWebhookEndpoint, payload,
		map[string]string{"Stripe-Signature": signPayload(payload, "whsec_wrong", time.Now())})
	c.Assert(status, qt.Equals, http.StatusBadRequest)
	c.Assert(strings.Contains(string(body), "40010"), qt.IsTrue)

	// valid signature is acknowledged
	status, body = testRequest(c, http.MethodPost, stripeWebhookEndpoint, payload,
		map[string]string{"Stripe-Signature": signPayload(payload, testWebhookSecret, time.Now())})
	c.Assert(status, qt.Equals, http.StatusOK)
	ack := &WebhookAck{}
	c.Assert(json.Unmarshal(body, ack), qt.IsNil)
	c.Assert(ack.Received, qt.IsTrue)

	// a verified one-off invoice (no subscription parent) is acknowledged
	// too; answering 5xx would make the gateway redeliver it forever
	payload = []byte(`{"id":"evt_api_oneoff","object":"event","type":"invoice.payment_succeeded",` +
		`"data":{"object":{"id":"in_oneoff","amount_paid":500}}}`)
	status, body = testRequest(c, http.MethodPost, stripeWebhookEndpoint, payload,
		map[string]string{"Stripe-Signature": signPayload(payload, testWebhookSecret, time.Now())})
	c.Assert(status, qt.Equals, http.StatusOK)
	ack = &WebhookAck{}
	c.Assert(json.Unmarshal(body, ack), qt.IsNil)
	c.Assert(ack.Received, qt.IsTrue)
}
