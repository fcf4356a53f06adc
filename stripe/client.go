package stripe

import (
	"encoding/json"
	"time"

	stripeapi "github.com/stripe/stripe-go/v82"
	stripecountryspec "github.com/stripe/stripe-go/v82/countryspec"
	stripecustomer "github.com/stripe/stripe-go/v82/customer"
	stripepaymentintent "github.com/stripe/stripe-go/v82/paymentintent"
	stripeprice "github.com/stripe/stripe-go/v82/price"
	stripeproduct "github.com/stripe/stripe-go/v82/product"
	stripesubscription "github.com/stripe/stripe-go/v82/subscription"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"
	"github.com/veloshop/billing-backend/db"
)

// Client wraps the Stripe API client with additional functionality
type Client struct {
	config *Config
}

// NewClient creates a new Stripe client with the given configuration
func NewClient(config *Config) *Client {
	stripeapi.Key = config.APIKey
	return &Client{config: config}
}

// ValidateWebhookEvent validates and parses a webhook event.
// API version mismatches are tolerated so that dashboard-triggered test events
// with a newer pinned version still verify.
func (c *Client) ValidateWebhookEvent(payload []byte, signatureHeader string) (*stripeapi.Event, error) {
	event, err := stripewebhook.ConstructEventWithOptions(payload, signatureHeader, c.config.WebhookSecret,
		stripewebhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, NewStripeError("webhook_validation", "webhook signature validation failed", err)
	}
	return &event, nil
}

// CreateCustomerRequest holds parameters for creating a remote customer
type CreateCustomerRequest struct {
	Email         string
	Name          string
	PaymentMethod string
}

// CreateCustomer creates a customer on the Stripe account selected by gctx
func (*Client) CreateCustomer(req *CreateCustomerRequest, gctx *GatewayContext) (*stripeapi.Customer, error) {
	params := &stripeapi.CustomerParams{
		Email: stripeapi.String(req.Email),
	}
	if req.Name != "" {
		params.Name = stripeapi.String(req.Name)
	}
	if req.PaymentMethod != "" {
		params.PaymentMethod = stripeapi.String(req.PaymentMethod)
		params.InvoiceSettings = &stripeapi.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripeapi.String(req.PaymentMethod),
		}
	}
	gctx.apply(&params.Params)

	customer, err := stripecustomer.New(params)
	if err != nil {
		return nil, NewStripeError("api_call_failed", "failed to create customer", err)
	}
	return customer, nil
}

// GetCustomer retrieves a customer by ID
func (*Client) GetCustomer(customerID string, gctx *GatewayContext) (*stripeapi.Customer, error) {
	params := &stripeapi.CustomerParams{}
	gctx.apply(&params.Params)

	customer, err := stripecustomer.Get(customerID, params)
	if err != nil {
		return nil, NewStripeError("api_call_failed", "failed to get customer", err)
	}
	return customer, nil
}

// CreateSubscriptionRequest holds parameters for creating a remote subscription
type CreateSubscriptionRequest struct {
	CustomerID string
	PriceID    string
	Metadata   map[string]string
}

// CreateSubscription creates a subscription in default_incomplete mode and
// expands the latest invoice confirmation secret so the caller can hand the
// client secret to the payment element.
func (*Client) CreateSubscription(req *CreateSubscriptionRequest, gctx *GatewayContext) (*stripeapi.Subscription, error) {
	params := &stripeapi.SubscriptionParams{
		Customer: stripeapi.String(req.CustomerID),
		Items: []*stripeapi.SubscriptionItemsParams{
			{Price: stripeapi.String(req.PriceID)},
		},
		PaymentBehavior: stripeapi.String("default_incomplete"),
		PaymentSettings: &stripeapi.SubscriptionPaymentSettingsParams{
			SaveDefaultPaymentMethod: stripeapi.String("on_subscription"),
		},
		Metadata: req.Metadata,
	}
	params.AddExpand("latest_invoice.confirmation_secret")
	gctx.apply(&params.Params)

	subscription, err := stripesubscription.New(params)
	if err != nil {
		return nil, NewStripeError("api_call_failed", "failed to create subscription", err)
	}
	return subscription, nil
}

// UpdateSubscriptionCancel flips the cancel-at-period-end flag of a subscription
func (*Client) UpdateSubscriptionCancel(subscriptionID string, cancelAtPeriodEnd bool, gctx *GatewayContext,
) (*stripeapi.Subscription, error) {
	params := &stripeapi.SubscriptionParams{
		CancelAtPeriodEnd: stripeapi.Bool(cancelAtPeriodEnd),
	}
	gctx.apply(&params.Params)

	subscription, err := stripesubscription.Update(subscriptionID, params)
	if err != nil {
		return nil, NewStripeError("api_call_failed", "failed to update subscription", err)
	}
	return subscription, nil
}

// GetSubscription retrieves a subscription by ID
func (*Client) GetSubscription(subscriptionID string, gctx *GatewayContext) (*stripeapi.Subscription, error) {
	params := &stripeapi.SubscriptionParams{}
	gctx.apply(&params.Params)

	subscription, err := stripesubscription.Get(subscriptionID, params)
	if err != nil {
		return nil, NewStripeError("api_call_failed", "failed to get subscription", err)
	}
	return subscription, nil
}

// CreatePaymentIntentRequest holds parameters for creating a payment intent.
// Amount is expressed in the minor unit of the currency.
type CreatePaymentIntentRequest struct {
	Amount           int64
	Currency         string
	CustomerID       string
	PaymentMethod    string
	ReceiptEmail     string
	Description      string
	Metadata         map[string]string
	DisableRedirects bool
}

// CreatePaymentIntent creates a payment intent. When a payment method is
// supplied the intent is confirmed immediately (manual confirmation flow),
// otherwise automatic payment methods are enabled and confirmation is left
// to the client side.
func (*Client) CreatePaymentIntent(req *CreatePaymentIntentRequest, gctx *GatewayContext) (*stripeapi.PaymentIntent, error) {
	params := &stripeapi.PaymentIntentParams{
		Amount:   stripeapi.Int64(req.Amount),
		Currency: stripeapi.String(req.Currency),
		Metadata: req.Metadata,
	}
	if req.CustomerID != "" {
		params.Customer = stripeapi.String(req.CustomerID)
	}
	if req.ReceiptEmail != "" {
		params.ReceiptEmail = stripeapi.String(req.ReceiptEmail)
	}
	if req.Description != "" {
		params.Description = stripeapi.String(req.Description)
	}
	if req.PaymentMethod != "" {
		params.PaymentMethod = stripeapi.String(req.PaymentMethod)
		params.ConfirmationMethod = stripeapi.String(string(stripeapi.PaymentIntentConfirmationMethodManual))
		params.Confirm = stripeapi.Bool(true)
	} else {
		params.AutomaticPaymentMethods = &stripeapi.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripeapi.Bool(true),
		}
		if req.DisableRedirects {
			params.AutomaticPaymentMethods.AllowRedirects =
				stripeapi.String(string(stripeapi.PaymentIntentAutomaticPaymentMethodsAllowRedirectsNever))
		}
	}
	gctx.apply(&params.Params)

	intent, err := stripepaymentintent.New(params)
	if err != nil {
		return nil, NewStripeError("api_call_failed", "failed to create payment intent", err)
	}
	return intent, nil
}

// GetPaymentIntent retrieves a payment intent by ID
func (*Client) GetPaymentIntent(intentID string, gctx *GatewayContext) (*stripeapi.PaymentIntent, error) {
	params := &stripeapi.PaymentIntentParams{}
	gctx.apply(&params.Params)

	intent, err := stripepaymentintent.Get(intentID, params)
	if err != nil {
		return nil, NewStripeError("api_call_failed", "failed to get payment intent", err)
	}
	return intent, nil
}

// GetProduct retrieves a product by ID with expanded default price
func (*Client) GetProduct(productID string) (*stripeapi.Product, error) {
	params := &stripeapi.ProductParams{}
	params.AddExpand("default_price")

	product, err := stripeproduct.Get(productID, params)
	if err != nil {
		return nil, NewStripeError("api_call_failed", "failed to get product", err)
	}
	return product, nil
}

// GetProductPrices retrieves all active prices for a given product ID
func (*Client) GetProductPrices(productID string) ([]stripeapi.Price, error) {
	var prices []stripeapi.Price

	params := &stripeapi.PriceListParams{
		Product: stripeapi.String(productID),
		Active:  stripeapi.Bool(true),
	}
	params.Filters.AddFilter("limit", "", "100")

	i := stripeprice.List(params)
	for i.Next() {
		prices = append(prices, *i.Price())
	}
	if err := i.Err(); err != nil {
		return nil, NewStripeError("api_call_failed", "failed to list prices", err)
	}

	return prices, nil
}

// GetCountrySpec retrieves the country spec, which carries the payment
// methods Stripe supports for charges in that country
func (*Client) GetCountrySpec(countryCode string) (*stripeapi.CountrySpec, error) {
	spec, err := stripecountryspec.Get(countryCode, &stripeapi.CountrySpecParams{})
	if err != nil {
		return nil, NewStripeError("api_call_failed", "failed to get country spec", err)
	}
	return spec, nil
}

// ConfirmationSecret extracts the client secret from a subscription created
// with the latest_invoice.confirmation_secret expansion. Empty when the
// invoice needs no payment (e.g. trialing subscriptions).
func ConfirmationSecret(subscription *stripeapi.Subscription) string {
	if subscription.LatestInvoice == nil || subscription.LatestInvoice.ConfirmationSecret == nil {
		return ""
	}
	return subscription.LatestInvoice.ConfirmationSecret.ClientSecret
}

// SubscriptionInfo represents the subscription fields relevant for reconciliation
type SubscriptionInfo struct {
	ID                string
	Status            stripeapi.SubscriptionStatus
	CustomerID        string
	ProductID         string
	Interval          db.BillingInterval
	CancelAtPeriodEnd bool
	PeriodStart       time.Time
	PeriodEnd         time.Time
}

// parseSubscriptionFromEvent extracts subscription information from a webhook event
func parseSubscriptionFromEvent(event *stripeapi.Event) (*SubscriptionInfo, error) {
	var subscription stripeapi.Subscription
	if err := json.Unmarshal(event.Data.Raw, &subscription); err != nil {
		return nil, NewStripeError("invalid_event", "failed to parse subscription from event", err)
	}

	if len(subscription.Items.Data) == 0 {
		return nil, NewStripeError("invalid_event", "subscription has no items", nil)
	}
	item := subscription.Items.Data[0]

	info := &SubscriptionInfo{
		ID:                subscription.ID,
		Status:            subscription.Status,
		CancelAtPeriodEnd: subscription.CancelAtPeriodEnd,
		PeriodStart:       time.Unix(item.CurrentPeriodStart, 0),
		PeriodEnd:         time.Unix(item.CurrentPeriodEnd, 0),
	}
	if subscription.Customer != nil {
		info.CustomerID = subscription.Customer.ID
	}
	if item.Price != nil {
		if item.Price.Product != nil {
			info.ProductID = item.Price.Product.ID
		}
		if item.Price.Type == stripeapi.PriceTypeRecurring && item.Price.Recurring != nil {
			info.Interval = db.BillingInterval(item.Price.Recurring.Interval)
		}
	}

	return info, nil
}

// InvoiceInfo represents invoice information extracted from events
type InvoiceInfo struct {
	ID               string
	SubscriptionID   string
	AmountPaid       int64
	AmountDue        int64
	Currency         string
	HostedInvoiceURL string
	PaymentTime      time.Time
	PeriodStart      time.Time
	PeriodEnd        time.Time
}

// parseInvoiceFromEvent extracts invoice information from a webhook event.
// Only invoices that belong to a subscription are accepted.
func parseInvoiceFromEvent(event *stripeapi.Event) (*InvoiceInfo, error) {
	var invoice stripeapi.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return nil, NewStripeError("invalid_event", "failed to parse invoice from event", err)
	}

	if invoice.Parent == nil || invoice.Parent.SubscriptionDetails == nil ||
		invoice.Parent.SubscriptionDetails.Subscription == nil {
		return nil, NewStripeError("invalid_event", "invoice missing subscription details", nil)
	}

	info := &InvoiceInfo{
		ID:               invoice.ID,
		SubscriptionID:   invoice.Parent.SubscriptionDetails.Subscription.ID,
		AmountPaid:       invoice.AmountPaid,
		AmountDue:        invoice.AmountDue,
		Currency:         string(invoice.Currency),
		HostedInvoiceURL: invoice.HostedInvoiceURL,
		PeriodStart:      time.Unix(invoice.PeriodStart, 0),
		PeriodEnd:        time.Unix(invoice.PeriodEnd, 0),
	}
	if invoice.EffectiveAt != 0 {
		info.PaymentTime = time.Unix(invoice.EffectiveAt, 0)
	} else {
		info.PaymentTime = time.Unix(event.Created, 0)
	}

	return info, nil
}

// parsePaymentIntentFromEvent extracts a payment intent from a webhook event
func parsePaymentIntentFromEvent(event *stripeapi.Event) (*stripeapi.PaymentIntent, error) {
	var intent stripeapi.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, NewStripeError("invalid_event", "failed to parse payment intent from event", err)
	}
	return &intent, nil
}

// parseCheckoutSessionFromEvent extracts a checkout session from a webhook event
func parseCheckoutSessionFromEvent(event *stripeapi.Event) (*stripeapi.CheckoutSession, error) {
	var session stripeapi.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, NewStripeError("invalid_event", "failed to parse checkout session from event", err)
	}
	return &session, nil
}
