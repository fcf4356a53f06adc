package stripe

import (
	stripeapi "github.com/stripe/stripe-go/v82"
	"github.com/veloshop/billing-backend/db"
	"github.com/veloshop/billing-backend/errors"
	"github.com/veloshop/billing-backend/internal"
	"go.vocdoni.io/dvote/log"
)

// PaymentIntentRequest holds a one-shot payment request. Amount is the
// decimal amount in the given currency.
type PaymentIntentRequest struct {
	Amount              float64           `json:"amount"`
	Currency            string            `json:"currency"`
	CustomerEmail       string            `json:"customerEmail,omitempty"`
	PaymentMethod       string            `json:"paymentMethod,omitempty"`
	Description         string            `json:"description,omitempty"`
	Metadata            map[string]string `json:"metadata,omitempty"`
	UseConnectedAccount bool              `json:"useConnectedAccount,omitempty"`
}

// PaymentIntentResult is the outcome of a payment intent creation
type PaymentIntentResult struct {
	PaymentIntentID string         `json:"paymentIntentID"`
	ClientSecret    string         `json:"clientSecret"`
	Amount          int64          `json:"amount"`
	Currency        string         `json:"currency"`
	Status          string         `json:"status"`
	SettlementMode  SettlementMode `json:"settlementMode"`
}

// CreatePaymentIntent creates a one-shot payment intent on the routed
// account. When the request carries a payment method, the intent is
// confirmed server-side in the same call.
func (s *Service) CreatePaymentIntent(req *PaymentIntentRequest) (*PaymentIntentResult, error) {
	if req.Amount <= 0 {
		return nil, errors.ErrInvalidAmount.Withf("amount must be positive, got %f", req.Amount)
	}
	if req.Currency == "" {
		return nil, errors.ErrInvalidCurrency.With("currency is required")
	}

	gctx := s.router.ResolveContext(req.UseConnectedAccount)

	intent, err := s.client.CreatePaymentIntent(&CreatePaymentIntentRequest{
		Amount:        internal.MinorUnits(req.Amount),
		Currency:      req.Currency,
		ReceiptEmail:  req.CustomerEmail,
		PaymentMethod: req.PaymentMethod,
		Description:   req.Description,
		Metadata:      req.Metadata,
	}, gctx)
	if err != nil {
		return nil, errors.ErrGatewayError.WithErr(err)
	}

	log.Infow("payment intent created",
		"paymentIntentID", intent.ID,
		"amount", intent.Amount,
		"currency", string(intent.Currency),
		"account", string(gctx.Mode()))

	return &PaymentIntentResult{
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		Amount:          intent.Amount,
		Currency:        string(intent.Currency),
		Status:          string(intent.Status),
		SettlementMode:  gctx.SettlementMode(),
	}, nil
}

// ExpressCheckoutRequest is a fast-path checkout: a country code substitutes
// for explicit currency and payment-method choices.
type ExpressCheckoutRequest struct {
	Amount              float64 `json:"amount"`
	Currency            string  `json:"currency,omitempty"`
	CountryCode         string  `json:"countryCode"`
	CustomerEmail       string  `json:"customerEmail,omitempty"`
	UseConnectedAccount bool    `json:"useConnectedAccount,omitempty"`
}

// ExpressCheckoutResult is the outcome of an express checkout creation
type ExpressCheckoutResult struct {
	PaymentIntentID string                 `json:"paymentIntentID"`
	ClientSecret    string                 `json:"clientSecret"`
	Amount          int64                  `json:"amount"`
	Currency        string                 `json:"currency"`
	Country         string                 `json:"country"`
	PaymentMethods  []string               `json:"paymentMethods"`
	MethodSource    db.PaymentMethodSource `json:"methodSource"`
	SettlementMode  SettlementMode         `json:"settlementMode"`
}

// CreateExpressCheckout creates a payment intent for the express (wallet)
// flow. The charge currency is derived from the country when known,
// overriding whatever the request carries; redirect-based methods are
// disabled because the express sheet cannot complete a redirect.
func (s *Service) CreateExpressCheckout(req *ExpressCheckoutRequest) (*ExpressCheckoutResult, error) {
	if req.Amount <= 0 {
		return nil, errors.ErrInvalidAmount.Withf("amount must be positive, got %f", req.Amount)
	}
	cc := NormalizeCountry(req.CountryCode)
	if cc == "" {
		return nil, errors.ErrInvalidCountry.With("country code is required")
	}

	currency := req.Currency
	if derived, ok := CurrencyForCountry(cc); ok {
		currency = derived
	}
	if currency == "" {
		return nil, errors.ErrInvalidCurrency.Withf("no currency known for country %s and none given", cc)
	}

	gctx := s.router.ResolveContext(req.UseConnectedAccount)

	intent, err := s.client.CreatePaymentIntent(&CreatePaymentIntentRequest{
		Amount:           internal.MinorUnits(req.Amount),
		Currency:         currency,
		ReceiptEmail:     req.CustomerEmail,
		Metadata:         map[string]string{"checkout": "express", "country": cc},
		DisableRedirects: true,
	}, gctx)
	if err != nil {
		return nil, errors.ErrGatewayError.WithErr(err)
	}

	methods := s.PaymentMethodsFast(cc)

	log.Infow("express checkout created",
		"paymentIntentID", intent.ID,
		"country", cc,
		"currency", currency,
		"methodSource", string(methods.Source))

	return &ExpressCheckoutResult{
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		Amount:          intent.Amount,
		Currency:        string(intent.Currency),
		Country:         cc,
		PaymentMethods:  methods.Methods,
		MethodSource:    methods.Source,
		SettlementMode:  gctx.SettlementMode(),
	}, nil
}

// CreateOrderRequest records a confirmed checkout. Amounts are decimal.
type CreateOrderRequest struct {
	PaymentIntentID     string           `json:"paymentIntentID"`
	Customer            db.OrderCustomer `json:"customer"`
	Items               []db.OrderItem   `json:"items"`
	Subtotal            float64          `json:"subtotal"`
	Tax                 float64          `json:"tax"`
	Shipping            float64          `json:"shipping"`
	Total               float64          `json:"total"`
	Currency            string           `json:"currency"`
	Express             bool             `json:"express,omitempty"`
	UseConnectedAccount bool             `json:"useConnectedAccount,omitempty"`
}

// CreateOrder persists an order for a payment intent, verifying the intent
// against the gateway first so the stored status reflects reality rather
// than the client's claim. Calling it twice for the same intent returns the
// already-stored order.
func (s *Service) CreateOrder(req *CreateOrderRequest) (*db.Order, error) {
	if req.PaymentIntentID == "" {
		return nil, errors.ErrMalformedBody.With("paymentIntentID is required")
	}

	gctx := s.router.ResolveContext(req.UseConnectedAccount)
	intent, err := s.client.GetPaymentIntent(req.PaymentIntentID, gctx)
	if err != nil {
		return nil, errors.ErrGatewayError.WithErr(err)
	}

	order, created, err := s.db.CreateOrder(&db.Order{
		StripePaymentIntentID: intent.ID,
		Customer:              req.Customer,
		Items:                 req.Items,
		Subtotal:              internal.MinorUnits(req.Subtotal),
		Tax:                   internal.MinorUnits(req.Tax),
		Shipping:              internal.MinorUnits(req.Shipping),
		Total:                 internal.MinorUnits(req.Total),
		Currency:              req.Currency,
		Status:                orderStatusFromIntent(intent.Status),
		Express:               req.Express,
	})
	if err != nil {
		return nil, errors.ErrPersistenceError.WithErr(err)
	}
	if !created {
		log.Debugf("order for payment intent %s already exists, returning stored order %s", intent.ID, order.ID)
		return order, nil
	}

	log.Infow("order created",
		"orderID", order.ID,
		"paymentIntentID", intent.ID,
		"total", order.Total,
		"status", string(order.Status))
	return order, nil
}

// Order returns the order recorded for a payment intent
func (s *Service) Order(paymentIntentID string) (*db.Order, error) {
	order, err := s.db.OrderByPaymentIntentID(paymentIntentID)
	if err != nil {
		if err == db.ErrNotFound {
			return nil, errors.ErrOrderNotFound.Withf("no order for payment intent %s", paymentIntentID)
		}
		return nil, errors.ErrInternalStorageError.WithErr(err)
	}
	return order, nil
}

// orderStatusFromIntent maps a gateway intent status onto the order
// lifecycle: settled, definitively failed, or still in flight.
func orderStatusFromIntent(status stripeapi.PaymentIntentStatus) db.OrderStatus {
	switch status {
	case stripeapi.PaymentIntentStatusSucceeded:
		return db.OrderStatusCompleted
	case stripeapi.PaymentIntentStatusCanceled:
		return db.OrderStatusFailed
	default:
		return db.OrderStatusPending
	}
}
