package db

import (
	"time"
)

// SubscriptionStatus mirrors the gateway's subscription lifecycle.
type SubscriptionStatus string

// PaymentStatus is the status of a subscription invoice payment.
type PaymentStatus string

// OrderStatus is the status of a one-shot checkout order.
type OrderStatus string

// BillingInterval is the recurring billing interval of a plan.
type BillingInterval string

// PaymentMethodSource tells whether a cached payment-method list came from a
// live gateway lookup or from the static fallback table.
type PaymentMethodSource string

// Customer is the local mirror of a gateway customer. Created on the first
// subscription or checkout attempt for a previously-unseen email and never
// deleted. StripeCustomerID stays empty until the first remote call succeeds
// and is never reassigned once set.
type Customer struct {
	ID               uint64    `json:"id" bson:"_id"`
	Email            string    `json:"email" bson:"email"`
	Name             string    `json:"name" bson:"name"`
	StripeCustomerID string    `json:"stripeCustomerID" bson:"stripeCustomerID,omitempty"`
	CreatedAt        time.Time `json:"createdAt" bson:"createdAt"`
}

// Plan is a subscribable price point, mirrored from the gateway catalog.
// Read-only from the orchestration layer; refreshed by the startup catalog
// sync. Amount is in the currency's minor units.
type Plan struct {
	ID              uint64            `json:"id" bson:"_id"`
	Name            string            `json:"name" bson:"name"`
	Amount          int64             `json:"amount" bson:"amount"`
	Currency        string            `json:"currency" bson:"currency"`
	Interval        BillingInterval   `json:"interval" bson:"interval"`
	IntervalCount   int64             `json:"intervalCount" bson:"intervalCount"`
	StripePriceID   string            `json:"stripePriceID" bson:"stripePriceID"`
	StripeProductID string            `json:"stripeProductID" bson:"stripeProductID"`
	Active          bool              `json:"active" bson:"active"`
	Features        map[string]string `json:"features" bson:"features"`
}

// Subscription is the local mirror of a gateway subscription. The
// amount/currency/interval fields are a snapshot taken at creation time and
// do not follow later plan edits. Rows are never deleted; cancellation is a
// status and flag change applied by the webhook reconciler.
type Subscription struct {
	ID                   uint64             `json:"id" bson:"_id"`
	CustomerID           uint64             `json:"customerID" bson:"customerID"`
	PlanID               uint64             `json:"planID" bson:"planID"`
	StripeSubscriptionID string             `json:"stripeSubscriptionID" bson:"stripeSubscriptionID"`
	Status               SubscriptionStatus `json:"status" bson:"status"`
	PeriodStart          time.Time          `json:"periodStart" bson:"periodStart"`
	PeriodEnd            time.Time          `json:"periodEnd" bson:"periodEnd"`
	CancelAtPeriodEnd    bool               `json:"cancelAtPeriodEnd" bson:"cancelAtPeriodEnd"`
	TrialStart           time.Time          `json:"trialStart,omitempty" bson:"trialStart,omitempty"`
	TrialEnd             time.Time          `json:"trialEnd,omitempty" bson:"trialEnd,omitempty"`
	Amount               int64              `json:"amount" bson:"amount"`
	Currency             string             `json:"currency" bson:"currency"`
	Interval             BillingInterval    `json:"interval" bson:"interval"`
	Metadata             map[string]string  `json:"metadata,omitempty" bson:"metadata,omitempty"`
	CreatedAt            time.Time          `json:"createdAt" bson:"createdAt"`
}

// Payment is an append-only record of a subscription invoice, created by the
// webhook reconciler.
type Payment struct {
	ID                    uint64        `json:"id" bson:"_id"`
	SubscriptionID        uint64        `json:"subscriptionID" bson:"subscriptionID"`
	StripeInvoiceID       string        `json:"stripeInvoiceID" bson:"stripeInvoiceID,omitempty"`
	StripePaymentIntentID string        `json:"stripePaymentIntentID" bson:"stripePaymentIntentID,omitempty"`
	Amount                int64         `json:"amount" bson:"amount"`
	Currency              string        `json:"currency" bson:"currency"`
	Status                PaymentStatus `json:"status" bson:"status"`
	PaidAt                time.Time     `json:"paidAt" bson:"paidAt"`
	ReceiptURL            string        `json:"receiptURL,omitempty" bson:"receiptURL,omitempty"`
	InvoiceURL            string        `json:"invoiceURL,omitempty" bson:"invoiceURL,omitempty"`
}

// OrderItem is a checkout line item snapshot. UnitAmount is in minor units.
type OrderItem struct {
	Name       string `json:"name" bson:"name"`
	Quantity   int64  `json:"quantity" bson:"quantity"`
	UnitAmount int64  `json:"unitAmount" bson:"unitAmount"`
}

// OrderCustomer is the contact/shipping snapshot captured per order,
// independent of the customers collection.
type OrderCustomer struct {
	Email   string `json:"email" bson:"email"`
	Name    string `json:"name,omitempty" bson:"name,omitempty"`
	Phone   string `json:"phone,omitempty" bson:"phone,omitempty"`
	Address string `json:"address,omitempty" bson:"address,omitempty"`
	City    string `json:"city,omitempty" bson:"city,omitempty"`
	Country string `json:"country,omitempty" bson:"country,omitempty"`
	Postal  string `json:"postal,omitempty" bson:"postal,omitempty"`
}

// Order is a non-recurring checkout record, created once per confirmed
// payment intent. StripePaymentIntentID is the idempotency key: a duplicate
// create for the same intent returns the existing order. Amounts are in
// minor units.
type Order struct {
	ID                    string        `json:"id" bson:"_id"`
	StripePaymentIntentID string        `json:"stripePaymentIntentID" bson:"stripePaymentIntentID"`
	Customer              OrderCustomer `json:"customer" bson:"customer"`
	Items                 []OrderItem   `json:"items" bson:"items"`
	Subtotal              int64         `json:"subtotal" bson:"subtotal"`
	Tax                   int64         `json:"tax" bson:"tax"`
	Shipping              int64         `json:"shipping" bson:"shipping"`
	Total                 int64         `json:"total" bson:"total"`
	Currency              string        `json:"currency" bson:"currency"`
	Status                OrderStatus   `json:"status" bson:"status"`
	Express               bool          `json:"express" bson:"express"`
	CreatedAt             time.Time     `json:"createdAt" bson:"createdAt"`
	UpdatedAt             time.Time     `json:"updatedAt" bson:"updatedAt"`
}
