package api

import (
	"time"

	"github.com/veloshop/billing-backend/db"
	"github.com/veloshop/billing-backend/stripe"
)

// CreateSubscriptionRequest is the body of POST /subscriptions
type CreateSubscriptionRequest struct {
	Email               string `json:"email"`
	Name                string `json:"name,omitempty"`
	PlanID              uint64 `json:"planID"`
	PaymentMethod       string `json:"paymentMethod,omitempty"`
	UseConnectedAccount bool   `json:"useConnectedAccount,omitempty"`
}

// SubscriptionResponse is the public shape of a mirrored subscription
type SubscriptionResponse struct {
	ID                   uint64                `json:"id"`
	PlanID               uint64                `json:"planID"`
	StripeSubscriptionID string                `json:"stripeSubscriptionID"`
	Status               db.SubscriptionStatus `json:"status"`
	PeriodStart          time.Time             `json:"periodStart"`
	PeriodEnd            time.Time             `json:"periodEnd"`
	CancelAtPeriodEnd    bool                  `json:"cancelAtPeriodEnd"`
	Amount               int64                 `json:"amount"`
	Currency             string                `json:"currency"`
	Interval             db.BillingInterval    `json:"interval"`
	CreatedAt            time.Time             `json:"createdAt"`
}

// SubscriptionsResponse is the body of GET /subscriptions
type SubscriptionsResponse struct {
	Subscriptions []*SubscriptionResponse `json:"subscriptions"`
}

// PlansResponse is the body of GET /plans
type PlansResponse struct {
	Plans []*db.Plan `json:"plans"`
}

// SubscriptionActionRequest is the body of the cancel/renew endpoints
type SubscriptionActionRequest struct {
	UseConnectedAccount bool `json:"useConnectedAccount,omitempty"`
}

// PaymentMethodsResponse is the body of GET /payment-methods
type PaymentMethodsResponse struct {
	Countries map[string]*stripe.MethodList `json:"countries"`
}

// WebhookAck is the body returned for every accepted webhook delivery
type WebhookAck struct {
	Received bool `json:"received"`
}

func subscriptionResponse(subscription *db.Subscription) *SubscriptionResponse {
	return &SubscriptionResponse{
		ID:                   subscription.ID,
		PlanID:               subscription.PlanID,
		StripeSubscriptionID: subscription.StripeSubscriptionID,
		Status:               subscription.Status,
		PeriodStart:          subscription.PeriodStart,
		PeriodEnd:            subscription.PeriodEnd,
		CancelAtPeriodEnd:    subscription.CancelAtPeriodEnd,
		Amount:               subscription.Amount,
		Currency:             subscription.Currency,
		Interval:             subscription.Interval,
		CreatedAt:            subscription.CreatedAt,
	}
}
