// Package stripe provides the payment orchestration layer on top of the
// Stripe gateway: account routing, customer identity resolution,
// subscriptions, one-shot checkout and webhook reconciliation.
package stripe

import (
	"fmt"
	"time"

	stripeapi "github.com/stripe/stripe-go/v82"
	"github.com/veloshop/billing-backend/db"
	"github.com/veloshop/billing-backend/errors"
	"go.vocdoni.io/dvote/log"
)

// Service provides the main business logic for Stripe operations
type Service struct {
	client      *Client
	db          *db.MongoStorage
	router      *AccountRouter
	methods     *MethodCache
	events      *MemoryEventStore
	lockManager *LockManager
	config      *Config
}

// NewService creates a new Stripe service
func NewService(config *Config, database *db.MongoStorage) (*Service, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if database == nil {
		return nil, fmt.Errorf("database is required")
	}

	return &Service{
		client:      NewClient(config),
		db:          database,
		router:      NewAccountRouter(config.ConnectedAccountID),
		methods:     NewMethodCache(config.MethodCacheTTL),
		events:      NewMemoryEventStore(0),
		lockManager: NewLockManager(),
		config:      config,
	}, nil
}

// resolveOrCreateCustomer finds the local customer for an email or creates
// one, lazily mirroring it to the gateway. The remote customer is created
// first; the local row is only persisted once the remote call succeeded, so
// a gateway failure leaves no half-created local row behind. Concurrent
// creations for the same email collapse onto one row via the unique email
// index; the loser's remote customer is orphaned, which is harmless.
func (s *Service) resolveOrCreateCustomer(email, name, paymentMethod string, gctx *GatewayContext) (*db.Customer, error) {
	customer, err := s.db.CustomerByEmail(email)
	if err != nil && err != db.ErrNotFound {
		return nil, errors.ErrInternalStorageError.WithErr(err)
	}
	if err == nil && customer.StripeCustomerID != "" {
		return customer, nil
	}

	remote, remoteErr := s.client.CreateCustomer(&CreateCustomerRequest{
		Email:         email,
		Name:          name,
		PaymentMethod: paymentMethod,
	}, gctx)
	if remoteErr != nil {
		return nil, errors.ErrGatewayError.WithErr(remoteErr)
	}

	if customer != nil {
		// Row existed without a remote mirror; attach the remote id once.
		updated, err := s.db.SetCustomerStripeID(customer.ID, remote.ID)
		if err != nil {
			return nil, errors.ErrInternalStorageError.WithErr(err)
		}
		return updated, nil
	}

	local, created, err := s.db.CreateCustomer(&db.Customer{
		Email:            email,
		Name:             name,
		StripeCustomerID: remote.ID,
	})
	if err != nil {
		return nil, errors.ErrInternalStorageError.WithErr(err)
	}
	if !created {
		log.Warnw("concurrent customer creation detected, remote customer unused",
			"email", email, "orphanedStripeCustomer", remote.ID)
		if local.StripeCustomerID == "" {
			if local, err = s.db.SetCustomerStripeID(local.ID, remote.ID); err != nil {
				return nil, errors.ErrInternalStorageError.WithErr(err)
			}
		}
	}
	return local, nil
}

// PlanSummary is the plan snapshot returned alongside a new subscription
type PlanSummary struct {
	ID       uint64             `json:"id"`
	Name     string             `json:"name"`
	Amount   int64              `json:"amount"`
	Currency string             `json:"currency"`
	Interval db.BillingInterval `json:"interval"`
}

// CreateSubscriptionResult is the outcome of a subscription creation
type CreateSubscriptionResult struct {
	SubscriptionID       uint64                `json:"subscriptionID"`
	StripeSubscriptionID string                `json:"stripeSubscriptionID"`
	ClientSecret         string                `json:"clientSecret,omitempty"`
	Status               db.SubscriptionStatus `json:"status"`
	SettlementMode       SettlementMode        `json:"settlementMode"`
	Plan                 PlanSummary           `json:"plan"`
}

// CreateSubscription subscribes a customer (resolved or created by email) to
// a catalog plan. The remote subscription starts incomplete; the returned
// client secret lets the caller collect the first payment, and the webhook
// reconciler moves the mirror to active once the invoice settles.
func (s *Service) CreateSubscription(
	email, name string, planID uint64, paymentMethod string, useConnected bool,
) (*CreateSubscriptionResult, error) {
	plan, err := s.db.Plan(planID)
	if err != nil {
		if err == db.ErrNotFound {
			return nil, errors.ErrPlanNotFound.Withf("plan %d not found", planID)
		}
		return nil, errors.ErrInternalStorageError.WithErr(err)
	}
	if !plan.Active {
		return nil, errors.ErrPlanNotActive.Withf("plan %d is not subscribable", planID)
	}

	gctx := s.router.ResolveContext(useConnected)

	customer, err := s.resolveOrCreateCustomer(email, name, paymentMethod, gctx)
	if err != nil {
		return nil, err
	}

	remote, remoteErr := s.client.CreateSubscription(&CreateSubscriptionRequest{
		CustomerID: customer.StripeCustomerID,
		PriceID:    plan.StripePriceID,
		Metadata: map[string]string{
			"planID":        fmt.Sprintf("%d", plan.ID),
			"customerEmail": customer.Email,
		},
	}, gctx)
	if remoteErr != nil {
		return nil, errors.ErrGatewayError.WithErr(remoteErr)
	}

	subscription := &db.Subscription{
		CustomerID:           customer.ID,
		PlanID:               plan.ID,
		StripeSubscriptionID: remote.ID,
		Status:               subscriptionStatusFromStripe(remote.Status),
		CancelAtPeriodEnd:    remote.CancelAtPeriodEnd,
		Amount:               plan.Amount,
		Currency:             plan.Currency,
		Interval:             plan.Interval,
		Metadata:             remote.Metadata,
	}
	if len(remote.Items.Data) > 0 {
		subscription.PeriodStart = time.Unix(remote.Items.Data[0].CurrentPeriodStart, 0)
		subscription.PeriodEnd = time.Unix(remote.Items.Data[0].CurrentPeriodEnd, 0)
	}
	if remote.TrialStart != 0 {
		subscription.TrialStart = time.Unix(remote.TrialStart, 0)
	}
	if remote.TrialEnd != 0 {
		subscription.TrialEnd = time.Unix(remote.TrialEnd, 0)
	}

	stored, err := s.db.CreateSubscription(subscription)
	if err != nil {
		// The remote subscription exists but the mirror write failed; the
		// caller gets an error and the webhook reconciler will converge the
		// mirror when the first invoice event arrives.
		return nil, errors.ErrPersistenceError.WithErr(err)
	}

	log.Infow("subscription created",
		"subscriptionID", stored.ID,
		"stripeSubscriptionID", remote.ID,
		"planID", plan.ID,
		"customerID", customer.ID,
		"account", string(gctx.Mode()))

	return &CreateSubscriptionResult{
		SubscriptionID:       stored.ID,
		StripeSubscriptionID: remote.ID,
		ClientSecret:         ConfirmationSecret(remote),
		Status:               stored.Status,
		SettlementMode:       gctx.SettlementMode(),
		Plan: PlanSummary{
			ID:       plan.ID,
			Name:     plan.Name,
			Amount:   plan.Amount,
			Currency: plan.Currency,
			Interval: plan.Interval,
		},
	}, nil
}

// CancelSubscription flags a subscription for cancellation at period end.
// The status is left untouched; the definitive canceled status arrives via
// the webhook reconciler when the gateway actually ends the subscription.
func (s *Service) CancelSubscription(id uint64, useConnected bool) (*db.Subscription, error) {
	return s.setCancelFlag(id, true, useConnected)
}

// RenewSubscription clears a pending cancellation so the subscription keeps
// renewing. Only meaningful before the period end has passed.
func (s *Service) RenewSubscription(id uint64, useConnected bool) (*db.Subscription, error) {
	return s.setCancelFlag(id, false, useConnected)
}

func (s *Service) setCancelFlag(id uint64, cancelAtPeriodEnd, useConnected bool) (*db.Subscription, error) {
	subscription, err := s.db.Subscription(id)
	if err != nil {
		if err == db.ErrNotFound {
			return nil, errors.ErrSubscriptionNotFound.Withf("subscription %d not found", id)
		}
		return nil, errors.ErrInternalStorageError.WithErr(err)
	}

	gctx := s.router.ResolveContext(useConnected)
	if _, err := s.client.UpdateSubscriptionCancel(subscription.StripeSubscriptionID, cancelAtPeriodEnd, gctx); err != nil {
		return nil, errors.ErrGatewayError.WithErr(err)
	}
	if err := s.db.SetSubscriptionCancelFlag(id, cancelAtPeriodEnd); err != nil {
		return nil, errors.ErrPersistenceError.WithErr(err)
	}

	subscription.CancelAtPeriodEnd = cancelAtPeriodEnd
	log.Infow("subscription cancel flag updated",
		"subscriptionID", id,
		"stripeSubscriptionID", subscription.StripeSubscriptionID,
		"cancelAtPeriodEnd", cancelAtPeriodEnd)
	return subscription, nil
}

// CustomerSubscriptions lists the subscriptions of the customer with the
// given email, newest first. An unknown email yields an empty list.
func (s *Service) CustomerSubscriptions(email string) ([]*db.Subscription, error) {
	customer, err := s.db.CustomerByEmail(email)
	if err != nil {
		if err == db.ErrNotFound {
			return []*db.Subscription{}, nil
		}
		return nil, errors.ErrInternalStorageError.WithErr(err)
	}
	subscriptions, err := s.db.SubscriptionsByCustomer(customer.ID)
	if err != nil {
		return nil, errors.ErrInternalStorageError.WithErr(err)
	}
	return subscriptions, nil
}

// ActivePlans returns the subscribable catalog
func (s *Service) ActivePlans() ([]*db.Plan, error) {
	plans, err := s.db.ActivePlans()
	if err != nil {
		return nil, errors.ErrInternalStorageError.WithErr(err)
	}
	return plans, nil
}

// SyncPlans refreshes the local plan catalog from the configured gateway
// products. Plans are matched by product id so local plan IDs stay stable
// across syncs; products that disappear from the configuration are marked
// inactive rather than deleted.
func (s *Service) SyncPlans() error {
	// An empty product list means the catalog is not managed from the
	// configuration. Running the sync anyway would deactivate every plan, so
	// the whole pass is skipped instead.
	if len(s.config.PlanProductIDs) == 0 {
		log.Warnw("plan sync skipped, no gateway products configured")
		return nil
	}

	configured := make(map[string]bool, len(s.config.PlanProductIDs))
	for _, productID := range s.config.PlanProductIDs {
		if productID == "" {
			continue
		}
		configured[productID] = true

		product, err := s.client.GetProduct(productID)
		if err != nil {
			return fmt.Errorf("failed to get product %s: %w", productID, err)
		}
		prices, err := s.client.GetProductPrices(productID)
		if err != nil {
			return fmt.Errorf("failed to get prices for product %s: %w", productID, err)
		}

		plan, err := productToPlan(product, prices)
		if err != nil {
			return fmt.Errorf("failed to process product %s: %w", productID, err)
		}
		if existing, err := s.db.PlanByStripeProductID(productID); err == nil {
			plan.ID = existing.ID
		} else if err != db.ErrNotFound {
			return fmt.Errorf("failed to look up plan for product %s: %w", productID, err)
		}

		planID, err := s.db.SetPlan(plan)
		if err != nil {
			return fmt.Errorf("failed to store plan for product %s: %w", productID, err)
		}
		log.Infow("plan synced", "planID", planID, "product", productID, "name", plan.Name)
	}

	// Deactivate plans whose product left the configuration. Guarded on the
	// configured set so a degenerate configuration cannot empty the catalog.
	if len(configured) == 0 {
		log.Warnw("plan deactivation skipped, no valid gateway products configured")
		return nil
	}
	plans, err := s.db.ActivePlans()
	if err != nil {
		return fmt.Errorf("failed to list active plans: %w", err)
	}
	for _, plan := range plans {
		if configured[plan.StripeProductID] {
			continue
		}
		plan.Active = false
		if _, err := s.db.SetPlan(plan); err != nil {
			return fmt.Errorf("failed to deactivate plan %d: %w", plan.ID, err)
		}
		log.Infow("plan deactivated, product no longer configured",
			"planID", plan.ID, "product", plan.StripeProductID)
	}

	return nil
}

// productToPlan converts a gateway product and its first active recurring
// price into a catalog plan. Product metadata becomes the feature map.
func productToPlan(product *stripeapi.Product, prices []stripeapi.Price) (*db.Plan, error) {
	var recurring *stripeapi.Price
	for i := range prices {
		if prices[i].Type == stripeapi.PriceTypeRecurring && prices[i].Recurring != nil {
			recurring = &prices[i]
			break
		}
	}
	if recurring == nil {
		return nil, fmt.Errorf("product %s has no active recurring price", product.ID)
	}

	return &db.Plan{
		Name:            product.Name,
		Amount:          recurring.UnitAmount,
		Currency:        string(recurring.Currency),
		Interval:        db.BillingInterval(recurring.Recurring.Interval),
		IntervalCount:   recurring.Recurring.IntervalCount,
		StripePriceID:   recurring.ID,
		StripeProductID: product.ID,
		Active:          product.Active,
		Features:        product.Metadata,
	}, nil
}

// subscriptionStatusFromStripe maps a gateway status onto the mirrored
// lifecycle, defaulting to incomplete for anything unknown.
func subscriptionStatusFromStripe(status stripeapi.SubscriptionStatus) db.SubscriptionStatus {
	mapped := db.SubscriptionStatus(status)
	if !db.IsValidSubscriptionStatus(mapped) {
		return db.SubscriptionStatusIncomplete
	}
	return mapped
}
