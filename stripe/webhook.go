package stripe

import (
	"errors"
	"fmt"
	"time"

	stripeapi "github.com/stripe/stripe-go/v82"
	"github.com/veloshop/billing-backend/db"
	"go.vocdoni.io/dvote/log"
)

// isInvalidEvent reports whether err marks a verified payload this service
// cannot use. Redelivering such an event can never change the outcome, so
// handlers acknowledge it instead of asking the gateway to retry forever.
func isInvalidEvent(err error) bool {
	var stripeErr *StripeError
	return errors.As(err, &stripeErr) && stripeErr.Code == "invalid_event"
}

// HandleWebhookEvent verifies, deduplicates and processes a webhook
// delivery. Signature failures surface to the caller; verified events that
// reference unknown local entities or carry payloads this service cannot use
// are logged and acknowledged so the gateway stops retrying them.
func (s *Service) HandleWebhookEvent(payload []byte, signatureHeader string) error {
	event, err := s.client.ValidateWebhookEvent(payload, signatureHeader)
	if err != nil {
		return err
	}

	if s.events.EventExists(event.ID) {
		log.Debugf("stripe webhook: event %s already processed, skipping", event.ID)
		return nil
	}

	if err := s.HandleEvent(event); err != nil {
		return err
	}

	// Mark event as processed only after the handler succeeded, so a retried
	// delivery can re-run a failed handler.
	if err := s.events.MarkProcessed(event.ID); err != nil {
		log.Warnw("failed to mark webhook event as processed", "event", event.ID, "error", err.Error())
	}

	return nil
}

// HandleEvent dispatches a verified event to its handler
func (s *Service) HandleEvent(event *stripeapi.Event) error {
	switch event.Type {
	case stripeapi.EventTypeCustomerSubscriptionCreated,
		stripeapi.EventTypeCustomerSubscriptionUpdated:
		return s.handleSubscriptionEvent(event, false)
	case stripeapi.EventTypeCustomerSubscriptionDeleted:
		return s.handleSubscriptionEvent(event, true)
	case stripeapi.EventTypeInvoicePaymentSucceeded:
		return s.handleInvoiceEvent(event, db.PaymentStatusSucceeded)
	case stripeapi.EventTypeInvoicePaymentFailed:
		return s.handleInvoiceEvent(event, db.PaymentStatusFailed)
	case stripeapi.EventTypePaymentIntentSucceeded:
		return s.handlePaymentIntentEvent(event, db.OrderStatusCompleted)
	case stripeapi.EventTypePaymentIntentPaymentFailed:
		return s.handlePaymentIntentEvent(event, db.OrderStatusFailed)
	case stripeapi.EventTypePaymentIntentProcessing:
		return s.handlePaymentIntentEvent(event, db.OrderStatusPending)
	case stripeapi.EventTypeCheckoutSessionCompleted:
		return s.handleCheckoutCompleted(event)
	default:
		log.Debugf("stripe webhook: received unhandled event type %s (id %s)", event.Type, event.ID)
		return nil
	}
}

// handleSubscriptionEvent reconciles a subscription lifecycle event into the
// local mirror. Deliveries for the same subscription are serialized by a
// per-subscription lock, and stale deliveries are dropped by the period
// guard rather than trusting arrival order.
func (s *Service) handleSubscriptionEvent(event *stripeapi.Event, deleted bool) error {
	info, err := parseSubscriptionFromEvent(event)
	if err != nil {
		if isInvalidEvent(err) {
			log.Warnw("stripe webhook: unusable subscription payload, acknowledging",
				"event", event.ID, "error", err.Error())
			return nil
		}
		return fmt.Errorf("failed to parse subscription from event: %w", err)
	}

	unlock := s.lockManager.Lock(info.ID)
	defer unlock()

	subscription, err := s.db.SubscriptionByStripeID(info.ID)
	if err != nil {
		if err == db.ErrNotFound {
			log.Warnw("stripe webhook: subscription not mirrored locally, acknowledging",
				"stripeSubscriptionID", info.ID, "event", event.ID)
			return nil
		}
		return fmt.Errorf("failed to look up subscription %s: %w", info.ID, err)
	}

	status := subscriptionStatusFromStripe(info.Status)
	if deleted {
		status = db.SubscriptionStatusCanceled
	}

	if !shouldApplySubscriptionState(subscription, status, info.PeriodEnd) {
		log.Debugf("stripe webhook: stale subscription event %s for %s (status=%s), skipping",
			event.ID, info.ID, status)
		return nil
	}

	if err := s.db.SetSubscriptionState(info.ID, status, info.PeriodStart, info.PeriodEnd); err != nil {
		return fmt.Errorf("failed to update subscription %s: %w", info.ID, err)
	}
	if !deleted && subscription.CancelAtPeriodEnd != info.CancelAtPeriodEnd {
		if err := s.db.SetSubscriptionCancelFlag(subscription.ID, info.CancelAtPeriodEnd); err != nil {
			return fmt.Errorf("failed to sync cancel flag for subscription %s: %w", info.ID, err)
		}
	}

	log.Infow("stripe webhook: subscription reconciled",
		"stripeSubscriptionID", info.ID,
		"status", string(status),
		"periodEnd", info.PeriodEnd,
		"event", event.ID)
	return nil
}

// shouldApplySubscriptionState decides whether an incoming lifecycle state
// may overwrite the mirrored one. Two rules: an event whose period end
// predates the mirrored period is stale, and nothing ever regresses back to
// incomplete once the subscription left it.
func shouldApplySubscriptionState(
	subscription *db.Subscription, status db.SubscriptionStatus, periodEnd time.Time,
) bool {
	if !subscription.PeriodEnd.IsZero() && periodEnd.Before(subscription.PeriodEnd) {
		return false
	}
	if status == db.SubscriptionStatusIncomplete && subscription.Status != db.SubscriptionStatusIncomplete {
		return false
	}
	return true
}

// handleInvoiceEvent records a subscription invoice outcome and moves the
// subscription status accordingly: a settled invoice activates the current
// period, a failed one marks the subscription past due.
func (s *Service) handleInvoiceEvent(event *stripeapi.Event, status db.PaymentStatus) error {
	info, err := parseInvoiceFromEvent(event)
	if err != nil {
		// One-off invoices land on the same endpoint as subscription
		// invoices; they are not mirrored here.
		if isInvalidEvent(err) {
			log.Debugf("stripe webhook: invoice event %s has no subscription to reconcile, acknowledging: %v",
				event.ID, err)
			return nil
		}
		return fmt.Errorf("failed to parse invoice from event: %w", err)
	}

	unlock := s.lockManager.Lock(info.SubscriptionID)
	defer unlock()

	subscription, err := s.db.SubscriptionByStripeID(info.SubscriptionID)
	if err != nil {
		if err == db.ErrNotFound {
			log.Warnw("stripe webhook: invoice for unknown subscription, acknowledging",
				"stripeSubscriptionID", info.SubscriptionID, "invoice", info.ID, "event", event.ID)
			return nil
		}
		return fmt.Errorf("failed to look up subscription %s: %w", info.SubscriptionID, err)
	}

	payment := &db.Payment{
		SubscriptionID:  subscription.ID,
		StripeInvoiceID: info.ID,
		Amount:          info.AmountPaid,
		Currency:        info.Currency,
		Status:          status,
		InvoiceURL:      info.HostedInvoiceURL,
	}
	if status == db.PaymentStatusSucceeded {
		payment.PaidAt = info.PaymentTime
	} else {
		payment.Amount = info.AmountDue
	}
	if _, err := s.db.CreatePayment(payment); err != nil {
		return fmt.Errorf("failed to record payment for invoice %s: %w", info.ID, err)
	}

	subscriptionStatus := db.SubscriptionStatusActive
	if status == db.PaymentStatusFailed {
		subscriptionStatus = db.SubscriptionStatusPastDue
	}
	if !shouldApplySubscriptionState(subscription, subscriptionStatus, info.PeriodEnd) {
		log.Debugf("stripe webhook: stale invoice event %s for subscription %s, payment recorded only",
			event.ID, info.SubscriptionID)
		return nil
	}
	if err := s.db.SetSubscriptionState(info.SubscriptionID, subscriptionStatus, info.PeriodStart, info.PeriodEnd); err != nil {
		return fmt.Errorf("failed to update subscription %s from invoice: %w", info.SubscriptionID, err)
	}

	log.Infow("stripe webhook: invoice reconciled",
		"invoice", info.ID,
		"stripeSubscriptionID", info.SubscriptionID,
		"paymentStatus", string(status),
		"subscriptionStatus", string(subscriptionStatus),
		"event", event.ID)
	return nil
}

// handlePaymentIntentEvent moves the order recorded for an intent to its
// settled state. Orders are created by the checkout flow, not here; an
// intent without an order is acknowledged and left for the later
// checkout-completion call to pick up the final intent status.
func (s *Service) handlePaymentIntentEvent(event *stripeapi.Event, status db.OrderStatus) error {
	intent, err := parsePaymentIntentFromEvent(event)
	if err != nil {
		if isInvalidEvent(err) {
			log.Warnw("stripe webhook: unusable payment intent payload, acknowledging",
				"event", event.ID, "error", err.Error())
			return nil
		}
		return fmt.Errorf("failed to parse payment intent from event: %w", err)
	}

	unlock := s.lockManager.Lock(intent.ID)
	defer unlock()

	if err := s.db.SetOrderStatus(intent.ID, status); err != nil {
		if err == db.ErrNotFound {
			log.Debugf("stripe webhook: no order yet for payment intent %s, acknowledging", intent.ID)
			return nil
		}
		return fmt.Errorf("failed to update order for payment intent %s: %w", intent.ID, err)
	}

	log.Infow("stripe webhook: order reconciled",
		"paymentIntentID", intent.ID,
		"status", string(status),
		"event", event.ID)
	return nil
}

// handleCheckoutCompleted settles the order behind a hosted checkout session
func (s *Service) handleCheckoutCompleted(event *stripeapi.Event) error {
	session, err := parseCheckoutSessionFromEvent(event)
	if err != nil {
		if isInvalidEvent(err) {
			log.Warnw("stripe webhook: unusable checkout session payload, acknowledging",
				"event", event.ID, "error", err.Error())
			return nil
		}
		return fmt.Errorf("failed to parse checkout session from event: %w", err)
	}
	if session.PaymentIntent == nil {
		log.Debugf("stripe webhook: checkout session %s carries no payment intent, acknowledging", session.ID)
		return nil
	}

	unlock := s.lockManager.Lock(session.PaymentIntent.ID)
	defer unlock()

	if err := s.db.SetOrderStatus(session.PaymentIntent.ID, db.OrderStatusCompleted); err != nil {
		if err == db.ErrNotFound {
			log.Debugf("stripe webhook: no order for checkout session %s, acknowledging", session.ID)
			return nil
		}
		return fmt.Errorf("failed to complete order for checkout session %s: %w", session.ID, err)
	}

	log.Infow("stripe webhook: checkout session reconciled",
		"session", session.ID,
		"paymentIntentID", session.PaymentIntent.ID,
		"event", event.ID)
	return nil
}
