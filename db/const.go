package db

const (
	// subscription statuses, mirroring the gateway lifecycle
	SubscriptionStatusIncomplete SubscriptionStatus = "incomplete"
	SubscriptionStatusTrialing   SubscriptionStatus = "trialing"
	SubscriptionStatusActive     SubscriptionStatus = "active"
	SubscriptionStatusPastDue    SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled   SubscriptionStatus = "canceled"
	SubscriptionStatusUnpaid     SubscriptionStatus = "unpaid"
	// payment statuses
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusPending   PaymentStatus = "pending"
	// order statuses
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusFailed    OrderStatus = "failed"
	OrderStatusPending   OrderStatus = "pending"
	// billing intervals
	BillingIntervalDay   BillingInterval = "day"
	BillingIntervalWeek  BillingInterval = "week"
	BillingIntervalMonth BillingInterval = "month"
	BillingIntervalYear  BillingInterval = "year"
	// payment-method list sources
	PaymentMethodSourceLive           PaymentMethodSource = "live"
	PaymentMethodSourceStaticFallback PaymentMethodSource = "static-fallback"
)

// validSubscriptionStatuses contains the statuses the mirror accepts from
// gateway events; anything else is logged and ignored by the reconciler.
var validSubscriptionStatuses = map[SubscriptionStatus]bool{
	SubscriptionStatusIncomplete: true,
	SubscriptionStatusTrialing:   true,
	SubscriptionStatusActive:     true,
	SubscriptionStatusPastDue:    true,
	SubscriptionStatusCanceled:   true,
	SubscriptionStatusUnpaid:     true,
}

// IsValidSubscriptionStatus checks if the given status is part of the mirrored lifecycle.
func IsValidSubscriptionStatus(status SubscriptionStatus) bool {
	return validSubscriptionStatuses[status]
}
