package api

const (
	// catalog routes

	// GET /plans to list the subscribable plans
	plansEndpoint = "/plans"

	// subscription routes

	// POST /subscriptions to create a subscription
	// GET /subscriptions?email= to list a customer's subscriptions
	subscriptionsEndpoint = "/subscriptions"
	// POST /subscriptions/{subscriptionID}/cancel to flag cancellation at period end
	subscriptionCancelEndpoint = "/subscriptions/{subscriptionID}/cancel"
	// POST /subscriptions/{subscriptionID}/renew to clear a pending cancellation
	subscriptionRenewEndpoint = "/subscriptions/{subscriptionID}/renew"

	// checkout routes

	// POST /checkout/payment-intent to create a one-shot payment intent
	paymentIntentEndpoint = "/checkout/payment-intent"
	// POST /checkout/express to create an express (wallet) checkout
	expressCheckoutEndpoint = "/checkout/express"
	// POST /orders to record a confirmed order
	ordersEndpoint = "/orders"
	// GET /orders/{paymentIntentID} to fetch the order of a payment intent
	orderEndpoint = "/orders/{paymentIntentID}"

	// payment-method routes

	// GET /payment-methods to list methods for the popular countries
	paymentMethodsEndpoint = "/payment-methods"
	// GET /payment-methods/{countryCode} to list methods for one country
	paymentMethodsCountryEndpoint = "/payment-methods/{countryCode}"

	// webhook routes

	// POST /webhooks/stripe receives gateway events
	stripeWebhookEndpoint = "/webhooks/stripe"
)
