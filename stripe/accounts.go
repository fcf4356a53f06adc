package stripe

import (
	stripeapi "github.com/stripe/stripe-go/v82"
	"go.vocdoni.io/dvote/log"
)

// AccountMode identifies which Stripe account a gateway call is executed against.
type AccountMode string

const (
	// AccountModePlatform executes calls against the platform account.
	AccountModePlatform AccountMode = "platform"
	// AccountModeConnected executes calls against a connected account
	// via the Stripe-Account header.
	AccountModeConnected AccountMode = "connected"
)

// SettlementMode describes how the funds of a payment settle.
type SettlementMode string

const (
	// SettlementDirect means the charge settles directly in the connected account.
	SettlementDirect SettlementMode = "direct"
	// SettlementTransfer means the charge settles in the platform account.
	SettlementTransfer SettlementMode = "transfer"
)

// GatewayContext carries the account routing decision for a single gateway call.
// The zero value is not usable; contexts are obtained from an AccountRouter.
type GatewayContext struct {
	mode      AccountMode
	accountID string
}

// Mode returns the account mode of the context.
func (g *GatewayContext) Mode() AccountMode {
	return g.mode
}

// AccountID returns the connected account identifier, empty in platform mode.
func (g *GatewayContext) AccountID() string {
	return g.accountID
}

// SettlementMode reports how payments made under this context settle.
func (g *GatewayContext) SettlementMode() SettlementMode {
	if g.mode == AccountModeConnected {
		return SettlementDirect
	}
	return SettlementTransfer
}

// apply stamps the routing decision onto the outgoing call parameters.
func (g *GatewayContext) apply(params *stripeapi.Params) {
	if g.mode == AccountModeConnected && g.accountID != "" {
		params.SetStripeAccount(g.accountID)
	}
}

// AccountRouter resolves, per request, whether a gateway call targets the
// platform account or the configured connected account.
type AccountRouter struct {
	platform  *GatewayContext
	connected *GatewayContext
}

// NewAccountRouter creates an account router. An empty connectedAccountID is
// allowed, but every request for connected mode will then degrade to the
// platform account, so the condition is logged at startup.
func NewAccountRouter(connectedAccountID string) *AccountRouter {
	router := &AccountRouter{
		platform: &GatewayContext{mode: AccountModePlatform},
	}
	if connectedAccountID != "" {
		router.connected = &GatewayContext{
			mode:      AccountModeConnected,
			accountID: connectedAccountID,
		}
	} else {
		log.Warnw("no connected stripe account configured, connected-mode requests will fall back to the platform account")
	}
	return router
}

// ResolveContext returns the gateway context for a call. When connected mode
// is requested but no connected account is configured, it falls back to the
// platform account and logs the degradation.
func (r *AccountRouter) ResolveContext(useConnected bool) *GatewayContext {
	if !useConnected {
		return r.platform
	}
	if r.connected == nil {
		log.Warnw("connected stripe account requested but not configured, using platform account")
		return r.platform
	}
	return r.connected
}
