package stripe

import (
	"testing"

	qt "github.com/frankban/quicktest"
	stripeapi "github.com/stripe/stripe-go/v82"
)

func TestAccountRouter(t *testing.T) {
	c := qt.New(t)

	router := NewAccountRouter("acct_test123")

	platform := router.ResolveContext(false)
	c.Assert(platform.Mode(), qt.Equals, AccountModePlatform)
	c.Assert(platform.AccountID(), qt.Equals, "")
	c.Assert(platform.SettlementMode(), qt.Equals, SettlementTransfer)

	connected := router.ResolveContext(true)
	c.Assert(connected.Mode(), qt.Equals, AccountModeConnected)
	c.Assert(connected.AccountID(), qt.Equals, "acct_test123")
	c.Assert(connected.SettlementMode(), qt.Equals, SettlementDirect)
}

func TestAccountRouterDegradesWithoutConnectedAccount(t *testing.T) {
	c := qt.New(t)

	router := NewAccountRouter("")

	// connected mode requested but not configured: platform context, and the
	// settlement mode reports what actually happens
	ctx := router.ResolveContext(true)
	c.Assert(ctx.Mode(), qt.Equals, AccountModePlatform)
	c.Assert(ctx.SettlementMode(), qt.Equals, SettlementTransfer)
}

func TestGatewayContextApply(t *testing.T) {
	c := qt.New(t)

	router := NewAccountRouter("acct_test123")

	params := &stripeapi.Params{}
	router.ResolveContext(true).apply(params)
	c.Assert(params.StripeAccount, qt.IsNotNil)
	c.Assert(*params.StripeAccount, qt.Equals, "acct_test123")

	params = &stripeapi.Params{}
	router.ResolveContext(false).apply(params)
	c.Assert(params.StripeAccount, qt.IsNil)
}
