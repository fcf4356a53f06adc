package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/veloshop/billing-backend/errors"
	"github.com/veloshop/billing-backend/internal"
)

// plansHandler returns the subscribable plan catalog.
func (a *API) plansHandler(w http.ResponseWriter, _ *http.Request) {
	plans, err := a.stripe.ActivePlans()
	if err != nil {
		writeError(w, err)
		return
	}
	httpWriteJSON(w, &PlansResponse{Plans: plans})
}

// createSubscriptionHandler subscribes a customer to a plan. The customer is
// resolved or created from the email in the body.
func (a *API) createSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	req := &CreateSubscriptionRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		errors.ErrMalformedBody.Write(w)
		return
	}
	email := internal.NormalizeEmail(req.Email)
	if !internal.ValidEmail(email) {
		errors.ErrEmailMalformed.Write(w)
		return
	}
	if req.PlanID == 0 {
		errors.ErrMalformedBody.With("planID is required").Write(w)
		return
	}

	result, err := a.stripe.CreateSubscription(email, req.Name, req.PlanID, req.PaymentMethod, req.UseConnectedAccount)
	if err != nil {
		writeError(w, err)
		return
	}
	httpWriteJSON(w, result)
}

// customerSubscriptionsHandler lists the subscriptions of the customer given
// by the email query parameter, newest first.
func (a *API) customerSubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	email := internal.NormalizeEmail(r.URL.Query().Get("email"))
	if !internal.ValidEmail(email) {
		errors.ErrEmailMalformed.Write(w)
		return
	}

	subscriptions, err := a.stripe.CustomerSubscriptions(email)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := &SubscriptionsResponse{Subscriptions: []*SubscriptionResponse{}}
	for _, subscription := range subscriptions {
		resp.Subscriptions = append(resp.Subscriptions, subscriptionResponse(subscription))
	}
	httpWriteJSON(w, resp)
}

// cancelSubscriptionHandler flags a subscription for cancellation at period end.
func (a *API) cancelSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	a.subscriptionActionHandler(w, r, true)
}

// renewSubscriptionHandler clears a pending cancellation.
func (a *API) renewSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	a.subscriptionActionHandler(w, r, false)
}

func (a *API) subscriptionActionHandler(w http.ResponseWriter, r *http.Request, cancel bool) {
	subscriptionID, err := strconv.ParseUint(chi.URLParam(r, "subscriptionID"), 10, 64)
	if err != nil || subscriptionID == 0 {
		errors.ErrMalformedURLParam.Withf("invalid subscription ID").Write(w)
		return
	}
	// body is optional for these endpoints
	req := &SubscriptionActionRequest{}
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			errors.ErrMalformedBody.Write(w)
			return
		}
	}

	if cancel {
		subscription, err := a.stripe.CancelSubscription(subscriptionID, req.UseConnectedAccount)
		if err != nil {
			writeError(w, err)
			return
		}
		httpWriteJSON(w, subscriptionResponse(subscription))
		return
	}
	subscription, err := a.stripe.RenewSubscription(subscriptionID, req.UseConnectedAccount)
	if err != nil {
		writeError(w, err)
		return
	}
	httpWriteJSON(w, subscriptionResponse(subscription))
}
