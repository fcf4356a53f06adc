package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/veloshop/billing-backend/errors"
	"github.com/veloshop/billing-backend/internal"
	"github.com/veloshop/billing-backend/stripe"
)

// createPaymentIntentHandler creates a one-shot payment intent.
func (a *API) createPaymentIntentHandler(w http.ResponseWriter, r *http.Request) {
	req := &stripe.PaymentIntentRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		errors.ErrMalformedBody.Write(w)
		return
	}
	if req.CustomerEmail != "" {
		req.CustomerEmail = internal.NormalizeEmail(req.CustomerEmail)
		if !internal.ValidEmail(req.CustomerEmail) {
			errors.ErrEmailMalformed.Write(w)
			return
		}
	}

	result, err := a.stripe.CreatePaymentIntent(req)
	if err != nil {
		writeError(w, err)
		return
	}
	httpWriteJSON(w, result)
}

// createExpressCheckoutHandler creates the wallet fast-path payment intent
// together with the payment methods usable in the buyer's country.
func (a *API) createExpressCheckoutHandler(w http.ResponseWriter, r *http.Request) {
	req := &stripe.ExpressCheckoutRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		errors.ErrMalformedBody.Write(w)
		return
	}
	if req.CustomerEmail != "" {
		req.CustomerEmail = internal.NormalizeEmail(req.CustomerEmail)
		if !internal.ValidEmail(req.CustomerEmail) {
			errors.ErrEmailMalformed.Write(w)
			return
		}
	}

	result, err := a.stripe.CreateExpressCheckout(req)
	if err != nil {
		writeError(w, err)
		return
	}
	httpWriteJSON(w, result)
}

// createOrderHandler records a confirmed checkout order. Replays for the
// same payment intent return the stored order.
func (a *API) createOrderHandler(w http.ResponseWriter, r *http.Request) {
	req := &stripe.CreateOrderRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		errors.ErrMalformedBody.Write(w)
		return
	}
	if req.Customer.Email != "" {
		req.Customer.Email = internal.NormalizeEmail(req.Customer.Email)
		if !internal.ValidEmail(req.Customer.Email) {
			errors.ErrEmailMalformed.Write(w)
			return
		}
	}

	order, err := a.stripe.CreateOrder(req)
	if err != nil {
		writeError(w, err)
		return
	}
	httpWriteJSON(w, order)
}

// orderHandler returns the order recorded for a payment intent.
func (a *API) orderHandler(w http.ResponseWriter, r *http.Request) {
	paymentIntentID := chi.URLParam(r, "paymentIntentID")
	if paymentIntentID == "" {
		errors.ErrMalformedURLParam.With("payment intent ID is required").Write(w)
		return
	}

	order, err := a.stripe.Order(paymentIntentID)
	if err != nil {
		writeError(w, err)
		return
	}
	httpWriteJSON(w, order)
}

// paymentMethodsHandler returns the payment methods for one country,
// served from cache or the static fallback, never a blocking gateway call.
func (a *API) paymentMethodsHandler(w http.ResponseWriter, r *http.Request) {
	countryCode := chi.URLParam(r, "countryCode")
	if len(stripe.NormalizeCountry(countryCode)) != 2 {
		errors.ErrInvalidCountry.Withf("invalid country code %q", countryCode).Write(w)
		return
	}
	httpWriteJSON(w, a.stripe.PaymentMethodsFast(countryCode))
}

// allPaymentMethodsHandler returns the method lists for the popular countries.
func (a *API) allPaymentMethodsHandler(w http.ResponseWriter, _ *http.Request) {
	httpWriteJSON(w, &PaymentMethodsResponse{Countries: a.stripe.AllPopularPaymentMethods()})
}
