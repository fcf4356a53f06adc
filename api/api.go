// Package api provides the HTTP API of the billing backend: catalog and
// subscription endpoints, one-shot checkout, payment-method discovery and
// the gateway webhook receiver.
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/veloshop/billing-backend/db"
	"github.com/veloshop/billing-backend/stripe"
	"go.vocdoni.io/dvote/log"
)

type Config struct {
	Host   string
	Port   int
	DB     *db.MongoStorage
	Stripe *stripe.Service
}

// API type represents the API HTTP server.
type API struct {
	db     *db.MongoStorage
	stripe *stripe.Service
	host   string
	port   int
	router *chi.Mux
}

// New creates a new API HTTP server. It does not start the server. Use Start() for that.
func New(conf *Config) *API {
	if conf == nil {
		return nil
	}
	return &API{
		db:     conf.DB,
		stripe: conf.Stripe,
		host:   conf.Host,
		port:   conf.Port,
	}
}

// Start starts the API HTTP server (non blocking).
func (a *API) Start() {
	go func() {
		if err := http.ListenAndServe(fmt.Sprintf("%s:%d", a.host, a.port), a.initRouter()); err != nil {
			log.Fatalf("failed to start the API server: %v", err)
		}
	}()
}

// Router returns the router handler, building it first if needed. Used by
// tests to serve the API without binding a port.
func (a *API) Router() http.Handler {
	if a.router == nil {
		return a.initRouter()
	}
	return a.router
}

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Stripe-Signature"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}).Handler)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Throttle(100))
	r.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))
	r.Use(middleware.Timeout(45 * time.Second))

	log.Infow("new route", "method", "GET", "path", plansEndpoint)
	r.Get(plansEndpoint, a.plansHandler)
	log.Infow("new route", "method", "POST", "path", subscriptionsEndpoint)
	r.Post(subscriptionsEndpoint, a.createSubscriptionHandler)
	log.Infow("new route", "method", "GET", "path", subscriptionsEndpoint)
	r.Get(subscriptionsEndpoint, a.customerSubscriptionsHandler)
	log.Infow("new route", "method", "POST", "path", subscriptionCancelEndpoint)
	r.Post(subscriptionCancelEndpoint, a.cancelSubscriptionHandler)
	log.Infow("new route", "method", "POST", "path", subscriptionRenewEndpoint)
	r.Post(subscriptionRenewEndpoint, a.renewSubscriptionHandler)
	log.Infow("new route", "method", "POST", "path", paymentIntentEndpoint)
	r.Post(paymentIntentEndpoint, a.createPaymentIntentHandler)
	log.Infow("new route", "method", "POST", "path", expressCheckoutEndpoint)
	r.Post(expressCheckoutEndpoint, a.createExpressCheckoutHandler)
	log.Infow("new route", "method", "POST", "path", ordersEndpoint)
	r.Post(ordersEndpoint, a.createOrderHandler)
	log.Infow("new route", "method", "GET", "path", orderEndpoint)
	r.Get(orderEndpoint, a.orderHandler)
	log.Infow("new route", "method", "GET", "path", paymentMethodsEndpoint)
	r.Get(paymentMethodsEndpoint, a.allPaymentMethodsHandler)
	log.Infow("new route", "method", "GET", "path", paymentMethodsCountryEndpoint)
	r.Get(paymentMethodsCountryEndpoint, a.paymentMethodsHandler)
	log.Infow("new route", "method", "POST", "path", stripeWebhookEndpoint)
	r.Post(stripeWebhookEndpoint, a.stripeWebhookHandler)

	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		if _, err := w.Write([]byte(".")); err != nil {
			log.Warnw("failed to write ping response", "error", err)
		}
	})

	a.router = r
	return r
}
