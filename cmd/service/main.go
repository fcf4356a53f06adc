package main

import (
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/veloshop/billing-backend/api"
	"github.com/veloshop/billing-backend/db"
	"github.com/veloshop/billing-backend/stripe"
	"go.vocdoni.io/dvote/log"
)

func main() {
	log.Init("debug", "stdout", nil)
	// define flags
	flag.StringP("host", "h", "0.0.0.0", "listen address")
	flag.IntP("port", "p", 8080, "listen port")
	flag.String("mongo-url", "", "The URL of the MongoDB server")
	flag.String("mongo-db", "billing-backend", "The name of the MongoDB database")
	flag.String("stripe-api-secret", "", "Stripe API secret key")
	flag.String("stripe-webhook-secret", "", "Stripe webhook signing secret")
	flag.String("stripe-connected-account", "", "Stripe connected account ID for direct charges")
	flag.StringSlice("stripe-plan-products", nil, "Stripe product IDs mirrored as subscription plans")
	flag.StringSlice("stripe-warmup-countries", stripe.DefaultWarmupCountries(),
		"countries whose payment methods are fetched live at startup")
	flag.Duration("method-cache-ttl", stripe.DefaultMethodCacheTTL, "TTL of the payment-method cache")
	flag.Bool("sync-plans", true, "refresh the plan catalog from Stripe at startup")
	// parse flags
	flag.Parse()
	// initialize Viper
	viper.SetEnvPrefix("VELOSHOP")
	if err := viper.BindPFlags(flag.CommandLine); err != nil {
		panic(err)
	}
	viper.AutomaticEnv()
	// read the configuration
	host := viper.GetString("host")
	port := viper.GetInt("port")
	mongoURL := viper.GetString("mongo-url")
	mongoDB := viper.GetString("mongo-db")
	stripeConfig := &stripe.Config{
		APIKey:             viper.GetString("stripe-api-secret"),
		WebhookSecret:      viper.GetString("stripe-webhook-secret"),
		ConnectedAccountID: viper.GetString("stripe-connected-account"),
		PlanProductIDs:     viper.GetStringSlice("stripe-plan-products"),
		WarmupCountries:    viper.GetStringSlice("stripe-warmup-countries"),
		MethodCacheTTL:     viper.GetDuration("method-cache-ttl"),
	}
	if stripeConfig.APIKey == "" {
		log.Fatal("stripe-api-secret is required")
	}
	if stripeConfig.WebhookSecret == "" {
		log.Fatal("stripe-webhook-secret is required")
	}
	// initialize the MongoDB database
	database, err := db.New(mongoURL, mongoDB)
	if err != nil {
		log.Fatalf("could not create the MongoDB database: %v", err)
	}
	defer database.Close()
	// create the Stripe orchestration service
	stripeService, err := stripe.NewService(stripeConfig, database)
	if err != nil {
		log.Fatalf("could not create the Stripe service: %v", err)
	}
	// mirror the plan catalog from Stripe
	if viper.GetBool("sync-plans") {
		if err := stripeService.SyncPlans(); err != nil {
			log.Fatalf("could not sync the plan catalog: %v", err)
		}
	}
	// warm up the payment-method cache in the background, checkout never
	// waits for it
	go stripeService.WarmUpPaymentMethods(stripeConfig.WarmupCountries)
	// create the local API server
	api.New(&api.Config{
		Host:   host,
		Port:   port,
		DB:     database,
		Stripe: stripeService,
	}).Start()
	// wait forever, as the server is running in a goroutine
	log.Infow("server started", "host", host, "port", port)
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
}
