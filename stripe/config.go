package stripe

import (
	"time"
)

// Config holds the complete Stripe gateway configuration. It is populated by
// cmd/service from the pflag/viper layer.
type Config struct {
	APIKey             string        `yaml:"api_key" json:"api_key"`
	WebhookSecret      string        `yaml:"webhook_secret" json:"webhook_secret"`
	ConnectedAccountID string        `yaml:"connected_account_id" json:"connected_account_id"`
	PlanProductIDs     []string      `yaml:"plan_product_ids" json:"plan_product_ids"`
	WarmupCountries    []string      `yaml:"warmup_countries" json:"warmup_countries"`
	MethodCacheTTL     time.Duration `yaml:"method_cache_ttl" json:"method_cache_ttl"`
}
