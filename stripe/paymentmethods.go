package stripe

import (
	"strings"
	"sync"
	"time"

	"github.com/veloshop/billing-backend/db"
	"go.vocdoni.io/dvote/log"
)

// DefaultMethodCacheTTL is how long a resolved payment-method list stays fresh
const DefaultMethodCacheTTL = 5 * time.Minute

// baselineMethod is always present in a resolved list, whatever the source
const baselineMethod = "card"

// MethodList is the set of payment methods available for a country,
// annotated with where the data came from.
type MethodList struct {
	Country string                 `json:"country"`
	Methods []string               `json:"methods"`
	Source  db.PaymentMethodSource `json:"source"`
}

type methodCacheEntry struct {
	list    MethodList
	expires time.Time
}

// MethodCache is a TTL cache of per-country payment-method lists.
// The clock is injectable for tests.
type MethodCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]methodCacheEntry
}

// NewMethodCache creates a method cache with the given TTL
func NewMethodCache(ttl time.Duration) *MethodCache {
	if ttl <= 0 {
		ttl = DefaultMethodCacheTTL
	}
	return &MethodCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]methodCacheEntry),
	}
}

// Get returns the cached list for a country, or false when absent or expired
func (c *MethodCache) Get(country string) (*MethodList, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[country]
	if !ok || c.now().After(entry.expires) {
		return nil, false
	}
	list := entry.list
	return &list, true
}

// Put stores a list for a country, refreshing its expiry
func (c *MethodCache) Put(country string, list MethodList) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[country] = methodCacheEntry{
		list:    list,
		expires: c.now().Add(c.ttl),
	}
}

// Invalidate drops the cached entry for a country
func (c *MethodCache) Invalidate(country string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, country)
}

// staticPaymentMethods is the curated offline fallback, used whenever no live
// country spec has been cached yet. Lists mirror what Stripe actually enables
// for charges in each country.
var staticPaymentMethods = map[string][]string{
	"US": {"card", "link", "cashapp", "affirm", "afterpay_clearpay"},
	"GB": {"card", "link", "klarna", "afterpay_clearpay", "revolut_pay"},
	"DE": {"card", "link", "sepa_debit", "klarna", "paypal"},
	"FR": {"card", "link", "sepa_debit", "klarna", "paypal"},
	"ES": {"card", "link", "sepa_debit", "klarna", "paypal"},
	"IT": {"card", "link", "sepa_debit", "klarna", "satispay"},
	"NL": {"card", "link", "ideal", "sepa_debit", "klarna"},
	"BE": {"card", "link", "bancontact", "sepa_debit", "klarna"},
	"AT": {"card", "link", "eps", "sepa_debit", "klarna"},
	"PL": {"card", "link", "p24", "blik", "klarna"},
	"PT": {"card", "link", "multibanco", "sepa_debit", "klarna"},
	"IE": {"card", "link", "sepa_debit", "klarna", "revolut_pay"},
	"CH": {"card", "link", "twint", "klarna"},
	"SE": {"card", "link", "klarna", "swish"},
	"DK": {"card", "link", "klarna", "mobilepay"},
	"NO": {"card", "link", "klarna", "mobilepay"},
	"FI": {"card", "link", "sepa_debit", "klarna", "mobilepay"},
	"CA": {"card", "link", "affirm", "afterpay_clearpay"},
	"AU": {"card", "link", "au_becs_debit", "afterpay_clearpay", "zip"},
	"NZ": {"card", "link", "afterpay_clearpay"},
	"JP": {"card", "link", "konbini", "jp_bank_transfer"},
	"SG": {"card", "link", "grabpay", "paynow"},
	"MX": {"card", "link", "oxxo"},
	"BR": {"card", "link", "boleto", "pix"},
}

// countryCurrencies maps countries to the currency charges are made in.
// Countries absent here fall back to the request currency untouched.
var countryCurrencies = map[string]string{
	"US": "usd",
	"GB": "gbp",
	"DE": "eur",
	"FR": "eur",
	"ES": "eur",
	"IT": "eur",
	"NL": "eur",
	"BE": "eur",
	"AT": "eur",
	"PT": "eur",
	"IE": "eur",
	"FI": "eur",
	"PL": "pln",
	"CH": "chf",
	"SE": "sek",
	"DK": "dkk",
	"NO": "nok",
	"CA": "cad",
	"AU": "aud",
	"NZ": "nzd",
	"JP": "jpy",
	"SG": "sgd",
	"MX": "mxn",
	"BR": "brl",
}

// DefaultWarmupCountries returns the countries whose payment-method lists are
// fetched live at startup, covering the bulk of checkout traffic.
func DefaultWarmupCountries() []string {
	return []string{"US", "GB", "DE", "FR", "ES", "NL"}
}

// NormalizeCountry uppercases and trims a country code
func NormalizeCountry(countryCode string) string {
	return strings.ToUpper(strings.TrimSpace(countryCode))
}

// CurrencyForCountry returns the charge currency for a country, false when unknown
func CurrencyForCountry(countryCode string) (string, bool) {
	currency, ok := countryCurrencies[NormalizeCountry(countryCode)]
	return currency, ok
}

// staticMethodsFor returns the fallback method list for a country. Unknown
// countries get the card baseline only.
func staticMethodsFor(countryCode string) []string {
	if methods, ok := staticPaymentMethods[countryCode]; ok {
		out := make([]string, len(methods))
		copy(out, methods)
		return out
	}
	return []string{baselineMethod}
}

// withBaseline guarantees the baseline method is present, first
func withBaseline(methods []string) []string {
	for _, m := range methods {
		if m == baselineMethod {
			return methods
		}
	}
	return append([]string{baselineMethod}, methods...)
}

// PaymentMethodsFast resolves the payment methods for a country without ever
// blocking a checkout on a gateway round trip: it serves from cache when
// fresh and from the static tables otherwise. Live data only enters the
// cache through WarmUpPaymentMethods.
func (s *Service) PaymentMethodsFast(countryCode string) *MethodList {
	cc := NormalizeCountry(countryCode)

	if cached, ok := s.methods.Get(cc); ok {
		return cached
	}

	list := MethodList{
		Country: cc,
		Methods: withBaseline(staticMethodsFor(cc)),
		Source:  db.PaymentMethodSourceStaticFallback,
	}
	s.methods.Put(cc, list)
	return &list
}

// AllPopularPaymentMethods resolves the method lists for the warm-up country set
func (s *Service) AllPopularPaymentMethods() map[string]*MethodList {
	out := make(map[string]*MethodList, len(s.config.WarmupCountries))
	for _, cc := range s.config.WarmupCountries {
		cc = NormalizeCountry(cc)
		out[cc] = s.PaymentMethodsFast(cc)
	}
	return out
}

// WarmUpPaymentMethods fetches live country specs for the given countries and
// seeds the cache with them. Failures are logged and skipped, leaving the
// static fallback in place for that country.
func (s *Service) WarmUpPaymentMethods(countries []string) {
	for _, countryCode := range countries {
		cc := NormalizeCountry(countryCode)
		spec, err := s.client.GetCountrySpec(cc)
		if err != nil {
			log.Warnw("payment method warm-up failed, keeping static fallback",
				"country", cc, "error", err.Error())
			continue
		}
		s.methods.Put(cc, MethodList{
			Country: cc,
			Methods: withBaseline(spec.SupportedPaymentMethods),
			Source:  db.PaymentMethodSourceLive,
		})
		log.Debugf("payment methods warmed up for %s (%d methods)", cc, len(spec.SupportedPaymentMethods))
	}
}
