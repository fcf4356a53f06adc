package stripe

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/veloshop/billing-backend/db"
)

func TestMethodCacheTTL(t *testing.T) {
	c := qt.New(t)

	now := time.Unix(1700000000, 0)
	cache := NewMethodCache(5 * time.Minute)
	cache.now = func() time.Time { return now }

	_, ok := cache.Get("DE")
	c.Assert(ok, qt.IsFalse)

	cache.Put("DE", MethodList{
		Country: "DE",
		Methods: []string{"card", "sepa_debit"},
		Source:  db.PaymentMethodSourceLive,
	})

	cached, ok := cache.Get("DE")
	c.Assert(ok, qt.IsTrue)
	c.Assert(cached.Source, qt.Equals, db.PaymentMethodSourceLive)
	c.Assert(cached.Methods, qt.DeepEquals, []string{"card", "sepa_debit"})

	// still fresh just before the TTL boundary
	now = now.Add(5*time.Minute - time.Second)
	_, ok = cache.Get("DE")
	c.Assert(ok, qt.IsTrue)

	// expired past the boundary
	now = now.Add(2 * time.Second)
	_, ok = cache.Get("DE")
	c.Assert(ok, qt.IsFalse)

	// a fresh Put restarts the clock
	cache.Put("DE", MethodList{Country: "DE", Methods: []string{"card"}, Source: db.PaymentMethodSourceStaticFallback})
	_, ok = cache.Get("DE")
	c.Assert(ok, qt.IsTrue)
}

func TestMethodCacheInvalidate(t *testing.T) {
	c := qt.New(t)

	cache := NewMethodCache(time.Hour)
	cache.Put("US", MethodList{Country: "US", Methods: []string{"card"}, Source: db.PaymentMethodSourceStaticFallback})

	_, ok := cache.Get("US")
	c.Assert(ok, qt.IsTrue)

	cache.Invalidate("US")
	_, ok = cache.Get("US")
	c.Assert(ok, qt.IsFalse)
}

func TestPaymentMethodsFastStaticFallback(t *testing.T) {
	c := qt.New(t)

	s := newTestService(c, "")

	// known country resolves from the static tables
	list := s.PaymentMethodsFast("de")
	c.Assert(list.Country, qt.Equals, "DE")
	c.Assert(list.Source, qt.Equals, db.PaymentMethodSourceStaticFallback)
	c.Assert(list.Methods[0], qt.Equals, "card")
	c.Assert(list.Methods, qt.Contains, "sepa_debit")

	// unknown country degrades to the card baseline
	list = s.PaymentMethodsFast("ZZ")
	c.Assert(list.Methods, qt.DeepEquals, []string{"card"})
	c.Assert(list.Source, qt.Equals, db.PaymentMethodSourceStaticFallback)

	// both lookups landed in the cache
	cached, ok := s.methods.Get("DE")
	c.Assert(ok, qt.IsTrue)
	c.Assert(cached.Methods, qt.Contains, "sepa_debit")
	_, ok = s.methods.Get("ZZ")
	c.Assert(ok, qt.IsTrue)
}

func TestAllPopularPaymentMethods(t *testing.T) {
	c := qt.New(t)

	s := newTestService(c, "")
	s.config.WarmupCountries = []string{"us", "DE"}

	all := s.AllPopularPaymentMethods()
	c.Assert(all, qt.HasLen, 2)
	c.Assert(all["US"].Methods, qt.Contains, "card")
	c.Assert(all["DE"].Methods, qt.Contains, "sepa_debit")
}

func TestCurrencyForCountry(t *testing.T) {
	c := qt.New(t)

	currency, ok := CurrencyForCountry("de")
	c.Assert(ok, qt.IsTrue)
	c.Assert(currency, qt.Equals, "eur")

	currency, ok = CurrencyForCountry(" US ")
	c.Assert(ok, qt.IsTrue)
	c.Assert(currency, qt.Equals, "usd")

	_, ok = CurrencyForCountry("ZZ")
	c.Assert(ok, qt.IsFalse)
}

func TestWithBaseline(t *testing.T) {
	c := qt.New(t)

	c.Assert(withBaseline([]string{"ideal", "klarna"}), qt.DeepEquals, []string{"card", "ideal", "klarna"})
	c.Assert(withBaseline([]string{"card", "link"}), qt.DeepEquals, []string{"card", "link"})
	c.Assert(withBaseline(nil), qt.DeepEquals, []string{"card"})
}
