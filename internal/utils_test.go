package internal

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestValidEmail(t *testing.T) {
	c := qt.New(t)

	c.Assert(ValidEmail("user@example.com"), qt.IsTrue)
	c.Assert(ValidEmail("user.name+tag@sub.example.org"), qt.IsTrue)
	c.Assert(ValidEmail("user@localhost"), qt.IsFalse)
	c.Assert(ValidEmail("not-an-email"), qt.IsFalse)
	c.Assert(ValidEmail(""), qt.IsFalse)
}

func TestNormalizeEmail(t *testing.T) {
	c := qt.New(t)

	c.Assert(NormalizeEmail("  User@Example.COM \n"), qt.Equals, "user@example.com")
	c.Assert(NormalizeEmail("user@example.com"), qt.Equals, "user@example.com")
}

func TestMinorUnits(t *testing.T) {
	c := qt.New(t)

	c.Assert(MinorUnits(10.00), qt.Equals, int64(1000))
	c.Assert(MinorUnits(29.99), qt.Equals, int64(2999))
	c.Assert(MinorUnits(0.5), qt.Equals, int64(50))
	c.Assert(MinorUnits(0), qt.Equals, int64(0))
	// halves round to even
	c.Assert(MinorUnits(10.005), qt.Equals, int64(1000))
	c.Assert(MinorUnits(10.025), qt.Equals, int64(1002))

	c.Assert(DecimalAmount(2999), qt.Equals, 29.99)
}
