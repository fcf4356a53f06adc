package db

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

func testSubscription(stripeID string) *Subscription {
	return &Subscription{
		CustomerID:           1,
		PlanID:               1,
		StripeSubscriptionID: stripeID,
		Status:               SubscriptionStatusIncomplete,
		Amount:               2999,
		Currency:             "eur",
		Interval:             BillingIntervalMonth,
	}
}

func TestCreateSubscription(t *testing.T) {
	c := qt.New(t)
	defer resetDB(c)

	subscription, err := testDB.CreateSubscription(testSubscription(testStripeSubID))
	c.Assert(err, qt.IsNil)
	c.Assert(subscription.ID, qt.Equals, uint64(1))
	c.Assert(subscription.CreatedAt.IsZero(), qt.IsFalse)

	// a replayed create for the same remote id returns the stored row
	replay, err := testDB.CreateSubscription(testSubscription(testStripeSubID))
	c.Assert(err, qt.IsNil)
	c.Assert(replay.ID, qt.Equals, subscription.ID)

	// missing remote id or unknown status are invalid
	_, err = testDB.CreateSubscription(&Subscription{})
	c.Assert(err, qt.Equals, ErrInvalidData)
	bad := testSubscription("sub_bad_status")
	bad.Status = "resurrected"
	_, err = testDB.CreateSubscription(bad)
	c.Assert(err, qt.Equals, ErrInvalidData)
}

func TestSubscriptionLookups(t *testing.T) {
	c := qt.New(t)
	defer resetDB(c)

	_, err := testDB.Subscription(1)
	c.Assert(err, qt.Equals, ErrNotFound)
	_, err = testDB.SubscriptionByStripeID(testStripeSubID)
	c.Assert(err, qt.Equals, ErrNotFound)

	first, err := testDB.CreateSubscription(testSubscription(testStripeSubID))
	c.Assert(err, qt.IsNil)
	second, err := testDB.CreateSubscription(testSubscription("sub_test456"))
	c.Assert(err, qt.IsNil)

	byID, err := testDB.Subscription(first.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(byID.StripeSubscriptionID, qt.Equals, testStripeSubID)

	byStripeID, err := testDB.SubscriptionByStripeID("sub_test456")
	c.Assert(err, qt.IsNil)
	c.Assert(byStripeID.ID, qt.Equals, second.ID)

	// listing returns the customer's subscriptions newest first
	list, err := testDB.SubscriptionsByCustomer(1)
	c.Assert(err, qt.IsNil)
	c.Assert(list, qt.HasLen, 2)
	c.Assert(list[0].ID, qt.Equals, second.ID)
	c.Assert(list[1].ID, qt.Equals, first.ID)

	// unknown customer yields an empty list, not an error
	list, err = testDB.SubscriptionsByCustomer(99)
	c.Assert(err, qt.IsNil)
	c.Assert(list, qt.HasLen, 0)
}

func TestSetSubscriptionCancelFlag(t *testing.T) {
	c := qt.New(t)
	defer resetDB(c)

	subscription, err := testDB.CreateSubscription(testSubscription(testStripeSubID))
	c.Assert(err, qt.IsNil)

	c.Assert(testDB.SetSubscriptionCancelFlag(subscription.ID, true), qt.IsNil)
	stored, err := testDB.Subscription(subscription.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(stored.CancelAtPeriodEnd, qt.IsTrue)
	// the flag does not touch the status
	c.Assert(stored.Status, qt.Equals, SubscriptionStatusIncomplete)

	c.Assert(testDB.SetSubscriptionCancelFlag(subscription.ID, false), qt.IsNil)
	stored, err = testDB.Subscription(subscription.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(stored.CancelAtPeriodEnd, qt.IsFalse)

	c.Assert(testDB.SetSubscriptionCancelFlag(999, true), qt.Equals, ErrNotFound)
}

func TestSetSubscriptionState(t *testing.T) {
	c := qt.New(t)
	defer resetDB(c)

	subscription, err := testDB.CreateSubscription(testSubscription(testStripeSubID))
	c.Assert(err, qt.IsNil)

	periodStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := periodStart.AddDate(0, 1, 0)
	err = testDB.SetSubscriptionState(testStripeSubID, SubscriptionStatusActive, periodStart, periodEnd)
	c.Assert(err, qt.IsNil)

	stored, err := testDB.Subscription(subscription.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(stored.Status, qt.Equals, SubscriptionStatusActive)
	c.Assert(stored.PeriodStart.Equal(periodStart), qt.IsTrue)
	c.Assert(stored.PeriodEnd.Equal(periodEnd), qt.IsTrue)

	// a status-only update keeps the stored period
	err = testDB.SetSubscriptionState(testStripeSubID, SubscriptionStatusPastDue, time.Time{}, time.Time{})
	c.Assert(err, qt.IsNil)
	stored, err = testDB.Subscription(subscription.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(stored.Status, qt.Equals, SubscriptionStatusPastDue)
	c.Assert(stored.PeriodEnd.Equal(periodEnd), qt.IsTrue)

	// invalid status and unknown subscriptions are rejected
	err = testDB.SetSubscriptionState(testStripeSubID, "resurrected", periodStart, periodEnd)
	c.Assert(err, qt.Equals, ErrInvalidData)
	err = testDB.SetSubscriptionState("sub_unknown", SubscriptionStatusActive, periodStart, periodEnd)
	c.Assert(err, qt.Equals, ErrNotFound)
}
