package db

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

func testOrder(intentID string) *Order {
	return &Order{
		StripePaymentIntentID: intentID,
		Customer: OrderCustomer{
			Email:   "buyer@example.com",
			Name:    "Buyer",
			Country: "DE",
		},
		Items: []OrderItem{
			{Name: "Widget", Quantity: 2, UnitAmount: 1250},
		},
		Subtotal: 2500,
		Tax:      475,
		Shipping: 500,
		Total:    3475,
		Currency: "eur",
		Status:   OrderStatusPending,
	}
}

func TestCreateOrder(t *testing.T) {
	c := qt.New(t)
	defer resetDB(c)

	order, created, err := testDB.CreateOrder(testOrder(testStripeIntentID))
	c.Assert(err, qt.IsNil)
	c.Assert(created, qt.IsTrue)
	c.Assert(order.ID, qt.Not(qt.Equals), "")
	c.Assert(order.CreatedAt.IsZero(), qt.IsFalse)

	// a replayed create for the same intent returns the stored order
	replay, created, err := testDB.CreateOrder(testOrder(testStripeIntentID))
	c.Assert(err, qt.IsNil)
	c.Assert(created, qt.IsFalse)
	c.Assert(replay.ID, qt.Equals, order.ID)

	// an order without a payment intent is invalid
	_, _, err = testDB.CreateOrder(&Order{})
	c.Assert(err, qt.Equals, ErrInvalidData)
}

func TestOrderByPaymentIntentID(t *testing.T) {
	c := qt.New(t)
	defer resetDB(c)

	_, err := testDB.OrderByPaymentIntentID(testStripeIntentID)
	c.Assert(err, qt.Equals, ErrNotFound)

	order, _, err := testDB.CreateOrder(testOrder(testStripeIntentID))
	c.Assert(err, qt.IsNil)

	stored, err := testDB.OrderByPaymentIntentID(testStripeIntentID)
	c.Assert(err, qt.IsNil)
	c.Assert(stored.ID, qt.Equals, order.ID)
	c.Assert(stored.Total, qt.Equals, int64(3475))
	c.Assert(stored.Items, qt.HasLen, 1)
}

func TestSetOrderStatus(t *testing.T) {
	c := qt.New(t)
	defer resetDB(c)

	_, _, err := testDB.CreateOrder(testOrder(testStripeIntentID))
	c.Assert(err, qt.IsNil)

	c.Assert(testDB.SetOrderStatus(testStripeIntentID, OrderStatusCompleted), qt.IsNil)
	stored, err := testDB.OrderByPaymentIntentID(testStripeIntentID)
	c.Assert(err, qt.IsNil)
	c.Assert(stored.Status, qt.Equals, OrderStatusCompleted)
	c.Assert(stored.UpdatedAt.Before(stored.CreatedAt), qt.IsFalse)

	// unknown intents surface as not found so callers can ack-and-skip
	c.Assert(testDB.SetOrderStatus("pi_unknown", OrderStatusFailed), qt.Equals, ErrNotFound)
}
