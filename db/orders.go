package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// CreateOrder inserts a new checkout order. Create-by-payment-intent-id is
// idempotent: the unique index on stripePaymentIntentID turns a concurrent or
// repeated create for the same intent into a duplicate-key error, which is
// resolved by re-reading and returning the first row unchanged. The returned
// bool is true when the row was actually inserted by this call.
func (ms *MongoStorage) CreateOrder(order *Order) (*Order, bool, error) {
	if order == nil || order.StripePaymentIntentID == "" {
		return nil, false, ErrInvalidData
	}
	ms.keysLock.Lock()
	defer ms.keysLock.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	now := time.Now()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	if _, err := ms.orders.InsertOne(ctx, order); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			existing := &Order{}
			filter := bson.M{"stripePaymentIntentID": order.StripePaymentIntentID}
			if err := ms.orders.FindOne(ctx, filter).Decode(existing); err != nil {
				return nil, false, err
			}
			return existing, false, nil
		}
		return nil, false, err
	}
	return order, true, nil
}

// OrderByPaymentIntentID method returns the order created for the given
// remote payment intent. If the order doesn't exist, it returns ErrNotFound.
func (ms *MongoStorage) OrderByPaymentIntentID(paymentIntentID string) (*Order, error) {
	ms.keysLock.RLock()
	defer ms.keysLock.RUnlock()
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	order := &Order{}
	filter := bson.M{"stripePaymentIntentID": paymentIntentID}
	if err := ms.orders.FindOne(ctx, filter).Decode(order); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return order, nil
}

// SetOrderStatus applies a reconciled status to the order created for the
// given remote payment intent.
func (ms *MongoStorage) SetOrderStatus(paymentIntentID string, status OrderStatus) error {
	ms.keysLock.Lock()
	defer ms.keysLock.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	filter := bson.M{"stripePaymentIntentID": paymentIntentID}
	update := bson.M{"$set": bson.M{"status": status, "updatedAt": time.Now()}}
	res, err := ms.orders.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
