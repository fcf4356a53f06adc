package db

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// nextPaymentID internal method returns the next available payment ID. This
// method must be called with the keysLock held.
func (ms *MongoStorage) nextPaymentID(ctx context.Context) (uint64, error) {
	var payment Payment
	opts := options.FindOne().SetSort(bson.D{{Key: "_id", Value: -1}})
	if err := ms.payments.FindOne(ctx, bson.M{}, opts).Decode(&payment); err != nil {
		if err == mongo.ErrNoDocuments {
			return 1, nil
		}
		return 0, err
	}
	return payment.ID + 1, nil
}

// CreatePayment appends a payment record for a subscription invoice. The
// sparse unique index on stripeInvoiceID makes webhook redelivery of the same
// invoice event resolve to the already-stored row, except that a failed row
// is upgraded when the same invoice later succeeds.
func (ms *MongoStorage) CreatePayment(payment *Payment) (*Payment, error) {
	if payment == nil || payment.SubscriptionID == 0 {
		return nil, ErrInvalidData
	}
	ms.keysLock.Lock()
	defer ms.keysLock.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	nextID, err := ms.nextPaymentID(ctx)
	if err != nil {
		return nil, err
	}
	payment.ID = nextID
	if _, err := ms.payments.InsertOne(ctx, payment); err != nil {
		if mongo.IsDuplicateKeyError(err) && payment.StripeInvoiceID != "" {
			existing := &Payment{}
			filter := bson.M{"stripeInvoiceID": payment.StripeInvoiceID}
			if err := ms.payments.FindOne(ctx, filter).Decode(existing); err != nil {
				return nil, err
			}
			// An invoice that failed can settle on a later attempt and
			// redelivers under the same invoice id. The stored row only moves
			// forward to succeeded, never back.
			if payment.Status == PaymentStatusSucceeded && existing.Status != PaymentStatusSucceeded {
				update := bson.M{"$set": bson.M{
					"status": PaymentStatusSucceeded,
					"amount": payment.Amount,
					"paidAt": payment.PaidAt,
				}}
				if _, err := ms.payments.UpdateOne(ctx, filter, update); err != nil {
					return nil, err
				}
				existing.Status = PaymentStatusSucceeded
				existing.Amount = payment.Amount
				existing.PaidAt = payment.PaidAt
			}
			return existing, nil
		}
		return nil, err
	}
	return payment, nil
}

// PaymentsBySubscription method returns the payment history of the given
// subscription, newest first. An empty result is not an error.
func (ms *MongoStorage) PaymentsBySubscription(subscriptionID uint64) ([]*Payment, error) {
	ms.keysLock.RLock()
	defer ms.keysLock.RUnlock()
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: -1}})
	cursor, err := ms.payments.Find(ctx, bson.M{"subscriptionID": subscriptionID}, opts)
	if err != nil {
		return nil, err
	}
	defer func() { _ = cursor.Close(ctx) }()
	payments := []*Payment{}
	if err := cursor.All(ctx, &payments); err != nil {
		return nil, err
	}
	return payments, nil
}
