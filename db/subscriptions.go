package db

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// nextSubscriptionID internal method returns the next available subscription
// ID. This method must be called with the keysLock held.
func (ms *MongoStorage) nextSubscriptionID(ctx context.Context) (uint64, error) {
	var subscription Subscription
	opts := options.FindOne().SetSort(bson.D{{Key: "_id", Value: -1}})
	if err := ms.subscriptions.FindOne(ctx, bson.M{}, opts).Decode(&subscription); err != nil {
		if err == mongo.ErrNoDocuments {
			return 1, nil
		}
		return 0, err
	}
	return subscription.ID + 1, nil
}

// CreateSubscription inserts a new subscription mirror row. The unique index
// on stripeSubscriptionID keeps the remote id unique across all rows; a
// duplicate insert (request replay) resolves to the already-stored row.
func (ms *MongoStorage) CreateSubscription(subscription *Subscription) (*Subscription, error) {
	if subscription == nil || subscription.StripeSubscriptionID == "" {
		return nil, ErrInvalidData
	}
	if !IsValidSubscriptionStatus(subscription.Status) {
		return nil, ErrInvalidData
	}
	ms.keysLock.Lock()
	defer ms.keysLock.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	nextID, err := ms.nextSubscriptionID(ctx)
	if err != nil {
		return nil, err
	}
	subscription.ID = nextID
	if subscription.CreatedAt.IsZero() {
		subscription.CreatedAt = time.Now()
	}
	if _, err := ms.subscriptions.InsertOne(ctx, subscription); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			existing := &Subscription{}
			filter := bson.M{"stripeSubscriptionID": subscription.StripeSubscriptionID}
			if err := ms.subscriptions.FindOne(ctx, filter).Decode(existing); err != nil {
				return nil, err
			}
			return existing, nil
		}
		return nil, err
	}
	return subscription, nil
}

// Subscription method returns the subscription with the given local ID. If
// the subscription doesn't exist, it returns ErrNotFound.
func (ms *MongoStorage) Subscription(id uint64) (*Subscription, error) {
	ms.keysLock.RLock()
	defer ms.keysLock.RUnlock()
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	subscription := &Subscription{}
	if err := ms.subscriptions.FindOne(ctx, bson.M{"_id": id}).Decode(subscription); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return subscription, nil
}

// SubscriptionByStripeID method returns the subscription mirroring the given
// remote subscription id. Webhook reconciliation looks subscriptions up this
// way, never by event id.
func (ms *MongoStorage) SubscriptionByStripeID(stripeSubscriptionID string) (*Subscription, error) {
	ms.keysLock.RLock()
	defer ms.keysLock.RUnlock()
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	subscription := &Subscription{}
	filter := bson.M{"stripeSubscriptionID": stripeSubscriptionID}
	if err := ms.subscriptions.FindOne(ctx, filter).Decode(subscription); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return subscription, nil
}

// SubscriptionsByCustomer method returns all subscriptions owned by the given
// customer, newest first. An empty result is not an error.
func (ms *MongoStorage) SubscriptionsByCustomer(customerID uint64) ([]*Subscription, error) {
	ms.keysLock.RLock()
	defer ms.keysLock.RUnlock()
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: -1}})
	cursor, err := ms.subscriptions.Find(ctx, bson.M{"customerID": customerID}, opts)
	if err != nil {
		return nil, err
	}
	defer func() { _ = cursor.Close(ctx) }()
	subscriptions := []*Subscription{}
	if err := cursor.All(ctx, &subscriptions); err != nil {
		return nil, err
	}
	return subscriptions, nil
}

// SetSubscriptionCancelFlag flips the local cancel-at-period-end flag. Status
// is deliberately untouched: cancellation takes effect at period end and is
// reflected by a later webhook.
func (ms *MongoStorage) SetSubscriptionCancelFlag(id uint64, cancelAtPeriodEnd bool) error {
	ms.keysLock.Lock()
	defer ms.keysLock.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	update := bson.M{"$set": bson.M{"cancelAtPeriodEnd": cancelAtPeriodEnd}}
	res, err := ms.subscriptions.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// SetSubscriptionState applies a reconciled status and period window to the
// subscription mirroring the given remote id. The caller decides whether the
// incoming event is current (see the reconciler's staleness guard); this
// method just writes.
func (ms *MongoStorage) SetSubscriptionState(
	stripeSubscriptionID string, status SubscriptionStatus, periodStart, periodEnd time.Time,
) error {
	if !IsValidSubscriptionStatus(status) {
		return ErrInvalidData
	}
	ms.keysLock.Lock()
	defer ms.keysLock.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	set := bson.M{"status": status}
	if !periodStart.IsZero() {
		set["periodStart"] = periodStart
	}
	if !periodEnd.IsZero() {
		set["periodEnd"] = periodEnd
	}
	filter := bson.M{"stripeSubscriptionID": stripeSubscriptionID}
	res, err := ms.subscriptions.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
