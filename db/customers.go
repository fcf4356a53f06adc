package db

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// nextCustomerID internal method returns the next available customer ID. If
// an error occurs, it returns the error. This method must be called with the
// keysLock held.
func (ms *MongoStorage) nextCustomerID(ctx context.Context) (uint64, error) {
	var customer Customer
	opts := options.FindOne().SetSort(bson.D{{Key: "_id", Value: -1}})
	if err := ms.customers.FindOne(ctx, bson.M{}, opts).Decode(&customer); err != nil {
		if err == mongo.ErrNoDocuments {
			return 1, nil
		}
		return 0, err
	}
	return customer.ID + 1, nil
}

// CustomerByEmail method returns the customer with the given email. The match
// is exact on the stored normalized email. If the customer doesn't exist, it
// returns ErrNotFound.
func (ms *MongoStorage) CustomerByEmail(email string) (*Customer, error) {
	ms.keysLock.RLock()
	defer ms.keysLock.RUnlock()
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	customer := &Customer{}
	if err := ms.customers.FindOne(ctx, bson.M{"email": email}).Decode(customer); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return customer, nil
}

// Customer method returns the customer with the given ID. If the customer
// doesn't exist, it returns ErrNotFound.
func (ms *MongoStorage) Customer(id uint64) (*Customer, error) {
	ms.keysLock.RLock()
	defer ms.keysLock.RUnlock()
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	customer := &Customer{}
	if err := ms.customers.FindOne(ctx, bson.M{"_id": id}).Decode(customer); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return customer, nil
}

// CreateCustomer inserts a new customer row. The unique index on email closes
// the find-or-create race: if a concurrent request inserted the same email
// between the caller's lookup and this insert, the duplicate-key error is
// resolved by re-reading and returning the existing row. The returned bool is
// true when the row was actually inserted by this call.
func (ms *MongoStorage) CreateCustomer(customer *Customer) (*Customer, bool, error) {
	if customer == nil || customer.Email == "" {
		return nil, false, ErrInvalidData
	}
	ms.keysLock.Lock()
	defer ms.keysLock.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	nextID, err := ms.nextCustomerID(ctx)
	if err != nil {
		return nil, false, err
	}
	customer.ID = nextID
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now()
	}
	if _, err := ms.customers.InsertOne(ctx, customer); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			existing := &Customer{}
			if err := ms.customers.FindOne(ctx, bson.M{"email": customer.Email}).Decode(existing); err != nil {
				return nil, false, err
			}
			return existing, false, nil
		}
		return nil, false, err
	}
	return customer, true, nil
}

// SetCustomerStripeID persists the remote customer identifier. Once set it is
// never reassigned, so the filter requires the field to be absent; a second
// call for the same customer is a no-op returning the stored row.
func (ms *MongoStorage) SetCustomerStripeID(id uint64, stripeCustomerID string) (*Customer, error) {
	if stripeCustomerID == "" {
		return nil, ErrInvalidData
	}
	ms.keysLock.Lock()
	defer ms.keysLock.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	filter := bson.M{
		"_id":              id,
		"stripeCustomerID": bson.M{"$exists": false},
	}
	update := bson.M{"$set": bson.M{"stripeCustomerID": stripeCustomerID}}
	if _, err := ms.customers.UpdateOne(ctx, filter, update); err != nil {
		return nil, err
	}
	customer := &Customer{}
	if err := ms.customers.FindOne(ctx, bson.M{"_id": id}).Decode(customer); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return customer, nil
}
