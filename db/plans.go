package db

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// nextPlanID internal method returns the next available plan ID. If an error
// occurs, it returns the error. This method must be called with the keysLock
// held.
func (ms *MongoStorage) nextPlanID(ctx context.Context) (uint64, error) {
	var plan Plan
	opts := options.FindOne().SetSort(bson.D{{Key: "_id", Value: -1}})
	if err := ms.plans.FindOne(ctx, bson.M{}, opts).Decode(&plan); err != nil {
		if err == mongo.ErrNoDocuments {
			return 1, nil
		}
		return 0, err
	}
	return plan.ID + 1, nil
}

// SetPlan method creates or updates the plan in the database. If the plan
// already exists, it updates the fields that have changed.
func (ms *MongoStorage) SetPlan(plan *Plan) (uint64, error) {
	ms.keysLock.Lock()
	defer ms.keysLock.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	nextID, err := ms.nextPlanID(ctx)
	if err != nil {
		return 0, err
	}
	if plan.ID > 0 {
		if plan.ID >= nextID {
			return 0, ErrInvalidData
		}
		updateDoc, err := dynamicUpdateDocument(plan, []string{"active"})
		if err != nil {
			return 0, err
		}
		if _, err := ms.plans.UpdateOne(ctx, bson.M{"_id": plan.ID}, updateDoc); err != nil {
			return 0, err
		}
	} else {
		plan.ID = nextID
		if _, err := ms.plans.InsertOne(ctx, plan); err != nil {
			return 0, err
		}
	}
	return plan.ID, nil
}

// Plan method returns the plan with the given ID. If the plan doesn't exist,
// it returns the specific error.
func (ms *MongoStorage) Plan(planID uint64) (*Plan, error) {
	ms.keysLock.RLock()
	defer ms.keysLock.RUnlock()
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	filter := bson.M{"_id": planID}
	plan := &Plan{}
	err := ms.plans.FindOne(ctx, filter).Decode(plan)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, errors.New("failed to get plan")
	}
	return plan, nil
}

// PlanByStripeProductID method returns the plan mirroring the given gateway
// product. If the plan doesn't exist, it returns the specific error.
func (ms *MongoStorage) PlanByStripeProductID(productID string) (*Plan, error) {
	ms.keysLock.RLock()
	defer ms.keysLock.RUnlock()
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	filter := bson.M{"stripeProductID": productID}
	plan := &Plan{}
	err := ms.plans.FindOne(ctx, filter).Decode(plan)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, errors.New("failed to get plan")
	}
	return plan, nil
}

// ActivePlans method returns the plans currently open for subscription. An
// empty result is not an error.
func (ms *MongoStorage) ActivePlans() ([]*Plan, error) {
	ms.keysLock.RLock()
	defer ms.keysLock.RUnlock()
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := ms.plans.Find(ctx, bson.M{"active": true}, opts)
	if err != nil {
		return nil, err
	}
	defer func() { _ = cursor.Close(ctx) }()
	plans := []*Plan{}
	if err := cursor.All(ctx, &plans); err != nil {
		return nil, err
	}
	return plans, nil
}
