package db

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.vocdoni.io/dvote/log"
)

// initCollections creates the collections in the MongoDB database if they
// don't exist and binds them to the storage struct.
func (ms *MongoStorage) initCollections(database string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	// get the current collection names to create only the missing ones
	currentCollections, err := ms.collectionNames(ctx, database)
	if err != nil {
		return err
	}
	// aux method to get a collection if it exists, or create it if it doesn't
	getCollection := func(name string) (*mongo.Collection, error) {
		alreadyCreated := false
		for _, c := range currentCollections {
			if c == name {
				alreadyCreated = true
				break
			}
		}
		if !alreadyCreated {
			if err := ms.client.Database(database).CreateCollection(ctx, name); err != nil {
				return nil, err
			}
		}
		return ms.client.Database(database).Collection(name), nil
	}
	// customers collection
	if ms.customers, err = getCollection("customers"); err != nil {
		return err
	}
	// plans collection
	if ms.plans, err = getCollection("plans"); err != nil {
		return err
	}
	// subscriptions collection
	if ms.subscriptions, err = getCollection("subscriptions"); err != nil {
		return err
	}
	// payments collection
	if ms.payments, err = getCollection("payments"); err != nil {
		return err
	}
	// orders collection
	if ms.orders, err = getCollection("orders"); err != nil {
		return err
	}
	return nil
}

// collectionNames returns the names of the collections in the given database.
func (ms *MongoStorage) collectionNames(ctx context.Context, database string) ([]string, error) {
	collectionsCursor, err := ms.client.Database(database).ListCollections(ctx, bson.D{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := collectionsCursor.Close(ctx); err != nil {
			log.Warnw("failed to close collections cursor", "error", err)
		}
	}()
	collections := []bson.D{}
	if err := collectionsCursor.All(ctx, &collections); err != nil {
		return nil, err
	}
	names := []string{}
	for _, col := range collections {
		for _, v := range col {
			if v.Key == "name" {
				names = append(names, v.Value.(string))
			}
		}
	}
	return names, nil
}

// createIndexes creates the indexes for the collections in the MongoDB
// database. The unique indexes here are load-bearing: the find-or-create
// sequences for customers (by email) and orders (by payment-intent id) rely
// on a duplicate-key error to detect a concurrent insert, not on a pre-check.
func (ms *MongoStorage) createIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	// the 'email' field on customers must be unique
	customerEmailIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := ms.customers.Indexes().CreateOne(ctx, customerEmailIndex); err != nil {
		return fmt.Errorf("failed to create index on email for customers: %w", err)
	}
	// the 'stripeCustomerID' field on customers is unique once set; sparse
	// because it stays unset until the first remote call succeeds
	customerStripeIDIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "stripeCustomerID", Value: 1}},
		Options: options.Index().SetUnique(true).SetSparse(true),
	}
	if _, err := ms.customers.Indexes().CreateOne(ctx, customerStripeIDIndex); err != nil {
		return fmt.Errorf("failed to create index on stripeCustomerID for customers: %w", err)
	}
	// each subscription references exactly one remote subscription id
	subscriptionStripeIDIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "stripeSubscriptionID", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := ms.subscriptions.Indexes().CreateOne(ctx, subscriptionStripeIDIndex); err != nil {
		return fmt.Errorf("failed to create index on stripeSubscriptionID for subscriptions: %w", err)
	}
	// subscriptions are listed per customer
	subscriptionCustomerIndex := mongo.IndexModel{
		Keys: bson.D{{Key: "customerID", Value: 1}},
	}
	if _, err := ms.subscriptions.Indexes().CreateOne(ctx, subscriptionCustomerIndex); err != nil {
		return fmt.Errorf("failed to create index on customerID for subscriptions: %w", err)
	}
	// payments are deduplicated per remote invoice id on webhook redelivery
	paymentInvoiceIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "stripeInvoiceID", Value: 1}},
		Options: options.Index().SetUnique(true).SetSparse(true),
	}
	if _, err := ms.payments.Indexes().CreateOne(ctx, paymentInvoiceIndex); err != nil {
		return fmt.Errorf("failed to create index on stripeInvoiceID for payments: %w", err)
	}
	// the 'stripePaymentIntentID' field on orders is the idempotent-create key
	orderIntentIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "stripePaymentIntentID", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := ms.orders.Indexes().CreateOne(ctx, orderIntentIndex); err != nil {
		return fmt.Errorf("failed to create index on stripePaymentIntentID for orders: %w", err)
	}
	return nil
}

// dynamicUpdateDocument creates a BSON update document from a struct, including only non-zero fields.
// It uses reflection to iterate over the struct fields and create the update document.
// The struct fields must have a bson tag to be included in the update document.
// The _id field is skipped.
func dynamicUpdateDocument(item interface{}, alwaysUpdateTags []string) (bson.M, error) {
	val := reflect.ValueOf(item)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	if !val.IsValid() || val.Kind() != reflect.Struct {
		return nil, fmt.Errorf("input must be a valid struct")
	}
	update := bson.M{}
	typ := val.Type()
	// create a map for quick lookup
	alwaysUpdateMap := make(map[string]bool, len(alwaysUpdateTags))
	for _, tag := range alwaysUpdateTags {
		alwaysUpdateMap[tag] = true
	}
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		if !field.CanInterface() {
			continue
		}
		fieldType := typ.Field(i)
		tag := fieldType.Tag.Get("bson")
		if tag == "" || tag == "-" || tag == "_id" {
			continue
		}
		// strip bson tag options such as omitempty
		if idx := len(tag); idx > 0 {
			for j, r := range tag {
				if r == ',' {
					idx = j
					break
				}
			}
			tag = tag[:idx]
		}
		if tag == "_id" {
			continue
		}
		// check if the field should always be updated or is not the zero value
		_, alwaysUpdate := alwaysUpdateMap[tag]
		if alwaysUpdate || !reflect.DeepEqual(field.Interface(), reflect.Zero(field.Type()).Interface()) {
			update[tag] = field.Interface()
		}
	}
	return bson.M{"$set": update}, nil
}
