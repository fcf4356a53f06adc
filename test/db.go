// Package test provides shared helpers to spin up the service dependencies
// in containers for integration tests.
package test

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	// MongoPort is the port exposed by the MongoDB test container
	MongoPort = 27017
	// MongoImage is the MongoDB image used for tests
	MongoImage = "mongo:7"
)

// StartMongoContainer starts a MongoDB container for testing
func StartMongoContainer(ctx context.Context) (testcontainers.Container, error) {
	exposedPort := fmt.Sprintf("%d/tcp", MongoPort)
	return testcontainers.GenericContainer(ctx,
		testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        MongoImage,
				ExposedPorts: []string{exposedPort},
				WaitingFor: wait.ForAll(
					wait.ForListeningPort(nat.Port(exposedPort)),
					wait.ForLog("Waiting for connections"),
				).WithDeadline(time.Minute),
			},
			Started: true,
		})
}

// RandomDatabaseName returns a random database name, so parallel test
// packages sharing a container never collide.
func RandomDatabaseName() string {
	return fmt.Sprintf("billingtest%d", rand.Int63())
}
