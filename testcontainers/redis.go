// Package testcontainers starts throwaway Redis containers for integration
// tests. Docker must be available; tests run only when HARVEST_CONTAINER_TESTS
// is set to 1.
package testcontainers

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	defaultRedisPort = "6379"
	startupTimeout   = time.Minute
	enableEnv        = "HARVEST_CONTAINER_TESTS"
)

// RedisContainer is a running redis:7 container.
type RedisContainer struct {
	testcontainers.Container
	Host string
	Port int
}

// NewRedisContainer starts a container and waits until Redis accepts
// connections.
func NewRedisContainer(ctx context.Context) (*RedisContainer, error) {
	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{defaultRedisPort + "/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(startupTimeout),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("start redis container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("container host: %w", err)
	}

	mappedPort, err := container.MappedPort(ctx, defaultRedisPort)
	if err != nil {
		return nil, fmt.Errorf("container port: %w", err)
	}

	port, err := strconv.Atoi(mappedPort.Port())
	if err != nil {
		return nil, fmt.Errorf("parse port: %w", err)
	}

	ans := RedisContainer{
		Container: container,
		Host:      host,
		Port:      port,
	}

	return &ans, nil
}

// URL returns the redis:// url of the container.
func (c *RedisContainer) URL() string {
	return fmt.Sprintf("redis://%s:%d/0", c.Host, c.Port)
}

// Redis starts a container for t and terminates it on cleanup. The test is
// skipped unless container tests are enabled.
func Redis(t *testing.T) *RedisContainer {
	t.Helper()

	if os.Getenv(enableEnv) != "1" {
		t.Skipf("set %s=1 to run tests against a redis container", enableEnv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	c, err := NewRedisContainer(ctx)
	if err != nil {
		t.Fatalf("redis container: %v", err)
	}

	t.Cleanup(func() {
		if err := c.Terminate(context.Background()); err != nil {
			t.Errorf("terminate redis container: %v", err)
		}
	})

	return c
}
