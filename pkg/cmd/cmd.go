// Package cmd provides common initialization functions for command-line
// applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/relaycrm/automation/pkg/actions/log"
	"github.com/relaycrm/automation/pkg/actions/webhook"
	"github.com/relaycrm/automation/pkg/cache"
	"github.com/relaycrm/automation/pkg/channels/gochannel"
	"github.com/relaycrm/automation/pkg/eventbus"
	"github.com/relaycrm/automation/pkg/persistence"
	"github.com/relaycrm/automation/pkg/persistence/memory"
	"github.com/relaycrm/automation/pkg/persistence/postgresql"
	"github.com/relaycrm/automation/pkg/registry"
)

// NewPersistence builds the persistence layer for the given database URL. An
// empty URL or the "memory://" scheme yields the in-process store for local
// development.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	if databaseURL == "" || strings.HasPrefix(databaseURL, "memory://") {
		return memory.NewStore()
	}

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	if err != nil {
		panic(fmt.Errorf("failed to initialize persistence: %w", err))
	}

	return p
}

// NewCache builds the workflow cache. An empty URL yields a process-local
// cache.
func NewCache(ctx context.Context, redisURL string) cache.Cache {
	if redisURL == "" {
		return cache.NewMemoryCache()
	}

	c, err := cache.NewRedisCache(ctx, redisURL)
	if err != nil {
		panic(fmt.Errorf("failed to initialize cache: %w", err))
	}

	return c
}

// NewEventBus builds the execution event bus.
func NewEventBus(logger *slog.Logger) eventbus.EventBus {
	pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
	if err != nil {
		panic(fmt.Errorf("failed to create event channel: %w", err))
	}

	return eventbus.NewWatermillEventBus(pub, sub)
}

// NewRegistry builds the action registry with the built-in action types.
func NewRegistry(logger *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(logger)

	reg.RegisterAction(log.NewActionFactory())
	reg.RegisterAction(webhook.NewActionFactory())

	return reg
}
