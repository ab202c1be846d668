// Package cache memoizes read-mostly workflow definitions. Entries are
// invalidated on every definition mutation, so staleness is bounded by the
// TTL only for readers racing a concurrent write.
package cache

import (
	"context"
	"time"
)

// Cache is a small JSON-value cache. Get reports a miss with (false, nil);
// errors are reserved for backend failures.
type Cache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Cache keys used by the workflow service.
const (
	ActiveWorkflowsKey = "workflows:active"
	workflowKeyPrefix  = "workflow:"
)

// WorkflowKey returns the cache key for a single workflow definition.
func WorkflowKey(id string) string {
	return workflowKeyPrefix + id
}
