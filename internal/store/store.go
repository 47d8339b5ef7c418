// Package store provides ACL binding storage for the authorization core
package store

import (
	"context"

	"github.com/broker-authz/go-core/pkg/types"
)

// ChangeListener is invoked after a mutation batch commits, with the epoch
// the commit produced. Listeners must not block; slow work belongs in the
// listener's own goroutine.
type ChangeListener func(epoch uint64)

// Store is the single source of truth for ACL bindings. The authorization
// engine owns no persisted state of its own; it holds only caches that the
// store's mutation epoch invalidates.
//
// Implementations must provide:
//   - idempotent AddBindings: bindings already present are silently skipped
//     and only the newly stored ones are returned
//   - filterable RemoveBindings returning exactly the bindings removed
//   - atomic batch visibility: a reader never observes part of a batch
//   - a strictly increasing Epoch, bumped once per effective mutation batch
type Store interface {
	// FindBindings returns all stored bindings the filter selects. With a
	// MATCH pattern filter this is the authorization hot path and must not
	// scan all bindings of the resource type.
	FindBindings(ctx context.Context, filter types.AclBindingFilter) ([]types.AclBinding, error)

	// AddBindings stores the given bindings and returns those actually added
	AddBindings(ctx context.Context, bindings []types.AclBinding) ([]types.AclBinding, error)

	// RemoveBindings deletes every binding the filter selects and returns them
	RemoveBindings(ctx context.Context, filter types.AclBindingFilter) ([]types.AclBinding, error)

	// Epoch returns the current mutation epoch
	Epoch() uint64

	// OnChange registers a listener invoked after each committed mutation
	OnChange(listener ChangeListener)

	// Close releases any resources held by the store
	Close() error
}
