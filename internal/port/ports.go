// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
)

// OwnerDirectory answers whether a customer exists in the customer registry.
// A false result with a nil error means the owner is absent; an error means
// the directory could not be consulted.
type OwnerDirectory interface {
	Exists(ctx context.Context, ownerID string) (bool, error)
}

// Locker serializes critical sections that share a key.
// fn runs while the lock for key is held; the lock is released when fn returns.
// Locks that can expire attach a Lease to the ctx passed to fn.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Lease reports whether a lock granted by a Locker is still held.
type Lease func(ctx context.Context) error

type leaseKey struct{}

// WithLease attaches the lease of the lock currently held to ctx.
func WithLease(ctx context.Context, lease Lease) context.Context {
	return context.WithValue(ctx, leaseKey{}, lease)
}

// CheckLease returns an error when ctx carries a lease that is no longer
// held. Locks that cannot expire attach no lease.
func CheckLease(ctx context.Context) error {
	lease, ok := ctx.Value(leaseKey{}).(Lease)
	if !ok {
		return nil
	}
	return lease(ctx)
}
