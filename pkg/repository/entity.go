package repository

import "time"

// CacheTTLProvider lets an entity choose how long its query results stay cached.
// It overrides the entity manager's query cache TTL.
//
// Example:
//
//	func (Product) CacheTTL() time.Duration { return 30 * time.Second }
type CacheTTLProvider interface {
	CacheTTL() time.Duration
}

// Uncacheable entities are always read from the database
type Uncacheable interface {
	SkipQueryCache() bool
}
