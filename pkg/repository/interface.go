package repository

import (
	"context"

	"github.com/ammar0144/ormresource/pkg/db"
)

// Repository defines the generic repository interface
type Repository[T any] interface {
	// Queries (Read Operations - Cache-First)
	FindByID(ctx context.Context, id interface{}) (*T, error)
	FindAll(ctx context.Context) ([]T, error)
	FindWhere(ctx context.Context, criteria *db.Criteria) ([]T, error)
	First(ctx context.Context, criteria *db.Criteria) (*T, error)
	Count(ctx context.Context, criteria *db.Criteria) (int64, error)
	Exists(ctx context.Context, id interface{}) (bool, error)

	// Preload returns a repository whose reads also load associations
	Preload(associations ...string) Repository[T]

	// Commands (Write Operations - Relationship-Aware Cache Invalidation)
	Create(ctx context.Context, entity *T) error
	Update(ctx context.Context, entity *T) error
	Delete(ctx context.Context, id interface{}) (bool, error)

	// Batch Operations
	CreateBatch(ctx context.Context, entities []*T) error
	UpdateBatch(ctx context.Context, entities []*T) error

	// Cache Management
	InvalidateCache(ctx context.Context) error
	WarmCache(ctx context.Context) error
}
