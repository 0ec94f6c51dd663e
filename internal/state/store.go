package state

import "context"

// Store is the narrow persistence contract the engine depends on. The sqlite
// implementation backs production; tests use an in-memory map.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) (map[string]string, error)
	Close() error
}
