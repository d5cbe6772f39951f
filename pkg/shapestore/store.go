// Package shapestore keeps class shapes in Redis so that loaders in separate
// processes can share one analyzed view of a deployment. Shapes are stored as
// JSON under <prefix><loader>:<class>.
package shapestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/itsneelabh/weave/pkg/hierarchy"
	"github.com/itsneelabh/weave/pkg/logger"
)

// DefaultPrefix is used when no key prefix is configured.
const DefaultPrefix = "weave:shape:"

// Store reads and writes class shapes.
type Store struct {
	client *redis.Client
	prefix string
	log    logger.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// New connects to redisURL and verifies the connection.
func New(redisURL, prefix string, opts ...Option) (*Store, error) {
	ro, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}
	client := redis.NewClient(ro)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewWithClient(client, prefix, opts...), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, prefix string, opts ...Option) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	s := &Store{client: client, prefix: prefix, log: logger.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(loader, class string) string {
	return s.prefix + loader + ":" + class
}

// Put stores shape for loader, replacing any previous version.
func (s *Store) Put(ctx context.Context, loader string, shape *hierarchy.ClassShape) error {
	data, err := json.Marshal(shape)
	if err != nil {
		return fmt.Errorf("failed to serialize shape %s: %w", shape.Name, err)
	}
	if err := s.client.Set(ctx, s.key(loader, shape.Name), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store shape %s: %w", shape.Name, err)
	}
	return nil
}

// Import stores many shapes in one round trip.
func (s *Store) Import(ctx context.Context, loader string, shapes ...*hierarchy.ClassShape) error {
	pipe := s.client.TxPipeline()
	for _, sh := range shapes {
		data, err := json.Marshal(sh)
		if err != nil {
			return fmt.Errorf("failed to serialize shape %s: %w", sh.Name, err)
		}
		pipe.Set(ctx, s.key(loader, sh.Name), data, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to import shapes: %w", err)
	}
	s.log.Info("Shapes imported", "loader", loader, "count", len(shapes))
	return nil
}

// Get returns the stored shape, or hierarchy.ErrShapeNotFound.
func (s *Store) Get(ctx context.Context, loader, class string) (*hierarchy.ClassShape, error) {
	data, err := s.client.Get(ctx, s.key(loader, class)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, hierarchy.ErrShapeNotFound
		}
		return nil, fmt.Errorf("failed to get shape %s: %w", class, err)
	}
	var shape hierarchy.ClassShape
	if err := json.Unmarshal(data, &shape); err != nil {
		s.log.Warn("Stored shape is malformed", "loader", loader, "class", class, "error", err)
		return nil, fmt.Errorf("malformed shape %s: %w", class, err)
	}
	return &shape, nil
}

// Delete removes a stored shape.
func (s *Store) Delete(ctx context.Context, loader, class string) error {
	if err := s.client.Del(ctx, s.key(loader, class)).Err(); err != nil {
		return fmt.Errorf("failed to delete shape %s: %w", class, err)
	}
	return nil
}

// List returns the sorted class names stored for loader.
func (s *Store) List(ctx context.Context, loader string) ([]string, error) {
	match := s.key(loader, "*")
	trim := s.key(loader, "")
	var names []string
	iter := s.client.Scan(ctx, 0, match, 100).Iterator()
	for iter.Next(ctx) {
		names = append(names, strings.TrimPrefix(iter.Val(), trim))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan shapes: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// Source returns a hierarchy.ShapeSource reading loader's shapes.
func (s *Store) Source(loader string) hierarchy.ShapeSource {
	return hierarchy.SourceFunc(func(ctx context.Context, name string) (*hierarchy.ClassShape, error) {
		return s.Get(ctx, loader, name)
	})
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}
