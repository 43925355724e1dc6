package di

import (
	"log/slog"

	"github.com/goliatone/go-entity-cache/cache"
	"github.com/goliatone/go-entity-cache/repositorycache"
	repository "github.com/goliatone/go-repository-bun"
)

// Container provides dependency injection for cache related components.
// It manages singleton instances of the cache manager and key serializer,
// and provides factory methods for creating cached repositories.
type Container struct {
	manager       *cache.Manager
	keySerializer cache.KeySerializer
	config        cache.Config
}

// ContainerOption adjusts a Container at construction time.
type ContainerOption func(*containerOptions)

type containerOptions struct {
	logger     *slog.Logger
	serializer cache.KeySerializer
}

// WithLogger routes cache degradation logging through the provided logger.
func WithLogger(log *slog.Logger) ContainerOption {
	return func(o *containerOptions) { o.logger = log }
}

// WithKeySerializer replaces the default key serializer used for list keys
// and singleflight slots.
func WithKeySerializer(serializer cache.KeySerializer) ContainerOption {
	return func(o *containerOptions) { o.serializer = serializer }
}

// NewContainer validates the configuration and wires the cache manager
// with the default key serializer. An invalid configuration fails here;
// a backend that cannot be constructed does not (the manager degrades to
// uncached operation on first use instead).
func NewContainer(config cache.Config, opts ...ContainerOption) (*Container, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var o containerOptions
	for _, opt := range opts {
		opt(&o)
	}

	var managerOpts []cache.ManagerOption
	if o.logger != nil {
		managerOpts = append(managerOpts, cache.WithLogger(o.logger))
	}

	serializer := o.serializer
	if serializer == nil {
		serializer = cache.NewDefaultKeySerializer()
	}

	return &Container{
		manager:       cache.New(config, managerOpts...),
		keySerializer: serializer,
		config:        config,
	}, nil
}

// NewContainerWithDefaults creates a container over the default enabled
// in-memory configuration.
func NewContainerWithDefaults(opts ...ContainerOption) (*Container, error) {
	return NewContainer(cache.DefaultConfig(), opts...)
}

// Manager returns the singleton cache manager instance. This allows
// access to the entity and list operations for advanced use cases.
func (c *Container) Manager() *cache.Manager {
	return c.manager
}

// KeySerializer returns the singleton key serializer instance.
func (c *Container) KeySerializer() cache.KeySerializer {
	return c.keySerializer
}

// Config returns a copy of the cache configuration used by this container.
func (c *Container) Config() cache.Config {
	return c.config
}

// NewCachedRepository creates a cached repository that wraps the provided
// base repository with the container's manager and key serializer.
//
// Since Go methods cannot have type parameters, this is provided as a
// package-level function.
// Example: NewCachedRepository[User](container, baseUserRepository)
func NewCachedRepository[T any](container *Container, base repository.Repository[T], opts ...repositorycache.Option[T]) *repositorycache.CachedRepository[T] {
	return repositorycache.New(base, container.manager, container.keySerializer, opts...)
}
