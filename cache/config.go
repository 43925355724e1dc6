package cache

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// NoExpiration disables expiration for cached payloads. Backends translate
// it to their own "keep forever" representation.
const NoExpiration time.Duration = -1

// DefaultKeyPrefix is prepended to every logical key the manager builds.
const DefaultKeyPrefix = "aa:"

// DefaultExpiration is applied when a Config does not set Expiration.
const DefaultExpiration = 5 * time.Minute

// SerializerFn converts an entity into an opaque cache payload.
type SerializerFn func(entity any) ([]byte, error)

// DeserializerFn decodes a cache payload into dest, which must be a pointer
// to the target entity type.
type DeserializerFn func(data []byte, dest any) error

// Config holds the immutable settings for a Manager. Construct it once at
// startup; the manager never mutates it.
type Config struct {
	// Backend names a registered region constructor ("memory", "redis", or
	// anything added through RegisterBackend). Ignored when RegionFactory
	// is set.
	Backend string

	// Expiration is the default TTL for cached payloads. Use NoExpiration
	// to keep entries until the backend evicts them. Zero means
	// DefaultExpiration.
	Expiration time.Duration

	// Arguments carries backend-specific construction parameters, e.g.
	// {"addr": "localhost:6379"} for redis or {"capacity": 50000} for the
	// in-memory backend.
	Arguments map[string]any

	// KeyPrefix namespaces every key the manager writes. Defaults to
	// DefaultKeyPrefix.
	KeyPrefix string

	// Enabled turns caching on. When false the manager binds to a
	// NullRegion and every operation becomes a miss or a no-op.
	Enabled bool

	// Serializer and Deserializer override the default JSON entity codec.
	// Either may be nil to keep the default for that direction.
	Serializer   SerializerFn
	Deserializer DeserializerFn

	// RegionFactory, when set, is called instead of the backend registry.
	// A factory error degrades the manager to a NullRegion, it never fails
	// startup.
	RegionFactory RegionFactory
}

// DefaultConfig returns an enabled in-memory configuration.
func DefaultConfig() Config {
	return Config{
		Backend:    "memory",
		Expiration: DefaultExpiration,
		KeyPrefix:  DefaultKeyPrefix,
		Enabled:    true,
	}
}

// Validate checks the configuration. A RegionFactory makes the Backend
// field optional since the registry is bypassed.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Backend,
			validation.Required.When(c.RegionFactory == nil).Error("backend is required without a region factory")),
		validation.Field(&c.Expiration,
			validation.Min(NoExpiration).Error("expiration must be a duration or NoExpiration")),
	)
}

// expiration resolves the effective default TTL.
func (c Config) expiration() time.Duration {
	if c.Expiration == 0 {
		return DefaultExpiration
	}
	return c.Expiration
}

// prefix resolves the effective key prefix.
func (c Config) prefix() string {
	if c.KeyPrefix == "" {
		return DefaultKeyPrefix
	}
	return c.KeyPrefix
}
