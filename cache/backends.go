package cache

import (
	"fmt"
	"time"

	"github.com/goliatone/go-entity-cache/internal/cacheinfra"
)

func init() {
	RegisterBackend("memory", newMemoryBackend)
	RegisterBackend("redis", newRedisBackend)
}

// newMemoryBackend maps Config.Arguments onto the sturdyc-backed region.
// Recognized arguments: capacity, num_shards, eviction_percentage,
// eviction_interval, missing_record_storage.
func newMemoryBackend(cfg Config) (Region, error) {
	mc := cacheinfra.DefaultMemoryConfig()
	mc.TTL = cfg.expiration()
	if mc.TTL == NoExpiration {
		mc.TTL = cacheinfra.NeverExpire
	}

	args := cfg.Arguments
	if v, ok, err := argInt(args, "capacity"); err != nil {
		return nil, err
	} else if ok {
		mc.Capacity = v
	}
	if v, ok, err := argInt(args, "num_shards"); err != nil {
		return nil, err
	} else if ok {
		mc.NumShards = v
	}
	if v, ok, err := argInt(args, "eviction_percentage"); err != nil {
		return nil, err
	} else if ok {
		mc.EvictionPercentage = v
	}
	if v, ok, err := argDuration(args, "eviction_interval"); err != nil {
		return nil, err
	} else if ok {
		mc.EvictionInterval = v
	}
	if v, ok, err := argBool(args, "missing_record_storage"); err != nil {
		return nil, err
	} else if ok {
		mc.MissingRecordStorage = v
	}

	return cacheinfra.NewMemoryRegion(mc)
}

// newRedisBackend maps Config.Arguments onto the go-redis region.
// Recognized arguments: addr, password, db, dial_timeout, read_timeout,
// write_timeout, pool_size, min_idle_conns.
func newRedisBackend(cfg Config) (Region, error) {
	rc := cacheinfra.DefaultRedisConfig()
	rc.TTL = cfg.expiration()
	if rc.TTL == NoExpiration {
		rc.TTL = 0 // redis semantics: zero TTL persists the key
	}

	args := cfg.Arguments
	if v, ok, err := argString(args, "addr"); err != nil {
		return nil, err
	} else if ok {
		rc.Addr = v
	}
	if v, ok, err := argString(args, "password"); err != nil {
		return nil, err
	} else if ok {
		rc.Password = v
	}
	if v, ok, err := argInt(args, "db"); err != nil {
		return nil, err
	} else if ok {
		rc.DB = v
	}
	if v, ok, err := argDuration(args, "dial_timeout"); err != nil {
		return nil, err
	} else if ok {
		rc.DialTimeout = v
	}
	if v, ok, err := argDuration(args, "read_timeout"); err != nil {
		return nil, err
	} else if ok {
		rc.ReadTimeout = v
	}
	if v, ok, err := argDuration(args, "write_timeout"); err != nil {
		return nil, err
	} else if ok {
		rc.WriteTimeout = v
	}
	if v, ok, err := argInt(args, "pool_size"); err != nil {
		return nil, err
	} else if ok {
		rc.PoolSize = v
	}
	if v, ok, err := argInt(args, "min_idle_conns"); err != nil {
		return nil, err
	} else if ok {
		rc.MinIdleConns = v
	}

	return cacheinfra.NewRedisRegion(rc)
}

func argInt(args map[string]any, key string) (int, bool, error) {
	raw, ok := args[key]
	if !ok {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case int:
		return v, true, nil
	case int64:
		return int(v), true, nil
	case float64:
		return int(v), true, nil
	default:
		return 0, false, &ConfigError{Field: "Arguments." + key, Message: fmt.Sprintf("expected integer, got %T", raw)}
	}
}

func argString(args map[string]any, key string) (string, bool, error) {
	raw, ok := args[key]
	if !ok {
		return "", false, nil
	}
	v, ok := raw.(string)
	if !ok {
		return "", false, &ConfigError{Field: "Arguments." + key, Message: fmt.Sprintf("expected string, got %T", raw)}
	}
	return v, true, nil
}

func argBool(args map[string]any, key string) (bool, bool, error) {
	raw, ok := args[key]
	if !ok {
		return false, false, nil
	}
	v, ok := raw.(bool)
	if !ok {
		return false, false, &ConfigError{Field: "Arguments." + key, Message: fmt.Sprintf("expected bool, got %T", raw)}
	}
	return v, true, nil
}

func argDuration(args map[string]any, key string) (time.Duration, bool, error) {
	raw, ok := args[key]
	if !ok {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case time.Duration:
		return v, true, nil
	case int:
		return time.Duration(v) * time.Second, true, nil
	case int64:
		return time.Duration(v) * time.Second, true, nil
	case float64:
		return time.Duration(v * float64(time.Second)), true, nil
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, false, &ConfigError{Field: "Arguments." + key, Message: "invalid duration: " + err.Error()}
		}
		return d, true, nil
	default:
		return 0, false, &ConfigError{Field: "Arguments." + key, Message: fmt.Sprintf("expected duration, got %T", raw)}
	}
}
