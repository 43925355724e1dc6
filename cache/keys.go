package cache

import "strings"

// initialVersion is the token reported for a model that has never been
// bumped in this process or in the region.
const initialVersion = "0"

// KeyOption adjusts how a logical key is built.
type KeyOption func(*keyOptions)

type keyOptions struct {
	bindGroup string
}

// WithBindGroup scopes a key to a named database bind. Deployments that
// route models across shards or replicas use it to keep entries from one
// bind from being served for another; single-database deployments can
// ignore it.
func WithBindGroup(group string) KeyOption {
	return func(o *keyOptions) { o.bindGroup = group }
}

func applyKeyOptions(opts []KeyOption) keyOptions {
	var o keyOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// entityKey builds "{prefix}{model}:{bind_group}:get:{id}", omitting the
// bind group segment when none is set.
func (c Config) entityKey(model, id string, o keyOptions) string {
	var b strings.Builder
	b.Grow(len(c.prefix()) + len(model) + len(o.bindGroup) + len(id) + 6)
	b.WriteString(c.prefix())
	b.WriteString(model)
	if o.bindGroup != "" {
		b.WriteByte(':')
		b.WriteString(o.bindGroup)
	}
	b.WriteString(":get:")
	b.WriteString(id)
	return b.String()
}

// versionKey builds "{prefix}{model}:version".
func (c Config) versionKey(model string) string {
	return c.prefix() + model + ":version"
}

// listKey prefixes a caller-constructed list key. List keys are otherwise
// opaque to the manager; callers embed filter parameters and the model's
// current version token so a bump orphans every previously cached list.
func (c Config) listKey(key string) string {
	return c.prefix() + key
}
