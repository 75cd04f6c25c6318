package cache

import (
	"context"
)

// Tiered consults memory first and redis second. A redis hit is copied into
// memory with its original timestamp so it expires on the same schedule.
type Tiered struct {
	mem    *MemoryCache
	remote *RedisCache
}

func NewTiered(mem *MemoryCache, remote *RedisCache) *Tiered {
	return &Tiered{mem: mem, remote: remote}
}

func (t *Tiered) Lookup(ctx context.Context, prompt string) (string, bool) {
	if resp, ok := t.mem.Lookup(ctx, prompt); ok {
		return resp, true
	}
	e, ok := t.remote.lookupEntry(ctx, Normalize(prompt))
	if !ok {
		return "", false
	}
	t.mem.admit(ctx, e)
	return e.Response, true
}

func (t *Tiered) Store(ctx context.Context, prompt, response string) {
	t.mem.Store(ctx, prompt, response)
	t.remote.Store(ctx, prompt, response)
}

func (t *Tiered) Sweep(ctx context.Context) int {
	return t.mem.Sweep(ctx) + t.remote.Sweep(ctx)
}

func (t *Tiered) Len() int { return t.mem.Len() }
