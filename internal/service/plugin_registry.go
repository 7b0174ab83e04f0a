package service

import (
	"context"
	"fmt"
	"sync"

	"canvasflow/internal/domain"
)

// ─────────────────────────────────────────────────────────────
// Block Plugin Registry: per-kind lifecycle hooks
// ─────────────────────────────────────────────────────────────

// BlockPlugin hooks into the lifecycle of one block kind.
type BlockPlugin interface {
	BlockType() domain.BlockType
	// OnCreate is called after a block of this type is created.
	OnCreate(ctx context.Context, b *domain.Block) error
	// OnUpdate is called after a block's content or geometry changed.
	OnUpdate(ctx context.Context, b *domain.Block) error
	// OnDelete is called before a block of this type is deleted.
	OnDelete(ctx context.Context, b *domain.Block) error
}

// PluginRegistry dispatches lifecycle events to the plugin of a kind.
type PluginRegistry struct {
	mu      sync.RWMutex
	plugins map[domain.BlockType]BlockPlugin
}

func NewPluginRegistry() *PluginRegistry {
	return &PluginRegistry{plugins: make(map[domain.BlockType]BlockPlugin)}
}

// Register adds a plugin. Panics on duplicate registration.
func (r *PluginRegistry) Register(p BlockPlugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := p.BlockType()
	if _, exists := r.plugins[t]; exists {
		panic(fmt.Sprintf("plugin registry: duplicate registration for block type %q", t))
	}
	r.plugins[t] = p
}

func (r *PluginRegistry) lookup(t domain.BlockType) (BlockPlugin, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[t]
	return p, ok
}

func (r *PluginRegistry) OnCreate(ctx context.Context, b *domain.Block) error {
	if p, ok := r.lookup(b.Type); ok {
		return p.OnCreate(ctx, b)
	}
	return nil
}

func (r *PluginRegistry) OnUpdate(ctx context.Context, b *domain.Block) error {
	if p, ok := r.lookup(b.Type); ok {
		return p.OnUpdate(ctx, b)
	}
	return nil
}

func (r *PluginRegistry) OnDelete(ctx context.Context, b *domain.Block) error {
	if p, ok := r.lookup(b.Type); ok {
		return p.OnDelete(ctx, b)
	}
	return nil
}
