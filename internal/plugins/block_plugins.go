package plugins

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"canvasflow/internal/canvas"
	"canvasflow/internal/domain"
	"canvasflow/internal/graph"
	"canvasflow/internal/service"
	"canvasflow/internal/watch"
)

// ─────────────────────────────────────────────────────────────
// Code Block Plugin
// ─────────────────────────────────────────────────────────────

// FileWatcher follows mirror files for outside edits.
type FileWatcher interface {
	Watch(blockID, path string) error
	Unwatch(blockID string)
}

// Unscheduler drops every cron schedule of a block.
type Unscheduler interface {
	Unschedule(ctx context.Context, blockID string) error
}

// codePlugin keeps a code block's frames, mirror file, session results and
// schedules in step with the block itself.
type codePlugin struct {
	canvas    *canvas.Canvas
	results   domain.ResultStore
	schedules Unscheduler
	mirror    *watch.Mirror
	watcher   FileWatcher
}

// NewCodePlugin creates the code block plugin. mirror and watcher may be
// nil, in which case source files are not mirrored.
func NewCodePlugin(c *canvas.Canvas, results domain.ResultStore, schedules Unscheduler, mirror *watch.Mirror, watcher FileWatcher) service.BlockPlugin {
	return &codePlugin{canvas: c, results: results, schedules: schedules, mirror: mirror, watcher: watcher}
}

func (p *codePlugin) BlockType() domain.BlockType { return domain.BlockTypeCode }

func (p *codePlugin) OnCreate(ctx context.Context, b *domain.Block) error {
	return p.sync(b)
}

func (p *codePlugin) OnUpdate(ctx context.Context, b *domain.Block) error {
	return p.sync(b)
}

func (p *codePlugin) sync(b *domain.Block) error {
	if p.mirror != nil {
		path, err := p.mirror.Write(b)
		if err != nil {
			return fmt.Errorf("code plugin: %w", err)
		}
		if path != b.FilePath {
			b.FilePath = path
			if err := p.canvas.UpdateBlock(b); err != nil {
				return fmt.Errorf("code plugin: %w", err)
			}
		}
		if p.watcher != nil {
			if err := p.watcher.Watch(b.ID, path); err != nil {
				log.Printf("[Watch] %s: %v", b.ID, err)
			}
		}
	}
	if _, err := graph.Reconcile(p.canvas, b.ID); err != nil {
		return fmt.Errorf("code plugin: %w", err)
	}
	// Reconcile may have grouped the block.
	fresh, err := p.canvas.Block(b.ID)
	if err != nil {
		return fmt.Errorf("code plugin: %w", err)
	}
	if fresh != nil {
		*b = *fresh
	}
	return nil
}

func (p *codePlugin) OnDelete(ctx context.Context, b *domain.Block) error {
	if err := p.canvas.RemoveBlockGraph(b.ID); err != nil {
		return fmt.Errorf("code plugin: %w", err)
	}
	if err := p.results.ClearBlock(b.ID); err != nil {
		return fmt.Errorf("code plugin: clear results: %w", err)
	}
	if p.schedules != nil {
		if err := p.schedules.Unschedule(ctx, b.ID); err != nil {
			return fmt.Errorf("code plugin: %w", err)
		}
	}
	if p.watcher != nil {
		p.watcher.Unwatch(b.ID)
	}
	if p.mirror != nil {
		return p.mirror.Remove(b)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────
// Database Block Plugin
// ─────────────────────────────────────────────────────────────

// ConnectionLookup finds a stored database connection.
type ConnectionLookup interface {
	GetConnection(id string) (*domain.DatabaseConnection, error)
}

// databasePlugin checks that a database block holds a well-formed query
// against a known connection.
type databasePlugin struct {
	canvas      *canvas.Canvas
	connections ConnectionLookup
}

func NewDatabasePlugin(c *canvas.Canvas, connections ConnectionLookup) service.BlockPlugin {
	return &databasePlugin{canvas: c, connections: connections}
}

func (p *databasePlugin) BlockType() domain.BlockType { return domain.BlockTypeDatabase }

func (p *databasePlugin) OnCreate(ctx context.Context, b *domain.Block) error {
	if b.Content == "" {
		data, err := json.Marshal(domain.DatabaseQuery{})
		if err != nil {
			return err
		}
		b.Content = string(data)
		return p.canvas.UpdateBlock(b)
	}
	return p.validate(b)
}

func (p *databasePlugin) OnUpdate(ctx context.Context, b *domain.Block) error {
	return p.validate(b)
}

func (p *databasePlugin) OnDelete(context.Context, *domain.Block) error { return nil }

func (p *databasePlugin) validate(b *domain.Block) error {
	var q domain.DatabaseQuery
	if err := json.Unmarshal([]byte(b.Content), &q); err != nil {
		return fmt.Errorf("database plugin: block %s: %w", b.ID, err)
	}
	if q.Limit < 0 {
		return fmt.Errorf("database plugin: block %s: negative limit", b.ID)
	}
	if q.ConnectionID == "" {
		return nil
	}
	if _, err := p.connections.GetConnection(q.ConnectionID); err != nil {
		return fmt.Errorf("database plugin: block %s: %w", b.ID, err)
	}
	return nil
}
