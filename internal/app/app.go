// Package app wires storage, the canvas, executors and services together
// for the CLI and the MCP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"canvasflow/internal/canvas"
	"canvasflow/internal/config"
	"canvasflow/internal/domain"
	"canvasflow/internal/eventbus"
	"canvasflow/internal/executor"
	mcpserver "canvasflow/internal/mcp"
	"canvasflow/internal/plugins"
	"canvasflow/internal/protocol"
	"canvasflow/internal/secret"
	"canvasflow/internal/service"
	"canvasflow/internal/storage"
	"canvasflow/internal/telemetry"
	"canvasflow/internal/watch"
)

// Options picks the long-running pieces a command needs.
type Options struct {
	// Watch follows mirror files and feeds outside edits back into code
	// blocks.
	Watch bool
	// Cron starts the schedule runner.
	Cron bool
	// Emitter receives UI events. Defaults to a log emitter.
	Emitter service.EventEmitter
}

// App holds the wired services of one canvasflow process. Each App is one
// session: results from earlier processes are cleared on start.
type App struct {
	Config *config.Config

	DB        *storage.DB
	Canvas    *canvas.Canvas
	Results   *storage.ResultStore
	Executor  *executor.Executor
	Emitter   service.EventEmitter
	Blocks    *service.BlockService
	Notebooks *service.NotebookService
	Runs      *service.RunService
	Schedules *service.ScheduleService
	Database  *service.DatabaseService

	watcher  *watch.Watcher
	shutdown func(context.Context) error
}

// New opens the database and wires every service.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	db, err := storage.New(cfg.DBPath, cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a := &App{Config: cfg, DB: db, Emitter: opts.Emitter}
	if a.Emitter == nil {
		a.Emitter = service.LogEmitter{}
	}
	if err := a.wire(ctx, opts); err != nil {
		a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context, opts Options) error {
	cfg := a.Config

	eventbus.Use(eventbus.New())
	shutdown, err := telemetry.Setup(cfg.Telemetry.Endpoint, cfg.Telemetry.Service)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	a.shutdown = shutdown

	results, err := storage.NewResultStore(a.DB, cfg.ResultCompressThreshold)
	if err != nil {
		return err
	}
	if err := results.ClearAll(); err != nil {
		return fmt.Errorf("clear session results: %w", err)
	}
	a.Results = results

	secrets, err := secret.New(cfg.SecretBackend)
	if err != nil {
		return err
	}
	dbConns := storage.NewDBConnectionStore(a.DB)
	a.Database = service.NewDatabaseService(dbConns, secrets)

	a.Canvas = canvas.New(a.DB, cfg.CanvasLayout())
	a.Canvas.Variants().Register(canvas.NewDatabaseVariant(a.Database))

	a.Executor = NewExecutor(cfg)
	transport, err := a.transport()
	if err != nil {
		return err
	}
	a.Runs = service.NewRunService(a.Canvas, results, transport, a.Executor, a.Emitter, cfg.RevertDelay)
	a.Schedules = service.NewScheduleService(storage.NewScheduleStore(a.DB), a.Runs, a.Emitter)

	var fw plugins.FileWatcher
	if opts.Watch {
		w, err := watch.NewWatcher(200*time.Millisecond, a.onFileChange)
		if err != nil {
			return err
		}
		a.watcher = w
		fw = w
	}

	registry := service.NewPluginRegistry()
	registry.Register(plugins.NewCodePlugin(a.Canvas, results, a.Schedules, watch.NewMirror(a.DB.DataDir()), fw))
	registry.Register(plugins.NewDatabasePlugin(a.Canvas, dbConns))

	a.Blocks = service.NewBlockService(a.Canvas, registry, a.Emitter)
	a.Notebooks = service.NewNotebookService(storage.NewNotebookStore(a.DB), a.Blocks, a.Canvas, a.DB.DataDir(), a.Emitter)

	if opts.Watch {
		if err := a.watchExisting(); err != nil {
			return err
		}
	}
	if opts.Cron {
		a.Schedules.Restart(ctx)
	}
	return nil
}

// NewExecutor builds the sandboxed runtimes with the configured CDNs.
func NewExecutor(cfg *config.Config) *executor.Executor {
	return executor.New(executor.Options{
		JavaScriptCDN: cfg.CDN.JavaScript,
		PythonCDN:     cfg.CDN.Python,
		Loader:        executor.NewHTTPLoader(30 * time.Second),
	})
}

func (a *App) transport() (protocol.Transport, error) {
	switch a.Config.Executor.Mode {
	case config.ExecutorInProcess:
		return &protocol.InProcessTransport{Worker: protocol.NewWorker(a.Executor)}, nil
	default:
		bin := a.Config.Executor.Binary
		if bin == "" {
			self, err := os.Executable()
			if err != nil {
				return nil, fmt.Errorf("locate executor binary: %w", err)
			}
			return &protocol.ProcessTransport{Binary: self, Args: []string{"executor"}}, nil
		}
		return &protocol.ProcessTransport{Binary: bin}, nil
	}
}

func (a *App) onFileChange(blockID, content string) {
	if err := a.Blocks.SyncFromFile(context.Background(), blockID, content); err != nil {
		log.Printf("[Watch] sync %s: %v", blockID, err)
	}
}

// watchExisting starts watching the mirror files of code blocks that
// already exist.
func (a *App) watchExisting() error {
	blocks, err := a.Canvas.Blocks().ListBlocksByType(domain.BlockTypeCode)
	if err != nil {
		return err
	}
	for i := range blocks {
		b := blocks[i]
		if b.FilePath == "" {
			continue
		}
		if err := a.watcher.Watch(b.ID, b.FilePath); err != nil {
			log.Printf("[Watch] %s: %v", b.ID, err)
		}
	}
	return nil
}

// MCP returns an MCP server over this app's services.
func (a *App) MCP() *mcpserver.Server {
	return mcpserver.New(mcpserver.Deps{
		Emitter:   a.Emitter,
		Layout:    a.Canvas.Layout(),
		Notebooks: a.Notebooks,
		Blocks:    a.Blocks,
		Runs:      a.Runs,
		Schedules: a.Schedules,
		Database:  a.Database,
		Results:   a.Results,
	})
}

// Close waits for scheduled runs and releases everything New opened.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Schedules != nil {
		a.Schedules.Stop()
		a.Schedules.WaitRunning(ctx)
	}
	if a.watcher != nil {
		errs = append(errs, a.watcher.Close())
	}
	if a.Database != nil {
		a.Database.Close()
	}
	if a.shutdown != nil {
		errs = append(errs, a.shutdown(ctx))
	}
	eventbus.Use(nil)
	errs = append(errs, a.DB.Close())
	return errors.Join(errs...)
}
