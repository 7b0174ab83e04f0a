// Package cli implements the canvasflow command line.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"canvasflow/internal/app"
	"canvasflow/internal/config"
)

var configPath string

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "canvasflow",
	Short: "canvasflow - a headless canvas notebook with wired code blocks",
	Long: `canvasflow keeps pages of canvas objects in a local SQLite database.
Connectors wire lines of code blocks to each other and to other objects;
running a block feeds its inputs in, executes it in a sandbox, and writes
its outputs back onto the canvas.

Commands:
  mcp         Serve the canvas to agents over MCP (stdio)
  run         Run code blocks
  format      Pretty-print a code block
  frames      Show a code block's frames and resolved connectors
  watch       Run schedules and follow mirror files until interrupted
  init        Create a config file interactively

Use "canvasflow [command] --help" for more information about a command.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return RootCmd.Execute()
}

func init() {
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ~/.canvasflow/config.yaml then ./.canvasflow/config.yaml)")

	RootCmd.AddCommand(mcpCmd)
	RootCmd.AddCommand(runCmd)
	RootCmd.AddCommand(formatCmd)
	RootCmd.AddCommand(framesCmd)
	RootCmd.AddCommand(watchCmd)
	RootCmd.AddCommand(initCmd)
	RootCmd.AddCommand(executorCmd)
}

func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFromFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func openApp(ctx context.Context, opts app.Options) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, opts)
}
