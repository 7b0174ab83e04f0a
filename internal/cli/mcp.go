package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"canvasflow/internal/app"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve MCP over stdin/stdout",
	Long: `Runs canvasflow as an MCP server on stdin/stdout. Schedules fire and
edits to mirror files are picked up while the server runs.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a, err := openApp(ctx, app.Options{Watch: true, Cron: true})
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		return a.MCP().ServeStdio()
	},
}
