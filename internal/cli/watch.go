package cli

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"canvasflow/internal/app"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run schedules and follow mirror files until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a, err := openApp(ctx, app.Options{Watch: true, Cron: true})
		if err != nil {
			return err
		}
		log.Printf("[Watch] following %s", a.DB.DataDir())
		<-ctx.Done()
		log.Println("[Watch] shutting down")
		return a.Close(context.Background())
	},
}
