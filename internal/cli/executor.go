package cli

import (
	"os"

	"github.com/spf13/cobra"

	"canvasflow/internal/app"
	"canvasflow/internal/protocol"
)

// executorCmd is started by the coordinator, one process per run. stdout
// carries the protocol, so nothing else may write to it.
var executorCmd = &cobra.Command{
	Use:    "executor",
	Short:  "Serve one run or format request on stdin/stdout",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		conn := protocol.NewConn(os.Stdin, os.Stdout, os.Stdout)
		defer conn.Close()
		return protocol.NewWorker(app.NewExecutor(cfg)).Serve(cmd.Context(), conn)
	},
}
