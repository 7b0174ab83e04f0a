package cli

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"canvasflow/internal/config"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a canvasflow config file interactively",
	Long: `Guides you through the main canvasflow settings and writes them to
./.canvasflow/config.yaml, or ~/.canvasflow/config.yaml with --global.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		global, _ := cmd.Flags().GetBool("global")
		path := config.ProjectConfigPath()
		if global {
			path = config.GlobalConfigPath()
		}
		cfg, err := runInit()
		if err != nil {
			return err
		}
		if err := cfg.Save(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Config written to %s\n", path)
		return nil
	},
}

func init() {
	initCmd.Flags().Bool("global", false, "Write the global config instead of the project one")
}

func runInit() (*config.Config, error) {
	cfg := config.DefaultConfig()
	mode := string(cfg.Executor.Mode)
	revert := cfg.RevertDelay.String()
	spacing := strconv.FormatFloat(cfg.Layout.ResultSpacing, 'f', -1, 64)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Data directory").
				Description("Mirror files of code blocks are kept here").
				Value(&cfg.DataDir),
			huh.NewSelect[string]().
				Title("Executor").
				Description("Where code blocks run").
				Options(
					huh.NewOption("Separate process per run", string(config.ExecutorProcess)),
					huh.NewOption("Inside the canvasflow process", string(config.ExecutorInProcess)),
				).
				Value(&mode),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Status reset delay").
				Description("How long SUCCESS or ERROR stays on a block").
				Value(&revert).
				Validate(func(s string) error {
					_, err := time.ParseDuration(s)
					return err
				}),
			huh.NewInput().
				Title("Result spacing").
				Description("Gap between a code block and objects its results create").
				Value(&spacing).
				Validate(func(s string) error {
					_, err := strconv.ParseFloat(s, 64)
					return err
				}),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("OTLP endpoint (optional, press Enter to skip)").
				Placeholder("localhost:4317").
				Value(&cfg.Telemetry.Endpoint),
			huh.NewSelect[string]().
				Title("Secret store for database passwords").
				Options(
					huh.NewOption("Environment variables", "env"),
					huh.NewOption("OS keychain", "keychain"),
				).
				Value(&cfg.SecretBackend),
		),
	)
	if err := form.Run(); err != nil {
		return nil, fmt.Errorf("interactive prompt failed: %w", err)
	}

	cfg.Executor.Mode = config.ExecutorMode(mode)
	cfg.RevertDelay, _ = time.ParseDuration(revert)
	cfg.Layout.ResultSpacing, _ = strconv.ParseFloat(spacing, 64)
	cfg.DBPath = filepath.Join(cfg.DataDir, "canvasflow.db")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
