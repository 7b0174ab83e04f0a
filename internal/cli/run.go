package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"canvasflow/internal/app"
	"canvasflow/internal/service"
)

var runCmd = &cobra.Command{
	Use:   "run <blockId>...",
	Short: "Run code blocks in order",
	Long: `Runs each code block in turn within one session, so a block may read
the outputs of blocks run before it in the same invocation.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), app.Options{})
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		asJSON, _ := cmd.Flags().GetBool("json")
		var failed error
		for _, id := range args {
			report, err := a.Runs.Run(cmd.Context(), id)
			if report == nil {
				return err
			}
			if err := printReport(cmd.OutOrStdout(), report, asJSON); err != nil {
				return err
			}
			if err != nil && failed == nil {
				failed = fmt.Errorf("block %s failed", id)
			}
		}
		return failed
	},
}

func printReport(w io.Writer, r *service.RunReport, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	fmt.Fprintf(w, "%s  %s  %s\n", r.BlockID, r.Title, r.Status)
	for _, o := range r.Outputs {
		if o.Value != nil {
			fmt.Fprintf(w, "  line %d -> %s: %s\n", o.SrcLine, o.SourceID, o.Value.Data)
		}
	}
	for _, d := range r.Diagnostics {
		fmt.Fprintf(w, "  warning: %s\n", d)
	}
	if r.Notice != nil {
		fmt.Fprintf(w, "  %s: %s\n", r.Notice.Name, r.Notice.Message)
	}
	return nil
}

var formatCmd = &cobra.Command{
	Use:   "format <blockId>",
	Short: "Pretty-print a code block in place",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), app.Options{})
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		b, err := a.Runs.Format(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), b.Content)
		return nil
	},
}

var framesCmd = &cobra.Command{
	Use:   "frames <blockId>",
	Short: "Sync and show a code block's frames and resolved connectors",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), app.Options{})
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		frames, res, err := a.Runs.Inspect(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		for _, f := range frames {
			fmt.Fprintf(w, "frame %s  line %d\n", f.ID, f.Line)
		}
		for _, in := range res.Inputs {
			fmt.Fprintf(w, "input  line %d <- %s", in.DestLine, in.SourceID)
			if in.Chained() {
				fmt.Fprintf(w, " (line %d)", in.SrcLine)
			}
			fmt.Fprintln(w)
		}
		for _, out := range res.Outputs {
			fmt.Fprintf(w, "output line %d -> %s\n", out.SrcLine, out.SourceID)
		}
		for _, lib := range res.Libraries {
			fmt.Fprintf(w, "library %s (%d bytes)\n", lib.Language, len(lib.Code))
		}
		return errors.Join(res.Diagnostics...)
	},
}

func init() {
	runCmd.Flags().BoolP("json", "j", false, "Output reports as JSON")
}
