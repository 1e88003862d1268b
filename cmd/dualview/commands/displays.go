package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dualview-dev/dualview/internal/capture"
)

var displaysCmd = &cobra.Command{
	Use:   "displays",
	Short: "List capturable displays",
	Long: `List the displays the capture source can see.

This command connects to the X11 server and enumerates displays with their
geometry, so you know which index to pass to --display.`,
	Example: `  # List displays in table format (default)
  dualview displays

  # List displays in JSON format
  dualview displays --format json`,
	RunE: runDisplays,
}

var displaysFormat string

func init() {
	displaysCmd.Flags().StringVar(&displaysFormat, "format", "table", "output format (table, json)")
	rootCmd.AddCommand(displaysCmd)
}

func runDisplays(cmd *cobra.Command, args []string) error {
	src, err := capture.NewX11Source()
	if err != nil {
		return fmt.Errorf("failed to open capture source: %w", err)
	}
	defer src.Close()

	displays, err := src.Displays()
	if err != nil {
		return fmt.Errorf("failed to enumerate displays: %w", err)
	}

	switch displaysFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(displays)
	case "table":
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "INDEX\tPOSITION\tSIZE\tPRIMARY")
		for _, d := range displays {
			primary := ""
			if d.Primary {
				primary = "*"
			}
			fmt.Fprintf(w, "%d\t%d,%d\t%dx%d\t%s\n", d.Index, d.X, d.Y, d.Width, d.Height, primary)
		}
		return w.Flush()
	default:
		return fmt.Errorf("unknown format %q (want table or json)", displaysFormat)
	}
}
