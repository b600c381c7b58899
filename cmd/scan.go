package cmd

import (
	"fmt"

	"github.com/mitchellh/go-wordwrap"
	"github.com/spf13/cobra"

	"github.com/rxscan/rxscan/cmd/internal/scanui"
	"github.com/rxscan/rxscan/internal/ctxutil"
	"github.com/rxscan/rxscan/internal/output"
	"github.com/rxscan/rxscan/pkg/scanner"
)

var scanFlags struct {
	color     bool
	grayscale bool
	device    string
	json      bool
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan a page and save it as a JPEG",
	Long: wordwrap.WrapString(
		"Scans one page from the flatbed of the selected scanner and saves it as "+
			"a JPEG in the default scan folder. Scans are in color unless "+
			"--grayscale is given. Press q or Ctrl+C to cancel a running scan.",
		80),
	Example: `  rxscan scan
  rxscan scan --grayscale
  rxscan scan --device "virtual:Virtual Flatbed" --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := ctxutil.WithInterrupt(cmd.Context())
		defer stop()

		a, err := loadApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.watcher.Refresh(ctx); err != nil {
			log.Warnw("Enumerating scanners", "err", err)
		}
		if scanFlags.device != "" {
			if err := a.watcher.Select(scanFlags.device); err != nil {
				return fmt.Errorf("selecting %q: %w", scanFlags.device, err)
			}
		}

		mode := scanMode(scanFlags.color, scanFlags.grayscale)

		if scanFlags.json {
			out, err := a.pipeline.Run(ctx, mode)
			if err != nil {
				return err
			}
			return output.JSON(cmd.OutOrStdout(), out)
		}

		var device string
		if d, err := a.watcher.Current(); err == nil {
			device = d.String()
		}
		_, err = scanui.RunScanUI(ctx, a.pipeline, a.bus, mode, device, cmd.OutOrStdout())
		return err
	},
}

// scanMode picks grayscale when asked for it directly or when color is
// turned off.
func scanMode(color, grayscale bool) scanner.ColorMode {
	if grayscale || !color {
		return scanner.Grayscale
	}
	return scanner.Color
}

func init() {
	scanCmd.Flags().BoolVarP(&scanFlags.color, "color", "c", true, "Scan in color")
	scanCmd.Flags().BoolVarP(&scanFlags.grayscale, "grayscale", "g", false, "Scan in grayscale instead of color")
	scanCmd.MarkFlagsMutuallyExclusive("color", "grayscale")
	scanCmd.Flags().StringVarP(&scanFlags.device, "device", "d", "", "ID of the scanner to use instead of the selected one")
	scanCmd.Flags().BoolVar(&scanFlags.json, "json", false, "Print the outcome as JSON instead of showing progress")
	rootCmd.AddCommand(scanCmd)
}
