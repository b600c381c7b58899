package cmd

import (
	"github.com/spf13/cobra"

	"github.com/rxscan/rxscan/internal/ctxutil"
	"github.com/rxscan/rxscan/internal/output"
	"github.com/rxscan/rxscan/pkg/bus"
	"github.com/rxscan/rxscan/pkg/bus/events"
	"github.com/rxscan/rxscan/pkg/scanner"
)

var devicesFlags struct {
	watch bool
	json  bool
}

var devicesCmd = &cobra.Command{
	Use:     "devices",
	Aliases: []string{"ls"},
	Short:   "List attached scanners",
	Long:    "Lists the image scanners currently attached. The selected scanner is marked with *.",
	Example: `  rxscan devices
  rxscan devices --watch`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := ctxutil.WithInterrupt(cmd.Context())
		defer stop()

		a, err := loadApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if !devicesFlags.watch {
			if err := a.watcher.Refresh(ctx); err != nil {
				return err
			}
			selected, _ := a.watcher.CurrentDeviceID()
			if devicesFlags.json {
				return output.JSON(cmd.OutOrStdout(), a.watcher.Devices())
			}
			printDevices(cmd, a.watcher.Devices(), selected)
			return nil
		}

		handler := func(evt events.DeviceEvent) {
			switch evt.Kind {
			case events.DeviceAdded:
				cmd.Printf("+ %s\n", evt.Device)
			case events.DeviceRemoved:
				cmd.Printf("- %s\n", evt.Device)
			case events.DeviceSelected:
				cmd.Printf("* %s\n", evt.Device)
			}
		}
		unsubscribe, err := bus.OnDevices(a.bus, handler)
		if err != nil {
			return err
		}
		defer unsubscribe()

		if err := a.watcher.Start(ctx); err != nil {
			return err
		}
		cmd.PrintErrln("Watching for scanners, press Ctrl+C to stop.")
		<-ctx.Done()
		return nil
	},
}

func printDevices(cmd *cobra.Command, devices []scanner.Device, selected string) {
	if len(devices) == 0 {
		cmd.Println("No scanners found.")
		return
	}
	rows := [][]string{{"", "ID", "NAME", "VENDOR", "MODEL"}}
	for _, d := range devices {
		mark := ""
		if d.ID == selected {
			mark = "*"
		}
		rows = append(rows, []string{mark, d.ID, d.Name, d.Vendor, d.Model})
	}
	output.Table(cmd.OutOrStdout(), rows)
}

func init() {
	devicesCmd.Flags().BoolVarP(&devicesFlags.watch, "watch", "w", false, "Keep running and print scanners as they come and go")
	devicesCmd.Flags().BoolVar(&devicesFlags.json, "json", false, "Print devices as JSON")
	rootCmd.AddCommand(devicesCmd)
}
