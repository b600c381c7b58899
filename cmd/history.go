package cmd

import (
	"github.com/spf13/cobra"

	"github.com/rxscan/rxscan/internal/output"
	"github.com/rxscan/rxscan/pkg/bus/events"
)

var historyFlags struct {
	limit int
	json  bool
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent scans",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		recs, err := a.db.ListScans(cmd.Context(), historyFlags.limit)
		if err != nil {
			return err
		}
		if historyFlags.json {
			return output.JSON(cmd.OutOrStdout(), recs)
		}
		if len(recs) == 0 {
			cmd.Println("No scans yet.")
			return nil
		}

		rows := [][]string{{"WHEN", "STATUS", "MODE", "SIZE", "OUTPUT"}}
		for _, r := range recs {
			size, result := "", r.OutputPath
			if r.Status == events.Done {
				size = output.Size(r.OutputSize)
			} else if r.Error != "" {
				result = r.Error
			}
			rows = append(rows, []string{output.Ago(r.CreatedAt), string(r.Status), r.Mode.String(), size, result})
		}
		output.Table(cmd.OutOrStdout(), rows)
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyFlags.limit, "limit", "n", 20, "Maximum number of scans to list")
	historyCmd.Flags().BoolVar(&historyFlags.json, "json", false, "Print scans as JSON")
	rootCmd.AddCommand(historyCmd)
}
