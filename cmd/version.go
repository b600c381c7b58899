package cmd

import (
	"github.com/spf13/cobra"

	"github.com/rxscan/rxscan/pkg/build"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of rxscan",
	Long:  `Print the version of rxscan including the git revision.`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("version: %s\n", build.Version)
		cmd.Printf("commit: %s\n", build.Commit)
		cmd.Printf("built at: %s\n", build.Date)
		cmd.Printf("built by: %s\n", build.BuiltBy)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
