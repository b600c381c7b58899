package cmd

import (
	"fmt"
	"os/exec"
	"runtime"

	"github.com/mitchellh/go-wordwrap"
	"github.com/spf13/cobra"

	"github.com/rxscan/rxscan/internal/output"
)

var folderCmd = &cobra.Command{
	Use:   "folder",
	Short: "Show the folder scans are saved to",
	Long: wordwrap.WrapString(
		"Shows the default scan folder. When no folder has been chosen, or the "+
			"chosen one is gone, scans go to a private folder inside the data dir.",
		80),
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		f, err := a.folders.DefaultFolder(cmd.Context())
		if err != nil {
			return err
		}
		cmd.Println(f.Path)
		return nil
	},
}

var folderSetCmd = &cobra.Command{
	Use:   "set <path>",
	Short: "Choose the folder scans are saved to",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		f, err := a.folders.SetDefaultFolder(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		output.Success(cmd.OutOrStdout(), "scans will be saved to %s", f.Path)
		return nil
	},
}

var folderResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Save scans to the private folder again",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		f, err := a.folders.Reset(cmd.Context())
		if err != nil {
			return err
		}
		output.Success(cmd.OutOrStdout(), "scans will be saved to %s", f.Path)
		return nil
	},
}

var folderOpenCmd = &cobra.Command{
	Use:   "open",
	Short: "Open the scan folder in the file manager",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		f, err := a.folders.DefaultFolder(cmd.Context())
		if err != nil {
			return err
		}
		cmd.Printf("Opening %s\n", f.Path)
		return launch(f.Path)
	},
}

// launch opens target with the platform's default handler.
func launch(target string) error {
	switch runtime.GOOS {
	case "linux":
		return exec.Command("xdg-open", target).Start()
	case "windows":
		return exec.Command("explorer", target).Start()
	case "darwin":
		return exec.Command("open", target).Start()
	default:
		return fmt.Errorf("unsupported platform")
	}
}

func init() {
	folderCmd.AddCommand(folderSetCmd, folderResetCmd, folderOpenCmd)
	rootCmd.AddCommand(folderCmd)
}
