package cmd

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/mitchellh/go-wordwrap"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rxscan/rxscan/internal/output"
	"github.com/rxscan/rxscan/pkg/config"
	"github.com/rxscan/rxscan/pkg/convert"
)

var convertCmd = &cobra.Command{
	Use:   "convert <source> [destination]",
	Short: "Convert an image to JPEG",
	Long: wordwrap.WrapString(
		"Converts a TIFF, PNG, BMP, GIF or JPEG image to a JPEG, applying its EXIF "+
			"orientation and carrying its resolution into the JPEG header. The "+
			"destination defaults to the source name with a .jpeg extension and "+
			"is never overwritten.",
		80),
	Example: `  rxscan convert page.tif
  rxscan convert page.png out.jpeg --quality 0.95`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load[config.Config]()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		src := args[0]
		dst := strings.TrimSuffix(src, filepath.Ext(src)) + ".jpeg"
		if len(args) > 1 {
			dst = args[1]
		}

		s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr()))
		s.Suffix = " Converting, please wait..."
		s.Start()
		res, err := convert.ToJPEG(cmd.Context(), afero.NewOsFs(), src, dst, convert.Options{Quality: cfg.Convert.Quality})
		s.Stop()
		if err != nil {
			return err
		}

		output.Success(cmd.OutOrStdout(), "wrote %s", res.Path)
		output.Table(cmd.OutOrStdout(), [][]string{
			{"dimensions", fmt.Sprintf("%dx%d", res.Width, res.Height)},
			{"resolution", fmt.Sprintf("%dx%d dpi", res.DpiX, res.DpiY)},
			{"orientation", fmt.Sprint(int(res.Orientation))},
			{"size", fmt.Sprintf("%s -> %s", output.Size(res.SourceSize), output.Size(res.OutputSize))},
			{"took", res.Elapsed.Round(time.Millisecond).String()},
		})
		return nil
	},
}

func init() {
	convertCmd.Flags().Float64P("quality", "q", convert.DefaultQuality, "JPEG quality in (0, 1]")
	cobra.CheckErr(viper.BindPFlag("convert.quality", convertCmd.Flags().Lookup("quality")))
	rootCmd.AddCommand(convertCmd)
}
