package cmd

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rxscan/rxscan/pkg/scanner"
)

// resetFlags restores every changed flag in the tree to its default. Cobra
// keeps parsed values, including --help, between Execute calls. It also
// clears each command's stored context.
func resetFlags(t *testing.T, cmd *cobra.Command) {
	t.Helper()
	reset := func(f *pflag.Flag) {
		if !f.Changed {
			return
		}
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			require.NoError(t, sv.Replace(nil))
		} else {
			require.NoError(t, f.Value.Set(f.DefValue))
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	// Cobra also keeps a subcommand's context from its first run; clear it so
	// the next run inherits the new root context instead of a cancelled one.
	cmd.SetContext(nil)
	for _, sub := range cmd.Commands() {
		resetFlags(t, sub)
	}
}

// execute runs the root command with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(t, rootCmd)
	t.Cleanup(func() { resetFlags(t, rootCmd) })
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.ExecuteContext(t.Context())
	return buf.String(), err
}

func TestScanHelp(t *testing.T) {
	help, err := execute(t, "scan", "--help")
	require.NoError(t, err)

	assert.Contains(t, help, "Examples:")
	assert.Contains(t, help, "--grayscale")
	assert.Contains(t, help, "--device")

	exampleLines := 0
	for _, line := range strings.Split(help, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "rxscan scan") {
			exampleLines++
		}
	}
	assert.GreaterOrEqual(t, exampleLines, 3)
}

func TestHelpDoesNotLeakIntoNextRun(t *testing.T) {
	help, err := execute(t, "version", "--help")
	require.NoError(t, err)
	assert.Contains(t, help, "Usage:")

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.NotContains(t, out, "Usage:")
	assert.Contains(t, out, "version: ")
}

func TestServeHelp(t *testing.T) {
	help, err := execute(t, "serve", "--help")
	require.NoError(t, err)

	assert.Contains(t, help, "--port")
	assert.Contains(t, help, "--host")
	assert.Contains(t, help, "--backend", "persistent flags should be listed")
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "version: ")
	assert.Contains(t, out, "commit: ")
}

func TestDevicesVirtual(t *testing.T) {
	out, err := execute(t, "devices", "--backend", "virtual", "--data-dir", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "virtual:Virtual Flatbed")
	assert.Contains(t, out, "*", "the only scanner should be selected")
}

func TestScanAndHistoryVirtual(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "scan", "--backend", "virtual", "--data-dir", dir, "--grayscale", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"status":"success"`)
	assert.FileExists(t, filepath.Join(dir, "Scans", "Untitled Scan.jpeg"))

	out, err = execute(t, "history", "--data-dir", dir, "--backend", "virtual")
	require.NoError(t, err)
	assert.Contains(t, out, "done")
	assert.Contains(t, out, "grayscale")
}

func TestScanColorFlag(t *testing.T) {
	assert.Equal(t, scanner.Color, scanMode(true, false))
	assert.Equal(t, scanner.Grayscale, scanMode(true, true))
	assert.Equal(t, scanner.Grayscale, scanMode(false, false))

	dir := t.TempDir()
	out, err := execute(t, "scan", "--backend", "virtual", "--data-dir", dir, "--color=false", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"Mode":"grayscale"`)

	out, err = execute(t, "scan", "--backend", "virtual", "--data-dir", dir, "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"Mode":"color"`)
	assert.FileExists(t, filepath.Join(dir, "Scans", "Untitled Scan (1).jpeg"))
}

func TestFolderSetAndReset(t *testing.T) {
	dir := t.TempDir()
	target := t.TempDir()

	out, err := execute(t, "folder", "set", target, "--data-dir", dir, "--backend", "virtual")
	require.NoError(t, err)
	assert.Contains(t, out, target)

	out, err = execute(t, "folder", "--data-dir", dir, "--backend", "virtual")
	require.NoError(t, err)
	assert.Equal(t, target, strings.TrimSpace(out))

	out, err = execute(t, "folder", "reset", "--data-dir", dir, "--backend", "virtual")
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(dir, "Scans"))
}

func TestConvertMissingSource(t *testing.T) {
	_, err := execute(t, "convert", filepath.Join(t.TempDir(), "missing.tif"), "--data-dir", t.TempDir())
	require.Error(t, err)
}

func TestSpanAttributes(t *testing.T) {
	require.Equal(t, []string{"rxscan", "folder", "set"}, commandPath(folderSetCmd))

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Bool("grayscale", false, "")
	flags.Float64("quality", 0.8, "")
	flags.Duration("interval", time.Second, "")
	require.NoError(t, flags.Parse([]string{"--grayscale", "--quality", "0.5", "--interval", "3s"}))

	attr, err := flagAttribute(flags, flags.Lookup("grayscale"))
	require.NoError(t, err)
	require.Equal(t, attribute.Bool("command.flag.grayscale", true), attr)

	attr, err = flagAttribute(flags, flags.Lookup("quality"))
	require.NoError(t, err)
	require.Equal(t, attribute.Float64("command.flag.quality", 0.5), attr)

	attr, err = flagAttribute(flags, flags.Lookup("interval"))
	require.NoError(t, err)
	require.Equal(t, attribute.String("command.flag.interval", "3s"), attr)
}
