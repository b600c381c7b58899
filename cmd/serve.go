package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/mitchellh/go-wordwrap"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/rxscan/rxscan/internal/ctxutil"
	"github.com/rxscan/rxscan/internal/server"
	"github.com/rxscan/rxscan/pkg/build"
	"github.com/rxscan/rxscan/pkg/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the scanner over HTTP",
	Long: wordwrap.WrapString(
		"Starts an HTTP API for listing and selecting scanners, running and "+
			"cancelling scans, choosing the default folder and reading scan "+
			"history. Scanners are discovered continuously while it runs.",
		80),
	Example: `  rxscan serve
  rxscan serve --port 8080
  rxscan serve --host 0.0.0.0 --backend virtual`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := ctxutil.WithInterrupt(cmd.Context())
		defer stop()

		a, err := loadApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		folder, err := a.folders.DefaultFolder(ctx)
		if err != nil {
			return err
		}
		if err := a.watcher.Start(ctx); err != nil {
			return err
		}

		srv := server.New(a.watcher, a.pipeline, a.folders, a.db)
		addr := net.JoinHostPort(a.cfg.Server.Host, strconv.Itoa(a.cfg.Server.Port))

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return srv.ListenAndServe(gctx, addr)
		})
		g.Go(func() error {
			// print banner after short delay to ensure it only appears if no errors
			// occurred during startup
			timer := time.NewTimer(time.Second)
			defer timer.Stop()
			select {
			case <-gctx.Done():
			case <-timer.C:
				cmd.Println(banner(build.Version, addr, a.cfg.Scan.Backend, folder.Path))
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			if ctxutil.Interrupted(ctx) {
				cmd.Println("\nShutting down server...")
			}
			a.watcher.Stop()
			return nil
		})
		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("closing server: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("host", config.DefaultServerHost, "Address to listen on")
	cobra.CheckErr(viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host")))

	serveCmd.Flags().IntP("port", "p", config.DefaultServerPort, "Port to run the HTTP server on")
	cobra.CheckErr(viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port")))

	rootCmd.AddCommand(serveCmd)
}
