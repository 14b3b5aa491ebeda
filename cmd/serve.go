package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cwbudde/tampercheck/internal/server"
	"github.com/spf13/cobra"
)

var (
	serveAddr       string
	servePerceptual bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the workspace HTTP server",
	Long: `Serves the browser workspace, the session API and the /compare_regions
endpoint. Sessions live in memory only.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config, localhost:8080)")
	serveCmd.Flags().BoolVar(&servePerceptual, "perceptual", false, "Also report mean CIEDE2000 for session comparisons")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("addr") {
		cfg.Addr = serveAddr
	}
	if cmd.Flags().Changed("perceptual") {
		cfg.Perceptual = servePerceptual
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	srv := server.NewServer(cfg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case sig := <-sigCh:
		slog.Info("Received signal", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
