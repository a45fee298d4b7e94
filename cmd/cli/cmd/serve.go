// Package cmd - serve command
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpadapter "easyquote/adapters/http"
	"easyquote/internal/logging"
)

var (
	serveAddr string
	serveCORS []string
)

// serveCmd runs the line item API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the line item API",
	Long: `Serve quote line items over HTTP. Every item is kept in sync with the
pricing API exactly as in the CLI, and changed items are saved to the
configured storage backend.

Examples:
  easyquote serve --addr :8080
  EASYQUOTE_TOKEN=... easyquote serve --config easyquote.hcl`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
	serveCmd.Flags().StringSliceVar(&serveCORS, "allowed-origin", []string{"*"}, "CORS allowed origin")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, "")
	if err != nil {
		return err
	}
	a.loadProducts(ctx)

	cfg := httpadapter.DefaultConfig()
	cfg.Address = serveAddr
	cfg.AllowedOrigins = serveCORS
	cfg.WaitTimeout = a.cfg.Pricing.Timeout() + a.cfg.Sync.Quiescence()
	server := httpadapter.New(a.newEditor, a.newItem, cfg, a.logger)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()
	logging.Info("Serving line item API", zap.String("address", serveAddr))

	select {
	case err = <-errCh:
		if err != nil {
			logging.Error("Line item API stopped", zap.Error(err))
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if serr := server.Shutdown(shutdownCtx); serr != nil && err == nil {
		err = serr
	}
	a.Close(shutdownCtx)
	return err
}
