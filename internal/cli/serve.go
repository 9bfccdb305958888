package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"farmacia/m/internal/api"
	"farmacia/m/internal/logger"
	"farmacia/m/internal/seed"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Example: `  # Serve on the configured port
  farmacia serve

  # Serve on another port without seeding the catalog
  farmacia serve --port 9090 --no-seed`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("port", "", "HTTP port (overrides HTTP_PORT)")
	serveCmd.Flags().Bool("no-seed", false, "Skip loading the medication catalog at startup")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")
	c := loadConfig(cmd)
	if port, _ := cmd.Flags().GetString("port"); port != "" {
		c.HTTPPort = port
	}
	noSeed, _ := cmd.Flags().GetBool("no-seed")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, c)
	if err != nil {
		return err
	}
	defer a.Close()

	if !noSeed {
		if _, err := seed.NewLoader(a.svc.Catalog, logger.WithComponent("seed")).LoadFile(ctx, c.SeedFile); err != nil {
			return err
		}
	}

	handler := api.New(a.db, c.Secret, c.TokenTTL, a.svc, logger.WithComponent("http"))
	srv := &http.Server{
		Addr:              ":" + c.HTTPPort,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", c.HTTPPort).Msg("farmacia POS server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
