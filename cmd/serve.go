package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"structurizer/internal/apihandlers"
)

var (
	serveAddr string // Listen address
	servePort int    // Listen port
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run Structurizer as an HTTP API server",
	Long: `Starts an HTTP server for managing the source batch, starting a job and
following its progress as a server-sent event stream.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		cfg := appInstance.Config
		if cmd.Flags().Changed("addr") {
			cfg.Server.Addr = serveAddr
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port = servePort
		}

		router := gin.Default() // Includes logger and recovery middleware
		apihandlers.RegisterRoutes(router, apihandlers.NewAPIHandler(appInstance))

		srv := &http.Server{
			Addr:    cfg.ListenAddr(),
			Handler: router,
		}

		errCh := make(chan error, 1)
		go func() {
			log.Infof("Starting Structurizer API server on http://%s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigs)

		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("failed to run API server: %w", err)
			}
			return nil
		case sig := <-sigs:
			log.Infof("Received signal %s, shutting down API server...", sig)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		log.Info("Structurizer API server stopped.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1", "Address to listen on (e.g., '0.0.0.0' for all interfaces)")
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "Port to listen on")
}
