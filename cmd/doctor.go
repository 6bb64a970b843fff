package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check extraction service connectivity and local diagnostics",
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get app instance: %w", err)
		}
		cfg := appInstance.Config

		fmt.Printf("Checking extraction service at %s...\n", cfg.Service.BaseURL)
		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		if err := appInstance.Extractor.Ping(ctx); err != nil {
			fmt.Printf("  %s %v\n", color.RedString("FAIL"), err)
			return fmt.Errorf("extraction service unreachable: %w", err)
		}
		fmt.Printf("  %s\n", color.GreenString("OK"))

		fmt.Printf("Checking upload directory %s...\n", cfg.Server.UploadDir)
		probe, err := os.CreateTemp(cfg.Server.UploadDir, ".doctor-*")
		if err != nil {
			fmt.Printf("  %s %v\n", color.RedString("FAIL"), err)
			return fmt.Errorf("upload directory not writable: %w", err)
		}
		probe.Close()
		_ = os.Remove(probe.Name())
		fmt.Printf("  %s\n", color.GreenString("OK"))

		fmt.Printf("Status channel: %s/<job_id> (base delay %s, %d attempts)\n",
			cfg.Service.WSURL, cfg.Channel.BaseDelay, cfg.Channel.MaxAttempts)
		if cfg.Schema.Path != "" {
			fmt.Printf("Default schema: %s\n", filepath.Clean(cfg.Schema.Path))
		}
		return nil
	},
}
