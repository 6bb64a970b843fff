package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"structurizer/internal/app"
	"structurizer/internal/clix"
	"structurizer/internal/inputprocessor"
	"structurizer/internal/models"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [files or directories...]",
	Short: "Submit sources for extraction and follow the job to completion",
	Long: `Uploads every given file, every supported file under each given directory and
every URL from --urls as one batch, then streams job status until the run completes
or fails. Exits non-zero when the job fails.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get application context: %w", err)
		}
		// PersistentPostRun is skipped when RunE fails, so close here as well.
		defer appInstance.Close()

		urls, err := clix.ParseList(cmd.Flags(), "urls")
		if err != nil {
			return err
		}
		schema, err := clix.ParseSchema(cmd.Flags(), appInstance.Config.Schema.Path)
		if err != nil {
			return err
		}
		inputs := append(append([]string{}, args...), urls...)
		if len(inputs) == 0 {
			return errors.New("nothing to submit: pass files, directories or --urls")
		}

		return runSources(cmd.Context(), appInstance, inputs, schema, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("urls", "", "Comma-separated list of web pages to extract from")
	runCmd.Flags().String("schema", "", "Target schema, e.g. 'name, email, total amount'")
	runCmd.Flags().String("schema-file", "", "File holding the target schema")
}

// runSources classifies inputs, adds them to the batch and follows the job. Every
// status channel is closed on return, whatever the outcome.
func runSources(ctx context.Context, a *app.App, inputs []string, schema string, out io.Writer) error {
	defer a.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sources, err := inputprocessor.ProcessAll(ctx, a.InputProcessor, inputs)
	if err != nil {
		return err
	}
	for _, src := range sources {
		if _, err := a.Coordinator.AddSource(src); err != nil {
			return fmt.Errorf("add source %s: %w", src.Name, err)
		}
	}
	renderSources(out, a.Coordinator.Sources())

	return followJob(ctx, a, schema, out)
}

// followJob submits the batch and prints log lines as snapshots arrive. It returns
// once the job is terminal or ctx is done.
func followJob(ctx context.Context, a *app.App, schema string, out io.Writer) error {
	updates, cancel := a.Store.Subscribe()
	defer cancel()

	// The upload runs to completion even if ctx is canceled meanwhile.
	if err := a.Coordinator.SubmitJob(context.WithoutCancel(ctx), schema); err != nil {
		printLogs(out, a.Store.Snapshot(), 0)
		return err
	}

	printed := 0
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, color.YellowString("Interrupted, closing status channel."))
			return ctx.Err()
		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			printed = printLogs(out, snap, printed)
			if !snap.Terminal() {
				continue
			}
			renderStages(out, snap)
			if snap.Job.OverallStatus == models.JobStatusFailed {
				return fmt.Errorf("job %s failed", snap.Job.JobID)
			}
			printResult(out, snap.Job.Result)
			return nil
		}
	}
}
