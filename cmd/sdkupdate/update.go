package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/BadgerOps/sdkupdate/internal/engine"
)

var updateForce bool

func newUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update [target...]",
		Short: "Download and install bundles",
		Long: `Download, verify and install bundles from the manifest. Targets are
bundle names, "recommended" for the recommended bundles, or "all".
Without targets every bundle is installed.

A bundle whose install directory already exists is skipped unless
--force is given, in which case the directory is replaced.`,
		Example: `  sdkupdate update
  sdkupdate update recommended
  sdkupdate update pepper_18 pepper_19 --force`,
		RunE: updateRun,
	}

	cmd.Flags().BoolVarP(&updateForce, "force", "F", false, "overwrite existing bundle directories")

	return cmd
}

func updateRun(cmd *cobra.Command, args []string) error {
	log := slog.Default()

	if globalEngine == nil {
		return fmt.Errorf("engine not initialized")
	}

	log.Info("update operation", "targets", args, "force", updateForce)

	report, err := globalEngine.Update(cmd.Context(), engine.UpdateOptions{
		Force:   updateForce,
		Targets: args,
	})
	if report != nil && !quiet {
		printUpdateReport(report)
	}
	return err
}

// printUpdateReport prints a per-bundle summary of an update run
func printUpdateReport(report *engine.UpdateReport) {
	if len(report.Bundles) == 0 {
		fmt.Println("No bundles to update")
		return
	}

	fmt.Println("")
	fmt.Printf("%-24s %-12s %10s  %s\n", "Bundle", "Result", "Size", "Detail")
	fmt.Println(strings.Repeat("-", 70))
	for _, b := range report.Bundles {
		size := "-"
		if b.Bytes > 0 {
			size = humanize.IBytes(uint64(b.Bytes))
		}
		detail := b.Path
		if b.State == engine.StateFailed {
			detail = b.Reason
		}
		fmt.Printf("%-24s %-12s %10s  %s\n", b.Name, b.State, size, detail)
	}
	fmt.Println("")
	fmt.Printf("Installed: %d  Skipped: %d  Failed: %d  Transferred: %s  Duration: %s\n",
		report.Count(engine.StateInstalled),
		report.Count(engine.StateSkipped),
		report.Count(engine.StateFailed),
		humanize.IBytes(uint64(report.BytesTransferred())),
		report.EndTime.Sub(report.StartTime).Round(time.Millisecond),
	)
}
