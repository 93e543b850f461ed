package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Display installed bundles and the last update run",
		Long: `Display the bundles recorded as installed, whether each install
directory is still present, and a summary of the most recent update run.
The manifest is not fetched.`,
		Example: `  sdkupdate status
  sdkupdate status -u /var/lib/sdkupdate`,
		Args: cobra.NoArgs,
		RunE: statusRun,
	}

	return cmd
}

func statusRun(cmd *cobra.Command, args []string) error {
	log := slog.Default()

	if globalEngine == nil {
		return fmt.Errorf("engine not initialized")
	}

	installed, err := globalEngine.Installed()
	if err != nil {
		return fmt.Errorf("listing installed bundles: %w", err)
	}
	log.Debug("status request", "installed", len(installed))

	if len(installed) == 0 {
		fmt.Println("No bundles installed")
	} else {
		fmt.Println("Installed Bundles")
		fmt.Println("=================")
		fmt.Println("")
		fmt.Printf("%-24s %-10s %-10s %-6s %10s %-16s %s\n", "Bundle", "Version", "Revision", "Host", "Size", "Installed", "Present")
		fmt.Println(strings.Repeat("-", 90))

		for _, b := range installed {
			present := "yes"
			if info, err := os.Stat(b.Path); err != nil || !info.IsDir() {
				present = "missing"
			}
			fmt.Printf("%-24s %-10s %-10s %-6s %10s %-16s %s\n",
				b.Name,
				dash(b.Version),
				dash(b.Revision),
				dash(b.HostOS),
				humanize.IBytes(uint64(b.Size)),
				humanize.Time(b.InstalledAt),
				present,
			)
		}
	}

	fmt.Println("")

	run, err := globalEngine.LastRun()
	if err != nil {
		return fmt.Errorf("reading last run: %w", err)
	}
	if run == nil {
		fmt.Println("Last update: never")
		return nil
	}

	fmt.Printf("Last update: %s (%s), %s\n", run.StartTime.Format("2006-01-02 15:04"), humanize.Time(run.StartTime), run.Status)
	fmt.Printf("  installed %d, skipped %d, failed %d, transferred %s\n",
		run.BundlesInstalled, run.BundlesSkipped, run.BundlesFailed, humanize.IBytes(uint64(run.BytesTransferred)))
	if run.ErrorMessage != "" {
		fmt.Printf("  error: %s\n", run.ErrorMessage)
	}
	return nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
