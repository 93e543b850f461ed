package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/BadgerOps/sdkupdate/internal/download"
	"github.com/BadgerOps/sdkupdate/internal/safety"
	"github.com/BadgerOps/sdkupdate/internal/sdk"
)

var (
	validateArchives bool
	validateWorkers  int
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [file-or-url]",
		Short: "Check that a manifest parses and validates",
		Long: `Load a manifest from a local file or URL and run every structural
check on it: known keys only, required bundle fields, valid stability and
recommendation values, unique bundle names and archive platforms.

Without an argument the configured manifest URL is checked. With
--archives every archive is also fetched and its size and SHA-1
compared to the manifest; nothing is written to disk.`,
		Example: `  sdkupdate validate
  sdkupdate validate ./naclsdk_manifest.json
  sdkupdate validate https://example.com/naclsdk_manifest.json
  sdkupdate validate ./naclsdk_manifest.json --archives --workers 8`,
		Args: cobra.MaximumNArgs(1),
		RunE: validateRun,
	}

	cmd.Flags().BoolVar(&validateArchives, "archives", false, "also fetch every archive and verify its size and checksum")
	cmd.Flags().IntVar(&validateWorkers, "workers", 4, "concurrent archive checks")

	return cmd
}

func validateRun(cmd *cobra.Command, args []string) error {
	log := slog.Default()

	if globalCfg == nil {
		return fmt.Errorf("config not loaded")
	}
	if globalClient == nil {
		return fmt.Errorf("client not initialized")
	}

	source := globalCfg.Manifest.URL
	if len(args) == 1 {
		source = args[0]
	}
	maxBytes, err := globalCfg.ManifestMaxBytes()
	if err != nil {
		return fmt.Errorf("%w: manifest.max_size: %w", sdk.ErrUsage, err)
	}

	log.Info("validate operation", "source", source)

	rc, err := globalClient.Open(cmd.Context(), source)
	if err != nil {
		return fmt.Errorf("%w: unable to open %s: %w", sdk.ErrFetch, source, err)
	}
	defer rc.Close()

	data, err := safety.ReadAllWithLimit(rc, maxBytes)
	if err != nil {
		if errors.Is(err, safety.ErrBodyTooLarge) {
			return fmt.Errorf("%w: manifest %s: %w", sdk.ErrFetch, source, err)
		}
		return fmt.Errorf("%w: reading %s: %w", sdk.ErrFetch, source, err)
	}

	m := sdk.New()
	if err := m.LoadFromText(data); err != nil {
		return err
	}

	fmt.Printf("Manifest %s is valid: version %d, %d bundle(s)\n", source, m.ManifestVersion, len(m.Bundles))
	for _, name := range m.BundleNames() {
		fmt.Printf("  %s\n", name)
	}

	if !validateArchives {
		return nil
	}
	return checkArchives(cmd, m)
}

// checkArchives hashes every archive in m and compares it to the
// recorded size and checksum.
func checkArchives(cmd *cobra.Command, m *sdk.Manifest) error {
	var jobs []download.Job
	for _, b := range m.Bundles {
		for _, a := range b.Archives {
			jobs = append(jobs, download.Job{
				Label:        fmt.Sprintf("%s (%s)", b.Name, a.PlatformLabel()),
				URL:          a.URL,
				ExpectedSHA1: a.SHA1(),
				ExpectedSize: a.Size,
			})
		}
	}

	fmt.Println("")
	fmt.Printf("Checking %d archive(s)...\n", len(jobs))

	pool := download.NewPool(globalClient, validateWorkers, logger)
	failed := 0
	for _, r := range pool.Execute(cmd.Context(), jobs) {
		if r.Success {
			fmt.Printf("  ok      %s\n", r.Job.Label)
			continue
		}
		failed++
		fmt.Printf("  FAILED  %s: %v\n", r.Job.Label, r.Error)
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d archives failed verification", sdk.ErrIntegrity, failed, len(jobs))
	}
	fmt.Println("All archives verified")
	return nil
}
