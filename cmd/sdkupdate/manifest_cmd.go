package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/BadgerOps/sdkupdate/internal/download"
	"github.com/BadgerOps/sdkupdate/internal/sdk"
)

var manifestFile string

// manifestOptionFlags are the authoring flags. Each flag name is its
// option key with dashes for underscores.
var manifestOptionFlags = []struct {
	key   string
	usage string
}{
	{sdk.OptManifestVersion, "manifest schema version to write"},
	{sdk.OptBundleName, "name of the bundle to create or update"},
	{sdk.OptBundleVersion, "bundle version"},
	{sdk.OptBundleRevision, "bundle revision"},
	{sdk.OptDesc, "bundle description"},
	{sdk.OptBundleDescURL, "URL of a page describing the bundle"},
	{sdk.OptStability, "bundle stability (obsolete, post_stable, stable, beta, dev, canary)"},
	{sdk.OptRecommended, "whether the bundle is recommended (yes or no)"},
	{sdk.OptMacArchURL, "URL of the mac archive"},
	{sdk.OptWinArchURL, "URL of the win archive"},
	{sdk.OptLinuxArchURL, "URL of the linux archive"},
	{sdk.OptAllArchURL, "URL of the archive for all platforms"},
}

func optionFlagName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

func newManifestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Create or update a manifest file",
		Long: `Apply bundle attributes and archive URLs to a manifest file. The file is
loaded if it exists, the named bundle is created or updated, and the
result is validated and written back atomically. Without
--manifest-file the result is printed to stdout.

Every archive URL given is fetched once to record its size and SHA-1
checksum. Every option given must be used; a bundle attribute without
--bundle-name is an error.`,
		Example: `  sdkupdate manifest --manifest-file naclsdk_manifest.json \
    --bundle-name pepper_18 --bundle-revision 1234 --desc "Chrome 18 bundle" \
    --stability stable --recommended yes \
    --linux-arch-url https://example.com/naclsdk_linux.tgz
  sdkupdate manifest --manifest-version 1`,
		Args: cobra.NoArgs,
		RunE: manifestRun,
	}

	cmd.Flags().StringVar(&manifestFile, "manifest-file", "", "manifest file to update (stdout if not specified)")
	for _, f := range manifestOptionFlags {
		cmd.Flags().String(optionFlagName(f.key), "", f.usage)
	}

	return cmd
}

// optionSetFromFlags collects the authoring flags the user set.
func optionSetFromFlags(flags *pflag.FlagSet) sdk.OptionSet {
	opts := make(sdk.OptionSet)
	for _, f := range manifestOptionFlags {
		flag := flags.Lookup(optionFlagName(f.key))
		if flag != nil && flag.Changed {
			opts[f.key] = flag.Value.String()
		}
	}
	return opts
}

func manifestRun(cmd *cobra.Command, args []string) error {
	log := slog.Default()

	if globalClient == nil {
		return fmt.Errorf("client not initialized")
	}

	opts := optionSetFromFlags(cmd.Flags())
	log.Info("manifest operation", "file", manifestFile, "options", len(opts))

	m := sdk.New()
	if manifestFile != "" {
		var err error
		m, err = sdk.LoadFile(manifestFile)
		if err != nil {
			return err
		}
	}

	var progress download.ProgressFunc
	if !quiet && hasArchiveURL(opts) {
		fmt.Fprintln(os.Stderr, "Scanning archive to generate sha1 and size info:")
		progress = download.DotProgress(os.Stderr)
	}

	if err := m.ApplyOptions(cmd.Context(), globalClient, opts, progress); err != nil {
		return err
	}

	return sdk.Save(os.Stdout, manifestFile, m)
}

func hasArchiveURL(opts sdk.OptionSet) bool {
	for _, key := range []string{sdk.OptMacArchURL, sdk.OptWinArchURL, sdk.OptLinuxArchURL, sdk.OptAllArchURL} {
		if opts[key] != "" {
			return true
		}
	}
	return false
}
