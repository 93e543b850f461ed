package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the bundles available in the manifest",
		Long: `Fetch the manifest and print every bundle it offers with its version,
revision, description, stability and recommendation.`,
		Example: `  sdkupdate list
  sdkupdate list -U file:///tmp/naclsdk_manifest.json`,
		Args: cobra.NoArgs,
		RunE: listRun,
	}

	return cmd
}

func listRun(cmd *cobra.Command, args []string) error {
	if globalEngine == nil {
		return fmt.Errorf("engine not initialized")
	}

	return globalEngine.List(cmd.Context())
}
