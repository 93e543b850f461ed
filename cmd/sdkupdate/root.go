package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BadgerOps/sdkupdate/internal/config"
	"github.com/BadgerOps/sdkupdate/internal/download"
	"github.com/BadgerOps/sdkupdate/internal/engine"
	"github.com/BadgerOps/sdkupdate/internal/platform"
	"github.com/BadgerOps/sdkupdate/internal/sdk"
	"github.com/BadgerOps/sdkupdate/internal/store"
)

const version = "1.0"

var (
	// Global flags
	cfgPath     string
	manifestURL string
	userDataDir string
	sdkRootDir  string
	logLevel    string
	logFormat   string
	debug       bool
	quiet       bool
	globalCfg   *config.Config
	logger      *slog.Logger

	// Global components
	globalClient *download.Client
	globalStore  *store.Store
	globalEngine *engine.Engine
)

// initializeClient creates the shared fetcher used by every command that
// reads a manifest or archive.
func initializeClient() {
	globalClient = download.NewClient(logger)
	if globalCfg.Manifest.RetryAttempts > 0 {
		globalClient.SetRetryCount(globalCfg.Manifest.RetryAttempts)
	}
}

// initializeComponents opens the install store and builds the engine
func initializeComponents(ctx context.Context) error {
	if globalCfg == nil {
		return fmt.Errorf("config not loaded")
	}

	maxBytes, err := globalCfg.ManifestMaxBytes()
	if err != nil {
		return fmt.Errorf("manifest.max_size: %w", err)
	}

	hostOS := globalCfg.Install.HostOS
	if hostOS == "" {
		hostOS, err = platform.HostOS(ctx)
		if err != nil {
			return err
		}
	}

	if err := os.MkdirAll(globalCfg.Install.UserDataDir, 0o755); err != nil {
		return fmt.Errorf("creating user data directory: %w", err)
	}
	st, err := store.New(globalCfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	globalStore = st

	var extractor engine.Extractor
	if globalCfg.Install.Extractor == config.ExtractorNative {
		extractor = engine.NewNativeExtractor(logger)
	} else {
		extractor = engine.NewCommandExtractor(hostOS, logger)
	}

	globalEngine = engine.New(globalClient, globalStore, engine.Options{
		ManifestURL:     globalCfg.Manifest.URL,
		UserDataDir:     globalCfg.Install.UserDataDir,
		SDKRoot:         globalCfg.SDKRoot(),
		HostOS:          hostOS,
		Out:             os.Stdout,
		Quiet:           quiet,
		MaxManifestSize: maxBytes,
		Extractor:       extractor,
	}, logger)

	logger.Debug("components initialized", "host_os", hostOS, "db", globalCfg.DBPath())
	return nil
}

// needsComponents reports whether a command uses the engine and store
func needsComponents(cmdName string) bool {
	engineCmds := map[string]bool{
		"list":   true,
		"update": true,
		"status": true,
	}
	return engineCmds[cmdName]
}

// closeStore closes the global store connection
func closeStore() {
	if globalStore != nil {
		if err := globalStore.Close(); err != nil {
			logger.Error("failed to close store", "error", err)
		}
		globalStore = nil
	}
}

// NewRootCmd creates and returns the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sdkupdate",
		Short: "List, download and install SDK bundles from a manifest",
		Long: `sdkupdate keeps a local SDK installation in sync with a JSON manifest
of bundles. Each bundle lists one archive per host platform along with
its size and SHA-1 checksum; archives are verified before they are
unpacked into the SDK root.

The manifest subcommand edits manifest files for publishers.`,
		Example: `  sdkupdate list
  sdkupdate update
  sdkupdate update pepper_18 --force
  sdkupdate manifest --manifest-file naclsdk_manifest.json --bundle-name pepper_18 --linux-arch-url https://example.com/pepper_18.tar.bz2
  sdkupdate status`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()

			if shouldSkipConfig(cmd.Name()) {
				return nil
			}

			if cfgPath == "" {
				var err error
				cfgPath, err = config.FindConfigFile()
				if err != nil {
					logger.Debug("config file not found, using defaults", "error", err)
				}
			}

			if cfgPath != "" {
				var err error
				globalCfg, err = config.Load(cfgPath)
				if err != nil {
					return fmt.Errorf("%w: failed to load config: %w", sdk.ErrUsage, err)
				}
			} else {
				globalCfg = config.DefaultConfig()
			}

			// Command-line flags override the file
			if manifestURL != "" {
				globalCfg.Manifest.URL = manifestURL
			}
			if userDataDir != "" {
				globalCfg.Install.UserDataDir = userDataDir
			}
			if sdkRootDir != "" {
				globalCfg.Install.SDKRootDir = sdkRootDir
			}
			if !cmd.Flags().Changed("log-format") && globalCfg.Log.Format != "" && globalCfg.Log.Format != logFormat {
				logFormat = globalCfg.Log.Format
				setupLogging()
			}

			logger.Debug("config loaded", "path", cfgPath, "manifest_url", globalCfg.Manifest.URL,
				"user_data_dir", globalCfg.Install.UserDataDir, "sdk_root", globalCfg.SDKRoot())

			initializeClient()
			if needsComponents(cmd.Name()) {
				if err := initializeComponents(cmd.Context()); err != nil {
					return fmt.Errorf("failed to initialize components: %w", err)
				}
			}

			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			closeStore()
		},
	}

	cmd.SetVersionTemplate("sdkupdate, version {{.Version}}\n")
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", sdk.ErrUsage, err)
	})

	// Add persistent flags
	cmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (auto-discovered if not specified)")
	cmd.PersistentFlags().StringVarP(&manifestURL, "manifest-url", "U", "", "URL of the SDK manifest")
	cmd.PersistentFlags().StringVarP(&userDataDir, "user-data-dir", "u", "", "directory for downloads and the install database")
	cmd.PersistentFlags().StringVarP(&sdkRootDir, "sdk-root-dir", "s", "", "directory bundles are installed under")
	cmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "debug logging and full error detail")
	cmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress progress output")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text or json)")

	// Add subcommands
	cmd.AddCommand(
		newListCmd(),
		newUpdateCmd(),
		newManifestCmd(),
		newValidateCmd(),
		newStatusCmd(),
		newConfigCmd(),
	)

	return cmd
}

// setupLogging initializes the slog logger based on flags
func setupLogging() {
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}
	if debug {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if strings.ToLower(logFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// shouldSkipConfig checks if a command should skip config loading
func shouldSkipConfig(cmdName string) bool {
	skipConfigCmds := map[string]bool{
		"help":       true,
		"version":    true,
		"completion": true,
	}
	return skipConfigCmds[cmdName]
}
