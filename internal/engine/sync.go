package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/BadgerOps/sdkupdate/internal/download"
	"github.com/BadgerOps/sdkupdate/internal/safety"
	"github.com/BadgerOps/sdkupdate/internal/sdk"
	"github.com/BadgerOps/sdkupdate/internal/store"
)

// DefaultMaxManifestSize bounds the manifest document read into memory.
const DefaultMaxManifestSize = 16 << 20

// ScratchDirName is the subdirectory of the user data directory that
// holds archives while they are downloaded and extracted.
const ScratchDirName = "downloads"

// Update targets with special meaning.
const (
	TargetAll         = "all"
	TargetRecommended = "recommended"
)

// ErrNoArchive is returned when a bundle has no archive for the host.
var ErrNoArchive = fmt.Errorf("%w: no archive for this host", sdk.ErrSchema)

// Options configures an Engine.
type Options struct {
	ManifestURL     string
	UserDataDir     string // scratch downloads go under ScratchDirName
	SDKRoot         string // one subdirectory per installed bundle
	HostOS          string // archive host_os to install
	Out             io.Writer
	Quiet           bool
	MaxManifestSize int64
	Extractor       Extractor
}

// UpdateOptions controls a single Update call.
type UpdateOptions struct {
	Force   bool
	Targets []string
}

// Engine lists and installs bundles from a remote manifest.
type Engine struct {
	client sdk.Fetcher
	store  *store.Store
	opts   Options
	logger *slog.Logger
}

// New creates a new Engine.
func New(client sdk.Fetcher, st *store.Store, opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	if opts.MaxManifestSize <= 0 {
		opts.MaxManifestSize = DefaultMaxManifestSize
	}
	if opts.Extractor == nil {
		opts.Extractor = NewCommandExtractor(opts.HostOS, logger)
	}
	return &Engine{
		client: client,
		store:  st,
		opts:   opts,
		logger: logger,
	}
}

// infof prints a user-facing line unless quiet.
func (e *Engine) infof(format string, args ...any) {
	if e.opts.Quiet {
		return
	}
	fmt.Fprintf(e.opts.Out, format+"\n", args...)
}

// LoadManifest fetches and validates the configured manifest.
func (e *Engine) LoadManifest(ctx context.Context) (*sdk.Manifest, error) {
	url := e.opts.ManifestURL
	e.logger.Debug("loading manifest", "url", url)

	rc, err := e.client.Open(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to open %s: %w", sdk.ErrFetch, url, err)
	}
	defer rc.Close()

	var buf bytes.Buffer
	limited := &safety.LimitWriter{W: &buf, Limit: e.opts.MaxManifestSize}
	digest, err := download.HashCopy(limited, rc, nil)
	if err != nil {
		if errors.Is(err, safety.ErrBodyTooLarge) {
			return nil, fmt.Errorf("%w: manifest %s is larger than %s", sdk.ErrFetch, url, humanize.IBytes(uint64(e.opts.MaxManifestSize)))
		}
		return nil, fmt.Errorf("%w: reading %s: %w", sdk.ErrFetch, url, err)
	}
	e.logger.Debug("manifest fetched", "url", url, "sha1", digest.SHA1, "size", digest.Size)

	m := sdk.New()
	if err := m.LoadFromText(buf.Bytes()); err != nil {
		return nil, err
	}
	return m, nil
}

// List prints every bundle with its attributes.
func (e *Engine) List(ctx context.Context) error {
	m, err := e.LoadManifest(ctx)
	if err != nil {
		return err
	}

	e.infof("Available bundles:\n")
	for _, b := range m.Bundles {
		e.infof("%s", b.Name)
		for _, attr := range b.Attributes() {
			e.infof("  %s: %s", attr.Key, attr.Value)
		}
	}
	return nil
}

// selectBundles resolves update targets against the manifest, keeping
// manifest order and dropping duplicates.
func selectBundles(m *sdk.Manifest, targets []string) ([]*sdk.Bundle, error) {
	if len(targets) == 0 {
		return m.Bundles, nil
	}

	want := make(map[string]bool)
	for _, target := range targets {
		switch target {
		case TargetAll:
			for _, b := range m.Bundles {
				want[b.Name] = true
			}
		case TargetRecommended:
			for _, b := range m.Bundles {
				if b.IsRecommended() {
					want[b.Name] = true
				}
			}
		default:
			if _, ok := m.Bundle(target); !ok {
				return nil, fmt.Errorf("%w: unknown bundle %q", sdk.ErrUsage, target)
			}
			want[target] = true
		}
	}

	var selected []*sdk.Bundle
	for _, b := range m.Bundles {
		if want[b.Name] {
			selected = append(selected, b)
		}
	}
	return selected, nil
}

// Update installs the selected bundles one at a time. The first failure
// of any kind stops the run; bundles installed before it are kept.
func (e *Engine) Update(ctx context.Context, opts UpdateOptions) (*UpdateReport, error) {
	m, err := e.LoadManifest(ctx)
	if err != nil {
		return nil, err
	}

	bundles, err := selectBundles(m, opts.Targets)
	if err != nil {
		return nil, err
	}

	for _, dir := range []string{e.opts.UserDataDir, e.scratchDir(), e.opts.SDKRoot} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	run := &store.SyncRun{
		ManifestURL: e.opts.ManifestURL,
		StartTime:   time.Now(),
		Status:      store.StatusRunning,
	}
	if err := e.store.CreateSyncRun(run); err != nil {
		return nil, fmt.Errorf("failed to create sync run: %w", err)
	}
	e.logger.Info("starting update", "run", run.RunUUID, "bundles", len(bundles), "force", opts.Force)

	tracker := NewTracker(run.RunUUID)
	tracker.OnState(func(r BundleResult) {
		e.logger.Debug("bundle state", "bundle", r.Name, "state", r.State, "reason", r.Reason)
	})

	var runErr error
	for _, b := range bundles {
		if err := e.updateBundle(ctx, tracker, run.ID, b, opts.Force); err != nil {
			runErr = err
			break
		}
	}

	report := tracker.Finish()
	run.EndTime = report.EndTime
	run.BundlesInstalled = report.Count(StateInstalled)
	run.BundlesSkipped = report.Count(StateSkipped)
	run.BundlesFailed = report.Count(StateFailed)
	run.BytesTransferred = report.BytesTransferred()
	run.Status = store.StatusSuccess
	if runErr != nil {
		run.Status = store.StatusFailed
		run.ErrorMessage = runErr.Error()
	}
	if err := e.store.UpdateSyncRun(run); err != nil {
		e.logger.Error("failed to update sync run", "run", run.RunUUID, "error", err)
	}

	e.logger.Info("update finished", "run", run.RunUUID, "status", run.Status,
		"installed", run.BundlesInstalled, "skipped", run.BundlesSkipped, "failed", run.BundlesFailed)
	return report, runErr
}

// updateBundle drives one bundle through the state machine.
func (e *Engine) updateBundle(ctx context.Context, tracker *Tracker, runID int64, b *sdk.Bundle, force bool) error {
	installDir, err := safety.SafeJoinUnder(e.opts.SDKRoot, b.Name)
	if err != nil {
		return fmt.Errorf("%w: bundle %q cannot be installed: %w", sdk.ErrSchema, b.Name, err)
	}

	tracker.Begin(b.Name)

	if !force && pathExists(installDir) {
		e.infof("Skipping bundle %s because directory already exists and is up-to-date.", b.Name)
		e.infof("Use --force option to force overwriting existing directory")
		return tracker.Transition(b.Name, StateSkipped, func(r *BundleResult) { r.Path = installDir })
	}

	if err := tracker.Transition(b.Name, StateSelectingArchive, nil); err != nil {
		return err
	}
	archive, ok := b.Archive(e.opts.HostOS)
	if !ok {
		err := fmt.Errorf("%w: bundle %q has no archive for %q", ErrNoArchive, b.Name, e.opts.HostOS)
		return errors.Join(err, tracker.Fail(b.Name, ReasonNoArchive, err))
	}
	scratchName, err := safety.URLBaseName(archive.URL)
	if err != nil {
		err = fmt.Errorf("%w: archive URL for bundle %q: %w", sdk.ErrSchema, b.Name, err)
		return errors.Join(err, tracker.Fail(b.Name, ReasonFetch, err))
	}
	scratch, err := createScratch(e.scratchDir(), scratchName)
	if err != nil {
		err = fmt.Errorf("%w: preparing download of bundle %q: %w", sdk.ErrFetch, b.Name, err)
		return errors.Join(err, tracker.Fail(b.Name, ReasonFetch, err))
	}

	if err := tracker.Transition(b.Name, StateDownloading, func(r *BundleResult) {
		r.HostOS = archive.HostOS
		r.URL = archive.URL
	}); err != nil {
		return err
	}
	e.infof("Downloading %s archive to %s", b.Name, scratch)

	digest, err := archive.DownloadTo(ctx, e.client, scratch, nil)
	if err != nil {
		removeScratch(e.logger, scratch)
		return errors.Join(err, tracker.Fail(b.Name, ReasonFetch, err))
	}
	if err := verify(archive, digest); err != nil {
		removeScratch(e.logger, scratch)
		reason := ReasonChecksum
		if digest.SHA1 == archive.SHA1() {
			reason = ReasonSize
		}
		return errors.Join(err, tracker.Fail(b.Name, reason, err))
	}
	if err := tracker.Transition(b.Name, StateVerified, func(r *BundleResult) { r.Bytes = int64(digest.Size) }); err != nil {
		return err
	}

	if err := tracker.Transition(b.Name, StateExtracting, nil); err != nil {
		return err
	}
	e.infof("Extracting %s", b.Name)
	extractErr := e.install(ctx, scratch, installDir)
	removeScratch(e.logger, scratch)
	if extractErr != nil {
		// The old directory is gone, so is the install.
		if err := e.store.DeleteInstalledBundle(b.Name); err != nil && !errors.Is(err, store.ErrNotFound) {
			e.logger.Warn("failed to drop install record", "bundle", b.Name, "error", err)
		}
		err := fmt.Errorf("%w: bundle %q: %w", sdk.ErrExtract, b.Name, extractErr)
		return errors.Join(err, tracker.Fail(b.Name, ReasonExtract, err))
	}

	rec := &store.InstalledBundle{
		Name:        b.Name,
		Version:     b.Version,
		Revision:    b.Revision,
		Stability:   b.Stability,
		HostOS:      archive.HostOS,
		URL:         archive.URL,
		SHA1:        digest.SHA1,
		Size:        int64(digest.Size),
		Path:        installDir,
		InstalledAt: time.Now(),
		SyncRunID:   runID,
	}
	if err := e.store.UpsertInstalledBundle(rec); err != nil {
		return fmt.Errorf("recording install of %s: %w", b.Name, err)
	}

	return tracker.Transition(b.Name, StateInstalled, func(r *BundleResult) { r.Path = installDir })
}

// verify compares a download against the archive's recorded checksum and size.
func verify(a *sdk.Archive, d download.Digest) error {
	if a.SHA1() == "" {
		return fmt.Errorf("%w: archive %s has no checksum", sdk.ErrIntegrity, a.URL)
	}
	if d.SHA1 != a.SHA1() {
		return fmt.Errorf("%w: SHA1 checksum mismatch. Expected %s but got %s", sdk.ErrIntegrity, a.SHA1(), d.SHA1)
	}
	if d.Size != a.Size {
		return fmt.Errorf("%w: size mismatch on archive. Expected %d but got %d bytes", sdk.ErrIntegrity, a.Size, d.Size)
	}
	return nil
}

// install replaces dir with the extracted contents of archivePath.
func (e *Engine) install(ctx context.Context, archivePath, dir string) error {
	if pathExists(dir) {
		e.infof("Removing %s", dir)
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("removing %s: %w", dir, err)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	return e.opts.Extractor.Extract(ctx, archivePath, dir)
}

// Installed returns the bundles recorded as installed.
func (e *Engine) Installed() ([]store.InstalledBundle, error) {
	return e.store.ListInstalledBundles()
}

// LastRun returns the most recent update run, or nil if there is none.
func (e *Engine) LastRun() (*store.SyncRun, error) {
	runs, err := e.store.ListSyncRuns(1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

// pathExists reports whether anything, directory or not, is at path.
func pathExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// scratchDir holds downloads in flight, apart from the database and the
// SDK root that share the user data directory.
func (e *Engine) scratchDir() string {
	return filepath.Join(e.opts.UserDataDir, ScratchDirName)
}

// createScratch reserves a uniquely named file in dir that ends in name.
func createScratch(dir, name string) (string, error) {
	f, err := os.CreateTemp(dir, "*-"+name)
	if err != nil {
		return "", err
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

func removeScratch(logger *slog.Logger, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to remove scratch file", "path", path, "error", err)
	}
}
