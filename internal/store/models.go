package store

import "time"

// Sync run statuses.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// SyncRun records one update invocation
type SyncRun struct {
	ID               int64
	RunUUID          string
	ManifestURL      string
	StartTime        time.Time
	EndTime          time.Time
	BundlesInstalled int
	BundlesSkipped   int
	BundlesFailed    int
	BytesTransferred int64
	Status           string // "running", "success", "failed"
	ErrorMessage     string
}

// InstalledBundle tracks a bundle extracted under the SDK root
type InstalledBundle struct {
	Name        string
	Version     string
	Revision    string
	Stability   string
	HostOS      string
	URL         string
	SHA1        string
	Size        int64
	Path        string // absolute install directory
	InstalledAt time.Time
	SyncRunID   int64
}
