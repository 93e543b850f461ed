package engine

import (
	"fmt"
	"sync"
	"time"
)

// BundleState is the position of one bundle in the update state machine.
type BundleState string

const (
	StatePending          BundleState = "pending"
	StateSkipped          BundleState = "skipped"
	StateSelectingArchive BundleState = "selecting_archive"
	StateDownloading      BundleState = "downloading"
	StateVerified         BundleState = "verified"
	StateExtracting       BundleState = "extracting"
	StateInstalled        BundleState = "installed"
	StateFailed           BundleState = "failed"
)

// transitions lists the states reachable from each state. Skipped,
// installed and failed are terminal.
var transitions = map[BundleState][]BundleState{
	StatePending:          {StateSkipped, StateSelectingArchive},
	StateSelectingArchive: {StateDownloading, StateFailed},
	StateDownloading:      {StateVerified, StateFailed},
	StateVerified:         {StateExtracting},
	StateExtracting:       {StateInstalled, StateFailed},
}

// Failure reasons recorded on failed bundles.
const (
	ReasonNoArchive = "no archive"
	ReasonFetch     = "fetch"
	ReasonChecksum  = "checksum"
	ReasonSize      = "size"
	ReasonExtract   = "extract"
)

// BundleResult is the outcome of one bundle in an update run.
type BundleResult struct {
	Name   string
	State  BundleState
	HostOS string
	URL    string
	Path   string
	Bytes  int64
	Reason string // set when State is StateFailed
	Error  string
}

// UpdateReport summarizes an update run.
type UpdateReport struct {
	RunUUID   string
	StartTime time.Time
	EndTime   time.Time
	Bundles   []BundleResult
}

// Count returns the number of bundles that ended in state.
func (r *UpdateReport) Count(state BundleState) int {
	n := 0
	for _, b := range r.Bundles {
		if b.State == state {
			n++
		}
	}
	return n
}

// BytesTransferred is the total downloaded across all bundles.
func (r *UpdateReport) BytesTransferred() int64 {
	var total int64
	for _, b := range r.Bundles {
		total += b.Bytes
	}
	return total
}

// Tracker records bundle state transitions for one update run and rejects
// transitions the state machine does not allow.
type Tracker struct {
	mu      sync.Mutex
	report  UpdateReport
	index   map[string]int
	onState func(BundleResult)
}

// NewTracker creates a tracker for a run.
func NewTracker(runUUID string) *Tracker {
	return &Tracker{
		report: UpdateReport{RunUUID: runUUID, StartTime: time.Now()},
		index:  make(map[string]int),
	}
}

// OnState registers a callback invoked after every transition.
func (t *Tracker) OnState(fn func(BundleResult)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onState = fn
}

// Begin registers a bundle in the pending state.
func (t *Tracker) Begin(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.index[name] = len(t.report.Bundles)
	t.report.Bundles = append(t.report.Bundles, BundleResult{Name: name, State: StatePending})
}

// Transition moves a bundle to next, applying update to its result first.
func (t *Tracker) Transition(name string, next BundleState, update func(*BundleResult)) error {
	t.mu.Lock()
	i, ok := t.index[name]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("bundle %q not tracked", name)
	}
	res := &t.report.Bundles[i]
	if !allowed(res.State, next) {
		t.mu.Unlock()
		return fmt.Errorf("bundle %q: invalid transition %s -> %s", name, res.State, next)
	}
	if update != nil {
		update(res)
	}
	res.State = next
	snapshot := *res
	cb := t.onState
	t.mu.Unlock()

	if cb != nil {
		cb(snapshot)
	}
	return nil
}

// Fail moves a bundle to the failed state with a reason.
func (t *Tracker) Fail(name, reason string, err error) error {
	return t.Transition(name, StateFailed, func(r *BundleResult) {
		r.Reason = reason
		if err != nil {
			r.Error = err.Error()
		}
	})
}

// Finish stamps the end time and returns the final report.
func (t *Tracker) Finish() *UpdateReport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.report.EndTime = time.Now()
	return t.snapshotLocked()
}

// Snapshot returns a copy of the current report.
func (t *Tracker) Snapshot() *UpdateReport {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() *UpdateReport {
	r := t.report
	r.Bundles = make([]BundleResult, len(t.report.Bundles))
	copy(r.Bundles, t.report.Bundles)
	return &r
}

func allowed(from, to BundleState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
