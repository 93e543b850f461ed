package engine

import (
	"errors"
	"testing"
)

func TestTrackerHappyPath(t *testing.T) {
	tr := NewTracker("run-1")
	var seen []BundleState
	tr.OnState(func(r BundleResult) { seen = append(seen, r.State) })

	tr.Begin("pepper_18")
	steps := []BundleState{StateSelectingArchive, StateDownloading, StateVerified, StateExtracting, StateInstalled}
	for _, s := range steps {
		if err := tr.Transition("pepper_18", s, nil); err != nil {
			t.Fatalf("Transition(%s) error = %v", s, err)
		}
	}

	if len(seen) != len(steps) {
		t.Fatalf("callback called %d times, want %d", len(seen), len(steps))
	}
	report := tr.Finish()
	if report.RunUUID != "run-1" {
		t.Errorf("RunUUID = %q", report.RunUUID)
	}
	if report.Count(StateInstalled) != 1 {
		t.Errorf("installed count = %d, want 1", report.Count(StateInstalled))
	}
	if report.EndTime.Before(report.StartTime) {
		t.Error("EndTime before StartTime")
	}
}

func TestTrackerInvalidTransitions(t *testing.T) {
	tests := []struct {
		name string
		path []BundleState
		bad  BundleState
	}{
		{"pending to downloading", nil, StateDownloading},
		{"pending to failed", nil, StateFailed},
		{"skipped is terminal", []BundleState{StateSkipped}, StateSelectingArchive},
		{"verified cannot fail", []BundleState{StateSelectingArchive, StateDownloading, StateVerified}, StateFailed},
		{"installed is terminal", []BundleState{StateSelectingArchive, StateDownloading, StateVerified, StateExtracting, StateInstalled}, StateExtracting},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker("run")
			tr.Begin("b")
			for _, s := range tt.path {
				if err := tr.Transition("b", s, nil); err != nil {
					t.Fatalf("Transition(%s) error = %v", s, err)
				}
			}
			if err := tr.Transition("b", tt.bad, nil); err == nil {
				t.Errorf("expected transition to %s to be rejected", tt.bad)
			}
		})
	}
}

func TestTrackerUntracked(t *testing.T) {
	tr := NewTracker("run")
	if err := tr.Transition("ghost", StateSkipped, nil); err == nil {
		t.Error("expected error for untracked bundle")
	}
}

func TestTrackerFail(t *testing.T) {
	tr := NewTracker("run")
	tr.Begin("b")
	_ = tr.Transition("b", StateSelectingArchive, nil)
	_ = tr.Transition("b", StateDownloading, func(r *BundleResult) { r.URL = "http://x/b.tgz" })

	if err := tr.Fail("b", ReasonChecksum, errors.New("mismatch")); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}

	got := tr.Snapshot().Bundles[0]
	if got.State != StateFailed || got.Reason != ReasonChecksum || got.Error != "mismatch" {
		t.Errorf("result = %+v", got)
	}
	if got.URL != "http://x/b.tgz" {
		t.Errorf("URL = %q, want it kept from earlier update", got.URL)
	}
}

func TestTrackerSnapshotIsCopy(t *testing.T) {
	tr := NewTracker("run")
	tr.Begin("b")
	snap := tr.Snapshot()
	snap.Bundles[0].State = StateInstalled

	if tr.Snapshot().Bundles[0].State != StatePending {
		t.Error("modifying a snapshot changed the tracker")
	}
}

func TestUpdateReportTotals(t *testing.T) {
	r := &UpdateReport{Bundles: []BundleResult{
		{Name: "a", State: StateInstalled, Bytes: 100},
		{Name: "b", State: StateSkipped},
		{Name: "c", State: StateInstalled, Bytes: 23},
	}}
	if r.Count(StateInstalled) != 2 || r.Count(StateSkipped) != 1 || r.Count(StateFailed) != 0 {
		t.Errorf("unexpected counts: %+v", r)
	}
	if r.BytesTransferred() != 123 {
		t.Errorf("BytesTransferred() = %d, want 123", r.BytesTransferred())
	}
}
