package platform

import (
	"context"
	"runtime"
	"testing"
)

func TestHostOSFor(t *testing.T) {
	tests := []struct {
		goos    string
		want    string
		wantErr bool
	}{
		{"linux", "linux", false},
		{"darwin", "mac", false},
		{"windows", "win", false},
		{"plan9", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			got, err := HostOSFor(tt.goos)
			if (err != nil) != tt.wantErr {
				t.Fatalf("HostOSFor(%q) error = %v, wantErr %v", tt.goos, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("HostOSFor(%q) = %q, want %q", tt.goos, got, tt.want)
			}
		})
	}
}

func TestDetect(t *testing.T) {
	want, err := HostOSFor(runtime.GOOS)
	if err != nil {
		t.Skipf("running on unsupported OS %s", runtime.GOOS)
	}

	info, err := NewDetector().Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if info.HostOS != want {
		t.Errorf("HostOS = %q, want %q", info.HostOS, want)
	}
	if info.OS != runtime.GOOS {
		t.Errorf("OS = %q, want %q", info.OS, runtime.GOOS)
	}
}

func TestDetectCancelled(t *testing.T) {
	if _, err := HostOSFor(runtime.GOOS); err != nil {
		t.Skipf("running on unsupported OS %s", runtime.GOOS)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// gopsutil may answer from cached values before noticing cancellation,
	// so only require that a result, when returned, is correct.
	info, err := NewDetector().Detect(ctx)
	if err == nil && info.HostOS == "" {
		t.Error("expected HostOS to be set when Detect succeeds")
	}
}
