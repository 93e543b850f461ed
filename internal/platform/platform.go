// Package platform maps the running host onto the host_os names used in
// bundle archives.
package platform

import (
	"context"
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v4/host"
)

// Info describes the detected host.
type Info struct {
	// OS is the Go-style OS name ("linux", "darwin", "windows").
	OS string
	// HostOS is the archive host_os name ("linux", "mac", "win").
	HostOS string
	// Platform and PlatformVersion describe the distribution when known,
	// e.g. "ubuntu" and "24.04". Empty when detection was not possible.
	Platform        string
	PlatformVersion string
	KernelArch      string
}

// Detector detects the host platform.
type Detector interface {
	Detect(ctx context.Context) (*Info, error)
}

// RealDetector implements Detector with gopsutil, falling back to
// runtime.GOOS when host information is unavailable.
type RealDetector struct{}

// NewDetector creates a new platform detector.
func NewDetector() Detector {
	return &RealDetector{}
}

// Detect reads host information and resolves the archive host_os.
func (d *RealDetector) Detect(ctx context.Context) (*Info, error) {
	info := &Info{OS: runtime.GOOS}

	// gopsutil may return partial info alongside an error; the OS name is
	// all that is required.
	stat, err := host.InfoWithContext(ctx)
	if err != nil && ctx.Err() != nil {
		return nil, fmt.Errorf("platform detection cancelled: %w", ctx.Err())
	}
	if stat != nil {
		if stat.OS != "" {
			info.OS = stat.OS
		}
		info.Platform = stat.Platform
		info.PlatformVersion = stat.PlatformVersion
		info.KernelArch = stat.KernelArch
	}

	hostOS, err := HostOSFor(info.OS)
	if err != nil {
		return nil, err
	}
	info.HostOS = hostOS
	return info, nil
}

// HostOSFor maps a Go OS name to an archive host_os name.
func HostOSFor(goos string) (string, error) {
	switch goos {
	case "linux":
		return "linux", nil
	case "darwin":
		return "mac", nil
	case "windows":
		return "win", nil
	default:
		return "", fmt.Errorf("unsupported host OS %q", goos)
	}
}

// HostOS detects the archive host_os for the running machine.
func HostOS(ctx context.Context) (string, error) {
	info, err := NewDetector().Detect(ctx)
	if err != nil {
		return "", err
	}
	return info.HostOS, nil
}
