package sdk

import (
	"fmt"
	"sort"
)

// Option keys understood by Manifest.ApplyOptions.
const (
	OptManifestVersion = "manifest_version"
	OptBundleName      = "bundle_name"
	OptBundleVersion   = "bundle_version"
	OptBundleRevision  = "bundle_revision"
	OptDesc            = "desc"
	OptBundleDescURL   = "bundle_desc_url"
	OptStability       = "stability"
	OptRecommended     = "recommended"
	OptMacArchURL      = "mac_arch_url"
	OptWinArchURL      = "win_arch_url"
	OptLinuxArchURL    = "linux_arch_url"
	OptAllArchURL      = "all_arch_url"
)

// platformURLOptions maps archive URL options to the host_os they update,
// in the order they are applied.
var platformURLOptions = []struct {
	option string
	hostOS string
}{
	{OptMacArchURL, HostMac},
	{OptWinArchURL, HostWin},
	{OptLinuxArchURL, HostLinux},
	{OptAllArchURL, HostAll},
}

// OptionSet is a flat set of named option values, typically built from
// command-line flags. An empty value means the option was not given.
// The set is never modified by this package.
type OptionSet map[string]string

// Track starts a consumption record over o.
func (o OptionSet) Track() *Consumption {
	return &Consumption{opts: o, used: make(map[string]bool)}
}

// Consumption records which options of an OptionSet have been applied.
type Consumption struct {
	opts OptionSet
	used map[string]bool
}

// Take returns the value of key and marks it consumed. It reports false,
// and consumes nothing, when the option is absent or empty.
func (c *Consumption) Take(key string) (string, bool) {
	v := c.opts[key]
	if v == "" {
		return "", false
	}
	c.used[key] = true
	return v, true
}

// Consumed reports whether key has been taken.
func (c *Consumption) Consumed(key string) bool {
	return c.used[key]
}

// Remaining returns the non-empty options that were never taken, sorted.
func (c *Consumption) Remaining() []string {
	var keys []string
	for k, v := range c.opts {
		if v != "" && !c.used[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Audit fails with ErrUsage if any non-empty option was never applied.
// bundleName is the targeted bundle, or "" when none was given.
func (c *Consumption) Audit(bundleName string) error {
	left := c.Remaining()
	if len(left) == 0 {
		return nil
	}
	if bundleName == "" {
		return fmt.Errorf("%w: no bundle name specified", ErrUsage)
	}
	return fmt.Errorf("%w: unused option %q for bundle %q", ErrUsage, left[0], bundleName)
}
