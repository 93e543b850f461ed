package sdk

import (
	"context"
	"fmt"
	"regexp"

	"github.com/BadgerOps/sdkupdate/internal/download"
)

// Stability literals.
var Stabilities = []string{"obsolete", "post_stable", "stable", "beta", "dev", "canary"}

// Recommended literals.
const (
	RecommendedYes = "yes"
	RecommendedNo  = "no"
)

var bundleNameRe = regexp.MustCompile(`^[A-Za-z0-9()._-]+$`)

// ValidBundleName reports whether name may be used as a bundle name.
func ValidBundleName(name string) bool {
	return bundleNameRe.MatchString(name)
}

// Bundle is a named, versioned installable unit with at most one archive
// per host_os.
type Bundle struct {
	Name        string     `json:"name"`
	Version     string     `json:"version,omitempty"`
	Revision    string     `json:"revision,omitempty"`
	Description string     `json:"description,omitempty"`
	DescURL     string     `json:"desc_url,omitempty"`
	Stability   string     `json:"stability,omitempty"`
	Recommended string     `json:"recommended,omitempty"`
	Archives    []*Archive `json:"archives"`
}

// Attribute is a displayable bundle field.
type Attribute struct {
	Key   string
	Value string
}

// Attributes returns the set fields other than name and archives, in
// document order.
func (b *Bundle) Attributes() []Attribute {
	all := []Attribute{
		{"version", b.Version},
		{"revision", b.Revision},
		{"description", b.Description},
		{"desc_url", b.DescURL},
		{"stability", b.Stability},
		{"recommended", b.Recommended},
	}
	attrs := all[:0]
	for _, a := range all {
		if a.Value != "" {
			attrs = append(attrs, a)
		}
	}
	return attrs
}

// IsRecommended reports whether the bundle is marked recommended.
func (b *Bundle) IsRecommended() bool {
	return b.Recommended == RecommendedYes
}

// Validate checks the bundle fields first, then each archive.
func (b *Bundle) Validate() error {
	if b.Name == "" {
		return fmt.Errorf("%w: bundle has no name", ErrSchema)
	}
	if !ValidBundleName(b.Name) {
		return fmt.Errorf("%w: invalid bundle name: %q", ErrSchema, b.Name)
	}
	if b.Revision == "" {
		return fmt.Errorf("%w: bundle %q is missing a revision number", ErrSchema, b.Name)
	}
	if b.Description == "" {
		return fmt.Errorf("%w: bundle %q is missing a description", ErrSchema, b.Name)
	}
	if b.Stability == "" {
		return fmt.Errorf("%w: bundle %q is missing stability info", ErrSchema, b.Name)
	}
	if b.Recommended == "" {
		return fmt.Errorf("%w: bundle %q is missing the recommended field", ErrSchema, b.Name)
	}
	if !contains(Stabilities, b.Stability) {
		return fmt.Errorf("%w: bundle %q has invalid stability field: %q", ErrSchema, b.Name, b.Stability)
	}
	if b.Recommended != RecommendedYes && b.Recommended != RecommendedNo {
		return fmt.Errorf("%w: bundle %q has invalid recommended field: %q", ErrSchema, b.Name, b.Recommended)
	}

	seen := make(map[string]bool, len(b.Archives))
	for _, a := range b.Archives {
		if a == nil {
			return fmt.Errorf("%w: bundle %q has a null archive", ErrSchema, b.Name)
		}
		if seen[a.HostOS] {
			return fmt.Errorf("%w: bundle %q has more than one archive for host_os %q", ErrSchema, b.Name, a.PlatformLabel())
		}
		seen[a.HostOS] = true
	}
	for _, a := range b.Archives {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("bundle %q: %w", b.Name, err)
		}
	}
	return nil
}

// Archive returns the archive for hostOS. Only exact matches count; an
// "all" archive is not a fallback for a specific platform.
func (b *Bundle) Archive(hostOS string) (*Archive, bool) {
	for _, a := range b.Archives {
		if a.HostOS == hostOS {
			return a, true
		}
	}
	return nil, false
}

// updateArchive refreshes the archive for hostOS, creating it if needed.
func (b *Bundle) updateArchive(ctx context.Context, f Fetcher, hostOS, url string, progress download.ProgressFunc) error {
	a, ok := b.Archive(hostOS)
	if !ok {
		a = &Archive{HostOS: hostOS}
		b.Archives = append(b.Archives, a)
	}
	return a.Refresh(ctx, f, url, progress)
}

// ApplyOptions copies the bundle attribute options from c into b, validates
// the result, then refreshes one archive per platform URL option. Validation
// runs before any URL is fetched. Options b does not know are left for the
// caller's audit.
func (b *Bundle) ApplyOptions(ctx context.Context, f Fetcher, c *Consumption, progress download.ProgressFunc) error {
	fields := []struct {
		option string
		dst    *string
	}{
		{OptBundleDescURL, &b.DescURL},
		{OptBundleRevision, &b.Revision},
		{OptBundleVersion, &b.Version},
		{OptDesc, &b.Description},
		{OptRecommended, &b.Recommended},
		{OptStability, &b.Stability},
	}
	for _, fld := range fields {
		if v, ok := c.Take(fld.option); ok {
			*fld.dst = v
		}
	}

	if err := b.Validate(); err != nil {
		return err
	}

	for _, p := range platformURLOptions {
		url, ok := c.Take(p.option)
		if !ok {
			continue
		}
		if err := b.updateArchive(ctx, f, p.hostOS, url, progress); err != nil {
			return err
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
