package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/BadgerOps/sdkupdate/internal/download"
)

// ManifestVersion is the newest manifest schema this package understands.
const ManifestVersion = 1

// Manifest is the root catalogue of bundles.
type Manifest struct {
	ManifestVersion uint      `json:"manifest_version"`
	Bundles         []*Bundle `json:"bundles"`
}

// New returns an empty manifest at the current schema version.
func New() *Manifest {
	return &Manifest{ManifestVersion: ManifestVersion, Bundles: []*Bundle{}}
}

// Validate applies the schema version gate, then checks every bundle.
func (m *Manifest) Validate() error {
	if m.ManifestVersion > ManifestVersion {
		return fmt.Errorf("%w: manifest version too high: %d", ErrSchema, m.ManifestVersion)
	}
	seen := make(map[string]bool, len(m.Bundles))
	for _, b := range m.Bundles {
		if b == nil {
			return fmt.Errorf("%w: manifest has a null bundle", ErrSchema)
		}
		if seen[b.Name] {
			return fmt.Errorf("%w: duplicate bundle name %q", ErrSchema, b.Name)
		}
		seen[b.Name] = true
		if err := b.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// LoadFromText replaces the manifest with the document in data. The
// document is decoded and validated into a fresh value first; on any error
// m is left unchanged.
func (m *Manifest) LoadFromText(data []byte) error {
	fresh, err := decode(data)
	if err != nil {
		return err
	}
	if err := fresh.Validate(); err != nil {
		return err
	}
	*m = *fresh
	return nil
}

func decode(data []byte) (*Manifest, error) {
	fresh := New()

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(fresh); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty manifest document", ErrParse)
		}
		if field, ok := unknownField(err); ok {
			return nil, fmt.Errorf("%w: invalid attribute %s", ErrSchema, field)
		}
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: unexpected data after manifest document", ErrParse)
	}
	if err := checkKeys(data); err != nil {
		return nil, err
	}

	fresh.normalize()
	return fresh, nil
}

// unknownField extracts the key name from the decoder's unknown field error.
// encoding/json does not export a type for it.
func unknownField(err error) (string, bool) {
	const prefix = "json: unknown field "
	msg := err.Error()
	if !strings.HasPrefix(msg, prefix) {
		return "", false
	}
	return strings.TrimPrefix(msg, prefix), true
}

// Attribute names allowed at each level of a document, taken from the
// json tags.
var (
	manifestKeys = jsonKeys(Manifest{})
	bundleKeys   = jsonKeys(Bundle{})
	archiveKeys  = jsonKeys(Archive{})
	checksumKeys = jsonKeys(Checksum{})
)

func jsonKeys(v any) map[string]bool {
	t := reflect.TypeOf(v)
	keys := make(map[string]bool, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		if name != "" && name != "-" {
			keys[name] = true
		}
	}
	return keys
}

// checkKeys matches every object key in an already decoded document
// against the allowed attribute names, case-sensitively. encoding/json
// folds case when it matches keys to fields, so "URL" or "Name" would
// otherwise be accepted and could override the real attribute.
func checkKeys(data []byte) error {
	root, err := checkObject(data, manifestKeys)
	if err != nil {
		return err
	}
	return eachItem(root["bundles"], func(raw json.RawMessage) error {
		bundle, err := checkObject(raw, bundleKeys)
		if err != nil {
			return err
		}
		return eachItem(bundle["archives"], func(raw json.RawMessage) error {
			archive, err := checkObject(raw, archiveKeys)
			if err != nil {
				return err
			}
			_, err = checkObject(archive["checksum"], checksumKeys)
			return err
		})
	})
}

// checkObject returns the members of the object in raw after checking its
// keys. Values that are not objects were already vetted by the typed
// decode and are skipped.
func checkObject(raw json.RawMessage, allowed map[string]bool) (map[string]json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, nil
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !allowed[k] {
			return nil, fmt.Errorf("%w: invalid attribute %q", ErrSchema, k)
		}
	}
	return obj, nil
}

func eachItem(raw json.RawMessage, fn func(json.RawMessage) error) error {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	for _, item := range items {
		if err := fn(item); err != nil {
			return err
		}
	}
	return nil
}

// normalize replaces null collections with empty ones so they serialize
// as [].
func (m *Manifest) normalize() {
	if m.Bundles == nil {
		m.Bundles = []*Bundle{}
	}
	for _, b := range m.Bundles {
		if b != nil && b.Archives == nil {
			b.Archives = []*Archive{}
		}
	}
}

// Serialize returns the canonical form of the manifest: two-space indented
// JSON in field order, no trailing whitespace on any line, and exactly one
// trailing newline.
func (m *Manifest) Serialize() ([]byte, error) {
	m.normalize()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	var out bytes.Buffer
	for _, line := range lines {
		out.WriteString(strings.TrimRight(line, " \t"))
		out.WriteByte('\n')
	}
	return out.Bytes(), nil
}

// Bundle returns the bundle called name.
func (m *Manifest) Bundle(name string) (*Bundle, bool) {
	for _, b := range m.Bundles {
		if b.Name == name {
			return b, true
		}
	}
	return nil, false
}

// BundleNames returns the bundle names in manifest order.
func (m *Manifest) BundleNames() []string {
	names := make([]string, 0, len(m.Bundles))
	for _, b := range m.Bundles {
		names = append(names, b.Name)
	}
	return names
}

// ApplyOptions merges opts into the manifest. manifest_version is adopted
// first; bundle_name then selects or creates the bundle that receives the
// bundle and archive options. Every non-empty option must be claimed by one
// of the two levels, otherwise ErrUsage is returned. That check runs after
// the merged manifest is validated, so a schema error is reported first.
func (m *Manifest) ApplyOptions(ctx context.Context, f Fetcher, opts OptionSet, progress download.ProgressFunc) error {
	c := opts.Track()

	if v, ok := c.Take(OptManifestVersion); ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("%w: invalid manifest version %q", ErrUsage, v)
		}
		m.ManifestVersion = uint(n)
	}

	name, ok := c.Take(OptBundleName)
	if ok {
		if !ValidBundleName(name) {
			return fmt.Errorf("%w: invalid bundle name: %q", ErrSchema, name)
		}
		b, found := m.Bundle(name)
		if !found {
			b = &Bundle{Name: name, Archives: []*Archive{}}
			m.Bundles = append(m.Bundles, b)
		}
		if err := b.ApplyOptions(ctx, f, c, progress); err != nil {
			return err
		}
	}

	if err := m.Validate(); err != nil {
		return err
	}
	return c.Audit(name)
}
