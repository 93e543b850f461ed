package sdk

import "errors"

// Error kinds. Every failure raised by this package, the download engine
// and the CLI wraps exactly one of these so callers can branch with
// errors.Is.
var (
	// ErrParse marks a manifest document that is not well-formed JSON or
	// has values of the wrong type.
	ErrParse = errors.New("parse error")
	// ErrSchema marks a well-formed document that breaks a manifest rule:
	// unknown key, missing required field, bad literal, duplicate or bad name.
	ErrSchema = errors.New("schema error")
	// ErrUsage marks caller-supplied options that could not be applied.
	ErrUsage = errors.New("usage error")
	// ErrFetch marks a URL that could not be opened or read.
	ErrFetch = errors.New("fetch error")
	// ErrIntegrity marks a download whose checksum or size does not match
	// the manifest.
	ErrIntegrity = errors.New("integrity error")
	// ErrExtract marks a failed archive extraction.
	ErrExtract = errors.New("extract error")
)

var knownErrors = []error{ErrParse, ErrSchema, ErrUsage, ErrFetch, ErrIntegrity, ErrExtract}

// IsKnown reports whether err wraps one of the package error kinds.
func IsKnown(err error) bool {
	for _, k := range knownErrors {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}
