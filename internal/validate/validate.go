// Package validate is C8: name, path, and id sanitation. Grounded on
// original_source/src-tauri/src/core/validation.rs for the exact set of
// traversal patterns and reserved names to reject.
package validate

import (
	"encoding/hex"
	"path/filepath"
	"strings"

	"github.com/foldsync/core/internal/apperr"
)

const maxNameLength = 255
const maxPathDepth = 64

var forbiddenNameChars = []rune{'<', '>', ':', '"', '|', '?', '*', 0}

var reservedBasenames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
}

func init() {
	for i := 1; i <= 9; i++ {
		reservedBasenames["COM"+string(rune('0'+i))] = true
		reservedBasenames["LPT"+string(rune('0'+i))] = true
	}
}

// Name validates a single file/directory name component.
func Name(s string) error {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return apperr.Validation("name must not be empty")
	}
	if len(trimmed) > maxNameLength {
		return apperr.Validation("name exceeds %d characters", maxNameLength)
	}
	for _, r := range trimmed {
		if r < 0x20 {
			return apperr.Validation("name contains a control character")
		}
		for _, bad := range forbiddenNameChars {
			if r == bad {
				return apperr.Validation("name contains forbidden character %q", r)
			}
		}
	}
	base := trimmed
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	if reservedBasenames[strings.ToUpper(base)] {
		return apperr.Validation("name %q is a reserved platform name", trimmed)
	}
	return nil
}

// DriveID validates a 64-hex-character drive id string and returns the
// decoded 32 bytes.
func DriveID(s string) ([32]byte, error) {
	var out [32]byte
	if len(s) != 64 {
		return out, apperr.InvalidDriveID("drive id must be 64 hex characters")
	}
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 32 {
		return out, apperr.InvalidDriveID("drive id must be valid hex")
	}
	copy(out[:], b)
	return out, nil
}

// traversalMarkers are substrings that, if present anywhere in the
// lowercased user-supplied path, indicate an attempted path traversal. The
// path is not URL-decoded; percent-encoded forms are listed as markers.
var traversalMarkers = []string{
	"..", "%2e%2e", "%252e%252e", "..\\", "\\..",
}

// Path validates that userPath, when resolved against base, stays inside
// base and contains no traversal attempt. Returns the resolved absolute
// path on success. Resolution does not require the path to exist.
func Path(base, userPath string) (string, error) {
	lower := strings.ToLower(userPath)
	for _, marker := range traversalMarkers {
		if strings.Contains(lower, marker) {
			return "", apperr.PathTraversal("path contains a traversal sequence")
		}
	}
	normalizedSlashes := strings.ReplaceAll(userPath, "\\", "/")
	segments := strings.Split(normalizedSlashes, "/")
	depth := 0
	for _, seg := range segments {
		if seg == "" || seg == "." {
			continue
		}
		depth++
	}
	if depth > maxPathDepth {
		return "", apperr.PathTraversal("path exceeds maximum segment depth")
	}

	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", apperr.Validation("invalid base path: %v", err)
	}
	resolved := filepath.Join(absBase, normalizedSlashes)
	resolved = filepath.Clean(resolved)

	if resolved != absBase && !strings.HasPrefix(resolved, absBase+string(filepath.Separator)) {
		return "", apperr.PathOutsideBase("resolved path escapes drive root")
	}
	return resolved, nil
}
