package export

import (
	"path/filepath"
	"strings"
)

// SanitizeForFilename makes an item name safe to use as a single path
// component. Separators and ".." become dashes and control characters are
// dropped. An empty result becomes "unnamed".
func SanitizeForFilename(s string) string {
	s = strings.ReplaceAll(s, "/", "-")
	s = strings.ReplaceAll(s, "\\", "-")
	s = strings.ReplaceAll(s, "..", "-")

	var b strings.Builder
	for _, r := range s {
		if r >= 32 && r != 127 {
			b.WriteRune(r)
		}
	}
	s = b.String()

	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	s = strings.Trim(strings.TrimSpace(s), "-.")

	if s == "" {
		s = "unnamed"
	}
	return s
}

// containsTraversal reports whether any component of path is "..".
func containsTraversal(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return true
		}
	}
	return false
}
