package item

import (
	"regexp"
	"slices"
	"strings"
)

// whitespaceRegex matches one or more whitespace characters
var whitespaceRegex = regexp.MustCompile(`\s+`)

// Normalize builds the comparison key for names and categories:
// 1. Trim leading/trailing whitespace
// 2. Lowercase
// 3. Collapse internal whitespace to single spaces
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	return whitespaceRegex.ReplaceAllString(s, " ")
}

// NormalizeTags lowercases, trims, splits on commas, removes duplicates and sorts.
// Returns nil when no tags remain.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, raw := range tags {
		for _, part := range strings.Split(raw, ",") {
			t := Normalize(part)
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil
	}
	slices.Sort(out)
	return out
}

// NormalizeList trims list elements, drops blanks and duplicates, and keeps
// the first-seen order. Elements containing commas are split, since lists
// are stored comma-joined.
func NormalizeList(list []string) []string {
	seen := make(map[string]bool, len(list))
	out := make([]string, 0, len(list))
	for _, raw := range list {
		for _, part := range strings.Split(raw, ",") {
			v := strings.TrimSpace(part)
			if v == "" || seen[v] {
				continue
			}
			seen[v] = true
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// JoinList serializes a list for storage. An empty list yields "".
func JoinList(list []string) string {
	return strings.Join(list, ",")
}

// SplitList parses a stored comma-joined list. "" yields nil.
func SplitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return NormalizeList([]string{s})
}

// normalizeFields returns a copy with names, single-line values and lists
// cleaned up. Content and description are kept verbatim.
func normalizeFields(f Fields) Fields {
	out := f
	out.Name = trimmed(f.Name)
	out.Model = trimmed(f.Model)
	out.ArgumentHint = trimmed(f.ArgumentHint)
	out.PermissionMode = trimmed(f.PermissionMode)
	out.ToolList = NormalizeList(f.ToolList)
	out.AllowedTools = NormalizeList(f.AllowedTools)
	out.SkillRefs = NormalizeList(f.SkillRefs)
	out.Tags = NormalizeTags(f.Tags)
	return out
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
