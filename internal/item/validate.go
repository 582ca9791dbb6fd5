package item

import (
	"fmt"
	"strings"
)

// Violation reasons.
const (
	ReasonMissingRequired = "missing_required"
	ReasonEmptyValue      = "empty_value"
	ReasonInvalidEnum     = "invalid_enum"
	ReasonNotAllowed      = "not_allowed"
)

// Field names as they appear in violations and wire formats.
const (
	FieldCategory       = "category"
	FieldName           = "name"
	FieldDescription    = "description"
	FieldContent        = "content"
	FieldModel          = "model"
	FieldToolList       = "tool_list"
	FieldAllowedTools   = "allowed_tools"
	FieldArgumentHint   = "argument_hint"
	FieldPermissionMode = "permission_mode"
	FieldSkillRefs      = "skill_refs"
	FieldTags           = "tags"
)

// Violation names an offending field and why it was rejected.
type Violation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Reason)
}

// fieldRule describes how one category treats the fields it may carry.
type fieldRule struct {
	required []string
	optional []string
}

var categoryRules = map[Category]fieldRule{
	CategoryPrompt: {
		required: []string{FieldName, FieldContent},
		optional: []string{FieldDescription, FieldTags},
	},
	CategoryAgent: {
		required: []string{FieldName, FieldDescription, FieldContent},
		optional: []string{FieldModel, FieldToolList, FieldPermissionMode, FieldSkillRefs, FieldTags},
	},
	CategorySkill: {
		required: []string{FieldName, FieldDescription, FieldContent},
		optional: []string{FieldAllowedTools, FieldTags},
	},
	CategoryCommand: {
		required: []string{FieldName, FieldContent},
		optional: []string{FieldDescription, FieldAllowedTools, FieldArgumentHint, FieldModel, FieldTags},
	},
}

// fieldOrder fixes the order violations are reported in.
var fieldOrder = []string{
	FieldName, FieldDescription, FieldContent, FieldModel, FieldToolList,
	FieldAllowedTools, FieldArgumentHint, FieldPermissionMode, FieldSkillRefs, FieldTags,
}

// RequiredFields returns the fields a category must carry.
func RequiredFields(c Category) []string {
	return categoryRules[c].required
}

// OptionalFields returns the fields a category may carry.
func OptionalFields(c Category) []string {
	return categoryRules[c].optional
}

// Validate checks a field set against the rules of a category and returns
// every violation found. It has no side effects; a nil result means valid.
func Validate(category Category, f Fields) []Violation {
	rule, ok := categoryRules[category]
	if !ok {
		return []Violation{{Field: FieldCategory, Reason: ReasonInvalidEnum}}
	}

	f = normalizeFields(f)
	required := toSet(rule.required)
	allowed := toSet(rule.optional)

	var violations []Violation
	for _, name := range fieldOrder {
		present, blank := inspect(f, name)

		switch {
		case required[name]:
			if !present {
				violations = append(violations, Violation{Field: name, Reason: ReasonMissingRequired})
			} else if blank {
				violations = append(violations, Violation{Field: name, Reason: ReasonEmptyValue})
			}
		case allowed[name]:
			if present && blank {
				violations = append(violations, Violation{Field: name, Reason: ReasonEmptyValue})
			}
		default:
			if present {
				violations = append(violations, Violation{Field: name, Reason: ReasonNotAllowed})
			}
		}
	}

	if f.PermissionMode != nil && allowed[FieldPermissionMode] && strings.TrimSpace(*f.PermissionMode) != "" {
		if !PermissionMode(*f.PermissionMode).Valid() {
			violations = append(violations, Violation{Field: FieldPermissionMode, Reason: ReasonInvalidEnum})
		}
	}

	return violations
}

// FromFields validates a field set and, when valid, builds the tagged Item.
// The returned item has no ID, version or timestamps yet.
func FromFields(category Category, f Fields) (*Item, []Violation) {
	if violations := Validate(category, f); len(violations) > 0 {
		return nil, violations
	}
	return build(category, normalizeFields(f)), nil
}

// inspect reports whether a field is present, and if present whether its
// value is blank. Lists are present when they hold at least one element.
func inspect(f Fields, name string) (present, blank bool) {
	str := func(s *string) (bool, bool) {
		if s == nil {
			return false, false
		}
		return true, strings.TrimSpace(*s) == ""
	}

	switch name {
	case FieldName:
		return str(f.Name)
	case FieldDescription:
		return str(f.Description)
	case FieldContent:
		return str(f.Content)
	case FieldModel:
		return str(f.Model)
	case FieldArgumentHint:
		return str(f.ArgumentHint)
	case FieldPermissionMode:
		return str(f.PermissionMode)
	case FieldToolList:
		return len(f.ToolList) > 0, false
	case FieldAllowedTools:
		return len(f.AllowedTools) > 0, false
	case FieldSkillRefs:
		return len(f.SkillRefs) > 0, false
	case FieldTags:
		return len(f.Tags) > 0, false
	}
	return false, false
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}
