package item

import (
	"encoding/json"
	"fmt"
)

// Fields is the flat field set used for candidates, snapshots and wire formats.
// A nil pointer or nil list means the field is absent.
type Fields struct {
	Name           *string  `json:"name,omitempty"`
	Description    *string  `json:"description,omitempty"`
	Content        *string  `json:"content,omitempty"`
	Model          *string  `json:"model,omitempty"`
	ToolList       []string `json:"tool_list,omitempty"`
	AllowedTools   []string `json:"allowed_tools,omitempty"`
	ArgumentHint   *string  `json:"argument_hint,omitempty"`
	PermissionMode *string  `json:"permission_mode,omitempty"`
	SkillRefs      []string `json:"skill_refs,omitempty"`
	Tags           []string `json:"tags,omitempty"`
}

// Candidate is an unsaved item as built by an editor.
type Candidate struct {
	Category Category `json:"category"`
	Fields
}

// Snapshot is the full field state of an item at one version.
type Snapshot struct {
	Category Category `json:"category"`
	Fields
}

// HistoryEntry is an immutable record of the state an update superseded.
type HistoryEntry struct {
	ItemID     string   `json:"item_id"`
	Version    int      `json:"version"`
	Snapshot   Snapshot `json:"snapshot"`
	RecordedAt int64    `json:"recorded_at"`
}

// Patch describes a partial update. Nil fields are left unchanged.
//
// For optional string fields an empty string clears the value. Required
// fields (name, content) keep the empty string so validation reports it.
// A non-nil list pointer replaces the list; an empty list clears it.
type Patch struct {
	Category       *Category `json:"category,omitempty"`
	Name           *string   `json:"name,omitempty"`
	Description    *string   `json:"description,omitempty"`
	Content        *string   `json:"content,omitempty"`
	Model          *string   `json:"model,omitempty"`
	ToolList       *[]string `json:"tool_list,omitempty"`
	AllowedTools   *[]string `json:"allowed_tools,omitempty"`
	ArgumentHint   *string   `json:"argument_hint,omitempty"`
	PermissionMode *string   `json:"permission_mode,omitempty"`
	SkillRefs      *[]string `json:"skill_refs,omitempty"`
	Tags           *[]string `json:"tags,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Category == nil && p.Name == nil && p.Description == nil && p.Content == nil &&
		p.Model == nil && p.ToolList == nil && p.AllowedTools == nil && p.ArgumentHint == nil &&
		p.PermissionMode == nil && p.SkillRefs == nil && p.Tags == nil
}

// Apply merges the patch into f and returns the result. f is not modified.
func (p Patch) Apply(f Fields) Fields {
	out := f
	if p.Name != nil {
		out.Name = cloneString(p.Name)
	}
	if p.Content != nil {
		out.Content = cloneString(p.Content)
	}
	out.Description = applyOptional(out.Description, p.Description)
	out.Model = applyOptional(out.Model, p.Model)
	out.ArgumentHint = applyOptional(out.ArgumentHint, p.ArgumentHint)
	out.PermissionMode = applyOptional(out.PermissionMode, p.PermissionMode)
	out.ToolList = applyList(out.ToolList, p.ToolList)
	out.AllowedTools = applyList(out.AllowedTools, p.AllowedTools)
	out.SkillRefs = applyList(out.SkillRefs, p.SkillRefs)
	out.Tags = applyList(out.Tags, p.Tags)
	return out
}

func applyOptional(cur, patch *string) *string {
	if patch == nil {
		return cur
	}
	if *patch == "" {
		return nil
	}
	return cloneString(patch)
}

func applyList(cur []string, patch *[]string) []string {
	if patch == nil {
		return cur
	}
	return cloneList(*patch)
}

// itemJSON is the wire shape of an Item: common metadata plus flat fields.
type itemJSON struct {
	ID       string   `json:"id"`
	Category Category `json:"category"`
	Fields
	Version   int   `json:"version"`
	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// MarshalJSON renders the item with its attributes flattened.
func (it *Item) MarshalJSON() ([]byte, error) {
	return json.Marshal(itemJSON{
		ID:        it.ID,
		Category:  it.Category(),
		Fields:    it.Fields(),
		Version:   it.Version,
		CreatedAt: it.CreatedAt,
		UpdatedAt: it.UpdatedAt,
	})
}

// UnmarshalJSON parses the flat wire shape back into the tagged form.
func (it *Item) UnmarshalJSON(data []byte) error {
	var raw itemJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if !raw.Category.Valid() {
		return fmt.Errorf("unknown category %q", raw.Category)
	}
	*it = *Assemble(raw.ID, raw.Category, raw.Fields, raw.Version, raw.CreatedAt, raw.UpdatedAt)
	return nil
}
