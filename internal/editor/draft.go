// Package editor holds in-memory edit drafts of stored items.
//
// A Draft remembers the version it was loaded at and saves through the
// repository's optimistic update, so a concurrent edit surfaces as
// VERSION_CONFLICT instead of being overwritten.
package editor

import (
	"context"
	"slices"
	"time"

	"github.com/hpungsan/grimoire/internal/errors"
	"github.com/hpungsan/grimoire/internal/item"
	"github.com/hpungsan/grimoire/internal/suggest"
)

// Store is the part of the repository a draft needs.
type Store interface {
	Get(ctx context.Context, id string) (*item.Item, error)
	Update(ctx context.Context, id string, baseVersion int, patch item.Patch) (*item.Item, error)
}

// Draft is an unsaved edit of one item.
type Draft struct {
	store Store
	base  *item.Item
	work  item.Fields
}

// Open loads id and starts a draft at its current version.
func Open(ctx context.Context, store Store, id string) (*Draft, error) {
	it, err := store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Draft{store: store, base: it, work: it.Fields()}, nil
}

// ItemID returns the id of the item being edited.
func (d *Draft) ItemID() string { return d.base.ID }

// BaseVersion is the version the draft will be saved against.
func (d *Draft) BaseVersion() int { return d.base.Version }

// Base returns the stored item the draft started from.
func (d *Draft) Base() *item.Item { return d.base }

// Text returns the draft content.
func (d *Draft) Text() string {
	if d.work.Content == nil {
		return ""
	}
	return *d.work.Content
}

// SetText replaces the draft content.
func (d *Draft) SetText(s string) {
	d.work.Content = &s
}

// Edit merges p into the draft's fields. Category cannot be edited.
func (d *Draft) Edit(p item.Patch) error {
	if p.Category != nil && *p.Category != d.base.Category() {
		return errors.NewImmutableField(item.FieldCategory)
	}
	d.work = p.Apply(d.work)
	return nil
}

// Fields returns the draft's current field values.
func (d *Draft) Fields() item.Fields { return d.work }

// Dirty reports whether the draft differs from its base.
func (d *Draft) Dirty() bool {
	return !d.Patch().IsEmpty()
}

// Patch returns the changes between the base item and the draft.
func (d *Draft) Patch() item.Patch {
	return diff(d.base.Fields(), d.work)
}

// Suggest starts a suggestion for the current text. The result can be
// applied with ApplySuggestion once the task is done.
func (d *Draft) Suggest(ctx context.Context, s suggest.Suggester, action suggest.Action, instruction string, timeout time.Duration) *suggest.Task {
	return suggest.Start(ctx, s, suggest.Request{
		Action:      action,
		Instruction: instruction,
		Content:     d.Text(),
	}, timeout)
}

// ApplySuggestion replaces the text with the task's result. It reports
// false, leaving the draft alone, when the task is unfinished, failed or
// was cancelled, or when the text changed after the task started.
func (d *Draft) ApplySuggestion(t *suggest.Task) (bool, error) {
	select {
	case <-t.Done():
	default:
		return false, nil
	}

	text, err := t.Result()
	if err != nil {
		return false, err
	}
	if d.Text() != t.Request.Content {
		return false, nil
	}
	d.SetText(text)
	return true, nil
}

// Save writes the draft. On success the draft is rebased onto the new
// version. On VERSION_CONFLICT the draft is unchanged; call Reload.
func (d *Draft) Save(ctx context.Context) (*item.Item, error) {
	patch := d.Patch()
	if patch.IsEmpty() {
		return d.base, nil
	}

	updated, err := d.store.Update(ctx, d.base.ID, d.base.Version, patch)
	if err != nil {
		return nil, err
	}
	d.base = updated
	d.work = updated.Fields()
	return updated, nil
}

// Reload discards local edits, restarts the draft at the latest stored
// version and returns the discarded fields so a caller can reapply them.
func (d *Draft) Reload(ctx context.Context) (item.Fields, error) {
	latest, err := d.store.Get(ctx, d.base.ID)
	if err != nil {
		return item.Fields{}, err
	}
	discarded := d.work
	d.base = latest
	d.work = latest.Fields()
	return discarded, nil
}

// diff builds the patch turning from into to. Cleared optional strings
// become "" and cleared lists become empty lists.
func diff(from, to item.Fields) item.Patch {
	var p item.Patch
	p.Name = diffRequired(from.Name, to.Name)
	p.Content = diffRequired(from.Content, to.Content)
	p.Description = diffOptional(from.Description, to.Description)
	p.Model = diffOptional(from.Model, to.Model)
	p.ArgumentHint = diffOptional(from.ArgumentHint, to.ArgumentHint)
	p.PermissionMode = diffOptional(from.PermissionMode, to.PermissionMode)
	p.ToolList = diffList(from.ToolList, to.ToolList)
	p.AllowedTools = diffList(from.AllowedTools, to.AllowedTools)
	p.SkillRefs = diffList(from.SkillRefs, to.SkillRefs)
	p.Tags = diffList(from.Tags, to.Tags)
	return p
}

func diffRequired(from, to *string) *string {
	f, t := deref(from), deref(to)
	if f == t {
		return nil
	}
	return &t
}

func diffOptional(from, to *string) *string {
	if deref(from) == deref(to) {
		return nil
	}
	t := deref(to)
	return &t
}

func diffList(from, to []string) *[]string {
	if slices.Equal(from, to) {
		return nil
	}
	out := slices.Clone(to)
	if out == nil {
		out = []string{}
	}
	return &out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
