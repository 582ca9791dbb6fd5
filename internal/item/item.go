package item

import "fmt"

// Category is the fixed kind of an item. It is set at creation and never changes.
type Category string

const (
	CategoryPrompt  Category = "prompt"
	CategoryAgent   Category = "agent"
	CategorySkill   Category = "skill"
	CategoryCommand Category = "command"
)

// AllCategories returns every category in display order.
func AllCategories() []Category {
	return []Category{CategoryPrompt, CategoryAgent, CategorySkill, CategoryCommand}
}

// ParseCategory converts a user-supplied string into a Category.
// Matching is case-insensitive and ignores surrounding whitespace.
func ParseCategory(s string) (Category, error) {
	c := Category(Normalize(s))
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q (want one of prompt, agent, skill, command)", s)
	}
	return c, nil
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryPrompt, CategoryAgent, CategorySkill, CategoryCommand:
		return true
	}
	return false
}

// DisplayName returns the plural label used in listings ("Prompts", "Agents", ...).
func (c Category) DisplayName() string {
	switch c {
	case CategoryPrompt:
		return "Prompts"
	case CategoryAgent:
		return "Agents"
	case CategorySkill:
		return "Skills"
	case CategoryCommand:
		return "Commands"
	}
	return string(c)
}

// PermissionMode is the agent permission mode written to exported frontmatter.
type PermissionMode string

const (
	PermissionDefault           PermissionMode = "default"
	PermissionAcceptEdits       PermissionMode = "acceptEdits"
	PermissionBypassPermissions PermissionMode = "bypassPermissions"
	PermissionPlan              PermissionMode = "plan"
)

// Valid reports whether m is one of the accepted permission modes.
// Comparison is exact; "acceptedits" is not accepted.
func (m PermissionMode) Valid() bool {
	switch m {
	case PermissionDefault, PermissionAcceptEdits, PermissionBypassPermissions, PermissionPlan:
		return true
	}
	return false
}

// KnownModels lists model aliases offered by editors. Any other non-empty
// identifier is also accepted.
var KnownModels = []string{"sonnet", "opus", "haiku", "inherit"}

// Attributes holds the category-specific part of an item.
// Exactly one concrete type exists per category, so an agent can never carry
// an argument hint and a prompt can never carry a model.
type Attributes interface {
	Category() Category
	isAttributes()
}

// PromptAttrs is empty: prompts carry only the common fields.
type PromptAttrs struct{}

// AgentAttrs are the attributes of an agent definition.
type AgentAttrs struct {
	Model          *string
	Tools          []string
	PermissionMode *PermissionMode
	Skills         []string
}

// SkillAttrs are the attributes of a skill definition.
type SkillAttrs struct {
	AllowedTools []string
}

// CommandAttrs are the attributes of a slash command.
type CommandAttrs struct {
	AllowedTools []string
	ArgumentHint *string
	Model        *string
}

func (PromptAttrs) Category() Category  { return CategoryPrompt }
func (AgentAttrs) Category() Category   { return CategoryAgent }
func (SkillAttrs) Category() Category   { return CategorySkill }
func (CommandAttrs) Category() Category { return CategoryCommand }

func (PromptAttrs) isAttributes()  {}
func (AgentAttrs) isAttributes()   {}
func (SkillAttrs) isAttributes()   {}
func (CommandAttrs) isAttributes() {}

// Item is a stored artifact. Values returned by the repository have always
// passed Validate for their category.
type Item struct {
	// ID is a ULID assigned on creation
	ID string

	// Name is the display name, trimmed
	Name string

	// NameNorm is the uniqueness key (trimmed, lowercased, whitespace collapsed)
	NameNorm string

	// Description is optional for prompts and commands, required for agents and skills
	Description *string

	// Content is the artifact body
	Content string

	// Attrs carries the category-specific fields
	Attrs Attributes

	// Tags are normalized (lowercase, unique, sorted)
	Tags []string

	// Version starts at 1 and increases by one on every update or restore
	Version int

	// CreatedAt is the Unix millisecond timestamp of creation
	CreatedAt int64

	// UpdatedAt is the Unix millisecond timestamp of the last write
	UpdatedAt int64
}

// Category returns the category implied by the item's attributes.
func (it *Item) Category() Category {
	if it.Attrs == nil {
		return CategoryPrompt
	}
	return it.Attrs.Category()
}

// Fields flattens the item into its category-agnostic field set.
func (it *Item) Fields() Fields {
	name := it.Name
	content := it.Content
	f := Fields{
		Name:        &name,
		Description: cloneString(it.Description),
		Content:     &content,
		Tags:        cloneList(it.Tags),
	}

	switch a := it.Attrs.(type) {
	case AgentAttrs:
		f.Model = cloneString(a.Model)
		f.ToolList = cloneList(a.Tools)
		f.SkillRefs = cloneList(a.Skills)
		if a.PermissionMode != nil {
			mode := string(*a.PermissionMode)
			f.PermissionMode = &mode
		}
	case SkillAttrs:
		f.AllowedTools = cloneList(a.AllowedTools)
	case CommandAttrs:
		f.AllowedTools = cloneList(a.AllowedTools)
		f.ArgumentHint = cloneString(a.ArgumentHint)
		f.Model = cloneString(a.Model)
	}

	return f
}

// Snapshot captures the item's full field values for the history ledger.
func (it *Item) Snapshot() Snapshot {
	return Snapshot{Category: it.Category(), Fields: it.Fields()}
}

// Model returns the model attribute for categories that carry one.
func (it *Item) Model() *string {
	switch a := it.Attrs.(type) {
	case AgentAttrs:
		return a.Model
	case CommandAttrs:
		return a.Model
	}
	return nil
}

// Assemble rebuilds a stored item from trusted, already-validated values.
// It is used when reading rows and snapshots back from the database.
func Assemble(id string, category Category, f Fields, version int, createdAt, updatedAt int64) *Item {
	it := build(category, f)
	it.ID = id
	it.Version = version
	it.CreatedAt = createdAt
	it.UpdatedAt = updatedAt
	return it
}

// build converts a normalized field set into an Item without validating it.
// Fields the category does not carry are ignored.
func build(category Category, f Fields) *Item {
	it := &Item{
		Name:        deref(f.Name),
		Description: cloneString(f.Description),
		Content:     deref(f.Content),
		Tags:        cloneList(f.Tags),
	}
	it.NameNorm = Normalize(it.Name)

	switch category {
	case CategoryAgent:
		a := AgentAttrs{
			Model:  cloneString(f.Model),
			Tools:  cloneList(f.ToolList),
			Skills: cloneList(f.SkillRefs),
		}
		if f.PermissionMode != nil {
			mode := PermissionMode(*f.PermissionMode)
			a.PermissionMode = &mode
		}
		it.Attrs = a
	case CategorySkill:
		it.Attrs = SkillAttrs{AllowedTools: cloneList(f.AllowedTools)}
	case CategoryCommand:
		it.Attrs = CommandAttrs{
			AllowedTools: cloneList(f.AllowedTools),
			ArgumentHint: cloneString(f.ArgumentHint),
			Model:        cloneString(f.Model),
		}
	default:
		it.Attrs = PromptAttrs{}
	}

	return it
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneList(l []string) []string {
	if len(l) == 0 {
		return nil
	}
	out := make([]string, len(l))
	copy(out, l)
	return out
}
