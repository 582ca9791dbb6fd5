package export

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hpungsan/grimoire/internal/item"
)

// YAML key order follows the struct field order.

type agentFrontmatter struct {
	Name           string `yaml:"name"`
	Description    string `yaml:"description,omitempty"`
	Tools          string `yaml:"tools,omitempty"`
	Model          string `yaml:"model,omitempty"`
	PermissionMode string `yaml:"permissionMode,omitempty"`
	Skills         string `yaml:"skills,omitempty"`
}

type commandFrontmatter struct {
	Description  string `yaml:"description,omitempty"`
	AllowedTools string `yaml:"allowed-tools,omitempty"`
	ArgumentHint string `yaml:"argument-hint,omitempty"`
	Model        string `yaml:"model,omitempty"`
}

type skillFrontmatter struct {
	Name         string `yaml:"name"`
	Description  string `yaml:"description,omitempty"`
	AllowedTools string `yaml:"allowed-tools,omitempty"`
}

// Render returns the exported file content for it: a YAML frontmatter block
// followed by a blank line and the body. Commands with no frontmatter
// fields are written as the bare body.
func Render(it *item.Item) (string, error) {
	var fm any
	switch a := it.Attrs.(type) {
	case item.AgentAttrs:
		f := agentFrontmatter{
			Name:        it.Name,
			Description: str(it.Description),
			Tools:       joinTools(a.Tools),
			Model:       str(a.Model),
			Skills:      joinTools(a.Skills),
		}
		if a.PermissionMode != nil {
			f.PermissionMode = string(*a.PermissionMode)
		}
		fm = f
	case item.CommandAttrs:
		f := commandFrontmatter{
			Description:  str(it.Description),
			AllowedTools: joinTools(a.AllowedTools),
			ArgumentHint: str(a.ArgumentHint),
			Model:        str(a.Model),
		}
		if f == (commandFrontmatter{}) {
			return it.Content, nil
		}
		fm = f
	case item.SkillAttrs:
		fm = skillFrontmatter{
			Name:         it.Name,
			Description:  str(it.Description),
			AllowedTools: joinTools(a.AllowedTools),
		}
	default:
		return "", fmt.Errorf("category %s has no export format", it.Category())
	}

	out, err := yaml.Marshal(fm)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(out)
	b.WriteString("---\n\n")
	b.WriteString(it.Content)
	return b.String(), nil
}

func joinTools(list []string) string {
	return strings.Join(list, ", ")
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
