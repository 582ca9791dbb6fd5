// Package export writes agents, commands and skills as markdown files with
// YAML frontmatter under a .claude base directory (normally ~/.claude).
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"

	"github.com/hpungsan/grimoire/internal/config"
	"github.com/hpungsan/grimoire/internal/errors"
	"github.com/hpungsan/grimoire/internal/item"
)

const (
	dirPerms  = 0o755
	filePerms = 0o644

	// SkillFileName is the file written inside each skill directory.
	SkillFileName = "SKILL.md"
)

// Result describes one exported file.
type Result struct {
	ItemID   string        `json:"item_id"`
	Name     string        `json:"name"`
	Category item.Category `json:"category"`
	Path     string        `json:"path"`
}

// Exporter writes items under BaseDir.
type Exporter struct {
	BaseDir string
}

// New returns an Exporter rooted at baseDir. A leading ~ is expanded.
func New(baseDir string) (*Exporter, error) {
	dir, err := config.ExpandHome(baseDir)
	if err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}
	return &Exporter{BaseDir: dir}, nil
}

// FromConfig returns an Exporter rooted at cfg's export directory.
func FromConfig(cfg *config.Config) (*Exporter, error) {
	dir, err := cfg.ResolvedExportDir()
	if err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}
	return &Exporter{BaseDir: dir}, nil
}

// Export writes it to its category's location and returns the written path.
// Prompts are copy-only and fail with INVALID_REQUEST.
func (e *Exporter) Export(it *item.Item) (*Result, error) {
	path, err := e.PathFor(it)
	if err != nil {
		return nil, err
	}

	content, err := Render(it)
	if err != nil {
		return nil, errors.NewStorageFailure(fmt.Errorf("render %s: %w", it.Name, err))
	}

	if err := writeFile(path, content); err != nil {
		return nil, err
	}

	return &Result{ItemID: it.ID, Name: it.Name, Category: it.Category(), Path: path}, nil
}

// ExportAll exports every exportable item and skips prompts. It stops at the
// first write failure and returns what was written so far.
func (e *Exporter) ExportAll(items []*item.Item) ([]Result, error) {
	results := make([]Result, 0, len(items))
	for _, it := range items {
		if it.Category() == item.CategoryPrompt {
			continue
		}
		res, err := e.Export(it)
		if err != nil {
			return results, err
		}
		results = append(results, *res)
	}
	return results, nil
}

// PathFor returns the file path an item exports to without writing it.
func (e *Exporter) PathFor(it *item.Item) (string, error) {
	if e.BaseDir == "" {
		return "", errors.NewInvalidRequest("export directory is not configured")
	}

	name := SanitizeForFilename(it.Name)

	var path string
	switch it.Category() {
	case item.CategoryAgent:
		path = filepath.Join(e.BaseDir, "agents", name+".md")
	case item.CategoryCommand:
		path = filepath.Join(e.BaseDir, "commands", name+".md")
	case item.CategorySkill:
		path = filepath.Join(e.BaseDir, "skills", name, SkillFileName)
	case item.CategoryPrompt:
		return "", errors.NewInvalidRequest("prompts cannot be exported (copy-only)")
	default:
		return "", errors.NewInvalidRequest(fmt.Sprintf("unknown category %q", it.Category()))
	}

	if !within(e.BaseDir, path) {
		return "", errors.NewInvalidRequest("export path escapes the export directory")
	}
	return path, nil
}

// writeFile replaces path atomically. A symlink at path is refused rather
// than followed or replaced.
func writeFile(path, content string) error {
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidRequest("cannot export over a symlink: " + path)
	}

	if err := os.MkdirAll(filepath.Dir(path), dirPerms); err != nil {
		return errors.NewStorageFailure(fmt.Errorf("create export directory: %w", err))
	}
	if err := atomic.WriteFile(path, strings.NewReader(content)); err != nil {
		return errors.NewStorageFailure(fmt.Errorf("write %s: %w", path, err))
	}
	// atomic.WriteFile creates the temp file 0600
	if err := os.Chmod(path, filePerms); err != nil {
		return errors.NewStorageFailure(fmt.Errorf("chmod %s: %w", path, err))
	}
	return nil
}

func within(base, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(base), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != "." && !containsTraversal(rel)
}
