package pipeline

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// NameFromPath derives a pipeline's dotted name from its path relative to a
// collection root: "chatbot/app/entry.yml" -> "chatbot.app.entry".
func NameFromPath(relPath string) string {
	trimmed := strings.TrimSuffix(relPath, filepath.Ext(relPath))
	segs := strings.Split(filepath.ToSlash(trimmed), "/")
	return strings.Join(segs, ".")
}

// Load walks a collection root directory, parsing every ".yml"/".yaml" file
// as a Pipeline document (a YAML sequence of task nodes) and naming each by
// its path relative to root.
func Load(root string) (*Collection, error) {
	pipelines := make(map[string]*Pipeline)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".yml" && ext != ".yaml" {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("pipeline: computing relative path for %s: %w", path, err)
		}
		name := NameFromPath(rel)

		p, err := loadFile(path, name)
		if err != nil {
			return err
		}
		if existing, ok := pipelines[name]; ok {
			return fmt.Errorf("pipeline: duplicate pipeline name %q (%s and %s)", name, existing.Name, path)
		}
		pipelines[name] = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	return NewCollection(pipelines), nil
}

func loadFile(path, name string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pipeline: reading %s: %w", path, err)
	}

	var tasks []*Task
	if err := yaml.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("pipeline: parsing %s: %w", path, err)
	}

	return &Pipeline{Name: name, Tasks: tasks}, nil
}
