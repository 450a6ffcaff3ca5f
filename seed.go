package docforge

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-docforge/pkg/catalog"
	"github.com/goliatone/go-docforge/pkg/flow"
	"github.com/goliatone/go-docforge/pkg/store"
)

// Seed directory layout.
const (
	SeedTemplatesDir = "templates"
	SeedFlowsDir     = "flows"
)

// SeedResult summarises what Seed loaded.
type SeedResult struct {
	Templates []string
	Flows     *flow.Registry
}

// Seed loads template records from templates/ and flow definitions from
// flows/ in fsys. Templates are saved to s; flows are registered and saved.
// Either directory may be absent.
func Seed(ctx context.Context, fsys fs.FS, s store.Store, now time.Time) (SeedResult, error) {
	result := SeedResult{Flows: flow.NewRegistry()}

	err := fs.WalkDir(fsys, SeedTemplatesDir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !isSeedFile(p) {
			return nil
		}
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("docforge: read %s: %w", p, err)
		}
		templates, err := parseTemplates(data, p, now)
		if err != nil {
			return err
		}
		for _, tpl := range templates {
			if err := s.SaveTemplate(ctx, tpl); err != nil {
				return fmt.Errorf("docforge: seed template %q: %w", tpl.ID, err)
			}
			result.Templates = append(result.Templates, tpl.ID)
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return SeedResult{}, err
	}

	if _, statErr := fs.Stat(fsys, SeedFlowsDir); statErr == nil {
		sub, err := fs.Sub(fsys, SeedFlowsDir)
		if err != nil {
			return SeedResult{}, fmt.Errorf("docforge: flows: %w", err)
		}
		registry, err := flow.LoadFS(sub)
		if err != nil {
			return SeedResult{}, err
		}
		for _, id := range registry.IDs() {
			cfg, _ := registry.Get(id)
			if err := s.SaveConfig(ctx, cfg); err != nil {
				return SeedResult{}, fmt.Errorf("docforge: seed flow %q: %w", id, err)
			}
		}
		result.Flows = registry
	}

	return result, nil
}

// parseTemplates accepts one template record or a list of them. Records
// without a status start as drafts that need verification.
func parseTemplates(data []byte, source string, now time.Time) ([]catalog.Template, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("docforge: parse %s: %w", source, err)
	}
	if len(node.Content) == 0 {
		return nil, nil
	}
	root := node.Content[0]

	var templates []catalog.Template
	switch root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&templates); err != nil {
			return nil, fmt.Errorf("docforge: decode %s: %w", source, err)
		}
	default:
		var tpl catalog.Template
		if err := root.Decode(&tpl); err != nil {
			return nil, fmt.Errorf("docforge: decode %s: %w", source, err)
		}
		templates = append(templates, tpl)
	}

	for i := range templates {
		tpl := &templates[i]
		if strings.TrimSpace(tpl.ID) == "" {
			return nil, fmt.Errorf("docforge: %s: template %d has no id", source, i)
		}
		if tpl.Status == "" {
			tpl.Status = catalog.StatusDraft
			tpl.VerificationRequired = true
		}
		if !tpl.Status.Valid() {
			return nil, fmt.Errorf("docforge: %s: template %q has unknown status %q", source, tpl.ID, tpl.Status)
		}
		if tpl.CreatedAt.IsZero() {
			tpl.CreatedAt = catalog.Truncate(now)
		}
		if tpl.UpdatedAt.IsZero() {
			tpl.UpdatedAt = tpl.CreatedAt
		}
	}
	return templates, nil
}

func isSeedFile(p string) bool {
	switch strings.ToLower(path.Ext(p)) {
	case ".yaml", ".yml", ".json":
		return true
	default:
		return false
	}
}
