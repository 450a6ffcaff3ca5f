package flow

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Registry holds flow configs keyed by template id.
type Registry struct {
	mu      sync.RWMutex
	configs map[string]TemplateConfig
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{configs: make(map[string]TemplateConfig)}
}

// LoadFS walks fsys and parses every JSON/YAML flow definition. Files may hold
// a single config or a list of configs. A nil fsys yields an empty registry.
func LoadFS(fsys fs.FS) (*Registry, error) {
	reg := NewRegistry()
	if fsys == nil {
		return reg, nil
	}

	err := fs.WalkDir(fsys, ".", func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.IsDir() || !isConfigFile(path) {
			return nil
		}

		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("flow: read %s: %w", path, err)
		}
		configs, err := ParseConfigs(data, path)
		if err != nil {
			return err
		}
		for _, cfg := range configs {
			if err := reg.add(cfg, path); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reg, nil
}

// ParseConfigs decodes one config or a list of configs from data. source
// picks the decoder by extension and labels errors.
func ParseConfigs(data []byte, source string) ([]TemplateConfig, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, fmt.Errorf("flow: file %s is empty", source)
	}

	if strings.EqualFold(filepath.Ext(source), ".json") {
		if strings.HasPrefix(trimmed, "[") {
			var list []TemplateConfig
			if err := json.Unmarshal(data, &list); err != nil {
				return nil, fmt.Errorf("flow: decode %s: %w", source, err)
			}
			return list, nil
		}
		var cfg TemplateConfig
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("flow: decode %s: %w", source, err)
		}
		return []TemplateConfig{cfg}, nil
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("flow: decode %s: %w", source, err)
	}
	if len(node.Content) > 0 && node.Content[0].Kind == yaml.SequenceNode {
		var list []TemplateConfig
		if err := node.Decode(&list); err != nil {
			return nil, fmt.Errorf("flow: decode %s: %w", source, err)
		}
		return list, nil
	}
	var cfg TemplateConfig
	if err := node.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("flow: decode %s: %w", source, err)
	}
	return []TemplateConfig{cfg}, nil
}

// Register adds cfg, replacing any config with the same template id.
func (r *Registry) Register(cfg TemplateConfig) error {
	id := strings.TrimSpace(cfg.TemplateID)
	if id == "" {
		return fmt.Errorf("%w: template id is required", ErrInvalidConfig)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[id] = cfg
	return nil
}

// Get returns the config for templateID.
func (r *Registry) Get(templateID string) (TemplateConfig, bool) {
	if r == nil {
		return TemplateConfig{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[templateID]
	return cfg, ok
}

// IDs returns the registered template ids sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.configs))
	for id := range r.configs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) add(cfg TemplateConfig, source string) error {
	id := strings.TrimSpace(cfg.TemplateID)
	if id == "" {
		return fmt.Errorf("%w: file %s defines a config without templateId", ErrInvalidConfig, source)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.configs[id]; exists {
		return fmt.Errorf("%w: duplicate template %q (file %s)", ErrInvalidConfig, id, source)
	}
	r.configs[id] = cfg
	return nil
}

func isConfigFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	default:
		return false
	}
}
