package flow

import (
	"errors"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-docforge/pkg/rules"
)

const leaseYAML = `
templateId: lease
defaultVariantId: standard
format: html
steps:
  - id: parties
    title: Parties
    fields:
      - id: tenant
        key: tenant
        label: Tenant
        type: text
        required: true
      - id: pets
        key: pets
        label: Pets
        type: select
        visibleIf:
          - field: furnished
            operator: equals
            value: false
        options:
          - value: none
          - value: cat
variants:
  - id: standard
    content: "Lease for {{tenant}}"
    sections:
      - id: pets
        content: "Pets: {{pets}}"
        excludeIf:
          - field: pets
            operator: in
            value: [none]
tiers:
  freeTierFeatures: [pdf]
  premiumTierFeatures: [docx]
`

const flowsJSON = `[
  {"templateId": "nda", "steps": [], "variants": [{"id": "mutual", "content": "NDA"}]},
  {"templateId": "poa", "steps": [], "variants": [{"id": "general", "content": "POA"}]}
]`

func TestLoadFS(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"flows/lease.yaml": {Data: []byte(leaseYAML)},
		"flows/more.json":  {Data: []byte(flowsJSON)},
		"flows/README.md":  {Data: []byte("ignored")},
	}

	reg, err := LoadFS(fsys)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff([]string{"lease", "nda", "poa"}, reg.IDs()); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}

	lease, ok := reg.Get("lease")
	if !ok {
		t.Fatalf("lease not registered")
	}
	if err := lease.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if lease.Format != "html" || lease.DefaultVariantID != "standard" {
		t.Fatalf("unexpected header %+v", lease)
	}
	pets := lease.Steps[0].Fields[1]
	want := rules.Set{{Field: "furnished", Operator: rules.OpEquals, Value: false}}
	if diff := cmp.Diff(want, pets.VisibleIf); diff != "" {
		t.Fatalf("visibleIf mismatch (-want +got):\n%s", diff)
	}
	if got := lease.Variants[0].Sections[0].ExcludeIf[0].Value; !cmp.Equal(got, []any{"none"}) {
		t.Fatalf("unexpected excludeIf value %#v", got)
	}
	if !cmp.Equal(lease.Tiers.Premium, []string{"docx"}) {
		t.Fatalf("unexpected tiers %+v", lease.Tiers)
	}
}

func TestLoadFSRejectsDuplicates(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"a.yaml": {Data: []byte("templateId: nda\n")},
		"b.yml":  {Data: []byte("templateId: nda\n")},
	}
	if _, err := LoadFS(fsys); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestParseConfigsErrors(t *testing.T) {
	t.Parallel()

	if _, err := ParseConfigs([]byte("  "), "empty.yaml"); err == nil {
		t.Fatalf("expected error for empty file")
	}
	if _, err := ParseConfigs([]byte("{"), "broken.json"); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestValidateConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*TemplateConfig)
	}{
		{"missing id", func(c *TemplateConfig) { c.TemplateID = "" }},
		{"duplicate step", func(c *TemplateConfig) { c.Steps = append(c.Steps, c.Steps[0]) }},
		{"bad field type", func(c *TemplateConfig) { c.Steps[0].Fields[0].Type = "slider" }},
		{"unknown operator", func(c *TemplateConfig) {
			c.Steps[0].Fields[3].VisibleIf = rules.Set{{Field: "x", Operator: "matches"}}
		}},
		{"unknown default variant", func(c *TemplateConfig) { c.DefaultVariantID = "nope" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := householdConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}

	if err := householdConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}
