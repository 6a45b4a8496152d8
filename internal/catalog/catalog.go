// Package catalog holds the fixed integration catalog and report templates.
package catalog

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

type Integration struct {
	Type     string `yaml:"type" json:"type"`
	Name     string `yaml:"name" json:"name"`
	Icon     string `yaml:"icon" json:"icon"`
	Category string `yaml:"category" json:"category"`
}

type ReportTemplate struct {
	Key         string `yaml:"key" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
}

type document struct {
	Integrations    []Integration    `yaml:"integrations"`
	ReportTemplates []ReportTemplate `yaml:"report_templates"`
}

var (
	loadOnce sync.Once
	loaded   document
)

func load() document {
	loadOnce.Do(func() {
		doc, err := parse(catalogYAML)
		if err != nil {
			panic(err)
		}
		loaded = doc
	})
	return loaded
}

func parse(data []byte) (document, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("failed to parse catalog: %w", err)
	}

	seen := make(map[string]bool)
	for _, in := range doc.Integrations {
		if in.Type == "" || in.Name == "" {
			return doc, fmt.Errorf("catalog integration missing type or name")
		}
		if seen[in.Type] {
			return doc, fmt.Errorf("duplicate catalog integration %q", in.Type)
		}
		seen[in.Type] = true
	}
	for _, t := range doc.ReportTemplates {
		if t.Key == "" || t.Name == "" {
			return doc, fmt.Errorf("catalog report template missing key or name")
		}
	}
	return doc, nil
}

// Integrations returns a copy of the integration catalog in display order.
func Integrations() []Integration {
	src := load().Integrations
	out := make([]Integration, len(src))
	copy(out, src)
	return out
}

func LookupIntegration(sourceType string) (Integration, bool) {
	for _, in := range load().Integrations {
		if in.Type == sourceType {
			return in, true
		}
	}
	return Integration{}, false
}

// ReportTemplates returns a copy of the report templates in display order.
func ReportTemplates() []ReportTemplate {
	src := load().ReportTemplates
	out := make([]ReportTemplate, len(src))
	copy(out, src)
	return out
}

func LookupTemplate(key string) (ReportTemplate, bool) {
	for _, t := range load().ReportTemplates {
		if t.Key == key {
			return t, true
		}
	}
	return ReportTemplate{}, false
}
