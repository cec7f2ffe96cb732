package ai

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultMaxOutputTokens  = 8192
	extendedMaxOutputTokens = 30000
)

// ModelRef identifies a catalog model. It is stored with each session.
type ModelRef struct {
	ID          string       `json:"id" yaml:"id"`
	DisplayName string       `json:"name" yaml:"name"`
	Provider    ProviderKind `json:"provider" yaml:"provider"`
}

type Capabilities struct {
	MaxOutputTokens  int  `json:"maxOutputTokens" yaml:"max_output_tokens"`
	SupportsTopK     bool `json:"supportsTopK" yaml:"supports_top_k"`
	SupportsJSONMode bool `json:"supportsJSONMode" yaml:"supports_json_mode"`
}

type Model struct {
	ModelRef     `yaml:",inline"`
	Capabilities `yaml:",inline"`
}

// Family gives capabilities to every model id starting with Prefix, so
// dated and "-latest" aliases of a listed model share its limits.
type Family struct {
	Prefix       string       `yaml:"prefix"`
	Provider     ProviderKind `yaml:"provider"`
	Capabilities `yaml:",inline"`
}

type Catalog struct {
	models   []Model
	byID     map[string]int
	families []Family
}

func openAIModel(id, name string) Model {
	return Model{
		ModelRef:     ModelRef{ID: id, DisplayName: name, Provider: ProviderOpenAI},
		Capabilities: Capabilities{MaxOutputTokens: defaultMaxOutputTokens, SupportsJSONMode: true},
	}
}

func anthropicModel(id, name string, maxOut int) Model {
	return Model{
		ModelRef:     ModelRef{ID: id, DisplayName: name, Provider: ProviderAnthropic},
		Capabilities: Capabilities{MaxOutputTokens: maxOut, SupportsTopK: true},
	}
}

func defaultFamilies() []Family {
	return []Family{{
		Prefix:       "claude-3-7-",
		Provider:     ProviderAnthropic,
		Capabilities: Capabilities{MaxOutputTokens: extendedMaxOutputTokens, SupportsTopK: true},
	}}
}

// DefaultCatalog lists the models offered out of the box. The first entry is
// the default model for new sessions.
func DefaultCatalog() *Catalog {
	c, _ := NewCatalog([]Model{
		openAIModel("gpt-4o", "GPT-4o"),
		openAIModel("gpt-4-turbo", "GPT-4 Turbo"),
		openAIModel("gpt-4o-mini", "GPT-4o Mini"),
		openAIModel("gpt-3.5-turbo", "GPT-3.5 Turbo"),
		anthropicModel("claude-3-7-sonnet-20250219", "Claude 3.7 Sonnet", extendedMaxOutputTokens),
		anthropicModel("claude-3-5-sonnet-20241022", "Claude 3.5 Sonnet", defaultMaxOutputTokens),
		anthropicModel("claude-3-opus-20240229", "Claude 3 Opus", defaultMaxOutputTokens),
		anthropicModel("claude-3-sonnet-20240229", "Claude 3 Sonnet", defaultMaxOutputTokens),
		anthropicModel("claude-3-haiku-20240307", "Claude 3 Haiku", defaultMaxOutputTokens),
	}, defaultFamilies()...)
	return c
}

func NewCatalog(models []Model, families ...Family) (*Catalog, error) {
	if len(models) == 0 {
		return nil, fmt.Errorf("catalog: no models")
	}
	c := &Catalog{byID: make(map[string]int, len(models))}
	for _, m := range models {
		m.ID = strings.TrimSpace(m.ID)
		if m.ID == "" {
			return nil, fmt.Errorf("catalog: model with empty id")
		}
		if !m.Provider.Valid() {
			return nil, fmt.Errorf("catalog: model %s: unknown provider %q", m.ID, m.Provider)
		}
		if m.DisplayName == "" {
			m.DisplayName = m.ID
		}
		if m.MaxOutputTokens <= 0 {
			m.MaxOutputTokens = defaultMaxOutputTokens
		}
		if i, ok := c.byID[m.ID]; ok {
			c.models[i] = m
			continue
		}
		c.byID[m.ID] = len(c.models)
		c.models = append(c.models, m)
	}
	for _, f := range families {
		f.Prefix = strings.TrimSpace(f.Prefix)
		if f.Prefix == "" {
			return nil, fmt.Errorf("catalog: family with empty prefix")
		}
		if !f.Provider.Valid() {
			return nil, fmt.Errorf("catalog: family %s: unknown provider %q", f.Prefix, f.Provider)
		}
		if f.MaxOutputTokens <= 0 {
			f.MaxOutputTokens = defaultMaxOutputTokens
		}
		c.families = append(c.families, f)
	}
	return c, nil
}

type catalogFile struct {
	Replace  bool     `yaml:"replace"`
	Models   []Model  `yaml:"models"`
	Families []Family `yaml:"families"`
}

// LoadCatalogFile reads a YAML catalog. Entries extend the default catalog
// (same id overrides) unless the file sets replace: true.
func LoadCatalogFile(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}
	if f.Replace {
		return NewCatalog(f.Models, f.Families...)
	}
	return NewCatalog(append(DefaultCatalog().Models(), f.Models...), append(defaultFamilies(), f.Families...)...)
}

func (c *Catalog) Models() []Model {
	return append([]Model(nil), c.models...)
}

func (c *Catalog) Refs() []ModelRef {
	out := make([]ModelRef, 0, len(c.models))
	for _, m := range c.models {
		out = append(out, m.ModelRef)
	}
	return out
}

func (c *Catalog) Default() ModelRef {
	return c.models[0].ModelRef
}

func (c *Catalog) Lookup(id string) (Model, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Model{}, false
	}
	return c.models[i], true
}

// CapabilitiesFor returns the capability record for ref: the exact catalog
// entry, else the longest matching family prefix, else the conservative
// defaults of the provider.
func (c *Catalog) CapabilitiesFor(ref ModelRef) Capabilities {
	if m, ok := c.Lookup(ref.ID); ok && m.Provider == ref.Provider {
		return m.Capabilities
	}
	best := -1
	for i, f := range c.families {
		if f.Provider != ref.Provider || !strings.HasPrefix(ref.ID, f.Prefix) {
			continue
		}
		if best < 0 || len(f.Prefix) > len(c.families[best].Prefix) {
			best = i
		}
	}
	if best >= 0 {
		return c.families[best].Capabilities
	}
	v, _ := ref.Provider.Variant()
	return Capabilities{
		MaxOutputTokens:  defaultMaxOutputTokens,
		SupportsTopK:     v.SupportsTopK,
		SupportsJSONMode: v.SupportsOutputFormat,
	}
}
