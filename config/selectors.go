package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed selectors.yaml
var defaultSelectors []byte

// RuleSpec describes one selector strategy for a field
type RuleSpec struct {
	Selector string `yaml:"selector"`
	Attr     string `yaml:"attr,omitempty"`
	Join     bool   `yaml:"join,omitempty"`
	Own      bool   `yaml:"own,omitempty"`
}

// LinkSpec describes how candidate item links are found on a listing page
type LinkSpec struct {
	Selector    string   `yaml:"selector"`
	Allow       []string `yaml:"allow"`
	Deny        []string `yaml:"deny"`
	RequireTerm bool     `yaml:"require_term"`
}

// SourceSpec is the operator-tunable description of one content source
type SourceSpec struct {
	Name         string                `yaml:"name"`
	Kind         string                `yaml:"kind"`
	ListingURL   string                `yaml:"listing_url"`
	ReadyMarkers []string              `yaml:"ready_markers"`
	ReadyTimeout time.Duration         `yaml:"ready_timeout"`
	LinkCap      int                   `yaml:"link_cap"`
	ItemCap      int                   `yaml:"item_cap"`
	Links        LinkSpec              `yaml:"links"`
	ItemMarkers  []string              `yaml:"item_markers"`
	ItemTimeout  time.Duration         `yaml:"item_timeout"`
	ItemSelector string                `yaml:"item_selector"`
	ScrollSteps  int                   `yaml:"scroll_steps"`
	ScrollDelay  time.Duration         `yaml:"scroll_delay"`
	Fields       map[string][]RuleSpec `yaml:"fields"`
}

// PriceSpec describes the price history page
type PriceSpec struct {
	ListingURL   string        `yaml:"listing_url"`
	ReadyMarkers []string      `yaml:"ready_markers"`
	ReadyTimeout time.Duration `yaml:"ready_timeout"`
	Table        string        `yaml:"table"`
}

// Selectors is the root of the selector configuration
type Selectors struct {
	Sources []SourceSpec `yaml:"sources"`
	Prices  PriceSpec    `yaml:"prices"`
}

// LoadSelectors reads the selector file at path, or the embedded defaults when
// path is empty
func LoadSelectors(path string) (*Selectors, error) {
	data := defaultSelectors
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read selectors file: %w", err)
		}
	}
	return ParseSelectors(data)
}

// ParseSelectors decodes and validates a selector document
func ParseSelectors(data []byte) (*Selectors, error) {
	var sel Selectors
	if err := yaml.Unmarshal(data, &sel); err != nil {
		return nil, fmt.Errorf("parse selectors: %w", err)
	}
	if err := sel.Validate(); err != nil {
		return nil, err
	}
	return &sel, nil
}

// Validate checks every source for the settings the pipeline depends on
func (s *Selectors) Validate() error {
	for i, src := range s.Sources {
		if src.Name == "" {
			return fmt.Errorf("source %d: name is required", i)
		}
		if src.ListingURL == "" {
			return fmt.Errorf("source %s: listing_url is required", src.Name)
		}
		switch src.Kind {
		case "article":
			if src.Links.Selector == "" {
				return fmt.Errorf("source %s: links.selector is required for articles", src.Name)
			}
		case "post":
			if src.ItemSelector == "" {
				return fmt.Errorf("source %s: item_selector is required for posts", src.Name)
			}
		default:
			return fmt.Errorf("source %s: unknown kind %q", src.Name, src.Kind)
		}
		for field, rules := range src.Fields {
			for j, rule := range rules {
				if rule.Selector == "" {
					return fmt.Errorf("source %s: field %s rule %d has no selector", src.Name, field, j)
				}
			}
		}
	}
	return nil
}

// Source returns the source definition with the given name
func (s *Selectors) Source(name string) (SourceSpec, bool) {
	for _, src := range s.Sources {
		if src.Name == name {
			return src, true
		}
	}
	return SourceSpec{}, false
}

// Only returns a copy restricted to the named sources, in the order given.
// An empty list keeps every source.
func (s *Selectors) Only(names []string) (*Selectors, error) {
	if len(names) == 0 {
		return s, nil
	}
	out := &Selectors{Prices: s.Prices}
	for _, name := range names {
		src, ok := s.Source(strings.TrimSpace(name))
		if !ok {
			return nil, fmt.Errorf("unknown source %q", name)
		}
		out.Sources = append(out.Sources, src)
	}
	return out, nil
}
