// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package vocab holds the versioned controlled vocabularies for domain and
// ecosystem tags. The same vocabulary is rendered into the Curator's
// instructions and used to validate the model's output, so tags outside it
// never reach the store.
package vocab

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"go.yaml.in/yaml/v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Term is one entry in a vocabulary.
type Term struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Vocabulary is a versioned pair of tag vocabularies.
type Vocabulary struct {
	Version   string `json:"version" yaml:"version"`
	Domain    []Term `json:"domain" yaml:"domain"`
	Ecosystem []Term `json:"ecosystem" yaml:"ecosystem"`

	domainSet    map[string]bool
	ecosystemSet map[string]bool
}

// Default returns the built-in vocabulary.
func Default() *Vocabulary {
	v, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("vocab: built-in vocabulary is invalid: %v", err))
	}
	return v
}

// Load reads a vocabulary from a YAML file. An empty path returns Default.
func Load(path string) (*Vocabulary, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading vocabulary %s: %w", path, err)
	}
	v, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("vocabulary %s: %w", path, err)
	}
	return v, nil
}

// Parse decodes and validates a YAML vocabulary.
func Parse(data []byte) (*Vocabulary, error) {
	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parsing vocabulary: %w", err)
	}

	var errs []string
	if strings.TrimSpace(v.Version) == "" {
		errs = append(errs, "missing version")
	}
	if len(v.Domain) == 0 {
		errs = append(errs, "empty domain vocabulary")
	}
	v.domainSet = make(map[string]bool, len(v.Domain))
	for i, t := range v.Domain {
		name := normalize(t.Name)
		if name == "" {
			errs = append(errs, fmt.Sprintf("domain term %d: empty name", i))
			continue
		}
		if v.domainSet[name] {
			errs = append(errs, fmt.Sprintf("domain term %q: duplicate", name))
		}
		v.Domain[i].Name = name
		v.domainSet[name] = true
	}
	v.ecosystemSet = make(map[string]bool, len(v.Ecosystem))
	for i, t := range v.Ecosystem {
		name := normalize(t.Name)
		if name == "" {
			errs = append(errs, fmt.Sprintf("ecosystem term %d: empty name", i))
			continue
		}
		if v.ecosystemSet[name] {
			errs = append(errs, fmt.Sprintf("ecosystem term %q: duplicate", name))
		}
		v.Ecosystem[i].Name = name
		v.ecosystemSet[name] = true
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid vocabulary: %s", strings.Join(errs, "; "))
	}
	return &v, nil
}

// FilterDomain returns the tags that belong to the domain vocabulary, in
// input order without duplicates, and the ones that were dropped.
func (v *Vocabulary) FilterDomain(tags []string) (kept, dropped []string) {
	return filter(tags, v.domainSet)
}

// FilterEcosystem is FilterDomain for the ecosystem vocabulary.
func (v *Vocabulary) FilterEcosystem(tags []string) (kept, dropped []string) {
	return filter(tags, v.ecosystemSet)
}

// DomainNames lists the domain tag names in declaration order.
func (v *Vocabulary) DomainNames() []string {
	return names(v.Domain)
}

// EcosystemNames lists the ecosystem tag names in declaration order.
func (v *Vocabulary) EcosystemNames() []string {
	return names(v.Ecosystem)
}

func filter(tags []string, allowed map[string]bool) (kept, dropped []string) {
	seen := make(map[string]bool, len(tags))
	kept = []string{}
	for _, tag := range tags {
		name := normalize(tag)
		if seen[name] {
			continue
		}
		seen[name] = true
		if allowed[name] {
			kept = append(kept, name)
		} else {
			dropped = append(dropped, tag)
		}
	}
	return kept, dropped
}

func names(terms []Term) []string {
	out := make([]string, len(terms))
	for i, t := range terms {
		out[i] = t.Name
	}
	return out
}

func normalize(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}
