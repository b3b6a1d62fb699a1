// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/curation-engine/pkg/types"
)

// ExportEntry is one document in a knowledge-base export, with the edges
// it originates.
type ExportEntry struct {
	types.Document `yaml:",inline"`
	Edges          []types.RelationshipEdge `json:"edges,omitempty" yaml:"edges,omitempty"`
}

// ExportFormat names an export encoding.
type ExportFormat string

const (
	FormatYAML ExportFormat = "yaml"
	FormatJSON ExportFormat = "json"
	FormatCSL  ExportFormat = "csl"
)

// Export writes the documents matching q to w in the given format.
func (s *Store) Export(ctx context.Context, w io.Writer, format ExportFormat, q DocumentQuery) error {
	docs, err := s.ListDocuments(ctx, q)
	if err != nil {
		return fmt.Errorf("querying for export: %w", err)
	}

	switch format {
	case FormatCSL:
		return FormatCSLItems(docs, w)
	case FormatJSON, FormatYAML, "":
	default:
		return fmt.Errorf("unknown export format %q", format)
	}

	entries := make([]ExportEntry, len(docs))
	for i, d := range docs {
		entries[i].Document = d
		edges, err := s.ListEdges(ctx, d.ID)
		if err != nil {
			return fmt.Errorf("querying edges for export: %w", err)
		}
		for _, e := range edges {
			if e.SourceID == d.ID {
				entries[i].Edges = append(entries[i].Edges, e)
			}
		}
	}

	if format == FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(entries)
}

// CSLItem is a bibliographic entry in CSL-YAML form, consumable by Pandoc
// and reference managers.
type CSLItem struct {
	ID       string    `yaml:"id"`
	Type     string    `yaml:"type"`
	Title    string    `yaml:"title"`
	Author   []CSLName `yaml:"author,omitempty"`
	Abstract string    `yaml:"abstract,omitempty"`
	Issued   *CSLDate  `yaml:"issued,omitempty"`
	DOI      string    `yaml:"DOI,omitempty"`
	URL      string    `yaml:"URL,omitempty"`
	Venue    string    `yaml:"container-title,omitempty"`
	Note     string    `yaml:"note,omitempty"`
	Keyword  string    `yaml:"keyword,omitempty"`
}

// CSLName is a person's name in CSL form.
type CSLName struct {
	Family  string `yaml:"family,omitempty"`
	Given   string `yaml:"given,omitempty"`
	Literal string `yaml:"literal,omitempty"`
}

// CSLDate is a CSL date using date-parts.
type CSLDate struct {
	DateParts [][]int `yaml:"date-parts"`
}

// FormatCSLItems writes docs as a CSL-YAML list to w.
func FormatCSLItems(docs []types.Document, w io.Writer) error {
	items := make([]CSLItem, len(docs))
	for i, d := range docs {
		items[i] = toCSLItem(d)
	}
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(items)
}

func toCSLItem(d types.Document) CSLItem {
	item := CSLItem{
		ID:       d.ID,
		Type:     "article",
		Title:    d.Title,
		Abstract: d.Abstract,
		Venue:    d.Venue,
		Keyword:  strings.Join(d.Curation.DomainTags, ", "),
	}
	if d.Synthesis != nil {
		item.Note = d.Synthesis.Summaries.OneLiner
	}

	for _, a := range d.Authors {
		item.Author = append(item.Author, parseAuthorName(a))
	}
	if d.Year > 0 {
		item.Issued = &CSLDate{DateParts: [][]int{{d.Year}}}
	}

	if doi := d.Identifiers["doi"]; doi != "" {
		item.DOI = doi
	}
	switch {
	case d.Identifiers["url"] != "":
		item.URL = d.Identifiers["url"]
	case d.Identifiers["arxiv"] != "":
		item.URL = "https://arxiv.org/abs/" + d.Identifiers["arxiv"]
	}
	return item
}

// parseAuthorName splits "Given Family" or "Family, Given" into CSL parts.
// Single-token names use the literal field.
func parseAuthorName(name string) CSLName {
	name = strings.TrimSpace(name)
	if name == "" {
		return CSLName{}
	}
	if family, given, ok := strings.Cut(name, ","); ok {
		return CSLName{Family: strings.TrimSpace(family), Given: strings.TrimSpace(given)}
	}
	idx := strings.LastIndex(name, " ")
	if idx < 0 {
		return CSLName{Literal: name}
	}
	return CSLName{
		Given:  name[:idx],
		Family: name[idx+1:],
	}
}
