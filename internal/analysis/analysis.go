// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package analysis turns pre-segmented document sections into the bounded
// text the agents read.
package analysis

import (
	"fmt"
	"strings"

	"github.com/pdiddy/curation-engine/pkg/types"
)

// DefaultMaxChars bounds the analysis text when the caller passes zero.
const DefaultMaxChars = 15000

// Prepare assembles title and sections in priority order: the abstract is
// always kept, then the introduction while under 60% of maxChars, the
// conclusion while under 80%, and the methodology while under maxChars.
func Prepare(title string, s types.Sections, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	limit := float64(maxChars)

	var parts []string
	length := 0

	if title != "" {
		parts = append(parts, "TITLE: "+title)
		length += len(title) + 10
	}
	if s.Abstract != "" {
		parts = append(parts, "\nABSTRACT:\n"+s.Abstract)
		length += len(s.Abstract) + 15
	}
	if s.Introduction != "" && float64(length+len(s.Introduction)) < limit*0.6 {
		parts = append(parts, "\nINTRODUCTION:\n"+s.Introduction)
		length += len(s.Introduction) + 20
	}
	if s.Conclusion != "" && float64(length+len(s.Conclusion)) < limit*0.8 {
		parts = append(parts, "\nCONCLUSION:\n"+s.Conclusion)
		length += len(s.Conclusion) + 15
	}
	if s.Methodology != "" && length+len(s.Methodology) < maxChars {
		parts = append(parts, "\nMETHODOLOGY:\n"+s.Methodology)
	}

	return strings.Join(parts, "\n")
}

// Truncate cuts text to at most n bytes on a rune boundary and appends
// "..." when anything was removed.
func Truncate(text string, n int) string {
	if n <= 0 || len(text) <= n {
		return text
	}
	cut := n
	for cut > 0 && !isRuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// section is a chunk of Markdown under one heading.
type section struct {
	heading string
	body    string
}

// FromMarkdown maps the ## / ### sections of a converted document onto the
// four sections the agents use. The first matching heading wins for each
// slot; text before any heading is treated as the abstract when no
// Abstract heading exists.
func FromMarkdown(content string) types.Sections {
	var out types.Sections
	var preamble string

	for _, sec := range chunkByHeadings(content) {
		body := strings.TrimSpace(sec.body)
		if body == "" {
			continue
		}
		if sec.heading == "" {
			preamble = body
			continue
		}
		switch classify(sec.heading) {
		case "abstract":
			if out.Abstract == "" {
				out.Abstract = body
			}
		case "introduction":
			if out.Introduction == "" {
				out.Introduction = body
			}
		case "methodology":
			if out.Methodology == "" {
				out.Methodology = body
			}
		case "conclusion":
			if out.Conclusion == "" {
				out.Conclusion = body
			}
		}
	}
	if out.Abstract == "" {
		out.Abstract = preamble
	}
	return out
}

// Title returns the text of the first level-one heading, if any.
func Title(content string) string {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(trimmed, "# "))
		}
	}
	return ""
}

var headingKeywords = []struct {
	slot     string
	keywords []string
}{
	{"abstract", []string{"abstract", "summary"}},
	{"introduction", []string{"introduction", "background", "motivation"}},
	{"conclusion", []string{"conclusion", "discussion", "concluding"}},
	{"methodology", []string{"method", "approach", "system design", "design", "implementation"}},
}

func classify(heading string) string {
	h := strings.ToLower(stripNumbering(heading))
	for _, hk := range headingKeywords {
		for _, kw := range hk.keywords {
			if strings.HasPrefix(h, kw) || strings.Contains(h, " "+kw) {
				return hk.slot
			}
		}
	}
	return ""
}

// stripNumbering removes a leading "1.", "2.3" or "IV." from a heading.
func stripNumbering(heading string) string {
	fields := strings.Fields(heading)
	if len(fields) < 2 {
		return heading
	}
	first := strings.TrimSuffix(fields[0], ".")
	if strings.Trim(first, "0123456789.") == "" || strings.Trim(first, "IVXLivxl") == "" {
		return strings.Join(fields[1:], " ")
	}
	return heading
}

// chunkByHeadings splits Markdown into sections at ## or ### headings.
// Page markers like <!-- page 3 --> are dropped.
func chunkByHeadings(content string) []section {
	var sections []section
	currentHeading := ""
	var bodyLines []string

	flush := func() {
		body := strings.Join(bodyLines, "\n")
		if currentHeading != "" || strings.TrimSpace(body) != "" {
			sections = append(sections, section{heading: currentHeading, body: body})
		}
		bodyLines = nil
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if isPageMarker(trimmed) || strings.HasPrefix(trimmed, "# ") {
			continue
		}
		if strings.HasPrefix(trimmed, "## ") || strings.HasPrefix(trimmed, "### ") {
			flush()
			currentHeading = strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
			continue
		}
		bodyLines = append(bodyLines, line)
	}
	flush()
	return sections
}

func isPageMarker(line string) bool {
	if !strings.HasPrefix(line, "<!-- page ") || !strings.HasSuffix(line, " -->") {
		return false
	}
	var page int
	_, err := fmt.Sscanf(strings.TrimSuffix(strings.TrimPrefix(line, "<!-- page "), " -->"), "%d", &page)
	return err == nil
}
