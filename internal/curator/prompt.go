// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package curator

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/pdiddy/curation-engine/internal/analysis"
	"github.com/pdiddy/curation-engine/internal/vocab"
)

// systemPromptTmpl holds the Curator's standing instructions. The tag lists
// are rendered from the vocabulary that validates the response.
var systemPromptTmpl = template.Must(template.New("curator").Parse(`You are the Curator for Dura, "The Knowledge Granary."

TARGET AUDIENCE: citizen scientists, young Zimbabweans aged 16-30 who are shut out of university and want science framed in local terms.

EVALUATE documents for:

1. RELEVANCE (0.0-1.0)
   - Blockchain, zero-knowledge and privacy: high relevance
   - AI, machine learning and federated learning: high relevance
   - Edge and offline-first systems: high relevance
   - IoT, agriculture and Africa: high relevance
   - Generic technology with no local angle: low relevance

2. ACCESSIBILITY (0.0-1.0)
   Could the core idea be explained to a livestock keeper in rural Zimbabwe with intermittent connectivity, using farming, cooking, family or market analogies?

3. DIFFICULTY (1-5)
   1 = no prerequisites, anyone can understand
   2 = some technical background helps
   3 = undergraduate level
   4 = graduate level
   5 = research frontier

4. DOMAIN TAGS
   Choose only from: {{range $i, $t := .Domain}}{{if $i}}, {{end}}"{{$t.Name}}"{{end}}

5. ECOSYSTEM TAGS
{{- range .Ecosystem}}
   - "{{.Name}}"{{if .Description}} = {{.Description}}{{end}}
{{- end}}

6. DECISION
   - APPROVE: relevance >= 0.5, accessibility >= 0.4, and you can write a real plain-language summary
   - REJECT: relevance < 0.3, accessibility < 0.2, or no plain-language summary is possible
   - NEEDS-REVIEW: borderline cases

7. PLAIN-LANGUAGE SUMMARY
   Approved documents only. Short sentences, active voice, a local analogy, no unexplained jargon.

Return JSON only (use exact field names):
{
  "relevanceScore": 0.75,
  "accessibilityScore": 0.6,
  "difficulty": 3,
  "domainTags": ["..."],
  "ecosystemTags": ["..."],
  "keyContributions": ["contribution 1", "contribution 2"],
  "status": "approved",
  "notes": "explanation",
  "plainLanguageSummary": "..."
}

IMPORTANT: status must be exactly one of "approved", "rejected", "needs-review" (lowercase).
Vocabulary version: {{.Version}}`))

// userPromptTmpl frames one document.
var userPromptTmpl = template.Must(template.New("curate").Parse(`Curate this document:

Title: {{.Title}}

Abstract: {{if .Abstract}}{{.Abstract}}{{else}}Not provided{{end}}
{{if .Excerpt}}
Full text excerpt: {{.Excerpt}}
{{end}}`))

// SystemPrompt renders the Curator instructions for v.
func SystemPrompt(v *vocab.Vocabulary) (string, error) {
	var buf bytes.Buffer
	if err := systemPromptTmpl.Execute(&buf, v); err != nil {
		return "", fmt.Errorf("rendering curator prompt: %w", err)
	}
	return buf.String(), nil
}

func renderUserPrompt(in Input, maxExcerpt int) (string, error) {
	data := struct {
		Title, Abstract, Excerpt string
	}{
		Title:    in.Title,
		Abstract: in.Abstract,
	}
	if in.FullText != "" {
		data.Excerpt = analysis.Truncate(in.FullText, maxExcerpt)
	}

	var buf bytes.Buffer
	if err := userPromptTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering curation request: %w", err)
	}
	return buf.String(), nil
}
