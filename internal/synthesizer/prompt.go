// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package synthesizer

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/pdiddy/curation-engine/pkg/types"
)

// systemPrompt holds the Synthesizer's standing instructions.
const systemPrompt = `You are the Synthesizer for Dura, "The Knowledge Granary."

Your job: connect new documents to existing knowledge and write summaries a citizen scientist can use.

THE LIVESTOCK-KEEPER TEST
If a livestock keeper in rural Zimbabwe with intermittent connectivity would find the explanation useful, it passes.

For the rich summary:
- Use farming, cooking, family and local business analogies
- Short sentences, active voice
- No jargon without an immediate explanation
- Concrete, not abstract
- Example: "Zero-knowledge proofs are like showing your ID through a small window. The guard sees you are over 18 but cannot copy your address or photo."

SUMMARY TYPES:
1. ONE-LINER: under 100 characters, the hook that makes someone want to learn more
2. PARAGRAPH: 2-3 sentences for quick understanding
3. RICH: a multi-paragraph explanation built on local analogies. This is the most important one.

KEY CONCEPTS: for each important term give a simple definition, an analogy and why it matters.

LEARNING PATH: what to learn first, what to read next, and questions to think about.

RELATIONSHIPS to existing documents (use only ids from the list you are given):
- "builds-upon": this document extends ideas from the other
- "implements": this document puts the other's theory into practice
- "extends": this document adds to the other's scope
- "enables": this document makes the other possible

Return JSON only:
{
  "summaries": {
    "oneLiner": "under 100 chars, the hook",
    "paragraph": "2-3 sentences for quick understanding",
    "rich": "simplified explanation using local analogies"
  },
  "keyConcepts": [
    {"term": "...", "simpleDefinition": "...", "analogy": "...", "whyItMatters": "..."}
  ],
  "practicalImplications": ["..."],
  "learningPath": {"prerequisites": ["..."], "nextSteps": ["..."], "questions": ["..."]},
  "relatedDocuments": [
    {
      "documentId": "existing-document-id",
      "relationship": "builds-upon|implements|extends|enables",
      "strength": 0.0,
      "explanation": "why they are related"
    }
  ],
  "prerequisites": ["existing-document-id"]
}`

var userPromptTmpl = template.Must(template.New("synthesize").Funcs(template.FuncMap{
	"join": strings.Join,
}).Parse(`Synthesize this document:

NEW DOCUMENT:
- ID: {{.Doc.ID}}
- Title: {{.Doc.Title}}
- Abstract: {{.Doc.Abstract}}
- Domain tags: {{join .Doc.Curation.DomainTags ", "}}

EXISTING DOCUMENTS IN THE LIBRARY:
{{- if .Existing}}
{{- range .Existing}}
- ID: {{.ID}}, Title: {{.Title}}, Tags: {{join .DomainTags ", "}}
{{- end}}
{{- else}}
No existing documents yet.
{{- end}}

Write the summaries (especially a good rich one) and identify any relationships with existing documents.`))

// SystemPrompt returns the Synthesizer instructions.
func SystemPrompt() string {
	return systemPrompt
}

func renderUserPrompt(in Input) (string, error) {
	var buf bytes.Buffer
	err := userPromptTmpl.Execute(&buf, struct {
		Doc      types.Document
		Existing []types.DocumentRef
	}{in.Document, in.Existing})
	if err != nil {
		return "", fmt.Errorf("rendering synthesis request: %w", err)
	}
	return buf.String(), nil
}
