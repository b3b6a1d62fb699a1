// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package memory

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/pdiddy/curation-engine/pkg/types"
)

// DefaultRichSummaryChars is the rich-summary length above which a
// procedural memory is recorded.
const DefaultRichSummaryChars = 1200

const highRelevanceLowAccessibility = "high relevance low accessibility"

// FromCuration derives candidates from a curation outcome:
// rejections with notes, high-relevance documents that read poorly, and
// approved ecosystem/domain tag combinations.
func FromCuration(docID, title string, res types.CurationResult) []Candidate {
	var out []Candidate

	if res.Status == types.StatusRejected && strings.TrimSpace(res.Notes) != "" {
		out = append(out, Candidate{
			Kind:        types.MemoryEpisodic,
			Content:     fmt.Sprintf("Document %q was rejected. Reason: %s", shorten(title, 50), res.Notes),
			Confidence:  0.6,
			SourceAgent: types.AgentCurator,
			Evidence: &types.Evidence{
				DocumentIDs:  []string{docID},
				Observations: []string{res.Notes},
			},
			DedupOn: res.Notes,
		})
	}

	if res.RelevanceScore > 0.7 && res.AccessibilityScore < 0.4 {
		obs := fmt.Sprintf("Document has high relevance (%.0f%%) but low accessibility (%.0f%%). Domain: %s",
			res.RelevanceScore*100, res.AccessibilityScore*100, strings.Join(res.DomainTags, ", "))
		out = append(out, Candidate{
			Kind:        types.MemorySemantic,
			Content:     obs,
			Confidence:  DefaultConfidence,
			SourceAgent: types.AgentCurator,
			Evidence: &types.Evidence{
				DocumentIDs:  []string{docID},
				Observations: []string{obs},
			},
			DedupOn: highRelevanceLowAccessibility,
		})
	}

	if res.Status == types.StatusApproved && len(res.EcosystemTags) > 0 {
		eco := strings.Join(res.EcosystemTags, ", ")
		dom := strings.Join(res.DomainTags, ", ")
		out = append(out, Candidate{
			Kind:        types.MemorySemantic,
			Content:     fmt.Sprintf("Document tagged with ecosystem: %s. Domain tags: %s. This combination was approved.", eco, dom),
			Confidence:  DefaultConfidence,
			SourceAgent: types.AgentCurator,
			Evidence: &types.Evidence{
				DocumentIDs:  []string{docID},
				Observations: []string{"Ecosystem: " + eco, "Domains: " + dom},
			},
			DedupOn: "ecosystem " + eco + " / " + dom,
		})
	}

	return out
}

// FromSynthesis derives candidates from a synthesis outcome: one per key
// concept, one for a rich summary longer than richChars, and one per
// proposed relationship with the relationship strength as confidence.
func FromSynthesis(docID, title string, res types.SynthesisResult, richChars int) []Candidate {
	if richChars <= 0 {
		richChars = DefaultRichSummaryChars
	}
	var out []Candidate

	for _, kc := range res.KeyConcepts {
		if strings.TrimSpace(kc.Term) == "" {
			continue
		}
		content := fmt.Sprintf("Concept %q: %s", kc.Term, kc.SimpleDefinition)
		var obs []string
		if kc.Analogy != "" {
			content += " Analogy: " + kc.Analogy
			obs = append(obs, kc.Analogy)
		}
		out = append(out, Candidate{
			Kind:        types.MemorySemantic,
			Content:     content,
			Confidence:  DefaultConfidence,
			SourceAgent: types.AgentSynthesizer,
			Evidence:    &types.Evidence{DocumentIDs: []string{docID}, Observations: obs},
			DedupOn:     "concept " + kc.Term,
		})
	}

	if n := len([]rune(res.Summaries.Rich)); n > richChars {
		out = append(out, Candidate{
			Kind:        types.MemoryProcedural,
			Content:     fmt.Sprintf("A %d-character explanatory summary was produced for %q; review its analogies as a template.", n, shorten(title, 50)),
			Confidence:  DefaultConfidence,
			SourceAgent: types.AgentSynthesizer,
			Evidence:    &types.Evidence{DocumentIDs: []string{docID}},
			DedupOn:     "procedural " + docID,
		})
	}

	for _, rel := range res.RelatedDocuments {
		out = append(out, Candidate{
			Kind:        types.MemoryEpisodic,
			Content:     fmt.Sprintf("Document %s %s document %s: %s", docID, rel.Relationship, rel.DocumentID, rel.Explanation),
			Confidence:  rel.Strength,
			SourceAgent: types.AgentSynthesizer,
			Evidence:    &types.Evidence{DocumentIDs: []string{docID, rel.DocumentID}},
			DedupOn:     "edge " + edgeKey(docID, string(rel.Relationship), rel.DocumentID),
		})
	}

	return out
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// edgeKey keeps relationship dedup keys inside the 50-character prefix
// whatever the id lengths.
func edgeKey(parts ...string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(strings.Join(parts, "\x00"))))[:16]
}
