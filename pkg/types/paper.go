// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// CurationStatus is the admission-control decision for a document.
type CurationStatus string

const (
	StatusApproved    CurationStatus = "approved"
	StatusRejected    CurationStatus = "rejected"
	StatusNeedsReview CurationStatus = "needs-review"
)

// Valid reports whether s is one of the three admission decisions.
// Matching is case-sensitive.
func (s CurationStatus) Valid() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusNeedsReview:
		return true
	}
	return false
}

// Sections holds text already segmented out of a source document by an
// external extractor. Any field may be empty.
type Sections struct {
	Abstract     string `json:"abstract,omitempty" yaml:"abstract,omitempty"`
	Introduction string `json:"introduction,omitempty" yaml:"introduction,omitempty"`
	Methodology  string `json:"methodology,omitempty" yaml:"methodology,omitempty"`
	Conclusion   string `json:"conclusion,omitempty" yaml:"conclusion,omitempty"`
}

// IsEmpty reports whether no section carries text.
func (s Sections) IsEmpty() bool {
	return s.Abstract == "" && s.Introduction == "" && s.Methodology == "" && s.Conclusion == ""
}

// IngestRequest is the inbound document handed to the pipeline.
type IngestRequest struct {
	// ID is optional; a new identifier is generated when empty.
	ID string `json:"id,omitempty" yaml:"id,omitempty"`

	// Title is required.
	Title string `json:"title" yaml:"title"`

	Abstract string    `json:"abstract,omitempty" yaml:"abstract,omitempty"`
	FullText string    `json:"fullText,omitempty" yaml:"full_text,omitempty"`
	Sections *Sections `json:"sections,omitempty" yaml:"sections,omitempty"`

	Authors     []string          `json:"authors,omitempty" yaml:"authors,omitempty"`
	Year        int               `json:"year,omitempty" yaml:"year,omitempty"`
	Venue       string            `json:"venue,omitempty" yaml:"venue,omitempty"`
	Identifiers map[string]string `json:"identifiers,omitempty" yaml:"identifiers,omitempty"`

	// Citation is the raw citation record (e.g. BibTeX) as supplied.
	Citation string `json:"citation,omitempty" yaml:"citation,omitempty"`
}

// CurationResult is the Curator's validated output for one document.
type CurationResult struct {
	// RelevanceScore is domain relevance in [0,1].
	RelevanceScore float64 `json:"relevanceScore" yaml:"relevance_score"`

	// AccessibilityScore is audience accessibility in [0,1].
	AccessibilityScore float64 `json:"accessibilityScore" yaml:"accessibility_score"`

	// Difficulty is a tier from 1 (no prerequisites) to 5 (research frontier).
	Difficulty int `json:"difficulty" yaml:"difficulty"`

	DomainTags       []string `json:"domainTags" yaml:"domain_tags"`
	EcosystemTags    []string `json:"ecosystemTags" yaml:"ecosystem_tags"`
	KeyContributions []string `json:"keyContributions,omitempty" yaml:"key_contributions,omitempty"`

	Status CurationStatus `json:"status" yaml:"status"`
	Notes  string         `json:"notes" yaml:"notes"`

	// PlainLanguageSummary is present only when Status is approved.
	PlainLanguageSummary string `json:"plainLanguageSummary,omitempty" yaml:"plain_language_summary,omitempty"`
}

// Summaries holds the three summary registers produced by the Synthesizer.
type Summaries struct {
	// OneLiner is a hook under 100 characters.
	OneLiner string `json:"oneLiner" yaml:"one_liner"`

	// Paragraph is two or three sentences.
	Paragraph string `json:"paragraph" yaml:"paragraph"`

	// Rich is the long explanatory register built on local analogies.
	Rich string `json:"rich" yaml:"rich"`
}

// KeyConcept explains one term from the document in plain language.
type KeyConcept struct {
	Term             string `json:"term" yaml:"term"`
	SimpleDefinition string `json:"simpleDefinition" yaml:"simple_definition"`
	Analogy          string `json:"analogy,omitempty" yaml:"analogy,omitempty"`
	WhyItMatters     string `json:"whyItMatters,omitempty" yaml:"why_it_matters,omitempty"`
}

// LearningPath places a document within a reader's progression.
type LearningPath struct {
	Prerequisites []string `json:"prerequisites,omitempty" yaml:"prerequisites,omitempty"`
	NextSteps     []string `json:"nextSteps,omitempty" yaml:"next_steps,omitempty"`
	Questions     []string `json:"questions,omitempty" yaml:"questions,omitempty"`
}

// RelatedDocument is a relationship proposed by the Synthesizer.
type RelatedDocument struct {
	DocumentID   string           `json:"documentId" yaml:"document_id"`
	Relationship RelationshipKind `json:"relationship" yaml:"relationship"`
	Strength     float64          `json:"strength" yaml:"strength"`
	Explanation  string           `json:"explanation" yaml:"explanation"`
}

// SynthesisResult is the Synthesizer's validated output for one document.
type SynthesisResult struct {
	Summaries             Summaries         `json:"summaries" yaml:"summaries"`
	KeyConcepts           []KeyConcept      `json:"keyConcepts,omitempty" yaml:"key_concepts,omitempty"`
	PracticalImplications []string          `json:"practicalImplications,omitempty" yaml:"practical_implications,omitempty"`
	LearningPath          *LearningPath     `json:"learningPath,omitempty" yaml:"learning_path,omitempty"`
	RelatedDocuments      []RelatedDocument `json:"relatedDocuments" yaml:"related_documents"`
	Prerequisites         []string          `json:"prerequisites,omitempty" yaml:"prerequisites,omitempty"`
}

// Document is the persisted record: source metadata plus the derived
// curation and synthesis fields. Enrichment fields stay empty unless the
// document was synthesized.
type Document struct {
	ID          string            `json:"id" yaml:"id"`
	Title       string            `json:"title" yaml:"title"`
	Abstract    string            `json:"abstract,omitempty" yaml:"abstract,omitempty"`
	Excerpt     string            `json:"excerpt,omitempty" yaml:"excerpt,omitempty"`
	Authors     []string          `json:"authors,omitempty" yaml:"authors,omitempty"`
	Year        int               `json:"year,omitempty" yaml:"year,omitempty"`
	Venue       string            `json:"venue,omitempty" yaml:"venue,omitempty"`
	Identifiers map[string]string `json:"identifiers,omitempty" yaml:"identifiers,omitempty"`
	Citation    string            `json:"citation,omitempty" yaml:"citation,omitempty"`

	Curation CurationResult `json:"curation" yaml:"curation"`

	// Synthesis is nil for documents that were not enriched.
	Synthesis *SynthesisResult `json:"synthesis,omitempty" yaml:"synthesis,omitempty"`

	// VocabularyVersion records the tag vocabulary the curation was validated against.
	VocabularyVersion string `json:"vocabularyVersion" yaml:"vocabulary_version"`

	// SynthesisRun identifies the synthesis that produced the current
	// enrichment fields. Edge ids are derived from it.
	SynthesisRun string `json:"synthesisRun,omitempty" yaml:"synthesis_run,omitempty"`

	ProcessedAt         time.Time  `json:"processedAt" yaml:"processed_at"`
	CreatedAt           time.Time  `json:"createdAt" yaml:"created_at"`
	EdgesWrittenAt      *time.Time `json:"edgesWrittenAt,omitempty" yaml:"edges_written_at,omitempty"`
	MemoriesExtractedAt *time.Time `json:"memoriesExtractedAt,omitempty" yaml:"memories_extracted_at,omitempty"`
}

// DocumentRef is the slim view of an approved document handed to the
// Synthesizer when searching for relationships.
type DocumentRef struct {
	ID         string   `json:"id" yaml:"id"`
	Title      string   `json:"title" yaml:"title"`
	DomainTags []string `json:"domainTags" yaml:"domain_tags"`
}
