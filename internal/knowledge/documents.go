// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pdiddy/curation-engine/pkg/types"
)

// documentRow is the documents table layout. List-valued fields are stored
// as JSON text so the schema is identical on SQLite and Postgres.
type documentRow struct {
	ID                   string         `db:"id"`
	Title                string         `db:"title"`
	Abstract             string         `db:"abstract"`
	Excerpt              string         `db:"excerpt"`
	Authors              string         `db:"authors"`
	Year                 int            `db:"year"`
	Venue                string         `db:"venue"`
	Identifiers          string         `db:"identifiers"`
	Citation             string         `db:"citation"`
	RelevanceScore       float64        `db:"relevance_score"`
	AccessibilityScore   float64        `db:"accessibility_score"`
	Difficulty           int            `db:"difficulty"`
	DomainTags           string         `db:"domain_tags"`
	EcosystemTags        string         `db:"ecosystem_tags"`
	KeyContributions     string         `db:"key_contributions"`
	Status               string         `db:"status"`
	Notes                string         `db:"notes"`
	PlainLanguageSummary sql.NullString `db:"plain_language_summary"`
	SummaryOneLiner      sql.NullString `db:"summary_one_liner"`
	SummaryParagraph     sql.NullString `db:"summary_paragraph"`
	SummaryRich          sql.NullString `db:"summary_rich"`
	SynthesisData        sql.NullString `db:"synthesis_data"`
	VocabularyVersion    string         `db:"vocabulary_version"`
	SynthesisRun         sql.NullString `db:"synthesis_run"`
	ProcessedAt          string         `db:"processed_at"`
	CreatedAt            string         `db:"created_at"`
	EdgesWrittenAt       sql.NullString `db:"edges_written_at"`
	MemoriesExtractedAt  sql.NullString `db:"memories_extracted_at"`
}

const documentCols = `id, title, abstract, excerpt, authors, year, venue, identifiers, citation,
	relevance_score, accessibility_score, difficulty, domain_tags, ecosystem_tags,
	key_contributions, status, notes, plain_language_summary, summary_one_liner,
	summary_paragraph, summary_rich, synthesis_data, vocabulary_version, synthesis_run,
	processed_at, created_at, edges_written_at, memories_extracted_at`

// UpsertDocument inserts doc or replaces every field except created_at.
// Completion markers are taken from doc, so a new synthesis run clears
// them. Enrichment fields of rejected documents are never stored.
func (s *Store) UpsertDocument(ctx context.Context, doc *types.Document) error {
	if doc.ID == "" {
		return fmt.Errorf("upserting document: empty id")
	}
	now := time.Now().UTC()
	if doc.ProcessedAt.IsZero() {
		doc.ProcessedAt = now
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if doc.Curation.Status == types.StatusRejected {
		doc.Synthesis = nil
		doc.Curation.PlainLanguageSummary = ""
	}

	row, err := toDocumentRow(doc)
	if err != nil {
		return fmt.Errorf("encoding document %s: %w", doc.ID, err)
	}

	_, err = s.db.NamedExecContext(ctx,
		`INSERT INTO documents (`+documentCols+`)
		 VALUES (:id, :title, :abstract, :excerpt, :authors, :year, :venue, :identifiers, :citation,
			:relevance_score, :accessibility_score, :difficulty, :domain_tags, :ecosystem_tags,
			:key_contributions, :status, :notes, :plain_language_summary, :summary_one_liner,
			:summary_paragraph, :summary_rich, :synthesis_data, :vocabulary_version, :synthesis_run,
			:processed_at, :created_at, :edges_written_at, :memories_extracted_at)
		 ON CONFLICT(id) DO UPDATE SET
			title=excluded.title, abstract=excluded.abstract, excerpt=excluded.excerpt,
			authors=excluded.authors, year=excluded.year, venue=excluded.venue,
			identifiers=excluded.identifiers, citation=excluded.citation,
			relevance_score=excluded.relevance_score, accessibility_score=excluded.accessibility_score,
			difficulty=excluded.difficulty, domain_tags=excluded.domain_tags,
			ecosystem_tags=excluded.ecosystem_tags, key_contributions=excluded.key_contributions,
			status=excluded.status, notes=excluded.notes,
			plain_language_summary=excluded.plain_language_summary,
			summary_one_liner=excluded.summary_one_liner, summary_paragraph=excluded.summary_paragraph,
			summary_rich=excluded.summary_rich, synthesis_data=excluded.synthesis_data,
			vocabulary_version=excluded.vocabulary_version, synthesis_run=excluded.synthesis_run,
			processed_at=excluded.processed_at, edges_written_at=excluded.edges_written_at,
			memories_extracted_at=excluded.memories_extracted_at`,
		row,
	)
	if err != nil {
		return persistErr("upserting document "+doc.ID, err)
	}
	return nil
}

// GetDocument loads one document. A missing id yields ErrNotFound.
func (s *Store) GetDocument(ctx context.Context, id string) (*types.Document, error) {
	var row documentRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT `+documentCols+` FROM documents WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, persistErr("loading document "+id, err)
	}
	return row.toDocument(), nil
}

// DocumentQuery filters ListDocuments. Zero fields match everything.
type DocumentQuery struct {
	Status       types.CurationStatus
	DomainTag    string
	EcosystemTag string
	Limit        int
}

// ListDocuments returns documents matching q, newest first.
func (s *Store) ListDocuments(ctx context.Context, q DocumentQuery) ([]types.Document, error) {
	var (
		qb   strings.Builder
		args []any
	)
	qb.WriteString(`SELECT ` + documentCols + ` FROM documents WHERE 1=1`)
	if q.Status != "" {
		qb.WriteString(` AND status = ?`)
		args = append(args, string(q.Status))
	}
	if q.DomainTag != "" {
		qb.WriteString(` AND domain_tags LIKE ?`)
		args = append(args, `%"`+q.DomainTag+`"%`)
	}
	if q.EcosystemTag != "" {
		qb.WriteString(` AND ecosystem_tags LIKE ?`)
		args = append(args, `%"`+q.EcosystemTag+`"%`)
	}
	qb.WriteString(` ORDER BY processed_at DESC, id`)
	if q.Limit > 0 {
		qb.WriteString(` LIMIT ?`)
		args = append(args, q.Limit)
	}

	var rows []documentRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(qb.String()), args...); err != nil {
		return nil, persistErr("listing documents", err)
	}
	docs := make([]types.Document, len(rows))
	for i := range rows {
		docs[i] = *rows[i].toDocument()
	}
	return docs, nil
}

// ListApproved returns the approved documents other than excludeID, in
// stable id order, as the slim refs handed to the Synthesizer.
func (s *Store) ListApproved(ctx context.Context, excludeID string) ([]types.DocumentRef, error) {
	var rows []struct {
		ID         string `db:"id"`
		Title      string `db:"title"`
		DomainTags string `db:"domain_tags"`
	}
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(
		`SELECT id, title, domain_tags FROM documents WHERE status = ? AND id <> ? ORDER BY id`),
		string(types.StatusApproved), excludeID)
	if err != nil {
		return nil, persistErr("listing approved documents", err)
	}

	refs := make([]types.DocumentRef, len(rows))
	for i, r := range rows {
		refs[i] = types.DocumentRef{ID: r.ID, Title: r.Title, DomainTags: decodeList(r.DomainTags)}
	}
	return refs, nil
}

// CountByStatus returns the number of documents per curation status.
func (s *Store) CountByStatus(ctx context.Context) (map[types.CurationStatus]int, error) {
	var rows []struct {
		Status string `db:"status"`
		N      int    `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS n FROM documents GROUP BY status`); err != nil {
		return nil, persistErr("counting documents", err)
	}
	out := make(map[types.CurationStatus]int, len(rows))
	for _, r := range rows {
		out[types.CurationStatus(r.Status)] = r.N
	}
	return out, nil
}

// MarkEdgesWritten records completion of the edge step for id.
func (s *Store) MarkEdgesWritten(ctx context.Context, id string) error {
	return s.mark(ctx, "edges_written_at", id)
}

// MarkMemoriesExtracted records completion of the memory step for id.
func (s *Store) MarkMemoriesExtracted(ctx context.Context, id string) error {
	return s.mark(ctx, "memories_extracted_at", id)
}

func (s *Store) mark(ctx context.Context, column, id string) error {
	res, err := s.db.ExecContext(ctx,
		s.db.Rebind(`UPDATE documents SET `+column+` = ? WHERE id = ?`),
		formatTime(time.Now()), id)
	if err != nil {
		return persistErr("marking "+column, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return nil
}

// PendingFollowUps returns persisted documents whose edge or memory step
// has not completed, oldest first.
func (s *Store) PendingFollowUps(ctx context.Context) ([]types.Document, error) {
	var rows []documentRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+documentCols+` FROM documents
		 WHERE (synthesis_data IS NOT NULL AND edges_written_at IS NULL)
			OR memories_extracted_at IS NULL
		 ORDER BY processed_at, id`)
	if err != nil {
		return nil, persistErr("listing pending follow-ups", err)
	}
	docs := make([]types.Document, len(rows))
	for i := range rows {
		docs[i] = *rows[i].toDocument()
	}
	return docs, nil
}

func toDocumentRow(d *types.Document) (documentRow, error) {
	c := d.Curation
	row := documentRow{
		ID:                   d.ID,
		Title:                d.Title,
		Abstract:             d.Abstract,
		Excerpt:              d.Excerpt,
		Authors:              encodeList(d.Authors),
		Year:                 d.Year,
		Venue:                d.Venue,
		Identifiers:          encodeMap(d.Identifiers),
		Citation:             d.Citation,
		RelevanceScore:       c.RelevanceScore,
		AccessibilityScore:   c.AccessibilityScore,
		Difficulty:           c.Difficulty,
		DomainTags:           encodeList(c.DomainTags),
		EcosystemTags:        encodeList(c.EcosystemTags),
		KeyContributions:     encodeList(c.KeyContributions),
		Status:               string(c.Status),
		Notes:                c.Notes,
		PlainLanguageSummary: nullString(c.PlainLanguageSummary),
		VocabularyVersion:    d.VocabularyVersion,
		SynthesisRun:         nullString(d.SynthesisRun),
		ProcessedAt:          formatTime(d.ProcessedAt),
		CreatedAt:            formatTime(d.CreatedAt),
		EdgesWrittenAt:       nullTime(d.EdgesWrittenAt),
		MemoriesExtractedAt:  nullTime(d.MemoriesExtractedAt),
	}
	if syn := d.Synthesis; syn != nil {
		data, err := json.Marshal(syn)
		if err != nil {
			return documentRow{}, err
		}
		row.SynthesisData = sql.NullString{String: string(data), Valid: true}
		row.SummaryOneLiner = nullString(syn.Summaries.OneLiner)
		row.SummaryParagraph = nullString(syn.Summaries.Paragraph)
		row.SummaryRich = nullString(syn.Summaries.Rich)
	}
	return row, nil
}

func (r *documentRow) toDocument() *types.Document {
	d := &types.Document{
		ID:          r.ID,
		Title:       r.Title,
		Abstract:    r.Abstract,
		Excerpt:     r.Excerpt,
		Authors:     decodeList(r.Authors),
		Year:        r.Year,
		Venue:       r.Venue,
		Identifiers: decodeMap(r.Identifiers),
		Citation:    r.Citation,
		Curation: types.CurationResult{
			RelevanceScore:       r.RelevanceScore,
			AccessibilityScore:   r.AccessibilityScore,
			Difficulty:           r.Difficulty,
			DomainTags:           decodeList(r.DomainTags),
			EcosystemTags:        decodeList(r.EcosystemTags),
			KeyContributions:     decodeList(r.KeyContributions),
			Status:               types.CurationStatus(r.Status),
			Notes:                r.Notes,
			PlainLanguageSummary: r.PlainLanguageSummary.String,
		},
		VocabularyVersion:   r.VocabularyVersion,
		SynthesisRun:        r.SynthesisRun.String,
		ProcessedAt:         parseTime(r.ProcessedAt),
		CreatedAt:           parseTime(r.CreatedAt),
		EdgesWrittenAt:      timePtr(r.EdgesWrittenAt),
		MemoriesExtractedAt: timePtr(r.MemoriesExtractedAt),
	}
	if r.SynthesisData.Valid {
		var syn types.SynthesisResult
		if err := json.Unmarshal([]byte(r.SynthesisData.String), &syn); err == nil {
			d.Synthesis = &syn
		}
	}
	return d
}

func encodeList(v []string) string {
	if v == nil {
		v = []string{}
	}
	data, _ := json.Marshal(v)
	return string(data)
}

func decodeList(s string) []string {
	out := []string{}
	if s != "" {
		json.Unmarshal([]byte(s), &out)
	}
	return out
}

func encodeMap(m map[string]string) string {
	if m == nil {
		return "{}"
	}
	data, _ := json.Marshal(m)
	return string(data)
}

func decodeMap(s string) map[string]string {
	if s == "" || s == "{}" {
		return nil
	}
	var out map[string]string
	json.Unmarshal([]byte(s), &out)
	return out
}
