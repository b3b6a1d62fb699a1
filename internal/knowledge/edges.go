// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package knowledge

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/pdiddy/curation-engine/pkg/types"
)

// EdgeSummary counts the outcome of one WriteEdges call.
type EdgeSummary struct {
	Written int
	Skipped int
}

// WriteEdges records the relationships proposed for sourceID during
// synthesis run. Relationships pointing at the source itself, at an unknown
// kind, or at a document that is missing or not approved are skipped.
// Edge ids are derived from (source, run, target, kind), so replaying the
// same run inserts nothing new.
func (s *Store) WriteEdges(ctx context.Context, sourceID, run string, rels []types.RelatedDocument) (EdgeSummary, error) {
	var summary EdgeSummary
	if len(rels) == 0 {
		return summary, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return summary, persistErr("beginning edge transaction", err)
	}
	defer tx.Rollback()

	now := formatTime(time.Now())
	statusQ := tx.Rebind(`SELECT status FROM documents WHERE id = ?`)
	insertQ := tx.Rebind(`INSERT INTO relationship_edges
		(id, source_id, target_id, kind, strength, explanation, synthesis_run, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`)

	for _, rel := range rels {
		if rel.DocumentID == sourceID {
			s.logger.Warn("skipping self-referencing edge", "document", sourceID)
			summary.Skipped++
			continue
		}
		if !rel.Relationship.Valid() {
			s.logger.Warn("skipping edge with unknown kind", "document", sourceID, "kind", rel.Relationship)
			summary.Skipped++
			continue
		}

		var status string
		err := tx.GetContext(ctx, &status, statusQ, rel.DocumentID)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && status != string(types.StatusApproved)) {
			s.logger.Warn("skipping edge to missing or unapproved document",
				"document", sourceID, "target", rel.DocumentID)
			summary.Skipped++
			continue
		}
		if err != nil {
			return EdgeSummary{}, persistErr("checking edge target", err)
		}

		id := stableID(sourceID, run, rel.DocumentID, string(rel.Relationship))
		res, err := tx.ExecContext(ctx, insertQ,
			id, sourceID, rel.DocumentID, string(rel.Relationship),
			clamp01(rel.Strength), rel.Explanation, run, now)
		if err != nil {
			return EdgeSummary{}, persistErr("inserting edge", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			summary.Written++
		}
	}

	if err := tx.Commit(); err != nil {
		return EdgeSummary{}, persistErr("committing edges", err)
	}
	return summary, nil
}

type edgeRow struct {
	ID          string  `db:"id"`
	SourceID    string  `db:"source_id"`
	TargetID    string  `db:"target_id"`
	Kind        string  `db:"kind"`
	Strength    float64 `db:"strength"`
	Explanation string  `db:"explanation"`
	CreatedAt   string  `db:"created_at"`
}

// ListEdges returns the edges in which id is the source or the target.
func (s *Store) ListEdges(ctx context.Context, id string) ([]types.RelationshipEdge, error) {
	var rows []edgeRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(
		`SELECT id, source_id, target_id, kind, strength, explanation, created_at
		 FROM relationship_edges
		 WHERE source_id = ? OR target_id = ?
		 ORDER BY created_at, id`), id, id)
	if err != nil {
		return nil, persistErr("listing edges", err)
	}

	edges := make([]types.RelationshipEdge, len(rows))
	for i, r := range rows {
		edges[i] = types.RelationshipEdge{
			ID:          r.ID,
			SourceID:    r.SourceID,
			TargetID:    r.TargetID,
			Kind:        types.RelationshipKind(r.Kind),
			Strength:    r.Strength,
			Explanation: r.Explanation,
			CreatedAt:   parseTime(r.CreatedAt),
		}
	}
	return edges, nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
