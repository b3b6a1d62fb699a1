// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package knowledge

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pdiddy/curation-engine/pkg/types"
)

// RecordCall appends one agent call log row.
func (s *Store) RecordCall(ctx context.Context, entry types.AgentCallLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO agent_calls
			(id, document_id, agent, model, tokens_in, tokens_out, cached_tokens, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		entry.ID, nullString(entry.DocumentID), string(entry.Agent), entry.Model,
		entry.Usage.TokensIn, entry.Usage.TokensOut, entry.Usage.CachedTokens,
		entry.LatencyMs, formatTime(entry.CreatedAt),
	)
	if err != nil {
		return persistErr("recording agent call", err)
	}
	return nil
}

// UsageTotals sums the call log per agent and model.
func (s *Store) UsageTotals(ctx context.Context) ([]types.UsageTotals, error) {
	var rows []struct {
		Agent        string `db:"agent"`
		Model        string `db:"model"`
		Calls        int    `db:"calls"`
		TokensIn     int    `db:"tokens_in"`
		TokensOut    int    `db:"tokens_out"`
		CachedTokens int    `db:"cached_tokens"`
		LatencyMs    int64  `db:"latency_ms"`
	}
	err := s.db.SelectContext(ctx, &rows,
		`SELECT agent, model, COUNT(*) AS calls,
			SUM(tokens_in) AS tokens_in, SUM(tokens_out) AS tokens_out,
			SUM(cached_tokens) AS cached_tokens, CAST(SUM(latency_ms) AS BIGINT) AS latency_ms
		 FROM agent_calls
		 GROUP BY agent, model
		 ORDER BY agent, model`)
	if err != nil {
		return nil, persistErr("summing usage", err)
	}

	out := make([]types.UsageTotals, len(rows))
	for i, r := range rows {
		out[i] = types.UsageTotals{
			Agent:        types.Agent(r.Agent),
			Model:        r.Model,
			Calls:        r.Calls,
			TokensIn:     r.TokensIn,
			TokensOut:    r.TokensOut,
			CachedTokens: r.CachedTokens,
			LatencyMs:    r.LatencyMs,
		}
	}
	return out, nil
}

// CallsForDocument returns the call log rows for one document, oldest first.
func (s *Store) CallsForDocument(ctx context.Context, documentID string) ([]types.AgentCallLog, error) {
	var rows []struct {
		ID           string `db:"id"`
		Agent        string `db:"agent"`
		Model        string `db:"model"`
		TokensIn     int    `db:"tokens_in"`
		TokensOut    int    `db:"tokens_out"`
		CachedTokens int    `db:"cached_tokens"`
		LatencyMs    int64  `db:"latency_ms"`
		CreatedAt    string `db:"created_at"`
	}
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(
		`SELECT id, agent, model, tokens_in, tokens_out, cached_tokens, latency_ms, created_at
		 FROM agent_calls WHERE document_id = ? ORDER BY created_at, id`), documentID)
	if err != nil {
		return nil, persistErr("listing agent calls", err)
	}

	out := make([]types.AgentCallLog, len(rows))
	for i, r := range rows {
		out[i] = types.AgentCallLog{
			ID:         r.ID,
			DocumentID: documentID,
			Agent:      types.Agent(r.Agent),
			Model:      r.Model,
			Usage:      types.Usage{TokensIn: r.TokensIn, TokensOut: r.TokensOut, CachedTokens: r.CachedTokens},
			LatencyMs:  r.LatencyMs,
			CreatedAt:  parseTime(r.CreatedAt),
		}
	}
	return out, nil
}
