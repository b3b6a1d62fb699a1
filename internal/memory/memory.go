// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package memory manages pending memories: observations derived from agent
// outputs that wait in a review queue until an administrator validates or
// rejects them. Validated memories can be recalled, which updates their
// usage counters.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/pdiddy/curation-engine/pkg/types"
)

// DefaultConfidence applies when a candidate carries none.
const DefaultConfidence = 0.5

// prefixLen is the number of runes compared by the similarity heuristic
// and kept in the dedup key.
const prefixLen = 50

var (
	// ErrNotFound reports a missing memory id.
	ErrNotFound = errors.New("memory not found")

	// ErrAlreadyReviewed reports a review of a memory that is no longer pending.
	ErrAlreadyReviewed = errors.New("memory already reviewed")

	// ErrInvalidTransition reports a status change the lifecycle forbids.
	ErrInvalidTransition = errors.New("invalid memory status transition")

	// ErrInvalid reports a malformed candidate or review request.
	ErrInvalid = errors.New("invalid memory request")

	// ErrMemoryExtraction wraps failures of the best-effort extraction step.
	ErrMemoryExtraction = errors.New("memory extraction failed")
)

// Candidate is a memory proposed for the review queue.
type Candidate struct {
	Kind        types.MemoryKind `json:"kind"`
	Content     string           `json:"content"`
	Confidence  float64          `json:"confidence,omitempty"`
	SourceAgent types.Agent      `json:"sourceAgent"`
	Evidence    *types.Evidence  `json:"evidence,omitempty"`

	// DedupOn is the text the similarity check and dedup key are built
	// from. Empty means Content.
	DedupOn string `json:"-"`
}

func (c Candidate) probe() string {
	if c.DedupOn != "" {
		return c.DedupOn
	}
	return c.Content
}

func (c Candidate) validate() error {
	var errs []string
	if !c.Kind.Valid() {
		errs = append(errs, fmt.Sprintf("invalid kind %q", c.Kind))
	}
	if strings.TrimSpace(c.Content) == "" {
		errs = append(errs, "empty content")
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		errs = append(errs, fmt.Sprintf("confidence %v out of range [0,1]", c.Confidence))
	}
	switch {
	case c.SourceAgent == "":
		errs = append(errs, "missing source agent")
	case !c.SourceAgent.Valid():
		errs = append(errs, fmt.Sprintf("invalid source agent %q", c.SourceAgent))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(errs, "; "))
	}
	return nil
}

// Service stores and reviews memories. It shares the knowledge store's
// database and schema.
type Service struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewService returns a memory service on db.
func NewService(db *sqlx.DB, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, logger: logger}
}

type memoryRow struct {
	ID          string         `db:"id"`
	Kind        string         `db:"kind"`
	Content     string         `db:"content"`
	Confidence  float64        `db:"confidence"`
	Status      string         `db:"status"`
	SourceAgent string         `db:"source_agent"`
	Evidence    sql.NullString `db:"evidence"`
	ReviewedBy  sql.NullString `db:"reviewed_by"`
	ReviewedAt  sql.NullString `db:"reviewed_at"`
	ReviewNotes sql.NullString `db:"review_notes"`
	CreatedAt   string         `db:"created_at"`
	LastUsedAt  sql.NullString `db:"last_used_at"`
	UseCount    int            `db:"use_count"`
}

const memoryCols = `id, kind, content, confidence, status, source_agent, evidence,
	reviewed_by, reviewed_at, review_notes, created_at, last_used_at, use_count`

// CreatePending stores c as a pending memory without any similarity check.
func (s *Service) CreatePending(ctx context.Context, c Candidate) (string, error) {
	if err := c.validate(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	if _, err := s.insert(ctx, s.db, id, c, sql.NullString{}); err != nil {
		return "", err
	}
	s.logger.Debug("pending memory created", "id", id, "kind", c.Kind, "agent", c.SourceAgent)
	return id, nil
}

// Exists reports whether a stored memory is similar to content: after
// lower-casing and trimming, either side contains the other's first 50
// characters. Dedup keys are compared the same way.
func (s *Service) Exists(ctx context.Context, content string) (bool, error) {
	return s.exists(ctx, s.db, content)
}

// CreateIfNotSimilar inserts c unless a similar memory exists. The check and
// the insert run in one transaction, and the dedup key is unique, so
// concurrent identical candidates collapse to one row.
func (s *Service) CreateIfNotSimilar(ctx context.Context, c Candidate) (string, bool, error) {
	if err := c.validate(); err != nil {
		return "", false, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", false, fmt.Errorf("beginning memory transaction: %w", err)
	}
	defer tx.Rollback()

	found, err := s.exists(ctx, tx, c.probe())
	if err != nil {
		return "", false, err
	}
	if found {
		return "", false, nil
	}

	id := uuid.NewString()
	key := sql.NullString{String: dedupKey(c.probe()), Valid: true}
	inserted, err := s.insert(ctx, tx, id, c, key)
	if err != nil {
		return "", false, err
	}
	if !inserted {
		return "", false, nil
	}
	if err := tx.Commit(); err != nil {
		return "", false, fmt.Errorf("committing memory: %w", err)
	}
	s.logger.Debug("pending memory created", "id", id, "kind", c.Kind, "agent", c.SourceAgent)
	return id, true, nil
}

func (s *Service) exists(ctx context.Context, q sqlx.QueryerContext, content string) (bool, error) {
	needle := normalize(content)
	if needle == "" {
		return false, nil
	}
	needlePrefix := prefix(needle)

	var rows []struct {
		Content  string         `db:"content"`
		DedupKey sql.NullString `db:"dedup_key"`
	}
	if err := sqlx.SelectContext(ctx, q, &rows, `SELECT content, dedup_key FROM memories`); err != nil {
		return false, fmt.Errorf("loading memories: %w", err)
	}

	for _, r := range rows {
		candidates := []string{normalize(r.Content)}
		if r.DedupKey.Valid {
			candidates = append(candidates, r.DedupKey.String)
		}
		for _, stored := range candidates {
			if stored == "" {
				continue
			}
			if strings.Contains(stored, needlePrefix) || strings.Contains(needle, prefix(stored)) {
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *Service) insert(ctx context.Context, e sqlx.ExtContext, id string, c Candidate, key sql.NullString) (bool, error) {
	confidence := c.Confidence
	if confidence == 0 {
		confidence = DefaultConfidence
	}
	var evidence sql.NullString
	if c.Evidence != nil {
		data, err := json.Marshal(c.Evidence)
		if err != nil {
			return false, fmt.Errorf("encoding evidence: %w", err)
		}
		evidence = sql.NullString{String: string(data), Valid: true}
	}

	res, err := e.ExecContext(ctx, e.Rebind(
		`INSERT INTO memories (id, kind, content, confidence, status, source_agent, evidence, created_at, use_count, dedup_key)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
		 ON CONFLICT(dedup_key) DO NOTHING`),
		id, string(c.Kind), c.Content, confidence, string(types.MemoryPending),
		string(c.SourceAgent), evidence, formatTime(time.Now()), key,
	)
	if err != nil {
		return false, fmt.Errorf("inserting memory: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return true, nil
	}
	return n > 0, nil
}

// Get loads one memory.
func (s *Service) Get(ctx context.Context, id string) (*types.Memory, error) {
	var row memoryRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT `+memoryCols+` FROM memories WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading memory %s: %w", id, err)
	}
	return row.toMemory(), nil
}

// List returns memories with the given status, or every memory for "all",
// newest first.
func (s *Service) List(ctx context.Context, status string) ([]types.Memory, error) {
	query := `SELECT ` + memoryCols + ` FROM memories`
	var args []any
	if status != "all" {
		if !types.MemoryStatus(status).Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalid, status)
		}
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id`

	var rows []memoryRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("listing memories: %w", err)
	}
	return toMemories(rows), nil
}

// Review moves a pending memory to validated or rejected. Only pending
// memories transition; a second review returns ErrAlreadyReviewed.
func (s *Service) Review(ctx context.Context, id string, decision types.MemoryStatus, reviewerID, notes string) (*types.Memory, error) {
	if decision != types.MemoryValidated && decision != types.MemoryRejected {
		return nil, fmt.Errorf("%w: decision must be validated or rejected, got %q", ErrInvalid, decision)
	}
	if strings.TrimSpace(reviewerID) == "" {
		return nil, fmt.Errorf("%w: reviewer id is required", ErrInvalid)
	}

	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE memories SET status = ?, reviewed_by = ?, reviewed_at = ?, review_notes = ?
		 WHERE id = ? AND status = ?`),
		string(decision), reviewerID, formatTime(time.Now()), notes, id, string(types.MemoryPending))
	if err != nil {
		return nil, fmt.Errorf("reviewing memory %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		m, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s is %s", ErrAlreadyReviewed, id, m.Status)
	}

	s.logger.Info("memory reviewed", "id", id, "decision", decision, "reviewer", reviewerID)
	return s.Get(ctx, id)
}

// Archive retires a reviewed memory. Pending and already archived memories
// cannot be archived.
func (s *Service) Archive(ctx context.Context, id, reviewerID string) error {
	if strings.TrimSpace(reviewerID) == "" {
		return fmt.Errorf("%w: reviewer id is required", ErrInvalid)
	}

	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE memories SET status = ? WHERE id = ? AND status IN (?, ?)`),
		string(types.MemoryArchived), id, string(types.MemoryValidated), string(types.MemoryRejected))
	if err != nil {
		return fmt.Errorf("archiving memory %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		m, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: cannot archive %s memory", ErrInvalidTransition, m.Status)
	}

	s.logger.Info("memory archived", "id", id, "by", reviewerID)
	return nil
}

// Recall returns validated memories, optionally of one kind, and records
// the use on each of them.
func (s *Service) Recall(ctx context.Context, kind types.MemoryKind) ([]types.Memory, error) {
	if kind != "" && !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalid, kind)
	}

	where := ` WHERE status = ?`
	args := []any{string(types.MemoryValidated)}
	if kind != "" {
		where += ` AND kind = ?`
		args = append(args, string(kind))
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning recall: %w", err)
	}
	defer tx.Rollback()

	updateArgs := append([]any{formatTime(time.Now())}, args...)
	if _, err := tx.ExecContext(ctx, tx.Rebind(
		`UPDATE memories SET last_used_at = ?, use_count = use_count + 1`+where), updateArgs...); err != nil {
		return nil, fmt.Errorf("touching recalled memories: %w", err)
	}

	var rows []memoryRow
	if err := tx.SelectContext(ctx, &rows, tx.Rebind(
		`SELECT `+memoryCols+` FROM memories`+where+` ORDER BY confidence DESC, created_at DESC`), args...); err != nil {
		return nil, fmt.Errorf("recalling memories: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing recall: %w", err)
	}
	return toMemories(rows), nil
}

func toMemories(rows []memoryRow) []types.Memory {
	out := make([]types.Memory, len(rows))
	for i := range rows {
		out[i] = *rows[i].toMemory()
	}
	return out
}

func (r *memoryRow) toMemory() *types.Memory {
	m := &types.Memory{
		ID:          r.ID,
		Kind:        types.MemoryKind(r.Kind),
		Content:     r.Content,
		Confidence:  r.Confidence,
		Status:      types.MemoryStatus(r.Status),
		SourceAgent: types.Agent(r.SourceAgent),
		ReviewedBy:  r.ReviewedBy.String,
		ReviewNotes: r.ReviewNotes.String,
		CreatedAt:   parseTime(r.CreatedAt),
		UseCount:    r.UseCount,
	}
	if r.Evidence.Valid {
		var ev types.Evidence
		if err := json.Unmarshal([]byte(r.Evidence.String), &ev); err == nil {
			m.Evidence = &ev
		}
	}
	if r.ReviewedAt.Valid {
		t := parseTime(r.ReviewedAt.String)
		m.ReviewedAt = &t
	}
	if r.LastUsedAt.Valid {
		t := parseTime(r.LastUsedAt.String)
		m.LastUsedAt = &t
	}
	return m
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func prefix(s string) string {
	r := []rune(s)
	if len(r) <= prefixLen {
		return s
	}
	return string(r[:prefixLen])
}

func dedupKey(s string) string {
	return prefix(normalize(s))
}

// timeLayout keeps a fixed-width fraction so created_at orders as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
