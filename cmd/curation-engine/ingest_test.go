// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/curation-engine/internal/pipeline"
	"github.com/pdiddy/curation-engine/pkg/types"
)

const markdownDoc = `# Sharded Ledgers for Village Co-ops

## Abstract
We split a ledger across committees so phones can verify it.

## Introduction
Co-ops need cheap bookkeeping.

## Conclusion
Committees of twelve suffice.
`

func TestReadIngestFile(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}

	tests := []struct {
		name string
		path string
		want func(t *testing.T, req types.IngestRequest)
	}{
		{
			name: "json request",
			path: write("doc.json", `{"id":"j1","title":"JSON doc","abstract":"a","year":2024}`),
			want: func(t *testing.T, req types.IngestRequest) {
				assert.Equal(t, "j1", req.ID)
				assert.Equal(t, "JSON doc", req.Title)
				assert.Equal(t, 2024, req.Year)
			},
		},
		{
			name: "yaml request",
			path: write("doc.yaml", "id: y1\ntitle: YAML doc\nfull_text: body\nauthors: [Ada Lovelace]\n"),
			want: func(t *testing.T, req types.IngestRequest) {
				assert.Equal(t, "y1", req.ID)
				assert.Equal(t, "body", req.FullText)
				assert.Equal(t, []string{"Ada Lovelace"}, req.Authors)
			},
		},
		{
			name: "markdown with sections",
			path: write("sharded-ledgers.md", markdownDoc),
			want: func(t *testing.T, req types.IngestRequest) {
				assert.Equal(t, "sharded-ledgers", req.ID)
				assert.Equal(t, "Sharded Ledgers for Village Co-ops", req.Title)
				assert.Equal(t, markdownDoc, req.FullText)
				require.NotNil(t, req.Sections)
				assert.Contains(t, req.Abstract, "split a ledger")
				assert.Contains(t, req.Sections.Conclusion, "twelve")
			},
		},
		{
			name: "plain text without heading uses file name",
			path: write("notes.txt", "just some notes"),
			want: func(t *testing.T, req types.IngestRequest) {
				assert.Equal(t, "notes", req.ID)
				assert.Equal(t, "notes", req.Title)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := readIngestFile(tt.path)
			require.NoError(t, err)
			tt.want(t, req)
		})
	}
}

func TestReadIngestFileErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"title":`), 0o644))

	_, err := readIngestFile(bad)
	assert.ErrorContains(t, err, "parsing")

	_, err = readIngestFile(filepath.Join(dir, "missing.md"))
	assert.ErrorContains(t, err, "reading")
}

type scriptedIngester struct {
	fail map[string]error
}

func (s scriptedIngester) Ingest(_ context.Context, req types.IngestRequest) (*pipeline.Outcome, error) {
	if err := s.fail[req.Title]; err != nil {
		return nil, err
	}
	return &pipeline.Outcome{DocumentID: req.ID, Status: types.StatusApproved, MemoriesCreated: 2}, nil
}

func TestIngestAll(t *testing.T) {
	p := scriptedIngester{fail: map[string]error{"Broken": errors.New("provider down")}}
	reqs := []types.IngestRequest{
		{ID: "a", Title: "Works"},
		{ID: "b", Title: "Broken"},
	}

	var buf bytes.Buffer
	failed := ingestAll(context.Background(), p, reqs, &buf, false)
	assert.Equal(t, 1, failed)
	assert.Contains(t, buf.String(), "approved")
	assert.Contains(t, buf.String(), "memories=2")
	assert.Contains(t, buf.String(), "FAIL")
	assert.Contains(t, buf.String(), "provider down")

	buf.Reset()
	failed = ingestAll(context.Background(), p, reqs[:1], &buf, true)
	assert.Zero(t, failed)
	assert.Contains(t, buf.String(), `"documentId": "a"`)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ééééééé...", truncate("éééééééééééé", 10))
}
