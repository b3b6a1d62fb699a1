// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/curation-engine/internal/analysis"
	"github.com/pdiddy/curation-engine/internal/pipeline"
	"github.com/pdiddy/curation-engine/pkg/types"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [files...]",
	Short: "Curate, synthesize and store documents",
	Long: `Ingest runs each document through the Curator and, when approved, the
Synthesizer, then stores the result, writes relationship edges and derives
pending memories.

Files may be JSON or YAML ingestion requests, or Markdown/plain text. For
Markdown the title comes from the first heading, sections are detected
from the headings, and the document id is the file name without extension
so re-ingesting a file updates the stored document.

Use --title and --abstract to ingest a single document without a file.`,
	RunE: runIngest,
}

func runIngest(cmd *cobra.Command, args []string) error {
	var reqs []types.IngestRequest
	for _, path := range args {
		req, err := readIngestFile(path)
		if err != nil {
			return err
		}
		reqs = append(reqs, req)
	}
	if title, _ := cmd.Flags().GetString("title"); title != "" {
		id, _ := cmd.Flags().GetString("id")
		abstract, _ := cmd.Flags().GetString("abstract")
		reqs = append(reqs, types.IngestRequest{ID: id, Title: title, Abstract: abstract})
	}
	if len(reqs) == 0 {
		return fmt.Errorf("nothing to ingest: pass files or --title")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	jsonOutput, _ := cmd.Flags().GetBool("json")
	failed := ingestAll(ctx, a.pipeline, reqs, cmd.OutOrStdout(), jsonOutput)
	if failed > 0 {
		return fmt.Errorf("%d document(s) failed", failed)
	}
	return nil
}

type ingester interface {
	Ingest(ctx context.Context, req types.IngestRequest) (*pipeline.Outcome, error)
}

// ingestAll processes reqs in order and reports one line per document.
// It returns the number of failures.
func ingestAll(ctx context.Context, p ingester, reqs []types.IngestRequest, w io.Writer, jsonOutput bool) int {
	failed := 0
	var outcomes []*pipeline.Outcome
	for _, req := range reqs {
		out, err := p.Ingest(ctx, req)
		if err != nil {
			failed++
			fmt.Fprintf(w, "FAIL  %-40s  %v\n", truncate(req.Title, 40), err)
			continue
		}
		if jsonOutput {
			outcomes = append(outcomes, out)
			continue
		}
		fmt.Fprintf(w, "%-12s  %-36s  %-40s  edges=%d memories=%d\n",
			out.Status, out.DocumentID, truncate(req.Title, 40), out.Edges.Written, out.MemoriesCreated)
	}
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(outcomes)
	}
	return failed
}

// readIngestFile loads one ingestion request from path.
func readIngestFile(path string) (types.IngestRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.IngestRequest{}, fmt.Errorf("reading %s: %w", path, err)
	}

	var req types.IngestRequest
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &req); err != nil {
			return req, fmt.Errorf("parsing %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &req); err != nil {
			return req, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		req = requestFromMarkdown(path, string(data))
	}
	return req, nil
}

func requestFromMarkdown(path, content string) types.IngestRequest {
	base := filepath.Base(path)
	req := types.IngestRequest{
		ID:       strings.TrimSuffix(base, filepath.Ext(base)),
		Title:    analysis.Title(content),
		FullText: content,
	}
	if req.Title == "" {
		req.Title = req.ID
	}
	secs := analysis.FromMarkdown(content)
	if !secs.IsEmpty() {
		req.Sections = &secs
		req.Abstract = secs.Abstract
	}
	return req
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	ingestCmd.Flags().String("title", "", "title of a single document to ingest")
	ingestCmd.Flags().String("abstract", "", "abstract for --title")
	ingestCmd.Flags().String("id", "", "document id for --title (default: generated)")
	ingestCmd.Flags().Bool("json", false, "print outcomes as JSON")

	rootCmd.AddCommand(ingestCmd)
}
