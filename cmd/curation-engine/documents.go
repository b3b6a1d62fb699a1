// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/curation-engine/internal/knowledge"
	"github.com/pdiddy/curation-engine/pkg/types"
)

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "Inspect and export stored documents",
}

// --- show subcommand ---

var documentsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one document with its edges and model calls",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentsShow,
}

type documentView struct {
	types.Document `yaml:",inline"`
	Edges          []types.RelationshipEdge `json:"edges,omitempty" yaml:"edges,omitempty"`
	Calls          []types.AgentCallLog     `json:"calls,omitempty" yaml:"calls,omitempty"`
}

func runDocumentsShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, _, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	doc, err := store.GetDocument(ctx, args[0])
	if err != nil {
		return err
	}
	edges, err := store.ListEdges(ctx, doc.ID)
	if err != nil {
		return err
	}
	calls, err := store.CallsForDocument(ctx, doc.ID)
	if err != nil {
		return err
	}

	view := documentView{Document: *doc, Edges: edges, Calls: calls}
	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	defer enc.Close()
	return enc.Encode(view)
}

// --- list subcommand ---

var documentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored documents, newest first",
	RunE:  runDocumentsList,
}

func runDocumentsList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, _, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	docs, err := store.ListDocuments(ctx, queryFromFlags(cmd))
	if err != nil {
		return err
	}
	return formatDocumentList(docs, cmd.OutOrStdout())
}

func formatDocumentList(docs []types.Document, w io.Writer) error {
	if len(docs) == 0 {
		fmt.Fprintln(w, "No documents found.")
		return nil
	}

	fmt.Fprintf(w, "%-36s  %-12s  %-4s  %-5s  %s\n", "ID", "Status", "Diff", "Rel", "Title")
	fmt.Fprintln(w, strings.Repeat("-", 100))
	for _, d := range docs {
		fmt.Fprintf(w, "%-36s  %-12s  %-4d  %-5.2f  %s\n",
			d.ID, d.Curation.Status, d.Curation.Difficulty, d.Curation.RelevanceScore, truncate(d.Title, 40))
	}
	fmt.Fprintf(w, "\n%d documents\n", len(docs))
	return nil
}

// --- export subcommand ---

var documentsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export documents to YAML, JSON or CSL-YAML",
	Long: `Export writes the stored documents (or a filtered subset) with their
outgoing edges. The csl format emits a bibliography Pandoc can cite from.`,
	RunE: runDocumentsExport,
}

func runDocumentsExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	output, _ := cmd.Flags().GetString("output")

	ctx := cmd.Context()
	store, _, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	w := cmd.OutOrStdout()
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("creating %s: %w", output, err)
		}
		defer f.Close()
		w = f
	}

	if err := store.Export(ctx, w, knowledge.ExportFormat(format), queryFromFlags(cmd)); err != nil {
		return err
	}
	if output != "" {
		fmt.Fprintf(os.Stderr, "Exported to %s\n", output)
	}
	return nil
}

// --- shared helpers ---

func queryFromFlags(cmd *cobra.Command) knowledge.DocumentQuery {
	status, _ := cmd.Flags().GetString("status")
	domain, _ := cmd.Flags().GetString("domain")
	ecosystem, _ := cmd.Flags().GetString("ecosystem")
	limit, _ := cmd.Flags().GetInt("limit")
	return knowledge.DocumentQuery{
		Status:       types.CurationStatus(status),
		DomainTag:    domain,
		EcosystemTag: ecosystem,
		Limit:        limit,
	}
}

func init() {
	documentsShowCmd.Flags().Bool("json", false, "output as JSON instead of YAML")

	for _, c := range []*cobra.Command{documentsListCmd, documentsExportCmd} {
		c.Flags().String("status", "", "filter by status: approved, rejected, needs-review")
		c.Flags().String("domain", "", "filter by domain tag")
		c.Flags().String("ecosystem", "", "filter by ecosystem tag")
		c.Flags().Int("limit", 0, "maximum documents (0 = all)")
	}
	documentsExportCmd.Flags().String("format", "yaml", "export format: yaml, json or csl")
	documentsExportCmd.Flags().StringP("output", "o", "", "write to file instead of stdout")

	documentsCmd.AddCommand(documentsShowCmd)
	documentsCmd.AddCommand(documentsListCmd)
	documentsCmd.AddCommand(documentsExportCmd)

	rootCmd.AddCommand(documentsCmd)
}
