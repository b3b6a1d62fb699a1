// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/curation-engine/internal/memory"
	"github.com/pdiddy/curation-engine/pkg/types"
)

var memoriesCmd = &cobra.Command{
	Use:   "memories",
	Short: "Review pending memories",
	Long: `Memories are observations the agents made while processing documents.
They wait as pending until a reviewer approves or rejects them; only
validated memories are returned by recall.`,
}

// withMemories opens the store and runs fn against its memory service.
func withMemories(cmd *cobra.Command, fn func(svc *memory.Service) error) error {
	store, _, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(memory.NewService(store.DB(), logger))
}

var memoriesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List memories by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		jsonOutput, _ := cmd.Flags().GetBool("json")
		return withMemories(cmd, func(svc *memory.Service) error {
			mems, err := svc.List(cmd.Context(), status)
			if err != nil {
				return err
			}
			return formatMemories(mems, cmd.OutOrStdout(), jsonOutput)
		})
	},
}

var memoriesCreateCmd = &cobra.Command{
	Use:   "create <content>",
	Short: "Queue a memory for review unless a similar one exists",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("kind")
		confidence, _ := cmd.Flags().GetFloat64("confidence")
		agent, _ := cmd.Flags().GetString("agent")
		docs, _ := cmd.Flags().GetStringSlice("document")

		cand := memory.Candidate{
			Kind:        types.MemoryKind(kind),
			Content:     strings.Join(args, " "),
			Confidence:  confidence,
			SourceAgent: types.Agent(agent),
		}
		if len(docs) > 0 {
			cand.Evidence = &types.Evidence{DocumentIDs: docs}
		}
		return withMemories(cmd, func(svc *memory.Service) error {
			id, created, err := svc.CreateIfNotSimilar(cmd.Context(), cand)
			if err != nil {
				return err
			}
			if !created {
				fmt.Fprintln(cmd.OutOrStdout(), "A similar memory already exists; nothing created.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		})
	},
}

func reviewCommand(use, short string, decision types.MemoryStatus) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reviewer, _ := cmd.Flags().GetString("reviewer")
			notes, _ := cmd.Flags().GetString("notes")
			return withMemories(cmd, func(svc *memory.Service) error {
				m, err := svc.Review(cmd.Context(), args[0], decision, reviewer, notes)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", m.ID, m.Status)
				return nil
			})
		},
	}
}

var (
	memoriesApproveCmd = reviewCommand("approve", "Validate a pending memory", types.MemoryValidated)
	memoriesRejectCmd  = reviewCommand("reject", "Reject a pending memory", types.MemoryRejected)
)

var memoriesArchiveCmd = &cobra.Command{
	Use:   "archive <id>",
	Short: "Retire a reviewed memory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reviewer, _ := cmd.Flags().GetString("reviewer")
		return withMemories(cmd, func(svc *memory.Service) error {
			if err := svc.Archive(cmd.Context(), args[0], reviewer); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", args[0], types.MemoryArchived)
			return nil
		})
	},
}

var memoriesRecallCmd = &cobra.Command{
	Use:   "recall",
	Short: "Print validated memories and record their use",
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("kind")
		jsonOutput, _ := cmd.Flags().GetBool("json")
		return withMemories(cmd, func(svc *memory.Service) error {
			mems, err := svc.Recall(cmd.Context(), types.MemoryKind(kind))
			if err != nil {
				return err
			}
			return formatMemories(mems, cmd.OutOrStdout(), jsonOutput)
		})
	},
}

func formatMemories(mems []types.Memory, w io.Writer, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(mems)
	}
	if len(mems) == 0 {
		fmt.Fprintln(w, "No memories found.")
		return nil
	}

	fmt.Fprintf(w, "%-36s  %-10s  %-10s  %-4s  %s\n", "ID", "Kind", "Status", "Conf", "Content")
	fmt.Fprintln(w, strings.Repeat("-", 110))
	for _, m := range mems {
		fmt.Fprintf(w, "%-36s  %-10s  %-10s  %-4.2f  %s\n",
			m.ID, m.Kind, m.Status, m.Confidence, truncate(m.Content, 50))
	}
	fmt.Fprintf(w, "\n%d memories\n", len(mems))
	return nil
}

func init() {
	memoriesListCmd.Flags().String("status", "pending", "pending, validated, rejected, archived or all")
	memoriesListCmd.Flags().Bool("json", false, "output as JSON")

	memoriesCreateCmd.Flags().String("kind", string(types.MemorySemantic), "episodic, semantic, procedural or reflective")
	memoriesCreateCmd.Flags().Float64("confidence", memory.DefaultConfidence, "confidence in [0,1]")
	memoriesCreateCmd.Flags().String("agent", "", "source agent: curator, synthesizer, tutor, connector (required)")
	_ = memoriesCreateCmd.MarkFlagRequired("agent")
	memoriesCreateCmd.Flags().StringSlice("document", nil, "supporting document id (repeatable)")

	for _, c := range []*cobra.Command{memoriesApproveCmd, memoriesRejectCmd, memoriesArchiveCmd} {
		c.Flags().String("reviewer", "", "reviewer id (required)")
		_ = c.MarkFlagRequired("reviewer")
	}
	memoriesApproveCmd.Flags().String("notes", "", "review notes")
	memoriesRejectCmd.Flags().String("notes", "", "review notes")

	memoriesRecallCmd.Flags().String("kind", "", "only this kind")
	memoriesRecallCmd.Flags().Bool("json", false, "output as JSON")

	memoriesCmd.AddCommand(memoriesListCmd, memoriesCreateCmd, memoriesApproveCmd,
		memoriesRejectCmd, memoriesArchiveCmd, memoriesRecallCmd)

	rootCmd.AddCommand(memoriesCmd)
}
