// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/curation-engine/pkg/types"
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Finish edge and memory steps left incomplete by earlier runs",
	Long: `Resume finds stored documents whose relationship edges or memory
derivation did not complete, for example after a crash or a database
error, and runs the missing steps. Both steps are idempotent.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.pipeline.Resume(cmd.Context())
		fmt.Fprintf(cmd.OutOrStdout(), "%d document(s) completed\n", n)
		return err
	},
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Summarize model calls, tokens and stored documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, _, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		totals, err := store.UsageTotals(ctx)
		if err != nil {
			return err
		}
		counts, err := store.CountByStatus(ctx)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%-12s  %-32s  %6s  %10s  %10s  %10s  %10s\n",
			"Agent", "Model", "Calls", "In", "Out", "Cached", "Avg ms")
		fmt.Fprintln(w, strings.Repeat("-", 104))
		for _, t := range totals {
			avg := int64(0)
			if t.Calls > 0 {
				avg = t.LatencyMs / int64(t.Calls)
			}
			fmt.Fprintf(w, "%-12s  %-32s  %6d  %10d  %10d  %10d  %10d\n",
				t.Agent, truncate(t.Model, 32), t.Calls, t.TokensIn, t.TokensOut, t.CachedTokens, avg)
		}

		statuses := make([]string, 0, len(counts))
		for s := range counts {
			statuses = append(statuses, string(s))
		}
		sort.Strings(statuses)
		fmt.Fprintln(w)
		for _, s := range statuses {
			fmt.Fprintf(w, "%-12s  %d\n", s, counts[types.CurationStatus(s)])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(usageCmd)
}
