// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cases implements the case database CLI commands.
package cases

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tombee/casenav/internal/casedb"
)

// NewCaseCommand creates the case command group.
func NewCaseCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "case",
		Short: "Manage the appeal case database",
	}

	cmd.PersistentFlags().String("db", "cases.db", "Path to the case database file")

	cmd.AddCommand(
		newAddCommand(),
		newSearchCommand(),
		newSimilarCommand(),
		newStatsCommand(),
		newExportCommand(),
	)
	return cmd
}

// openStore opens the store at the path given by the persistent --db flag.
func openStore(cmd *cobra.Command) (*casedb.Store, error) {
	path, err := cmd.Flags().GetString("db")
	if err != nil {
		return nil, err
	}
	return casedb.New(casedb.Config{Path: path, WAL: true})
}

func newAddCommand() *cobra.Command {
	var record casedb.CaseRecord

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or update a case (upsert by appeal number)",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			id, err := store.AddCase(cmd.Context(), &record)
			if err != nil {
				return err
			}
			cmd.Printf("case %s stored (id %d)\n", record.AppealNumber, id)
			return nil
		},
	}

	cmd.Flags().StringVar(&record.AppealNumber, "appeal-number", "", "Appeal number (required)")
	cmd.Flags().StringVar(&record.Date, "date", "", "Decision date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&record.AppealType, "appeal-type", "", "Appeal type")
	cmd.Flags().StringVar(&record.DecisionType, "decision-type", "", "Decision type")
	cmd.Flags().StringVar(&record.Issues, "issues", "", "Issues on appeal")
	cmd.Flags().StringVar(&record.CaseSummary, "summary", "", "Case summary")
	cmd.Flags().StringVar(&record.Outcome, "outcome", "", "Decision outcome")
	cmd.Flags().StringVar(&record.FullText, "full-text", "", "Full decision text")
	cmd.Flags().StringVar(&record.PDFURL, "pdf-url", "", "Source PDF URL")
	cmd.Flags().StringVar(&record.PDFPath, "pdf-path", "", "Local PDF path")
	cmd.Flags().StringSliceVar(&record.Keywords, "keywords", nil, "Case keywords (comma separated)")
	cmd.MarkFlagRequired("appeal-number")

	return cmd
}

func newSearchCommand() *cobra.Command {
	var (
		filters casedb.SearchFilters
		limit   int
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search cases by full text and filters",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			query := ""
			if len(args) == 1 {
				query = args[0]
			}

			results, err := store.SearchCases(cmd.Context(), query, filters, limit)
			if err != nil {
				return err
			}

			if jsonOut {
				return printJSON(cmd, results)
			}
			if len(results) == 0 {
				cmd.Println("no matching cases")
				return nil
			}
			for _, record := range results {
				cmd.Printf("%-12s %-12s %-16s %s\n",
					record.AppealNumber, record.Date, record.AppealType, record.Outcome)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&filters.DateFrom, "date-from", "", "Earliest decision date (inclusive)")
	cmd.Flags().StringVar(&filters.DateTo, "date-to", "", "Latest decision date (inclusive)")
	cmd.Flags().StringVar(&filters.AppealType, "appeal-type", "", "Exact appeal type")
	cmd.Flags().StringVar(&filters.OutcomeContains, "outcome-contains", "", "Substring of the outcome text")
	cmd.Flags().StringSliceVar(&filters.Keywords, "keyword", nil, "Keywords to intersect with")
	cmd.Flags().IntVar(&limit, "limit", casedb.DefaultSearchLimit, "Maximum results")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")

	return cmd
}

func newSimilarCommand() *cobra.Command {
	var (
		keywords []string
		summary  string
		minScore float64
		limit    int
		jsonOut  bool
	)

	cmd := &cobra.Command{
		Use:   "similar",
		Short: "Rank stored cases by similarity to a described case",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			matches, err := store.FindSimilarCases(cmd.Context(), keywords, summary, minScore, limit)
			if err != nil {
				return err
			}

			if jsonOut {
				return printJSON(cmd, matches)
			}
			if len(matches) == 0 {
				cmd.Println("no similar cases found")
				return nil
			}
			for _, match := range matches {
				cmd.Printf("%.3f  %-12s %s\n",
					match.SimilarityScore, match.AppealNumber, match.Outcome)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&keywords, "keyword", nil, "Keywords describing the user's case")
	cmd.Flags().StringVar(&summary, "summary", "", "Free-text summary of the user's case")
	cmd.Flags().Float64Var(&minScore, "min-similarity", 0.1, "Minimum similarity score")
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum results")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")

	return cmd
}

func newStatsCommand() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate case database statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := store.Statistics(cmd.Context())
			if err != nil {
				return err
			}

			if jsonOut {
				return printJSON(cmd, stats)
			}

			cmd.Printf("total cases: %d\n", stats.TotalCases)
			cmd.Printf("outcomes:    favorable %d, unfavorable %d, other %d\n",
				stats.OutcomeStatistics["Favorable"],
				stats.OutcomeStatistics["Unfavorable"],
				stats.OutcomeStatistics["Other"])
			if len(stats.CommonKeywords) > 0 {
				cmd.Println("common keywords:")
				for _, kc := range stats.CommonKeywords {
					cmd.Printf("  %-20s %d\n", kc.Keyword, kc.Count)
				}
			}
			cmd.Printf("database:    %s\n", stats.DatabasePath)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func newExportCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "export <path>",
		Short: "Export all cases to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			path, err := store.ExportCases(cmd.Context(), args[0], format)
			if err != nil {
				return err
			}
			cmd.Printf("exported to %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "Export format (json)")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
