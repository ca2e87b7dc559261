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

package casedb

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// CaseRelationship is a directed similarity edge between two cases.
type CaseRelationship struct {
	ID               int64   `json:"id"`
	CaseID1          int64   `json:"case_id_1"`
	CaseID2          int64   `json:"case_id_2"`
	SimilarityScore  float64 `json:"similarity_score"`
	RelationshipType string  `json:"relationship_type"`
	CreatedAt        string  `json:"created_at"`
}

// AnalysisResult summarizes one similarity-analysis run.
type AnalysisResult struct {
	ID               int64   `json:"id"`
	UserCaseSummary  string  `json:"user_case_summary"`
	FavorableCount   int     `json:"favorable_count"`
	UnfavorableCount int     `json:"unfavorable_count"`
	Recommendations  string  `json:"recommendations"`
	Confidence       float64 `json:"confidence"`
	CreatedAt        string  `json:"created_at"`
}

// Statistics aggregates store contents.
type Statistics struct {
	TotalCases        int            `json:"total_cases"`
	OutcomeStatistics map[string]int `json:"outcome_statistics"`
	CommonKeywords    []KeywordCount `json:"common_keywords"`
	RecentSearches    []string       `json:"recent_searches"`
	DatabasePath      string         `json:"database_path"`
}

// KeywordCount is a keyword with its usage count.
type KeywordCount struct {
	Keyword string `json:"keyword"`
	Count   int    `json:"count"`
}

// AddCaseRelationship upserts a directed edge between two cases.
func (s *Store) AddCaseRelationship(ctx context.Context, caseID1, caseID2 int64, score float64, relationshipType string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO case_relationships (case_id_1, case_id_2, similarity_score, relationship_type, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (case_id_1, case_id_2, relationship_type)
		DO UPDATE SET similarity_score = excluded.similarity_score, created_at = excluded.created_at`,
		caseID1, caseID2, score, relationshipType, time.Now().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to add case relationship: %w", err)
	}
	return nil
}

// CaseRelationships returns all edges with the given case as source, newest
// first with score as the tiebreak.
func (s *Store) CaseRelationships(ctx context.Context, caseID int64) ([]*CaseRelationship, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, case_id_1, case_id_2, similarity_score, relationship_type, created_at
		FROM case_relationships WHERE case_id_1 = ?
		ORDER BY created_at DESC, similarity_score DESC`, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list case relationships: %w", err)
	}
	defer rows.Close()

	var edges []*CaseRelationship
	for rows.Next() {
		var edge CaseRelationship
		if err := rows.Scan(&edge.ID, &edge.CaseID1, &edge.CaseID2,
			&edge.SimilarityScore, &edge.RelationshipType, &edge.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan case relationship: %w", err)
		}
		edges = append(edges, &edge)
	}
	return edges, rows.Err()
}

// SaveAnalysisResult appends an analysis run summary.
func (s *Store) SaveAnalysisResult(ctx context.Context, result *AnalysisResult) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO case_analysis (user_case_summary, favorable_count, unfavorable_count,
			recommendations, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		result.UserCaseSummary, result.FavorableCount, result.UnfavorableCount,
		result.Recommendations, result.Confidence, time.Now().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to save analysis result: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read analysis id: %w", err)
	}
	result.ID = id
	return id, nil
}

// Statistics returns aggregate counts across the store.
func (s *Store) Statistics(ctx context.Context) (*Statistics, error) {
	stats := &Statistics{
		OutcomeStatistics: map[string]int{"Favorable": 0, "Unfavorable": 0, "Other": 0},
		DatabasePath:      s.path,
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cases`).Scan(&stats.TotalCases); err != nil {
		return nil, fmt.Errorf("failed to count cases: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT COALESCE(outcome, '') FROM cases`)
	if err != nil {
		return nil, fmt.Errorf("failed to read outcomes: %w", err)
	}
	for rows.Next() {
		var outcome string
		if err := rows.Scan(&outcome); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		stats.OutcomeStatistics[bucketOutcome(outcome)]++
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to read outcomes: %w", err)
	}
	rows.Close()

	keywordRows, err := s.db.QueryContext(ctx, `
		SELECT keyword, COUNT(*) AS n FROM case_keywords
		GROUP BY keyword ORDER BY n DESC, keyword LIMIT 10`)
	if err != nil {
		return nil, fmt.Errorf("failed to read keyword counts: %w", err)
	}
	for keywordRows.Next() {
		var kc KeywordCount
		if err := keywordRows.Scan(&kc.Keyword, &kc.Count); err != nil {
			keywordRows.Close()
			return nil, fmt.Errorf("failed to scan keyword count: %w", err)
		}
		stats.CommonKeywords = append(stats.CommonKeywords, kc)
	}
	if err := keywordRows.Err(); err != nil {
		keywordRows.Close()
		return nil, fmt.Errorf("failed to read keyword counts: %w", err)
	}
	keywordRows.Close()

	searchRows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(query, '') FROM search_history ORDER BY id DESC LIMIT 5`)
	if err != nil {
		return nil, fmt.Errorf("failed to read search history: %w", err)
	}
	defer searchRows.Close()
	for searchRows.Next() {
		var query string
		if err := searchRows.Scan(&query); err != nil {
			return nil, fmt.Errorf("failed to scan search history: %w", err)
		}
		stats.RecentSearches = append(stats.RecentSearches, query)
	}
	if err := searchRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read search history: %w", err)
	}

	return stats, nil
}

// bucketOutcome classifies an outcome into Favorable, Unfavorable, or Other.
func bucketOutcome(outcome string) string {
	lower := strings.ToLower(outcome)
	switch {
	case strings.Contains(lower, "allowed") || strings.Contains(lower, "granted"):
		return "Favorable"
	case strings.Contains(lower, "dismissed") || strings.Contains(lower, "denied"):
		return "Unfavorable"
	default:
		return "Other"
	}
}

// ExportCases writes every case, keywords expanded, to path in the given
// format. Only JSON is supported.
func (s *Store) ExportCases(ctx context.Context, path, format string) (string, error) {
	if !strings.EqualFold(format, "json") {
		return "", fmt.Errorf("unsupported export format %q (only json is supported)", format)
	}

	cases, err := s.allCases(ctx)
	if err != nil {
		return "", err
	}
	if cases == nil {
		cases = []*CaseRecord{}
	}

	data, err := json.MarshalIndent(cases, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal cases: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write export: %w", err)
	}
	return path, nil
}
