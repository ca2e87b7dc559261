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
	"strings"
	"time"
)

// DefaultSearchLimit caps search results when no limit is given.
const DefaultSearchLimit = 50

// SearchFilters narrow a case search. Zero-valued fields are ignored; set
// fields compose with AND.
type SearchFilters struct {
	// DateFrom and DateTo bound the case date (inclusive, ISO date strings).
	DateFrom string `json:"date_from,omitempty"`
	DateTo   string `json:"date_to,omitempty"`

	// AppealType matches exactly.
	AppealType string `json:"appeal_type,omitempty"`

	// OutcomeContains is a substring match on the outcome text.
	OutcomeContains string `json:"outcome_contains,omitempty"`

	// Keywords keeps cases whose keyword set intersects this list.
	Keywords []string `json:"keywords,omitempty"`
}

// SearchCases returns cases matching the full-text query and filters, newest
// first. The query restricts to full-text index matches when non-empty. Every
// call is logged to search history before results are returned.
func (s *Store) SearchCases(ctx context.Context, query string, filters SearchFilters, limit int) ([]*CaseRecord, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	if err := s.logSearch(ctx, query, filters); err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)

	if query != "" {
		where = append(where, `id IN (SELECT rowid FROM cases_fts WHERE cases_fts MATCH ?)`)
		args = append(args, query)
	}
	if filters.DateFrom != "" {
		where = append(where, `date >= ?`)
		args = append(args, filters.DateFrom)
	}
	if filters.DateTo != "" {
		where = append(where, `date <= ?`)
		args = append(args, filters.DateTo)
	}
	if filters.AppealType != "" {
		where = append(where, `appeal_type = ?`)
		args = append(args, filters.AppealType)
	}
	if filters.OutcomeContains != "" {
		where = append(where, `outcome LIKE '%' || ? || '%'`)
		args = append(args, filters.OutcomeContains)
	}
	if len(filters.Keywords) > 0 {
		placeholders := strings.Repeat("?,", len(filters.Keywords))
		where = append(where, fmt.Sprintf(
			`id IN (SELECT case_id FROM case_keywords WHERE keyword IN (%s))`,
			placeholders[:len(placeholders)-1]))
		for _, keyword := range filters.Keywords {
			args = append(args, keyword)
		}
	}

	sqlQuery := caseColumns + ` FROM cases`
	if len(where) > 0 {
		sqlQuery += ` WHERE ` + strings.Join(where, " AND ")
	}
	sqlQuery += ` ORDER BY date DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search cases: %w", err)
	}
	defer rows.Close()

	var results []*CaseRecord
	for rows.Next() {
		record, err := s.scanCase(ctx, rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan case: %w", err)
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cases: %w", err)
	}

	for _, record := range results {
		if err := s.loadKeywords(ctx, record); err != nil {
			return nil, err
		}
	}

	return results, nil
}

// logSearch appends the query and serialized filters to search history.
func (s *Store) logSearch(ctx context.Context, query string, filters SearchFilters) error {
	filtersJSON, err := json.Marshal(filters)
	if err != nil {
		return fmt.Errorf("failed to marshal filters: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO search_history (query, filters, created_at) VALUES (?, ?, ?)`,
		query, string(filtersJSON), time.Now().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to log search: %w", err)
	}
	return nil
}

// allCases loads every case with its keywords.
func (s *Store) allCases(ctx context.Context) ([]*CaseRecord, error) {
	rows, err := s.db.QueryContext(ctx, caseColumns+` FROM cases ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}
	defer rows.Close()

	var results []*CaseRecord
	for rows.Next() {
		record, err := s.scanCase(ctx, rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan case: %w", err)
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cases: %w", err)
	}

	for _, record := range results {
		if err := s.loadKeywords(ctx, record); err != nil {
			return nil, err
		}
	}
	return results, nil
}
