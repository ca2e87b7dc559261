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
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// CaseRecord is a persisted appeal decision.
type CaseRecord struct {
	ID           int64    `json:"id"`
	AppealNumber string   `json:"appeal_number"`
	Date         string   `json:"date,omitempty"` // ISO date, e.g. 2019-06-14
	AppealType   string   `json:"appeal_type,omitempty"`
	DecisionType string   `json:"decision_type,omitempty"`
	Issues       string   `json:"issues,omitempty"`
	CaseSummary  string   `json:"case_summary,omitempty"`
	Outcome      string   `json:"outcome,omitempty"`
	PDFURL       string   `json:"pdf_url,omitempty"`
	PDFPath      string   `json:"pdf_path,omitempty"`
	FullText     string   `json:"full_text,omitempty"`
	Keywords     []string `json:"keywords,omitempty"`
	CreatedAt    string   `json:"created_at,omitempty"`
	UpdatedAt    string   `json:"updated_at,omitempty"`
}

// Keyword category membership. Classification is substring based and
// case-insensitive; anything matching neither list is general.
var (
	medicalTerms = []string{
		"stenosis", "herniation", "radiculopathy", "spondylosis",
		"neuropathy", "disc", "spinal", "cervical", "lumbar",
	}
	legalTerms = []string{
		"compensable", "causation", "aggravation", "employment",
		"workplace", "appeal", "decision", "tribunal",
	}
)

// classifyKeyword buckets a keyword into medical, legal, or general.
func classifyKeyword(keyword string) string {
	lower := strings.ToLower(keyword)
	for _, term := range medicalTerms {
		if strings.Contains(lower, term) {
			return "medical"
		}
	}
	for _, term := range legalTerms {
		if strings.Contains(lower, term) {
			return "legal"
		}
	}
	return "general"
}

// AddCase upserts a case keyed on its appeal number. The row, its full-text
// index entry, and its keyword set are all rewritten in one transaction so
// the index never diverges from the row.
func (s *Store) AddCase(ctx context.Context, record *CaseRecord) (int64, error) {
	if record.AppealNumber == "" {
		return 0, fmt.Errorf("appeal number is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Format(time.RFC3339)

	var id int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM cases WHERE appeal_number = ?`, record.AppealNumber).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		result, err := tx.ExecContext(ctx, `
			INSERT INTO cases (appeal_number, date, appeal_type, decision_type,
				issues, case_summary, outcome, pdf_url, pdf_path, full_text,
				created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			record.AppealNumber, record.Date, record.AppealType, record.DecisionType,
			record.Issues, record.CaseSummary, record.Outcome,
			record.PDFURL, record.PDFPath, record.FullText, now, now)
		if err != nil {
			return 0, fmt.Errorf("failed to insert case: %w", err)
		}
		id, err = result.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("failed to read inserted id: %w", err)
		}
	case err != nil:
		return 0, fmt.Errorf("failed to look up case: %w", err)
	default:
		_, err = tx.ExecContext(ctx, `
			UPDATE cases SET date = ?, appeal_type = ?, decision_type = ?,
				issues = ?, case_summary = ?, outcome = ?, pdf_url = ?,
				pdf_path = ?, full_text = ?, updated_at = ?
			WHERE id = ?`,
			record.Date, record.AppealType, record.DecisionType,
			record.Issues, record.CaseSummary, record.Outcome,
			record.PDFURL, record.PDFPath, record.FullText, now, id)
		if err != nil {
			return 0, fmt.Errorf("failed to update case: %w", err)
		}
	}

	// Rewrite the full-text entry to match the current row.
	if _, err := tx.ExecContext(ctx, `DELETE FROM cases_fts WHERE rowid = ?`, id); err != nil {
		return 0, fmt.Errorf("failed to clear full-text entry: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO cases_fts (rowid, issues, case_summary, outcome, full_text)
		VALUES (?, ?, ?, ?, ?)`,
		id, record.Issues, record.CaseSummary, record.Outcome, record.FullText); err != nil {
		return 0, fmt.Errorf("failed to write full-text entry: %w", err)
	}

	// Replace the keyword set wholesale.
	if _, err := tx.ExecContext(ctx, `DELETE FROM case_keywords WHERE case_id = ?`, id); err != nil {
		return 0, fmt.Errorf("failed to clear keywords: %w", err)
	}
	for _, keyword := range record.Keywords {
		if keyword == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO case_keywords (case_id, keyword, category) VALUES (?, ?, ?)`,
			id, keyword, classifyKeyword(keyword)); err != nil {
			return 0, fmt.Errorf("failed to insert keyword: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit case: %w", err)
	}

	record.ID = id
	return id, nil
}

// GetCase retrieves a case with its keywords by appeal number.
func (s *Store) GetCase(ctx context.Context, appealNumber string) (*CaseRecord, error) {
	record, err := s.scanCase(ctx, s.db.QueryRowContext(ctx,
		caseColumns+` FROM cases WHERE appeal_number = ?`, appealNumber))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("case not found: %s", appealNumber)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get case: %w", err)
	}

	if err := s.loadKeywords(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

const caseColumns = `SELECT id, appeal_number, date, appeal_type, decision_type,
	issues, case_summary, outcome, pdf_url, pdf_path, full_text, created_at, updated_at`

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanCase reads one case row.
func (s *Store) scanCase(_ context.Context, row rowScanner) (*CaseRecord, error) {
	var record CaseRecord
	var date, appealType, decisionType sql.NullString
	var issues, summary, outcome, pdfURL, pdfPath, fullText sql.NullString

	err := row.Scan(
		&record.ID, &record.AppealNumber, &date, &appealType, &decisionType,
		&issues, &summary, &outcome, &pdfURL, &pdfPath, &fullText,
		&record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.Date = date.String
	record.AppealType = appealType.String
	record.DecisionType = decisionType.String
	record.Issues = issues.String
	record.CaseSummary = summary.String
	record.Outcome = outcome.String
	record.PDFURL = pdfURL.String
	record.PDFPath = pdfPath.String
	record.FullText = fullText.String
	return &record, nil
}

// loadKeywords populates the record's keyword list.
func (s *Store) loadKeywords(ctx context.Context, record *CaseRecord) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT keyword FROM case_keywords WHERE case_id = ? ORDER BY id`, record.ID)
	if err != nil {
		return fmt.Errorf("failed to load keywords: %w", err)
	}
	defer rows.Close()

	record.Keywords = nil
	for rows.Next() {
		var keyword string
		if err := rows.Scan(&keyword); err != nil {
			return fmt.Errorf("failed to scan keyword: %w", err)
		}
		record.Keywords = append(record.Keywords, keyword)
	}
	return rows.Err()
}
