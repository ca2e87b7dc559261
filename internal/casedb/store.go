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

// Package casedb provides a SQLite-backed store of workers' compensation
// appeal cases with full-text search and scored similarity queries.
package casedb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store is a SQLite case store.
type Store struct {
	db   *sql.DB
	path string
}

// Config contains SQLite connection configuration.
type Config struct {
	// Path is the database file path.
	Path string

	// WAL enables Write-Ahead Logging mode for concurrent reads.
	WAL bool
}

// New opens (creating if necessary) the case database at cfg.Path.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writes, so only 1 connection for writes
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{db: db, path: cfg.Path}

	if err := s.configurePragmas(ctx, cfg.WAL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure pragmas: %w", err)
	}

	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// configurePragmas sets SQLite configuration options.
func (s *Store) configurePragmas(ctx context.Context, enableWAL bool) error {
	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}

	if enableWAL {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}

	for _, pragma := range pragmas {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	return nil
}

// migrate runs database migrations.
func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS cases (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			appeal_number TEXT NOT NULL UNIQUE,
			date TEXT,
			appeal_type TEXT,
			decision_type TEXT,
			issues TEXT,
			case_summary TEXT,
			outcome TEXT,
			pdf_url TEXT,
			pdf_path TEXT,
			full_text TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cases_date ON cases(date)`,
		`CREATE INDEX IF NOT EXISTS idx_cases_appeal_type ON cases(appeal_type)`,
		`CREATE TABLE IF NOT EXISTS case_keywords (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			case_id INTEGER NOT NULL,
			keyword TEXT NOT NULL,
			category TEXT NOT NULL,
			FOREIGN KEY (case_id) REFERENCES cases(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_case_keywords_case_id ON case_keywords(case_id)`,
		`CREATE INDEX IF NOT EXISTS idx_case_keywords_keyword ON case_keywords(keyword)`,
		`CREATE TABLE IF NOT EXISTS case_relationships (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			case_id_1 INTEGER NOT NULL,
			case_id_2 INTEGER NOT NULL,
			similarity_score REAL NOT NULL,
			relationship_type TEXT NOT NULL,
			created_at TEXT NOT NULL,
			UNIQUE (case_id_1, case_id_2, relationship_type),
			FOREIGN KEY (case_id_1) REFERENCES cases(id) ON DELETE CASCADE,
			FOREIGN KEY (case_id_2) REFERENCES cases(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS search_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			query TEXT,
			filters TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS case_analysis (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_case_summary TEXT,
			favorable_count INTEGER DEFAULT 0,
			unfavorable_count INTEGER DEFAULT 0,
			recommendations TEXT,
			confidence REAL DEFAULT 0,
			created_at TEXT NOT NULL
		)`,
		// rowid tracks cases.id so one transaction can rewrite both.
		`CREATE VIRTUAL TABLE IF NOT EXISTS cases_fts USING fts5(
			issues, case_summary, outcome, full_text
		)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
