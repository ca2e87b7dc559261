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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// createTestStore creates a store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := New(Config{
		Path: filepath.Join(t.TempDir(), "cases.db"),
		WAL:  true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleCase() *CaseRecord {
	return &CaseRecord{
		AppealNumber: "A001",
		Date:         "2019-06-14",
		AppealType:   "entitlement",
		Issues:       "spinal stenosis warehouse lifting",
		CaseSummary:  "worker developed spinal stenosis from repetitive warehouse lifting",
		Outcome:      "appeal allowed",
		Keywords:     []string{"stenosis", "warehouse", "lifting"},
	}
}

func TestAddCase_InsertAndGet(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	id, err := store.AddCase(ctx, sampleCase())
	require.NoError(t, err)
	require.Greater(t, id, int64(0))

	got, err := store.GetCase(ctx, "A001")
	require.NoError(t, err)
	require.Equal(t, id, got.ID)
	require.Equal(t, "appeal allowed", got.Outcome)
	require.Equal(t, []string{"stenosis", "warehouse", "lifting"}, got.Keywords)
	require.NotEmpty(t, got.CreatedAt)
}

func TestAddCase_RequiresAppealNumber(t *testing.T) {
	store := createTestStore(t)

	_, err := store.AddCase(context.Background(), &CaseRecord{Issues: "no number"})
	require.Error(t, err)
}

func TestAddCase_UpsertKeepsOneRowAndReindexes(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	first := sampleCase()
	first.Outcome = "appeal dismissed entirely"
	id1, err := store.AddCase(ctx, first)
	require.NoError(t, err)

	second := sampleCase()
	second.Outcome = "appeal allowed fully"
	second.Keywords = []string{"stenosis", "causation"}
	id2, err := store.AddCase(ctx, second)
	require.NoError(t, err)
	require.Equal(t, id1, id2, "upsert must reuse the existing row")

	got, err := store.GetCase(ctx, "A001")
	require.NoError(t, err)
	require.Equal(t, "appeal allowed fully", got.Outcome)
	require.Equal(t, []string{"stenosis", "causation"}, got.Keywords, "keywords replaced wholesale")

	// The full-text index must reflect only the latest values.
	hits, err := store.SearchCases(ctx, "fully", SearchFilters{}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	stale, err := store.SearchCases(ctx, "dismissed", SearchFilters{}, 10)
	require.NoError(t, err)
	require.Empty(t, stale, "stale index entries must not match")
}

func TestSearchCases_FullText(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	_, err := store.AddCase(ctx, sampleCase())
	require.NoError(t, err)

	other := sampleCase()
	other.AppealNumber = "A002"
	other.Issues = "hearing loss machine shop"
	other.CaseSummary = "noise induced hearing loss"
	other.Keywords = []string{"hearing"}
	_, err = store.AddCase(ctx, other)
	require.NoError(t, err)

	results, err := store.SearchCases(ctx, "stenosis", SearchFilters{}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "A001", results[0].AppealNumber)
	require.Equal(t, []string{"stenosis", "warehouse", "lifting"}, results[0].Keywords)
}

func TestSearchCases_Filters(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	add := func(number, date, appealType, outcome string, keywords ...string) {
		t.Helper()
		record := &CaseRecord{
			AppealNumber: number,
			Date:         date,
			AppealType:   appealType,
			Outcome:      outcome,
			Keywords:     keywords,
		}
		_, err := store.AddCase(ctx, record)
		require.NoError(t, err)
	}

	add("B001", "2018-01-10", "entitlement", "appeal allowed", "stenosis")
	add("B002", "2020-05-20", "entitlement", "appeal denied", "causation")
	add("B003", "2022-11-02", "reconsideration", "appeal allowed in part", "stenosis")

	byDate, err := store.SearchCases(ctx, "", SearchFilters{DateFrom: "2019-01-01", DateTo: "2021-01-01"}, 10)
	require.NoError(t, err)
	require.Len(t, byDate, 1)
	require.Equal(t, "B002", byDate[0].AppealNumber)

	byType, err := store.SearchCases(ctx, "", SearchFilters{AppealType: "reconsideration"}, 10)
	require.NoError(t, err)
	require.Len(t, byType, 1)
	require.Equal(t, "B003", byType[0].AppealNumber)

	byOutcome, err := store.SearchCases(ctx, "", SearchFilters{OutcomeContains: "allowed"}, 10)
	require.NoError(t, err)
	require.Len(t, byOutcome, 2)

	byKeyword, err := store.SearchCases(ctx, "", SearchFilters{Keywords: []string{"stenosis", "missing"}}, 10)
	require.NoError(t, err)
	require.Len(t, byKeyword, 2)

	combined, err := store.SearchCases(ctx, "", SearchFilters{
		OutcomeContains: "allowed",
		Keywords:        []string{"stenosis"},
		DateFrom:        "2020-01-01",
	}, 10)
	require.NoError(t, err)
	require.Len(t, combined, 1)
	require.Equal(t, "B003", combined[0].AppealNumber)
}

func TestSearchCases_OrderAndLimit(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	for _, c := range []struct{ number, date string }{
		{"C001", "2018-03-01"},
		{"C002", "2022-03-01"},
		{"C003", "2020-03-01"},
	} {
		_, err := store.AddCase(ctx, &CaseRecord{AppealNumber: c.number, Date: c.date})
		require.NoError(t, err)
	}

	results, err := store.SearchCases(ctx, "", SearchFilters{}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "C002", results[0].AppealNumber)
	require.Equal(t, "C003", results[1].AppealNumber)
}

func TestSearchCases_LogsHistory(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	_, err := store.SearchCases(ctx, "stenosis", SearchFilters{AppealType: "entitlement"}, 10)
	require.NoError(t, err)

	var query, filters string
	err = store.db.QueryRowContext(ctx,
		`SELECT query, filters FROM search_history ORDER BY id DESC LIMIT 1`).Scan(&query, &filters)
	require.NoError(t, err)
	require.Equal(t, "stenosis", query)

	var decoded SearchFilters
	require.NoError(t, json.Unmarshal([]byte(filters), &decoded))
	require.Equal(t, "entitlement", decoded.AppealType)
}

func TestFindSimilarCases_MatchesUserCase(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	_, err := store.AddCase(ctx, sampleCase())
	require.NoError(t, err)

	matches, err := store.FindSimilarCases(ctx,
		[]string{"stenosis", "warehouse", "lifting"},
		"I have spinal stenosis from warehouse work", 0.1, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, "A001", matches[0].AppealNumber)
	require.Greater(t, matches[0].SimilarityScore, 0.1)
}

func TestFindSimilarCases_Ranking(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	add := func(number string, keywords ...string) {
		t.Helper()
		_, err := store.AddCase(ctx, &CaseRecord{AppealNumber: number, Keywords: keywords})
		require.NoError(t, err)
	}

	userKeywords := []string{"ladder", "fall", "fracture", "wrist"}
	add("R-A", "ladder", "fall", "fracture", "shoulder") // shares 3 of 4
	add("R-B", "ladder", "noise", "hearing", "shift")    // shares 1 of 4
	add("R-C", "asbestos", "exposure", "lungs", "mill")  // shares 0 of 4

	matches, err := store.FindSimilarCases(ctx, userKeywords, "", 0.0, 10)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	require.Equal(t, "R-A", matches[0].AppealNumber)
	require.Equal(t, "R-B", matches[1].AppealNumber)
	require.Equal(t, "R-C", matches[2].AppealNumber)
	require.Zero(t, matches[2].SimilarityScore)

	// With a threshold the zero-overlap case drops out.
	filtered, err := store.FindSimilarCases(ctx, userKeywords, "", 0.05, 10)
	require.NoError(t, err)
	require.Len(t, filtered, 2)
}

func TestFindSimilarCases_ScoreBounds(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	identical := &CaseRecord{
		AppealNumber: "D001",
		CaseSummary:  "stenosis herniation radiculopathy disc injury",
		Keywords:     []string{"stenosis", "herniation", "radiculopathy", "disc"},
	}
	_, err := store.AddCase(ctx, identical)
	require.NoError(t, err)

	unrelated := &CaseRecord{AppealNumber: "D002", CaseSummary: "noise exposure", Keywords: []string{"hearing"}}
	_, err = store.AddCase(ctx, unrelated)
	require.NoError(t, err)

	matches, err := store.FindSimilarCases(ctx,
		identical.Keywords, identical.CaseSummary, 0.0, 10)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	for _, match := range matches {
		require.GreaterOrEqual(t, match.SimilarityScore, 0.0)
		require.LessOrEqual(t, match.SimilarityScore, 1.0)
	}
	// Identical keywords, identical summary, all four boost terms shared but
	// the boost caps at 0.1.
	require.InDelta(t, 1.0, matches[0].SimilarityScore, 1e-9)
	require.Zero(t, matches[1].SimilarityScore)
}
