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
	"regexp"
	"sort"
	"strings"
)

// Similarity score weights. Keyword overlap dominates, summary wording
// refines, and a small boost rewards shared high-signal medical terms.
const (
	keywordWeight = 0.6
	summaryWeight = 0.3
	boostPerTerm  = 0.05
	boostCap      = 0.1
)

// boostTerms are the medical terms eligible for the score boost.
var boostTerms = map[string]struct{}{
	"stenosis":      {},
	"herniation":    {},
	"radiculopathy": {},
	"disc":          {},
}

var wordPattern = regexp.MustCompile(`\w+`)

// SimilarCase pairs a stored case with its similarity score against the
// user's input.
type SimilarCase struct {
	*CaseRecord
	SimilarityScore float64 `json:"similarity_score"`
}

// FindSimilarCases scores every stored case against the user's keywords and
// case summary, keeping those at or above minSimilarity sorted by score
// descending and truncated to limit.
func (s *Store) FindSimilarCases(ctx context.Context, userKeywords []string, userCaseSummary string, minSimilarity float64, limit int) ([]*SimilarCase, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	cases, err := s.allCases(ctx)
	if err != nil {
		return nil, err
	}

	userKW := toSet(userKeywords)
	userWords := wordSet(userCaseSummary)

	var matches []*SimilarCase
	for _, record := range cases {
		score := similarityScore(userKW, toSet(record.Keywords), userWords, wordSet(record.CaseSummary))
		if score >= minSimilarity {
			matches = append(matches, &SimilarCase{CaseRecord: record, SimilarityScore: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].SimilarityScore > matches[j].SimilarityScore
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// similarityScore computes the three-part additive score. The theoretical
// maximum is 1.0; no further normalization is applied.
func similarityScore(userKW, caseKW, userWords, caseWords map[string]struct{}) float64 {
	score := keywordWeight * jaccard(userKW, caseKW)
	score += summaryWeight * jaccard(userWords, caseWords)

	shared := 0
	for term := range boostTerms {
		if _, ok := userKW[term]; !ok {
			continue
		}
		if _, ok := caseKW[term]; ok {
			shared++
		}
	}
	boost := boostPerTerm * float64(shared)
	if boost > boostCap {
		boost = boostCap
	}
	return score + boost
}

// jaccard returns |A ∩ B| / |A ∪ B|, or zero when either set is empty.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	intersection := 0
	for item := range a {
		if _, ok := b[item]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

// toSet lower-cases a keyword list into a set.
func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item == "" {
			continue
		}
		set[strings.ToLower(item)] = struct{}{}
	}
	return set
}

// wordSet extracts the lower-cased word set of free text.
func wordSet(text string) map[string]struct{} {
	words := wordPattern.FindAllString(strings.ToLower(text), -1)
	set := make(map[string]struct{}, len(words))
	for _, word := range words {
		set[word] = struct{}{}
	}
	return set
}
