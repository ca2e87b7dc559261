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
	"math"
	"testing"
)

func TestJaccard(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want float64
	}{
		{"identical", []string{"a", "b"}, []string{"a", "b"}, 1.0},
		{"disjoint", []string{"a", "b"}, []string{"c", "d"}, 0.0},
		{"partial", []string{"a", "b", "c"}, []string{"b", "c", "d"}, 0.5},
		{"empty left", nil, []string{"a"}, 0.0},
		{"empty right", []string{"a"}, nil, 0.0},
		{"both empty", nil, nil, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := jaccard(toSet(tt.a), toSet(tt.b))
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("jaccard() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSimilarityScore_BoostCap(t *testing.T) {
	user := toSet([]string{"stenosis", "herniation", "radiculopathy", "disc"})
	stored := toSet([]string{"stenosis", "herniation", "radiculopathy", "disc"})

	got := similarityScore(user, stored, nil, nil)
	want := keywordWeight*1.0 + boostCap
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("similarityScore() = %v, want %v", got, want)
	}
}

func TestSimilarityScore_SingleBoostTerm(t *testing.T) {
	user := toSet([]string{"stenosis", "warehouse"})
	stored := toSet([]string{"stenosis", "office"})

	// Jaccard 1/3, one shared boost term.
	got := similarityScore(user, stored, nil, nil)
	want := keywordWeight*(1.0/3.0) + boostPerTerm
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("similarityScore() = %v, want %v", got, want)
	}
}

func TestWordSet(t *testing.T) {
	set := wordSet("Spinal stenosis, from WAREHOUSE work!")
	for _, want := range []string{"spinal", "stenosis", "from", "warehouse", "work"} {
		if _, ok := set[want]; !ok {
			t.Errorf("wordSet missing %q", want)
		}
	}
	if len(set) != 5 {
		t.Errorf("wordSet size = %d, want 5", len(set))
	}
}

func TestClassifyKeyword(t *testing.T) {
	tests := []struct {
		keyword string
		want    string
	}{
		{"stenosis", "medical"},
		{"Spinal Stenosis", "medical"},
		{"lumbar strain", "medical"},
		{"causation", "legal"},
		{"Workplace Injury", "legal"},
		{"warehouse", "general"},
		{"lifting", "general"},
	}

	for _, tt := range tests {
		t.Run(tt.keyword, func(t *testing.T) {
			if got := classifyKeyword(tt.keyword); got != tt.want {
				t.Errorf("classifyKeyword(%q) = %q, want %q", tt.keyword, got, tt.want)
			}
		})
	}
}
