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

package cases

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// runCase executes the case command with args against a database file.
func runCase(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()

	cmd := NewCaseCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--db", dbPath))

	err := cmd.Execute()
	return out.String(), err
}

func TestCaseCommand_AddAndSearch(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cases.db")

	out, err := runCase(t, dbPath, "add",
		"--appeal-number", "A001",
		"--date", "2019-06-14",
		"--issues", "spinal stenosis warehouse lifting",
		"--outcome", "appeal allowed",
		"--keywords", "stenosis,warehouse,lifting")
	require.NoError(t, err)
	require.Contains(t, out, "A001")

	out, err = runCase(t, dbPath, "search", "stenosis")
	require.NoError(t, err)
	require.Contains(t, out, "A001")

	out, err = runCase(t, dbPath, "search", "asbestos")
	require.NoError(t, err)
	require.Contains(t, out, "no matching cases")
}

func TestCaseCommand_AddRequiresAppealNumber(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cases.db")

	_, err := runCase(t, dbPath, "add", "--issues", "missing number")
	require.Error(t, err)
}

func TestCaseCommand_Similar(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cases.db")

	_, err := runCase(t, dbPath, "add",
		"--appeal-number", "A001",
		"--summary", "worker developed spinal stenosis from warehouse lifting",
		"--keywords", "stenosis,warehouse,lifting")
	require.NoError(t, err)

	out, err := runCase(t, dbPath, "similar",
		"--keyword", "stenosis", "--keyword", "warehouse",
		"--summary", "spinal stenosis from warehouse work",
		"--min-similarity", "0.1")
	require.NoError(t, err)
	require.Contains(t, out, "A001")
}

func TestCaseCommand_StatsAndExport(t *testing.T) {
	tmp := t.TempDir()
	dbPath := filepath.Join(tmp, "cases.db")

	_, err := runCase(t, dbPath, "add",
		"--appeal-number", "A001", "--outcome", "appeal allowed")
	require.NoError(t, err)

	out, err := runCase(t, dbPath, "stats")
	require.NoError(t, err)
	require.Contains(t, out, "total cases: 1")

	exportPath := filepath.Join(tmp, "export.json")
	out, err = runCase(t, dbPath, "export", exportPath)
	require.NoError(t, err)
	require.Contains(t, out, exportPath)

	_, err = runCase(t, dbPath, "export", filepath.Join(tmp, "export.csv"), "--format", "csv")
	require.Error(t, err)
}
