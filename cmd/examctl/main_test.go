package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/exam-engine/internal/db"
	"github.com/gokatarajesh/exam-engine/internal/db/repository"
	"github.com/gokatarajesh/exam-engine/internal/exam"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestCatalogCommand(t *testing.T) {
	out := execute(t, "catalog")
	assert.Contains(t, out, "math-no-calc")
	assert.Contains(t, out, "180")
}

func TestSimulatePerfectRun(t *testing.T) {
	sim := simulation{
		profile:        "sat",
		tick:           time.Millisecond,
		accuracy:       1,
		seed:           7,
		sectionSeconds: 600,
		logger:         zerolog.Nop(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	report, err := sim.run(ctx)
	require.NoError(t, err)
	assert.Equal(t, exam.TriggerManual, report.Trigger)
	assert.Equal(t, 1600, report.Result.Composite)
	assert.Len(t, report.Result.Breakdown, 52+44+20+38)
}

func TestSimulateLetsTimersExpire(t *testing.T) {
	sim := simulation{
		profile:        "sat",
		tick:           time.Millisecond,
		accuracy:       0.5,
		seed:           3,
		sectionSeconds: 2,
		expire:         true,
		logger:         zerolog.Nop(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	report, err := sim.run(ctx)
	require.NoError(t, err)
	assert.Equal(t, exam.TriggerTimeout, report.Trigger)
	assert.GreaterOrEqual(t, report.Result.Composite, report.Result.MinComposite)
	assert.LessOrEqual(t, report.Result.Composite, report.Result.MaxComposite)
}

func TestImportBankCommand(t *testing.T) {
	dir := t.TempDir()
	bankPath := filepath.Join(dir, "bank.json")
	require.NoError(t, os.WriteFile(bankPath, []byte(`{"sections": {
		"reading": [
			{"text": "Main idea?", "options": ["a", "b", "c"], "correct_option_index": 2},
			{"text": "Tone?", "options": ["a", "b"], "correct_option_index": 0}
		],
		"math-calc": [
			{"id": "mc-1", "text": "2+2", "options": ["3", "4"], "correct_option_index": 1}
		]
	}}`), 0o600))
	dsn := "file:" + filepath.Join(dir, "bank.db")

	out := execute(t, "import-bank", bankPath, "--driver", "sqlite", "--dsn", dsn)
	assert.Contains(t, out, "imported 3 questions")

	ctx := context.Background()
	conn, err := db.Open(ctx, db.DriverSQLite, dsn)
	require.NoError(t, err)
	defer conn.Close()
	repo := repository.NewQuestionRepository(repository.New(conn))
	n, err := repo.Count(ctx, "reading")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
