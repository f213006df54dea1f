package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DB_DSN", "postgres://localhost:5432/exam?sslmode=disable")
	t.Setenv("REDIS_ADDR", "localhost:6379")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "exam-engine", cfg.Name)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "sat", cfg.Exam.Profile)
	assert.Equal(t, 200, cfg.Exam.MinScale)
	assert.Equal(t, 800, cfg.Exam.MaxScale)
	assert.Equal(t, "reading|writing,math", cfg.Exam.CompositeRule)
	assert.Equal(t, time.Second, cfg.Exam.TickInterval)
	assert.Equal(t, "none", cfg.AI.Provider)
	assert.True(t, cfg.Strict())
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("DB_DSN", "")

	_, err := Load(context.Background())
	assert.Error(t, err)
}

func TestLoadRejectsInvertedScale(t *testing.T) {
	setRequired(t)
	t.Setenv("EXAM_MIN_SCALE", "800")
	t.Setenv("EXAM_MAX_SCALE", "200")

	_, err := Load(context.Background())
	assert.ErrorContains(t, err, "EXAM_MAX_SCALE")
}

func TestStrictOffInProduction(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_ENV", "production")

	cfg, err := Load(context.Background())
	require.NoError(t, err)
	assert.False(t, cfg.Strict())
}
