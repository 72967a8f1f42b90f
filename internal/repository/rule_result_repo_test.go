package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quant-research/internal/dto"
	"quant-research/pkg/cache"
)

func TestRuleResultRepositoryRoundTrip(t *testing.T) {
	dir := t.TempDir()
	repo, err := NewRuleResultRepository(dir, nil, nil)
	require.NoError(t, err)

	signals := []dto.Signal{1, 0, -1, 0, 1}
	require.NoError(t, repo.Save(context.Background(), "AAPL", "trend_20", "fp1", signals))

	got, err := repo.Load(context.Background(), "AAPL", "trend_20", "fp1")
	require.NoError(t, err)
	assert.Equal(t, signals, got)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "AAPL_trend_20.json", entries[0].Name())
}

func TestRuleResultRepositoryMiss(t *testing.T) {
	repo, err := NewRuleResultRepository(t.TempDir(), nil, nil)
	require.NoError(t, err)

	_, err = repo.Load(context.Background(), "AAPL", "trend_20", "fp1")

	var missing *dto.MissingRuleResultsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "trend_20", missing.RuleID)
}

func TestRuleResultRepositoryFingerprintMismatch(t *testing.T) {
	repo, err := NewRuleResultRepository(t.TempDir(), nil, nil)
	require.NoError(t, err)

	require.NoError(t, repo.Save(context.Background(), "AAPL", "trend_20", "fp1", []dto.Signal{1}))

	// Same id, changed parameters: the stale file must not be served.
	_, err = repo.Load(context.Background(), "AAPL", "trend_20", "fp2")

	var missing *dto.MissingRuleResultsError
	require.ErrorAs(t, err, &missing)
}

func TestRuleResultRepositoryLoadDoesNotAliasMemCache(t *testing.T) {
	memCache := cache.NewCache(time.Minute, time.Minute)
	repo, err := NewRuleResultRepository(t.TempDir(), memCache, nil)
	require.NoError(t, err)

	signals := []dto.Signal{1, 1, -1, -1, 0, 1}
	require.NoError(t, repo.Save(context.Background(), "AAPL", "trend_20", "fp1", signals))

	first, err := repo.Load(context.Background(), "AAPL", "trend_20", "fp1")
	require.NoError(t, err)
	for i := range first {
		first[i] = -first[i]
	}

	// A caller negating its slice must not reach the cached entry.
	second, err := repo.Load(context.Background(), "AAPL", "trend_20", "fp1")
	require.NoError(t, err)
	assert.Equal(t, signals, second)
}

func TestRuleResultRepositoryOverwrite(t *testing.T) {
	dir := t.TempDir()
	repo, err := NewRuleResultRepository(dir, nil, nil)
	require.NoError(t, err)

	require.NoError(t, repo.Save(context.Background(), "AAPL", "trend_20", "fp1", []dto.Signal{1, 1}))
	require.NoError(t, repo.Save(context.Background(), "AAPL", "trend_20", "fp2", []dto.Signal{-1, -1}))

	got, err := repo.Load(context.Background(), "AAPL", "trend_20", "fp2")
	require.NoError(t, err)
	assert.Equal(t, []dto.Signal{-1, -1}, got)

	// No temp files survive the rename.
	matches, err := filepath.Glob(filepath.Join(dir, "*.tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}
