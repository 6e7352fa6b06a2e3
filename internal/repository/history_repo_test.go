package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/edna_go_client/internal/model"
	"github.com/qs3c/edna_go_client/internal/testutil"
)

func TestHistoryRepository_Add(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewHistoryRepository(db, 50)

	item := &model.HistoryItem{
		ID:         uuid.NewString(),
		FileName:   "sample.fastq",
		FileType:   ".fastq",
		UploadDate: time.Now(),
		FileSize:   2048,
		Status:     model.HistoryInProgress,
	}
	require.NoError(t, repo.Add(item))

	found, err := repo.GetByID(item.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, ".fastq", found.FileType)
	assert.Equal(t, int64(2048), found.FileSize)
}

func TestHistoryRepository_Add_EvictsOldestPastCap(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewHistoryRepository(db, 3)
	base := time.Now()

	for i := 0; i < 5; i++ {
		item := &model.HistoryItem{
			ID:         fmt.Sprintf("item-%d", i),
			FileName:   fmt.Sprintf("file-%d.fasta", i),
			FileType:   ".fasta",
			UploadDate: base.Add(time.Duration(i) * time.Minute),
			Status:     model.HistoryCompleted,
		}
		require.NoError(t, repo.Add(item))
	}

	items, err := repo.List()
	require.NoError(t, err)
	require.Len(t, items, 3)

	// 最旧的两条被淘汰，剩余按时间倒序
	assert.Equal(t, "item-4", items[0].ID)
	assert.Equal(t, "item-3", items[1].ID)
	assert.Equal(t, "item-2", items[2].ID)
}

func TestHistoryRepository_Update(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewHistoryRepository(db, 50)
	item := testutil.TestHistoryItem(t, db)

	err := repo.Update(item.ID, map[string]interface{}{
		"status":           model.HistoryCompleted,
		"total_reads":      1200,
		"total_clusters":   14,
		"taxa_count":       6,
		"novel_taxa_count": 2,
	})
	require.NoError(t, err)

	found, err := repo.GetByID(item.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, model.HistoryCompleted, found.Status)
	assert.Equal(t, 1200, found.TotalReads)
	assert.Equal(t, 2, found.NovelTaxaCount)
}

func TestHistoryRepository_DeleteAndClear(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewHistoryRepository(db, 50)
	first := testutil.TestHistoryItem(t, db)
	testutil.TestHistoryItem(t, db)

	require.NoError(t, repo.Delete(first.ID))
	items, err := repo.List()
	require.NoError(t, err)
	assert.Len(t, items, 1)

	require.NoError(t, repo.Clear())
	items, err = repo.List()
	require.NoError(t, err)
	assert.Empty(t, items)
}
