package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weiwangfds/linkdrop/internal/database"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB 创建内存数据库并完成迁移
func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newRecord(stored string) *database.FileMetadata {
	return &database.FileMetadata{
		OriginalName: stored + ".bin",
		StoredName:   stored,
		Size:         10,
		ContentType:  "application/octet-stream",
	}
}

func TestInsertAssignsIDAndUploadDate(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}
	repo := NewFileMetadataRepository(setupTestDB(t), WithClock(clock.Now))
	ctx := context.Background()

	created, err := repo.Insert(ctx, newRecord("a"))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.True(t, created.UploadDate.Equal(clock.Now()))
	assert.Equal(t, int64(0), created.DownloadCount)
	assert.Nil(t, created.LastDownloadDate)

	found, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", found.StoredName)
	assert.Equal(t, "a.bin", found.OriginalName)
}

func TestInsertRejectsDuplicateStoredName(t *testing.T) {
	repo := NewFileMetadataRepository(setupTestDB(t))
	ctx := context.Background()

	_, err := repo.Insert(ctx, newRecord("same"))
	require.NoError(t, err)
	_, err = repo.Insert(ctx, newRecord("same"))
	assert.Error(t, err)

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestFindByIDNotFound(t *testing.T) {
	repo := NewFileMetadataRepository(setupTestDB(t))

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestFindAllOrdersNewestFirst(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}
	repo := NewFileMetadataRepository(setupTestDB(t), WithClock(clock.Now))
	ctx := context.Background()

	for _, name := range []string{"first", "second", "third"} {
		_, err := repo.Insert(ctx, newRecord(name))
		require.NoError(t, err)
		clock.Advance(time.Hour)
	}

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "third", all[0].StoredName)
	assert.Equal(t, "second", all[1].StoredName)
	assert.Equal(t, "first", all[2].StoredName)
}

func TestIncrementDownloadCount(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}
	repo := NewFileMetadataRepository(setupTestDB(t), WithClock(clock.Now))
	ctx := context.Background()

	created, err := repo.Insert(ctx, newRecord("a"))
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	require.NoError(t, repo.IncrementDownloadCount(ctx, created.ID))
	require.NoError(t, repo.IncrementDownloadCount(ctx, created.ID))

	found, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), found.DownloadCount)
	require.NotNil(t, found.LastDownloadDate)
	assert.True(t, found.LastDownloadDate.Equal(clock.Now()))
}

func TestIncrementDownloadCountMissingIsNoop(t *testing.T) {
	repo := NewFileMetadataRepository(setupTestDB(t))

	assert.NoError(t, repo.IncrementDownloadCount(context.Background(), "missing"))
}

func TestIncrementDownloadCountConcurrent(t *testing.T) {
	repo := NewFileMetadataRepository(setupTestDB(t))
	ctx := context.Background()

	created, err := repo.Insert(ctx, newRecord("a"))
	require.NoError(t, err)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, repo.IncrementDownloadCount(ctx, created.ID))
		}()
	}
	wg.Wait()

	found, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(n), found.DownloadCount)
}

func TestFindStale(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: base}
	repo := NewFileMetadataRepository(setupTestDB(t), WithClock(clock.Now))
	ctx := context.Background()

	// 40天前上传，从未下载
	neverDownloaded, err := repo.Insert(ctx, newRecord("never"))
	require.NoError(t, err)

	// 40天前上传，5天前刚下载过
	recentlyDownloaded, err := repo.Insert(ctx, newRecord("recent"))
	require.NoError(t, err)

	// 35天前上传并下载，之后无人问津
	clock.Advance(5 * 24 * time.Hour)
	staleDownload, err := repo.Insert(ctx, newRecord("stale-download"))
	require.NoError(t, err)
	require.NoError(t, repo.IncrementDownloadCount(ctx, staleDownload.ID))

	clock.Advance(30 * 24 * time.Hour)
	require.NoError(t, repo.IncrementDownloadCount(ctx, recentlyDownloaded.ID))

	// 刚刚上传
	clock.Advance(5 * 24 * time.Hour)
	_, err = repo.Insert(ctx, newRecord("fresh"))
	require.NoError(t, err)

	stale, err := repo.FindStale(ctx, 30)
	require.NoError(t, err)
	require.Len(t, stale, 2)
	assert.Equal(t, neverDownloaded.ID, stale[0].ID)
	assert.Equal(t, staleDownload.ID, stale[1].ID)

	none, err := repo.FindStale(ctx, 100)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDelete(t *testing.T) {
	repo := NewFileMetadataRepository(setupTestDB(t))
	ctx := context.Background()

	created, err := repo.Insert(ctx, newRecord("a"))
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, created.ID))
	_, err = repo.FindByID(ctx, created.ID)
	assert.ErrorIs(t, err, ErrRecordNotFound)

	assert.NoError(t, repo.Delete(ctx, created.ID))
}

func TestFindStaleBoundary(t *testing.T) {
	const window = 30 * 24 * time.Hour
	base := time.Date(2024, 1, 1, 0, 0, 0, 123456789, time.UTC)

	tests := []struct {
		name       string
		downloaded bool
		elapsed    time.Duration
		wantStale  bool
	}{
		{"upload exactly at threshold", false, window, false},
		{"upload one nanosecond past threshold", false, window + time.Nanosecond, true},
		{"download exactly at threshold", true, window, false},
		{"download one nanosecond past threshold", true, window + time.Nanosecond, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &fakeClock{now: base}
			repo := NewFileMetadataRepository(setupTestDB(t), WithClock(clock.Now))
			ctx := context.Background()

			created, err := repo.Insert(ctx, newRecord("a"))
			require.NoError(t, err)
			if tt.downloaded {
				clock.Advance(10 * 24 * time.Hour)
				require.NoError(t, repo.IncrementDownloadCount(ctx, created.ID))
			}

			clock.Advance(tt.elapsed)
			stale, err := repo.FindStale(ctx, 30)
			require.NoError(t, err)
			if tt.wantStale {
				require.Len(t, stale, 1)
				assert.Equal(t, created.ID, stale[0].ID)
			} else {
				assert.Empty(t, stale)
			}
		})
	}
}
