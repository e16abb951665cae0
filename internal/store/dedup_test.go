package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/artiklix/kirjasto-harvester/internal/harvest"
	"github.com/artiklix/kirjasto-harvester/internal/hash/sha256"
)

type fakeBackend struct {
	mu             sync.Mutex
	nextContentID  int64
	nextArticleID  int64
	contentInserts int
	articleRows    map[int64]int64 // article id -> content id
	contentRows    []contentRow
	insertDelay    time.Duration
	failWith       error
}

type contentRow struct {
	id                int64
	description, text string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{articleRows: make(map[int64]int64)}
}

func (b *fakeBackend) InsertArticleWithContent(
	_ context.Context,
	_ harvest.ArticleRecord,
	block harvest.ContentBlock,
) (int64, int64, error) {
	if b.insertDelay > 0 {
		time.Sleep(b.insertDelay)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failWith != nil {
		return 0, 0, b.failWith
	}
	b.nextContentID++
	b.nextArticleID++
	b.contentInserts++
	b.contentRows = append(b.contentRows, contentRow{b.nextContentID, block.Description, block.Text})
	b.articleRows[b.nextArticleID] = b.nextContentID
	return b.nextArticleID, b.nextContentID, nil
}

func (b *fakeBackend) InsertArticleForContent(
	_ context.Context,
	_ harvest.ArticleRecord,
	contentID int64,
) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failWith != nil {
		return 0, b.failWith
	}
	b.nextArticleID++
	b.articleRows[b.nextArticleID] = contentID
	return b.nextArticleID, nil
}

func (b *fakeBackend) LoadContentRows(_ context.Context, fn func(id int64, description, text string)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, row := range b.contentRows {
		fn(row.id, row.description, row.text)
	}
	return nil
}

func TestStoreArticleInsertsContentOnceForIdenticalBodies(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	d := NewDeduplicator(backend, sha256.New(), nil)
	ctx := context.Background()
	block := harvest.ContentBlock{Description: "Lead", Text: "Lorem ipsum"}

	first, deduped, err := d.StoreArticle(ctx, harvest.ArticleRecord{ArticleID: "a1"}, block)
	require.NoError(t, err)
	require.False(t, deduped)

	second, deduped, err := d.StoreArticle(ctx, harvest.ArticleRecord{ArticleID: "a2"}, block)
	require.NoError(t, err)
	require.True(t, deduped)

	require.Equal(t, 1, backend.contentInserts)
	require.Equal(t, backend.articleRows[first], backend.articleRows[second])
}

func TestStoreArticleWhitespaceVariantsShareIdentity(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	d := NewDeduplicator(backend, sha256.New(), nil)
	ctx := context.Background()

	_, _, err := d.StoreArticle(ctx, harvest.ArticleRecord{ArticleID: "a1"},
		harvest.ContentBlock{Description: "Lead", Text: "Lorem  ipsum"})
	require.NoError(t, err)
	_, deduped, err := d.StoreArticle(ctx, harvest.ArticleRecord{ArticleID: "a2"},
		harvest.ContentBlock{Description: " Lead ", Text: "Lorem\nipsum"})
	require.NoError(t, err)
	require.True(t, deduped)
	require.Equal(t, 1, backend.contentInserts)
}

func TestStoreArticleConcurrentIdenticalBodiesOneContentRow(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	backend.insertDelay = 10 * time.Millisecond
	d := NewDeduplicator(backend, sha256.New(), nil)
	block := harvest.ContentBlock{Text: "Lorem ipsum"}

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, errs[i] = d.StoreArticle(context.Background(), harvest.ArticleRecord{}, block)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 1, backend.contentInserts)
	require.Len(t, backend.articleRows, writers)
	for _, contentID := range backend.articleRows {
		require.Equal(t, int64(1), contentID)
	}
}

func TestStoreArticleDistinctBodiesGetDistinctContent(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	d := NewDeduplicator(backend, sha256.New(), nil)
	ctx := context.Background()

	_, _, err := d.StoreArticle(ctx, harvest.ArticleRecord{}, harvest.ContentBlock{Text: "one"})
	require.NoError(t, err)
	_, deduped, err := d.StoreArticle(ctx, harvest.ArticleRecord{}, harvest.ContentBlock{Text: "two"})
	require.NoError(t, err)
	require.False(t, deduped)
	require.Equal(t, 2, backend.contentInserts)
}

func TestStoreArticleFailureDoesNotPoisonIndex(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	backend.failWith = &harvest.StorageError{Op: "insert content", Err: errors.New("boom")}
	d := NewDeduplicator(backend, sha256.New(), nil)
	block := harvest.ContentBlock{Text: "Lorem ipsum"}

	_, _, err := d.StoreArticle(context.Background(), harvest.ArticleRecord{}, block)
	require.Error(t, err)

	// After the backend recovers the same identity inserts cleanly.
	backend.mu.Lock()
	backend.failWith = nil
	backend.mu.Unlock()
	_, deduped, err := d.StoreArticle(context.Background(), harvest.ArticleRecord{}, block)
	require.NoError(t, err)
	require.False(t, deduped)
	require.Equal(t, 1, backend.contentInserts)
}

func TestPreloadSeedsIndexFromExistingRows(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	ctx := context.Background()

	seed := NewDeduplicator(backend, sha256.New(), nil)
	_, _, err := seed.StoreArticle(ctx, harvest.ArticleRecord{}, harvest.ContentBlock{Description: "Lead", Text: "Body"})
	require.NoError(t, err)

	// A fresh run preloads the index and reuses the stored content id.
	d := NewDeduplicator(backend, sha256.New(), nil)
	require.NoError(t, d.Preload(ctx))

	_, deduped, err := d.StoreArticle(ctx, harvest.ArticleRecord{}, harvest.ContentBlock{Description: "Lead", Text: "Body"})
	require.NoError(t, err)
	require.True(t, deduped)
	require.Equal(t, 1, backend.contentInserts)
}
