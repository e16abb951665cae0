// Package store implements the deduplicating article store: a run-lifetime
// identity index over the content table plus the insert ordering that keeps
// article rows referencing valid content rows.
package store

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/artiklix/kirjasto-harvester/internal/harvest"
	"github.com/artiklix/kirjasto-harvester/internal/hash/sha256"
)

// Backend is the relational persistence consumed by the Deduplicator.
type Backend interface {
	InsertArticleWithContent(ctx context.Context, rec harvest.ArticleRecord, block harvest.ContentBlock) (int64, int64, error)
	InsertArticleForContent(ctx context.Context, rec harvest.ArticleRecord, contentID int64) (int64, error)
	LoadContentRows(ctx context.Context, fn func(id int64, description, text string)) error
}

// Deduplicator maps content bodies to stable identities and guarantees at
// most one content row per distinct identity within a run. The index lives
// for one run; the content table stays the source of truth.
type Deduplicator struct {
	backend Backend
	hasher  *sha256.Hasher
	logger  *zap.Logger

	mu    sync.Mutex
	index map[string]int64
	locks map[string]*sync.Mutex
}

// NewDeduplicator builds a Deduplicator over the given backend.
func NewDeduplicator(backend Backend, hasher *sha256.Hasher, logger *zap.Logger) *Deduplicator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deduplicator{
		backend: backend,
		hasher:  hasher,
		logger:  logger,
		index:   make(map[string]int64),
		locks:   make(map[string]*sync.Mutex),
	}
}

// Preload seeds the identity index from the existing content rows so reruns
// reuse prior content ids instead of inserting duplicates.
func (d *Deduplicator) Preload(ctx context.Context) error {
	count := 0
	err := d.backend.LoadContentRows(ctx, func(id int64, description, text string) {
		identity := d.hasher.Identity(description, text)
		d.mu.Lock()
		if _, ok := d.index[identity]; !ok {
			d.index[identity] = id
			count++
		}
		d.mu.Unlock()
	})
	if err != nil {
		return err
	}
	d.logger.Info("dedup index preloaded", zap.Int("identities", count))
	return nil
}

// StoreArticle persists one article. Unseen content bodies get a new content
// row followed by the article row inside one transaction; known bodies get
// only the article row referencing the existing content id. The whole
// check-then-insert sequence is exclusive per identity, so two concurrent
// articles with the same body cannot both insert content rows. Returns the
// article row id and whether the body was deduplicated.
func (d *Deduplicator) StoreArticle(
	ctx context.Context,
	rec harvest.ArticleRecord,
	block harvest.ContentBlock,
) (int64, bool, error) {
	identity := d.hasher.Identity(block.Description, block.Text)

	lock := d.lockFor(identity)
	lock.Lock()
	defer lock.Unlock()

	d.mu.Lock()
	contentID, known := d.index[identity]
	d.mu.Unlock()

	if known {
		articleID, err := d.backend.InsertArticleForContent(ctx, rec, contentID)
		if err != nil {
			return 0, false, err
		}
		return articleID, true, nil
	}

	articleID, contentID, err := d.backend.InsertArticleWithContent(ctx, rec, block)
	if err != nil {
		return 0, false, err
	}

	d.mu.Lock()
	d.index[identity] = contentID
	d.mu.Unlock()
	return articleID, false, nil
}

// lockFor returns the mutex guarding one identity. Locks are created on
// first use and live for the run; distinct identities never contend.
func (d *Deduplicator) lockFor(identity string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	lock, ok := d.locks[identity]
	if !ok {
		lock = &sync.Mutex{}
		d.locks[identity] = lock
	}
	return lock
}
