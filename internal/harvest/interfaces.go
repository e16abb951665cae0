package harvest

import (
	"context"
	"time"
)

// Fetcher retrieves a page and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResponse, error)
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// Discoverer parses a catalog page into its child nodes.
type Discoverer interface {
	Discover(pageContent []byte) ([]CatalogNode, error)
}

// Lister enumerates the article list entries of a subcategory node.
type Lister interface {
	ListArticles(ctx context.Context, node CatalogNode) ([]ArticleRef, error)
}

// Segmenter turns a raw article page into a heading-segmented content block.
type Segmenter interface {
	Segment(rawPage []byte) (SegmentResult, error)
}

// ArticleStore persists one article, deduplicating the content body.
// It returns the stored article row id and whether the content body was
// already known (deduplicated).
type ArticleStore interface {
	StoreArticle(ctx context.Context, rec ArticleRecord, block ContentBlock) (int64, bool, error)
}

// Archiver optionally persists raw page bytes and returns a URI.
type Archiver interface {
	Archive(ctx context.Context, key string, data []byte) (string, error)
}

// Publisher pushes stored-article events to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) (string, error)
}

// Queue provides enqueue/dequeue semantics for harvest tasks.
type Queue interface {
	Enqueue(ctx context.Context, task ArticleRef) error
	Dequeue(ctx context.Context) (ArticleRef, error)
	Close()
}
