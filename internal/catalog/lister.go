package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/artiklix/kirjasto-harvester/internal/harvest"
)

// skipTitle marks placeholder leaves the list API emits for unpublished
// entries.
const skipTitle = "New article"

var articleIDPattern = regexp.MustCompile(`p_artikkeli=(\w+)`)

// ListerConfig controls how article lists are fetched and resolved.
type ListerConfig struct {
	// ListAPIURL is a format string with one %s verb receiving the
	// subcategory's list key.
	ListAPIURL string
	// BaseURL resolves relative article links.
	BaseURL string
}

// listNode mirrors one node of the article list API's JSON tree.
type listNode struct {
	Text  string     `json:"text"`
	Href  string     `json:"href"`
	Nodes []listNode `json:"nodes"`
}

// Lister fetches and walks the article list tree of a subcategory.
type Lister struct {
	fetcher harvest.Fetcher
	cfg     ListerConfig
	base    *url.URL
	logger  *zap.Logger
}

// NewLister builds a Lister over the given fetcher.
func NewLister(fetcher harvest.Fetcher, cfg ListerConfig, logger *zap.Logger) *Lister {
	if logger == nil {
		logger = zap.NewNop()
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		logger.Warn("invalid lister base url", zap.String("base_url", cfg.BaseURL), zap.Error(err))
		base = nil
	}
	return &Lister{fetcher: fetcher, cfg: cfg, base: base, logger: logger}
}

// ListArticles enumerates the article entries of a subcategory node. A
// malformed list page yields zero entries plus a ParseError; a partially
// corrupted tree yields the salvageable entries plus a ParseError. Either
// way the caller keeps going with the other subcategories.
func (l *Lister) ListArticles(ctx context.Context, node harvest.CatalogNode) ([]harvest.ArticleRef, error) {
	if node.ListKey == "" {
		return nil, &harvest.ParseError{Page: node.Name, Reason: "subcategory has no list key"}
	}
	apiURL := fmt.Sprintf(l.cfg.ListAPIURL, url.QueryEscape(node.ListKey))

	resp, err := l.fetcher.Fetch(ctx, apiURL)
	if err != nil {
		return nil, fmt.Errorf("fetch article list for %q: %w", node.Name, err)
	}

	var tree []listNode
	if err := json.Unmarshal(resp.Body, &tree); err != nil {
		return nil, &harvest.ParseError{Page: node.Name, Reason: "article list is not valid JSON: " + err.Error()}
	}
	if len(tree) == 0 {
		return nil, &harvest.ParseError{Page: node.Name, Reason: "empty article list"}
	}

	root := tree[0]
	walker := &listWalker{lister: l, owner: node}
	for _, child := range root.Nodes {
		walker.walk(root.Text, child)
	}
	l.logger.Info("article list parsed",
		zap.String("subcategory", node.Name),
		zap.Int("articles", len(walker.refs)),
		zap.Int("skipped", walker.corrupted),
	)
	if walker.corrupted > 0 {
		return walker.refs, &harvest.ParseError{
			Page:   node.Name,
			Reason: fmt.Sprintf("%d list nodes were malformed and skipped", walker.corrupted),
		}
	}
	return walker.refs, nil
}

type listWalker struct {
	lister    *Lister
	owner     harvest.CatalogNode
	refs      []harvest.ArticleRef
	corrupted int
}

// walk descends the list tree depth-first, extending the list path at each
// interior node and emitting a ref at each publishable leaf.
func (w *listWalker) walk(path string, node listNode) {
	if strings.TrimSpace(node.Text) == "" {
		w.corrupted++
		return
	}
	if len(node.Nodes) > 0 {
		childPath := harvest.JoinListPath(path, node.Text)
		for _, child := range node.Nodes {
			w.walk(childPath, child)
		}
		return
	}
	if node.Text == skipTitle || node.Href == "" {
		return
	}
	m := articleIDPattern.FindStringSubmatch(node.Href)
	if m == nil {
		w.corrupted++
		return
	}
	mainCategory := w.owner.Name
	if len(w.owner.Path) > 0 {
		mainCategory = w.owner.Path[0]
	}
	w.refs = append(w.refs, harvest.ArticleRef{
		ArticleID:    m[1],
		Name:         node.Text,
		Link:         w.lister.resolveArticle(node.Href),
		MainCategory: mainCategory,
		SubCategory:  w.owner.Name,
		ListName:     path,
	})
}

func (l *Lister) resolveArticle(href string) string {
	if l.base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return l.base.ResolveReference(ref).String()
}
