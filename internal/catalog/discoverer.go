// Package catalog parses the source site's catalog pages: the root menu of
// categories and subcategories, and the per-subcategory article list API.
package catalog

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/artiklix/kirjasto-harvester/internal/harvest"
)

// DiscovererConfig names the structural selectors the root menu page is
// expected to carry. A page that does not match raises ParseError instead of
// silently producing wrong nodes.
type DiscovererConfig struct {
	// MenuContainer is the selector of the navigation block holding the
	// category tree.
	MenuContainer string
	// MenuItemClass marks anchors that are top-level category entries;
	// sibling anchors without it are subcategories.
	MenuItemClass string
	// ListKeyParam is the query parameter on subcategory links carrying the
	// article list key.
	ListKeyParam string
	// BaseURL resolves relative links into absolute ones.
	BaseURL string
}

// Discoverer parses a catalog page into category and subcategory nodes.
type Discoverer struct {
	cfg    DiscovererConfig
	base   *url.URL
	logger *zap.Logger
}

// NewDiscoverer builds a Discoverer. An unparsable base URL is tolerated;
// links then pass through unresolved.
func NewDiscoverer(cfg DiscovererConfig, logger *zap.Logger) *Discoverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		logger.Warn("invalid catalog base url", zap.String("base_url", cfg.BaseURL), zap.Error(err))
		base = nil
	}
	return &Discoverer{cfg: cfg, base: base, logger: logger}
}

// Discover parses the root menu page into an ordered sequence of catalog
// nodes: each category followed by its subcategories. Subcategory nodes carry
// the list key needed to enumerate their articles.
func (d *Discoverer) Discover(pageContent []byte) ([]harvest.CatalogNode, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(pageContent))
	if err != nil {
		return nil, &harvest.ParseError{Page: "catalog", Reason: "unreadable markup: " + err.Error()}
	}

	root := doc.Find(d.cfg.MenuContainer)
	if root.Length() == 0 {
		return nil, &harvest.ParseError{Page: "catalog", Reason: "menu container " + d.cfg.MenuContainer + " not found"}
	}

	var nodes []harvest.CatalogNode
	category := ""
	root.Find("a").Each(func(_ int, a *goquery.Selection) {
		name := strings.TrimSpace(a.Text())
		if a.HasClass(d.cfg.MenuItemClass) {
			category = name
			nodes = append(nodes, harvest.CatalogNode{
				Level: harvest.LevelCategory,
				Name:  name,
				Link:  d.resolve(a.AttrOr("href", "")),
			})
			return
		}
		if category == "" {
			d.logger.Warn("subcategory link before any category, skipping", zap.String("name", name))
			return
		}
		href := a.AttrOr("href", "")
		key := d.listKey(href)
		if key == "" {
			d.logger.Warn("subcategory link without list key, skipping",
				zap.String("name", name), zap.String("href", href))
			return
		}
		nodes = append(nodes, harvest.CatalogNode{
			Level:   harvest.LevelSubcategory,
			Name:    name,
			Path:    []string{category},
			Link:    d.resolve(href),
			ListKey: key,
		})
	})

	if len(nodes) == 0 {
		return nil, &harvest.ParseError{Page: "catalog", Reason: "no catalog entries found under " + d.cfg.MenuContainer}
	}
	return nodes, nil
}

// listKey extracts the article list key from a subcategory href. It prefers
// the configured query parameter and falls back to the value after the first
// "=" for the site's non-standard links.
func (d *Discoverer) listKey(href string) string {
	if href == "" {
		return ""
	}
	if u, err := url.Parse(href); err == nil {
		if v := u.Query().Get(d.cfg.ListKeyParam); v != "" {
			return v
		}
	}
	if _, after, found := strings.Cut(href, "="); found {
		return after
	}
	return ""
}

func (d *Discoverer) resolve(href string) string {
	if href == "" || d.base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return d.base.ResolveReference(ref).String()
}
