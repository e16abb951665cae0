// Package harvest defines core types shared across subsystems and the
// orchestrator that drives a catalog harvest run.
package harvest

import (
	"strings"
	"time"
)

// NodeLevel identifies which level of the catalog hierarchy a node sits at.
type NodeLevel string

// Catalog levels, root-first.
const (
	LevelCategory    NodeLevel = "category"
	LevelSubcategory NodeLevel = "subcategory"
	LevelList        NodeLevel = "list"
)

// CatalogNode is one node of the catalog hierarchy discovered on a catalog
// page. Nodes are transient: they exist only while their children are being
// enumerated, and only the derived path survives on stored articles.
type CatalogNode struct {
	Level NodeLevel
	Name  string
	// Path holds the ancestor names, ordered root-first.
	Path []string
	Link string
	// ListKey is the site-native key used to query the article list API.
	// Only set on subcategory nodes.
	ListKey string
}

// ArticleRef is one entry from a subcategory's article list. It is consumed
// exactly once by the fetch stage and never persisted directly.
type ArticleRef struct {
	ArticleID    string
	Name         string
	Link         string
	MainCategory string
	SubCategory  string
	ListName     string
}

// ContentBlock is the segmented body of one article. Identity for
// deduplication is derived from the whitespace-normalized description+text.
type ContentBlock struct {
	// Description is the lead text preceding the first heading, possibly empty.
	Description string
	// Text is the heading-delimited body, segments joined in document order.
	Text string
}

// SegmentResult bundles a ContentBlock with the heading labels and keywords
// derived while segmenting an article page.
type SegmentResult struct {
	Content ContentBlock
	// H2Names and H3Names hold the distinct heading labels found at each
	// level, in order of first appearance, joined by "; ". Empty string when
	// a level has no headings; the columns are NOT NULL.
	H2Names string
	H3Names string
	// Keywords is empty when nothing extractable was found, which the store
	// persists as NULL.
	Keywords string
}

// ArticleRecord is the article metadata row persisted for each harvested
// article. ContentID is filled in by the deduplicating store.
type ArticleRecord struct {
	MainCategory string
	SubCategory  string
	ListName     string
	ArticleID    string
	ArticleName  string
	H2Name       string
	H3Name       string
	Keywords     string
	ContentID    int64
}

// Stage is the lifecycle state of one harvest task.
type Stage string

// Harvest task stages. A task moves Pending → Fetching → Segmenting →
// Storing → Done, or stops at the stage where it failed.
const (
	StagePending    Stage = "pending"
	StageFetching   Stage = "fetching"
	StageSegmenting Stage = "segmenting"
	StageStoring    Stage = "storing"
	StageDone       Stage = "done"
)

// Outcome records how one harvest task ended.
type Outcome struct {
	Article ArticleRef
	// Stage is StageDone on success, otherwise the stage that failed.
	Stage        Stage
	Err          error
	Deduplicated bool
	Duration     time.Duration
}

// Failure is the per-article failure entry carried in the run summary.
type Failure struct {
	ArticleID   string `json:"article_id"`
	ArticleName string `json:"article_name"`
	Stage       Stage  `json:"stage"`
	Reason      string `json:"reason"`
}

// Summary aggregates the outcome of one harvest run.
type Summary struct {
	Discovered   int       `json:"discovered"`
	Stored       int       `json:"stored"`
	Deduplicated int       `json:"deduplicated"`
	Failed       []Failure `json:"failed"`
	Started      time.Time `json:"started_at"`
	Finished     time.Time `json:"finished_at,omitempty"`
}

// FailedCount returns the number of failed tasks.
func (s Summary) FailedCount() int {
	return len(s.Failed)
}

// ListPathSeparator joins nested list names into the stored list_name value.
const ListPathSeparator = " ^ "

// JoinListPath builds a list_name from nested list node names.
func JoinListPath(parts ...string) string {
	return strings.Join(parts, ListPathSeparator)
}

// HeadingSeparator joins distinct heading labels of one level.
const HeadingSeparator = "; "
