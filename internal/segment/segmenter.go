// Package segment turns raw article pages into heading-segmented content
// blocks ready for deduplicated storage.
package segment

import (
	"bytes"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/artiklix/kirjasto-harvester/internal/harvest"
)

// Config names the structural selectors an article page is expected to carry
// and the extraction knobs.
type Config struct {
	// ArticleContainer is the selector of the article body region.
	ArticleContainer string
	// SectionSelector matches the block-level sections walked in document
	// order.
	SectionSelector string
	// MaxSegmentBytes caps the accumulated paragraph text per section.
	MaxSegmentBytes int
	// MaxKeywords bounds the fallback frequency-ranked keyword set.
	MaxKeywords int
}

const (
	defaultMaxSegmentBytes = 2048
	defaultMaxKeywords     = 10
	minKeywordLength       = 4
)

// Segmenter segments article pages. It is a pure function of its input:
// segmenting the same page twice yields identical output.
type Segmenter struct {
	cfg Config
}

// New builds a Segmenter, applying defaults for unset knobs.
func New(cfg Config) *Segmenter {
	if cfg.MaxSegmentBytes <= 0 {
		cfg.MaxSegmentBytes = defaultMaxSegmentBytes
	}
	if cfg.MaxKeywords <= 0 {
		cfg.MaxKeywords = defaultMaxKeywords
	}
	return &Segmenter{cfg: cfg}
}

type textSegment struct {
	h2   string
	h3   string
	text string
}

// Segment locates the article body, walks its sections in document order,
// and produces the content block plus the aggregated heading labels and
// keywords. The description is the text preceding the first heading; each h2
// or h3 starts a new segment that accumulates body text until the next
// heading.
func (s *Segmenter) Segment(rawPage []byte) (harvest.SegmentResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(rawPage))
	if err != nil {
		return harvest.SegmentResult{}, &harvest.SegmentationError{Reason: "unreadable markup: " + err.Error()}
	}

	article := doc.Find(s.cfg.ArticleContainer)
	if article.Length() == 0 {
		return harvest.SegmentResult{}, &harvest.SegmentationError{
			Reason: "article container " + s.cfg.ArticleContainer + " not found",
		}
	}

	var (
		description strings.Builder
		segments    []textSegment
	)
	headingSeen := false
	article.Find(s.cfg.SectionSelector).Each(func(_ int, sec *goquery.Selection) {
		h2 := strings.TrimSpace(sec.ChildrenFiltered("h2").First().Text())
		h3 := strings.TrimSpace(sec.ChildrenFiltered("h3").First().Text())
		text := s.sectionText(sec)

		switch {
		case h2 != "" || h3 != "":
			headingSeen = true
			segments = append(segments, textSegment{h2: h2, h3: h3, text: text})
		case !headingSeen:
			appendText(&description, text)
		case len(segments) > 0:
			last := &segments[len(segments)-1]
			last.text = joinText(last.text, text)
		}
	})

	// Plain pages without section markup still carry lead paragraphs.
	if description.Len() == 0 && len(segments) == 0 {
		appendText(&description, s.sectionText(article))
	}

	result := harvest.SegmentResult{
		Content: harvest.ContentBlock{
			Description: description.String(),
			Text:        renderText(segments),
		},
		H2Names: collectHeadings(segments, func(seg textSegment) string { return seg.h2 }),
		H3Names: collectHeadings(segments, func(seg textSegment) string { return seg.h3 }),
	}
	result.Keywords = s.keywords(article, result.Content)
	return result, nil
}

// sectionText accumulates the direct-child paragraph texts of a section up
// to the configured byte budget.
func (s *Segmenter) sectionText(sec *goquery.Selection) string {
	var parts []string
	total := 0
	sec.ChildrenFiltered("p").EachWithBreak(func(_ int, p *goquery.Selection) bool {
		text := strings.TrimSpace(p.Text())
		if text == "" {
			return true
		}
		if total+len(text) > s.cfg.MaxSegmentBytes {
			return false
		}
		parts = append(parts, text)
		total += len(text)
		return true
	})
	return strings.Join(parts, "\n")
}

// keywords prefers keyword metadata carried inside the article container and
// falls back to a frequency-ranked token set from the body. Empty result
// means no keywords.
func (s *Segmenter) keywords(article *goquery.Selection, content harvest.ContentBlock) string {
	if meta, ok := article.Find(`meta[name="keywords"]`).Attr("content"); ok {
		if trimmed := strings.TrimSpace(meta); trimmed != "" {
			return trimmed
		}
	}
	return frequencyKeywords(content.Description+" "+content.Text, s.cfg.MaxKeywords)
}

var tokenSplitter = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// frequencyKeywords ranks body tokens by frequency, breaking ties by order
// of first appearance so the result is deterministic.
func frequencyKeywords(body string, limit int) string {
	counts := make(map[string]int)
	firstSeen := make(map[string]int)
	for i, token := range tokenSplitter.Split(strings.ToLower(body), -1) {
		if len([]rune(token)) < minKeywordLength {
			continue
		}
		if _, ok := counts[token]; !ok {
			firstSeen[token] = i
		}
		counts[token]++
	}
	if len(counts) == 0 {
		return ""
	}

	tokens := make([]string, 0, len(counts))
	for token := range counts {
		tokens = append(tokens, token)
	}
	sort.Slice(tokens, func(i, j int) bool {
		if counts[tokens[i]] != counts[tokens[j]] {
			return counts[tokens[i]] > counts[tokens[j]]
		}
		return firstSeen[tokens[i]] < firstSeen[tokens[j]]
	})
	if len(tokens) > limit {
		tokens = tokens[:limit]
	}
	return strings.Join(tokens, ",")
}

// collectHeadings joins the distinct heading labels of one level in order of
// first appearance.
func collectHeadings(segments []textSegment, pick func(textSegment) string) string {
	seen := make(map[string]struct{})
	var labels []string
	for _, seg := range segments {
		label := pick(seg)
		if label == "" {
			continue
		}
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		labels = append(labels, label)
	}
	return strings.Join(labels, harvest.HeadingSeparator)
}

func renderText(segments []textSegment) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		var b strings.Builder
		if seg.h2 != "" {
			b.WriteString(seg.h2)
			b.WriteByte('\n')
		}
		if seg.h3 != "" {
			b.WriteString(seg.h3)
			b.WriteByte('\n')
		}
		b.WriteString(seg.text)
		parts = append(parts, strings.TrimRight(b.String(), "\n"))
	}
	return strings.Join(parts, "\n\n")
}

func appendText(b *strings.Builder, text string) {
	if text == "" {
		return
	}
	if b.Len() > 0 {
		b.WriteByte('\n')
	}
	b.WriteString(text)
}

func joinText(existing, extra string) string {
	if extra == "" {
		return existing
	}
	if existing == "" {
		return extra
	}
	return existing + "\n" + extra
}
