package harvest

import "fmt"

// FetchError reports a failed page retrieval. Transient marks timeouts and
// server-side failures that are worth retrying with backoff.
type FetchError struct {
	URL        string
	StatusCode int
	Transient  bool
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError reports a catalog or list page whose expected structural markers
// are absent. It is non-retryable; the affected node is skipped and sibling
// discovery continues.
type ParseError struct {
	Page   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s", e.Page, e.Reason)
}

// SegmentationError reports an article page without a recognizable body
// container. Non-retryable; the article is marked failed and siblings
// continue.
type SegmentationError struct {
	ArticleID string
	Reason    string
}

func (e *SegmentationError) Error() string {
	if e.ArticleID == "" {
		return fmt.Sprintf("segment article: %s", e.Reason)
	}
	return fmt.Sprintf("segment article %s: %s", e.ArticleID, e.Reason)
}

// StorageError reports a failed store operation. PreWrite is true only when
// the failure happened strictly before any row could have been written, in
// which case a retry is safe. Post-write failures are never retried blindly:
// the auto-increment ids coupled with dedup make a repeat insert hazardous.
type StorageError struct {
	Op       string
	PreWrite bool
	Err      error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
