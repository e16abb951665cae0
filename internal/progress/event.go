// Package progress defines the event stream emitted by the harvest pipeline
// and the hub that fans it out to sinks.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone an Event reports.
type Stage string

// Supported progress stages.
const (
	StageRunStart       Stage = "RUN_START"
	StageRunDone        Stage = "RUN_DONE"
	StageRunError       Stage = "RUN_ERROR"
	StageListDiscovered Stage = "LIST_DISCOVERED"
	StageArticleFetched Stage = "ARTICLE_FETCHED"
	StageArticleStored  Stage = "ARTICLE_STORED"
	StageArticleDeduped Stage = "ARTICLE_DEDUPED"
	StageArticleFailed  Stage = "ARTICLE_FAILED"
)

// Event captures one milestone of a harvest run.
type Event struct {
	// RunID identifies the run in 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Category scopes article events to their main category.
	Category string
	// ArticleID is set on article-level events.
	ArticleID string
	// URL is the page the event concerns, when one exists.
	URL string
	// Bytes carries the fetched body size for fetch completions.
	Bytes int64
	// Dur captures per-article or per-run latency.
	Dur time.Duration
	// Note carries low-volume context such as a failure reason.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError, StageListDiscovered:
	case StageArticleFetched, StageArticleStored, StageArticleDeduped, StageArticleFailed:
		if e.ArticleID == "" {
			return errors.New("article events require an article id")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID form.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
