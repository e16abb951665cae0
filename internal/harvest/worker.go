package harvest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/artiklix/kirjasto-harvester/internal/progress"
)

// WorkerDeps bundles the collaborators a Worker needs. Archiver and
// Publisher are optional; everything else must be set.
type WorkerDeps struct {
	Fetcher   Fetcher
	Segmenter Segmenter
	Store     ArticleStore
	Policy    *ExponentialRetryPolicy
	Archiver  Archiver
	Publisher Publisher
	Emitter   progress.Emitter
	Logger    *zap.Logger
}

// Worker runs the per-article pipeline: fetch, segment, persist. Failures in
// the optional archive and publish steps are logged but never fail the
// article.
type Worker struct {
	deps  WorkerDeps
	runID [16]byte
	topic string
}

// NewWorker validates deps and builds a Worker bound to one run.
func NewWorker(deps WorkerDeps, runID [16]byte, topic string) (*Worker, error) {
	if deps.Fetcher == nil || deps.Segmenter == nil || deps.Store == nil {
		return nil, errors.New("worker requires fetcher, segmenter, and store")
	}
	if deps.Policy == nil {
		deps.Policy = NewExponentialRetryPolicy(3)
	}
	if deps.Emitter == nil {
		deps.Emitter = progress.NopEmitter{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Worker{deps: deps, runID: runID, topic: topic}, nil
}

// Process runs the pipeline for one article and reports its Outcome. The
// Outcome's Stage records how far the article got; Done means stored.
func (w *Worker) Process(ctx context.Context, ref ArticleRef) Outcome {
	start := time.Now()
	out := Outcome{Article: ref, Stage: StagePending}

	if err := ctx.Err(); err != nil {
		out.Err = err
		out.Duration = time.Since(start)
		return out
	}

	out.Stage = StageFetching
	resp, err := w.deps.Fetcher.Fetch(ctx, ref.Link)
	if err != nil {
		return w.fail(out, start, err)
	}
	w.emit(progress.Event{
		Stage:     progress.StageArticleFetched,
		ArticleID: ref.ArticleID,
		Category:  ref.MainCategory,
		URL:       ref.Link,
		Bytes:     int64(len(resp.Body)),
		Dur:       resp.Duration,
	})

	if err := ctx.Err(); err != nil {
		out.Err = err
		out.Duration = time.Since(start)
		return out
	}

	out.Stage = StageSegmenting
	seg, err := w.deps.Segmenter.Segment(resp.Body)
	if err != nil {
		return w.fail(out, start, err)
	}

	w.archive(ctx, ref, resp.Body)

	if err := ctx.Err(); err != nil {
		out.Err = err
		out.Duration = time.Since(start)
		return out
	}

	out.Stage = StageStoring
	rec := ArticleRecord{
		MainCategory: ref.MainCategory,
		SubCategory:  ref.SubCategory,
		ListName:     ref.ListName,
		ArticleID:    ref.ArticleID,
		ArticleName:  ref.Name,
		H2Name:       seg.H2Names,
		H3Name:       seg.H3Names,
		Keywords:     seg.Keywords,
	}
	contentID, deduped, err := w.storeWithRetry(ctx, rec, seg.Content)
	if err != nil {
		return w.fail(out, start, err)
	}
	out.Deduplicated = deduped
	out.Stage = StageDone
	out.Duration = time.Since(start)

	stage := progress.StageArticleStored
	if deduped {
		stage = progress.StageArticleDeduped
	}
	w.emit(progress.Event{
		Stage:     stage,
		ArticleID: ref.ArticleID,
		Category:  ref.MainCategory,
		URL:       ref.Link,
		Dur:       out.Duration,
	})
	w.publish(ctx, ref, contentID, deduped)
	return out
}

// storeWithRetry retries the store only while the failure happened before
// any row was written. Mid-transaction failures roll back in the store and
// surface as permanent.
func (w *Worker) storeWithRetry(ctx context.Context, rec ArticleRecord, block ContentBlock) (int64, bool, error) {
	var lastErr error
	for attempt := 1; ; attempt++ {
		id, deduped, err := w.deps.Store.StoreArticle(ctx, rec, block)
		if err == nil {
			return id, deduped, nil
		}
		lastErr = err
		if !w.deps.Policy.ShouldRetry(err, attempt) {
			return 0, false, lastErr
		}
		w.deps.Logger.Warn("retrying article store",
			zap.String("article_id", rec.ArticleID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if err := Pause(ctx, w.deps.Policy.Backoff(attempt)); err != nil {
			return 0, false, lastErr
		}
	}
}

func (w *Worker) archive(ctx context.Context, ref ArticleRef, body []byte) {
	if w.deps.Archiver == nil {
		return
	}
	key := fmt.Sprintf("pages/%s.html", ref.ArticleID)
	if _, err := w.deps.Archiver.Archive(ctx, key, body); err != nil {
		w.deps.Logger.Warn("raw page archive failed",
			zap.String("article_id", ref.ArticleID),
			zap.Error(err),
		)
	}
}

func (w *Worker) publish(ctx context.Context, ref ArticleRef, contentID int64, deduped bool) {
	if w.deps.Publisher == nil || w.topic == "" {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"article_id":   ref.ArticleID,
		"article_name": ref.Name,
		"category":     ref.MainCategory,
		"content_id":   contentID,
		"deduplicated": deduped,
	})
	if err != nil {
		return
	}
	if _, err := w.deps.Publisher.Publish(ctx, w.topic, payload); err != nil {
		w.deps.Logger.Warn("article event publish failed",
			zap.String("article_id", ref.ArticleID),
			zap.Error(err),
		)
	}
}

func (w *Worker) fail(out Outcome, start time.Time, err error) Outcome {
	out.Err = err
	out.Duration = time.Since(start)
	w.deps.Logger.Warn("article failed",
		zap.String("article_id", out.Article.ArticleID),
		zap.String("stage", string(out.Stage)),
		zap.Error(err),
	)
	w.emit(progress.Event{
		Stage:     progress.StageArticleFailed,
		ArticleID: out.Article.ArticleID,
		Category:  out.Article.MainCategory,
		URL:       out.Article.Link,
		Note:      err.Error(),
	})
	return out
}

func (w *Worker) emit(evt progress.Event) {
	evt.RunID = w.runID
	evt.TS = time.Now().UTC()
	w.deps.Emitter.Emit(evt)
}
