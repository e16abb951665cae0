package harvest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/artiklix/kirjasto-harvester/internal/progress"
	"github.com/artiklix/kirjasto-harvester/internal/queue/memory"
)

// OrchestratorConfig controls one harvest run.
type OrchestratorConfig struct {
	// RootURL is the catalog front page holding the category menu.
	RootURL string
	// Concurrency is the number of article workers (default 4).
	Concurrency int
	// QueueDepth bounds the in-memory article queue (default 256).
	QueueDepth int
	// EventTopic, when set together with a Publisher, receives per-article
	// completion events.
	EventTopic string
}

// Orchestrator ties discovery, listing, and the worker pool into a run.
// Discovery failures abort the run; per-list and per-article failures are
// recorded and the run continues.
type Orchestrator struct {
	cfg        OrchestratorConfig
	fetcher    Fetcher
	discoverer Discoverer
	lister     Lister
	workerDeps WorkerDeps
	emitter    progress.Emitter
	logger     *zap.Logger

	runID uuid.UUID

	mu      sync.Mutex
	summary Summary
}

// NewOrchestrator validates collaborators and assigns the run a fresh ID.
func NewOrchestrator(
	cfg OrchestratorConfig,
	fetcher Fetcher,
	discoverer Discoverer,
	lister Lister,
	workerDeps WorkerDeps,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if cfg.RootURL == "" {
		return nil, errors.New("root url is required")
	}
	if fetcher == nil || discoverer == nil || lister == nil {
		return nil, errors.New("orchestrator requires fetcher, discoverer, and lister")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	emitter := workerDeps.Emitter
	if emitter == nil {
		emitter = progress.NopEmitter{}
		workerDeps.Emitter = emitter
	}
	return &Orchestrator{
		cfg:        cfg,
		fetcher:    fetcher,
		discoverer: discoverer,
		lister:     lister,
		workerDeps: workerDeps,
		emitter:    emitter,
		logger:     logger,
		runID:      uuid.New(),
	}, nil
}

// RunID returns the identifier assigned to this run.
func (o *Orchestrator) RunID() uuid.UUID { return o.runID }

// Snapshot returns a copy of the running summary. Safe to call while the
// run is in flight; the observability API serves it.
func (o *Orchestrator) Snapshot() Summary {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.summary
	s.Failed = append([]Failure(nil), o.summary.Failed...)
	return s
}

// Run executes the harvest: discover the catalog, enumerate article lists,
// and drain the queue with a fixed worker pool. The returned Summary is
// complete even when err is non-nil.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	o.mu.Lock()
	o.summary = Summary{Started: time.Now().UTC()}
	o.mu.Unlock()
	o.emitRun(progress.StageRunStart, 0, "")

	nodes, err := o.discover(ctx)
	if err != nil {
		return o.finish(err)
	}

	worker, err := NewWorker(o.workerDeps, progress.UUIDToBytes(o.runID), o.cfg.EventTopic)
	if err != nil {
		return o.finish(err)
	}

	q := memory.NewQueue[ArticleRef](o.cfg.QueueDepth)
	var wg sync.WaitGroup
	for range o.cfg.Concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.drain(ctx, q, worker)
		}()
	}

	produceErr := o.produce(ctx, nodes, q)
	q.Close()
	wg.Wait()

	return o.finish(produceErr)
}

// discover fetches the root page and expands it into subcategory nodes.
func (o *Orchestrator) discover(ctx context.Context) ([]CatalogNode, error) {
	resp, err := o.fetcher.Fetch(ctx, o.cfg.RootURL)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog root: %w", err)
	}
	nodes, err := o.discoverer.Discover(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("discover catalog: %w", err)
	}
	var subs []CatalogNode
	for _, n := range nodes {
		if n.Level == LevelSubcategory {
			subs = append(subs, n)
		}
	}
	if len(subs) == 0 {
		return nil, &ParseError{Page: o.cfg.RootURL, Reason: "catalog has no subcategories"}
	}
	o.logger.Info("catalog discovered",
		zap.String("run_id", o.runID.String()),
		zap.Int("nodes", len(nodes)),
		zap.Int("subcategories", len(subs)),
	)
	return subs, nil
}

// produce enumerates article lists and feeds refs to the queue. List-level
// failures are logged and skipped; a canceled context stops production.
func (o *Orchestrator) produce(ctx context.Context, nodes []CatalogNode, q *memory.Queue[ArticleRef]) error {
	for _, node := range nodes {
		if err := ctx.Err(); err != nil {
			return err
		}
		refs, err := o.lister.ListArticles(ctx, node)
		if err != nil {
			// A partial list still yields refs; anything else is skipped.
			o.logger.Warn("article list failed",
				zap.String("subcategory", node.Name),
				zap.String("list_key", node.ListKey),
				zap.Error(err),
			)
		}
		if len(refs) == 0 {
			continue
		}
		o.emitRun(progress.StageListDiscovered, 0, node.Name)
		for _, ref := range refs {
			if err := q.Enqueue(ctx, ref); err != nil {
				return fmt.Errorf("enqueue article %s: %w", ref.ArticleID, err)
			}
			o.mu.Lock()
			o.summary.Discovered++
			o.mu.Unlock()
		}
	}
	return nil
}

func (o *Orchestrator) drain(ctx context.Context, q *memory.Queue[ArticleRef], worker *Worker) {
	for {
		ref, err := q.Dequeue(ctx)
		if err != nil {
			return
		}
		o.applyOutcome(worker.Process(ctx, ref))
	}
}

func (o *Orchestrator) applyOutcome(out Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if out.Err == nil && out.Stage == StageDone {
		o.summary.Stored++
		if out.Deduplicated {
			o.summary.Deduplicated++
		}
		return
	}
	reason := "canceled"
	if out.Err != nil {
		reason = out.Err.Error()
	}
	o.summary.Failed = append(o.summary.Failed, Failure{
		ArticleID:   out.Article.ArticleID,
		ArticleName: out.Article.Name,
		Stage:       out.Stage,
		Reason:      reason,
	})
}

func (o *Orchestrator) finish(err error) (Summary, error) {
	o.mu.Lock()
	o.summary.Finished = time.Now().UTC()
	dur := o.summary.Finished.Sub(o.summary.Started)
	summary := o.summary
	summary.Failed = append([]Failure(nil), o.summary.Failed...)
	o.mu.Unlock()

	if err != nil {
		o.emitRun(progress.StageRunError, dur, err.Error())
	} else {
		o.emitRun(progress.StageRunDone, dur, "")
	}
	o.logger.Info("harvest run finished",
		zap.String("run_id", o.runID.String()),
		zap.Int("discovered", summary.Discovered),
		zap.Int("stored", summary.Stored),
		zap.Int("deduplicated", summary.Deduplicated),
		zap.Int("failed", summary.FailedCount()),
		zap.Duration("dur", dur),
		zap.Error(err),
	)
	return summary, err
}

func (o *Orchestrator) emitRun(stage progress.Stage, dur time.Duration, note string) {
	o.emitter.Emit(progress.Event{
		RunID: progress.UUIDToBytes(o.runID),
		TS:    time.Now().UTC(),
		Stage: stage,
		Dur:   dur,
		Note:  note,
	})
}
