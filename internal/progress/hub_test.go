package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu      sync.Mutex
	batches [][]Event
	closed  bool
}

func (s *captureSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]Event(nil), batch...))
	return nil
}

func (s *captureSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *captureSink) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func validEvent(stage Stage) Event {
	e := Event{
		RunID: UUIDToBytes(uuid.New()),
		TS:    time.Now().UTC(),
		Stage: stage,
	}
	switch stage {
	case StageArticleFetched, StageArticleStored, StageArticleDeduped, StageArticleFailed:
		e.ArticleID = "dlk00001"
	}
	return e
}

func TestHubDeliversBatches(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{MaxBatchEvents: 4, FlushInterval: 20 * time.Millisecond}, sink)

	for range 10 {
		hub.Emit(validEvent(StageArticleStored))
	}
	require.NoError(t, hub.Close(context.Background()))
	require.Equal(t, 10, sink.total())
	require.True(t, sink.closed)
}

func TestHubDiscardsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{}, sink)

	hub.Emit(Event{Stage: StageRunStart})
	hub.Emit(Event{RunID: UUIDToBytes(uuid.New()), TS: time.Now(), Stage: StageArticleFailed})
	require.NoError(t, hub.Close(context.Background()))
	require.Zero(t, sink.total())
}

func TestHubEmitAfterCloseIsNoop(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{}, sink)
	require.NoError(t, hub.Close(context.Background()))

	hub.Emit(validEvent(StageRunStart))
	require.Zero(t, sink.total())
}

func TestHubSurvivesConcurrentEmitters(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{BufferSize: 1024, MaxBatchEvents: 32}, sink)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				hub.Emit(validEvent(StageArticleFetched))
			}
		}()
	}
	wg.Wait()
	require.NoError(t, hub.Close(context.Background()))
	require.Equal(t, 400, sink.total())
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, validEvent(StageRunDone).Validate())

	missingArticle := validEvent(StageArticleStored)
	missingArticle.ArticleID = ""
	require.Error(t, missingArticle.Validate())

	unknown := validEvent(StageRunStart)
	unknown.Stage = "WAT"
	require.Error(t, unknown.Validate())
}
