package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/artiklix/kirjasto-harvester/internal/harvest"
)

func TestFetchReturnsBody(t *testing.T) {
	t.Parallel()

	var gotAgent atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent.Store(r.UserAgent())
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html><body>terve</body></html>"))
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "kirjasto-harvester/1.0", Timeout: 5 * time.Second}, nil)

	resp, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(resp.Body), "terve")
	require.Equal(t, "kirjasto-harvester/1.0", gotAgent.Load())
	require.Greater(t, resp.Duration, time.Duration(0))
}

func TestFetchServerErrorIsTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	f := New(Config{Timeout: 5 * time.Second}, nil)

	_, err := f.Fetch(context.Background(), srv.URL)
	var fe *harvest.FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, http.StatusBadGateway, fe.StatusCode)
	require.True(t, fe.Transient)
}

func TestFetchNotFoundIsPermanent(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	f := New(Config{Timeout: 5 * time.Second}, nil)

	_, err := f.Fetch(context.Background(), srv.URL+"/missing")
	var fe *harvest.FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, http.StatusNotFound, fe.StatusCode)
	require.False(t, fe.Transient)
}

func TestFetchConnectionRefusedIsTransient(t *testing.T) {
	t.Parallel()

	f := New(Config{Timeout: time.Second}, nil)

	_, err := f.Fetch(context.Background(), "http://127.0.0.1:1/nope")
	var fe *harvest.FetchError
	require.ErrorAs(t, err, &fe)
	require.True(t, fe.Transient)
}

func TestFetchHonorsContextCancel(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	f := New(Config{Timeout: 30 * time.Second}, nil)

	_, err := f.Fetch(ctx, srv.URL)
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)
}

type stubLimiter struct {
	calls atomic.Int64
	err   error
}

func (s *stubLimiter) Wait(context.Context, string) error {
	s.calls.Add(1)
	return s.err
}

func TestFetchConsultsLimiter(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	limiter := &stubLimiter{}
	f := New(Config{Timeout: 5 * time.Second}, limiter)

	_, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, int64(1), limiter.calls.Load())
}

func TestFetchLimiterFailureShortCircuits(t *testing.T) {
	t.Parallel()

	limiter := &stubLimiter{err: errors.New("limiter closed")}
	f := New(Config{Timeout: 5 * time.Second}, limiter)

	_, err := f.Fetch(context.Background(), "http://example.invalid/")
	var fe *harvest.FetchError
	require.ErrorAs(t, err, &fe)
	require.False(t, fe.Transient)
}
