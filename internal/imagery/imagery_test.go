package imagery

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/solarscan-backend-go/internal/cache"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDRfake")

func TestStaticMapsClientFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "-22.9000000,-43.2000000", q.Get("center"))
		assert.Equal(t, "20", q.Get("zoom"))
		assert.Equal(t, "640x640", q.Get("size"))
		assert.Equal(t, "1", q.Get("scale"))
		assert.Equal(t, "satellite", q.Get("maptype"))
		assert.Equal(t, "secret", q.Get("key"))
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngBytes)
	}))
	defer srv.Close()

	c := NewStaticMapsClient(srv.URL, "secret", time.Second, nil)
	img, err := c.FetchTile(context.Background(), -22.9, -43.2, 20, 640, 1)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, img)
}

func TestStaticMapsClientErrors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		body        []byte
		retryable   bool
	}{
		{"throttled", http.StatusTooManyRequests, "text/plain", []byte("slow down"), true},
		{"server error", http.StatusBadGateway, "text/plain", []byte("bad gateway"), true},
		{"forbidden", http.StatusForbidden, "text/plain", []byte("bad key"), false},
		{"not an image", http.StatusOK, "text/html", []byte("<html>quota</html>"), false},
		{"empty", http.StatusOK, "image/png", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(tt.status)
				_, _ = w.Write(tt.body)
			}))
			defer srv.Close()

			_, err := NewStaticMapsClient(srv.URL, "", time.Second, nil).FetchTile(context.Background(), 0, 0, 20, 640, 1)
			require.Error(t, err)
			assert.Equal(t, tt.retryable, IsRetryable(err))
		})
	}
}

func TestStaticMapsClientNetworkErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewStaticMapsClient(url, "", time.Second, nil).FetchTile(context.Background(), 0, 0, 20, 640, 1)
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestTileURLKeepsExistingQuery(t *testing.T) {
	c := NewStaticMapsClient("https://example.test/staticmap?style=x", "", time.Second, nil)
	u := c.TileURL(1, 2, 18, 512, 2)
	assert.Contains(t, u, "staticmap?style=x&")
	assert.Contains(t, u, "size=512x512")
	assert.NotContains(t, u, "key=")
}

func flaky(failures int, err error) (Fetcher, *int32) {
	var calls int32
	return FetcherFunc(func(context.Context, float64, float64, int, int, int) ([]byte, error) {
		n := atomic.AddInt32(&calls, 1)
		if int(n) <= failures {
			return nil, err
		}
		return pngBytes, nil
	}), &calls
}

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func TestRetryingFetcherRecovers(t *testing.T) {
	next, calls := flaky(2, ErrRetryable)
	img, err := NewRetryingFetcher(next, fastRetry(3), nil).FetchTile(context.Background(), 0, 0, 20, 640, 1)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, img)
	assert.EqualValues(t, 3, atomic.LoadInt32(calls))
}

func TestRetryingFetcherGivesUp(t *testing.T) {
	next, calls := flaky(10, ErrRetryable)
	_, err := NewRetryingFetcher(next, fastRetry(3), nil).FetchTile(context.Background(), 0, 0, 20, 640, 1)
	require.Error(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt32(calls))
}

func TestRetryingFetcherPermanentFailure(t *testing.T) {
	permanent := errors.New("forbidden")
	next, calls := flaky(10, permanent)
	_, err := NewRetryingFetcher(next, fastRetry(5), nil).FetchTile(context.Background(), 0, 0, 20, 640, 1)
	require.ErrorIs(t, err, permanent)
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))
}

func TestRetryingFetcherAttemptTimeout(t *testing.T) {
	var calls int32
	slow := FetcherFunc(func(ctx context.Context, _, _ float64, _, _, _ int) ([]byte, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return pngBytes, nil
	})
	cfg := fastRetry(2)
	cfg.AttemptTimeout = 20 * time.Millisecond

	img, err := NewRetryingFetcher(slow, cfg, nil).FetchTile(context.Background(), 0, 0, 20, 640, 1)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, img)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestRetryingFetcherStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	next, _ := flaky(10, ErrRetryable)
	_, err := NewRetryingFetcher(next, fastRetry(3), nil).FetchTile(ctx, 0, 0, 20, 640, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCachedFetcherCollapsesRequests(t *testing.T) {
	var calls int32
	upstream := FetcherFunc(func(context.Context, float64, float64, int, int, int) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(20 * time.Millisecond)
		return pngBytes, nil
	})
	lru := cache.NewLRU[[]byte]("tiles", 16)
	defer lru.Stop()
	f := NewCachedFetcher(upstream, lru)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			img, err := f.FetchTile(context.Background(), -22.9, -43.2, 20, 640, 1)
			assert.NoError(t, err)
			assert.Equal(t, pngBytes, img)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	_, err := f.FetchTile(context.Background(), -22.9, -43.2, 19, 640, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls), "different zoom is a different key")
}

func TestCachedFetcherDoesNotCacheErrors(t *testing.T) {
	next, calls := flaky(1, ErrRetryable)
	lru := cache.NewLRU[[]byte]("tiles", 16)
	defer lru.Stop()
	f := NewCachedFetcher(next, lru)

	_, err := f.FetchTile(context.Background(), 1, 1, 20, 640, 1)
	require.Error(t, err)
	_, err = f.FetchTile(context.Background(), 1, 1, 20, 640, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(calls))
}

func TestCachedFetcherSharedFetchSurvivesOneCallerCancel(t *testing.T) {
	var calls int32
	started := make(chan struct{})
	release := make(chan struct{})
	upstream := FetcherFunc(func(ctx context.Context, _, _ float64, _, _, _ int) ([]byte, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
		}
		select {
		case <-release:
			return pngBytes, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	lru := cache.NewLRU[[]byte]("tiles", 16)
	defer lru.Stop()
	f := NewCachedFetcher(upstream, lru).WithLoadTimeout(5 * time.Second)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := f.FetchTile(ctxA, -22.9, -43.2, 20, 640, 1)
		errA <- err
	}()
	<-started

	type result struct {
		img []byte
		err error
	}
	resB := make(chan result, 1)
	go func() {
		img, err := f.FetchTile(context.Background(), -22.9, -43.2, 20, 640, 1)
		resB <- result{img, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	select {
	case err := <-errA:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting on the shared fetch")
	}

	close(release)
	b := <-resB
	require.NoError(t, b.err)
	assert.Equal(t, pngBytes, b.img)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestCachedFetcherLoadTimeout(t *testing.T) {
	upstream := FetcherFunc(func(ctx context.Context, _, _ float64, _, _, _ int) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	lru := cache.NewLRU[[]byte]("tiles", 16)
	defer lru.Stop()
	f := NewCachedFetcher(upstream, lru).WithLoadTimeout(20 * time.Millisecond)

	_, err := f.FetchTile(context.Background(), 1, 1, 20, 640, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
