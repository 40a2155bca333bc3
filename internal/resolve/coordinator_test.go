// SPDX-License-Identifier: MIT

package resolve

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamvault/streamgate/internal/lock"
	"github.com/streamvault/streamgate/internal/provider"
	"github.com/streamvault/streamgate/internal/rescache"
	"github.com/streamvault/streamgate/internal/session"
	"github.com/streamvault/streamgate/internal/stream"
)

type fakeStreamStore struct {
	streams map[string]*stream.Stream
}

func (f *fakeStreamStore) GetByInfoHash(ctx context.Context, infoHash string) (*stream.Stream, error) {
	if s, ok := f.streams[infoHash]; ok {
		return s, nil
	}
	return nil, stream.ErrNotFound
}

type scriptedResolver struct {
	calls   atomic.Int64
	url     string
	err     error
	block   chan struct{} // when non-nil, Resolve waits for it to close
	started chan struct{} // closed once Resolve has begun
	once    sync.Once
}

func (s *scriptedResolver) Service() string { return "debridlink" }

func (s *scriptedResolver) Resolve(ctx context.Context, req provider.Request) (string, error) {
	s.calls.Add(1)
	if s.started != nil {
		s.once.Do(func() { close(s.started) })
	}
	if s.block != nil {
		<-s.block
	}
	return s.url, s.err
}

type testEnv struct {
	mr       *miniredis.Miniredis
	coord    *Coordinator
	codec    *session.Codec
	resolver *scriptedResolver
	token    string
}

func setupEnv(t *testing.T, resolver *scriptedResolver) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	codec, err := session.NewCodec("coordinator-test-secret")
	require.NoError(t, err)

	streams := &fakeStreamStore{streams: map[string]*stream.Stream{
		"abc123": {
			InfoHash:    "abc123",
			TorrentName: "Movie.2024",
			Filename:    "movie.mkv",
			FileIndex:   0,
		},
		"series1": {
			InfoHash:    "series1",
			TorrentName: "Show.S01",
			FileIndex:   -1,
			Episodes: []stream.Episode{
				{Season: 1, Episode: 3, Filename: "s01e03.mkv", FileIndex: 2},
			},
		},
	}}

	registry := provider.NewRegistry("debridlink")
	registry.Register(resolver)

	token, err := codec.Encode(session.UserConfig{
		StreamingProvider: &session.StreamingProvider{Service: "debridlink", Token: "tok"},
	})
	require.NoError(t, err)

	coord := New(codec, streams, rescache.New(client), lock.NewManager(client), registry, "https://gate.example")
	return &testEnv{mr: mr, coord: coord, codec: codec, resolver: resolver, token: token}
}

func (e *testEnv) request() StreamRequest {
	return StreamRequest{ClientIP: "10.0.0.1", Token: e.token, InfoHash: "abc123"}
}

func TestResolveSuccessAndCacheHit(t *testing.T) {
	env := setupEnv(t, &scriptedResolver{url: "https://cdn.example/video.mp4"})

	out := env.coord.ResolveStream(context.Background(), env.request())
	assert.Equal(t, http.StatusFound, out.Status)
	assert.Equal(t, "https://cdn.example/video.mp4", out.Location)
	assert.Equal(t, int64(1), env.resolver.calls.Load())

	// Same key again: served from cache, resolver not invoked a second time.
	out = env.coord.ResolveStream(context.Background(), env.request())
	assert.Equal(t, http.StatusFound, out.Status)
	assert.Equal(t, "https://cdn.example/video.mp4", out.Location)
	assert.Equal(t, int64(1), env.resolver.calls.Load())
}

func TestResolveReleasesLockOnSuccess(t *testing.T) {
	env := setupEnv(t, &scriptedResolver{url: "https://cdn.example/video.mp4"})

	out := env.coord.ResolveStream(context.Background(), env.request())
	require.Equal(t, http.StatusFound, out.Status)

	// The lease was released explicitly, not left to its TTL.
	keys := env.mr.Keys()
	for _, k := range keys {
		assert.NotContains(t, k, lockSuffix, "lease key should be gone after success")
	}
}

func TestResolveClassifiedFailure(t *testing.T) {
	env := setupEnv(t, &scriptedResolver{
		err: provider.NewFailure("no file", provider.FallbackNoMatchingFile),
	})

	out := env.coord.ResolveStream(context.Background(), env.request())
	assert.Equal(t, http.StatusTemporaryRedirect, out.Status)
	assert.Equal(t, "https://gate.example/static/exceptions/no_matching_file.mp4", out.Location)

	// No cache entry is written on failure.
	for _, k := range env.mr.Keys() {
		if strings.HasPrefix(k, "resolution:") && !strings.HasSuffix(k, lockSuffix) {
			t.Errorf("unexpected cache entry %s", k)
		}
	}
}

func TestResolveUnclassifiedFailure(t *testing.T) {
	env := setupEnv(t, &scriptedResolver{err: errors.New("connection reset")})

	out := env.coord.ResolveStream(context.Background(), env.request())
	assert.Equal(t, http.StatusTemporaryRedirect, out.Status)
	assert.Equal(t, "https://gate.example/static/exceptions/api_error.mp4", out.Location)
}

func TestFailureLeavesLeaseUntilTTL(t *testing.T) {
	env := setupEnv(t, &scriptedResolver{err: errors.New("boom")})

	out := env.coord.ResolveStream(context.Background(), env.request())
	require.Equal(t, http.StatusTemporaryRedirect, out.Status)

	// The lease is not released on the error path: an immediate retry is
	// turned away until the TTL recovers it.
	out = env.coord.ResolveStream(context.Background(), env.request())
	assert.Equal(t, http.StatusTooManyRequests, out.Status)

	env.mr.FastForward(LockTTL + time.Second)
	out = env.coord.ResolveStream(context.Background(), env.request())
	assert.Equal(t, http.StatusTemporaryRedirect, out.Status)
}

func TestResolveBadToken(t *testing.T) {
	env := setupEnv(t, &scriptedResolver{url: "u"})

	req := env.request()
	req.Token = "forged"
	out := env.coord.ResolveStream(context.Background(), req)
	assert.Equal(t, http.StatusUnauthorized, out.Status)
	assert.Equal(t, int64(0), env.resolver.calls.Load())
}

func TestResolveNoProviderConfigured(t *testing.T) {
	env := setupEnv(t, &scriptedResolver{url: "u"})

	token, err := env.codec.Encode(session.UserConfig{})
	require.NoError(t, err)

	req := env.request()
	req.Token = token
	out := env.coord.ResolveStream(context.Background(), req)
	assert.Equal(t, http.StatusBadRequest, out.Status)
	assert.Equal(t, "No streaming provider set.", out.Message)
}

func TestResolveUnknownStream(t *testing.T) {
	env := setupEnv(t, &scriptedResolver{url: "u"})

	req := env.request()
	req.InfoHash = "nope"
	out := env.coord.ResolveStream(context.Background(), req)
	assert.Equal(t, http.StatusBadRequest, out.Status)
	assert.Equal(t, "Stream not found.", out.Message)
}

func TestSingleFlight(t *testing.T) {
	resolver := &scriptedResolver{
		url:     "https://cdn.example/video.mp4",
		block:   make(chan struct{}),
		started: make(chan struct{}),
	}
	env := setupEnv(t, resolver)

	first := make(chan Outcome, 1)
	go func() {
		first <- env.coord.ResolveStream(context.Background(), env.request())
	}()

	// Wait until the first request holds the lease and is resolving.
	select {
	case <-resolver.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first resolution never started")
	}

	// A contender arriving while the lock is held backs off with 429.
	out := env.coord.ResolveStream(context.Background(), env.request())
	assert.Equal(t, http.StatusTooManyRequests, out.Status)

	close(resolver.block)
	select {
	case out = <-first:
	case <-time.After(5 * time.Second):
		t.Fatal("first resolution never finished")
	}
	assert.Equal(t, http.StatusFound, out.Status)

	// Late arrivals observe the cache write that happened before release.
	out = env.coord.ResolveStream(context.Background(), env.request())
	assert.Equal(t, http.StatusFound, out.Status)
	assert.Equal(t, int64(1), resolver.calls.Load(), "exactly one resolver invocation for N concurrent requests")
}

func TestEpisodeSelectionChangesKey(t *testing.T) {
	env := setupEnv(t, &scriptedResolver{url: "https://cdn.example/e3.mp4"})

	req := env.request()
	req.InfoHash = "series1"
	req.Season, req.Episode = 1, 3
	out := env.coord.ResolveStream(context.Background(), req)
	assert.Equal(t, http.StatusFound, out.Status)

	// The movie key is untouched: same session, different file.
	movieKey := ResolutionKey("10.0.0.1", env.token, "abc123", "movie.mkv", 0)
	episodeKey := ResolutionKey("10.0.0.1", env.token, "series1", "s01e03.mkv", 2)
	assert.NotEqual(t, movieKey, episodeKey)
	assert.True(t, env.mr.Exists(episodeKey))
	assert.False(t, env.mr.Exists(movieKey))
}

func TestResolutionKeyDeterministic(t *testing.T) {
	a := ResolutionKey("ip", "tok", "hash", "f.mkv", 1)
	b := ResolutionKey("ip", "tok", "hash", "f.mkv", 1)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, ResolutionKey("ip2", "tok", "hash", "f.mkv", 1))
}

func TestLockStoreErrorYieldsBackpressure(t *testing.T) {
	env := setupEnv(t, &scriptedResolver{url: "u"})

	// Cache read fails open to a miss, then the lock attempt must fail
	// closed with backpressure.
	env.mr.Close()
	out := env.coord.ResolveStream(context.Background(), env.request())
	assert.Equal(t, http.StatusTooManyRequests, out.Status)
	assert.Equal(t, int64(0), env.resolver.calls.Load())
}

func TestPurgeWatchlist(t *testing.T) {
	env := setupEnv(t, &scriptedResolver{url: "u"})

	// debridlink resolver in this test does not implement the purge
	// capability: unsupported.
	out := env.coord.PurgeWatchlist(context.Background(), env.request())
	assert.Equal(t, http.StatusBadRequest, out.Status)
}

type purgingResolver struct {
	scriptedResolver
	purgeErr error
	purged   atomic.Int64
}

func (p *purgingResolver) PurgeWatchlist(ctx context.Context, user session.UserConfig) error {
	p.purged.Add(1)
	return p.purgeErr
}

func TestPurgeWatchlistSupported(t *testing.T) {
	resolver := &purgingResolver{}
	env := setupEnv(t, &resolver.scriptedResolver)
	// Re-register with the purging wrapper under the same service name.
	registry := provider.NewRegistry("debridlink")
	registry.Register(resolver)
	env.coord.registry = registry

	out := env.coord.PurgeWatchlist(context.Background(), env.request())
	assert.Equal(t, http.StatusFound, out.Status)
	assert.Equal(t, "https://gate.example/static/exceptions/watchlist_deleted.mp4", out.Location)
	assert.Equal(t, int64(1), resolver.purged.Load())
}

func TestPurgeWatchlistFailure(t *testing.T) {
	resolver := &purgingResolver{purgeErr: provider.NewFailure("denied", provider.FallbackAPIError)}
	env := setupEnv(t, &resolver.scriptedResolver)
	registry := provider.NewRegistry("debridlink")
	registry.Register(resolver)
	env.coord.registry = registry

	out := env.coord.PurgeWatchlist(context.Background(), env.request())
	assert.Equal(t, http.StatusFound, out.Status)
	assert.Equal(t, "https://gate.example/static/exceptions/api_error.mp4", out.Location)
}
