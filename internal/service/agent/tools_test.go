package agent

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSearcher struct {
	result string
	err    error
	calls  int
}

func (f *fakeSearcher) InvokableRun(_ context.Context, _ string, _ ...tool.Option) (string, error) {
	f.calls++
	return f.result, f.err
}

func TestToolRateLimiter(t *testing.T) {
	l := newToolRateLimiter(2, 50*time.Millisecond)
	assert.True(t, l.Allow("s"))
	assert.True(t, l.Allow("s"))
	assert.False(t, l.Allow("s"))
	assert.True(t, l.Allow("other"))
	time.Sleep(60 * time.Millisecond)
	assert.True(t, l.Allow("s"))
}

func TestWebSearchFallsBackToDuckDuckGo(t *testing.T) {
	google := &fakeSearcher{err: errors.New("quota")}
	duck := &fakeSearcher{result: "ddg results"}
	ws := &webSearchTool{google: google, duck: duck}

	out, err := ws.run(context.Background(), &webSearchParams{Query: "quickbooks api"})
	require.NoError(t, err)
	assert.Equal(t, "ddg results", out)
	assert.Equal(t, 1, google.calls)
	assert.Equal(t, 1, duck.calls)

	_, err = ws.run(context.Background(), &webSearchParams{Query: "  "})
	assert.Error(t, err)
}

func TestWebSearchRateLimitedPerSession(t *testing.T) {
	ws := &webSearchTool{duck: &fakeSearcher{result: "ok"}, limiter: newToolRateLimiter(1, time.Minute)}
	ctx := WithToolSession(context.Background(), "sess")
	_, err := ws.run(ctx, &webSearchParams{Query: "a"})
	require.NoError(t, err)
	_, err = ws.run(ctx, &webSearchParams{Query: "b"})
	assert.ErrorContains(t, err, "rate limit")
}

func TestWebSearchFetchesURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("page body"))
	}))
	defer srv.Close()

	duck := &fakeSearcher{result: "unused"}
	ws := &webSearchTool{duck: duck, httpClient: srv.Client()}
	out, err := ws.run(context.Background(), &webSearchParams{Query: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, "page body", out)
	assert.Zero(t, duck.calls)
}
