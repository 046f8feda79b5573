package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/daily-brief/internal/ratelimit"
	"github.com/jonathan/daily-brief/internal/types"
)

func requests(n int) []types.FetchRequest {
	reqs := make([]types.FetchRequest, n)
	for i := range reqs {
		reqs[i] = types.FetchRequest{
			SourceType: types.SourceNews,
			Query:      fmt.Sprintf("https://news.example.com/%d", i),
			SourceID:   fmt.Sprintf("news:%d", i),
			Subtopic:   "raft",
		}
	}
	return reqs
}

func TestGateway_PartialFailure(t *testing.T) {
	adapter := AdapterFunc(func(_ context.Context, req types.FetchRequest) (Batch, error) {
		switch req.SourceID {
		case "news:1":
			return Batch{}, &Error{Kind: KindMalformed, Message: "bad feed"}
		case "news:3":
			return Batch{}, errors.New("connection reset")
		}
		return Batch{Items: []types.RawItem{{Title: "item " + req.SourceID, URL: "https://a.example.com/" + req.SourceID}}}, nil
	})
	gw := NewGateway(Registry{types.SourceNews: adapter}, GatewayConfig{Concurrency: 2, Timeout: time.Second})

	outcomes := gw.FetchAll(context.Background(), requests(5))

	require.Len(t, outcomes, 5)
	var failed int
	for i, o := range outcomes {
		assert.Equal(t, fmt.Sprintf("news:%d", i), o.Request.SourceID, "outcomes keep request order")
		if o.Err != nil {
			failed++
			var fe *Error
			require.ErrorAs(t, o.Err, &fe)
			assert.Equal(t, o.Request.SourceID, fe.SourceID)
			continue
		}
		require.Len(t, o.Items, 1)
		assert.Equal(t, "raft", o.Items[0].Subtopic)
		assert.Equal(t, o.Request.SourceID, o.Items[0].SourceID)
		assert.Equal(t, "a.example.com", o.Items[0].Source)
		assert.Equal(t, types.OriginFeed, o.Items[0].Origin)
	}
	assert.Equal(t, 2, failed)
	assert.Equal(t, KindMalformed, KindOf(outcomes[1].Err))
	assert.Equal(t, KindTransport, KindOf(outcomes[3].Err))
}

func TestGateway_Timeout(t *testing.T) {
	adapter := AdapterFunc(func(ctx context.Context, _ types.FetchRequest) (Batch, error) {
		<-ctx.Done()
		return Batch{}, ctx.Err()
	})
	gw := NewGateway(Registry{types.SourceNews: adapter}, GatewayConfig{Timeout: 20 * time.Millisecond})

	outcomes := gw.FetchAll(context.Background(), requests(1))
	require.Error(t, outcomes[0].Err)
	assert.Equal(t, KindTimeout, KindOf(outcomes[0].Err))
}

func TestGateway_TimeoutDoesNotWaitForAdapterIgnoringContext(t *testing.T) {
	release := make(chan struct{})
	returned := make(chan struct{})
	adapter := AdapterFunc(func(context.Context, types.FetchRequest) (Batch, error) {
		defer close(returned)
		<-release
		return Batch{Items: []types.RawItem{{Title: "late"}}}, nil
	})
	t.Cleanup(func() {
		close(release)
		<-returned
	})
	gw := NewGateway(Registry{types.SourceNews: adapter}, GatewayConfig{Timeout: 50 * time.Millisecond})

	start := time.Now()
	outcomes := gw.FetchAll(context.Background(), requests(1))
	assert.Less(t, time.Since(start), time.Second)
	require.Error(t, outcomes[0].Err)
	assert.Equal(t, KindTimeout, KindOf(outcomes[0].Err))
	assert.Empty(t, outcomes[0].Items)
}

func TestGateway_ConcurrencyBound(t *testing.T) {
	var inFlight, peak atomic.Int32
	adapter := AdapterFunc(func(context.Context, types.FetchRequest) (Batch, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return Batch{}, nil
	})
	gw := NewGateway(Registry{types.SourceNews: adapter}, GatewayConfig{Concurrency: 3, Timeout: time.Second})

	gw.FetchAll(context.Background(), requests(12))
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Positive(t, peak.Load())
}

func TestGateway_CancelledRunStillDrains(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	adapter := AdapterFunc(func(ctx context.Context, req types.FetchRequest) (Batch, error) {
		cancel()
		time.Sleep(5 * time.Millisecond)
		if err := ctx.Err(); err != nil {
			return Batch{}, err
		}
		return Batch{Items: []types.RawItem{{Title: "t", URL: "https://x.example.com"}}}, nil
	})
	gw := NewGateway(Registry{types.SourceNews: adapter}, GatewayConfig{Timeout: time.Second})

	outcomes := gw.FetchAll(ctx, requests(1))
	require.NoError(t, outcomes[0].Err, "in-flight requests are not interrupted")
	assert.Len(t, outcomes[0].Items, 1)
}

func TestGateway_Normalize(t *testing.T) {
	adapter := AdapterFunc(func(context.Context, types.FetchRequest) (Batch, error) {
		return Batch{
			Items: []types.RawItem{
				{Title: "  ", URL: ""},
				{Title: "", URL: "https://b.example.com/x", Body: "<p>hello</p>"},
				{Title: "third", URL: "https://c.example.com", Source: "C"},
				{Title: "fourth", URL: "https://d.example.com"},
			},
			Malformed: []MalformedItem{{Index: 9, Reason: "adapter dropped"}},
		}, nil
	})
	gw := NewGateway(Registry{types.SourceNews: adapter}, GatewayConfig{Timeout: time.Second, MaxItemsPerRequest: 2})

	batch, err := gw.Fetch(context.Background(), requests(1)[0])
	require.NoError(t, err)

	require.Len(t, batch.Items, 2)
	assert.Equal(t, "https://b.example.com/x", batch.Items[0].Title)
	assert.Equal(t, "hello", batch.Items[0].Body)
	assert.Equal(t, "C", batch.Items[1].Source)
	assert.Len(t, batch.Malformed, 2)
}

func TestGateway_UnknownSourceType(t *testing.T) {
	gw := NewGateway(Registry{}, GatewayConfig{})
	_, err := gw.Fetch(context.Background(), types.FetchRequest{SourceType: types.SourceSocial, SourceID: "social:x"})
	require.Error(t, err)
	assert.Equal(t, KindUnsupported, KindOf(err))
}

func TestGateway_RateLimited(t *testing.T) {
	var calls atomic.Int32
	adapter := AdapterFunc(func(context.Context, types.FetchRequest) (Batch, error) {
		calls.Add(1)
		return Batch{}, nil
	})
	gw := NewGateway(Registry{types.SourceNews: adapter}, GatewayConfig{
		Concurrency: 1,
		Timeout:     30 * time.Millisecond,
		Limiter:     ratelimit.NewLimiter(0.1, 1),
	})

	reqs := requests(2)
	reqs[1].Query = reqs[0].Query
	outcomes := gw.FetchAll(context.Background(), reqs)

	assert.NoError(t, outcomes[0].Err)
	assert.Equal(t, KindRateLimited, KindOf(outcomes[1].Err))
	assert.Equal(t, int32(1), calls.Load())
}
