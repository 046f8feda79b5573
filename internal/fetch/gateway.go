package fetch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/daily-brief/internal/ratelimit"
	"github.com/jonathan/daily-brief/internal/types"
)

// snippetWords bounds item bodies handed to scoring.
const snippetWords = 120

// Batch is what an adapter returns for one request: the items it could
// normalize plus the entries it dropped.
type Batch struct {
	Items     []types.RawItem
	Malformed []MalformedItem
}

// Adapter serves fetch requests of one or more source types.
type Adapter interface {
	Fetch(ctx context.Context, req types.FetchRequest) (Batch, error)
}

// AdapterFunc adapts a function to the Adapter interface.
type AdapterFunc func(ctx context.Context, req types.FetchRequest) (Batch, error)

func (f AdapterFunc) Fetch(ctx context.Context, req types.FetchRequest) (Batch, error) {
	return f(ctx, req)
}

// Registry maps source types to adapters.
type Registry map[types.SourceType]Adapter

// GatewayConfig configures a Gateway.
type GatewayConfig struct {
	Concurrency        int
	Timeout            time.Duration
	MaxItemsPerRequest int
	// Limiter throttles requests per host. Nil disables throttling.
	Limiter *ratelimit.Limiter
	Logger  *zap.Logger
}

// Gateway dispatches fetch requests to adapters with a bounded worker pool,
// a per-request timeout and per-host rate limiting.
type Gateway struct {
	adapters Registry
	cfg      GatewayConfig
	logger   *zap.Logger
}

// NewGateway creates a Gateway.
func NewGateway(adapters Registry, cfg GatewayConfig) *Gateway {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{adapters: adapters, cfg: cfg, logger: logger}
}

// Outcome is the resolution of one request. Exactly one of Err or the
// item lists is meaningful.
type Outcome struct {
	Request   types.FetchRequest
	Items     []types.RawItem
	Malformed []MalformedItem
	Err       error
	Elapsed   time.Duration
}

// FetchAll resolves every request and returns outcomes in request order.
// In-flight requests are not interrupted by cancelling ctx; they drain under
// their own timeout and the caller decides whether to use the results.
func (g *Gateway) FetchAll(ctx context.Context, reqs []types.FetchRequest) []Outcome {
	outcomes := make([]Outcome, len(reqs))
	detached := context.WithoutCancel(ctx)

	var eg errgroup.Group
	eg.SetLimit(g.cfg.Concurrency)
	for i, req := range reqs {
		eg.Go(func() error {
			start := time.Now()
			batch, err := g.Fetch(detached, req)
			outcomes[i] = Outcome{
				Request:   req,
				Items:     batch.Items,
				Malformed: batch.Malformed,
				Err:       err,
				Elapsed:   time.Since(start),
			}
			return nil
		})
	}
	_ = eg.Wait()
	return outcomes
}

// Fetch resolves a single request. Failures are always *Error.
func (g *Gateway) Fetch(ctx context.Context, req types.FetchRequest) (Batch, error) {
	adapter, ok := g.adapters[req.SourceType]
	if !ok || adapter == nil {
		return Batch{}, &Error{Kind: KindUnsupported, SourceID: req.SourceID, Message: fmt.Sprintf("no adapter for source type %q", req.SourceType)}
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	if err := g.cfg.Limiter.Wait(ctx, rateKey(req)); err != nil {
		return Batch{}, &Error{Kind: KindRateLimited, SourceID: req.SourceID, URL: req.Query, Message: "no rate limit token before timeout", Cause: err}
	}

	batch, err := call(ctx, adapter, req)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		fe := asFetchError(err, req)
		g.logger.Debug("fetch request failed",
			zap.String("source_id", req.SourceID),
			zap.String("kind", string(fe.Kind)),
			zap.Error(err))
		return Batch{}, fe
	}

	return g.normalize(req, batch), nil
}

type adapterResult struct {
	batch Batch
	err   error
}

// call stops waiting for the adapter once ctx is done. An adapter that ignores
// ctx keeps running in the background and its result is dropped.
func call(ctx context.Context, adapter Adapter, req types.FetchRequest) (Batch, error) {
	done := make(chan adapterResult, 1)
	go func() {
		batch, err := adapter.Fetch(ctx, req)
		done <- adapterResult{batch: batch, err: err}
	}()
	select {
	case res := <-done:
		return res.batch, res.err
	case <-ctx.Done():
		return Batch{}, ctx.Err()
	}
}

// normalize stamps request context onto items, drops entries with neither
// title nor URL, cleans bodies and caps the batch size.
func (g *Gateway) normalize(req types.FetchRequest, batch Batch) Batch {
	out := Batch{Malformed: batch.Malformed}
	for i, item := range batch.Items {
		item.Title = strings.TrimSpace(item.Title)
		item.URL = strings.TrimSpace(item.URL)
		if item.Title == "" && item.URL == "" {
			out.Malformed = append(out.Malformed, MalformedItem{SourceID: req.SourceID, Index: i, Reason: "missing title and url"})
			continue
		}
		if item.Title == "" {
			item.Title = item.URL
		}
		if g.cfg.MaxItemsPerRequest > 0 && len(out.Items) >= g.cfg.MaxItemsPerRequest {
			break
		}
		item.SourceID = req.SourceID
		item.Subtopic = req.Subtopic
		item.Body = CleanSnippet(item.Body, snippetWords)
		if item.Source == "" {
			item.Source = hostOf(item.URL)
		}
		if item.Origin == "" {
			item.Origin = originFor(req.SourceType)
		}
		out.Items = append(out.Items, item)
	}
	return out
}

func asFetchError(err error, req types.FetchRequest) *Error {
	var fe *Error
	if errors.As(err, &fe) {
		if fe.SourceID == "" {
			cp := *fe
			cp.SourceID = req.SourceID
			return &cp
		}
		return fe
	}
	kind := KindOf(err)
	msg := "adapter failed"
	if isTimeout(err) {
		msg = "request timed out"
	}
	return &Error{Kind: kind, SourceID: req.SourceID, URL: req.Query, Message: msg, Cause: err}
}

// rateKey is the request host, or the source type for non-URL queries.
func rateKey(req types.FetchRequest) string {
	if h := hostOf(req.Query); h != "" {
		return h
	}
	return string(req.SourceType)
}

func originFor(t types.SourceType) types.OriginType {
	switch t {
	case types.SourceSocial, types.SourceReddit:
		return types.OriginSocial
	case types.SourceWebSearch, types.SourceSite:
		return types.OriginWeb
	default:
		return types.OriginFeed
	}
}
