package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/jonathan/daily-brief/internal/types"
)

// searchResults is the Custom Search page size (API maximum).
const searchResults = 10

// SearchAdapter runs web searches through the Google Custom Search API.
type SearchAdapter struct {
	svc *customsearch.Service
	cx  string
}

// NewSearchAdapter creates a SearchAdapter. Extra client options are passed
// to the service (tests point it at a local endpoint).
func NewSearchAdapter(ctx context.Context, apiKey, cx string, opts ...option.ClientOption) (*SearchAdapter, error) {
	if apiKey == "" || cx == "" {
		return nil, errors.New("custom search requires an API key and a search engine id")
	}
	svc, err := customsearch.NewService(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create customsearch service: %w", err)
	}
	return &SearchAdapter{svc: svc, cx: cx}, nil
}

// Fetch searches for req.Query.
func (a *SearchAdapter) Fetch(ctx context.Context, req types.FetchRequest) (Batch, error) {
	resp, err := a.svc.Cse.List().Cx(a.cx).Q(req.Query).Num(searchResults).Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusTooManyRequests {
			return Batch{}, &Error{Kind: KindRateLimited, SourceID: req.SourceID, Message: "search quota exhausted", Cause: err}
		}
		return Batch{}, &Error{Kind: KindOf(err), SourceID: req.SourceID, Message: "search failed", Cause: err}
	}

	var batch Batch
	for i, r := range resp.Items {
		if r == nil || r.Link == "" {
			batch.Malformed = append(batch.Malformed, MalformedItem{SourceID: req.SourceID, Index: i, Reason: "result without link"})
			continue
		}
		batch.Items = append(batch.Items, types.RawItem{
			Source:    r.DisplayLink,
			Origin:    types.OriginWeb,
			Title:     r.Title,
			Body:      r.Snippet,
			URL:       r.Link,
			Published: pagemapPublished(r.Pagemap),
		})
	}
	return batch, nil
}

// pagemapPublished reads article:published_time from the result's metatags.
func pagemapPublished(raw googleapi.RawMessage) *time.Time {
	if len(raw) == 0 {
		return nil
	}
	var pm struct {
		Metatags []map[string]string `json:"metatags"`
	}
	if err := json.Unmarshal(raw, &pm); err != nil {
		return nil
	}
	for _, tags := range pm.Metatags {
		for _, key := range []string{"article:published_time", "og:updated_time"} {
			if v, ok := tags[key]; ok {
				if t, err := time.Parse(time.RFC3339, v); err == nil {
					t = t.UTC()
					return &t
				}
			}
		}
	}
	return nil
}
