package fetch

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jonathan/daily-brief/internal/textutil"
	"github.com/jonathan/daily-brief/internal/types"
)

const (
	socialSourceName = "x.com"
	socialTitleWords = 16
	socialMaxResults = 25
)

// SocialAdapter queries the X recent-search API. Without a bearer token it
// returns no items.
type SocialAdapter struct {
	endpoint string
	token    string
	opts     *Options
}

// NewSocialAdapter creates a SocialAdapter.
func NewSocialAdapter(endpoint, bearerToken string, opts *Options) *SocialAdapter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &SocialAdapter{endpoint: endpoint, token: bearerToken, opts: opts}
}

type socialResponse struct {
	Data []struct {
		ID        string `json:"id"`
		Text      string `json:"text"`
		CreatedAt string `json:"created_at"`
		AuthorID  string `json:"author_id"`
		Lang      string `json:"lang"`
	} `json:"data"`
}

// Fetch runs req.Query as a recent-search query.
func (a *SocialAdapter) Fetch(ctx context.Context, req types.FetchRequest) (Batch, error) {
	if a.token == "" {
		return Batch{}, nil
	}

	q := url.Values{}
	q.Set("query", req.Query+" -is:retweet")
	q.Set("max_results", strconv.Itoa(socialMaxResults))
	q.Set("tweet.fields", "created_at,author_id,lang")

	opts := *a.opts
	opts.Headers = map[string]string{
		"Authorization": "Bearer " + a.token,
		"Accept":        "application/json",
	}
	res, err := URL(ctx, a.endpoint+"?"+q.Encode(), &opts)
	if err != nil {
		return Batch{}, err
	}

	var resp socialResponse
	if err := json.Unmarshal(res.Body, &resp); err != nil {
		return Batch{}, &Error{Kind: KindMalformed, SourceID: req.SourceID, URL: a.endpoint, Message: "invalid JSON", Cause: err}
	}

	var batch Batch
	for i, post := range resp.Data {
		text := strings.TrimSpace(post.Text)
		if post.ID == "" || text == "" {
			batch.Malformed = append(batch.Malformed, MalformedItem{SourceID: req.SourceID, Index: i, Reason: "missing id or text"})
			continue
		}
		title, _ := textutil.TruncateWords(textutil.FirstSentence(text), socialTitleWords)
		item := types.RawItem{
			Source: socialSourceName,
			Origin: types.OriginSocial,
			Title:  title,
			Body:   text,
			URL:    "https://x.com/i/web/status/" + post.ID,
		}
		if t, err := time.Parse(time.RFC3339, post.CreatedAt); err == nil {
			t = t.UTC()
			item.Published = &t
		}
		if post.AuthorID != "" {
			item.Metadata = map[string]string{"author_id": post.AuthorID}
		}
		batch.Items = append(batch.Items, item)
	}
	return batch, nil
}
