package fetch

import (
	"bytes"
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/jonathan/daily-brief/internal/types"
)

// FeedAdapter fetches RSS, Atom and JSON feeds. It serves news (Google News
// search feeds), custom feeds and subreddit feeds.
type FeedAdapter struct {
	opts *Options
}

// NewFeedAdapter creates a FeedAdapter.
func NewFeedAdapter(opts *Options) *FeedAdapter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &FeedAdapter{opts: opts}
}

// Fetch downloads and parses the feed at req.Query.
func (a *FeedAdapter) Fetch(ctx context.Context, req types.FetchRequest) (Batch, error) {
	res, err := URL(ctx, req.Query, a.opts)
	if err != nil {
		return Batch{}, err
	}
	return a.parse(req, res.Body)
}

func (a *FeedAdapter) parse(req types.FetchRequest, body []byte) (Batch, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return Batch{}, &Error{Kind: KindMalformed, SourceID: req.SourceID, URL: req.Query, Message: "unparseable feed", Cause: err}
	}

	var batch Batch
	for i, entry := range feed.Items {
		if entry == nil {
			batch.Malformed = append(batch.Malformed, MalformedItem{SourceID: req.SourceID, Index: i, Reason: "empty entry"})
			continue
		}
		item, reason := feedItem(req, feed, entry)
		if reason != "" {
			batch.Malformed = append(batch.Malformed, MalformedItem{SourceID: req.SourceID, Index: i, Reason: reason})
			continue
		}
		batch.Items = append(batch.Items, item)
	}
	return batch, nil
}

func feedItem(req types.FetchRequest, feed *gofeed.Feed, entry *gofeed.Item) (types.RawItem, string) {
	title := strings.TrimSpace(entry.Title)
	link := strings.TrimSpace(entry.Link)
	if title == "" && link == "" {
		return types.RawItem{}, "missing title and link"
	}
	if link != "" {
		if u, err := url.Parse(link); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return types.RawItem{}, "invalid link"
		}
	}

	source := feedSourceName(req, feed)
	if req.SourceType == types.SourceNews {
		// Google News titles end with " - Publisher".
		if idx := strings.LastIndex(title, " - "); idx > 0 {
			source = strings.TrimSpace(title[idx+3:])
			title = strings.TrimSpace(title[:idx])
		}
	}

	body := entry.Description
	if body == "" {
		body = entry.Content
	}

	meta := map[string]string{}
	if entry.GUID != "" {
		meta["guid"] = entry.GUID
	}
	if entry.Author != nil && entry.Author.Name != "" {
		meta["author"] = entry.Author.Name
	}
	if len(entry.Categories) > 0 {
		meta["categories"] = strings.Join(entry.Categories, ",")
	}
	if len(meta) == 0 {
		meta = nil
	}

	return types.RawItem{
		Source:    source,
		Origin:    originFor(req.SourceType),
		Title:     title,
		Body:      body,
		Published: published(entry),
		URL:       link,
		Metadata:  meta,
	}, ""
}

func published(entry *gofeed.Item) *time.Time {
	var t *time.Time
	switch {
	case entry.PublishedParsed != nil:
		t = entry.PublishedParsed
	case entry.UpdatedParsed != nil:
		t = entry.UpdatedParsed
	default:
		return nil
	}
	utc := t.UTC()
	return &utc
}

func feedSourceName(req types.FetchRequest, feed *gofeed.Feed) string {
	if req.SourceType == types.SourceReddit {
		if u, err := url.Parse(req.Query); err == nil {
			parts := strings.Split(strings.Trim(u.Path, "/"), "/")
			if len(parts) >= 2 && parts[0] == "r" {
				return "r/" + parts[1]
			}
		}
		return "reddit"
	}
	if t := strings.TrimSpace(feed.Title); t != "" {
		return t
	}
	return hostOf(req.Query)
}
