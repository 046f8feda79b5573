package fetch

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonathan/daily-brief/internal/types"
)

const feedLinkSelector = `link[rel="alternate"][type="application/rss+xml"], link[rel="alternate"][type="application/atom+xml"], link[rel="alternate"][type="application/feed+json"]`

// SiteAdapter turns a website into items. It follows the site's advertised
// feed when there is one and otherwise scrapes article teasers from the page.
type SiteAdapter struct {
	feeds  *FeedAdapter
	opts   *Options
	render RenderFunc
}

// NewSiteAdapter creates a SiteAdapter. render may be nil; when set it is
// used for pages whose static HTML carries too little text.
func NewSiteAdapter(opts *Options, render RenderFunc) *SiteAdapter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &SiteAdapter{feeds: NewFeedAdapter(opts), opts: opts, render: render}
}

// Fetch loads req.Query and extracts items from it.
func (a *SiteAdapter) Fetch(ctx context.Context, req types.FetchRequest) (Batch, error) {
	res, err := URL(ctx, req.Query, a.opts)
	if err != nil {
		return Batch{}, err
	}

	base, _ := url.Parse(req.Query)
	html := string(res.Body)
	if feedURL := discoverFeed(html, base); feedURL != "" {
		feedRes, err := URL(ctx, feedURL, a.opts)
		if err == nil {
			if batch, err := a.feeds.parse(req, feedRes.Body); err == nil {
				return batch, nil
			}
		}
	}

	if a.render != nil {
		if text, err := ExtractMainText(html, DefaultTextSelectors()); err == nil && ShouldUseBrowser(text) {
			if rendered, err := a.render(ctx, req.Query); err == nil {
				html = rendered
			}
		}
	}
	return scrapeArticles(req, html, base)
}

// discoverFeed returns the absolute URL of the first advertised feed.
func discoverFeed(html string, base *url.URL) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	href, ok := doc.Find(feedLinkSelector).First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return ""
	}
	return resolve(base, href)
}

// scrapeArticles reads <article> teasers. A page without any yields one item
// for the page itself.
func scrapeArticles(req types.FetchRequest, html string, base *url.URL) (Batch, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Batch{}, &Error{Kind: KindMalformed, SourceID: req.SourceID, URL: req.Query, Message: "unparseable HTML", Cause: err}
	}
	source := strings.TrimSpace(doc.Find(`meta[property="og:site_name"]`).AttrOr("content", ""))
	if source == "" && base != nil {
		source = strings.ToLower(base.Hostname())
	}

	var batch Batch
	doc.Find("article").Each(func(i int, s *goquery.Selection) {
		title := strings.TrimSpace(s.Find("h1, h2, h3").First().Text())
		href, _ := s.Find("a[href]").First().Attr("href")
		if title == "" || href == "" {
			batch.Malformed = append(batch.Malformed, MalformedItem{SourceID: req.SourceID, Index: i, Reason: "article without title or link"})
			return
		}
		s.Find("h1, h2, h3").Remove()
		batch.Items = append(batch.Items, types.RawItem{
			Source: source,
			Origin: types.OriginWeb,
			Title:  title,
			Body:   s.Text(),
			URL:    resolve(base, href),
		})
	})
	if len(batch.Items) > 0 || len(batch.Malformed) > 0 {
		return batch, nil
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	text, _ := ExtractMainText(html, DefaultTextSelectors())
	if title == "" && text == "" {
		return Batch{}, &Error{Kind: KindMalformed, SourceID: req.SourceID, URL: req.Query, Message: "page has no content"}
	}
	batch.Items = append(batch.Items, types.RawItem{
		Source: source,
		Origin: types.OriginWeb,
		Title:  title,
		Body:   text,
		URL:    req.Query,
	})
	return batch, nil
}

func resolve(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}
