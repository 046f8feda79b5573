package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/daily-brief/internal/types"
)

func TestSiteAdapter_FollowsAdvertisedFeed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><head><link rel="alternate" type="application/rss+xml" href="/feed.xml"></head><body></body></html>`))
	})
	mux.HandleFunc("/feed.xml", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<rss version="2.0"><channel><title>Eng Blog</title>
			<item><title>Sharding at scale</title><link>https://blog.example.com/sharding</link></item>
		</channel></rss>`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	req := types.FetchRequest{SourceType: types.SourceSite, Query: server.URL + "/", SourceID: "site:x"}
	batch, err := NewSiteAdapter(nil, nil).Fetch(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, batch.Items, 1)
	assert.Equal(t, "Sharding at scale", batch.Items[0].Title)
	assert.Equal(t, "Eng Blog", batch.Items[0].Source)
}

func TestSiteAdapter_ScrapesArticles(t *testing.T) {
	server := serve(t, "text/html", `<html><head><meta property="og:site_name" content="Example Eng"></head><body>
		<article><h2>Vector clocks explained</h2><a href="/posts/vc">read</a><p>Causality tracking.</p></article>
		<article><p>No heading here</p></article>
	</body></html>`)

	req := types.FetchRequest{SourceType: types.SourceSite, Query: server.URL, SourceID: "site:x"}
	batch, err := NewSiteAdapter(nil, nil).Fetch(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, batch.Items, 1)
	assert.Equal(t, "Vector clocks explained", batch.Items[0].Title)
	assert.Equal(t, server.URL+"/posts/vc", batch.Items[0].URL)
	assert.Equal(t, "Example Eng", batch.Items[0].Source)
	assert.Contains(t, batch.Items[0].Body, "Causality tracking.")
	assert.Len(t, batch.Malformed, 1)
}

func TestSiteAdapter_RendersThinPages(t *testing.T) {
	server := serve(t, "text/html", `<html><head><title>App</title></head><body><div id="root"></div></body></html>`)

	var rendered string
	render := func(_ context.Context, url string) (string, error) {
		rendered = url
		return `<html><body><article><h2>Client-side post</h2><a href="https://example.com/p">x</a></article></body></html>`, nil
	}

	req := types.FetchRequest{SourceType: types.SourceSite, Query: server.URL, SourceID: "site:x"}
	batch, err := NewSiteAdapter(nil, render).Fetch(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, server.URL, rendered)
	require.Len(t, batch.Items, 1)
	assert.Equal(t, "Client-side post", batch.Items[0].Title)
}

func TestSiteAdapter_PageFallback(t *testing.T) {
	body := "<html><head><title>About us</title></head><body><main>" + strings.Repeat("We build databases. ", 40) + "</main></body></html>"
	server := serve(t, "text/html", body)

	req := types.FetchRequest{SourceType: types.SourceSite, Query: server.URL, SourceID: "site:x"}
	batch, err := NewSiteAdapter(nil, nil).Fetch(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, batch.Items, 1)
	assert.Equal(t, "About us", batch.Items[0].Title)
	assert.Equal(t, server.URL, batch.Items[0].URL)
}
