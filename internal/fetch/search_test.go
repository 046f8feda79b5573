package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/jonathan/daily-brief/internal/types"
)

func newTestSearchAdapter(t *testing.T, handler http.HandlerFunc) *SearchAdapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	adapter, err := NewSearchAdapter(context.Background(), "key", "cx",
		option.WithEndpoint(server.URL+"/"),
		option.WithHTTPClient(server.Client()))
	require.NoError(t, err)
	return adapter
}

func TestSearchAdapter_Fetch(t *testing.T) {
	var gotQuery string
	adapter := newTestSearchAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[
			{"title":"Jepsen: FoundationDB","link":"https://jepsen.io/fdb","displayLink":"jepsen.io","snippet":"Testing distributed databases",
			 "pagemap":{"metatags":[{"article:published_time":"2026-10-14T12:00:00Z"}]}},
			{"title":"no link"}
		]}`))
	})

	batch, err := adapter.Fetch(context.Background(), types.FetchRequest{SourceType: types.SourceWebSearch, Query: "raft paxos", SourceID: "web_search:raft paxos"})
	require.NoError(t, err)

	assert.Equal(t, "raft paxos", gotQuery)
	require.Len(t, batch.Items, 1)
	assert.Equal(t, "jepsen.io", batch.Items[0].Source)
	assert.Equal(t, "Testing distributed databases", batch.Items[0].Body)
	require.NotNil(t, batch.Items[0].Published)
	assert.Equal(t, 2026, batch.Items[0].Published.Year())
	assert.Len(t, batch.Malformed, 1)
}

func TestSearchAdapter_QuotaExhausted(t *testing.T) {
	adapter := newTestSearchAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"quota"}}`))
	})

	_, err := adapter.Fetch(context.Background(), types.FetchRequest{Query: "x"})
	require.Error(t, err)
	assert.Equal(t, KindRateLimited, KindOf(err))
}

func TestNewSearchAdapter_RequiresCredentials(t *testing.T) {
	_, err := NewSearchAdapter(context.Background(), "", "cx")
	assert.Error(t, err)
}
