package sources

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/daily-brief/internal/config"
	"github.com/jonathan/daily-brief/internal/types"
)

func expansion() types.TopicExpansion {
	return types.TopicExpansion{
		Topic: "distributed databases",
		Subtopics: []types.Subtopic{
			{Name: "distributed databases", Keywords: []string{"distributed databases", "distributed", "databases"}},
			{Name: "Consensus", Keywords: []string{"raft", "paxos"}},
		},
	}
}

func TestResolve_Order(t *testing.T) {
	cfg := config.SourcesConfig{
		News:       true,
		Social:     true,
		WebSearch:  true,
		Feeds:      []string{"https://example.com/feed.xml"},
		Subreddits: []string{"r/databases"},
		Websites:   []string{"https://blog.example.com/"},
	}

	reqs := Resolve(expansion(), cfg)

	var got []types.SourceType
	for _, r := range reqs {
		got = append(got, r.SourceType)
	}
	assert.Equal(t, []types.SourceType{
		types.SourceNews, types.SourceSocial, types.SourceWebSearch,
		types.SourceNews, types.SourceSocial, types.SourceWebSearch,
		types.SourceFeed, types.SourceReddit, types.SourceSite,
	}, got)

	assert.Equal(t, "distributed databases", reqs[0].Subtopic)
	assert.Equal(t, "Consensus", reqs[3].Subtopic)
	assert.Equal(t, "https://www.reddit.com/r/databases/.rss", reqs[7].Query)
	assert.Empty(t, reqs[6].Subtopic)
	assert.Equal(t, "site:https://blog.example.com", reqs[8].SourceID)
}

func TestResolve_NewsOnly(t *testing.T) {
	reqs := Resolve(expansion(), config.SourcesConfig{News: true})

	require.Len(t, reqs, 2)
	assert.Equal(t, "news:distributed databases distributed databases", reqs[0].SourceID)
	assert.Equal(t, "https://news.google.com/rss/search?hl=en-US&q=distributed+databases+distributed+databases", reqs[0].Query)
	assert.Equal(t, []string{"raft", "paxos"}, reqs[1].Keywords)
}

func TestResolve_Deduplicates(t *testing.T) {
	cfg := config.SourcesConfig{
		Feeds: []string{"https://Example.com/feed", "https://example.com/feed/", "https://example.com/feed#x"},
	}

	reqs := Resolve(types.TopicExpansion{Topic: "x"}, cfg)

	require.Len(t, reqs, 1)
	assert.Equal(t, "https://Example.com/feed", reqs[0].Query, "first occurrence wins")
}

func TestResolve_Deterministic(t *testing.T) {
	cfg := config.SourcesConfig{News: true, Social: true, WebSearch: true, Subreddits: []string{"golang"}}
	assert.Equal(t, Resolve(expansion(), cfg), Resolve(expansion(), cfg))
}

func TestResolve_NothingEnabled(t *testing.T) {
	assert.Empty(t, Resolve(expansion(), config.SourcesConfig{}))
}

func TestSocialQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"distributed databases", `#distributeddatabases OR "distributed databases"`},
		{"Kubernetes", "#kubernetes OR kubernetes"},
		{"  ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SocialQuery(tt.in))
		})
	}
}
