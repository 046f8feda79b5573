// Package sources maps a topic expansion onto concrete fetch requests.
package sources

import (
	"net/url"
	"strings"

	"github.com/jonathan/daily-brief/internal/config"
	"github.com/jonathan/daily-brief/internal/types"
)

const (
	googleNewsSearchURL = "https://news.google.com/rss/search"
	redditFeedURL       = "https://www.reddit.com/r/%s/.rss"
)

// Resolve returns the fetch requests for an expansion. Per subtopic it emits
// news, social and web_search requests (as enabled), then the run-wide feeds,
// subreddits and websites. Requests are deduplicated by SourceID, first wins.
// The output depends only on its inputs.
func Resolve(expansion types.TopicExpansion, cfg config.SourcesConfig) []types.FetchRequest {
	var out []types.FetchRequest
	seen := make(map[string]bool)
	add := func(r types.FetchRequest) {
		if r.Query == "" || seen[r.SourceID] {
			return
		}
		seen[r.SourceID] = true
		out = append(out, r)
	}

	for _, sub := range expansion.Subtopics {
		keywords := sub.Keywords
		if len(keywords) == 0 {
			keywords = []string{strings.ToLower(sub.Name)}
		}
		if cfg.News {
			add(newsRequest(sub.Name, keywords))
		}
		if cfg.Social {
			add(socialRequest(sub.Name, keywords))
		}
		if cfg.WebSearch {
			add(searchRequest(sub.Name, keywords))
		}
	}

	for _, feed := range cfg.Feeds {
		add(urlRequest(types.SourceFeed, strings.TrimSpace(feed)))
	}
	for _, name := range cfg.Subreddits {
		name = strings.TrimPrefix(strings.TrimSpace(name), "r/")
		if name == "" {
			continue
		}
		add(urlRequest(types.SourceReddit, strings.Replace(redditFeedURL, "%s", url.PathEscape(name), 1)))
	}
	for _, site := range cfg.Websites {
		add(urlRequest(types.SourceSite, strings.TrimSpace(site)))
	}
	return out
}

// NewsSearchURL is the Google News RSS search URL for a keyword set.
func NewsSearchURL(keywords []string) string {
	q := url.Values{}
	q.Set("q", strings.Join(keywords, " "))
	q.Set("hl", "en-US")
	return googleNewsSearchURL + "?" + q.Encode()
}

func newsRequest(subtopic string, keywords []string) types.FetchRequest {
	u := NewsSearchURL(keywords)
	return types.FetchRequest{
		SourceType: types.SourceNews,
		Query:      u,
		SourceID:   sourceID(types.SourceNews, strings.Join(keywords, " ")),
		Subtopic:   subtopic,
		Keywords:   keywords,
	}
}

func socialRequest(subtopic string, keywords []string) types.FetchRequest {
	q := SocialQuery(subtopic)
	return types.FetchRequest{
		SourceType: types.SourceSocial,
		Query:      q,
		SourceID:   sourceID(types.SourceSocial, q),
		Subtopic:   subtopic,
		Keywords:   keywords,
	}
}

// SocialQuery builds a hashtag-or-phrase query: `#distributeddatabases OR "distributed databases"`.
// Single words produce `#word OR word`.
func SocialQuery(subtopic string) string {
	phrase := strings.Join(strings.Fields(strings.ToLower(subtopic)), " ")
	if phrase == "" {
		return ""
	}
	tag := "#" + strings.Map(func(r rune) rune {
		if r == ' ' || r == '#' || r == '"' {
			return -1
		}
		return r
	}, phrase)
	if !strings.Contains(phrase, " ") {
		return tag + " OR " + phrase
	}
	return tag + ` OR "` + strings.ReplaceAll(phrase, `"`, "") + `"`
}

func searchRequest(subtopic string, keywords []string) types.FetchRequest {
	q := strings.Join(keywords, " ")
	return types.FetchRequest{
		SourceType: types.SourceWebSearch,
		Query:      q,
		SourceID:   sourceID(types.SourceWebSearch, q),
		Subtopic:   subtopic,
		Keywords:   keywords,
	}
}

func urlRequest(t types.SourceType, raw string) types.FetchRequest {
	if raw == "" {
		return types.FetchRequest{}
	}
	return types.FetchRequest{
		SourceType: t,
		Query:      raw,
		SourceID:   sourceID(t, normalizeURL(raw)),
	}
}

func sourceID(t types.SourceType, key string) string {
	return string(t) + ":" + strings.Join(strings.Fields(strings.ToLower(key)), " ")
}

// normalizeURL lowercases scheme and host and strips a trailing slash and fragment.
func normalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}
