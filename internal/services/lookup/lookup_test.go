package lookup

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/siegecorps/siegebot/internal/config"
	"github.com/siegecorps/siegebot/internal/models"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wikiServer(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		if q.Get("list") == "search" {
			term := q.Get("srsearch")
			if _, ok := pages[term]; !ok {
				fmt.Fprint(w, `{"query":{"search":[]}}`)
				return
			}
			fmt.Fprintf(w, `{"query":{"search":[{"title":%q}]}}`, term)
			return
		}
		fmt.Fprint(w, pages[q.Get("titles")])
	}))
}

func TestWikipediaLookup(t *testing.T) {
	srv := wikiServer(t, map[string]string{
		"Napoleon": `{"query":{"pages":[{"title":"Napoleon","extract":"Napoleon Bonaparte was a French\n military leader."}]}}`,
		"Mercury":  `{"query":{"pages":[{"title":"Mercury","pageprops":{"disambiguation":""},"links":[{"ns":0,"title":"Mercury (planet)"},{"ns":14,"title":"Category:X"}]}]}}`,
		"Ghost":    `{"query":{"pages":[{"title":"Ghost","missing":true}]}}`,
	})
	defer srv.Close()

	log, _ := test.NewNullLogger()
	c := NewWikipediaClient(config.WikipediaConfig{BaseURL: srv.URL, Sentences: 2}, time.Second, log)
	ctx := context.Background()

	art, err := c.Lookup(ctx, "Napoleon")
	require.NoError(t, err)
	assert.Equal(t, "Napoleon", art.Title)
	assert.Equal(t, "Napoleon Bonaparte was a French military leader.", art.Summary)

	_, err = c.Lookup(ctx, "Mercury")
	var dis *DisambiguationError
	require.True(t, errors.As(err, &dis))
	assert.Equal(t, []string{"Mercury (planet)"}, dis.Candidates)

	_, err = c.Lookup(ctx, "Ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = c.Lookup(ctx, "Nothing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func newExtractor(t *testing.T, extra ...string) *WebExtractor {
	t.Helper()
	log, _ := test.NewNullLogger()
	return NewWebExtractor(config.WebConfig{
		AllowedDomains: append([]string{"bbc.co.uk", "127.0.0.1"}, extra...),
		MinChars:       100,
		MaxChars:       2000,
		MaxBodyBytes:   1 << 20,
		UserAgent:      "test",
	}, time.Second, log)
}

func TestWebAllowed(t *testing.T) {
	w := newExtractor(t)
	assert.True(t, w.Allowed("https://www.bbc.co.uk/news"))
	assert.True(t, w.Allowed("https://bbc.co.uk/news"))
	assert.True(t, w.Allowed("https://data.census.gov/x"))
	assert.True(t, w.Allowed("http://cs.mit.edu"))
	assert.False(t, w.Allowed("https://evilbbc.co.uk/"))
	assert.False(t, w.Allowed("https://example.com/"))
	assert.False(t, w.Allowed("ftp://nasa.gov/file"))
	assert.False(t, w.Allowed("not a url"))

	_, err := w.Extract(context.Background(), "https://example.com/")
	assert.ErrorIs(t, err, models.ErrLookupDenied)
}

func TestWebExtract(t *testing.T) {
	para := strings.Repeat("Siege androids patrol the wasteland. ", 5)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		switch r.URL.Path {
		case "/article":
			fmt.Fprintf(w, `<html><head><script>var x=1;</script></head><body>
				<nav><p>Menu</p></nav><h1>Report</h1><p>%s</p><ul><li>One</li><li>Two</li></ul>
				<footer><p>Copyright</p></footer></body></html>`, para)
		case "/short":
			fmt.Fprint(w, `<html><body><p>Too short.</p></body></html>`)
		case "/long":
			fmt.Fprintf(w, `<html><body><p>%s</p></body></html>`, strings.Repeat("word ", 1000))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	w := newExtractor(t)
	ctx := context.Background()

	text, err := w.Extract(ctx, srv.URL+"/article")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "Report Siege androids"))
	assert.True(t, strings.HasSuffix(text, "One Two"))
	assert.NotContains(t, text, "Menu")
	assert.NotContains(t, text, "Copyright")
	assert.NotContains(t, text, "var x")

	_, err = w.Extract(ctx, srv.URL+"/short")
	assert.ErrorIs(t, err, ErrNotFound)

	text, err = w.Extract(ctx, srv.URL+"/long")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(text, "..."))
	assert.LessOrEqual(t, len([]rune(text)), 2003)

	_, err = w.Extract(ctx, srv.URL+"/missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
