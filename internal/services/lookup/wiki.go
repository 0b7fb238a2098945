// Package lookup holds the external collaborators that resolve encyclopedic and web-page intents.
package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/siegecorps/siegebot/internal/config"
	"github.com/sirupsen/logrus"
)

// ErrNotFound reports that a collaborator has nothing for the query
var ErrNotFound = errors.New("lookup: not found")

// Article is an encyclopedia summary
type Article struct {
	Title   string
	Summary string
}

// DisambiguationError is returned when the query names several articles
type DisambiguationError struct {
	Query      string
	Candidates []string
}

func (e *DisambiguationError) Error() string {
	return fmt.Sprintf("lookup: %q is ambiguous (%d candidates)", e.Query, len(e.Candidates))
}

// Encyclopedia resolves a free-text query to a short article summary
type Encyclopedia interface {
	Lookup(ctx context.Context, query string) (Article, error)
}

// WikipediaClient queries the MediaWiki action API
type WikipediaClient struct {
	baseURL   string
	sentences int
	userAgent string
	client    *http.Client
	logger    *logrus.Logger
}

// NewWikipediaClient creates a client against cfg.BaseURL
func NewWikipediaClient(cfg config.WikipediaConfig, timeout time.Duration, logger *logrus.Logger) *WikipediaClient {
	sentences := cfg.Sentences
	if sentences <= 0 {
		sentences = 3
	}
	return &WikipediaClient{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		sentences: sentences,
		userAgent: cfg.UserAgent,
		client:    &http.Client{Timeout: timeout},
		logger:    logger,
	}
}

type searchResponse struct {
	Query struct {
		Search []struct {
			Title string `json:"title"`
		} `json:"search"`
	} `json:"query"`
}

type pagesResponse struct {
	Query struct {
		Pages []struct {
			Title     string            `json:"title"`
			Missing   bool              `json:"missing"`
			Extract   string            `json:"extract"`
			PageProps map[string]string `json:"pageprops"`
			Links     []struct {
				NS    int    `json:"ns"`
				Title string `json:"title"`
			} `json:"links"`
		} `json:"pages"`
	} `json:"query"`
}

// Lookup searches for query and returns the summary of the best match
func (w *WikipediaClient) Lookup(ctx context.Context, query string) (Article, error) {
	title, err := w.search(ctx, query)
	if err != nil {
		return Article{}, err
	}
	return w.page(ctx, query, title)
}

func (w *WikipediaClient) search(ctx context.Context, query string) (string, error) {
	params := url.Values{
		"action":   {"query"},
		"list":     {"search"},
		"srsearch": {query},
		"srlimit":  {"3"},
		"format":   {"json"},
	}
	var resp searchResponse
	if err := w.get(ctx, params, &resp); err != nil {
		return "", err
	}
	if len(resp.Query.Search) == 0 {
		return "", ErrNotFound
	}
	return resp.Query.Search[0].Title, nil
}

func (w *WikipediaClient) page(ctx context.Context, query, title string) (Article, error) {
	params := url.Values{
		"action":        {"query"},
		"prop":          {"extracts|pageprops|links"},
		"titles":        {title},
		"exintro":       {"1"},
		"explaintext":   {"1"},
		"exsentences":   {strconv.Itoa(w.sentences)},
		"ppprop":        {"disambiguation"},
		"plnamespace":   {"0"},
		"pllimit":       {"10"},
		"redirects":     {"1"},
		"format":        {"json"},
		"formatversion": {"2"},
	}
	var resp pagesResponse
	if err := w.get(ctx, params, &resp); err != nil {
		return Article{}, err
	}
	if len(resp.Query.Pages) == 0 || resp.Query.Pages[0].Missing {
		return Article{}, ErrNotFound
	}

	p := resp.Query.Pages[0]
	if _, ok := p.PageProps["disambiguation"]; ok {
		candidates := make([]string, 0, len(p.Links))
		for _, l := range p.Links {
			if l.NS == 0 {
				candidates = append(candidates, l.Title)
			}
		}
		return Article{}, &DisambiguationError{Query: query, Candidates: candidates}
	}

	summary := strings.Join(strings.Fields(p.Extract), " ")
	if summary == "" {
		return Article{}, ErrNotFound
	}
	return Article{Title: p.Title, Summary: summary}, nil
}

func (w *WikipediaClient) get(ctx context.Context, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+"/w/api.php?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if w.userAgent != "" {
		req.Header.Set("User-Agent", w.userAgent)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("wikipedia request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("wikipedia returned HTTP %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode wikipedia response: %w", err)
	}
	return nil
}
