package lookup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/siegecorps/siegebot/internal/config"
	"github.com/siegecorps/siegebot/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"
)

// DefaultAllowedDomains are the reference and news sites pages may be read from
var DefaultAllowedDomains = []string{
	"bbc.com", "bbc.co.uk", "reuters.com", "apnews.com", "ap.org",
	"britannica.com", "nationalgeographic.com", "nasa.gov", "cnn.com",
	"npr.org", "pbs.org", "smithsonianmag.com", "history.com", "discovery.com",
	"scientificamerican.com", "newscientist.com", "nature.com", "sciencemag.org",
	"weather.gov", "cdc.gov", "fda.gov", "nih.gov", "who.int", "redcross.org", "un.org",
}

// DefaultAllowedTLDs are top-level domains accepted regardless of site
var DefaultAllowedTLDs = []string{".gov", ".edu", ".mil"}

// Extractor fetches a page and returns its readable text
type Extractor interface {
	Extract(ctx context.Context, rawURL string) (string, error)
}

// WebExtractor reads allow-listed pages
type WebExtractor struct {
	domains   []string
	tlds      []string
	minChars  int
	maxChars  int
	maxBody   int64
	userAgent string
	client    *http.Client
	logger    *logrus.Logger
}

// NewWebExtractor creates an extractor from configuration
func NewWebExtractor(cfg config.WebConfig, timeout time.Duration, logger *logrus.Logger) *WebExtractor {
	domains := cfg.AllowedDomains
	if len(domains) == 0 {
		domains = DefaultAllowedDomains
	}
	tlds := cfg.AllowedTLDs
	if len(tlds) == 0 {
		tlds = DefaultAllowedTLDs
	}

	w := &WebExtractor{
		domains:   lowerAll(domains, ""),
		tlds:      lowerAll(tlds, "."),
		minChars:  cfg.MinChars,
		maxChars:  cfg.MaxChars,
		maxBody:   cfg.MaxBodyBytes,
		userAgent: cfg.UserAgent,
		logger:    logger,
	}
	if w.maxBody <= 0 {
		w.maxBody = 2 << 20
	}
	w.client = &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return errors.New("too many redirects")
			}
			if !w.Allowed(req.URL.String()) {
				return models.ErrLookupDenied
			}
			return nil
		},
	}
	return w
}

// Allowed reports whether rawURL points at an allow-listed host
func (w *WebExtractor) Allowed(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return false
	}

	for _, d := range w.domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	for _, tld := range w.tlds {
		if strings.HasSuffix(host, tld) {
			return true
		}
	}
	return false
}

// Extract fetches rawURL and returns the text of its headings, paragraphs and list items
func (w *WebExtractor) Extract(ctx context.Context, rawURL string) (string, error) {
	if !w.Allowed(rawURL) {
		return "", models.ErrLookupDenied
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", w.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")

	resp, err := w.client.Do(req)
	if err != nil {
		if errors.Is(err, models.ErrLookupDenied) {
			return "", models.ErrLookupDenied
		}
		return "", fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d: %w", resp.StatusCode, ErrNotFound)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return "", fmt.Errorf("unsupported content type %q: %w", ct, ErrNotFound)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, w.maxBody))
	if err != nil {
		return "", fmt.Errorf("failed to parse page: %w", err)
	}

	text := ExtractText(doc)
	if len([]rune(text)) < w.minChars {
		return "", ErrNotFound
	}
	if w.maxChars > 0 {
		if runes := []rune(text); len(runes) > w.maxChars {
			text = strings.TrimSpace(string(runes[:w.maxChars])) + "..."
		}
	}

	w.logger.WithFields(logrus.Fields{"url": rawURL, "chars": len(text)}).Debug("Page extracted")
	return text, nil
}

var skipped = map[string]bool{
	"script": true, "style": true, "noscript": true, "nav": true, "footer": true, "header": true,
}

var blocks = map[string]bool{
	"p": true, "li": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// ExtractText joins the text of content blocks in document order
func ExtractText(doc *html.Node) string {
	var parts []string
	var walk func(n *html.Node, depth int)
	walk = func(n *html.Node, depth int) {
		if depth > 200 {
			return
		}
		if n.Type == html.ElementNode {
			if skipped[n.Data] {
				return
			}
			if blocks[n.Data] {
				var sb strings.Builder
				collect(n, &sb, depth)
				if t := strings.Join(strings.Fields(sb.String()), " "); t != "" {
					parts = append(parts, t)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, depth+1)
		}
	}
	walk(doc, 0)
	return strings.Join(parts, " ")
}

func collect(n *html.Node, sb *strings.Builder, depth int) {
	if depth > 200 {
		return
	}
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
		sb.WriteString(" ")
		return
	case html.ElementNode:
		if skipped[n.Data] {
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collect(c, sb, depth+1)
	}
}

func lowerAll(in []string, prefix string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if prefix != "" && !strings.HasPrefix(s, prefix) {
			s = prefix + s
		}
		out = append(out, s)
	}
	return out
}
