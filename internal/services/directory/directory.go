package directory

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/siegecorps/siegebot/internal/services/lookup"
	"github.com/sirupsen/logrus"
)

// Entry is one business in the directory
type Entry struct {
	Name    string
	Aliases []string
	Phone   string
	Address string
	Website string
	Email   string
	Info    string
	Source  string
}

// Service resolves company names to directory entries
type Service interface {
	Load(ctx context.Context, dir string) error
	Reload(ctx context.Context) error
	Find(ctx context.Context, name string) (Entry, error)
	Len() int
}

// Directory is a markdown-backed business directory.
// Every level-1 heading starts an entry; "Key: value" lines fill its fields.
type Directory struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	dir     string
	logger  *logrus.Logger
}

// NewDirectory creates an empty directory
func NewDirectory(logger *logrus.Logger) *Directory {
	return &Directory{
		entries: make(map[string]*Entry),
		logger:  logger,
	}
}

// Load reads all markdown files under dir, replacing the current entries
func (d *Directory) Load(ctx context.Context, dir string) error {
	d.logger.WithField("dir", dir).Info("Loading business directory")

	entries := make(map[string]*Entry)
	err := filepath.WalkDir(dir, func(path string, de fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// Skip non-markdown files
		if de.IsDir() || !strings.HasSuffix(strings.ToLower(path), ".md") {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			d.logger.WithError(err).WithField("path", path).Warn("Failed to read directory file")
			return nil // Continue with other files
		}
		for _, e := range Parse(string(content), path) {
			for _, key := range e.keys() {
				entries[key] = e
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk directory %s: %w", dir, err)
	}

	d.mu.Lock()
	d.entries = entries
	d.dir = dir
	d.mu.Unlock()

	d.logger.WithField("count", d.Len()).Info("Business directory loaded")
	return nil
}

// Reload re-reads the last loaded directory
func (d *Directory) Reload(ctx context.Context) error {
	d.mu.RLock()
	dir := d.dir
	d.mu.RUnlock()
	if dir == "" {
		return nil
	}
	return d.Load(ctx, dir)
}

// Find returns the entry for name, preferring exact (normalized) matches
func (d *Directory) Find(ctx context.Context, name string) (Entry, error) {
	key := normalize(name)
	if key == "" {
		return Entry{}, lookup.ErrNotFound
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if e, ok := d.entries[key]; ok {
		return *e, nil
	}

	var best *Entry
	bestLen := 0
	for k, e := range d.entries {
		if strings.Contains(key, k) || strings.Contains(k, key) {
			if len(k) > bestLen || (len(k) == bestLen && best != nil && e.Name < best.Name) {
				best, bestLen = e, len(k)
			}
		}
	}
	if best == nil {
		return Entry{}, lookup.ErrNotFound
	}
	return *best, nil
}

// Len returns the number of distinct entries
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	seen := make(map[*Entry]struct{}, len(d.entries))
	for _, e := range d.entries {
		seen[e] = struct{}{}
	}
	return len(seen)
}

// Parse splits a markdown document into entries
func Parse(content, source string) []*Entry {
	var entries []*Entry
	var cur *Entry
	var info []string

	flush := func() {
		if cur == nil {
			return
		}
		cur.Info = strings.TrimSpace(strings.Join(info, " "))
		entries = append(entries, cur)
		info = nil
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			flush()
			cur = &Entry{Name: strings.TrimSpace(trimmed[2:]), Source: source}
			continue
		}
		if cur == nil || trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		trimmed = strings.TrimLeft(trimmed, "-* ")
		key, value, ok := strings.Cut(trimmed, ":")
		if !ok {
			info = append(info, trimmed)
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "phone", "tel", "telephone":
			cur.Phone = value
		case "address", "location":
			cur.Address = value
		case "website", "web", "url":
			cur.Website = value
		case "email", "e-mail":
			cur.Email = value
		case "aliases", "alias", "aka":
			for _, a := range strings.Split(value, ",") {
				if a = strings.TrimSpace(a); a != "" {
					cur.Aliases = append(cur.Aliases, a)
				}
			}
		case "info", "about", "description":
			info = append(info, value)
		default:
			info = append(info, trimmed)
		}
	}
	flush()
	return entries
}

// Render formats an entry for the requested facet: phone, address, contact or info
func Render(e Entry, facet string) string {
	var parts []string
	add := func(label, value string) {
		if value != "" {
			parts = append(parts, label+": "+value)
		}
	}

	switch facet {
	case "phone":
		add("Phone", e.Phone)
	case "address":
		add("Address", e.Address)
	case "contact":
		add("Phone", e.Phone)
		add("Email", e.Email)
		add("Website", e.Website)
	default:
		add("Phone", e.Phone)
		add("Address", e.Address)
		add("Website", e.Website)
		if e.Info != "" {
			parts = append(parts, e.Info)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return e.Name + ". " + strings.Join(parts, "; ")
}

func (e *Entry) keys() []string {
	keys := []string{normalize(e.Name)}
	for _, a := range e.Aliases {
		keys = append(keys, normalize(a))
	}
	out := keys[:0]
	for _, k := range keys {
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}

var (
	nonWord       = regexp.MustCompile(`[^a-z0-9]+`)
	companySuffix = regexp.MustCompile(`\b(?:inc|corp|corporation|llc|ltd|co|company)$`)
)

func normalize(name string) string {
	n := strings.ToLower(name)
	n = strings.TrimPrefix(strings.TrimSpace(n), "the ")
	n = strings.TrimSpace(nonWord.ReplaceAllString(n, " "))
	n = strings.TrimSpace(companySuffix.ReplaceAllString(n, ""))
	return n
}
