// Package search provides pluggable web and paper search for the agent.
//
// Backends implement [Provider]. A [Manager] holds the configured ones
// and is what the tool layer and pre-turn retrieval query.
package search

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Result is one hit from a provider.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
	Engine  string `json:"engine,omitempty"` // provider that returned it
}

// Options narrow a query. Zero values leave the provider default.
type Options struct {
	Count    int    `json:"count,omitempty"`    // upper bound; providers may return fewer
	Language string `json:"language,omitempty"` // ISO 639-1, e.g. "en" or "zh"
}

// Provider is a search backend.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, opts Options) ([]Result, error)
}

// Manager routes queries to the primary provider and falls back to the
// others, in registration order, when it fails.
type Manager struct {
	primary string
	order   []Provider
	byName  map[string]Provider
}

// NewManager returns a manager preferring the named provider. An empty
// name makes the first registered provider primary.
func NewManager(primary string) *Manager {
	return &Manager{primary: primary, byName: map[string]Provider{}}
}

// Register adds p, replacing any provider with the same name.
func (m *Manager) Register(p Provider) {
	name := p.Name()
	if _, dup := m.byName[name]; dup {
		m.order = slices.DeleteFunc(m.order, func(q Provider) bool { return q.Name() == name })
	}
	m.byName[name] = p
	m.order = append(m.order, p)
	if m.primary == "" {
		m.primary = name
	}
}

// Primary is the preferred provider's name.
func (m *Manager) Primary() string { return m.primary }

// Providers lists registered names in registration order.
func (m *Manager) Providers() []string {
	names := make([]string, len(m.order))
	for i, p := range m.order {
		names[i] = p.Name()
	}
	return names
}

// Configured reports whether any provider is registered.
func (m *Manager) Configured() bool { return len(m.order) > 0 }

// candidates is the primary, when registered, followed by the rest.
func (m *Manager) candidates() []Provider {
	out := make([]Provider, 0, len(m.order))
	if p, ok := m.byName[m.primary]; ok {
		out = append(out, p)
	}
	for _, p := range m.order {
		if p.Name() != m.primary {
			out = append(out, p)
		}
	}
	return out
}

// Search runs query on the primary provider, then on each fallback
// until one succeeds. The returned error joins every failure.
func (m *Manager) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	cands := m.candidates()
	if len(cands) == 0 {
		return nil, fmt.Errorf("no search provider configured (wanted %q)", m.primary)
	}
	var errs []error
	for _, p := range cands {
		results, err := p.Search(ctx, query, opts)
		if err == nil {
			for i := range results {
				if results[i].Engine == "" {
					results[i].Engine = p.Name()
				}
			}
			return results, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, errors.Join(errs...)
}

// SearchBilingual queries each language concurrently and interleaves
// the lists without duplicate URLs. It fails only when every language
// came back empty and at least one errored.
func (m *Manager) SearchBilingual(ctx context.Context, query string, langs []string, opts Options) ([]Result, error) {
	if len(langs) < 2 {
		return m.Search(ctx, query, opts)
	}

	lists := make([][]Result, len(langs))
	errs := make([]error, len(langs))
	var g errgroup.Group
	for i, lang := range langs {
		o := opts
		o.Language = lang
		g.Go(func() error {
			lists[i], errs[i] = m.Search(ctx, query, o)
			return nil
		})
	}
	_ = g.Wait()

	merged := Interleave(lists...)
	if len(merged) == 0 {
		if err := errors.Join(errs...); err != nil {
			return nil, err
		}
	}
	if opts.Count > 0 && len(merged) > opts.Count {
		merged = merged[:opts.Count]
	}
	return merged, nil
}

// Interleave merges result lists round-robin, keeping the first
// occurrence of each URL.
func Interleave(lists ...[]Result) []Result {
	seen := make(map[string]bool)
	var out []Result
	for i := 0; ; i++ {
		progressed := false
		for _, l := range lists {
			if i >= len(l) {
				continue
			}
			progressed = true
			if seen[l[i].URL] {
				continue
			}
			seen[l[i].URL] = true
			out = append(out, l[i])
		}
		if !progressed {
			return out
		}
	}
}

// FormatResults numbers results as "1. title / url / snippet" blocks
// for a model to read, cut to maxChars runes when maxChars > 0.
func FormatResults(results []Result, maxChars int) string {
	if len(results) == 0 {
		return "No results found."
	}
	blocks := make([]string, len(results))
	for i, r := range results {
		lines := []string{strconv.Itoa(i+1) + ". " + r.Title, "   " + r.URL}
		if r.Snippet != "" {
			lines = append(lines, "   "+r.Snippet)
		}
		blocks[i] = strings.Join(lines, "\n")
	}
	return Truncate(strings.Join(blocks, "\n\n"), maxChars)
}

// Truncate keeps the first maxChars runes of s. maxChars <= 0 keeps all.
func Truncate(s string, maxChars int) string {
	if maxChars <= 0 {
		return s
	}
	seen := 0
	for i := range s {
		if seen == maxChars {
			return s[:i]
		}
		seen++
	}
	return s
}
