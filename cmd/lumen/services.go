package main

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/nugget/lumen/internal/config"
	"github.com/nugget/lumen/internal/connwatch"
	"github.com/nugget/lumen/internal/httpkit"
	"github.com/nugget/lumen/internal/llm"
	"github.com/nugget/lumen/internal/mqtt"
)

// serviceTarget is one HTTP backend to watch.
type serviceTarget struct {
	name string
	url  string
}

// serviceTargets lists the HTTP backends cfg depends on: one model
// endpoint per company, then embeddings, CalDAV and SearXNG when set.
func serviceTargets(cfg *config.Config) []serviceTarget {
	seen := make(map[string]bool)
	var out []serviceTarget
	for _, m := range cfg.Models {
		company := strings.ToLower(m.Company)
		if company == "" || seen[company] {
			continue
		}
		seen[company] = true
		url := cfg.RequestURL(company)
		if url == "" {
			url = llm.ProfileFor(company).DefaultURL
		}
		if url != "" {
			out = append(out, serviceTarget{name: "llm:" + company, url: url})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })

	if cfg.Knowledge.Enabled && cfg.Embeddings.Enabled && cfg.Embeddings.BaseURL != "" {
		out = append(out, serviceTarget{name: "embeddings", url: cfg.Embeddings.BaseURL})
	}
	if cfg.Calendar.Configured() {
		out = append(out, serviceTarget{name: "caldav", url: cfg.Calendar.URL})
	}
	if cfg.Search.SearXNG.Configured() {
		out = append(out, serviceTarget{name: "searxng", url: cfg.Search.SearXNG.URL})
	}
	return out
}

// watchServices starts a watcher for every backend. mirror may be nil.
func watchServices(ctx context.Context, m *connwatch.Manager, cfg *config.Config, mirror *mqtt.Mirror) {
	client := httpkit.NewClient(httpkit.WithTimeout(10 * time.Second))
	for _, t := range serviceTargets(cfg) {
		m.Watch(ctx, t.name, connwatch.HTTPProbe(client, t.url), connwatch.DefaultBackoff())
	}
	if mirror != nil {
		m.Watch(ctx, "mqtt", func(pctx context.Context) error {
			awaitCtx, cancel := context.WithTimeout(pctx, 2*time.Second)
			defer cancel()
			return mirror.AwaitConnection(awaitCtx)
		}, connwatch.DefaultBackoff())
	}
}
