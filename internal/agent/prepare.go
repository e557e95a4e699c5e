package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nugget/lumen/internal/llm"
	"github.com/nugget/lumen/internal/prompts"
	"github.com/nugget/lumen/internal/search"
	"github.com/nugget/lumen/internal/tools"
)

// prepare runs pre-turn retrieval and assembles the first turn's
// messages. Retrieval failures are logged and skipped.
func (d *Driver) prepare(ctx context.Context, c *conversation, em *emitter) error {
	query := strings.TrimSpace(c.req.Message.Content)

	var retrieved []prompts.Retrieved
	if c.req.KnowledgeSearch && query != "" {
		if r, ok := d.searchKnowledge(ctx, c, em, query); ok {
			retrieved = append(retrieved, r)
		}
	}
	if c.req.WebSearch && query != "" {
		if r, ok := d.searchWeb(ctx, c, em, query); ok {
			retrieved = append(retrieved, r)
		}
	}
	for _, u := range c.req.URLs {
		if r, ok := d.readPage(ctx, c, em, u); ok {
			retrieved = append(retrieved, r)
		}
	}
	if ctx.Err() != nil {
		return errCancelled
	}

	in := prompts.Input{
		Lang:         c.lang,
		Model:        c.model,
		Now:          time.Now(),
		SystemPrompt: d.cfg.SystemPrompt,
		UserProfile:  d.cfg.UserProfile,
		Memories:     d.memories(ctx, c, query),
		History:      c.req.History,
		Message:      c.req.Message,
		Retrieved:    retrieved,
		Canvas:       c.req.Canvas,
		Tools:        len(c.toolDefs) > 0,
	}

	if c.req.Planning {
		plan := strings.TrimSpace(c.req.Plan)
		if plan == "" {
			var err error
			plan, err = d.plan(ctx, c, in)
			if err != nil {
				return err
			}
			em.send(Event{Kind: EventPlan, Text: plan})
		}
		in.Planning = prompts.PlanningPrompt(c.lang, plan)
	}

	out := prompts.Assemble(in)
	c.messages = out.Messages
	c.logger.Debug("prompt assembled",
		"messages", len(out.Messages),
		"retrieved", len(retrieved),
		"tokens", out.Tokens,
	)
	return nil
}

func (d *Driver) searchKnowledge(ctx context.Context, c *conversation, em *emitter, query string) (prompts.Retrieved, bool) {
	if d.deps.Knowledge == nil {
		return prompts.Retrieved{}, false
	}
	em.send(Event{Kind: EventStatus, Text: c.lang.Pick("Searching Knowledge", "正在检索知识库")})
	hits, err := d.deps.Knowledge.Search(ctx, query, d.cfg.KnowledgeTopK, d.cfg.KnowledgeThreshold)
	if err != nil {
		c.logger.Warn("knowledge search failed", "error", err)
		return prompts.Retrieved{}, false
	}
	if len(hits) == 0 {
		return prompts.Retrieved{}, false
	}
	var res []tools.Resource
	for _, h := range hits {
		res = append(res, tools.Resource{Icon: "doc", Title: h.Title})
	}
	res = tools.DedupeResources(res)
	c.resources = append(c.resources, res...)
	em.send(Event{Kind: EventResources, Resources: res})
	return prompts.Retrieved{Kind: "knowledge", Text: tools.FormatKnowledge(hits, prompts.MaxSearchChars)}, true
}

func (d *Driver) searchWeb(ctx context.Context, c *conversation, em *emitter, query string) (prompts.Retrieved, bool) {
	m := d.deps.Search
	if m == nil || !m.Configured() {
		return prompts.Retrieved{}, false
	}
	em.send(Event{Kind: EventStatus, Text: c.lang.Pick("Searching Online", "正在联网搜索")})

	opts := search.Options{Count: d.cfg.SearchCount, Language: c.lang.Code()}
	var (
		results []search.Result
		err     error
	)
	if d.cfg.Bilingual {
		results, err = m.SearchBilingual(ctx, query, []string{c.lang.Code(), c.lang.Other().Code()}, opts)
	} else {
		results, err = m.Search(ctx, query, opts)
	}
	if err != nil {
		c.logger.Warn("web search failed", "error", err)
		return prompts.Retrieved{}, false
	}
	c.engine = m.Primary()
	var res []tools.Resource
	for _, r := range results {
		res = append(res, tools.Resource{Title: r.Title, Link: r.URL})
	}
	c.resources = append(c.resources, res...)
	em.send(Event{Kind: EventResources, Resources: res, Engine: c.engine})
	if len(results) == 0 {
		return prompts.Retrieved{}, false
	}
	return prompts.Retrieved{Kind: "web", Text: search.FormatResults(results, prompts.MaxSearchChars)}, true
}

func (d *Driver) readPage(ctx context.Context, c *conversation, em *emitter, rawURL string) (prompts.Retrieved, bool) {
	if d.deps.Fetcher == nil {
		return prompts.Retrieved{}, false
	}
	em.send(Event{Kind: EventStatus, Text: c.lang.Pick("Reading Web Page", "正在阅读网页")})
	page, err := d.deps.Fetcher.Fetch(ctx, rawURL, prompts.MaxDocumentChars)
	if err != nil {
		c.logger.Warn("page read failed", "url", rawURL, "error", err)
		return prompts.Retrieved{}, false
	}
	title := page.Title
	if title == "" {
		title = page.URL
	}
	res := []tools.Resource{{Icon: page.Icon, Title: title, Link: page.URL}}
	c.resources = append(c.resources, res...)
	em.send(Event{Kind: EventResources, Resources: res})
	return prompts.Retrieved{Kind: "page", Text: fmt.Sprintf("%s\n%s\n\n%s", title, page.URL, page.Content)}, true
}

// memories returns stored memories relevant to query.
func (d *Driver) memories(ctx context.Context, c *conversation, query string) []string {
	if d.deps.Memory == nil || d.cfg.MemoryLimit <= 0 {
		return nil
	}
	scored, err := d.deps.Memory.Retrieve(ctx, query, d.cfg.MemoryLimit)
	if err != nil {
		c.logger.Warn("memory retrieval failed", "error", err)
		return nil
	}
	out := make([]string, 0, len(scored))
	for _, s := range scored {
		out = append(out, s.Content)
	}
	return out
}

// plan asks the model for a plan without tools.
func (d *Driver) plan(ctx context.Context, c *conversation, in prompts.Input) (string, error) {
	in.Planning = prompts.PlanningPrompt(c.lang, "")
	in.Tools = false
	msgs := prompts.Assemble(in).Messages

	c.logger.Debug("planning pre-turn")
	text, err := d.deps.Client.Complete(ctx, c.url, c.key, d.body(c, msgs, false, false))
	if err != nil {
		if ctx.Err() != nil {
			return "", errCancelled
		}
		return "", fmt.Errorf("plan: %w", err)
	}
	return stripThink(text), nil
}

// wantsTitle reports whether this request should get a title. n counts
// the conversation's messages including the new one, so titles follow
// the first, second and sixth exchange.
func wantsTitle(req Request) bool {
	n := 1
	for _, m := range req.History {
		if m.Role == llm.RoleUser || m.Role == llm.RoleAssistant {
			n++
		}
	}
	return n == 1 || n == 3 || n == 11
}

// generateTitle names the conversation with a side request on the same
// provider. Failures are logged only.
func (d *Driver) generateTitle(ctx context.Context, c *conversation, em *emitter) {
	transcript := make([]llm.Message, 0, len(c.req.History)+1)
	transcript = append(transcript, c.req.History...)
	transcript = append(transcript, c.req.Message)

	var sb strings.Builder
	for _, m := range transcript {
		if m.Role != llm.RoleUser && m.Role != llm.RoleAssistant && m.Role != "" {
			continue
		}
		role := m.Role
		if role == "" {
			role = llm.RoleUser
		}
		fmt.Fprintf(&sb, "%s: %s\n", role, prompts.Truncate(stripThink(m.Content), 500))
	}

	msgs := []llm.Message{{Role: llm.RoleUser, Content: prompts.TitlePrompt(c.lang, sb.String())}}
	text, err := d.deps.Client.Complete(ctx, c.url, c.key, d.body(c, msgs, false, false))
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Warn("title generation failed", "error", err)
		}
		return
	}
	title := strings.Trim(stripThink(text), " \t\n\"'“”「」")
	if title == "" {
		return
	}
	em.send(Event{Kind: EventTitle, Text: title})
}

// stripThink drops a leading <think>…</think> block.
func stripThink(s string) string {
	if i := strings.LastIndex(s, "</think>"); i >= 0 {
		s = s[i+len("</think>"):]
	}
	return strings.TrimSpace(s)
}
