package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/nugget/lumen/internal/events"
	"github.com/nugget/lumen/internal/llm"
	"github.com/nugget/lumen/internal/locale"
	"github.com/nugget/lumen/internal/prompts"
	"github.com/nugget/lumen/internal/tools"
)

// errCancelled ends a request without an error event.
var errCancelled = errors.New("request cancelled")

// conversation is the state of one request across its turns.
type conversation struct {
	id      string
	req     Request
	model   llm.ModelInfo
	profile llm.Profile
	url     string
	key     string
	lang    locale.Lang
	logger  *slog.Logger

	messages  []llm.Message
	env       *tools.Env
	resources []tools.Resource
	engine    string
	toolDefs  []map[string]any
	reasoning bool
	show      bool
	turns     int
	nudged    bool
	// produced is set once any turn streams visible content.
	produced bool
}

func (d *Driver) run(ctx context.Context, req Request, out chan<- Event) {
	start := time.Now()
	id := req.ID
	if id == "" {
		id = generateRequestID()
	}
	ctx = tools.WithRequestID(ctx, id)
	em := &emitter{ctx: ctx, id: id, out: out}
	logger := d.logger.With("request_id", id)

	c, err := d.resolve(req, id, logger)
	if err != nil {
		logger.Warn("request rejected", "error", err)
		d.publish(events.KindRequestFailed, map[string]any{"request_id": id, "error": err.Error()})
		em.send(Event{Kind: EventError, Error: err.Error()})
		return
	}

	logger.Info("request started",
		"model", c.model.Name,
		"company", c.profile.Company,
		"history", len(req.History),
		"tools", len(c.toolDefs),
	)
	d.publish(events.KindRequestStart, map[string]any{
		"request_id":  id,
		"model":       c.model.Name,
		"depth_limit": d.cfg.MaxToolDepth,
	})

	var wg sync.WaitGroup
	if d.cfg.Titles && wantsTitle(req) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.generateTitle(ctx, c, em)
		}()
	}

	var finish string
	err = d.prepare(ctx, c, em)
	if err == nil {
		finish, err = d.turn(ctx, c, em, 0)
	}
	wg.Wait()

	elapsed := time.Since(start)
	switch {
	case errors.Is(err, errCancelled) || ctx.Err() != nil:
		logger.Info("request cancelled", "turns", c.turns, "elapsed", elapsed.Round(time.Millisecond))
		reason := "cancelled"
		if cause := context.Cause(ctx); cause != nil {
			reason = cause.Error()
		}
		d.publish(events.KindRequestCancelled, map[string]any{"request_id": id, "reason": reason})
	case err != nil:
		logger.Error("request failed", "error", err, "turns", c.turns)
		d.publish(events.KindRequestFailed, map[string]any{"request_id": id, "error": err.Error()})
		em.send(Event{Kind: EventError, Error: err.Error()})
	default:
		ev := Event{
			Kind:         EventFinish,
			FinishReason: finish,
			Resources:    tools.DedupeResources(c.resources),
			Engine:       c.engine,
		}
		switch finish {
		case llm.FinishLength:
			ev.Error = ErrorLength
		case llm.FinishSensitive:
			ev.Error = ErrorSensitive
		}
		em.send(ev)
		logger.Info("request complete",
			"turns", c.turns,
			"finish", finish,
			"elapsed", elapsed.Round(time.Millisecond),
		)
		d.publish(events.KindRequestComplete, map[string]any{
			"request_id":    id,
			"turns":         c.turns,
			"elapsed_ms":    elapsed.Milliseconds(),
			"finish_reason": finish,
		})
	}
}

// resolve looks up the model, its provider profile and credentials.
func (d *Driver) resolve(req Request, id string, logger *slog.Logger) (*conversation, error) {
	name := req.Model
	if name == "" {
		name = d.cfg.DefaultModel
	}
	if d.deps.Models == nil {
		return nil, &llm.ErrConfig{What: "model", Model: name}
	}
	model, ok := d.deps.Models.Resolve(name)
	if !ok {
		return nil, &llm.ErrConfig{What: "model", Model: name}
	}
	profile := llm.ProfileFor(model.Company)

	var endpoint, key string
	if d.deps.Credentials != nil {
		endpoint = d.deps.Credentials.RequestURL(profile.Company)
		key = d.deps.Credentials.APIKey(profile.Company)
	}
	if endpoint == "" {
		endpoint = profile.DefaultURL
	}
	if endpoint == "" {
		return nil, &llm.ErrConfig{What: "request url", Company: profile.Company}
	}
	if key == "" && !isLocal(endpoint) {
		return nil, &llm.ErrConfig{What: "api key", Company: profile.Company}
	}

	loc := req.Locale
	if loc == "" {
		loc = d.cfg.Locale
	}
	c := &conversation{
		id:        id,
		req:       req,
		model:     model,
		profile:   profile,
		url:       endpoint,
		key:       key,
		lang:      locale.Detect(loc),
		logger:    logger,
		reasoning: d.cfg.Reasoning,
		show:      d.cfg.ShowReasoning,
	}
	if req.Reasoning != nil {
		c.reasoning = *req.Reasoning
	}
	if req.ShowReasoning != nil {
		c.show = *req.ShowReasoning
	}
	c.env = &tools.Env{
		Lang:     c.lang,
		Payloads: &tools.Payloads{},
		Canvas:   req.Canvas,
		Enabled:  d.cfg.ToolEnabled,
	}
	if d.cfg.ToolsEnabled && !req.DisableTools && model.SupportsToolUse && d.deps.Tools != nil {
		c.toolDefs = d.deps.Tools.List(d.cfg.ToolEnabled)
	}
	return c, nil
}

// isLocal reports whether endpoint is on the loopback interface, where
// servers such as Ollama and LM Studio need no key.
func isLocal(endpoint string) bool {
	u, err := url.Parse(endpoint)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// turn streams one model response and recurses while the model asks
// for tools. Tools are attached only below the depth bound.
func (d *Driver) turn(ctx context.Context, c *conversation, em *emitter, depth int) (string, error) {
	c.turns++
	withTools := len(c.toolDefs) > 0 && depth < d.cfg.MaxToolDepth

	body := d.body(c, c.messages, withTools, true)
	c.logger.Debug("llm call", "depth", depth, "messages", len(c.messages), "tools", withTools)
	d.publish(events.KindLLMCall, map[string]any{
		"request_id": c.id,
		"depth":      depth,
		"model":      c.model.Name,
		"company":    c.profile.Company,
	})

	rc, err := d.deps.Client.Stream(ctx, c.url, c.key, body)
	if err != nil {
		if ctx.Err() != nil {
			return "", errCancelled
		}
		return "", fmt.Errorf("stream %s: %w", c.model.Name, err)
	}
	defer rc.Close()

	dec := llm.NewDecoder(llm.DecoderOptions{
		ReasoningKeys:   c.profile.ReasoningKeys,
		ShowReasoning:   c.show,
		InlineThinkTags: c.model.InlineThinkTags,
		Logger:          c.logger,
	})
	var (
		acc       llm.Accumulator
		content   strings.Builder
		reasoning strings.Builder
		audio     strings.Builder
		finish    string
	)
	handle := func(deltas []llm.Delta) {
		for _, dl := range deltas {
			switch dl.Kind {
			case llm.DeltaContent, llm.DeltaTranscript:
				content.WriteString(dl.Text)
				em.send(Event{Kind: EventContent, Text: dl.Text, Depth: depth})
			case llm.DeltaReasoning:
				reasoning.WriteString(dl.Text)
				em.send(Event{Kind: EventReasoning, Text: dl.Text, Depth: depth})
			case llm.DeltaDescription:
				reasoning.WriteString(dl.Text)
				em.send(Event{Kind: EventDescription, Text: dl.Text, Depth: depth})
			case llm.DeltaAudio:
				audio.WriteString(dl.Text)
			case llm.DeltaToolCall:
				if dl.ToolCall != nil && !acc.Add(*dl.ToolCall) {
					c.logger.Log(ctx, llm.LevelTrace, "dropping tool call fragment",
						"index", dl.ToolCall.Index)
				}
			case llm.DeltaFinish:
				finish = dl.FinishReason
			}
		}
	}

	err = llm.ScanLines(ctx, rc, func(line string) bool {
		handle(dec.Decode(line))
		return true
	})
	if ctx.Err() != nil {
		return "", errCancelled
	}
	if err != nil {
		return "", fmt.Errorf("stream %s: %w", c.model.Name, err)
	}
	handle(dec.Flush())
	if audio.Len() > 0 {
		em.send(Event{Kind: EventAudio, Text: audio.String(), Depth: depth})
	}
	if content.Len() > 0 {
		c.produced = true
	}

	calls := acc.Calls()
	c.logger.Debug("llm response", "depth", depth, "finish", finish, "tool_calls", len(calls), "content_len", content.Len())
	d.publish(events.KindLLMResponse, map[string]any{
		"request_id":    c.id,
		"depth":         depth,
		"finish_reason": finish,
		"tool_calls":    len(calls),
	})

	if finish == llm.FinishToolCalls && len(calls) > 0 {
		if !withTools {
			c.logger.Warn("tool calls ignored without tools attached", "depth", depth, "calls", len(calls))
			if !c.produced {
				em.send(Event{Kind: EventContent, Text: prompts.EmptyResponseFallback(c.lang), Depth: depth})
			}
			return llm.FinishStop, nil
		}
		if err := d.runTools(ctx, c, em, calls, content.String(), reasoning.String(), depth); err != nil {
			return "", err
		}
		if !sleep(ctx, d.cfg.ToolDelay) {
			return "", errCancelled
		}
		if depth+1 >= d.cfg.MaxToolDepth {
			c.logger.Warn("tool budget exhausted", "depth", depth+1)
			d.publish(events.KindToolBudget, map[string]any{"request_id": c.id, "depth": depth + 1})
			c.messages = append(c.messages, llm.Message{
				Role:    llm.RoleUser,
				Content: prompts.ToolBudgetExhausted(c.lang, depth+1),
			})
		}
		return d.turn(ctx, c, em, depth+1)
	}

	if finish == "" {
		finish = llm.FinishStop
	}
	if content.Len() == 0 && finish == llm.FinishStop && depth > 0 && !c.produced {
		if !c.nudged {
			// The model ran tools and then said nothing. Ask once more.
			c.nudged = true
			c.logger.Warn("empty response after tools, nudging", "depth", depth)
			c.messages = append(c.messages, llm.Message{
				Role:    llm.RoleUser,
				Content: c.lang.Pick("Please answer based on the tool results above.", "请根据上面的工具结果回答。"),
			})
			return d.turn(ctx, c, em, d.cfg.MaxToolDepth)
		}
		em.send(Event{Kind: EventContent, Text: prompts.EmptyResponseFallback(c.lang), Depth: depth})
	}
	return finish, nil
}

// runTools dispatches calls in order and appends their feedback.
func (d *Driver) runTools(ctx context.Context, c *conversation, em *emitter, calls []llm.ToolCall, content, reasoning string, depth int) error {
	c.env.Status = func(s string) {
		em.send(Event{Kind: EventStatus, Text: s, Depth: depth})
	}
	for _, call := range calls {
		if ctx.Err() != nil {
			return errCancelled
		}
		name := call.Function.Name
		em.send(Event{Kind: EventTool, Tool: name, Depth: depth})
		d.publish(events.KindToolCall, map[string]any{"request_id": c.id, "tool": name})

		start := time.Now()
		res := d.deps.Tools.Dispatch(ctx, call, c.env)
		elapsed := time.Since(start)
		c.logger.Info("tool executed",
			"tool", name,
			"kind", res.Kind.String(),
			"elapsed", elapsed.Round(time.Millisecond),
			"result_len", len(res.Text),
		)
		d.publish(events.KindToolDone, map[string]any{
			"request_id":  c.id,
			"tool":        name,
			"kind":        res.Kind.String(),
			"duration_ms": elapsed.Milliseconds(),
		})
		em.send(Event{Kind: EventTool, Tool: name, Text: res.Front, Depth: depth})

		c.messages = append(c.messages,
			assistantMessage(call, content, reasoning),
			toolMessage(c.profile, call, res),
		)
	}

	if !c.env.Payloads.Empty() {
		p := c.env.Payloads.Take()
		c.resources = append(c.resources, p.Resources...)
		if p.Engine != "" {
			c.engine = p.Engine
		}
		em.send(Event{Kind: EventPayload, Payloads: &p, Depth: depth})
	}
	return nil
}

// assistantMessage records the model's side of a tool round. Reasoning
// is kept inside think tags so the next turn can see it.
func assistantMessage(call llm.ToolCall, content, reasoning string) llm.Message {
	text := strings.TrimSpace(content)
	if text == "" {
		text = fmt.Sprintf("Calling %s with %s", call.Function.Name, call.Function.Arguments)
	}
	if r := strings.TrimSpace(reasoning); r != "" {
		text = "<think>" + r + "</think>\n" + text
	}
	return llm.Message{Role: llm.RoleAssistant, Content: text}
}

func toolMessage(p llm.Profile, call llm.ToolCall, res tools.Result) llm.Message {
	if p.ToolRole == llm.RoleTool {
		return llm.Message{Role: llm.RoleTool, Content: res.Text, ToolCallID: call.ID}
	}
	return llm.Message{
		Role:    llm.RoleUser,
		Content: fmt.Sprintf("Result of %s:\n%s", call.Function.Name, res.Text),
	}
}

// body builds a provider request for messages.
func (d *Driver) body(c *conversation, messages []llm.Message, withTools, stream bool) map[string]any {
	req := llm.Request{
		Model:       c.model,
		Messages:    messages,
		Temperature: d.cfg.Temperature,
		TopP:        d.cfg.TopP,
		MaxTokens:   d.cfg.MaxTokens,
		Reasoning:   c.reasoning,
		Stream:      stream,
	}
	if stream {
		req.Voice = c.req.Voice
	}
	if withTools {
		req.Tools = c.toolDefs
	}
	return llm.BuildBody(c.profile, req)
}

func (d *Driver) publish(kind string, data map[string]any) {
	d.deps.Bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceAgent,
		Kind:      kind,
		Data:      data,
	})
}

// sleep waits for dur or until ctx is done. It reports whether the
// full duration elapsed.
func sleep(ctx context.Context, dur time.Duration) bool {
	if dur <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
