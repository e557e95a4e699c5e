package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nugget/lumen/internal/agent"
	"github.com/nugget/lumen/internal/calendar"
	"github.com/nugget/lumen/internal/codeexec"
	"github.com/nugget/lumen/internal/config"
	"github.com/nugget/lumen/internal/embeddings"
	"github.com/nugget/lumen/internal/events"
	"github.com/nugget/lumen/internal/fetch"
	"github.com/nugget/lumen/internal/health"
	"github.com/nugget/lumen/internal/knowledge"
	"github.com/nugget/lumen/internal/llm"
	"github.com/nugget/lumen/internal/locale"
	"github.com/nugget/lumen/internal/maps"
	"github.com/nugget/lumen/internal/memory"
	"github.com/nugget/lumen/internal/search"
	"github.com/nugget/lumen/internal/tools"
	"github.com/nugget/lumen/internal/weather"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

// app holds the wired collaborators shared by serve and ask.
type app struct {
	driver    *agent.Driver
	tools     *tools.Registry
	bus       *events.Bus
	memory    *memory.Store
	health    *health.Store
	knowledge *knowledge.Bag
	closers   []io.Closer
}

// Close releases the databases.
func (a *app) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// modelRegistry converts configured models to the llm registry.
func modelRegistry(models []config.ModelConfig) *llm.Registry {
	reg := llm.NewRegistry()
	for _, m := range models {
		reg.Add(llm.ModelInfo{
			Name:                    m.Name,
			Company:                 m.Company,
			DisplayName:             m.DisplayName,
			SupportsToolUse:         m.Tools,
			SupportsReasoning:       m.Reasoning,
			SupportsReasoningChange: m.ReasoningChange,
			SupportsMultimodal:      m.Multimodal,
			SupportsVoiceGen:        m.Voice,
			InlineThinkTags:         m.InlineThinkTags,
			Identity:                m.Identity,
			CharacterDesign:         m.CharacterDesign,
		})
	}
	return reg
}

// searchManager registers every configured web search provider.
func searchManager(cfg config.SearchConfig) *search.Manager {
	m := search.NewManager(cfg.Primary)
	if cfg.Brave.Configured() {
		m.Register(search.NewBrave(cfg.Brave.APIKey, ""))
	}
	if cfg.SearXNG.Configured() {
		m.Register(search.NewSearXNG(cfg.SearXNG.URL))
	}
	if cfg.Tavily.Configured() {
		m.Register(search.NewTavily(cfg.Tavily.APIKey, ""))
	}
	return m
}

// weatherLang maps the configured locale to an OpenWeather language.
func weatherLang(l locale.Lang) string {
	return l.Pick("en", "zh_cn")
}

// buildApp opens the stores and wires the tool registry and driver from
// cfg. Optional services that are not configured are left out, and the
// tools that need them report that to the model.
func buildApp(cfg *config.Config, bus *events.Bus, logger *slog.Logger) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}

	a := &app{bus: bus}
	lang := locale.Detect(cfg.Agent.Locale)
	reg := tools.NewRegistry(logger)
	a.tools = reg

	// --- Memory ---
	memPath := filepath.Join(cfg.DataDir, "memory.db")
	mem, err := memory.NewStore(memPath)
	if err != nil {
		return nil, fmt.Errorf("open memory database %s: %w", memPath, err)
	}
	a.memory = mem
	a.closers = append(a.closers, mem)
	reg.SetMemoryStore(mem)
	logger.Info("memory database opened", "path", memPath)

	// --- Health ---
	healthPath := filepath.Join(cfg.DataDir, "health.db")
	hs, err := health.NewStore(healthPath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open health database %s: %w", healthPath, err)
	}
	a.health = hs
	a.closers = append(a.closers, hs)
	reg.SetHealthStore(hs)

	// --- Knowledge bag ---
	// Needs an embedding model; without one the bag stays closed.
	if cfg.Knowledge.Enabled && cfg.Embeddings.Enabled {
		embedder := embeddings.New(embeddings.Config{
			BaseURL: cfg.Embeddings.BaseURL,
			Model:   cfg.Embeddings.Model,
			Logger:  logger,
		})
		bagPath := filepath.Join(cfg.DataDir, "knowledge.db")
		bag, err := knowledge.NewBag(bagPath, embedder, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open knowledge database %s: %w", bagPath, err)
		}
		a.knowledge = bag
		a.closers = append(a.closers, bag)
		reg.SetKnowledgeBag(bag, cfg.Knowledge.TopK, cfg.Knowledge.Threshold)
		logger.Info("knowledge bag enabled", "path", bagPath, "embedding_model", cfg.Embeddings.Model)
	} else if cfg.Knowledge.Enabled {
		logger.Warn("knowledge bag needs embeddings, disabled")
	}

	// --- Web ---
	fetcher := fetch.New(logger)
	reg.SetFetcher(fetcher)

	searchMgr := searchManager(cfg.Search)
	reg.SetSearch(searchMgr, cfg.Search.Bilingual)
	reg.SetArxiv(search.NewArxiv(""))
	if searchMgr.Configured() {
		logger.Info("web search enabled", "providers", searchMgr.Providers(), "primary", searchMgr.Primary())
	}

	// --- Maps and weather ---
	if cfg.Maps.Enabled {
		reg.SetMaps(maps.NewOSM(maps.OSMConfig{
			NominatimURL: cfg.Maps.NominatimURL,
			OSRMURL:      cfg.Maps.OSRMURL,
			Latitude:     cfg.Maps.Latitude,
			Longitude:    cfg.Maps.Longitude,
			Language:     lang.Code(),
			Logger:       logger,
		}))
	}
	if cfg.Weather.Configured() {
		reg.SetWeather(weather.NewOpenWeather(weather.Config{
			APIKey:  cfg.Weather.APIKey,
			BaseURL: cfg.Weather.BaseURL,
			Units:   cfg.Weather.Units,
			Lang:    weatherLang(lang),
			Logger:  logger,
		}), cfg.Weather.Units)
	}

	// --- Calendar ---
	if cfg.Calendar.Configured() {
		cal, err := calendar.NewCalDAV(calendar.CalDAVConfig{
			URL:      cfg.Calendar.URL,
			Username: cfg.Calendar.Username,
			Password: cfg.Calendar.Password,
			Logger:   logger,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("calendar: %w", err)
		}
		reg.SetCalendar(cal)
		logger.Info("calendar enabled", "url", cfg.Calendar.URL)
	}

	// --- Code execution ---
	if cfg.CodeExec.Enabled {
		reg.SetCodeRunner(codeexec.New(codeexec.Config{
			Interpreter:    cfg.CodeExec.Python,
			WorkingDir:     cfg.CodeExec.WorkingDir,
			Timeout:        time.Duration(cfg.CodeExec.TimeoutSec) * time.Second,
			MaxOutputBytes: cfg.CodeExec.MaxOutputBytes,
			Logger:         logger,
		}))
		logger.Info("code execution enabled", "python", cfg.CodeExec.Python)
	}

	// --- Driver ---
	delay := time.Duration(cfg.Agent.ToolDelayMS) * time.Millisecond
	if delay <= 0 {
		delay = agent.DefaultToolDelay
	}
	a.driver = agent.NewDriver(agent.Config{
		DefaultModel:       cfg.Agent.DefaultModel,
		Locale:             cfg.Agent.Locale,
		MaxToolDepth:       cfg.Agent.MaxToolDepth,
		ToolDelay:          delay,
		Temperature:        cfg.Agent.Temperature,
		TopP:               cfg.Agent.TopP,
		MaxTokens:          cfg.Agent.MaxTokens,
		ShowReasoning:      cfg.Agent.ShowReasoning,
		Reasoning:          cfg.Agent.Reasoning,
		SystemPrompt:       cfg.Agent.SystemPrompt,
		UserProfile:        cfg.Agent.UserProfile,
		ToolsEnabled:       cfg.Tools.Enabled,
		ToolEnabled:        cfg.ToolEnabled,
		SearchCount:        cfg.Search.Count,
		Bilingual:          cfg.Search.Bilingual,
		KnowledgeTopK:      cfg.Knowledge.TopK,
		KnowledgeThreshold: cfg.Knowledge.Threshold,
		MemoryLimit:        10,
		Titles:             true,
	}, agent.Deps{
		Client:      llm.NewClient(logger),
		Models:      modelRegistry(cfg.Models),
		Credentials: cfg,
		Tools:       reg,
		Search:      searchMgr,
		Fetcher:     fetcher,
		Knowledge:   a.knowledge,
		Memory:      mem,
		Bus:         bus,
		Logger:      logger,
	})

	return a, nil
}
