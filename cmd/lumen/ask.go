package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nugget/lumen/internal/agent"
	"github.com/nugget/lumen/internal/llm"
)

// runAsk streams the answer to a single question to stdout. Tool
// activity and reasoning go to stderr so the answer can be piped.
func runAsk(ctx context.Context, stdout, stderr io.Writer, configPath, question string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := cfg.Logger(stderr)

	a, err := buildApp(cfg, nil, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	req := agent.Request{
		Message: llm.Message{Role: llm.RoleUser, Content: question},
	}
	return printEvents(stdout, stderr, a.driver.SendStreamRequest(ctx, req))
}

// printEvents renders a request's events for a terminal. It returns the
// request's error, if any.
func printEvents(stdout, stderr io.Writer, ch <-chan agent.Event) error {
	var failed error
	var midLine bool
	for ev := range ch {
		switch ev.Kind {
		case agent.EventContent:
			fmt.Fprint(stdout, ev.Text)
			midLine = !strings.HasSuffix(ev.Text, "\n")
		case agent.EventReasoning:
			fmt.Fprint(stderr, ev.Text)
		case agent.EventStatus:
			fmt.Fprintf(stderr, "[%s]\n", ev.Text)
		case agent.EventTool:
			if ev.Text == "" {
				fmt.Fprintf(stderr, "[tool %s]\n", ev.Tool)
			}
		case agent.EventPlan:
			fmt.Fprintf(stderr, "[plan]\n%s\n", ev.Text)
		case agent.EventResources:
			for _, r := range ev.Resources {
				fmt.Fprintf(stderr, "[source] %s %s\n", r.Title, r.Link)
			}
		case agent.EventError:
			failed = fmt.Errorf("ask: %s", ev.Error)
		case agent.EventFinish:
			for _, r := range ev.Resources {
				fmt.Fprintf(stderr, "[source] %s %s\n", r.Title, r.Link)
			}
			if ev.Error != "" {
				fmt.Fprintf(stderr, "[stopped: %s]\n", ev.Error)
			}
		}
	}
	if midLine {
		fmt.Fprintln(stdout)
	}
	return failed
}

// runIngest adds each file to the knowledge bag, titled by its base
// name without extension.
func runIngest(ctx context.Context, stdout io.Writer, configPath string, files []string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := cfg.Logger(stdout)

	a, err := buildApp(cfg, nil, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	if a.knowledge == nil {
		return fmt.Errorf("knowledge bag is disabled (enable knowledge and embeddings in config)")
	}

	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		doc, err := a.knowledge.Add(ctx, title, string(data))
		if err != nil {
			return fmt.Errorf("ingest %s: %w", path, err)
		}
		logger.Info("document ingested", "file", path, "id", doc.ID, "chunks", doc.Chunks)
	}
	return nil
}
