// Lumen is a personal assistant backend.
//
// It streams model replies to the app over SSE or WebSocket, runs the
// tools the model asks for, and answers one-shot questions from the
// command line. Configuration is one YAML file, found by
// [config.FindConfig] unless -config names it.
//
// Usage:
//
//	lumen serve              Start the API server
//	lumen init [dir]         Create a data directory and starter config
//	lumen ask <question>     Ask a single question and stream the answer
//	lumen ingest <file>...   Add text or markdown files to the knowledge bag
//	lumen version            Print version and build information
//	lumen -o json version    Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/nugget/lumen/internal/buildinfo"
	"github.com/nugget/lumen/internal/config"
)

func main() {
	if err := run(context.Background(), os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "lumen:", err)
		os.Exit(1)
	}
}

// options are the global flags plus the command line that follows.
type options struct {
	configPath string
	outputFmt  string
	command    string
	args       []string
	help       bool
}

// flagValue matches "-name value" and "-name=value" for any of names.
// It returns the value and how many extra args it consumed.
func flagValue(args []string, i int, names ...string) (string, int, bool) {
	for _, n := range names {
		if v, ok := strings.CutPrefix(args[i], n+"="); ok {
			return v, 0, true
		}
		if args[i] == n && i+1 < len(args) {
			return args[i+1], 1, true
		}
	}
	return "", 0, false
}

// parseArgs reads global flags up to the command; everything after the
// command is its arguments. Hand parsing keeps run free of the flag
// package's global state.
func parseArgs(args []string) (options, error) {
	o := options{outputFmt: "text"}
	for i := 0; i < len(args); i++ {
		if o.command != "" {
			o.args = append(o.args, args[i])
			continue
		}
		if v, skip, ok := flagValue(args, i, "-config", "--config"); ok {
			o.configPath, i = v, i+skip
			continue
		}
		if v, skip, ok := flagValue(args, i, "-o", "--output"); ok {
			o.outputFmt, i = v, i+skip
			continue
		}
		switch a := args[i]; {
		case a == "-h" || a == "-help" || a == "--help":
			o.help = true
		case strings.HasPrefix(a, "-"):
			return o, fmt.Errorf("unknown flag: %s", a)
		default:
			o.command = a
		}
	}
	if o.outputFmt != "text" && o.outputFmt != "json" {
		return o, fmt.Errorf("unknown output format: %q (expected text or json)", o.outputFmt)
	}
	return o, nil
}

// command is one subcommand. minArgs is checked before run is called.
type command struct {
	name    string
	usage   string
	summary string
	minArgs int
	run     func(ctx context.Context, o options, stdout, stderr io.Writer) error
}

var commands = []command{
	{
		name: "serve", summary: "Start the API server",
		run: func(ctx context.Context, o options, stdout, _ io.Writer) error {
			return runServe(ctx, stdout, o.configPath)
		},
	},
	{
		name: "init", usage: "[dir]", summary: "Create a data directory and starter config (default: .)",
		run: func(_ context.Context, o options, stdout, _ io.Writer) error {
			dir := "."
			if len(o.args) > 0 {
				dir = o.args[0]
			}
			return runInit(stdout, dir)
		},
	},
	{
		name: "ask", usage: "<question>", summary: "Ask a single question and stream the answer", minArgs: 1,
		run: func(ctx context.Context, o options, stdout, stderr io.Writer) error {
			return runAsk(ctx, stdout, stderr, o.configPath, strings.Join(o.args, " "))
		},
	},
	{
		name: "ingest", usage: "<file>...", summary: "Add text files to the knowledge bag", minArgs: 1,
		run: func(ctx context.Context, o options, stdout, _ io.Writer) error {
			return runIngest(ctx, stdout, o.configPath, o.args)
		},
	},
	{
		name: "version", summary: "Show version information",
		run: func(_ context.Context, o options, stdout, _ io.Writer) error {
			return runVersion(stdout, o.outputFmt)
		},
	},
}

// run is main without the process: args exclude the program name and
// errors are returned rather than exiting.
func run(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	o, err := parseArgs(args)
	if err != nil {
		return err
	}
	if o.help || o.command == "" {
		return printUsage(stdout)
	}
	for _, c := range commands {
		if c.name != o.command {
			continue
		}
		if len(o.args) < c.minArgs {
			return fmt.Errorf("usage: lumen %s %s", c.name, c.usage)
		}
		return c.run(ctx, o, stdout, stderr)
	}
	return fmt.Errorf("unknown command: %s (see lumen -help)", o.command)
}

// runVersion prints build metadata as text or indented JSON.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.BuildInfo()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	fmt.Fprintln(tw, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		fmt.Fprintf(tw, "  %s:\t%s\n", k, info[k])
	}
	return tw.Flush()
}

func printUsage(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprint(tw, "Lumen - personal assistant backend\n\nUsage: lumen [flags] <command> [args]\n\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(tw, "  %s %s\t%s\n", c.name, c.usage, c.summary)
	}
	fmt.Fprint(tw, "\nFlags:\n")
	fmt.Fprint(tw, "  -config <path>\tConfig file (default: first found below)\n")
	fmt.Fprint(tw, "  -o, --output <fmt>\tOutput format: text (default) or json\n")
	fmt.Fprint(tw, "\nConfig search order:\n")
	for _, p := range config.DefaultSearchPaths() {
		fmt.Fprintf(tw, "  %s\n", p)
	}
	return tw.Flush()
}

// loadConfig finds and loads the config, returning it with its path.
func loadConfig(explicit string) (*config.Config, string, error) {
	path, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, path, nil
}
