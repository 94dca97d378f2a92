package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/pagegraph/internal"
	"github.com/starford/pagegraph/internal/export"
	"github.com/starford/pagegraph/internal/graph"
	"github.com/starford/pagegraph/internal/graphservice"
	"github.com/starford/pagegraph/internal/storage"
	pkgconfig "github.com/starford/pagegraph/pkg/config"
)

var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if root := cmd.String("root"); root != "" {
		cfg.Graph.Root = root
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg), internal.WithVersion(version)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx,
		internal.WithConfig(cfg),
		internal.WithLogOutput(os.Stderr),
		internal.WithVersion(version))
}

// loadGraph parses the graph for a one-shot command. Logs go to stderr so
// stdout carries only the command output.
func loadGraph(ctx context.Context, cmd *cli.Command) (*graphservice.Service, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return internal.LoadGraph(ctx, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
}

// pageArg resolves the n-th positional argument to a page path.
func pageArg(cmd *cli.Command, svc *graphservice.Service, n int, what string) (string, error) {
	name := cmd.Args().Get(n)
	if name == "" {
		return "", fmt.Errorf("missing %s page argument", what)
	}
	return svc.Resolve(name)
}

func stats(ctx context.Context, cmd *cli.Command) error {
	svc, err := loadGraph(ctx, cmd)
	if err != nil {
		return err
	}
	if err := export.Encode(cmd.Root().Writer, svc.Stats()); err != nil {
		return err
	}
	if cmd.Bool("warnings") {
		for _, w := range svc.Warnings() {
			fmt.Fprintf(cmd.Root().ErrWriter, "%s\t%s\t%s\n", w.Kind, w.Path, w.Message)
		}
	}
	return nil
}

func exportGraph(ctx context.Context, cmd *cli.Command) error {
	svc, err := loadGraph(ctx, cmd)
	if err != nil {
		return err
	}
	out := cmd.String("output")
	if out == "" || out == "-" {
		return svc.Export(cmd.Root().Writer)
	}

	var buf bytes.Buffer
	if err := svc.Export(&buf); err != nil {
		return err
	}
	abs, err := filepath.Abs(out)
	if err != nil {
		return err
	}
	dir, err := storage.NewFS(filepath.Dir(abs))
	if err != nil {
		return err
	}
	return dir.Write(filepath.Base(abs), buf.Bytes())
}

func backlinks(ctx context.Context, cmd *cli.Command) error {
	svc, err := loadGraph(ctx, cmd)
	if err != nil {
		return err
	}
	name := cmd.Args().First()
	target := name
	if !graph.IsSentinel(name) {
		if target, err = pageArg(cmd, svc, 0, "target"); err != nil {
			return err
		}
	}
	links, err := svc.Backlinks(target)
	if err != nil {
		return err
	}
	w := cmd.Root().Writer
	for _, b := range links {
		fmt.Fprintf(w, "%s\t%s\t%s\n", b.Source, b.Ref.Kind, b.Ref.Target)
	}
	return nil
}

func shortestPath(ctx context.Context, cmd *cli.Command) error {
	svc, err := loadGraph(ctx, cmd)
	if err != nil {
		return err
	}
	from, err := pageArg(cmd, svc, 0, "source")
	if err != nil {
		return err
	}
	to, err := pageArg(cmd, svc, 1, "target")
	if err != nil {
		return err
	}
	path, err := svc.ShortestPath(from, to)
	if err != nil {
		return err
	}
	if path == nil {
		return cli.Exit(fmt.Sprintf("no path from %s to %s", from, to), 1)
	}
	fmt.Fprintln(cmd.Root().Writer, strings.Join(path, " -> "))
	return nil
}

func traverse(ctx context.Context, cmd *cli.Command) error {
	svc, err := loadGraph(ctx, cmd)
	if err != nil {
		return err
	}
	start, err := pageArg(cmd, svc, 0, "start")
	if err != nil {
		return err
	}
	mode, err := graph.ParseMode(cmd.String("mode"))
	if err != nil {
		return err
	}
	pages, err := svc.Traverse(start, mode, int(cmd.Int("max-depth")))
	if err != nil {
		return err
	}
	return writeLines(cmd.Root().Writer, pages)
}

func rank(ctx context.Context, cmd *cli.Command) error {
	svc, err := loadGraph(ctx, cmd)
	if err != nil {
		return err
	}
	r := svc.Rank()
	w := cmd.Root().Writer
	for _, p := range r.Top(int(cmd.Int("top"))) {
		fmt.Fprintf(w, "%.6f\t%s\n", p.Score, p.Path)
	}
	if !r.Converged {
		fmt.Fprintf(cmd.Root().ErrWriter, "pagerank did not converge after %d iterations\n", r.Iterations)
	}
	return nil
}

func cycles(ctx context.Context, cmd *cli.Command) error {
	svc, err := loadGraph(ctx, cmd)
	if err != nil {
		return err
	}
	opts := graph.CycleOptions{FailOnCycle: cmd.Bool("fail")}
	if cmd.Args().Present() {
		if opts.Start, err = pageArg(cmd, svc, 0, "start"); err != nil {
			return err
		}
	}
	found, err := svc.Cycles(opts)
	var cerr *graph.CycleError
	if errors.As(err, &cerr) {
		found = cerr.Cycles
	} else if err != nil {
		return err
	}
	for _, c := range found {
		fmt.Fprintln(cmd.Root().Writer, strings.Join(c, " -> "))
	}
	if cerr != nil {
		return cli.Exit(cerr.Error(), 2)
	}
	return nil
}

func orphans(ctx context.Context, cmd *cli.Command) error {
	svc, err := loadGraph(ctx, cmd)
	if err != nil {
		return err
	}
	return writeLines(cmd.Root().Writer, svc.Orphans())
}

func writeLines(w io.Writer, lines []string) error {
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:    "pagegraph",
		Usage:   "Parse an outline-style Markdown graph and query its links",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Graph directory, overrides graph.root",
				Sources: cli.EnvVars("PAGEGRAPH_ROOT"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Serve the REST API and change feed",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the graph tools over MCP stdio",
				Action: serveMCP,
			},
			{
				Name:   "stats",
				Usage:  "Print graph statistics as JSON",
				Action: stats,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "warnings", Aliases: []string{"w"}, Usage: "Also list warnings on stderr"},
				},
			},
			{
				Name:   "export",
				Usage:  "Write the graph as JSON",
				Action: exportGraph,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Output file, - for stdout", Value: "-"},
				},
			},
			{
				Name:      "backlinks",
				Usage:     "List references to a page",
				ArgsUsage: "<page|unresolved:name>",
				Action:    backlinks,
			},
			{
				Name:      "path",
				Usage:     "Print the shortest link path between two pages",
				ArgsUsage: "<from> <to>",
				Action:    shortestPath,
			},
			{
				Name:      "traverse",
				Usage:     "List pages reachable from a page",
				ArgsUsage: "<start>",
				Action:    traverse,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Usage: "bfs or dfs", Value: "bfs"},
					&cli.IntFlag{Name: "max-depth", Aliases: []string{"d"}, Usage: "Depth limit, 0 for none"},
				},
			},
			{
				Name:   "rank",
				Usage:  "Rank pages by PageRank",
				Action: rank,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "top", Aliases: []string{"n"}, Usage: "Number of pages, 0 for all", Value: 10},
				},
			},
			{
				Name:      "cycles",
				Usage:     "Report link cycles, or strongly connected groups without a start page",
				ArgsUsage: "[start]",
				Action:    cycles,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "fail", Usage: "Exit with status 2 when a cycle exists"},
				},
			},
			{
				Name:   "orphans",
				Usage:  "List pages with no links in either direction",
				Action: orphans,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
