package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Gaurav-Gosain/cfproblem/output"
	"github.com/Gaurav-Gosain/cfproblem/problem"
	"github.com/Gaurav-Gosain/cfproblem/tui"
)

const appName = "cfproblem"

// flags are the per-invocation switches that never live in the config file.
type flags struct {
	ConfigFile string
	OutputDir  string
	JSON       bool
	Raw        bool
	Refresh    bool
}

func NewRootCmd() *cobra.Command {
	f := &flags{}

	cmd := &cobra.Command{
		Use:   appName + " [problems...]",
		Short: "Fetch Codeforces problem statements as clean markdown",
		Long: "Fetches competitive programming problem statements, extracts their structure and normalizes\n" +
			"the math notation. Falls back to the summary API when the statement pages are blocked.",
		Example: `  # One problem, rendered in the terminal
  cfproblem 1234A

  # Several problems, browse them interactively
  cfproblem 1A 4A https://codeforces.com/contest/71/problem/A

  # Save markdown files, or dump the stored documents as JSON
  cfproblem -o ./problems 1234A 1234B
  cfproblem --json 1234A > 1234A.json

  # Pipe identifiers from a file
  cat problems.txt | cfproblem`,
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := LoadConfig(f.ConfigFile, c.Flags())
			if err != nil {
				return err
			}
			return run(c.Context(), cfg, f, args)
		},
		// Allow positional args (problem ids) even though fang adds subcommands.
		TraverseChildren: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&f.ConfigFile, "config", "c", "", "YAML config file")
	pf.String("log-level", "info", "Log level (debug, info, warn, error)")
	pf.String("store", "memory", "Durable store backend (memory, redis)")
	pf.String("redis-addr", "", "Redis address for the redis store")
	pf.Duration("ttl", 0, "In-memory cache TTL (default 5m)")
	pf.Duration("timeout", 0, "Per-request timeout (default 10s)")
	pf.String("base-url", "", "Problem page base URL")
	pf.String("api-url", "", "Summary API base URL")
	pf.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	pf.StringVarP(&f.OutputDir, "output-dir", "o", "", "Save .md files to directory (default: render to terminal)")
	pf.BoolVar(&f.JSON, "json", false, "Write the stored documents as JSON to stdout")
	pf.BoolVar(&f.Raw, "raw", false, "Keep the TeX source instead of rendering math")
	pf.IntP("word-wrap", "w", 80, "Word wrap width for terminal rendering")

	cmd.Flags().BoolVarP(&f.Refresh, "refresh", "r", false, "Bypass the cache and fetch again")

	cmd.AddCommand(newHarvestCmd(f))
	return cmd
}

func run(ctx context.Context, cfg Config, f *flags, args []string) error {
	ids, err := collectIDs(args, os.Stdin)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return errors.New("no problems provided; pass ids or URLs as arguments or pipe them via stdin")
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	docs := make([]*problem.Document, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Harvest.Parallelism)
	for i, id := range ids {
		g.Go(func() error {
			docs[i] = a.cache.Get(gctx, id, f.Refresh)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}

	var found []*problem.Document
	for i, doc := range docs {
		if doc == nil {
			a.logger.Warn("No statement available right now", "id", ids[i])
			continue
		}
		found = append(found, doc)
	}
	if len(found) == 0 {
		return errors.New("none of the requested problems could be fetched")
	}

	return emit(found, cfg, f)
}

// emit writes documents the way the flags ask: JSON, files, the browser or
// plain terminal rendering.
func emit(docs []*problem.Document, cfg Config, f *flags) error {
	if f.JSON {
		return output.WriteJSON(os.Stdout, docs)
	}

	norm := output.Terminal
	if f.Raw {
		norm = nil
	}

	pages := make([]output.Page, 0, len(docs))
	for _, doc := range docs {
		p, err := output.NewPage(doc, norm)
		if err != nil {
			return err
		}
		pages = append(pages, p)
	}

	if f.OutputDir != "" {
		return output.WriteFiles(pages, f.OutputDir)
	}
	if len(pages) > 1 && tui.IsTTY() {
		return tui.RunBrowser(pages)
	}
	return output.RenderTerminal(os.Stdout, pages, cfg.Output.WordWrap)
}

// collectIDs parses args plus, when stdin is piped, one identifier per line.
// Duplicates are dropped; invalid identifiers are reported together.
func collectIDs(args []string, stdin *os.File) ([]problem.ID, error) {
	raw := append([]string(nil), args...)

	if stdin != nil {
		if stat, err := stdin.Stat(); err == nil && stat.Mode()&os.ModeCharDevice == 0 {
			lines, err := readLines(stdin)
			if err != nil {
				return nil, fmt.Errorf("failed to read stdin: %w", err)
			}
			raw = append(raw, lines...)
		}
	}
	return parseIDs(raw)
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

func parseIDs(raw []string) ([]problem.ID, error) {
	seen := make(map[string]bool, len(raw))
	ids := make([]problem.ID, 0, len(raw))
	var errs []error
	for _, s := range raw {
		id, err := problem.ParseID(s)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if seen[id.Key()] {
			continue
		}
		seen[id.Key()] = true
		ids = append(ids, id)
	}
	return ids, errors.Join(errs...)
}
