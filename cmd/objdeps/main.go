package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/ykrivopalov/objdeps/internal/libproc"
	"github.com/ykrivopalov/objdeps/internal/output"
	"github.com/ykrivopalov/objdeps/internal/progress"
	"github.com/ykrivopalov/objdeps/internal/scanner"
	"github.com/ykrivopalov/objdeps/pkg/analysis"
	"github.com/ykrivopalov/objdeps/pkg/config"
	"github.com/ykrivopalov/objdeps/pkg/dot"
	"github.com/ykrivopalov/objdeps/pkg/registry"
	"github.com/ykrivopalov/objdeps/pkg/store"
	"github.com/ykrivopalov/objdeps/pkg/symbols"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "objdeps",
		Usage:   "Symbol-based dependency analysis for object archives",
		Version: version,
		Description: `Objdeps inspects the exported and imported symbol tables of compiled
library archives (via an nm-compatible tool), infers which library depends
on which, and answers structural questions about the resulting graph.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file (TOML, YAML, or JSON)",
				EnvVars: []string{"OBJDEPS_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "db",
				Usage: "Path to the symbol database",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Value:   "text",
				Usage:   "Output format: text, json, markdown",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write output to file",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable verbose output",
			},
		},
		Commands: []*cli.Command{
			buildCmd(),
			listCmd(),
			statsCmd(),
			commonCmd(),
			dotCmd(),
			initCmd(),
			configCmd(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration from the --config flag or standard locations.
func loadConfig(c *cli.Context) (*config.Config, error) {
	if path := c.String("config"); path != "" {
		return config.Load(path)
	}
	return config.LoadOrDefault(), nil
}

// dbPath resolves the database path from the --db flag or config.
func dbPath(c *cli.Context, cfg *config.Config) string {
	if p := c.String("db"); p != "" {
		return p
	}
	return cfg.Store.Path
}

func newFormatter(c *cli.Context, cfg *config.Config) (*output.Formatter, error) {
	return output.NewFormatter(output.ParseFormat(c.String("format")), c.String("output"), cfg.Output.Color)
}

// loadRegistry opens the database for query commands.
func loadRegistry(c *cli.Context) (*registry.Registry, *config.Config, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}
	path := dbPath(c, cfg)
	reg, err := store.NewFileStore(path).Load()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, fmt.Errorf("no database at %s (run 'objdeps build' first)", path)
		}
		return nil, nil, err
	}
	return reg, cfg, nil
}

func buildCmd() *cli.Command {
	return &cli.Command{
		Name:      "build",
		Usage:     "Extract symbols from archives and build the dependency database",
		ArgsUsage: "[dir]",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "libs",
				Usage: "Explicit archive files to parse (relative to dir when dir is given)",
			},
			&cli.StringSliceFlag{
				Name:  "exclude",
				Usage: "Archive base names to exclude",
			},
			&cli.BoolFlag{
				Name:  "skip-failed",
				Usage: "Skip archives that fail symbol extraction instead of aborting",
			},
			&cli.IntFlag{
				Name:    "jobs",
				Aliases: []string{"j"},
				Usage:   "Number of parallel extraction workers (0 = 2x CPU count)",
			},
		},
		Action: runBuildCmd,
	}
}

func runBuildCmd(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	formatter, err := newFormatter(c, cfg)
	if err != nil {
		return err
	}
	defer formatter.Close()

	paths, err := collectArchives(c, cfg)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		formatter.Warning("No archives found")
		return nil
	}

	formatter.Info("Libraries to be parsed (%d):", len(paths))
	for _, p := range paths {
		fmt.Fprintf(formatter.Writer(), "  %s\n", p)
	}

	extractor := symbols.NewExtractor(
		symbols.WithDumper(symbols.NewNM(
			symbols.WithTool(cfg.Tool.NM),
			symbols.WithTimeout(time.Duration(cfg.Tool.TimeoutSeconds)*time.Second),
		)),
		symbols.WithNoisePrefixes(cfg.Filter.Prefixes),
	)

	jobs := c.Int("jobs")
	if jobs == 0 {
		jobs = cfg.Build.Jobs
	}

	tracker := progress.NewTracker("Extracting symbols...", len(paths))
	libs, errs := libproc.MapContext(c.Context, paths, jobs, func(path string) (*registry.Library, error) {
		return extractor.Extract(c.Context, path)
	}, tracker.Tick)

	if errs != nil {
		if !c.Bool("skip-failed") {
			tracker.FinishError(errs)
			for _, e := range errs.Errors {
				formatter.Error("%s: %v", e.Path, e.Err)
			}
			return fmt.Errorf("%d archives failed symbol extraction (use --skip-failed to continue anyway)", len(errs.Errors))
		}
		tracker.FinishSkipped(fmt.Sprintf("%d of %d archives failed", len(errs.Errors), len(paths)))
		for _, e := range errs.Errors {
			formatter.Warning("Skipped %s: %v", e.Path, e.Err)
		}
	} else {
		tracker.FinishSuccess()
	}

	if len(libs) == 0 {
		return errors.New("no archives were successfully parsed")
	}

	reg := registry.New()
	for _, lib := range libs {
		if err := reg.Add(lib); err != nil {
			return fmt.Errorf("adding %s: %w", lib.Name, err)
		}
	}

	spinner := progress.NewSpinner("Resolving dependencies...")
	reg.Resolve()
	if err := reg.IndexClients(); err != nil {
		spinner.FinishError(err)
		return err
	}
	spinner.FinishSuccess()

	path := dbPath(c, cfg)
	if err := store.NewFileStore(path).Save(reg); err != nil {
		return fmt.Errorf("saving database: %w", err)
	}

	formatter.Success("Saved %d libraries to %s", reg.Len(), path)
	return nil
}

// collectArchives resolves the archive list from --libs, the positional
// directory, or both, then applies --exclude name filtering.
func collectArchives(c *cli.Context, cfg *config.Config) ([]string, error) {
	dir := c.Args().First()
	libs := c.StringSlice("libs")

	var paths []string
	switch {
	case len(libs) > 0 && dir != "":
		for _, l := range libs {
			paths = append(paths, filepath.Join(dir, l))
		}
	case len(libs) > 0:
		paths = libs
	default:
		if dir == "" {
			dir = "."
		}
		absDir, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("invalid path %s: %w", dir, err)
		}
		found, err := scanner.NewScanner(cfg).ScanDir(absDir)
		if err != nil {
			return nil, fmt.Errorf("failed to scan directory %s: %w", dir, err)
		}
		paths = found
	}

	exclude := c.StringSlice("exclude")
	if len(exclude) == 0 {
		return paths, nil
	}
	excluded := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		excluded[name] = true
	}
	kept := paths[:0]
	for _, p := range paths {
		if !excluded[filepath.Base(p)] {
			kept = append(kept, p)
		}
	}
	return kept, nil
}

func listCmd() *cli.Command {
	return &cli.Command{
		Name:   "list",
		Usage:  "List each library's dependencies and clients",
		Action: runListCmd,
	}
}

func runListCmd(c *cli.Context) error {
	reg, cfg, err := loadRegistry(c)
	if err != nil {
		return err
	}

	formatter, err := newFormatter(c, cfg)
	if err != nil {
		return err
	}
	defer formatter.Close()

	root := &output.Section{Data: reg}
	for _, lib := range reg.Libraries() {
		root.Sections = append(root.Sections, output.Section{
			Title: lib.Name,
			Content: fmt.Sprintf("dependencies: %v\nclients: %v",
				lib.Dependencies.Names(), lib.Clients.Names()),
		})
	}

	return formatter.Output(root)
}

func statsCmd() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Print tabular symbol and dependency statistics",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "metrics",
				Usage: "Include graph summary metrics and cycle detection",
			},
		},
		Action: runStatsCmd,
	}
}

func runStatsCmd(c *cli.Context) error {
	reg, cfg, err := loadRegistry(c)
	if err != nil {
		return err
	}

	formatter, err := newFormatter(c, cfg)
	if err != nil {
		return err
	}
	defer formatter.Close()

	var rows [][]string
	var totalDefined, totalUndefined, totalDeps, totalClients int
	for _, lib := range reg.Libraries() {
		rows = append(rows, []string{
			lib.Name,
			fmt.Sprintf("%d", lib.Defined.Len()),
			fmt.Sprintf("%d", lib.Undefined.Len()),
			fmt.Sprintf("%d", lib.Dependencies.Len()),
			fmt.Sprintf("%d", lib.Clients.Len()),
		})
		totalDefined += lib.Defined.Len()
		totalUndefined += lib.Undefined.Len()
		totalDeps += lib.Dependencies.Len()
		totalClients += lib.Clients.Len()
	}

	table := output.NewTable(
		"Library Statistics",
		[]string{"Name", "Defined", "Undefined", "Dependencies", "Clients"},
		rows,
		[]string{
			fmt.Sprintf("Total: %d", reg.Len()),
			fmt.Sprintf("%d", totalDefined),
			fmt.Sprintf("%d", totalUndefined),
			fmt.Sprintf("%d", totalDeps),
			fmt.Sprintf("%d", totalClients),
		},
		reg,
	)

	if err := formatter.Output(table); err != nil {
		return err
	}

	if !c.Bool("metrics") {
		return nil
	}

	summary := analysis.Summarize(reg)
	if formatter.Format() == output.FormatJSON {
		return formatter.Output(summary)
	}

	w := formatter.Writer()
	if formatter.Colored() {
		color.New(color.FgCyan).Fprintln(w, "Graph Metrics:")
	} else {
		fmt.Fprintln(w, "Graph Metrics:")
	}
	fmt.Fprintf(w, "  Libraries: %d\n", summary.Libraries)
	fmt.Fprintf(w, "  Edges: %d\n", summary.Edges)
	fmt.Fprintf(w, "  Avg Degree: %.2f\n", summary.AvgDegree)
	fmt.Fprintf(w, "  Max Dependencies: %d\n", summary.MaxDeps)
	fmt.Fprintf(w, "  P90 Dependencies: %.0f\n", summary.P90Deps)
	fmt.Fprintf(w, "  Density: %.4f\n", summary.Density)

	if len(summary.Cycles) > 0 {
		fmt.Fprintln(w)
		if formatter.Colored() {
			color.New(color.FgYellow).Fprintf(w, "Dependency cycles (%d):\n", len(summary.Cycles))
		} else {
			fmt.Fprintf(w, "Dependency cycles (%d):\n", len(summary.Cycles))
		}
		for _, cycle := range summary.Cycles {
			fmt.Fprintf(w, "  - %v\n", cycle)
		}
	}

	return nil
}

func commonCmd() *cli.Command {
	return &cli.Command{
		Name:      "common",
		Usage:     "Show the dependencies shared by every client of a library",
		ArgsUsage: "<library>",
		Action:    runCommonCmd,
	}
}

func runCommonCmd(c *cli.Context) error {
	name := c.Args().First()
	if name == "" {
		return errors.New("a library name is required")
	}

	reg, cfg, err := loadRegistry(c)
	if err != nil {
		return err
	}

	clientCount, common, err := reg.CommonDependencies(name)
	if err != nil {
		return err
	}

	formatter, err := newFormatter(c, cfg)
	if err != nil {
		return err
	}
	defer formatter.Close()

	section := &output.Section{
		Title: name,
		Content: fmt.Sprintf("clients: %d\ncommon dependencies: %v",
			clientCount, common.Names()),
		Data: struct {
			Library string   `json:"library"`
			Clients int      `json:"clients"`
			Common  []string `json:"common_dependencies"`
		}{name, clientCount, common.Names()},
	}

	return formatter.Output(section)
}

func dotCmd() *cli.Command {
	return &cli.Command{
		Name:  "dot",
		Usage: "Export the dependency graph as a DOT file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "Output file (default <db>.dot)",
			},
		},
		Action: runDotCmd,
	}
}

func runDotCmd(c *cli.Context) error {
	reg, cfg, err := loadRegistry(c)
	if err != nil {
		return err
	}

	out := c.String("out")
	if out == "" {
		out = dbPath(c, cfg) + ".dot"
	}

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("creating %s: %w", out, err)
	}
	defer f.Close()

	if err := dot.NewWriter(f).WriteGraph(reg); err != nil {
		return fmt.Errorf("writing graph: %w", err)
	}

	formatter, err := newFormatter(c, cfg)
	if err != nil {
		return err
	}
	defer formatter.Close()

	formatter.Success("Graph written to %s", out)
	return nil
}
