package main

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/cpedb/cpedb-backend/backend"
	"github.com/cpedb/cpedb-backend/config"
	"github.com/cpedb/cpedb-backend/database"
	"github.com/cpedb/cpedb-backend/feed"
	"github.com/cpedb/cpedb-backend/indexer"
	"github.com/cpedb/cpedb-backend/internal/api"
	"github.com/cpedb/cpedb-backend/internal/cli"
	"github.com/cpedb/cpedb-backend/matcher"
	"github.com/cpedb/cpedb-backend/restapi"
	"github.com/cpedb/cpedb-backend/updater"
)

// Dependencies holds all services and configuration for command execution.
type Dependencies struct {
	Ctx    context.Context
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Config *config.Config
	Logger *zap.Logger

	store *database.Store
}

// OpenStore connects to ArangoDB on first use and memoizes the store.
func (d *Dependencies) OpenStore() (backend.Store, error) {
	if d.store != nil {
		return d.store, nil
	}
	db, err := database.InitializeDatabase(d.Ctx, d.Config.Arango)
	if err != nil {
		return nil, err
	}
	d.store = database.NewStore(db)
	return d.store, nil
}

func (d *Dependencies) downloader() *feed.Downloader {
	return feed.NewDownloader(d.Config.Feed.URL, d.Config.Feed.ExtractDir, d.Logger)
}

func (d *Dependencies) newUpdater(st backend.Store) *updater.Updater {
	dif := differFromConfig(d.Config, d.Logger)
	retry := indexer.DefaultRetryPolicy
	if d.Config.Index.MaxAttempts > 0 {
		retry.MaxAttempts = d.Config.Index.MaxAttempts
	}
	ix := indexer.NewBatchIndexer(st, indexer.Config{
		BatchSize: d.Config.Index.BatchSize,
		Workers:   d.Config.Index.Workers,
		Retry:     retry,
	}, d.Logger)
	return updater.NewUpdater(st, dif, ix, d.Logger)
}

// CLI defines the command-line interface structure for Kong.
type CLI struct {
	Config string `help:"Path to the YAML config file" type:"path"`

	Setup         SetupCmd         `cmd:"" help:"Create the collection, indexes and search view"`
	Download      DownloadCmd      `cmd:"" help:"Download and extract the NVD CPE feed"`
	Index         IndexCmd         `cmd:"" help:"Index downloaded feed chunks into the catalog"`
	Update        UpdateCmd        `cmd:"" help:"Download the feed, diff against the live catalog and reindex"`
	RecreateIndex RecreateIndexCmd `cmd:"" name:"recreate-index" help:"Drop the catalog index and rebuild it from downloaded chunks"`
	MatchCSV      MatchCSVCmd      `cmd:"" name:"match-csv" help:"Annotate a CSV of tools with canonical CPE matches"`
	Search        SearchCmd        `cmd:"" help:"Interactive search console"`
	Stats         StatsCmd         `cmd:"" help:"Show catalog document counts"`
	Serve         ServeCmd         `cmd:"" help:"Run the REST and GraphQL API server"`
}

// SetupCmd is the "setup" subcommand.
type SetupCmd struct{}

// Run executes the setup command.
func (c *SetupCmd) Run(deps *Dependencies) error {
	st, err := deps.OpenStore()
	if err != nil {
		return err
	}
	if err := st.EnsureIndex(deps.Ctx); err != nil {
		return err
	}
	fmt.Fprintf(deps.Stdout, "Index %q is ready\n", deps.Config.Arango.Collection)
	return nil
}

// DownloadCmd is the "download" subcommand.
type DownloadCmd struct {
	Force bool `short:"f" help:"Re-download even when a fresh archive exists"`
	Keep  bool `help:"Keep the archive after extraction"`
}

// Run executes the download command.
func (c *DownloadCmd) Run(deps *Dependencies) error {
	dl := deps.downloader()
	if err := dl.DownloadAndExtract(c.Force, !c.Keep); err != nil {
		return err
	}
	files, err := dl.ChunkFiles()
	if err != nil {
		return err
	}
	fmt.Fprintf(deps.Stdout, "Extracted %d chunk files to %s\n", len(files), deps.Config.Feed.ExtractDir)
	return nil
}

// IndexCmd is the "index" subcommand, the initial bulk load.
type IndexCmd struct{}

// Run executes the index command.
func (c *IndexCmd) Run(deps *Dependencies) error {
	st, err := deps.OpenStore()
	if err != nil {
		return err
	}
	files, err := deps.downloader().ChunkFiles()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no feed chunks found in %s, run download first", deps.Config.Feed.ExtractDir)
	}
	if err := st.EnsureIndex(deps.Ctx); err != nil {
		return err
	}

	u := deps.newUpdater(st)
	report, result, err := u.IndexFromFiles(deps.Ctx, files)
	if err != nil {
		return err
	}
	fmt.Fprintf(deps.Stdout, "Indexed %d documents (%d failed, %d retries)\n",
		report.Succeeded, report.Failed, report.Retries)
	if result.ParseErrors > 0 {
		fmt.Fprintf(deps.Stdout, "Skipped %d malformed records\n", result.ParseErrors)
	}
	return nil
}

// UpdateCmd is the "update" subcommand.
type UpdateCmd struct {
	ForceDownload bool `help:"Re-download the feed even when a fresh archive exists"`
	NoDiff        bool `help:"Skip snapshot backup and diff reporting"`
}

// Run executes the update command.
func (c *UpdateCmd) Run(deps *Dependencies) error {
	st, err := deps.OpenStore()
	if err != nil {
		return err
	}
	dl := deps.downloader()
	if err := dl.DownloadAndExtract(c.ForceDownload, true); err != nil {
		return err
	}
	files, err := dl.ChunkFiles()
	if err != nil {
		return err
	}

	u := deps.newUpdater(st)
	result, err := u.Run(deps.Ctx, files, updater.Options{
		SkipDiff: c.NoDiff,
		DiffDir:  deps.Config.Dirs.Diffs,
	})
	fmt.Fprint(deps.Stdout, updater.Summary(result, err))
	return err
}

// RecreateIndexCmd is the "recreate-index" subcommand.
type RecreateIndexCmd struct {
	Force bool `help:"Confirm dropping all indexed documents"`
}

// Run executes the recreate-index command.
func (c *RecreateIndexCmd) Run(deps *Dependencies) error {
	if !c.Force {
		fmt.Fprintf(deps.Stderr, "error: recreating the index deletes all indexed documents, use --force to confirm\n")
		return fmt.Errorf("use --force to confirm index recreation")
	}

	st, err := deps.OpenStore()
	if err != nil {
		return err
	}
	files, err := deps.downloader().ChunkFiles()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no feed chunks found in %s, run download first", deps.Config.Feed.ExtractDir)
	}

	u := deps.newUpdater(st)
	if err := u.RecreateIndex(deps.Ctx); err != nil {
		return err
	}
	report, _, err := u.IndexFromFiles(deps.Ctx, files)
	if err != nil {
		return err
	}
	fmt.Fprintf(deps.Stdout, "Recreated index with %d documents (%d failed)\n",
		report.Succeeded, report.Failed)
	return nil
}

// MatchCSVCmd is the "match-csv" subcommand.
type MatchCSVCmd struct {
	CSVFile           string `arg:"" help:"Input CSV with tool names and websites" type:"existingfile"`
	ToolCol           int    `default:"1" help:"1-based column holding the tool name"`
	WebsiteCol        int    `default:"2" help:"1-based column holding the website"`
	Output            string `short:"o" help:"Output path, defaults to <input>_matched.csv"`
	IncludeDeprecated bool   `help:"Match against deprecated entries too"`
}

// Run executes the match-csv command.
func (c *MatchCSVCmd) Run(deps *Dependencies) error {
	st, err := deps.OpenStore()
	if err != nil {
		return err
	}
	m := matcher.NewToolMatcher(st, deps.Logger)

	output := c.Output
	if output == "" {
		output = defaultMatchedPath(c.CSVFile)
	}

	stats, err := m.ProcessCSV(deps.Ctx, c.CSVFile, output, matcher.CSVOptions{
		ToolCol:    c.ToolCol - 1,
		WebsiteCol: c.WebsiteCol - 1,
		Match: matcher.Options{
			IncludeDeprecated: c.IncludeDeprecated,
		},
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(deps.Stdout, "Processed %d rows: %d matched (%d by name, %d by website, %d by both), %d unmatched, %d skipped\n",
		stats.TotalRows, stats.ToolsWithCPE, stats.MatchesByName, stats.MatchesByWebsite, stats.MatchesByBoth,
		stats.ToolsWithoutCPE, stats.SkippedRows)
	for _, rowErr := range stats.RowErrors {
		fmt.Fprintf(deps.Stderr, "  %v\n", rowErr)
	}
	fmt.Fprintf(deps.Stdout, "Results written to %s\n", output)
	return nil
}

// SearchCmd is the "search" subcommand.
type SearchCmd struct {
	Limit int `default:"10" help:"Maximum results per query"`
}

// Run executes the search command.
func (c *SearchCmd) Run(deps *Dependencies) error {
	st, err := deps.OpenStore()
	if err != nil {
		return err
	}
	console := &cli.Console{
		In:      deps.Stdin,
		Out:     deps.Stdout,
		Store:   st,
		Matcher: matcher.NewToolMatcher(st, deps.Logger),
		Limit:   c.Limit,
	}
	return console.Run(deps.Ctx)
}

// StatsCmd is the "stats" subcommand.
type StatsCmd struct{}

// Run executes the stats command.
func (c *StatsCmd) Run(deps *Dependencies) error {
	st, err := deps.OpenStore()
	if err != nil {
		return err
	}
	total, err := st.Count(deps.Ctx, backend.Query{})
	if err != nil {
		return err
	}
	deprecated, err := st.Count(deps.Ctx, backend.Query{Deprecated: backend.DeprecatedOnly})
	if err != nil {
		return err
	}
	fmt.Fprintf(deps.Stdout, "documents:  %d\nactive:     %d\ndeprecated: %d\n",
		total, total-deprecated, deprecated)
	return nil
}

// ServeCmd is the "serve" subcommand.
type ServeCmd struct {
	Port string `default:"8080" help:"Port to listen on"`
}

// Run executes the serve command.
func (c *ServeCmd) Run(deps *Dependencies) error {
	st, err := deps.OpenStore()
	if err != nil {
		return err
	}
	app := api.NewFiberApp(restapi.Deps{
		Store:      st,
		Matcher:    matcher.NewToolMatcher(st, deps.Logger),
		Updater:    deps.newUpdater(st),
		Downloader: deps.downloader(),
		DiffDir:    deps.Config.Dirs.Diffs,
	})
	return app.Listen(":" + c.Port)
}
