// package main provides the entry point for the cpedb-backend service and
// its maintenance CLI: feed download, indexing, diffing, CSV matching and
// the search console all hang off one kong command tree.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"github.com/cpedb/cpedb-backend/config"
	"github.com/cpedb/cpedb-backend/database"
	"github.com/cpedb/cpedb-backend/differ"
)

func main() {
	ctx := context.Background()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	logger := database.InitLogger()
	defer logger.Sync() //nolint:errcheck

	deps := &Dependencies{
		Ctx:    ctx,
		Stdin:  stdin,
		Stdout: stdout,
		Stderr: stderr,
		Logger: logger,
	}

	cli := &CLI{}
	parser, err := kong.New(cli,
		kong.Name("cpedb"),
		kong.Description("NVD CPE catalog backend"),
		kong.Writers(stdout, stderr),
		kong.Exit(func(int) {}),
		kong.Bind(deps),
	)
	if err != nil {
		return fmt.Errorf("failed to create parser: %w", err)
	}

	if len(args) == 0 {
		_, _ = parser.Parse([]string{"--help"})
		return fmt.Errorf("no command specified. Run 'cpedb --help' to see available commands")
	}
	if args[0] == "help" || args[0] == "--help" || args[0] == "-h" {
		_, _ = parser.Parse([]string{"--help"})
		return nil
	}

	kongCtx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	if cli.Config != "" {
		if deps.Config, err = config.Load(cli.Config); err != nil {
			return err
		}
	} else {
		deps.Config = config.Default()
	}

	return kongCtx.Run(deps)
}

func differFromConfig(cfg *config.Config, logger *zap.Logger) *differ.SnapshotDiffer {
	var archiver differ.Archiver = differ.NopArchiver{}
	if cfg.Dirs.Backups != "" {
		archiver = differ.NewFileArchiver(cfg.Dirs.Backups, logger)
	}
	return differ.NewSnapshotDiffer(archiver, logger)
}

func defaultMatchedPath(input string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + "_matched" + ext
}
