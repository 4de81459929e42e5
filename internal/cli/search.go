// Package cli implements the interactive search console over the catalog.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/cpedb/cpedb-backend/backend"
	"github.com/cpedb/cpedb-backend/matcher"
	"github.com/cpedb/cpedb-backend/model"
)

// Console reads commands from In and writes results to Out until the
// user quits or In is exhausted.
type Console struct {
	In      io.Reader
	Out     io.Writer
	Store   backend.Store
	Matcher *matcher.ToolMatcher
	Limit   int
}

type command struct {
	usage   string
	help    string
	minArgs int
	run     func(ctx context.Context, c *Console, args []string) error
}

func commands() map[string]command {
	return map[string]command{
		"tool": {
			usage:   "tool <name...>",
			help:    "match a tool name to canonical CPEs",
			minArgs: 1,
			run: func(ctx context.Context, c *Console, args []string) error {
				name := strings.Join(args, " ")
				groups, err := c.Matcher.Match(ctx, name, "", matcher.Options{Limit: c.limit()})
				if err != nil {
					return err
				}
				c.printGroups(groups)
				return nil
			},
		},
		"website": {
			usage:   "website <url>",
			help:    "find CPEs referencing a website",
			minArgs: 1,
			run: func(ctx context.Context, c *Console, args []string) error {
				hits, err := c.Store.Search(ctx, backend.Query{
					RefContains: matcher.CleanWebsite(args[0]),
					Deprecated:  backend.DeprecatedExclude,
					Limit:       c.limit(),
				})
				if err != nil {
					return err
				}
				c.printEntries(hits)
				return nil
			},
		},
		"cpe": {
			usage:   "cpe <pattern>",
			help:    "look up CPE names matching a pattern, * wildcards allowed",
			minArgs: 1,
			run: func(ctx context.Context, c *Console, args []string) error {
				hits, err := c.Store.Search(ctx, backend.Query{
					NamePattern: args[0],
					Deprecated:  backend.DeprecatedAny,
					Limit:       c.limit(),
				})
				if err != nil {
					return err
				}
				c.printEntries(hits)
				return nil
			},
		},
		"vendor": {
			usage:   "vendor <vendor> [product]",
			help:    "list CPEs for a vendor, optionally narrowed to one product",
			minArgs: 1,
			run: func(ctx context.Context, c *Console, args []string) error {
				product := ""
				if len(args) > 1 {
					product = args[1]
				}
				hits, err := c.Store.Search(ctx, backend.Query{
					Vendor:     args[0],
					Product:    product,
					Deprecated: backend.DeprecatedExclude,
					Limit:      c.limit(),
				})
				if err != nil {
					return err
				}
				c.printEntries(hits)
				return nil
			},
		},
		"stats": {
			usage: "stats",
			help:  "show catalog document counts",
			run: func(ctx context.Context, c *Console, args []string) error {
				total, err := c.Store.Count(ctx, backend.Query{})
				if err != nil {
					return err
				}
				deprecated, err := c.Store.Count(ctx, backend.Query{Deprecated: backend.DeprecatedOnly})
				if err != nil {
					return err
				}
				fmt.Fprintf(c.Out, "documents:  %d\nactive:     %d\ndeprecated: %d\n",
					total, total-deprecated, deprecated)
				return nil
			},
		},
	}
}

func (c *Console) limit() int {
	if c.Limit > 0 {
		return c.Limit
	}
	return 10
}

// Run executes the interactive loop. It returns nil when the user quits
// or input runs out.
func (c *Console) Run(ctx context.Context) error {
	cmds := commands()
	c.printHelp(cmds)

	scanner := bufio.NewScanner(c.In)
	for {
		fmt.Fprint(c.Out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(c.Out)
			return scanner.Err()
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		name := strings.ToLower(fields[0])
		switch name {
		case "quit", "exit", "q":
			return nil
		case "help", "?":
			c.printHelp(cmds)
			continue
		}

		cmd, ok := cmds[name]
		if !ok {
			fmt.Fprintf(c.Out, "unknown command %q, type help for a list\n", name)
			continue
		}
		args := fields[1:]
		if len(args) < cmd.minArgs {
			fmt.Fprintf(c.Out, "usage: %s\n", cmd.usage)
			continue
		}
		if err := cmd.run(ctx, c, args); err != nil {
			fmt.Fprintf(c.Out, "error: %v\n", err)
		}
	}
}

func (c *Console) printHelp(cmds map[string]command) {
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(c.Out, "Commands:")
	for _, name := range names {
		fmt.Fprintf(c.Out, "  %-28s %s\n", cmds[name].usage, cmds[name].help)
	}
	fmt.Fprintln(c.Out, "  quit                         leave the console")
}

func (c *Console) printEntries(entries []model.CPEEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(c.Out, "no results")
		return
	}
	for _, e := range entries {
		status := ""
		if e.Deprecated {
			status = "  [deprecated]"
		}
		fmt.Fprintf(c.Out, "%s%s\n", e.Name, status)
		if title := e.PrimaryTitle(); title != "" {
			fmt.Fprintf(c.Out, "    %s\n", title)
		}
		for _, ref := range e.RefURLs() {
			fmt.Fprintf(c.Out, "    ref: %s\n", ref)
		}
	}
	fmt.Fprintf(c.Out, "%d result(s)\n", len(entries))
}

func (c *Console) printGroups(groups []model.MatchGroup) {
	if len(groups) == 0 {
		fmt.Fprintln(c.Out, "no matches")
		return
	}
	for i, g := range groups {
		fmt.Fprintf(c.Out, "%d. %s\n", i+1, g.CPE)
		fmt.Fprintf(c.Out, "    vendor=%s product=%s version=%s\n", g.Vendor, g.Product, g.Version)
		fmt.Fprintf(c.Out, "    purl=%s found_by=%s entries=%d\n", g.PURL(), g.FoundBy, g.Size())
		if len(g.Versions) > 1 {
			fmt.Fprintf(c.Out, "    versions: %s\n", strings.Join(g.Versions, ", "))
		}
	}
}
