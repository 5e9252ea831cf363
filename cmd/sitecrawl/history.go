package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/sitecrawl/internal/config"
	"github.com/nao1215/sitecrawl/internal/database"
)

// ErrNotEnoughRuns is returned by "history diff" when a domain has fewer
// than two archived runs.
var ErrNotEnoughRuns = errors.New("at least two runs are needed to compare")

// NewHistoryCmd creates the history command and its subcommands.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect archived crawl runs",
		Long: `History reads the crawl archive written by "sitecrawl crawl --save".

Examples:
  # List the latest runs
  sitecrawl history list

  # Show a stored run as Markdown
  sitecrawl history show 3 --markdown

  # Compare the two newest runs of a domain
  sitecrawl history diff --domain example.com

  # Find which pages link to a broken URL
  sitecrawl history referrers 3 https://example.com/missing`,
	}

	cmd.PersistentFlags().String("db-dir", "",
		"Archive directory (default: XDG data directory)")

	cmd.AddCommand(newHistoryListCmd())
	cmd.AddCommand(newHistoryDomainsCmd())
	cmd.AddCommand(newHistoryShowCmd())
	cmd.AddCommand(newHistoryDiffCmd())
	cmd.AddCommand(newHistoryPageCmd())
	cmd.AddCommand(newHistoryReferrersCmd())
	cmd.AddCommand(newHistoryDeleteCmd())

	return cmd
}

// openArchive opens the existing archive selected by --db-dir.
func openArchive(cmd *cobra.Command) (*database.CrawlDB, error) {
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return nil, err
	}
	if dbDir == "" {
		dbDir = config.XDGDataDir()
	}

	db, err := database.Open(dbDir, database.Options{CreateIfNotExists: false, EnableWAL: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open archive (run \"sitecrawl crawl --save\" first): %w", err)
	}
	return db, nil
}

// withArchive opens the archive, runs fn and closes it.
func withArchive(cmd *cobra.Command, fn func(ctx context.Context, db *database.CrawlDB, out io.Writer) error) error {
	db, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(cmd.Context(), db, cmd.OutOrStdout())
}

func parseRunID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid run ID %q", s)
	}
	return id, nil
}

func newHistoryListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			domain, err := cmd.Flags().GetString("domain")
			if err != nil {
				return err
			}
			limit, err := cmd.Flags().GetInt("limit")
			if err != nil {
				return err
			}

			return withArchive(cmd, func(ctx context.Context, db *database.CrawlDB, out io.Writer) error {
				runs, err := db.ListRuns(ctx, domain, limit)
				if err != nil {
					return err
				}
				writeRunList(out, runs)
				return nil
			})
		},
	}

	cmd.Flags().StringP("domain", "d", "", "Only list runs for this domain")
	cmd.Flags().IntP("limit", "n", 20, "Maximum number of runs to list (0 for all)")

	return cmd
}

func writeRunList(out io.Writer, runs []database.RunSummary) {
	if len(runs) == 0 {
		fmt.Fprintln(out, "No archived runs found")
		return
	}

	fmt.Fprintf(out, "  %-6s  %-20s  %-10s  %7s  %7s  %7s  %s\n",
		"ID", "Started", "Duration", "Visited", "Fetched", "Failed", "Start URL")
	for _, run := range runs {
		start := run.StartURL
		if run.Cancelled {
			start += " (cancelled)"
		}
		fmt.Fprintf(out, "  %-6d  %-20s  %-10s  %7d  %7d  %7d  %s\n",
			run.ID,
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			run.Duration().Round(time.Millisecond),
			run.Claimed,
			run.Fetched,
			run.Failed,
			start,
		)
	}
}

func newHistoryDomainsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "domains",
		Short: "List domains with archived runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withArchive(cmd, func(ctx context.Context, db *database.CrawlDB, out io.Writer) error {
				domains, err := db.ListDomains(ctx)
				if err != nil {
					return err
				}

				fmt.Fprintf(out, "Crawled domains (%d):\n\n", len(domains))
				for _, domain := range domains {
					fmt.Fprintf(out, "  • %s\n", domain)
				}
				return nil
			})
		},
	}
}

func newHistoryShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print the report of an archived run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRunID(args[0])
			if err != nil {
				return err
			}
			jsonFormat, err := cmd.Flags().GetBool("json")
			if err != nil {
				return err
			}
			markdownFormat, err := cmd.Flags().GetBool("markdown")
			if err != nil {
				return err
			}
			if jsonFormat && markdownFormat {
				return config.ErrConflictingReportFormats
			}

			return withArchive(cmd, func(ctx context.Context, db *database.CrawlDB, out io.Writer) error {
				crawlReport, err := db.GetRun(ctx, id)
				if err != nil {
					return err
				}
				_, err = newReportWriter(out, jsonFormat, markdownFormat, true).Write(crawlReport)
				return err
			})
		},
	}

	cmd.Flags().BoolP("json", "j", false, "Output JSON report")
	cmd.Flags().BoolP("markdown", "m", false, "Output Markdown report")

	return cmd
}

func newHistoryDiffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff [old-run-id new-run-id]",
		Short: "Compare the visited URLs and page contents of two runs",
		Long: `Diff lists URLs that were only visited in one of two runs, and pages whose
content changed between them.

Give two run IDs, or --domain to compare the two newest runs of a domain.`,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("expected 0 or 2 run IDs, got %d", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			domain, err := cmd.Flags().GetString("domain")
			if err != nil {
				return err
			}
			jsonFormat, err := cmd.Flags().GetBool("json")
			if err != nil {
				return err
			}

			return withArchive(cmd, func(ctx context.Context, db *database.CrawlDB, out io.Writer) error {
				oldID, newID, err := diffRunIDs(ctx, db, args, domain)
				if err != nil {
					return err
				}

				older, err := db.GetRun(ctx, oldID)
				if err != nil {
					return err
				}
				newer, err := db.GetRun(ctx, newID)
				if err != nil {
					return err
				}

				diff := database.DiffRuns(older, newer)
				if jsonFormat {
					encoder := json.NewEncoder(out)
					encoder.SetIndent("", "  ")
					return encoder.Encode(diff)
				}
				writeRunDiff(out, diff)
				return nil
			})
		},
	}

	cmd.Flags().StringP("domain", "d", "", "Compare the two newest runs of this domain")
	cmd.Flags().BoolP("json", "j", false, "Output the comparison as JSON")

	return cmd
}

// diffRunIDs resolves the two runs to compare from arguments or --domain.
func diffRunIDs(ctx context.Context, db *database.CrawlDB, args []string, domain string) (int64, int64, error) {
	if len(args) == 2 {
		oldID, err := parseRunID(args[0])
		if err != nil {
			return 0, 0, err
		}
		newID, err := parseRunID(args[1])
		if err != nil {
			return 0, 0, err
		}
		return oldID, newID, nil
	}

	if domain == "" {
		return 0, 0, errors.New("give two run IDs or --domain")
	}

	runs, err := db.ListRuns(ctx, domain, 2)
	if err != nil {
		return 0, 0, err
	}
	if len(runs) < 2 {
		return 0, 0, fmt.Errorf("%w: %s has %d run(s)", ErrNotEnoughRuns, domain, len(runs))
	}

	// Newest first
	return runs[1].ID, runs[0].ID, nil
}

func writeRunDiff(out io.Writer, diff *database.RunDiff) {
	fmt.Fprintf(out, "Comparing run %d -> run %d\n", diff.OldID, diff.NewID)

	if diff.IsEmpty() {
		fmt.Fprintln(out, "\nNo differences")
		return
	}

	if len(diff.Added) > 0 {
		fmt.Fprintf(out, "\nNew URLs (%d):\n", len(diff.Added))
		for _, u := range diff.Added {
			fmt.Fprintf(out, "  [+] %s\n", u)
		}
	}
	if len(diff.Removed) > 0 {
		fmt.Fprintf(out, "\nGone URLs (%d):\n", len(diff.Removed))
		for _, u := range diff.Removed {
			fmt.Fprintf(out, "  [-] %s\n", u)
		}
	}
	if len(diff.Changed) > 0 {
		fmt.Fprintf(out, "\nChanged pages (%d):\n", len(diff.Changed))
		for _, u := range diff.Changed {
			fmt.Fprintf(out, "  [*] %s\n", u)
		}
	}
}

func newHistoryPageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "page <url>",
		Short: "Show every archived fetch of a page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(cmd, func(ctx context.Context, db *database.CrawlDB, out io.Writer) error {
				versions, err := db.PageHistory(ctx, args[0])
				if err != nil {
					return err
				}
				if len(versions) == 0 {
					fmt.Fprintf(out, "No archived fetches of %s\n", args[0])
					return nil
				}

				fmt.Fprintf(out, "  %-6s  %-20s  %8s  %-16s  %s\n", "Run", "Fetched", "Size", "Hash", "Title")
				for _, v := range versions {
					fmt.Fprintf(out, "  %-6d  %-20s  %8d  %-16s  %s\n",
						v.RunID,
						v.FetchedAt.Local().Format("2006-01-02 15:04:05"),
						v.Size,
						shortHash(v.Hash),
						v.Title,
					)
				}
				return nil
			})
		},
	}
}

func shortHash(h string) string {
	if len(h) > 16 {
		return h[:16]
	}
	return h
}

func newHistoryReferrersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "referrers <run-id> <url>",
		Short: "List the pages of a run that link to a URL",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRunID(args[0])
			if err != nil {
				return err
			}

			return withArchive(cmd, func(ctx context.Context, db *database.CrawlDB, out io.Writer) error {
				referrers, err := db.Referrers(ctx, id, args[1])
				if err != nil {
					return err
				}

				fmt.Fprintf(out, "Pages linking to %s (%d):\n", args[1], len(referrers))
				for _, u := range referrers {
					fmt.Fprintf(out, "  %s\n", u)
				}
				return nil
			})
		},
	}
}

func newHistoryDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete an archived run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRunID(args[0])
			if err != nil {
				return err
			}

			return withArchive(cmd, func(ctx context.Context, db *database.CrawlDB, out io.Writer) error {
				if err := db.DeleteRun(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(out, "Deleted run %d\n", id)
				return nil
			})
		},
	}
}
