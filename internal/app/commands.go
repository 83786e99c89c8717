package app

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/deusflow/newspulse/internal/models"
	"github.com/deusflow/newspulse/internal/news"
)

var (
	flagForce      bool
	flagJSON       bool
	flagView       news.ViewOptions
	flagTagsUnread bool
	flagTagsSource string
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch every enabled source now",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *App) error {
			report, err := a.News.Refresh(ctx, flagForce)
			if err != nil {
				return err
			}
			if flagJSON {
				return writeJSON(cmd, report)
			}
			printReport(cmd.OutOrStdout(), report)
			return nil
		})
	},
}

var masterCmd = &cobra.Command{
	Use:   "master",
	Short: "Show the merged story pool of all sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *App) error {
			pool, err := a.News.MasterPool(ctx)
			if err != nil {
				return err
			}
			return showPool(ctx, cmd, a, pool)
		})
	},
}

var sourceCmd = &cobra.Command{
	Use:   "source <id>",
	Short: "Show the story pool of one source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *App) error {
			if _, err := a.News.MasterPool(ctx); err != nil {
				return err
			}
			pool, err := a.News.SourcePool(ctx, args[0])
			if err != nil {
				return err
			}
			return showPool(ctx, cmd, a, pool)
		})
	},
}

var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "Show trending tags",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *App) error {
			pool, err := a.News.MasterPool(ctx)
			if err != nil {
				return err
			}
			if flagTagsSource != "" {
				if pool, err = a.News.SourcePool(ctx, flagTagsSource); err != nil {
					return err
				}
			}
			entries, err := a.News.TrendingTags(ctx, pool, flagTagsUnread)
			if err != nil {
				return err
			}
			if flagJSON {
				return writeJSON(cmd, entries)
			}
			printTags(cmd.OutOrStdout(), entries)
			return nil
		})
	},
}

var summarizeCmd = &cobra.Command{
	Use:   "summarize <url>",
	Short: "Summarize a full article with Gemini",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *App) error {
			summary, err := a.News.Summarize(ctx, args[0])
			if err != nil {
				return err
			}
			if flagJSON {
				return writeJSON(cmd, summary)
			}
			fmt.Fprintln(cmd.OutOrStdout(), summary.Text())
			return nil
		})
	},
}

var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Send the largest stories to the Telegram channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *App) error {
			if err := a.SendDigest(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Digest sent.")
			return nil
		})
	},
}

func init() {
	refreshCmd.Flags().BoolVar(&flagForce, "force", false, "drop per-source caches before fetching")

	for _, c := range []*cobra.Command{masterCmd, sourceCmd} {
		c.Flags().BoolVar(&flagView.UnreadOnly, "unread", false, "hide stories already read")
		c.Flags().StringVarP(&flagView.Search, "search", "s", "", "filter titles; prefix a term with - to exclude it")
		c.Flags().BoolVar(&flagView.ClustersFirst, "clusters-first", false, "list multi-source stories first")
		c.Flags().IntVar(&flagView.Page, "page", 1, "page number")
		c.Flags().IntVar(&flagView.PerPage, "per-page", news.DefaultPerPage, "stories per page")
	}
	tagsCmd.Flags().BoolVar(&flagTagsUnread, "unread", false, "count unread stories only")
	tagsCmd.Flags().StringVar(&flagTagsSource, "source", "", "restrict to one source id")

	for _, c := range []*cobra.Command{refreshCmd, masterCmd, sourceCmd, tagsCmd, summarizeCmd} {
		c.Flags().BoolVar(&flagJSON, "json", false, "print JSON")
	}
}

func showPool(ctx context.Context, cmd *cobra.Command, a *App, pool models.ClusterPool) error {
	page, err := a.News.View(ctx, pool, flagView)
	if err != nil {
		return err
	}
	if flagJSON {
		return writeJSON(cmd, page)
	}
	printPage(cmd.OutOrStdout(), page)
	return nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
