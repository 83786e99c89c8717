package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/deusflow/newspulse/internal/library"
	"github.com/deusflow/newspulse/internal/models"
	"github.com/deusflow/newspulse/internal/tags"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage the feed list",
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured sources in priority order",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(_ context.Context, a *App) error {
			printSources(cmd.OutOrStdout(), a.News.Sources())
			return nil
		})
	},
}

var sourcesAddCmd = &cobra.Command{
	Use:   "add <name> <url>",
	Short: "Validate a feed and append it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *App) error {
			src, err := a.News.AddSource(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s).\n", src.Name, src.ID())
			return nil
		})
	},
}

var sourcesRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Delete a source and its cached items",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *App) error {
			return a.News.RemoveSource(ctx, args[0])
		})
	},
}

func toggleCmd(use string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: strings.ToUpper(use[:1]) + use[1:] + " a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *App) error {
				return a.News.SetSourceEnabled(ctx, args[0], enabled)
			})
		},
	}
}

var sourcesMoveCmd = &cobra.Command{
	Use:   "move <id> <delta>",
	Short: "Shift a source up (negative) or down (positive)",
	Long: `Shift a source in the list. When the same link appears in several feeds
the earlier source owns it.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		delta, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid delta %q: %w", args[1], err)
		}
		return withApp(cmd, func(ctx context.Context, a *App) error {
			if err := a.News.MoveSource(ctx, args[0], delta); err != nil {
				return err
			}
			printSources(cmd.OutOrStdout(), a.News.Sources())
			return nil
		})
	},
}

var tagListsCmd = &cobra.Command{
	Use:   "tag-lists",
	Short: "Show or edit the include and exclude tag lists",
}

var tagListsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print both lists",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *App) error {
			include, exclude, err := a.News.TagLists(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "include: %s\nexclude: %s\n", strings.Join(include, ", "), strings.Join(exclude, ", "))
			return nil
		})
	},
}

var flagReplace bool

var tagListsEditCmd = &cobra.Command{
	Use:   "edit <include|exclude> <edit>",
	Short: `Edit a list, e.g. "+Climate Summit, -Reuters"`,
	Long: `Apply a smart edit: comma separated items, "-item" removes, "+item" or a
bare item adds. With --replace the argument becomes the whole list.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := tags.ParseKind(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *App) error {
			var list []string
			if flagReplace {
				add, _ := tags.ParseEdit(args[1])
				list, err = a.News.ReplaceTags(ctx, kind, add)
			} else {
				list, err = a.News.EditTags(ctx, kind, args[1])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", kind, strings.Join(list, ", "))
			return nil
		})
	},
}

var flagUndo, flagAll bool

var readCmd = &cobra.Command{
	Use:   "read [link...]",
	Short: "Mark stories read",
	Long:  "Mark links read, --undo to mark them unread, or --all to mark the whole master pool read.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *App) error {
			switch {
			case flagAll:
				pool, err := a.News.MasterPool(ctx)
				if err != nil {
					return err
				}
				return a.News.MarkAllRead(ctx, pool)
			case flagUndo:
				return a.News.MarkUnread(ctx, args...)
			default:
				return a.News.MarkRead(ctx, args...)
			}
		})
	},
}

// libraryCmd builds the bookmark and favorite commands. Saving snapshots the
// article from the master pool when the link is known.
func libraryCmd(use, list string) *cobra.Command {
	var remove bool
	cmd := &cobra.Command{
		Use:   use + " [link...]",
		Short: "Save links to " + list + ", or list them",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := library.ParseList(list)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *App) error {
				switch {
				case len(args) == 0:
					entries, err := a.News.Saved(ctx, l)
					if err != nil {
						return err
					}
					for _, e := range entries {
						fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n      %s\n", e.SavedAt.Format("2006-01-02"), e.Title, e.Link)
					}
					return nil
				case remove:
					return a.News.Unsave(ctx, l, args...)
				default:
					articles, err := snapshot(ctx, a, args)
					if err != nil {
						return err
					}
					return a.News.Save(ctx, l, articles...)
				}
			})
		},
	}
	cmd.Flags().BoolVar(&remove, "remove", false, "remove the links instead")
	return cmd
}

func snapshot(ctx context.Context, a *App, links []string) ([]models.Article, error) {
	pool, err := a.News.MasterPool(ctx)
	if err != nil {
		return nil, err
	}
	known := make(map[string]models.Article)
	for _, art := range pool.Articles() {
		known[art.Link] = art
	}
	out := make([]models.Article, 0, len(links))
	for _, link := range links {
		art, ok := known[link]
		if !ok {
			art = models.Article{Title: link, Link: link}
		}
		out = append(out, art)
	}
	return out, nil
}

func init() {
	sourcesCmd.AddCommand(sourcesListCmd, sourcesAddCmd, sourcesRemoveCmd,
		toggleCmd("enable", true), toggleCmd("disable", false), sourcesMoveCmd)

	tagListsEditCmd.Flags().BoolVar(&flagReplace, "replace", false, "replace the whole list")
	tagListsCmd.AddCommand(tagListsShowCmd, tagListsEditCmd)

	readCmd.Flags().BoolVar(&flagUndo, "undo", false, "mark the links unread")
	readCmd.Flags().BoolVar(&flagAll, "all", false, "mark every story in the master pool read")
}
