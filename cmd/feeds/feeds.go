package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"feeds_reader/internal/session"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List subscriptions",
	Args:    cobra.NoArgs,
	RunE:    runList,
}

var addCmd = &cobra.Command{
	Use:   "add <url> [name]",
	Short: "Subscribe to a feed",
	Long: `Subscribe to a feed. The name defaults to the host of the URL.

Examples:
  feeds add https://go.dev/blog/feed.atom "Go Blog"
  feeds add --update https://devops.example.com/rss`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runAdd,
}

var removeCmd = &cobra.Command{
	Use:     "remove <name>",
	Aliases: []string{"rm"},
	Short:   "Unsubscribe and delete the stored items",
	Args:    cobra.ExactArgs(1),
	RunE:    runRemove,
}

var renameCmd = &cobra.Command{
	Use:   "rename <old> <new>",
	Short: "Rename a feed and move its folder",
	Args:  cobra.ExactArgs(2),
	RunE:  runRename,
}

var updateCmd = &cobra.Command{
	Use:   "update [name...]",
	Short: "Fetch feeds now",
	Long:  "Fetch the named feeds, or every feed when no name is given.",
	RunE:  runUpdate,
}

var itemsCmd = &cobra.Command{
	Use:   "items <name>",
	Short: "List the items of a feed",
	Args:  cobra.ExactArgs(1),
	RunE:  runItems,
}

var readAllCmd = &cobra.Command{
	Use:   "read-all <name>",
	Short: "Mark every item of a feed as read",
	Args:  cobra.ExactArgs(1),
	RunE:  runReadAll,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search stored items",
	Long: `Search titles, authors, content and categories of stored items.

Plain words must appear, -word must not appear and /expr/ is a
case-insensitive regular expression.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show feed and item counts",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var maintainCmd = &cobra.Command{
	Use:   "maintain <name> <operation>",
	Short: "Shrink a feed's stored items",
	Long: `Run a maintenance operation on one feed. Operations:
  purge-deleted   drop items marked deleted
  purge-all       drop every item
  purge-old-half  keep the newest half of the items
  dedupe          drop items whose link repeats an earlier item
  strip-content   blank content and author of every item
  strip-old       blank content and author of the oldest items`,
	Args: cobra.ExactArgs(2),
	RunE: runMaintain,
}

func init() {
	rootCmd.AddCommand(listCmd, addCmd, removeCmd, renameCmd, updateCmd,
		itemsCmd, readAllCmd, searchCmd, statsCmd, maintainCmd)

	listCmd.Flags().Bool("json", false, "output as JSON")
	addCmd.Flags().Bool("update", false, "fetch the feed right away")
	itemsCmd.Flags().Bool("unread", false, "only unread items")
	itemsCmd.Flags().Int("limit", 20, "maximum number of items")
	searchCmd.Flags().String("feed", "", "restrict to one feed")
	searchCmd.Flags().Int("limit", 20, "maximum number of results")
	statsCmd.Flags().Bool("json", false, "output as JSON")
}

var maintenance = map[string]func(*session.Session, context.Context, string) (int, error){
	"purge-deleted":  (*session.Session).PurgeDeleted,
	"purge-all":      (*session.Session).PurgeAll,
	"purge-old-half": (*session.Session).PurgeOldHalf,
	"dedupe":         (*session.Session).Deduplicate,
	"strip-content":  (*session.Session).RemoveContent,
	"strip-old":      (*session.Session).RemoveOldContent,
}

func runList(cmd *cobra.Command, _ []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	return withApp(cmd, func(_ context.Context, a *app) error {
		subs := a.session.Subscriptions()
		out := cmd.OutOrStdout()
		if asJSON {
			return writeJSON(out, subs)
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tUNREAD\tUPDATED\tURL")
		for _, s := range subs {
			updated := "never"
			if s.Updated > 0 {
				updated = time.UnixMilli(s.Updated).Format(time.DateTime)
			}
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", s.Name, s.Unread, updated, s.FeedURL)
		}
		return tw.Flush()
	})
}

func runAdd(cmd *cobra.Command, args []string) error {
	rawURL := args[0]
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid feed URL %q", rawURL)
	}
	name := u.Host
	if len(args) == 2 && strings.TrimSpace(args[1]) != "" {
		name = args[1]
	}
	fetch, _ := cmd.Flags().GetBool("update")

	return withApp(cmd, func(ctx context.Context, a *app) error {
		sub, err := a.session.Subscribe(ctx, name, rawURL)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Subscribed to %q (%s)\n", sub.Name, sub.Folder)
		if !fetch {
			return nil
		}
		rep, err := a.session.Update(ctx, sub.Name)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d items, %d unread\n", rep.Added, rep.Unread)
		return nil
	})
}

func runRemove(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		if err := a.session.Unsubscribe(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %q\n", args[0])
		return nil
	})
}

func runRename(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		if err := a.session.Rename(ctx, args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Renamed %q to %q\n", args[0], args[1])
		return nil
	})
}

func runUpdate(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		var reports []session.UpdateReport
		if len(args) == 0 {
			reports = a.session.UpdateAll(ctx)
		} else {
			for _, name := range args {
				rep, _ := a.session.Update(ctx, name)
				reports = append(reports, rep)
			}
		}

		failed := 0
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "FEED\tADDED\tUNREAD\tERROR")
		for _, r := range reports {
			msg := ""
			if r.Err != nil {
				failed++
				msg = r.Err.Error()
			}
			fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", r.Feed, r.Added, r.Unread, msg)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d feeds failed to update", failed, len(reports))
		}
		return nil
	})
}

func runItems(cmd *cobra.Command, args []string) error {
	unread, _ := cmd.Flags().GetBool("unread")
	limit, _ := cmd.Flags().GetInt("limit")
	return withApp(cmd, func(ctx context.Context, a *app) error {
		items, err := a.session.FeedItems(ctx, args[0], unread)
		if err != nil {
			return err
		}
		if limit > 0 && len(items) > limit {
			items = items[:limit]
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tFLAGS\tTITLE")
		for _, it := range items {
			flags := []byte("---")
			if it.Read.IsSet() {
				flags[0] = 'r'
			}
			if it.Downloaded.IsSet() {
				flags[1] = '*'
			}
			if it.Deleted.IsSet() {
				flags[2] = 'd'
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", it.ID, flags, it.Title)
		}
		return tw.Flush()
	})
}

func runReadAll(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		n, err := a.session.MarkAllRead(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Marked %d items as read\n", n)
		return nil
	})
}

func runSearch(cmd *cobra.Command, args []string) error {
	feed, _ := cmd.Flags().GetString("feed")
	limit, _ := cmd.Flags().GetInt("limit")
	q := strings.Join(args, " ")
	return withApp(cmd, func(ctx context.Context, a *app) error {
		results, err := a.session.Search(ctx, q, feed)
		if err != nil {
			return err
		}
		if limit > 0 && len(results) > limit {
			results = results[:limit]
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SCORE\tFEED\tID\tTITLE")
		for _, r := range results {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", r.Score, r.Feed, r.Item.ID, r.Item.Title)
		}
		return tw.Flush()
	})
}

func runStats(cmd *cobra.Command, _ []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	return withApp(cmd, func(ctx context.Context, a *app) error {
		st, err := a.session.Stats(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if asJSON {
			return writeJSON(out, st)
		}
		fmt.Fprintf(out, "Feeds: %d\nItems: %d\nUnread: %d\n", st.FeedCount, st.TotalItems, st.Unread)
		return nil
	})
}

func runMaintain(cmd *cobra.Command, args []string) error {
	op, ok := maintenance[args[1]]
	if !ok {
		return fmt.Errorf("unknown operation %q", args[1])
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		n, err := op(a.session, ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d items affected\n", args[1], n)
		return nil
	})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
