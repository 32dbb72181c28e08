package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wfpaisa/plane-bookmarks/internal/client"
	"github.com/wfpaisa/plane-bookmarks/internal/domain/tree"
)

var getCmd = &cobra.Command{
	Use:     "get",
	GroupID: "read",
	Short:   "Print the bookmark forest",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()

		f, rev, err := restClient().Get(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), f)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "revision %d\n", rev)
		renderForest(cmd.OutOrStdout(), f)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:     "stats",
	GroupID: "read",
	Short:   "Count bookmarks, folders and this month's additions",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()

		s, err := restClient().Stats(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), s)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "total:      %d\n", s.Total)
		fmt.Fprintf(out, "folders:    %d\n", s.Folders)
		fmt.Fprintf(out, "bookmarks:  %d\n", s.Bookmarks)
		fmt.Fprintf(out, "this month: %d\n", s.MonthlyAdded)
		fmt.Fprintf(out, "tags:       %d\n", s.Tags)
		return nil
	},
}

var tagsCmd = &cobra.Command{
	Use:     "tags",
	GroupID: "read",
	Short:   "List every tag in use",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()

		tags, err := restClient().Tags(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), tags)
		}
		for _, tag := range tags {
			fmt.Fprintln(cmd.OutOrStdout(), tag)
		}
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:     "search [term]",
	GroupID: "read",
	Short:   "Find bookmarks by name, url or tag",
	Long: `Find nodes whose name, url or tags contain term (case-insensitive).

--glob matches the url against a doublestar pattern, --tag requires an exact
tag. All given criteria must hold.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		glob, _ := cmd.Flags().GetString("glob")
		tag, _ := cmd.Flags().GetString("tag")
		q := tree.Query{URLGlob: glob, Tag: tag}
		if len(args) == 1 {
			q.Term = args[0]
		}

		ctx, cancel := requestContext(cmd)
		defer cancel()

		matches, err := restClient().Search(ctx, q)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), matches)
		}
		renderMatches(cmd.OutOrStdout(), matches)
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:     "watch",
	GroupID: "read",
	Short:   "Follow the forest live over the websocket",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		wsURL, err := websocketURL(serverURL)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		dialCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		s, err := client.Dial(dialCtx, client.Options{
			URL: wsURL,
			OnUpdate: func(rev uint64, f tree.Forest) {
				if jsonOutput {
					_ = printJSON(out, f)
					return
				}
				fmt.Fprintf(out, "── revision %d, %d nodes\n", rev, f.Count())
				renderForest(out, f)
			},
			OnStatus: func(up bool) {
				if !up {
					fmt.Fprintln(cmd.ErrOrStderr(), "connection lost, reconnecting...")
				}
			},
		})
		if err != nil {
			return err
		}
		defer s.Close()

		<-ctx.Done()
		return nil
	},
}

func init() {
	searchCmd.Flags().String("glob", "", "URL pattern, e.g. 'https://*.dev/**'")
	searchCmd.Flags().String("tag", "", "Exact tag")

	rootCmd.AddCommand(getCmd, statsCmd, tagsCmd, searchCmd, watchCmd)
}
