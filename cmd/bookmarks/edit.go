package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wfpaisa/plane-bookmarks/internal/client"
	"github.com/wfpaisa/plane-bookmarks/internal/domain/coordinator"
	"github.com/wfpaisa/plane-bookmarks/internal/domain/tree"
	"github.com/wfpaisa/plane-bookmarks/internal/infrastructure/storage"
)

// indexFlag returns the --index value, nil meaning append.
func indexFlag(cmd *cobra.Command) (*int, error) {
	if !cmd.Flags().Changed("index") {
		return nil, nil
	}
	index, _ := cmd.Flags().GetInt("index")
	if index < 0 {
		return nil, errors.New("--index must not be negative")
	}
	return &index, nil
}

// apply sends one intent and reports the result.
func apply(cmd *cobra.Command, in coordinator.Intent) error {
	ctx, cancel := requestContext(cmd)
	defer cancel()

	m, err := restClient().Apply(ctx, in)
	if err != nil {
		return err
	}
	return report(cmd, m)
}

func report(cmd *cobra.Command, m client.Mutation) error {
	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, m)
	}
	if m.ID != "" {
		fmt.Fprintf(out, "created %s\n", m.ID)
	}
	fmt.Fprintf(out, "saved revision %d (%d nodes)\n", m.Revision, m.Forest.Count())
	return nil
}

var saveCmd = &cobra.Command{
	Use:     "save FILE",
	GroupID: "edit",
	Short:   "Replace the whole forest with a JSON, YAML or TOML file",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := storage.LoadSeed(args[0])
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()

		m, err := restClient().Save(ctx, f)
		if err != nil {
			return err
		}
		return report(cmd, m)
	},
}

var clearCmd = &cobra.Command{
	Use:     "clear",
	GroupID: "edit",
	Short:   "Delete every bookmark",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			return errors.New("refusing to clear without --yes")
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()

		m, err := restClient().Clear(ctx)
		if err != nil {
			return err
		}
		return report(cmd, m)
	},
}

var moveCmd = &cobra.Command{
	Use:     "move ID...",
	GroupID: "edit",
	Short:   "Move nodes into a folder (or the root) at an index",
	Long: `Move one or more nodes, keeping their relative order.

The index counts positions in the destination after the moved nodes were
taken out. Without --to the nodes go to the root list; without --index they
are appended.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parent, _ := cmd.Flags().GetString("to")
		index, err := indexFlag(cmd)
		if err != nil {
			return err
		}
		return apply(cmd, coordinator.Intent{Op: coordinator.OpMove, IDs: args, ParentID: parent, Index: index})
	},
}

var renameCmd = &cobra.Command{
	Use:     "rename ID NAME",
	GroupID: "edit",
	Short:   "Rename a node",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return apply(cmd, coordinator.Intent{Op: coordinator.OpRename, ID: args[0], Name: args[1]})
	},
}

var insertCmd = &cobra.Command{
	Use:     "insert",
	GroupID: "edit",
	Short:   "Create an empty bookmark or folder",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		parent, _ := cmd.Flags().GetString("parent")
		kind, _ := cmd.Flags().GetString("kind")
		if _, ok := tree.ParseKind(kind); !ok {
			return fmt.Errorf("unknown kind %q (want bookmark or folder)", kind)
		}
		index, err := indexFlag(cmd)
		if err != nil {
			return err
		}
		return apply(cmd, coordinator.Intent{Op: coordinator.OpInsert, ParentID: parent, Kind: kind, Index: index})
	},
}

var updateCmd = &cobra.Command{
	Use:     "update ID",
	GroupID: "edit",
	Short:   "Edit the name, url, tags or icon of a node",
	Long: `Edit a node the way the edit dialog does.

Only the given flags change. The icon is kept unless --icon is passed; an
empty --icon removes it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()

		rest := restClient()
		f, _, err := rest.Get(ctx)
		if err != nil {
			return err
		}
		current, err := tree.Find(f, args[0])
		if err != nil {
			return err
		}

		flags := cmd.Flags()
		icon := current.Icon
		patch := tree.Fields{Icon: &icon}
		if flags.Changed("name") {
			name, _ := flags.GetString("name")
			patch.Name = &name
		}
		if flags.Changed("url") {
			u, _ := flags.GetString("url")
			patch.URL = &u
		}
		if flags.Changed("tags") {
			tags, _ := flags.GetStringSlice("tags")
			patch.Tags = &tags
		}
		if flags.Changed("icon") {
			icon, _ = flags.GetString("icon")
		}

		m, err := rest.Apply(ctx, coordinator.Intent{Op: coordinator.OpUpdate, ID: args[0], Fields: &patch})
		if err != nil {
			return err
		}
		return report(cmd, m)
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete ID...",
	GroupID: "edit",
	Aliases: []string{"rm"},
	Short:   "Delete nodes with everything inside them",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return apply(cmd, coordinator.Intent{Op: coordinator.OpDelete, IDs: args})
	},
}

var toggleCmd = &cobra.Command{
	Use:     "toggle ID",
	GroupID: "edit",
	Short:   "Open or close a folder",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return apply(cmd, coordinator.Intent{Op: coordinator.OpToggle, ID: args[0]})
	},
}

func init() {
	clearCmd.Flags().Bool("yes", false, "Confirm deleting everything")

	moveCmd.Flags().String("to", "", "Destination folder id (root when empty)")
	moveCmd.Flags().Int("index", 0, "Position in the destination (append when omitted)")

	insertCmd.Flags().String("parent", "", "Folder id (root when empty)")
	insertCmd.Flags().String("kind", "bookmark", "bookmark or folder")
	insertCmd.Flags().Int("index", 0, "Position in the parent (append when omitted)")

	updateCmd.Flags().String("name", "", "New name")
	updateCmd.Flags().String("url", "", "New url, empty removes it")
	updateCmd.Flags().StringSlice("tags", nil, "Replace the tags (comma separated)")
	updateCmd.Flags().String("icon", "", "New icon, empty removes it")

	rootCmd.AddCommand(saveCmd, clearCmd, moveCmd, renameCmd, insertCmd, updateCmd, deleteCmd, toggleCmd)
}
