package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bamsammich/magicmount/internal/config"
	"github.com/bamsammich/magicmount/internal/module"
	"github.com/bamsammich/magicmount/internal/mount"
)

func newScanCmd(opts *options) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "List the modules that would be mounted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			modules := module.Scan(opts.ModuleDir, opts.Partitions)
			return printModules(cmd.OutOrStdout(), modules, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print modules as JSON")
	return cmd
}

func printModules(w io.Writer, modules []module.Info, asJSON bool) error {
	if asJSON {
		if modules == nil {
			modules = []module.Info{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(modules)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tVERSION\tAUTHOR")
	for _, m := range modules {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.ID, m.Name, m.Version, m.Author)
	}
	return tw.Flush()
}

func newTreeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "tree",
		Short: "Print the merged module tree without mounting anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tree, err := mount.BuildTree(mount.RunConfig{
				ModuleDir:  opts.ModuleDir,
				Partitions: opts.Partitions,
			})
			if err != nil {
				return err
			}
			return printTree(cmd.OutOrStdout(), tree)
		},
	}
}

func printTree(w io.Writer, tree *module.Node) error {
	if tree == nil {
		_, err := fmt.Fprintln(w, "no modules to mount")
		return err
	}

	digest := tree.Digest()
	fmt.Fprint(w, tree.String())
	fmt.Fprintf(w, "digest: %s\n", digest)

	state, err := config.ReadState()
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		fmt.Fprintf(w, "last run: unreadable (%v)\n", err)
	case state.Digest == digest:
		fmt.Fprintf(w, "last run: %s, unchanged\n", state.MountedAt.Format("2006-01-02 15:04:05"))
	default:
		fmt.Fprintf(w, "last run: %s, changed since\n", state.MountedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func newGenConfigCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "gen-config",
		Short: "Write an example config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.Default().Save(output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config written to %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", config.DefaultPath, "output path")
	return cmd
}

func newShowConfigCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show-config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprint(cmd.OutOrStdout(), opts.Config.String())
			return err
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "magicmount %s\n", version)
		},
	}
}
