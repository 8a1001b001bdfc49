package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import-opml <file>",
	Short: "Subscribe to the feeds of an OPML file",
	Long:  "Subscribe to every feed of an OPML file. Feeds whose URL is already subscribed are skipped. Use - for stdin.",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

var exportCmd = &cobra.Command{
	Use:   "export-opml [file]",
	Short: "Write the subscriptions as OPML",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runExport,
}

func init() {
	rootCmd.AddCommand(importCmd, exportCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	var r io.Reader = cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open opml: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		res, err := a.session.ImportOPML(ctx, r)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d feeds, skipped %d\n", len(res.Added), len(res.Skipped))
		return nil
	})
}

func runExport(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(_ context.Context, a *app) error {
		if len(args) == 0 || args[0] == "-" {
			return a.session.ExportOPML(cmd.OutOrStdout())
		}
		f, err := os.Create(args[0])
		if err != nil {
			return fmt.Errorf("create opml: %w", err)
		}
		if err := a.session.ExportOPML(f); err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()
	})
}
