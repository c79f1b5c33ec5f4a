package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"
)

func newDocsCmd() *cobra.Command {
	var dir, format string

	cmd := &cobra.Command{
		Use:    "gen-docs",
		Short:  "Generate prsync man pages or markdown reference",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}

			root := cmd.Root()
			root.DisableAutoGenTag = true
			switch format {
			case "man":
				return doc.GenManTree(root, &doc.GenManHeader{
					Title:   "PRSYNC",
					Section: "1",
					Source:  "prsync " + version,
					Manual:  "prsync manual",
				}, dir)
			case "markdown":
				return doc.GenMarkdownTree(root, dir)
			case "rest":
				return doc.GenReSTTree(root, dir)
			default:
				return fmt.Errorf("unknown format %q (use man, markdown or rest)", format)
			}
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "docs", "output directory")
	cmd.Flags().StringVar(&format, "format", "man", "output format: man, markdown or rest")
	return cmd
}
