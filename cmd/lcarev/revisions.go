package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hylla/lcarev/internal/app"
	"github.com/hylla/lcarev/internal/revision"
	"github.com/sanity-io/litter"
	"github.com/spf13/cobra"
)

// newLogCommand walks the revision chain from the head.
func newLogCommand(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show revision history from the head towards the root",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withRuntime("log", func(env *runtimeEnv) error {
				history, err := env.svc.History(cmd.Context(), limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(history) == 0 {
					_, err := fmt.Fprintln(out, labelStyle.Render("no revisions on "+env.svc.HeadName()))
					return err
				}
				for _, rev := range history {
					if err := printRevision(out, rev); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of revisions to show (0 for all)")
	return cmd
}

// newRevisionCommand groups revision inspection subcommands.
func newRevisionCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revision",
		Short: "Inspect stored revisions",
	}

	var show showFlags
	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print one revision in its wire form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := revision.ParseID(args[0])
			if err != nil {
				return err
			}
			return opts.withRuntime("revision show", func(env *runtimeEnv) error {
				rev, err := env.svc.Revision(cmd.Context(), id)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if show.dump {
					_, err := io.WriteString(out, litter.Sdump(rev)+"\n")
					return err
				}
				encoded, err := revision.Encode(rev)
				if err != nil {
					return err
				}
				var indented bytes.Buffer
				if err := json.Indent(&indented, encoded, "", "  "); err != nil {
					return err
				}
				indented.WriteByte('\n')
				_, err = out.Write(indented.Bytes())
				return err
			})
		},
	}
	show.bind(showCmd)

	head := &cobra.Command{
		Use:   "head",
		Short: "Print the current head revision id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withRuntime("revision head", func(env *runtimeEnv) error {
				id, err := env.svc.Head(cmd.Context())
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", env.svc.HeadName(), id)
				return err
			})
		},
	}

	cmd.AddCommand(showCmd, head)
	return cmd
}

// newExportCommand writes the revision chain as a bundle.
func newExportCommand(opts *rootOptions) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the revision chain from head to root as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withRuntime("export", func(env *runtimeEnv) error {
				bundle, err := env.svc.ExportRevisions(cmd.Context())
				if err != nil {
					return err
				}
				encoded, err := json.MarshalIndent(bundle, "", "  ")
				if err != nil {
					return fmt.Errorf("encode export bundle: %w", err)
				}
				encoded = append(encoded, '\n')
				if outPath = strings.TrimSpace(outPath); outPath == "" || outPath == "-" {
					_, err = cmd.OutOrStdout().Write(encoded)
					return err
				}
				if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
					return fmt.Errorf("create export dir: %w", err)
				}
				if err := os.WriteFile(outPath, encoded, 0o644); err != nil {
					return fmt.Errorf("write export file: %w", err)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "exported %d revisions to %s\n", len(bundle.Revisions), outPath)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "-", "output file path (- for stdout)")
	return cmd
}

// newImportCommand replays a bundle onto the local head.
func newImportCommand(opts *rootOptions) *cobra.Command {
	var inPath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Replay an exported revision bundle onto the local head",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			inPath = strings.TrimSpace(inPath)
			if inPath == "" {
				return fmt.Errorf("--in is required")
			}
			var (
				content []byte
				err     error
			)
			if inPath == "-" {
				content, err = io.ReadAll(cmd.InOrStdin())
			} else {
				content, err = os.ReadFile(inPath)
			}
			if err != nil {
				return fmt.Errorf("read import file: %w", err)
			}
			var bundle app.RevisionBundle
			if err := json.Unmarshal(content, &bundle); err != nil {
				return fmt.Errorf("decode import file: %w", err)
			}
			return opts.withRuntime("import", func(env *runtimeEnv) error {
				res, err := env.svc.ImportRevisions(cmd.Context(), bundle)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "applied %d revisions, skipped %d\n", res.Applied, res.Skipped)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&inPath, "in", "", "bundle file path (- for stdin)")
	return cmd
}
