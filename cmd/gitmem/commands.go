package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/gitmem/internal/memory"
)

func newCaptureCmd(opts *globalOptions) *cobra.Command {
	var req memory.CaptureRequest

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture a memory",
		Long: `Capture a memory into a namespace. The text is scrubbed of secrets, indexed
and recorded as a git note on HEAD.

Examples:
  gitmem capture -n decisions -s "Use Postgres for the event store"
  gitmem capture -n facts -s "Staging DB host" -c "db.staging.internal:5432" -t infra,db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req.Tags = cleanTags(req.Tags)
			return withApp(cmd.Context(), opts, func(a *app) error {
				id, err := a.svc.Capture(cmd.Context(), req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Captured: %s\n", id)
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVarP(&req.Namespace, "namespace", "n", "", "namespace to capture into")
	f.StringVarP(&req.Summary, "summary", "s", "", "one-line summary (embedded for search)")
	f.StringVarP(&req.Content, "content", "c", "", "longer body")
	f.StringSliceVarP(&req.Tags, "tags", "t", nil, "comma separated tags")
	f.StringVarP(&req.FilePath, "file", "f", "", "file the memory is about")
	_ = cmd.MarkFlagRequired("namespace")
	_ = cmd.MarkFlagRequired("summary")
	return cmd
}

// cleanTags trims flag values and drops empty ones, so "-t db, ops," gives [db ops].
func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func newSearchCmd(opts *globalOptions) *cobra.Command {
	var (
		req   memory.SearchRequest
		floor float64
	)

	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Search memories by meaning",
		Example: `  gitmem search "which database did we pick"
  gitmem search -n decisions -k 3 --min-similarity 0.3 "event store"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Query = args[0]
			if cmd.Flags().Changed("min-similarity") {
				req.MinSimilarity = &floor
			}
			return withApp(cmd.Context(), opts, func(a *app) error {
				results, err := a.svc.Search(cmd.Context(), req)
				if err != nil {
					return err
				}
				printResults(cmd.OutOrStdout(), results)
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVarP(&req.Namespace, "namespace", "n", "", "restrict to one namespace")
	f.IntVarP(&req.K, "k", "k", memory.DefaultK, "maximum results")
	f.Float64Var(&floor, "min-similarity", memory.DefaultMinSimilarity, "drop results below this similarity")
	return cmd
}

func printResults(w io.Writer, results []memory.Result) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No memories found")
		return
	}
	for i, r := range results {
		fmt.Fprintf(w, "%d. [%s] %s\n", i+1, r.Memory.Namespace, r.Memory.Summary)
		fmt.Fprintf(w, "   Similarity: %.2f%%\n", r.Similarity*100)
	}
}

func newSyncCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "sync",
		Aliases: []string{"reconcile"},
		Short:   "Rebuild the index from git notes",
		Long: `Replay every memory recorded in git notes into the local index. Memories
already indexed are skipped, so running sync twice is harmless.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				n, err := a.svc.Reconcile(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Synced %d memories from git notes\n", n)
				return nil
			})
		},
	}
}

func newGetCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Print one memory as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				m, err := a.svc.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if m == nil {
					return fmt.Errorf("memory %s not found", args[0])
				}
				return writeJSON(cmd.OutOrStdout(), m)
			})
		},
	}
}

func newStatsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				st, err := a.svc.Stats(cmd.Context())
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "Memories:   %d\n", st.Memories)
				fmt.Fprintf(w, "Backend:    %s\n", st.Backend)
				fmt.Fprintf(w, "Model:      %s (%d dims)\n", st.Model, st.Dimension)
				fmt.Fprintf(w, "Namespaces: %s\n", strings.Join(st.Namespaces, ", "))
				return nil
			})
		},
	}
}

func newScrubCmd(opts *globalOptions) *cobra.Command {
	var showFindings bool

	cmd := &cobra.Command{
		Use:   "scrub [file]",
		Short: "Preview secret redaction on a file or stdin",
		Long: `Print the input with every detected secret replaced by a redaction marker.
Nothing is captured.

Examples:
  gitmem scrub .env
  cat output.log | gitmem scrub -`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			redactor, err := newRedactor(cfg)
			if err != nil {
				return err
			}

			res := redactor.Redact(string(content))
			fmt.Fprint(cmd.OutOrStdout(), res.Redacted)
			if showFindings {
				fmt.Fprintf(cmd.ErrOrStderr(), "%d findings\n", len(res.Findings))
				for rule, n := range res.ByRule {
					fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %d\n", rule, n)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showFindings, "findings", false, "report findings per rule on stderr")
	return cmd
}

func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	var (
		content []byte
		err     error
	)
	if len(args) == 0 || args[0] == "-" {
		content, err = io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		content, err = os.ReadFile(args[0])
		if err != nil {
			return nil, fmt.Errorf("failed to read file %s: %w", args[0], err)
		}
	}
	if len(content) == 0 {
		return nil, errors.New("no content to scrub")
	}
	return content, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
