package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/flashgrep/flashgrep/internal/query"
)

func newQueryCmd() *cobra.Command {
	var (
		path          string
		limit         int
		outputFormat  string
		mode          string
		caseSensitive bool
		contextLines  int
		offset        int
	)

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Search the indexed repository (§4.K)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo(path)
			if err != nil {
				return err
			}
			defer r.Close()

			resp, err := r.planner().Run(cmd.Context(), query.Options{
				Text:          args[0],
				Limit:         limit,
				Mode:          query.Mode(mode),
				CaseSensitive: caseSensitive,
				Context:       contextLines,
				Offset:        offset,
			})
			if err != nil {
				return err
			}

			return renderOutput(cmd.OutOrStdout(), outputFormat, resp, func(w io.Writer, v any) {
				r := v.(*query.Response)
				for _, res := range r.Results {
					fmt.Fprintf(w, "%s:%d-%d  score=%.3f\n", res.FilePath, res.StartLine, res.EndLine, res.RelevanceScore)
					fmt.Fprintln(w, indentLines(res.Preview))
				}
				fmt.Fprintf(w, "(%d results, scanned %d, truncated=%v)\n", len(r.Results), r.ScannedFiles, r.Truncated)
			})
		},
	}

	cmd.Flags().StringVar(&path, "path", ".", "Repository root (defaults to CWD)")
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of results")
	cmd.Flags().StringVar(&outputFormat, "output", "text", "Output format: text or json")
	cmd.Flags().StringVar(&mode, "mode", "smart", "Query mode: smart, literal, or regex")
	cmd.Flags().BoolVar(&caseSensitive, "case-sensitive", false, "Case-sensitive matching")
	cmd.Flags().IntVar(&contextLines, "context", 0, "Lines of context around each preview")
	cmd.Flags().IntVar(&offset, "offset", 0, "Result offset for pagination")
	return cmd
}

func indentLines(s string) string {
	out := "  "
	for _, r := range s {
		out += string(r)
		if r == '\n' {
			out += "  "
		}
	}
	return out
}
