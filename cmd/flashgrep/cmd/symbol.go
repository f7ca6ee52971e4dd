package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newSymbolCmd() *cobra.Command {
	var (
		path         string
		limit        int
		outputFormat string
	)

	cmd := &cobra.Command{
		Use:   "symbol <name>",
		Short: "Look up a symbol by name (§4.F/§4.B get_symbol)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo(path)
			if err != nil {
				return err
			}
			defer r.Close()

			result, mErr := r.handler().Dispatch(cmd.Context(), "get_symbol", map[string]any{
				"name": args[0],
			})
			if mErr != nil {
				return fmt.Errorf("%s: %s", mErr.Error, mErr.Message)
			}

			return renderOutput(cmd.OutOrStdout(), outputFormat, result, func(w io.Writer, v any) {
				body := v.(map[string]any)
				results := body["results"].([]map[string]any)
				if limit > 0 && len(results) > limit {
					results = results[:limit]
				}
				for _, entry := range results {
					fmt.Fprintf(w, "%-8s %-40s line %v\n", entry["symbol_type"], entry["file_path"], entry["line_number"])
				}
				fmt.Fprintf(w, "(%d symbols named %q)\n", len(results), args[0])
			})
		},
	}

	cmd.Flags().StringVar(&path, "path", ".", "Repository root (defaults to CWD)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of matches (0 = unbounded)")
	cmd.Flags().StringVar(&outputFormat, "output", "text", "Output format: text or json")
	return cmd
}
