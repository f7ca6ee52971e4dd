package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newFilesCmd() *cobra.Command {
	var (
		path         string
		filter       string
		limit        int
		outputFormat string
	)

	cmd := &cobra.Command{
		Use:   "files",
		Short: "List indexed files (§4.B list_files)",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo(path)
			if err != nil {
				return err
			}
			defer r.Close()

			result, mErr := r.handler().Dispatch(cmd.Context(), "list_files", map[string]any{
				"filter": filter,
				"limit":  limit,
			})
			if mErr != nil {
				return fmt.Errorf("%s: %s", mErr.Error, mErr.Message)
			}

			return renderOutput(cmd.OutOrStdout(), outputFormat, result, func(w io.Writer, v any) {
				body := v.(map[string]any)
				for _, entry := range body["results"].([]map[string]any) {
					fmt.Fprintf(w, "%-60s %8d bytes  %s\n", entry["path"], entry["size"], entry["language"])
				}
				fmt.Fprintf(w, "(%v files)\n", body["total"])
			})
		},
	}

	cmd.Flags().StringVar(&path, "path", ".", "Repository root (defaults to CWD)")
	cmd.Flags().StringVar(&filter, "filter", "", "Substring filter on file path")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of files (0 = unbounded)")
	cmd.Flags().StringVar(&outputFormat, "output", "text", "Output format: text or json")
	return cmd
}
