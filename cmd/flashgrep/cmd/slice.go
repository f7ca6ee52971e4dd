package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
)

func newSliceCmd() *cobra.Command {
	var (
		path         string
		outputFormat string
	)

	cmd := &cobra.Command{
		Use:   "slice <file> <start> <end>",
		Short: "Read a bounded slice of a file's lines (§4.L read_code)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid start line %q: %w", args[1], err)
			}
			end, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid end line %q: %w", args[2], err)
			}

			r, err := openRepo(path)
			if err != nil {
				return err
			}
			defer r.Close()

			result, mErr := r.handler().Dispatch(cmd.Context(), "read_code", map[string]any{
				"file_path":  args[0],
				"start_line": start,
				"end_line":   end,
			})
			if mErr != nil {
				return fmt.Errorf("%s: %s", mErr.Error, mErr.Message)
			}

			return renderOutput(cmd.OutOrStdout(), outputFormat, result, func(w io.Writer, v any) {
				body := v.(map[string]any)
				fmt.Fprintf(w, "%s:%v-%v (truncated=%v)\n", body["file_path"], body["start_line"], body["end_line"], body["truncated"])
				fmt.Fprintln(w, body["content"])
			})
		},
	}

	cmd.Flags().StringVar(&path, "path", ".", "Repository root (defaults to CWD)")
	cmd.Flags().StringVar(&outputFormat, "output", "text", "Output format: text or json")
	return cmd
}
