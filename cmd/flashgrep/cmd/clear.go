package cmd

import (
	"github.com/spf13/cobra"
)

func newClearCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all indexed content while keeping configuration (§4.G ClearIndex)",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo(path)
			if err != nil {
				return err
			}
			defer r.Close()

			eng, err := r.engine()
			if err != nil {
				return err
			}

			if err := eng.ClearIndex(cmd.Context()); err != nil {
				return err
			}

			writer().Success("index cleared")
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", ".", "Repository root (defaults to CWD)")
	return cmd
}
