package cmd

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/flashgrep/flashgrep/internal/rpc"
)

func newMCPCmd() *cobra.Command {
	var (
		path string
		port int
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the JSON-RPC tool surface over TCP (§4.L)",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo(path)
			if err != nil {
				return err
			}
			defer r.Close()

			addr := rpc.ListenAddr(port)
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", addr, err)
			}
			defer ln.Close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			writer().Success(fmt.Sprintf("serving JSON-RPC on %s", addr))
			return rpc.NewServer(r.handler()).ListenAndServe(ctx, ln)
		},
	}

	cmd.Flags().StringVar(&path, "path", ".", "Repository root (defaults to CWD)")
	cmd.Flags().IntVar(&port, "port", 7777, "TCP port to listen on")
	return cmd
}

func newMCPStdioCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "mcp-stdio",
		Short: "Serve the JSON-RPC tool surface over stdio (§4.L)",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo(path)
			if err != nil {
				return err
			}
			defer r.Close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			// Nothing else may write to stdout during this call: the line
			// protocol owns it exclusively.
			rpc.NewServer(r.handler()).ServeStdio(ctx, os.Stdin, os.Stdout)
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", ".", "Repository root (defaults to CWD)")
	return cmd
}
