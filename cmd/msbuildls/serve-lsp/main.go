package serve_lsp

import (
	"context"
	"os"

	"github.com/creachadair/jrpc2"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/msbuildls/pkg/config"
	"github.com/walteh/msbuildls/pkg/lsp"
)

type Handler struct {
	forwardLogs bool
	version     string
}

func NewServeLSPCommand() *cobra.Command {
	me := &Handler{}

	cmd := &cobra.Command{
		Use:   "serve-lsp",
		Short: "start the language server on stdin and stdout",
	}

	cmd.Flags().BoolVar(&me.forwardLogs, "forward-logs", false, "send log records to the client as window/logMessage")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		me.version = cmd.Root().Version
		return me.Run(cmd.Context())
	}

	return cmd
}

func (me *Handler) Run(ctx context.Context) error {
	server := lsp.NewServerFromConfig(config.FromContext(ctx), afero.NewOsFs(),
		lsp.WithLogForwarding(me.forwardLogs),
		lsp.WithVersion(me.version),
	)

	opts := &jrpc2.ServerOptions{
		RPCLog: lsp.RPCLogger{},
	}

	if err := server.Serve(ctx, os.Stdin, os.Stdout, opts); err != nil {
		return errors.Errorf("error running language server: %w", err)
	}

	return nil
}
