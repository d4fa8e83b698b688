package find_node

import (
	"context"
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/msbuildls/pkg/document"
	"github.com/walteh/msbuildls/pkg/lsp"
	"github.com/walteh/msbuildls/pkg/position"
)

var ErrInvalidPosition = errors.New("invalid position")

type Handler struct {
	file string
	pos  position.Position

	fs  afero.Fs
	out io.Writer
}

func NewFindNodeCommand() *cobra.Command {
	me := &Handler{}

	cmd := &cobra.Command{
		Use:   "find-node [file] [line:col]",
		Short: "describe what is at a one-based line and column of a project file",
	}

	cmd.Args = cobra.ExactArgs(2)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		pos, err := ParsePosition(args[1])
		if err != nil {
			return err
		}
		me.file = args[0]
		me.pos = pos
		me.fs = afero.NewOsFs()
		me.out = cmd.OutOrStdout()
		return me.Run(cmd.Context())
	}

	return cmd
}

// ParsePosition reads a one-based "line:col" pair.
func ParsePosition(s string) (position.Position, error) {
	lineStr, colStr, ok := strings.Cut(s, ":")
	if !ok {
		return position.Position{}, errors.Errorf("%w: %q is not line:col", ErrInvalidPosition, s)
	}
	line, err := strconv.Atoi(lineStr)
	if err != nil || line < 1 {
		return position.Position{}, errors.Errorf("%w: line %q", ErrInvalidPosition, lineStr)
	}
	col, err := strconv.Atoi(colStr)
	if err != nil || col < 1 {
		return position.Position{}, errors.Errorf("%w: column %q", ErrInvalidPosition, colStr)
	}
	return position.NewPosition(line, col), nil
}

func (me *Handler) Run(ctx context.Context) error {
	mgr := document.NewManager(document.WithFs(me.fs))

	snap, err := mgr.Snapshot(ctx, me.file)
	if err != nil {
		return errors.Errorf("loading %s: %w", me.file, err)
	}

	enc := json.NewEncoder(me.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(lsp.NodeAt(ctx, snap, me.pos, lsp.Mapper{Encoding: lsp.EncodingUTF8})); err != nil {
		return errors.Errorf("encoding result: %w", err)
	}
	return nil
}
