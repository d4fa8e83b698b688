package lsp

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/creachadair/jrpc2"
	"github.com/rs/zerolog"

	"github.com/walteh/msbuildls/pkg/debug"
)

// Notifier sends a notification to the client. *jrpc2.Server implements it.
type Notifier interface {
	Notify(ctx context.Context, method string, params any) error
}

// LSPWriter implements io.Writer to redirect JSON log records to the client as
// window/logMessage notifications.
type LSPWriter struct {
	mu     sync.Mutex
	client Notifier
	ctx    context.Context
}

func NewLSPWriter(ctx context.Context, client Notifier) *LSPWriter {
	return &LSPWriter{client: client, ctx: ctx}
}

// ApplyLSPWriter returns ctx carrying a logger that forwards to client, at the level of
// the logger already in ctx.
func ApplyLSPWriter(ctx context.Context, client Notifier) context.Context {
	level := zerolog.Ctx(ctx).GetLevel()

	return zerolog.New(NewLSPWriter(ctx, client)).
		Level(level).
		Hook(debug.CustomTimeHook{WithColor: false}).
		Hook(debug.CustomCallerHook{WithColor: false}).
		WithContext(ctx)
}

func (w *LSPWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var entry map[string]any
	if err := json.Unmarshal(p, &entry); err != nil {
		return len(p), nil // skip malformed entries
	}

	level := stringField(entry, zerolog.LevelFieldName)
	params := LogMessageParams{
		Type:    ParseMessageTypeFromZerolog(level),
		Message: formatEntry(entry),
	}

	// the client may be gone already; logging must not fail the caller
	_ = w.client.Notify(w.ctx, "window/logMessage", params)
	return len(p), nil
}

func stringField(entry map[string]any, key string) string {
	s, _ := entry[key].(string)
	delete(entry, key)
	return s
}

// formatEntry renders "message key=value ..." with the remaining fields sorted.
func formatEntry(entry map[string]any) string {
	msg := stringField(entry, zerolog.MessageFieldName)
	delete(entry, "time")
	caller := stringField(entry, "caller")

	keys := make([]string, 0, len(entry))
	for k := range entry {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(msg)
	for _, k := range keys {
		v, err := json.Marshal(entry[k])
		if err != nil {
			continue
		}
		b.WriteString(" ")
		b.WriteString(k)
		b.WriteString("=")
		b.Write(v)
	}
	if caller != "" {
		b.WriteString(" (")
		b.WriteString(caller)
		b.WriteString(")")
	}
	return b.String()
}

// RPCLogger traces every request and response at debug level.
type RPCLogger struct{}

var _ jrpc2.RPCLogger = RPCLogger{}

func (RPCLogger) LogRequest(ctx context.Context, req *jrpc2.Request) {
	zerolog.Ctx(ctx).Debug().Str("rpc_params", req.ParamString()).Str("rpc_id", req.ID()).Str("rpc_method", req.Method()).Msg("client request")
}

func (RPCLogger) LogResponse(ctx context.Context, res *jrpc2.Response) {
	zerolog.Ctx(ctx).Debug().Str("rpc_result", res.ResultString()).Str("rpc_id", res.ID()).Msg("server response")
}
