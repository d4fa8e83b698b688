// Package reflector asks an external tool to describe the build tasks compiled into an
// assembly. The tool prints one JSON document on success; on failure it may print a
// JSON object with a Message field to stderr.
package reflector

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// DefaultTimeout bounds a single reflection run.
const DefaultTimeout = 5 * time.Second

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrTimeout         = errors.New("task reflection timed out")
	ErrReflection      = errors.New("task reflection failed")
	ErrInvalidOutput   = errors.New("unreadable task reflection output")
)

// ReflectionError carries the message the tool reported. Error returns it verbatim.
type ReflectionError struct {
	Message string
}

func (e *ReflectionError) Error() string {
	return e.Message
}

func (e *ReflectionError) Unwrap() error {
	return ErrReflection
}

type Parameter struct {
	Name            string   `json:"Name"`
	Type            string   `json:"Type"`
	IsRequired      bool     `json:"IsRequired"`
	IsOutput        bool     `json:"IsOutput"`
	EnumMemberNames []string `json:"EnumMemberNames,omitempty"`
}

func (p Parameter) IsEnum() bool {
	return len(p.EnumMemberNames) > 0
}

type Task struct {
	TaskName   string      `json:"TaskName"`
	TypeName   string      `json:"TypeName"`
	Parameters []Parameter `json:"Parameters"`
}

// Parameter returns the parameter with the given name, ignoring case.
func (t Task) Parameter(name string) (Parameter, bool) {
	for _, p := range t.Parameters {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return Parameter{}, false
}

type Assembly struct {
	AssemblyName string    `json:"AssemblyName"`
	AssemblyPath string    `json:"AssemblyPath"`
	Timestamp    Timestamp `json:"Timestamp"`
	Tasks        []Task    `json:"Tasks"`
}

// Task returns the task with the given name, ignoring case.
func (a *Assembly) Task(name string) (Task, bool) {
	for _, t := range a.Tasks {
		if strings.EqualFold(t.TaskName, name) {
			return t, true
		}
	}
	return Task{}, false
}

// Timestamp accepts RFC 3339 times as well as the zone-less form .NET emits for local
// times.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.9999999",
	"2006-01-02T15:04:05",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Errorf("timestamp must be a string: %w", err)
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return errors.Errorf("unrecognised timestamp %q", s)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

// Client runs the reflector tool. Command and Args come from configuration; the
// assembly path is appended as the last argument.
type Client struct {
	Command string
	Args    []string
	Timeout time.Duration
}

func NewClient(command string, args []string, timeout time.Duration) *Client {
	return &Client{Command: command, Args: args, Timeout: timeout}
}

// Reflect describes the tasks in the assembly at assemblyPath. The tool is killed when
// the timeout elapses or ctx is cancelled.
func (c *Client) Reflect(ctx context.Context, assemblyPath string) (*Assembly, error) {
	if strings.TrimSpace(assemblyPath) == "" {
		return nil, errors.Errorf("%w: assembly path is empty", ErrInvalidArgument)
	}
	if strings.TrimSpace(c.Command) == "" {
		return nil, errors.Errorf("%w: reflector command is not configured", ErrInvalidArgument)
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	logger := zerolog.Ctx(ctx).With().Str("assembly", assemblyPath).Str("command", c.Command).Logger()

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string{}, c.Args...), assemblyPath)
	cmd := exec.CommandContext(runCtx, c.Command, args...)
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	logger.Debug().Dur("elapsed", time.Since(start)).Err(err).Msg("ran task reflector")

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, errors.Errorf("reflecting %s: %w", assemblyPath, ctxErr)
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return nil, errors.Errorf("%w: %s did not finish within %s", ErrTimeout, assemblyPath, timeout)
	}
	if err != nil {
		return nil, classifyFailure(assemblyPath, err, stdout.Bytes(), stderr.Bytes())
	}

	var assembly Assembly
	if err := json.Unmarshal(stdout.Bytes(), &assembly); err != nil {
		return nil, errors.Errorf("%w: %s: %s: output %q", ErrInvalidOutput, assemblyPath, err.Error(), stdout.String())
	}
	return &assembly, nil
}

func classifyFailure(assemblyPath string, runErr error, stdout, stderr []byte) error {
	var payload struct {
		Message string `json:"Message"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(stderr), &payload); err == nil && payload.Message != "" {
		return &ReflectionError{Message: payload.Message}
	}
	return errors.Errorf("reflecting %s: %w: stderr %q, stdout %q", assemblyPath, runErr, string(stderr), string(stdout))
}
