package reflector_test

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/msbuildls/pkg/reflector"
)

const tasksJSON = `{
  "AssemblyName": "My.Tasks",
  "AssemblyPath": "/tmp/My.Tasks.dll",
  "Timestamp": "2024-03-01T10:20:30.1234567",
  "Tasks": [
    {
      "TaskName": "Copy",
      "TypeName": "My.Tasks.Copy",
      "Parameters": [
        {"Name": "SourceFiles", "Type": "Microsoft.Build.Framework.ITaskItem[]", "IsRequired": true},
        {"Name": "Mode", "Type": "My.Tasks.CopyMode", "EnumMemberNames": ["Fast", "Safe"]},
        {"Name": "CopiedFiles", "Type": "Microsoft.Build.Framework.ITaskItem[]", "IsOutput": true}
      ]
    }
  ]
}`

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reflect.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestReflect(t *testing.T) {
	script := writeScript(t, "cat <<'EOF'\n"+tasksJSON+"\nEOF")
	client := reflector.NewClient(script, nil, time.Second*5)

	asm, err := client.Reflect(context.Background(), "/tmp/My.Tasks.dll")
	require.NoError(t, err)

	assert.Equal(t, "My.Tasks", asm.AssemblyName)
	assert.Equal(t, 2024, asm.Timestamp.Year())
	assert.Equal(t, 123456700, asm.Timestamp.Nanosecond())
	require.Len(t, asm.Tasks, 1)

	task, ok := asm.Task("copy")
	require.True(t, ok)
	assert.Equal(t, "My.Tasks.Copy", task.TypeName)

	src, ok := task.Parameter("SourceFiles")
	require.True(t, ok)
	assert.True(t, src.IsRequired)
	assert.False(t, src.IsEnum())

	mode, ok := task.Parameter("mode")
	require.True(t, ok)
	assert.True(t, mode.IsEnum())
	assert.Equal(t, []string{"Fast", "Safe"}, mode.EnumMemberNames)

	out, ok := task.Parameter("CopiedFiles")
	require.True(t, ok)
	assert.True(t, out.IsOutput)

	_, ok = asm.Task("Missing")
	assert.False(t, ok)
}

func TestReflectPassesArguments(t *testing.T) {
	script := writeScript(t, `printf '{"AssemblyName":"%s","AssemblyPath":"%s","Tasks":[]}' "$1" "$2"`)
	client := reflector.NewClient(script, []string{"--describe"}, 0)

	asm, err := client.Reflect(context.Background(), "/x/y.dll")
	require.NoError(t, err)
	assert.Equal(t, "--describe", asm.AssemblyName)
	assert.Equal(t, "/x/y.dll", asm.AssemblyPath)
	assert.True(t, asm.Timestamp.IsZero())
}

func TestReflectFailures(t *testing.T) {
	tests := []struct {
		name        string
		script      string
		timeout     time.Duration
		path        string
		wantErr     error
		wantMessage string
		wantContain string
	}{
		{
			name:        "reported message",
			script:      `echo '{"Message": "Could not load file or assembly"}' >&2; exit 1`,
			path:        "/a.dll",
			wantErr:     reflector.ErrReflection,
			wantMessage: "Could not load file or assembly",
		},
		{
			name:        "plain failure",
			script:      `echo 'boom' >&2; exit 3`,
			path:        "/a.dll",
			wantContain: "boom",
		},
		{
			name:        "unreadable output",
			script:      `echo 'not json'`,
			path:        "/a.dll",
			wantErr:     reflector.ErrInvalidOutput,
			wantContain: "not json",
		},
		{
			name:    "timeout",
			script:  `exec sleep 10`,
			timeout: 100 * time.Millisecond,
			path:    "/a.dll",
			wantErr: reflector.ErrTimeout,
		},
		{
			name:    "empty path",
			script:  `exit 0`,
			path:    "  ",
			wantErr: reflector.ErrInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			timeout := tt.timeout
			if timeout == 0 {
				timeout = 5 * time.Second
			}
			client := reflector.NewClient(writeScript(t, tt.script), nil, timeout)

			start := time.Now()
			_, err := client.Reflect(context.Background(), tt.path)
			require.Error(t, err)
			assert.Less(t, time.Since(start), 4*time.Second)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.wantMessage != "" {
				var re *reflector.ReflectionError
				require.True(t, errors.As(err, &re))
				assert.Equal(t, tt.wantMessage, err.Error())
			}
			if tt.wantContain != "" {
				assert.Contains(t, err.Error(), tt.wantContain)
			}
		})
	}
}

func TestReflectMissingCommand(t *testing.T) {
	_, err := reflector.NewClient("", nil, 0).Reflect(context.Background(), "/a.dll")
	assert.ErrorIs(t, err, reflector.ErrInvalidArgument)
}

func TestReflectCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := reflector.NewClient(writeScript(t, `exec sleep 10`), nil, time.Second)
	_, err := client.Reflect(ctx, "/a.dll")
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, reflector.ErrTimeout)
}

type countingReflector struct {
	calls atomic.Int32
	err   error
}

func (c *countingReflector) Reflect(_ context.Context, path string) (*reflector.Assembly, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return &reflector.Assembly{AssemblyPath: path}, nil
}

func TestCache(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/tasks.dll", []byte("v1"), 0o644))

	inner := &countingReflector{}
	cache := reflector.NewCache(inner, fs)

	first, err := cache.Reflect(ctx, "/tasks.dll")
	require.NoError(t, err)
	second, err := cache.Reflect(ctx, "/tasks.dll")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, int32(1), inner.calls.Load())

	later := time.Now().Add(time.Hour)
	require.NoError(t, fs.Chtimes("/tasks.dll", later, later))
	third, err := cache.Reflect(ctx, "/tasks.dll")
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestCacheDropsEntryOnFailure(t *testing.T) {
	ctx := context.Background()
	stamp := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name      string
		fail      func(t *testing.T, fs afero.Fs, inner *countingReflector)
		restore   func(t *testing.T, fs afero.Fs, inner *countingReflector)
		wantCalls int32
	}{
		{
			name: "assembly removed",
			fail: func(t *testing.T, fs afero.Fs, _ *countingReflector) {
				require.NoError(t, fs.Remove("/tasks.dll"))
			},
			restore: func(t *testing.T, fs afero.Fs, _ *countingReflector) {
				require.NoError(t, afero.WriteFile(fs, "/tasks.dll", []byte("v1"), 0o644))
				require.NoError(t, fs.Chtimes("/tasks.dll", stamp, stamp))
			},
			wantCalls: 2,
		},
		{
			name: "reflection failed",
			fail: func(t *testing.T, fs afero.Fs, inner *countingReflector) {
				later := stamp.Add(time.Hour)
				require.NoError(t, fs.Chtimes("/tasks.dll", later, later))
				inner.err = reflector.ErrReflection
			},
			restore: func(t *testing.T, fs afero.Fs, inner *countingReflector) {
				require.NoError(t, fs.Chtimes("/tasks.dll", stamp, stamp))
				inner.err = nil
			},
			wantCalls: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fs, "/tasks.dll", []byte("v1"), 0o644))
			require.NoError(t, fs.Chtimes("/tasks.dll", stamp, stamp))

			inner := &countingReflector{}
			cache := reflector.NewCache(inner, fs)

			_, err := cache.Reflect(ctx, "/tasks.dll")
			require.NoError(t, err)

			tt.fail(t, fs, inner)
			_, err = cache.Reflect(ctx, "/tasks.dll")
			require.Error(t, err)

			// back at the first modification time, the first result must not come back
			tt.restore(t, fs, inner)
			_, err = cache.Reflect(ctx, "/tasks.dll")
			require.NoError(t, err)
			assert.Equal(t, tt.wantCalls, inner.calls.Load())
		})
	}
}

func TestCacheDoesNotKeepFailures(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/tasks.dll", []byte("v1"), 0o644))

	inner := &countingReflector{err: reflector.ErrReflection}
	cache := reflector.NewCache(inner, fs)

	_, err := cache.Reflect(ctx, "/tasks.dll")
	require.ErrorIs(t, err, reflector.ErrReflection)
	_, err = cache.Reflect(ctx, "/tasks.dll")
	require.ErrorIs(t, err, reflector.ErrReflection)
	assert.Equal(t, int32(2), inner.calls.Load())

	_, err = cache.Reflect(ctx, "/missing.dll")
	assert.ErrorIs(t, err, os.ErrNotExist)
}
